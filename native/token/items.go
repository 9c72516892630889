package token

import (
	"fmt"
)

var (
	itemPrefix         = []byte("nft/items/")
	collectionsListKey = []byte("nft/collections")
	collectionPrefix   = []byte("nft/collections/")
)

func itemKey(id [32]byte) []byte {
	buf := make([]byte, len(itemPrefix)+len(id))
	copy(buf, itemPrefix)
	copy(buf[len(itemPrefix):], id[:])
	return buf
}

func collectionItemsKey(collection [32]byte) []byte {
	suffix := []byte("/items")
	buf := make([]byte, len(collectionPrefix)+len(collection)+len(suffix))
	copy(buf, collectionPrefix)
	copy(buf[len(collectionPrefix):], collection[:])
	copy(buf[len(collectionPrefix)+len(collection):], suffix)
	return buf
}

// Item is a non-fungible entry in the registry. A genuine one-of-one carries
// Supply 1 and Decimals 0; anything else is a fungible token masquerading as
// an item and is rejected by consumers that require uniqueness.
type Item struct {
	ID            [32]byte
	Owner         [20]byte
	Collection    [32]byte
	HasCollection bool
	Verified      bool
	Supply        uint64
	Decimals      uint8
}

type storedItem struct {
	Owner         []byte
	Collection    []byte
	HasCollection bool
	Verified      bool
	Supply        uint64
	Decimals      uint8
}

func newStoredItem(item *Item) *storedItem {
	return &storedItem{
		Owner:         append([]byte(nil), item.Owner[:]...),
		Collection:    append([]byte(nil), item.Collection[:]...),
		HasCollection: item.HasCollection,
		Verified:      item.Verified,
		Supply:        item.Supply,
		Decimals:      item.Decimals,
	}
}

func (s *storedItem) toItem(id [32]byte) (*Item, error) {
	item := &Item{
		ID:            id,
		HasCollection: s.HasCollection,
		Verified:      s.Verified,
		Supply:        s.Supply,
		Decimals:      s.Decimals,
	}
	if len(s.Owner) != len(item.Owner) {
		return nil, fmt.Errorf("token: malformed item owner length %d", len(s.Owner))
	}
	copy(item.Owner[:], s.Owner)
	if len(s.Collection) != len(item.Collection) {
		return nil, fmt.Errorf("token: malformed item collection length %d", len(s.Collection))
	}
	copy(item.Collection[:], s.Collection)
	return item, nil
}

// MintItem registers a one-of-one item under the given collection. The
// verified flag records whether the collection creator has countersigned the
// membership.
func (l *Ledger) MintItem(id [32]byte, owner [20]byte, collection [32]byte, verified bool) error {
	if _, found, err := l.ItemByID(id); err != nil {
		return err
	} else if found {
		return ErrItemExists
	}
	item := &Item{
		ID:            id,
		Owner:         owner,
		Collection:    collection,
		HasCollection: true,
		Verified:      verified,
		Supply:        1,
		Decimals:      0,
	}
	return l.PutItem(item)
}

// PutItem writes an item record verbatim. Collection membership lists are
// maintained for items that carry a collection.
func (l *Ledger) PutItem(item *Item) error {
	if item == nil {
		return fmt.Errorf("token: item must not be nil")
	}
	if err := l.mgr.KVPut(itemKey(item.ID), newStoredItem(item)); err != nil {
		return err
	}
	if !item.HasCollection {
		return nil
	}
	if err := l.mgr.KVAppend(collectionsListKey, item.Collection[:]); err != nil {
		return err
	}
	return l.mgr.KVAppend(collectionItemsKey(item.Collection), item.ID[:])
}

// ItemByID loads an item record.
func (l *Ledger) ItemByID(id [32]byte) (*Item, bool, error) {
	var stored storedItem
	found, err := l.mgr.KVGet(itemKey(id), &stored)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	item, err := stored.toItem(id)
	if err != nil {
		return nil, false, err
	}
	return item, true, nil
}

// TransferItem moves custody of an item. The sender must be the current
// owner.
func (l *Ledger) TransferItem(id [32]byte, from, to [20]byte) error {
	item, found, err := l.ItemByID(id)
	if err != nil {
		return err
	}
	if !found {
		return ErrItemNotFound
	}
	if item.Owner != from {
		return ErrNotItemOwner
	}
	item.Owner = to
	return l.mgr.KVPut(itemKey(id), newStoredItem(item))
}

// VerifyItem marks the item's collection membership as countersigned.
func (l *Ledger) VerifyItem(id [32]byte) error {
	item, found, err := l.ItemByID(id)
	if err != nil {
		return err
	}
	if !found {
		return ErrItemNotFound
	}
	item.Verified = true
	return l.mgr.KVPut(itemKey(id), newStoredItem(item))
}

// CollectionItems lists the item IDs registered under a collection.
func (l *Ledger) CollectionItems(collection [32]byte) ([][32]byte, error) {
	var raw [][]byte
	if err := l.mgr.KVGetList(collectionItemsKey(collection), &raw); err != nil {
		return nil, err
	}
	items := make([][32]byte, 0, len(raw))
	for _, entry := range raw {
		var id [32]byte
		if len(entry) != len(id) {
			return nil, fmt.Errorf("token: malformed item id length %d", len(entry))
		}
		copy(id[:], entry)
		items = append(items, id)
	}
	return items, nil
}

// Collections lists every collection that has at least one registered item.
func (l *Ledger) Collections() ([][32]byte, error) {
	var raw [][]byte
	if err := l.mgr.KVGetList(collectionsListKey, &raw); err != nil {
		return nil, err
	}
	collections := make([][32]byte, 0, len(raw))
	for _, entry := range raw {
		var id [32]byte
		if len(entry) != len(id) {
			return nil, fmt.Errorf("token: malformed collection id length %d", len(entry))
		}
		copy(id[:], entry)
		collections = append(collections, id)
	}
	return collections, nil
}
