package core

import (
	"errors"
	"fmt"

	"stakevault/core/events"
	"stakevault/core/state"
	"stakevault/crypto"
	"stakevault/native/token"
	"stakevault/native/vault"
	"stakevault/storage"
)

// Node is the central controller, wiring the state manager, token ledger and
// vault engine over one database handle.
type Node struct {
	db        storage.Database
	manager   *state.Manager
	ledger    *token.Ledger
	store     *vault.Storage
	engine    *vault.Engine
	journal   *events.Journal
	custodian crypto.Address
}

// collectionLookup adapts the token ledger's item registry to the metadata
// view the vault engine consults.
type collectionLookup struct {
	ledger *token.Ledger
}

func (c collectionLookup) ItemInfo(id [32]byte) (*vault.ItemInfo, error) {
	item, found, err := c.ledger.ItemByID(id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, token.ErrItemNotFound
	}
	return &vault.ItemInfo{
		Collection:    item.Collection,
		HasCollection: item.HasCollection,
		Verified:      item.Verified,
		Supply:        item.Supply,
		Decimals:      item.Decimals,
	}, nil
}

// NewNode assembles a node over the database. The key identifies the
// custodian account that holds staked items and the reward mint authority.
func NewNode(db storage.Database, key *crypto.PrivateKey, policy vault.Policy) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("node: database must not be nil")
	}
	if key == nil {
		return nil, fmt.Errorf("node: custodian key must not be nil")
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("node: %w", err)
	}

	manager := state.NewManager(db)
	ledger := token.NewLedger(manager)
	store := vault.NewStorage(manager)
	custodian := key.PubKey().Address()

	var custodianAddr [20]byte
	copy(custodianAddr[:], custodian.Bytes())

	engine := vault.NewEngine()
	engine.SetState(store)
	engine.SetAssets(ledger)
	engine.SetMetadata(collectionLookup{ledger: ledger})
	engine.SetCustodian(custodianAddr)
	engine.SetPolicy(policy)

	return &Node{
		db:        db,
		manager:   manager,
		ledger:    ledger,
		store:     store,
		engine:    engine,
		custodian: custodian,
	}, nil
}

// SetEmitter routes engine events to the provided sink. Pass an events.Fanout
// to feed several sinks at once.
func (n *Node) SetEmitter(emitter events.Emitter) {
	n.engine.SetEmitter(emitter)
}

// SetJournal attaches the persistent event journal and routes engine events
// into it.
func (n *Node) SetJournal(journal *events.Journal) {
	n.journal = journal
	if journal != nil {
		n.engine.SetEmitter(journal)
	}
}

// Journal returns the attached event journal, or nil when none is configured.
func (n *Node) Journal() *events.Journal {
	return n.journal
}

// SetNowFunc overrides the engine's time source. Nil restores the UTC clock.
func (n *Node) SetNowFunc(now func() int64) {
	n.engine.SetNowFunc(now)
}

// Custodian returns the node's custody account address.
func (n *Node) Custodian() crypto.Address {
	return n.custodian
}

// EnsureRewardToken registers the reward token if it is not present yet.
// Reopening a node against existing state is a no-op.
func (n *Node) EnsureRewardToken(symbol, name string, decimals uint8) error {
	if n.manager.TokenExists(symbol) {
		return nil
	}
	return n.ledger.Register(symbol, name, decimals)
}

// SeedItem registers a collection item, skipping IDs that already exist. Used
// to load fixture inventories at startup.
func (n *Node) SeedItem(id [32]byte, owner [20]byte, collection [32]byte, verified bool) error {
	err := n.ledger.MintItem(id, owner, collection, verified)
	if errors.Is(err, token.ErrItemExists) {
		return nil
	}
	return err
}

// TokenBalance returns the holder's balance formatted as a decimal string.
func (n *Node) TokenBalance(addr [20]byte, symbol string) (string, error) {
	balance, err := n.ledger.Balance(addr, symbol)
	if err != nil {
		return "", err
	}
	return balance.String(), nil
}

// ItemByID exposes the item registry for queries.
func (n *Node) ItemByID(id [32]byte) (*token.Item, bool, error) {
	return n.ledger.ItemByID(id)
}

// CollectionItems lists the registered items of a collection.
func (n *Node) CollectionItems(collection [32]byte) ([][32]byte, error) {
	return n.ledger.CollectionItems(collection)
}
