package events

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"stakevault/core/types"
)

var bucketEvents = []byte("events")

const (
	// journalSubscriberBuffer bounds the live channel handed to each
	// subscriber. Subscribers that fall behind miss events on the channel and
	// must resume from their cursor via EventsAfter.
	journalSubscriberBuffer = 64
	// journalMaxPage caps a single EventsAfter read.
	journalMaxPage = 500
)

// StoredEvent is the durable form of an emitted event, ordered by sequence.
type StoredEvent struct {
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	EmittedAt  int64             `json:"emittedAt"`
}

// Journal persists every emitted event in a Bolt database and fans live
// updates out to subscribers. It satisfies the Emitter interface so engines
// can write to it directly; emission never fails the originating operation.
type Journal struct {
	db    *bolt.DB
	nowFn func() int64

	mu          sync.Mutex
	lastSeq     uint64
	subscribers map[uint64]chan StoredEvent
	nextSubID   uint64
}

// OpenJournal initialises (and migrates) the Bolt-backed event journal.
func OpenJournal(path string) (*Journal, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	j := &Journal{
		db:          db,
		nowFn:       func() int64 { return time.Now().Unix() },
		subscribers: make(map[uint64]chan StoredEvent),
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(bucketEvents)
		if err != nil {
			return err
		}
		if key, _ := bucket.Cursor().Last(); len(key) == 8 {
			j.lastSeq = binary.BigEndian.Uint64(key)
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

// Close releases the underlying Bolt database handle.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// SetNowFunc overrides the time source used to stamp stored events. Primarily
// intended for tests to provide deterministic timestamps.
func (j *Journal) SetNowFunc(now func() int64) {
	if now == nil {
		j.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	j.nowFn = now
}

// Emit implements the Emitter interface. Events carrying a broadcastable
// payload are stored with their attributes; bare events are stored with the
// type only. Storage failures are swallowed so emission never fails callers.
func (j *Journal) Emit(evt Event) {
	if j == nil || evt == nil {
		return
	}
	eventType := evt.EventType()
	var attrs map[string]string
	if carrier, ok := evt.(interface{ Event() *types.Event }); ok {
		if payload := carrier.Event(); payload != nil {
			eventType = payload.Type
			attrs = payload.Attributes
		}
	}
	if eventType == "" {
		return
	}
	_, _ = j.Append(eventType, attrs)
}

// Append stores an event under the next sequence number and notifies live
// subscribers. The stored record is returned so callers can echo it.
func (j *Journal) Append(eventType string, attrs map[string]string) (StoredEvent, error) {
	if j == nil || j.db == nil {
		return StoredEvent{}, fmt.Errorf("events: journal not open")
	}
	copied := make(map[string]string, len(attrs))
	for k, v := range attrs {
		copied[k] = v
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	record := StoredEvent{
		Sequence:   j.lastSeq + 1,
		Type:       eventType,
		Attributes: copied,
		EmittedAt:  j.nowFn(),
	}
	encoded, err := json.Marshal(record)
	if err != nil {
		return StoredEvent{}, err
	}
	if err := j.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEvents).Put(sequenceKey(record.Sequence), encoded)
	}); err != nil {
		return StoredEvent{}, err
	}
	j.lastSeq = record.Sequence

	for _, ch := range j.subscribers {
		select {
		case ch <- record:
		default:
		}
	}
	return record, nil
}

// LastSequence returns the sequence number of the most recent stored event.
func (j *Journal) LastSequence() uint64 {
	if j == nil {
		return 0
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastSeq
}

// EventsAfter returns up to limit events with sequence numbers strictly
// greater than cursor, in ascending order.
func (j *Journal) EventsAfter(cursor uint64, limit int) ([]StoredEvent, error) {
	if j == nil || j.db == nil {
		return nil, fmt.Errorf("events: journal not open")
	}
	if limit <= 0 || limit > journalMaxPage {
		limit = journalMaxPage
	}
	out := make([]StoredEvent, 0, limit)
	err := j.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketEvents).Cursor()
		for key, value := c.Seek(sequenceKey(cursor + 1)); key != nil && len(out) < limit; key, value = c.Next() {
			var record StoredEvent
			if err := json.Unmarshal(value, &record); err != nil {
				return err
			}
			out = append(out, record)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Subscribe registers a live event feed starting after the provided cursor.
// The backlog contains events already stored past the cursor; subsequent
// events arrive on the returned channel. The cancel function must be called
// when the subscriber is done; cancellation also happens when ctx ends.
func (j *Journal) Subscribe(ctx context.Context, cursor uint64) (<-chan StoredEvent, func(), []StoredEvent, error) {
	if j == nil || j.db == nil {
		return nil, nil, nil, fmt.Errorf("events: journal not open")
	}

	// The lock is held across the backlog read and channel registration so no
	// event appended in between can be missed by the subscriber.
	j.mu.Lock()
	backlog := make([]StoredEvent, 0)
	for cursor < j.lastSeq {
		page, err := j.EventsAfter(cursor, journalMaxPage)
		if err != nil {
			j.mu.Unlock()
			return nil, nil, nil, err
		}
		if len(page) == 0 {
			break
		}
		backlog = append(backlog, page...)
		cursor = page[len(page)-1].Sequence
	}

	ch := make(chan StoredEvent, journalSubscriberBuffer)
	id := j.nextSubID
	j.nextSubID++
	j.subscribers[id] = ch
	j.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			j.mu.Lock()
			delete(j.subscribers, id)
			close(ch)
			j.mu.Unlock()
		})
	}
	if ctx != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}
	return ch, cancel, backlog, nil
}

func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
