package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"stakevault/native/vault"
	"stakevault/observability"
	"stakevault/services/vaultindexerd/models"
)

const checkpointName = "events"

// EventSource feeds the ingester, normally the node RPC client.
type EventSource interface {
	EventsAfter(ctx context.Context, cursor uint64, limit int) ([]EventRecord, error)
}

// AuditLog receives one append-only record per newly indexed event.
type AuditLog interface {
	RecordIngest(ctx context.Context, sequence uint64, eventType, digest string) error
}

// Config captures the dependencies required to construct an Ingester.
type Config struct {
	DB        *gorm.DB
	Source    EventSource
	Audit     AuditLog
	Interval  time.Duration
	BatchSize int
	Logger    *slog.Logger
}

// Ingester polls the node event feed, stores each event once, and maintains
// the per-user stake projections.
type Ingester struct {
	db        *gorm.DB
	source    EventSource
	audit     AuditLog
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
	metrics   *observability.IndexerMetrics
}

// New builds a configured ingester.
func New(cfg Config) (*Ingester, error) {
	if cfg.DB == nil {
		return nil, errors.New("ingest: db is required")
	}
	if cfg.Source == nil {
		return nil, errors.New("ingest: event source is required")
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 200
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingester{
		db:        cfg.DB,
		source:    cfg.Source,
		audit:     cfg.Audit,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
		metrics:   observability.Indexer(),
	}, nil
}

// Run polls until the context is cancelled. Individual sync failures are
// logged and retried on the next tick.
func (i *Ingester) Run(ctx context.Context) error {
	ticker := time.NewTicker(i.interval)
	defer ticker.Stop()
	for {
		if n, err := i.Sync(ctx); err != nil {
			i.logger.Error("event sync failed", "component", "ingest", "error", err)
		} else if n > 0 {
			i.logger.Debug("ingested events", "component", "ingest", "count", n)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Sync drains the node feed from the stored checkpoint until a short batch
// comes back. Each batch commits atomically.
func (i *Ingester) Sync(ctx context.Context) (int, error) {
	total := 0
	for {
		cursor, err := i.cursor()
		if err != nil {
			return total, err
		}
		batch, err := i.source.EventsAfter(ctx, cursor, i.batchSize)
		if err != nil {
			return total, fmt.Errorf("ingest: fetch events after %d: %w", cursor, err)
		}
		if len(batch) == 0 {
			return total, nil
		}
		start := time.Now()
		applied, err := i.applyBatch(ctx, batch)
		if err != nil {
			return total, err
		}
		i.metrics.ObserveBatch(time.Since(start), batch[len(batch)-1].Sequence)
		for _, evt := range applied {
			i.metrics.RecordIngest(evt.Type)
			if i.audit != nil {
				if err := i.audit.RecordIngest(ctx, evt.Sequence, evt.Type, evt.digest); err != nil {
					i.logger.Warn("audit record failed", "component", "ingest", "sequence", evt.Sequence, "error", err)
				}
			}
		}
		total += len(applied)
		if len(batch) < i.batchSize {
			return total, nil
		}
	}
}

type appliedEvent struct {
	Sequence uint64
	Type     string
	digest   string
}

func (i *Ingester) cursor() (uint64, error) {
	var cp models.Checkpoint
	err := i.db.Where("name = ?", checkpointName).First(&cp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return cp.Value, nil
}

func (i *Ingester) applyBatch(ctx context.Context, batch []EventRecord) ([]appliedEvent, error) {
	applied := make([]appliedEvent, 0, len(batch))
	err := i.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, evt := range batch {
			payload, err := json.Marshal(evt.Attributes)
			if err != nil {
				return fmt.Errorf("ingest: encode attributes for %d: %w", evt.Sequence, err)
			}
			digest := models.EventDigest(evt.Sequence, evt.Type, string(payload), evt.EmittedAt)
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.Event{
				Sequence:  evt.Sequence,
				Type:      evt.Type,
				Payload:   string(payload),
				Digest:    digest,
				EmittedAt: evt.EmittedAt,
			})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				continue
			}
			if err := applyProjection(tx, evt); err != nil {
				return err
			}
			applied = append(applied, appliedEvent{Sequence: evt.Sequence, Type: evt.Type, digest: digest})
		}
		last := batch[len(batch)-1].Sequence
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"value": last, "updated_at": time.Now().UTC()}),
		}).Create(&models.Checkpoint{Name: checkpointName, Value: last, UpdatedAt: time.Now().UTC()}).Error
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}

func applyProjection(tx *gorm.DB, evt EventRecord) error {
	switch evt.Type {
	case vault.EventTypeStaked:
		return projectStake(tx, evt, true)
	case vault.EventTypeUnstaked:
		return projectStake(tx, evt, false)
	case vault.EventTypeRewardsClaimed:
		return projectClaim(tx, evt)
	default:
		return nil
	}
}

func projectStake(tx *gorm.DB, evt EventRecord, staked bool) error {
	address := evt.Attributes["user"]
	if address == "" {
		return fmt.Errorf("ingest: event %d missing user attribute", evt.Sequence)
	}
	pos, err := loadOrCreatePosition(tx, address)
	if err != nil {
		return err
	}
	items, err := decodeItems(pos.Items)
	if err != nil {
		return fmt.Errorf("ingest: position %s items: %w", address, err)
	}
	item := evt.Attributes["item"]
	if staked {
		pos.StakedCount++
		if item != "" {
			items = append(items, item)
		}
	} else {
		if pos.StakedCount > 0 {
			pos.StakedCount--
		}
		items = removeItem(items, item)
	}
	encoded, err := json.Marshal(items)
	if err != nil {
		return err
	}
	pos.Items = string(encoded)
	pos.LastSequence = evt.Sequence
	return tx.Save(pos).Error
}

func projectClaim(tx *gorm.DB, evt EventRecord) error {
	address := evt.Attributes["user"]
	if address == "" {
		return fmt.Errorf("ingest: event %d missing user attribute", evt.Sequence)
	}
	amount, err := strconv.ParseUint(evt.Attributes["amount"], 10, 64)
	if err != nil {
		return fmt.Errorf("ingest: event %d amount: %w", evt.Sequence, err)
	}
	pos, err := loadOrCreatePosition(tx, address)
	if err != nil {
		return err
	}
	pos.TotalClaimed += amount
	pos.LastSequence = evt.Sequence
	return tx.Save(pos).Error
}

func loadOrCreatePosition(tx *gorm.DB, address string) (*models.StakePosition, error) {
	var pos models.StakePosition
	err := tx.Where("address = ?", address).First(&pos).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		pos = models.StakePosition{ID: uuid.New(), Address: address, Items: "[]"}
		if err := tx.Create(&pos).Error; err != nil {
			return nil, err
		}
		return &pos, nil
	}
	if err != nil {
		return nil, err
	}
	return &pos, nil
}

func decodeItems(raw string) ([]string, error) {
	if raw == "" {
		return []string{}, nil
	}
	var items []string
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, err
	}
	return items, nil
}

func removeItem(items []string, item string) []string {
	if item == "" {
		return items
	}
	for idx, candidate := range items {
		if candidate == item {
			return append(items[:idx], items[idx+1:]...)
		}
	}
	return items
}
