package models

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"lukechampine.com/blake3"
)

// Event is one indexed journal entry, keyed by the node-assigned sequence.
// Payload holds the event attributes exactly as emitted, as a JSON object.
type Event struct {
	Sequence  uint64 `gorm:"primaryKey;autoIncrement:false"`
	Type      string `gorm:"size:64;index"`
	Payload   string `gorm:"type:text"`
	Digest    string `gorm:"size:64;index"`
	EmittedAt int64  `gorm:"index"`
	CreatedAt time.Time
}

// StakePosition projects per-user custody state from the event stream.
type StakePosition struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Address      string    `gorm:"uniqueIndex;size:64"`
	StakedCount  uint32    `gorm:"not null"`
	Items        string    `gorm:"type:text"`
	TotalClaimed uint64
	LastSequence uint64 `gorm:"index"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Checkpoint stores named ingest cursors so restarts resume where they left off.
type Checkpoint struct {
	Name      string `gorm:"primaryKey;size:32"`
	Value     uint64
	UpdatedAt time.Time
}

// ArchiveRun records one completed export execution.
type ArchiveRun struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	WindowStart time.Time
	WindowEnd   time.Time
	Rows        int
	CSVPath     string `gorm:"size:255"`
	ParquetPath string `gorm:"size:255"`
	CreatedAt   time.Time
}

// AutoMigrate performs all schema migrations for the indexer.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Event{},
		&StakePosition{},
		&Checkpoint{},
		&ArchiveRun{},
	)
}

// EventDigest computes the tamper-evidence digest stored with each event. The
// canonical encoding is sequence and timestamp in big endian with the type and
// payload length-delimited, hashed with BLAKE3.
func EventDigest(sequence uint64, eventType, payload string, emittedAt int64) string {
	buf := bytes.NewBuffer(nil)
	_ = binary.Write(buf, binary.BigEndian, sequence)
	writeDelimited(buf, []byte(eventType))
	writeDelimited(buf, []byte(payload))
	_ = binary.Write(buf, binary.BigEndian, emittedAt)
	sum := blake3.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}

func writeDelimited(buf *bytes.Buffer, data []byte) {
	_ = binary.Write(buf, binary.BigEndian, uint32(len(data)))
	buf.Write(data)
}
