package archive

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
	"gorm.io/gorm"

	"stakevault/observability"
	"stakevault/services/vaultindexerd/models"
)

// Config captures the dependencies required to construct an Exporter.
type Config struct {
	DB        *gorm.DB
	OutputDir string
	Logger    *slog.Logger
	Now       func() time.Time
}

// Exporter materialises event windows as CSV and Parquet artefacts for cold
// storage and offline analytics.
type Exporter struct {
	db        *gorm.DB
	outputDir string
	logger    *slog.Logger
	now       func() time.Time
}

// Result summarises one export run.
type Result struct {
	Start       time.Time
	End         time.Time
	Rows        int
	CSVPath     string
	ParquetPath string
}

// NewExporter builds a configured exporter.
func NewExporter(cfg Config) (*Exporter, error) {
	if cfg.DB == nil {
		return nil, errors.New("archive: db is required")
	}
	outputDir := cfg.OutputDir
	if strings.TrimSpace(outputDir) == "" {
		outputDir = "stakevault-archive"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Exporter{
		db:        cfg.DB,
		outputDir: outputDir,
		logger:    logger,
		now:       nowFn,
	}, nil
}

// Export writes every event emitted inside [start, end) to disk and records
// the run. Windows without events record a run with no artefacts.
func (e *Exporter) Export(ctx context.Context, start, end time.Time) (*Result, error) {
	result, err := e.export(ctx, start, end)
	observability.Indexer().RecordArchive(err)
	return result, err
}

func (e *Exporter) export(ctx context.Context, start, end time.Time) (*Result, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("archive: end before start")
	}
	var rows []models.Event
	err := e.db.WithContext(ctx).
		Where("emitted_at >= ? AND emitted_at < ?", start.Unix(), end.Unix()).
		Order("sequence asc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("archive: load events: %w", err)
	}

	result := &Result{Start: start, End: end, Rows: len(rows)}
	if len(rows) > 0 {
		runDir := filepath.Join(e.outputDir, fmt.Sprintf("%s_%s", start.UTC().Format("20060102T150405"), end.UTC().Format("20060102T150405")))
		if err := os.MkdirAll(runDir, 0o755); err != nil {
			return nil, fmt.Errorf("archive: ensure output dir: %w", err)
		}
		result.CSVPath = filepath.Join(runDir, "events.csv")
		if err := writeCSV(result.CSVPath, rows); err != nil {
			return nil, err
		}
		result.ParquetPath = filepath.Join(runDir, "events.parquet")
		if err := writeParquet(result.ParquetPath, rows); err != nil {
			return nil, err
		}
		e.logger.Info("archive written",
			"component", "archive",
			"rows", len(rows),
			"csv", result.CSVPath,
			"parquet", result.ParquetPath,
		)
	}

	run := models.ArchiveRun{
		ID:          uuid.New(),
		WindowStart: start,
		WindowEnd:   end,
		Rows:        len(rows),
		CSVPath:     result.CSVPath,
		ParquetPath: result.ParquetPath,
		CreatedAt:   e.now().UTC(),
	}
	if err := e.db.WithContext(ctx).Create(&run).Error; err != nil {
		return nil, fmt.Errorf("archive: record run: %w", err)
	}
	return result, nil
}

func writeCSV(path string, rows []models.Event) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("archive: create csv: %w", err)
	}
	defer file.Close()
	out := csv.NewWriter(file)
	header := []string{"sequence", "type", "payload", "digest", "emitted_at"}
	if err := out.Write(header); err != nil {
		return fmt.Errorf("archive: write csv header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			strconv.FormatUint(row.Sequence, 10),
			row.Type,
			row.Payload,
			row.Digest,
			strconv.FormatInt(row.EmittedAt, 10),
		}
		if err := out.Write(record); err != nil {
			return fmt.Errorf("archive: write csv row: %w", err)
		}
	}
	out.Flush()
	if err := out.Error(); err != nil {
		return fmt.Errorf("archive: flush csv: %w", err)
	}
	return nil
}

type parquetEvent struct {
	Sequence  int64  `parquet:"name=sequence, type=INT64"`
	Type      string `parquet:"name=type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Payload   string `parquet:"name=payload, type=BYTE_ARRAY, convertedtype=UTF8"`
	Digest    string `parquet:"name=digest, type=BYTE_ARRAY, convertedtype=UTF8"`
	EmittedAt int64  `parquet:"name=emitted_at, type=INT64"`
}

func writeParquet(path string, rows []models.Event) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("archive: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetEvent), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("archive: parquet schema: %w", err)
	}
	pw.RowGroupSize = 128 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range rows {
		pr := &parquetEvent{
			Sequence:  int64(row.Sequence),
			Type:      row.Type,
			Payload:   row.Payload,
			Digest:    row.Digest,
			EmittedAt: row.EmittedAt,
		}
		if err := pw.Write(pr); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("archive: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("archive: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("archive: close parquet file: %w", err)
	}
	return nil
}
