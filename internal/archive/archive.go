package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/semql/semql/internal/cache"
)

// ErrObjectNotFound is returned when an archive key does not exist.
var ErrObjectNotFound = errors.New("archive: object not found")

// ObjectStore is the blob backend archives are written to and restored
// from.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

type ExportResult struct {
	Key     string `json:"key"`
	Records int64  `json:"records"`
	Bytes   int64  `json:"bytes"`
}

type RestoreResult struct {
	Key      string `json:"key"`
	Restored int64  `json:"restored"`
	Removed  int64  `json:"removed"`
}

// Archiver moves cache contents between the live store and parquet
// archives in object storage.
type Archiver struct {
	store   cache.Store
	objects ObjectStore
	logger  *slog.Logger
}

func NewArchiver(store cache.Store, objects ObjectStore, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{store: store, objects: objects, logger: logger}
}

// Export writes every cache record to one parquet object. An empty key
// gets a timestamped default.
func (a *Archiver) Export(ctx context.Context, key string) (ExportResult, error) {
	if key == "" {
		key = fmt.Sprintf("exports/query-cache-%s.parquet", time.Now().UTC().Format("20060102T150405Z"))
	}

	records, err := a.store.List(ctx)
	if err != nil {
		return ExportResult{}, fmt.Errorf("list cache records: %w", err)
	}
	if len(records) == 0 {
		return ExportResult{}, fmt.Errorf("cache is empty, nothing to export")
	}

	data, err := EncodeRecords(records)
	if err != nil {
		return ExportResult{}, err
	}
	if err := a.objects.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "application/vnd.apache.parquet"); err != nil {
		return ExportResult{}, fmt.Errorf("upload archive %q: %w", key, err)
	}

	a.logger.Info("cache exported",
		slog.String("key", key),
		slog.Int("records", len(records)),
	)
	return ExportResult{Key: key, Records: int64(len(records)), Bytes: int64(len(data))}, nil
}

// Restore loads an archive back into the cache. With replace set the
// cache is cleared first; otherwise archived records are added on top.
func (a *Archiver) Restore(ctx context.Context, key string, replace bool) (RestoreResult, error) {
	if key == "" {
		return RestoreResult{}, fmt.Errorf("archive key is required")
	}

	reader, err := a.objects.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return RestoreResult{}, ErrObjectNotFound
		}
		return RestoreResult{}, fmt.Errorf("fetch archive %q: %w", key, err)
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(reader)
	if err != nil {
		return RestoreResult{}, fmt.Errorf("read archive %q: %w", key, err)
	}
	records, err := DecodeRecords(data)
	if err != nil {
		return RestoreResult{}, err
	}

	result := RestoreResult{Key: key}
	if replace {
		removed, err := a.store.Clear(ctx)
		if err != nil {
			return RestoreResult{}, fmt.Errorf("clear cache before restore: %w", err)
		}
		result.Removed = removed
	}

	for _, record := range records {
		if _, err := a.store.Add(ctx, cache.AddInput{
			Question:           record.Question,
			NormalizedQuestion: record.NormalizedQuestion,
			SQLQuery:           record.SQLQuery,
			Embedding:          record.Embedding,
			Readonly:           record.Readonly,
		}); err != nil {
			return RestoreResult{}, fmt.Errorf("restore record %s: %w", record.ID, err)
		}
		result.Restored++
	}

	a.logger.Info("cache restored",
		slog.String("key", key),
		slog.Int64("records", result.Restored),
		slog.Bool("replace", replace),
	)
	return result, nil
}
