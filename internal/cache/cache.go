package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by lookups that address a specific record.
var ErrNotFound = errors.New("cache: record not found")

// Record is one cached question/SQL pair together with the embedding the
// question was stored under.
type Record struct {
	ID                 string
	Question           string
	NormalizedQuestion string
	SQLQuery           string
	Embedding          []float32
	Readonly           bool
	CreatedAt          time.Time
}

// AddInput carries everything needed to persist a new cache record. The
// store assigns the ID and timestamp.
type AddInput struct {
	Question           string
	NormalizedQuestion string
	SQLQuery           string
	Embedding          []float32
	Readonly           bool
}

// Match is a similarity hit: the stored record plus the cosine score that
// cleared the threshold.
type Match struct {
	Record Record
	Score  float64
}

// Stats summarizes the cache contents per mode partition.
type Stats struct {
	TotalEntries    int64 `json:"total_entries"`
	ReadonlyEntries int64 `json:"readonly_entries"`
	WriteEntries    int64 `json:"write_entries"`
}

// Store is the persistence contract for the semantic cache. FindSimilar
// only considers records in the requested mode partition and returns the
// best match at or above the threshold, preferring newer records on ties.
type Store interface {
	Add(ctx context.Context, input AddInput) (Record, error)
	FindSimilar(ctx context.Context, embedding []float32, readonly bool, threshold float64) (Match, bool, error)
	Stats(ctx context.Context) (Stats, error)
	Clear(ctx context.Context) (int64, error)
	List(ctx context.Context) ([]Record, error)
	HealthCheck(ctx context.Context) error
	Close() error
}
