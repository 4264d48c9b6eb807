package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/semql/semql/internal/vector"
)

// MemoryStore keeps cache records in process memory. It backs the test
// profile and small single-instance deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Add(_ context.Context, input AddInput) (Record, error) {
	record := Record{
		ID:                 uuid.NewString(),
		Question:           input.Question,
		NormalizedQuestion: input.NormalizedQuestion,
		SQLQuery:           input.SQLQuery,
		Embedding:          append([]float32(nil), input.Embedding...),
		Readonly:           input.Readonly,
		CreatedAt:          time.Now().UTC(),
	}
	s.mu.Lock()
	s.records = append(s.records, record)
	s.mu.Unlock()
	return record, nil
}

func (s *MemoryStore) FindSimilar(_ context.Context, embedding []float32, readonly bool, threshold float64) (Match, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		best      Match
		found     bool
		bestIndex int
	)
	for i, record := range s.records {
		if record.Readonly != readonly {
			continue
		}
		score := vector.CosineSimilarity(embedding, record.Embedding)
		if score <= 0 || score < threshold {
			continue
		}
		// ties go to the newer record
		if !found || score > best.Score || (score == best.Score && i > bestIndex) {
			best = Match{Record: record, Score: score}
			bestIndex = i
			found = true
		}
	}
	return best, found, nil
}

func (s *MemoryStore) Stats(_ context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{TotalEntries: int64(len(s.records))}
	for _, record := range s.records {
		if record.Readonly {
			stats.ReadonlyEntries++
		} else {
			stats.WriteEntries++
		}
	}
	return stats, nil
}

func (s *MemoryStore) Clear(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := int64(len(s.records))
	s.records = nil
	return removed, nil
}

func (s *MemoryStore) List(_ context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out, nil
}

func (s *MemoryStore) HealthCheck(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
