package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/semql/semql/internal/cache"
	"github.com/semql/semql/internal/vector"
)

// Store persists cache records in the query_cache table. Similarity is
// computed in process over the mode partition, so the scan reads rows
// newest first and keeps the first best score it sees.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Add(ctx context.Context, in cache.AddInput) (cache.Record, error) {
	record := cache.Record{
		ID:                 uuid.NewString(),
		Question:           in.Question,
		NormalizedQuestion: in.NormalizedQuestion,
		SQLQuery:           in.SQLQuery,
		Embedding:          append([]float32(nil), in.Embedding...),
		Readonly:           in.Readonly,
	}

	query := `
INSERT INTO query_cache (id, question, normalized_question, sql_query, embedding, readonly)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at`
	if err := s.db.QueryRowContext(ctx, query,
		record.ID,
		record.Question,
		record.NormalizedQuestion,
		record.SQLQuery,
		vector.Encode(record.Embedding),
		record.Readonly,
	).Scan(&record.CreatedAt); err != nil {
		return cache.Record{}, fmt.Errorf("insert cache record: %w", err)
	}
	return record, nil
}

func (s *Store) FindSimilar(ctx context.Context, embedding []float32, readonly bool, threshold float64) (cache.Match, bool, error) {
	query := `
SELECT id, question, normalized_question, sql_query, embedding, readonly, created_at
FROM query_cache
WHERE readonly = $1
ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, readonly)
	if err != nil {
		return cache.Match{}, false, fmt.Errorf("scan cache partition: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var (
		best  cache.Match
		found bool
	)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return cache.Match{}, false, err
		}
		score := vector.CosineSimilarity(embedding, record.Embedding)
		if score <= 0 || score < threshold {
			continue
		}
		if !found || score > best.Score {
			best = cache.Match{Record: record, Score: score}
			found = true
		}
	}
	if err := rows.Err(); err != nil {
		return cache.Match{}, false, fmt.Errorf("iterate cache rows: %w", err)
	}
	return best, found, nil
}

func (s *Store) Stats(ctx context.Context) (cache.Stats, error) {
	var stats cache.Stats
	if err := s.db.QueryRowContext(ctx, `
SELECT
    COUNT(*) AS total_entries,
    COALESCE(SUM(CASE WHEN readonly THEN 1 ELSE 0 END), 0) AS readonly_entries,
    COALESCE(SUM(CASE WHEN readonly THEN 0 ELSE 1 END), 0) AS write_entries
FROM query_cache`).Scan(
		&stats.TotalEntries,
		&stats.ReadonlyEntries,
		&stats.WriteEntries,
	); err != nil {
		return cache.Stats{}, fmt.Errorf("query cache stats: %w", err)
	}
	return stats, nil
}

func (s *Store) Clear(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM query_cache`)
	if err != nil {
		return 0, fmt.Errorf("clear cache: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear cache rows affected: %w", err)
	}
	return removed, nil
}

func (s *Store) List(ctx context.Context) ([]cache.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, question, normalized_question, sql_query, embedding, readonly, created_at
FROM query_cache
ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list cache records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]cache.Record, 0)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cache records: %w", err)
	}
	return records, nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping cache db: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func scanRecord(rows *sql.Rows) (cache.Record, error) {
	var (
		record  cache.Record
		payload []byte
	)
	if err := rows.Scan(
		&record.ID,
		&record.Question,
		&record.NormalizedQuestion,
		&record.SQLQuery,
		&payload,
		&record.Readonly,
		&record.CreatedAt,
	); err != nil {
		return cache.Record{}, fmt.Errorf("scan cache row: %w", err)
	}
	embedding, err := vector.Decode(payload)
	if err != nil {
		return cache.Record{}, fmt.Errorf("decode embedding for record %s: %w", record.ID, err)
	}
	record.Embedding = embedding
	return record, nil
}
