package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/semql/semql/internal/cache"
	"github.com/semql/semql/internal/vector"
)

func TestStoreAdd(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer func() { _ = db.Close() }()

	embedding := []float32{0.1, 0.2, 0.3}
	mock.ExpectQuery(regexp.QuoteMeta(`
INSERT INTO query_cache (id, question, normalized_question, sql_query, embedding, readonly)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at`)).
		WithArgs(sqlmock.AnyArg(), "How many users?", "how many users?", "SELECT count(*) FROM users", vector.Encode(embedding), true).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	store := NewStore(db)
	record, err := store.Add(context.Background(), cache.AddInput{
		Question:           "How many users?",
		NormalizedQuestion: "how many users?",
		SQLQuery:           "SELECT count(*) FROM users",
		Embedding:          embedding,
		Readonly:           true,
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if record.ID == "" {
		t.Fatalf("expected generated id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestStoreFindSimilarPicksBestAboveThreshold(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer func() { _ = db.Close() }()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "question", "normalized_question", "sql_query", "embedding", "readonly", "created_at"}).
		AddRow("id-new", "newest", "newest", "SELECT 2", vector.Encode([]float32{0.9, 0.4359}), true, now).
		AddRow("id-exact", "exact", "exact", "SELECT 1", vector.Encode([]float32{1, 0}), true, now.Add(-time.Hour)).
		AddRow("id-far", "far", "far", "SELECT 3", vector.Encode([]float32{0, 1}), true, now.Add(-2*time.Hour))

	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT id, question, normalized_question, sql_query, embedding, readonly, created_at
FROM query_cache
WHERE readonly = $1
ORDER BY created_at DESC`)).
		WithArgs(true).
		WillReturnRows(rows)

	store := NewStore(db)
	match, found, err := store.FindSimilar(context.Background(), []float32{1, 0}, true, 0.8)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !found {
		t.Fatalf("expected a hit")
	}
	if match.Record.ID != "id-exact" {
		t.Fatalf("expected exact match to win, got %s", match.Record.ID)
	}
	if match.Score < 0.999 {
		t.Fatalf("unexpected score %f", match.Score)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestStoreFindSimilarMissBelowThreshold(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer func() { _ = db.Close() }()

	rows := sqlmock.NewRows([]string{"id", "question", "normalized_question", "sql_query", "embedding", "readonly", "created_at"}).
		AddRow("id-1", "q", "q", "SELECT 1", vector.Encode([]float32{0, 1}), true, time.Now())

	mock.ExpectQuery("SELECT id, question").WithArgs(true).WillReturnRows(rows)

	store := NewStore(db)
	_, found, err := store.FindSimilar(context.Background(), []float32{1, 0}, true, 0.8)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found {
		t.Fatalf("expected a miss for orthogonal vectors")
	}
}

func TestStoreFindSimilarTieBreakRecency(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer func() { _ = db.Close() }()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "question", "normalized_question", "sql_query", "embedding", "readonly", "created_at"}).
		AddRow("id-new", "q", "q", "SELECT new", vector.Encode([]float32{1, 0}), true, now).
		AddRow("id-old", "q", "q", "SELECT old", vector.Encode([]float32{1, 0}), true, now.Add(-time.Hour))

	mock.ExpectQuery("SELECT id, question").WithArgs(true).WillReturnRows(rows)

	store := NewStore(db)
	match, found, err := store.FindSimilar(context.Background(), []float32{1, 0}, true, 0.9)
	if err != nil || !found {
		t.Fatalf("find: found=%v err=%v", found, err)
	}
	if match.Record.ID != "id-new" {
		t.Fatalf("expected newest record on tie, got %s", match.Record.ID)
	}
}

func TestStoreStats(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT").
		WillReturnRows(sqlmock.NewRows([]string{"total_entries", "readonly_entries", "write_entries"}).AddRow(5, 3, 2))

	store := NewStore(db)
	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalEntries != 5 || stats.ReadonlyEntries != 3 || stats.WriteEntries != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestStoreClear(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM query_cache`)).
		WillReturnResult(sqlmock.NewResult(0, 7))

	store := NewStore(db)
	removed, err := store.Clear(context.Background())
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if removed != 7 {
		t.Fatalf("expected 7 removed, got %d", removed)
	}
}

func TestStoreFindSimilarCorruptEmbedding(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer func() { _ = db.Close() }()

	rows := sqlmock.NewRows([]string{"id", "question", "normalized_question", "sql_query", "embedding", "readonly", "created_at"}).
		AddRow("id-bad", "q", "q", "SELECT 1", []byte{0x01, 0x02, 0x03}, true, time.Now())

	mock.ExpectQuery("SELECT id, question").WithArgs(true).WillReturnRows(rows)

	store := NewStore(db)
	if _, _, err := store.FindSimilar(context.Background(), []float32{1}, true, 0.5); err == nil {
		t.Fatalf("expected decode error for truncated payload")
	}
}
