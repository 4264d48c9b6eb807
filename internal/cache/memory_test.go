package cache

import (
	"context"
	"testing"

	"github.com/semql/semql/internal/vector"
)

func TestMemoryStoreAddAndFind(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	record, err := store.Add(ctx, AddInput{
		Question:           "How many users are there?",
		NormalizedQuestion: "how many users are there?",
		SQLQuery:           "SELECT count(*) FROM users",
		Embedding:          []float32{1, 0, 0},
		Readonly:           true,
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if record.ID == "" {
		t.Fatalf("expected generated id")
	}

	match, found, err := store.FindSimilar(ctx, []float32{1, 0, 0}, true, 0.8)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !found {
		t.Fatalf("expected a hit")
	}
	if match.Record.SQLQuery != "SELECT count(*) FROM users" {
		t.Fatalf("unexpected sql %q", match.Record.SQLQuery)
	}
	if match.Score < 0.999 {
		t.Fatalf("unexpected score %f", match.Score)
	}
}

func TestMemoryStoreThresholdBoundary(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	stored := []float32{1, 0}
	if _, err := store.Add(ctx, AddInput{Embedding: stored, Readonly: true}); err != nil {
		t.Fatalf("add: %v", err)
	}

	// Use the store's own score as the threshold so the equality case is
	// exact rather than subject to float32 rounding.
	probe := []float32{0.8, 0.6}
	score := vector.CosineSimilarity(probe, stored)
	if score <= 0 || score >= 1 {
		t.Fatalf("probe score %f outside the interesting range", score)
	}
	if _, found, _ := store.FindSimilar(ctx, probe, true, score); !found {
		t.Fatalf("score equal to threshold should hit")
	}
	if _, found, _ := store.FindSimilar(ctx, probe, true, score+1e-9); found {
		t.Fatalf("score below threshold should miss")
	}
}

func TestMemoryStoreModePartition(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if _, err := store.Add(ctx, AddInput{SQLQuery: "DELETE FROM t", Embedding: []float32{1, 0}, Readonly: false}); err != nil {
		t.Fatalf("add: %v", err)
	}

	if _, found, _ := store.FindSimilar(ctx, []float32{1, 0}, true, 0.5); found {
		t.Fatalf("readonly lookup must not see write-mode records")
	}
	if _, found, _ := store.FindSimilar(ctx, []float32{1, 0}, false, 0.5); !found {
		t.Fatalf("write lookup should see write-mode records")
	}
}

func TestMemoryStoreTieBreakRecency(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if _, err := store.Add(ctx, AddInput{SQLQuery: "old", Embedding: []float32{1, 0}, Readonly: true}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := store.Add(ctx, AddInput{SQLQuery: "new", Embedding: []float32{1, 0}, Readonly: true}); err != nil {
		t.Fatalf("add: %v", err)
	}

	match, found, err := store.FindSimilar(ctx, []float32{1, 0}, true, 0.9)
	if err != nil || !found {
		t.Fatalf("find: found=%v err=%v", found, err)
	}
	if match.Record.SQLQuery != "new" {
		t.Fatalf("expected newest record on tie, got %q", match.Record.SQLQuery)
	}
}

func TestMemoryStoreZeroNormNeverMatches(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if _, err := store.Add(ctx, AddInput{Embedding: []float32{0, 0, 0}, Readonly: true}); err != nil {
		t.Fatalf("add: %v", err)
	}

	if _, found, _ := store.FindSimilar(ctx, []float32{0, 0, 0}, true, 0); found {
		t.Fatalf("zero-norm probe must not match even at threshold zero")
	}
	if _, found, _ := store.FindSimilar(ctx, []float32{1, 0, 0}, true, 0.1); found {
		t.Fatalf("zero-norm stored vector must not match")
	}
}

func TestMemoryStoreStatsAndClear(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if _, err := store.Add(ctx, AddInput{Embedding: []float32{1}, Readonly: true}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := store.Add(ctx, AddInput{Embedding: []float32{1}, Readonly: false}); err != nil {
		t.Fatalf("add: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalEntries != 2 || stats.ReadonlyEntries != 1 || stats.WriteEntries != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	removed, err := store.Clear(ctx)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	stats, _ = store.Stats(ctx)
	if stats.TotalEntries != 0 {
		t.Fatalf("expected empty cache, got %+v", stats)
	}
}
