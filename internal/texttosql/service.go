package texttosql

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/semql/semql/internal/cache"
	"github.com/semql/semql/internal/nl2sql"
	"github.com/semql/semql/internal/observability"
	"github.com/semql/semql/internal/sqlcheck"
)

var (
	// ErrEmptyQuestion rejects blank input before any model call.
	ErrEmptyQuestion = errors.New("question must not be empty")
	// ErrEmbedding marks a failed or malformed embedding; the request
	// cannot proceed without one.
	ErrEmbedding = errors.New("embedding failed")
	// ErrGeneration marks a failed SQL generation call.
	ErrGeneration = errors.New("sql generation failed")
)

// Result is the outcome of one text-to-SQL request. SQLQuery is empty
// when IsValid is false.
type Result struct {
	SQLQuery        string
	IsValid         bool
	FromCache       bool
	SimilarityScore *float64
	CachedQuestion  string
	CacheStats      cache.Stats
}

type Config struct {
	SimilarityThreshold float64
	EmbeddingDim        int
	CorrectionEnabled   bool
}

// Service orchestrates the cache-first text-to-SQL pipeline: embed,
// look up, generate on miss, validate, store. Identical in-flight
// questions in the same mode collapse onto one generation.
type Service struct {
	store     cache.Store
	embedder  nl2sql.Embedder
	generator nl2sql.Generator
	cfg       Config
	logger    *slog.Logger
	flights   singleflight.Group
}

func NewService(store cache.Store, embedder nl2sql.Embedder, generator nl2sql.Generator, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		embedder:  embedder,
		generator: generator,
		cfg:       cfg,
		logger:    logger,
	}
}

// ProcessQuestion answers one natural-language question. Callers that
// ask the same normalized question in the same mode while a generation
// is in flight share its outcome; a caller whose context ends first
// detaches without cancelling the shared work.
func (s *Service) ProcessQuestion(ctx context.Context, question string, readonly bool) (Result, error) {
	normalized := Normalize(question)
	if normalized == "" {
		return Result{}, ErrEmptyQuestion
	}

	key := flightKey(normalized, readonly)
	leaderCtx := context.WithoutCancel(ctx)
	ch := s.flights.DoChan(key, func() (any, error) {
		return s.process(leaderCtx, question, normalized, readonly)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Result{}, res.Err
		}
		if res.Shared {
			observability.IncrementSingleflightShared()
		}
		return res.Val.(Result), nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (s *Service) process(ctx context.Context, question, normalized string, readonly bool) (Result, error) {
	embedding, err := s.embed(ctx, normalized)
	if err != nil {
		return Result{}, err
	}

	if match, ok := s.lookup(ctx, embedding, readonly); ok {
		score := match.Score
		observability.ObserveCacheHit(score)
		s.logger.Info("cache hit",
			slog.Float64("score", score),
			slog.Bool("readonly", readonly),
		)
		return s.withStats(ctx, Result{
			SQLQuery:        match.Record.SQLQuery,
			IsValid:         true,
			FromCache:       true,
			SimilarityScore: &score,
			CachedQuestion:  match.Record.Question,
		}), nil
	}
	observability.ObserveCacheMiss()

	sqlQuery, valid, err := s.generate(ctx, question, readonly)
	if err != nil {
		return Result{}, err
	}
	if !valid {
		return s.withStats(ctx, Result{}), nil
	}

	s.storeRecord(ctx, cache.AddInput{
		Question:           question,
		NormalizedQuestion: normalized,
		SQLQuery:           sqlQuery,
		Embedding:          embedding,
		Readonly:           readonly,
	})

	return s.withStats(ctx, Result{SQLQuery: sqlQuery, IsValid: true}), nil
}

func (s *Service) embed(ctx context.Context, normalized string) ([]float32, error) {
	embedding, err := s.embedder.Embed(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	if s.cfg.EmbeddingDim > 0 && len(embedding) != s.cfg.EmbeddingDim {
		return nil, fmt.Errorf("%w: got %d dimensions, want %d", ErrEmbedding, len(embedding), s.cfg.EmbeddingDim)
	}
	return embedding, nil
}

// lookup degrades storage read failures to a miss so an unhealthy cache
// never blocks generation.
func (s *Service) lookup(ctx context.Context, embedding []float32, readonly bool) (cache.Match, bool) {
	match, found, err := s.store.FindSimilar(ctx, embedding, readonly, s.cfg.SimilarityThreshold)
	if err != nil {
		observability.ObserveCacheStoreError("find_similar")
		s.logger.Warn("cache lookup failed, treating as miss", slog.String("error", err.Error()))
		return cache.Match{}, false
	}
	return match, found
}

func (s *Service) generate(ctx context.Context, question string, readonly bool) (string, bool, error) {
	start := time.Now()
	raw, err := s.generator.GenerateSQL(ctx, question, readonly)
	observability.ObserveGeneration(time.Since(start), err)
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	res := sqlcheck.Validate(raw, readonly)
	if res.IsValid {
		return res.CleanedSQL, true, nil
	}
	observability.IncrementValidationFailure()

	if !s.cfg.CorrectionEnabled {
		s.logger.Warn("generated sql failed validation", slog.String("kind", string(res.Kind)))
		return "", false, nil
	}

	observability.IncrementCorrectionAttempt()
	corrected, err := s.generator.CorrectSQL(ctx, question, raw, validationIssue(res, readonly))
	if err != nil {
		s.logger.Warn("sql correction failed", slog.String("error", err.Error()))
		return "", false, nil
	}
	fixed := sqlcheck.Validate(corrected, readonly)
	if !fixed.IsValid {
		observability.IncrementValidationFailure()
		s.logger.Warn("corrected sql still invalid", slog.String("kind", string(fixed.Kind)))
		return "", false, nil
	}
	return fixed.CleanedSQL, true, nil
}

// storeRecord logs and counts write failures but never surfaces them;
// the generated SQL is already in hand.
func (s *Service) storeRecord(ctx context.Context, in cache.AddInput) {
	if _, err := s.store.Add(ctx, in); err != nil {
		observability.ObserveCacheStoreError("add")
		s.logger.Warn("cache write failed", slog.String("error", err.Error()))
	}
}

func (s *Service) withStats(ctx context.Context, res Result) Result {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		observability.ObserveCacheStoreError("stats")
		return res
	}
	observability.SetCacheEntries(stats.TotalEntries)
	res.CacheStats = stats
	return res
}

// ValidateSQL runs the cleaning and classification pipeline without any
// model call.
func (s *Service) ValidateSQL(raw string, readonly bool) sqlcheck.Result {
	return sqlcheck.Validate(raw, readonly)
}

// CorrectionOutcome pairs the final validation result with a short
// human-readable account of how it was reached.
type CorrectionOutcome struct {
	Result      sqlcheck.Result
	Explanation string
}

// ValidateAndCorrectSQL validates raw SQL and, when it fails, asks the
// model for one corrected attempt.
func (s *Service) ValidateAndCorrectSQL(ctx context.Context, question, raw string, readonly bool) (CorrectionOutcome, error) {
	res := sqlcheck.Validate(raw, readonly)
	if res.IsValid {
		return CorrectionOutcome{Result: res, Explanation: "SQL query is valid."}, nil
	}
	issue := validationIssue(res, readonly)
	observability.IncrementValidationFailure()
	observability.IncrementCorrectionAttempt()

	corrected, err := s.generator.CorrectSQL(ctx, question, raw, issue)
	if err != nil {
		return CorrectionOutcome{}, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	fixed := sqlcheck.Validate(corrected, readonly)
	if !fixed.IsValid {
		observability.IncrementValidationFailure()
		return CorrectionOutcome{
			Result:      fixed,
			Explanation: fmt.Sprintf("SQL query is invalid: %s.", validationIssue(fixed, readonly)),
		}, nil
	}
	return CorrectionOutcome{
		Result:      fixed,
		Explanation: fmt.Sprintf("SQL query was corrected: %s.", issue),
	}, nil
}

// ExplainSQL returns a plain-language description of a statement.
func (s *Service) ExplainSQL(ctx context.Context, sqlQuery string) (string, error) {
	explanation, err := s.generator.ExplainSQL(ctx, sqlQuery)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	return explanation, nil
}

func (s *Service) CacheStats(ctx context.Context) (cache.Stats, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return cache.Stats{}, err
	}
	observability.SetCacheEntries(stats.TotalEntries)
	return stats, nil
}

func (s *Service) ClearCache(ctx context.Context) (int64, error) {
	removed, err := s.store.Clear(ctx)
	if err != nil {
		return 0, err
	}
	observability.SetCacheEntries(0)
	return removed, nil
}

// Normalize maps a question to its cache identity: lowercased with
// whitespace runs collapsed.
func Normalize(question string) string {
	return strings.ToLower(strings.Join(strings.Fields(question), " "))
}

func flightKey(normalized string, readonly bool) string {
	if readonly {
		return "ro|" + normalized
	}
	return "rw|" + normalized
}

func validationIssue(res sqlcheck.Result, readonly bool) string {
	switch {
	case res.Kind == sqlcheck.KindUnparsable:
		return "the output was not a recognizable SQL statement"
	case readonly && !res.ReadonlyOK:
		return "the statement modifies data but only SELECT queries are allowed"
	default:
		return "the statement contained more than one SQL statement"
	}
}
