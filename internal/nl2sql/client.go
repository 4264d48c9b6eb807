package nl2sql

import "context"

// Embedder turns a question into its embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Generator produces, repairs, and explains SQL for natural-language
// questions. Implementations return raw model output; cleaning and
// validation happen downstream.
type Generator interface {
	GenerateSQL(ctx context.Context, question string, readonly bool) (string, error)
	CorrectSQL(ctx context.Context, question, badSQL, issue string) (string, error)
	ExplainSQL(ctx context.Context, sqlQuery string) (string, error)
}

// Client bundles both capabilities for callers that need the full model
// surface.
type Client interface {
	Embedder
	Generator
}
