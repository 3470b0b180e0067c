package embeddings

import "context"

// Provider turns text into vectors for the passage index.
// Queries and indexed passages must use the same provider and model.
type Provider interface {
	// Embed creates a vector for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch creates vectors for several texts in one call, in input order
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector size produced by the model
	Dimensions() int

	// Name returns the model name stored alongside each vector
	Name() string
}
