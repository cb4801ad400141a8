// Package embed provides vector embedding generation for similarity search.
package embed

import "context"

// Embedder turns text into a fixed-dimension vector. Implementations must
// honor ctx cancellation; callers bound every Embed with a timeout.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}
