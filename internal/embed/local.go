package embed

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// LocalEmbedder generates deterministic on-device embeddings from hashed
// word and bigram features. Quality is well below a real model but the
// vectors are stable, free, and good enough for offline operation and tests.
type LocalEmbedder struct {
	dimensions int
}

// NewLocalEmbedder returns a local embedder with 256-dimension vectors.
func NewLocalEmbedder() *LocalEmbedder {
	return &LocalEmbedder{dimensions: 256}
}

func (e *LocalEmbedder) Dimensions() int {
	return e.dimensions
}

func (e *LocalEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dimensions)
	words := tokenize(text)
	if len(words) == 0 {
		return vec, nil
	}

	for i, w := range words {
		bump(vec, w, 1.0)
		if i+1 < len(words) {
			bump(vec, w+" "+words[i+1], 0.5)
		}
	}

	normalize(vec)
	return vec, nil
}

// bump adds weight at two hashed positions so collisions average out.
func bump(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	h.Write([]byte(feature))
	sum := h.Sum64()
	vec[sum%uint64(len(vec))] += weight
	vec[(sum>>32)%uint64(len(vec))] += weight * 0.5
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v * v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}
