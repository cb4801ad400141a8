package embed

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalEmbedder_Deterministic(t *testing.T) {
	e := NewLocalEmbedder()
	ctx := context.Background()

	a, err := e.Embed(ctx, "the quick brown fox")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "the quick brown fox")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, e.Dimensions())
}

func TestLocalEmbedder_Normalized(t *testing.T) {
	e := NewLocalEmbedder()
	vec, err := e.Embed(context.Background(), "normalize me please")
	require.NoError(t, err)

	var sum float64
	for _, v := range vec {
		sum += float64(v * v)
	}
	assert.InDelta(t, 1.0, sum, 1e-4)
}

func TestLocalEmbedder_SimilarTextCloser(t *testing.T) {
	e := NewLocalEmbedder()
	ctx := context.Background()

	a, _ := e.Embed(ctx, "database migration failed on staging")
	b, _ := e.Embed(ctx, "database migration failed on production")
	c, _ := e.Embed(ctx, "lunch menu for friday")

	assert.Greater(t, dot(a, b), dot(a, c))
}

func TestLocalEmbedder_Empty(t *testing.T) {
	e := NewLocalEmbedder()
	vec, err := e.Embed(context.Background(), "   ")
	require.NoError(t, err)
	assert.Len(t, vec, e.Dimensions())
}

func TestHTTPEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3],"index":0}]}`))
	}))
	defer srv.Close()

	e := NewHTTPEmbedder(srv.URL, "test-key", "text-embedding-3-small", 3)
	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestHTTPEmbedder_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	e := NewHTTPEmbedder(srv.URL, "", "m", 3)
	_, err := e.Embed(context.Background(), "hello")
	assert.Error(t, err)
}

func TestHTTPEmbedder_ContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	e := NewHTTPEmbedder(srv.URL, "", "m", 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Embed(ctx, "hello")
	assert.Error(t, err)
}

type countingEmbedder struct {
	calls int
	fail  bool
}

func (c *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	c.calls++
	if c.fail {
		return nil, errors.New("provider down")
	}
	return []float32{1, 0, 0}, nil
}

func (c *countingEmbedder) Dimensions() int { return 3 }

func TestCached_HitsSkipProvider(t *testing.T) {
	inner := &countingEmbedder{}
	cached, err := NewCached(inner, 16)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = cached.Embed(ctx, "repeat")
	require.NoError(t, err)
	cached.Wait()

	_, err = cached.Embed(ctx, "repeat")
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)
}

func TestCached_ErrorsNotCached(t *testing.T) {
	inner := &countingEmbedder{fail: true}
	cached, err := NewCached(inner, 16)
	require.NoError(t, err)

	_, err = cached.Embed(context.Background(), "x")
	assert.Error(t, err)
	_, err = cached.Embed(context.Background(), "x")
	assert.Error(t, err)
	assert.Equal(t, 2, inner.calls)
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i] * b[i])
	}
	return math.Round(s*1e9) / 1e9
}
