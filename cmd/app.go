package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"

	"github.com/CanopyHQ/xylem/internal/config"
	"github.com/CanopyHQ/xylem/internal/coordinator"
	"github.com/CanopyHQ/xylem/internal/embed"
	"github.com/CanopyHQ/xylem/internal/store/chromem"
	"github.com/CanopyHQ/xylem/internal/store/graph"
	"github.com/CanopyHQ/xylem/internal/store/meta"
	"github.com/CanopyHQ/xylem/internal/store/vec"
)

// app wires config, the three backing stores, the embedder and the
// coordinator together for a single command invocation.
type app struct {
	cfg    *config.Config
	coor   *coordinator.Coordinator
	logger *log.Logger

	closers []func() error
}

func openApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "xylem",
	})
	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}

	a := &app{cfg: cfg, logger: logger}

	embedder, err := a.buildEmbedder()
	if err != nil {
		return nil, err
	}

	metaStore, err := meta.Open(cfg.MetadataPath())
	if err != nil {
		return nil, fmt.Errorf("opening metadata store: %w", err)
	}
	a.closers = append(a.closers, metaStore.Close)

	vecIndex, err := a.buildVectorIndex(embedder.Dimensions())
	if err != nil {
		a.Close()
		return nil, err
	}

	graphStore, err := graph.Open(cfg.GraphPath())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("opening graph store: %w", err)
	}
	a.closers = append(a.closers, graphStore.Close)

	a.coor = coordinator.New(metaStore, vecIndex, graphStore, embedder, logger, coordinator.Options{
		EmbedTimeout:    cfg.EmbedTimeout,
		MaxContentBytes: cfg.MaxContentBytes,
		EdgeNeighbors:   cfg.EdgeNeighbors,
		EdgeMinWeight:   cfg.EdgeMinWeight,
	})
	return a, nil
}

func (a *app) buildEmbedder() (embed.Embedder, error) {
	var inner embed.Embedder
	switch a.cfg.Embedder {
	case "openai":
		inner = embed.NewHTTPEmbedder(
			a.cfg.OpenAIBaseURL+"/embeddings",
			a.cfg.OpenAIAPIKey,
			a.cfg.OpenAIModel,
			1536,
		)
	default:
		inner = embed.NewLocalEmbedder()
	}
	if a.cfg.EmbedCacheSize <= 0 {
		return inner, nil
	}
	cached, err := embed.NewCached(inner, int64(a.cfg.EmbedCacheSize))
	if err != nil {
		return nil, fmt.Errorf("building embedding cache: %w", err)
	}
	return cached, nil
}

func (a *app) buildVectorIndex(dimensions int) (coordinator.VectorIndex, error) {
	switch a.cfg.VectorBackend {
	case "chromem":
		return chromem.New()
	default:
		idx, err := vec.Open(a.cfg.VectorPath(), dimensions)
		if err != nil {
			return nil, fmt.Errorf("opening vector index: %w", err)
		}
		a.closers = append(a.closers, idx.Close)
		return idx, nil
	}
}

func (a *app) Close() {
	if a.coor != nil {
		a.coor.Flush()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "err", err)
		}
	}
}
