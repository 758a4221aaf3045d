// Package handlers implements the litgate CLI subcommands.
package handlers

import (
	"fmt"

	"litgate/internal/config"
	"litgate/internal/enhance"
	"litgate/internal/logger"
	"litgate/internal/ratelimit"
	"litgate/internal/research"
	"litgate/internal/sources"
	"litgate/internal/store"
)

// buildEngine wires the registry, caches and enhancer from the loaded
// configuration. The returned store may be nil when the persistent cache
// could not be opened; the engine still works without it.
func buildEngine() (*research.Engine, *store.Store) {
	cfg := config.Get()

	persisted, err := store.NewStore(cfg.Cache.Directory)
	if err != nil {
		logger.Warn("persistent cache disabled", "error", err)
		fmt.Printf("Warning: cache disabled: %s\n", err)
		persisted = nil
	}

	srcCfg := sourceConfig(cfg, persisted)
	registry := sources.NewRegistry(srcCfg)

	// MeSH shares the E-utilities quota with the PubMed adapter.
	meshRPS := 3.0
	if srcCfg.PubMedAPIKey != "" {
		meshRPS = 10
	}
	resolver := sources.NewMeSHClient(srcCfg, ratelimit.PerSecond(meshRPS))
	enhancer := enhance.New(resolver, store.NewEntityCache(cfg.EntityTTL()))

	return research.New(registry, enhancer), persisted
}

// buildRegistry wires just the source registry, for commands that talk to
// the sources without the full engine.
func buildRegistry() *sources.Registry {
	cfg := config.Get()
	return sources.NewRegistry(sourceConfig(cfg, nil))
}

func sourceConfig(cfg *config.Config, persisted *store.Store) sources.Config {
	return sources.Config{
		PubMedAPIKey:       cfg.Sources.PubMed.APIKey,
		COREAPIKey:         cfg.Sources.CORE.APIKey,
		ContactEmail:       cfg.Sources.ContactEmail,
		Timeout:            cfg.SourceTimeout(),
		ArticleCache:       store.NewArticleCache(cfg.ArticleTTL()),
		PersistedCache:     persisted,
		PubMedRPS:          cfg.Sources.PubMed.RequestsPerSecond,
		CrossrefRPS:        cfg.Sources.Crossref.RequestsPerSecond,
		OpenAlexRPS:        cfg.Sources.OpenAlex.RequestsPerSecond,
		SemanticScholarRPS: cfg.Sources.SemanticScholar.RequestsPerSecond,
		CORERPM:            cfg.Sources.CORE.RequestsPerMinute,
	}
}

// closeStore closes the persistent cache if it was opened.
func closeStore(s *store.Store) {
	if s != nil {
		if err := s.Close(); err != nil {
			logger.Warn("failed to close cache store", "error", err)
		}
	}
}
