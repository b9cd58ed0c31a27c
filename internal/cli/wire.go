package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/trieloff/calibre-mcp/internal/catalog"
	"github.com/trieloff/calibre-mcp/internal/config"
	"github.com/trieloff/calibre-mcp/internal/library"
	"github.com/trieloff/calibre-mcp/internal/model"
	"github.com/trieloff/calibre-mcp/internal/search"
)

// loadConfig layers the config file, dotenv and environment, then applies
// the global CLI flags on top.
func loadConfig() (config.Config, error) {
	path := globalFlags.ConfigPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if globalFlags.Library != "" {
		cfg.Library = globalFlags.Library
	}
	if globalFlags.Backend != "" {
		cfg.Backend = globalFlags.Backend
	}
	return cfg, nil
}

// buildService wires the configured backend into a search service. The
// calibredb backend shells out to the calibredb CLI; the sqlite backend
// reads metadata.db and full-text-search.db directly.
func buildService(cfg config.Config) (*search.Service, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	info, err := os.Stat(cfg.Library)
	if err != nil {
		return nil, fmt.Errorf("library %s: %w", cfg.Library, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("library %s is not a directory", cfg.Library)
	}

	var (
		querier model.CatalogQuerier
		index   model.FullTextIndex
	)
	switch cfg.Backend {
	case config.BackendSQLite:
		c := catalog.NewSQLiteCatalog(cfg.Library)
		querier, index = c, c
	default:
		c := catalog.NewCalibreDB(cfg.CalibreDBBinary, cfg.Library, time.Duration(cfg.CalibreDBTimeoutSeconds)*time.Second)
		querier, index = c, c
	}

	return search.New(querier, index, library.NewResolver(querier), search.Options{
		ContextRadius:     cfg.ContextRadius,
		DescriptionLength: cfg.DescriptionLength,
		FetchParagraphs:   cfg.FetchParagraphs,
	}), nil
}
