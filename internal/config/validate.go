package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the effective configuration before anything is wired up.
// It reports the first problem found.
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Library) == "" {
		return errors.New("library path is required")
	}
	switch cfg.Backend {
	case BackendCalibreDB, BackendSQLite:
	default:
		return fmt.Errorf("backend must be %q or %q, got %q", BackendCalibreDB, BackendSQLite, cfg.Backend)
	}
	if cfg.Backend == BackendCalibreDB && strings.TrimSpace(cfg.CalibreDBBinary) == "" {
		return errors.New("calibredb binary is required for the calibredb backend")
	}
	if cfg.CalibreDBTimeoutSeconds < 1 {
		return errors.New("calibredb timeout must be at least 1 second")
	}
	if cfg.DefaultLimit < 1 {
		return errors.New("default limit must be at least 1")
	}
	if cfg.MaxLimit < cfg.DefaultLimit {
		return fmt.Errorf("max limit %d is below the default limit %d", cfg.MaxLimit, cfg.DefaultLimit)
	}
	if cfg.ContextRadius < 1 {
		return errors.New("context radius must be at least 1")
	}
	if cfg.FetchParagraphs < 1 {
		return errors.New("fetch paragraphs must be at least 1")
	}
	if cfg.DescriptionLength < 1 {
		return errors.New("description length must be at least 1")
	}
	return nil
}
