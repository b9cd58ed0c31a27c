// Package config loads server configuration in layers: built-in defaults,
// then an optional TOML file, then dotenv files, then CALIBRE_MCP_*
// environment variables. Later layers win.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Backend names accepted by Config.Backend.
const (
	BackendCalibreDB = "calibredb"
	BackendSQLite    = "sqlite"
)

type Config struct {
	// Library is the calibre library directory, the one containing
	// metadata.db.
	Library string
	// Backend selects how the catalog is queried: "calibredb" shells out to
	// the calibredb CLI, "sqlite" reads the library databases directly.
	Backend string
	// CalibreDBBinary is the calibredb executable used by the calibredb
	// backend.
	CalibreDBBinary string
	// CalibreDBTimeoutSeconds bounds a single calibredb invocation.
	CalibreDBTimeoutSeconds int

	DefaultLimit int
	MaxLimit     int
	// ContextRadius is the locator line window minted around a content
	// match.
	ContextRadius int
	// FetchParagraphs is how many opening paragraphs a rangeless fetch
	// returns.
	FetchParagraphs int
	// DescriptionLength is the display truncation for book descriptions.
	DescriptionLength int
}

// fileConfig mirrors Config with pointer fields so a file can override a
// subset of keys without clobbering the defaults for the rest.
type fileConfig struct {
	Library                 *string `toml:"library"`
	Backend                 *string `toml:"backend"`
	CalibreDBBinary         *string `toml:"calibredb_binary"`
	CalibreDBTimeoutSeconds *int    `toml:"calibredb_timeout_seconds"`
	DefaultLimit            *int    `toml:"default_limit"`
	MaxLimit                *int    `toml:"max_limit"`
	ContextRadius           *int    `toml:"context_radius"`
	FetchParagraphs         *int    `toml:"fetch_paragraphs"`
	DescriptionLength       *int    `toml:"description_length"`
}

type persistedConfig struct {
	Library                 string `toml:"library"`
	Backend                 string `toml:"backend"`
	CalibreDBBinary         string `toml:"calibredb_binary"`
	CalibreDBTimeoutSeconds int    `toml:"calibredb_timeout_seconds"`
	DefaultLimit            int    `toml:"default_limit"`
	MaxLimit                int    `toml:"max_limit"`
	ContextRadius           int    `toml:"context_radius"`
	FetchParagraphs         int    `toml:"fetch_paragraphs"`
	DescriptionLength       int    `toml:"description_length"`
}

func Default() Config {
	return Config{
		Library:                 defaultLibrary(),
		Backend:                 BackendCalibreDB,
		CalibreDBBinary:         "calibredb",
		CalibreDBTimeoutSeconds: 20,
		DefaultLimit:            50,
		MaxLimit:                200,
		ContextRadius:           5,
		FetchParagraphs:         5,
		DescriptionLength:       300,
	}
}

func defaultLibrary() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, "Calibre Library")
}

// Load builds the effective configuration: defaults, then the TOML file at
// path when it exists, then .env.local and .env, then CALIBRE_MCP_*
// environment variables. A missing file is not an error; a malformed one is.
func Load(path string) (Config, error) {
	return load(path, true)
}

// LoadFile applies only defaults plus the file layer. Config editing flows
// use it so environment noise never gets persisted back to disk.
func LoadFile(path string) (Config, error) {
	return load(path, false)
}

func load(path string, applyEnv bool) (Config, error) {
	cfg := Default()
	if applyEnv {
		// Values already present in the environment win over dotenv files.
		if err := loadDotEnvFiles(".env.local", ".env"); err != nil {
			return Config{}, fmt.Errorf("load dotenv files: %w", err)
		}
	}

	if path != "" {
		if err := applyFileOverrides(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	if applyEnv {
		applyEnvOverrides(&cfg)
	}
	return cfg, nil
}

func loadDotEnvFiles(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

func applyFileOverrides(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if strings.TrimSpace(string(raw)) == "" {
		return nil
	}

	var fileCfg fileConfig
	if err := toml.Unmarshal(raw, &fileCfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if fileCfg.Library != nil {
		cfg.Library = *fileCfg.Library
	}
	if fileCfg.Backend != nil {
		cfg.Backend = *fileCfg.Backend
	}
	if fileCfg.CalibreDBBinary != nil {
		cfg.CalibreDBBinary = *fileCfg.CalibreDBBinary
	}
	if fileCfg.CalibreDBTimeoutSeconds != nil {
		cfg.CalibreDBTimeoutSeconds = *fileCfg.CalibreDBTimeoutSeconds
	}
	if fileCfg.DefaultLimit != nil {
		cfg.DefaultLimit = *fileCfg.DefaultLimit
	}
	if fileCfg.MaxLimit != nil {
		cfg.MaxLimit = *fileCfg.MaxLimit
	}
	if fileCfg.ContextRadius != nil {
		cfg.ContextRadius = *fileCfg.ContextRadius
	}
	if fileCfg.FetchParagraphs != nil {
		cfg.FetchParagraphs = *fileCfg.FetchParagraphs
	}
	if fileCfg.DescriptionLength != nil {
		cfg.DescriptionLength = *fileCfg.DescriptionLength
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := envString("CALIBRE_MCP_LIBRARY"); ok {
		cfg.Library = v
	}
	if v, ok := envString("CALIBRE_MCP_BACKEND"); ok {
		cfg.Backend = v
	}
	if v, ok := envString("CALIBRE_MCP_CALIBREDB"); ok {
		cfg.CalibreDBBinary = v
	}
	if v, ok := envInt("CALIBRE_MCP_CALIBREDB_TIMEOUT"); ok {
		cfg.CalibreDBTimeoutSeconds = v
	}
	if v, ok := envInt("CALIBRE_MCP_DEFAULT_LIMIT"); ok {
		cfg.DefaultLimit = v
	}
	if v, ok := envInt("CALIBRE_MCP_MAX_LIMIT"); ok {
		cfg.MaxLimit = v
	}
	if v, ok := envInt("CALIBRE_MCP_CONTEXT_RADIUS"); ok {
		cfg.ContextRadius = v
	}
	if v, ok := envInt("CALIBRE_MCP_FETCH_PARAGRAPHS"); ok {
		cfg.FetchParagraphs = v
	}
	if v, ok := envInt("CALIBRE_MCP_DESCRIPTION_LENGTH"); ok {
		cfg.DescriptionLength = v
	}
}

func envString(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func envInt(key string) (int, bool) {
	raw, ok := envString(key)
	if !ok {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// SaveFile writes the full effective configuration as TOML, creating parent
// directories as needed.
func SaveFile(path string, cfg Config) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("config path is required")
	}

	var b strings.Builder
	enc := toml.NewEncoder(&b)
	if err := enc.Encode(persistedConfig{
		Library:                 cfg.Library,
		Backend:                 cfg.Backend,
		CalibreDBBinary:         cfg.CalibreDBBinary,
		CalibreDBTimeoutSeconds: cfg.CalibreDBTimeoutSeconds,
		DefaultLimit:            cfg.DefaultLimit,
		MaxLimit:                cfg.MaxLimit,
		ContextRadius:           cfg.ContextRadius,
		FetchParagraphs:         cfg.FetchParagraphs,
		DescriptionLength:       cfg.DescriptionLength,
	}); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write config file %s: %w", path, err)
	}
	return nil
}

// DefaultPath is where the config command reads and writes configuration
// when no explicit path is given.
func DefaultPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "calibre-mcp", "config.toml")
	}
	return filepath.Join(".", "calibre-mcp.toml")
}
