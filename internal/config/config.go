package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/mixsearch/internal/embed"
	mserrors "github.com/Aman-CERP/mixsearch/internal/errors"
	"github.com/Aman-CERP/mixsearch/internal/logging"
	"github.com/Aman-CERP/mixsearch/internal/search"
	"github.com/Aman-CERP/mixsearch/internal/tokenize"
)

// File and directory names.
const (
	// ProjectConfigFile is the per-project configuration file.
	ProjectConfigFile = ".mixsearch.yaml"

	// ProjectConfigFileAlt is accepted when ProjectConfigFile is absent.
	ProjectConfigFileAlt = ".mixsearch.yml"

	// DataDir holds the index database, vectors and the rebuild lock,
	// relative to the project root.
	DataDir = ".mixsearch"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "MIXSEARCH_"
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Source kinds.
const (
	SourceDir = "dir"
	SourceSQL = "sql"
)

// Config represents the complete mixsearch configuration.
type Config struct {
	Version    int             `yaml:"version" json:"version"`
	Tokenize   tokenize.Config `yaml:"tokenize" json:"tokenize"`
	Ranking    search.Config   `yaml:"ranking" json:"ranking"`
	Index      IndexConfig     `yaml:"index" json:"index"`
	Storage    StorageConfig   `yaml:"storage" json:"storage"`
	Source     SourceConfig    `yaml:"source" json:"source"`
	Embeddings embed.Config    `yaml:"embeddings" json:"embeddings"`
	Watch      WatchConfig     `yaml:"watch" json:"watch"`
	Server     ServerConfig    `yaml:"server" json:"server"`
	Logging    logging.Config  `yaml:"logging" json:"logging"`
}

// IndexConfig configures the index builder.
type IndexConfig struct {
	Workers        int    `yaml:"workers" json:"workers"`
	LockDir        string `yaml:"lock_dir" json:"lock_dir"`
	EmbedDocuments bool   `yaml:"embed_documents" json:"embed_documents"`
	VectorPath     string `yaml:"vector_path" json:"vector_path"`
	// ArchiveText keeps the text of builds run by this process in memory
	// so snippets start at the matched term.
	ArchiveText bool `yaml:"archive_text" json:"archive_text"`
}

// StorageConfig selects where the committed index lives.
type StorageConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `yaml:"backend" json:"backend"`
	// Driver is "sqlite" (pure Go) or "sqlite3" (cgo).
	Driver string `yaml:"driver" json:"driver"`
	Path   string `yaml:"path" json:"path"`
}

// SourceConfig selects where documents come from.
type SourceConfig struct {
	// Kind is "dir" or "sql".
	Kind string `yaml:"kind" json:"kind"`

	// Path is the document directory for kind dir.
	Path string `yaml:"path" json:"path"`

	// Driver, DSN and Table configure kind sql.
	Driver string `yaml:"driver" json:"driver"`
	DSN    string `yaml:"dsn" json:"dsn"`
	Table  string `yaml:"table" json:"table"`

	// Label is the scope of every document read from a directory.
	Label string `yaml:"label" json:"label"`
}

// WatchConfig configures the corpus watcher.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce" json:"debounce"`
	// PollInterval is used when native file events are unavailable.
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	// MetricsAddr serves prometheus metrics when set, e.g. "127.0.0.1:9464".
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Version:  1,
		Tokenize: tokenize.DefaultConfig(),
		Ranking:  search.DefaultConfig(),
		Index: IndexConfig{
			Workers:        runtime.NumCPU(),
			LockDir:        DataDir,
			EmbedDocuments: true,
			VectorPath:     filepath.Join(DataDir, "vectors.hnsw"),
			ArchiveText:    true,
		},
		Storage: StorageConfig{
			Backend: BackendSQLite,
			Driver:  "sqlite",
			Path:    filepath.Join(DataDir, "index.db"),
		},
		Source: SourceConfig{
			Kind:  SourceDir,
			Path:  ".",
			Table: "documents",
			Label: "local",
		},
		Embeddings: embed.DefaultConfig(),
		Watch: WatchConfig{
			Debounce:     500 * time.Millisecond,
			PollInterval: 2 * time.Second,
		},
		Logging: logging.DefaultConfig(),
	}
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows the XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/mixsearch/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/mixsearch/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "mixsearch", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "mixsearch", "config.yaml")
	}
	return filepath.Join(home, ".config", "mixsearch", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// Load loads configuration for the project in dir. It applies, in order of
// increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/mixsearch/config.yaml)
//  3. Project config (.mixsearch.yaml in dir)
//  4. .env in dir (never overrides variables already set)
//  5. Environment variables (MIXSEARCH_*)
//
// Relative storage, lock, vector and source paths are resolved against dir.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	if err := loadDotEnv(dir); err != nil {
		return nil, err
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	cfg.resolvePaths(dir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads defaults overlaid with the single file at path, then the
// environment. Used for an explicit --config flag.
func LoadFile(path string) (*Config, error) {
	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if err := loadDotEnv(dir); err != nil {
		return nil, err
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	cfg.resolvePaths(dir)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile loads .mixsearch.yaml, or .mixsearch.yml, from dir.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ProjectConfigFile)
	if fileExists(yamlPath) {
		return c.loadYAML(yamlPath)
	}
	ymlPath := filepath.Join(dir, ProjectConfigFileAlt)
	if fileExists(ymlPath) {
		return c.loadYAML(ymlPath)
	}
	return nil
}

// loadYAML overlays the keys present in the file at path onto c. Keys the
// file omits keep their current value, so explicit false and zero values
// do override.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return mserrors.ConfigError("failed to read config file", err).WithDetail("path", path)
	}

	parsed := *c
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&parsed); err != nil && !errors.Is(err, io.EOF) {
		return mserrors.ConfigError("failed to parse config file", err).WithDetail("path", path)
	}
	*c = parsed
	return nil
}

func loadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if !fileExists(path) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return mserrors.ConfigError("failed to load .env", err).WithDetail("path", path)
	}
	return nil
}

// applyEnvOverrides applies MIXSEARCH_* environment variable overrides.
// Empty variables are ignored; malformed numbers are an error.
func (c *Config) applyEnvOverrides() error {
	floats := []struct {
		name string
		dst  *float64
	}{
		{"BM25_K1", &c.Ranking.Ranker.K1},
		{"BM25_B", &c.Ranking.Ranker.B},
		{"ALPHA", &c.Ranking.DefaultAlpha},
	}
	for _, f := range floats {
		v := os.Getenv(EnvPrefix + f.name)
		if v == "" {
			continue
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return mserrors.ConfigError("invalid environment override", err).WithDetail("var", EnvPrefix+f.name)
		}
		*f.dst = parsed
	}

	if v := os.Getenv(EnvPrefix + "EMBEDDER"); v != "" {
		c.Embeddings.Provider = embed.ProviderType(strings.ToLower(strings.TrimSpace(v)))
	}
	if v := os.Getenv(EnvPrefix + "OLLAMA_HOST"); v != "" {
		c.Embeddings.Host = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(EnvPrefix + "STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv(EnvPrefix + "SOURCE_PATH"); v != "" {
		c.Source.Path = v
	}
	return nil
}

// resolvePaths makes relative filesystem paths absolute against dir.
func (c *Config) resolvePaths(dir string) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	for _, p := range []*string{&c.Index.LockDir, &c.Index.VectorPath, &c.Storage.Path, &c.Source.Path} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(abs, *p)
		}
	}
	if c.Source.Kind == SourceSQL && isSQLiteDriver(c.Source.Driver) &&
		c.Source.DSN != "" && !filepath.IsAbs(c.Source.DSN) && !strings.Contains(c.Source.DSN, ":") {
		c.Source.DSN = filepath.Join(abs, c.Source.DSN)
	}
}

// FindProjectRoot walks up from startDir looking for a .git directory or a
// project config file. Falls back to startDir.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if dirExists(filepath.Join(currentDir, ".git")) ||
			fileExists(filepath.Join(currentDir, ProjectConfigFile)) ||
			fileExists(filepath.Join(currentDir, ProjectConfigFileAlt)) {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}

// Validate validates the configuration and returns a ConfigError if invalid.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return mserrors.ConfigError(fmt.Sprintf(format, args...), nil)
	}

	r := c.Ranking
	if r.Ranker.K1 <= 0 {
		return invalid("ranking.ranker.k1 must be positive, got %g", r.Ranker.K1)
	}
	if r.Ranker.B < 0 || r.Ranker.B > 1 {
		return invalid("ranking.ranker.b must be between 0 and 1, got %g", r.Ranker.B)
	}
	if r.DefaultAlpha < 0 || r.DefaultAlpha > 1 {
		return invalid("ranking.alpha must be between 0 and 1, got %g", r.DefaultAlpha)
	}
	if r.DefaultLimit < 0 || r.DefaultLimit > search.MaxLimit {
		return invalid("ranking.limit must be between 0 and %d, got %d", search.MaxLimit, r.DefaultLimit)
	}

	if _, ok := tokenize.ParseCJKMode(string(c.Tokenize.Core.CJKMode)); !ok {
		return invalid("tokenize.core.cjk_mode must be 'span', 'char' or 'bigram', got %s", c.Tokenize.Core.CJKMode)
	}
	if c.Tokenize.BigramWeight < 0 {
		return invalid("tokenize.bigram_weight must be non-negative, got %g", c.Tokenize.BigramWeight)
	}

	if c.Index.Workers < 0 {
		return invalid("index.workers must be non-negative, got %d", c.Index.Workers)
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendSQLite:
		if !isSQLiteDriver(c.Storage.Driver) {
			return invalid("storage.driver must be 'sqlite' or 'sqlite3', got %s", c.Storage.Driver)
		}
	default:
		return invalid("storage.backend must be 'memory' or 'sqlite', got %s", c.Storage.Backend)
	}

	switch c.Source.Kind {
	case SourceDir:
		if c.Source.Path == "" {
			return invalid("source.path is required for kind dir")
		}
	case SourceSQL:
		if !isSQLiteDriver(c.Source.Driver) && c.Source.Driver != "postgres" {
			return invalid("source.driver must be 'sqlite', 'sqlite3' or 'postgres', got %s", c.Source.Driver)
		}
		if c.Source.DSN == "" {
			return invalid("source.dsn is required for kind sql")
		}
	default:
		return invalid("source.kind must be 'dir' or 'sql', got %s", c.Source.Kind)
	}

	if _, err := embed.ParseProviderType(string(c.Embeddings.Provider)); err != nil {
		return mserrors.ConfigError("invalid embeddings.provider", err)
	}

	if c.Watch.Debounce < 0 {
		return invalid("watch.debounce must be non-negative, got %s", c.Watch.Debounce)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return invalid("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func isSQLiteDriver(driver string) bool {
	return driver == "sqlite" || driver == "sqlite3"
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
