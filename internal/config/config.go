package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// File names and locations.
const (
	// ProjectFile is the per-project configuration file.
	ProjectFile = ".docrag.yaml"

	// DataDir is the per-project data directory.
	DataDir = ".docrag"

	appName = "docrag"
)

// Config represents the complete docrag configuration.
type Config struct {
	Version  int            `yaml:"version" json:"version"`
	Index    IndexConfig    `yaml:"index" json:"index"`
	Chunking ChunkingConfig `yaml:"chunking" json:"chunking"`
	Search   SearchConfig   `yaml:"search" json:"search"`
	Ingest   IngestConfig   `yaml:"ingest" json:"ingest"`
	Answer   AnswerConfig   `yaml:"answer" json:"answer"`
	Server   ServerConfig   `yaml:"server" json:"server"`
	LogLevel string         `yaml:"log_level" json:"log_level"`
}

// IndexConfig configures index storage.
type IndexConfig struct {
	// Dir holds the persisted artifacts. Relative paths are resolved
	// against the project root.
	Dir string `yaml:"dir" json:"dir"`

	// Backend is "file", "sqlite" or "memory".
	Backend string `yaml:"backend" json:"backend"`

	// CacheSize bounds the search result cache; negative disables it.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// ChunkingConfig configures window sizes, in whitespace tokens.
type ChunkingConfig struct {
	TargetTokens  int `yaml:"target_tokens" json:"target_tokens"`
	OverlapTokens int `yaml:"overlap_tokens" json:"overlap_tokens"`
}

// SearchConfig configures query defaults.
type SearchConfig struct {
	DefaultK int `yaml:"default_k" json:"default_k"`
}

// IngestConfig configures the ingestion pipeline.
type IngestConfig struct {
	Workers       int    `yaml:"workers" json:"workers"`
	WatchDebounce string `yaml:"watch_debounce" json:"watch_debounce"`
	WatchSettle   string `yaml:"watch_settle" json:"watch_settle"`
}

// AnswerConfig configures answer generation over retrieved chunks.
type AnswerConfig struct {
	Provider string `yaml:"provider" json:"provider"`
	Model    string `yaml:"model" json:"model"`
	// BaseURL points at any OpenAI-compatible endpoint. Empty uses the
	// provider default.
	BaseURL     string `yaml:"base_url" json:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env" json:"api_key_env"`
	ContextHits int    `yaml:"context_hits" json:"context_hits"`
	Timeout     string `yaml:"timeout" json:"timeout"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
}

// NewConfig returns a Config with default values.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Index: IndexConfig{
			Dir:       filepath.Join(DataDir, "index"),
			Backend:   "file",
			CacheSize: 256,
		},
		Chunking: ChunkingConfig{
			TargetTokens:  180,
			OverlapTokens: 40,
		},
		Search: SearchConfig{
			DefaultK: 5,
		},
		Ingest: IngestConfig{
			Workers:       runtime.NumCPU(),
			WatchDebounce: "500ms",
			WatchSettle:   "1s",
		},
		Answer: AnswerConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			APIKeyEnv:   "OPENAI_API_KEY",
			ContextHits: 5,
			Timeout:     "60s",
		},
		Server: ServerConfig{
			Transport: "stdio",
		},
		LogLevel: "info",
	}
}

// GetUserConfigPath returns the path to the user configuration file,
// honouring XDG_CONFIG_HOME.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName, "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", appName, "config.yaml")
	}
	return filepath.Join(home, ".config", appName, "config.yaml")
}

// GetUserConfigDir returns the directory containing the user config.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists reports whether a user config file is present.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil // No user config is fine
	}

	var parsed Config
	if err := readYAML(configPath, &parsed); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}
	return &parsed, nil
}

// Load builds the configuration for the project rooted at dir.
// Precedence, lowest first: defaults, user config, project .docrag.yaml,
// DOCRAG_* environment variables.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	userCfg, err := loadUserConfig()
	if err != nil {
		return nil, err
	}
	if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	projectPath := filepath.Join(dir, ProjectFile)
	if fileExists(projectPath) {
		var parsed Config
		if err := readYAML(projectPath, &parsed); err != nil {
			return nil, err
		}
		cfg.mergeWith(&parsed)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func readYAML(path string, out *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// mergeWith overlays non-zero values from other.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Index.Dir != "" {
		c.Index.Dir = other.Index.Dir
	}
	if other.Index.Backend != "" {
		c.Index.Backend = other.Index.Backend
	}
	if other.Index.CacheSize != 0 {
		c.Index.CacheSize = other.Index.CacheSize
	}

	if other.Chunking.TargetTokens != 0 {
		c.Chunking.TargetTokens = other.Chunking.TargetTokens
	}
	if other.Chunking.OverlapTokens != 0 {
		c.Chunking.OverlapTokens = other.Chunking.OverlapTokens
	}

	if other.Search.DefaultK != 0 {
		c.Search.DefaultK = other.Search.DefaultK
	}

	if other.Ingest.Workers != 0 {
		c.Ingest.Workers = other.Ingest.Workers
	}
	if other.Ingest.WatchDebounce != "" {
		c.Ingest.WatchDebounce = other.Ingest.WatchDebounce
	}
	if other.Ingest.WatchSettle != "" {
		c.Ingest.WatchSettle = other.Ingest.WatchSettle
	}

	if other.Answer.Provider != "" {
		c.Answer.Provider = other.Answer.Provider
	}
	if other.Answer.Model != "" {
		c.Answer.Model = other.Answer.Model
	}
	if other.Answer.BaseURL != "" {
		c.Answer.BaseURL = other.Answer.BaseURL
	}
	if other.Answer.APIKeyEnv != "" {
		c.Answer.APIKeyEnv = other.Answer.APIKeyEnv
	}
	if other.Answer.ContextHits != 0 {
		c.Answer.ContextHits = other.Answer.ContextHits
	}
	if other.Answer.Timeout != "" {
		c.Answer.Timeout = other.Answer.Timeout
	}

	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DOCRAG_INDEX_DIR"); v != "" {
		c.Index.Dir = v
	}
	if v := os.Getenv("DOCRAG_INDEX_BACKEND"); v != "" {
		c.Index.Backend = v
	}
	if v := os.Getenv("DOCRAG_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("DOCRAG_ANSWER_MODEL"); v != "" {
		c.Answer.Model = v
	}
	if v := os.Getenv("DOCRAG_ANSWER_BASE_URL"); v != "" {
		c.Answer.BaseURL = v
	}
	if v := os.Getenv("DOCRAG_INGEST_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Ingest.Workers = n
		}
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	validBackends := map[string]bool{"file": true, "sqlite": true, "memory": true}
	if !validBackends[strings.ToLower(c.Index.Backend)] {
		return fmt.Errorf("index.backend must be 'file', 'sqlite' or 'memory', got %s", c.Index.Backend)
	}
	if strings.TrimSpace(c.Index.Dir) == "" {
		return fmt.Errorf("index.dir must not be empty")
	}

	if c.Chunking.TargetTokens < 1 {
		return fmt.Errorf("chunking.target_tokens must be positive, got %d", c.Chunking.TargetTokens)
	}
	if c.Chunking.OverlapTokens < 0 {
		return fmt.Errorf("chunking.overlap_tokens must be non-negative, got %d", c.Chunking.OverlapTokens)
	}
	if c.Chunking.OverlapTokens >= c.Chunking.TargetTokens {
		return fmt.Errorf("chunking.overlap_tokens (%d) must be less than target_tokens (%d)",
			c.Chunking.OverlapTokens, c.Chunking.TargetTokens)
	}

	if c.Search.DefaultK < 1 {
		return fmt.Errorf("search.default_k must be positive, got %d", c.Search.DefaultK)
	}
	if c.Ingest.Workers < 1 {
		return fmt.Errorf("ingest.workers must be positive, got %d", c.Ingest.Workers)
	}
	if _, err := time.ParseDuration(c.Ingest.WatchDebounce); err != nil {
		return fmt.Errorf("ingest.watch_debounce: %w", err)
	}
	if _, err := time.ParseDuration(c.Ingest.WatchSettle); err != nil {
		return fmt.Errorf("ingest.watch_settle: %w", err)
	}

	if !strings.EqualFold(c.Answer.Provider, "openai") {
		return fmt.Errorf("answer.provider must be 'openai', got %s", c.Answer.Provider)
	}
	if c.Answer.ContextHits < 1 {
		return fmt.Errorf("answer.context_hits must be positive, got %d", c.Answer.ContextHits)
	}
	if d, err := time.ParseDuration(c.Answer.Timeout); err != nil {
		return fmt.Errorf("answer.timeout: %w", err)
	} else if d <= 0 {
		return fmt.Errorf("answer.timeout must be positive, got %s", c.Answer.Timeout)
	}

	if !strings.EqualFold(c.Server.Transport, "stdio") {
		return fmt.Errorf("server.transport must be 'stdio', got %s", c.Server.Transport)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.LogLevel)
	}
	return nil
}

// IndexDir returns the absolute index directory for the project at root.
func (c *Config) IndexDir(root string) string {
	if filepath.IsAbs(c.Index.Dir) {
		return c.Index.Dir
	}
	return filepath.Join(root, c.Index.Dir)
}

// WatchDebounce returns the parsed debounce interval.
func (c *Config) WatchDebounce() time.Duration {
	d, err := time.ParseDuration(c.Ingest.WatchDebounce)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}

// WatchSettle returns how long a new file must stay unchanged before the
// watcher ingests it.
func (c *Config) WatchSettle() time.Duration {
	d, err := time.ParseDuration(c.Ingest.WatchSettle)
	if err != nil {
		return time.Second
	}
	return d
}

// AnswerTimeout returns the parsed answer timeout.
func (c *Config) AnswerTimeout() time.Duration {
	d, err := time.ParseDuration(c.Answer.Timeout)
	if err != nil {
		return time.Minute
	}
	return d
}

// WriteYAML writes the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// FindProjectRoot walks up from startDir looking for a .docrag.yaml,
// a .docrag data directory or a .git directory. It returns startDir
// (absolute) when none is found.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if fileExists(filepath.Join(currentDir, ProjectFile)) ||
			dirExists(filepath.Join(currentDir, DataDir)) ||
			dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
