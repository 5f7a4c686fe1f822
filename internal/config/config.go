// Package config loads application settings from defaults, an optional YAML
// file, a .env file and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the YAML file when Load gets no path
const EnvConfigPath = "NOTECONTEXT_CONFIG"

// Config holds all configuration for the application.
type Config struct {
	DataDir  string `yaml:"data_dir"`
	DBPath   string `yaml:"db_path"`
	NotesDir string `yaml:"notes_dir"`

	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chunk     ChunkConfig     `yaml:"chunk"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Watch     WatchConfig     `yaml:"watch"`
	HTTP      HTTPConfig      `yaml:"http"`
	Log       LogConfig       `yaml:"log"`
}

// LLMConfig configures the chat model. An empty Model disables answering.
type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// EmbeddingConfig selects the embedding provider: openai, hash or none.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key"`
	Dimension int    `yaml:"dimension"`
	Workers   int    `yaml:"workers"`
	BatchSize int    `yaml:"batch_size"`
	CacheSize int    `yaml:"cache_size"`
}

type ChunkConfig struct {
	Size       int  `yaml:"size"`
	Overlap    int  `yaml:"overlap"`
	MinLength  int  `yaml:"min_length"`
	Structured bool `yaml:"structured"`
}

type RetrievalConfig struct {
	LexicalWeight float64       `yaml:"lexical_weight"`
	VectorWeight  float64       `yaml:"vector_weight"`
	PerFileCap    int           `yaml:"per_file_cap"`
	CharBudget    int           `yaml:"char_budget"`
	Candidates    int           `yaml:"candidates"`
	HistoryTurns  int           `yaml:"history_turns"`
	CacheSize     int           `yaml:"cache_size"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
}

type WatchConfig struct {
	DebounceMS  int   `yaml:"debounce_ms"`
	MaxDepth    int   `yaml:"max_depth"`
	MaxFileSize int64 `yaml:"max_file_size"`
}

// Debounce returns DebounceMS as a duration
func (w WatchConfig) Debounce() time.Duration {
	return time.Duration(w.DebounceMS) * time.Millisecond
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DataDir: "~/.notecontext",
		LLM: LLMConfig{
			BaseURL:     "http://localhost:1234/v1",
			Temperature: 0.2,
			MaxTokens:   1024,
		},
		Embedding: EmbeddingConfig{
			Provider:  "hash",
			Workers:   1,
			BatchSize: 100,
			CacheSize: 1000,
		},
		Chunk: ChunkConfig{
			Size:       500,
			Overlap:    100,
			MinLength:  50,
			Structured: true,
		},
		Retrieval: RetrievalConfig{
			LexicalWeight: 0.4,
			VectorWeight:  0.6,
			PerFileCap:    2,
			CharBudget:    2400,
			Candidates:    20,
			HistoryTurns:  6,
			CacheSize:     256,
			CacheTTL:      5 * time.Minute,
		},
		Watch: WatchConfig{
			DebounceMS:  1000,
			MaxDepth:    15,
			MaxFileSize: 5 << 20,
		},
		HTTP: HTTPConfig{Addr: "127.0.0.1:8089"},
		Log:  LogConfig{Level: "info", Format: "text"},
	}
}

// Load builds the configuration. path names an optional YAML file; when
// empty, NOTECONTEXT_CONFIG is consulted. A .env file in the working
// directory or up to five parents is loaded before reading the environment,
// and variables already set take precedence over it.
func Load(path string) (*Config, error) {
	cfg := Default()

	loadDotEnv()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.resolvePaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotEnv() {
	wd, err := os.Getwd()
	if err != nil {
		return
	}
	dir := wd
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(expandHome(path))
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.DataDir, "NOTECONTEXT_DATA_DIR")
	setString(&c.DBPath, "NOTECONTEXT_DB_PATH")
	setString(&c.NotesDir, "NOTECONTEXT_NOTES_DIR")

	setString(&c.LLM.BaseURL, "LLM_BASE_URL")
	setString(&c.LLM.Model, "LLM_MODEL")
	setString(&c.LLM.APIKey, "LLM_API_KEY")

	setString(&c.Embedding.Provider, "EMBEDDING_PROVIDER")
	setString(&c.Embedding.BaseURL, "EMBEDDING_BASE_URL")
	setString(&c.Embedding.Model, "EMBEDDING_MODEL")
	setString(&c.Embedding.APIKey, "EMBEDDING_API_KEY")

	setString(&c.HTTP.Addr, "HTTP_ADDR")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")

	var errs []error
	errs = append(errs,
		setInt(&c.Embedding.Workers, "EMBED_WORKERS"),
		setInt(&c.Embedding.BatchSize, "EMBED_BATCH_SIZE"),
		setInt(&c.Chunk.Size, "CHUNK_SIZE"),
		setInt(&c.Chunk.Overlap, "CHUNK_OVERLAP"),
		setInt(&c.Chunk.MinLength, "CHUNK_MIN"),
		setBool(&c.Chunk.Structured, "CHUNK_STRUCTURED"),
		setFloat(&c.Retrieval.LexicalWeight, "RETRIEVAL_LEXICAL_WEIGHT"),
		setFloat(&c.Retrieval.VectorWeight, "RETRIEVAL_VECTOR_WEIGHT"),
		setInt(&c.Retrieval.PerFileCap, "RETRIEVAL_PER_FILE_CAP"),
		setInt(&c.Retrieval.CharBudget, "RETRIEVAL_CHAR_BUDGET"),
		setInt(&c.Retrieval.Candidates, "RETRIEVAL_CANDIDATES"),
		setInt(&c.Retrieval.HistoryTurns, "RETRIEVAL_HISTORY_TURNS"),
		setInt(&c.Watch.DebounceMS, "WATCH_DEBOUNCE_MS"),
		setInt(&c.Watch.MaxDepth, "WATCH_MAX_DEPTH"),
	)
	return errors.Join(errs...)
}

// resolvePaths expands "~" and derives DBPath from DataDir when unset.
func (c *Config) resolvePaths() error {
	c.DataDir = expandHome(c.DataDir)
	if c.DataDir == "" {
		return errors.New("data dir must not be empty")
	}
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DataDir, "notes.db")
	}
	c.DBPath = expandHome(c.DBPath)
	c.NotesDir = expandHome(c.NotesDir)
	return nil
}

// Validate rejects settings the components cannot work with.
func (c *Config) Validate() error {
	var errs []error
	if c.Chunk.Size <= 0 {
		errs = append(errs, fmt.Errorf("chunk size must be positive, got %d", c.Chunk.Size))
	}
	if c.Chunk.Overlap < 0 || c.Chunk.Overlap >= c.Chunk.Size {
		errs = append(errs, fmt.Errorf("chunk overlap must be in [0, %d), got %d", c.Chunk.Size, c.Chunk.Overlap))
	}
	if c.Chunk.MinLength < 0 {
		errs = append(errs, fmt.Errorf("chunk min length must not be negative, got %d", c.Chunk.MinLength))
	}
	if c.Retrieval.LexicalWeight < 0 || c.Retrieval.VectorWeight < 0 {
		errs = append(errs, errors.New("retrieval weights must not be negative"))
	}
	if c.Retrieval.PerFileCap <= 0 {
		errs = append(errs, fmt.Errorf("per-file cap must be positive, got %d", c.Retrieval.PerFileCap))
	}
	if c.Retrieval.CharBudget <= 0 {
		errs = append(errs, fmt.Errorf("character budget must be positive, got %d", c.Retrieval.CharBudget))
	}
	if c.Retrieval.Candidates <= 0 {
		errs = append(errs, fmt.Errorf("candidate count must be positive, got %d", c.Retrieval.Candidates))
	}
	if c.Embedding.Workers <= 0 {
		errs = append(errs, fmt.Errorf("embedding workers must be positive, got %d", c.Embedding.Workers))
	}
	if c.Embedding.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("embedding batch size must be positive, got %d", c.Embedding.BatchSize))
	}
	switch strings.ToLower(strings.TrimSpace(c.Embedding.Provider)) {
	case "openai", "hash", "none", "":
	default:
		errs = append(errs, fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider))
	}
	if c.Watch.DebounceMS < 0 {
		errs = append(errs, fmt.Errorf("watch debounce must not be negative, got %d", c.Watch.DebounceMS))
	}
	if c.Watch.MaxDepth <= 0 {
		errs = append(errs, fmt.Errorf("watch max depth must be positive, got %d", c.Watch.MaxDepth))
	}
	return errors.Join(errs...)
}

// EnsureDirs creates the directory holding the database.
func (c *Config) EnsureDirs() error {
	if err := os.MkdirAll(filepath.Dir(c.DBPath), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s must be a number: %w", key, err)
	}
	*dst = f
	return nil
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s must be true or false: %w", key, err)
	}
	*dst = b
	return nil
}
