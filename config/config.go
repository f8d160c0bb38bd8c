package config

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"txtvec/internal/domain"
)

// Config holds all configuration for txtvec.
type Config struct {
	DataDir   string          `yaml:"data_dir"`
	Corpus    CorpusConfig    `yaml:"corpus"`
	Split     SplitConfig     `yaml:"split"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// CorpusConfig selects the documents of a corpus directory.
type CorpusConfig struct {
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}

// SplitConfig holds passage splitting and text normalization settings.
type SplitConfig struct {
	ChunkSize    int      `yaml:"chunk_size"`
	ChunkOverlap int      `yaml:"chunk_overlap"`
	Language     string   `yaml:"language"`   // "ja", "en", "generic"
	Separators   []string `yaml:"separators"` // overrides the language preset
	Normalize    string   `yaml:"normalize"`  // "none", "NFC", "NFKC"
	Unwrap       bool     `yaml:"unwrap"`     // remove soft line wraps inside script runs
	// ScriptClasses overrides the language default for line-wrap removal.
	ScriptClasses []ScriptClass `yaml:"script_classes"`
}

// ScriptClass groups Unicode scripts whose runs may be joined across a
// single newline.
type ScriptClass struct {
	Name    string   `yaml:"name"`
	Scripts []string `yaml:"scripts"`
	Chars   string   `yaml:"chars"`
	Joiner  string   `yaml:"joiner"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider      string `yaml:"provider"` // "openai", "mock"
	Model         string `yaml:"model"`
	BaseURL       string `yaml:"base_url"`    // OpenAI-compatible endpoint, empty for api.openai.com
	APIKeyEnv     string `yaml:"api_key_env"` // Environment variable for API key
	Dimension     int    `yaml:"dimension"`
	BatchSize     int    `yaml:"batch_size"` // 0 embeds a whole document at once
	Workers       int    `yaml:"workers"`
	TimeoutSecs   int    `yaml:"timeout_secs"`
	QueryPrefix   string `yaml:"query_prefix"`
	PassagePrefix string `yaml:"passage_prefix"`
	Normalize     bool   `yaml:"normalize"`
	CacheSize     int    `yaml:"cache_size"`
	CacheTTLSecs  int    `yaml:"cache_ttl_secs"`
}

// SearchConfig holds query configuration.
type SearchConfig struct {
	TopK           int  `yaml:"top_k"`
	Approximate    bool `yaml:"approximate"`
	NList          int  `yaml:"nlist"`
	NProbe         int  `yaml:"nprobe"`
	RequireResults bool `yaml:"require_results"`

	// MMRLambda enables diversified results when positive; 1 keeps the
	// similarity order.
	MMRLambda      float64 `yaml:"mmr_lambda"`
	MMRCandidates  int     `yaml:"mmr_candidates"`
	DedupThreshold float64 `yaml:"dedup_threshold"` // 0 keeps near duplicates
}

// IngestConfig holds build configuration.
type IngestConfig struct {
	BestEffort bool `yaml:"best_effort"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console", "json"
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "data",
		Corpus: CorpusConfig{
			Includes: []string{"*.txt"},
		},
		Split: SplitConfig{
			ChunkSize:    500,
			ChunkOverlap: 50,
			Language:     "ja",
			Normalize:    "NFC",
			Unwrap:       true,
		},
		Embedding: EmbeddingConfig{
			Provider:      "openai",
			Model:         "intfloat/multilingual-e5-base",
			APIKeyEnv:     "OPENAI_API_KEY",
			Dimension:     768,
			BatchSize:     0,
			Workers:       4,
			TimeoutSecs:   60,
			QueryPrefix:   "query: ",
			PassagePrefix: "passage: ",
			Normalize:     true,
			CacheSize:     128,
			CacheTTLSecs:  600,
		},
		Search: SearchConfig{
			TopK:          5,
			NList:         64,
			NProbe:        8,
			MMRCandidates: 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

var (
	providers  = map[string]bool{"openai": true, "mock": true}
	normForms  = map[string]bool{"": true, "none": true, "nfc": true, "nfkc": true}
	logLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	logFormats = map[string]bool{"console": true, "json": true}
)

func configError(field, reason string) error {
	return &domain.ConfigError{Field: field, Reason: reason}
}

// Validate reports the first invalid setting as a *domain.ConfigError.
func (c *Config) Validate() error {
	s := c.Split
	switch {
	case s.ChunkSize <= 0:
		return configError("split.chunk_size", "must be positive")
	case s.ChunkOverlap < 0:
		return configError("split.chunk_overlap", "must not be negative")
	case s.ChunkOverlap >= s.ChunkSize:
		return configError("split.chunk_overlap", "must be smaller than chunk_size")
	case !normForms[strings.ToLower(s.Normalize)]:
		return configError("split.normalize", "unknown normalization form "+s.Normalize)
	}

	e := c.Embedding
	switch {
	case !providers[e.Provider]:
		return configError("embedding.provider", "unknown provider "+e.Provider)
	case e.Model == "" && e.Provider != "mock":
		return configError("embedding.model", "must be set")
	case e.Dimension < 0:
		return configError("embedding.dimension", "must not be negative")
	case e.BatchSize < 0:
		return configError("embedding.batch_size", "must not be negative")
	case e.Workers < 0:
		return configError("embedding.workers", "must not be negative")
	case e.TimeoutSecs < 0:
		return configError("embedding.timeout_secs", "must not be negative")
	case e.CacheSize < 0:
		return configError("embedding.cache_size", "must not be negative")
	}

	q := c.Search
	switch {
	case q.TopK <= 0:
		return configError("search.top_k", "must be positive")
	case q.Approximate && q.NList <= 0:
		return configError("search.nlist", "must be positive")
	case q.Approximate && q.NProbe <= 0:
		return configError("search.nprobe", "must be positive")
	case q.MMRLambda < 0 || q.MMRLambda > 1:
		return configError("search.mmr_lambda", "must be between 0 and 1")
	case q.MMRCandidates < 0:
		return configError("search.mmr_candidates", "must not be negative")
	case q.DedupThreshold < 0 || q.DedupThreshold > 1:
		return configError("search.dedup_threshold", "must be between 0 and 1")
	}

	switch {
	case !logLevels[strings.ToLower(c.Logging.Level)]:
		return configError("logging.level", "unknown level "+c.Logging.Level)
	case !logFormats[c.Logging.Format]:
		return configError("logging.format", "unknown format "+c.Logging.Format)
	}

	return nil
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for txtvec.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "txtvec.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".txtvec", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// CorpusDir returns the directory holding a corpus and its index files.
func CorpusDir(dataDir, corpus string) string {
	return filepath.Join(dataDir, corpus)
}

// IndexPath returns the path of the persisted vector index of a corpus.
func IndexPath(dataDir, corpus string) string {
	return filepath.Join(CorpusDir(dataDir, corpus), "index.vec")
}

// CatalogPath returns the path of the passage catalog of a corpus.
func CatalogPath(dataDir, corpus string) string {
	return filepath.Join(CorpusDir(dataDir, corpus), "passages.db")
}
