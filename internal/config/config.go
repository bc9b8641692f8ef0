package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"studyrag/internal/domain"
)

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url" validate:"omitempty,url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs" validate:"gte=0"`
	MaxRetries  int    `yaml:"max_retries" validate:"gte=0"`
	Dimension   int    `yaml:"dimension" validate:"gte=0"`
	Images      bool   `yaml:"images"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type      string                `yaml:"type" validate:"oneof=hashing openai"`
	Dimension int                   `yaml:"dimension" validate:"gte=0"`
	CachePath string                `yaml:"cache_path,omitempty"`
	OpenAI    *OpenAIEmbedderConfig `yaml:"openai,omitempty" validate:"required_if=Type openai"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Type              string `yaml:"type" validate:"oneof=window sentence"`
	ChunkSize         int    `yaml:"chunk_size" validate:"gte=0"`
	Overlap           int    `yaml:"overlap" validate:"gte=0,ltfield=ChunkSize"`
	SentencesPerChunk int    `yaml:"sentences_per_chunk" validate:"gte=0"`
	OverlapSentences  int    `yaml:"overlap_sentences" validate:"gte=0"`
}

// QdrantConfig contains connection details for a Qdrant collection.
type QdrantConfig struct {
	Host       string `yaml:"host" validate:"required"`
	Port       int    `yaml:"port" validate:"gte=0,lte=65535"`
	APIKey     string `yaml:"api_key"`
	UseTLS     bool   `yaml:"use_tls"`
	Collection string `yaml:"collection" validate:"required"`
}

// CorpusConfig describes one subject grouping served by its own retriever.
// Paths are persisted index directories merged in the listed order.
type CorpusConfig struct {
	Name   string        `yaml:"name" validate:"required"`
	Label  string        `yaml:"label"`
	Scope  string        `yaml:"scope"`
	Paths  []string      `yaml:"paths" validate:"required_without=Qdrant,dive,required"`
	K      int           `yaml:"k" validate:"gte=0"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// DocumentConfig configures the single-file retriever that chunks a text
// file on every query. An empty Path disables it.
type DocumentConfig struct {
	Label string `yaml:"label"`
	Path  string `yaml:"path"`
	K     int    `yaml:"k" validate:"gte=0"`
}

// AggregatorConfig tunes how retriever outputs are combined.
type AggregatorConfig struct {
	MinLength int    `yaml:"min_length" validate:"gte=0"`
	Separator string `yaml:"separator"`
	Parallel  bool   `yaml:"parallel"`
}

// MarshalYAML writes the separator double-quoted. Plain or block styles
// lose its leading newline on reload.
func (c AggregatorConfig) MarshalYAML() (any, error) {
	type plain AggregatorConfig
	var n yaml.Node
	if err := n.Encode(plain(c)); err != nil {
		return nil, err
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == "separator" {
			n.Content[i+1].Style = yaml.DoubleQuotedStyle
		}
	}
	return &n, nil
}

// GeneratorConfig configures the answer generator: an OpenAI-compatible
// chat model, or an offline extractive summary of the retrieved context.
type GeneratorConfig struct {
	Type         string  `yaml:"type" validate:"oneof=openai extractive"`
	MaxSentences int     `yaml:"max_sentences" validate:"gte=0"`
	BaseURL      string  `yaml:"base_url" validate:"omitempty,url"`
	APIKeyEnv    string  `yaml:"api_key_env"`
	Model        string  `yaml:"model"`
	Temperature  float64 `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens    int     `yaml:"max_tokens" validate:"gte=0"`
	TimeoutSecs  int     `yaml:"timeout_secs" validate:"gte=0"`
}

// AgentConfig is the role/goal/backstory triple handed to the model.
type AgentConfig struct {
	Role      string `yaml:"role"`
	Goal      string `yaml:"goal"`
	Backstory string `yaml:"backstory"`
}

// RedisConfig configures the pub/sub request worker.
type RedisConfig struct {
	Addr           string `yaml:"addr" validate:"required"`
	Password       string `yaml:"password"`
	DB             int    `yaml:"db" validate:"gte=0"`
	RequestChannel string `yaml:"request_channel" validate:"required"`
	ResponsePrefix string `yaml:"response_prefix" validate:"required"`
	MaxConcurrent  int    `yaml:"max_concurrent" validate:"gte=1"`
}

// HTTPConfig configures the JSON endpoint.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder   EmbedderConfig   `yaml:"embedder"`
	Chunker    ChunkerConfig    `yaml:"chunker"`
	Corpora    []CorpusConfig   `yaml:"corpora" validate:"dive"`
	Document   DocumentConfig   `yaml:"document"`
	Aggregator AggregatorConfig `yaml:"aggregator"`
	Generator  GeneratorConfig  `yaml:"generator"`
	Agent      AgentConfig      `yaml:"agent"`
	Redis      RedisConfig      `yaml:"redis"`
	HTTP       HTTPConfig       `yaml:"http"`
	Log        LogConfig        `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// ${VAR} references are expanded from the environment before parsing.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config bytes, applies defaults and validates the result.
func Parse(data []byte) (*AppConfig, error) {
	expanded := os.ExpandEnv(string(data))
	var cfg AppConfig
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	applyConfigDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/studyrag/config.yaml.
// If neither exists, it writes defaults to ~/.config/studyrag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct constraints and cross-field rules.
func (c *AppConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}
	seen := make(map[string]struct{}, len(c.Corpora))
	for _, corpus := range c.Corpora {
		if _, dup := seen[corpus.Name]; dup {
			return fmt.Errorf("%w: duplicate corpus %q", domain.ErrConfiguration, corpus.Name)
		}
		seen[corpus.Name] = struct{}{}
	}
	return nil
}

// Corpus returns the corpus with the given name.
func (c *AppConfig) Corpus(name string) (CorpusConfig, bool) {
	for _, corpus := range c.Corpora {
		if corpus.Name == name {
			return corpus, true
		}
	}
	return CorpusConfig{}, false
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "studyrag", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Embedder: EmbedderConfig{Type: "hashing", Dimension: 384},
		Chunker:  ChunkerConfig{Type: "window"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "hashing"
	}
	if cfg.Embedder.Type == "openai" && cfg.Embedder.OpenAI != nil {
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
	}

	if cfg.Chunker.Type == "" {
		cfg.Chunker.Type = "window"
	}
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = 500
	}
	if cfg.Chunker.Overlap == 0 && cfg.Chunker.ChunkSize > 100 {
		cfg.Chunker.Overlap = 100
	}
	if cfg.Chunker.SentencesPerChunk == 0 {
		cfg.Chunker.SentencesPerChunk = 5
	}

	for i := range cfg.Corpora {
		c := &cfg.Corpora[i]
		if c.K == 0 {
			c.K = 15
		}
		if c.Label == "" {
			c.Label = c.Name
		}
		if c.Qdrant != nil && c.Qdrant.Port == 0 {
			c.Qdrant.Port = 6334
		}
	}
	if cfg.Document.K == 0 {
		cfg.Document.K = 6
	}
	if cfg.Document.Label == "" {
		cfg.Document.Label = "Document Retriever"
	}

	if cfg.Aggregator.MinLength == 0 {
		cfg.Aggregator.MinLength = 50
	}
	if cfg.Aggregator.Separator == "" {
		cfg.Aggregator.Separator = "\n---\n"
	}

	if cfg.Generator.Type == "" {
		cfg.Generator.Type = "openai"
	}
	if cfg.Generator.MaxSentences == 0 {
		cfg.Generator.MaxSentences = 5
	}
	if cfg.Generator.BaseURL == "" {
		cfg.Generator.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Generator.Model == "" {
		cfg.Generator.Model = "gpt-4o-mini"
	}
	if cfg.Generator.Temperature == 0 {
		cfg.Generator.Temperature = 0.7
	}
	if cfg.Generator.TimeoutSecs == 0 {
		cfg.Generator.TimeoutSecs = 120
	}

	if cfg.Agent.Role == "" {
		cfg.Agent.Role = "Tutor"
	}
	if cfg.Agent.Goal == "" {
		cfg.Agent.Goal = "Help the student."
	}
	if cfg.Agent.Backstory == "" {
		cfg.Agent.Backstory = "You are a helpful tutor."
	}

	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Redis.RequestChannel == "" {
		cfg.Redis.RequestChannel = "aiml:requests"
	}
	if cfg.Redis.ResponsePrefix == "" {
		cfg.Redis.ResponsePrefix = "aiml:responses:"
	}
	if cfg.Redis.MaxConcurrent == 0 {
		cfg.Redis.MaxConcurrent = 4
	}

	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8000"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
