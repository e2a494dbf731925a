// Package config loads the ragvec configuration from a YAML file, a .env file
// and RAG_* environment variables, in that order of precedence (lowest first).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/viant/sqlite-rag/chunker"
	"github.com/viant/sqlite-rag/index"
	"github.com/viant/sqlite-rag/internal/telemetry"
	"github.com/viant/sqlite-rag/loader"
	"github.com/viant/sqlite-rag/oracle"
	"github.com/viant/sqlite-rag/pipeline"
	"github.com/viant/sqlite-rag/retrieve"
	"github.com/viant/sqlite-rag/vector"
)

const (
	DefaultDocsDir    = "data"
	DefaultAPIKeyFile = "openaikey.txt"
	DefaultServerAddr = ":8080"

	envPrefix = "RAG_"
)

// Config is the full application configuration.
type Config struct {
	DocsDir          string   `yaml:"docs_dir"`
	Patterns         []string `yaml:"patterns"`
	IndexPath        string   `yaml:"index_path"`
	IndexKind        string   `yaml:"index_kind"`
	ChunkSize        int      `yaml:"chunk_size"`
	ChunkOverlap     int      `yaml:"chunk_overlap"`
	TopK             int      `yaml:"top_k"`
	RelevanceFloor   float64  `yaml:"relevance_floor"`
	PromptTemplate   string   `yaml:"prompt_template"`
	ContextDelimiter string   `yaml:"context_delimiter"`
	EmbedConcurrency int      `yaml:"embed_concurrency"`
	// APIKeyFile, when present, supplies the key ahead of the provider variable.
	APIKeyFile string `yaml:"api_key_file"`

	Embedding  Oracle     `yaml:"embedding"`
	Answer     Oracle     `yaml:"answer"`
	Resilience Resilience `yaml:"resilience"`
	Server     Server     `yaml:"server"`
	Log        Log        `yaml:"log"`
	Telemetry  Telemetry  `yaml:"telemetry"`
}

// Oracle selects a model backend. An empty Model takes the provider default.
type Oracle struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	Dimension int    `yaml:"dimension"`
	APIKey    string `yaml:"-"`
}

// Resilience tunes the retry, breaker and rate limit applied to oracle calls.
type Resilience struct {
	MaxRetries        int           `yaml:"max_retries"`
	InitialBackoff    time.Duration `yaml:"initial_backoff"`
	MaxBackoff        time.Duration `yaml:"max_backoff"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	BreakerFailures   uint32        `yaml:"breaker_failures"`
	BreakerTimeout    time.Duration `yaml:"breaker_timeout"`
	CallTimeout       time.Duration `yaml:"call_timeout"`
}

type Server struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Telemetry configures trace export; an empty endpoint disables it.
type Telemetry struct {
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	Insecure     bool    `yaml:"insecure"`
	SampleRatio  float64 `yaml:"sample_ratio"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults returns the stock configuration.
func Defaults() *Config {
	p := pipeline.DefaultConfig()
	return &Config{
		DocsDir:          DefaultDocsDir,
		Patterns:         []string{loader.DefaultPattern},
		IndexPath:        p.IndexPath,
		IndexKind:        string(index.KindAuto),
		ChunkSize:        chunker.DefaultChunkSize,
		ChunkOverlap:     chunker.DefaultChunkOverlap,
		TopK:             retrieve.DefaultTopK,
		RelevanceFloor:   retrieve.DefaultRelevanceFloor,
		PromptTemplate:   pipeline.DefaultPromptTemplate,
		ContextDelimiter: pipeline.DefaultContextDelimiter,
		EmbedConcurrency: pipeline.DefaultEmbedConcurrency,
		APIKeyFile:       DefaultAPIKeyFile,
		Embedding:        Oracle{Provider: oracle.ProviderOpenAI},
		Answer:           Oracle{Provider: oracle.ProviderOpenAI},
		Resilience: Resilience{
			MaxRetries:      3,
			InitialBackoff:  500 * time.Millisecond,
			MaxBackoff:      10 * time.Second,
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
			CallTimeout:     60 * time.Second,
		},
		Server: Server{
			Addr:            DefaultServerAddr,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Log:       Log{Level: "info", Format: "text"},
		Telemetry: Telemetry{Insecure: true, SampleRatio: 1},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (when
// path is not empty), then RAG_* variables. A .env file in the working
// directory is applied to the environment first, without overriding
// variables that are already set. API keys are resolved last.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read config file: %w: %w", err, vector.ErrInvalidConfiguration)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse config file %s: %v: %w", path, err, vector.ErrInvalidConfiguration)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.resolveKeys(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []error
	str := func(name string, dst *string) {
		if v, ok := lookupEnv(name); ok {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		v, ok := lookupEnv(name)
		if !ok {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s=%q is not an integer", envPrefix, name, v))
			return
		}
		*dst = n
	}
	float := func(name string, dst *float64) {
		v, ok := lookupEnv(name)
		if !ok {
			return
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s=%q is not a number", envPrefix, name, v))
			return
		}
		*dst = f
	}
	duration := func(name string, dst *time.Duration) {
		v, ok := lookupEnv(name)
		if !ok {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s=%q is not a duration", envPrefix, name, v))
			return
		}
		*dst = d
	}

	str("DOCS_DIR", &c.DocsDir)
	if v, ok := lookupEnv("PATTERNS"); ok {
		c.Patterns = splitList(v)
	}
	str("INDEX_PATH", &c.IndexPath)
	str("INDEX_KIND", &c.IndexKind)
	num("CHUNK_SIZE", &c.ChunkSize)
	num("CHUNK_OVERLAP", &c.ChunkOverlap)
	num("TOP_K", &c.TopK)
	float("RELEVANCE_FLOOR", &c.RelevanceFloor)
	num("EMBED_CONCURRENCY", &c.EmbedConcurrency)
	str("API_KEY_FILE", &c.APIKeyFile)

	str("EMBEDDING_PROVIDER", &c.Embedding.Provider)
	str("EMBEDDING_MODEL", &c.Embedding.Model)
	str("EMBEDDING_BASE_URL", &c.Embedding.BaseURL)
	num("EMBEDDING_DIMENSION", &c.Embedding.Dimension)
	str("ANSWER_PROVIDER", &c.Answer.Provider)
	str("ANSWER_MODEL", &c.Answer.Model)
	str("ANSWER_BASE_URL", &c.Answer.BaseURL)

	num("MAX_RETRIES", &c.Resilience.MaxRetries)
	float("REQUESTS_PER_SECOND", &c.Resilience.RequestsPerSecond)
	duration("CALL_TIMEOUT", &c.Resilience.CallTimeout)

	str("SERVER_ADDR", &c.Server.Addr)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("OTLP_ENDPOINT", &c.Telemetry.OTLPEndpoint)
	float("TRACE_SAMPLE_RATIO", &c.Telemetry.SampleRatio)

	if len(errs) > 0 {
		return fmt.Errorf("config: %w: %w", errors.Join(errs...), vector.ErrInvalidConfiguration)
	}
	return nil
}

// resolveKeys fills API keys from APIKeyFile when it exists and is not
// blank, otherwise from the provider variable.
func (c *Config) resolveKeys() error {
	var fileKey string
	if c.APIKeyFile != "" {
		data, err := os.ReadFile(c.APIKeyFile)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return fmt.Errorf("config: read api key file: %w", err)
		default:
			fileKey = strings.TrimSpace(string(data))
		}
	}
	for _, o := range []*Oracle{&c.Embedding, &c.Answer} {
		if !oracle.NeedsAPIKey(o.Provider) {
			continue
		}
		o.APIKey = fileKey
		if o.APIKey == "" {
			o.APIKey = os.Getenv(keyVariable(o.Provider))
		}
	}
	return nil
}

func keyVariable(provider string) string {
	if strings.EqualFold(provider, oracle.ProviderGemini) {
		return "GEMINI_API_KEY"
	}
	return "OPENAI_API_KEY"
}

// Validate checks the pipeline, provider and logging settings. Missing API
// keys are reported when the backend is constructed.
func (c *Config) Validate() error {
	if err := c.Pipeline().Validate(); err != nil {
		return err
	}
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("config: %s: %w", fmt.Sprintf(format, args...), vector.ErrInvalidConfiguration)
	}
	if strings.TrimSpace(c.DocsDir) == "" {
		return invalid("docs dir is empty")
	}
	if len(c.Patterns) == 0 {
		return invalid("no document patterns")
	}
	switch strings.ToLower(c.Embedding.Provider) {
	case oracle.ProviderOpenAI, oracle.ProviderGemini, oracle.ProviderHash:
	default:
		return invalid("unknown embedding provider %q", c.Embedding.Provider)
	}
	switch strings.ToLower(c.Answer.Provider) {
	case oracle.ProviderOpenAI, oracle.ProviderGemini:
	default:
		return invalid("unknown answer provider %q", c.Answer.Provider)
	}
	if c.Embedding.Dimension < 0 {
		return invalid("embedding dimension %d is negative", c.Embedding.Dimension)
	}
	if c.Resilience.RequestsPerSecond < 0 {
		return invalid("requests per second %v is negative", c.Resilience.RequestsPerSecond)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return invalid("unknown log format %q", c.Log.Format)
	}
	if strings.TrimSpace(c.Server.Addr) == "" {
		return invalid("server addr is empty")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return invalid("trace sample ratio %v must be in [0, 1]", c.Telemetry.SampleRatio)
	}
	return nil
}

// Tracing returns the trace exporter settings.
func (c *Config) Tracing() telemetry.Config {
	return telemetry.Config{
		Endpoint:    c.Telemetry.OTLPEndpoint,
		Insecure:    c.Telemetry.Insecure,
		SampleRatio: c.Telemetry.SampleRatio,
	}
}

// Pipeline returns the pipeline parameters.
func (c *Config) Pipeline() pipeline.Config {
	return pipeline.Config{
		IndexPath:        c.IndexPath,
		ChunkSize:        c.ChunkSize,
		ChunkOverlap:     c.ChunkOverlap,
		TopK:             c.TopK,
		RelevanceFloor:   c.RelevanceFloor,
		PromptTemplate:   c.PromptTemplate,
		ContextDelimiter: c.ContextDelimiter,
		EmbedConcurrency: c.EmbedConcurrency,
		IndexKind:        index.Kind(strings.ToLower(c.IndexKind)),
	}
}

func (c *Config) EmbeddingSettings() oracle.Settings {
	return c.Embedding.settings()
}

func (c *Config) AnswerSettings() oracle.Settings {
	return c.Answer.settings()
}

// Guard returns the resilience settings for the oracle labelled name.
func (c *Config) Guard(name string) oracle.GuardConfig {
	r := c.Resilience
	maxRetries := r.MaxRetries
	if maxRetries == 0 {
		maxRetries = -1
	}
	return oracle.GuardConfig{
		Name:              name,
		MaxRetries:        maxRetries,
		InitialBackoff:    r.InitialBackoff,
		MaxBackoff:        r.MaxBackoff,
		RequestsPerSecond: r.RequestsPerSecond,
		Burst:             r.Burst,
		BreakerFailures:   r.BreakerFailures,
		BreakerTimeout:    r.BreakerTimeout,
		CallTimeout:       r.CallTimeout,
	}
}

func (o Oracle) settings() oracle.Settings {
	return oracle.Settings{
		Provider:  o.Provider,
		Model:     o.Model,
		APIKey:    o.APIKey,
		BaseURL:   o.BaseURL,
		Dimension: o.Dimension,
	}
}

func lookupEnv(name string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + name)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
