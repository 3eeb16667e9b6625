package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Storage   StorageConfig   `yaml:"storage"`
	LLM       LLMConfig       `yaml:"llm"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Chunker   ChunkerConfig   `yaml:"chunker"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Port           string        `yaml:"port"`
	CORSOrigins    []string      `yaml:"cors_origins"`
	RateLimit      float64       `yaml:"rate_limit"` // analyze requests per second
	RateBurst      int           `yaml:"rate_burst"`
	BasicAuth      bool          `yaml:"basic_auth"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	JobTimeout     time.Duration `yaml:"job_timeout"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type StorageConfig struct {
	Type      string `yaml:"type"` // local, s3, minio
	LocalPath string `yaml:"local_path"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type LLMConfig struct {
	Provider       string        `yaml:"provider"` // gemini, openai, anythingllm
	Model          string        `yaml:"model"`
	EmbeddingModel string        `yaml:"embedding_model"`
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	GeminiAPIKey   string        `yaml:"gemini_api_key"` // embeddings, whatever the provider
	Workspace      string        `yaml:"workspace"`
	Temperature    float32       `yaml:"temperature"`
	Timeout        time.Duration `yaml:"timeout"`
}

type RetrievalConfig struct {
	Backend         string        `yaml:"backend"` // pgvector, weaviate, none
	TopK            int           `yaml:"top_k"`
	Timeout         time.Duration `yaml:"timeout"`
	BreakerFailures uint32        `yaml:"breaker_failures"`
	BreakerOpen     time.Duration `yaml:"breaker_open"`
	WeaviateHost    string        `yaml:"weaviate_host"`
	WeaviateScheme  string        `yaml:"weaviate_scheme"`
	WeaviateAPIKey  string        `yaml:"weaviate_api_key"`
	WeaviateClass   string        `yaml:"weaviate_class"`
}

type ChunkerConfig struct {
	ChunkSize    int      `yaml:"chunk_size"`
	ChunkOverlap int      `yaml:"chunk_overlap"`
	Separators   []string `yaml:"separators"`
}

type AnalysisConfig struct {
	PromptsDir           string `yaml:"prompts_dir"` // empty uses the embedded templates
	MaxAttempts          int    `yaml:"max_attempts"`
	RetryTransportErrors bool   `yaml:"retry_transport_errors"`
	Concurrency          int    `yaml:"concurrency"`
	HistoryLimit         int    `yaml:"history_limit"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Load reads a YAML file, applies environment overrides and fills defaults.
// A missing file yields the defaults. Values from a .env file are loaded
// into the environment first without replacing variables already set.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) error {
	str := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}

	str(&cfg.Server.Port, "PORT")
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = splitList(v)
	}
	str(&cfg.Database.URL, "DATABASE_URL")

	str(&cfg.Storage.Type, "STORAGE_TYPE")
	str(&cfg.Storage.LocalPath, "STORAGE_PATH")
	str(&cfg.Storage.Bucket, "STORAGE_BUCKET")
	str(&cfg.Storage.Region, "AWS_REGION")
	str(&cfg.Storage.Endpoint, "STORAGE_ENDPOINT")
	str(&cfg.Storage.AccessKey, "STORAGE_ACCESS_KEY")
	str(&cfg.Storage.SecretKey, "STORAGE_SECRET_KEY")

	str(&cfg.LLM.Provider, "LLM_PROVIDER")
	str(&cfg.LLM.Model, "LLM_MODEL")
	str(&cfg.LLM.BaseURL, "LLM_BASE_URL")
	str(&cfg.LLM.Workspace, "ANYTHINGLLM_WORKSPACE")
	str(&cfg.LLM.GeminiAPIKey, "GEMINI_API_KEY")
	// provider keys; the one matching the provider wins
	switch cfg.LLM.Provider {
	case "openai":
		str(&cfg.LLM.APIKey, "OPENAI_API_KEY")
	case "anythingllm":
		str(&cfg.LLM.APIKey, "ANYTHINGLLM_API_KEY")
	default:
		str(&cfg.LLM.APIKey, "GEMINI_API_KEY")
	}

	str(&cfg.Retrieval.Backend, "RETRIEVAL_BACKEND")
	str(&cfg.Retrieval.WeaviateHost, "WEAVIATE_HOST")
	str(&cfg.Retrieval.WeaviateAPIKey, "WEAVIATE_API_KEY")

	str(&cfg.Analysis.PromptsDir, "PROMPTS_DIR")
	if v := os.Getenv("ANALYSIS_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid ANALYSIS_CONCURRENCY %q: %w", v, err)
		}
		cfg.Analysis.Concurrency = n
	}

	str(&cfg.Log.Level, "LOG_LEVEL")
	str(&cfg.Log.File, "LOG_FILE")
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"http://localhost:8000", "http://localhost:5173", "http://localhost:3000"}
	}
	if cfg.Server.RateLimit == 0 {
		cfg.Server.RateLimit = 1
	}
	if cfg.Server.RateBurst == 0 {
		cfg.Server.RateBurst = 5
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 20 << 20
	}
	if cfg.Server.JobTimeout == 0 {
		cfg.Server.JobTimeout = 30 * time.Minute
	}

	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "local"
	}
	if cfg.Storage.LocalPath == "" {
		cfg.Storage.LocalPath = "./storage/files"
	}

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "gemini"
	}
	if cfg.LLM.Provider == "gemini" && cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = cfg.LLM.GeminiAPIKey
	}
	if cfg.LLM.GeminiAPIKey == "" && cfg.LLM.Provider == "gemini" {
		cfg.LLM.GeminiAPIKey = cfg.LLM.APIKey
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.1
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 120 * time.Second
	}

	if cfg.Retrieval.Backend == "" {
		if cfg.Database.URL != "" {
			cfg.Retrieval.Backend = "pgvector"
		} else {
			cfg.Retrieval.Backend = "none"
		}
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 3
	}
	if cfg.Retrieval.Timeout == 0 {
		cfg.Retrieval.Timeout = 10 * time.Second
	}
	if cfg.Retrieval.BreakerFailures == 0 {
		cfg.Retrieval.BreakerFailures = 5
	}
	if cfg.Retrieval.BreakerOpen == 0 {
		cfg.Retrieval.BreakerOpen = 30 * time.Second
	}

	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = 1000
	}
	if cfg.Chunker.ChunkOverlap == 0 {
		cfg.Chunker.ChunkOverlap = 100
	}

	if cfg.Analysis.MaxAttempts == 0 {
		cfg.Analysis.MaxAttempts = 3
	}
	if cfg.Analysis.Concurrency == 0 {
		cfg.Analysis.Concurrency = 1
	}
	if cfg.Analysis.HistoryLimit == 0 {
		cfg.Analysis.HistoryLimit = 20
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// Validate rejects values no component can run with
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "gemini", "openai", "anythingllm":
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	switch c.Retrieval.Backend {
	case "pgvector", "weaviate", "none":
	default:
		return fmt.Errorf("unknown retrieval backend %q", c.Retrieval.Backend)
	}
	if c.Retrieval.Backend == "weaviate" && c.Retrieval.WeaviateHost == "" {
		return errors.New("retrieval.weaviate_host is required for the weaviate backend")
	}
	if c.Chunker.ChunkOverlap >= c.Chunker.ChunkSize {
		return fmt.Errorf("chunk_overlap (%d) must be smaller than chunk_size (%d)", c.Chunker.ChunkOverlap, c.Chunker.ChunkSize)
	}
	if c.Analysis.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", c.Analysis.MaxAttempts)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
