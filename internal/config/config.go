package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds Sumveil configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Provider   ProviderConfig   `yaml:"provider"`
	Jobs       JobsConfig       `yaml:"jobs"`
	Store      StoreConfig      `yaml:"store"`
	Recognizer RecognizerConfig `yaml:"recognizer"`
	Scoring    ScoringConfig    `yaml:"scoring"`
	Audit      AuditConfig      `yaml:"audit"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

type ServerConfig struct {
	Addr                string        `yaml:"addr"` // HTTP listen address, e.g. ":8080"
	MaxRequestBodyBytes int64         `yaml:"max_request_body_bytes"`
	ReadHeaderTimeout   time.Duration `yaml:"read_header_timeout"`
	ReadTimeout         time.Duration `yaml:"read_timeout"`
	IdleTimeout         time.Duration `yaml:"idle_timeout"`
	// WriteTimeout is left zero by default: the streaming endpoint holds the
	// response open for the lifetime of the upstream stream.
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type ProviderConfig struct {
	Type             string  `yaml:"type"`        // e.g. "openai"
	BaseURL          string  `yaml:"base_url"`    // e.g. "https://api.openai.com/v1"
	APIKeyEnv        string  `yaml:"api_key_env"` // fallback when the submitter sends no key
	Model            string  `yaml:"model"`
	Temperature      float32 `yaml:"temperature"`
	MaxResponseBytes int64   `yaml:"max_response_bytes"`
}

type JobsConfig struct {
	Workers   int           `yaml:"workers"`
	QueueSize int           `yaml:"queue_size"`
	Timeout   time.Duration `yaml:"timeout"` // per-job cap on the model call
}

type StoreConfig struct {
	Driver string        `yaml:"driver"` // memory | sqlite
	DSN    string        `yaml:"dsn"`    // sqlite file path
	TTL    time.Duration `yaml:"ttl"`    // memory driver: how long terminal jobs stay pollable
}

type RecognizerConfig struct {
	Mode      string   `yaml:"mode"`       // regex | onnx | off
	BundleDir string   `yaml:"bundle_dir"` // onnx mode: model + tokenizer bundle
	SeqLen    int      `yaml:"seq_len"`
	Entities  []string `yaml:"entities"` // regex mode allowlist; empty means all
}

type ScoringConfig struct {
	// Enabled toggles keyword extraction + similarity scoring on the job
	// pipeline. Defaults to true.
	Enabled *bool `yaml:"enabled"`
}

type AuditConfig struct {
	Level     string        `yaml:"level"` // off | metadata | full
	File      string        `yaml:"file"`  // JSONL sink path; empty disables
	QueueSize int           `yaml:"queue_size"`
	Workers   int           `yaml:"workers"`
	Webhook   WebhookConfig `yaml:"webhook"`
}

type WebhookConfig struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
	Timeout time.Duration     `yaml:"timeout"`
}

type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Protocol string `yaml:"protocol"` // grpc | http
	Service  string `yaml:"service"`
}

// Load reads configuration from a YAML file.
// If the file doesn't exist, it returns a default config and no error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := &Config{}
			applyDefaults(cfg)
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.MaxRequestBodyBytes <= 0 {
		cfg.Server.MaxRequestBodyBytes = 1 << 20
	}
	if cfg.Server.ReadHeaderTimeout <= 0 {
		cfg.Server.ReadHeaderTimeout = 5 * time.Second
	}
	if cfg.Server.ReadTimeout <= 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.IdleTimeout <= 0 {
		cfg.Server.IdleTimeout = 60 * time.Second
	}

	if cfg.Provider.Type == "" {
		cfg.Provider.Type = "openai"
	}
	if cfg.Provider.BaseURL == "" {
		cfg.Provider.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Provider.APIKeyEnv == "" {
		cfg.Provider.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Provider.Model == "" {
		cfg.Provider.Model = "gpt-3.5-turbo"
	}
	if cfg.Provider.Temperature <= 0 {
		cfg.Provider.Temperature = 0.5
	}
	if cfg.Provider.MaxResponseBytes <= 0 {
		cfg.Provider.MaxResponseBytes = 4 * 1024 * 1024
	}

	if cfg.Jobs.Workers <= 0 {
		cfg.Jobs.Workers = 4
	}
	if cfg.Jobs.QueueSize <= 0 {
		cfg.Jobs.QueueSize = 256
	}
	if cfg.Jobs.Timeout <= 0 {
		cfg.Jobs.Timeout = 60 * time.Second
	}

	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "memory"
	}
	if cfg.Store.TTL <= 0 {
		cfg.Store.TTL = 30 * time.Minute
	}

	if cfg.Recognizer.Mode == "" {
		cfg.Recognizer.Mode = "regex"
	}
	if cfg.Recognizer.SeqLen <= 0 {
		cfg.Recognizer.SeqLen = 256
	}

	if cfg.Scoring.Enabled == nil {
		enabled := true
		cfg.Scoring.Enabled = &enabled
	}

	if cfg.Audit.Level == "" {
		cfg.Audit.Level = "metadata"
	}
	if cfg.Audit.QueueSize <= 0 {
		cfg.Audit.QueueSize = 1000
	}
	if cfg.Audit.Workers <= 0 {
		cfg.Audit.Workers = 1
	}
	if cfg.Audit.Webhook.Timeout <= 0 {
		cfg.Audit.Webhook.Timeout = 2 * time.Second
	}

	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.Service == "" {
		cfg.Telemetry.Service = "sumveil"
	}
}

// ScoringEnabled reports whether the pipeline should extract keywords and
// compute the similarity score.
func (c *Config) ScoringEnabled() bool {
	if c == nil || c.Scoring.Enabled == nil {
		return true
	}
	return *c.Scoring.Enabled
}
