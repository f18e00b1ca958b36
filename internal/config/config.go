package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot fleet-sentinel.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Clients   ClientsConfig   `yaml:"clients"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Detection DetectionConfig `yaml:"detection"`
	Logging   LoggingConfig   `yaml:"logging"`
	Cache     CacheConfig     `yaml:"cache"`
}

// ServerConfig controls HTTP listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// ClientsConfig groups outbound collaborator integrations.
type ClientsConfig struct {
	Feed     FeedClientConfig `yaml:"feed"`
	Embedder EmbedderConfig   `yaml:"embedder"`
	Index    IndexConfig      `yaml:"index"`
}

// FeedClientConfig configures access to the live telemetry feed.
type FeedClientConfig struct {
	BaseURL      string        `yaml:"baseURL"`
	SnapshotPath string        `yaml:"snapshotPath"`
	Timeout      time.Duration `yaml:"timeout"`
}

// EmbedderConfig configures the text embedding capability.
type EmbedderConfig struct {
	BaseURL string        `yaml:"baseURL"`
	Path    string        `yaml:"path"`
	Timeout time.Duration `yaml:"timeout"`
}

// IndexConfig configures the precedent similarity index.
type IndexConfig struct {
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"apiKey"`
	Timeout  time.Duration `yaml:"timeout"`
}

// PipelineConfig controls regeneration and resolution behaviour.
type PipelineConfig struct {
	ResultTTL           time.Duration `yaml:"resultTTL"`
	ConfidenceThreshold float64       `yaml:"confidenceThreshold"`
	TopK                int           `yaml:"topK"`
	// Workers bounds resolver fan-out; zero means available CPUs.
	Workers int `yaml:"workers"`
}

// DetectionConfig tunes scanner rules. The synthetic trigger probabilities
// model conditions the feed cannot observe directly; each is an independent
// Bernoulli draw per asset per scan.
type DetectionConfig struct {
	HighSpeedKmh          float64 `yaml:"highSpeedKmh"`
	WeatherProbability    float64 `yaml:"weatherProbability"`
	CongestionProbability float64 `yaml:"congestionProbability"`
	WinterProbability     float64 `yaml:"winterProbability"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// CacheConfig controls the optional Valkey-backed byte cache used to reuse
// embedding vectors across regenerations.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	EmbeddingTTL time.Duration `yaml:"embeddingTTL"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("FLEET_SENTINEL_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8090",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Clients: ClientsConfig{
			Feed: FeedClientConfig{
				SnapshotPath: "/api/v1/fleet/snapshot",
				Timeout:      5 * time.Second,
			},
			Embedder: EmbedderConfig{
				Path:    "/v1/embeddings",
				Timeout: 5 * time.Second,
			},
			Index: IndexConfig{Timeout: 5 * time.Second},
		},
		Pipeline: PipelineConfig{
			ResultTTL:           30 * time.Second,
			ConfidenceThreshold: 0.5,
			TopK:                3,
		},
		Detection: DetectionConfig{
			HighSpeedKmh:          100,
			WeatherProbability:    0.05,
			CongestionProbability: 0.03,
			WinterProbability:     0.04,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Cache: CacheConfig{
			Enabled:      false,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			EmbeddingTTL: 10 * time.Minute,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FLEET_SENTINEL_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("FLEET_SENTINEL_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("FLEET_SENTINEL_FEED_BASE_URL"); v != "" {
		cfg.Clients.Feed.BaseURL = v
	}
	if v := os.Getenv("FLEET_SENTINEL_FEED_SNAPSHOT_PATH"); v != "" {
		cfg.Clients.Feed.SnapshotPath = v
	}
	if v := os.Getenv("FLEET_SENTINEL_EMBEDDER_BASE_URL"); v != "" {
		cfg.Clients.Embedder.BaseURL = v
	}
	if v := os.Getenv("FLEET_SENTINEL_INDEX_URL"); v != "" {
		cfg.Clients.Index.Endpoint = v
	}
	if v := os.Getenv("FLEET_SENTINEL_INDEX_API_KEY"); v != "" {
		cfg.Clients.Index.APIKey = v
	}
	if v := os.Getenv("FLEET_SENTINEL_RESULT_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Pipeline.ResultTTL = d
		}
	}
	if v := os.Getenv("FLEET_SENTINEL_CONFIDENCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Pipeline.ConfidenceThreshold = f
		}
	}
	if v := os.Getenv("FLEET_SENTINEL_TOP_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.TopK = k
		}
	}
	if v := os.Getenv("FLEET_SENTINEL_WORKERS"); v != "" {
		if w, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.Workers = w
		}
	}
	if v := os.Getenv("FLEET_SENTINEL_HIGH_SPEED_KMH"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Detection.HighSpeedKmh = f
		}
	}
	if v := os.Getenv("FLEET_SENTINEL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FLEET_SENTINEL_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("FLEET_SENTINEL_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("FLEET_SENTINEL_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("FLEET_SENTINEL_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("FLEET_SENTINEL_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("FLEET_SENTINEL_CACHE_EMBEDDING_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.EmbeddingTTL = d
		}
	}
}
