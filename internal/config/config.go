// Package config loads the daemon's YAML configuration with environment
// variable overrides, following the same layered-defaults pattern as the
// rest of the ambient stack.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Registry      RegistryConfig      `yaml:"registry"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type ServerConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	HostKeyPath   string `yaml:"host_key_path"`
	MetricsAddr   string `yaml:"metrics_addr"`
	AuthTimeout   string `yaml:"auth_timeout"`
	NegotiateTimeout string `yaml:"negotiate_timeout"`
	RequestTimeout   string `yaml:"request_timeout"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "postgres"
	DSN    string `yaml:"dsn"`    // file path for sqlite, connection string for postgres
}

// RegistryConfig holds the values embedded verbatim into the synthesized
// repository's config.json blob (spec.md §4.G step 4, §6).
type RegistryConfig struct {
	DownloadURLTemplate string `yaml:"download_url_template"`
	APIBaseURL          string `yaml:"api_base_url"`
	// MaxIndexBytes guards the OversizeIndex error kind (spec.md §7). Zero
	// means unbounded.
	MaxIndexBytes int64 `yaml:"max_index_bytes"`
}

type ObservabilityConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
	ServiceName  string `yaml:"service_name"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) ValidateServe() error {
	if c == nil {
		return fmt.Errorf("config is required")
	}
	if c.Server.HostKeyPath == "" {
		return fmt.Errorf("server.host_key_path must be configured (example: CHARTERED_HOST_KEY_PATH=/etc/chartered/host_key)")
	}
	if c.Registry.DownloadURLTemplate == "" {
		return fmt.Errorf("registry.download_url_template must be configured")
	}
	if c.Registry.APIBaseURL == "" {
		return fmt.Errorf("registry.api_base_url must be configured")
	}
	return nil
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             2222,
			HostKeyPath:      "chartered_host_key",
			MetricsAddr:      "127.0.0.1:9090",
			AuthTimeout:      "10s",
			NegotiateTimeout: "30s",
			RequestTimeout:   "60s",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "chartered.db",
		},
		Registry: RegistryConfig{
			DownloadURLTemplate: "https://chartered.example.com/api/v1/crates/{crate}/{version}/download",
			APIBaseURL:          "https://chartered.example.com/api/v1",
		},
		Observability: ObservabilityConfig{
			ServiceName: "chartered-git-index",
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("CHARTERED_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("CHARTERED_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("CHARTERED_HOST_KEY_PATH"); v != "" {
		cfg.Server.HostKeyPath = v
	}
	if v := os.Getenv("CHARTERED_METRICS_ADDR"); v != "" {
		cfg.Server.MetricsAddr = v
	}
	if v := os.Getenv("CHARTERED_AUTH_TIMEOUT"); v != "" {
		cfg.Server.AuthTimeout = v
	}
	if v := os.Getenv("CHARTERED_NEGOTIATE_TIMEOUT"); v != "" {
		cfg.Server.NegotiateTimeout = v
	}
	if v := os.Getenv("CHARTERED_REQUEST_TIMEOUT"); v != "" {
		cfg.Server.RequestTimeout = v
	}
	if v := os.Getenv("CHARTERED_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("CHARTERED_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("CHARTERED_DOWNLOAD_URL_TEMPLATE"); v != "" {
		cfg.Registry.DownloadURLTemplate = v
	}
	if v := os.Getenv("CHARTERED_API_BASE_URL"); v != "" {
		cfg.Registry.APIBaseURL = v
	}
	if v := os.Getenv("CHARTERED_MAX_INDEX_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			cfg.Registry.MaxIndexBytes = n
		}
	}
	if v := os.Getenv("CHARTERED_OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.Observability.OTLPEndpoint = v
	}
	if v := os.Getenv("CHARTERED_OTEL_EXPORTER_OTLP_INSECURE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Observability.OTLPInsecure = b
		}
	}
	if v := os.Getenv("CHARTERED_OTEL_SERVICE_NAME"); v != "" {
		cfg.Observability.ServiceName = strings.TrimSpace(v)
	}
}
