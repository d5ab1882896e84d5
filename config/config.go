package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	LogLevel   string           `mapstructure:"log_level"`
	Upstream   UpstreamConfig   `mapstructure:"upstream"`
	Emitter    EmitterConfig    `mapstructure:"emitter"`
	Store      StoreConfig      `mapstructure:"store"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

type ServerConfig struct {
	Port int
	Host string
}

// UpstreamConfig names the third-party conversion API: endpoint, the
// advertising-account pixel id, and the long-lived access token. The
// token is outbound-only and never reaches clients.
type UpstreamConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	PixelID     string `mapstructure:"pixelId"`
	AccessToken string `mapstructure:"accessToken"`
	ContentType string `mapstructure:"contentType"`
	CatalogID   string `mapstructure:"catalogId"`
}

type EmitterConfig struct {
	RelayURL      string `mapstructure:"relayUrl"`
	PixelEndpoint string `mapstructure:"pixelEndpoint"`
	SourceURL     string `mapstructure:"sourceUrl"`
}

type StoreConfig struct {
	Backend    string `mapstructure:"backend"` // "file" or "mongo"
	FilePath   string `mapstructure:"filePath"`
	MongoURI   string `mapstructure:"mongoUri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

type MonitoringConfig struct {
	PrometheusPort int    `mapstructure:"prometheusPort"`
	MetricsPath    string `mapstructure:"metricsPath"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("monitoring.prometheusPort", 9090)
	viper.SetDefault("monitoring.metricsPath", "/metrics")
	viper.SetDefault("store.backend", "file")
	viper.SetDefault("store.filePath", "failed_events.json")
	viper.SetDefault("store.collection", "failed_events")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		// No config file is fine; env vars and defaults carry it.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Override with environment variables
	if port := os.Getenv("APP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	if promPort := os.Getenv("PROMETHEUS_PORT"); promPort != "" {
		if p, err := strconv.Atoi(promPort); err == nil {
			cfg.Monitoring.PrometheusPort = p
		}
	}

	if endpoint := os.Getenv("UPSTREAM_ENDPOINT"); endpoint != "" {
		cfg.Upstream.Endpoint = endpoint
	}
	if pixelID := os.Getenv("PIXEL_ID"); pixelID != "" {
		cfg.Upstream.PixelID = pixelID
	}
	if token := os.Getenv("CONVERSIONS_ACCESS_TOKEN"); token != "" {
		cfg.Upstream.AccessToken = token
	}
	if contentType := os.Getenv("CATALOG_CONTENT_TYPE"); contentType != "" {
		cfg.Upstream.ContentType = contentType
	}
	if catalogID := os.Getenv("CATALOG_ID"); catalogID != "" {
		cfg.Upstream.CatalogID = catalogID
	}

	if relayURL := os.Getenv("RELAY_URL"); relayURL != "" {
		cfg.Emitter.RelayURL = relayURL
	}
	if pixelEndpoint := os.Getenv("PIXEL_ENDPOINT"); pixelEndpoint != "" {
		cfg.Emitter.PixelEndpoint = pixelEndpoint
	}
	if sourceURL := os.Getenv("EVENT_SOURCE_URL"); sourceURL != "" {
		cfg.Emitter.SourceURL = sourceURL
	}

	if backend := os.Getenv("STORE_BACKEND"); backend != "" {
		cfg.Store.Backend = backend
	}
	if path := os.Getenv("STORE_FILE_PATH"); path != "" {
		cfg.Store.FilePath = path
	}
	if uri := os.Getenv("MONGODB_URI"); uri != "" {
		cfg.Store.MongoURI = uri
	}
	if db := os.Getenv("MONGODB_DATABASE"); db != "" {
		cfg.Store.Database = db
	}
	if col := os.Getenv("MONGODB_COLLECTION"); col != "" {
		cfg.Store.Collection = col
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	return &cfg, nil
}

// Catalog returns the fixed metadata merged into every forwarded
// event's custom data.
func (c *Config) Catalog() map[string]any {
	catalog := make(map[string]any)
	if c.Upstream.ContentType != "" {
		catalog["content_type"] = c.Upstream.ContentType
	}
	if c.Upstream.CatalogID != "" {
		catalog["catalog_id"] = c.Upstream.CatalogID
	}
	return catalog
}
