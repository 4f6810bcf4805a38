// Package config loads application configuration from config.yaml and the
// GCP_* environment, and owns global logger setup.
package config

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/gcp-support/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	USGS    USGSConfig    `yaml:"usgs" mapstructure:"usgs"`
	NOAA    NOAAConfig    `yaml:"noaa" mapstructure:"noaa"`
	Finder  FinderConfig  `yaml:"finder" mapstructure:"finder"`
	Basemap BasemapConfig `yaml:"basemap" mapstructure:"basemap"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the query cache backend. Driver is "sqlite",
// "postgres", or "none" to disable caching.
type StoreConfig struct {
	Driver      string           `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"`
	TTLHours    int              `yaml:"ttl_hours" mapstructure:"ttl_hours"`
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// USGSConfig holds USGS M2M API credentials and search settings.
type USGSConfig struct {
	BaseURL          string `yaml:"base_url" mapstructure:"base_url"`
	Username         string `yaml:"username" mapstructure:"username"`
	ApplicationToken string `yaml:"application_token" mapstructure:"application_token"`
	Dataset          string `yaml:"dataset" mapstructure:"dataset"`
}

// NOAAConfig holds NGS Photo Control Archive settings.
type NOAAConfig struct {
	ArchivePath string `yaml:"archive_path" mapstructure:"archive_path"`
	ArchiveURL  string `yaml:"archive_url" mapstructure:"archive_url"`
	CacheDir    string `yaml:"cache_dir" mapstructure:"cache_dir"`
}

// FinderConfig configures the search orchestrator and filters.
type FinderConfig struct {
	Threshold     int     `yaml:"threshold" mapstructure:"threshold"`
	MaxResults    int     `yaml:"max_results" mapstructure:"max_results"`
	UseGridRefs   bool    `yaml:"use_grid_refs" mapstructure:"use_grid_refs"`
	MinAccuracy   float64 `yaml:"min_accuracy" mapstructure:"min_accuracy"`
	RequirePhoto  bool    `yaml:"require_photo_identifiable" mapstructure:"require_photo_identifiable"`
	MinSpread     float64 `yaml:"min_spread_score" mapstructure:"min_spread_score"`
	MinConfidence float64 `yaml:"min_confidence_score" mapstructure:"min_confidence_score"`
}

// BasemapConfig configures basemap downloads.
type BasemapConfig struct {
	Source           string  `yaml:"source" mapstructure:"source"`
	MaxTiles         int     `yaml:"max_tiles" mapstructure:"max_tiles"`
	TargetResolution float64 `yaml:"target_resolution" mapstructure:"target_resolution"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GCP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "gcp-cache.db")
	v.SetDefault("store.ttl_hours", 24)
	v.SetDefault("usgs.base_url", "https://m2m.cr.usgs.gov/api/api/json/stable")
	v.SetDefault("usgs.dataset", "NAIP")
	v.SetDefault("noaa.cache_dir", os.TempDir())
	v.SetDefault("finder.threshold", 10)
	v.SetDefault("finder.max_results", 100)
	v.SetDefault("finder.use_grid_refs", true)
	v.SetDefault("finder.min_accuracy", 1.0)
	v.SetDefault("basemap.source", "openstreetmap")
	v.SetDefault("basemap.max_tiles", 64)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// WriteDefault writes a starter config.yaml with the default values.
func WriteDefault(path string) error {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return eris.Wrap(err, "config: unmarshal defaults")
	}

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return eris.Wrap(err, "config: marshal defaults")
	}
	return eris.Wrapf(os.WriteFile(path, data, 0o644), "config: write %s", path)
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
