// Package config loads geocover configuration from config.yaml, the
// environment and .env files, and sets up the global logger.
package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultBBox is Metro Vancouver as "ne_lat,ne_lon,sw_lat,sw_lon".
const DefaultBBox = "49.314549,-123.027079,49.185826,-123.310445"

// Config holds the full application configuration.
type Config struct {
	Source      SourceConfig      `yaml:"source" mapstructure:"source"`
	Scrape      ScrapeConfig      `yaml:"scrape" mapstructure:"scrape"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Breaker     BreakerConfig     `yaml:"breaker" mapstructure:"breaker"`
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Export      ExportConfig      `yaml:"export" mapstructure:"export"`
	ObjectStore ObjectStoreConfig `yaml:"object_store" mapstructure:"object_store"`
	Kafka       KafkaConfig       `yaml:"kafka" mapstructure:"kafka"`
	Schedule    ScheduleConfig    `yaml:"schedule" mapstructure:"schedule"`
	Alert       AlertConfig       `yaml:"alert" mapstructure:"alert"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// SourceConfig configures the station map endpoint.
type SourceConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	PageSize    int     `yaml:"page_size" mapstructure:"page_size"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst   int     `yaml:"rate_burst" mapstructure:"rate_burst"`
	UserLat     float64 `yaml:"user_lat" mapstructure:"user_lat"`
	UserLon     float64 `yaml:"user_lon" mapstructure:"user_lon"`
	ReplayFile  string  `yaml:"replay_file" mapstructure:"replay_file"`
}

// Timeout returns the per-query timeout.
func (s SourceConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSecs) * time.Second
}

// ScrapeConfig configures the partitioning engine.
type ScrapeConfig struct {
	BBox      string  `yaml:"bbox" mapstructure:"bbox"`
	Workers   int     `yaml:"workers" mapstructure:"workers"`
	Threshold int     `yaml:"threshold" mapstructure:"threshold"`
	LatLimit  float64 `yaml:"lat_limit" mapstructure:"lat_limit"`
	LonLimit  float64 `yaml:"lon_limit" mapstructure:"lon_limit"`
}

// CacheConfig configures the redis response cache. An empty address
// disables caching.
type CacheConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
	TTLSecs  int    `yaml:"ttl_secs" mapstructure:"ttl_secs"`
}

// TTL returns the cache entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSecs) * time.Second
}

// BreakerConfig configures the region query circuit breaker.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetSecs        int `yaml:"reset_secs" mapstructure:"reset_secs"`
}

// StoreConfig configures persistence.
type StoreConfig struct {
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Schema      string `yaml:"schema" mapstructure:"schema"`
	Columns     string `yaml:"columns" mapstructure:"columns"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// ExportConfig selects the sinks a run writes to.
type ExportConfig struct {
	Sinks         []string `yaml:"sinks" mapstructure:"sinks"`
	Dir           string   `yaml:"dir" mapstructure:"dir"`
	MapCenterLat  float64  `yaml:"map_center_lat" mapstructure:"map_center_lat"`
	MapCenterLon  float64  `yaml:"map_center_lon" mapstructure:"map_center_lon"`
	MapZoom       int      `yaml:"map_zoom" mapstructure:"map_zoom"`
	RetryAttempts int      `yaml:"retry_attempts" mapstructure:"retry_attempts"`
}

// ObjectStoreConfig configures the S3-compatible export target.
type ObjectStoreConfig struct {
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	Region    string `yaml:"region" mapstructure:"region"`
	UseSSL    bool   `yaml:"use_ssl" mapstructure:"use_ssl"`
	Prefix    string `yaml:"prefix" mapstructure:"prefix"`
}

// KafkaConfig configures the point topic.
type KafkaConfig struct {
	Brokers   []string `yaml:"brokers" mapstructure:"brokers"`
	Topic     string   `yaml:"topic" mapstructure:"topic"`
	BatchSize int      `yaml:"batch_size" mapstructure:"batch_size"`
}

// ScheduleConfig configures the sampling loop.
type ScheduleConfig struct {
	Interval string `yaml:"interval" mapstructure:"interval"`
}

// AlertConfig configures failure alerts.
type AlertConfig struct {
	WebhookURL  string `yaml:"webhook_url" mapstructure:"webhook_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment. Variables in a .env
// file in the working directory are exported first; real environment
// variables win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !isNotExist(err) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("GEOCOVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("source.base_url", "https://mc.chargepoint.com/map-prod/get")
	v.SetDefault("source.page_size", 100)
	v.SetDefault("source.timeout_secs", 20)
	v.SetDefault("source.rate_limit", 5.0)
	v.SetDefault("source.rate_burst", 5)
	v.SetDefault("source.user_lat", 49.2626692)
	v.SetDefault("source.user_lon", -123.24743289999999)
	v.SetDefault("scrape.bbox", DefaultBBox)
	v.SetDefault("scrape.workers", 8)
	v.SetDefault("scrape.threshold", 50)
	v.SetDefault("scrape.lat_limit", 0.00210146171)
	v.SetDefault("scrape.lon_limit", 0.00680744647)
	v.SetDefault("cache.ttl_secs", 300)
	v.SetDefault("breaker.failure_threshold", 10)
	v.SetDefault("breaker.reset_secs", 30)
	v.SetDefault("store.sqlite_path", "chargepoint.db")
	v.SetDefault("store.schema", "geocover")
	v.SetDefault("store.columns", "full")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("export.sinks", []string{"sqlite", "map"})
	v.SetDefault("export.dir", "out")
	v.SetDefault("export.map_center_lat", 49.2829)
	v.SetDefault("export.map_center_lon", -123.0750)
	v.SetDefault("export.map_zoom", 11)
	v.SetDefault("export.retry_attempts", 3)
	v.SetDefault("object_store.prefix", "runs")
	v.SetDefault("object_store.bucket", "geocover")
	v.SetDefault("kafka.topic", "geocover.stations")
	v.SetDefault("kafka.batch_size", 500)
	v.SetDefault("schedule.interval", "10m")
	v.SetDefault("alert.timeout_secs", 10)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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
