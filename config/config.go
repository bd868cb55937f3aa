package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Candleflow CandleflowConfig `yaml:"candleflow"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Collection CollectionConfig `yaml:"collection"`
	Reader     ReaderConfig     `yaml:"reader"`
	Source     SourceConfig     `yaml:"source"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type CandleflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type InfluxDBConfig struct {
	Host      string        `yaml:"host"`
	Port      int           `yaml:"port"`
	Database  string        `yaml:"database"`
	Username  string        `yaml:"username"`
	Password  string        `yaml:"password"`
	BatchSize int           `yaml:"batch_size"`
	Timeout   time.Duration `yaml:"timeout"`
}

// Addr builds the HTTP endpoint of the InfluxDB instance.
func (c InfluxDBConfig) Addr() string {
	return fmt.Sprintf("http://%s:%d", c.Host, c.Port)
}

type CollectionConfig struct {
	AssetsFile       string        `yaml:"assets_file"`
	Timeframe        string        `yaml:"timeframe"`
	Days             int           `yaml:"days"`
	FundingDays      int           `yaml:"funding_days"`
	Interval         time.Duration `yaml:"interval"`
	CooldownEvery    int           `yaml:"cooldown_every"`
	CooldownDuration time.Duration `yaml:"cooldown_duration"`
}

type ReaderConfig struct {
	Timeout        time.Duration        `yaml:"timeout"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	Retry          RetryConfig          `yaml:"retry"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	BaseDelay         time.Duration `yaml:"base_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	BackoffMultiplier int           `yaml:"backoff_multiplier"`
}

type ConnectionPoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

type SourceConfig struct {
	Bybit       EndpointConfig `yaml:"bybit"`
	Binance     EndpointConfig `yaml:"binance"`
	Bitunix     EndpointConfig `yaml:"bitunix"`
	Deribit     EndpointConfig `yaml:"deribit"`
	Hyperliquid EndpointConfig `yaml:"hyperliquid"`
	YFinance    EndpointConfig `yaml:"yfinance"`
}

type EndpointConfig struct {
	URL string `yaml:"url"`
}

type LoggingConfig struct {
	Level         string                 `yaml:"level"`
	Format        string                 `yaml:"format"`
	Output        string                 `yaml:"output"`
	MaxAge        int                    `yaml:"max_age"`
	Fields        map[string]interface{} `yaml:"fields"`
	DashboardName string                 `yaml:"dashboard_name"`
}

const defaultConfigPath = "config.yml"

var envConfigPaths = map[string]string{
	environmentProduction: "config.production.yml",
	environmentStaging:    "config.staging.yml",
}

func LoadConfig(path string) (*Config, error) {
	path = resolveEnvSpecificPath(path, defaultConfigPath, envConfigPaths)

	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		InfluxDB: InfluxDBConfig{
			Host:      "localhost",
			Port:      8086,
			BatchSize: 5000,
			Timeout:   30 * time.Second,
		},
		Collection: CollectionConfig{
			Timeframe:        "1h",
			Days:             30,
			FundingDays:      30,
			CooldownEvery:    100,
			CooldownDuration: 5 * time.Minute,
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override InfluxDB settings from environment variables if available
	if v := os.Getenv("INFLUXDB_HOST"); v != "" {
		config.InfluxDB.Host = strings.TrimSpace(v)
	}
	if v := os.Getenv("INFLUXDB_PORT"); v != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("invalid INFLUXDB_PORT '%s': %w", v, err)
		}
		config.InfluxDB.Port = port
	}
	if v := os.Getenv("INFLUXDB_DATABASE"); v != "" {
		config.InfluxDB.Database = strings.TrimSpace(v)
	}
	if v := os.Getenv("INFLUXDB_USERNAME"); v != "" {
		config.InfluxDB.Username = strings.TrimSpace(v)
	}
	if v := os.Getenv("INFLUXDB_PASSWORD"); v != "" {
		config.InfluxDB.Password = v
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Candleflow.Name == "" {
		return fmt.Errorf("candleflow.name is required")
	}

	if cfg.Candleflow.Version == "" {
		return fmt.Errorf("candleflow.version is required")
	}

	if cfg.InfluxDB.Host == "" {
		return fmt.Errorf("influxdb.host is required")
	}
	if cfg.InfluxDB.Port <= 0 || cfg.InfluxDB.Port > 65535 {
		return fmt.Errorf("influxdb.port must be a valid TCP port")
	}
	if cfg.InfluxDB.Database == "" {
		return fmt.Errorf("influxdb.database is required")
	}
	if cfg.InfluxDB.BatchSize <= 0 {
		return fmt.Errorf("influxdb.batch_size must be greater than 0")
	}

	if cfg.Collection.AssetsFile == "" {
		return fmt.Errorf("collection.assets_file is required")
	}
	if cfg.Collection.Timeframe == "" {
		return fmt.Errorf("collection.timeframe is required")
	}
	if cfg.Collection.Days <= 0 {
		return fmt.Errorf("collection.days must be greater than 0")
	}
	if cfg.Collection.FundingDays <= 0 {
		return fmt.Errorf("collection.funding_days must be greater than 0")
	}
	if cfg.Collection.CooldownEvery <= 0 {
		return fmt.Errorf("collection.cooldown_every must be greater than 0")
	}
	if cfg.Collection.CooldownDuration <= 0 {
		return fmt.Errorf("collection.cooldown_duration must be greater than 0")
	}

	if cfg.Reader.Timeout <= 0 {
		return fmt.Errorf("reader.timeout must be greater than 0")
	}
	if cfg.Reader.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("reader.rate_limit.requests_per_second must be greater than 0")
	}
	if cfg.Reader.RateLimit.BurstSize <= 0 {
		return fmt.Errorf("reader.rate_limit.burst_size must be greater than 0")
	}

	return nil
}
