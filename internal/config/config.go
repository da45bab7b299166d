package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

const (
	StorageLocal = "local"
	StorageS3    = "s3"
	StorageDB    = "db"
)

type Config struct {
	Port             int              `json:"port"`
	LogConfig        logger.LogConfig `json:"log_config"`
	Storage          StorageConfig    `json:"storage"`
	Cache            CacheConfig      `json:"cache"`
	Index            IndexConfig      `json:"index"`
	Provider         ProviderConfig   `json:"provider"`
	CORSAllowOrigins []string         `json:"cors_allow_origins"`
	RunRateLimitMs   int64            `json:"run_rate_limit_ms"`
}

type StorageConfig struct {
	Type     string         `json:"type"`
	Local    LocalConfig    `json:"local"`
	S3       S3Config       `json:"s3"`
	Database DatabaseConfig `json:"database"`
}

// Args returns the backend specific block for the selected storage type.
func (c StorageConfig) Args() interface{} {
	switch c.Type {
	case StorageLocal:
		return c.Local
	case StorageS3:
		return c.S3
	case StorageDB:
		return c.Database
	}
	return nil
}

type LocalConfig struct {
	Dir string `json:"dir"`
}

type S3Config struct {
	Endpoint  string `json:"endpoint"`
	SecretID  string `json:"secret_id"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
	Prefix    string `json:"prefix"`
	UseSSL    bool   `json:"use_ssl"`
}

type DatabaseConfig struct {
	Driver   string `json:"driver"`
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

type CacheConfig struct {
	MaxSize           int    `json:"max_size"`
	SessionTTLSeconds int64  `json:"session_ttl_seconds"`
	MaxSessions       int    `json:"max_sessions"`
	FlushCron         string `json:"flush_cron"`
	CleanupCron       string `json:"cleanup_cron"`
	MaxAgeDays        int    `json:"max_age_days"`
}

type IndexConfig struct {
	Metric string `json:"metric"`
}

type ProviderConfig struct {
	TimeoutSeconds int64 `json:"timeout_seconds"`
	Concurrency    int   `json:"concurrency"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) normalize() error {
	if cfg.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = StorageLocal
	}
	switch cfg.Storage.Type {
	case StorageLocal:
		if cfg.Storage.Local.Dir == "" {
			return fmt.Errorf("storage.local.dir is required for local storage")
		}
	case StorageS3:
		s3 := &cfg.Storage.S3
		if s3.Endpoint == "" || s3.Bucket == "" || s3.SecretID == "" || s3.SecretKey == "" {
			return fmt.Errorf("storage.s3 endpoint/bucket/secret_id/secret_key are required for s3 storage")
		}
		if s3.Region == "" {
			s3.Region = "us-east-1"
		}
	case StorageDB:
		db := &cfg.Storage.Database
		if db.Driver == "" {
			db.Driver = "postgres"
		}
		switch db.Driver {
		case "postgres":
			if db.DSN == "" && db.Host == "" {
				return fmt.Errorf("storage.database.dsn or host is required for postgres")
			}
			if db.Port == 0 {
				db.Port = 5432
			}
		case "sqlite":
			if db.DSN == "" {
				return fmt.Errorf("storage.database.dsn is required for sqlite")
			}
		default:
			return fmt.Errorf("storage.database.driver must be postgres or sqlite")
		}
	default:
		return fmt.Errorf("storage.type must be local, s3 or db")
	}
	if cfg.Cache.MaxSize <= 0 {
		cfg.Cache.MaxSize = 1000
	}
	if cfg.Cache.SessionTTLSeconds <= 0 {
		cfg.Cache.SessionTTLSeconds = 3600
	}
	if cfg.Cache.MaxSessions <= 0 {
		cfg.Cache.MaxSessions = 128
	}
	if cfg.Cache.FlushCron == "" {
		cfg.Cache.FlushCron = "*/5 * * * *"
	}
	if cfg.Cache.CleanupCron == "" {
		cfg.Cache.CleanupCron = "0 3 * * *"
	}
	if cfg.Cache.MaxAgeDays <= 0 {
		cfg.Cache.MaxAgeDays = 30
	}
	switch cfg.Index.Metric {
	case "":
		cfg.Index.Metric = "cosine"
	case "cosine", "euclidean", "inner_product":
	default:
		return fmt.Errorf("index.metric must be cosine, euclidean or inner_product")
	}
	if cfg.Provider.TimeoutSeconds <= 0 {
		cfg.Provider.TimeoutSeconds = 60
	}
	if cfg.Provider.Concurrency <= 0 {
		cfg.Provider.Concurrency = 8
	}
	return nil
}
