// Package config loads settings from $HOME/.designtree.yaml, an explicit
// config file, and DESIGNTREE_* environment variables.
package config

import (
	"fmt"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "DESIGNTREE"
	FileName  = ".designtree"
)

// Config is the resolved configuration of the service and CLI.
type Config struct {
	LogLevel string
	GRPCAddr string
	HTTPAddr string

	StorageBackend string
	StorageDSN     string

	RedisAddr   string
	RedisPrefix string

	ObjectsBackend string
	S3Bucket       string
	S3Region       string
	S3Endpoint     string
	S3AccessKey    string
	S3SecretKey    string

	AssetBaseURL string
	HistoryLimit int
}

// SetDefaults registers a default for every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("grpc.addr", ":50061")
	v.SetDefault("http.addr", ":8090")
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.prefix", "designtree")
	v.SetDefault("objects.backend", "memory")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("assets.base_url", "")
	v.SetDefault("history.limit", 50)
}

// Load reads cfgFile, or $HOME/.designtree.yaml when cfgFile is empty.
// A missing default file is not an error.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	SetDefaults(v)
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(home)
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || cfgFile != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return FromViper(v)
}

// FromViper builds a Config from already loaded settings.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		LogLevel:       v.GetString("log.level"),
		GRPCAddr:       v.GetString("grpc.addr"),
		HTTPAddr:       v.GetString("http.addr"),
		StorageBackend: strings.ToLower(v.GetString("storage.backend")),
		StorageDSN:     v.GetString("storage.dsn"),
		RedisAddr:      v.GetString("redis.addr"),
		RedisPrefix:    v.GetString("redis.prefix"),
		ObjectsBackend: strings.ToLower(v.GetString("objects.backend")),
		S3Bucket:       v.GetString("s3.bucket"),
		S3Region:       v.GetString("s3.region"),
		S3Endpoint:     v.GetString("s3.endpoint"),
		S3AccessKey:    v.GetString("s3.access_key"),
		S3SecretKey:    v.GetString("s3.secret_key"),
		AssetBaseURL:   v.GetString("assets.base_url"),
		HistoryLimit:   v.GetInt("history.limit"),
	}
	return cfg, cfg.Validate()
}

// Validate checks backend names and the settings each backend needs.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case "memory", "redis":
	case "sqlite", "postgres":
		if c.StorageDSN == "" {
			return fmt.Errorf("storage.dsn is required for the %s backend", c.StorageBackend)
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.StorageBackend)
	}
	switch c.ObjectsBackend {
	case "memory":
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("s3.bucket is required for the s3 object store")
		}
	default:
		return fmt.Errorf("unknown objects.backend %q", c.ObjectsBackend)
	}
	if c.HistoryLimit < 0 {
		return fmt.Errorf("history.limit must not be negative")
	}
	return nil
}
