package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines server configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	DB     DBConfig     `yaml:"db"`
	Queue  QueueConfig  `yaml:"queue"`
	Log    LogConfig    `yaml:"log"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DBConfig struct {
	Path string `yaml:"path"`
}

// QueueConfig controls the background drain loop.
type QueueConfig struct {
	DrainInterval time.Duration `yaml:"drain_interval"`
	BatchSize     int           `yaml:"batch_size"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads configuration from an optional YAML file and environment variables.
func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		DB: DBConfig{
			Path: "rollup.db",
		},
		Queue: QueueConfig{
			DrainInterval: 2 * time.Second,
			BatchSize:     100,
		},
		Log: LogConfig{
			Level: "info",
		},
	}

	if path := os.Getenv("ROLLUP_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if host := os.Getenv("ROLLUP_SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if portStr := os.Getenv("ROLLUP_SERVER_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return Config{}, fmt.Errorf("invalid ROLLUP_SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if dbPath := os.Getenv("ROLLUP_DB_PATH"); dbPath != "" {
		cfg.DB.Path = dbPath
	}
	if intervalStr := os.Getenv("ROLLUP_DRAIN_INTERVAL"); intervalStr != "" {
		interval, err := time.ParseDuration(intervalStr)
		if err != nil {
			return Config{}, fmt.Errorf("invalid ROLLUP_DRAIN_INTERVAL: %w", err)
		}
		cfg.Queue.DrainInterval = interval
	}
	if batchStr := os.Getenv("ROLLUP_BATCH_SIZE"); batchStr != "" {
		batch, err := strconv.Atoi(batchStr)
		if err != nil {
			return Config{}, fmt.Errorf("invalid ROLLUP_BATCH_SIZE: %w", err)
		}
		cfg.Queue.BatchSize = batch
	}
	if level := os.Getenv("ROLLUP_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}

	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}
