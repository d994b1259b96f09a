package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config is the complete gateway configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Keys    KeysConfig    `yaml:"keys"`
	Admin   AdminConfig   `yaml:"admin"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port string `yaml:"port"`
}

// StorageConfig holds bucket connection settings. Provider selects the
// adapter: "minio" (default) or "s3".
type StorageConfig struct {
	Provider         string `yaml:"provider"`
	Endpoint         string `yaml:"endpoint"`
	Region           string `yaml:"region"`
	AccessKey        string `yaml:"access_key"`
	SecretKey        string `yaml:"secret_key"`
	Bucket           string `yaml:"bucket"`
	UseSSL           bool   `yaml:"use_ssl"`
	StagingDir       string `yaml:"staging_dir"`
	OpTimeoutSeconds int    `yaml:"op_timeout_seconds"`
}

// OpTimeout returns the configured metadata-operation timeout.
func (c StorageConfig) OpTimeout() time.Duration {
	return time.Duration(c.OpTimeoutSeconds) * time.Second
}

// KeysConfig holds the API key database location.
type KeysConfig struct {
	Database string `yaml:"database"`
}

// AdminConfig holds the administrative credential used for key management.
type AdminConfig struct {
	Key string `yaml:"key"`
}

// LoadConfig reads configuration from CONFIG_PATH (default config.yaml),
// falling back to defaults if the file is absent. Environment variables
// override the file for credentials.
func LoadConfig() *Config {
	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}

	config := defaultConfig()
	data, err := os.ReadFile(configPath)
	if err != nil {
		log.Printf("Failed to read config file, using defaults: %v", err)
	} else if err := yaml.Unmarshal(data, config); err != nil {
		log.Printf("Failed to parse config file, using defaults: %v", err)
		config = defaultConfig()
	}

	applyEnv(config)

	// Log only a hash prefix so the admin key never lands in logs.
	if config.Admin.Key != "" {
		hasher := sha256.New()
		hasher.Write([]byte(config.Admin.Key))
		prefix := hex.EncodeToString(hasher.Sum(nil)[:8])
		log.Printf("Admin key configured (hash prefix: %s...)", prefix)
	}

	return config
}

func applyEnv(config *Config) {
	if v := os.Getenv("FILEGATE_ADMIN_KEY"); v != "" {
		config.Admin.Key = v
	}
	if v := os.Getenv("FILEGATE_STORAGE_ACCESS_KEY"); v != "" {
		config.Storage.AccessKey = v
	}
	if v := os.Getenv("FILEGATE_STORAGE_SECRET_KEY"); v != "" {
		config.Storage.SecretKey = v
	}
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8080",
		},
		Storage: StorageConfig{
			Provider:         "minio",
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "filegate",
			StagingDir:       "./staging",
			OpTimeoutSeconds: 30,
		},
		Keys: KeysConfig{
			Database: "./keys.db",
		},
	}
}

// Validate rejects configurations the gateway cannot start with.
func (c *Config) Validate() error {
	switch c.Storage.Provider {
	case "minio", "s3":
	default:
		return fmt.Errorf("unknown storage provider %q", c.Storage.Provider)
	}
	if c.Storage.Bucket == "" {
		return fmt.Errorf("storage bucket must be set")
	}
	if c.Admin.Key == "" {
		return fmt.Errorf("admin key must be set via FILEGATE_ADMIN_KEY or config file")
	}
	return nil
}
