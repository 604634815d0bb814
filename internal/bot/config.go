package bot

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	coreconfig "schoolbot/core/config"
	"schoolbot/core/database"
)

// StorageConfig locates the on-disk material store.
type StorageConfig struct {
	Dir string `yaml:"dir" envconfig:"STORAGE_DIR"`
}

// Config is the full application configuration: the shared bot core plus the
// database and file storage blocks.
type Config struct {
	Core     coreconfig.Config `yaml:",inline"`
	Database database.Config   `yaml:"database"`
	Storage  StorageConfig     `yaml:"storage"`
}

// CoreConfig exposes the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Core
}

// LoadConfig reads the YAML config, applies .env and environment overrides,
// and validates the result.
func LoadConfig(path string) (*Config, error) {
	// Missing .env is fine; env vars may come from the environment directly.
	_ = godotenv.Load()

	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}

	if err := coreconfig.Normalize(&cfg.Core); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Storage.Dir) == "" {
		cfg.Storage.Dir = "materials"
	}
	return &cfg, nil
}
