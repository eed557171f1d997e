// Package config loads the churnguard service configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"churnguard/logging"
	"churnguard/ml"
)

// ModelVersionEnv selects the artifact version, overriding the config file.
const ModelVersionEnv = "CHURNGUARD_MODEL_VERSION"

const DefaultModelVersion = "churn_lr_v1"

type Config struct {
	Model struct {
		Dir         string  `yaml:"dir"`
		Version     string  `yaml:"version"`
		Threshold   float64 `yaml:"threshold"`
		RenameTable string  `yaml:"rename_table"`
	} `yaml:"model"`
	Http struct {
		Port         int           `yaml:"port"`
		Timeout      time.Duration `yaml:"timeout"`
		MaxBodyBytes int64         `yaml:"max_body_bytes"`
		MaxBatch     int           `yaml:"max_batch"`
	} `yaml:"http"`
	Log      logging.Config `yaml:"log"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Nats struct {
		URL     string `yaml:"url"`
		Subject string `yaml:"subject"`
		Queue   string `yaml:"queue"`
	} `yaml:"nats"`
}

// Default returns the configuration used for any key the file leaves out.
func Default() *Config {
	var c Config
	c.Model.Dir = "models"
	c.Model.Version = DefaultModelVersion
	c.Model.Threshold = ml.DefaultThreshold
	c.Model.RenameTable = "telco"
	c.Http.Port = 8080
	c.Http.Timeout = 30 * time.Second
	c.Http.MaxBodyBytes = 1 << 20
	c.Http.MaxBatch = 1000
	c.Log = logging.DefaultConfig()
	c.Nats.Subject = "churnguard.predict"
	c.Nats.Queue = "churnguard"
	return &c
}

// Load reads path over the defaults and applies the environment override. A
// missing file is not an error; the defaults are used.
func Load(path string) (*Config, error) {
	config := Default()
	if path != "" {
		file, err := os.Open(path)
		switch {
		case err == nil:
			defer file.Close()
			if err := yaml.NewDecoder(file).Decode(config); err != nil {
				return nil, fmt.Errorf("decode %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, err
		}
	}
	if version := os.Getenv(ModelVersionEnv); version != "" {
		config.Model.Version = version
	}
	return config, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	if c.Model.Version == "" {
		return errors.New("model.version is required")
	}
	if err := ml.ValidateThreshold(c.Model.Threshold); err != nil {
		return fmt.Errorf("model.threshold: %w", err)
	}
	switch c.Model.RenameTable {
	case "telco", "identity":
	default:
		return fmt.Errorf("model.rename_table %q is not one of telco, identity", c.Model.RenameTable)
	}
	if c.Http.Port <= 0 || c.Http.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.Http.Port)
	}
	if c.Http.MaxBatch <= 0 {
		return errors.New("http.max_batch must be positive")
	}
	if c.Http.MaxBodyBytes <= 0 {
		return errors.New("http.max_body_bytes must be positive")
	}
	if c.Nats.URL != "" && c.Nats.Subject == "" {
		return errors.New("nats.subject is required when nats.url is set")
	}
	return nil
}
