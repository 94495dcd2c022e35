package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models routeline.yml.
type Config struct {
	Solver struct {
		BaseURL string `yaml:"base_url"`
		APIKey  string `yaml:"api_key"`
	} `yaml:"solver"`
	Run struct {
		PollIntervalSeconds int `yaml:"poll_interval_seconds"`
		PollCeilingMinutes  int `yaml:"poll_ceiling_minutes"`
	} `yaml:"run"`
	Server struct {
		Listen    string `yaml:"listen"`
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"server"`
	Import struct {
		Delimiter string `yaml:"delimiter"`
	} `yaml:"import"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create it with rl config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config when no file exists.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Solver.BaseURL == "" {
		return fmt.Errorf("config.solver.base_url is required")
	}
	if c.Run.PollIntervalSeconds < 0 {
		return fmt.Errorf("config.run.poll_interval_seconds must not be negative")
	}
	if c.Run.PollCeilingMinutes < 0 {
		return fmt.Errorf("config.run.poll_ceiling_minutes must not be negative")
	}
	if d := c.Import.Delimiter; d != "" && len([]rune(d)) != 1 {
		return fmt.Errorf("config.import.delimiter must be a single character")
	}
	return nil
}

// PollInterval returns the configured interval, or the 5s default.
func (c *Config) PollInterval() time.Duration {
	if c.Run.PollIntervalSeconds > 0 {
		return time.Duration(c.Run.PollIntervalSeconds) * time.Second
	}
	return 5 * time.Second
}

// PollCeiling returns the configured ceiling, or the 10min default.
func (c *Config) PollCeiling() time.Duration {
	if c.Run.PollCeilingMinutes > 0 {
		return time.Duration(c.Run.PollCeilingMinutes) * time.Minute
	}
	return 10 * time.Minute
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "routeline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the parsed default config.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `solver:
  base_url: https://api.routific.example/v1
  api_key: ""

run:
  poll_interval_seconds: 5
  poll_ceiling_minutes: 10

server:
  listen: 127.0.0.1:8787
  jwt_secret: ""

import:
  delimiter: ","
`
