package sparkpipe

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml"
)

// Config is the CLI configuration file.
type Config struct {
	Historian HistorianConfig `toml:"historian"`
}

type HistorianConfig struct {
	URL             string `toml:"url"              default:"http://localhost:9030"`
	TLSVerification bool   `toml:"tls_verification"`
	Timeout         string `toml:"timeout"          default:"30s"`
}

func (c HistorianConfig) TimeoutDuration() (time.Duration, error) {
	if c.Timeout == "" {
		return 0, nil
	}

	return time.ParseDuration(c.Timeout)
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	tree, err := toml.Load(string(data))
	if err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	var cfg Config
	if err := tree.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if _, err := cfg.Historian.TimeoutDuration(); err != nil {
		return nil, fmt.Errorf("error parsing historian timeout: %w", err)
	}

	return &cfg, nil
}
