package config

import (
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvConfigPath names the environment variable overriding the config path.
const EnvConfigPath = "LEVEX_CONFIG"

const defaultPath = "configs/config.yaml"

// ResolvePath returns the config file path: explicit argument, then the
// LEVEX_CONFIG environment variable, then the default location.
func ResolvePath(arg string) string {
	if arg != "" {
		return arg
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env
	}
	return defaultPath
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	cfg.applyDefaults()
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
