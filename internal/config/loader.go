package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"pubsubdesk/pkg/logging"

	"gopkg.in/yaml.v3"
)

const (
	userConfigDir  = ".config/pubsubdesk"
	configFileName = "config.yaml"
)

// osUserHomeDir is a variable so tests can point it at a temp directory.
var osUserHomeDir = os.UserHomeDir

// DefaultConfigPath returns ~/.config/pubsubdesk/config.yaml.
func DefaultConfigPath() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

// LoadConfig reads the config file at configFilePath (the default location
// when empty), fills defaults, and applies environment overrides. The result
// is not validated; callers decide which fields they need.
func LoadConfig(configFilePath string) (Config, error) {
	if configFilePath == "" {
		p, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		configFilePath = p
	}

	config := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logging.Info("ConfigLoader", "No config file found at %s, using defaults", configFilePath)
	case err != nil:
		return Config{}, ConfigurationError{
			FilePath:  configFilePath,
			ErrorType: "io",
			Message:   "cannot read config file",
			Details:   err.Error(),
		}
	default:
		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return Config{}, ConfigurationError{
				FilePath:  configFilePath,
				ErrorType: "parse",
				Message:   "malformed YAML",
				Details:   err.Error(),
			}
		}
		applyDefaults(&fileCfg)
		config = fileCfg
		logging.Info("ConfigLoader", "Loaded configuration from %s", configFilePath)
	}

	if err := ApplyEnv(&config); err != nil {
		return Config{}, ConfigurationError{
			FilePath:  configFilePath,
			ErrorType: "env",
			Message:   "invalid environment override",
			Details:   err.Error(),
		}
	}
	return config, nil
}
