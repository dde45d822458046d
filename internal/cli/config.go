// Config loading for the larder CLI.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"

	cfgKeyDataDir       = "data_dir"
	cfgKeyDatabaseFile  = "database_file"
	cfgKeyBusyTimeoutMS = "busy_timeout_ms"

	defaultConfigDir = ".larder"
	defaultDataDir   = ".larder-db"
)

// defaultConfigYAML is the content written to config.yaml on first run.
const defaultConfigYAML = `# Larder CLI configuration

# Data directory (optional; overridable by --data-dir flag)
# data_dir:

# Database file name inside the data directory
# database_file: larder.db

# Busy timeout in milliseconds before a locked statement fails
# busy_timeout_ms: 5000
`

// loadConfig reads config.yaml from the config directory using Viper,
// creating the directory and a default file on first run. A missing
// config.yaml is not an error.
func loadConfig(configDir string) (*viper.Viper, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure config dir: %w", err)
	}
	if err := ensureDefaultConfigFile(configDir); err != nil {
		return nil, fmt.Errorf("ensure default config: %w", err)
	}

	v := viper.New()
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

// ensureDefaultConfigFile creates a default config.yaml if missing.
func ensureDefaultConfigFile(configDir string) error {
	path := filepath.Join(configDir, configFileExt)

	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}

// resolveConfigDir returns the config directory: --config-dir flag >
// LARDER_CONFIG_DIR env > default.
func resolveConfigDir() string {
	if flags.configDir != "" {
		return flags.configDir
	}
	if dir := os.Getenv("LARDER_CONFIG_DIR"); dir != "" {
		return dir
	}
	return defaultConfigDir
}
