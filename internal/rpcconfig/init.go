package rpcconfig

import (
	"fmt"
	"os"
)

// GetDefaultConfigPath returns the default configuration file path
// ($XDG_CONFIG_HOME/librpc/librpcd.yaml, falling back to os.UserConfigDir).
func GetDefaultConfigPath() string {
	return defaultConfigDir() + string(os.PathSeparator) + "librpcd.yaml"
}

// DefaultConfigExists reports whether a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// InitConfig writes Defaults() to the default config path, failing if a
// file is already there unless force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	return path, InitConfigToPath(path, force)
}

// InitConfigToPath writes Defaults() to path, failing if a file is already
// there unless force is set.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("rpcconfig: %s already exists (use --force to overwrite)", path)
		}
	}
	return Save(Defaults(), path)
}
