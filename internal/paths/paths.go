// Package paths locates the civicstore configuration and data directories.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// AppName is the directory name used under the platform locations.
const AppName = "civicstore"

// Environment overrides.
const (
	EnvConfigDir = "CIVICSTORE_CONFIG_DIR"
	EnvDataDir   = "CIVICSTORE_DATA_DIR"
)

// ConfigFile is the name of the configuration file inside the config dir.
const ConfigFile = "config.yaml"

// platformDir is swapped out in tests.
var platformDir = struct {
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
}{
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
}

// xdgDir returns $xdgEnv/civicstore on Linux, falling back to
// ~/<fallback...>/civicstore. Elsewhere it uses os.UserConfigDir.
func xdgDir(xdgEnv string, fallback ...string) (string, error) {
	if runtime.GOOS != "linux" {
		dir, err := platformDir.userConfigDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, AppName), nil
	}
	if xdg := os.Getenv(xdgEnv); xdg != "" {
		return filepath.Join(xdg, AppName), nil
	}
	home, err := platformDir.homeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(append(append([]string{home}, fallback...), AppName)...), nil
}

// DefaultConfigDir is $XDG_CONFIG_HOME/civicstore on Linux
// (~/.config/civicstore without XDG), the user config dir elsewhere.
func DefaultConfigDir() (string, error) {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// DefaultDataDir is $XDG_DATA_HOME/civicstore on Linux
// (~/.local/share/civicstore without XDG), the user config dir elsewhere.
// The local queue and the offline store live here.
func DefaultDataDir() (string, error) {
	return xdgDir("XDG_DATA_HOME", ".local", "share")
}

// ResolveConfigDir applies flag > CIVICSTORE_CONFIG_DIR > DefaultConfigDir.
func ResolveConfigDir(flag string) (string, error) {
	return resolve(DefaultConfigDir, flag, os.Getenv(EnvConfigDir))
}

// ResolveDataDir applies flag > config file value > CIVICSTORE_DATA_DIR >
// DefaultDataDir.
func ResolveDataDir(flag, configValue string) (string, error) {
	return resolve(DefaultDataDir, flag, configValue, os.Getenv(EnvDataDir))
}

// resolve returns the first non-empty candidate as an absolute path.
func resolve(fallback func() (string, error), candidates ...string) (string, error) {
	for _, c := range candidates {
		if c != "" {
			return filepath.Abs(c)
		}
	}
	return fallback()
}
