package paths

import (
	"errors"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withHome(t *testing.T, home string) {
	t.Helper()
	orig := platformDir
	platformDir.homeDir = func() (string, error) { return home, nil }
	platformDir.userConfigDir = func() (string, error) { return filepath.Join(home, "AppData"), nil }
	t.Cleanup(func() { platformDir = orig })
}

func TestDefaultDirs_Linux(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("linux-only test")
	}
	withHome(t, "/home/clerk")

	tests := []struct {
		name string
		env  map[string]string
		fn   func() (string, error)
		want string
	}{
		{"config from XDG", map[string]string{"XDG_CONFIG_HOME": "/xdg/config"}, DefaultConfigDir, "/xdg/config/civicstore"},
		{"config fallback", map[string]string{"XDG_CONFIG_HOME": ""}, DefaultConfigDir, "/home/clerk/.config/civicstore"},
		{"data from XDG", map[string]string{"XDG_DATA_HOME": "/xdg/data"}, DefaultDataDir, "/xdg/data/civicstore"},
		{"data fallback", map[string]string{"XDG_DATA_HOME": ""}, DefaultDataDir, "/home/clerk/.local/share/civicstore"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			got, err := tt.fn()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDefaultConfigDir_HomeError(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("linux-only test")
	}
	orig := platformDir
	platformDir.homeDir = func() (string, error) { return "", errors.New("no home") }
	t.Cleanup(func() { platformDir = orig })
	t.Setenv("XDG_CONFIG_HOME", "")

	_, err := DefaultConfigDir()
	assert.Error(t, err)
}

func TestResolveConfigDir(t *testing.T) {
	withHome(t, "/home/clerk")
	t.Setenv("XDG_CONFIG_HOME", "")

	t.Run("flag wins", func(t *testing.T) {
		t.Setenv(EnvConfigDir, "/env/config")
		got, err := ResolveConfigDir("/flag/config")
		require.NoError(t, err)
		assert.Equal(t, "/flag/config", got)
	})

	t.Run("env over default", func(t *testing.T) {
		t.Setenv(EnvConfigDir, "/env/config")
		got, err := ResolveConfigDir("")
		require.NoError(t, err)
		assert.Equal(t, "/env/config", got)
	})

	t.Run("relative becomes absolute", func(t *testing.T) {
		t.Setenv(EnvConfigDir, "")
		got, err := ResolveConfigDir("relative/path")
		require.NoError(t, err)
		assert.True(t, filepath.IsAbs(got), "expected absolute path, got %s", got)
	})
}

func TestResolveDataDir(t *testing.T) {
	withHome(t, "/home/clerk")
	t.Setenv("XDG_DATA_HOME", "")
	platformDefault, err := DefaultDataDir()
	require.NoError(t, err)

	tests := []struct {
		name        string
		flag        string
		configValue string
		envVal      string
		want        string
	}{
		{"flag wins", "/flag/data", "/config/data", "/env/data", "/flag/data"},
		{"config over env", "", "/config/data", "/env/data", "/config/data"},
		{"env over default", "", "", "/env/data", "/env/data"},
		{"platform default", "", "", "", platformDefault},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvDataDir, tt.envVal)
			got, err := ResolveDataDir(tt.flag, tt.configValue)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
