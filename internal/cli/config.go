package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/civicstore/internal/paths"
	"github.com/mesh-intelligence/civicstore/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	envPrefix      = "CIVICSTORE"
)

const configHeader = `# civicstore configuration
#
# Durations use Go syntax (5s, 1m30s). Every key can be overridden by an
# environment variable: remote.token -> CIVICSTORE_REMOTE_TOKEN.
`

func (a *app) configDir() (string, error) {
	return paths.ResolveConfigDir(a.flags.configDir)
}

func (a *app) dataDir() (string, error) {
	return paths.ResolveDataDir(a.flags.dataDir, a.cfg.DataDir)
}

// setDefaults registers every known key so that AutomaticEnv can see it.
func setDefaults(v *viper.Viper, def types.Config) {
	v.SetDefault("remote.backend", def.Remote.Backend)
	v.SetDefault("remote.audience", def.Remote.Audience)
	v.SetDefault("remote.token", "")
	v.SetDefault("remote.token_file", "")
	v.SetDefault("remote.timeout", def.Remote.Timeout)
	v.SetDefault("remote.rate_per_second", def.Remote.RatePerSecond)
	v.SetDefault("remote.burst", def.Remote.Burst)
	v.SetDefault("cache.ttl", def.Cache.TTL)
	v.SetDefault("queue.backend", def.Queue.Backend)
	v.SetDefault("queue.replay_per_second", def.Queue.ReplayPerSec)
	v.SetDefault("intake.list", def.Intake.List)
	v.SetDefault("intake.document_root", def.Intake.DocumentRoot)
	v.SetDefault("intake.default_category", def.Intake.DefaultCategory)
	v.SetDefault("intake.response_days", def.Intake.ResponseDays)
	v.SetDefault("intake.fiscal_year_start_month", def.Intake.FiscalYearStartMonth)
	v.SetDefault("intake.case_prefix", def.Intake.CasePrefix)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)
	v.SetDefault("data_dir", "")
}

// loadConfig reads config.yaml from configDir with viper, writing the
// default file on first run. Environment variables override the file.
func loadConfig(configDir string) (types.Config, error) {
	if err := writeConfigIfMissing(configDir); err != nil {
		return types.Config{}, err
	}

	v := viper.New()
	setDefaults(v, types.DefaultConfig())
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return types.Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return types.Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return types.Config{}, fmt.Errorf("config %s: %w", v.ConfigFileUsed(), err)
	}
	return cfg, nil
}

// defaultConfigDocument renders the defaults with durations as strings.
func defaultConfigDocument(def types.Config) map[string]any {
	return map[string]any{
		"remote": map[string]any{
			"backend":         def.Remote.Backend,
			"timeout":         def.Remote.Timeout.String(),
			"rate_per_second": def.Remote.RatePerSecond,
			"burst":           def.Remote.Burst,
		},
		"cache": map[string]any{"ttl": def.Cache.TTL.String()},
		"queue": map[string]any{
			"backend":           def.Queue.Backend,
			"replay_per_second": def.Queue.ReplayPerSec,
		},
		"intake": map[string]any{
			"list":                    def.Intake.List,
			"document_root":           def.Intake.DocumentRoot,
			"default_category":        def.Intake.DefaultCategory,
			"response_days":           def.Intake.ResponseDays,
			"fiscal_year_start_month": def.Intake.FiscalYearStartMonth,
			"case_prefix":             def.Intake.CasePrefix,
		},
		"log": map[string]any{"level": def.Log.Level, "format": def.Log.Format},
	}
}

// writeConfigIfMissing creates configDir and a default config.yaml. An
// existing file is left alone.
func writeConfigIfMissing(configDir string) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	path := filepath.Join(configDir, paths.ConfigFile)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}

	body, err := yaml.Marshal(defaultConfigDocument(types.DefaultConfig()))
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, append([]byte(configHeader), body...), 0o644)
}
