package types

import (
	"errors"
	"time"
)

// Config holds everything needed to build a record store client.
type Config struct {
	Remote RemoteConfig `json:"remote" yaml:"remote" mapstructure:"remote"`
	Cache  CacheConfig  `json:"cache" yaml:"cache" mapstructure:"cache"`
	Queue  QueueConfig  `json:"queue" yaml:"queue" mapstructure:"queue"`
	Intake IntakeConfig `json:"intake" yaml:"intake" mapstructure:"intake"`
	Log    LogConfig    `json:"log" yaml:"log" mapstructure:"log"`

	// Lists are provisioned at startup alongside the intake list.
	Lists []ListDescriptor `json:"lists,omitempty" yaml:"lists,omitempty" mapstructure:"lists"`

	// DataDir holds local state: the offline store database and the queue.
	DataDir string `json:"data_dir" yaml:"data_dir,omitempty" mapstructure:"data_dir"`
}

// RemoteConfig selects and tunes the remote store.
type RemoteConfig struct {
	Backend       string        `json:"backend" yaml:"backend" mapstructure:"backend"`
	Audience      string        `json:"audience,omitempty" yaml:"audience,omitempty" mapstructure:"audience"`
	Token         string        `json:"-" yaml:"token,omitempty" mapstructure:"token"`
	TokenFile     string        `json:"token_file,omitempty" yaml:"token_file,omitempty" mapstructure:"token_file"`
	Timeout       time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
	RatePerSecond float64       `json:"rate_per_second" yaml:"rate_per_second" mapstructure:"rate_per_second"`
	Burst         int           `json:"burst" yaml:"burst" mapstructure:"burst"`
}

// CacheConfig tunes the read cache. TTL is deliberately short: entries only
// need to survive one interactive render cycle.
type CacheConfig struct {
	TTL time.Duration `json:"ttl" yaml:"ttl" mapstructure:"ttl"`
}

// QueueConfig selects the degraded-mode persistence backend.
type QueueConfig struct {
	Backend      string  `json:"backend" yaml:"backend" mapstructure:"backend"`
	ReplayPerSec float64 `json:"replay_per_second" yaml:"replay_per_second" mapstructure:"replay_per_second"`
}

// IntakeConfig describes the governed intake workflow.
type IntakeConfig struct {
	List                 string `json:"list" yaml:"list" mapstructure:"list"`
	DocumentRoot         string `json:"document_root" yaml:"document_root" mapstructure:"document_root"`
	DefaultCategory      string `json:"default_category" yaml:"default_category" mapstructure:"default_category"`
	ResponseDays         int    `json:"response_days" yaml:"response_days" mapstructure:"response_days"`
	FiscalYearStartMonth int    `json:"fiscal_year_start_month" yaml:"fiscal_year_start_month" mapstructure:"fiscal_year_start_month"`
	CasePrefix           string `json:"case_prefix" yaml:"case_prefix" mapstructure:"case_prefix"`
}

// LogConfig selects log level and encoding.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" mapstructure:"level"`
	Format string `json:"format" yaml:"format" mapstructure:"format"`
}

// Supported backend names.
const (
	BackendSQLite = "sqlite"
	QueueFile     = "file"
	QueueBadger   = "badger"
)

// Defaults.
const (
	DefaultCacheTTL             = 5 * time.Second
	DefaultRemoteTimeout        = 15 * time.Second
	DefaultRatePerSecond        = 20
	DefaultBurst                = 5
	DefaultReplayPerSecond      = 2
	DefaultIntakeList           = "Public Records Requests"
	DefaultDocumentRoot         = "Public Records"
	DefaultCategory             = "General"
	DefaultResponseDays         = 10
	DefaultFiscalYearStartMonth = 7
	DefaultCasePrefix           = "PRR"
)

// Config validation errors.
var (
	ErrBackendEmpty        = errors.New("backend must not be empty")
	ErrBackendUnknown      = errors.New("unknown backend")
	ErrQueueBackendUnknown = errors.New("unknown queue backend")
	ErrTTLInvalid          = errors.New("cache ttl must be positive")
	ErrTimeoutInvalid      = errors.New("remote timeout must be positive")
	ErrRateInvalid         = errors.New("rate must be positive")
	ErrResponseDaysInvalid = errors.New("response days must not be negative")
	ErrFiscalMonthInvalid  = errors.New("fiscal year start month must be 1-12")
	ErrIntakeListEmpty     = errors.New("intake list name must not be empty")
)

var knownBackends = map[string]bool{
	BackendSQLite: true,
}

var knownQueueBackends = map[string]bool{
	QueueFile:   true,
	QueueBadger: true,
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() Config {
	return Config{
		Remote: RemoteConfig{
			Backend:       BackendSQLite,
			Timeout:       DefaultRemoteTimeout,
			RatePerSecond: DefaultRatePerSecond,
			Burst:         DefaultBurst,
		},
		Cache: CacheConfig{TTL: DefaultCacheTTL},
		Queue: QueueConfig{Backend: QueueFile, ReplayPerSec: DefaultReplayPerSecond},
		Intake: IntakeConfig{
			List:                 DefaultIntakeList,
			DocumentRoot:         DefaultDocumentRoot,
			DefaultCategory:      DefaultCategory,
			ResponseDays:         DefaultResponseDays,
			FiscalYearStartMonth: DefaultFiscalYearStartMonth,
			CasePrefix:           DefaultCasePrefix,
		},
		Log: LogConfig{Level: "info", Format: "console"},
	}
}

// Validate checks that the Config is well-formed. It returns a sentinel
// error from this package on failure.
func (c Config) Validate() error {
	if c.Remote.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Remote.Backend] {
		return ErrBackendUnknown
	}
	if c.Remote.Timeout <= 0 {
		return ErrTimeoutInvalid
	}
	if c.Remote.RatePerSecond <= 0 || c.Queue.ReplayPerSec <= 0 {
		return ErrRateInvalid
	}
	if c.Cache.TTL <= 0 {
		return ErrTTLInvalid
	}
	if !knownQueueBackends[c.Queue.Backend] {
		return ErrQueueBackendUnknown
	}
	if c.Intake.List == "" {
		return ErrIntakeListEmpty
	}
	if c.Intake.ResponseDays < 0 {
		return ErrResponseDaysInvalid
	}
	if c.Intake.FiscalYearStartMonth < 1 || c.Intake.FiscalYearStartMonth > 12 {
		return ErrFiscalMonthInvalid
	}
	for _, l := range c.Lists {
		if err := l.Validate(); err != nil {
			return err
		}
	}
	return nil
}
