// Package config loads discogs-sync configuration from a YAML file and
// DISCOGS_SYNC_* environment variables.
package config

import (
	"time"

	"github.com/Sternrassler/discogs-sync/pkg/cache"
	"github.com/Sternrassler/discogs-sync/pkg/client"
	"github.com/Sternrassler/discogs-sync/pkg/coordinator"
	"github.com/Sternrassler/discogs-sync/pkg/logging"
	"github.com/Sternrassler/discogs-sync/pkg/ratelimit"
)

// DefaultAccount names the account built from the top-level settings when
// no accounts list is configured.
const DefaultAccount = "default"

// Config is the complete file and environment configuration.
type Config struct {
	Name                   string         `mapstructure:"name"`
	Token                  string         `mapstructure:"token"`
	Username               string         `mapstructure:"username"`
	UserAgent              string         `mapstructure:"user_agent"`
	BaseURL                string         `mapstructure:"base_url"`
	EnableScheduledUpdates bool           `mapstructure:"enable_scheduled_updates"`
	TickInterval           time.Duration  `mapstructure:"tick_interval"`
	FailureThreshold       int            `mapstructure:"failure_threshold"`
	RequestTimeout         time.Duration  `mapstructure:"request_timeout"`
	Intervals              map[string]int `mapstructure:"intervals"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Export    ExportConfig    `mapstructure:"export"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`

	Accounts []AccountConfig `mapstructure:"accounts"`
}

// RateLimitConfig mirrors ratelimit.Config.
type RateLimitConfig struct {
	SoftFloor       int           `mapstructure:"soft_floor"`
	Limit           int           `mapstructure:"limit"`
	Window          time.Duration `mapstructure:"window"`
	MinCallInterval time.Duration `mapstructure:"min_call_interval"`
	CallBurst       int           `mapstructure:"call_burst"`
	ActionCooldown  time.Duration `mapstructure:"action_cooldown"`
}

type ExportConfig struct {
	Dir string `mapstructure:"dir"`
}

// RedisConfig configures the optional mirror. An empty Addr disables it.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type ServerConfig struct {
	Listen          string        `mapstructure:"listen"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// AccountConfig is one entry of the accounts list. Empty fields inherit
// the top-level value.
type AccountConfig struct {
	Name      string         `mapstructure:"name"`
	Token     string         `mapstructure:"token"`
	Username  string         `mapstructure:"username"`
	Enabled   *bool          `mapstructure:"enabled"`
	Intervals map[string]int `mapstructure:"intervals"`
}

// Account is a fully resolved account.
type Account struct {
	Name      string
	Token     string
	Username  string
	Enabled   bool
	Intervals map[cache.Category]time.Duration
}

// ResolvedAccounts returns the configured accounts with inherited values
// filled in, or a single DefaultAccount built from the top level.
func (c *Config) ResolvedAccounts() []Account {
	if len(c.Accounts) == 0 {
		return []Account{{
			Name:      DefaultAccount,
			Token:     c.Token,
			Username:  c.Username,
			Enabled:   c.EnableScheduledUpdates,
			Intervals: minutes(c.Intervals, nil),
		}}
	}

	accounts := make([]Account, 0, len(c.Accounts))
	for _, ac := range c.Accounts {
		a := Account{
			Name:      ac.Name,
			Token:     ac.Token,
			Username:  ac.Username,
			Enabled:   c.EnableScheduledUpdates,
			Intervals: minutes(c.Intervals, ac.Intervals),
		}
		if a.Token == "" {
			a.Token = c.Token
		}
		if ac.Enabled != nil {
			a.Enabled = *ac.Enabled
		}
		accounts = append(accounts, a)
	}
	return accounts
}

// Account returns the resolved account called name.
func (c *Config) Account(name string) (Account, bool) {
	for _, a := range c.ResolvedAccounts() {
		if a.Name == name {
			return a, true
		}
	}
	return Account{}, false
}

// minutes merges override over base and converts minutes to durations.
// Unknown category names are dropped; Validate reports them.
func minutes(base, override map[string]int) map[cache.Category]time.Duration {
	out := make(map[cache.Category]time.Duration)
	for _, m := range []map[string]int{base, override} {
		for name, n := range m {
			cat, err := cache.ParseCategory(name)
			if err != nil {
				continue
			}
			out[cat] = time.Duration(n) * time.Minute
		}
	}
	return out
}

// LimiterConfig returns the limiter configuration of account.
func (c *Config) LimiterConfig(account string) ratelimit.Config {
	return ratelimit.Config{
		Account:         account,
		SoftFloor:       c.RateLimit.SoftFloor,
		Limit:           c.RateLimit.Limit,
		Window:          c.RateLimit.Window,
		MinCallInterval: c.RateLimit.MinCallInterval,
		CallBurst:       c.RateLimit.CallBurst,
		ActionCooldown:  c.RateLimit.ActionCooldown,
	}
}

// ClientConfig returns the Discogs client configuration of a.
func (c *Config) ClientConfig(a Account) client.Config {
	cfg := client.DefaultConfig(a.Token, c.UserAgent)
	cfg.Account = a.Name
	if c.BaseURL != "" {
		cfg.BaseURL = c.BaseURL
	}
	if c.RequestTimeout > 0 {
		cfg.Timeout = c.RequestTimeout
	}
	return cfg
}

// CoordinatorConfig returns the coordinator configuration of a.
func (c *Config) CoordinatorConfig(a Account) coordinator.Config {
	return coordinator.Config{
		Account:          a.Name,
		Username:         a.Username,
		Enabled:          a.Enabled,
		FailureThreshold: c.FailureThreshold,
		Intervals:        a.Intervals,
	}
}

// LoggingConfig returns the logger configuration.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.Log.Level)
	cfg.Pretty = c.Log.Pretty
	return cfg
}
