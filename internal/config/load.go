package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	configFileName = "discogs-sync"
	configFileType = "yaml"

	// EnvPrefix prefixes every environment override, e.g. DISCOGS_SYNC_TOKEN
	// or DISCOGS_SYNC_RATE_LIMIT_SOFT_FLOOR.
	EnvPrefix = "DISCOGS_SYNC"
)

// DefaultUserAgent identifies the application to Discogs.
const DefaultUserAgent = "DiscogsSync/1.0 +https://github.com/Sternrassler/discogs-sync"

func setDefaults(v *viper.Viper) {
	v.SetDefault("name", "Discogs Sync")
	v.SetDefault("token", "")
	v.SetDefault("username", "")
	v.SetDefault("user_agent", DefaultUserAgent)
	v.SetDefault("base_url", "https://api.discogs.com")
	v.SetDefault("enable_scheduled_updates", true)
	v.SetDefault("tick_interval", 5*time.Minute)
	v.SetDefault("failure_threshold", 3)
	v.SetDefault("request_timeout", 30*time.Second)

	v.SetDefault("intervals.collection_count", 10)
	v.SetDefault("intervals.wantlist_count", 10)
	v.SetDefault("intervals.collection_value", 30)
	v.SetDefault("intervals.random_record", 240)

	v.SetDefault("rate_limit.soft_floor", 5)
	v.SetDefault("rate_limit.limit", 60)
	v.SetDefault("rate_limit.window", 60*time.Second)
	v.SetDefault("rate_limit.min_call_interval", time.Second)
	v.SetDefault("rate_limit.call_burst", 60)
	v.SetDefault("rate_limit.action_cooldown", 30*time.Second)

	v.SetDefault("export.dir", ".")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", time.Hour)

	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// Load reads the configuration. path may be empty, in which case
// discogs-sync.yaml is searched in the working directory and in
// $XDG_CONFIG_HOME/discogs-sync; a missing file is not an error.
// Environment variables override file values. The result is validated.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configFileName)
		v.SetConfigType(configFileType)
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "discogs-sync"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Token = strings.TrimSpace(c.Token)
	c.Username = strings.TrimSpace(c.Username)
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	for i := range c.Accounts {
		c.Accounts[i].Name = strings.TrimSpace(c.Accounts[i].Name)
		c.Accounts[i].Token = strings.TrimSpace(c.Accounts[i].Token)
		c.Accounts[i].Username = strings.TrimSpace(c.Accounts[i].Username)
	}
}
