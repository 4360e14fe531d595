package config

import (
	"errors"
	"fmt"

	"github.com/Sternrassler/discogs-sync/pkg/cache"
	"github.com/Sternrassler/discogs-sync/pkg/logging"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateAccounts(); err != nil {
		return err
	}
	if err := validateIntervals("intervals", c.Intervals); err != nil {
		return err
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be > 0 (got %s)", c.TickInterval)
	}
	if c.FailureThreshold <= 0 {
		return fmt.Errorf("failure_threshold must be > 0 (got %d)", c.FailureThreshold)
	}
	if c.UserAgent == "" {
		return errors.New("user_agent must be set")
	}
	if err := c.LimiterConfig("").Validate(); err != nil {
		return fmt.Errorf("rate_limit: %w", err)
	}
	if c.Redis.Addr != "" && c.Redis.TTL <= 0 {
		return fmt.Errorf("redis.ttl must be > 0 (got %s)", c.Redis.TTL)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

func (c *Config) validateAccounts() error {
	if len(c.Accounts) == 0 {
		if c.Token == "" {
			return errors.New("token is required. Set DISCOGS_SYNC_TOKEN or add token to discogs-sync.yaml")
		}
		return nil
	}

	seen := make(map[string]bool, len(c.Accounts))
	for i, a := range c.Accounts {
		if a.Name == "" {
			return fmt.Errorf("accounts[%d].name must be set", i)
		}
		if seen[a.Name] {
			return fmt.Errorf("duplicate account name %q", a.Name)
		}
		seen[a.Name] = true
		if a.Token == "" && c.Token == "" {
			return fmt.Errorf("account %q: token is required", a.Name)
		}
		if err := validateIntervals(fmt.Sprintf("accounts[%d].intervals", i), a.Intervals); err != nil {
			return err
		}
	}
	return nil
}

func validateIntervals(field string, intervals map[string]int) error {
	for name, minutes := range intervals {
		if _, err := cache.ParseCategory(name); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		if minutes <= 0 {
			return fmt.Errorf("%s.%s must be a positive number of minutes (got %d)", field, name, minutes)
		}
	}
	return nil
}
