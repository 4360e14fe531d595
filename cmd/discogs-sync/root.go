package main

import (
	"strings"
	"sync"

	"github.com/Sternrassler/discogs-sync/internal/config"
	"github.com/Sternrassler/discogs-sync/pkg/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var logLevelFlag string
	var accountFlags []string

	ctx := newCommandContext(&configFlag, &logLevelFlag)
	ctx.accountFlags = &accountFlags

	rootCmd := &cobra.Command{
		Use:           "discogs-sync",
		Short:         "Rate-limited Discogs collection poller and exporter",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Override log.level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringSliceVarP(&accountFlags, "account", "a", nil, "Limit the command to these accounts (default all)")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newPollCommand(ctx))
	rootCmd.AddCommand(newExportCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))

	return rootCmd
}

type commandContext struct {
	configFlag   *string
	logLevelFlag *string
	accountFlags *[]string

	configOnce sync.Once
	config     *config.Config
	logger     zerolog.Logger
	configErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
		logger:       zerolog.Nop(),
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.logLevelFlag != nil && *c.logLevelFlag != "" {
			if _, err := logging.ParseLevel(*c.logLevelFlag); err != nil {
				c.configErr = err
				return
			}
			cfg.Log.Level = *c.logLevelFlag
		}
		c.config = cfg
		c.logger = logging.Setup(cfg.LoggingConfig())
	})
	return c.config, c.configErr
}

// accounts returns the accounts selected with --account.
func (c *commandContext) accounts(cfg *config.Config) ([]config.Account, error) {
	var names []string
	if c.accountFlags != nil {
		names = *c.accountFlags
	}
	return selectAccounts(cfg, names)
}

// selectAccounts returns the resolved accounts matching names, or all of
// them when names is empty.
func selectAccounts(cfg *config.Config, names []string) ([]config.Account, error) {
	if len(names) == 0 {
		return cfg.ResolvedAccounts(), nil
	}
	out := make([]config.Account, 0, len(names))
	for _, name := range names {
		a, ok := cfg.Account(name)
		if !ok {
			return nil, errUnknownAccount(name)
		}
		out = append(out, a)
	}
	return out, nil
}
