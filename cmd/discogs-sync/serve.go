package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Sternrassler/discogs-sync/internal/server"
	"github.com/Sternrassler/discogs-sync/pkg/cache"
	"github.com/Sternrassler/discogs-sync/pkg/logging"
	"github.com/spf13/cobra"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var listenFlag string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Poll every account on a schedule and serve sensors and exports over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := ctx.logger
			cmdLog := logging.NewLogger("serve")

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rc, err := openRedis(runCtx, cfg)
			if err != nil {
				return err
			}
			var mirror *cache.Mirror
			if rc != nil {
				defer rc.Close()
				mirror = cache.NewMirror(rc, cfg.Redis.TTL)
				cmdLog.Info().Str("addr", cfg.Redis.Addr).Msg("Publishing state to Redis")
			}

			selected, err := ctx.accounts(cfg)
			if err != nil {
				return err
			}
			runtimes, err := buildRuntimes(cfg, selected, mirror, logger)
			if err != nil {
				return err
			}

			var wg sync.WaitGroup
			accounts := make([]server.Account, 0, len(runtimes))
			for _, rt := range runtimes {
				accounts = append(accounts, rt.serverAccount())
				wg.Add(1)
				go func() {
					defer wg.Done()
					runSchedule(runCtx, rt, cfg.TickInterval)
				}()
			}

			listen := cfg.Server.Listen
			if listenFlag != "" {
				listen = listenFlag
			}
			srv := server.New(accounts, logger)
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start(listen) }()

			select {
			case <-runCtx.Done():
			case err = <-errCh:
				stop()
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if serr := srv.Shutdown(shutdownCtx); serr != nil {
				cmdLog.Warn().Err(serr).Msg("HTTP shutdown incomplete")
			}
			wg.Wait()
			cmdLog.Info().Msg("Stopped")
			return err
		},
	}

	cmd.Flags().StringVar(&listenFlag, "listen", "", "Override server.listen")
	return cmd
}

// runSchedule ticks rt immediately and then every interval until ctx ends.
func runSchedule(ctx context.Context, rt *accountRuntime, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := rt.tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
			rt.logger.Error().Err(err).Msg("Tick failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
