package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/discogs-sync/internal/config"
	"github.com/Sternrassler/discogs-sync/internal/server"
	"github.com/Sternrassler/discogs-sync/pkg/cache"
	"github.com/Sternrassler/discogs-sync/pkg/client"
	"github.com/Sternrassler/discogs-sync/pkg/coordinator"
	"github.com/Sternrassler/discogs-sync/pkg/export"
	"github.com/Sternrassler/discogs-sync/pkg/logging"
	"github.com/Sternrassler/discogs-sync/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func errUnknownAccount(name string) error {
	return fmt.Errorf("unknown account %q", name)
}

// accountRuntime is the component graph of one account. The limiter is
// shared by the coordinator and the exporter.
type accountRuntime struct {
	account     config.Account
	limiter     *ratelimit.Limiter
	client      *client.Client
	coordinator *coordinator.Coordinator
	exporter    *export.Exporter
	action      *export.Action
	logger      zerolog.Logger
}

func newAccountRuntime(cfg *config.Config, a config.Account, mirror *cache.Mirror, logger zerolog.Logger) (*accountRuntime, error) {
	limiter := ratelimit.NewLimiter(cfg.LimiterConfig(a.Name), logger)

	dc, err := client.New(cfg.ClientConfig(a), logger)
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", a.Name, err)
	}

	var opts []coordinator.Option
	if mirror != nil {
		opts = append(opts, coordinator.WithPublisher(mirror))
	}
	co, err := coordinator.New(cfg.CoordinatorConfig(a), dc, limiter, logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", a.Name, err)
	}

	// A finished collection export replaces the random record sample pool.
	exp := export.NewExporter(dc, limiter, co, logger, export.WithHook(func(job *export.Job) {
		if job.Kind == export.KindCollection {
			co.AdoptListing(job.Items, job.FinishedAt)
		}
	}))

	return &accountRuntime{
		account:     a,
		limiter:     limiter,
		client:      dc,
		coordinator: co,
		exporter:    exp,
		action:      export.NewAction(exp, export.FileSink{}, cfg.Export.Dir, logger),
		logger:      logging.ForAccount(logger, "runtime", a.Name),
	}, nil
}

func (rt *accountRuntime) serverAccount() server.Account {
	return server.Account{Name: rt.account.Name, Poller: rt.coordinator, Exporter: rt.action}
}

// tick runs one coordinator tick at the current time and logs its report.
func (rt *accountRuntime) tick(ctx context.Context) (coordinator.Report, error) {
	rep, err := rt.coordinator.Tick(ctx, time.Now())
	if err != nil {
		return rep, err
	}
	if len(rep.Refreshed)+len(rep.Deferred)+len(rep.Failed) > 0 {
		rt.logger.Info().
			Int("refreshed", len(rep.Refreshed)).
			Int("deferred", len(rep.Deferred)).
			Int("failed", len(rep.Failed)).
			Msg("Tick complete")
	}
	return rep, nil
}

func buildRuntimes(cfg *config.Config, accounts []config.Account, mirror *cache.Mirror, logger zerolog.Logger) ([]*accountRuntime, error) {
	out := make([]*accountRuntime, 0, len(accounts))
	for _, a := range accounts {
		rt, err := newAccountRuntime(cfg, a, mirror, logger)
		if err != nil {
			return nil, err
		}
		out = append(out, rt)
	}
	return out, nil
}

// openRedis connects to the configured Redis, or returns nil when the
// mirror is disabled.
func openRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	if cfg.Redis.Addr == "" {
		return nil, nil
	}
	rc := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rc.Ping(pingCtx).Err(); err != nil {
		rc.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
	}
	return rc, nil
}
