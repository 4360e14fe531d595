package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/Sternrassler/discogs-sync/pkg/cache"
	"github.com/Sternrassler/discogs-sync/pkg/sensor"
	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the state another instance published to Redis",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Redis.Addr == "" {
				return fmt.Errorf("status reads the Redis mirror; set redis.addr")
			}
			selected, err := ctx.accounts(cfg)
			if err != nil {
				return err
			}

			rc, err := openRedis(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer rc.Close()
			mirror := cache.NewMirror(rc, cfg.Redis.TTL)

			out := cmd.OutOrStdout()
			for _, a := range selected {
				snaps, err := mirror.Entries(cmd.Context(), a.Name)
				if err != nil {
					return fmt.Errorf("account %s: %w", a.Name, err)
				}
				fmt.Fprintf(out, "Account %s\n", a.Name)
				fmt.Fprintln(out, renderSnapshots(snaps))

				quota, err := mirror.GetQuota(cmd.Context(), a.Name)
				if err != nil {
					return fmt.Errorf("account %s: %w", a.Name, err)
				}
				if quota == nil {
					fmt.Fprintln(out, "Rate limit: not published")
					continue
				}
				fmt.Fprintf(out, "Rate limit: %s\n", sensor.RateLimit(*quota).StateString())
				fmt.Fprintf(out, "Remaining %d of %d (%.1f%% used)\n", quota.Remaining, quota.Limit, quota.PercentUsed())
			}
			return nil
		},
	}
}

func renderSnapshots(snaps []cache.Snapshot) string {
	rows := make([][]string, 0, len(snaps))
	for _, s := range snaps {
		value := "-"
		if v, err := s.DecodedValue(); err == nil {
			value = formatValue(v)
		}
		rows = append(rows, []string{
			string(s.Category),
			strconv.FormatBool(s.Available),
			value,
			formatTime(s.SucceededAt),
			strconv.Itoa(s.ConsecutiveFailures),
			s.LastErrorKind,
		})
	}
	return renderTable(
		[]string{"Category", "Available", "Value", "Succeeded", "Failures", "Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}

func formatValue(v cache.Value) string {
	switch v := v.(type) {
	case cache.Count:
		return strconv.Itoa(v.N)
	case cache.PriceStats:
		if v.NoData {
			return "no data"
		}
		return fmt.Sprintf("%.2f / %.2f / %.2f %s", v.Min, v.Median, v.Max, v.Currency)
	case cache.RandomRecord:
		return v.Title
	}
	return "-"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(sensor.TimeFormat)
}
