package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Sternrassler/discogs-sync/pkg/cache"
	"github.com/Sternrassler/discogs-sync/pkg/coordinator"
	"github.com/Sternrassler/discogs-sync/pkg/sensor"
	"github.com/spf13/cobra"
)

func newPollCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Run one refresh cycle and print the resulting sensors",
		Long: "Run one coordinator tick per account and print the sensors.\n" +
			"With --force every category is refreshed regardless of its interval.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			selected, err := ctx.accounts(cfg)
			if err != nil {
				return err
			}
			runtimes, err := buildRuntimes(cfg, selected, nil, ctx.logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, rt := range runtimes {
				var rep coordinator.Report
				if force {
					rep = forceRefresh(cmd, rt)
				} else {
					rep, err = rt.tick(cmd.Context())
					if err != nil {
						return err
					}
				}
				snap := sensor.Capture(rt.coordinator, time.Now())
				fmt.Fprintf(out, "Account %s (%s)\n", snap.Account, valueOr(snap.Username, "unresolved"))
				fmt.Fprintln(out, renderReadings(sensor.Readings(snap)))
				printReport(out, rep)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Refresh every category even if it is fresh")
	return cmd
}

// forceRefresh refreshes each category in order. Failures are collected;
// a local denial defers the rest.
func forceRefresh(cmd *cobra.Command, rt *accountRuntime) coordinator.Report {
	var rep coordinator.Report
	cats := cache.Categories()
	for i, cat := range cats {
		err := rt.coordinator.Refresh(cmd.Context(), cat, time.Now())
		switch {
		case err == nil:
			rep.Refreshed = append(rep.Refreshed, cat)
		case isDenial(err):
			rep.Deferred = append(rep.Deferred, cats[i:]...)
			return rep
		default:
			rep.Failed = append(rep.Failed, cat)
		}
	}
	return rep
}

func renderReadings(readings []sensor.Reading) string {
	rows := make([][]string, 0, len(readings))
	for _, r := range readings {
		updated := ""
		if r.LastUpdated != nil {
			updated = r.LastUpdated.Local().Format(sensor.TimeFormat)
		}
		rows = append(rows, []string{r.Name, r.StateString(), updated, r.LastError})
	}
	return renderTable(
		[]string{"Sensor", "State", "Updated", "Error"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft},
	)
}

func printReport(w io.Writer, rep coordinator.Report) {
	line := func(label string, cats []cache.Category) {
		if len(cats) == 0 {
			return
		}
		names := make([]string, len(cats))
		for i, c := range cats {
			names[i] = string(c)
		}
		fmt.Fprintf(w, "%s: %s\n", label, strings.Join(names, ", "))
	}
	line("Refreshed", rep.Refreshed)
	line("Deferred", rep.Deferred)
	line("Failed", rep.Failed)
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
