package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/discogs-sync/pkg/export"
	"github.com/Sternrassler/discogs-sync/pkg/ratelimit"
	"github.com/spf13/cobra"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var pathFlag string
	var persist bool

	cmd := &cobra.Command{
		Use:       "export <collection|wantlist>",
		Short:     "Download a full collection or wantlist",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(export.KindCollection), string(export.KindWantlist)},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := export.ParseKind(args[0])
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			selected, err := ctx.accounts(cfg)
			if err != nil {
				return err
			}
			if len(selected) != 1 {
				return fmt.Errorf("export needs exactly one account, got %d (use --account)", len(selected))
			}
			rt, err := newAccountRuntime(cfg, selected[0], nil, ctx.logger)
			if err != nil {
				return err
			}

			if _, err := rt.coordinator.ResolveUsername(cmd.Context(), time.Now()); err != nil {
				return err
			}
			res, err := rt.action.Invoke(cmd.Context(), export.Request{
				Kind:        kind,
				Destination: pathFlag,
				Persist:     persist || pathFlag != "",
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Exported %d %s items (job %s)\n", res.ItemCount, res.Kind, res.JobID)
			switch {
			case res.Persisted:
				fmt.Fprintf(out, "Written to %s\n", res.Destination)
			case res.PersistErr != nil:
				return fmt.Errorf("write %s: %w", res.Destination, res.PersistErr)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&pathFlag, "path", "o", "", "Destination file (.json or .yaml); implies --persist")
	cmd.Flags().BoolVar(&persist, "persist", false, "Write the export to export.dir")
	return cmd
}

func isDenial(err error) bool {
	var denial *ratelimit.DenialError
	return errors.As(err, &denial)
}
