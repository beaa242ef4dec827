package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/kinsync/internal/app"
	"github.com/dmitrijs2005/kinsync/internal/config"
	"github.com/spf13/cobra"
)

type onceRunner interface {
	RunOnce(ctx context.Context) (bool, error)
}

var buildRunner = func(ctx context.Context, cfg *config.Config) (onceRunner, func() error, error) {
	a, err := app.NewApp(ctx, cfg, false)
	if err != nil {
		return nil, nil, err
	}
	return a.Runner, a.Close, nil
}

type RunOnceOptions struct {
	*RootOptions
	Max int
}

func NewRunOnceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOnceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run-once",
		Short: "Process due jobs in the foreground and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			r, closeFn, err := buildRunner(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			n := 0
			for opts.Max <= 0 || n < opts.Max {
				processed, err := r.RunOnce(cmd.Context())
				if err != nil {
					return fmt.Errorf("after %d jobs: %w", n, err)
				}
				if !processed {
					break
				}
				n++
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), map[string]int{"processed": n})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "processed %d jobs\n", n)
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.Max, "max", 0, "stop after this many jobs (0 drains the queue)")
	return cmd
}
