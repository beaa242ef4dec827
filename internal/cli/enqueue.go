package cli

import (
	"fmt"

	"github.com/dmitrijs2005/kinsync/internal/jobs"
	"github.com/dmitrijs2005/kinsync/internal/models"
	"github.com/spf13/cobra"
)

type EnqueueOptions struct {
	*RootOptions
	ConnectionID string
	UserID       string
	Direction    string
}

func NewEnqueueCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EnqueueOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Queue a sync job for a connection",
		Long: `Queue a sync job. Running workers pick it up immediately.

Examples:
  syncctl enqueue --connection 9b1e... --user 3f2c...
  syncctl enqueue --connection 9b1e... --user 3f2c... --direction export`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer e.Close()

			q := jobs.NewQueue(e.rm.Connections(e.db), e.rm.SyncJobs(e.db), e.cfg.MaxAttempts)
			job, err := q.Enqueue(cmd.Context(), jobs.EnqueueRequest{
				ConnectionID: opts.ConnectionID,
				UserID:       opts.UserID,
				Direction:    models.Direction(opts.Direction),
			})
			if err != nil {
				return fmt.Errorf("enqueue: %w", err)
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), jobView(job))
			}
			fmt.Fprintln(cmd.OutOrStdout(), job.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.ConnectionID, "connection", "", "connection id (required)")
	_ = cmd.MarkFlagRequired("connection")
	cmd.Flags().StringVar(&opts.UserID, "user", "", "owning user id (required)")
	_ = cmd.MarkFlagRequired("user")
	cmd.Flags().StringVar(&opts.Direction, "direction", "both", "import|export|both")

	return cmd
}
