package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrijs2005/kinsync/internal/models"
	"github.com/spf13/cobra"
)

type JobsOptions struct {
	*RootOptions
	ConnectionID string
	Limit        int
}

// JobView is the printed form of a sync job record.
type JobView struct {
	ID         string           `json:"id"`
	Status     models.JobStatus `json:"status"`
	Direction  models.Direction `json:"direction"`
	Attempts   int              `json:"attempts"`
	Created    int              `json:"created"`
	Merged     int              `json:"merged"`
	Skipped    int              `json:"skipped"`
	Exported   int              `json:"exported"`
	Failed     int              `json:"failed"`
	LastError  string           `json:"last_error,omitempty"`
	Errors     []string         `json:"errors,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
}

func jobView(j *models.SyncJob) JobView {
	return JobView{
		ID:         j.ID,
		Status:     j.Status,
		Direction:  j.Direction,
		Attempts:   j.Attempts,
		Created:    j.Stats.Created,
		Merged:     j.Stats.Merged,
		Skipped:    j.Stats.Skipped,
		Exported:   j.Stats.Exported,
		Failed:     j.Stats.Failed,
		LastError:  j.LastError,
		Errors:     j.Stats.Errors,
		CreatedAt:  j.CreatedAt,
		FinishedAt: j.FinishedAt,
	}
}

func NewJobsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JobsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List recent sync jobs of a connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer e.Close()

			list, err := e.rm.SyncJobs(e.db).ListByConnection(cmd.Context(), opts.ConnectionID, opts.Limit)
			if err != nil {
				return err
			}
			views := make([]JobView, 0, len(list))
			for i := range list {
				views = append(views, jobView(&list[i]))
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), views)
			}

			rows := make([][]string, 0, len(views))
			for _, v := range views {
				rows = append(rows, []string{
					v.ID,
					string(v.Status),
					strconv.Itoa(v.Attempts),
					fmt.Sprintf("%d/%d/%d/%d/%d", v.Created, v.Merged, v.Skipped, v.Exported, v.Failed),
					v.CreatedAt.Format(time.RFC3339),
					v.LastError,
				})
			}
			return writeTable(cmd.OutOrStdout(), []string{"ID", "STATUS", "ATTEMPTS", "C/M/S/E/F", "CREATED", "ERROR"}, rows)
		},
	}

	cmd.Flags().StringVar(&opts.ConnectionID, "connection", "", "connection id (required)")
	_ = cmd.MarkFlagRequired("connection")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of jobs")

	return cmd
}
