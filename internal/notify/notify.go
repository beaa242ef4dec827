// Package notify delivers sync progress notifications to per-user channels.
package notify

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/kinsync/internal/models"
)

type Phase string

const (
	PhaseStarted   Phase = "started"
	PhaseCompleted Phase = "completed"
	PhaseFailed    Phase = "failed"
)

type Notification struct {
	UserID       string           `json:"user_id"`
	ConnectionID string           `json:"connection_id"`
	JobID        string           `json:"job_id"`
	Channel      string           `json:"channel"`
	Phase        Phase            `json:"phase"`
	Stats        models.SyncStats `json:"stats"`
	Error        string           `json:"error,omitempty"`
}

// Channel is the per-user channel name notifications are published on.
func Channel(userID string) string {
	return "sync:user:" + userID
}

// New builds a notification for job, addressed to its user's channel.
func New(job *models.SyncJob, phase Phase, stats models.SyncStats, err error) Notification {
	n := Notification{
		UserID:       job.UserID,
		ConnectionID: job.ConnectionID,
		JobID:        job.ID,
		Channel:      Channel(job.UserID),
		Phase:        phase,
		Stats:        stats,
	}
	if err != nil {
		n.Error = err.Error()
	}
	return n
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Multi fans a notification out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, nt := range m {
		if err := nt.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type nop struct{}

func (nop) Notify(context.Context, Notification) error { return nil }

// Nop discards notifications.
func Nop() Notifier { return nop{} }
