package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/kinsync/internal/logging"
	"github.com/lib/pq"
)

// Channel is the Postgres NOTIFY channel fired when a job becomes pending.
const Channel = "sync_jobs"

type notificationSource interface {
	Listen(channel string) error
	NotificationChannel() <-chan *pq.Notification
	Close() error
}

// Listener turns Postgres notifications into worker wake-ups.
type Listener struct {
	connect func() notificationSource
	wake    chan struct{}
	log     logging.Logger
}

// NewListener prepares a listener on dsn. No connection is made before Run.
func NewListener(dsn string, log logging.Logger) *Listener {
	return newListener(func() notificationSource {
		return pq.NewListener(dsn, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Warn(context.Background(), "job listener event", "event", int(ev), "error", err)
			}
		})
	}, log)
}

func newListener(connect func() notificationSource, log logging.Logger) *Listener {
	return &Listener{connect: connect, wake: make(chan struct{}, 1), log: log}
}

// Wake yields one value per burst of notifications. It is never closed.
func (l *Listener) Wake() <-chan struct{} { return l.wake }

// Run listens until ctx is done. A nil notification follows a reconnect,
// when events may have been missed, and also wakes the workers.
func (l *Listener) Run(ctx context.Context) error {
	src := l.connect()
	defer src.Close()
	if err := src.Listen(Channel); err != nil {
		return fmt.Errorf("listen %s: %w", Channel, err)
	}
	l.log.Info(ctx, "listening for jobs", "channel", Channel)

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-src.NotificationChannel():
			if !ok {
				return nil
			}
			select {
			case l.wake <- struct{}{}:
			default:
			}
		}
	}
}
