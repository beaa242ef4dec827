package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/kinsync/internal/common"
	"github.com/dmitrijs2005/kinsync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue() (*Queue, *fakeJobs) {
	conns := newFakeConnections(
		models.Connection{ID: "c1", UserID: "u1", Provider: models.ProviderGoogle, Active: true},
		models.Connection{ID: "c2", UserID: "u1", Provider: models.ProviderMicrosoft},
	)
	jobs := newFakeJobs()
	q := NewQueue(conns, jobs, 0)
	q.now = func() time.Time { return fixedNow }
	return q, jobs
}

func TestEnqueue_CreatesPendingJob(t *testing.T) {
	q, jobs := newTestQueue()

	job, err := q.Enqueue(context.Background(), EnqueueRequest{ConnectionID: "c1", UserID: "u1"})
	require.NoError(t, err)

	stored := jobs.get(job.ID)
	assert.Equal(t, models.JobPending, stored.Status)
	assert.Equal(t, models.DirectionBoth, stored.Direction)
	assert.Equal(t, models.ProviderGoogle, stored.Provider)
	assert.Equal(t, DefaultMaxAttempts, stored.MaxAttempts)
	assert.Equal(t, fixedNow, stored.RunAfter)
	assert.Equal(t, fixedNow, stored.CreatedAt)
}

func TestEnqueue_Rejections(t *testing.T) {
	tests := []struct {
		name string
		req  EnqueueRequest
		want error
	}{
		{"missing user", EnqueueRequest{ConnectionID: "c1"}, common.ErrInvalidRecord},
		{"bad direction", EnqueueRequest{ConnectionID: "c1", UserID: "u1", Direction: "sideways"}, common.ErrInvalidRecord},
		{"unknown connection", EnqueueRequest{ConnectionID: "nope", UserID: "u1"}, common.ErrorNotFound},
		{"other user's connection", EnqueueRequest{ConnectionID: "c1", UserID: "u2"}, common.ErrorNotFound},
		{"inactive connection", EnqueueRequest{ConnectionID: "c2", UserID: "u1"}, common.ErrConnectionInactive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, jobs := newTestQueue()
			_, err := q.Enqueue(context.Background(), tt.req)
			require.ErrorIs(t, err, tt.want)
			assert.Empty(t, jobs.order)
		})
	}
}
