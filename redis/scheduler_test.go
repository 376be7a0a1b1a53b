package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/monahq/mona/models"
)

type fakeIntegrationLister struct {
	models.IntegrationRepository

	integrations []models.Integration
	err          error
}

func (f *fakeIntegrationLister) ListSyncEnabled(ctx context.Context) ([]models.Integration, error) {
	return f.integrations, f.err
}

type fakeEnqueuer struct {
	enqueued []string
	failFor  map[string]error
}

func (f *fakeEnqueuer) EnqueueSync(ctx context.Context, integrationID string) error {
	if err := f.failFor[integrationID]; err != nil {
		return err
	}

	f.enqueued = append(f.enqueued, integrationID)

	return nil
}

func TestSchedulerTickEnqueuesAll(t *testing.T) {
	repo := &fakeIntegrationLister{integrations: []models.Integration{
		{ID: "integ-1", Provider: models.ProviderGoogleCalendar},
		{ID: "integ-2", Provider: models.ProviderSlack},
	}}
	enq := &fakeEnqueuer{}
	s := NewScheduler(repo, enq, time.Minute, zap.NewNop())

	require.NoError(t, s.tick(context.Background()))
	assert.Equal(t, []string{"integ-1", "integ-2"}, enq.enqueued)
}

func TestSchedulerTickContinuesPastFailures(t *testing.T) {
	repo := &fakeIntegrationLister{integrations: []models.Integration{
		{ID: "integ-1"},
		{ID: "integ-2"},
		{ID: "integ-3"},
	}}
	enq := &fakeEnqueuer{failFor: map[string]error{"integ-2": errors.New("queue full")}}
	s := NewScheduler(repo, enq, time.Minute, zap.NewNop())

	err := s.tick(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"integ-1", "integ-3"}, enq.enqueued)
}

func TestSchedulerTickListFailure(t *testing.T) {
	repo := &fakeIntegrationLister{err: errors.New("db down")}
	enq := &fakeEnqueuer{}
	s := NewScheduler(repo, enq, time.Minute, zap.NewNop())

	require.Error(t, s.tick(context.Background()))
	assert.Empty(t, enq.enqueued)
}

func TestSchedulerRunStopsOnCancel(t *testing.T) {
	repo := &fakeIntegrationLister{}
	s := NewScheduler(repo, &fakeEnqueuer{}, 10*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := s.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
