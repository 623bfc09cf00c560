package scheduler

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/apperrors"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/model"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/service"
)

type fakeSyncer struct {
	calls  []string
	opts   []service.SyncOptions
	result *model.SyncResult
	err    error
}

func (f *fakeSyncer) Run(_ context.Context, kind string, opts service.SyncOptions) (*model.SyncResult, error) {
	f.calls = append(f.calls, kind)
	f.opts = append(f.opts, opts)
	return f.result, f.err
}

func TestAddJob(t *testing.T) {
	s := New(zerolog.Nop())
	job := NewSyncJob(&fakeSyncer{}, model.SyncKindAll, 730, 0, zerolog.Nop())

	require.NoError(t, s.AddJob("0 8 * * *", job))
	require.NoError(t, s.AddJob("@every 6h", job))
	assert.Error(t, s.AddJob("every morning", job))
	assert.Len(t, s.cron.Entries(), 2)
}

func TestSyncJob_Run(t *testing.T) {
	t.Run("passes kind and lookback", func(t *testing.T) {
		syncer := &fakeSyncer{result: &model.SyncResult{Status: model.SyncStatusSuccess}}
		job := NewSyncJob(syncer, model.SyncKindMarketData, 7, 0, zerolog.Nop())

		require.NoError(t, New(zerolog.Nop()).RunNow(job))
		assert.Equal(t, []string{model.SyncKindMarketData}, syncer.calls)
		assert.Equal(t, 7, syncer.opts[0].DaysBack)
		assert.Equal(t, "sync_market_data", job.Name())
	})

	t.Run("partial success is not a failure", func(t *testing.T) {
		syncer := &fakeSyncer{result: &model.SyncResult{Status: model.SyncStatusPartialSuccess, Warnings: []string{"x"}}}
		assert.NoError(t, NewSyncJob(syncer, model.SyncKindAll, 730, 0, zerolog.Nop()).Run())
	})

	t.Run("running sync is skipped", func(t *testing.T) {
		syncer := &fakeSyncer{err: apperrors.ErrSyncInProgress}
		assert.NoError(t, NewSyncJob(syncer, model.SyncKindAll, 730, 0, zerolog.Nop()).Run())
	})

	t.Run("error and rate limit statuses fail the job", func(t *testing.T) {
		for _, status := range []string{model.SyncStatusError, model.SyncStatusRateLimited} {
			syncer := &fakeSyncer{result: &model.SyncResult{Status: status, Error: "boom"}}
			assert.Error(t, NewSyncJob(syncer, model.SyncKindAll, 730, 0, zerolog.Nop()).Run(), status)
		}
	})
}
