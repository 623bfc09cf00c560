package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/apperrors"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/model"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/service"
)

// Syncer is the part of the sync service a job drives.
type Syncer interface {
	Run(ctx context.Context, kind string, opts service.SyncOptions) (*model.SyncResult, error)
}

// SyncJob runs one sync kind with a fixed lookback.
type SyncJob struct {
	syncer   Syncer
	kind     string
	daysBack int
	timeout  time.Duration
	log      zerolog.Logger
}

// NewSyncJob creates a job for kind. A zero timeout means no deadline.
func NewSyncJob(syncer Syncer, kind string, daysBack int, timeout time.Duration, log zerolog.Logger) *SyncJob {
	return &SyncJob{
		syncer:   syncer,
		kind:     kind,
		daysBack: daysBack,
		timeout:  timeout,
		log:      log.With().Str("job", "sync_"+kind).Logger(),
	}
}

// Name returns the job name.
func (j *SyncJob) Name() string {
	return "sync_" + j.kind
}

// Run executes the sync. A sync of the same kind that is already running
// (started through the API, for instance) is not an error.
func (j *SyncJob) Run() error {
	ctx := context.Background()
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	result, err := j.syncer.Run(ctx, j.kind, service.SyncOptions{DaysBack: j.daysBack})
	if errors.Is(err, apperrors.ErrSyncInProgress) {
		j.log.Info().Msg("sync already running, skipping")
		return nil
	}
	if err != nil {
		return err
	}

	switch result.Status {
	case model.SyncStatusError, model.SyncStatusRateLimited:
		return fmt.Errorf("sync %s finished with %s: %s", j.kind, result.Status, result.Error)
	}
	j.log.Info().Str("status", result.Status).Interface("counts", result.Counts).
		Int("warnings", len(result.Warnings)).Msg("scheduled sync finished")
	return nil
}
