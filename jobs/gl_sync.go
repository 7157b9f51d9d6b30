package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/expensepay/internal/jobs"
	"github.com/odyssey-erp/expensepay/internal/reconcile"
	appshared "github.com/odyssey-erp/expensepay/internal/shared"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Syncer posts ledger lines for submitted documents missing them.
type Syncer interface {
	Sync(ctx context.Context, sink appshared.Notifier) ([]string, error)
}

// GLSyncJob runs the missing GL entry sync in the background. Overlapping
// runs are dropped.
type GLSyncJob struct {
	Syncer  Syncer
	Locker  *redislock.Client
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewGLSyncJob initialises the sync handler.
func NewGLSyncJob(syncer Syncer, locker *redislock.Client, logger *slog.Logger, metrics *jobmetrics.Metrics) *GLSyncJob {
	return &GLSyncJob{Syncer: syncer, Locker: locker, Logger: logger, Metrics: metrics}
}

// Handle processes TaskGLSync tasks. Validation problems are reported through
// the log and metrics and do not fail the task; postings already made stay.
func (j *GLSyncJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Syncer == nil {
		return errors.New("gl sync: handler not configured")
	}
	var payload GLSyncPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	tracker := j.metrics().Track(TaskGLSync)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()
	logger := j.logger()

	if j.Locker != nil {
		lock, err := j.Locker.Obtain(ctx, appshared.GLSyncLockKey(), GLSyncTimeout, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			logger.Info("gl sync already running, skipping")
			return nil
		}
		if err != nil {
			return err
		}
		defer func() { _ = lock.Release(context.WithoutCancel(ctx)) }()
	}

	if payload.RequestedBy != "" {
		ctx = appshared.ContextWithActor(ctx, appshared.Actor{ID: payload.RequestedBy, Method: "job"})
	}
	start := time.Now()
	posted, err := j.Syncer.Sync(ctx, appshared.LogNotifier{Logger: logger})
	var verrs *reconcile.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		for _, msg := range verrs.Messages {
			logger.Warn("gl sync problem", slog.String("detail", msg))
		}
		j.metrics().AddSynced(len(posted), len(verrs.Messages))
	case err != nil:
		logger.Error("gl sync failed", slog.Int("posted", len(posted)), slog.Any("error", err))
		j.metrics().AddSynced(len(posted), 0)
		return err
	default:
		j.metrics().AddSynced(len(posted), 0)
	}
	logger.Info("gl sync completed", slog.Int("posted", len(posted)), slog.Duration("duration", time.Since(start)))
	return nil
}

func (j *GLSyncJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskGLSync))
	}
	return slog.Default().With(slog.String("job", TaskGLSync))
}

func (j *GLSyncJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
