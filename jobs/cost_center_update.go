package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/expensepay/internal/correction"
	jobmetrics "github.com/odyssey-erp/expensepay/internal/jobs"
	appshared "github.com/odyssey-erp/expensepay/internal/shared"
)

// ErrRunLocked is returned when another worker holds the run's lock.
var ErrRunLocked = errors.New("jobs: cost center update already running")

// CostCenterRunner executes correction runs.
type CostCenterRunner interface {
	Run(ctx context.Context, runName string) (correction.Summary, error)
	RunSingle(ctx context.Context, entryName, runName string) (correction.Summary, error)
}

// CostCenterUpdateJob executes batch and single cost-center corrections.
// Each run holds a Redis lock keyed by its tracking document. LockTTL caps
// the lock lifetime; zero uses the task timeout.
type CostCenterUpdateJob struct {
	Runner  CostCenterRunner
	Locker  *redislock.Client
	LockTTL time.Duration
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewCostCenterUpdateJob initialises the correction handler.
func NewCostCenterUpdateJob(runner CostCenterRunner, locker *redislock.Client, logger *slog.Logger, metrics *jobmetrics.Metrics) *CostCenterUpdateJob {
	return &CostCenterUpdateJob{Runner: runner, Locker: locker, Logger: logger, Metrics: metrics}
}

// Handle processes TaskCostCenterUpdate tasks.
func (j *CostCenterUpdateJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Runner == nil {
		return errors.New("cost center update: handler not configured")
	}
	var payload CostCenterUpdatePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.Run == "" {
		return asynq.SkipRetry
	}
	return j.execute(ctx, TaskCostCenterUpdate, payload.Run, payload.RequestedBy, CostCenterUpdateTimeout,
		func(ctx context.Context) (correction.Summary, error) {
			return j.Runner.Run(ctx, payload.Run)
		})
}

// HandleSingle processes TaskCostCenterUpdateSingle tasks.
func (j *CostCenterUpdateJob) HandleSingle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Runner == nil {
		return errors.New("cost center update: handler not configured")
	}
	var payload CostCenterUpdateSinglePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.Run == "" || payload.ExpenseEntry == "" {
		return asynq.SkipRetry
	}
	return j.execute(ctx, TaskCostCenterUpdateSingle, payload.Run, payload.RequestedBy, CostCenterUpdateSingleTimeout,
		func(ctx context.Context) (correction.Summary, error) {
			return j.Runner.RunSingle(ctx, payload.ExpenseEntry, payload.Run)
		})
}

func (j *CostCenterUpdateJob) execute(ctx context.Context, task, run, requestedBy string, ttl time.Duration,
	fn func(context.Context) (correction.Summary, error)) (resultErr error) {
	tracker := j.metrics().Track(task)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()
	logger := j.logger(task).With(slog.String("run", run))

	if j.LockTTL > 0 {
		ttl = j.LockTTL
	}
	if j.Locker != nil {
		lock, err := j.Locker.Obtain(ctx, appshared.CorrectionLockKey(run), ttl, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			logger.Warn("run locked by another worker")
			return fmt.Errorf("%w: %s: %w", ErrRunLocked, run, asynq.SkipRetry)
		}
		if err != nil {
			return fmt.Errorf("cost center update: obtain lock: %w", err)
		}
		defer func() {
			// The job context may already be cancelled by its deadline.
			_ = lock.Release(context.WithoutCancel(ctx))
		}()
	}

	if requestedBy != "" {
		ctx = appshared.ContextWithActor(ctx, appshared.Actor{ID: requestedBy, Method: "job"})
	}
	start := time.Now()
	summary, err := fn(ctx)
	if err != nil {
		logger.Error("cost center update failed", slog.Any("error", err))
		if errors.Is(err, correction.ErrRunNotFound) || errors.Is(err, correction.ErrInvalidRequest) {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	}
	j.metrics().AddCostCenterLines(summary.Updated, summary.Skipped)
	logger.Info("cost center update completed",
		slog.Int("processed", summary.Processed),
		slog.Int("updated", summary.Updated),
		slog.Int("skipped", summary.Skipped),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *CostCenterUpdateJob) logger(task string) *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", task))
	}
	return slog.Default().With(slog.String("job", task))
}

func (j *CostCenterUpdateJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
