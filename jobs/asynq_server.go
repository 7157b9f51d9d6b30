package jobs

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/expensepay/internal/platform/httpx"
	appshared "github.com/odyssey-erp/expensepay/internal/shared"
)

// Worker wraps the Asynq server and optional scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// TaskHandler allows injecting custom Asynq handlers during worker setup.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// CronRegistration wires a cron expression to a prepared task.
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts   asynq.RedisClientOpt
	Logger      *slog.Logger
	Concurrency int
	Handlers    []TaskHandler
	Cron        []CronRegistration
}

// NewWorker constructs a Worker instance.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueDefault: 2,
			QueueLong:    1,
		},
	})
	mux := asynq.NewServeMux()
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			continue
		}
		mux.HandleFunc(h.Type, h.Handler)
	}

	var scheduler *asynq.Scheduler
	if len(cfg.Cron) > 0 {
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
		for _, entry := range cfg.Cron {
			if entry.Spec == "" || entry.Task == nil {
				continue
			}
			if _, err := scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
				return nil, err
			}
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: cfg.Logger}, nil
}

// Run starts processing jobs until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return err
		}
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		return err
	}
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// EnqueueGLSync schedules a missing GL entry sync.
func (c *Client) EnqueueGLSync(ctx context.Context) (appshared.JobHandle, error) {
	task, err := NewGLSyncTask(GLSyncPayload{RequestedBy: appshared.ActorID(ctx)})
	if err != nil {
		return appshared.JobHandle{}, err
	}
	return c.enqueue(ctx, task, asynq.Queue(QueueLong), asynq.Timeout(GLSyncTimeout), asynq.MaxRetry(1))
}

// EnqueueCostCenterUpdate schedules a batch correction run.
func (c *Client) EnqueueCostCenterUpdate(ctx context.Context, runName string) (appshared.JobHandle, error) {
	task, err := NewCostCenterUpdateTask(CostCenterUpdatePayload{Run: runName, RequestedBy: appshared.ActorID(ctx)})
	if err != nil {
		return appshared.JobHandle{}, err
	}
	return c.enqueue(ctx, task, asynq.Queue(QueueLong), asynq.Timeout(CostCenterUpdateTimeout), asynq.MaxRetry(0))
}

// EnqueueSingleCostCenterUpdate schedules the correction of one document.
func (c *Client) EnqueueSingleCostCenterUpdate(ctx context.Context, entryName, runName string) (appshared.JobHandle, error) {
	task, err := NewCostCenterUpdateSingleTask(CostCenterUpdateSinglePayload{
		ExpenseEntry: entryName,
		Run:          runName,
		RequestedBy:  appshared.ActorID(ctx),
	})
	if err != nil {
		return appshared.JobHandle{}, err
	}
	return c.enqueue(ctx, task, asynq.Queue(QueueLong), asynq.Timeout(CostCenterUpdateSingleTimeout), asynq.MaxRetry(0))
}

// EnqueueGLIntegrity schedules a ledger balance check.
func (c *Client) EnqueueGLIntegrity(ctx context.Context) (appshared.JobHandle, error) {
	return c.enqueue(ctx, NewGLIntegrityTask(), asynq.Queue(QueueDefault))
}

func (c *Client) enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (appshared.JobHandle, error) {
	info, err := c.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return appshared.JobHandle{}, err
	}
	return appshared.JobHandle{JobID: info.ID, Queue: info.Queue}, nil
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}

// Handler exposes HTTP endpoints for job observability.
type Handler struct {
	inspector *asynq.Inspector
	logger    *slog.Logger
}

// NewHandler constructs an HTTP handler for jobs endpoints.
func NewHandler(inspector *asynq.Inspector, logger *slog.Logger) *Handler {
	return &Handler{inspector: inspector, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/jobs/health", h.health)
}

type queueHealth struct {
	Queue   string `json:"queue"`
	Pending int    `json:"pending"`
	Active  int    `json:"active"`
	Failed  int    `json:"failed"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	queues := []string{QueueDefault, QueueLong}
	out := make([]queueHealth, 0, len(queues))
	for _, name := range queues {
		if h.inspector == nil {
			out = append(out, queueHealth{Queue: name})
			continue
		}
		info, err := h.inspector.GetQueueInfo(name)
		if err != nil {
			// A queue that never received a task does not exist yet.
			if errors.Is(err, asynq.ErrQueueNotFound) {
				out = append(out, queueHealth{Queue: name})
				continue
			}
			h.logger.Warn("jobs health", slog.String("queue", name), slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
			return
		}
		out = append(out, queueHealth{Queue: info.Queue, Pending: info.Pending, Active: info.Active, Failed: info.Failed})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"queues": out})
}
