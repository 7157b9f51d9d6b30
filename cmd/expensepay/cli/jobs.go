package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/hibiken/asynq"

	appshared "github.com/odyssey-erp/expensepay/internal/shared"
	"github.com/odyssey-erp/expensepay/jobs"
)

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    *jobs.Client
	inspector *asynq.Inspector
}

// NewJobsCLI initialises the CLI helpers against the given Redis connection.
func NewJobsCLI(opts asynq.RedisClientOpt) *JobsCLI {
	return &JobsCLI{client: jobs.NewClient(opts), inspector: asynq.NewInspector(opts)}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var errs []error
	if c.inspector != nil {
		errs = append(errs, c.inspector.Close())
	}
	if c.client != nil {
		errs = append(errs, c.client.Close())
	}
	return errors.Join(errs...)
}

// TriggerParams names the job and the documents it targets.
type TriggerParams struct {
	Job string
	// Run is the tracking document for cost-center updates.
	Run string
	// Entry is the Expenses Entry for a single-document update.
	Entry string
}

// Trigger enqueues a supported job.
func (c *JobsCLI) Trigger(ctx context.Context, p TriggerParams) (appshared.JobHandle, error) {
	if c == nil || c.client == nil {
		return appshared.JobHandle{}, errors.New("jobs cli: client not configured")
	}
	switch p.Job {
	case jobs.TaskGLSync:
		return c.client.EnqueueGLSync(ctx)
	case jobs.TaskGLIntegrity:
		return c.client.EnqueueGLIntegrity(ctx)
	case jobs.TaskCostCenterUpdate:
		if p.Run == "" {
			return appshared.JobHandle{}, errors.New("jobs cli: --run is required")
		}
		return c.client.EnqueueCostCenterUpdate(ctx, p.Run)
	case jobs.TaskCostCenterUpdateSingle:
		if p.Run == "" || p.Entry == "" {
			return appshared.JobHandle{}, errors.New("jobs cli: --run and --entry are required")
		}
		return c.client.EnqueueSingleCostCenterUpdate(ctx, p.Entry, p.Run)
	default:
		return appshared.JobHandle{}, fmt.Errorf("jobs cli: unsupported job %s", p.Job)
	}
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
}

// InspectQueues reports metrics for every queue the worker consumes. A queue
// that never received a task reports zeros.
func (c *JobsCLI) InspectQueues(ctx context.Context) ([]QueueStats, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	var out []QueueStats
	for _, name := range []string{jobs.QueueDefault, jobs.QueueLong} {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stats := QueueStats{Queue: name}
		info, err := c.inspector.GetQueueInfo(name)
		switch {
		case errors.Is(err, asynq.ErrQueueNotFound):
		case err != nil:
			return nil, err
		default:
			stats.Pending = info.Pending
			stats.Active = info.Active
			stats.Scheduled = info.Scheduled
			stats.Retry = info.Retry
			stats.Archived = info.Archived
		}
		out = append(out, stats)
	}
	return out, nil
}

// JobsOptions defines the flags of the jobs command.
type JobsOptions struct {
	// Action is "trigger" or "stats".
	Action     string
	Trigger    TriggerParams
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// JobsCommand executes a jobs sub-command and returns the process exit code.
func (c *JobsCLI) JobsCommand(ctx context.Context, opts JobsOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	switch opts.Action {
	case "trigger":
		handle, err := c.Trigger(ctx, opts.Trigger)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "jobs trigger: %v\n", err)
			return 1
		}
		if opts.JSONOutput {
			_ = json.NewEncoder(opts.Stdout).Encode(handle)
			return 0
		}
		_, _ = fmt.Fprintf(opts.Stdout, "enqueued %s as %s on queue %s\n", opts.Trigger.Job, handle.JobID, handle.Queue)
		return 0
	case "stats":
		stats, err := c.InspectQueues(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "jobs stats: %v\n", err)
			return 1
		}
		if opts.JSONOutput {
			_ = json.NewEncoder(opts.Stdout).Encode(stats)
			return 0
		}
		tw := tabwriter.NewWriter(opts.Stdout, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "QUEUE\tPENDING\tACTIVE\tSCHEDULED\tRETRY\tARCHIVED")
		for _, s := range stats {
			_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\n", s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived)
		}
		_ = tw.Flush()
		return 0
	default:
		_, _ = fmt.Fprintf(opts.Stderr, "jobs: unknown action %q (expected trigger or stats)\n", opts.Action)
		return 2
	}
}
