package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueLong carries scans that may run for minutes.
	QueueLong = "long"
)

// Task types handled by the worker.
const (
	TaskGLSync                 = "expensepay:gl_sync"
	TaskCostCenterUpdate       = "expensepay:cost_center_update"
	TaskCostCenterUpdateSingle = "expensepay:cost_center_update_single"
	TaskGLIntegrity            = "expensepay:gl_integrity"
)

// Wall-clock limits applied at enqueue time.
const (
	CostCenterUpdateTimeout       = time.Hour
	CostCenterUpdateSingleTimeout = 10 * time.Minute
	GLSyncTimeout                 = time.Hour
)

// GLSyncPayload requests a missing GL entry sync.
type GLSyncPayload struct {
	RequestedBy string `json:"requested_by,omitempty"`
}

// CostCenterUpdatePayload requests a batch correction run.
type CostCenterUpdatePayload struct {
	Run         string `json:"run"`
	RequestedBy string `json:"requested_by,omitempty"`
}

// CostCenterUpdateSinglePayload requests the correction of one document.
type CostCenterUpdateSinglePayload struct {
	ExpenseEntry string `json:"expense_entry"`
	Run          string `json:"run"`
	RequestedBy  string `json:"requested_by,omitempty"`
}

// NewGLSyncTask constructs an Asynq task.
func NewGLSyncTask(payload GLSyncPayload) (*asynq.Task, error) {
	return newTask(TaskGLSync, payload)
}

// NewCostCenterUpdateTask constructs an Asynq task.
func NewCostCenterUpdateTask(payload CostCenterUpdatePayload) (*asynq.Task, error) {
	return newTask(TaskCostCenterUpdate, payload)
}

// NewCostCenterUpdateSingleTask constructs an Asynq task.
func NewCostCenterUpdateSingleTask(payload CostCenterUpdateSinglePayload) (*asynq.Task, error) {
	return newTask(TaskCostCenterUpdateSingle, payload)
}

// NewGLIntegrityTask constructs the nightly ledger balance check.
func NewGLIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskGLIntegrity, nil)
}

func newTask(kind string, payload any) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(kind, data), nil
}
