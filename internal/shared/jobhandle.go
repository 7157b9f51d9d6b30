package shared

// JobHandle identifies an enqueued background job.
type JobHandle struct {
	JobID string `json:"job_id"`
	Queue string `json:"queue"`
}
