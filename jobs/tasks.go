package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskEstimateExpireSweep marks lapsed draft and sent estimates as expired.
	TaskEstimateExpireSweep = "estimate:expire_sweep"
)

// ExpireSweepPayload carries the reference time for a sweep run. A zero
// AsOf means "now at processing time".
type ExpireSweepPayload struct {
	AsOf time.Time `json:"as_of"`
}

// NewExpireSweepTask constructs an Asynq task for an expiry sweep.
func NewExpireSweepTask(payload ExpireSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskEstimateExpireSweep, data), nil
}
