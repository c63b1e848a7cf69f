package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrity re-checks the before/after chain of recent
	// journal entries.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskReorderScan looks for products at or below their reorder point.
	TaskReorderScan = "stock:reorder_scan"
)

// LedgerIntegrityPayload bounds the integrity scan.
type LedgerIntegrityPayload struct {
	WindowHours int `json:"windowHours"`
}

// NewLedgerIntegrityTask constructs an Asynq task.
func NewLedgerIntegrityTask(windowHours int) (*asynq.Task, error) {
	data, err := json.Marshal(LedgerIntegrityPayload{WindowHours: windowHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, data), nil
}

// ReorderScanPayload configures the reorder scan.
type ReorderScanPayload struct {
	Limit int `json:"limit"`
}

// NewReorderScanTask constructs an Asynq task.
func NewReorderScanTask(limit int) (*asynq.Task, error) {
	data, err := json.Marshal(ReorderScanPayload{Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReorderScan, data), nil
}
