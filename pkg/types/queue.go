package types

import "time"

// QueueOp is the write operation a queued submission replays.
type QueueOp string

// Queue operations.
const (
	OpCreate QueueOp = "create"
	OpUpdate QueueOp = "update"
	OpDelete QueueOp = "delete"
	OpIntake QueueOp = "intake"
)

// QueuedSubmission is a write that could not reach the remote store. It is
// removed from the queue once successfully replayed.
type QueuedSubmission struct {
	ID         string         `json:"id"`
	Op         QueueOp        `json:"op"`
	ListName   string         `json:"list_name,omitempty"`
	ItemID     string         `json:"item_id,omitempty"`
	Fields     map[string]any `json:"fields,omitempty"`
	Intake     *IntakeRequest `json:"intake,omitempty"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
	Attempts   int            `json:"attempts"`
	LastError  string         `json:"last_error,omitempty"`
}
