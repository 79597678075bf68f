package types

import (
	"fmt"
	"time"
)

// Intake states. A governed intake moves draft → submitting → one of
// recorded, failed or queued. A queued intake may later move to recorded
// or failed when the queue is replayed.
const (
	IntakeDraft      = "draft"
	IntakeSubmitting = "submitting"
	IntakeRecorded   = "recorded"
	IntakeFailed     = "failed"
	IntakeQueued     = "queued"
)

var intakeTransitions = map[string][]string{
	IntakeDraft:      {IntakeSubmitting},
	IntakeSubmitting: {IntakeRecorded, IntakeFailed, IntakeQueued},
	IntakeQueued:     {IntakeRecorded, IntakeFailed},
}

// IntakeRequest is a public-records request as entered by a resident.
// SubmissionID is stable across retries of the same draft and keys the
// uploaded document, so a resubmission overwrites rather than duplicates.
type IntakeRequest struct {
	SubmissionID string    `json:"submission_id" yaml:"submission_id" validate:"required"`
	Name         string    `json:"name" yaml:"name" validate:"required,max=255"`
	Email        string    `json:"email" yaml:"email" validate:"required,email"`
	Phone        string    `json:"phone,omitempty" yaml:"phone,omitempty" validate:"omitempty,max=40"`
	Request      string    `json:"request" yaml:"request" validate:"required,max=10000"`
	Category     string    `json:"category,omitempty" yaml:"category,omitempty" validate:"omitempty,max=100"`
	SubmittedAt  time.Time `json:"submitted_at" yaml:"submitted_at" validate:"required"`
}

// Intake tracks one submission attempt through its states.
type Intake struct {
	Request IntakeRequest
	State   string
}

// NewIntake returns an intake in the draft state.
func NewIntake(req IntakeRequest) *Intake {
	return &Intake{Request: req, State: IntakeDraft}
}

// Transition moves the intake to state. It returns ErrInvalidTransition if
// the move is not allowed from the current state. Recorded and failed are
// terminal.
func (in *Intake) Transition(state string) error {
	for _, next := range intakeTransitions[in.State] {
		if next == state {
			in.State = state
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, in.State, state)
}

// Terminal reports whether no further transition is possible.
func (in *Intake) Terminal() bool {
	return len(intakeTransitions[in.State]) == 0
}

// IntakeResult is what a governed intake submission produced.
type IntakeResult struct {
	SubmissionID string    `json:"submission_id"`
	CaseID       string    `json:"case_id,omitempty"`
	FolderPath   string    `json:"folder_path"`
	RemoteItemID string    `json:"remote_item_id,omitempty"`
	DocumentURL  string    `json:"document_url,omitempty"`
	Deadline     time.Time `json:"deadline"`
	State        string    `json:"state"`
	QueueID      string    `json:"queue_id,omitempty"`
}

// Intake steps, reported by IntakeError.
const (
	StepValidate = "validate"
	StepFolder   = "ensure_folder"
	StepCompose  = "compose_document"
	StepUpload   = "upload_document"
	StepLookup   = "lookup_item"
	StepCreate   = "create_item"
	StepCaseID   = "store_case_id"
	StepEnqueue  = "enqueue"
)

// IntakeError reports the step at which a governed intake failed. Retrying
// with the same SubmissionID is safe: folder creation is idempotent, the
// document upload overwrites, and an item already carrying the submission
// id is reused.
type IntakeError struct {
	Step         string
	SubmissionID string
	FolderPath   string
	RemoteItemID string
	Err          error
}

func (e *IntakeError) Error() string {
	return fmt.Sprintf("intake %s: %s: %v", e.SubmissionID, e.Step, e.Err)
}

func (e *IntakeError) Unwrap() error { return e.Err }
