package jobs

import (
	"fmt"
	"time"

	"mediaconv/internal/convert"
)

// Status represents the lifecycle state of a conversion job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job describes a single media conversion request and its tracked state.
type Job struct {
	ID           string            `json:"id"`
	Type         convert.MediaType `json:"type"`
	Status       Status            `json:"status"`
	InputFile    string            `json:"input_file"`            // file name of the uploaded source within the storage dir
	OutputFile   string            `json:"output_file,omitempty"` // set on completion only
	TargetFormat string            `json:"target_format"`
	Progress     int               `json:"progress"` // percentage in [0,100], never decreases
	Error        string            `json:"error,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Only pending -> processing -> {completed | failed} is valid.
var validTransitions = map[Status]map[Status]bool{
	StatusPending:    {StatusProcessing: true},
	StatusProcessing: {StatusCompleted: true, StatusFailed: true},
}

// SetStatus applies a state transition, rejecting anything outside the
// job state machine. An attempt to leave a terminal state or move
// backwards is a programming error surfaced as an error.
func (j *Job) SetStatus(next Status) error {
	if j.Status == next {
		return nil
	}
	if !validTransitions[j.Status][next] {
		return fmt.Errorf("invalid status transition %s -> %s for job %s", j.Status, next, j.ID)
	}
	j.Status = next
	return nil
}

// SetProgress records reported progress. Values above 100 are clamped,
// decreasing reports are ignored, and updates against a terminal record
// are a no-op so a lingering converter callback cannot disturb the
// final state.
func (j *Job) SetProgress(percent int) {
	if j.Status.Terminal() {
		return
	}
	if percent > 100 {
		percent = 100
	}
	if percent <= j.Progress {
		return
	}
	j.Progress = percent
}

// Complete marks the job completed with the produced artifact name.
func (j *Job) Complete(outputFile string) error {
	if err := j.SetStatus(StatusCompleted); err != nil {
		return err
	}
	j.OutputFile = outputFile
	j.Progress = 100
	j.Error = ""
	return nil
}

// Fail marks the job failed with a human-readable cause.
func (j *Job) Fail(message string) error {
	if err := j.SetStatus(StatusFailed); err != nil {
		return err
	}
	j.Error = message
	j.OutputFile = ""
	return nil
}
