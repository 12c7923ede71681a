package async

import (
	"fmt"
	"time"

	"github.com/kelsos/mediagen/internal/client"
	"github.com/kelsos/mediagen/internal/models"
)

// SubmissionError is returned when the creation request is rejected or its
// response carries no task id. StatusCode is zero when no response arrived.
type SubmissionError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *SubmissionError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("submission failed: %v", e.Err)
	}
	return fmt.Sprintf("submission failed: HTTP %d: %s", e.StatusCode, client.Snippet(e.Body))
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// PollError is returned when a status query fails. Polling stops at the first
// failure.
type PollError struct {
	TaskID     string
	StatusCode int
	Body       string
	Elapsed    time.Duration
	Err        error
}

func (e *PollError) Error() string {
	elapsed := e.Elapsed.Round(time.Millisecond)
	if e.StatusCode == 0 {
		return fmt.Sprintf("polling task %s failed after %s: %v", e.TaskID, elapsed, e.Err)
	}
	return fmt.Sprintf("polling task %s failed after %s: HTTP %d: %s",
		e.TaskID, elapsed, e.StatusCode, client.Snippet(e.Body))
}

func (e *PollError) Unwrap() error {
	return e.Err
}

// PollTimeout describes a task that was still pending when the polling budget
// ran out. It is reported inside PollOutcome, not as an error.
type PollTimeout struct {
	TaskID     string
	Elapsed    time.Duration
	LastStatus models.TaskStatus
}

func (t *PollTimeout) String() string {
	return fmt.Sprintf("task %s still %s after %s", t.TaskID, t.LastStatus, t.Elapsed.Round(time.Second))
}
