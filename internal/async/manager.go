// Package async drives remote video tasks: it submits the creation request
// and polls the status endpoint until the task settles or the budget runs out.
package async

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/kelsos/mediagen/internal/client"
	"github.com/kelsos/mediagen/internal/logger"
	"github.com/kelsos/mediagen/internal/models"
	"github.com/kelsos/mediagen/internal/responses"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultPollTimeout  = 600 * time.Second
)

type TaskManager struct {
	client       *client.APIClient
	pollInterval time.Duration
	pollTimeout  time.Duration
}

func NewTaskManager(apiClient *client.APIClient, pollInterval, pollTimeout time.Duration) *TaskManager {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if pollTimeout <= 0 {
		pollTimeout = DefaultPollTimeout
	}
	return &TaskManager{
		client:       apiClient,
		pollInterval: pollInterval,
		pollTimeout:  pollTimeout,
	}
}

// PollOptions overrides the manager defaults for one Wait call.
type PollOptions struct {
	Interval   time.Duration
	Timeout    time.Duration
	OnSnapshot func(models.PollResult)
}

// PollOutcome is the result of Wait. Timeout is non-nil when the budget ran
// out before the task reached a terminal status.
type PollOutcome struct {
	Task      *models.Task
	Snapshots []models.PollResult
	Elapsed   time.Duration
	Timeout   *PollTimeout
}

// TimedOut reports whether polling gave up before a terminal status.
func (o *PollOutcome) TimedOut() bool {
	return o.Timeout != nil
}

// ContentEndpoint is the path serving the finished video of taskID.
func ContentEndpoint(taskID string) string {
	return statusEndpoint(taskID) + "/content"
}

func statusEndpoint(taskID string) string {
	return fmt.Sprintf("%s/%s", videosEndpoint, url.PathEscape(taskID))
}

// GetStatus fetches the current remote state of taskID.
func (tm *TaskManager) GetStatus(ctx context.Context, taskID string) (*models.Task, error) {
	var raw client.RawResponse
	if err := tm.client.Get(ctx, statusEndpoint(taskID), &raw); err != nil {
		var httpErr *client.HTTPError
		if errors.As(err, &httpErr) {
			return nil, &PollError{TaskID: taskID, StatusCode: httpErr.StatusCode, Body: httpErr.Body, Err: err}
		}
		return nil, &PollError{TaskID: taskID, Err: err}
	}
	if raw.StatusCode != http.StatusOK {
		return nil, &PollError{
			TaskID:     taskID,
			StatusCode: raw.StatusCode,
			Body:       string(raw.Body),
			Err:        fmt.Errorf("status query returned HTTP %d, want %d", raw.StatusCode, http.StatusOK),
		}
	}

	var status responses.VideoTask
	if err := responses.Decode(raw.Body, &status); err != nil {
		return nil, &PollError{TaskID: taskID, StatusCode: raw.StatusCode, Body: string(raw.Body), Err: err}
	}
	if status.ID != taskID {
		return nil, &PollError{
			TaskID:     taskID,
			StatusCode: raw.StatusCode,
			Body:       string(raw.Body),
			Err:        fmt.Errorf("status response is for task %q", status.ID),
		}
	}

	task := status.Task()
	return &task, nil
}

// Wait polls taskID until it is completed or failed. It queries once
// immediately and then once per interval. When the timeout elapses first the
// outcome carries a PollTimeout and the error is nil. A failed query stops
// polling with a *PollError.
func (tm *TaskManager) Wait(ctx context.Context, taskID string, opts PollOptions) (*PollOutcome, error) {
	interval := opts.Interval
	if interval <= 0 {
		interval = tm.pollInterval
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = tm.pollTimeout
	}

	start := time.Now()
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	outcome := &PollOutcome{Task: &models.Task{ID: taskID, Status: models.TaskStatusUnknown}}
	current := models.TaskStatusUnknown

	timedOut := func() (*PollOutcome, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		outcome.Elapsed = time.Since(start)
		outcome.Timeout = &PollTimeout{TaskID: taskID, Elapsed: outcome.Elapsed, LastStatus: current}
		logger.Warn("Task %s: no terminal status after %v (last status %s)", taskID, outcome.Elapsed.Round(time.Second), current)
		return outcome, nil
	}

	for {
		observed, err := tm.GetStatus(pollCtx, taskID)
		if err != nil {
			if pollCtx.Err() != nil {
				return timedOut()
			}
			var pollErr *PollError
			if errors.As(err, &pollErr) {
				pollErr.Elapsed = time.Since(start)
			}
			return nil, err
		}

		snapshot := models.PollResult{
			TaskID:     taskID,
			Status:     observed.Status,
			RawStatus:  observed.RawStatus,
			Progress:   observed.Progress,
			ObservedAt: time.Now(),
		}
		outcome.Snapshots = append(outcome.Snapshots, snapshot)
		if opts.OnSnapshot != nil {
			opts.OnSnapshot(snapshot)
		}

		next := current.Advance(observed.Status)
		if next != current {
			logger.Info("Task %s: %s -> %s%s", taskID, current, next, progressSuffix(observed.Progress))
		} else if observed.Status != current && observed.Status != models.TaskStatusUnknown {
			logger.Debug("Task %s: ignoring out-of-order status %q", taskID, observed.RawStatus)
		}
		current = next

		merged := *observed
		merged.Status = current
		outcome.Task = &merged

		if current.IsTerminal() {
			outcome.Elapsed = time.Since(start)
			return outcome, nil
		}

		wait := time.NewTimer(interval)
		select {
		case <-pollCtx.Done():
			wait.Stop()
			return timedOut()
		case <-wait.C:
		}
	}
}

func progressSuffix(progress *float64) string {
	if progress == nil {
		return ""
	}
	return fmt.Sprintf(" (%.0f%%)", *progress)
}
