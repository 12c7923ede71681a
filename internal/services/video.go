package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kelsos/mediagen/internal/async"
	"github.com/kelsos/mediagen/internal/client"
	"github.com/kelsos/mediagen/internal/config"
	"github.com/kelsos/mediagen/internal/download"
	"github.com/kelsos/mediagen/internal/logger"
	"github.com/kelsos/mediagen/internal/models"
	"github.com/kelsos/mediagen/internal/storage"
)

// State is a step of the video workflow.
type State string

const (
	StateSubmitted      State = "SUBMITTED"
	StateRunning        State = "RUNNING"
	StateCompleted      State = "COMPLETED"
	StateDownloading    State = "DOWNLOADING"
	StateDone           State = "DONE"
	StateFailed         State = "FAILED"
	StateTimedOut       State = "TIMED_OUT"
	StateDownloadFailed State = "DOWNLOAD_FAILED"
)

// IsTerminal reports whether the workflow stops in s.
func (s State) IsTerminal() bool {
	switch s {
	case StateDone, StateFailed, StateTimedOut, StateDownloadFailed:
		return true
	}
	return false
}

// Stage names the part of the workflow that failed.
type Stage string

const (
	StageSubmit   Stage = "submit"
	StagePoll     Stage = "poll"
	StageDownload Stage = "download"
)

// TaskFailedError is reported when the remote service marks the task failed.
type TaskFailedError struct {
	TaskID string
	Reason string
}

func (e *TaskFailedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("task %s failed", e.TaskID)
	}
	return fmt.Sprintf("task %s failed: %s", e.TaskID, e.Reason)
}

// Observer receives workflow events. Calls happen on the goroutine running
// the workflow.
type Observer interface {
	StateChanged(state State, task *models.Task)
	Snapshot(snapshot models.PollResult)
	DownloadProgress(progress download.Progress)
}

type nopObserver struct{}

func (nopObserver) StateChanged(State, *models.Task)   {}
func (nopObserver) Snapshot(models.PollResult)         {}
func (nopObserver) DownloadProgress(download.Progress) {}

// VideoJob is one text-to-video or image-to-video request.
type VideoJob struct {
	Prompt    string
	Model     string
	ImageURL  string
	ImagePath string
	// Output is the target file; empty means a timestamped name in the
	// output directory.
	Output       string
	PollInterval time.Duration
	PollTimeout  time.Duration
}

// Outcome is the structured result of a workflow run. Stage and Err are set
// only when State is not StateDone.
type Outcome struct {
	State       State
	Stage       Stage
	Err         error
	Task        *models.Task
	Snapshots   []models.PollResult
	Timeout     *async.PollTimeout
	Artifact    *models.Artifact
	SidecarPath string
	Elapsed     time.Duration
}

// Succeeded reports whether the video was downloaded.
func (o *Outcome) Succeeded() bool {
	return o.State == StateDone
}

// Diagnostic is a one-line description of a failed run.
func (o *Outcome) Diagnostic() string {
	switch {
	case o.Succeeded():
		return ""
	case o.Timeout != nil:
		return fmt.Sprintf("%s stage timed out: %s", o.Stage, o.Timeout)
	case o.Err != nil:
		return fmt.Sprintf("%s stage failed: %v", o.Stage, o.Err)
	default:
		return fmt.Sprintf("%s stage ended in %s", o.Stage, o.State)
	}
}

// VideoService runs the asynchronous video workflow: submit, poll, download.
type VideoService struct {
	config     *config.Config
	client     *client.APIClient
	tasks      *async.TaskManager
	downloader *download.Downloader
	store      *storage.Store
	observer   Observer
}

// NewVideoService creates a video service with all dependencies
func NewVideoService(cfg *config.Config) *VideoService {
	apiClient := client.NewAPIClient(cfg.BaseURL, cfg.APIKey, cfg.HTTPTimeout)

	return &VideoService{
		config:     cfg,
		client:     apiClient,
		tasks:      async.NewTaskManager(apiClient, cfg.PollInterval, cfg.PollTimeout),
		downloader: download.NewDownloader(apiClient.StreamingHTTPClient(), cfg.ChunkSize),
		store:      storage.New(cfg.OutputDir),
		observer:   nopObserver{},
	}
}

// WithObserver attaches o to every subsequent run.
func (s *VideoService) WithObserver(o Observer) *VideoService {
	if o == nil {
		o = nopObserver{}
	}
	s.observer = o
	return s
}

// Run drives job through the workflow and always returns an outcome.
func (s *VideoService) Run(ctx context.Context, job VideoJob) *Outcome {
	start := time.Now()
	outcome := &Outcome{}
	finish := func(state State, stage Stage, err error) *Outcome {
		outcome.Elapsed = time.Since(start)
		outcome.Stage = stage
		outcome.Err = err
		s.transition(outcome, state)
		if err != nil {
			logger.Error("Video workflow stopped in %s stage: %v", stage, err)
		}
		return outcome
	}

	if job.Model == "" {
		job.Model = s.config.VideoModel
	}

	logger.Info("Submitting video task (model %s)", job.Model)
	task, err := s.tasks.Submit(ctx, async.SubmitRequest{
		Prompt:    job.Prompt,
		Model:     job.Model,
		ImageURL:  job.ImageURL,
		ImagePath: job.ImagePath,
	})
	if err != nil {
		return finish(StateFailed, StageSubmit, err)
	}
	outcome.Task = task
	s.transition(outcome, StateSubmitted)

	poll, err := s.tasks.Wait(ctx, task.ID, async.PollOptions{
		Interval: job.PollInterval,
		Timeout:  job.PollTimeout,
		OnSnapshot: func(snapshot models.PollResult) {
			s.observer.Snapshot(snapshot)
			if snapshot.Status == models.TaskStatusRunning && outcome.State == StateSubmitted {
				s.transition(outcome, StateRunning)
			}
		},
	})
	if err != nil {
		return finish(StateFailed, StagePoll, err)
	}
	outcome.Task = poll.Task
	outcome.Snapshots = poll.Snapshots

	if poll.TimedOut() {
		outcome.Timeout = poll.Timeout
		return finish(StateTimedOut, StagePoll, nil)
	}
	if poll.Task.Status == models.TaskStatusFailed {
		return finish(StateFailed, StagePoll, &TaskFailedError{TaskID: task.ID, Reason: poll.Task.Error})
	}
	s.transition(outcome, StateCompleted)

	req, err := s.downloadRequest(poll.Task, job.Output)
	if err != nil {
		return finish(StateDownloadFailed, StageDownload, err)
	}
	s.transition(outcome, StateDownloading)

	result, err := s.downloader.Fetch(ctx, req)
	if err != nil {
		return finish(StateDownloadFailed, StageDownload, err)
	}

	outcome.Artifact = &models.Artifact{
		Path:      result.Path,
		Size:      result.Size,
		MIMEType:  result.ContentType,
		Prompt:    job.Prompt,
		Model:     job.Model,
		TaskID:    task.ID,
		SourceURL: result.SourceURL,
		Elapsed:   time.Since(start),
	}
	if s.config.SaveSidecar {
		path, err := s.store.WriteSidecar("video", *outcome.Artifact, outcome.Task)
		if err != nil {
			logger.Warn("Failed to write sidecar for %s: %v", result.Path, err)
		} else {
			outcome.SidecarPath = path
		}
	}

	return finish(StateDone, "", nil)
}

// downloadRequest resolves where the finished video lives according to the
// configured video format.
func (s *VideoService) downloadRequest(task *models.Task, output string) (download.Request, error) {
	path, err := s.store.Path(output, "video", ".mp4")
	if err != nil {
		return download.Request{}, err
	}

	req := download.Request{Path: path, OnProgress: s.observer.DownloadProgress}
	switch s.config.VideoFormat {
	case config.VideoFormatContent:
		req.URL = s.client.BuildURL(async.ContentEndpoint(task.ID))
		req.Auth = s.client
	default:
		if task.VideoURL == "" {
			return download.Request{}, errors.New("completed task has no video_url; try the content video format")
		}
		req.URL = task.VideoURL
	}
	return req, nil
}

func (s *VideoService) transition(outcome *Outcome, state State) {
	if outcome.State == state {
		return
	}
	logger.Debug("Video workflow: %s -> %s", outcome.State, state)
	outcome.State = state
	s.observer.StateChanged(state, outcome.Task)
}
