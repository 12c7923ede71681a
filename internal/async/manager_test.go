package async

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kelsos/mediagen/internal/client"
	"github.com/kelsos/mediagen/internal/fakeapi"
	"github.com/kelsos/mediagen/internal/models"
)

func newManager(t *testing.T, srv *fakeapi.Server) *TaskManager {
	t.Helper()
	return NewTaskManager(client.NewAPIClient(srv.URL, "sk-test", 2*time.Second), 10*time.Millisecond, time.Second)
}

func status(id, s string) map[string]interface{} {
	return map[string]interface{}{"id": id, "object": "video", "status": s}
}

func TestSubmitTextToVideo(t *testing.T) {
	srv := fakeapi.New(t)
	srv.Router.Post("/videos", func(w http.ResponseWriter, r *http.Request) {
		fakeapi.JSON(w, http.StatusOK, status("video_123", "queued"))
	})

	task, err := newManager(t, srv).Submit(context.Background(), SubmitRequest{Prompt: "a cat", Model: "veo-3.1-fast"})
	require.NoError(t, err)

	assert.Equal(t, "video_123", task.ID)
	assert.Equal(t, models.TaskStatusQueued, task.Status)
	assert.JSONEq(t, `{"model":"veo-3.1-fast","prompt":"a cat"}`, string(srv.Requests()[0].Body))
}

func TestSubmitWithImageURL(t *testing.T) {
	srv := fakeapi.New(t)
	srv.Router.Post("/videos", func(w http.ResponseWriter, r *http.Request) {
		fakeapi.JSON(w, http.StatusOK, map[string]string{"id": "video_9"})
	})

	_, err := newManager(t, srv).Submit(context.Background(), SubmitRequest{
		Prompt:   "animate",
		Model:    "veo-3.1-fl",
		ImageURL: "https://cdn.test/ref.png",
	})
	require.NoError(t, err)

	assert.JSONEq(t, `{"model":"veo-3.1-fl","prompt":"animate","input_reference":"https://cdn.test/ref.png"}`,
		string(srv.Requests()[0].Body))
}

func TestSubmitWithLocalImageUsesMultipart(t *testing.T) {
	var gotModel, gotType string
	srv := fakeapi.New(t)
	srv.Router.Post("/videos", func(w http.ResponseWriter, r *http.Request) {
		gotModel = r.FormValue("model")
		if _, header, err := r.FormFile("input_reference"); assert.NoError(t, err) {
			gotType = header.Header.Get("Content-Type")
		}
		fakeapi.JSON(w, http.StatusOK, status("video_m", "queued"))
	})

	path := filepath.Join(t.TempDir(), "ref.png")
	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}
	require.NoError(t, os.WriteFile(path, png, 0o600))

	task, err := newManager(t, srv).Submit(context.Background(), SubmitRequest{Prompt: "p", Model: "m", ImagePath: path})
	require.NoError(t, err)

	assert.Equal(t, "video_m", task.ID)
	assert.Equal(t, "m", gotModel)
	assert.Equal(t, "image/png", gotType)
}

func TestSubmitFailures(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus int
		wantBody   string
	}{
		{
			name:       "unauthorized",
			handler:    fakeapi.Status(http.StatusUnauthorized, `{"error":{"message":"invalid token"}}`),
			wantStatus: http.StatusUnauthorized,
			wantBody:   `{"error":{"message":"invalid token"}}`,
		},
		{
			name:       "missing id",
			handler:    fakeapi.Status(http.StatusOK, `{"status":"queued"}`),
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"queued"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := fakeapi.New(t)
			srv.Router.Post("/videos", tt.handler)

			_, err := newManager(t, srv).Submit(context.Background(), SubmitRequest{Prompt: "p", Model: "m"})

			var subErr *SubmissionError
			require.True(t, errors.As(err, &subErr))
			assert.Equal(t, tt.wantStatus, subErr.StatusCode)
			assert.Equal(t, tt.wantBody, subErr.Body)
			assert.Equal(t, 1, srv.Count(http.MethodPost, "/videos"), "submission must not be retried")
		})
	}
}

func TestSubmitRejectsInvalidRequest(t *testing.T) {
	srv := fakeapi.New(t)
	tm := newManager(t, srv)

	for _, req := range []SubmitRequest{
		{Model: "m"},
		{Prompt: "p"},
		{Prompt: "p", Model: "m", ImageURL: "https://x.test/a.png", ImagePath: "a.png"},
		{Prompt: "p", Model: "m", ImageURL: "not a url"},
	} {
		_, err := tm.Submit(context.Background(), req)
		var subErr *SubmissionError
		assert.True(t, errors.As(err, &subErr))
	}
	assert.Empty(t, srv.Requests())
}

func TestWaitReturnsCompletedTask(t *testing.T) {
	srv := fakeapi.New(t)
	seq := fakeapi.NewSequence(
		status("v1", "queued"),
		map[string]interface{}{"id": "v1", "status": "in_progress", "progress": 50},
		map[string]interface{}{"id": "v1", "status": "completed", "progress": 100, "video_url": "https://cdn.test/v1.mp4"},
	)
	srv.Router.Get("/videos/{id}", seq.ServeHTTP)

	var seen []models.TaskStatus
	outcome, err := newManager(t, srv).Wait(context.Background(), "v1", PollOptions{
		OnSnapshot: func(p models.PollResult) { seen = append(seen, p.Status) },
	})
	require.NoError(t, err)

	assert.False(t, outcome.TimedOut())
	assert.Equal(t, models.TaskStatusCompleted, outcome.Task.Status)
	assert.Equal(t, "https://cdn.test/v1.mp4", outcome.Task.VideoURL)
	assert.Equal(t, []models.TaskStatus{models.TaskStatusQueued, models.TaskStatusRunning, models.TaskStatusCompleted}, seen)
	assert.Len(t, outcome.Snapshots, 3)
}

func TestWaitNeverMovesBackward(t *testing.T) {
	srv := fakeapi.New(t)
	seq := fakeapi.NewSequence(
		status("v2", "running"),
		status("v2", "queued"),
		status("v2", "weird-state"),
		status("v2", "failed"),
		status("v2", "running"),
	)
	srv.Router.Get("/videos/{id}", seq.ServeHTTP)

	var accepted []models.TaskStatus
	last := models.TaskStatusUnknown
	outcome, err := newManager(t, srv).Wait(context.Background(), "v2", PollOptions{
		OnSnapshot: func(p models.PollResult) {
			last = last.Advance(p.Status)
			accepted = append(accepted, last)
		},
	})
	require.NoError(t, err)

	for i := 1; i < len(accepted); i++ {
		assert.GreaterOrEqual(t, accepted[i].Rank(), accepted[i-1].Rank())
	}
	assert.Equal(t, models.TaskStatusFailed, outcome.Task.Status)
	assert.Equal(t, 4, seq.Calls(), "polling stops at the first terminal status")
}

func TestWaitTimesOutWithinBudget(t *testing.T) {
	srv := fakeapi.New(t)
	srv.Router.Get("/videos/{id}", func(w http.ResponseWriter, r *http.Request) {
		fakeapi.JSON(w, http.StatusOK, status("slow", "in_progress"))
	})

	interval := 100 * time.Millisecond
	timeout := 250 * time.Millisecond
	start := time.Now()
	outcome, err := newManager(t, srv).Wait(context.Background(), "slow", PollOptions{Interval: interval, Timeout: timeout})
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.NotNil(t, outcome.Timeout)
	assert.Equal(t, models.TaskStatusRunning, outcome.Timeout.LastStatus)
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, timeout+interval)
	assert.NotEmpty(t, outcome.Snapshots)
}

func TestWaitFailsFastOnServerError(t *testing.T) {
	srv := fakeapi.New(t)
	srv.Router.Get("/videos/{id}", fakeapi.Status(http.StatusInternalServerError, "upstream exploded"))

	outcome, err := newManager(t, srv).Wait(context.Background(), "v3", PollOptions{Timeout: 5 * time.Second})

	assert.Nil(t, outcome)
	var pollErr *PollError
	require.True(t, errors.As(err, &pollErr))
	assert.Equal(t, http.StatusInternalServerError, pollErr.StatusCode)
	assert.Equal(t, "upstream exploded", pollErr.Body)
	assert.Equal(t, 1, srv.Count(http.MethodGet, "/videos/v3"))
}

func TestGetStatusRequiresOK(t *testing.T) {
	tests := []struct {
		name string
		code int
		body string
	}{
		{name: "accepted", code: http.StatusAccepted, body: `{"id":"v4","status":"queued"}`},
		{name: "no content", code: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := fakeapi.New(t)
			srv.Router.Get("/videos/{id}", fakeapi.Status(tt.code, tt.body))

			task, err := newManager(t, srv).GetStatus(context.Background(), "v4")

			assert.Nil(t, task)
			var pollErr *PollError
			require.True(t, errors.As(err, &pollErr))
			assert.Equal(t, tt.code, pollErr.StatusCode)
			assert.Equal(t, tt.body, pollErr.Body)
		})
	}
}

func TestWaitFailsOnMismatchedTaskID(t *testing.T) {
	srv := fakeapi.New(t)
	srv.Router.Get("/videos/{id}", func(w http.ResponseWriter, r *http.Request) {
		fakeapi.JSON(w, http.StatusOK, status("someone-else", "queued"))
	})

	_, err := newManager(t, srv).Wait(context.Background(), "mine", PollOptions{})

	var pollErr *PollError
	assert.True(t, errors.As(err, &pollErr))
}

func TestWaitHonorsCallerCancellation(t *testing.T) {
	srv := fakeapi.New(t)
	srv.Router.Get("/videos/{id}", func(w http.ResponseWriter, r *http.Request) {
		fakeapi.JSON(w, http.StatusOK, status("c", "queued"))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := newManager(t, srv).Wait(ctx, "c", PollOptions{Interval: 20 * time.Millisecond, Timeout: time.Minute})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSubmitAndPollScenario(t *testing.T) {
	srv := fakeapi.New(t)
	srv.Router.Post("/videos", func(w http.ResponseWriter, r *http.Request) {
		fakeapi.JSON(w, http.StatusOK, status("task-e2e", "queued"))
	})
	seq := fakeapi.NewSequence(
		status("task-e2e", "queued"),
		map[string]interface{}{"id": "task-e2e", "status": "completed", "video_url": "https://host/v.mp4"},
	)
	srv.Router.Get("/videos/{id}", seq.ServeHTTP)

	tm := newManager(t, srv)
	task, err := tm.Submit(context.Background(), SubmitRequest{Prompt: "test prompt", Model: "demo-fast"})
	require.NoError(t, err)
	require.NotEmpty(t, task.ID)

	outcome, err := tm.Wait(context.Background(), task.ID, PollOptions{})
	require.NoError(t, err)

	assert.Len(t, outcome.Snapshots, 2)
	assert.Equal(t, task.ID, outcome.Task.ID)
	assert.Equal(t, models.TaskStatusCompleted, outcome.Task.Status)
	assert.Equal(t, "https://host/v.mp4", outcome.Task.VideoURL)
	assert.Equal(t, 2, srv.Count(http.MethodGet, "/videos/task-e2e"))
}
