package tui

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kelsos/mediagen/internal/config"
	"github.com/kelsos/mediagen/internal/download"
	"github.com/kelsos/mediagen/internal/fakeapi"
	"github.com/kelsos/mediagen/internal/models"
	"github.com/kelsos/mediagen/internal/services"
)

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	require.True(t, ok)
	return model, cmd
}

func TestModelTracksWorkflow(t *testing.T) {
	m := NewModel("a fox in the snow", "veo-3.1-fast")
	task := &models.Task{ID: "task-1", Status: models.TaskStatusQueued}

	m, _ = update(t, m, StateUpdate{State: services.StateSubmitted, Task: task})
	assert.Equal(t, services.StateSubmitted, m.state)
	assert.Equal(t, "task-1", m.task.ID)

	progress := 40.0
	m, _ = update(t, m, SnapshotUpdate{Snapshot: models.PollResult{TaskID: "task-1", Status: models.TaskStatusRunning, RawStatus: "in_progress", Progress: &progress}})
	m, _ = update(t, m, StateUpdate{State: services.StateRunning})
	assert.Equal(t, 1, m.snapshots)
	assert.Equal(t, "in_progress", m.lastPoll.RawStatus)
	assert.Equal(t, "task-1", m.task.ID, "a state update without a task keeps the last one")

	m, _ = update(t, m, StateUpdate{State: services.StateDownloading})
	m, _ = update(t, m, DownloadUpdate{Progress: download.Progress{Written: 50, Total: 100, Percent: 50}})
	assert.Equal(t, int64(50), m.download.Written)
	assert.False(t, m.Finished())

	view := m.View()
	assert.Contains(t, view, "Video Generation Monitor")
	assert.Contains(t, view, "task-1")
	assert.Contains(t, view, string(services.StateDownloading))
}

func TestModelFinishesAndQuits(t *testing.T) {
	m := NewModel("p", "m")
	m, _ = update(t, m, StateUpdate{State: services.StateSubmitted, Task: &models.Task{ID: "t"}})

	outcome := &services.Outcome{State: services.StateFailed, Stage: services.StagePoll, Err: errors.New("HTTP 500")}
	m, cmd := update(t, m, JobFinished{Outcome: outcome})
	assert.True(t, m.Finished())
	assert.Equal(t, services.StateFailed, m.state)
	assert.Equal(t, 0, m.reached, "failure keeps the last stage reached")
	assert.NotNil(t, cmd)
	assert.Contains(t, m.View(), "poll stage failed: HTTP 500")

	_, cmd = update(t, m, lingerDone{})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestModelQuitKey(t *testing.T) {
	m, cmd := update(t, NewModel("p", "m"), tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.True(t, m.quit)
	require.NotNil(t, cmd)
	assert.Equal(t, "Shutting down...\n", m.View())
}

func TestModelKeepsRecentLogs(t *testing.T) {
	m := NewModel("p", "m")
	for i := 0; i < maxLogLines+5; i++ {
		m, _ = update(t, m, LogMessage{Message: "line"})
	}
	assert.Len(t, m.logs, maxLogLines)
}

func TestModelResizesProgressBar(t *testing.T) {
	m, _ := update(t, NewModel("p", "m"), tea.WindowSizeMsg{Width: 120, Height: 40})
	assert.Equal(t, 120, m.width)
	assert.Equal(t, 80, m.progress.Width)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "a long ...", truncate("a long prompt", 10))
	assert.Equal(t, "tiny", truncate("tiny", 2))
}

func TestVideoMonitorRunsJob(t *testing.T) {
	video := []byte("monitored video")
	srv := fakeapi.New(t)
	srv.Router.Post("/videos", fakeapi.Status(http.StatusOK, `{"id":"mon-1","status":"queued"}`))
	srv.Router.Get("/videos/{id}", func(w http.ResponseWriter, r *http.Request) {
		fakeapi.JSON(w, http.StatusOK, map[string]string{
			"id": "mon-1", "status": "completed", "video_url": "http://" + r.Host + "/v.mp4",
		})
	})
	srv.Router.Get("/v.mp4", fakeapi.Blob("video/mp4", video))

	cfg := config.NewConfig()
	cfg.BaseURL = srv.URL
	cfg.PollInterval = 10 * time.Millisecond
	cfg.PollTimeout = time.Second
	cfg.OutputDir = t.TempDir()
	cfg.SaveSidecar = false

	monitor := NewVideoMonitor(services.NewVideoService(cfg), services.VideoJob{Prompt: "p"}, cfg.VideoModel,
		tea.WithInput(nil), tea.WithOutput(io.Discard))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	outcome, err := monitor.Run(ctx)
	require.NoError(t, err)

	require.NotNil(t, outcome)
	assert.Equal(t, services.StateDone, outcome.State)
	assert.Equal(t, int64(len(video)), outcome.Artifact.Size)
}
