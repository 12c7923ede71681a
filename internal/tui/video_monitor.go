package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/kelsos/mediagen/internal/download"
	"github.com/kelsos/mediagen/internal/logger"
	"github.com/kelsos/mediagen/internal/models"
	"github.com/kelsos/mediagen/internal/services"
)

// VideoMonitor runs one video job behind a terminal dashboard. It receives
// workflow events as the service observer and forwards them to the program.
type VideoMonitor struct {
	service    *services.VideoService
	job        services.VideoJob
	program    *tea.Program
	lastDecile int
}

func NewVideoMonitor(service *services.VideoService, job services.VideoJob, model string, opts ...tea.ProgramOption) *VideoMonitor {
	if len(opts) == 0 {
		opts = []tea.ProgramOption{tea.WithAltScreen()}
	}
	vm := &VideoMonitor{
		service:    service,
		job:        job,
		program:    tea.NewProgram(NewModel(job.Prompt, model), opts...),
		lastDecile: -1,
	}
	service.WithObserver(vm)
	return vm
}

func (vm *VideoMonitor) StateChanged(state services.State, task *models.Task) {
	vm.program.Send(StateUpdate{State: state, Task: task})
	switch state {
	case services.StateSubmitted:
		vm.AddLog(fmt.Sprintf("📨 Task %s submitted", task.ID))
	case services.StateRunning:
		vm.AddLog("⚙️ Generation started")
	case services.StateCompleted:
		vm.AddLog("🎞 Generation completed")
	case services.StateDownloading:
		vm.AddLog("⬇️ Downloading video")
	}
}

func (vm *VideoMonitor) Snapshot(snapshot models.PollResult) {
	vm.program.Send(SnapshotUpdate{Snapshot: snapshot})
}

func (vm *VideoMonitor) DownloadProgress(p download.Progress) {
	vm.program.Send(DownloadUpdate{Progress: p})
	if decile := int(p.Percent) / 10; decile != vm.lastDecile {
		vm.lastDecile = decile
		vm.AddLog(fmt.Sprintf("⬇️ %.0f%% (%s / %s)", p.Percent, download.HumanSize(p.Written), download.HumanSize(p.Total)))
	}
}

func (vm *VideoMonitor) AddLog(message string) {
	vm.program.Send(LogMessage{Message: message})
}

// Run executes the workflow while the dashboard is shown. Quitting the
// dashboard cancels the workflow.
func (vm *VideoMonitor) Run(ctx context.Context) (*services.Outcome, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var outcome *services.Outcome
	g := new(errgroup.Group)

	g.Go(func() error {
		outcome = vm.service.Run(ctx, vm.job)
		if outcome.Succeeded() {
			vm.AddLog(fmt.Sprintf("🎉 Saved %s (%s)", outcome.Artifact.Path, download.HumanSize(outcome.Artifact.Size)))
		} else {
			vm.AddLog("❌ " + outcome.Diagnostic())
		}
		vm.program.Send(JobFinished{Outcome: outcome})
		return nil
	})

	g.Go(func() error {
		defer cancel()
		final, err := vm.program.Run()
		if err != nil {
			return fmt.Errorf("failed to run TUI: %w", err)
		}
		if m, ok := final.(Model); ok && !m.Finished() {
			logger.Warn("Monitor closed before the video job finished; cancelling")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return outcome, err
	}
	return outcome, nil
}
