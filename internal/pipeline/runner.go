package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/scribeworks/marathon-backend/internal/progress"
)

// Status enumerates job run states.
type Status string

const (
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

// Stage is one named step of a pipeline.
type Stage struct {
	Name string
	Run  func(ctx context.Context) error
}

// JobRun is a point-in-time snapshot of a run, served to subscribers that
// reconnect after a gap instead of replaying streamed history.
type JobRun struct {
	TaskKey    string   `json:"task_key"`
	StageIndex int      `json:"stage_index"`
	Stages     []string `json:"stages"`
	Status     Status   `json:"status"`
	Error      string   `json:"error,omitempty"`
}

// Run is a handle to one in-flight or finished pipeline execution.
// Concurrent RunOrAttach callers for the same key share one Run.
type Run struct {
	taskKey string
	stages  []string
	done    chan struct{}

	mu         sync.Mutex
	stageIndex int
	status     Status
	err        error
}

// Wait blocks until the run reaches a terminal state or ctx is done.
func (r *Run) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the failure reason, nil while running or on success.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Snapshot returns the current run state.
func (r *Run) Snapshot() JobRun {
	r.mu.Lock()
	defer r.mu.Unlock()

	jr := JobRun{
		TaskKey:    r.taskKey,
		StageIndex: r.stageIndex,
		Stages:     append([]string(nil), r.stages...),
		Status:     r.status,
	}
	if r.err != nil {
		jr.Error = r.err.Error()
	}
	return jr
}

// Runner executes named stage sequences for long-running tasks, one run
// per task key at a time. It is the asynchronous analogue of the session
// registry: the mutex-guarded run table makes "start if absent, else
// attach" race-free.
type Runner struct {
	bus *progress.Bus
	log zerolog.Logger

	mu   sync.Mutex
	runs map[string]*Run
}

// NewRunner creates a pipeline runner publishing on the given bus.
func NewRunner(bus *progress.Bus, log zerolog.Logger) *Runner {
	return &Runner{
		bus:  bus,
		log:  log.With().Str("component", "pipeline_runner").Logger(),
		runs: make(map[string]*Run),
	}
}

// RunOrAttach starts the stages for taskKey, or returns the handle of the
// run already in flight. started reports whether this call began a new
// execution. A finished run leaves the table, so re-invoking after
// success or failure starts a fresh run.
func (r *Runner) RunOrAttach(taskKey string, stages []Stage) (run *Run, started bool) {
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.Name
	}

	r.mu.Lock()
	if existing, ok := r.runs[taskKey]; ok {
		r.mu.Unlock()
		return existing, false
	}

	run = &Run{
		taskKey: taskKey,
		stages:  names,
		done:    make(chan struct{}),
		status:  StatusRunning,
	}
	r.runs[taskKey] = run
	r.mu.Unlock()

	go r.execute(run, stages)
	return run, true
}

// Get returns the in-flight run for taskKey, if any.
func (r *Runner) Get(taskKey string) (*Run, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[taskKey]
	return run, ok
}

// execute drives the stages serially. Runs are detached from any client
// context on purpose: a disconnecting subscriber must not cancel the job.
func (r *Runner) execute(run *Run, stages []Stage) {
	ctx := context.Background()
	log := r.log.With().Str("task_key", run.taskKey).Logger()
	log.Info().Int("stages", len(stages)).Msg("Pipeline run started")

	defer func() {
		r.mu.Lock()
		if current, ok := r.runs[run.taskKey]; ok && current == run {
			delete(r.runs, run.taskKey)
		}
		r.mu.Unlock()
		close(run.done)
	}()

	for i, stage := range stages {
		run.mu.Lock()
		run.stageIndex = i
		run.mu.Unlock()

		r.bus.Publish(ctx, run.taskKey, i*100/len(stages), stage.Name, false)

		if err := stage.Run(ctx); err != nil {
			wrapped := fmt.Errorf("stage %q: %w", stage.Name, err)
			run.mu.Lock()
			run.status = StatusFailed
			run.err = wrapped
			run.mu.Unlock()

			log.Error().Err(err).Str("stage", stage.Name).Msg("Pipeline stage failed")
			r.bus.Publish(ctx, run.taskKey, i*100/len(stages), wrapped.Error(), true)
			return
		}

		log.Debug().Str("stage", stage.Name).Msg("Pipeline stage finished")
	}

	run.mu.Lock()
	run.status = StatusSucceeded
	run.mu.Unlock()

	r.bus.Publish(ctx, run.taskKey, 100, "completed", true)
	log.Info().Msg("Pipeline run succeeded")
}
