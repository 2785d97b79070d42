package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribeworks/marathon-backend/internal/pipeline"
	"github.com/scribeworks/marathon-backend/internal/progress"
)

func newRunner() (*pipeline.Runner, *progress.Bus) {
	bus := progress.NewBus(nil, zerolog.Nop())
	return pipeline.NewRunner(bus, zerolog.Nop()), bus
}

func stage(name string, fn func(ctx context.Context) error) pipeline.Stage {
	return pipeline.Stage{Name: name, Run: fn}
}

func TestStagesRunInOrder(t *testing.T) {
	runner, _ := newRunner()

	var (
		mu    sync.Mutex
		order []string
	)
	record := func(name string) func(context.Context) error {
		return func(context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	run, started := runner.RunOrAttach("job:1", []pipeline.Stage{
		stage("collect", record("collect")),
		stage("analyze", record("analyze")),
		stage("persist", record("persist")),
	})
	require.True(t, started)
	require.NoError(t, run.Wait(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"collect", "analyze", "persist"}, order)

	snap := run.Snapshot()
	assert.Equal(t, pipeline.StatusSucceeded, snap.Status)
	assert.Empty(t, snap.Error)
}

func TestConcurrentRunOrAttachExecutesOnce(t *testing.T) {
	runner, bus := newRunner()

	const callers = 32

	var executions int32
	release := make(chan struct{})
	stages := []pipeline.Stage{
		stage("only", func(context.Context) error {
			atomic.AddInt32(&executions, 1)
			<-release
			return nil
		}),
	}

	// Every caller subscribes before attaching so each sees the terminal.
	subs := make([]*progress.Subscription, callers)
	for i := range subs {
		subs[i] = bus.Subscribe("job:fanin")
		defer subs[i].Cancel()
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		runs = make(map[*pipeline.Run]int)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run, _ := runner.RunOrAttach("job:fanin", stages)
			mu.Lock()
			runs[run]++
			mu.Unlock()
		}()
	}
	wg.Wait()
	close(release)

	assert.Len(t, runs, 1, "every caller must share one run")

	for run := range runs {
		require.NoError(t, run.Wait(context.Background()))
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&executions))

	for i, sub := range subs {
		var sawTerminal bool
		timeout := time.After(time.Second)
	drain:
		for {
			select {
			case ev := <-sub.C:
				if ev.Terminal {
					sawTerminal = true
					break drain
				}
			case <-timeout:
				break drain
			}
		}
		assert.True(t, sawTerminal, "listener %d missed the terminal event", i)
	}
}

func TestStageFailureMarksRunFailed(t *testing.T) {
	runner, bus := newRunner()

	sub := bus.Subscribe("job:doomed")
	defer sub.Cancel()

	boom := errors.New("analysis exploded")
	run, started := runner.RunOrAttach("job:doomed", []pipeline.Stage{
		stage("collect", func(context.Context) error { return nil }),
		stage("analyze", func(context.Context) error { return boom }),
		stage("persist", func(context.Context) error {
			t.Error("stage after a failure must not run")
			return nil
		}),
	})
	require.True(t, started)

	err := run.Wait(context.Background())
	require.ErrorIs(t, err, boom)

	snap := run.Snapshot()
	assert.Equal(t, pipeline.StatusFailed, snap.Status)
	assert.Contains(t, snap.Error, "analyze")

	var terminal progress.Event
	timeout := time.After(time.Second)
	for !terminal.Terminal {
		select {
		case terminal = <-sub.C:
		case <-timeout:
			t.Fatal("no terminal failure event")
		}
	}
	assert.Contains(t, terminal.Message, "analyze")
}

func TestFinishedKeyCanRunAgain(t *testing.T) {
	runner, _ := newRunner()

	var executions int32
	stages := []pipeline.Stage{
		stage("only", func(context.Context) error {
			atomic.AddInt32(&executions, 1)
			return nil
		}),
	}

	run1, started := runner.RunOrAttach("job:again", stages)
	require.True(t, started)
	require.NoError(t, run1.Wait(context.Background()))

	// No automatic retry: re-running is an explicit new invocation.
	run2, started := runner.RunOrAttach("job:again", stages)
	require.True(t, started)
	require.NoError(t, run2.Wait(context.Background()))

	assert.NotSame(t, run1, run2)
	assert.Equal(t, int32(2), atomic.LoadInt32(&executions))
}

func TestGetFindsOnlyInFlightRuns(t *testing.T) {
	runner, _ := newRunner()

	_, ok := runner.Get("job:absent")
	assert.False(t, ok)

	release := make(chan struct{})
	run, _ := runner.RunOrAttach("job:present", []pipeline.Stage{
		stage("wait", func(context.Context) error { <-release; return nil }),
	})

	got, ok := runner.Get("job:present")
	require.True(t, ok)
	assert.Same(t, run, got)

	close(release)
	require.NoError(t, run.Wait(context.Background()))

	require.Eventually(t, func() bool {
		_, ok := runner.Get("job:present")
		return !ok
	}, time.Second, 10*time.Millisecond, "finished run must leave the table")
}

func TestProgressPercentIsMonotonic(t *testing.T) {
	runner, bus := newRunner()

	sub := bus.Subscribe("job:percent")
	defer sub.Cancel()

	noop := func(context.Context) error { return nil }
	run, _ := runner.RunOrAttach("job:percent", []pipeline.Stage{
		stage("one", noop), stage("two", noop), stage("three", noop),
	})
	require.NoError(t, run.Wait(context.Background()))

	last := -1
	timeout := time.After(time.Second)
	for {
		select {
		case ev := <-sub.C:
			assert.GreaterOrEqual(t, ev.Percent, last)
			last = ev.Percent
			if ev.Terminal {
				assert.Equal(t, 100, ev.Percent)
				return
			}
		case <-timeout:
			t.Fatal("no terminal event")
		}
	}
}
