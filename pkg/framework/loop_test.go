package framework

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoopRunsControllersInPriorityOrder(t *testing.T) {
	var order []int
	loop := NewLoop()
	record := func(n int) Controller {
		return ControlFunc(func(ctx ControlContext) error {
			order = append(order, n)
			return nil
		})
	}
	loop.AddController(PrLvLow, record(3))
	loop.AddController(PrLvTop, record(1))
	loop.AddController(PrLvNetwork, record(2))
	loop.AddController(PrLvLow, record(4))

	loop.RunIteration(context.Background())
	require.Equal(t, []int{1, 2, 3, 4}, order)
}

func TestLoopContinuesAfterControllerError(t *testing.T) {
	var calls int
	loop := NewLoop()
	loop.AddController(PrLvHigh, ControlFunc(func(ControlContext) error {
		return errors.New("boom")
	}))
	loop.AddController(PrLvNormal, ControlFunc(func(ControlContext) error {
		calls++
		return nil
	}))
	loop.RunIteration(context.Background())
	loop.RunIteration(context.Background())
	require.Equal(t, 2, calls)
}

func TestLoopTriggerNext(t *testing.T) {
	var iterations int32
	loop := NewLoop()
	loop.Interval = time.Hour
	loop.AddController(PrLvNormal, ControlFunc(func(ctx ControlContext) error {
		if atomic.AddInt32(&iterations, 1) < 5 {
			ctx.TriggerNext()
		}
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	loop.TriggerNext()
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&iterations) == 5
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.Equal(t, context.Canceled, err)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
}

type blockingTask struct {
	started chan struct{}
}

func (b *blockingTask) Run(ctx context.Context) error {
	close(b.started)
	<-ctx.Done()
	return ctx.Err()
}

func TestLoopStartsAndStopsTasks(t *testing.T) {
	task := &blockingTask{started: make(chan struct{})}
	loop := NewLoop().AddRunnable(NamedRun("blocking", task))
	require.Len(t, loop.Runnables(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	select {
	case <-task.started:
	case <-time.After(time.Second):
		t.Fatal("task not started")
	}
	cancel()
	select {
	case err := <-done:
		require.Equal(t, context.Canceled, err)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
}

type closeRecorder struct {
	closed int32
	unblock chan struct{}
}

func (c *closeRecorder) Close() error {
	if atomic.AddInt32(&c.closed, 1) == 1 {
		close(c.unblock)
	}
	return nil
}

var _ io.Closer = (*closeRecorder)(nil)

func TestRunWithContextCloser(t *testing.T) {
	t.Run("closes on cancel", func(t *testing.T) {
		c := &closeRecorder{unblock: make(chan struct{})}
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()
		err := RunWithContextCloser(ctx, c, func() error {
			<-c.unblock
			return io.EOF
		})
		require.Equal(t, context.Canceled, err)
		require.EqualValues(t, 1, atomic.LoadInt32(&c.closed))
	})
	t.Run("closes on exit", func(t *testing.T) {
		c := &closeRecorder{unblock: make(chan struct{})}
		err := RunWithContextCloser(context.Background(), c, func() error {
			return io.EOF
		})
		require.Equal(t, io.EOF, err)
		require.EqualValues(t, 1, atomic.LoadInt32(&c.closed))
	})
}

func TestRunnerWaitAggregatesErrors(t *testing.T) {
	errA, errB := errors.New("a"), errors.New("b")
	r := NewRunner().Go(
		RunFunc(func(context.Context) error { return errA }),
		RunFunc(func(context.Context) error { return errB }),
		RunFunc(func(context.Context) error { return context.Canceled }),
	)
	err := r.Wait()
	require.Error(t, err)
	require.ErrorIs(t, err, errA)
	require.ErrorIs(t, err, errB)
	require.NotErrorIs(t, err, context.Canceled)
}

func TestLoopReportsTaskExitingEarly(t *testing.T) {
	acceptErr := errors.New("accept failed")
	type exit struct {
		name string
		err  error
	}
	exits := make(chan exit, 2)
	task := &blockingTask{started: make(chan struct{})}
	loop := NewLoop().AddRunnable(
		NamedRun("failing", RunFunc(func(context.Context) error { return acceptErr })),
		NamedRun("blocking", task),
	)
	loop.OnTaskExit = func(name string, err error) {
		exits <- exit{name, err}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	select {
	case e := <-exits:
		require.Equal(t, "failing", e.name)
		require.Equal(t, acceptErr, e.err)
	case <-time.After(time.Second):
		t.Fatal("early exit not reported")
	}
	<-task.started
	cancel()
	require.Equal(t, context.Canceled, <-done)
	// tasks stopping on cancellation are not reported
	require.Empty(t, exits)
}
