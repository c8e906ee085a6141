package engine

import (
	"container/heap"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iotsimlab/iotsim/pkg/config"
	"github.com/iotsimlab/iotsim/pkg/logging"
)

func newTestEngine(opts ...Option) *Engine {
	opts = append([]Option{
		WithLogger(logging.NewNopLogger()),
		WithTimeStep(10 * time.Millisecond),
	}, opts...)
	return New(opts...)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestLifecycleTransitions(t *testing.T) {
	e := newTestEngine()
	assert.Equal(t, Stopped, e.State())

	e.Start()
	assert.Equal(t, Running, e.State())

	e.Pause()
	assert.Equal(t, Paused, e.State())

	e.Resume()
	assert.Equal(t, Running, e.State())

	e.Stop()
	assert.Equal(t, Stopped, e.State())
}

func TestInvalidTransitionsAreNoOps(t *testing.T) {
	e := newTestEngine()

	e.Pause() // not running
	assert.Equal(t, Stopped, e.State())
	e.Resume() // not paused
	assert.Equal(t, Stopped, e.State())
	e.Stop() // already stopped
	assert.Equal(t, Stopped, e.State())

	e.Start()
	defer e.Stop()
	e.Start() // already running
	assert.Equal(t, Running, e.State())
	e.Resume() // not paused
	assert.Equal(t, Running, e.State())
}

func TestScheduledEventFires(t *testing.T) {
	e := newTestEngine()
	e.Start()
	defer e.Stop()

	var fired atomic.Bool
	id := e.ScheduleEvent(20*time.Millisecond, func() { fired.Store(true) }, "", 0)
	assert.NotEmpty(t, id)

	waitFor(t, 2*time.Second, fired.Load)
	assert.Equal(t, uint64(1), e.Stats().EventsProcessed)
}

func TestZeroDelayFiresOnNextWake(t *testing.T) {
	e := newTestEngine()
	e.Start()
	defer e.Stop()

	var fired atomic.Bool
	e.ScheduleEvent(0, func() { fired.Store(true) }, "immediate", 0)

	waitFor(t, 2*time.Second, fired.Load)
}

func TestSameTimePriorityOrdering(t *testing.T) {
	e := newTestEngine()

	var mu sync.Mutex
	var order []string
	record := func(name string) func() {
		return func() {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}
	}

	// Same fire time, scheduled before the engine starts so they drain in
	// one step.
	at := 30 * time.Millisecond
	fireAt := time.Now().Add(at)
	e.eventMu.Lock()
	for _, ev := range []*event{
		{fireAt: fireAt, id: "low", callback: record("low"), priority: 1},
		{fireAt: fireAt, id: "high", callback: record("high"), priority: 10},
		{fireAt: fireAt, id: "mid", callback: record("mid"), priority: 5},
	} {
		heap.Push(&e.events, ev)
	}
	e.eventMu.Unlock()

	e.Start()
	defer e.Stop()

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 3
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"high", "mid", "low"}, order)
}

func TestRepeatingEventFiresAndCancels(t *testing.T) {
	e := newTestEngine()
	e.Start()
	defer e.Stop()

	var fires atomic.Int64
	task := e.ScheduleRepeating(30*time.Millisecond, func() { fires.Add(1) }, "heartbeat", 0)
	require.Equal(t, "heartbeat", task.ID())

	waitFor(t, 3*time.Second, func() bool { return fires.Load() >= 3 })

	task.Cancel()
	assert.True(t, task.Cancelled())

	// Allow any in-flight occurrence to settle, then confirm no new fires
	time.Sleep(100 * time.Millisecond)
	settled := fires.Load()
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, settled, fires.Load(), "cancelled task must not fire again")
}

func TestRepeatingTaskAutoID(t *testing.T) {
	e := newTestEngine()
	task := e.ScheduleRepeating(time.Hour, func() {}, "", 0)
	assert.Contains(t, task.ID(), "REPEAT_")
	task.Cancel()
}

func TestPauseHoldsEvents(t *testing.T) {
	e := newTestEngine()
	e.Start()

	e.Pause()

	var fired atomic.Bool
	e.ScheduleEvent(20*time.Millisecond, func() { fired.Store(true) }, "", 0)

	time.Sleep(150 * time.Millisecond)
	assert.False(t, fired.Load(), "events must not fire while paused")

	e.Resume()
	waitFor(t, 2*time.Second, fired.Load)

	e.Stop()
	assert.Equal(t, uint64(1), e.Stats().EventsProcessed, "event fires exactly once across pause/resume")
}

func TestStopReturnsPromptlyFromPause(t *testing.T) {
	e := newTestEngine()
	e.Start()
	e.Pause()

	start := time.Now()
	e.Stop()
	assert.Less(t, time.Since(start), time.Second, "Stop must wake a paused scheduler")
}

func TestPanickingCallbackDoesNotKillScheduler(t *testing.T) {
	e := newTestEngine()
	e.Start()
	defer e.Stop()

	var fired atomic.Bool
	e.ScheduleEvent(10*time.Millisecond, func() { panic("boom") }, "bad", 5)
	e.ScheduleEvent(30*time.Millisecond, func() { fired.Store(true) }, "good", 0)

	waitFor(t, 2*time.Second, fired.Load)
}

func TestSpeedFloor(t *testing.T) {
	e := newTestEngine()

	e.SetSimulationSpeed(0.001)
	assert.Equal(t, 0.01, e.Speed())

	e.SetSimulationSpeed(2.5)
	assert.Equal(t, 2.5, e.Speed())
}

func TestAutoEventIDs(t *testing.T) {
	e := newTestEngine()

	a := e.ScheduleEvent(time.Hour, func() {}, "", 0)
	b := e.ScheduleEvent(time.Hour, func() {}, "", 0)

	assert.Contains(t, a, "EVENT_")
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, e.QueueDepth())
}

func TestStatsSnapshot(t *testing.T) {
	e := newTestEngine()
	e.Start()

	waitFor(t, 2*time.Second, func() bool { return e.Stats().Steps >= 2 })

	stats := e.Stats()
	assert.Equal(t, Running, stats.State)
	assert.Equal(t, 1.0, stats.Speed)
	assert.Greater(t, stats.Uptime, time.Duration(0))

	e.Stop()
	assert.Equal(t, Stopped, e.Stats().State)
}

func TestApplySettings(t *testing.T) {
	logger := logging.NewJSONLogger(io.Discard, logging.InfoLevel)
	e := New(WithLogger(logger), WithTimeStep(10*time.Millisecond))

	e.ApplySettings(config.Settings{
		SimulationSpeed: 2.5,
		PacketLoss:      0.1,
		DelayMinMs:      10,
		DelayMaxMs:      20,
		LogLevel:        "DEBUG",
		MaxDevices:      100,
	})

	assert.Equal(t, 2.5, e.Speed())
	assert.Equal(t, logging.DebugLevel, logger.GetLevel(), "validated log level must reach the logger")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "STOPPED", Stopped.String())
	assert.Equal(t, "RUNNING", Running.String())
	assert.Equal(t, "PAUSED", Paused.String())
}
