// Package engine drives the simulation clock. A single scheduler goroutine
// advances time in fixed steps, draining a priority queue of scheduled
// events on each step. The engine also owns the lifecycle of the network
// manager so the two start and stop together.
package engine

import (
	"container/heap"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iotsimlab/iotsim/pkg/config"
	"github.com/iotsimlab/iotsim/pkg/logging"
	"github.com/iotsimlab/iotsim/pkg/metrics"
	"github.com/iotsimlab/iotsim/pkg/monitor"
	"github.com/iotsimlab/iotsim/pkg/network"
	"github.com/iotsimlab/iotsim/pkg/pubsub"
)

// State is the engine lifecycle state
type State int

const (
	Stopped State = iota
	Running
	Paused
)

// String returns the state's display name
func (s State) String() string {
	switch s {
	case Running:
		return "RUNNING"
	case Paused:
		return "PAUSED"
	default:
		return "STOPPED"
	}
}

const (
	// defaultTimeStep is the wall-clock length of one simulation step at 1x speed
	defaultTimeStep = 100 * time.Millisecond

	// minSpeed is the slowest allowed simulation speed
	minSpeed = 0.01
)

// Stats is a snapshot of engine progress
type Stats struct {
	State           State
	Speed           float64
	EventsProcessed uint64
	Steps           uint64
	QueueDepth      int
	Uptime          time.Duration
}

// Engine schedules and executes simulation events
type Engine struct {
	network *network.Manager
	logger  logging.Logger
	metrics *metrics.Registry
	bus     *pubsub.Bus
	perf    *monitor.Monitor

	stateMu     sync.Mutex
	stateCond   *sync.Cond
	state       State
	startTime   time.Time
	currentTime time.Time
	stopCh      chan struct{}
	wg          sync.WaitGroup

	speedMu  sync.RWMutex
	speed    float64
	timeStep time.Duration

	eventMu sync.Mutex
	events  eventQueue

	nextEventID     atomic.Uint64
	eventsProcessed atomic.Uint64
	steps           atomic.Uint64
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the structured logger
func WithLogger(logger logging.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithNetwork ties a network manager's lifecycle to the engine's
func WithNetwork(nm *network.Manager) Option {
	return func(e *Engine) { e.network = nm }
}

// WithMetrics attaches a metrics registry
func WithMetrics(r *metrics.Registry) Option {
	return func(e *Engine) { e.metrics = r }
}

// WithBus attaches an event bus for state and stats updates
func WithBus(bus *pubsub.Bus) Option {
	return func(e *Engine) { e.bus = bus }
}

// WithMonitor attaches a performance monitor timing each step
func WithMonitor(m *monitor.Monitor) Option {
	return func(e *Engine) { e.perf = m }
}

// WithTimeStep overrides the default 100ms simulation step
func WithTimeStep(step time.Duration) Option {
	return func(e *Engine) {
		if step > 0 {
			e.timeStep = step
		}
	}
}

// New creates a stopped engine
func New(opts ...Option) *Engine {
	e := &Engine{
		speed:    1.0,
		timeStep: defaultTimeStep,
	}
	e.stateCond = sync.NewCond(&e.stateMu)
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.DefaultLogger()
	}
	return e
}

// Start launches the scheduler. Only valid from STOPPED; anything else is
// a logged no-op. The attached network manager starts with the engine.
func (e *Engine) Start() {
	e.stateMu.Lock()
	if e.state != Stopped {
		e.stateMu.Unlock()
		e.logger.Warn("start ignored, simulation already running or paused")
		return
	}
	e.state = Running
	now := time.Now()
	e.startTime = now
	e.currentTime = now
	e.stopCh = make(chan struct{})
	e.stateMu.Unlock()

	if e.network != nil {
		e.network.Start()
	}

	e.wg.Add(1)
	go e.run()

	e.logger.Info("simulation engine started")
	e.publishState(Stopped, Running)
}

// Stop halts the scheduler and then the network manager. Returns once the
// scheduler goroutine has exited. Stopping a stopped engine is a no-op.
func (e *Engine) Stop() {
	e.stateMu.Lock()
	if e.state == Stopped {
		e.stateMu.Unlock()
		return
	}
	prev := e.state
	e.state = Stopped
	close(e.stopCh)
	e.stateCond.Broadcast()
	e.stateMu.Unlock()

	e.wg.Wait()

	if e.network != nil {
		e.network.Stop()
	}

	e.logger.Info("simulation engine stopped",
		logging.Uint64("events_processed", e.eventsProcessed.Load()),
		logging.Uint64("steps", e.steps.Load()))
	e.publishState(prev, Stopped)
}

// Pause suspends the scheduler. Only valid from RUNNING.
func (e *Engine) Pause() {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	if e.state != Running {
		e.logger.Warn("pause ignored, simulation not running")
		return
	}
	e.state = Paused
	e.logger.Info("simulation paused")
	e.publishState(Running, Paused)
}

// Resume wakes a paused scheduler. Only valid from PAUSED.
func (e *Engine) Resume() {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	if e.state != Paused {
		e.logger.Warn("resume ignored, simulation not paused")
		return
	}
	e.state = Running
	e.stateCond.Broadcast()
	e.logger.Info("simulation resumed")
	e.publishState(Paused, Running)
}

// State returns the current lifecycle state
func (e *Engine) State() State {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.state
}

// CurrentTime returns the time snapshot taken at the start of the most
// recent step.
func (e *Engine) CurrentTime() time.Time {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.currentTime
}

// ScheduleEvent queues a callback to fire after delay. An empty eventID
// gets an auto-generated one. Returns the event id. Zero or negative delay
// fires on the scheduler's next wake.
func (e *Engine) ScheduleEvent(delay time.Duration, callback func(), eventID string, priority int) string {
	if eventID == "" {
		eventID = fmt.Sprintf("EVENT_%d", e.nextEventID.Add(1))
	}

	ev := &event{
		fireAt:   time.Now().Add(delay),
		id:       eventID,
		callback: callback,
		priority: priority,
	}

	e.eventMu.Lock()
	heap.Push(&e.events, ev)
	depth := e.events.Len()
	e.eventMu.Unlock()

	if e.metrics != nil {
		e.metrics.EventsScheduled.Inc()
		e.metrics.EventQueueDepth.Set(float64(depth))
	}
	e.logger.Debug("event scheduled",
		logging.EventID(eventID),
		logging.Duration("delay", delay),
		logging.Int("priority", priority))
	return eventID
}

// ScheduleRepeating queues a callback to fire every interval until the
// returned task is cancelled. The next occurrence is only scheduled after
// the current one completes, so at most one occurrence is ever pending.
func (e *Engine) ScheduleRepeating(interval time.Duration, callback func(), eventID string, priority int) *RepeatingTask {
	if eventID == "" {
		eventID = fmt.Sprintf("REPEAT_%d", e.nextEventID.Add(1))
	}
	task := &RepeatingTask{id: eventID}

	var occurrence func()
	occurrence = func() {
		if task.Cancelled() {
			return
		}
		callback()
		if task.Cancelled() {
			return
		}
		e.ScheduleEvent(interval, occurrence, eventID, priority)
	}

	e.ScheduleEvent(interval, occurrence, eventID, priority)
	return task
}

// SetSimulationSpeed adjusts the clock rate; 1.0 is real time. Values
// below the floor are raised to it.
func (e *Engine) SetSimulationSpeed(speed float64) {
	if speed < minSpeed {
		speed = minSpeed
	}
	e.speedMu.Lock()
	e.speed = speed
	e.speedMu.Unlock()
	e.logger.Info("simulation speed set", logging.Float64("speed", speed))
}

// Speed returns the current simulation speed
func (e *Engine) Speed() float64 {
	e.speedMu.RLock()
	defer e.speedMu.RUnlock()
	return e.speed
}

// QueueDepth returns the number of pending events
func (e *Engine) QueueDepth() int {
	e.eventMu.Lock()
	defer e.eventMu.Unlock()
	return e.events.Len()
}

// Stats returns a snapshot of engine progress
func (e *Engine) Stats() Stats {
	e.stateMu.Lock()
	state := e.state
	start := e.startTime
	e.stateMu.Unlock()

	var uptime time.Duration
	if !start.IsZero() {
		uptime = time.Since(start)
	}

	return Stats{
		State:           state,
		Speed:           e.Speed(),
		EventsProcessed: e.eventsProcessed.Load(),
		Steps:           e.steps.Load(),
		QueueDepth:      e.QueueDepth(),
		Uptime:          uptime,
	}
}

// LoadConfig reads a YAML config file and applies the validated settings
// to the engine and its network manager.
func (e *Engine) LoadConfig(path string) error {
	cfg, err := config.LoadFile(path)
	if err != nil {
		return err
	}
	settings, err := cfg.Settings()
	if err != nil {
		return err
	}
	e.ApplySettings(settings)
	return nil
}

// ApplySettings applies a validated settings bundle
func (e *Engine) ApplySettings(s config.Settings) {
	e.SetSimulationSpeed(s.SimulationSpeed)
	if e.network != nil {
		e.network.SetNetworkConditions(s.PacketLoss, s.DelayMinMs, s.DelayMaxMs)
	}
	e.logger.SetLevel(logging.ParseLevel(s.LogLevel))
	e.logger.Info("configuration applied",
		logging.Float64("speed", s.SimulationSpeed),
		logging.Float64("packet_loss", s.PacketLoss),
		logging.String("log_level", s.LogLevel),
		logging.Int("max_devices", s.MaxDevices))
}

// run is the scheduler loop. Pause parks it on the state condition
// variable until Resume or Stop wakes it.
func (e *Engine) run() {
	defer e.wg.Done()
	e.logger.Debug("simulation loop started")

	for {
		e.stateMu.Lock()
		for e.state == Paused {
			e.stateCond.Wait()
		}
		if e.state == Stopped {
			e.stateMu.Unlock()
			e.logger.Debug("simulation loop ended")
			return
		}
		e.currentTime = time.Now()
		stopCh := e.stopCh
		e.stateMu.Unlock()

		steps := e.steps.Add(1)
		if e.metrics != nil {
			e.metrics.SimulationSteps.Inc()
		}

		if e.perf != nil {
			e.perf.Time("engine.step", e.processEvents)
		} else {
			e.processEvents()
		}

		if e.bus != nil && steps%10 == 0 {
			e.bus.Publish(pubsub.TopicStats, e.Stats())
		}

		sleep := time.Duration(float64(e.timeStep) / e.Speed())
		select {
		case <-time.After(sleep):
		case <-stopCh:
		}
	}
}

// processEvents fires every event due at the time of the call. Callbacks
// run without any engine lock held; a panicking callback is logged and the
// loop continues.
func (e *Engine) processEvents() {
	now := time.Now()

	e.eventMu.Lock()
	for e.events.Len() > 0 && !e.events[0].fireAt.After(now) {
		ev := heap.Pop(&e.events).(*event)
		e.eventMu.Unlock()

		e.invoke(ev)

		e.eventMu.Lock()
	}
	depth := e.events.Len()
	e.eventMu.Unlock()

	if e.metrics != nil {
		e.metrics.EventQueueDepth.Set(float64(depth))
	}
}

func (e *Engine) invoke(ev *event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("event callback panicked",
				logging.EventID(ev.id),
				logging.String("panic", fmt.Sprintf("%v", r)))
			if e.metrics != nil {
				e.metrics.EventErrors.Inc()
			}
		}
	}()

	if ev.callback == nil {
		return
	}
	ev.callback()
	e.eventsProcessed.Add(1)
	if e.metrics != nil {
		e.metrics.EventsProcessed.Inc()
	}
}

func (e *Engine) publishState(from, to State) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(pubsub.TopicState, pubsub.StateEvent{
		From: from.String(),
		To:   to.String(),
		At:   time.Now(),
	})
}
