// Package network simulates the lossy, delayed transport between devices.
// Messages pass through a FIFO delivery queue serviced by a single worker
// goroutine; packet loss is decided up front, delay is applied in flight.
package network

import (
	"math/rand"
	"sync"
	"time"

	"github.com/iotsimlab/iotsim/pkg/logging"
	"github.com/iotsimlab/iotsim/pkg/message"
	"github.com/iotsimlab/iotsim/pkg/metrics"
	"github.com/iotsimlab/iotsim/pkg/monitor"
	"github.com/iotsimlab/iotsim/pkg/pubsub"
)

// DeviceRegistry is the device-side surface the network delivers through
type DeviceRegistry interface {
	DeviceExists(deviceID string) bool
	DeviceCount() int
	SendMessageToDevice(msg *message.Message) bool
	BroadcastMessage(msg *message.Message)
}

// SecurityHook transforms payloads in flight. Implementations must never
// fail delivery: on any problem they return the payload unchanged.
type SecurityHook interface {
	Enabled() bool
	SecurePayload(payload, sourceDeviceID, destDeviceID string) string
}

// Stats is a snapshot of the network counters
type Stats struct {
	MessagesSent     uint64
	MessagesReceived uint64
	MessagesDropped  uint64
	Errors           uint64
	StartTime        time.Time
}

// SuccessRate returns the fraction of sent messages that were not dropped
func (s Stats) SuccessRate() float64 {
	if s.MessagesSent == 0 {
		return 0
	}
	return float64(s.MessagesSent-s.MessagesDropped) / float64(s.MessagesSent)
}

// Manager owns the delivery pipeline between devices
type Manager struct {
	registry DeviceRegistry
	security SecurityHook
	logger   logging.Logger
	metrics  *metrics.Registry
	bus      *pubsub.Bus
	perf     *monitor.Monitor

	queueMu   sync.Mutex
	queueCond *sync.Cond
	queue     []*message.Message
	running   bool
	stopCh    chan struct{}
	wg        sync.WaitGroup

	condMu     sync.RWMutex
	packetLoss float64
	delayMin   float64 // milliseconds
	delayMax   float64

	rngMu sync.Mutex
	rng   *rand.Rand

	protoMu   sync.RWMutex
	protocols map[string]Protocol

	statsMu sync.Mutex
	stats   Stats
}

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the structured logger
func WithLogger(logger logging.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithSecurity installs a payload security hook
func WithSecurity(hook SecurityHook) Option {
	return func(m *Manager) { m.security = hook }
}

// WithMetrics attaches a metrics registry
func WithMetrics(r *metrics.Registry) Option {
	return func(m *Manager) { m.metrics = r }
}

// WithBus attaches an event bus for delivery events
func WithBus(bus *pubsub.Bus) Option {
	return func(m *Manager) { m.bus = bus }
}

// WithMonitor attaches a performance monitor timing each delivery
func WithMonitor(m *monitor.Monitor) Option {
	return func(n *Manager) { n.perf = m }
}

// WithSeed makes loss draws and delays deterministic
func WithSeed(seed int64) Option {
	return func(m *Manager) { m.rng = rand.New(rand.NewSource(seed)) }
}

// NewManager creates a stopped network manager delivering through the given
// registry.
func NewManager(registry DeviceRegistry, opts ...Option) *Manager {
	m := &Manager{
		registry:  registry,
		protocols: make(map[string]Protocol),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		stats:     Stats{StartTime: time.Now()},
	}
	m.queueCond = sync.NewCond(&m.queueMu)
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logging.DefaultLogger()
	}
	return m
}

// Start launches the delivery worker. Starting a running manager is a no-op.
func (m *Manager) Start() {
	m.queueMu.Lock()
	if m.running {
		m.queueMu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.queueMu.Unlock()

	m.wg.Add(1)
	go m.processMessages()
	m.logger.Info("network manager started")
}

// Stop halts the worker and discards any queued messages, counting them as
// dropped. Returns after the worker has exited.
func (m *Manager) Stop() {
	m.queueMu.Lock()
	if !m.running {
		m.queueMu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.queueCond.Broadcast()
	m.queueMu.Unlock()

	m.wg.Wait()
	m.logger.Info("network manager stopped")
}

// Running reports whether the delivery worker is active
func (m *Manager) Running() bool {
	m.queueMu.Lock()
	defer m.queueMu.Unlock()
	return m.running
}

// SendMessage submits a message for delivery. The packet loss draw happens
// here: a lost message is never queued and false is returned. Accepted
// messages are delivered asynchronously.
func (m *Manager) SendMessage(msg *message.Message) bool {
	if m.drawLoss() {
		m.countDropped(1, "loss")
		m.logger.Debug("message lost in transit",
			logging.MessageID(msg.ID()),
			logging.String("source", msg.Source()),
			logging.String("dest", msg.Destination()))
		m.publishDelivery(msg, false, "loss", 0)
		return false
	}

	m.queueMu.Lock()
	m.queue = append(m.queue, msg)
	depth := len(m.queue)
	m.queueMu.Unlock()
	m.queueCond.Signal()

	m.statsMu.Lock()
	m.stats.MessagesSent++
	m.statsMu.Unlock()
	if m.metrics != nil {
		m.metrics.MessagesSent.Inc()
		m.metrics.MessageQueueDepth.Set(float64(depth))
	}
	return true
}

// Broadcast fans a message out to every registered device except the
// source. Per-device failures are contained by the registry.
func (m *Manager) Broadcast(msg *message.Message) {
	if m.registry == nil {
		return
	}
	m.registry.BroadcastMessage(msg)

	m.statsMu.Lock()
	m.stats.MessagesSent += uint64(m.registry.DeviceCount())
	m.statsMu.Unlock()
}

// SetNetworkConditions updates loss and delay parameters. Loss is clamped
// to [0,1], delays to non-negative with max at least min.
func (m *Manager) SetNetworkConditions(packetLoss, delayMinMs, delayMaxMs float64) {
	if packetLoss < 0 {
		packetLoss = 0
	}
	if packetLoss > 1 {
		packetLoss = 1
	}
	if delayMinMs < 0 {
		delayMinMs = 0
	}
	if delayMaxMs < delayMinMs {
		delayMaxMs = delayMinMs
	}

	m.condMu.Lock()
	m.packetLoss = packetLoss
	m.delayMin = delayMinMs
	m.delayMax = delayMaxMs
	m.condMu.Unlock()

	m.logger.Info("network conditions updated",
		logging.Float64("packet_loss", packetLoss),
		logging.Float64("delay_min_ms", delayMinMs),
		logging.Float64("delay_max_ms", delayMaxMs))
}

// SetDeviceProtocol tags a device with a protocol
func (m *Manager) SetDeviceProtocol(deviceID string, p Protocol) {
	m.protoMu.Lock()
	m.protocols[deviceID] = p
	m.protoMu.Unlock()

	m.logger.Info("device protocol assigned",
		logging.DeviceID(deviceID),
		logging.String("protocol", p.String()))
}

// DeviceProtocol returns the protocol assigned to a device, Custom when
// none was set.
func (m *Manager) DeviceProtocol(deviceID string) Protocol {
	m.protoMu.RLock()
	defer m.protoMu.RUnlock()
	if p, ok := m.protocols[deviceID]; ok {
		return p
	}
	return ProtocolCustom
}

// Stats returns a snapshot of the counters
func (m *Manager) Stats() Stats {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	return m.stats
}

// ResetStats zeroes the counters and restarts the stats clock
func (m *Manager) ResetStats() {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	m.stats = Stats{StartTime: time.Now()}
}

// QueueDepth returns the number of messages awaiting delivery
func (m *Manager) QueueDepth() int {
	m.queueMu.Lock()
	defer m.queueMu.Unlock()
	return len(m.queue)
}

func (m *Manager) processMessages() {
	defer m.wg.Done()

	for {
		m.queueMu.Lock()
		for len(m.queue) == 0 && m.running {
			m.queueCond.Wait()
		}
		if !m.running {
			residue := len(m.queue)
			m.queue = nil
			m.queueMu.Unlock()
			if residue > 0 {
				m.countDropped(uint64(residue), "shutdown")
			}
			if m.metrics != nil {
				m.metrics.MessageQueueDepth.Set(0)
			}
			return
		}

		msg := m.queue[0]
		m.queue = m.queue[1:]
		depth := len(m.queue)
		stopCh := m.stopCh
		m.queueMu.Unlock()
		if m.metrics != nil {
			m.metrics.MessageQueueDepth.Set(float64(depth))
		}

		delay := m.drawDelay()
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-stopCh:
				// In-flight message is discarded on shutdown
				m.countDropped(1, "shutdown")
				continue
			}
		}

		if m.perf != nil {
			m.perf.Time("network.deliver", func() { m.deliverMessage(msg, delay) })
		} else {
			m.deliverMessage(msg, delay)
		}
	}
}

// deliverMessage hands one message to the destination device. Missing
// registry or destination is an error, never a panic.
func (m *Manager) deliverMessage(msg *message.Message, delay time.Duration) {
	if m.registry == nil {
		m.countError()
		return
	}

	if m.security != nil && m.security.Enabled() {
		msg.SetPayload(m.security.SecurePayload(msg.Payload(), msg.Source(), msg.Destination()))
	}

	if !m.registry.DeviceExists(msg.Destination()) {
		m.logger.Warn("destination device not found, message dropped",
			logging.MessageID(msg.ID()),
			logging.String("source", msg.Source()),
			logging.String("dest", msg.Destination()))
		m.countError()
		m.publishDelivery(msg, false, "unknown-device", delay)
		return
	}

	delivered := m.registry.SendMessageToDevice(msg)

	m.statsMu.Lock()
	if delivered {
		m.stats.MessagesReceived++
	} else {
		m.stats.Errors++
	}
	m.statsMu.Unlock()

	if m.metrics != nil {
		if delivered {
			m.metrics.MessagesReceived.Inc()
		} else {
			m.metrics.DeliveryErrors.Inc()
		}
		m.metrics.DeliveryDelay.Observe(delay.Seconds())
	}

	reason := ""
	if !delivered {
		reason = "handler-error"
	}
	m.publishDelivery(msg, delivered, reason, delay)
}

// drawLoss returns true when the message should be dropped
func (m *Manager) drawLoss() bool {
	m.condMu.RLock()
	loss := m.packetLoss
	m.condMu.RUnlock()
	if loss <= 0 {
		return false
	}

	m.rngMu.Lock()
	draw := m.rng.Float64()
	m.rngMu.Unlock()
	return draw < loss
}

// drawDelay picks a uniform random delay within the configured window
func (m *Manager) drawDelay() time.Duration {
	m.condMu.RLock()
	min, max := m.delayMin, m.delayMax
	m.condMu.RUnlock()
	if max <= 0 {
		return 0
	}

	m.rngMu.Lock()
	ms := min + m.rng.Float64()*(max-min)
	m.rngMu.Unlock()
	return time.Duration(ms * float64(time.Millisecond))
}

func (m *Manager) countDropped(n uint64, reason string) {
	m.statsMu.Lock()
	m.stats.MessagesDropped += n
	m.statsMu.Unlock()
	if m.metrics != nil {
		m.metrics.MessagesDropped.WithLabelValues(reason).Add(float64(n))
	}
}

func (m *Manager) countError() {
	m.statsMu.Lock()
	m.stats.Errors++
	m.statsMu.Unlock()
	if m.metrics != nil {
		m.metrics.DeliveryErrors.Inc()
	}
}

func (m *Manager) publishDelivery(msg *message.Message, delivered bool, reason string, delay time.Duration) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(pubsub.TopicDelivery, pubsub.DeliveryEvent{
		MessageID:   msg.ID(),
		Source:      msg.Source(),
		Destination: msg.Destination(),
		Delivered:   delivered,
		Reason:      reason,
		Delay:       delay,
		At:          time.Now(),
	})
}
