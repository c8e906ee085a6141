package device

import (
	"fmt"
	"sort"
	"sync"

	"github.com/iotsimlab/iotsim/pkg/logging"
	"github.com/iotsimlab/iotsim/pkg/message"
)

// Manager owns the table of registered devices and dispatches delivered
// messages to them. It is the concrete device registry handed to the network
// layer.
type Manager struct {
	mu      sync.RWMutex
	devices map[string]Device
	nextID  uint64

	logger logging.Logger
}

// NewManager creates an empty device registry
func NewManager(logger logging.Logger) *Manager {
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &Manager{
		devices: make(map[string]Device),
		nextID:  1,
		logger:  logger,
	}
}

// Register adds a device to the registry. Nil devices and duplicate IDs are
// rejected.
func (m *Manager) Register(device Device) bool {
	if device == nil {
		m.logger.Error("cannot register nil device")
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := device.ID()
	if _, exists := m.devices[id]; exists {
		m.logger.Error("device already registered", logging.DeviceID(id))
		return false
	}

	m.devices[id] = device
	m.logger.Info("device registered", logging.DeviceID(id),
		logging.String("type", device.Type()))
	return true
}

// Unregister removes a device from the registry
func (m *Manager) Unregister(deviceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.devices[deviceID]; !exists {
		m.logger.Error("device not found", logging.DeviceID(deviceID))
		return false
	}

	delete(m.devices, deviceID)
	m.logger.Info("device unregistered", logging.DeviceID(deviceID))
	return true
}

// Get returns the device with the given ID
func (m *Manager) Get(deviceID string) (Device, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	device, ok := m.devices[deviceID]
	return device, ok
}

// Devices returns all registered devices in ID order
func (m *Manager) Devices() []Device {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Device, 0, len(m.devices))
	for _, device := range m.devices {
		result = append(result, device)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID() < result[j].ID() })
	return result
}

// DeviceIDs returns the IDs of all registered devices in sorted order
func (m *Manager) DeviceIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.devices))
	for id := range m.devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DeviceExists reports whether a device ID is registered
func (m *Manager) DeviceExists(deviceID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.devices[deviceID]
	return ok
}

// DeviceCount returns the number of registered devices
func (m *Manager) DeviceCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.devices)
}

// GenerateID produces a fresh device ID with the given prefix
func (m *Manager) GenerateID(prefix string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := fmt.Sprintf("%s_%d", prefix, m.nextID)
	m.nextID++
	return id
}

// SendMessageToDevice delivers a message to its destination device. Handler
// errors and panics are contained and reported as a failed delivery.
func (m *Manager) SendMessageToDevice(msg *message.Message) bool {
	device, ok := m.Get(msg.Destination())
	if !ok {
		m.logger.Error("destination device not found",
			logging.DeviceID(msg.Destination()), logging.MessageID(msg.ID()))
		return false
	}

	if err := m.dispatch(device, msg); err != nil {
		m.logger.Error("message delivery failed",
			logging.DeviceID(msg.Destination()), logging.MessageID(msg.ID()),
			logging.Error(err))
		return false
	}
	return true
}

// BroadcastMessage fans a message out to every registered device except the
// source. Individual delivery failures are logged and do not stop the fan-out.
func (m *Manager) BroadcastMessage(msg *message.Message) {
	for _, device := range m.Devices() {
		if device.ID() == msg.Source() {
			continue
		}
		if err := m.dispatch(device, msg); err != nil {
			m.logger.Error("broadcast delivery failed",
				logging.DeviceID(device.ID()), logging.MessageID(msg.ID()),
				logging.Error(err))
		}
	}
}

// dispatch invokes a device handler with panic containment
func (m *Manager) dispatch(device Device, msg *message.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("device %s handler panicked: %v", device.ID(), r)
		}
	}()
	return device.HandleMessage(msg)
}

// List returns the status line of every registered device
func (m *Manager) List() []string {
	devices := m.Devices()
	lines := make([]string, 0, len(devices))
	for _, device := range devices {
		lines = append(lines, device.Status())
	}
	return lines
}
