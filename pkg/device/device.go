// Package device implements the simulated device layer: the sensors and
// actuators that terminate message delivery, and the Manager that registers
// them and acts as the network's device registry.
package device

import (
	"fmt"
	"sync"
	"time"

	"github.com/iotsimlab/iotsim/pkg/message"
)

// Device is the capability every simulated device exposes. Sensors produce
// readings, actuators change state; both receive messages through
// HandleMessage.
type Device interface {
	// ID returns the unique device identifier
	ID() string
	// Type returns the device category, e.g. "Sensor" or "Actuator"
	Type() string
	// Name returns the human-readable device name
	Name() string
	// Active reports whether the device is powered on
	Active() bool
	// SetActive powers the device on or off
	SetActive(active bool)
	// HandleMessage processes an incoming message
	HandleMessage(msg *message.Message) error
	// Status returns a one-line status summary
	Status() string
}

// base carries the identity and liveness state shared by all devices
type base struct {
	id         string
	deviceType string
	name       string

	mu         sync.Mutex
	active     bool
	lastUpdate time.Time
}

func newBase(id, deviceType, name string) base {
	return base{
		id:         id,
		deviceType: deviceType,
		name:       name,
		active:     true,
		lastUpdate: time.Now(),
	}
}

func (b *base) ID() string   { return b.id }
func (b *base) Type() string { return b.deviceType }
func (b *base) Name() string { return b.name }

func (b *base) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

func (b *base) SetActive(active bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active = active
}

func (b *base) touch() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastUpdate = time.Now()
}

func (b *base) Status() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	active := "No"
	if b.active {
		active = "Yes"
	}
	return fmt.Sprintf("Device ID: %s, Type: %s, Name: %s, Active: %s",
		b.id, b.deviceType, b.name, active)
}
