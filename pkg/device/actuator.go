package device

import (
	"strings"
	"sync"

	"github.com/iotsimlab/iotsim/pkg/logging"
	"github.com/iotsimlab/iotsim/pkg/message"
)

// Actuator simulates a binary-state device controlled by commands
type Actuator struct {
	base

	stateMu sync.Mutex
	state   bool

	// onChange, when set, observes every state transition
	onChange func(state bool)

	logger logging.Logger
}

// NewActuator creates an actuator in the OFF state
func NewActuator(id, name string, logger logging.Logger) *Actuator {
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &Actuator{
		base:   newBase(id, "Actuator", name),
		logger: logger,
	}
}

// NewLED creates an LED actuator
func NewLED(id, name string, logger logging.Logger) *Actuator {
	a := NewActuator(id, name, logger)
	a.base.deviceType = "LED"
	return a
}

// NewRelay creates a relay actuator
func NewRelay(id, name string, logger logging.Logger) *Actuator {
	a := NewActuator(id, name, logger)
	a.base.deviceType = "Relay"
	return a
}

// OnChange registers a state observer, replacing any previous one
func (a *Actuator) OnChange(fn func(state bool)) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.onChange = fn
}

// State returns the current on/off state
func (a *Actuator) State() bool {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.state
}

// SetState drives the actuator to the given state
func (a *Actuator) SetState(state bool) {
	a.stateMu.Lock()
	a.state = state
	observer := a.onChange
	a.stateMu.Unlock()

	a.touch()
	a.logger.Debug("actuator state set", logging.DeviceID(a.ID()), logging.Bool("on", state))
	if observer != nil {
		observer(state)
	}
}

// Toggle flips the actuator state
func (a *Actuator) Toggle() {
	a.SetState(!a.State())
}

// HandleMessage processes control commands. Unknown commands are logged and
// ignored, matching the forgiving behavior of the rest of the delivery path.
func (a *Actuator) HandleMessage(msg *message.Message) error {
	switch msg.Kind() {
	case message.Command:
		command := strings.ToUpper(msg.Payload())
		switch command {
		case "ON", "1", "TRUE":
			a.SetState(true)
		case "OFF", "0", "FALSE":
			a.SetState(false)
		case "TOGGLE":
			a.Toggle()
		case "STATUS":
			a.logger.Info("actuator status", logging.DeviceID(a.ID()),
				logging.Bool("on", a.State()))
		default:
			a.logger.Warn("actuator ignoring unknown command",
				logging.DeviceID(a.ID()), logging.String("command", command))
		}
		return nil
	case message.Data:
		// Setpoints and configuration blobs are accepted silently
		a.logger.Debug("actuator received data", logging.DeviceID(a.ID()),
			logging.String("payload", msg.Payload()))
		return nil
	case message.Error:
		a.logger.Warn("actuator received error message", logging.DeviceID(a.ID()),
			logging.String("payload", msg.Payload()))
		return nil
	default:
		return nil
	}
}
