package device

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/iotsimlab/iotsim/pkg/logging"
	"github.com/iotsimlab/iotsim/pkg/message"
)

// Sensor simulates a reading-producing device. The reading function is
// supplied by the concrete sensor kind; Read clamps it into [min, max] and
// mixes in noise from the sensor's own random source so tests can seed it.
type Sensor struct {
	base

	readFn   func(s *Sensor) float64
	minValue float64
	maxValue float64

	readMu  sync.Mutex
	current float64
	rng     *rand.Rand

	logger logging.Logger
}

// NewSensor creates a sensor with the given bounds and reading function
func NewSensor(id, name string, minValue, maxValue float64, readFn func(s *Sensor) float64, logger logging.Logger) *Sensor {
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &Sensor{
		base:     newBase(id, "Sensor", name),
		readFn:   readFn,
		minValue: minValue,
		maxValue: maxValue,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:   logger,
	}
}

// Seed reseeds the sensor's noise source for deterministic tests
func (s *Sensor) Seed(seed int64) {
	s.readMu.Lock()
	defer s.readMu.Unlock()
	s.rng = rand.New(rand.NewSource(seed))
}

// Read samples the sensor and returns the new current value, clamped into
// the sensor's range. Inactive sensors return the last value unchanged.
func (s *Sensor) Read() float64 {
	if !s.Active() {
		return s.Current()
	}

	s.readMu.Lock()
	defer s.readMu.Unlock()

	value := s.readFn(s)
	s.current = math.Max(s.minValue, math.Min(s.maxValue, value))
	s.touch()
	return s.current
}

// Current returns the last sampled value without taking a new reading
func (s *Sensor) Current() float64 {
	s.readMu.Lock()
	defer s.readMu.Unlock()
	return s.current
}

// MinValue returns the lower bound of the sensor range
func (s *Sensor) MinValue() float64 { return s.minValue }

// MaxValue returns the upper bound of the sensor range
func (s *Sensor) MaxValue() float64 { return s.maxValue }

// noise returns a sample in [-scale, scale] from the sensor's random source.
// Callers must hold readMu (it is only called from inside readFn via Read).
func (s *Sensor) noise(scale float64) float64 {
	return (s.rng.Float64()*2 - 1) * scale
}

// HandleMessage processes configuration commands; sensors don't expect data
func (s *Sensor) HandleMessage(msg *message.Message) error {
	switch msg.Kind() {
	case message.Command:
		switch msg.Payload() {
		case "CALIBRATE":
			s.logger.Info("calibrating sensor", logging.DeviceID(s.ID()))
		case "STATUS":
			s.logger.Info("sensor status", logging.DeviceID(s.ID()),
				logging.String("status", s.Status()))
		default:
			s.logger.Debug("sensor ignoring command", logging.DeviceID(s.ID()),
				logging.String("command", msg.Payload()))
		}
		return nil
	case message.Data:
		return fmt.Errorf("sensor %s received unexpected data message %s", s.ID(), msg.ID())
	case message.Error:
		s.logger.Warn("sensor received error message", logging.DeviceID(s.ID()),
			logging.String("payload", msg.Payload()))
		return nil
	default:
		return nil
	}
}

// NewTemperatureSensor simulates an ambient temperature reading with a daily
// cycle around a 22°C baseline plus noise.
func NewTemperatureSensor(id, name string, logger logging.Logger) *Sensor {
	return NewSensor(id, name, -40.0, 125.0, func(s *Sensor) float64 {
		hour := float64(time.Now().Hour())
		daily := math.Sin((hour-6)*math.Pi/12.0) * 2.0
		return 22.0 + daily + s.noise(3.0)
	}, logger)
}

// NewHumiditySensor simulates relative humidity around 55% with noise
func NewHumiditySensor(id, name string, logger logging.Logger) *Sensor {
	return NewSensor(id, name, 0.0, 100.0, func(s *Sensor) float64 {
		return 55.0 + s.noise(10.0)
	}, logger)
}
