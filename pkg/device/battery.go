package device

import (
	"sync"

	"github.com/iotsimlab/iotsim/pkg/logging"
	"github.com/iotsimlab/iotsim/pkg/message"
)

// lowBatteryThreshold is the charge percentage below which a battery-powered
// sensor refuses new readings.
const lowBatteryThreshold = 5.0

// Battery models a finite power reserve drained by device activity
type Battery struct {
	mu          sync.Mutex
	level       float64 // percent, 0..100
	consumption float64 // percent drained per transmission
}

// NewBattery creates a fully charged battery with the given per-transmission
// power consumption.
func NewBattery(consumption float64) *Battery {
	return &Battery{level: 100.0, consumption: consumption}
}

// Level returns the remaining charge percentage
func (b *Battery) Level() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.level
}

// Consume drains the given amount of charge, flooring at zero
func (b *Battery) Consume(amount float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.level -= amount
	if b.level < 0 {
		b.level = 0
	}
}

// Recharge restores the battery to full
func (b *Battery) Recharge() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.level = 100.0
}

// BatterySensor decorates a Sensor with a finite power budget: each reading
// and each handled message drains charge, and readings stop below the
// low-battery threshold.
type BatterySensor struct {
	*Sensor
	battery *Battery
	logger  logging.Logger
}

// NewBatterySensor wraps a sensor with a battery draining `consumption`
// percent per reading.
func NewBatterySensor(sensor *Sensor, consumption float64, logger logging.Logger) *BatterySensor {
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &BatterySensor{
		Sensor:  sensor,
		battery: NewBattery(consumption),
		logger:  logger,
	}
}

// BatteryLevel returns the remaining charge percentage
func (bs *BatterySensor) BatteryLevel() float64 {
	return bs.battery.Level()
}

// Recharge restores the battery to full
func (bs *BatterySensor) Recharge() {
	bs.battery.Recharge()
}

// Read samples the sensor if enough charge remains. A depleted sensor keeps
// returning its last value.
func (bs *BatterySensor) Read() float64 {
	if bs.battery.Level() < lowBatteryThreshold {
		bs.logger.Warn("sensor battery too low to read",
			logging.DeviceID(bs.ID()), logging.Float64("battery", bs.battery.Level()))
		return bs.Current()
	}
	bs.battery.Consume(bs.battery.consumption)
	return bs.Sensor.Read()
}

// HandleMessage drains a small processing cost on top of normal handling
func (bs *BatterySensor) HandleMessage(msg *message.Message) error {
	bs.battery.Consume(bs.battery.consumption * 0.05)
	return bs.Sensor.HandleMessage(msg)
}
