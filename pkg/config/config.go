// Package config loads simulation settings from YAML and exposes them
// through typed lookups with defaults. Components read individual keys; the
// engine additionally pulls a validated Settings snapshot at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Source is the lookup contract the simulator components consume
type Source interface {
	GetString(key, defaultValue string) string
	GetInt(key string, defaultValue int) int
	GetFloat(key string, defaultValue float64) float64
	GetBool(key string, defaultValue bool) bool
}

// Config holds configuration values under flat dotted keys,
// e.g. "network.packet_loss".
type Config struct {
	mu     sync.RWMutex
	values map[string]string
}

// New creates an empty configuration
func New() *Config {
	return &Config{values: make(map[string]string)}
}

// LoadFile reads a YAML file into the configuration
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return LoadYAML(data)
}

// LoadYAML parses YAML into a configuration. Nested mappings are flattened
// into dotted keys.
func LoadYAML(data []byte) (*Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	c := New()
	flatten("", raw, c.values)
	return c, nil
}

func flatten(prefix string, node map[string]any, out map[string]string) {
	for key, value := range node {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		switch v := value.(type) {
		case map[string]any:
			flatten(full, v, out)
		default:
			out[full] = fmt.Sprintf("%v", v)
		}
	}
}

// Set stores a raw value under a key
func (c *Config) Set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}

// Has reports whether a key is present
func (c *Config) Has(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.values[key]
	return ok
}

// GetString returns the value for a key, or the default if absent
func (c *Config) GetString(key, defaultValue string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if v, ok := c.values[key]; ok {
		return v
	}
	return defaultValue
}

// GetInt returns the integer value for a key, or the default if absent or
// unparsable.
func (c *Config) GetInt(key string, defaultValue int) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if v, ok := c.values[key]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

// GetFloat returns the float value for a key, or the default if absent or
// unparsable.
func (c *Config) GetFloat(key string, defaultValue float64) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if v, ok := c.values[key]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// GetBool returns the boolean value for a key; "true", "1", "yes" and "on"
// (case-insensitive) count as true. Absent or unrecognized values return the
// default.
func (c *Config) GetBool(key string, defaultValue bool) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	if !ok {
		return defaultValue
	}
	switch strings.ToLower(v) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		return defaultValue
	}
}

// Settings is the validated bundle of simulation parameters the engine
// applies at startup.
type Settings struct {
	SimulationSpeed float64 `validate:"gte=0.01"`
	PacketLoss      float64 `validate:"gte=0,lte=1"`
	DelayMinMs      float64 `validate:"gte=0"`
	DelayMaxMs      float64 `validate:"gtefield=DelayMinMs"`
	LogLevel        string  `validate:"oneof=DEBUG INFO WARN ERROR"`
	MaxDevices      int     `validate:"gt=0"`
}

var validate = validator.New()

// Settings extracts and validates the simulation parameters, applying
// defaults for absent keys.
func (c *Config) Settings() (Settings, error) {
	s := Settings{
		SimulationSpeed: c.GetFloat("simulation.speed", 1.0),
		PacketLoss:      c.GetFloat("network.packet_loss", 0.0),
		DelayMinMs:      c.GetFloat("network.delay_min", 0.0),
		DelayMaxMs:      c.GetFloat("network.delay_max", 0.0),
		LogLevel:        strings.ToUpper(c.GetString("logging.level", "INFO")),
		MaxDevices:      c.GetInt("max_devices", 1000),
	}

	if err := validate.Struct(&s); err != nil {
		return Settings{}, fmt.Errorf("invalid simulation settings: %w", err)
	}
	return s, nil
}
