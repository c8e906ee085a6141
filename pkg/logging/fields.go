package logging

import (
	"time"
)

// Common field constructors
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

func Uint64(key string, value uint64) Field {
	return Field{Key: key, Value: value}
}

func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Domain-specific field constructors

// DeviceID tags an entry with the device it concerns
func DeviceID(id string) Field {
	return Field{Key: "device_id", Value: id}
}

// MessageID tags an entry with the message it concerns
func MessageID(id string) Field {
	return Field{Key: "message_id", Value: id}
}

// EventID tags an entry with the simulation event it concerns
func EventID(id string) Field {
	return Field{Key: "event_id", Value: id}
}
