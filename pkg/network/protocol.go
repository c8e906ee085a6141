package network

// Protocol identifies the radio or transport protocol a device speaks
type Protocol int

const (
	ProtocolCustom Protocol = iota
	ProtocolMQTT
	ProtocolCoAP
	ProtocolHTTP
	ProtocolLoRa
	ProtocolZigBee
	ProtocolBluetoothLE
	ProtocolThread
	ProtocolZWave
	ProtocolNBIoT
	ProtocolSigfox
)

// String returns the protocol's display name
func (p Protocol) String() string {
	return Lookup(p).Name
}

// Characteristics describes the physical and practical properties of a
// protocol, used when assigning realistic behavior to simulated devices.
type Characteristics struct {
	Name             string
	MaxRangeKm       float64
	DataRateKbps     float64
	PowerConsumption float64 // relative, 1.0 = mains-powered baseline
	LatencyMs        float64
	MaxPayloadBytes  int
	SupportsMesh     bool
	SupportsCrypto   bool
	TypicalLoss      float64
	MaxDevices       int
	TypicalUseCase   string
}

var characteristics = map[Protocol]Characteristics{
	ProtocolLoRa:        {"LoRa", 15.0, 0.3, 0.1, 1000.0, 256, false, true, 0.02, 1000, "Long-range sensors"},
	ProtocolZigBee:      {"ZigBee", 0.1, 250.0, 0.3, 30.0, 100, true, true, 0.01, 65000, "Home automation"},
	ProtocolBluetoothLE: {"Bluetooth LE", 0.05, 1000.0, 0.2, 10.0, 255, false, true, 0.05, 20, "Wearable devices"},
	ProtocolThread:      {"Thread", 0.05, 250.0, 0.4, 20.0, 1280, true, true, 0.01, 250, "Smart home"},
	ProtocolZWave:       {"Z-Wave", 0.05, 100.0, 0.3, 50.0, 64, true, true, 0.01, 232, "Home security"},
	ProtocolNBIoT:       {"NB-IoT", 10.0, 250.0, 0.15, 2000.0, 1600, false, true, 0.03, 50000, "Smart metering"},
	ProtocolSigfox:      {"Sigfox", 50.0, 0.01, 0.05, 5000.0, 12, false, true, 0.05, 1000000, "Low-power sensors"},
	ProtocolMQTT:        {"MQTT", 0.01, 10000.0, 1.0, 5.0, 268435456, false, false, 0.001, 1000000, "Enterprise IoT"},
	ProtocolCoAP:        {"CoAP", 0.01, 1000.0, 0.8, 100.0, 1024, false, false, 0.005, 10000, "Constrained devices"},
	ProtocolHTTP:        {"HTTP", 0.01, 10000.0, 1.0, 50.0, 268435456, false, false, 0.001, 1000000, "Web services"},
}

// Lookup returns the characteristics for a protocol. Unknown protocols get
// the Custom profile.
func Lookup(p Protocol) Characteristics {
	if c, ok := characteristics[p]; ok {
		return c
	}
	return Characteristics{"Custom", 1.0, 1000.0, 1.0, 100.0, 1024, false, false, 0.01, 1000, "General purpose"}
}

// Protocols lists every known protocol, Custom included
func Protocols() []Protocol {
	return []Protocol{
		ProtocolCustom, ProtocolMQTT, ProtocolCoAP, ProtocolHTTP,
		ProtocolLoRa, ProtocolZigBee, ProtocolBluetoothLE, ProtocolThread,
		ProtocolZWave, ProtocolNBIoT, ProtocolSigfox,
	}
}
