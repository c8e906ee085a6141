package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupKnownProtocols(t *testing.T) {
	lora := Lookup(ProtocolLoRa)
	assert.Equal(t, "LoRa", lora.Name)
	assert.Equal(t, 15.0, lora.MaxRangeKm)
	assert.False(t, lora.SupportsMesh)
	assert.True(t, lora.SupportsCrypto)

	zigbee := Lookup(ProtocolZigBee)
	assert.True(t, zigbee.SupportsMesh)
	assert.Equal(t, 65000, zigbee.MaxDevices)

	sigfox := Lookup(ProtocolSigfox)
	assert.Equal(t, 12, sigfox.MaxPayloadBytes)
}

func TestLookupUnknownFallsBackToCustom(t *testing.T) {
	c := Lookup(Protocol(99))
	assert.Equal(t, "Custom", c.Name)
	assert.Equal(t, ProtocolCustom.String(), c.Name)
}

func TestProtocolsCoverTable(t *testing.T) {
	all := Protocols()
	assert.Len(t, all, 11)

	seen := make(map[string]bool)
	for _, p := range all {
		name := Lookup(p).Name
		assert.False(t, seen[name], "duplicate protocol name %s", name)
		seen[name] = true
	}
}
