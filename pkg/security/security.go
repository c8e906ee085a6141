// Package security implements the simulation's toy transport-security layer.
// It seals payloads with a real AEAD so the wire bytes look the part, but the
// trust model is simulation-only: keys are generated in-process and never
// exchanged, and nothing here provides actual security guarantees.
package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/iotsimlab/iotsim/pkg/logging"
)

// Association is one simulated security association between two endpoint
// addresses, identified by its SPI.
type Association struct {
	SPI        string
	SourceAddr string
	DestAddr   string
	key        []byte
}

// Manager maintains the association table and seals payloads for the
// delivery path. A disabled manager passes payloads through untouched.
type Manager struct {
	mu           sync.RWMutex
	enabled      bool
	associations map[string]*Association // keyed by SPI

	packetsSecured uint64

	logger logging.Logger
}

// NewManager creates a disabled security manager with an empty association
// table.
func NewManager(logger logging.Logger) *Manager {
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &Manager{
		associations: make(map[string]*Association),
		logger:       logger,
	}
}

// Enable turns the security layer on
func (m *Manager) Enable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = true
	m.logger.Info("security layer enabled")
}

// Disable turns the security layer off; Secure becomes a pass-through
func (m *Manager) Disable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = false
	m.logger.Info("security layer disabled")
}

// Enabled reports whether the layer transforms payloads
func (m *Manager) Enabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// CreateAssociation registers a security association between two addresses
// and returns its SPI. A fresh key is generated per association.
func (m *Manager) CreateAssociation(sourceAddr, destAddr string) (string, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("generating association key: %w", err)
	}

	spi := "SPI_" + uuid.NewString()[:8]

	m.mu.Lock()
	defer m.mu.Unlock()
	m.associations[spi] = &Association{
		SPI:        spi,
		SourceAddr: sourceAddr,
		DestAddr:   destAddr,
		key:        key,
	}

	m.logger.Info("security association created",
		logging.String("spi", spi),
		logging.String("source", sourceAddr),
		logging.String("dest", destAddr))
	return spi, nil
}

// RemoveAssociation drops an association by SPI
func (m *Manager) RemoveAssociation(spi string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.associations[spi]; !ok {
		return false
	}
	delete(m.associations, spi)
	return true
}

// AssociationCount returns the number of registered associations
func (m *Manager) AssociationCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.associations)
}

// PacketsSecured returns how many payloads have been sealed
func (m *Manager) PacketsSecured() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.packetsSecured
}

// findAssociation returns an association covering the given address pair in
// either direction, or nil. Callers must hold m.mu.
func (m *Manager) findAssociation(sourceAddr, destAddr string) *Association {
	for _, sa := range m.associations {
		if (sa.SourceAddr == sourceAddr && sa.DestAddr == destAddr) ||
			(sa.SourceAddr == destAddr && sa.DestAddr == sourceAddr) {
			return sa
		}
	}
	return nil
}

// Secure seals a payload for the given address pair. Without a matching
// association, with the layer disabled, or on any sealing failure the
// original payload is returned unchanged: security must never block
// delivery.
func (m *Manager) Secure(payload, sourceAddr, destAddr string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.enabled {
		return payload
	}

	sa := m.findAssociation(sourceAddr, destAddr)
	if sa == nil {
		m.logger.Debug("no security association for flow",
			logging.String("source", sourceAddr), logging.String("dest", destAddr))
		return payload
	}

	sealed, err := seal(sa.key, []byte(payload))
	if err != nil {
		m.logger.Warn("payload sealing failed, passing through",
			logging.String("spi", sa.SPI), logging.Error(err))
		return payload
	}

	m.packetsSecured++
	return fmt.Sprintf("%s:%s", sa.SPI, base64.StdEncoding.EncodeToString(sealed))
}

// SecurePayload seals a payload for a device-ID pair, mapping each ID to
// its simulated network address first. This is the hook the delivery
// pipeline calls.
func (m *Manager) SecurePayload(payload, sourceDeviceID, destDeviceID string) string {
	return m.Secure(payload, DeviceAddr(sourceDeviceID), DeviceAddr(destDeviceID))
}

// Open reverses Secure for a payload sealed under the given SPI
func (m *Manager) Open(spi, sealed string) (string, error) {
	m.mu.RLock()
	sa, ok := m.associations[spi]
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("unknown SPI %s", spi)
	}

	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("decoding sealed payload: %w", err)
	}

	plain, err := open(sa.key, raw)
	if err != nil {
		return "", fmt.Errorf("opening sealed payload: %w", err)
	}
	return string(plain), nil
}

func seal(key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

func open(key, sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize() {
		return nil, fmt.Errorf("sealed payload too short")
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	return aead.Open(nil, nonce, ciphertext, nil)
}

// DeviceAddr derives the simulated network address for a device ID. IDs of
// the form NAME_<suffix> map to 192.168.1.<suffix>; anything else gets a
// stable hash-derived host byte.
func DeviceAddr(deviceID string) string {
	for i := len(deviceID) - 1; i >= 0; i-- {
		if deviceID[i] == '_' {
			return "192.168.1." + deviceID[i+1:]
		}
	}
	sum := 0
	for _, c := range deviceID {
		sum = (sum*31 + int(c)) % 255
	}
	return fmt.Sprintf("192.168.1.%d", sum)
}
