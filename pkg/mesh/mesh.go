// Package mesh maintains the device topology graph of the simulated network
// and computes hop distances and routes toward the gateway.
package mesh

import (
	"sync"

	"github.com/iotsimlab/iotsim/pkg/logging"
)

// DefaultMaxHops is the hop ceiling used when none is configured. A node whose
// hop count equals the ceiling is considered unreachable.
const DefaultMaxHops = 10

// Node represents one device's membership in the topology
type Node struct {
	DeviceID       string
	Neighbors      []string // ordered, no duplicates
	HopCount       int      // hops to the gateway; maxHops means unreachable
	IsGateway      bool
	SignalStrength float64
}

// Network is a mutable topology graph with eager hop-count maintenance.
// Every structural change triggers a full recomputation, which is O(V+E) and
// acceptable at simulation scale.
type Network struct {
	mu        sync.RWMutex
	nodes     map[string]*Node
	gatewayID string
	maxHops   int
	logger    logging.Logger
}

// Option configures a Network
type Option func(*Network)

// WithLogger sets the logger used for topology diagnostics
func WithLogger(logger logging.Logger) Option {
	return func(n *Network) {
		n.logger = logger
	}
}

// WithMaxHops overrides the hop ceiling
func WithMaxHops(maxHops int) Option {
	return func(n *Network) {
		if maxHops > 0 {
			n.maxHops = maxHops
		}
	}
}

// NewNetwork creates an empty mesh topology
func NewNetwork(opts ...Option) *Network {
	n := &Network{
		nodes:   make(map[string]*Node),
		maxHops: DefaultMaxHops,
		logger:  logging.DefaultLogger(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// MaxHops returns the configured hop ceiling
func (n *Network) MaxHops() int {
	return n.maxHops
}

// GatewayID returns the current gateway device ID, or "" if none is set
func (n *Network) GatewayID() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.gatewayID
}

// AddDevice registers a device in the topology. Duplicate IDs are rejected.
// Registering a gateway when one already exists transfers gateway status to
// the new device; the previous holder keeps its membership but loses the flag.
func (n *Network) AddDevice(deviceID string, isGateway bool) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, exists := n.nodes[deviceID]; exists {
		n.logger.Warn("device already exists in mesh network", logging.DeviceID(deviceID))
		return false
	}

	n.nodes[deviceID] = &Node{
		DeviceID:       deviceID,
		Neighbors:      make([]string, 0),
		HopCount:       n.maxHops,
		SignalStrength: 100.0,
	}

	if isGateway {
		n.setGatewayLocked(deviceID)
	}

	n.logger.Info("device added to mesh network",
		logging.DeviceID(deviceID), logging.Bool("gateway", isGateway))
	return true
}

// AddNeighbor establishes a bidirectional neighbor relationship between two
// registered devices. It is idempotent; the hop counts are recomputed on
// every call.
func (n *Network) AddNeighbor(deviceID, neighborID string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	device, okDevice := n.nodes[deviceID]
	neighbor, okNeighbor := n.nodes[neighborID]
	if !okDevice || !okNeighbor {
		n.logger.Warn("cannot add neighbor relationship, device not found",
			logging.String("device_a", deviceID), logging.String("device_b", neighborID))
		return false
	}

	if !contains(device.Neighbors, neighborID) {
		device.Neighbors = append(device.Neighbors, neighborID)
	}
	if !contains(neighbor.Neighbors, deviceID) {
		neighbor.Neighbors = append(neighbor.Neighbors, deviceID)
	}

	n.updateHopCountsLocked()

	n.logger.Debug("neighbor relationship established",
		logging.String("device_a", deviceID), logging.String("device_b", neighborID))
	return true
}

// RemoveDevice deletes a device, prunes it from every adjacency list, clears
// gateway status if it held it, and recomputes hop counts.
func (n *Network) RemoveDevice(deviceID string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	node, exists := n.nodes[deviceID]
	if !exists {
		n.logger.Warn("device not found in mesh network", logging.DeviceID(deviceID))
		return false
	}

	for _, neighborID := range node.Neighbors {
		if neighbor, ok := n.nodes[neighborID]; ok {
			neighbor.Neighbors = remove(neighbor.Neighbors, deviceID)
		}
	}

	if deviceID == n.gatewayID {
		n.gatewayID = ""
	}

	delete(n.nodes, deviceID)
	n.updateHopCountsLocked()

	n.logger.Info("device removed from mesh network", logging.DeviceID(deviceID))
	return true
}

// SetGateway transfers gateway status to the given device. The previous
// gateway (if different) loses its flag, so at most one node is ever marked.
func (n *Network) SetGateway(deviceID string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, exists := n.nodes[deviceID]; !exists {
		n.logger.Warn("device not found in mesh network", logging.DeviceID(deviceID))
		return false
	}

	n.setGatewayLocked(deviceID)
	n.logger.Info("device set as gateway", logging.DeviceID(deviceID))
	return true
}

// setGatewayLocked assumes n.mu is held
func (n *Network) setGatewayLocked(deviceID string) {
	if n.gatewayID != "" && n.gatewayID != deviceID {
		if previous, ok := n.nodes[n.gatewayID]; ok {
			previous.IsGateway = false
		}
	}

	node := n.nodes[deviceID]
	node.IsGateway = true
	node.HopCount = 0
	n.gatewayID = deviceID

	n.updateHopCountsLocked()
}

// GetHopCount returns the hop distance from a device to the gateway. A device
// absent from the topology reports the unreachable ceiling.
func (n *Network) GetHopCount(deviceID string) int {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if node, ok := n.nodes[deviceID]; ok {
		return node.HopCount
	}
	return n.maxHops
}

// CanReachGateway reports whether a device has a route to the gateway
func (n *Network) CanReachGateway(deviceID string) bool {
	return n.GetHopCount(deviceID) < n.maxHops
}

// GetNeighbors returns a copy of a device's neighbor list
func (n *Network) GetNeighbors(deviceID string) []string {
	n.mu.RLock()
	defer n.mu.RUnlock()

	node, ok := n.nodes[deviceID]
	if !ok {
		return []string{}
	}
	neighbors := make([]string, len(node.Neighbors))
	copy(neighbors, node.Neighbors)
	return neighbors
}

// DeviceCount returns the number of devices in the topology
func (n *Network) DeviceCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.nodes)
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}

func remove(list []string, value string) []string {
	result := list[:0]
	for _, v := range list {
		if v != value {
			result = append(result, v)
		}
	}
	return result
}
