package mesh

import (
	"sort"
)

// NodeInfo is a read-only view of one node's topology state
type NodeInfo struct {
	DeviceID       string
	Neighbors      []string
	HopCount       int
	IsGateway      bool
	SignalStrength float64
}

// Topology is a point-in-time view of the whole mesh
type Topology struct {
	GatewayID string
	Nodes     []NodeInfo
}

// Statistics summarizes reachability across the mesh
type Statistics struct {
	TotalDevices       int
	ReachableDevices   int
	UnreachableDevices int
	GatewayDevices     int
	AverageHops        float64
}

// Snapshot returns a copy of the current topology, nodes sorted by device ID
func (n *Network) Snapshot() Topology {
	n.mu.RLock()
	defer n.mu.RUnlock()

	topo := Topology{
		GatewayID: n.gatewayID,
		Nodes:     make([]NodeInfo, 0, len(n.nodes)),
	}
	for _, node := range n.nodes {
		neighbors := make([]string, len(node.Neighbors))
		copy(neighbors, node.Neighbors)
		topo.Nodes = append(topo.Nodes, NodeInfo{
			DeviceID:       node.DeviceID,
			Neighbors:      neighbors,
			HopCount:       node.HopCount,
			IsGateway:      node.IsGateway,
			SignalStrength: node.SignalStrength,
		})
	}

	sort.Slice(topo.Nodes, func(i, j int) bool {
		return topo.Nodes[i].DeviceID < topo.Nodes[j].DeviceID
	})
	return topo
}

// Stats computes reachability statistics for the current topology
func (n *Network) Stats() Statistics {
	n.mu.RLock()
	defer n.mu.RUnlock()

	stats := Statistics{TotalDevices: len(n.nodes)}

	totalHops := 0
	for _, node := range n.nodes {
		if node.IsGateway {
			stats.GatewayDevices++
		}
		if node.HopCount < n.maxHops {
			stats.ReachableDevices++
			if !node.IsGateway {
				totalHops += node.HopCount
			}
		} else {
			stats.UnreachableDevices++
		}
	}

	if nonGateway := stats.ReachableDevices - stats.GatewayDevices; nonGateway > 0 {
		stats.AverageHops = float64(totalHops) / float64(nonGateway)
	}
	return stats
}
