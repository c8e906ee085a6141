package mesh

import (
	"container/list"
)

// FindOptimalPath returns the shortest route from a source device to the
// gateway, including both endpoints. It returns an empty path if no gateway
// is configured or no route exists.
func (n *Network) FindOptimalPath(sourceDevice string) []string {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.gatewayID == "" {
		n.logger.Debug("no gateway configured in mesh network")
		return []string{}
	}

	return n.bfsShortestPathLocked(sourceDevice, n.gatewayID)
}

// bfsShortestPathLocked runs an unweighted shortest-path search over the
// neighbor graph, tracking parent pointers to reconstruct the route.
// Assumes n.mu is held.
func (n *Network) bfsShortestPathLocked(start, target string) []string {
	if _, ok := n.nodes[start]; !ok {
		return []string{}
	}
	if _, ok := n.nodes[target]; !ok {
		return []string{}
	}
	if start == target {
		return []string{start}
	}

	visited := map[string]bool{start: true}
	parent := make(map[string]string)

	queue := list.New()
	queue.PushBack(start)

	for queue.Len() > 0 {
		current := queue.Remove(queue.Front()).(string)

		for _, neighborID := range n.nodes[current].Neighbors {
			if visited[neighborID] {
				continue
			}
			visited[neighborID] = true
			parent[neighborID] = current
			queue.PushBack(neighborID)

			if neighborID == target {
				return reconstructPath(start, target, parent)
			}
		}
	}

	return []string{}
}

// reconstructPath walks parent pointers backward from target to start and
// reverses the result.
func reconstructPath(start, target string, parent map[string]string) []string {
	path := make([]string, 0)
	node := target
	for node != start {
		path = append(path, node)
		node = parent[node]
	}
	path = append(path, start)

	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// updateHopCountsLocked recomputes every node's hop distance to the gateway.
// It is a BFS relaxation rather than a strict visited-once BFS: a node may be
// enqueued again if a later traversal order reaches it with a shorter
// distance. The hop ceiling bounds expansion and guarantees termination.
// Assumes n.mu is held.
func (n *Network) updateHopCountsLocked() {
	// Reset before checking for a gateway: removing the gateway must leave
	// every node at the sentinel, not at its previous distance.
	for id, node := range n.nodes {
		if id == n.gatewayID && n.gatewayID != "" {
			node.HopCount = 0
		} else {
			node.HopCount = n.maxHops
		}
	}

	if n.gatewayID == "" {
		return
	}

	type hopEntry struct {
		deviceID string
		hops     int
	}

	visited := map[string]bool{n.gatewayID: true}
	queue := list.New()
	queue.PushBack(hopEntry{deviceID: n.gatewayID, hops: 0})

	for queue.Len() > 0 {
		entry := queue.Remove(queue.Front()).(hopEntry)
		nextHops := entry.hops + 1

		for _, neighborID := range n.nodes[entry.deviceID].Neighbors {
			neighbor, ok := n.nodes[neighborID]
			if !ok {
				continue
			}
			if visited[neighborID] && neighbor.HopCount <= nextHops {
				continue
			}

			neighbor.HopCount = nextHops
			visited[neighborID] = true

			// Nodes at or beyond the ceiling stay marked unreachable and
			// are not expanded further.
			if nextHops < n.maxHops {
				queue.PushBack(hopEntry{deviceID: neighborID, hops: nextHops})
			}
		}
	}
}
