package mesh

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// deviceNames is the pool random topologies draw from; small on purpose so
// generated edge sequences actually collide and exercise idempotency.
var deviceNames = []string{"N0", "N1", "N2", "N3", "N4", "N5", "N6", "N7"}

func genDeviceIndex() gopter.Gen {
	return gen.IntRange(0, len(deviceNames)-1)
}

// TestMeshInvariants uses property-based testing to verify topology invariants
// that must hold for any sequence of mutations.
func TestMeshInvariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	// Property 1: adjacency is always symmetric, whatever edge sequence was applied
	properties.Property("adjacency stays symmetric", prop.ForAll(
		func(pairs []int) bool {
			n := newTestNetwork()
			for _, name := range deviceNames {
				n.AddDevice(name, false)
			}

			for i := 0; i+1 < len(pairs); i += 2 {
				n.AddNeighbor(deviceNames[pairs[i]], deviceNames[pairs[i+1]])
			}

			for _, a := range deviceNames {
				for _, b := range n.GetNeighbors(a) {
					if !contains(n.GetNeighbors(b), a) {
						return false
					}
				}
			}
			return true
		},
		gen.SliceOf(genDeviceIndex()),
	))

	// Property 2: at most one node ever carries the gateway flag
	properties.Property("at most one gateway", prop.ForAll(
		func(gatewayPicks []int) bool {
			n := newTestNetwork()
			for _, name := range deviceNames {
				n.AddDevice(name, false)
			}

			for _, pick := range gatewayPicks {
				n.SetGateway(deviceNames[pick])
			}

			gateways := 0
			for _, node := range n.Snapshot().Nodes {
				if node.IsGateway {
					gateways++
				}
			}
			return gateways <= 1
		},
		gen.SliceOf(genDeviceIndex()),
	))

	// Property 3: hop counts are 0 for the gateway and otherwise either a
	// positive finite distance or the unreachable sentinel
	properties.Property("hop counts stay in range", prop.ForAll(
		func(pairs []int) bool {
			n := newTestNetwork()
			n.AddDevice(deviceNames[0], true)
			for _, name := range deviceNames[1:] {
				n.AddDevice(name, false)
			}

			for i := 0; i+1 < len(pairs); i += 2 {
				n.AddNeighbor(deviceNames[pairs[i]], deviceNames[pairs[i+1]])
			}

			for _, node := range n.Snapshot().Nodes {
				hops := node.HopCount
				if node.IsGateway {
					if hops != 0 {
						return false
					}
					continue
				}
				if hops < 1 || hops > n.MaxHops() {
					return false
				}
			}
			return true
		},
		gen.SliceOf(genDeviceIndex()),
	))

	// Property 4: a returned path always starts at the source, ends at the
	// gateway, and walks existing edges
	properties.Property("paths walk real edges", prop.ForAll(
		func(pairs []int, source int) bool {
			n := newTestNetwork()
			n.AddDevice(deviceNames[0], true)
			for _, name := range deviceNames[1:] {
				n.AddDevice(name, false)
			}

			for i := 0; i+1 < len(pairs); i += 2 {
				n.AddNeighbor(deviceNames[pairs[i]], deviceNames[pairs[i+1]])
			}

			path := n.FindOptimalPath(deviceNames[source])
			if len(path) == 0 {
				return true // no route is a valid outcome
			}
			if path[0] != deviceNames[source] || path[len(path)-1] != n.GatewayID() {
				return false
			}
			for i := 0; i+1 < len(path); i++ {
				if !contains(n.GetNeighbors(path[i]), path[i+1]) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(genDeviceIndex()),
		genDeviceIndex(),
	))

	properties.TestingRun(t)
}
