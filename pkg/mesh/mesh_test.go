package mesh

import (
	"testing"

	"github.com/iotsimlab/iotsim/pkg/logging"
)

func newTestNetwork(opts ...Option) *Network {
	opts = append([]Option{WithLogger(logging.NewNopLogger())}, opts...)
	return NewNetwork(opts...)
}

func TestAddDevice_Duplicate(t *testing.T) {
	n := newTestNetwork()

	if !n.AddDevice("SENSOR_1", false) {
		t.Fatal("first AddDevice should succeed")
	}
	if n.AddDevice("SENSOR_1", false) {
		t.Error("duplicate AddDevice should fail")
	}
	if n.DeviceCount() != 1 {
		t.Errorf("Expected 1 device, got %d", n.DeviceCount())
	}
}

func TestAddDevice_Gateway(t *testing.T) {
	n := newTestNetwork()

	n.AddDevice("GATEWAY_1", true)

	if n.GatewayID() != "GATEWAY_1" {
		t.Errorf("Expected gateway GATEWAY_1, got %q", n.GatewayID())
	}
	if got := n.GetHopCount("GATEWAY_1"); got != 0 {
		t.Errorf("Gateway hop count should be 0, got %d", got)
	}
}

// Registering a second gateway transfers the status instead of leaving a
// stale flag on the first one.
func TestAddDevice_SecondGatewayReplacesFirst(t *testing.T) {
	n := newTestNetwork()

	n.AddDevice("GW_A", true)
	n.AddDevice("GW_B", true)

	if n.GatewayID() != "GW_B" {
		t.Fatalf("Expected gateway GW_B, got %q", n.GatewayID())
	}

	gateways := 0
	for _, node := range n.Snapshot().Nodes {
		if node.IsGateway {
			gateways++
			if node.DeviceID != "GW_B" {
				t.Errorf("Stale gateway flag on %s", node.DeviceID)
			}
		}
	}
	if gateways != 1 {
		t.Errorf("Expected exactly 1 gateway, got %d", gateways)
	}
}

func TestAddNeighbor_SymmetricAndIdempotent(t *testing.T) {
	n := newTestNetwork()
	n.AddDevice("A", false)
	n.AddDevice("B", false)

	if !n.AddNeighbor("A", "B") {
		t.Fatal("AddNeighbor should succeed")
	}
	// Repeat in both directions; lists must not grow
	n.AddNeighbor("A", "B")
	n.AddNeighbor("B", "A")

	if got := n.GetNeighbors("A"); len(got) != 1 || got[0] != "B" {
		t.Errorf("Expected A's neighbors [B], got %v", got)
	}
	if got := n.GetNeighbors("B"); len(got) != 1 || got[0] != "A" {
		t.Errorf("Expected B's neighbors [A], got %v", got)
	}
}

func TestAddNeighbor_UnknownDevice(t *testing.T) {
	n := newTestNetwork()
	n.AddDevice("A", false)

	if n.AddNeighbor("A", "GHOST") {
		t.Error("AddNeighbor with unknown device should fail")
	}
	if n.AddNeighbor("GHOST", "A") {
		t.Error("AddNeighbor with unknown device should fail")
	}
	if got := n.GetNeighbors("A"); len(got) != 0 {
		t.Errorf("Failed AddNeighbor must not mutate adjacency, got %v", got)
	}
}

// Straight chain G - A - B - C - D with G as gateway: hop counts are exactly
// 1, 2, 3, 4 and the optimal path from D walks the whole chain.
func TestChainTopologyHopCounts(t *testing.T) {
	n := newTestNetwork()
	n.AddDevice("G", true)
	for _, id := range []string{"A", "B", "C", "D"} {
		n.AddDevice(id, false)
	}
	n.AddNeighbor("G", "A")
	n.AddNeighbor("A", "B")
	n.AddNeighbor("B", "C")
	n.AddNeighbor("C", "D")

	expected := map[string]int{"G": 0, "A": 1, "B": 2, "C": 3, "D": 4}
	for id, hops := range expected {
		if got := n.GetHopCount(id); got != hops {
			t.Errorf("GetHopCount(%s) = %d, want %d", id, got, hops)
		}
	}

	path := n.FindOptimalPath("D")
	want := []string{"D", "C", "B", "A", "G"}
	if len(path) != len(want) {
		t.Fatalf("Expected path %v, got %v", want, path)
	}
	for i := range want {
		if path[i] != want[i] {
			t.Fatalf("Expected path %v, got %v", want, path)
		}
	}
}

func TestShorterRouteWins(t *testing.T) {
	n := newTestNetwork()
	n.AddDevice("G", true)
	for _, id := range []string{"A", "B", "C"} {
		n.AddDevice(id, false)
	}
	// Long way round first: G-A-B-C
	n.AddNeighbor("G", "A")
	n.AddNeighbor("A", "B")
	n.AddNeighbor("B", "C")
	// Then a direct shortcut G-C
	n.AddNeighbor("G", "C")

	if got := n.GetHopCount("C"); got != 1 {
		t.Errorf("Expected C to relax to 1 hop after shortcut, got %d", got)
	}
	path := n.FindOptimalPath("C")
	if len(path) != 2 || path[0] != "C" || path[1] != "G" {
		t.Errorf("Expected path [C G], got %v", path)
	}
}

func TestUnreachableDevice(t *testing.T) {
	n := newTestNetwork()
	n.AddDevice("G", true)
	n.AddDevice("A", false)
	n.AddNeighbor("G", "A")
	// ISLAND has no edges to the gateway component
	n.AddDevice("ISLAND", false)

	if got := n.GetHopCount("ISLAND"); got != n.MaxHops() {
		t.Errorf("Disconnected device should report maxHops sentinel, got %d", got)
	}
	if n.CanReachGateway("ISLAND") {
		t.Error("Disconnected device should not reach the gateway")
	}
	if path := n.FindOptimalPath("ISLAND"); len(path) != 0 {
		t.Errorf("Expected empty path for disconnected device, got %v", path)
	}
}

func TestUnknownDeviceReportsUnreachable(t *testing.T) {
	n := newTestNetwork()
	if got := n.GetHopCount("NOBODY"); got != n.MaxHops() {
		t.Errorf("Unknown device should report maxHops, got %d", got)
	}
	if n.CanReachGateway("NOBODY") {
		t.Error("Unknown device should not reach the gateway")
	}
}

func TestFindOptimalPath_NoGateway(t *testing.T) {
	n := newTestNetwork()
	n.AddDevice("A", false)
	if path := n.FindOptimalPath("A"); len(path) != 0 {
		t.Errorf("Expected empty path without a gateway, got %v", path)
	}
}

func TestFindOptimalPath_SourceIsGateway(t *testing.T) {
	n := newTestNetwork()
	n.AddDevice("G", true)
	path := n.FindOptimalPath("G")
	if len(path) != 1 || path[0] != "G" {
		t.Errorf("Expected path [G], got %v", path)
	}
}

func TestRemoveDevice(t *testing.T) {
	n := newTestNetwork()
	n.AddDevice("G", true)
	n.AddDevice("A", false)
	n.AddDevice("B", false)
	n.AddNeighbor("G", "A")
	n.AddNeighbor("A", "B")

	if !n.RemoveDevice("A") {
		t.Fatal("RemoveDevice should succeed")
	}
	if n.RemoveDevice("A") {
		t.Error("Removing an absent device should fail")
	}

	// A must be pruned from every adjacency list
	for _, id := range []string{"G", "B"} {
		for _, neighbor := range n.GetNeighbors(id) {
			if neighbor == "A" {
				t.Errorf("%s still lists removed device A as neighbor", id)
			}
		}
	}

	// B lost its only route
	if n.CanReachGateway("B") {
		t.Error("B should be unreachable after relay removal")
	}
}

func TestRemoveGatewayClearsGateway(t *testing.T) {
	n := newTestNetwork()
	n.AddDevice("G", true)
	n.AddDevice("A", false)
	n.AddNeighbor("G", "A")

	n.RemoveDevice("G")

	if n.GatewayID() != "" {
		t.Errorf("Expected no gateway after removal, got %q", n.GatewayID())
	}
	if n.CanReachGateway("A") {
		t.Error("A should be unreachable after gateway removal")
	}
	// Hop count must fall back to the sentinel, not keep the old distance
	if got := n.GetHopCount("A"); got != DefaultMaxHops {
		t.Errorf("Expected sentinel hop count %d after gateway removal, got %d", DefaultMaxHops, got)
	}
	if path := n.FindOptimalPath("A"); len(path) != 0 {
		t.Errorf("Expected empty path without a gateway, got %v", path)
	}
}

func TestSetGateway_TransfersStatus(t *testing.T) {
	n := newTestNetwork()
	n.AddDevice("G1", true)
	n.AddDevice("G2", false)
	n.AddNeighbor("G1", "G2")

	if !n.SetGateway("G2") {
		t.Fatal("SetGateway should succeed")
	}
	if n.SetGateway("MISSING") {
		t.Error("SetGateway on an unknown device should fail")
	}

	if got := n.GetHopCount("G2"); got != 0 {
		t.Errorf("New gateway hop count should be 0, got %d", got)
	}
	if got := n.GetHopCount("G1"); got != 1 {
		t.Errorf("Old gateway should now be 1 hop away, got %d", got)
	}

	gateways := 0
	for _, node := range n.Snapshot().Nodes {
		if node.IsGateway {
			gateways++
		}
	}
	if gateways != 1 {
		t.Errorf("Expected exactly 1 gateway after transfer, got %d", gateways)
	}
}

func TestHopCeilingBoundsSearch(t *testing.T) {
	n := newTestNetwork(WithMaxHops(3))

	n.AddDevice("G", true)
	prev := "G"
	for _, id := range []string{"A", "B", "C", "D"} {
		n.AddDevice(id, false)
		n.AddNeighbor(prev, id)
		prev = id
	}

	if got := n.GetHopCount("B"); got != 2 {
		t.Errorf("B should be 2 hops, got %d", got)
	}
	// C sits exactly at the ceiling, D beyond it; both report the sentinel
	if n.CanReachGateway("C") {
		t.Error("C at the hop ceiling should be unreachable")
	}
	if n.CanReachGateway("D") {
		t.Error("D beyond the hop ceiling should be unreachable")
	}
}

func TestStats(t *testing.T) {
	n := newTestNetwork()
	n.AddDevice("G", true)
	n.AddDevice("A", false)
	n.AddDevice("B", false)
	n.AddDevice("ISLAND", false)
	n.AddNeighbor("G", "A")
	n.AddNeighbor("A", "B")

	stats := n.Stats()
	if stats.TotalDevices != 4 {
		t.Errorf("TotalDevices = %d, want 4", stats.TotalDevices)
	}
	if stats.ReachableDevices != 3 {
		t.Errorf("ReachableDevices = %d, want 3", stats.ReachableDevices)
	}
	if stats.UnreachableDevices != 1 {
		t.Errorf("UnreachableDevices = %d, want 1", stats.UnreachableDevices)
	}
	if stats.GatewayDevices != 1 {
		t.Errorf("GatewayDevices = %d, want 1", stats.GatewayDevices)
	}
	// A:1 + B:2 over two non-gateway reachable nodes
	if stats.AverageHops != 1.5 {
		t.Errorf("AverageHops = %f, want 1.5", stats.AverageHops)
	}
}
