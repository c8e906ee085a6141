// Command iotsim runs a headless IoT network simulation: a mesh of
// sensors reporting through relays to a gateway, with configurable packet
// loss and delay, exposing prometheus metrics and JSON stats over HTTP.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iotsimlab/iotsim/pkg/device"
	"github.com/iotsimlab/iotsim/pkg/engine"
	"github.com/iotsimlab/iotsim/pkg/logging"
	"github.com/iotsimlab/iotsim/pkg/mesh"
	"github.com/iotsimlab/iotsim/pkg/message"
	"github.com/iotsimlab/iotsim/pkg/metrics"
	"github.com/iotsimlab/iotsim/pkg/monitor"
	"github.com/iotsimlab/iotsim/pkg/network"
	"github.com/iotsimlab/iotsim/pkg/pubsub"
	"github.com/iotsimlab/iotsim/pkg/security"
	"github.com/iotsimlab/iotsim/pkg/server"
)

func main() {
	var (
		configPath = flag.String("config", "", "YAML configuration file")
		httpAddr   = flag.String("http", ":8080", "address for metrics and stats")
		duration   = flag.Duration("duration", 30*time.Second, "how long to run, 0 runs until interrupted")
		sensors    = flag.Int("sensors", 4, "number of simulated sensors")
		secure     = flag.Bool("secure", false, "seal payloads in flight")
		seed       = flag.Int64("seed", 0, "random seed, 0 uses the clock")
	)
	flag.Parse()

	logger := logging.DefaultLogger()

	if err := run(*configPath, *httpAddr, *duration, *sensors, *secure, *seed, logger); err != nil {
		logger.Error("simulation failed", logging.Error(err))
		os.Exit(1)
	}
}

func run(configPath, httpAddr string, duration time.Duration, sensorCount int, secure bool, seed int64, logger logging.Logger) error {
	reg := metrics.NewRegistry()
	bus := pubsub.NewBus()
	defer bus.Shutdown()
	perf := monitor.New()

	devices := device.NewManager(logger)
	topology := mesh.NewNetwork(mesh.WithLogger(logger))

	sec := security.NewManager(logger)

	netOpts := []network.Option{
		network.WithLogger(logger),
		network.WithMetrics(reg),
		network.WithBus(bus),
		network.WithSecurity(sec),
		network.WithMonitor(perf),
	}
	if seed != 0 {
		netOpts = append(netOpts, network.WithSeed(seed))
	}
	nm := network.NewManager(devices, netOpts...)

	eng := engine.New(
		engine.WithLogger(logger),
		engine.WithNetwork(nm),
		engine.WithMetrics(reg),
		engine.WithBus(bus),
		engine.WithMonitor(perf),
	)

	if configPath != "" {
		if err := eng.LoadConfig(configPath); err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
	}

	buildTopology(devices, topology, nm, sec, sensorCount, secure, logger)
	syncMeshMetrics(reg, topology)

	srv := server.New(httpAddr, reg, eng, nm, topology, logger)
	srv.SetConfigReload(func() error {
		if configPath == "" {
			return nil
		}
		return eng.LoadConfig(configPath)
	})
	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("http server failed", logging.Error(err))
		}
	}()
	defer srv.Shutdown(5 * time.Second)

	eng.Start()
	scheduleTelemetry(eng, devices, topology, nm, reg, logger)

	waitForEnd(duration, logger)

	eng.Stop()

	printReports(eng, nm, topology, sec, perf)
	return nil
}

// buildTopology registers a gateway, relays and sensors, links them into a
// chain-of-relays mesh and tags each with a protocol.
func buildTopology(devices *device.Manager, topology *mesh.Network, nm *network.Manager, sec *security.Manager, sensorCount int, secure bool, logger logging.Logger) {
	gw := device.NewActuator("GATEWAY_1", "Border Gateway", logger)
	devices.Register(gw)
	topology.AddDevice(gw.ID(), true)
	nm.SetDeviceProtocol(gw.ID(), network.ProtocolMQTT)

	relay := device.NewRelay("RELAY_1", "Mesh Relay", logger)
	devices.Register(relay)
	topology.AddDevice(relay.ID(), false)
	topology.AddNeighbor(relay.ID(), gw.ID())
	nm.SetDeviceProtocol(relay.ID(), network.ProtocolThread)

	for i := 1; i <= sensorCount; i++ {
		id := fmt.Sprintf("SENSOR_%d", i)
		var s *device.Sensor
		if i%2 == 0 {
			s = device.NewHumiditySensor(id, fmt.Sprintf("Humidity %d", i), logger)
		} else {
			s = device.NewTemperatureSensor(id, fmt.Sprintf("Temperature %d", i), logger)
		}
		devices.Register(s)
		topology.AddDevice(id, false)
		// Odd sensors reach the gateway through the relay, even ones direct
		if i%2 == 1 {
			topology.AddNeighbor(id, relay.ID())
		} else {
			topology.AddNeighbor(id, gw.ID())
		}
		nm.SetDeviceProtocol(id, network.ProtocolZigBee)

		if secure {
			if _, err := sec.CreateAssociation(security.DeviceAddr(id), security.DeviceAddr(gw.ID())); err != nil {
				logger.Warn("association setup failed", logging.DeviceID(id), logging.Error(err))
			}
		}
	}

	if secure {
		sec.Enable()
	}
}

// scheduleTelemetry sets up the repeating simulation workload: sensor
// readings flowing to the gateway and periodic topology refreshes.
func scheduleTelemetry(eng *engine.Engine, devices *device.Manager, topology *mesh.Network, nm *network.Manager, reg *metrics.Registry, logger logging.Logger) {
	for _, id := range devices.DeviceIDs() {
		d, ok := devices.Get(id)
		if !ok {
			continue
		}
		s, ok := d.(*device.Sensor)
		if !ok {
			continue
		}
		sensor := s
		eng.ScheduleRepeating(500*time.Millisecond, func() {
			if !topology.CanReachGateway(sensor.ID()) {
				logger.Debug("sensor cannot reach gateway, reading skipped",
					logging.DeviceID(sensor.ID()))
				return
			}
			payload := fmt.Sprintf("%s=%.2f", sensor.Name(), sensor.Read())
			nm.SendMessage(message.New(sensor.ID(), "GATEWAY_1", payload, message.Data))
		}, "telemetry_"+id, 0)
	}

	eng.ScheduleRepeating(2*time.Second, func() {
		syncMeshMetrics(reg, topology)
	}, "mesh_refresh", 1)
}

func syncMeshMetrics(reg *metrics.Registry, topology *mesh.Network) {
	s := topology.Stats()
	reg.UpdateMeshMetrics(s.TotalDevices, s.ReachableDevices, s.UnreachableDevices)
}

func waitForEnd(duration time.Duration, logger logging.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if duration > 0 {
		select {
		case <-time.After(duration):
		case sig := <-sigCh:
			logger.Info("interrupted", logging.String("signal", sig.String()))
		}
		return
	}
	sig := <-sigCh
	logger.Info("interrupted", logging.String("signal", sig.String()))
}

func printReports(eng *engine.Engine, nm *network.Manager, topology *mesh.Network, sec *security.Manager, perf *monitor.Monitor) {
	es := eng.Stats()
	ns := nm.Stats()
	ms := topology.Stats()

	fmt.Println("\n=== Simulation Statistics ===")
	fmt.Printf("State: %s\n", es.State)
	fmt.Printf("Steps: %d\n", es.Steps)
	fmt.Printf("Events Processed: %d\n", es.EventsProcessed)
	fmt.Printf("Speed: %.2fx\n", es.Speed)

	fmt.Println("\n=== Network Statistics ===")
	fmt.Printf("Uptime: %s\n", time.Since(ns.StartTime).Round(time.Second))
	fmt.Printf("Messages Sent: %d\n", ns.MessagesSent)
	fmt.Printf("Messages Received: %d\n", ns.MessagesReceived)
	fmt.Printf("Messages Dropped: %d\n", ns.MessagesDropped)
	fmt.Printf("Errors: %d\n", ns.Errors)
	if ns.MessagesSent > 0 {
		fmt.Printf("Success Rate: %.2f%%\n", ns.SuccessRate()*100)
	}

	fmt.Println("\n=== Mesh Statistics ===")
	fmt.Printf("Devices: %d (reachable %d, unreachable %d)\n",
		ms.TotalDevices, ms.ReachableDevices, ms.UnreachableDevices)
	fmt.Printf("Average Hops: %.2f\n", ms.AverageHops)

	if sec.Enabled() {
		fmt.Println("\n=== Security ===")
		fmt.Printf("Associations: %d\n", sec.AssociationCount())
		fmt.Printf("Packets Secured: %d\n", sec.PacketsSecured())
	}

	fmt.Println()
	fmt.Print(perf.Report())
}
