// Command iotsim-tui is an interactive dashboard for the IoT network
// simulation: live engine and network stats, the device fleet, the mesh
// topology and a rolling delivery log.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/iotsimlab/iotsim/pkg/device"
	"github.com/iotsimlab/iotsim/pkg/engine"
	"github.com/iotsimlab/iotsim/pkg/logging"
	"github.com/iotsimlab/iotsim/pkg/mesh"
	"github.com/iotsimlab/iotsim/pkg/message"
	"github.com/iotsimlab/iotsim/pkg/network"
	"github.com/iotsimlab/iotsim/pkg/pubsub"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF00FF")).
			MarginLeft(2).
			MarginTop(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00FFFF")).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00FFFF")).
			Padding(0, 1)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#FF00FF")).
			Padding(0, 2)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#666666")).
				Padding(0, 2)

	contentStyle = lipgloss.NewStyle().
			MarginLeft(2).
			MarginTop(1)

	statsBoxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00FF00")).
			Padding(1, 2).
			MarginRight(2)

	droppedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000"))

	deliveredStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			MarginTop(1).
			MarginLeft(2)
)

type view int

const (
	dashboardView view = iota
	devicesView
	topologyView
	eventsView
)

const viewCount = 4

type keyMap struct {
	Tab      key.Binding
	ShiftTab key.Binding
	Pause    key.Binding
	Faster   key.Binding
	Slower   key.Binding
	Quit     key.Binding
}

var keys = keyMap{
	Tab: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "next view"),
	),
	ShiftTab: key.NewBinding(
		key.WithKeys("shift+tab"),
		key.WithHelp("shift+tab", "prev view"),
	),
	Pause: key.NewBinding(
		key.WithKeys(" ", "p"),
		key.WithHelp("space", "pause/resume"),
	),
	Faster: key.NewBinding(
		key.WithKeys("+", "="),
		key.WithHelp("+", "faster"),
	),
	Slower: key.NewBinding(
		key.WithKeys("-"),
		key.WithHelp("-", "slower"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Tab, k.Pause, k.Faster, k.Slower, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Tab, k.ShiftTab},
		{k.Pause, k.Faster, k.Slower},
		{k.Quit},
	}
}

type deliveryLogEntry struct {
	at        time.Time
	messageID string
	source    string
	dest      string
	delivered bool
	reason    string
}

type model struct {
	eng      *engine.Engine
	nm       *network.Manager
	devices  *device.Manager
	topology *mesh.Network
	sub      *pubsub.Subscription

	currentView view
	deviceTable table.Model
	help        help.Model
	keys        keyMap
	width       int
	height      int

	engStats engine.Stats
	netStats network.Stats
	log      []deliveryLogEntry
}

type tickMsg time.Time

type deliveryMsg pubsub.DeliveryEvent

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitForDelivery(sub *pubsub.Subscription) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-sub.Channel()
		if !ok {
			return nil
		}
		if de, ok := ev.(pubsub.DeliveryEvent); ok {
			return deliveryMsg(de)
		}
		return nil
	}
}

func initialModel(eng *engine.Engine, nm *network.Manager, devices *device.Manager, topology *mesh.Network, sub *pubsub.Subscription) model {
	columns := []table.Column{
		{Title: "ID", Width: 12},
		{Title: "Type", Width: 10},
		{Title: "Name", Width: 22},
		{Title: "Protocol", Width: 12},
		{Title: "Hops", Width: 6},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("#00FFFF")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(lipgloss.Color("#FF00FF")).
		Bold(false)
	t.SetStyles(s)

	return model{
		eng:         eng,
		nm:          nm,
		devices:     devices,
		topology:    topology,
		sub:         sub,
		currentView: dashboardView,
		deviceTable: t,
		help:        help.New(),
		keys:        keys,
		engStats:    eng.Stats(),
		netStats:    nm.Stats(),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), waitForDelivery(m.sub))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case tickMsg:
		m.engStats = m.eng.Stats()
		m.netStats = m.nm.Stats()
		m.refreshDeviceTable()
		return m, tickCmd()

	case deliveryMsg:
		m.log = append(m.log, deliveryLogEntry{
			at:        msg.At,
			messageID: msg.MessageID,
			source:    msg.Source,
			dest:      msg.Destination,
			delivered: msg.Delivered,
			reason:    msg.Reason,
		})
		if len(m.log) > 100 {
			m.log = m.log[len(m.log)-100:]
		}
		return m, waitForDelivery(m.sub)

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keys.Tab):
			m.currentView = (m.currentView + 1) % viewCount

		case key.Matches(msg, m.keys.ShiftTab):
			if m.currentView == 0 {
				m.currentView = viewCount - 1
			} else {
				m.currentView--
			}

		case key.Matches(msg, m.keys.Pause):
			switch m.eng.State() {
			case engine.Running:
				m.eng.Pause()
			case engine.Paused:
				m.eng.Resume()
			}
			m.engStats = m.eng.Stats()

		case key.Matches(msg, m.keys.Faster):
			m.eng.SetSimulationSpeed(m.eng.Speed() * 2)

		case key.Matches(msg, m.keys.Slower):
			m.eng.SetSimulationSpeed(m.eng.Speed() / 2)
		}
	}

	if m.currentView == devicesView {
		m.deviceTable, cmd = m.deviceTable.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *model) refreshDeviceTable() {
	rows := make([]table.Row, 0, m.devices.DeviceCount())
	for _, d := range m.devices.Devices() {
		hops := "-"
		if m.topology.CanReachGateway(d.ID()) {
			hops = fmt.Sprintf("%d", m.topology.GetHopCount(d.ID()))
		}
		rows = append(rows, table.Row{
			d.ID(),
			d.Type(),
			d.Name(),
			m.nm.DeviceProtocol(d.ID()).String(),
			hops,
		})
	}
	m.deviceTable.SetRows(rows)
}

func (m model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var s strings.Builder

	s.WriteString(titleStyle.Render("IoT Network Simulator"))
	s.WriteString("\n\n")
	s.WriteString(m.renderTabs())
	s.WriteString("\n\n")

	switch m.currentView {
	case dashboardView:
		s.WriteString(m.renderDashboard())
	case devicesView:
		s.WriteString(m.renderDevices())
	case topologyView:
		s.WriteString(m.renderTopology())
	case eventsView:
		s.WriteString(m.renderEvents())
	}

	s.WriteString("\n\n")
	s.WriteString(helpStyle.Render(m.help.ShortHelpView(m.keys.ShortHelp())))

	return s.String()
}

func (m model) renderTabs() string {
	tabs := []string{"Dashboard", "Devices", "Topology", "Deliveries"}
	var renderedTabs []string

	for i, tab := range tabs {
		if view(i) == m.currentView {
			renderedTabs = append(renderedTabs, activeTabStyle.Render(tab))
		} else {
			renderedTabs = append(renderedTabs, inactiveTabStyle.Render(tab))
		}
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, renderedTabs...)
}

func (m model) renderDashboard() string {
	simContent := fmt.Sprintf(`Simulation
----------
State:    %s
Speed:    %.2fx
Steps:    %d
Events:   %d
Queue:    %d
Uptime:   %s`,
		m.engStats.State,
		m.engStats.Speed,
		m.engStats.Steps,
		m.engStats.EventsProcessed,
		m.engStats.QueueDepth,
		m.engStats.Uptime.Round(time.Second),
	)

	successRate := 0.0
	if m.netStats.MessagesSent > 0 {
		successRate = m.netStats.SuccessRate() * 100
	}
	netContent := fmt.Sprintf(`Network
-------
Sent:     %d
Received: %d
Dropped:  %d
Errors:   %d
Success:  %.1f%%
Queue:    %d`,
		m.netStats.MessagesSent,
		m.netStats.MessagesReceived,
		m.netStats.MessagesDropped,
		m.netStats.Errors,
		successRate,
		m.nm.QueueDepth(),
	)

	ms := m.topology.Stats()
	meshContent := fmt.Sprintf(`Mesh
----
Devices:     %d
Reachable:   %d
Unreachable: %d
Avg Hops:    %.2f`,
		ms.TotalDevices,
		ms.ReachableDevices,
		ms.UnreachableDevices,
		ms.AverageHops,
	)

	return contentStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Top,
			statsBoxStyle.Render(simContent),
			statsBoxStyle.Render(netContent),
			statsBoxStyle.Render(meshContent),
		),
	)
}

func (m model) renderDevices() string {
	var s strings.Builder
	s.WriteString(headerStyle.Render("Device Fleet"))
	s.WriteString("\n\n")
	s.WriteString(m.deviceTable.View())
	return contentStyle.Render(s.String())
}

func (m model) renderTopology() string {
	var s strings.Builder
	s.WriteString(headerStyle.Render("Mesh Topology"))
	s.WriteString("\n\n")

	snap := m.topology.Snapshot()
	if snap.GatewayID == "" {
		s.WriteString("No gateway configured\n")
	}
	for _, node := range snap.Nodes {
		marker := " "
		if node.IsGateway {
			marker = "*"
		}
		hops := "unreachable"
		if node.HopCount < m.topology.MaxHops() {
			hops = fmt.Sprintf("%d hops", node.HopCount)
		}
		path := m.topology.FindOptimalPath(node.DeviceID)
		route := ""
		if len(path) > 1 {
			route = "  via " + strings.Join(path[1:], " > ")
		}
		s.WriteString(fmt.Sprintf("%s %-12s %-12s neighbors: %s%s\n",
			marker, node.DeviceID, hops, strings.Join(node.Neighbors, ", "), route))
	}

	return contentStyle.Render(s.String())
}

func (m model) renderEvents() string {
	var s strings.Builder
	s.WriteString(headerStyle.Render("Delivery Log"))
	s.WriteString("\n\n")

	start := 0
	if len(m.log) > 15 {
		start = len(m.log) - 15
	}
	if len(m.log) == 0 {
		s.WriteString("No deliveries yet\n")
	}
	for _, entry := range m.log[start:] {
		line := fmt.Sprintf("%s  %-10s %s > %s",
			entry.at.Format("15:04:05"), entry.messageID, entry.source, entry.dest)
		if entry.delivered {
			s.WriteString(deliveredStyle.Render(line + "  delivered"))
		} else {
			s.WriteString(droppedStyle.Render(line + "  " + entry.reason))
		}
		s.WriteString("\n")
	}

	return contentStyle.Render(s.String())
}

func main() {
	var (
		sensors = flag.Int("sensors", 4, "number of simulated sensors")
		loss    = flag.Float64("loss", 0.05, "packet loss rate")
		delay   = flag.Float64("delay", 50, "max network delay in ms")
	)
	flag.Parse()

	logger := logging.NewNopLogger() // keep the terminal clean for the TUI

	bus := pubsub.NewBus()
	defer bus.Shutdown()

	devices := device.NewManager(logger)
	topology := mesh.NewNetwork(mesh.WithLogger(logger))
	nm := network.NewManager(devices,
		network.WithLogger(logger),
		network.WithBus(bus),
	)
	nm.SetNetworkConditions(*loss, 0, *delay)

	eng := engine.New(
		engine.WithLogger(logger),
		engine.WithNetwork(nm),
		engine.WithBus(bus),
	)

	gw := device.NewActuator("GATEWAY_1", "Border Gateway", logger)
	devices.Register(gw)
	topology.AddDevice(gw.ID(), true)
	nm.SetDeviceProtocol(gw.ID(), network.ProtocolMQTT)

	relay := device.NewRelay("RELAY_1", "Mesh Relay", logger)
	devices.Register(relay)
	topology.AddDevice(relay.ID(), false)
	topology.AddNeighbor(relay.ID(), gw.ID())
	nm.SetDeviceProtocol(relay.ID(), network.ProtocolThread)

	for i := 1; i <= *sensors; i++ {
		id := fmt.Sprintf("SENSOR_%d", i)
		var s *device.Sensor
		if i%2 == 0 {
			s = device.NewHumiditySensor(id, fmt.Sprintf("Humidity %d", i), logger)
		} else {
			s = device.NewTemperatureSensor(id, fmt.Sprintf("Temperature %d", i), logger)
		}
		devices.Register(s)
		topology.AddDevice(id, false)
		if i%2 == 1 {
			topology.AddNeighbor(id, relay.ID())
		} else {
			topology.AddNeighbor(id, gw.ID())
		}
		nm.SetDeviceProtocol(id, network.ProtocolZigBee)

		sensor := s
		eng.ScheduleRepeating(time.Second, func() {
			payload := fmt.Sprintf("%s=%.2f", sensor.Name(), sensor.Read())
			nm.SendMessage(message.New(sensor.ID(), "GATEWAY_1", payload, message.Data))
		}, "telemetry_"+id, 0)
	}

	sub := bus.Subscribe(context.Background(), pubsub.TopicDelivery)

	eng.Start()
	defer eng.Stop()

	p := tea.NewProgram(initialModel(eng, nm, devices, topology, sub), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("TUI failed: %v", err)
	}
}
