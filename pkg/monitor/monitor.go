// Package monitor collects wall-clock timings of named simulation
// operations for lightweight performance reporting.
package monitor

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Stat is the aggregate for one named operation
type Stat struct {
	Name  string
	Count uint64
	Total time.Duration
	Min   time.Duration
	Max   time.Duration
}

// Average returns the mean duration across all recordings
func (s Stat) Average() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// Monitor aggregates durations per operation name. Safe for concurrent use.
type Monitor struct {
	mu    sync.Mutex
	stats map[string]*Stat
	start time.Time
}

// New creates an empty monitor
func New() *Monitor {
	return &Monitor{
		stats: make(map[string]*Stat),
		start: time.Now(),
	}
}

// Record adds one timing sample for an operation
func (m *Monitor) Record(name string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.stats[name]
	if !ok {
		s = &Stat{Name: name, Min: d, Max: d}
		m.stats[name] = s
	}
	s.Count++
	s.Total += d
	if d < s.Min {
		s.Min = d
	}
	if d > s.Max {
		s.Max = d
	}
}

// Time runs fn and records its duration under name
func (m *Monitor) Time(name string, fn func()) {
	start := time.Now()
	fn()
	m.Record(name, time.Since(start))
}

// Stat returns the aggregate for one operation and whether it exists
func (m *Monitor) Stat(name string) (Stat, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stats[name]
	if !ok {
		return Stat{}, false
	}
	return *s, true
}

// Stats returns all aggregates sorted by name
func (m *Monitor) Stats() []Stat {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Stat, 0, len(m.stats))
	for _, s := range m.stats {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Uptime returns time elapsed since the monitor was created or last reset
func (m *Monitor) Uptime() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return time.Since(m.start)
}

// Reset clears all aggregates and restarts the uptime clock
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = make(map[string]*Stat)
	m.start = time.Now()
}

// Report renders a human-readable summary of all operations
func (m *Monitor) Report() string {
	stats := m.Stats()

	var b strings.Builder
	b.WriteString("=== Performance Report ===\n")
	fmt.Fprintf(&b, "Uptime: %s\n", m.Uptime().Round(time.Millisecond))
	for _, s := range stats {
		fmt.Fprintf(&b, "%-24s count=%-6d avg=%-12s min=%-12s max=%s\n",
			s.Name, s.Count, s.Average().Round(time.Microsecond),
			s.Min.Round(time.Microsecond), s.Max.Round(time.Microsecond))
	}
	return b.String()
}
