// Package resources implements the Resource Monitor (spec.md §4.2): a
// bounded pool of concurrency slots plus a periodic memory-pressure
// sample, both behind one mutual-exclusion region per spec.md §4.2/§5.
//
// Grounded on the teacher's pkg/ratelimit.DefaultRateLimiter (pkg/ratelimit/limiter.go):
// the same "hold a mutex across a small counter/threshold check" shape,
// generalized from token buckets to slot acquisition and pressure levels.
// Metrics are exposed the way pkg/observability/metrics.go exposes them —
// GaugeVecs registered on construction, nil-receiver-safe recorders.
package resources

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fl-sean03/agentgate/internal/events"
)

// PressureLevel is the three-level memory-pressure gauge (spec.md §4.2).
type PressureLevel string

const (
	PressureOK       PressureLevel = "ok"
	PressureWarning  PressureLevel = "warning"
	PressureCritical PressureLevel = "critical"
)

// Slot is an exclusive concurrency handle (spec.md §3's "Slot" glossary entry).
type Slot struct {
	ID        string
	OwnerID   string
	Acquired  time.Time
	released  bool
}

// Thresholds configures when memory-pressure level transitions fire.
type Thresholds struct {
	WarningFraction  float64 // fraction of sampled memory in use that triggers "warning"
	CriticalFraction float64 // ... "critical"
}

func DefaultThresholds() Thresholds {
	return Thresholds{WarningFraction: 0.8, CriticalFraction: 0.9}
}

// SlotsHealth is the slot-pool portion of a health report (spec.md §4.2).
type SlotsHealth struct {
	Total  int
	InUse  int
	Free   int
}

// MemoryHealth is the memory portion of a health report.
type MemoryHealth struct {
	UsedBytes      uint64
	AvailableBytes uint64
	Pressure       PressureLevel
}

// Monitor is the Resource Monitor. One instance per Execution Engine.
type Monitor struct {
	mu         sync.Mutex
	cap        int
	inUse      map[string]*Slot
	pressure   PressureLevel
	thresholds Thresholds
	nextID     int

	bus    *events.Bus
	sample func() (used, available uint64)

	metrics *metrics
}

type metrics struct {
	slotsInUse prometheus.Gauge
	slotsFree  prometheus.Gauge
	pressure   prometheus.Gauge
}

// Option configures a Monitor at construction time.
type Option func(*Monitor)

// WithSampler overrides the default runtime.MemStats-based sampler, mainly
// for tests that want deterministic pressure transitions.
func WithSampler(f func() (used, available uint64)) Option {
	return func(m *Monitor) { m.sample = f }
}

// WithThresholds overrides DefaultThresholds.
func WithThresholds(t Thresholds) Option {
	return func(m *Monitor) { m.thresholds = t }
}

// WithMetrics registers the monitor's gauges on reg. Safe to omit (metrics
// recording is then a no-op), matching pkg/observability.Metrics' nil-safety.
func WithMetrics(reg *prometheus.Registry, namespace string) Option {
	return func(m *Monitor) {
		mt := &metrics{
			slotsInUse: prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Subsystem: "slots", Name: "in_use"}),
			slotsFree:  prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Subsystem: "slots", Name: "free"}),
			pressure:   prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Subsystem: "memory", Name: "pressure_level"}),
		}
		reg.MustRegister(mt.slotsInUse, mt.slotsFree, mt.pressure)
		m.metrics = mt
	}
}

// New creates a Monitor with cap slots (<=0 defaults to NumCPU), publishing
// slot-available and memory-pressure events on bus.
func New(cap int, bus *events.Bus, opts ...Option) *Monitor {
	if cap <= 0 {
		cap = runtime.NumCPU()
	}
	m := &Monitor{
		cap:        cap,
		inUse:      make(map[string]*Slot),
		pressure:   PressureOK,
		thresholds: DefaultThresholds(),
		bus:        bus,
		sample:     sampleRuntimeMemStats,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func sampleRuntimeMemStats() (used, available uint64) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.Sys, ms.Sys * 4 // approximate "available" ceiling absent a cgroup reader
}

// AcquireSlot returns a slot iff free count > 0 AND pressure != critical
// (spec.md §4.2), atomically.
func (m *Monitor) AcquireSlot(ownerID string) (*Slot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.inUse) >= m.cap || m.pressure == PressureCritical {
		return nil, false
	}

	m.nextID++
	slot := &Slot{ID: fmt.Sprintf("slot-%d", m.nextID), OwnerID: ownerID, Acquired: time.Now()}
	m.inUse[slot.ID] = slot
	m.recordGaugesLocked()
	return slot, true
}

// ReleaseSlot is idempotent; emits slot-available exactly once per first
// release (spec.md §4.2).
func (m *Monitor) ReleaseSlot(slot *Slot) {
	if slot == nil {
		return
	}
	m.mu.Lock()
	existing, ok := m.inUse[slot.ID]
	if !ok || existing.released {
		m.mu.Unlock()
		return
	}
	existing.released = true
	delete(m.inUse, slot.ID)
	m.recordGaugesLocked()
	m.mu.Unlock()

	if m.bus != nil {
		m.bus.Publish(events.TopicSlotAvailable, events.SlotAvailable{SlotID: slot.ID, Timestamp: time.Now()})
	}
}

// Sample takes one memory reading, updates the pressure gauge, and emits
// memory-pressure(level) only on a level transition (spec.md §4.2).
func (m *Monitor) Sample() MemoryHealth {
	used, available := m.sample()
	level := m.levelFor(used, available)

	m.mu.Lock()
	transitioned := level != m.pressure
	m.pressure = level
	m.recordPressureGaugeLocked()
	m.mu.Unlock()

	if transitioned && m.bus != nil {
		m.bus.Publish(events.TopicMemoryPressure, events.MemoryPressure{Level: string(level), Timestamp: time.Now()})
	}
	return MemoryHealth{UsedBytes: used, AvailableBytes: available, Pressure: level}
}

func (m *Monitor) levelFor(used, available uint64) PressureLevel {
	if available == 0 {
		return PressureOK
	}
	fraction := float64(used) / float64(available)
	switch {
	case fraction >= m.thresholds.CriticalFraction:
		return PressureCritical
	case fraction >= m.thresholds.WarningFraction:
		return PressureWarning
	default:
		return PressureOK
	}
}

// Health returns the current slot and memory health. It holds the same
// mutex as AcquireSlot, ReleaseSlot and Sample while it reads, so a
// snapshot briefly excludes those writers.
func (m *Monitor) Health() (SlotsHealth, PressureLevel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inUse := len(m.inUse)
	return SlotsHealth{Total: m.cap, InUse: inUse, Free: m.cap - inUse}, m.pressure
}

func (m *Monitor) recordGaugesLocked() {
	if m.metrics == nil {
		return
	}
	m.metrics.slotsInUse.Set(float64(len(m.inUse)))
	m.metrics.slotsFree.Set(float64(m.cap - len(m.inUse)))
}

func (m *Monitor) recordPressureGaugeLocked() {
	if m.metrics == nil {
		return
	}
	var v float64
	switch m.pressure {
	case PressureWarning:
		v = 1
	case PressureCritical:
		v = 2
	}
	m.metrics.pressure.Set(v)
}
