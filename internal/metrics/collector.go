// Package metrics is a small Prometheus text-format collector for the
// webhook, dispatch, send and model paths.
package metrics

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the process-wide registry.
var Collector = NewRegistry("wabridge")

// Registry holds counters, gauges and histograms keyed by name and labels.
type Registry struct {
	prefix    string
	startTime time.Time

	mu         sync.RWMutex
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
}

func NewRegistry(prefix string) *Registry {
	return &Registry{
		prefix:     prefix,
		startTime:  time.Now(),
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*Gauge),
		histograms: make(map[string]*Histogram),
	}
}

type series struct {
	name   string
	help   string
	labels string // pre-rendered, e.g. result="ok"
}

func (s series) ident() string {
	if s.labels == "" {
		return s.name
	}
	return s.name + "{" + s.labels + "}"
}

// Counter is a monotonically increasing counter.
type Counter struct {
	series
	value atomic.Int64
}

func (c *Counter) Inc()         { c.value.Add(1) }
func (c *Counter) Add(n int64)  { c.value.Add(n) }
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge is a value that can go up and down.
type Gauge struct {
	series
	value atomic.Int64
}

func (g *Gauge) Set(v int64)  { g.value.Store(v) }
func (g *Gauge) Inc()         { g.value.Add(1) }
func (g *Gauge) Dec()         { g.value.Add(-1) }
func (g *Gauge) Value() int64 { return g.value.Load() }

// Histogram tracks the distribution of observed values.
type Histogram struct {
	series
	mu     sync.Mutex
	bounds []float64
	counts []int64
	count  int64
	sum    float64
}

func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, le := range h.bounds {
		if v <= le {
			h.counts[i]++
		}
	}
}

// Count returns how many values were observed.
func (h *Histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

func (r *Registry) metricName(name string) string {
	if r.prefix == "" {
		return name
	}
	return r.prefix + "_" + name
}

// Counter returns or creates the counter for name and labels.
func (r *Registry) Counter(name, help, labels string) *Counter {
	s := series{name: r.metricName(name), help: help, labels: labels}
	key := s.ident()

	r.mu.RLock()
	c, ok := r.counters[key]
	r.mu.RUnlock()
	if ok {
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[key]; ok {
		return c
	}
	c = &Counter{series: s}
	r.counters[key] = c
	return c
}

// Gauge returns or creates the gauge for name and labels.
func (r *Registry) Gauge(name, help, labels string) *Gauge {
	s := series{name: r.metricName(name), help: help, labels: labels}
	key := s.ident()

	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.gauges[key]; ok {
		return g
	}
	g := &Gauge{series: s}
	r.gauges[key] = g
	return g
}

// Histogram returns or creates the histogram for name and labels. Bounds are
// only used on creation.
func (r *Registry) Histogram(name, help, labels string, bounds []float64) *Histogram {
	s := series{name: r.metricName(name), help: help, labels: labels}
	key := s.ident()

	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.histograms[key]; ok {
		return h
	}
	b := append([]float64(nil), bounds...)
	sort.Float64s(b)
	if len(b) == 0 || !math.IsInf(b[len(b)-1], 1) {
		b = append(b, math.Inf(1))
	}
	h := &Histogram{series: s, bounds: b, counts: make([]int64, len(b))}
	r.histograms[key] = h
	return h
}

// WriteTo renders every series in Prometheus text exposition format,
// sorted by name so output is stable between scrapes.
func (r *Registry) WriteTo(w io.Writer) (int64, error) {
	var sb strings.Builder

	uptime := r.metricName("uptime_seconds")
	fmt.Fprintf(&sb, "# HELP %s Time since start in seconds\n# TYPE %s gauge\n%s %d\n",
		uptime, uptime, uptime, int64(time.Since(r.startTime).Seconds()))

	r.mu.RLock()
	counters := sortedValues(r.counters)
	gauges := sortedValues(r.gauges)
	histograms := sortedValues(r.histograms)
	r.mu.RUnlock()

	lastName := ""
	for _, c := range counters {
		if c.name != lastName {
			fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s counter\n", c.name, c.help, c.name)
			lastName = c.name
		}
		fmt.Fprintf(&sb, "%s %d\n", c.ident(), c.Value())
	}

	lastName = ""
	for _, g := range gauges {
		if g.name != lastName {
			fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s gauge\n", g.name, g.help, g.name)
			lastName = g.name
		}
		fmt.Fprintf(&sb, "%s %d\n", g.ident(), g.Value())
	}

	lastName = ""
	for _, h := range histograms {
		if h.name != lastName {
			fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s histogram\n", h.name, h.help, h.name)
			lastName = h.name
		}
		writeHistogram(&sb, h)
	}

	n, err := io.WriteString(w, sb.String())
	return int64(n), err
}

func writeHistogram(sb *strings.Builder, h *Histogram) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sep := ""
	if h.labels != "" {
		sep = h.labels + ","
	}
	for i, le := range h.bounds {
		bound := fmt.Sprintf("%g", le)
		if math.IsInf(le, 1) {
			bound = "+Inf"
		}
		fmt.Fprintf(sb, "%s_bucket{%sle=%q} %d\n", h.name, sep, bound, h.counts[i])
	}
	suffix := ""
	if h.labels != "" {
		suffix = "{" + h.labels + "}"
	}
	fmt.Fprintf(sb, "%s_sum%s %g\n", h.name, suffix, h.sum)
	fmt.Fprintf(sb, "%s_count%s %d\n", h.name, suffix, h.count)
}

type identified interface{ ident() string }

func sortedValues[T identified](m map[string]T) []T {
	out := make([]T, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ident() < out[j].ident() })
	return out
}

// Handler serves the registry in Prometheus text format.
func (r *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		r.WriteTo(w)
	}
}
