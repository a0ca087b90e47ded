package observability

import (
	"math"
	"slices"
	"strings"
	"sync"
	"time"
)

// DefaultStageTargets are p95 latency goals in milliseconds for turn stages.
var DefaultStageTargets = map[string]float64{
	"retrieve":     150,
	"assemble":     5,
	"complete":     8000,
	"extract_wait": 2000,
	"persist":      250,
	"turn_total":   10000,
}

type StageStats struct {
	Stage       string  `json:"stage"`
	Samples     int     `json:"samples"`
	LastMS      float64 `json:"last_ms"`
	AvgMS       float64 `json:"avg_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	P99MS       float64 `json:"p99_ms"`
	TargetP95MS float64 `json:"target_p95_ms,omitempty"`
}

type Indicator struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type TurnStageSnapshot struct {
	GeneratedAt time.Time    `json:"generated_at"`
	WindowSize  int          `json:"window_size"`
	Stages      []StageStats `json:"stages"`
	Indicators  []Indicator  `json:"indicators,omitempty"`
}

// StageWindow keeps the most recent samples per stage plus event counters.
type StageWindow struct {
	mu         sync.RWMutex
	size       int
	targets    map[string]float64
	rings      map[string]*ring
	indicators map[string]int
}

// ring is a fixed-size circular sample buffer.
type ring struct {
	samples []float64
	pos     int
	last    float64
}

func (r *ring) push(v float64, size int) {
	if len(r.samples) < size {
		r.samples = append(r.samples, v)
	} else {
		r.samples[r.pos] = v
	}
	r.pos = (r.pos + 1) % size
	r.last = v
}

func NewStageWindow(size int, targets map[string]float64) *StageWindow {
	if size <= 0 {
		size = 256
	}
	if targets == nil {
		targets = DefaultStageTargets
	}
	return &StageWindow{
		size:       size,
		targets:    targets,
		rings:      make(map[string]*ring),
		indicators: make(map[string]int),
	}
}

func (w *StageWindow) Observe(stage string, ms float64) {
	if stage == "" || ms < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.rings[stage]
	if !ok {
		r = &ring{samples: make([]float64, 0, w.size)}
		w.rings[stage] = r
	}
	r.push(ms, w.size)
}

func (w *StageWindow) ObserveIndicator(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.indicators[name]++
}

func (w *StageWindow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rings = make(map[string]*ring)
	w.indicators = make(map[string]int)
}

// Snapshot summarizes every stage, sorted by name.
func (w *StageWindow) Snapshot() TurnStageSnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()

	snap := TurnStageSnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.size,
		Stages:      make([]StageStats, 0, len(w.rings)),
	}
	for _, stage := range sortedKeys(w.rings) {
		r := w.rings[stage]
		if len(r.samples) == 0 {
			continue
		}
		stats := summarize(r.samples)
		stats.Stage = stage
		stats.LastMS = round2(r.last)
		stats.TargetP95MS = w.targets[stage]
		snap.Stages = append(snap.Stages, stats)
	}
	for _, name := range sortedKeys(w.indicators) {
		if n := w.indicators[name]; n > 0 {
			snap.Indicators = append(snap.Indicators, Indicator{Name: name, Count: n})
		}
	}
	return snap
}

func summarize(samples []float64) StageStats {
	sorted := slices.Clone(samples)
	slices.Sort(sorted)
	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return StageStats{
		Samples: len(sorted),
		AvgMS:   round2(sum / float64(len(sorted))),
		P50MS:   round2(percentile(sorted, 0.50)),
		P95MS:   round2(percentile(sorted, 0.95)),
		P99MS:   round2(percentile(sorted, 0.99)),
	}
}

// percentile interpolates linearly between closest ranks of sorted.
func percentile(sorted []float64, p float64) float64 {
	switch {
	case len(sorted) == 0:
		return 0
	case p <= 0:
		return sorted[0]
	case p >= 1:
		return sorted[len(sorted)-1]
	}
	rank := p * float64(len(sorted)-1)
	lo := math.Floor(rank)
	i := int(lo)
	if i+1 >= len(sorted) {
		return sorted[i]
	}
	return sorted[i] + (sorted[i+1]-sorted[i])*(rank-lo)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
