package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestStageWindowSnapshot(t *testing.T) {
	w := NewStageWindow(8, nil)
	w.Observe("complete", 500)
	w.Observe("complete", 700)
	w.Observe("complete", 900)
	w.ObserveIndicator("extraction_ambiguous")
	w.ObserveIndicator("extraction_ambiguous")

	snap := w.Snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Stage != "complete" {
		t.Fatalf("Stage = %q, want %q", s.Stage, "complete")
	}
	if s.Samples != 3 {
		t.Fatalf("Samples = %d, want 3", s.Samples)
	}
	if s.LastMS != 900 {
		t.Fatalf("LastMS = %.2f, want 900", s.LastMS)
	}
	if s.P50MS != 700 {
		t.Fatalf("P50MS = %.2f, want 700", s.P50MS)
	}
	if s.P95MS <= 700 || s.P95MS > 900 {
		t.Fatalf("P95MS = %.2f, want (700,900]", s.P95MS)
	}
	if s.TargetP95MS != 8000 {
		t.Fatalf("TargetP95MS = %.2f, want 8000", s.TargetP95MS)
	}
	if len(snap.Indicators) != 1 {
		t.Fatalf("len(Indicators) = %d, want 1", len(snap.Indicators))
	}
	if snap.Indicators[0].Name != "extraction_ambiguous" || snap.Indicators[0].Count != 2 {
		t.Fatalf("Indicators[0] = %+v, want extraction_ambiguous x2", snap.Indicators[0])
	}
}

func TestStageWindowWrapsAround(t *testing.T) {
	w := NewStageWindow(2, map[string]float64{})
	w.Observe("persist", 1)
	w.Observe("persist", 2)
	w.Observe("persist", 30)

	s := w.Snapshot().Stages[0]
	if s.Samples != 2 {
		t.Fatalf("Samples = %d, want 2", s.Samples)
	}
	if s.AvgMS != 16 {
		t.Fatalf("AvgMS = %.2f, want 16", s.AvgMS)
	}
	if s.LastMS != 30 {
		t.Fatalf("LastMS = %.2f, want 30", s.LastMS)
	}
	if s.TargetP95MS != 0 {
		t.Fatalf("TargetP95MS = %.2f, want 0 with empty targets", s.TargetP95MS)
	}
}

func TestStageWindowIgnoresInvalidSamples(t *testing.T) {
	w := NewStageWindow(4, nil)
	w.Observe("", 10)
	w.Observe("retrieve", -1)
	w.ObserveIndicator("  ")
	snap := w.Snapshot()
	if len(snap.Stages) != 0 || len(snap.Indicators) != 0 {
		t.Fatalf("snapshot = %+v, want empty", snap)
	}
}

func TestMetricsObserveTurnStageFeedsWindow(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry(), "test")
	m.ObserveTurnStage("retrieve", 12*time.Millisecond)

	snap := m.TurnStageSnapshot()
	if len(snap.Stages) != 1 || snap.Stages[0].LastMS != 12 {
		t.Fatalf("snapshot = %+v, want one retrieve sample of 12ms", snap.Stages)
	}
	m.ResetTurnStages()
	if got := len(m.TurnStageSnapshot().Stages); got != 0 {
		t.Fatalf("len(Stages) after reset = %d, want 0", got)
	}

	var nilMetrics *Metrics
	nilMetrics.ObserveTurnStage("retrieve", time.Millisecond)
}
