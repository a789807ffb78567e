package progress

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestLogSinkTracksGaugeAgainstTotal(t *testing.T) {
	gauge := NewGauge()
	sink := NewLogSink(nil, gauge, 10)

	sink.SetTotal(100)
	sink.Advance(50)

	if got := testutil.ToFloat64(gauge); got != 0.5 {
		t.Errorf("expected gauge at 0.5 after 50/100, got %v", got)
	}
}

func TestNoopSinkDoesNothing(t *testing.T) {
	var s Sink = Noop{}
	s.SetTotal(10)
	s.Advance(5) // must not panic
}
