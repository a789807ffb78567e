// Package progress reports collision-resolution scan progress through a
// Prometheus gauge and periodic structured log lines.
package progress

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Sink receives progress updates as hashes are scanned.
type Sink interface {
	// SetTotal records the denominator (total hash rows) once known.
	SetTotal(total int64)
	// Advance reports the number of hashes processed so far.
	Advance(processed int64)
}

// Noop discards every update. The default when no Sink is configured.
type Noop struct{}

func (Noop) SetTotal(int64) {}
func (Noop) Advance(int64)  {}

// LogSink logs a line every logEvery hashes (or on reaching 100%) and
// maintains a Prometheus gauge of fractional progress.
type LogSink struct {
	log      *logrus.Entry
	gauge    prometheus.Gauge
	logEvery int64
	total    int64
}

// NewLogSink returns a LogSink that logs roughly every logEvery hashes
// processed (5% of an expected multi-million row scan is a reasonable
// default) and publishes progress on gauge.
func NewLogSink(log *logrus.Entry, gauge prometheus.Gauge, logEvery int64) *LogSink {
	if logEvery <= 0 {
		logEvery = 1
	}
	return &LogSink{log: log, gauge: gauge, logEvery: logEvery}
}

// SetTotal implements Sink.
func (s *LogSink) SetTotal(total int64) {
	s.total = total
	if s.log != nil {
		s.log.WithField("total_hashes", total).Info("resolvepipe: starting collision resolution")
	}
}

// Advance implements Sink.
func (s *LogSink) Advance(processed int64) {
	if s.gauge != nil && s.total > 0 {
		s.gauge.Set(float64(processed) / float64(s.total))
	}
	if processed%s.logEvery != 0 && !(s.total > 0 && processed == s.total) {
		return
	}
	if s.log == nil {
		return
	}
	fields := logrus.Fields{"processed": processed}
	if s.total > 0 {
		fields["total"] = s.total
		fields["percent"] = 100 * float64(processed) / float64(s.total)
	}
	s.log.WithFields(fields).Info("resolvepipe: progress")
}

// NewGauge constructs the Prometheus gauge used by LogSink, registered
// under the geodedupe namespace.
func NewGauge() prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "geodedupe",
		Subsystem: "resolvepipe",
		Name:      "scan_progress_ratio",
		Help:      "Fraction of the hash index scanned so far during collision resolution.",
	})
}
