package chunk

import (
	"io"

	"github.com/VictoriaMetrics/metrics"
)

// Metrics holds the transfer counters of a sender or receiver. A Metrics can
// be shared between several of them.
type Metrics struct {
	set *metrics.Set

	FramesSent       *metrics.Counter
	FramesReceived   *metrics.Counter
	FramesDuplicate  *metrics.Counter
	BytesSent        *metrics.Counter
	BytesReceived    *metrics.Counter
	SessionsSuccess  *metrics.Counter
	SessionsFailure  *metrics.Counter
	SessionsTimedOut *metrics.Counter
}

func NewMetrics() *Metrics {
	set := metrics.NewSet()
	return &Metrics{
		set:              set,
		FramesSent:       set.GetOrCreateCounter("wire_chunk_frames_sent_total"),
		FramesReceived:   set.GetOrCreateCounter("wire_chunk_frames_received_total"),
		FramesDuplicate:  set.GetOrCreateCounter("wire_chunk_frames_duplicate_total"),
		BytesSent:        set.GetOrCreateCounter("wire_chunk_bytes_sent_total"),
		BytesReceived:    set.GetOrCreateCounter("wire_chunk_bytes_received_total"),
		SessionsSuccess:  set.GetOrCreateCounter(`wire_chunk_sessions_total{status="success"}`),
		SessionsFailure:  set.GetOrCreateCounter(`wire_chunk_sessions_total{status="failure"}`),
		SessionsTimedOut: set.GetOrCreateCounter(`wire_chunk_sessions_total{status="timeout"}`),
	}
}

func (m *Metrics) finished(status Status) {
	switch status {
	case StatusSuccess:
		m.SessionsSuccess.Inc()
	case StatusFailure:
		m.SessionsFailure.Inc()
	case StatusTimeout:
		m.SessionsTimedOut.Inc()
	}
}

// WritePrometheus writes every counter in Prometheus text format.
func (m *Metrics) WritePrometheus(w io.Writer) { m.set.WritePrometheus(w) }
