// Package metrics exports pipeline activity to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/srg/plantmon/internal/alert"
	"github.com/srg/plantmon/internal/link"
	"github.com/srg/plantmon/internal/sensor"
)

// Collector is a fanout observer and pipeline reject observer that keeps
// Prometheus series current.
type Collector struct {
	factory promauto.Factory

	samples  prometheus.Counter
	alerts   *prometheus.CounterVec
	rejected prometheus.Counter
	resets   prometheus.Counter
	state    prometheus.Gauge
	reading  *prometheus.GaugeVec
}

// New registers the plantmon series on reg. Registering twice on the same
// registry panics, as with promauto.
func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		factory: f,
		samples: f.NewCounter(prometheus.CounterOpts{
			Name: "plantmon_samples_total",
			Help: "Samples appended to the history.",
		}),
		alerts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "plantmon_alerts_total",
			Help: "Alerts raised, by kind.",
		}, []string{"kind"}),
		rejected: f.NewCounter(prometheus.CounterOpts{
			Name: "plantmon_frames_rejected_total",
			Help: "Notification frames dropped as malformed.",
		}),
		resets: f.NewCounter(prometheus.CounterOpts{
			Name: "plantmon_history_resets_total",
			Help: "Times the history was cleared.",
		}),
		state: f.NewGauge(prometheus.GaugeOpts{
			Name: "plantmon_connection_state",
			Help: "Connection state: 0 idle, 1 scanning, 2 connecting, 3 negotiating, 4 subscribing, 5 streaming, 6 disconnecting, 7 failed.",
		}),
		reading: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "plantmon_reading",
			Help: "Latest sensor reading, by metric.",
		}, []string{"metric"}),
	}
}

// TrackDroppedFrames exports a counter read from fn, typically the
// connection machine's notification overflow count.
func (c *Collector) TrackDroppedFrames(fn func() uint64) {
	c.factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "plantmon_frames_dropped_total",
		Help: "Notification frames discarded because the consumer fell behind.",
	}, func() float64 { return float64(fn()) })
}

func (c *Collector) OnSample(s sensor.Sample) {
	c.samples.Inc()
	for _, m := range sensor.Metrics {
		c.reading.WithLabelValues(m.Key()).Set(m.Value(s))
	}
}

func (c *Collector) OnAlert(e alert.Event) {
	c.alerts.WithLabelValues(string(e.Kind)).Inc()
}

func (c *Collector) OnConnectionStateChanged(st link.ConnectionState) {
	c.state.Set(float64(st.State))
}

func (c *Collector) OnReset() {
	c.resets.Inc()
	c.reading.Reset()
}

func (c *Collector) OnFrameRejected([]byte, error) {
	c.rejected.Inc()
}
