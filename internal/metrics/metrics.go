package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tycoon"

// Collector holds the engine and session metrics. A nil *Collector records
// nothing, so callers never need to check whether metrics are enabled.
type Collector struct {
	commandDuration *prometheus.HistogramVec
	commandsTotal   *prometheus.CounterVec
	sessionsOpen    prometheus.Gauge
	savesTotal      *prometheus.CounterVec
	saveQueueDepth  prometheus.Gauge
	offlineCapped   prometheus.Counter
	balance         *prometheus.GaugeVec
}

func New() *Collector {
	return &Collector{
		commandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "command_duration_seconds",
				Help:      "Time spent applying one session command.",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"command", "status"},
		),
		commandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "commands_total",
				Help:      "Session commands processed by type and status.",
			},
			[]string{"command", "status"},
		),
		sessionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "open",
			Help:      "Sessions currently open.",
		}),
		savesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "saves_total",
				Help:      "Save writes by outcome: ok, retried, queued or dropped.",
			},
			[]string{"outcome"},
		),
		saveQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "queue_depth",
			Help:      "Failed save writes waiting for replay.",
		}),
		offlineCapped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "offline_capped_total",
			Help:      "Catch-ups that hit the offline cap.",
		}),
		balance: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "balance",
				Help:      "Last observed balance per save slot. Lossy above float64 range.",
			},
			[]string{"slot"},
		),
	}
}

func (c *Collector) Register(reg prometheus.Registerer) error {
	if c == nil {
		return nil
	}
	for _, m := range []prometheus.Collector{
		c.commandDuration,
		c.commandsTotal,
		c.sessionsOpen,
		c.savesTotal,
		c.saveQueueDepth,
		c.offlineCapped,
		c.balance,
	} {
		if err := reg.Register(m); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collector) ObserveCommand(command string, took time.Duration, ok bool) {
	if c == nil {
		return
	}
	status := "success"
	if !ok {
		status = "error"
	}
	c.commandDuration.WithLabelValues(command, status).Observe(took.Seconds())
	c.commandsTotal.WithLabelValues(command, status).Inc()
}

func (c *Collector) SessionOpened() {
	if c != nil {
		c.sessionsOpen.Inc()
	}
}

func (c *Collector) SessionClosed(slot string) {
	if c != nil {
		c.sessionsOpen.Dec()
		c.balance.DeleteLabelValues(slot)
	}
}

func (c *Collector) Saved(outcome string) {
	if c != nil {
		c.savesTotal.WithLabelValues(outcome).Inc()
	}
}

func (c *Collector) QueueDepth(n int) {
	if c != nil {
		c.saveQueueDepth.Set(float64(n))
	}
}

func (c *Collector) OfflineCapped() {
	if c != nil {
		c.offlineCapped.Inc()
	}
}

func (c *Collector) Balance(slot string, v float64) {
	if c != nil {
		c.balance.WithLabelValues(slot).Set(v)
	}
}
