package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	eventsSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vere",
			Subsystem: "work",
			Name:      "events_submitted_total",
			Help:      "Events submitted to the engine in steady state.",
		},
	)
	eventsRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vere",
			Subsystem: "work",
			Name:      "events_rejected_total",
			Help:      "Events the engine refused to compute.",
		},
	)
	peeksSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vere",
			Subsystem: "work",
			Name:      "peeks_submitted_total",
			Help:      "Namespace queries submitted to the engine.",
		},
	)
	giftsReleased = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vere",
			Subsystem: "work",
			Name:      "gifts_released_total",
			Help:      "Effect batches released to the driver chain.",
		},
	)
	effectsReleased = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vere",
			Subsystem: "work",
			Name:      "effects_released_total",
			Help:      "Individual effects released to the driver chain.",
		},
	)
	barriersFired = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vere",
			Subsystem: "work",
			Name:      "barriers_fired_total",
			Help:      "Barriers fired, by barrier name.",
		},
		[]string{"barrier"},
	)
	replayFacts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vere",
			Subsystem: "play",
			Name:      "facts_total",
			Help:      "Facts replayed from the durable log.",
		},
	)
	replayBatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "vere",
			Subsystem: "play",
			Name:      "batch_duration_seconds",
			Help:      "Time from sending a replay batch to its completion.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	mugMismatches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vere",
			Subsystem: "play",
			Name:      "mug_mismatches_total",
			Help:      "Replay batches whose computed mug differed from the log.",
		},
	)
	logCommitFacts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "vere",
			Subsystem: "disk",
			Name:      "commit_facts",
			Help:      "Facts per committed log batch.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		},
	)
	logCommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "vere",
			Subsystem: "disk",
			Name:      "commit_duration_seconds",
			Help:      "Time to make a batch of facts durable.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	pierState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "vere",
			Subsystem: "pier",
			Name:      "state",
			Help:      "1 for the pier's current lifecycle state, 0 otherwise.",
		},
		[]string{"state"},
	)
	durablePosition = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vere",
			Subsystem: "pier",
			Name:      "durable_event",
			Help:      "Highest event on stable storage.",
		},
	)
	enginePosition = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vere",
			Subsystem: "pier",
			Name:      "engine_event",
			Help:      "Highest event computed by the engine.",
		},
	)
	engineDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vere",
			Subsystem: "pier",
			Name:      "engine_depth",
			Help:      "Requests outstanding at the engine.",
		},
	)

	states = []string{"init", "boot", "play", "wyrd", "work", "done"}
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			eventsSubmitted, eventsRejected, peeksSubmitted,
			giftsReleased, effectsReleased, barriersFired,
			replayFacts, replayBatchDuration, mugMismatches,
			logCommitFacts, logCommitDuration,
			pierState, durablePosition, enginePosition, engineDepth,
		)
	})
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}

func RecordEventSubmitted() {
	RegisterMetrics()
	eventsSubmitted.Inc()
}

func RecordEventRejected() {
	RegisterMetrics()
	eventsRejected.Inc()
}

func RecordPeekSubmitted() {
	RegisterMetrics()
	peeksSubmitted.Inc()
}

func RecordGiftReleased(effects int) {
	RegisterMetrics()
	giftsReleased.Inc()
	effectsReleased.Add(float64(effects))
}

func RecordBarrierFired(name string) {
	RegisterMetrics()
	barriersFired.WithLabelValues(name).Inc()
}

func RecordReplayBatch(facts int, duration time.Duration) {
	RegisterMetrics()
	replayFacts.Add(float64(facts))
	replayBatchDuration.Observe(duration.Seconds())
}

func RecordMugMismatch() {
	RegisterMetrics()
	mugMismatches.Inc()
}

func RecordLogCommit(facts int, duration time.Duration) {
	RegisterMetrics()
	logCommitFacts.Observe(float64(facts))
	logCommitDuration.Observe(duration.Seconds())
}

// SetState marks state as the current one.
func SetState(state string) {
	RegisterMetrics()
	for _, s := range states {
		v := 0.0
		if s == state {
			v = 1
		}
		pierState.WithLabelValues(s).Set(v)
	}
}

func SetPositions(durable, engine uint64, depth int) {
	RegisterMetrics()
	durablePosition.Set(float64(durable))
	enginePosition.Set(float64(engine))
	engineDepth.Set(float64(depth))
}
