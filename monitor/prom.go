package monitor

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var promOpLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "untron_op_latency_seconds",
		Help:    "Latency of node, rental and oneclick operations",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	},
	[]string{"op", "success"},
)

var promSweepTicks = promauto.NewCounterVec(
	prometheus.CounterOpts{Name: "untron_sweep_ticks_total", Help: "Sweep tick outcomes"},
	[]string{"result"},
)

var promUsdtBalance = promauto.NewGauge(
	prometheus.GaugeOpts{Name: "untron_usdt_balance", Help: "Hot wallet USDT balance in token base units"},
)

var promWatchQueueDepth = promauto.NewGauge(
	prometheus.GaugeOpts{Name: "untron_watch_queue_depth", Help: "Pending deposit watch jobs"},
)

var promWatchJobs = promauto.NewCounterVec(
	prometheus.CounterOpts{Name: "untron_watch_jobs_total", Help: "Deposit watch job outcomes"},
	[]string{"outcome"},
)

// ObserveOp is the shared latency sink. Callers hand it the operation name,
// the start instant and the resulting error.
func ObserveOp(op string, start time.Time, err error) {
	promOpLatency.WithLabelValues(op, strconv.FormatBool(err == nil)).Observe(time.Since(start).Seconds())
}

func RecordSweepTick(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	promSweepTicks.WithLabelValues(result).Inc()
}

func UpdateUsdtBalance(baseUnits int64) {
	promUsdtBalance.Set(float64(baseUnits))
}

func UpdateWatchQueueDepth(depth int) {
	promWatchQueueDepth.Set(float64(depth))
}

func RecordWatchOutcome(outcome string) {
	promWatchJobs.WithLabelValues(outcome).Inc()
}
