// Package watcher consumes deposit watch jobs handed off by the sweep
// controller and polls the one-click service until each swap reaches a
// terminal state. It is the sole writer of the shared backoff state.
package watcher

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/untron/untron-v3-pool/backoff"
	"github.com/untron/untron-v3-pool/monitor"
	"github.com/untron/untron-v3-pool/oneclick"
)

// QueueSize bounds the handoff channel; overflow is dropped by the sender.
const QueueSize = 1024

// Job is one submitted deposit to track until terminal status.
type Job struct {
	DepositAddress string
	OriginTxHash   string
	CreatedAt      time.Time
}

type Config struct {
	PollInterval time.Duration
	MaxWait      time.Duration
	BackoffBase  time.Duration
	BackoffMax   time.Duration
}

type StatusClient interface {
	GetExecutionStatus(ctx context.Context, depositAddress string) (*oneclick.ExecutionStatus, error)
}

type Watcher struct {
	lggr    *zap.SugaredLogger
	client  StatusClient
	backoff *backoff.State
	jobs    chan Job
	cfg     Config
}

func New(lggr *zap.SugaredLogger, client StatusClient, bo *backoff.State, cfg Config) *Watcher {
	return &Watcher{
		lggr:    lggr.Named("Watcher"),
		client:  client,
		backoff: bo,
		jobs:    make(chan Job, QueueSize),
		cfg:     cfg,
	}
}

// Jobs is the handoff channel. Senders must use a non-blocking send and
// drop on overflow.
func (w *Watcher) Jobs() chan Job {
	return w.jobs
}

// Run consumes jobs in arrival order until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	w.lggr.Debugw("watcher started")
	for {
		select {
		case <-ctx.Done():
			w.lggr.Debugw("watcher stopped", "pendingJobs", len(w.jobs))
			return
		case job := <-w.jobs:
			monitor.UpdateWatchQueueDepth(len(w.jobs))
			w.watch(ctx, job)
		}
	}
}

func (w *Watcher) watch(ctx context.Context, job Job) {
	deadline := job.CreatedAt.Add(w.cfg.MaxWait)
	w.lggr.Infow("watching deposit", "depositAddress", job.DepositAddress, "originTxHash", job.OriginTxHash)

	for {
		start := time.Now()
		status, err := w.client.GetExecutionStatus(ctx, job.DepositAddress)
		monitor.ObserveOp("get_execution_status", start, err)

		switch {
		case err != nil && ctx.Err() != nil:
			return
		case err != nil && oneclick.IsUpstreamError(err):
			w.backoff.RecordFailure(w.cfg.BackoffBase, w.cfg.BackoffMax)
			w.lggr.Warnw("1click status poll failed, upstream sick", "depositAddress", job.DepositAddress,
				"failures", w.backoff.Failures(), "error", err)
		case err != nil:
			w.lggr.Warnw("1click status poll failed", "depositAddress", job.DepositAddress, "error", err)
		case status.TerminalSuccess():
			w.lggr.Infow("swap succeeded", "depositAddress", job.DepositAddress, "originTxHash", job.OriginTxHash,
				"elapsed", time.Since(job.CreatedAt))
			monitor.RecordWatchOutcome("succeeded")
			w.backoff.RecordSuccess()
			return
		case status.TerminalFailure():
			// The swap did not deliver, but the upstream answered: that is
			// a responsive upstream, not a sick one.
			w.lggr.Warnw("swap failed or refunded", "depositAddress", job.DepositAddress,
				"originTxHash", job.OriginTxHash, "status", status.Status)
			monitor.RecordWatchOutcome("failed")
			w.backoff.RecordSuccess()
			return
		default:
			w.lggr.Debugw("swap in progress", "depositAddress", job.DepositAddress, "status", status.Status)
		}

		if time.Now().After(deadline) {
			w.lggr.Warnw("abandoning watch job after max wait", "depositAddress", job.DepositAddress,
				"originTxHash", job.OriginTxHash, "maxWait", w.cfg.MaxWait)
			monitor.RecordWatchOutcome("abandoned")
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.cfg.PollInterval):
		}
	}
}
