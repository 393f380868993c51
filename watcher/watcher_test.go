package watcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/untron/untron-v3-pool/backoff"
	"github.com/untron/untron-v3-pool/oneclick"
)

type scriptedStatusClient struct {
	statuses []string
	errs     []error
	calls    int
}

func (c *scriptedStatusClient) GetExecutionStatus(ctx context.Context, depositAddress string) (*oneclick.ExecutionStatus, error) {
	i := c.calls
	c.calls++
	if i < len(c.errs) && c.errs[i] != nil {
		return nil, c.errs[i]
	}
	if i >= len(c.statuses) {
		i = len(c.statuses) - 1
	}
	return &oneclick.ExecutionStatus{Status: c.statuses[i]}, nil
}

func testConfig() Config {
	return Config{
		PollInterval: time.Millisecond,
		MaxWait:      time.Second,
		BackoffBase:  10 * time.Millisecond,
		BackoffMax:   time.Second,
	}
}

func TestWatchTerminalSuccess(t *testing.T) {
	client := &scriptedStatusClient{statuses: []string{"PROCESSING", "PROCESSING", "SUCCESS"}}
	bo := backoff.New()
	bo.RecordFailure(time.Second, time.Minute)

	w := New(zaptest.NewLogger(t).Sugar(), client, bo, testConfig())
	w.watch(context.Background(), Job{DepositAddress: "TDep", OriginTxHash: "0xab", CreatedAt: time.Now()})

	assert.Equal(t, 3, client.calls)
	// Terminal success resets the backoff.
	assert.Equal(t, uint(0), bo.Failures())
	_, active := bo.InCooldown(time.Now())
	assert.False(t, active)
}

func TestWatchTerminalFailureStillResetsBackoff(t *testing.T) {
	client := &scriptedStatusClient{statuses: []string{"REFUNDED"}}
	bo := backoff.New()
	bo.RecordFailure(time.Second, time.Minute)

	w := New(zaptest.NewLogger(t).Sugar(), client, bo, testConfig())
	w.watch(context.Background(), Job{DepositAddress: "TDep", CreatedAt: time.Now()})

	assert.Equal(t, 1, client.calls)
	assert.Equal(t, uint(0), bo.Failures())
}

func TestWatchUpstreamErrorsDriveBackoff(t *testing.T) {
	upstream := &oneclick.UpstreamError{Op: "get_execution_status", StatusCode: 502}
	client := &scriptedStatusClient{
		errs:     []error{upstream, upstream, nil},
		statuses: []string{"SUCCESS", "SUCCESS", "SUCCESS"},
	}
	bo := backoff.New()

	w := New(zaptest.NewLogger(t).Sugar(), client, bo, testConfig())

	done := make(chan struct{})
	go func() {
		w.watch(context.Background(), Job{DepositAddress: "TDep", CreatedAt: time.Now()})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not finish")
	}

	assert.Equal(t, 3, client.calls)
	// Two upstream failures were recorded, then terminal success reset.
	assert.Equal(t, uint(0), bo.Failures())
}

func TestWatchDeadlineAbandonsJob(t *testing.T) {
	client := &scriptedStatusClient{statuses: []string{"PROCESSING"}}
	bo := backoff.New()

	cfg := testConfig()
	cfg.MaxWait = 10 * time.Millisecond
	w := New(zaptest.NewLogger(t).Sugar(), client, bo, cfg)

	// The job is already past its deadline.
	w.watch(context.Background(), Job{DepositAddress: "TDep", CreatedAt: time.Now().Add(-time.Minute)})

	assert.Equal(t, 1, client.calls)
	assert.Equal(t, uint(0), bo.Failures())
}

func TestRunProcessesJobsInOrder(t *testing.T) {
	client := &scriptedStatusClient{statuses: []string{"SUCCESS"}}
	bo := backoff.New()
	w := New(zaptest.NewLogger(t).Sugar(), client, bo, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w.Jobs() <- Job{DepositAddress: "TDep1", CreatedAt: time.Now()}
	w.Jobs() <- Job{DepositAddress: "TDep2", CreatedAt: time.Now()}

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return client.calls >= 2 }, 5*time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop on cancel")
	}
}

func TestRunStopsPromptly(t *testing.T) {
	client := &scriptedStatusClient{statuses: []string{"PROCESSING"}}
	w := New(zaptest.NewLogger(t).Sugar(), client, backoff.New(), testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestQueueCapacity(t *testing.T) {
	w := New(zaptest.NewLogger(t).Sugar(), &scriptedStatusClient{statuses: []string{"SUCCESS"}}, backoff.New(), testConfig())
	assert.Equal(t, QueueSize, cap(w.Jobs()))
}
