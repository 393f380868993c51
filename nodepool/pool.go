// Package nodepool rotates over a list of equivalent TRON full node gRPC
// endpoints. The cursor pins to a healthy endpoint and only moves as a side
// effect of a successful attempt at a non-starting index. The pool is
// exclusively owned by the sweep controller and is not safe for concurrent
// use.
package nodepool

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/untron/untron-v3-pool/monitor"
	"github.com/untron/untron-v3-pool/sdk"
)

// ErrUnreachable indicates that no endpoint accepted a connection.
var ErrUnreachable = errors.New("endpoint unreachable")

// AllEndpointsFailedError carries the operation name and the last
// underlying error after every endpoint has been tried.
type AllEndpointsFailedError struct {
	Op   string
	Last error
}

func (e *AllEndpointsFailedError) Error() string {
	return fmt.Sprintf("all endpoints failed for %s: %v", e.Op, e.Last)
}

func (e *AllEndpointsFailedError) Unwrap() error {
	return e.Last
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string {
	return e.err.Error()
}

func (e *permanentError) Unwrap() error {
	return e.err
}

// Permanent marks an error so WithFailover surfaces it immediately instead
// of retrying on the next endpoint. Used for rejections the node itself
// made a decision about (broadcast refusal, failed preflight).
func Permanent(err error) error {
	return &permanentError{err: err}
}

// Dialer opens a node client for a URL. Swappable in tests.
type Dialer func(grpcURL, apiKey string) (sdk.NodeClient, error)

func defaultDialer(grpcURL, apiKey string) (sdk.NodeClient, error) {
	return sdk.Dial(grpcURL, apiKey)
}

type Pool struct {
	lggr   *zap.SugaredLogger
	urls   []string
	apiKey string
	dial   Dialer

	cursor int
	conn   sdk.NodeClient
}

func New(lggr *zap.SugaredLogger, urls []string, apiKey string) *Pool {
	return NewWithDialer(lggr, urls, apiKey, defaultDialer)
}

func NewWithDialer(lggr *zap.SugaredLogger, urls []string, apiKey string, dial Dialer) *Pool {
	return &Pool{
		lggr:   lggr.Named("NodePool"),
		urls:   urls,
		apiKey: apiKey,
		dial:   dial,
	}
}

func (p *Pool) Cursor() int {
	return p.cursor
}

func (p *Pool) Close() {
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			p.lggr.Warnw("failed to close node connection", "error", err)
		}
		p.conn = nil
	}
}

// EnsureConnected makes urls[preferred] the active connection. A no-op when
// the preferred index is already active, unless forceReconnect is set.
func (p *Pool) EnsureConnected(preferred int, forceReconnect bool) error {
	if p.conn != nil && preferred == p.cursor && !forceReconnect {
		return nil
	}

	conn, err := p.dial(p.urls[preferred], p.apiKey)
	if err != nil {
		return errors.Wrapf(ErrUnreachable, "connect to %s: %v", p.urls[preferred], err)
	}

	if p.conn != nil {
		if closeErr := p.conn.Close(); closeErr != nil {
			p.lggr.Warnw("failed to close previous node connection", "error", closeErr)
		}
	}
	p.conn = conn
	p.cursor = preferred
	return nil
}

// WithFailover runs fn against each endpoint in rotation starting at the
// cursor. A pool of n endpoints gets n attempts; a single-endpoint pool
// gets two, the second forcing a reconnect. Errors marked Permanent abort
// the rotation and are surfaced as-is.
func (p *Pool) WithFailover(ctx context.Context, op string, fn func(ctx context.Context, c sdk.NodeClient) error) error {
	n := len(p.urls)
	attempts := n
	if n == 1 {
		attempts = 2
	}

	start := p.cursor
	var lastErr error
	for k := 0; k < attempts; k++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		idx := (start + k) % n
		forceReconnect := n == 1 && k > 0
		if err := p.EnsureConnected(idx, forceReconnect); err != nil {
			p.lggr.Warnw("endpoint connect failed", "op", op, "url", p.urls[idx], "attempt", k+1, "error", err)
			lastErr = err
			continue
		}

		opStart := time.Now()
		err := fn(ctx, p.conn)
		monitor.ObserveOp(op, opStart, err)
		if err == nil {
			if idx != start {
				p.lggr.Infow("switched to failover endpoint", "op", op, "url", p.urls[idx], "cursor", idx)
			}
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}

		p.lggr.Warnw("endpoint attempt failed", "op", op, "url", p.urls[idx], "attempt", k+1, "error", err)
		lastErr = err
	}

	return &AllEndpointsFailedError{Op: op, Last: lastErr}
}
