package rental

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/untron/untron-v3-pool/monitor"
)

type OutcomeStatus int

const (
	// NotAvailable: no providers configured, caller pays native fees.
	NotAvailable OutcomeStatus = iota
	// Rented: a provider accepted the order.
	Rented
	// AllFailed: every provider failed or declined, caller falls back.
	AllFailed
)

type Outcome struct {
	Status   OutcomeStatus
	Provider string
	OrderID  string
}

// Pool rotates over providers. After every Rent call the cursor advances by
// the number of attempts made, so the next rental starts at a different
// provider than the last successful one. Owned exclusively by the sweep
// controller; not safe for concurrent use.
type Pool struct {
	lggr      *zap.SugaredLogger
	providers []Provider
	cursor    int
}

func NewPool(lggr *zap.SugaredLogger, providers []Provider) *Pool {
	return &Pool{
		lggr:      lggr.Named("RentalPool"),
		providers: providers,
	}
}

func (p *Pool) Len() int {
	return len(p.providers)
}

func (p *Pool) Cursor() int {
	return p.cursor
}

// Rent tries each provider in rotation starting at the cursor.
func (p *Pool) Rent(ctx context.Context, rc RentalContext) Outcome {
	n := len(p.providers)
	if n == 0 {
		return Outcome{Status: NotAvailable}
	}

	start := p.cursor
	attempts := 0
	for i := 0; i < n; i++ {
		provider := p.providers[(start+i)%n]
		attempts++

		opStart := time.Now()
		result, err := provider.Rent(ctx, rc)
		if err != nil {
			monitor.ObserveOp("energy_rental", opStart, err)
			p.lggr.Warnw("rental provider failed", "provider", provider.Name(), "amount", rc.Amount, "error", err)
			continue
		}
		if !result.OK {
			monitor.ObserveOp("energy_rental", opStart, errDeclined)
			p.lggr.Warnw("rental provider declined", "provider", provider.Name(), "amount", rc.Amount, "reason", result.Reason)
			continue
		}

		monitor.ObserveOp("energy_rental", opStart, nil)
		p.cursor = (start + attempts) % n
		p.lggr.Infow("energy rented", "provider", provider.Name(), "amount", rc.Amount, "orderId", result.OrderID, "cursor", p.cursor)
		return Outcome{Status: Rented, Provider: provider.Name(), OrderID: result.OrderID}
	}

	p.cursor = (start + attempts) % n
	p.lggr.Warnw("all rental providers failed", "amount", rc.Amount, "attempts", attempts)
	return Outcome{Status: AllFailed}
}

// errDeclined only feeds the latency sink's failure label.
var errDeclined = declinedError{}

type declinedError struct{}

func (declinedError) Error() string { return "provider declined" }
