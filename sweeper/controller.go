// Package sweeper runs the treasury sweep loop: on every tick it reads the
// hot wallet's USDT balance and, above threshold, quotes a cross-chain
// swap, transfers into the quoted deposit address and hands the result to
// the status watcher.
package sweeper

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/fbsobreira/gotron-sdk/pkg/address"
	"go.uber.org/zap"

	"github.com/untron/untron-v3-pool/backoff"
	"github.com/untron/untron-v3-pool/monitor"
	"github.com/untron/untron-v3-pool/oneclick"
	"github.com/untron/untron-v3-pool/watcher"
)

// KeepUnits is the residual left in the wallet on every sweep: 1 base unit
// (1e-6 USDT), avoiding zero-balance edge cases.
const KeepUnits = 1

// QuoteRejectedError covers quotes that are unusable: missing fields,
// zero amounts, amounts above the sweep budget or unparseable deposit
// addresses.
type QuoteRejectedError struct {
	Reason string
}

func (e *QuoteRejectedError) Error() string {
	return "quote rejected: " + e.Reason
}

type TransferEngine interface {
	TokenBalance(ctx context.Context, token address.Address) (*big.Int, error)
	BroadcastTRC20Transfer(ctx context.Context, token address.Address, recipient gethcommon.Address, amount *big.Int) ([32]byte, error)
}

type SwapClient interface {
	Quote(ctx context.Context, req *oneclick.QuoteRequest) (*oneclick.QuoteResponse, error)
	SubmitDepositTx(ctx context.Context, txHash, depositAddress string) error
}

type Config struct {
	PollInterval time.Duration
	Token        address.Address
	Threshold    *big.Int

	DeadlineSecs     int64
	SlippageBps      int
	OriginAsset      string
	DestinationAsset string
	Beneficiary      string
	Referral         string
	RefundTo         string // the hot wallet's base58 address
}

type Controller struct {
	lggr    *zap.SugaredLogger
	engine  TransferEngine
	swaps   SwapClient
	backoff *backoff.State
	jobs    chan<- watcher.Job
	cfg     Config
}

func New(lggr *zap.SugaredLogger, engine TransferEngine, swaps SwapClient, bo *backoff.State, jobs chan<- watcher.Job, cfg Config) *Controller {
	return &Controller{
		lggr:    lggr.Named("Sweeper"),
		engine:  engine,
		swaps:   swaps,
		backoff: bo,
		jobs:    jobs,
		cfg:     cfg,
	}
}

// Run drives ticks at the configured interval until the context is
// cancelled. A slow tick delays the next one; ticks never burst.
func (c *Controller) Run(ctx context.Context) {
	c.lggr.Infow("sweep controller started", "interval", c.cfg.PollInterval, "threshold", c.cfg.Threshold)
	for {
		err := c.RunTick(ctx)
		if ctx.Err() != nil {
			c.lggr.Debugw("sweep controller stopped")
			return
		}
		monitor.RecordSweepTick(err)
		if err != nil {
			c.lggr.Errorw("sweep tick failed", "error", err)
		}

		select {
		case <-ctx.Done():
			c.lggr.Debugw("sweep controller stopped")
			return
		case <-time.After(c.cfg.PollInterval):
		}
	}
}

// RunTick is one sweep decision.
func (c *Controller) RunTick(ctx context.Context) error {
	// Upstream sickness suppresses sweeping entirely: a tick in cooldown
	// is a successful no-op and generates no node traffic.
	if remaining, active := c.backoff.InCooldown(time.Now()); active {
		c.lggr.Infow("1click backoff active, skipping sweep", "remainingSecs", int64(remaining.Seconds())+1)
		return nil
	}

	balance, err := c.engine.TokenBalance(ctx, c.cfg.Token)
	if err != nil {
		return fmt.Errorf("failed to read token balance: %w", err)
	}
	if balance.IsInt64() {
		monitor.UpdateUsdtBalance(balance.Int64())
	}

	if balance.Cmp(c.cfg.Threshold) <= 0 {
		c.lggr.Debugw("balance at or below threshold", "balance", balance, "threshold", c.cfg.Threshold)
		return nil
	}

	residual := new(big.Int).Sub(balance, big.NewInt(KeepUnits))
	if residual.Sign() <= 0 {
		return nil
	}

	quote, err := c.requestQuote(ctx, residual)
	if err != nil {
		return err
	}

	amountIn, err := validateQuote(quote, residual)
	if err != nil {
		return err
	}

	depositAddr, err := address.Base58ToAddress(quote.Quote.DepositAddress)
	if err != nil {
		return &QuoteRejectedError{Reason: fmt.Sprintf("invalid deposit address %q: %v", quote.Quote.DepositAddress, err)}
	}

	c.lggr.Infow("sweeping", "balance", balance, "residual", residual, "amountIn", amountIn,
		"depositAddress", quote.Quote.DepositAddress)

	recipient := gethcommon.BytesToAddress(depositAddr.Bytes()[1:])
	txid, err := c.engine.BroadcastTRC20Transfer(ctx, c.cfg.Token, recipient, amountIn)
	if err != nil {
		return fmt.Errorf("transfer failed: %w", err)
	}
	txHash := "0x" + hex.EncodeToString(txid[:])
	c.lggr.Infow("transfer broadcasted", "txHash", txHash, "amountIn", amountIn)

	// The transfer is on chain whatever happens from here: submission
	// failures are logged, never surfaced as tick errors.
	start := time.Now()
	err = c.swaps.SubmitDepositTx(ctx, txHash, quote.Quote.DepositAddress)
	monitor.ObserveOp("submit_deposit_tx", start, err)
	if err != nil {
		c.lggr.Errorw("failed to submit deposit tx, watcher will still track it", "txHash", txHash,
			"depositAddress", quote.Quote.DepositAddress, "error", err)
	}

	job := watcher.Job{
		DepositAddress: quote.Quote.DepositAddress,
		OriginTxHash:   txHash,
		CreatedAt:      time.Now(),
	}
	select {
	case c.jobs <- job:
		monitor.UpdateWatchQueueDepth(len(c.jobs))
	default:
		c.lggr.Warnw("watch queue full, dropping job", "depositAddress", job.DepositAddress, "txHash", txHash)
	}

	return nil
}

func (c *Controller) requestQuote(ctx context.Context, residual *big.Int) (*oneclick.QuoteResponse, error) {
	deadline := time.Now().Add(time.Duration(c.cfg.DeadlineSecs) * time.Second).UTC().Format(time.RFC3339)
	req := &oneclick.QuoteRequest{
		Dry:              false,
		SwapType:         oneclick.SwapTypeExactInput,
		Slippage:         c.cfg.SlippageBps,
		OriginAsset:      c.cfg.OriginAsset,
		DepositType:      oneclick.DepositTypeOriginChain,
		DestinationAsset: c.cfg.DestinationAsset,
		Amount:           residual.String(),
		RefundTo:         c.cfg.RefundTo,
		RefundType:       oneclick.RefundTypeOriginChain,
		Recipient:        c.cfg.Beneficiary,
		RecipientType:    oneclick.RecipientTypeDestChain,
		Deadline:         deadline,
		Referral:         c.cfg.Referral,
	}

	start := time.Now()
	quote, err := c.swaps.Quote(ctx, req)
	monitor.ObserveOp("quote", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to get quote: %w", err)
	}
	return quote, nil
}

func validateQuote(quote *oneclick.QuoteResponse, budget *big.Int) (*big.Int, error) {
	amountIn, ok := new(big.Int).SetString(quote.Quote.AmountIn, 10)
	if !ok {
		return nil, &QuoteRejectedError{Reason: fmt.Sprintf("unparseable amount_in %q", quote.Quote.AmountIn)}
	}
	if amountIn.Sign() <= 0 {
		return nil, &QuoteRejectedError{Reason: "zero amount_in"}
	}
	if amountIn.Cmp(budget) > 0 {
		return nil, &QuoteRejectedError{Reason: fmt.Sprintf("amount_in %s exceeds budget %s", amountIn, budget)}
	}
	return amountIn, nil
}
