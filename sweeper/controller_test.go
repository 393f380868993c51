package sweeper_test

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"testing"
	"time"

	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/fbsobreira/gotron-sdk/pkg/address"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/untron/untron-v3-pool/backoff"
	"github.com/untron/untron-v3-pool/oneclick"
	"github.com/untron/untron-v3-pool/sweeper"
	"github.com/untron/untron-v3-pool/watcher"
)

const (
	usdtMainnet = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"
	depositB58  = "TLa2f6VPqDgRE67v1736s7bJ8Ray5wYjU7"
	walletB58   = "TJRabPrwbZy45sbavfcjinPJC18kjpRTv8"
)

type transferCall struct {
	recipient gethcommon.Address
	amount    *big.Int
}

type fakeEngine struct {
	balance     *big.Int
	balanceErr  error
	balanceHits int

	txid        [32]byte
	transferErr error
	transfers   []transferCall
}

func (f *fakeEngine) TokenBalance(_ context.Context, _ address.Address) (*big.Int, error) {
	f.balanceHits++
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}
	return new(big.Int).Set(f.balance), nil
}

func (f *fakeEngine) BroadcastTRC20Transfer(_ context.Context, _ address.Address, recipient gethcommon.Address, amount *big.Int) ([32]byte, error) {
	f.transfers = append(f.transfers, transferCall{recipient: recipient, amount: new(big.Int).Set(amount)})
	if f.transferErr != nil {
		return [32]byte{}, f.transferErr
	}
	return f.txid, nil
}

type submitCall struct {
	txHash         string
	depositAddress string
}

type fakeSwaps struct {
	quote     *oneclick.QuoteResponse
	quoteErr  error
	quoteReqs []*oneclick.QuoteRequest

	submitErr error
	submits   []submitCall
}

func (f *fakeSwaps) Quote(_ context.Context, req *oneclick.QuoteRequest) (*oneclick.QuoteResponse, error) {
	f.quoteReqs = append(f.quoteReqs, req)
	if f.quoteErr != nil {
		return nil, f.quoteErr
	}
	return f.quote, nil
}

func (f *fakeSwaps) SubmitDepositTx(_ context.Context, txHash, depositAddress string) error {
	f.submits = append(f.submits, submitCall{txHash: txHash, depositAddress: depositAddress})
	return f.submitErr
}

func goodQuote(amountIn string) *oneclick.QuoteResponse {
	return &oneclick.QuoteResponse{Quote: oneclick.Quote{
		DepositAddress: depositB58,
		AmountIn:       amountIn,
		AmountOut:      "987654",
	}}
}

type fixture struct {
	controller *sweeper.Controller
	engine     *fakeEngine
	swaps      *fakeSwaps
	backoff    *backoff.State
	jobs       chan watcher.Job
}

func newFixture(t *testing.T, engine *fakeEngine, swaps *fakeSwaps) *fixture {
	token, err := address.Base58ToAddress(usdtMainnet)
	require.NoError(t, err)

	bo := backoff.New()
	jobs := make(chan watcher.Job, 8)
	cfg := sweeper.Config{
		PollInterval:     10 * time.Millisecond,
		Token:            token,
		Threshold:        big.NewInt(1_000_000),
		DeadlineSecs:     600,
		SlippageBps:      100,
		OriginAsset:      "nep141:tron-d28a265909efecdcee7c5028585214ea0b96f015.omft.near",
		DestinationAsset: "nep141:usdt.tether-token.near",
		Beneficiary:      "treasury.near",
		RefundTo:         walletB58,
	}
	return &fixture{
		controller: sweeper.New(zaptest.NewLogger(t).Sugar(), engine, swaps, bo, jobs, cfg),
		engine:     engine,
		swaps:      swaps,
		backoff:    bo,
		jobs:       jobs,
	}
}

func TestRunTickSweeps(t *testing.T) {
	engine := &fakeEngine{balance: big.NewInt(5_000_000), txid: [32]byte{0xab, 0xcd}}
	swaps := &fakeSwaps{quote: goodQuote("4999999")}
	f := newFixture(t, engine, swaps)

	before := time.Now()
	require.NoError(t, f.controller.RunTick(context.Background()))

	// Quote asks for the full balance minus the kept unit.
	require.Len(t, swaps.quoteReqs, 1)
	req := swaps.quoteReqs[0]
	assert.Equal(t, "4999999", req.Amount)
	assert.Equal(t, oneclick.SwapTypeExactInput, req.SwapType)
	assert.Equal(t, walletB58, req.RefundTo)
	assert.Equal(t, "treasury.near", req.Recipient)
	assert.False(t, req.Dry)

	deadline, err := time.Parse(time.RFC3339, req.Deadline)
	require.NoError(t, err)
	assert.True(t, deadline.After(before.Add(599*time.Second)))

	// Transfer targets the quoted deposit address for the quoted amount.
	require.Len(t, engine.transfers, 1)
	depositAddr, err := address.Base58ToAddress(depositB58)
	require.NoError(t, err)
	assert.Equal(t, gethcommon.BytesToAddress(depositAddr.Bytes()[1:]), engine.transfers[0].recipient)
	assert.Equal(t, big.NewInt(4_999_999), engine.transfers[0].amount)

	wantTxHash := "0x" + hex.EncodeToString(engine.txid[:])
	require.Len(t, swaps.submits, 1)
	assert.Equal(t, wantTxHash, swaps.submits[0].txHash)
	assert.Equal(t, depositB58, swaps.submits[0].depositAddress)

	require.Len(t, f.jobs, 1)
	job := <-f.jobs
	assert.Equal(t, depositB58, job.DepositAddress)
	assert.Equal(t, wantTxHash, job.OriginTxHash)
	assert.False(t, job.CreatedAt.Before(before))
}

func TestRunTickSkipsDuringCooldown(t *testing.T) {
	engine := &fakeEngine{balance: big.NewInt(5_000_000)}
	swaps := &fakeSwaps{quote: goodQuote("4999999")}
	f := newFixture(t, engine, swaps)

	f.backoff.RecordFailure(time.Minute, time.Hour)

	require.NoError(t, f.controller.RunTick(context.Background()))
	assert.Zero(t, engine.balanceHits)
	assert.Empty(t, swaps.quoteReqs)
}

func TestRunTickBelowThreshold(t *testing.T) {
	engine := &fakeEngine{balance: big.NewInt(1_000_000)}
	swaps := &fakeSwaps{}
	f := newFixture(t, engine, swaps)

	require.NoError(t, f.controller.RunTick(context.Background()))
	assert.Equal(t, 1, engine.balanceHits)
	assert.Empty(t, swaps.quoteReqs)
	assert.Empty(t, engine.transfers)
}

func TestRunTickBalanceError(t *testing.T) {
	engine := &fakeEngine{balanceErr: errors.New("all endpoints down")}
	swaps := &fakeSwaps{}
	f := newFixture(t, engine, swaps)

	err := f.controller.RunTick(context.Background())
	require.Error(t, err)
	assert.Empty(t, swaps.quoteReqs)
}

func TestRunTickQuoteError(t *testing.T) {
	engine := &fakeEngine{balance: big.NewInt(5_000_000)}
	swaps := &fakeSwaps{quoteErr: errors.New("upstream 503")}
	f := newFixture(t, engine, swaps)

	err := f.controller.RunTick(context.Background())
	require.Error(t, err)
	assert.Empty(t, engine.transfers)
	assert.Empty(t, f.jobs)
}

func TestRunTickRejectsBadQuotes(t *testing.T) {
	cases := []struct {
		name  string
		quote *oneclick.QuoteResponse
	}{
		{"amount above budget", goodQuote("5000000")},
		{"zero amount", goodQuote("0")},
		{"unparseable amount", goodQuote("12.5")},
		{"empty amount", goodQuote("")},
		{"bad deposit address", &oneclick.QuoteResponse{Quote: oneclick.Quote{
			DepositAddress: "not-an-address", AmountIn: "4999999",
		}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine := &fakeEngine{balance: big.NewInt(5_000_000)}
			swaps := &fakeSwaps{quote: tc.quote}
			f := newFixture(t, engine, swaps)

			err := f.controller.RunTick(context.Background())
			var rejected *sweeper.QuoteRejectedError
			require.ErrorAs(t, err, &rejected)
			assert.Empty(t, engine.transfers)
			assert.Empty(t, f.jobs)
		})
	}
}

func TestRunTickAcceptsPartialQuote(t *testing.T) {
	// The service may quote less than asked. Anything within budget sweeps.
	engine := &fakeEngine{balance: big.NewInt(5_000_000)}
	swaps := &fakeSwaps{quote: goodQuote("3000000")}
	f := newFixture(t, engine, swaps)

	require.NoError(t, f.controller.RunTick(context.Background()))
	require.Len(t, engine.transfers, 1)
	assert.Equal(t, big.NewInt(3_000_000), engine.transfers[0].amount)
}

func TestRunTickTransferFailure(t *testing.T) {
	engine := &fakeEngine{balance: big.NewInt(5_000_000), transferErr: errors.New("broadcast rejected")}
	swaps := &fakeSwaps{quote: goodQuote("4999999")}
	f := newFixture(t, engine, swaps)

	err := f.controller.RunTick(context.Background())
	require.Error(t, err)
	assert.Empty(t, swaps.submits)
	assert.Empty(t, f.jobs)
}

func TestRunTickSubmitFailureStillWatches(t *testing.T) {
	engine := &fakeEngine{balance: big.NewInt(5_000_000), txid: [32]byte{1}}
	swaps := &fakeSwaps{quote: goodQuote("4999999"), submitErr: errors.New("upstream 502")}
	f := newFixture(t, engine, swaps)

	require.NoError(t, f.controller.RunTick(context.Background()))
	require.Len(t, f.jobs, 1)
	job := <-f.jobs
	assert.Equal(t, depositB58, job.DepositAddress)
}

func TestRunTickDropsJobWhenQueueFull(t *testing.T) {
	engine := &fakeEngine{balance: big.NewInt(5_000_000), txid: [32]byte{2}}
	swaps := &fakeSwaps{quote: goodQuote("4999999")}
	f := newFixture(t, engine, swaps)

	for len(f.jobs) < cap(f.jobs) {
		f.jobs <- watcher.Job{}
	}

	require.NoError(t, f.controller.RunTick(context.Background()))
	assert.Len(t, f.jobs, cap(f.jobs))
	require.Len(t, swaps.submits, 1)
}

func TestRunStopsOnCancel(t *testing.T) {
	engine := &fakeEngine{balance: big.NewInt(0)}
	swaps := &fakeSwaps{}
	f := newFixture(t, engine, swaps)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.controller.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return engine.balanceHits > 0 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("controller did not stop")
	}
}
