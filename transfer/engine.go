// Package transfer builds, preflights, signs and broadcasts TRC20
// transfers, renting energy on the way when the on-chain shortfall makes
// it worthwhile.
package transfer

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/fbsobreira/gotron-sdk/pkg/address"
	"go.uber.org/zap"

	"github.com/untron/untron-v3-pool/nodepool"
	"github.com/untron/untron-v3-pool/rental"
	"github.com/untron/untron-v3-pool/sdk"
	"github.com/untron/untron-v3-pool/wallet"
)

type Engine struct {
	lggr        *zap.SugaredLogger
	pool        *nodepool.Pool
	wallet      *wallet.Wallet
	rentals     *rental.Pool
	settleDelay time.Duration

	estimateEnergyEnabled bool
}

func NewEngine(lggr *zap.SugaredLogger, pool *nodepool.Pool, w *wallet.Wallet, rentals *rental.Pool, settleDelay time.Duration) *Engine {
	return &Engine{
		lggr:                  lggr.Named("TransferEngine"),
		pool:                  pool,
		wallet:                w,
		rentals:               rentals,
		settleDelay:           settleDelay,
		estimateEnergyEnabled: true,
	}
}

// TokenBalance reads balanceOf(wallet) on the token contract through the
// endpoint failover wrapper.
func (e *Engine) TokenBalance(ctx context.Context, token address.Address) (*big.Int, error) {
	data := EncodeBalanceOfCall(e.wallet.EVM())

	var balance *big.Int
	err := e.pool.WithFailover(ctx, "balance_of", func(ctx context.Context, c sdk.NodeClient) error {
		txExt, err := c.TriggerConstantContract(ctx, e.wallet.Address(), token, data)
		if err != nil {
			return err
		}
		if result := txExt.GetResult(); result != nil && !result.GetResult() {
			return fmt.Errorf("balanceOf call failed: %s", result.GetMessage())
		}
		constantResult := txExt.GetConstantResult()
		if len(constantResult) == 0 {
			return fmt.Errorf("balanceOf returned no result")
		}
		balance = new(big.Int).SetBytes(constantResult[0])
		return nil
	})
	if err != nil {
		return nil, err
	}
	return balance, nil
}

// BroadcastTRC20Transfer produces a broadcasted transfer of `amount` token
// base units to `recipient` and returns the 32-byte txid. Transient node
// failures retry on the next endpoint; rejections surface immediately.
func (e *Engine) BroadcastTRC20Transfer(ctx context.Context, token address.Address, recipient gethcommon.Address, amount *big.Int) ([32]byte, error) {
	data := EncodeTransferCall(recipient, amount)

	var txid [32]byte
	err := e.pool.WithFailover(ctx, "trc20_transfer", func(ctx context.Context, c sdk.NodeClient) error {
		signed, err := e.attempt(ctx, c, token, data)
		if err != nil {
			return err
		}
		txid = signed.TxID
		return nil
	})
	if err != nil {
		return [32]byte{}, err
	}
	return txid, nil
}

// attempt runs the full build-sign-rent-broadcast sequence against one
// endpoint.
func (e *Engine) attempt(ctx context.Context, c sdk.NodeClient, token address.Address, data []byte) (*wallet.SignedTx, error) {
	owner := e.wallet.Address()

	energyRequired, err := e.estimateEnergy(ctx, c, owner, token, data)
	if err != nil {
		return nil, fmt.Errorf("failed to estimate energy: %w", err)
	}

	energyUnitPrice := e.energyUnitPrice(ctx, c)
	feeEstimate := energyUnitPrice * energyRequired

	txExt, err := c.TriggerContract(ctx, owner, token, data)
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction: %w", err)
	}

	signed, err := e.wallet.SignTransaction(txExt, feeEstimate, energyRequired)
	if err != nil {
		return nil, err
	}

	e.lggr.Debugw("built transaction", "txid", signed.TxIDHex(), "energyRequired", energyRequired,
		"energyUnitPrice", energyUnitPrice, "feeEstimate", feeEstimate, "feeLimit", signed.FeeLimit)

	// Preflight: some nodes reject transactions whose declared fee limit
	// exceeds the native balance even when resources cover the fees.
	account, err := c.GetAccount(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if account.GetBalance() < signed.FeeLimit {
		return nil, nodepool.Permanent(&InsufficientNativeError{
			Balance:  account.GetBalance(),
			FeeLimit: signed.FeeLimit,
		})
	}

	e.negotiateEnergy(ctx, c, owner, signed)

	ack, err := c.Broadcast(ctx, signed.Transaction)
	if err != nil {
		return nil, fmt.Errorf("failed to broadcast: %w", err)
	}
	if !ack.GetResult() {
		return nil, nodepool.Permanent(&BroadcastRejectedError{
			Code:    ack.GetCode().String(),
			Message: ack.GetMessage(),
		})
	}

	e.lggr.Infow("transaction broadcasted", "txid", signed.TxIDHex(), "feeLimit", signed.FeeLimit)
	return signed, nil
}

// negotiateEnergy rents the on-chain energy shortfall when it crosses the
// rental threshold. Rental failure is not fatal: the node will charge
// native fees up to the fee limit.
func (e *Engine) negotiateEnergy(ctx context.Context, c sdk.NodeClient, owner address.Address, signed *wallet.SignedTx) {
	if e.rentals == nil || e.rentals.Len() == 0 {
		return
	}

	resources, err := c.GetAccountResource(ctx, owner)
	if err != nil {
		e.lggr.Warnw("failed to read account resources, paying native fees", "error", err)
		return
	}

	available := resources.GetEnergyLimit() - resources.GetEnergyUsed()
	shortfall := signed.EnergyRequired - available
	if shortfall < rental.MinEnergyRentalAmount {
		e.lggr.Debugw("energy shortfall below rental threshold", "shortfall", shortfall,
			"available", available, "required", signed.EnergyRequired)
		return
	}

	outcome := e.rentals.Rent(ctx, rental.RentalContext{
		Resource:      rental.ResourceEnergy,
		Amount:        shortfall,
		AddressBase58: e.wallet.Base58(),
		AddressHex41:  e.wallet.Hex41(),
		AddressEVM:    strings.ToLower(e.wallet.EVM().Hex()),
		TxID:          signed.TxIDHex(),
	})
	switch outcome.Status {
	case rental.Rented:
		if e.settleDelay > 0 {
			e.lggr.Debugw("waiting for rented energy to settle", "delay", e.settleDelay)
			select {
			case <-time.After(e.settleDelay):
			case <-ctx.Done():
			}
		}
	case rental.AllFailed:
		e.lggr.Warnw("energy rental exhausted, paying native fees", "shortfall", shortfall)
	}
}

func (e *Engine) estimateEnergy(ctx context.Context, c sdk.NodeClient, owner, token address.Address, data []byte) (int64, error) {
	if e.estimateEnergyEnabled {
		estimate, err := c.EstimateEnergy(ctx, owner, token, data)
		if err == nil && estimate.GetResult().GetResult() {
			return estimate.GetEnergyRequired(), nil
		}
		if err != nil {
			if strings.Contains(err.Error(), "this node does not support estimate energy") {
				e.estimateEnergyEnabled = false
				e.lggr.Infow("node does not support EstimateEnergy, falling back to simulation", "error", err)
			} else {
				e.lggr.Errorw("failed to call EstimateEnergy", "error", err)
			}
		}
	}

	// Simulate the call instead.
	simulation, err := c.TriggerConstantContract(ctx, owner, token, data)
	if err != nil {
		return 0, fmt.Errorf("failed to simulate contract call: %w", err)
	}
	if result := simulation.GetResult(); result != nil && !result.GetResult() {
		return 0, fmt.Errorf("simulation failed: %s", result.GetMessage())
	}

	return simulation.GetEnergyUsed() + simulation.GetEnergyPenalty(), nil
}

func (e *Engine) energyUnitPrice(ctx context.Context, c sdk.NodeClient) int64 {
	prices, err := c.GetEnergyPrices(ctx)
	if err != nil {
		e.lggr.Warnw("failed to get energy prices, using default", "default", DefaultEnergyUnitPrice, "error", err)
		return DefaultEnergyUnitPrice
	}
	price, err := parseLatestEnergyPrice(prices.GetPrices())
	if err != nil {
		e.lggr.Warnw("failed to parse energy prices, using default", "default", DefaultEnergyUnitPrice, "error", err)
		return DefaultEnergyUnitPrice
	}
	return price
}
