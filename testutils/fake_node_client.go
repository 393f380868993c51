// Package testutils holds hand-written fakes shared by package tests.
package testutils

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fbsobreira/gotron-sdk/pkg/address"
	"github.com/fbsobreira/gotron-sdk/pkg/proto/api"
	"github.com/fbsobreira/gotron-sdk/pkg/proto/core"
)

// FakeNodeClient implements sdk.NodeClient with per-method hooks. Unset
// hooks return healthy defaults so tests only script what they care about.
type FakeNodeClient struct {
	GetAccountFn              func(ctx context.Context, addr address.Address) (*core.Account, error)
	GetAccountResourceFn      func(ctx context.Context, addr address.Address) (*api.AccountResourceMessage, error)
	GetEnergyPricesFn         func(ctx context.Context) (*api.PricesResponseMessage, error)
	TriggerConstantContractFn func(ctx context.Context, owner, contract address.Address, data []byte) (*api.TransactionExtention, error)
	TriggerContractFn         func(ctx context.Context, owner, contract address.Address, data []byte) (*api.TransactionExtention, error)
	EstimateEnergyFn          func(ctx context.Context, owner, contract address.Address, data []byte) (*api.EstimateEnergyMessage, error)
	BroadcastFn               func(ctx context.Context, tx *core.Transaction) (*api.Return, error)

	Closed bool
}

func (f *FakeNodeClient) GetAccount(ctx context.Context, addr address.Address) (*core.Account, error) {
	if f.GetAccountFn != nil {
		return f.GetAccountFn(ctx, addr)
	}
	return &core.Account{Balance: 1_000_000_000}, nil
}

func (f *FakeNodeClient) GetAccountResource(ctx context.Context, addr address.Address) (*api.AccountResourceMessage, error) {
	if f.GetAccountResourceFn != nil {
		return f.GetAccountResourceFn(ctx, addr)
	}
	return &api.AccountResourceMessage{EnergyLimit: 1_000_000, EnergyUsed: 0}, nil
}

func (f *FakeNodeClient) GetEnergyPrices(ctx context.Context) (*api.PricesResponseMessage, error) {
	if f.GetEnergyPricesFn != nil {
		return f.GetEnergyPricesFn(ctx)
	}
	return &api.PricesResponseMessage{Prices: "0:100,1681895880000:420"}, nil
}

func (f *FakeNodeClient) TriggerConstantContract(ctx context.Context, owner, contract address.Address, data []byte) (*api.TransactionExtention, error) {
	if f.TriggerConstantContractFn != nil {
		return f.TriggerConstantContractFn(ctx, owner, contract, data)
	}
	return &api.TransactionExtention{
		Result:         &api.Return{Result: true},
		EnergyUsed:     30_000,
		ConstantResult: [][]byte{make([]byte, 32)},
	}, nil
}

func (f *FakeNodeClient) TriggerContract(ctx context.Context, owner, contract address.Address, data []byte) (*api.TransactionExtention, error) {
	if f.TriggerContractFn != nil {
		return f.TriggerContractFn(ctx, owner, contract, data)
	}
	return &api.TransactionExtention{
		Result: &api.Return{Result: true},
		Transaction: &core.Transaction{
			RawData: &core.TransactionRaw{
				Timestamp:    123,
				Expiration:   456,
				RefBlockHash: []byte("abc"),
			},
		},
	}, nil
}

func (f *FakeNodeClient) EstimateEnergy(ctx context.Context, owner, contract address.Address, data []byte) (*api.EstimateEnergyMessage, error) {
	if f.EstimateEnergyFn != nil {
		return f.EstimateEnergyFn(ctx, owner, contract, data)
	}
	return &api.EstimateEnergyMessage{
		Result:         &api.Return{Result: true},
		EnergyRequired: 30_000,
	}, nil
}

func (f *FakeNodeClient) Broadcast(ctx context.Context, tx *core.Transaction) (*api.Return, error) {
	if f.BroadcastFn != nil {
		return f.BroadcastFn(ctx, tx)
	}
	return &api.Return{Result: true, Code: api.Return_SUCCESS}, nil
}

func (f *FakeNodeClient) Close() error {
	f.Closed = true
	return nil
}

// CreateKey generates a fresh secp256k1 key pair with its TRON address.
func CreateKey() (*ecdsa.PrivateKey, address.Address) {
	priv, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		panic(err)
	}
	return priv, address.PubkeyToAddress(priv.PublicKey)
}
