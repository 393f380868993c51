// Package wallet owns the sweeping key: address derivation in the three
// encodings rental providers ask for, the fee limit policy, and raw
// transaction signing.
package wallet

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fbsobreira/gotron-sdk/pkg/address"
	"github.com/fbsobreira/gotron-sdk/pkg/proto/api"
	"github.com/fbsobreira/gotron-sdk/pkg/proto/core"
	gethcommon "github.com/ethereum/go-ethereum/common"
	"google.golang.org/protobuf/proto"
)

// FeePolicy caps the per-transaction fee limit and pads the node estimate.
type FeePolicy struct {
	CapSun      int64
	HeadroomPPM int64
}

// Apply derives the declared fee limit: min(cap, estimate * (1 + ppm/1e6)).
func (p FeePolicy) Apply(estimateSun int64) int64 {
	padded := estimateSun + estimateSun*p.HeadroomPPM/1_000_000
	if p.CapSun > 0 && padded > p.CapSun {
		return p.CapSun
	}
	return padded
}

// SignedTx is the transient record handed to the broadcaster.
type SignedTx struct {
	Transaction    *core.Transaction
	TxID           [32]byte
	FeeLimit       int64
	EnergyRequired int64
}

func (s *SignedTx) TxIDHex() string {
	return "0x" + hex.EncodeToString(s.TxID[:])
}

type Wallet struct {
	priv   *ecdsa.PrivateKey
	addr   address.Address
	policy FeePolicy
}

// New builds a wallet from a 32-byte hex-encoded private key.
func New(privKeyHex string, policy FeePolicy) (*Wallet, error) {
	privKeyHex = strings.TrimPrefix(strings.TrimSpace(privKeyHex), "0x")
	priv, err := crypto.HexToECDSA(privKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &Wallet{
		priv:   priv,
		addr:   address.PubkeyToAddress(priv.PublicKey),
		policy: policy,
	}, nil
}

func (w *Wallet) Address() address.Address {
	return w.addr
}

// Base58 returns the base58check form, e.g. "T...".
func (w *Wallet) Base58() string {
	return w.addr.String()
}

// Hex41 returns the 21-byte 0x41-prefixed hex form.
func (w *Wallet) Hex41() string {
	return hex.EncodeToString(w.addr.Bytes())
}

// EVM returns the 20-byte EVM form of the address.
func (w *Wallet) EVM() gethcommon.Address {
	return gethcommon.BytesToAddress(w.addr.Bytes()[1:])
}

func (w *Wallet) Policy() FeePolicy {
	return w.policy
}

// SignTransaction applies the fee policy to a node-built transaction,
// recomputes the txid over the mutated raw data and signs it.
func (w *Wallet) SignTransaction(txExt *api.TransactionExtention, feeEstimateSun, energyRequired int64) (*SignedTx, error) {
	tx := txExt.GetTransaction()
	rawData := tx.GetRawData()
	if rawData == nil {
		return nil, fmt.Errorf("transaction has no raw data")
	}
	rawData.FeeLimit = w.policy.Apply(feeEstimateSun)

	rawBytes, err := proto.Marshal(rawData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal raw data: %w", err)
	}
	txid := sha256.Sum256(rawBytes)

	signature, err := crypto.Sign(txid[:], w.priv)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	tx.Signature = append(tx.Signature, signature)

	return &SignedTx{
		Transaction:    tx,
		TxID:           txid,
		FeeLimit:       rawData.FeeLimit,
		EnergyRequired: energyRequired,
	}, nil
}
