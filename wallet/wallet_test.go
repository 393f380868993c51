package wallet

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fbsobreira/gotron-sdk/pkg/proto/api"
	"github.com/fbsobreira/gotron-sdk/pkg/proto/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyHex = "b815adfd6ef133e8ba768456b54c4b5f1b3a3c7995004a1d6863ac0a2e1f269b"

func TestFeePolicyApply(t *testing.T) {
	testCases := []struct {
		name     string
		policy   FeePolicy
		estimate int64
		expected int64
	}{
		{name: "headroom applied", policy: FeePolicy{CapSun: 1_000_000_000, HeadroomPPM: 200_000}, estimate: 10_000_000, expected: 12_000_000},
		{name: "cap wins", policy: FeePolicy{CapSun: 11_000_000, HeadroomPPM: 200_000}, estimate: 10_000_000, expected: 11_000_000},
		{name: "zero headroom", policy: FeePolicy{CapSun: 1_000_000_000}, estimate: 42, expected: 42},
		{name: "no cap", policy: FeePolicy{HeadroomPPM: 500_000}, estimate: 100, expected: 150},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.policy.Apply(tc.estimate))
		})
	}
}

func TestAddressEncodings(t *testing.T) {
	w, err := New(testKeyHex, FeePolicy{})
	require.NoError(t, err)

	base58 := w.Base58()
	assert.True(t, strings.HasPrefix(base58, "T"))
	assert.Len(t, base58, 34)

	hex41 := w.Hex41()
	assert.Len(t, hex41, 42)
	assert.True(t, strings.HasPrefix(hex41, "41"))

	evm := w.EVM()
	assert.Equal(t, hex41[2:], strings.ToLower(evm.Hex()[2:]))

	// "0x" prefixed keys are accepted too.
	w2, err := New("0x"+testKeyHex, FeePolicy{})
	require.NoError(t, err)
	assert.Equal(t, base58, w2.Base58())
}

func TestNewRejectsBadKey(t *testing.T) {
	_, err := New("not-a-key", FeePolicy{})
	assert.Error(t, err)

	_, err = New("abcd", FeePolicy{})
	assert.Error(t, err)
}

func TestSignTransaction(t *testing.T) {
	w, err := New(testKeyHex, FeePolicy{CapSun: 2_000_000_000, HeadroomPPM: 200_000})
	require.NoError(t, err)

	txExt := &api.TransactionExtention{
		Transaction: &core.Transaction{
			RawData: &core.TransactionRaw{
				Expiration: 2000,
				Timestamp:  1000,
			},
		},
	}

	signed, err := w.SignTransaction(txExt, 10_000_000, 65_000)
	require.NoError(t, err)

	assert.Equal(t, int64(12_000_000), signed.FeeLimit)
	assert.Equal(t, signed.FeeLimit, signed.Transaction.GetRawData().GetFeeLimit())
	assert.Equal(t, int64(65_000), signed.EnergyRequired)
	require.Len(t, signed.Transaction.Signature, 1)
	assert.Len(t, signed.Transaction.Signature[0], 65)

	// The signature must recover to the sweeping key over the txid.
	pub, err := crypto.SigToPub(signed.TxID[:], signed.Transaction.Signature[0])
	require.NoError(t, err)
	recovered, err := New(testKeyHex, FeePolicy{})
	require.NoError(t, err)
	assert.Equal(t, recovered.EVM(), crypto.PubkeyToAddress(*pub))

	assert.True(t, strings.HasPrefix(signed.TxIDHex(), "0x"))
	assert.Len(t, signed.TxIDHex(), 66)
}

func TestSignTransactionNoRawData(t *testing.T) {
	w, err := New(testKeyHex, FeePolicy{})
	require.NoError(t, err)

	_, err = w.SignTransaction(&api.TransactionExtention{Transaction: &core.Transaction{}}, 1, 1)
	assert.ErrorContains(t, err, "no raw data")
}
