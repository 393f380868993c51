package transfer

import (
	"fmt"
	"math/big"

	gethcommon "github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

var (
	transferSelector  = methodSelector("transfer(address,uint256)")
	balanceOfSelector = methodSelector("balanceOf(address)")
)

func methodSelector(signature string) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(signature))
	return h.Sum(nil)[:4]
}

// EncodeTransferCall packs transfer(address,uint256) call data: 4-byte
// selector, 32-byte left-padded recipient, 32-byte big-endian amount.
func EncodeTransferCall(to gethcommon.Address, amount *big.Int) []byte {
	data := make([]byte, 0, 4+32+32)
	data = append(data, transferSelector...)
	data = append(data, gethcommon.LeftPadBytes(to.Bytes(), 32)...)
	data = append(data, gethcommon.LeftPadBytes(amount.Bytes(), 32)...)
	return data
}

// DecodeTransferCall is the inverse of EncodeTransferCall.
func DecodeTransferCall(data []byte) (gethcommon.Address, *big.Int, error) {
	if len(data) != 4+32+32 {
		return gethcommon.Address{}, nil, fmt.Errorf("invalid transfer call data length %d", len(data))
	}
	for i, b := range transferSelector {
		if data[i] != b {
			return gethcommon.Address{}, nil, fmt.Errorf("not a transfer(address,uint256) call")
		}
	}
	to := gethcommon.BytesToAddress(data[4+12 : 4+32])
	amount := new(big.Int).SetBytes(data[4+32:])
	return to, amount, nil
}

// EncodeBalanceOfCall packs balanceOf(address) call data.
func EncodeBalanceOfCall(holder gethcommon.Address) []byte {
	data := make([]byte, 0, 4+32)
	data = append(data, balanceOfSelector...)
	data = append(data, gethcommon.LeftPadBytes(holder.Bytes(), 32)...)
	return data
}
