package transfer

import (
	"encoding/hex"
	"fmt"
)

// BroadcastRejectedError is returned when the node explicitly refuses a
// signed transaction. The message is kept both lossily decoded and as hex
// for forensics.
type BroadcastRejectedError struct {
	Code    string
	Message []byte
}

func (e *BroadcastRejectedError) Error() string {
	return fmt.Sprintf("broadcast rejected: code=%s message=%q messageHex=%s",
		e.Code, string(e.Message), hex.EncodeToString(e.Message))
}

// InsufficientNativeError is returned by the preflight balance check: some
// nodes require balance >= fee limit even when resources are rented.
type InsufficientNativeError struct {
	Balance  int64
	FeeLimit int64
}

func (e *InsufficientNativeError) Error() string {
	return fmt.Sprintf("insufficient native balance %d sun for fee limit %d sun", e.Balance, e.FeeLimit)
}
