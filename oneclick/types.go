package oneclick

// QuoteRequest is the one-click quote wire format. Enumerated fields carry
// the service's own spelling.
type QuoteRequest struct {
	Dry              bool   `json:"dry"`
	SwapType         string `json:"swap_type"`
	Slippage         int    `json:"slippage"`
	OriginAsset      string `json:"origin_asset"`
	DepositType      string `json:"deposit_type"`
	DestinationAsset string `json:"destination_asset"`
	Amount           string `json:"amount"`
	RefundTo         string `json:"refund_to"`
	RefundType       string `json:"refund_type"`
	Recipient        string `json:"recipient"`
	RecipientType    string `json:"recipient_type"`
	Deadline         string `json:"deadline"`
	Referral         string `json:"referral,omitempty"`
}

const (
	SwapTypeExactInput     = "EXACT_INPUT"
	DepositTypeOriginChain = "ORIGIN_CHAIN"
	RefundTypeOriginChain  = "ORIGIN_CHAIN"
	RecipientTypeDestChain = "DESTINATION_CHAIN"
)

type QuoteResponse struct {
	Quote Quote `json:"quote"`
}

type Quote struct {
	DepositAddress string `json:"deposit_address"`
	AmountIn       string `json:"amount_in"`
	AmountOut      string `json:"amount_out"`
}

type submitRequest struct {
	TxHash         string `json:"tx_hash"`
	DepositAddress string `json:"deposit_address"`
}

// ExecutionStatus is the status endpoint's answer for one deposit address.
type ExecutionStatus struct {
	Status string `json:"status"`
}

// Status values observed from the service.
const (
	StatusPendingDeposit = "PENDING_DEPOSIT"
	StatusProcessing     = "PROCESSING"
	StatusSuccess        = "SUCCESS"
	StatusRefunded       = "REFUNDED"
	StatusFailed         = "FAILED"
)

// TerminalSuccess reports whether the swap delivered.
func (s *ExecutionStatus) TerminalSuccess() bool {
	return s.Status == StatusSuccess
}

// TerminalFailure reports a swap that ended without delivering (refunded or
// failed at destination). The upstream was still responsive.
func (s *ExecutionStatus) TerminalFailure() bool {
	return s.Status == StatusRefunded || s.Status == StatusFailed
}
