package rental

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"
)

// feeeProvider speaks the feee.io-style order API: base58 payer address,
// api key header, {code, data, message} envelope with code 0 on success.
type feeeProvider struct {
	name       string
	url        string
	apiKey     string
	httpClient *http.Client
}

func (p *feeeProvider) Name() string {
	return p.name
}

type feeeOrderRequest struct {
	ResourceType   string `json:"resource_type"`
	ReceiveAddress string `json:"receive_address"`
	ResourceValue  int64  `json:"resource_value"`
	RentTime       string `json:"rent_time"`
	TxID           string `json:"txid,omitempty"`
}

type feeeOrderResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		OrderNo string `json:"order_no"`
	} `json:"data"`
}

func (p *feeeProvider) Rent(ctx context.Context, rc RentalContext) (RentalResult, error) {
	reqBody := feeeOrderRequest{
		ResourceType:   string(rc.Resource),
		ReceiveAddress: rc.AddressBase58,
		ResourceValue:  rc.Amount,
		RentTime:       "1h",
		TxID:           rc.TxID,
	}

	var resp feeeOrderResponse
	if err := postJSON(ctx, p.httpClient, p.url, map[string]string{"key": p.apiKey}, reqBody, &resp); err != nil {
		return RentalResult{}, err
	}

	if resp.Code != 0 {
		return RentalResult{OK: false, Reason: resp.Message}, nil
	}
	return RentalResult{OK: true, OrderID: resp.Data.OrderNo}, nil
}

// itrxProvider speaks the itrx.io-style order API: EVM hex payer address,
// bearer-ish api key, {errno, data: {order_id}} envelope with errno 0 on
// success.
type itrxProvider struct {
	name       string
	url        string
	apiKey     string
	httpClient *http.Client
}

func (p *itrxProvider) Name() string {
	return p.name
}

type itrxOrderRequest struct {
	EnergyAmount   int64  `json:"energy_amount"`
	Period         string `json:"period"`
	ReceiveAddress string `json:"receive_address"`
	RefTxID        string `json:"ref_txid,omitempty"`
}

type itrxOrderResponse struct {
	Errno   int    `json:"errno"`
	Message string `json:"message"`
	Data    struct {
		OrderID string `json:"order_id"`
	} `json:"data"`
}

func (p *itrxProvider) Rent(ctx context.Context, rc RentalContext) (RentalResult, error) {
	reqBody := itrxOrderRequest{
		EnergyAmount:   rc.Amount,
		Period:         "1H",
		ReceiveAddress: rc.AddressEVM,
		RefTxID:        rc.TxID,
	}

	var resp itrxOrderResponse
	if err := postJSON(ctx, p.httpClient, p.url, map[string]string{"API-KEY": p.apiKey}, reqBody, &resp); err != nil {
		return RentalResult{}, err
	}

	if resp.Errno != 0 {
		return RentalResult{OK: false, Reason: resp.Message}, nil
	}
	return RentalResult{OK: true, OrderID: resp.Data.OrderID}, nil
}

func postJSON(ctx context.Context, httpClient *http.Client, url string, headers map[string]string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return errors.Wrap(err, "failed to encode order")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "failed to build order request")
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "order request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.Wrap(err, "failed to read order response")
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("order request returned status %d: %s", resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrapf(err, "failed to decode order response %q", body)
	}
	return nil
}
