// Package oneclick is the HTTP client for the cross-chain one-click swap
// service: quoting, deposit submission and execution status.
package oneclick

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// UpstreamError marks transport failures and 5xx responses, the signals
// the watcher classifies as a sick upstream and feeds into the backoff.
type UpstreamError struct {
	Op         string
	StatusCode int // 0 for transport errors
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("oneclick %s: upstream status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("oneclick %s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func IsUpstreamError(err error) bool {
	var upstream *UpstreamError
	return errors.As(err, &upstream)
}

type Client struct {
	baseURL    string
	bearer     string
	userAgent  string
	httpClient *http.Client
}

func NewClient(baseURL, bearerToken, version string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		bearer:     bearerToken,
		userAgent:  "untron-v3-pool/" + version,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) Quote(ctx context.Context, req *QuoteRequest) (*QuoteResponse, error) {
	var resp QuoteResponse
	if err := c.do(ctx, "quote", http.MethodPost, "/v0/quote", req, &resp); err != nil {
		return nil, err
	}
	if resp.Quote.DepositAddress == "" {
		return nil, errors.New("oneclick quote: missing deposit_address")
	}
	return &resp, nil
}

// SubmitDepositTx notifies the service of the origin-chain transfer. txHash
// is the 0x-prefixed TRON txid.
func (c *Client) SubmitDepositTx(ctx context.Context, txHash, depositAddress string) error {
	req := submitRequest{TxHash: txHash, DepositAddress: depositAddress}
	return c.do(ctx, "submit_deposit_tx", http.MethodPost, "/v0/deposit/submit", req, nil)
}

func (c *Client) GetExecutionStatus(ctx context.Context, depositAddress string) (*ExecutionStatus, error) {
	path := "/v0/status?depositAddress=" + url.QueryEscape(depositAddress)
	var status ExecutionStatus
	if err := c.do(ctx, "get_execution_status", http.MethodGet, path, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return errors.Wrapf(err, "oneclick %s: failed to encode request", op)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrapf(err, "oneclick %s: failed to build request", op)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-Id", uuid.NewString())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &UpstreamError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &UpstreamError{Op: op, Err: err}
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return &UpstreamError{Op: op, StatusCode: resp.StatusCode}
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= 300 {
		return errors.Errorf("oneclick %s: status %d: %s", op, resp.StatusCode, respBody)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return errors.Wrapf(err, "oneclick %s: failed to decode response %q", op, respBody)
		}
	}
	return nil
}
