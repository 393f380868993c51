// Package sdk wraps the TRON full node gRPC surface behind the narrow
// client interface the sweeper needs. Call data is built by the caller;
// this layer only moves protobufs and attaches the API key metadata.
package sdk

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/fbsobreira/gotron-sdk/pkg/address"
	"github.com/fbsobreira/gotron-sdk/pkg/proto/api"
	"github.com/fbsobreira/gotron-sdk/pkg/proto/core"
	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

const (
	DefaultPort    = "50051"
	DefaultTimeout = 15 * time.Second

	apiKeyHeader = "TRON-PRO-API-KEY"
)

type NodeClient interface {
	GetAccount(ctx context.Context, addr address.Address) (*core.Account, error)
	GetAccountResource(ctx context.Context, addr address.Address) (*api.AccountResourceMessage, error)
	GetEnergyPrices(ctx context.Context) (*api.PricesResponseMessage, error)
	TriggerConstantContract(ctx context.Context, owner, contract address.Address, data []byte) (*api.TransactionExtention, error)
	TriggerContract(ctx context.Context, owner, contract address.Address, data []byte) (*api.TransactionExtention, error)
	EstimateEnergy(ctx context.Context, owner, contract address.Address, data []byte) (*api.EstimateEnergyMessage, error)
	Broadcast(ctx context.Context, tx *core.Transaction) (*api.Return, error)
	Close() error
}

var _ NodeClient = (*Conn)(nil)

// Conn is a NodeClient over a single gRPC connection.
type Conn struct {
	target  string
	conn    *grpc.ClientConn
	wallet  api.WalletClient
	apiKey  string
	timeout time.Duration
}

// Dial opens a connection to a full node. URLs use TLS by default; an
// `?insecure=true` query switches to plaintext. The port defaults to 50051.
func Dial(grpcURL, apiKey string) (*Conn, error) {
	return DialWithTimeout(grpcURL, apiKey, DefaultTimeout)
}

func DialWithTimeout(grpcURL, apiKey string, timeout time.Duration) (*Conn, error) {
	parsed, err := url.Parse(grpcURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid grpc url %q", grpcURL)
	}

	hostname := parsed.Hostname()
	port := parsed.Port()
	if port == "" {
		port = DefaultPort
	}

	transportCredentials := credentials.NewTLS(nil)
	if insecureValue := strings.ToLower(parsed.Query().Get("insecure")); insecureValue == "true" || insecureValue == "1" {
		transportCredentials = insecure.NewCredentials()
	}

	target := hostname + ":" + port
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(transportCredentials))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to dial %s", target)
	}

	return &Conn{
		target:  target,
		conn:    conn,
		wallet:  api.NewWalletClient(conn),
		apiKey:  apiKey,
		timeout: timeout,
	}, nil
}

func (c *Conn) Target() string {
	return c.target
}

func (c *Conn) Close() error {
	return c.conn.Close()
}

func (c *Conn) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.apiKey != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, apiKeyHeader, c.apiKey)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Conn) GetAccount(ctx context.Context, addr address.Address) (*core.Account, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	return c.wallet.GetAccount(ctx, &core.Account{Address: addr.Bytes()})
}

func (c *Conn) GetAccountResource(ctx context.Context, addr address.Address) (*api.AccountResourceMessage, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	return c.wallet.GetAccountResource(ctx, &core.Account{Address: addr.Bytes()})
}

func (c *Conn) GetEnergyPrices(ctx context.Context) (*api.PricesResponseMessage, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	return c.wallet.GetEnergyPrices(ctx, &api.EmptyMessage{})
}

func (c *Conn) TriggerConstantContract(ctx context.Context, owner, contract address.Address, data []byte) (*api.TransactionExtention, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	return c.wallet.TriggerConstantContract(ctx, &core.TriggerSmartContract{
		OwnerAddress:    owner.Bytes(),
		ContractAddress: contract.Bytes(),
		Data:            data,
	})
}

func (c *Conn) TriggerContract(ctx context.Context, owner, contract address.Address, data []byte) (*api.TransactionExtention, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	txExt, err := c.wallet.TriggerContract(ctx, &core.TriggerSmartContract{
		OwnerAddress:    owner.Bytes(),
		ContractAddress: contract.Bytes(),
		Data:            data,
	})
	if err != nil {
		return nil, err
	}
	if txExt.GetTransaction().GetRawData() == nil {
		return nil, errors.Errorf("node returned no transaction: %s", txExt.GetResult().GetMessage())
	}
	return txExt, nil
}

func (c *Conn) EstimateEnergy(ctx context.Context, owner, contract address.Address, data []byte) (*api.EstimateEnergyMessage, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	return c.wallet.EstimateEnergy(ctx, &core.TriggerSmartContract{
		OwnerAddress:    owner.Bytes(),
		ContractAddress: contract.Bytes(),
		Data:            data,
	})
}

func (c *Conn) Broadcast(ctx context.Context, tx *core.Transaction) (*api.Return, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	return c.wallet.BroadcastTransaction(ctx, tx)
}
