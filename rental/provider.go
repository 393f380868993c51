// Package rental rotates over competing TRON energy-rental providers so the
// sweeper can avoid burning TRX on fees. Providers differ in wire format
// and address encoding; the RentalContext carries the payer address in
// every encoding any of them asks for.
package rental

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Resource is the TRON resource kind being rented.
type Resource string

const ResourceEnergy Resource = "ENERGY"

// MinEnergyRentalAmount is the smallest shortfall worth renting for;
// below it the caller pays native fees directly.
const MinEnergyRentalAmount int64 = 32_000

// RentalContext carries everything a provider needs to place an order.
type RentalContext struct {
	Resource Resource
	Amount   int64

	// Payer address in the three encodings providers variously require.
	AddressBase58 string // T...
	AddressHex41  string // 41-prefixed 21-byte hex
	AddressEVM    string // 0x-prefixed 20-byte hex

	// TxID optionally pins the rental to a specific transaction.
	TxID string
}

// RentalResult is a provider's answer. OK=false with no error is a soft
// failure (the provider answered but declined).
type RentalResult struct {
	OK      bool
	OrderID string
	Reason  string
}

type Provider interface {
	Name() string
	Rent(ctx context.Context, rc RentalContext) (RentalResult, error)
}

// ProviderConfig describes one provider endpoint. Kind selects the wire
// format implementation.
type ProviderConfig struct {
	Name   string `toml:"name"`
	Kind   string `toml:"kind"`
	URL    string `toml:"url"`
	APIKey string `toml:"api_key"`
}

// Validate checks the fields NewProvider will need.
func (c ProviderConfig) Validate() error {
	var err error
	if c.Name == "" {
		err = errors.Join(err, errors.New("name: required"))
	}
	switch c.Kind {
	case "feee", "itrx":
	case "":
		err = errors.Join(err, errors.New("kind: required"))
	default:
		err = errors.Join(err, fmt.Errorf("kind: unknown %q", c.Kind))
	}
	if c.URL == "" {
		err = errors.Join(err, errors.New("url: required"))
	}
	return err
}

const defaultHTTPTimeout = 10 * time.Second

// NewProvider builds a provider from config.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	httpClient := &http.Client{Timeout: defaultHTTPTimeout}
	switch cfg.Kind {
	case "feee":
		return &feeeProvider{name: cfg.Name, url: cfg.URL, apiKey: cfg.APIKey, httpClient: httpClient}, nil
	case "itrx":
		return &itrxProvider{name: cfg.Name, url: cfg.URL, apiKey: cfg.APIKey, httpClient: httpClient}, nil
	default:
		return nil, fmt.Errorf("unknown rental provider kind %q", cfg.Kind)
	}
}
