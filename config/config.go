// Package config loads the service's TOML configuration with secrets
// overlaid from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fbsobreira/gotron-sdk/pkg/address"
	"github.com/pelletier/go-toml/v2"

	"github.com/untron/untron-v3-pool/rental"
)

// Duration is a time.Duration that unmarshals from TOML strings like "30s".
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

type Config struct {
	LogLevel string         `toml:"log_level"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Tron     TronConfig     `toml:"tron"`
	OneClick OneClickConfig `toml:"oneclick"`
	Jobs     JobsConfig     `toml:"jobs"`
}

type MetricsConfig struct {
	// ListenAddr exposes /metrics when set. Empty disables the listener.
	ListenAddr string `toml:"listen_addr"`
}

type TronConfig struct {
	GrpcURLs            []string `toml:"grpc_urls"`
	APIKey              string   `toml:"api_key"`
	PrivateKey          string   `toml:"private_key"`
	UsdtContractAddress string   `toml:"usdt_contract_address"`

	FeeLimitCapSun      int64 `toml:"fee_limit_cap_sun"`
	FeeLimitHeadroomPPM int64 `toml:"fee_limit_headroom_ppm"`

	EnergyRentalProviders   []rental.ProviderConfig `toml:"energy_rental_providers"`
	EnergyRentalSettleDelay Duration                `toml:"energy_rental_settle_delay"`
}

type OneClickConfig struct {
	BaseURL     string `toml:"base_url"`
	BearerToken string `toml:"bearer_token"`

	StatusPollInterval Duration `toml:"status_poll_interval"`
	StatusMaxWait      Duration `toml:"status_max_wait"`
	BackoffBase        Duration `toml:"backoff_base"`
	BackoffMax         Duration `toml:"backoff_max"`

	DeadlineSecs     int64  `toml:"deadline_secs"`
	SlippageBps      int    `toml:"slippage_bps"`
	OriginAsset      string `toml:"origin_asset"`
	DestinationAsset string `toml:"destination_asset"`
	Beneficiary      string `toml:"beneficiary"`
	Referral         string `toml:"referral"`
}

type JobsConfig struct {
	PollInterval         Duration `toml:"poll_interval"`
	UsdtBalanceThreshold int64    `toml:"usdt_balance_threshold"`
}

// Default returns the config with every optional knob at its default.
// Required fields (node URLs, keys, assets) stay empty and fail Validate.
func Default() Config {
	return Config{
		LogLevel: "info",
		Tron: TronConfig{
			FeeLimitCapSun:          2_000_000_000,
			FeeLimitHeadroomPPM:     200_000,
			EnergyRentalSettleDelay: Duration(3 * time.Second),
		},
		OneClick: OneClickConfig{
			BaseURL:            "https://1click.chaindefuser.com",
			StatusPollInterval: Duration(10 * time.Second),
			StatusMaxWait:      Duration(30 * time.Minute),
			BackoffBase:        Duration(30 * time.Second),
			BackoffMax:         Duration(15 * time.Minute),
			DeadlineSecs:       600,
			SlippageBps:        100,
		},
		Jobs: JobsConfig{
			PollInterval:         Duration(30 * time.Second),
			UsdtBalanceThreshold: 10_000_000,
		},
	}
}

// Load reads the TOML file at path over the defaults, overlays secrets from
// the environment and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Secrets never live in the TOML file in production; the environment wins
// when both are set.
func (c *Config) applyEnv() {
	if v := os.Getenv("TRON_PRIVATE_KEY"); v != "" {
		c.Tron.PrivateKey = v
	}
	if v := os.Getenv("TRON_API_KEY"); v != "" {
		c.Tron.APIKey = v
	}
	if v := os.Getenv("ONECLICK_BEARER_TOKEN"); v != "" {
		c.OneClick.BearerToken = v
	}
}

func (c *Config) Validate() error {
	var err error

	if len(c.Tron.GrpcURLs) == 0 {
		err = errors.Join(err, errors.New("tron.grpc_urls: at least one node URL is required"))
	}
	for i, u := range c.Tron.GrpcURLs {
		if u == "" {
			err = errors.Join(err, fmt.Errorf("tron.grpc_urls[%d]: empty URL", i))
		}
	}
	if c.Tron.PrivateKey == "" {
		err = errors.Join(err, errors.New("tron.private_key: required (or TRON_PRIVATE_KEY)"))
	}
	if c.Tron.UsdtContractAddress == "" {
		err = errors.Join(err, errors.New("tron.usdt_contract_address: required"))
	} else if _, aerr := address.Base58ToAddress(c.Tron.UsdtContractAddress); aerr != nil {
		err = errors.Join(err, fmt.Errorf("tron.usdt_contract_address: %w", aerr))
	}
	if c.Tron.FeeLimitCapSun <= 0 {
		err = errors.Join(err, errors.New("tron.fee_limit_cap_sun: must be positive"))
	}
	if c.Tron.FeeLimitHeadroomPPM < 0 {
		err = errors.Join(err, errors.New("tron.fee_limit_headroom_ppm: must not be negative"))
	}
	for i, p := range c.Tron.EnergyRentalProviders {
		if verr := p.Validate(); verr != nil {
			err = errors.Join(err, fmt.Errorf("tron.energy_rental_providers[%d]: %w", i, verr))
		}
	}

	if c.OneClick.BaseURL == "" {
		err = errors.Join(err, errors.New("oneclick.base_url: required"))
	}
	if c.OneClick.OriginAsset == "" {
		err = errors.Join(err, errors.New("oneclick.origin_asset: required"))
	}
	if c.OneClick.DestinationAsset == "" {
		err = errors.Join(err, errors.New("oneclick.destination_asset: required"))
	}
	if c.OneClick.Beneficiary == "" {
		err = errors.Join(err, errors.New("oneclick.beneficiary: required"))
	}
	if c.OneClick.SlippageBps < 0 || c.OneClick.SlippageBps > 10_000 {
		err = errors.Join(err, errors.New("oneclick.slippage_bps: must be within [0, 10000]"))
	}
	if c.OneClick.DeadlineSecs <= 0 {
		err = errors.Join(err, errors.New("oneclick.deadline_secs: must be positive"))
	}
	if c.OneClick.StatusPollInterval <= 0 {
		err = errors.Join(err, errors.New("oneclick.status_poll_interval: must be positive"))
	}
	if c.OneClick.StatusMaxWait <= 0 {
		err = errors.Join(err, errors.New("oneclick.status_max_wait: must be positive"))
	}
	if c.OneClick.BackoffBase <= 0 || c.OneClick.BackoffMax < c.OneClick.BackoffBase {
		err = errors.Join(err, errors.New("oneclick.backoff_base/backoff_max: base must be positive and max >= base"))
	}

	if c.Jobs.PollInterval <= 0 {
		err = errors.Join(err, errors.New("jobs.poll_interval: must be positive"))
	}
	if c.Jobs.UsdtBalanceThreshold < 0 {
		err = errors.Join(err, errors.New("jobs.usdt_balance_threshold: must not be negative"))
	}

	return err
}
