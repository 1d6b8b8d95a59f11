package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/sigweihq/walletsession/pkg/constants"
	"github.com/sigweihq/walletsession/pkg/utils"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config holds everything the session needs to know about its single target
// network, the token it reads and the purchase provider it falls back to
type Config struct {
	TargetChainID int64            `validate:"gt=0"`
	Token         TokenConfig      `validate:"required"`
	Ledger        LedgerConfig     `validate:"required"`
	Compliance    ComplianceConfig `validate:"required"`
	Purchase      PurchaseConfig   `validate:"required"`
	Balance       BalanceConfig
	Wallet        WalletConfig
}

// TokenConfig identifies the token whose balance is shown
type TokenConfig struct {
	Address  string `validate:"required,eth_addr"`
	Decimals int32  `validate:"gte=0,lte=36"`
	Symbol   string `validate:"required"`
}

// LedgerConfig is the retry contract of the balance reader
type LedgerConfig struct {
	Endpoints      []string      `validate:"required,min=1,dive,url"`
	MaxRetries     int           `validate:"gte=0"`
	RetryDelay     time.Duration `validate:"gte=0"`
	RequestTimeout time.Duration `validate:"gt=0"`
}

// ComplianceConfig tunes the automatic network switch
type ComplianceConfig struct {
	SettleDelay   time.Duration `validate:"gte=0"`
	SwitchTimeout time.Duration `validate:"gt=0"`
}

// BalanceConfig tunes the balance watcher. A zero PollInterval disables polling.
type BalanceConfig struct {
	PollInterval time.Duration `validate:"gte=0"`
}

// PurchaseConfig describes the fiat on-ramp popup
type PurchaseConfig struct {
	BaseURL               string        `validate:"required,url"`
	CurrencyCode          string        `validate:"required,alphanum"`
	ColorCode             string        `validate:"omitempty,hexcolor"`
	RedirectURL           string        `validate:"omitempty,url"`
	PollInterval          time.Duration `validate:"gt=0"`
	APIKey                string
	ShowWalletAddressForm bool
	BrowserCommand        []string // argv; "{url}" is the purchase URL, "{profile}" a throwaway browser profile
}

// WalletConfig points at a JSON-RPC wallet endpoint
type WalletConfig struct {
	RPCEndpoint  string        `validate:"omitempty,url"`
	PollInterval time.Duration `validate:"gte=0"`
}

// Default returns the Flow EVM Testnet configuration
func Default() Config {
	return Config{
		TargetChainID: constants.ChainIDFlowEVMTestnet,
		Token: TokenConfig{
			Address:  constants.NativeTokenAddress,
			Decimals: 18,
			Symbol:   "FLOW",
		},
		Ledger: LedgerConfig{
			Endpoints:      []string{constants.FlowEVMTestnetRPC},
			MaxRetries:     constants.LedgerMaxRetries,
			RetryDelay:     constants.LedgerRetryDelay,
			RequestTimeout: constants.LedgerRequestTimeout,
		},
		Compliance: ComplianceConfig{
			SettleDelay:   constants.SwitchSettleDelay,
			SwitchTimeout: constants.SwitchTimeout,
		},
		Balance: BalanceConfig{
			PollInterval: constants.BalancePollInterval,
		},
		Purchase: PurchaseConfig{
			BaseURL:               constants.MoonPayStagingURL,
			CurrencyCode:          constants.MoonPayCurrencyCode,
			ColorCode:             constants.MoonPayColorCode,
			ShowWalletAddressForm: true,
			PollInterval:          constants.PopupPollInterval,
		},
		Wallet: WalletConfig{
			PollInterval: constants.WalletPollInterval,
		},
	}
}

// FromEnv returns Default overridden by the WALLETSESSION_* environment variables
func FromEnv() (Config, error) {
	return fromLookup(os.LookupEnv)
}

func fromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	// a configured token defaults to USDC precision unless overridden below
	if v, ok := lookup(constants.EnvTokenAddress); ok && strings.TrimSpace(v) != "" {
		cfg.Token = TokenConfig{
			Address:  strings.TrimSpace(v),
			Decimals: constants.USDCDecimals,
			Symbol:   constants.USDCSymbol,
		}
	}
	if v, ok := lookup(constants.EnvTokenDecimals); ok && strings.TrimSpace(v) != "" {
		d, err := strconv.ParseInt(strings.TrimSpace(v), 10, 32)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", constants.EnvTokenDecimals, err)
		}
		cfg.Token.Decimals = int32(d)
	}
	if v, ok := lookup(constants.EnvTokenSymbol); ok && strings.TrimSpace(v) != "" {
		cfg.Token.Symbol = strings.TrimSpace(v)
	}
	if v, ok := lookup(constants.EnvMoonPayAPIKey); ok {
		cfg.Purchase.APIKey = strings.TrimSpace(v)
	}
	if v, ok := lookup(constants.EnvRPCURL); ok && strings.TrimSpace(v) != "" {
		cfg.Ledger.Endpoints = splitList(v)
	}
	if v, ok := lookup(constants.EnvRedirectURL); ok {
		cfg.Purchase.RedirectURL = strings.TrimSpace(v)
	}
	if v, ok := lookup(constants.EnvWalletEndpoint); ok {
		cfg.Wallet.RPCEndpoint = strings.TrimSpace(v)
	}
	if v, ok := lookup(constants.EnvTargetChainID); ok && strings.TrimSpace(v) != "" {
		id, err := strconv.ParseInt(strings.TrimSpace(v), 0, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", constants.EnvTargetChainID, err)
		}
		cfg.TargetChainID = id
	}

	return cfg, cfg.Validate()
}

// Validate checks struct tags, the retry limit and the HTTPS requirement for
// provider URLs
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Ledger.MaxRetries > constants.MaxLedgerRetries {
		return fmt.Errorf("invalid config: ledger retries %d exceed %d", c.Ledger.MaxRetries, constants.MaxLedgerRetries)
	}
	if err := utils.ValidateProviderURL(c.Purchase.BaseURL); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
