package purchase

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sigweihq/walletsession/pkg/config"
	"github.com/sigweihq/walletsession/pkg/utils"
)

// URLBuilder renders the provider's buy-flow URL for a wallet address
type URLBuilder struct {
	base                  *url.URL
	apiKey                string
	currencyCode          string
	colorCode             string
	redirectURL           string
	showWalletAddressForm bool
}

// NewURLBuilder validates the provider base URL from cfg
func NewURLBuilder(cfg config.PurchaseConfig) (*URLBuilder, error) {
	if err := utils.ValidateProviderURL(cfg.BaseURL); err != nil {
		return nil, err
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid purchase URL: %w", err)
	}

	return &URLBuilder{
		base:                  base,
		apiKey:                cfg.APIKey,
		currencyCode:          cfg.CurrencyCode,
		colorCode:             cfg.ColorCode,
		redirectURL:           cfg.RedirectURL,
		showWalletAddressForm: cfg.ShowWalletAddressForm,
	}, nil
}

// Build returns the purchase URL that credits address
func (b *URLBuilder) Build(address common.Address) string {
	u := *b.base
	q := u.Query()

	setIf(q, "apiKey", b.apiKey)
	q.Set("currencyCode", b.currencyCode)
	q.Set("walletAddress", address.Hex())
	setIf(q, "colorCode", b.colorCode)
	q.Set("showWalletAddressForm", strconv.FormatBool(b.showWalletAddressForm))
	setIf(q, "redirectURL", b.redirectURL)

	u.RawQuery = q.Encode()
	return u.String()
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}
