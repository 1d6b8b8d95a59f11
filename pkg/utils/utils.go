package utils

import (
	"fmt"
	"net"
	"net/http"
	"net/url"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/sigweihq/walletsession/pkg/constants"
)

var compactUnits = []struct {
	threshold decimal.Decimal
	suffix    string
}{
	{decimal.New(1, 12), "T"},
	{decimal.New(1, 9), "B"},
	{decimal.New(1, 6), "M"},
	{decimal.New(1, 3), "K"},
}

func CreateHTTPClientWithTimeouts() *http.Client {
	return &http.Client{
		Timeout: constants.HTTPClientTimeout,
		Transport: &http.Transport{
			TLSHandshakeTimeout:   constants.TLSHandshakeTimeout,
			ResponseHeaderTimeout: constants.ResponseHeaderTimeout,
			ExpectContinueTimeout: constants.ExpectContinueTimeout,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse // Disable redirects to prevent redirect-based SSRF
		},
	}
}

// ValidateProviderURL requires HTTPS for purchase provider and RPC URLs.
// Plain HTTP is accepted for loopback hosts only.
func ValidateProviderURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid provider URL %q: %w", raw, err)
	}
	switch {
	case u.Scheme == "https" && u.Host != "":
		return nil
	case u.Scheme == "http" && isLoopback(u.Hostname()):
		return nil
	}
	return fmt.Errorf("provider URL must use HTTPS: %s", raw)
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// ShortAddress renders an account as 0x1234...abcd
func ShortAddress(addr common.Address) string {
	hex := addr.Hex()
	return fmt.Sprintf("%s...%s", hex[:6], hex[len(hex)-4:])
}

// FormatUnits scales a raw integer amount by 10^-decimals
func FormatUnits(raw decimal.Decimal, decimals int32) decimal.Decimal {
	return raw.Shift(-decimals)
}

// FormatCompact renders an amount with two decimals and a K/M/B/T suffix
func FormatCompact(amount decimal.Decimal) string {
	for _, u := range compactUnits {
		if amount.GreaterThanOrEqual(u.threshold) {
			return amount.Div(u.threshold).StringFixed(2) + u.suffix
		}
	}
	return amount.StringFixed(2)
}
