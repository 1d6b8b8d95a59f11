package constants

import "time"

const (
	LedgerRequestTimeout  = 10 * time.Second // timeout for a single balance read
	LedgerRetryDelay      = 1 * time.Second  // fixed delay between balance read attempts
	LedgerMaxRetries      = 3                // retries after the first balance read attempt
	MaxLedgerRetries      = 10               // maximum retries accepted from configuration
	HealthCheckTimeout    = 3 * time.Second  // timeout for endpoint health checks
	SwitchSettleDelay     = 2 * time.Second  // wait for the wallet to settle before auto-switching
	SwitchTimeout         = 60 * time.Second // upper bound for a wallet to answer a switch request
	PopupPollInterval     = 1 * time.Second  // interval for checking whether the purchase popup closed
	BalancePollInterval   = 15 * time.Second // re-read interval while a balance is shown
	WalletPollInterval    = 2 * time.Second  // interval for polling a JSON-RPC wallet for changes
	TLSHandshakeTimeout   = 10 * time.Second // timeout for TLS handshake
	ResponseHeaderTimeout = 20 * time.Second // timeout for response header
	ExpectContinueTimeout = 1 * time.Second  // timeout for expect continue
	HTTPClientTimeout     = 30 * time.Second // overall timeout for RPC HTTP requests
)

const (
	USDCDecimals = 6
	USDCSymbol   = "USDC"
)

// Chain IDs
const (
	ChainIDEthereum       int64 = 1
	ChainIDSepolia        int64 = 11155111
	ChainIDBase           int64 = 8453
	ChainIDBaseSepolia    int64 = 84532
	ChainIDFlowEVM        int64 = 747
	ChainIDFlowEVMTestnet int64 = 545
)

const (
	FlowEVMTestnetRPC      = "https://testnet.evm.nodes.onflow.org"
	FlowEVMTestnetExplorer = "https://evm-testnet.flowscan.io"
	FlowEVMRPC             = "https://mainnet.evm.nodes.onflow.org"
	FlowEVMExplorer        = "https://evm.flowscan.io"
)

// NativeTokenAddress selects the chain's native currency instead of an ERC-20 contract.
const NativeTokenAddress = "0x0000000000000000000000000000000000000000"

// Purchase provider defaults
const (
	MoonPayStagingURL   = "https://buy-staging.moonpay.com"
	MoonPayCurrencyCode = "usdc"
	MoonPayColorCode    = "#3b82f6"
)

// EIP-1193 and JSON-RPC error codes returned by wallet providers
const (
	ProviderErrUserRejected      = 4001
	ProviderErrUnrecognizedChain = 4902
	ProviderErrMethodNotFound    = -32601
)

// Environment variables read by config.FromEnv
const (
	EnvTokenAddress   = "WALLETSESSION_TOKEN_ADDRESS"
	EnvTokenDecimals  = "WALLETSESSION_TOKEN_DECIMALS"
	EnvTokenSymbol    = "WALLETSESSION_TOKEN_SYMBOL"
	EnvMoonPayAPIKey  = "WALLETSESSION_MOONPAY_API_KEY"
	EnvRPCURL         = "WALLETSESSION_RPC_URL"
	EnvRedirectURL    = "WALLETSESSION_REDIRECT_URL"
	EnvTargetChainID  = "WALLETSESSION_CHAIN_ID"
	EnvWalletEndpoint = "WALLETSESSION_WALLET_RPC"
)
