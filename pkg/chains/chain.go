package chains

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/sigweihq/walletsession/pkg/constants"
)

// NativeCurrency describes the gas token of a chain
type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// Explorer is a block explorer for a chain
type Explorer struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Chain holds the metadata needed to label a chain and to ask a wallet to add it
type Chain struct {
	ID             int64          `json:"id"`
	Name           string         `json:"name"`
	NativeCurrency NativeCurrency `json:"nativeCurrency"`
	RPCURLs        []string       `json:"rpcUrls"`
	Explorer       *Explorer      `json:"blockExplorer,omitempty"`
	Testnet        bool           `json:"testnet"`
}

// HexID returns the chain id as a 0x-prefixed hex quantity, the form wallets expect
func (c Chain) HexID() string {
	return hexutil.EncodeUint64(uint64(c.ID))
}

func (c Chain) String() string {
	return fmt.Sprintf("%s (%d)", c.Name, c.ID)
}

// AddChainParams is the wallet_addEthereumChain parameter object (EIP-3085)
type AddChainParams struct {
	ChainID           string         `json:"chainId"`
	ChainName         string         `json:"chainName"`
	NativeCurrency    NativeCurrency `json:"nativeCurrency"`
	RPCURLs           []string       `json:"rpcUrls"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls,omitempty"`
}

// AddChainParams builds the request a wallet needs to learn about this chain
func (c Chain) AddChainParams() AddChainParams {
	params := AddChainParams{
		ChainID:        c.HexID(),
		ChainName:      c.Name,
		NativeCurrency: c.NativeCurrency,
		RPCURLs:        c.RPCURLs,
	}
	if c.Explorer != nil && c.Explorer.URL != "" {
		params.BlockExplorerURLs = []string{c.Explorer.URL}
	}
	return params
}

var (
	FlowEVMTestnet = Chain{
		ID:   constants.ChainIDFlowEVMTestnet,
		Name: "Flow EVM Testnet",
		NativeCurrency: NativeCurrency{
			Name:     "Flow",
			Symbol:   "FLOW",
			Decimals: 18,
		},
		RPCURLs:  []string{constants.FlowEVMTestnetRPC},
		Explorer: &Explorer{Name: "FlowScan", URL: constants.FlowEVMTestnetExplorer},
		Testnet:  true,
	}

	FlowEVM = Chain{
		ID:   constants.ChainIDFlowEVM,
		Name: "Flow EVM",
		NativeCurrency: NativeCurrency{
			Name:     "Flow",
			Symbol:   "FLOW",
			Decimals: 18,
		},
		RPCURLs:  []string{constants.FlowEVMRPC},
		Explorer: &Explorer{Name: "FlowScan", URL: constants.FlowEVMExplorer},
	}

	Ethereum = Chain{
		ID:             constants.ChainIDEthereum,
		Name:           "Ethereum",
		NativeCurrency: NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18},
	}

	Sepolia = Chain{
		ID:             constants.ChainIDSepolia,
		Name:           "Sepolia",
		NativeCurrency: NativeCurrency{Name: "Sepolia Ether", Symbol: "ETH", Decimals: 18},
		Testnet:        true,
	}

	Base = Chain{
		ID:             constants.ChainIDBase,
		Name:           "Base",
		NativeCurrency: NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18},
	}

	BaseSepolia = Chain{
		ID:             constants.ChainIDBaseSepolia,
		Name:           "Base Sepolia",
		NativeCurrency: NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18},
		Testnet:        true,
	}
)

// KnownChains is the metadata preloaded into the global registry. Only the
// configured target is ever accepted; the rest exist to name the wrong chain.
var KnownChains = []Chain{FlowEVMTestnet, FlowEVM, Ethereum, Sepolia, Base, BaseSepolia}
