package chains

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryIdempotent(t *testing.T) {
	registry := NewRegistry()

	first := Chain{ID: 545, Name: "first"}
	second := Chain{ID: 545, Name: "second"}

	// First registration should succeed
	err := registry.Register(first)
	assert.NoError(t, err, "First registration should succeed")

	// Second registration with same id should also succeed (idempotent)
	err = registry.Register(second)
	assert.NoError(t, err, "Second registration should succeed (idempotent)")

	retrieved, err := registry.Get(545)
	assert.NoError(t, err)
	assert.Equal(t, "second", retrieved.Name, "Second chain should have replaced the first")
}

func TestRegistryRejectsInvalidID(t *testing.T) {
	registry := NewRegistry()

	assert.Error(t, registry.Register(Chain{ID: 0, Name: "zero"}))
	assert.Error(t, registry.Register(Chain{ID: -1, Name: "negative"}))
	assert.Empty(t, registry.ChainIDs())
}

func TestRegistryConcurrentRegistration(t *testing.T) {
	registry := NewRegistry()

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func(id int) {
			err := registry.Register(Chain{ID: 545, Name: "Flow EVM Testnet"})
			assert.NoError(t, err, "Concurrent registration should not fail")
			done <- true
		}(i)
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	assert.True(t, registry.IsKnown(545))
}

func TestRegistryNames(t *testing.T) {
	registry := NewRegistry(KnownChains...)

	assert.Equal(t, "Flow EVM Testnet", registry.Name(545))
	assert.Equal(t, "Ethereum", registry.Name(1))
	assert.Equal(t, "Chain 137", registry.Name(137))

	ids := registry.ChainIDs()
	assert.Len(t, ids, len(KnownChains))
	assert.IsIncreasing(t, ids)
}

func TestRegistryUnregister(t *testing.T) {
	registry := NewRegistry(FlowEVMTestnet)
	assert.True(t, registry.IsKnown(545))

	registry.Unregister(545)
	assert.False(t, registry.IsKnown(545))

	_, err := registry.Get(545)
	assert.Error(t, err)
}

func TestGlobalRegistry(t *testing.T) {
	ResetGlobalRegistry()
	t.Cleanup(ResetGlobalRegistry)

	assert.Nil(t, GetGlobalRegistry())

	registry := InitGlobalRegistry()
	require.NotNil(t, registry)
	assert.Same(t, registry, InitGlobalRegistry())
	assert.Same(t, registry, GetGlobalRegistry())
	assert.True(t, registry.IsKnown(FlowEVMTestnet.ID))
}

func TestAddChainParams(t *testing.T) {
	params := FlowEVMTestnet.AddChainParams()

	assert.Equal(t, "0x221", params.ChainID)
	assert.Equal(t, "Flow EVM Testnet", params.ChainName)
	assert.Equal(t, "FLOW", params.NativeCurrency.Symbol)
	assert.Equal(t, uint8(18), params.NativeCurrency.Decimals)
	assert.Equal(t, []string{"https://testnet.evm.nodes.onflow.org"}, params.RPCURLs)
	assert.Equal(t, []string{"https://evm-testnet.flowscan.io"}, params.BlockExplorerURLs)

	noExplorer := Ethereum.AddChainParams()
	assert.Equal(t, "0x1", noExplorer.ChainID)
	assert.Nil(t, noExplorer.BlockExplorerURLs)
}
