package wallet

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigweihq/walletsession/pkg/chains"
	"github.com/sigweihq/walletsession/pkg/constants"
	"github.com/sigweihq/walletsession/pkg/types"
)

type providerError struct {
	code int
	msg  string
}

func (e providerError) Error() string  { return e.msg }
func (e providerError) ErrorCode() int { return e.code }

// fakeWallet serves the eth_* and wallet_* methods of an injected wallet
type fakeWallet struct {
	mu            sync.Mutex
	accounts      []common.Address
	chainID       uint64
	known         map[uint64]bool
	rejectSwitch  bool
	noRevoke      bool
	added         []chains.AddChainParams
	switchCalls   int
	revokeCalls   int
	requestCalled bool
}

type fakeEth struct{ w *fakeWallet }

func (e fakeEth) Accounts() []common.Address {
	e.w.mu.Lock()
	defer e.w.mu.Unlock()
	return e.w.accounts
}

func (e fakeEth) RequestAccounts() []common.Address {
	e.w.mu.Lock()
	defer e.w.mu.Unlock()
	e.w.requestCalled = true
	return e.w.accounts
}

func (e fakeEth) ChainId() hexutil.Uint64 {
	e.w.mu.Lock()
	defer e.w.mu.Unlock()
	return hexutil.Uint64(e.w.chainID)
}

type fakeWalletNS struct{ w *fakeWallet }

func (n fakeWalletNS) SwitchEthereumChain(params switchChainParams) error {
	n.w.mu.Lock()
	defer n.w.mu.Unlock()
	n.w.switchCalls++

	if n.w.rejectSwitch {
		return providerError{code: constants.ProviderErrUserRejected, msg: "User rejected the request."}
	}
	id, err := hexutil.DecodeUint64(params.ChainID)
	if err != nil {
		return err
	}
	if !n.w.known[id] {
		return providerError{code: constants.ProviderErrUnrecognizedChain, msg: "Unrecognized chain ID"}
	}
	n.w.chainID = id
	return nil
}

func (n fakeWalletNS) AddEthereumChain(params chains.AddChainParams) error {
	n.w.mu.Lock()
	defer n.w.mu.Unlock()
	n.w.added = append(n.w.added, params)
	id, err := hexutil.DecodeUint64(params.ChainID)
	if err != nil {
		return err
	}
	n.w.known[id] = true
	return nil
}

func (n fakeWalletNS) RevokePermissions(params map[string]struct{}) error {
	n.w.mu.Lock()
	defer n.w.mu.Unlock()
	if n.w.noRevoke {
		return providerError{code: constants.ProviderErrMethodNotFound, msg: "method not found"}
	}
	n.w.revokeCalls++
	n.w.accounts = nil
	return nil
}

func (w *fakeWallet) setChain(id uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.chainID = id
}

func newFakeWallet(t *testing.T, w *fakeWallet) *rpc.Client {
	t.Helper()
	if w.known == nil {
		w.known = map[uint64]bool{w.chainID: true}
	}
	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("eth", fakeEth{w}))
	require.NoError(t, server.RegisterName("wallet", fakeWalletNS{w}))
	t.Cleanup(server.Stop)
	return rpc.DialInProc(server)
}

func TestRPCProviderStart(t *testing.T) {
	w := &fakeWallet{accounts: []common.Address{testAddress}, chainID: 1}
	provider := NewRPCProvider(newFakeWallet(t, w), nil, WithPollInterval(0))
	defer provider.Close()

	require.NoError(t, provider.Start(context.Background()))
	assert.Equal(t, types.ConnectionState{Status: types.Connected, Address: testAddress, ChainID: 1}, provider.State())
}

func TestRPCProviderNoAccounts(t *testing.T) {
	w := &fakeWallet{chainID: 545}
	provider := NewRPCProvider(newFakeWallet(t, w), nil, WithPollInterval(0))
	defer provider.Close()

	require.NoError(t, provider.Start(context.Background()))
	assert.Equal(t, types.DisconnectedState(), provider.State())
}

func TestRPCProviderPolling(t *testing.T) {
	w := &fakeWallet{accounts: []common.Address{testAddress}, chainID: 1}
	mock := clock.NewMock()
	provider := NewRPCProvider(newFakeWallet(t, w), nil,
		WithPollInterval(2*time.Second),
		WithProviderClock(mock))
	defer provider.Close()

	ch := make(chan types.ConnectionState, 4)
	sub := provider.SubscribeConnection(ch)
	defer sub.Unsubscribe()

	require.NoError(t, provider.Start(context.Background()))
	assert.Equal(t, int64(1), (<-ch).ChainID)

	w.setChain(545)
	mock.Add(time.Second)
	assert.Equal(t, int64(1), provider.State().ChainID, "not polled yet")

	mock.Add(time.Second)
	require.Eventually(t, func() bool { return provider.State().ChainID == 545 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(545), (<-ch).ChainID)
}

func TestRPCProviderSwitchChain(t *testing.T) {
	t.Run("known chain", func(t *testing.T) {
		w := &fakeWallet{
			accounts: []common.Address{testAddress},
			chainID:  1,
			known:    map[uint64]bool{1: true, 545: true},
		}
		provider := NewRPCProvider(newFakeWallet(t, w), chains.NewRegistry(chains.KnownChains...), WithPollInterval(0))
		defer provider.Close()
		require.NoError(t, provider.Start(context.Background()))

		require.NoError(t, provider.SwitchChain(context.Background(), 545))
		assert.Equal(t, int64(545), provider.State().ChainID)
		assert.Empty(t, w.added)
	})

	t.Run("unknown chain is added then switched", func(t *testing.T) {
		w := &fakeWallet{accounts: []common.Address{testAddress}, chainID: 1}
		provider := NewRPCProvider(newFakeWallet(t, w), chains.NewRegistry(chains.KnownChains...), WithPollInterval(0))
		defer provider.Close()
		require.NoError(t, provider.Start(context.Background()))

		require.NoError(t, provider.SwitchChain(context.Background(), 545))
		assert.Equal(t, int64(545), provider.State().ChainID)
		require.Len(t, w.added, 1)
		assert.Equal(t, "0x221", w.added[0].ChainID)
		assert.Equal(t, "Flow EVM Testnet", w.added[0].ChainName)
		assert.Equal(t, 2, w.switchCalls)
	})

	t.Run("unknown chain without registry", func(t *testing.T) {
		w := &fakeWallet{accounts: []common.Address{testAddress}, chainID: 1}
		provider := NewRPCProvider(newFakeWallet(t, w), nil, WithPollInterval(0))
		defer provider.Close()

		err := provider.SwitchChain(context.Background(), 545)
		require.Error(t, err)
		assert.ErrorIs(t, err, types.ErrNetworkSwitchFailed)

		var switchErr *SwitchError
		require.ErrorAs(t, err, &switchErr)
		assert.Equal(t, constants.ProviderErrUnrecognizedChain, switchErr.Code)
	})

	t.Run("user rejection", func(t *testing.T) {
		w := &fakeWallet{accounts: []common.Address{testAddress}, chainID: 1, rejectSwitch: true}
		provider := NewRPCProvider(newFakeWallet(t, w), nil, WithPollInterval(0))
		defer provider.Close()

		err := provider.SwitchChain(context.Background(), 545)
		require.Error(t, err)
		assert.Equal(t, types.ErrKindNetworkSwitchFailed, types.KindOf(err))

		var switchErr *SwitchError
		require.ErrorAs(t, err, &switchErr)
		assert.True(t, switchErr.UserRejected())
		assert.Equal(t, "switch to chain 545 rejected by user", err.Error())
	})
}

func TestRPCProviderDisconnect(t *testing.T) {
	t.Run("revokes permissions", func(t *testing.T) {
		w := &fakeWallet{accounts: []common.Address{testAddress}, chainID: 545}
		provider := NewRPCProvider(newFakeWallet(t, w), nil, WithPollInterval(0))
		defer provider.Close()
		require.NoError(t, provider.Start(context.Background()))

		require.NoError(t, provider.Disconnect(context.Background()))
		assert.Equal(t, types.DisconnectedState(), provider.State())
		assert.Equal(t, 1, w.revokeCalls)
	})

	t.Run("local disconnect holds until connect", func(t *testing.T) {
		w := &fakeWallet{accounts: []common.Address{testAddress}, chainID: 545, noRevoke: true}
		provider := NewRPCProvider(newFakeWallet(t, w), nil, WithPollInterval(0))
		defer provider.Close()
		require.NoError(t, provider.Start(context.Background()))

		require.NoError(t, provider.Disconnect(context.Background()))
		require.NoError(t, provider.Poll(context.Background()))
		assert.Equal(t, types.DisconnectedState(), provider.State())

		require.NoError(t, provider.Connect(context.Background()))
		assert.True(t, w.requestCalled)
		assert.True(t, provider.State().OnChain(545))
	})
}

func TestRPCProviderPollFailureIsDisconnect(t *testing.T) {
	w := &fakeWallet{accounts: []common.Address{testAddress}, chainID: 545}
	client := newFakeWallet(t, w)
	provider := NewRPCProvider(client, nil, WithPollInterval(0))
	require.NoError(t, provider.Start(context.Background()))
	require.True(t, provider.State().IsConnected())

	client.Close()
	assert.Error(t, provider.Poll(context.Background()))
	assert.Equal(t, types.DisconnectedState(), provider.State())
}
