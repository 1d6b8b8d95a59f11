package wallet

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigweihq/walletsession/pkg/types"
)

var testAddress = common.HexToAddress("0x1234567890123456789012345678901234567890")

type recorder struct {
	mu     sync.Mutex
	states []types.ConnectionState
}

func (r *recorder) listen(state types.ConnectionState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func (r *recorder) seen() []types.ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.ConnectionState(nil), r.states...)
}

func startObserver(t *testing.T, provider Provider) (*Observer, *recorder) {
	t.Helper()
	obs := NewObserver(provider, nil)
	rec := &recorder{}
	obs.AddListener(rec.listen)
	require.NoError(t, obs.Start())
	t.Cleanup(obs.Stop)
	return obs, rec
}

func TestObserverPublishesInitialState(t *testing.T) {
	provider := NewMemoryProvider()
	provider.Connect(testAddress, 1)

	obs, rec := startObserver(t, provider)

	expected := types.ConnectionState{Status: types.Connected, Address: testAddress, ChainID: 1}
	assert.Equal(t, expected, obs.State())
	assert.Equal(t, []types.ConnectionState{expected}, rec.seen())
}

func TestObserverInitialDisconnectedIsNotRepublished(t *testing.T) {
	_, rec := startObserver(t, NewMemoryProvider())
	assert.Empty(t, rec.seen())
}

func TestObserverFollowsProvider(t *testing.T) {
	provider := NewMemoryProvider()
	obs, rec := startObserver(t, provider)

	provider.Connect(testAddress, 1)
	provider.SetChain(545)
	provider.SetChain(545) // no change, no event
	provider.Drop()

	require.Eventually(t, func() bool { return len(rec.seen()) == 3 }, time.Second, 5*time.Millisecond)

	seen := rec.seen()
	assert.Equal(t, int64(1), seen[0].ChainID)
	assert.Equal(t, int64(545), seen[1].ChainID)
	assert.Equal(t, types.DisconnectedState(), seen[2])
	assert.Equal(t, types.DisconnectedState(), obs.State())
}

func TestObserverFeed(t *testing.T) {
	provider := NewMemoryProvider()
	obs, _ := startObserver(t, provider)

	ch := make(chan types.ConnectionState, 4)
	sub := obs.Subscribe(ch)
	defer sub.Unsubscribe()

	provider.Connect(testAddress, 545)

	select {
	case state := <-ch:
		assert.True(t, state.OnChain(545))
	case <-time.After(time.Second):
		t.Fatal("no connection event")
	}
}

func TestObserverDisconnect(t *testing.T) {
	t.Run("resets state", func(t *testing.T) {
		provider := NewMemoryProvider()
		provider.Connect(testAddress, 545)
		obs, rec := startObserver(t, provider)

		require.NoError(t, obs.Disconnect(context.Background()))

		assert.Equal(t, types.DisconnectedState(), obs.State())
		assert.Equal(t, types.DisconnectedState(), provider.State())
		seen := rec.seen()
		assert.Equal(t, types.DisconnectedState(), seen[len(seen)-1])
	})

	t.Run("resets state even when the provider fails", func(t *testing.T) {
		provider := NewMemoryProvider()
		provider.Connect(testAddress, 545)
		provider.FailDisconnect(errors.New("wallet busy"))
		obs, _ := startObserver(t, provider)

		err := obs.Disconnect(context.Background())
		assert.EqualError(t, err, "wallet busy")
		assert.Equal(t, types.DisconnectedState(), obs.State())
	})
}

func TestObserverStartTwice(t *testing.T) {
	obs, _ := startObserver(t, NewMemoryProvider())
	assert.Error(t, obs.Start())
}

func TestObserverStopIsIdempotent(t *testing.T) {
	provider := NewMemoryProvider()
	obs, rec := startObserver(t, provider)

	obs.Stop()
	obs.Stop()

	provider.Connect(testAddress, 545)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, rec.seen())
}

func TestMemoryProviderSwitchChain(t *testing.T) {
	t.Run("success moves the wallet", func(t *testing.T) {
		provider := NewMemoryProvider()
		provider.Connect(testAddress, 1)

		require.NoError(t, provider.SwitchChain(context.Background(), 545))
		assert.Equal(t, int64(545), provider.State().ChainID)
	})

	t.Run("rejection", func(t *testing.T) {
		provider := NewMemoryProvider()
		provider.Connect(testAddress, 1)
		provider.OnSwitch(func(ctx context.Context, chainID int64) error {
			return errors.New("user rejected")
		})

		err := provider.SwitchChain(context.Background(), 545)
		require.Error(t, err)
		assert.ErrorIs(t, err, types.ErrNetworkSwitchFailed)
		assert.Equal(t, int64(1), provider.State().ChainID)
	})

	t.Run("not connected", func(t *testing.T) {
		provider := NewMemoryProvider()
		err := provider.SwitchChain(context.Background(), 545)
		assert.ErrorIs(t, err, types.ErrNetworkSwitchFailed)
		assert.ErrorIs(t, err, errNotConnected)
	})

	t.Run("cancelled", func(t *testing.T) {
		provider := NewMemoryProvider()
		provider.Connect(testAddress, 1)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := provider.SwitchChain(ctx, 545)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, int64(1), provider.State().ChainID)
	})
}
