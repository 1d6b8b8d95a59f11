package wallet

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/sigweihq/walletsession/pkg/constants"
	"github.com/sigweihq/walletsession/pkg/types"
)

var errNotConnected = errors.New("wallet not connected")

// SwitchError describes why the wallet did not move to the requested chain.
// It matches types.ErrNetworkSwitchFailed.
type SwitchError struct {
	ChainID int64
	Code    int // provider error code, 0 if none was reported
	Err     error
}

func (e *SwitchError) Error() string {
	if e.Code == constants.ProviderErrUserRejected {
		return fmt.Sprintf("switch to chain %d rejected by user", e.ChainID)
	}
	return fmt.Sprintf("switch to chain %d failed: %v", e.ChainID, e.Err)
}

func (e *SwitchError) Unwrap() error {
	return e.Err
}

func (e *SwitchError) Is(target error) bool {
	return target == types.ErrNetworkSwitchFailed
}

// UserRejected reports whether the user declined the request in the wallet
func (e *SwitchError) UserRejected() bool {
	return e.Code == constants.ProviderErrUserRejected
}

func newSwitchError(chainID int64, err error) *SwitchError {
	return &SwitchError{ChainID: chainID, Code: errorCode(err), Err: err}
}

// errorCode extracts the EIP-1193 / JSON-RPC code from err
func errorCode(err error) int {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.ErrorCode()
	}
	return 0
}
