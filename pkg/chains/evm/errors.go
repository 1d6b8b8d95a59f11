package evm

import (
	"errors"
	"fmt"
)

var errNoContractCode = errors.New("no contract code at token address")

// ChainMismatchError is returned when an endpoint serves a different chain than configured
type ChainMismatchError struct {
	Expected int64
	Actual   int64
}

func (e *ChainMismatchError) Error() string {
	return fmt.Sprintf("endpoint serves chain %d, expected %d", e.Actual, e.Expected)
}

// RPCError represents an RPC-related error
type RPCError struct {
	Endpoint string
	Err      error
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error on %s: %v", e.Endpoint, e.Err)
}

func (e *RPCError) Unwrap() error {
	return e.Err
}
