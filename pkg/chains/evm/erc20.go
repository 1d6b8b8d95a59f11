package evm

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const erc20ABI = `[{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"}]`

var parsedERC20 = mustParseABI(erc20ABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("failed to parse contract ABI: %v", err))
	}
	return parsed
}

func packBalanceOf(owner common.Address) ([]byte, error) {
	data, err := parsedERC20.Pack("balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("failed to pack function call: %w", err)
	}
	return data, nil
}

func unpackBalanceOf(result []byte) (*big.Int, error) {
	if len(result) == 0 {
		return nil, errNoContractCode
	}
	values, err := parsedERC20.Unpack("balanceOf", result)
	if err != nil {
		return nil, fmt.Errorf("failed to decode contract call result: %w", err)
	}
	balance, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf result type %T", values[0])
	}
	return balance, nil
}

func unpackDecimals(result []byte) (uint8, error) {
	if len(result) == 0 {
		return 0, errNoContractCode
	}
	values, err := parsedERC20.Unpack("decimals", result)
	if err != nil {
		return 0, fmt.Errorf("failed to decode contract call result: %w", err)
	}
	decimals, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unexpected decimals result type %T", values[0])
	}
	return decimals, nil
}
