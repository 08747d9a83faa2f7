package application

import (
	"errors"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var (
	ErrMissingInput       = errors.New("missing input")
	ErrInvalidAddress     = errors.New("invalid address")
	ErrInvalidHash        = errors.New("invalid transaction hash")
	ErrInvalidBlockNumber = errors.New("invalid block number")
)

// ValidateAddress returns the checksummed form of a 20-byte hex address.
func ValidateAddress(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", ErrMissingInput
	}
	if !strings.HasPrefix(value, "0x") && !strings.HasPrefix(value, "0X") {
		return "", ErrInvalidAddress
	}
	if !common.IsHexAddress(value) {
		return "", ErrInvalidAddress
	}
	return common.HexToAddress(value).Hex(), nil
}

// ValidateTxHash returns the lower-cased form of a 32-byte hex hash.
func ValidateTxHash(raw string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		return "", ErrMissingInput
	}
	if len(value) != 2+2*common.HashLength {
		return "", ErrInvalidHash
	}
	if _, err := hexutil.Decode(value); err != nil {
		return "", ErrInvalidHash
	}
	return value, nil
}

// ParseBlockNumber accepts decimal, 0x-prefixed hex, or "latest"/empty,
// which yields ok=false.
func ParseBlockNumber(raw string) (number uint64, ok bool, err error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" || value == "latest" {
		return 0, false, nil
	}
	if digits, ok := strings.CutPrefix(value, "0x"); ok {
		if digits == "" {
			return 0, false, ErrInvalidBlockNumber
		}
		number, err = strconv.ParseUint(digits, 16, 64)
	} else {
		number, err = strconv.ParseUint(value, 10, 64)
	}
	if err != nil {
		return 0, false, ErrInvalidBlockNumber
	}
	return number, true, nil
}
