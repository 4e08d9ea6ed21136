package chain

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Call is one signable token-transfer operation: the token contract,
// the ABI-encoded calldata, and the native value (always zero for
// token transfers).
type Call struct {
	To    string `json:"to"`
	Data  string `json:"data"`
	Value string `json:"value"`
}

var ErrInvalidAddress = errors.New("invalid address")

// transferWithMemo(address,uint256,bytes32)
var transferSelector = selector("transferWithMemo(address,uint256,bytes32)")

func selector(signature string) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(signature))
	return h.Sum(nil)[:4]
}

// TransferCall builds the calldata for a memo-carrying token transfer:
// 4-byte selector, then recipient, amount and memo each padded to a
// 32-byte word.
func TransferCall(tokenAddress, recipient string, amount int64, memo Memo) (Call, error) {
	if !ValidAddress(tokenAddress) {
		return Call{}, fmt.Errorf("token %q: %w", tokenAddress, ErrInvalidAddress)
	}
	to, err := parseAddress(recipient)
	if err != nil {
		return Call{}, fmt.Errorf("recipient %q: %w", recipient, ErrInvalidAddress)
	}

	data := make([]byte, 0, 4+3*32)
	data = append(data, transferSelector...)

	var word [32]byte
	copy(word[12:], to)
	data = append(data, word[:]...)

	word = [32]byte{}
	big.NewInt(amount).FillBytes(word[:])
	data = append(data, word[:]...)

	data = append(data, memo[:]...)

	return Call{
		To:    strings.ToLower(tokenAddress),
		Data:  "0x" + hex.EncodeToString(data),
		Value: "0",
	}, nil
}

func ValidAddress(address string) bool {
	_, err := parseAddress(address)
	return err == nil
}

func parseAddress(address string) ([]byte, error) {
	if !strings.HasPrefix(address, "0x") && !strings.HasPrefix(address, "0X") {
		return nil, ErrInvalidAddress
	}
	raw, err := hex.DecodeString(address[2:])
	if err != nil {
		return nil, ErrInvalidAddress
	}
	if len(raw) != 20 {
		return nil, ErrInvalidAddress
	}
	return raw, nil
}
