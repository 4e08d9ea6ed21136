package chain

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// MemoSize is the fixed on-chain memo width. A bounty memo packs
// issue number (8 bytes, big-endian), PR number (8 bytes, big-endian)
// and the contributor login (16 bytes, zero-padded). A text memo is
// the raw message zero-padded to the full width.
const (
	MemoSize        = 32
	memoUsernameLen = 16
)

var (
	ErrIssueNumberRange = errors.New("issue number out of range")
	ErrPRNumberRange    = errors.New("pr number out of range")
	ErrUsernameTooLong  = errors.New("username exceeds 16 bytes")
	ErrMemoTextTooLong  = errors.New("memo text exceeds 32 bytes")
)

type Memo [MemoSize]byte

// EncodeBountyMemo packs settlement metadata for off-chain
// reconciliation. Numbers must fit in a signed 64-bit integer.
func EncodeBountyMemo(issueNumber, prNumber uint64, username string) (Memo, error) {
	var memo Memo
	if issueNumber >= 1<<63 {
		return memo, ErrIssueNumberRange
	}
	if prNumber >= 1<<63 {
		return memo, ErrPRNumberRange
	}
	if len(username) > memoUsernameLen {
		return memo, ErrUsernameTooLong
	}

	binary.BigEndian.PutUint64(memo[0:8], issueNumber)
	binary.BigEndian.PutUint64(memo[8:16], prNumber)
	copy(memo[16:], username)
	return memo, nil
}

// DecodeBountyMemo is the inverse of EncodeBountyMemo. The username
// comes back with zero padding trimmed.
func DecodeBountyMemo(memo Memo) (issueNumber, prNumber uint64, username string) {
	issueNumber = binary.BigEndian.Uint64(memo[0:8])
	prNumber = binary.BigEndian.Uint64(memo[8:16])
	username = string(bytes.TrimRight(memo[16:], "\x00"))
	return issueNumber, prNumber, username
}

// EncodeTextMemo packs a free-text message for direct transfers.
func EncodeTextMemo(text string) (Memo, error) {
	var memo Memo
	if len(text) > MemoSize {
		return memo, ErrMemoTextTooLong
	}
	copy(memo[:], text)
	return memo, nil
}

func DecodeTextMemo(memo Memo) string {
	return string(bytes.TrimRight(memo[:], "\x00"))
}
