package userop

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ValidatorMode is the Kernel v2 signature prefix selecting the validator.
type ValidatorMode [4]byte

var (
	// ModeSudo validates with the account's default ECDSA validator.
	ModeSudo = ValidatorMode{0, 0, 0, 0}
	// ModePlugin validates with the validator registered for the call selector.
	ModePlugin = ValidatorMode{0, 0, 0, 1}
)

const (
	modeLen       = 4
	validAfterLen = 6
	// MaxValidAfter is the largest timestamp a 6 byte field holds.
	MaxValidAfter = uint64(1)<<(8*validAfterLen) - 1
)

// ValidatorSignature is the signature wire contract of the subscription
// validator: mode(4) || validAfter(6, big endian) || ecdsa(65).
//
// The validator only sees signature bytes, so the earliest execution time
// travels inside them. The ECDSA part signs keccak256(userOpHash || validAfter)
// so the time cannot be altered. Changing this layout breaks compatibility
// with the deployed validator.
type ValidatorSignature struct {
	Mode       ValidatorMode
	ValidAfter uint64
	Signature  []byte
}

// Encode returns the bytes placed in the operation's signature field.
func (s *ValidatorSignature) Encode() ([]byte, error) {
	if s.ValidAfter > MaxValidAfter {
		return nil, fmt.Errorf("validAfter %d does not fit in %d bytes", s.ValidAfter, validAfterLen)
	}
	out := make([]byte, 0, modeLen+validAfterLen+len(s.Signature))
	out = append(out, s.Mode[:]...)
	out = append(out, encodeValidAfter(s.ValidAfter)...)
	return append(out, s.Signature...), nil
}

// DecodeValidatorSignature parses a signature field produced by Encode.
func DecodeValidatorSignature(raw []byte) (*ValidatorSignature, error) {
	if len(raw) < modeLen+validAfterLen {
		return nil, fmt.Errorf("signature too short: %d bytes", len(raw))
	}
	var mode ValidatorMode
	copy(mode[:], raw[:modeLen])
	return &ValidatorSignature{
		Mode:       mode,
		ValidAfter: decodeValidAfter(raw[modeLen : modeLen+validAfterLen]),
		Signature:  common.CopyBytes(raw[modeLen+validAfterLen:]),
	}, nil
}

// ValidAfterDigest is the message the owner signs for a time-locked operation.
func ValidAfterDigest(opHash common.Hash, validAfter uint64) []byte {
	return crypto.Keccak256(opHash.Bytes(), encodeValidAfter(validAfter))
}

func encodeValidAfter(validAfter uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], validAfter)
	return buf[8-validAfterLen:]
}

func decodeValidAfter(b []byte) uint64 {
	var buf [8]byte
	copy(buf[8-validAfterLen:], b)
	return binary.BigEndian.Uint64(buf[:])
}
