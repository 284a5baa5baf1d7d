package userop

import (
	"fmt"
	"math/big"
)

// Nonces are 256 bit: the high 192 bits are the key, the low 64 bits the sequence.
const sequenceBits = 64

var sequenceMax = new(big.Int).SetUint64(^uint64(0))

// Nonce builds the nonce of a subscription payment: the key is the subscription
// id and the sequence is the payment's sequence index. EntryPoint nonces are
// per key and strictly increasing, so payments of one subscription execute in
// order and never collide with another subscription's payments.
func Nonce(subscriptionID uint64, sequenceIndex uint64) *big.Int {
	n := new(big.Int).SetUint64(subscriptionID)
	n.Lsh(n, sequenceBits)
	return n.Or(n, new(big.Int).SetUint64(sequenceIndex))
}

// SplitNonce returns the key and sequence parts of a nonce.
func SplitNonce(nonce *big.Int) (key *big.Int, sequence uint64, err error) {
	if nonce.Sign() < 0 || nonce.BitLen() > 256 {
		return nil, 0, fmt.Errorf("nonce out of range: %s", nonce)
	}
	key = new(big.Int).Rsh(nonce, sequenceBits)
	seq := new(big.Int).And(nonce, sequenceMax)
	return key, seq.Uint64(), nil
}

// NonceHex renders a nonce as 0x followed by 48 hex digits of key and 16 of sequence.
func NonceHex(nonce *big.Int) string {
	return fmt.Sprintf("0x%064x", nonce)
}
