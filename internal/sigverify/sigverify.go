package sigverify

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// SignatureLength is the exact length of an oracle signature:
	// 32-byte r, 32-byte s, 1-byte recovery id.
	SignatureLength = 65

	// signedMessagePrefix is the domain-separation prefix applied to the
	// 32-byte identifier before recovery. It prevents oracle signatures
	// from being replayed in other protocols.
	signedMessagePrefix = "\x19Ethereum Signed Message:\n32"
)

var (
	// ErrInvalidSignatureLength is returned when a signature is not
	// exactly 65 bytes.
	ErrInvalidSignatureLength = errors.New("invalid signature length")

	// ErrInvalidSignature is returned when public key recovery fails.
	ErrInvalidSignature = errors.New("invalid signature")
)

// PrefixedHash wraps a 32-byte identifier with the signed-message prefix
// and returns its Keccak-256 hash. This is the hash oracles actually sign.
func PrefixedHash(id [32]byte) common.Hash {
	return crypto.Keccak256Hash([]byte(signedMessagePrefix), id[:])
}

// RecoverSigner recovers the signer address of a 65-byte signature over
// the given identifier. The recovery id is accepted as 0/1 or 27/28.
func RecoverSigner(id [32]byte, signature []byte) (common.Address, error) {
	if len(signature) != SignatureLength {
		return common.Address{}, ErrInvalidSignatureLength
	}

	// Work on a copy: recovery id normalization must not mutate the
	// caller's audit-log bytes.
	sig := make([]byte, SignatureLength)
	copy(sig, signature)

	if sig[64] >= 27 {
		sig[64] -= 27
	}

	if sig[64] > 1 {
		return common.Address{}, ErrInvalidSignature
	}

	hash := PrefixedHash(id)

	pub, err := crypto.SigToPub(hash[:], sig)
	if err != nil {
		return common.Address{}, ErrInvalidSignature
	}

	return crypto.PubkeyToAddress(*pub), nil
}

// Sign produces a 65-byte r||s||v signature over the given identifier.
// This is the oracle-side counterpart of RecoverSigner.
func Sign(id [32]byte, key *ecdsa.PrivateKey) ([]byte, error) {
	hash := PrefixedHash(id)

	sig, err := crypto.Sign(hash[:], key)
	if err != nil {
		return nil, fmt.Errorf("sign identifier:\n%w", err)
	}

	return sig, nil
}
