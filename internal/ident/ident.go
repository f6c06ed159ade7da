package ident

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zeebo/blake3"
)

// Domain tags for identifier derivation. Distinct tags keep the two
// derivations from ever producing overlapping identifier spaces.
const (
	debridgeTag = "quorumgate/debridge-id/v1"
	deployTag   = "quorumgate/deploy-id/v1"
)

// DebridgeID is the canonical key for "this asset on this origin chain".
type DebridgeID [32]byte

// DeployID binds a debridge identifier to proposed wrapped-asset metadata.
type DeployID [32]byte

// SubmissionID is the opaque 32-byte key of a claimed cross-chain
// transfer. It is constructed by the gateway; the engine never
// interprets its contents.
type SubmissionID [32]byte

// Debridge derives the identifier for a token on its origin chain.
// Same inputs always yield the same identifier.
func Debridge(chainID uint64, tokenAddress common.Address) DebridgeID {
	h := blake3.New()
	h.Write([]byte(debridgeTag))

	var chain [8]byte
	binary.BigEndian.PutUint64(chain[:], chainID)
	h.Write(chain[:])
	h.Write(tokenAddress[:])

	var id DebridgeID
	h.Sum(id[:0])

	return id
}

// Deploy derives the identifier for a wrapped-asset deployment proposal.
// Two proposals with different metadata for the same debridge identifier
// get distinct deploy identifiers: name and symbol are length-prefixed so
// their concatenation is unambiguous.
func Deploy(debridgeID DebridgeID, name, symbol string, decimals uint8) DeployID {
	h := blake3.New()
	h.Write([]byte(deployTag))
	h.Write(debridgeID[:])

	writeString(h, name)
	writeString(h, symbol)
	h.Write([]byte{decimals})

	var id DeployID
	h.Sum(id[:0])

	return id
}

// writeString writes a length-prefixed string to the hasher.
func writeString(h *blake3.Hasher, s string) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(s)))
	h.Write(n[:])
	h.Write([]byte(s))
}

// String returns the hex form of the identifier.
func (id DebridgeID) String() string { return hex.EncodeToString(id[:]) }

// String returns the hex form of the identifier.
func (id DeployID) String() string { return hex.EncodeToString(id[:]) }

// String returns the hex form of the identifier.
func (id SubmissionID) String() string { return hex.EncodeToString(id[:]) }

// ParseSubmissionID decodes a 64-character hex string into a SubmissionID.
func ParseSubmissionID(s string) (SubmissionID, error) {
	var id SubmissionID

	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("decode submission id:\n%w", err)
	}

	if len(b) != 32 {
		return id, fmt.Errorf("submission id must be 32 bytes, got %d", len(b))
	}

	copy(id[:], b)

	return id, nil
}

// ParseDebridgeID decodes a 64-character hex string into a DebridgeID.
func ParseDebridgeID(s string) (DebridgeID, error) {
	var id DebridgeID

	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("decode debridge id:\n%w", err)
	}

	if len(b) != 32 {
		return id, fmt.Errorf("debridge id must be 32 bytes, got %d", len(b))
	}

	copy(id[:], b)

	return id, nil
}
