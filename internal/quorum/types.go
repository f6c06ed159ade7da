package quorum

import (
	"QuorumGate/internal/ident"

	"github.com/ethereum/go-ethereum/common"
)

// SubmissionInfo is the per-submission tally record. Created lazily on
// the first vote, mutated only by Submit, never deleted.
type SubmissionInfo struct {
	ID            ident.SubmissionID // ID is the submission identifier
	Confirmations uint64             // Confirmations is the count of distinct oracle votes
	Block         uint64             // Block is the height at which the base threshold was first reached
	Crossed       bool               // Crossed marks whether Block is meaningful
	Signatures    [][]byte           // Signatures is the append-only audit log of raw signatures

	// voters guards against double counting. Invariant:
	// Confirmations == len(voters), always. voterOrder keeps arrival
	// order, pairwise with Signatures.
	voters     map[common.Address]bool
	voterOrder []common.Address
}

// HasVerified reports whether the oracle already voted on this submission.
func (s *SubmissionInfo) HasVerified(addr common.Address) bool {
	return s.voters[addr]
}

// DeployInfo is the per-deploy tally record for a wrapped-asset proposal.
// The metadata is fixed by the first confirmation; the deploy identifier
// itself binds it.
type DeployInfo struct {
	DeployID      ident.DeployID   // DeployID is the deploy identifier
	DebridgeID    ident.DebridgeID // DebridgeID is the underlying asset identifier
	Name          string           // Name is the proposed wrapped-asset name
	Symbol        string           // Symbol is the proposed wrapped-asset symbol
	Decimals      uint8            // Decimals is the proposed wrapped-asset precision
	TokenAddress  common.Address   // TokenAddress is the source token on the origin chain
	ChainID       uint64           // ChainID is the origin chain
	Confirmations uint64           // Confirmations is the count of distinct oracle votes
	Approved      bool             // Approved is set once the threshold is reached
	Signatures    [][]byte         // Signatures is the append-only audit log of raw signatures

	voters     map[common.Address]bool
	voterOrder []common.Address
}

// HasVerified reports whether the oracle already voted on this deploy.
func (d *DeployInfo) HasVerified(addr common.Address) bool {
	return d.voters[addr]
}

// WrappedAsset records the one-time deployment result for a debridge
// identifier.
type WrappedAsset struct {
	Address       common.Address // Address is the wrapped-asset address
	NativeChainID uint64         // NativeChainID is the asset's origin chain
}
