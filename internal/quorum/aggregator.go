package quorum

import (
	"fmt"
	"sync"

	"QuorumGate/internal/ident"
	"QuorumGate/internal/logger"
	"QuorumGate/internal/oracle"
	"QuorumGate/internal/sigverify"
	"QuorumGate/internal/storage"

	"github.com/ethereum/go-ethereum/common"
)

// Aggregator is the submission confirmation state machine. It tracks
// per-submission vote tallies, enforces one vote per oracle, and
// declares approval once the effective threshold is met. It also hosts
// the asset-deploy sibling flow (deploy.go).
//
// Every state transition is an atomic unit: operations validate fully
// before mutating, and a failed call leaves the ledger untouched.
type Aggregator struct {
	mu       sync.Mutex
	registry *oracle.Registry // registry is the shared oracle set and thresholds (referenced, not owned)
	db       *storage.Storage // db is the persistent ledger (nil for ephemeral aggregators)
	policy   EscalationPolicy // policy decides the effective threshold per governing block
	heights  HeightSource     // heights supplies the current block for escalation

	submissions map[ident.SubmissionID]*SubmissionInfo
	deploys     map[ident.DeployID]*DeployInfo
	deployIndex map[ident.DebridgeID]ident.DeployID // canonical (first-proposed) deploy per debridge id
	assets      map[ident.DebridgeID]*WrappedAsset
}

// New creates an aggregator, rebuilding all in-memory state from the
// ledger. A nil policy defaults to NoEscalation.
func New(registry *oracle.Registry, db *storage.Storage, policy EscalationPolicy, heights HeightSource) (*Aggregator, error) {
	if policy == nil {
		policy = NoEscalation{}
	}

	a := &Aggregator{
		registry:    registry,
		db:          db,
		policy:      policy,
		heights:     heights,
		submissions: make(map[ident.SubmissionID]*SubmissionInfo),
		deploys:     make(map[ident.DeployID]*DeployInfo),
		deployIndex: make(map[ident.DebridgeID]ident.DeployID),
		assets:      make(map[ident.DebridgeID]*WrappedAsset),
	}

	if db != nil {
		if err := a.load(); err != nil {
			return nil, fmt.Errorf("load ledger:\n%w", err)
		}
	}

	return a, nil
}

// load rebuilds submissions, deploys and asset records from storage.
func (a *Aggregator) load() error {
	err := a.db.IteratePrefix(prefixSubmission, func(key, value []byte) error {
		var id ident.SubmissionID
		copy(id[:], key[len(prefixSubmission):])

		info, err := decodeSubmission(id, value)
		if err != nil {
			return fmt.Errorf("submission %s:\n%w", id, err)
		}

		a.submissions[id] = info

		return nil
	})
	if err != nil {
		return err
	}

	err = a.db.IteratePrefix(prefixDeploy, func(key, value []byte) error {
		var id ident.DeployID
		copy(id[:], key[len(prefixDeploy):])

		info, err := decodeDeploy(id, value)
		if err != nil {
			return fmt.Errorf("deploy %s:\n%w", id, err)
		}

		a.deploys[id] = info

		return nil
	})
	if err != nil {
		return err
	}

	err = a.db.IteratePrefix(prefixDeployIndex, func(key, value []byte) error {
		if len(value) != 32 {
			return fmt.Errorf("deploy index record length %d, want 32", len(value))
		}

		var debridgeID ident.DebridgeID
		copy(debridgeID[:], key[len(prefixDeployIndex):])

		var deployID ident.DeployID
		copy(deployID[:], value)

		a.deployIndex[debridgeID] = deployID

		return nil
	})
	if err != nil {
		return err
	}

	err = a.db.IteratePrefix(prefixAsset, func(key, value []byte) error {
		var debridgeID ident.DebridgeID
		copy(debridgeID[:], key[len(prefixAsset):])

		asset, err := decodeAsset(value)
		if err != nil {
			return fmt.Errorf("asset %s:\n%w", debridgeID, err)
		}

		a.assets[debridgeID] = asset

		return nil
	})
	if err != nil {
		return err
	}

	logger.Info("ledger loaded",
		"submissions", len(a.submissions),
		"deploys", len(a.deploys),
		"assets", len(a.assets),
	)

	return nil
}

// Submit records one oracle signature for a submission.
// Returns the updated confirmation count and whether the effective
// threshold is now met.
func (a *Aggregator) Submit(id ident.SubmissionID, signature []byte) (uint64, bool, error) {
	signer, err := sigverify.RecoverSigner(id, signature)
	if err != nil {
		return 0, false, err
	}

	if err := a.registry.RequireOracle(signer); err != nil {
		return 0, false, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	info := a.submissions[id]
	if info == nil {
		info = &SubmissionInfo{
			ID:     id,
			voters: make(map[common.Address]bool),
		}
		a.submissions[id] = info
	}

	if info.voters[signer] {
		return info.Confirmations, a.approvedLocked(info), ErrAlreadyVoted
	}

	info.voters[signer] = true
	info.voterOrder = append(info.voterOrder, signer)
	info.Confirmations++
	info.Signatures = append(info.Signatures, append([]byte{}, signature...))

	min := a.registry.MinConfirmations()

	if !info.Crossed && info.Confirmations >= min {
		// First crossing of the base threshold fixes the governing
		// block for this submission, permanently.
		info.Crossed = true
		info.Block = a.heights.Height()
		a.policy.RecordCrossing(id, info.Block)

		logger.Info("submission reached base threshold",
			"submission", id.String(),
			"confirmations", info.Confirmations,
			"block", info.Block,
		)
	}

	a.persistSubmission(info)

	return info.Confirmations, a.approvedLocked(info), nil
}

// SubmitMany records signatures for several submissions in order.
// Items are independent: a later item's failure does not roll back
// earlier items. The returned error names the first failing item.
func (a *Aggregator) SubmitMany(ids []ident.SubmissionID, signatures [][]byte) error {
	if len(ids) != len(signatures) {
		return ErrLengthMismatch
	}

	for i := range ids {
		if _, _, err := a.Submit(ids[i], signatures[i]); err != nil {
			return fmt.Errorf("submission %d (%s):\n%w", i, ids[i], err)
		}
	}

	return nil
}

// Status returns the current confirmation count for a submission and
// whether the effective threshold is met. Approval is evaluated against
// the recorded governing block's escalation state, not the current
// block's.
func (a *Aggregator) Status(id ident.SubmissionID) (uint64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	info := a.submissions[id]
	if info == nil {
		return 0, false
	}

	return info.Confirmations, a.approvedLocked(info)
}

// Submission returns a copy-safe view of a submission record, or nil.
func (a *Aggregator) Submission(id ident.SubmissionID) *SubmissionInfo {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.submissions[id]
}

// approvedLocked evaluates the effective threshold. Caller holds the lock.
func (a *Aggregator) approvedLocked(info *SubmissionInfo) bool {
	min := a.registry.MinConfirmations()

	if !info.Crossed {
		return info.Confirmations >= min
	}

	return info.Confirmations >= a.policy.Threshold(min, info.Block)
}

// persistSubmission writes a submission record. Caller holds the lock.
func (a *Aggregator) persistSubmission(info *SubmissionInfo) {
	if a.db == nil {
		return
	}

	if err := a.db.Set(submissionKey(info.ID), encodeSubmission(info, info.voterOrder)); err != nil {
		logger.Error("persist submission failed", "submission", info.ID.String(), "error", err)
	}
}
