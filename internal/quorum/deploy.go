package quorum

import (
	"fmt"

	"QuorumGate/internal/ident"
	"QuorumGate/internal/logger"
	"QuorumGate/internal/oracle"
	"QuorumGate/internal/sigverify"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// assetSalt is the domain tag for deterministic wrapped-asset addresses.
var assetSalt = []byte("quorumgate/wrapped-asset/v1")

// AssetMetadata describes a wrapped asset proposal.
type AssetMetadata struct {
	TokenAddress common.Address // TokenAddress is the source token on the origin chain
	ChainID      uint64         // ChainID is the origin chain
	Name         string         // Name is the wrapped-asset name
	Symbol       string         // Symbol is the wrapped-asset symbol
	Decimals     uint8          // Decimals is the wrapped-asset precision
}

// ConfirmNewAsset records a batch of oracle signatures over a deploy
// identifier derived from the asset metadata. The whole batch is
// validated before any state changes: one bad signature, a non-oracle
// signer, or a duplicate voter rejects the call without effect.
//
// Deploy approval is judged against the base minimum only; block
// escalation never applies to asset deploys.
func (a *Aggregator) ConfirmNewAsset(meta AssetMetadata, signatures [][]byte) (uint64, bool, error) {
	debridgeID := ident.Debridge(meta.ChainID, meta.TokenAddress)
	deployID := ident.Deploy(debridgeID, meta.Name, meta.Symbol, meta.Decimals)

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.assets[debridgeID] != nil {
		return 0, false, ErrAlreadyDeployed
	}

	// The first vote's metadata becomes canonical, so a voteless call
	// must not be allowed to create the record and claim that slot.
	if len(signatures) == 0 {
		return 0, false, ErrNoSignatures
	}

	if canonical, ok := a.deployIndex[debridgeID]; ok && canonical != deployID {
		return 0, false, ErrMetadataMismatch
	}

	info := a.deploys[deployID]
	if info == nil {
		info = &DeployInfo{
			DeployID:     deployID,
			DebridgeID:   debridgeID,
			Name:         meta.Name,
			Symbol:       meta.Symbol,
			Decimals:     meta.Decimals,
			TokenAddress: meta.TokenAddress,
			ChainID:      meta.ChainID,
			voters:       make(map[common.Address]bool),
		}
	}

	// Validation phase. Nothing is mutated until every signature in
	// the batch has a distinct, registered oracle behind it.
	signers := make([]common.Address, 0, len(signatures))
	seen := make(map[common.Address]bool, len(signatures))

	for i, sig := range signatures {
		signer, err := sigverify.RecoverSigner(deployID, sig)
		if err != nil {
			return 0, false, fmt.Errorf("signature %d:\n%w", i, err)
		}

		if err := a.registry.RequireOracle(signer); err != nil {
			return 0, false, fmt.Errorf("signature %d (%s):\n%w", i, signer, err)
		}

		if info.voters[signer] || seen[signer] {
			return 0, false, fmt.Errorf("signature %d (%s):\n%w", i, signer, ErrAlreadyVoted)
		}

		seen[signer] = true
		signers = append(signers, signer)
	}

	for i, signer := range signers {
		info.voters[signer] = true
		info.voterOrder = append(info.voterOrder, signer)
		info.Confirmations++
		info.Signatures = append(info.Signatures, append([]byte{}, signatures[i]...))
	}

	if !info.Approved && info.Confirmations >= a.registry.MinConfirmations() {
		info.Approved = true

		logger.Info("asset deploy approved",
			"deploy", deployID.String(),
			"debridge", debridgeID.String(),
			"symbol", meta.Symbol,
			"confirmations", info.Confirmations,
		)
	}

	a.deploys[deployID] = info

	if _, ok := a.deployIndex[debridgeID]; !ok {
		a.deployIndex[debridgeID] = deployID
		a.persistDeployIndex(debridgeID, deployID)
	}

	a.persistDeploy(info)

	return info.Confirmations, info.Approved, nil
}

// DeployAsset materializes the wrapped asset for an approved deploy.
// Only the registered gateway may call it. The wrapped-asset address is
// derived deterministically from the deploy record, so every node
// computes the same address.
func (a *Aggregator) DeployAsset(caller common.Address, debridgeID ident.DebridgeID) (common.Address, uint64, error) {
	if err := a.registry.Require(oracle.RoleGateway, caller); err != nil {
		return common.Address{}, 0, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if asset := a.assets[debridgeID]; asset != nil {
		return common.Address{}, 0, ErrAlreadyDeployed
	}

	deployID, ok := a.deployIndex[debridgeID]
	if !ok {
		return common.Address{}, 0, ErrNotFound
	}

	info := a.deploys[deployID]
	if info == nil || !info.Approved {
		return common.Address{}, 0, ErrNotFound
	}

	hash := crypto.Keccak256(assetSalt, debridgeID[:], deployID[:])
	asset := &WrappedAsset{
		Address:       common.BytesToAddress(hash[12:]),
		NativeChainID: info.ChainID,
	}

	a.assets[debridgeID] = asset
	a.persistAsset(debridgeID, asset)

	logger.Info("wrapped asset deployed",
		"debridge", debridgeID.String(),
		"address", asset.Address.Hex(),
		"nativeChain", asset.NativeChainID,
	)

	return asset.Address, asset.NativeChainID, nil
}

// Deploy returns the deploy record for an identifier, or nil.
func (a *Aggregator) Deploy(id ident.DeployID) *DeployInfo {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.deploys[id]
}

// Asset returns the wrapped asset for a debridge identifier, or nil.
func (a *Aggregator) Asset(id ident.DebridgeID) *WrappedAsset {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.assets[id]
}

func (a *Aggregator) persistDeploy(info *DeployInfo) {
	if a.db == nil {
		return
	}

	if err := a.db.Set(deployKey(info.DeployID), encodeDeploy(info, info.voterOrder)); err != nil {
		logger.Error("persist deploy failed", "deploy", info.DeployID.String(), "error", err)
	}
}

func (a *Aggregator) persistDeployIndex(debridgeID ident.DebridgeID, deployID ident.DeployID) {
	if a.db == nil {
		return
	}

	if err := a.db.Set(deployIndexKey(debridgeID), deployID[:]); err != nil {
		logger.Error("persist deploy index failed", "debridge", debridgeID.String(), "error", err)
	}
}

func (a *Aggregator) persistAsset(debridgeID ident.DebridgeID, asset *WrappedAsset) {
	if a.db == nil {
		return
	}

	if err := a.db.Set(assetKey(debridgeID), encodeAsset(asset)); err != nil {
		logger.Error("persist asset failed", "debridge", debridgeID.String(), "error", err)
	}
}
