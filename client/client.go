package client

import (
	"encoding/hex"
	"fmt"

	"QuorumGate/internal/ident"

	"github.com/ethereum/go-ethereum/common"
)

// Client connects to a QuorumGate node via HTTP.
type Client struct {
	nodeAddr string // nodeAddr is the HTTP address (e.g. "127.0.0.1:8080")
}

// SubmissionStatus holds a submission's confirmation progress.
type SubmissionStatus struct {
	Confirmations uint64 // Confirmations is the count of distinct oracle votes
	Approved      bool   // Approved reports whether the effective threshold is met
}

// AssetConfirmation holds the result of an asset confirmation call.
type AssetConfirmation struct {
	DebridgeID    ident.DebridgeID // DebridgeID identifies the underlying asset
	DeployID      ident.DeployID   // DeployID identifies the metadata proposal
	Confirmations uint64           // Confirmations is the count of distinct oracle votes
	Approved      bool             // Approved reports whether the deploy may proceed
}

// WrappedAsset holds a deployed wrapped asset.
type WrappedAsset struct {
	Address       common.Address // Address is the wrapped-asset address
	NativeChainID uint64         // NativeChainID is the asset's origin chain
}

// EngineStatus holds the node's registry configuration.
type EngineStatus struct {
	Oracles               int    `json:"oracles"`
	MinConfirmations      uint64 `json:"minConfirmations"`
	ConfirmationThreshold uint64 `json:"confirmationThreshold"`
	ExcessConfirmations   uint64 `json:"excessConfirmations"`
	Gateway               string `json:"gateway"`
	WrappedAssetAdmin     string `json:"wrappedAssetAdmin"`
}

// NewClient creates a client connected to a node.
func NewClient(nodeAddr string) *Client {
	return &Client{nodeAddr: nodeAddr}
}

// Submit sends one oracle signature for a submission.
func (c *Client) Submit(id ident.SubmissionID, signature []byte) (*SubmissionStatus, error) {
	body := map[string]any{
		"id":        id.String(),
		"signature": hex.EncodeToString(signature),
	}

	var resp struct {
		Confirmations uint64 `json:"confirmations"`
		Approved      bool   `json:"approved"`
	}

	if err := httpPostJSON(c.url("/submission"), body, &resp); err != nil {
		return nil, fmt.Errorf("submit:\n%w", err)
	}

	return &SubmissionStatus{Confirmations: resp.Confirmations, Approved: resp.Approved}, nil
}

// SubmitMany sends signatures for several submissions in one call.
func (c *Client) SubmitMany(ids []ident.SubmissionID, signatures [][]byte) error {
	rawIDs := make([]string, len(ids))
	for i, id := range ids {
		rawIDs[i] = id.String()
	}

	rawSigs := make([]string, len(signatures))
	for i, sig := range signatures {
		rawSigs[i] = hex.EncodeToString(sig)
	}

	body := map[string]any{
		"ids":        rawIDs,
		"signatures": rawSigs,
	}

	var resp struct {
		Accepted int `json:"accepted"`
	}

	if err := httpPostJSON(c.url("/submissions"), body, &resp); err != nil {
		return fmt.Errorf("submit batch:\n%w", err)
	}

	return nil
}

// Status fetches a submission's confirmation progress.
func (c *Client) Status(id ident.SubmissionID) (*SubmissionStatus, error) {
	var resp struct {
		Confirmations uint64 `json:"confirmations"`
		Approved      bool   `json:"approved"`
	}

	if err := httpGet(c.url("/submission/"+id.String()), &resp); err != nil {
		return nil, fmt.Errorf("status:\n%w", err)
	}

	return &SubmissionStatus{Confirmations: resp.Confirmations, Approved: resp.Approved}, nil
}

// ConfirmNewAsset sends a batch of deploy signatures for an asset proposal.
func (c *Client) ConfirmNewAsset(tokenAddress common.Address, chainID uint64, name, symbol string, decimals uint8, signatures [][]byte) (*AssetConfirmation, error) {
	rawSigs := make([]string, len(signatures))
	for i, sig := range signatures {
		rawSigs[i] = hex.EncodeToString(sig)
	}

	body := map[string]any{
		"tokenAddress": tokenAddress.Hex(),
		"chainId":      chainID,
		"name":         name,
		"symbol":       symbol,
		"decimals":     decimals,
		"signatures":   rawSigs,
	}

	var resp struct {
		DebridgeID    string `json:"debridgeId"`
		DeployID      string `json:"deployId"`
		Confirmations uint64 `json:"confirmations"`
		Approved      bool   `json:"approved"`
	}

	if err := httpPostJSON(c.url("/asset/confirm"), body, &resp); err != nil {
		return nil, fmt.Errorf("confirm asset:\n%w", err)
	}

	debridgeID, err := ident.ParseDebridgeID(resp.DebridgeID)
	if err != nil {
		return nil, fmt.Errorf("invalid debridgeId in response: %q", resp.DebridgeID)
	}

	deployBytes, err := hex.DecodeString(resp.DeployID)
	if err != nil || len(deployBytes) != 32 {
		return nil, fmt.Errorf("invalid deployId in response: %q", resp.DeployID)
	}

	result := &AssetConfirmation{
		DebridgeID:    debridgeID,
		Confirmations: resp.Confirmations,
		Approved:      resp.Approved,
	}
	copy(result.DeployID[:], deployBytes)

	return result, nil
}

// DeployAsset asks the node to materialize an approved wrapped asset.
// caller must be the registered gateway address.
func (c *Client) DeployAsset(caller common.Address, debridgeID ident.DebridgeID) (*WrappedAsset, error) {
	body := map[string]any{
		"caller":     caller.Hex(),
		"debridgeId": debridgeID.String(),
	}

	var resp struct {
		Address       string `json:"address"`
		NativeChainID uint64 `json:"nativeChainId"`
	}

	if err := httpPostJSON(c.url("/asset/deploy"), body, &resp); err != nil {
		return nil, fmt.Errorf("deploy asset:\n%w", err)
	}

	return &WrappedAsset{
		Address:       common.HexToAddress(resp.Address),
		NativeChainID: resp.NativeChainID,
	}, nil
}

// Asset fetches a deployed wrapped asset.
func (c *Client) Asset(debridgeID ident.DebridgeID) (*WrappedAsset, error) {
	var resp struct {
		Address       string `json:"address"`
		NativeChainID uint64 `json:"nativeChainId"`
	}

	if err := httpGet(c.url("/asset/"+debridgeID.String()), &resp); err != nil {
		return nil, fmt.Errorf("asset:\n%w", err)
	}

	return &WrappedAsset{
		Address:       common.HexToAddress(resp.Address),
		NativeChainID: resp.NativeChainID,
	}, nil
}

// AddOracles registers oracle addresses. caller must hold the admin role.
func (c *Client) AddOracles(caller common.Address, oracles []common.Address, required []bool) error {
	rawOracles := make([]string, len(oracles))
	for i, addr := range oracles {
		rawOracles[i] = addr.Hex()
	}

	body := map[string]any{
		"caller":   caller.Hex(),
		"oracles":  rawOracles,
		"required": required,
	}

	var resp struct {
		Oracles int `json:"oracles"`
	}

	if err := httpPostJSON(c.url("/admin/oracles"), body, &resp); err != nil {
		return fmt.Errorf("add oracles:\n%w", err)
	}

	return nil
}

// RemoveOracle deregisters an oracle. caller must hold the admin role.
func (c *Client) RemoveOracle(caller, oracle common.Address) error {
	body := map[string]any{
		"caller": caller.Hex(),
		"oracle": oracle.Hex(),
	}

	var resp struct {
		Oracles int `json:"oracles"`
	}

	if err := httpPostJSON(c.url("/admin/oracle/remove"), body, &resp); err != nil {
		return fmt.Errorf("remove oracle:\n%w", err)
	}

	return nil
}

// ConfigUpdate holds optional registry changes for SetConfig.
// Zero fields are left unchanged.
type ConfigUpdate struct {
	MinConfirmations      uint64
	ConfirmationThreshold uint64
	ExcessConfirmations   uint64
	Gateway               common.Address
	WrappedAssetAdmin     common.Address
}

// SetConfig applies registry changes. caller must hold the admin role.
func (c *Client) SetConfig(caller common.Address, update ConfigUpdate) error {
	body := map[string]any{
		"caller":                caller.Hex(),
		"minConfirmations":      update.MinConfirmations,
		"confirmationThreshold": update.ConfirmationThreshold,
		"excessConfirmations":   update.ExcessConfirmations,
	}

	if update.Gateway != (common.Address{}) {
		body["gateway"] = update.Gateway.Hex()
	}
	if update.WrappedAssetAdmin != (common.Address{}) {
		body["wrappedAssetAdmin"] = update.WrappedAssetAdmin.Hex()
	}

	var resp EngineStatus
	if err := httpPostJSON(c.url("/admin/config"), body, &resp); err != nil {
		return fmt.Errorf("set config:\n%w", err)
	}

	return nil
}

// EngineStatus fetches the node's registry configuration.
func (c *Client) EngineStatus() (*EngineStatus, error) {
	var resp EngineStatus
	if err := httpGet(c.url("/status"), &resp); err != nil {
		return nil, fmt.Errorf("engine status:\n%w", err)
	}

	return &resp, nil
}

// Snapshot downloads a compressed export of the node's ledger.
func (c *Client) Snapshot() ([]byte, error) {
	data, err := httpGetBytes(c.url("/snapshot"))
	if err != nil {
		return nil, fmt.Errorf("snapshot:\n%w", err)
	}

	return data, nil
}

func (c *Client) url(path string) string {
	return "http://" + c.nodeAddr + path
}
