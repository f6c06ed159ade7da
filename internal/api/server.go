package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"QuorumGate/internal/ident"
	"QuorumGate/internal/logger"
	"QuorumGate/internal/oracle"
	"QuorumGate/internal/quorum"
	"QuorumGate/internal/sigverify"
	"QuorumGate/internal/snapshot"
	"QuorumGate/internal/storage"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// maxBodySize is the maximum request body size in bytes.
	maxBodySize = 1 << 20 // 1 MB
)

// Server is the HTTP API server. It is the gateway boundary: oracles
// and the bridge gateway reach the confirmation engine through it.
type Server struct {
	addr     string            // addr is the HTTP listen address
	agg      *quorum.Aggregator // agg is the confirmation engine
	registry *oracle.Registry  // registry is the oracle set and thresholds
	db       *storage.Storage  // db backs snapshot export (nil disables it)
	server   *http.Server      // server is the underlying HTTP server
}

// New creates a new HTTP API server.
func New(addr string, agg *quorum.Aggregator, registry *oracle.Registry, db *storage.Storage) *Server {
	return &Server{
		addr:     addr,
		agg:      agg,
		registry: registry,
		db:       db,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /submission", s.handleSubmit)
	mux.HandleFunc("POST /submissions", s.handleSubmitMany)
	mux.HandleFunc("GET /submission/{id}", s.handleSubmissionStatus)
	mux.HandleFunc("POST /asset/confirm", s.handleConfirmAsset)
	mux.HandleFunc("POST /asset/deploy", s.handleDeployAsset)
	mux.HandleFunc("GET /asset/{debridgeId}", s.handleAsset)
	mux.HandleFunc("POST /admin/oracles", s.handleAddOracles)
	mux.HandleFunc("POST /admin/oracle/remove", s.handleRemoveOracle)
	mux.HandleFunc("POST /admin/config", s.handleSetConfig)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /snapshot", s.handleSnapshot)

	return mux
}

// Start starts the HTTP server in a goroutine.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("http api started", "addr", s.addr)

		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// submitRequest is the body of POST /submission.
type submitRequest struct {
	ID        string `json:"id"`        // ID is the hex submission identifier
	Signature string `json:"signature"` // Signature is the hex 65-byte signature
}

// submitManyRequest is the body of POST /submissions.
type submitManyRequest struct {
	IDs        []string `json:"ids"`
	Signatures []string `json:"signatures"`
}

// confirmAssetRequest is the body of POST /asset/confirm.
type confirmAssetRequest struct {
	TokenAddress string   `json:"tokenAddress"`
	ChainID      uint64   `json:"chainId"`
	Name         string   `json:"name"`
	Symbol       string   `json:"symbol"`
	Decimals     uint8    `json:"decimals"`
	Signatures   []string `json:"signatures"`
}

// deployAssetRequest is the body of POST /asset/deploy.
type deployAssetRequest struct {
	Caller     string `json:"caller"`     // Caller is the gateway address
	DebridgeID string `json:"debridgeId"` // DebridgeID is the hex asset identifier
}

// oraclesRequest is the body of POST /admin/oracles.
type oraclesRequest struct {
	Caller   string   `json:"caller"`
	Oracles  []string `json:"oracles"`
	Required []bool   `json:"required"`
}

// removeOracleRequest is the body of POST /admin/oracle/remove.
type removeOracleRequest struct {
	Caller string `json:"caller"`
	Oracle string `json:"oracle"`
}

// configRequest is the body of POST /admin/config. Zero fields are
// left unchanged.
type configRequest struct {
	Caller                string `json:"caller"`
	MinConfirmations      uint64 `json:"minConfirmations,omitempty"`
	ConfirmationThreshold uint64 `json:"confirmationThreshold,omitempty"`
	ExcessConfirmations   uint64 `json:"excessConfirmations,omitempty"`
	Gateway               string `json:"gateway,omitempty"`
	WrappedAssetAdmin     string `json:"wrappedAssetAdmin,omitempty"`
}

// handleSubmit handles POST /submission requests.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !decodeBody(w, r, &req) {
		return
	}

	id, err := ident.ParseSubmissionID(req.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid submission id: %v", err))
		return
	}

	sig, err := decodeHex(req.Signature)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid signature encoding: %v", err))
		return
	}

	confirmations, approved, err := s.agg.Submit(id, sig)
	if err != nil {
		writeQuorumError(w, err)
		return
	}

	logger.Debug("submission confirmed", "id", req.ID, "confirmations", confirmations)

	writeJSON(w, http.StatusOK, map[string]any{
		"confirmations": confirmations,
		"approved":      approved,
	})
}

// handleSubmitMany handles POST /submissions requests.
func (s *Server) handleSubmitMany(w http.ResponseWriter, r *http.Request) {
	var req submitManyRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ids := make([]ident.SubmissionID, len(req.IDs))
	for i, raw := range req.IDs {
		id, err := ident.ParseSubmissionID(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid submission id %d: %v", i, err))
			return
		}
		ids[i] = id
	}

	sigs := make([][]byte, len(req.Signatures))
	for i, raw := range req.Signatures {
		sig, err := decodeHex(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid signature encoding %d: %v", i, err))
			return
		}
		sigs[i] = sig
	}

	if err := s.agg.SubmitMany(ids, sigs); err != nil {
		writeQuorumError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"accepted": len(ids),
	})
}

// handleSubmissionStatus handles GET /submission/{id} requests.
func (s *Server) handleSubmissionStatus(w http.ResponseWriter, r *http.Request) {
	id, err := ident.ParseSubmissionID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid submission id: %v", err))
		return
	}

	confirmations, approved := s.agg.Status(id)

	writeJSON(w, http.StatusOK, map[string]any{
		"confirmations": confirmations,
		"approved":      approved,
	})
}

// handleConfirmAsset handles POST /asset/confirm requests.
func (s *Server) handleConfirmAsset(w http.ResponseWriter, r *http.Request) {
	var req confirmAssetRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if !common.IsHexAddress(req.TokenAddress) {
		writeError(w, http.StatusBadRequest, "invalid token address")
		return
	}

	sigs := make([][]byte, len(req.Signatures))
	for i, raw := range req.Signatures {
		sig, err := decodeHex(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid signature encoding %d: %v", i, err))
			return
		}
		sigs[i] = sig
	}

	meta := quorum.AssetMetadata{
		TokenAddress: common.HexToAddress(req.TokenAddress),
		ChainID:      req.ChainID,
		Name:         req.Name,
		Symbol:       req.Symbol,
		Decimals:     req.Decimals,
	}

	confirmations, approved, err := s.agg.ConfirmNewAsset(meta, sigs)
	if err != nil {
		writeQuorumError(w, err)
		return
	}

	debridgeID := ident.Debridge(meta.ChainID, meta.TokenAddress)
	deployID := ident.Deploy(debridgeID, meta.Name, meta.Symbol, meta.Decimals)

	writeJSON(w, http.StatusOK, map[string]any{
		"debridgeId":    debridgeID.String(),
		"deployId":      deployID.String(),
		"confirmations": confirmations,
		"approved":      approved,
	})
}

// handleDeployAsset handles POST /asset/deploy requests.
func (s *Server) handleDeployAsset(w http.ResponseWriter, r *http.Request) {
	var req deployAssetRequest
	if !decodeBody(w, r, &req) {
		return
	}

	caller, ok := parseAddress(w, req.Caller, "caller")
	if !ok {
		return
	}

	debridgeID, err := ident.ParseDebridgeID(req.DebridgeID)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid debridge id: %v", err))
		return
	}

	addr, nativeChainID, err := s.agg.DeployAsset(caller, debridgeID)
	if err != nil {
		writeQuorumError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"address":       addr.Hex(),
		"nativeChainId": nativeChainID,
	})
}

// handleAsset handles GET /asset/{debridgeId} requests.
func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	debridgeID, err := ident.ParseDebridgeID(r.PathValue("debridgeId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid debridge id: %v", err))
		return
	}

	asset := s.agg.Asset(debridgeID)
	if asset == nil {
		writeError(w, http.StatusNotFound, "asset not deployed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"address":       asset.Address.Hex(),
		"nativeChainId": asset.NativeChainID,
	})
}

// handleAddOracles handles POST /admin/oracles requests.
func (s *Server) handleAddOracles(w http.ResponseWriter, r *http.Request) {
	var req oraclesRequest
	if !decodeBody(w, r, &req) {
		return
	}

	caller, ok := parseAddress(w, req.Caller, "caller")
	if !ok {
		return
	}

	addrs := make([]common.Address, len(req.Oracles))
	for i, raw := range req.Oracles {
		addr, ok := parseAddress(w, raw, fmt.Sprintf("oracle %d", i))
		if !ok {
			return
		}
		addrs[i] = addr
	}

	if err := s.registry.AddOracles(caller, addrs, req.Required); err != nil {
		writeQuorumError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"oracles": s.registry.OracleCount(),
	})
}

// handleRemoveOracle handles POST /admin/oracle/remove requests.
func (s *Server) handleRemoveOracle(w http.ResponseWriter, r *http.Request) {
	var req removeOracleRequest
	if !decodeBody(w, r, &req) {
		return
	}

	caller, ok := parseAddress(w, req.Caller, "caller")
	if !ok {
		return
	}

	target, ok := parseAddress(w, req.Oracle, "oracle")
	if !ok {
		return
	}

	if err := s.registry.RemoveOracle(caller, target); err != nil {
		writeQuorumError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"oracles": s.registry.OracleCount(),
	})
}

// handleSetConfig handles POST /admin/config requests. Each supplied
// field is applied in order; the first failure stops the call.
func (s *Server) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	var req configRequest
	if !decodeBody(w, r, &req) {
		return
	}

	caller, ok := parseAddress(w, req.Caller, "caller")
	if !ok {
		return
	}

	if req.MinConfirmations != 0 {
		if err := s.registry.SetMinConfirmations(caller, req.MinConfirmations); err != nil {
			writeQuorumError(w, err)
			return
		}
	}

	if req.ConfirmationThreshold != 0 {
		if err := s.registry.SetConfirmationThreshold(caller, req.ConfirmationThreshold); err != nil {
			writeQuorumError(w, err)
			return
		}
	}

	if req.ExcessConfirmations != 0 {
		if err := s.registry.SetExcessConfirmations(caller, req.ExcessConfirmations); err != nil {
			writeQuorumError(w, err)
			return
		}
	}

	if req.Gateway != "" {
		gateway, ok := parseAddress(w, req.Gateway, "gateway")
		if !ok {
			return
		}
		if err := s.registry.SetGateway(caller, gateway); err != nil {
			writeQuorumError(w, err)
			return
		}
	}

	if req.WrappedAssetAdmin != "" {
		admin, ok := parseAddress(w, req.WrappedAssetAdmin, "wrappedAssetAdmin")
		if !ok {
			return
		}
		if err := s.registry.SetWrappedAssetAdmin(caller, admin); err != nil {
			writeQuorumError(w, err)
			return
		}
	}

	s.writeConfig(w)
}

// handleHealth handles GET /health requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleStatus handles GET /status requests.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeConfig(w)
}

// handleSnapshot handles GET /snapshot requests, streaming a
// zstd-compressed export of the full ledger.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeError(w, http.StatusServiceUnavailable, "snapshot not available")
		return
	}

	data, err := snapshot.Create(s.db)
	if err != nil {
		logger.Error("snapshot export failed", "error", err)
		writeError(w, http.StatusInternalServerError, "snapshot export failed")
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// writeConfig writes the current registry configuration.
func (s *Server) writeConfig(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]any{
		"oracles":               s.registry.OracleCount(),
		"minConfirmations":      s.registry.MinConfirmations(),
		"confirmationThreshold": s.registry.ConfirmationThreshold(),
		"excessConfirmations":   s.registry.ExcessConfirmations(),
		"gateway":               s.registry.Gateway().Hex(),
		"wrappedAssetAdmin":     s.registry.WrappedAssetAdmin().Hex(),
	})
}

// decodeBody decodes a JSON request body, writing an error on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodySize)

	if err := json.NewDecoder(body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}

	return true
}

// parseAddress parses a hex address, writing an error on failure.
func parseAddress(w http.ResponseWriter, raw, field string) (common.Address, bool) {
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s address", field))
		return common.Address{}, false
	}

	return common.HexToAddress(raw), true
}

// decodeHex decodes a hex string with optional 0x prefix.
func decodeHex(raw string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(raw, "0x"))
}

// writeQuorumError maps engine errors to HTTP statuses.
func writeQuorumError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, quorum.ErrAlreadyVoted),
		errors.Is(err, quorum.ErrAlreadyDeployed),
		errors.Is(err, quorum.ErrMetadataMismatch):
		status = http.StatusConflict
	case errors.Is(err, quorum.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, oracle.ErrUnauthorized),
		errors.Is(err, oracle.ErrNotAnOracle):
		status = http.StatusForbidden
	case errors.Is(err, quorum.ErrLengthMismatch),
		errors.Is(err, quorum.ErrNoSignatures),
		errors.Is(err, sigverify.ErrInvalidSignatureLength),
		errors.Is(err, sigverify.ErrInvalidSignature):
		status = http.StatusBadRequest
	}

	writeError(w, status, err.Error())
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
