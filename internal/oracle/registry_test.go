package oracle

import (
	"errors"
	"testing"

	"QuorumGate/internal/storage"

	"github.com/ethereum/go-ethereum/common"
)

var (
	testAdmin  = common.HexToAddress("0x1000000000000000000000000000000000000001")
	testIntrud = common.HexToAddress("0x2000000000000000000000000000000000000002")
)

// newTestRegistry creates an ephemeral registry with default thresholds.
func newTestRegistry(t *testing.T) *Registry {
	t.Helper()

	r, err := Open(nil, testAdmin, Params{
		MinConfirmations:      3,
		ConfirmationThreshold: 2,
		ExcessConfirmations:   5,
	})
	if err != nil {
		t.Fatalf("open registry: %v", err)
	}

	return r
}

func TestAddOracleRequiresAdmin(t *testing.T) {
	r := newTestRegistry(t)
	oracle := common.HexToAddress("0xAA")

	err := r.AddOracle(testIntrud, oracle, false)
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("got %v, want ErrUnauthorized", err)
	}

	if r.Has(RoleOracle, oracle) {
		t.Error("oracle registered despite unauthorized caller")
	}

	if err := r.AddOracle(testAdmin, oracle, true); err != nil {
		t.Fatalf("admin add: %v", err)
	}

	if !r.Has(RoleOracle, oracle) {
		t.Error("oracle not registered after admin add")
	}
}

func TestAddOracleIdempotent(t *testing.T) {
	r := newTestRegistry(t)
	oracle := common.HexToAddress("0xAA")

	if err := r.AddOracle(testAdmin, oracle, false); err != nil {
		t.Fatalf("add: %v", err)
	}

	// Re-adding is harmless, not an error.
	if err := r.AddOracle(testAdmin, oracle, true); err != nil {
		t.Fatalf("re-add: %v", err)
	}

	if r.OracleCount() != 1 {
		t.Errorf("oracle count %d, want 1", r.OracleCount())
	}
}

func TestAddOraclesArityMismatch(t *testing.T) {
	r := newTestRegistry(t)

	addrs := []common.Address{common.HexToAddress("0xAA"), common.HexToAddress("0xBB")}

	if err := r.AddOracles(testAdmin, addrs, []bool{true}); err == nil {
		t.Error("expected error on addrs/flags arity mismatch")
	}

	if r.OracleCount() != 0 {
		t.Errorf("oracle count %d after failed batch, want 0", r.OracleCount())
	}
}

func TestRemoveOracle(t *testing.T) {
	r := newTestRegistry(t)
	oracle := common.HexToAddress("0xAA")

	if err := r.AddOracle(testAdmin, oracle, false); err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := r.RemoveOracle(testIntrud, oracle); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("got %v, want ErrUnauthorized", err)
	}

	if err := r.RemoveOracle(testAdmin, oracle); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if r.Has(RoleOracle, oracle) {
		t.Error("oracle still registered after removal")
	}

	if err := r.RequireOracle(oracle); !errors.Is(err, ErrNotAnOracle) {
		t.Errorf("got %v, want ErrNotAnOracle", err)
	}
}

func TestThresholdSetters(t *testing.T) {
	r := newTestRegistry(t)

	if err := r.SetMinConfirmations(testIntrud, 7); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("got %v, want ErrUnauthorized", err)
	}

	if err := r.SetMinConfirmations(testAdmin, 0); err == nil {
		t.Error("expected error for zero minConfirmations")
	}

	if err := r.SetMinConfirmations(testAdmin, 7); err != nil {
		t.Fatalf("set: %v", err)
	}

	if got := r.MinConfirmations(); got != 7 {
		t.Errorf("minConfirmations %d, want 7", got)
	}
}

func TestGatewayRole(t *testing.T) {
	r := newTestRegistry(t)
	gateway := common.HexToAddress("0x77")

	// The zero address never holds the gateway role, even before SetGateway.
	if r.Has(RoleGateway, common.Address{}) {
		t.Error("zero address holds gateway role")
	}

	if err := r.SetGateway(testAdmin, gateway); err != nil {
		t.Fatalf("set gateway: %v", err)
	}

	if !r.Has(RoleGateway, gateway) {
		t.Error("registered gateway lacks gateway role")
	}

	if r.Has(RoleGateway, testAdmin) {
		t.Error("admin wrongly holds gateway role")
	}
}

func TestRegistryPersistence(t *testing.T) {
	dir := t.TempDir() + "/db"

	db, err := storage.Open(dir)
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}

	params := Params{MinConfirmations: 3, ConfirmationThreshold: 2, ExcessConfirmations: 5}

	r, err := Open(db, testAdmin, params)
	if err != nil {
		t.Fatalf("open registry: %v", err)
	}

	kept := common.HexToAddress("0xAA")
	removed := common.HexToAddress("0xBB")

	if err := r.AddOracle(testAdmin, kept, true); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := r.AddOracle(testAdmin, removed, false); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := r.RemoveOracle(testAdmin, removed); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := r.SetMinConfirmations(testAdmin, 9); err != nil {
		t.Fatalf("set min: %v", err)
	}

	if err := db.Close(); err != nil {
		t.Fatalf("close storage: %v", err)
	}

	db2, err := storage.Open(dir)
	if err != nil {
		t.Fatalf("reopen storage: %v", err)
	}
	defer db2.Close()

	r2, err := Open(db2, testAdmin, params)
	if err != nil {
		t.Fatalf("reopen registry: %v", err)
	}

	if !r2.Has(RoleOracle, kept) {
		t.Error("persisted oracle lost after reload")
	}

	if r2.Has(RoleOracle, removed) {
		t.Error("removed oracle resurrected after reload")
	}

	if got := r2.MinConfirmations(); got != 9 {
		t.Errorf("minConfirmations %d after reload, want 9", got)
	}
}
