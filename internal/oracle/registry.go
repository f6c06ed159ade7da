package oracle

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"QuorumGate/internal/logger"
	"QuorumGate/internal/storage"

	"github.com/ethereum/go-ethereum/common"
)

// Storage key prefixes for registry state.
var (
	prefixOracle = []byte("o:") // o:<address> -> [1B required]
	prefixAdmin  = []byte("a:") // a:<address> -> [1B]
	prefixConfig = []byte("c:") // c:<name>    -> value
)

// Config value keys.
var (
	keyMinConfirmations      = configKey("minConfirmations")
	keyConfirmationThreshold = configKey("confirmationThreshold")
	keyExcessConfirmations   = configKey("excessConfirmations")
	keyGateway               = configKey("gateway")
	keyWrappedAssetAdmin     = configKey("wrappedAssetAdmin")
)

// configKey builds the storage key for a config value.
func configKey(name string) []byte {
	return append(append([]byte{}, prefixConfig...), name...)
}

var (
	// ErrUnauthorized is returned when a role-gated operation is called
	// by an address without that capability.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotAnOracle is returned when a recovered signer is not a
	// registered oracle.
	ErrNotAnOracle = errors.New("signer is not a registered oracle")
)

// Role is a capability resolved against the registry.
type Role uint8

const (
	// RoleAdmin may mutate the oracle set and thresholds.
	RoleAdmin Role = iota

	// RoleOracle may have its signatures counted toward quorum.
	RoleOracle

	// RoleGateway may trigger asset deployment.
	RoleGateway
)

// Info holds per-oracle registry attributes.
type Info struct {
	Required bool // Required marks oracles whose vote is mandatory in variants that enforce it
}

// Params are the threshold parameters used when no persisted values exist.
type Params struct {
	MinConfirmations      uint64 // base confirmations required for approval
	ConfirmationThreshold uint64 // distinct threshold-crossings per block before escalation
	ExcessConfirmations   uint64 // confirmations required once a block has escalated
}

// Registry is the permissioned set of authorized signers plus the movable
// confirmation thresholds. All mutations are admin-gated and persisted;
// reads are served from memory.
type Registry struct {
	mu sync.RWMutex
	db *storage.Storage // db is the backing store (nil for ephemeral registries)

	admins  map[common.Address]bool
	oracles map[common.Address]Info
	order   []common.Address // registration order, for enumeration

	gateway           common.Address
	wrappedAssetAdmin common.Address

	minConfirmations      uint64
	confirmationThreshold uint64
	excessConfirmations   uint64
}

// Open creates a registry backed by db, reloading any persisted state.
// The bootstrap admin is always granted RoleAdmin; params supply threshold
// defaults for values never persisted before.
func Open(db *storage.Storage, admin common.Address, params Params) (*Registry, error) {
	r := &Registry{
		db:                    db,
		admins:                map[common.Address]bool{admin: true},
		oracles:               make(map[common.Address]Info),
		minConfirmations:      params.MinConfirmations,
		confirmationThreshold: params.ConfirmationThreshold,
		excessConfirmations:   params.ExcessConfirmations,
	}

	if r.minConfirmations == 0 {
		return nil, fmt.Errorf("minConfirmations must be positive")
	}

	if db != nil {
		if err := r.load(); err != nil {
			return nil, fmt.Errorf("load registry:\n%w", err)
		}

		if err := r.persistAdmin(admin); err != nil {
			return nil, fmt.Errorf("persist bootstrap admin:\n%w", err)
		}
	}

	return r, nil
}

// load rebuilds the in-memory registry from persisted state.
func (r *Registry) load() error {
	err := r.db.IteratePrefix(prefixOracle, func(key, value []byte) error {
		if len(value) == 0 {
			// Tombstone left by RemoveOracle.
			return nil
		}

		addr := common.BytesToAddress(key[len(prefixOracle):])
		r.oracles[addr] = Info{Required: len(value) == 1 && value[0] == 1}
		r.order = append(r.order, addr)
		return nil
	})
	if err != nil {
		return err
	}

	err = r.db.IteratePrefix(prefixAdmin, func(key, value []byte) error {
		r.admins[common.BytesToAddress(key[len(prefixAdmin):])] = true
		return nil
	})
	if err != nil {
		return err
	}

	if v, err := r.db.Get(keyMinConfirmations); err != nil {
		return err
	} else if len(v) == 8 {
		r.minConfirmations = binary.BigEndian.Uint64(v)
	}

	if v, err := r.db.Get(keyConfirmationThreshold); err != nil {
		return err
	} else if len(v) == 8 {
		r.confirmationThreshold = binary.BigEndian.Uint64(v)
	}

	if v, err := r.db.Get(keyExcessConfirmations); err != nil {
		return err
	} else if len(v) == 8 {
		r.excessConfirmations = binary.BigEndian.Uint64(v)
	}

	if v, err := r.db.Get(keyGateway); err != nil {
		return err
	} else if len(v) == common.AddressLength {
		r.gateway = common.BytesToAddress(v)
	}

	if v, err := r.db.Get(keyWrappedAssetAdmin); err != nil {
		return err
	} else if len(v) == common.AddressLength {
		r.wrappedAssetAdmin = common.BytesToAddress(v)
	}

	return nil
}

// Has reports whether addr holds the given role.
func (r *Registry) Has(role Role, addr common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	switch role {
	case RoleAdmin:
		return r.admins[addr]
	case RoleOracle:
		_, ok := r.oracles[addr]
		return ok
	case RoleGateway:
		return r.gateway != (common.Address{}) && addr == r.gateway
	default:
		return false
	}
}

// Require returns ErrUnauthorized unless addr holds the given role.
func (r *Registry) Require(role Role, addr common.Address) error {
	if !r.Has(role, addr) {
		return ErrUnauthorized
	}
	return nil
}

// RequireOracle returns ErrNotAnOracle unless addr is a registered oracle.
func (r *Registry) RequireOracle(addr common.Address) error {
	if !r.Has(RoleOracle, addr) {
		return ErrNotAnOracle
	}
	return nil
}

// AddOracle registers a signer. Re-adding an existing oracle is harmless:
// the required flag is updated and nothing else changes.
func (r *Registry) AddOracle(caller, addr common.Address, required bool) error {
	if err := r.Require(RoleAdmin, caller); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.oracles[addr]; !exists {
		r.order = append(r.order, addr)
	}

	r.oracles[addr] = Info{Required: required}

	if err := r.persistOracle(addr, required); err != nil {
		return fmt.Errorf("persist oracle:\n%w", err)
	}

	logger.Info("oracle added", "address", addr.Hex(), "required", required)

	return nil
}

// AddOracles registers several signers at once.
func (r *Registry) AddOracles(caller common.Address, addrs []common.Address, required []bool) error {
	if err := r.Require(RoleAdmin, caller); err != nil {
		return err
	}

	if len(addrs) != len(required) {
		return fmt.Errorf("oracles/flags length mismatch: %d != %d", len(addrs), len(required))
	}

	for i, addr := range addrs {
		if err := r.AddOracle(caller, addr, required[i]); err != nil {
			return err
		}
	}

	return nil
}

// RemoveOracle revokes a signer's voting capability. Votes already
// recorded on the ledger are immutable history and stay counted.
func (r *Registry) RemoveOracle(caller, addr common.Address) error {
	if err := r.Require(RoleAdmin, caller); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.oracles[addr]; !exists {
		return nil
	}

	delete(r.oracles, addr)

	for i, a := range r.order {
		if a == addr {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	if r.db != nil {
		// An empty value marks removal; load() skips it.
		if err := r.db.Set(oracleKey(addr), nil); err != nil {
			return fmt.Errorf("persist oracle removal:\n%w", err)
		}
	}

	logger.Info("oracle removed", "address", addr.Hex())

	return nil
}

// SetMinConfirmations moves the base threshold. Takes effect immediately
// for all future tally evaluations, including submissions in flight.
func (r *Registry) SetMinConfirmations(caller common.Address, n uint64) error {
	if err := r.Require(RoleAdmin, caller); err != nil {
		return err
	}

	if n == 0 {
		return fmt.Errorf("minConfirmations must be positive")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.minConfirmations = n

	return r.persistUint(keyMinConfirmations, n)
}

// SetConfirmationThreshold moves the per-block escalation trigger.
func (r *Registry) SetConfirmationThreshold(caller common.Address, n uint64) error {
	if err := r.Require(RoleAdmin, caller); err != nil {
		return err
	}

	if n == 0 {
		return fmt.Errorf("confirmationThreshold must be positive")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.confirmationThreshold = n

	return r.persistUint(keyConfirmationThreshold, n)
}

// SetExcessConfirmations moves the escalated threshold.
func (r *Registry) SetExcessConfirmations(caller common.Address, n uint64) error {
	if err := r.Require(RoleAdmin, caller); err != nil {
		return err
	}

	if n == 0 {
		return fmt.Errorf("excessConfirmations must be positive")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.excessConfirmations = n

	return r.persistUint(keyExcessConfirmations, n)
}

// SetGateway registers the gateway contract address allowed to trigger
// asset deployment.
func (r *Registry) SetGateway(caller, addr common.Address) error {
	if err := r.Require(RoleAdmin, caller); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.gateway = addr

	if r.db != nil {
		if err := r.db.Set(keyGateway, addr.Bytes()); err != nil {
			return fmt.Errorf("persist gateway:\n%w", err)
		}
	}

	logger.Info("gateway set", "address", addr.Hex())

	return nil
}

// SetWrappedAssetAdmin records the admin address handed to wrapped-asset
// contracts created by the gateway.
func (r *Registry) SetWrappedAssetAdmin(caller, addr common.Address) error {
	if err := r.Require(RoleAdmin, caller); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.wrappedAssetAdmin = addr

	if r.db != nil {
		if err := r.db.Set(keyWrappedAssetAdmin, addr.Bytes()); err != nil {
			return fmt.Errorf("persist wrapped-asset admin:\n%w", err)
		}
	}

	return nil
}

// MinConfirmations returns the base approval threshold.
func (r *Registry) MinConfirmations() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.minConfirmations
}

// ConfirmationThreshold returns the per-block escalation trigger.
func (r *Registry) ConfirmationThreshold() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.confirmationThreshold
}

// ExcessConfirmations returns the escalated approval threshold.
func (r *Registry) ExcessConfirmations() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.excessConfirmations
}

// Gateway returns the registered gateway address.
func (r *Registry) Gateway() common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.gateway
}

// WrappedAssetAdmin returns the wrapped-asset admin address.
func (r *Registry) WrappedAssetAdmin() common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.wrappedAssetAdmin
}

// OracleCount returns the number of registered oracles.
func (r *Registry) OracleCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.oracles)
}

// Oracles returns the registered oracle addresses in registration order.
func (r *Registry) Oracles() []common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]common.Address, len(r.order))
	copy(out, r.order)

	return out
}

// persistOracle writes an oracle record. Caller holds the lock.
func (r *Registry) persistOracle(addr common.Address, required bool) error {
	if r.db == nil {
		return nil
	}

	v := []byte{0}
	if required {
		v[0] = 1
	}

	return r.db.Set(oracleKey(addr), v)
}

// persistAdmin writes an admin record.
func (r *Registry) persistAdmin(addr common.Address) error {
	if r.db == nil {
		return nil
	}

	key := append(append([]byte{}, prefixAdmin...), addr.Bytes()...)

	return r.db.Set(key, []byte{1})
}

// persistUint writes an 8-byte config value. Caller holds the lock.
func (r *Registry) persistUint(key []byte, n uint64) error {
	if r.db == nil {
		return nil
	}

	var v [8]byte
	binary.BigEndian.PutUint64(v[:], n)

	return r.db.Set(key, v[:])
}

// oracleKey builds the storage key for an oracle record.
func oracleKey(addr common.Address) []byte {
	return append(append([]byte{}, prefixOracle...), addr.Bytes()...)
}
