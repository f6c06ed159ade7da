package quorum

import (
	"encoding/binary"
	"fmt"
	"sync"

	"QuorumGate/internal/ident"
	"QuorumGate/internal/logger"
	"QuorumGate/internal/oracle"
	"QuorumGate/internal/storage"
)

// EscalationPolicy decides the effective approval threshold for a
// submission from the block in which it first reached the base
// threshold.
type EscalationPolicy interface {
	// RecordCrossing notes that a submission first reached the base
	// threshold at the given height.
	RecordCrossing(id ident.SubmissionID, height uint64)

	// Threshold returns the confirmations required for a submission
	// governed by the given height. base is the current minimum
	// confirmation count.
	Threshold(base uint64, height uint64) uint64
}

// NoEscalation always answers the base threshold. It is the policy of
// the plain aggregator variant.
type NoEscalation struct{}

// RecordCrossing is a no-op.
func (NoEscalation) RecordCrossing(ident.SubmissionID, uint64) {}

// Threshold returns base unchanged.
func (NoEscalation) Threshold(base uint64, _ uint64) uint64 { return base }

// blockTally tracks confirmation density for one block height.
type blockTally struct {
	count             uint64                        // count of distinct submissions that first crossed the base threshold here
	requireExtraCheck bool                          // one-way escalation flag
	confirmed         map[ident.SubmissionID]bool   // guards against double counting a submission
}

// BlockEscalation escalates the approval bar under high observed
// activity: once confirmationThreshold distinct submissions cross the
// base threshold within one block, every submission governed by that
// block requires excessConfirmations instead. The flag is one-way for
// the lifetime of the block record.
type BlockEscalation struct {
	mu       sync.Mutex
	registry *oracle.Registry // registry supplies confirmationThreshold and excessConfirmations
	db       *storage.Storage // db persists block tallies (nil for ephemeral policies)
	blocks   map[uint64]*blockTally
}

// blockKeyPrefix is the storage prefix for block tallies.
var blockKeyPrefix = []byte("b:")

// NewBlockEscalation creates the block-density policy, reloading any
// persisted block tallies.
func NewBlockEscalation(registry *oracle.Registry, db *storage.Storage) (*BlockEscalation, error) {
	p := &BlockEscalation{
		registry: registry,
		db:       db,
		blocks:   make(map[uint64]*blockTally),
	}

	if db != nil {
		if err := p.load(); err != nil {
			return nil, fmt.Errorf("load block tallies:\n%w", err)
		}
	}

	return p, nil
}

// RecordCrossing counts a submission toward its governing block's
// density and raises the escalation flag when the block gets hot.
func (p *BlockEscalation) RecordCrossing(id ident.SubmissionID, height uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tally := p.blocks[height]
	if tally == nil {
		tally = &blockTally{confirmed: make(map[ident.SubmissionID]bool)}
		p.blocks[height] = tally
	}

	if tally.confirmed[id] {
		return
	}

	tally.confirmed[id] = true
	tally.count++

	if !tally.requireExtraCheck && tally.count >= p.registry.ConfirmationThreshold() {
		tally.requireExtraCheck = true
		logger.Warn("block escalated",
			"height", height,
			"crossings", tally.count,
			"excess_confirmations", p.registry.ExcessConfirmations(),
		)
	}

	p.persist(height, tally)
}

// Threshold answers excessConfirmations when the governing block has
// escalated, base otherwise.
func (p *BlockEscalation) Threshold(base uint64, height uint64) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	tally := p.blocks[height]
	if tally != nil && tally.requireExtraCheck {
		return p.registry.ExcessConfirmations()
	}

	return base
}

// persist writes a block tally. Caller holds the lock.
func (p *BlockEscalation) persist(height uint64, tally *blockTally) {
	if p.db == nil {
		return
	}

	if err := p.db.Set(blockKey(height), encodeTally(tally)); err != nil {
		logger.Error("persist block tally failed", "height", height, "error", err)
	}
}

// load rebuilds block tallies from storage.
func (p *BlockEscalation) load() error {
	return p.db.IteratePrefix(blockKeyPrefix, func(key, value []byte) error {
		if len(key) != len(blockKeyPrefix)+8 {
			return nil
		}

		height := binary.BigEndian.Uint64(key[len(blockKeyPrefix):])

		tally, err := decodeTally(value)
		if err != nil {
			return fmt.Errorf("block %d:\n%w", height, err)
		}

		p.blocks[height] = tally

		return nil
	})
}

// blockKey builds the storage key for a block tally.
// Format: "b:" [8B height]
func blockKey(height uint64) []byte {
	key := make([]byte, len(blockKeyPrefix)+8)
	copy(key, blockKeyPrefix)
	binary.BigEndian.PutUint64(key[len(blockKeyPrefix):], height)

	return key
}

// encodeTally serializes a block tally.
// Format: [8B count] [1B flag] [4B n] [32B submission id] × n
func encodeTally(t *blockTally) []byte {
	buf := make([]byte, 8+1+4+32*len(t.confirmed))

	binary.BigEndian.PutUint64(buf[0:8], t.count)

	if t.requireExtraCheck {
		buf[8] = 1
	}

	binary.BigEndian.PutUint32(buf[9:13], uint32(len(t.confirmed)))

	off := 13
	for id := range t.confirmed {
		copy(buf[off:off+32], id[:])
		off += 32
	}

	return buf
}

// decodeTally deserializes a block tally.
func decodeTally(data []byte) (*blockTally, error) {
	if len(data) < 13 {
		return nil, fmt.Errorf("tally record too short: %d < 13", len(data))
	}

	t := &blockTally{
		count:             binary.BigEndian.Uint64(data[0:8]),
		requireExtraCheck: data[8] == 1,
		confirmed:         make(map[ident.SubmissionID]bool),
	}

	n := binary.BigEndian.Uint32(data[9:13])

	if len(data) < 13+int(n)*32 {
		return nil, fmt.Errorf("tally record truncated: need %d, have %d", 13+n*32, len(data))
	}

	off := 13
	for i := uint32(0); i < n; i++ {
		var id ident.SubmissionID
		copy(id[:], data[off:off+32])
		t.confirmed[id] = true
		off += 32
	}

	return t, nil
}
