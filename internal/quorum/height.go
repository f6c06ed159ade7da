package quorum

import (
	"sync/atomic"
	"time"
)

// HeightSource supplies the current block height governing escalation.
// Votes processed while the source reports height H are attributed to
// block H's confirmation density.
type HeightSource interface {
	Height() uint64
}

// BlockClock derives block heights from absolute wall time at a fixed
// interval. Heights are monotone across process restarts, so persisted
// block tallies from an earlier run are never aliased by a fresh run's
// crossings.
type BlockClock struct {
	interval time.Duration
}

// NewBlockClock creates a clock advancing one height per interval.
func NewBlockClock(interval time.Duration) *BlockClock {
	if interval <= 0 {
		interval = time.Second
	}

	return &BlockClock{interval: interval}
}

// Height returns the current block height.
func (c *BlockClock) Height() uint64 {
	return uint64(time.Now().UnixNano() / int64(c.interval))
}

// ManualHeight is a host-driven height source. The zero value starts at
// height 0.
type ManualHeight struct {
	h atomic.Uint64
}

// Height returns the current height.
func (m *ManualHeight) Height() uint64 {
	return m.h.Load()
}

// Set moves the source to the given height.
func (m *ManualHeight) Set(h uint64) {
	m.h.Store(h)
}

// Advance moves the source forward by one height.
func (m *ManualHeight) Advance() {
	m.h.Add(1)
}
