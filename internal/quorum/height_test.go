package quorum

import (
	"testing"
	"time"
)

func TestBlockClockSurvivesRestart(t *testing.T) {
	// Two clocks created at different moments stand in for the same
	// engine before and after a restart. Heights come from absolute
	// wall time, so the second clock continues where the first one is
	// rather than restarting at zero over persisted block tallies.
	before := NewBlockClock(time.Minute)
	after := NewBlockClock(time.Minute)

	h1, h2 := before.Height(), after.Height()
	if h1 == 0 || h2 == 0 {
		t.Fatalf("heights %d/%d, want epoch-anchored nonzero heights", h1, h2)
	}

	diff := h2 - h1
	if h1 > h2 {
		diff = h1 - h2
	}
	if diff > 1 {
		t.Errorf("clocks disagree by %d heights, want at most 1", diff)
	}
}

func TestBlockClockIsMonotone(t *testing.T) {
	c := NewBlockClock(time.Millisecond)

	h1 := c.Height()
	h2 := c.Height()
	if h2 < h1 {
		t.Errorf("height went backwards: %d then %d", h1, h2)
	}
}

func TestManualHeight(t *testing.T) {
	var m ManualHeight

	if m.Height() != 0 {
		t.Errorf("zero value height = %d, want 0", m.Height())
	}

	m.Set(7)
	m.Advance()

	if m.Height() != 8 {
		t.Errorf("height = %d, want 8", m.Height())
	}
}
