package quorum

import (
	"testing"

	"QuorumGate/internal/oracle"
	"QuorumGate/internal/storage"

	"github.com/ethereum/go-ethereum/common"
)

func newTestPolicy(t *testing.T, db *storage.Storage) *BlockEscalation {
	t.Helper()

	admin := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	reg, err := oracle.Open(nil, admin, oracle.Params{
		MinConfirmations:      3,
		ConfirmationThreshold: 2,
		ExcessConfirmations:   5,
	})
	if err != nil {
		t.Fatalf("open registry: %v", err)
	}

	policy, err := NewBlockEscalation(reg, db)
	if err != nil {
		t.Fatalf("create policy: %v", err)
	}

	return policy
}

func TestNoEscalationThreshold(t *testing.T) {
	var p NoEscalation

	p.RecordCrossing(testSubmissionID(1), 5)
	p.RecordCrossing(testSubmissionID(2), 5)

	if got := p.Threshold(3, 5); got != 3 {
		t.Errorf("threshold = %d, want base 3", got)
	}
}

func TestBlockEscalationFlagsHotBlock(t *testing.T) {
	p := newTestPolicy(t, nil)

	p.RecordCrossing(testSubmissionID(1), 9)
	if got := p.Threshold(3, 9); got != 3 {
		t.Errorf("after one crossing: threshold = %d, want 3", got)
	}

	p.RecordCrossing(testSubmissionID(2), 9)
	if got := p.Threshold(3, 9); got != 5 {
		t.Errorf("after two crossings: threshold = %d, want 5", got)
	}

	// Other blocks stay at the base threshold.
	if got := p.Threshold(3, 10); got != 3 {
		t.Errorf("unrelated block: threshold = %d, want 3", got)
	}
}

func TestBlockEscalationDeduplicatesSubmissions(t *testing.T) {
	p := newTestPolicy(t, nil)

	// The same submission recorded twice counts once.
	p.RecordCrossing(testSubmissionID(1), 4)
	p.RecordCrossing(testSubmissionID(1), 4)

	if got := p.Threshold(3, 4); got != 3 {
		t.Errorf("threshold = %d, want 3 after single distinct crossing", got)
	}
}

func TestBlockEscalationPersists(t *testing.T) {
	dir := t.TempDir()

	db, err := storage.Open(dir)
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}

	p := newTestPolicy(t, db)
	p.RecordCrossing(testSubmissionID(1), 12)
	p.RecordCrossing(testSubmissionID(2), 12)

	if err := db.Close(); err != nil {
		t.Fatalf("close storage: %v", err)
	}

	db2, err := storage.Open(dir)
	if err != nil {
		t.Fatalf("reopen storage: %v", err)
	}
	defer db2.Close()

	p2 := newTestPolicy(t, db2)
	if got := p2.Threshold(3, 12); got != 5 {
		t.Errorf("restored threshold = %d, want 5", got)
	}

	// Restored dedupe set still guards against double counting.
	p2.RecordCrossing(testSubmissionID(1), 13)
	p2.RecordCrossing(testSubmissionID(1), 13)
	if got := p2.Threshold(3, 13); got != 3 {
		t.Errorf("block 13 threshold = %d, want 3", got)
	}
}
