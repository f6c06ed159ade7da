package quorum

import (
	"crypto/ecdsa"
	"errors"
	"testing"

	"QuorumGate/internal/ident"
	"QuorumGate/internal/oracle"
	"QuorumGate/internal/sigverify"
	"QuorumGate/internal/storage"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

type testEnv struct {
	reg     *oracle.Registry
	agg     *Aggregator
	heights *ManualHeight
	admin   common.Address
	keys    []*ecdsa.PrivateKey
	addrs   []common.Address
}

func newTestEnv(t *testing.T, oracles int, params oracle.Params, policy EscalationPolicy) *testEnv {
	t.Helper()

	admin := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	reg, err := oracle.Open(nil, admin, params)
	if err != nil {
		t.Fatalf("open registry: %v", err)
	}

	env := &testEnv{
		reg:     reg,
		heights: &ManualHeight{},
		admin:   admin,
	}

	for i := 0; i < oracles; i++ {
		key, err := crypto.GenerateKey()
		if err != nil {
			t.Fatalf("generate key %d: %v", i, err)
		}

		addr := crypto.PubkeyToAddress(key.PublicKey)
		if err := reg.AddOracle(admin, addr, false); err != nil {
			t.Fatalf("add oracle %d: %v", i, err)
		}

		env.keys = append(env.keys, key)
		env.addrs = append(env.addrs, addr)
	}

	agg, err := New(reg, nil, policy, env.heights)
	if err != nil {
		t.Fatalf("create aggregator: %v", err)
	}
	env.agg = agg

	return env
}

func (e *testEnv) sign(t *testing.T, id [32]byte, oracleIdx int) []byte {
	t.Helper()

	sig, err := sigverify.Sign(id, e.keys[oracleIdx])
	if err != nil {
		t.Fatalf("sign with oracle %d: %v", oracleIdx, err)
	}

	return sig
}

func testSubmissionID(b byte) ident.SubmissionID {
	var id ident.SubmissionID
	id[0] = b
	return id
}

func TestSubmitAccumulatesAndApproves(t *testing.T) {
	env := newTestEnv(t, 4, oracle.Params{MinConfirmations: 3, ConfirmationThreshold: 10, ExcessConfirmations: 6}, nil)
	id := testSubmissionID(1)

	for i := 0; i < 2; i++ {
		count, approved, err := env.agg.Submit(id, env.sign(t, id, i))
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		if count != uint64(i+1) {
			t.Errorf("confirmations after vote %d = %d, want %d", i, count, i+1)
		}
		if approved {
			t.Errorf("approved after %d votes, want 3 required", i+1)
		}
	}

	count, approved, err := env.agg.Submit(id, env.sign(t, id, 2))
	if err != nil {
		t.Fatalf("third submit: %v", err)
	}
	if count != 3 || !approved {
		t.Errorf("after third vote: count=%d approved=%v, want 3/true", count, approved)
	}

	if count, approved := env.agg.Status(id); count != 3 || !approved {
		t.Errorf("status: count=%d approved=%v, want 3/true", count, approved)
	}
}

func TestSubmitRejectsDuplicateVote(t *testing.T) {
	env := newTestEnv(t, 2, oracle.Params{MinConfirmations: 2, ConfirmationThreshold: 10, ExcessConfirmations: 4}, nil)
	id := testSubmissionID(2)

	if _, _, err := env.agg.Submit(id, env.sign(t, id, 0)); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	count, _, err := env.agg.Submit(id, env.sign(t, id, 0))
	if !errors.Is(err, ErrAlreadyVoted) {
		t.Fatalf("duplicate vote error = %v, want ErrAlreadyVoted", err)
	}
	if count != 1 {
		t.Errorf("duplicate vote reported count=%d, want current tally 1", count)
	}

	if count, _ := env.agg.Status(id); count != 1 {
		t.Errorf("confirmations after duplicate = %d, want 1", count)
	}
}

func TestSubmitRejectsUnknownSigner(t *testing.T) {
	env := newTestEnv(t, 1, oracle.Params{MinConfirmations: 1, ConfirmationThreshold: 10, ExcessConfirmations: 2}, nil)
	id := testSubmissionID(3)

	stranger, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	sig, err := sigverify.Sign(id, stranger)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, _, err := env.agg.Submit(id, sig); !errors.Is(err, oracle.ErrNotAnOracle) {
		t.Fatalf("unknown signer error = %v, want ErrNotAnOracle", err)
	}

	if count, _ := env.agg.Status(id); count != 0 {
		t.Errorf("rejected vote left confirmations = %d, want 0", count)
	}
}

func TestSubmitRejectsMalformedSignature(t *testing.T) {
	env := newTestEnv(t, 1, oracle.Params{MinConfirmations: 1, ConfirmationThreshold: 10, ExcessConfirmations: 2}, nil)
	id := testSubmissionID(4)

	if _, _, err := env.agg.Submit(id, make([]byte, 64)); !errors.Is(err, sigverify.ErrInvalidSignatureLength) {
		t.Fatalf("short signature error = %v, want ErrInvalidSignatureLength", err)
	}
}

func TestApprovalIsMonotone(t *testing.T) {
	env := newTestEnv(t, 4, oracle.Params{MinConfirmations: 2, ConfirmationThreshold: 10, ExcessConfirmations: 4}, nil)
	id := testSubmissionID(5)

	for i := 0; i < 2; i++ {
		if _, _, err := env.agg.Submit(id, env.sign(t, id, i)); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	for i := 2; i < 4; i++ {
		count, approved, err := env.agg.Submit(id, env.sign(t, id, i))
		if err != nil {
			t.Fatalf("extra submit %d: %v", i, err)
		}
		if !approved {
			t.Errorf("approval lost at %d confirmations", count)
		}
	}
}

func TestSubmitManyLengthMismatch(t *testing.T) {
	env := newTestEnv(t, 1, oracle.Params{MinConfirmations: 1, ConfirmationThreshold: 10, ExcessConfirmations: 2}, nil)

	err := env.agg.SubmitMany([]ident.SubmissionID{testSubmissionID(6)}, nil)
	if !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("error = %v, want ErrLengthMismatch", err)
	}
}

func TestSubmitManyKeepsEarlierItems(t *testing.T) {
	env := newTestEnv(t, 2, oracle.Params{MinConfirmations: 2, ConfirmationThreshold: 10, ExcessConfirmations: 4}, nil)
	a, b := testSubmissionID(7), testSubmissionID(8)

	if _, _, err := env.agg.Submit(b, env.sign(t, b, 0)); err != nil {
		t.Fatalf("seed vote: %v", err)
	}

	// Second item is a duplicate vote; first must stick regardless.
	err := env.agg.SubmitMany(
		[]ident.SubmissionID{a, b},
		[][]byte{env.sign(t, a, 0), env.sign(t, b, 0)},
	)
	if !errors.Is(err, ErrAlreadyVoted) {
		t.Fatalf("error = %v, want ErrAlreadyVoted", err)
	}

	if count, _ := env.agg.Status(a); count != 1 {
		t.Errorf("first item confirmations = %d, want 1", count)
	}
}

func TestStatusUnknownSubmission(t *testing.T) {
	env := newTestEnv(t, 1, oracle.Params{MinConfirmations: 1, ConfirmationThreshold: 10, ExcessConfirmations: 2}, nil)

	if count, approved := env.agg.Status(testSubmissionID(9)); count != 0 || approved {
		t.Errorf("unknown submission: count=%d approved=%v, want 0/false", count, approved)
	}
}

func TestBlockEscalationRaisesThreshold(t *testing.T) {
	params := oracle.Params{MinConfirmations: 3, ConfirmationThreshold: 2, ExcessConfirmations: 5}
	env := newTestEnv(t, 6, params, nil)

	policy, err := NewBlockEscalation(env.reg, nil)
	if err != nil {
		t.Fatalf("create policy: %v", err)
	}
	env.agg.policy = policy

	env.heights.Set(7)
	a, b := testSubmissionID(10), testSubmissionID(11)

	// First submission crosses the base threshold at block 7. The
	// block is not hot yet, so three confirmations approve it.
	for i := 0; i < 3; i++ {
		if _, _, err := env.agg.Submit(a, env.sign(t, a, i)); err != nil {
			t.Fatalf("submit a/%d: %v", i, err)
		}
	}
	if _, approved := env.agg.Status(a); !approved {
		t.Fatal("first crossing should approve before escalation")
	}

	// Second crossing in the same block trips the density flag.
	for i := 0; i < 3; i++ {
		if _, _, err := env.agg.Submit(b, env.sign(t, b, i)); err != nil {
			t.Fatalf("submit b/%d: %v", i, err)
		}
	}

	// Both submissions are governed by block 7 and now need five.
	if _, approved := env.agg.Status(a); approved {
		t.Error("escalation should retract approval of earlier crossing")
	}
	if _, approved := env.agg.Status(b); approved {
		t.Error("second crossing should not approve under escalation")
	}

	for i := 3; i < 5; i++ {
		if _, _, err := env.agg.Submit(a, env.sign(t, a, i)); err != nil {
			t.Fatalf("extra submit a/%d: %v", i, err)
		}
	}
	if count, approved := env.agg.Status(a); count != 5 || !approved {
		t.Errorf("after 5 votes: count=%d approved=%v, want 5/true", count, approved)
	}

	// A crossing in a later, quiet block keeps the base threshold.
	env.heights.Set(8)
	c := testSubmissionID(12)
	for i := 0; i < 3; i++ {
		if _, _, err := env.agg.Submit(c, env.sign(t, c, i)); err != nil {
			t.Fatalf("submit c/%d: %v", i, err)
		}
	}
	if _, approved := env.agg.Status(c); !approved {
		t.Error("quiet block crossing should approve at base threshold")
	}
}

func TestRestartRestoresState(t *testing.T) {
	dir := t.TempDir()

	db, err := storage.Open(dir)
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}

	admin := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	params := oracle.Params{MinConfirmations: 2, ConfirmationThreshold: 10, ExcessConfirmations: 4}

	reg, err := oracle.Open(db, admin, params)
	if err != nil {
		t.Fatalf("open registry: %v", err)
	}

	var keys []*ecdsa.PrivateKey
	for i := 0; i < 3; i++ {
		key, err := crypto.GenerateKey()
		if err != nil {
			t.Fatalf("generate key: %v", err)
		}
		if err := reg.AddOracle(admin, crypto.PubkeyToAddress(key.PublicKey), false); err != nil {
			t.Fatalf("add oracle: %v", err)
		}
		keys = append(keys, key)
	}

	agg, err := New(reg, db, nil, &ManualHeight{})
	if err != nil {
		t.Fatalf("create aggregator: %v", err)
	}

	id := testSubmissionID(13)
	for i := 0; i < 2; i++ {
		sig, err := sigverify.Sign(id, keys[i])
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		if _, _, err := agg.Submit(id, sig); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	if err := db.Close(); err != nil {
		t.Fatalf("close storage: %v", err)
	}

	db2, err := storage.Open(dir)
	if err != nil {
		t.Fatalf("reopen storage: %v", err)
	}
	defer db2.Close()

	reg2, err := oracle.Open(db2, admin, params)
	if err != nil {
		t.Fatalf("reopen registry: %v", err)
	}

	agg2, err := New(reg2, db2, nil, &ManualHeight{})
	if err != nil {
		t.Fatalf("recreate aggregator: %v", err)
	}

	if count, approved := agg2.Status(id); count != 2 || !approved {
		t.Errorf("restored status: count=%d approved=%v, want 2/true", count, approved)
	}

	// Replay of a recorded vote stays rejected after restart.
	sig, err := sigverify.Sign(id, keys[0])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, _, err := agg2.Submit(id, sig); !errors.Is(err, ErrAlreadyVoted) {
		t.Errorf("replayed vote error = %v, want ErrAlreadyVoted", err)
	}

	// A fresh oracle's vote still lands on the restored record.
	sig, err = sigverify.Sign(id, keys[2])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if count, _, err := agg2.Submit(id, sig); err != nil || count != 3 {
		t.Errorf("fresh vote after restart: count=%d err=%v, want 3/nil", count, err)
	}
}
