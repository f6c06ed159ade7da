package integration

import (
	"net/http/httptest"
	"strings"
	"testing"

	"QuorumGate/client"
	"QuorumGate/internal/api"
	"QuorumGate/internal/oracle"
	"QuorumGate/internal/quorum"
	"QuorumGate/internal/storage"

	"github.com/ethereum/go-ethereum/common"
)

// TestNode is an in-process engine with its HTTP boundary exposed.
type TestNode struct {
	DataDir  string
	Storage  *storage.Storage
	Registry *oracle.Registry
	Agg      *quorum.Aggregator
	Heights  *quorum.ManualHeight
	Server   *httptest.Server
	Client   *client.Client
	Admin    common.Address
}

// startNode builds a full engine stack over a fresh data directory and
// serves its HTTP API on a loopback port.
func startNode(t *testing.T, dataDir string, params oracle.Params, escalation bool) *TestNode {
	t.Helper()

	db, err := storage.Open(dataDir)
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}

	admin := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	reg, err := oracle.Open(db, admin, params)
	if err != nil {
		db.Close()
		t.Fatalf("open registry: %v", err)
	}

	var policy quorum.EscalationPolicy
	if escalation {
		p, err := quorum.NewBlockEscalation(reg, db)
		if err != nil {
			db.Close()
			t.Fatalf("create escalation: %v", err)
		}
		policy = p
	}

	heights := &quorum.ManualHeight{}

	agg, err := quorum.New(reg, db, policy, heights)
	if err != nil {
		db.Close()
		t.Fatalf("create aggregator: %v", err)
	}

	srv := httptest.NewServer(api.New(":0", agg, reg, db).Handler())

	node := &TestNode{
		DataDir:  dataDir,
		Storage:  db,
		Registry: reg,
		Agg:      agg,
		Heights:  heights,
		Server:   srv,
		Client:   client.NewClient(strings.TrimPrefix(srv.URL, "http://")),
		Admin:    admin,
	}

	t.Cleanup(func() { node.Stop(t) })

	return node
}

// Stop shuts the node down. Safe to call more than once.
func (n *TestNode) Stop(t *testing.T) {
	t.Helper()

	if n.Server != nil {
		n.Server.Close()
		n.Server = nil
	}

	if n.Storage != nil {
		if err := n.Storage.Close(); err != nil {
			t.Errorf("close storage: %v", err)
		}
		n.Storage = nil
	}
}

// newOracles creates and registers the given number of oracle keypairs.
func newOracles(t *testing.T, node *TestNode, count int) []*client.Oracle {
	t.Helper()

	oracles := make([]*client.Oracle, count)
	addrs := make([]common.Address, count)
	required := make([]bool, count)

	for i := range oracles {
		o, err := client.NewOracle()
		if err != nil {
			t.Fatalf("create oracle %d: %v", i, err)
		}
		oracles[i] = o
		addrs[i] = o.Address()
	}

	if err := node.Client.AddOracles(node.Admin, addrs, required); err != nil {
		t.Fatalf("register oracles: %v", err)
	}

	return oracles
}
