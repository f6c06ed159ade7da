package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"QuorumGate/internal/api"
	"QuorumGate/internal/logger"
	"QuorumGate/internal/oracle"
	"QuorumGate/internal/quorum"
	"QuorumGate/internal/storage"
)

// Node represents a running confirmation engine.
type Node struct {
	cfg      *Config
	storage  *storage.Storage
	registry *oracle.Registry
	agg      *quorum.Aggregator
	api      *api.Server
}

// NewNode creates and initializes the engine.
func NewNode(cfg *Config) (*Node, error) {
	n := &Node{cfg: cfg}

	if err := n.initStorage(); err != nil {
		return nil, err
	}

	if err := n.initRegistry(); err != nil {
		n.Close()
		return nil, err
	}

	if err := n.initAggregator(); err != nil {
		n.Close()
		return nil, err
	}

	return n, nil
}

// initStorage initializes the Pebble storage.
func (n *Node) initStorage() error {
	if err := os.MkdirAll(n.cfg.DataPath, 0755); err != nil {
		return fmt.Errorf("create data directory:\n%w", err)
	}

	db, err := storage.Open(n.cfg.DataPath + "/db")
	if err != nil {
		return fmt.Errorf("init storage:\n%w", err)
	}

	n.storage = db

	return nil
}

// initRegistry opens the oracle registry, reloading persisted state.
func (n *Node) initRegistry() error {
	reg, err := oracle.Open(n.storage, n.cfg.Admin, oracle.Params{
		MinConfirmations:      n.cfg.MinConfirmations,
		ConfirmationThreshold: n.cfg.ConfirmationThreshold,
		ExcessConfirmations:   n.cfg.ExcessConfirmations,
	})
	if err != nil {
		return fmt.Errorf("init registry:\n%w", err)
	}

	n.registry = reg

	return nil
}

// initAggregator builds the confirmation engine on top of the registry.
func (n *Node) initAggregator() error {
	var policy quorum.EscalationPolicy

	if n.cfg.Escalation {
		p, err := quorum.NewBlockEscalation(n.registry, n.storage)
		if err != nil {
			return fmt.Errorf("init escalation:\n%w", err)
		}
		policy = p
	}

	agg, err := quorum.New(n.registry, n.storage, policy, quorum.NewBlockClock(n.cfg.BlockInterval))
	if err != nil {
		return fmt.Errorf("init aggregator:\n%w", err)
	}

	n.agg = agg

	return nil
}

// Run starts the HTTP API and blocks until shutdown.
func (n *Node) Run() error {
	n.api = api.New(n.cfg.HTTPAddress, n.agg, n.registry, n.storage)
	if err := n.api.Start(); err != nil {
		return fmt.Errorf("start api:\n%w", err)
	}

	return n.waitForShutdown()
}

// waitForShutdown blocks until SIGINT or SIGTERM.
func (n *Node) waitForShutdown() error {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	s := <-sig
	logger.Info("shutting down", "signal", s.String())

	return n.Close()
}

// Close releases all resources in reverse initialization order.
func (n *Node) Close() error {
	if n.api != nil {
		n.api.Stop()
	}

	if n.storage != nil {
		n.storage.Close()
	}

	return nil
}
