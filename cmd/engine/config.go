package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config holds the engine configuration.
type Config struct {
	// DataPath is the directory for persistent storage.
	DataPath string

	// HTTPAddress is the HTTP API listen address.
	HTTPAddress string

	// Admin is the bootstrap admin address.
	Admin common.Address

	// MinConfirmations is the base approval threshold.
	MinConfirmations uint64

	// ConfirmationThreshold is the per-block crossing count that
	// triggers escalation.
	ConfirmationThreshold uint64

	// ExcessConfirmations is the escalated approval threshold.
	ExcessConfirmations uint64

	// BlockInterval is the duration of one escalation block.
	BlockInterval time.Duration

	// Escalation enables the block-density escalation policy.
	Escalation bool
}

// parseFlags parses command-line flags into Config.
func parseFlags() (*Config, error) {
	cfg := &Config{}
	var admin string

	flag.StringVar(&cfg.DataPath, "data", "./data", "Data directory path")
	flag.StringVar(&cfg.HTTPAddress, "http", ":8080", "HTTP API address")
	flag.StringVar(&admin, "admin", "", "Bootstrap admin address (hex, required)")
	flag.Uint64Var(&cfg.MinConfirmations, "min-confirmations", 3, "Base approval threshold")
	flag.Uint64Var(&cfg.ConfirmationThreshold, "confirmation-threshold", 5, "Per-block crossings that trigger escalation")
	flag.Uint64Var(&cfg.ExcessConfirmations, "excess-confirmations", 7, "Escalated approval threshold")
	flag.DurationVar(&cfg.BlockInterval, "block-interval", 15*time.Second, "Escalation block duration")
	flag.BoolVar(&cfg.Escalation, "escalation", true, "Enable block-density escalation")
	flag.Parse()

	if !common.IsHexAddress(admin) {
		return nil, fmt.Errorf("invalid or missing -admin address: %q", admin)
	}
	cfg.Admin = common.HexToAddress(admin)

	if cfg.MinConfirmations == 0 {
		return nil, fmt.Errorf("-min-confirmations must be positive")
	}

	if cfg.Escalation && cfg.ExcessConfirmations < cfg.MinConfirmations {
		return nil, fmt.Errorf("-excess-confirmations must be at least -min-confirmations")
	}

	return cfg, nil
}
