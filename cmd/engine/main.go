package main

import (
	"fmt"
	"os"

	"QuorumGate/internal/logger"
)

func main() {
	logger.Init()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main entry point with error handling.
func run() error {
	cfg, err := parseFlags()
	if err != nil {
		return err
	}

	node, err := NewNode(cfg)
	if err != nil {
		return fmt.Errorf("create node:\n%w", err)
	}

	printStartupInfo(cfg)

	return node.Run()
}

// printStartupInfo displays engine configuration at startup.
func printStartupInfo(cfg *Config) {
	logger.Info("starting QuorumGate engine",
		"http", cfg.HTTPAddress,
		"data", cfg.DataPath,
		"admin", cfg.Admin.Hex(),
		"min_confirmations", cfg.MinConfirmations,
		"confirmation_threshold", cfg.ConfirmationThreshold,
		"excess_confirmations", cfg.ExcessConfirmations,
		"escalation", cfg.Escalation,
	)
}
