package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fipslab/fips/internal/executor"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: fips <experiment.yaml>")
		os.Exit(1)
	}

	configPath := os.Args[1]

	// Escape and Ctrl-C both end the session after the current frame
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	defer func() {
		signal.Stop(sigChan)
		cancel()
	}()

	go func() {
		sig := <-sigChan
		slog.Info("interrupt received, ending session...", "signal", sig)
		cancel()
	}()

	result, err := executor.RunFromConfig(ctx, configPath)
	if err != nil {
		slog.Error("session failed", "error", err)
		os.Exit(1)
	}

	// Print summary
	fmt.Printf("\nSession: %s (sub-%s ses-%s)\n", result.SessionID, result.Subject, result.Session)
	fmt.Printf("Total trials: %d\n", result.TotalTrials)
	fmt.Printf("Responses: %d\n", result.ResponseTrials)
	fmt.Printf("No response: %d\n", result.NoResponseTrials)
	fmt.Printf("Aborted: %d (requeued %d)\n", result.AbortedTrials, result.RequeuedTrials)
	fmt.Printf("Mean latency: %.1fms\n", result.MeanLatencyMs)
	fmt.Printf("Duration: %.2fs\n", result.TotalDurationSec)
	for _, f := range result.Files {
		fmt.Printf("  %s\n", f)
	}

	if result.Cancelled {
		os.Exit(1)
	}
}
