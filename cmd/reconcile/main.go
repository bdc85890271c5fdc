// Command reconcile rebuilds derived vote state from the votes table.
//
// Each identity's hasVoted/votedFor and each candidate's voteCount are
// recomputed from the ledger rows. Safe to run against a live server; it
// runs in one transaction.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sakif/ballot/internal/config"
	"github.com/sakif/ballot/internal/database"
	"github.com/sakif/ballot/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "reconcile:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := cfg.NewLogger()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	store, err := database.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	report, err := service.NewElectionService(store, store, store, logger).Reconcile(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("identities fixed: %d\ncandidates fixed: %d\n", report.Identities, report.Candidates)
	return nil
}
