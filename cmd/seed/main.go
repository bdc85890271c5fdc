// Command seed replaces the ballot's candidates.
//
// Usage:
//
//	seed                      # load the built-in sample ballot
//	seed -file ballot.json    # load candidates from a JSON array
//
// The JSON file is an array of objects with name, description, photoUrl and
// externalProfileUrl. Seeding is refused once any vote has been cast.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sakif/ballot/internal/config"
	"github.com/sakif/ballot/internal/database"
	"github.com/sakif/ballot/internal/model"
	"github.com/sakif/ballot/internal/service"
)

var sampleBallot = []model.Candidate{
	{
		Name:               "Lee Paul Anto",
		Description:        "Focusing on AI-driven Healthcare solutions for rural areas. Leveraging machine learning to predict outbreaks.",
		PhotoURL:           "https://images.unsplash.com/photo-1472099645785-5658abf4ff4e",
		ExternalProfileURL: "https://www.linkedin.com/in/lee-paul-anto-57ba7b326",
	},
	{
		Name:               "Raina Shaju",
		Description:        "Developing sustainable waste management using IoT sensors. Smart cities initiative for cleaner streets.",
		PhotoURL:           "https://images.unsplash.com/photo-1472099645785-5658abf4ff4e",
		ExternalProfileURL: "https://www.linkedin.com/in/raina-shaju-9b1697335",
	},
}

func main() {
	file := flag.String("file", "", "JSON file with the candidates (default: built-in sample ballot)")
	flag.Parse()

	if err := run(*file); err != nil {
		fmt.Fprintln(os.Stderr, "seed:", err)
		os.Exit(1)
	}
}

func run(file string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := cfg.NewLogger()

	candidates, err := loadCandidates(file)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	store, err := database.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	election := service.NewElectionService(store, store, store, logger)
	if err := election.SeedCandidates(ctx, candidates); err != nil {
		return err
	}

	for _, c := range candidates {
		logger.Info("candidate", slog.String("id", c.ID), slog.String("name", c.Name))
	}
	return nil
}

func loadCandidates(file string) ([]model.Candidate, error) {
	if file == "" {
		out := make([]model.Candidate, len(sampleBallot))
		copy(out, sampleBallot)
		return out, nil
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	var candidates []model.Candidate
	if err := json.Unmarshal(data, &candidates); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", file, err)
	}
	return candidates, nil
}
