// Command train loads resolved tickets per team from the tracker into the
// vector store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/teamtriage/backend/internal/app"
	"github.com/teamtriage/backend/internal/config"
	"github.com/teamtriage/backend/internal/service"
	"github.com/teamtriage/backend/internal/vectorstore"
)

func main() {
	days := pflag.Int("days", 180, "how many days of history to fetch per team")
	teams := pflag.StringSlice("teams", nil, "team slugs to fetch (default: TEAMS)")
	statsOnly := pflag.Bool("stats", false, "print stored tickets per team and exit")
	dryRun := pflag.Bool("dry-run", false, "fetch from the tracker without storing")
	pflag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	zerolog.TimeFieldFormat = time.RFC3339
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	logger := log.Level(level).With().Str("service", cfg.AppName+"-train").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise components")
	}
	defer c.Close()

	if *statsOnly {
		if err := printStats(ctx, c.Vectors, cfg.TeamMetadataKey); err != nil {
			logger.Fatal().Err(err).Msg("failed to read vector store")
		}
		return
	}

	slugs := *teams
	if len(slugs) == 0 {
		slugs = cfg.TeamList()
	}
	names := service.NewTeamNames(cfg.DisplayNames())
	since := time.Now().AddDate(0, 0, -*days)

	total := service.IngestSummary{Teams: map[string]int{}}
	for _, slug := range slugs {
		display := names.Display(slug)
		tickets, err := c.Tracker.TeamHistory(ctx, display, since)
		if err != nil {
			logger.Error().Err(err).Str("team", display).Msg("history fetch failed")
			continue
		}
		logger.Info().Str("team", display).Int("tickets", len(tickets)).Msg("history fetched")
		if *dryRun || len(tickets) == 0 {
			continue
		}
		sum := c.Ingestor.Ingest(ctx, tickets)
		total.Total += sum.Total
		total.Added += sum.Added
		total.Skipped += sum.Skipped
		total.Failed += sum.Failed
		for team, n := range sum.Teams {
			total.Teams[team] += n
		}
	}

	logger.Info().
		Int("total", total.Total).
		Int("added", total.Added).
		Int("skipped", total.Skipped).
		Int("failed", total.Failed).
		Msg("training finished")
	if total.Failed > 0 {
		os.Exit(1)
	}
}

func printStats(ctx context.Context, store vectorstore.Store, teamKey string) error {
	records, err := store.All(ctx)
	if err != nil {
		return err
	}
	counts := vectorstore.TeamCounts(records, teamKey)
	teams := make([]string, 0, len(counts))
	for team := range counts {
		teams = append(teams, team)
	}
	sort.Slice(teams, func(i, j int) bool {
		if counts[teams[i]] != counts[teams[j]] {
			return counts[teams[i]] > counts[teams[j]]
		}
		return teams[i] < teams[j]
	})
	fmt.Printf("%d stored tickets\n", len(records))
	for _, team := range teams {
		fmt.Printf("  %-28s %d\n", team, counts[team])
	}
	return nil
}
