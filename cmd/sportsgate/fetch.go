package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/smartsports/sportsgate/pkg/sportsgate"
)

func newFetchCmd(opts *rootOptions) *cobra.Command {
	var req sportsgate.MatchRequest

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch one prediction context and print it as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.HomeTeam == "" || req.AwayTeam == "" {
				return fmt.Errorf("--home and --away are required")
			}
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			logger, flush, err := newLogger(cfg.Log, os.Stderr)
			if err != nil {
				return err
			}
			defer flush()

			ctx := cmd.Context()
			gw, err := newGateway(ctx, cfg, logger, nil)
			if err != nil {
				return err
			}
			defer gw.close()

			pc := gw.fetcher.FetchPredictionContext(ctx, req)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(pc)
		},
	}
	cmd.Flags().StringVar(&req.HomeTeam, "home", "", "home team name")
	cmd.Flags().StringVar(&req.AwayTeam, "away", "", "away team name")
	cmd.Flags().IntVar(&req.HomeTeamID, "home-id", 0, "home team ID (skips name resolution)")
	cmd.Flags().IntVar(&req.AwayTeamID, "away-id", 0, "away team ID (skips name resolution)")
	cmd.Flags().IntVar(&req.LeagueID, "league", 0, "league ID")
	cmd.Flags().IntVar(&req.Season, "season", 0, "season start year (default: current season)")
	cmd.Flags().StringVar(&req.Tier, "tier", string(sportsgate.RequestTierFree), "request tier (free, premium)")
	return cmd
}
