package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/smartsports/sportsgate/pkg/sportsgate"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var history bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show today's upstream budget from the configured ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
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
			store, err := openLedgerStore(ctx, cfg.Budget.Ledger, logger)
			if err != nil {
				return err
			}
			defer store.close()

			tracker, err := newTracker(ctx, cfg, store.LedgerStore, logger, nil)
			if err != nil {
				return err
			}
			stats := tracker.Stats(ctx)
			if err := printStatus(cmd.OutOrStdout(), stats.BudgetStatus); err != nil {
				return err
			}
			if history {
				return printHistory(cmd.OutOrStdout(), stats.RecentDays)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&history, "history", false, "also list archived days")
	return cmd
}

func printStatus(out io.Writer, s sportsgate.BudgetStatus) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "TIER\t%s\n", s.Tier)
	fmt.Fprintf(w, "DATE\t%s\n", s.Date)
	fmt.Fprintf(w, "RESETS AT\t%s\n", s.ResetsAt.Format(time.RFC3339))
	fmt.Fprintf(w, "USED\t%d / %d (%.1f%%)\n", s.CallsUsed, s.Ceiling, s.UsagePercent)
	fmt.Fprintf(w, "REMAINING\t%d\n", s.CallsRemaining)
	fmt.Fprintf(w, "HEALTH\t%s\n", s.HealthLabel)
	fmt.Fprintf(w, "COST TODAY\t$%.4f\n", s.EstimatedCostToday)
	fmt.Fprintf(w, "COST MONTH\t$%.2f\n", s.EstimatedCostMonth)
	if err := w.Flush(); err != nil {
		return err
	}

	if len(s.CallsByCategory) == 0 {
		return nil
	}
	categories := make([]string, 0, len(s.CallsByCategory))
	for c := range s.CallsByCategory {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CATEGORY\tCALLS")
	for _, c := range categories {
		fmt.Fprintf(w, "%s\t%d\n", c, s.CallsByCategory[c])
	}
	return w.Flush()
}

func printHistory(out io.Writer, days []sportsgate.DailyUsage) error {
	fmt.Fprintln(out)
	if len(days) == 0 {
		fmt.Fprintln(out, "No archived days.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tTIER\tCALLS")
	for _, d := range days {
		fmt.Fprintf(w, "%s\t%s\t%d\n", d.Date, d.Tier, d.TotalCalls)
	}
	return w.Flush()
}
