package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts rootOptions

	root := &cobra.Command{
		Use:           "sportsgate",
		Short:         "Budget-aware football data gateway for match predictions",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to config file (defaults apply when empty)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "override log.format (console, json, zap)")

	root.AddCommand(
		newServeCmd(&opts),
		newStatusCmd(&opts),
		newFetchCmd(&opts),
	)
	return root
}
