package main

import (
	"fmt"
	"os"

	"github.com/Sternrassler/darksearch-client/internal/config"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command. Running it without a subcommand
// performs a search.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "darksearch",
		Short: "Collect every result page of a DarkSearch query",
		Long: `darksearch queries the DarkSearch API for a keyword and collects the
results of every page into a JSON file.

The first page is fetched once to learn how many pages exist. The remaining
pages are split between concurrent workers, each sending its requests
through its own relay. A relay that keeps failing is swapped for a free one.

Examples:
  # Search and write results.json
  darksearch -k "market"

  # Start at page 20, write to a custom file
  darksearch -k "forum" -p 20 -o forum.json

  # Route through a proxy list, checking each relay first
  darksearch -k "forum" --proxy-file proxies.txt --validate-proxies

  # Share the quota cooldown with other processes via Redis
  darksearch -k "forum" --redis localhost:6379

Configuration is read from --config, ./darksearch.yaml or
$XDG_CONFIG_HOME/darksearch/config.yaml, then from DARKSEARCH_* environment
variables. Flags override both.`,
		Version:       getVersion(),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runSearchCmd,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")

	cmd.Flags().StringP("keyword", "k", "", "Search keyword (required)")
	cmd.Flags().StringP("output", "o", "", "Results file (default "+config.Default().Output+")")
	cmd.Flags().IntP("page", "p", 1, "Page to start the search at")
	cmd.Flags().StringP("config", "c", "", "Configuration file path")

	cmd.Flags().StringSlice("proxies", nil, "Relays to route requests through (host:port, http://, socks5://, direct)")
	cmd.Flags().String("proxy-file", "", "File with one relay per line")
	cmd.Flags().Bool("validate-proxies", false, "Probe every relay before the run and drop unhealthy ones")
	cmd.Flags().IntP("workers", "w", 0, "Number of concurrent workers")
	cmd.Flags().Int("fail-limit", 0, "Consecutive failures before a worker swaps its relay")
	cmd.Flags().Duration("pace", 0, "Pause after every request of a worker")
	cmd.Flags().Int("qpm", 0, "Queries per minute allowed across all workers (0 for unlimited)")

	cmd.Flags().String("redis", "", "Redis address for a quota cooldown shared between processes")
	cmd.Flags().Bool("reset-quota", false, "Clear a quota cooldown left by an earlier run before starting")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address")

	_ = cmd.MarkFlagRequired("keyword")

	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
