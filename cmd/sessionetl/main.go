// Command sessionetl builds the query-first session tables, loads the
// flattened event file into them and answers the registered queries.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	// register all backends with the storage factory.
	_ "sessionetl/internal/storage/all"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, a := newRootCmd()
	err := root.ExecuteContext(ctx)
	a.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

// rootFlags are the persistent flags shared by every subcommand.
type rootFlags struct {
	cfgPath        string
	verbose        bool
	metricsBackend string
	pushgatewayURL string
	datadogAddr    string
	storageKind    string
}

// newRootCmd builds the command tree. The caller closes the returned app
// once the command has run.
func newRootCmd() (*cobra.Command, *app) {
	var (
		f   rootFlags
		a = &app{}
	)

	root := &cobra.Command{
		Use:           "sessionetl",
		Short:         "Load listening sessions into query-first tables and query them",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.out = cmd.OutOrStdout()
			return a.init(f)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.cfgPath, "config", "", "pipeline config JSON path (defaults apply when empty)")
	pf.BoolVarP(&f.verbose, "verbose", "v", false, "enable verbose logs")
	pf.StringVar(&f.metricsBackend, "metrics-backend", "", "metrics backend: none, prometheus, datadog (overrides config)")
	pf.StringVar(&f.pushgatewayURL, "pushgateway-url", "", "Pushgateway base URL (overrides config)")
	pf.StringVar(&f.datadogAddr, "datadog-addr", "", "DogStatsD address (overrides config)")
	pf.StringVar(&f.storageKind, "storage", "", "storage backend kind (overrides config)")

	root.AddCommand(
		prepareCmd(a),
		createTablesCmd(a),
		loadCmd(a),
		queryCmd(a),
		dropTablesCmd(a),
		statsCmd(a),
		validateCmd(a),
	)
	return root, a
}

func prepareCmd(a *app) *cobra.Command {
	var in, out string
	cmd := &cobra.Command{
		Use:   "prepare",
		Short: "Flatten the raw per-day event files into the event file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.prepare(cmd.Context(), in, out)
		},
	}
	cmd.Flags().StringVar(&in, "input-dir", "", "directory of raw event CSVs (overrides config)")
	cmd.Flags().StringVar(&out, "output", "", "flattened output file (overrides config)")
	return cmd
}

func createTablesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "create-tables",
		Aliases: []string{"build-tables"},
		Short:   "Drop and recreate the target tables",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.createTables(cmd.Context())
		},
	}
}

func loadCmd(a *app) *cobra.Command {
	var skipQueries bool
	cmd := &cobra.Command{
		Use:     "load",
		Aliases: []string{"load-and-query"},
		Short:   "Load the event file into every table, then run the queries",
		Long: `Load streams the event file through the normalizer and writes every
valid record into every table. Row-level failures are counted and sampled in
the summary; only an unreachable store or unreadable source fails the run.
On interrupt the partial summary is printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd.Context(), !skipQueries)
		},
	}
	cmd.Flags().BoolVar(&skipQueries, "skip-queries", false, "only load, do not run the queries")
	return cmd
}

func queryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "query [id [values...]]",
		Short: "Run one query, or all of them",
		Example: `  sessionetl query
  sessionetl query session_item 338 4
  sessionetl query listeners_by_song "All Hands Against His Own"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return a.queryAll(cmd.Context())
			}
			vals := make([]any, len(args)-1)
			for i, s := range args[1:] {
				vals[i] = s
			}
			return a.query(cmd.Context(), args[0], vals)
		},
	}
}

func dropTablesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "drop-tables",
		Short: "Drop the target tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.dropTables(cmd.Context())
		},
	}
}

func statsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Report key cardinality of the event file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.stats(cmd.Context())
		},
	}
}

func validateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and exit",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			log.Printf("config: valid job=%s storage=%s", a.cfg.Job, a.cfg.Storage.Kind)
			return nil
		},
	}
}
