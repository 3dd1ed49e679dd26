// Command memanalyzerd is a thin CLI over the Heap Analyzer core: wiring
// config, the facade, and the metrics endpoint together behind a handful
// of cobra subcommands. It calls only the facade's public operations.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zhao666666/java-memory-analyzer/internal/analyzer"
	"github.com/zhao666666/java-memory-analyzer/internal/config"
	coreerrors "github.com/zhao666666/java-memory-analyzer/internal/errors"
	"github.com/zhao666666/java-memory-analyzer/internal/leak"
	"github.com/zhao666666/java-memory-analyzer/internal/metricsexport"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "memanalyzerd",
		Short: "In-process memory-profiling core: serve, snapshot, and leak-report commands",
	}

	root.PersistentFlags().StringVar(&configPath, "config", "memanalyzer.yaml", "path to the YAML configuration file")

	root.AddCommand(serveCmd(), snapshotCmd(), leaksCmd(), compareCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() config.Config {
	_ = config.LoadDotEnv(".env")

	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.WithField("err", err).Warn("failed to load configuration; continuing with defaults")
	}

	return cfg
}

func serveCmd() *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the analyzer core and metrics endpoint until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()

			a := analyzer.New(cfg)
			analyzer.Register(a)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			a.Start(ctx)
			defer a.Stop()

			watcher := config.NewWatcher(configPath, cfg)
			_ = watcher.Start()
			defer watcher.Stop()

			server := metricsexport.NewServer(metricsAddr, metricsexport.New(a))
			server.Start()
			defer func() { _ = server.Stop(context.Background()) }()

			logrus.WithField("addr", metricsAddr).Info("memanalyzerd serving")

			waitForSignal(ctx)

			return nil
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "address to serve Prometheus metrics on")

	return cmd
}

func snapshotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Take a heap snapshot against the live registered analyzer and print it as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := analyzer.Current()
			if a == nil {
				return fmt.Errorf("no analyzer instance is live in this process")
			}

			snap := a.TakeSnapshot()

			return printJSON(snap)
		},
	}
}

func leaksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "leaks",
		Short: "Run leak detection against the live registered analyzer and print the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := analyzer.Current()
			if a == nil {
				return fmt.Errorf("no analyzer instance is live in this process")
			}

			report := a.Detect()
			if report == nil {
				return coreerrors.DetectionNotActive()
			}

			for _, line := range leak.GetRecommendations(report) {
				fmt.Println(line)
			}

			return printJSON(report)
		},
	}
}

func compareCmd() *cobra.Command {
	var baseID, currentID uint64

	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Diff two retained snapshots by id and print the result as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := analyzer.Current()
			if a == nil {
				return fmt.Errorf("no analyzer instance is live in this process")
			}

			diff, ok := a.CompareSnapshots(baseID, currentID)
			if !ok {
				return coreerrors.UnknownSnapshotID(firstMissingSnapshot(a, baseID, currentID))
			}

			return printJSON(diff)
		},
	}

	cmd.Flags().Uint64Var(&baseID, "base", 0, "base (older) snapshot id")
	cmd.Flags().Uint64Var(&currentID, "current", 0, "current (newer) snapshot id")

	return cmd
}

// firstMissingSnapshot reports whichever of baseID/currentID isn't among
// the retained snapshots, for a more specific error message than "one of
// these is missing".
func firstMissingSnapshot(a *analyzer.Analyzer, baseID, currentID uint64) uint64 {
	present := make(map[uint64]bool)
	for _, s := range a.GetSnapshots() {
		present[s.ID] = true
	}

	if !present[baseID] {
		return baseID
	}

	return currentID
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

func waitForSignal(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
	case <-ctx.Done():
	}
}
