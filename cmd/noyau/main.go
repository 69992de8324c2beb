package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/joho/godotenv"
	"github.com/noyau-news/noyau/internal/config"
	"github.com/noyau-news/noyau/internal/database"
	"github.com/noyau-news/noyau/internal/fetch"
	"github.com/noyau-news/noyau/internal/ingest"
	"github.com/noyau-news/noyau/internal/pipeline"
	"github.com/noyau-news/noyau/internal/server"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "noyau",
	Short:   "Daily tech digest",
	Long:    "Noyau ingests tech feeds, clusters them by canonical identity, scores the clusters, and distills the top stories into a daily issue.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional; API keys can come from the real environment.
		_ = godotenv.Load()

		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		parsed, err := zerolog.ParseLevel(level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", level, err)
		}
		zerolog.SetGlobalLevel(parsed)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("noyau", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/noyau/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure feeds, Bluesky accounts, and the LLM provider.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Today: %s\n\n", time.Now().Format("2006-01-02"))
		fmt.Println("Content:")
		fmt.Printf("  Items collected: %d\n", stats.TotalItems)
		fmt.Printf("  Metrics samples: %d\n", stats.TotalSamples)
		fmt.Println("\nOutput:")
		fmt.Printf("  Issues: %d\n", stats.Issues)
		fmt.Printf("  Filter rejections: %d\n", stats.Rejections)

		if run, err := db.GetLastJobRun("build"); err == nil && run != nil {
			fmt.Println("\nLast issue build:")
			fmt.Printf("  Date: %s\n", run.RunDate)
			fmt.Printf("  Status: %s (stage %s)\n", run.Status, run.Stage)
			if run.Reason != "" {
				fmt.Printf("  Reason: %s\n", run.Reason)
			}
		}
		return nil
	},
}

// --- ingest command ---

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Collect items and metrics from configured sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := cmd.Context()
		today := time.Now().Format("2006-01-02")
		runID, err := db.StartJobRun(today, "ingest", false)
		if err != nil {
			return fmt.Errorf("recording job run: %w", err)
		}

		collector := ingest.NewCollector(cfg, db)
		result, err := collector.Collect(ctx)
		if err != nil {
			db.FinishJobRun(runID, "failed", "collecting", err.Error())
			return err
		}

		fmt.Println("Ingest complete:")
		fmt.Printf("  Total found: %d\n", result.TotalFound)
		fmt.Printf("  New items: %d\n", result.NewItems)
		fmt.Printf("  Refreshed: %d\n", result.Refreshed)
		fmt.Printf("  Metrics samples: %d\n", result.Samples)

		if len(result.Sources) > 0 {
			fmt.Println("\nItems by source:")
			type kv struct {
				key string
				val int
			}
			var sorted []kv
			for k, v := range result.Sources {
				sorted = append(sorted, kv{string(k), v})
			}
			sort.Slice(sorted, func(i, j int) bool { return sorted[i].val > sorted[j].val })
			for _, s := range sorted {
				fmt.Printf("  %s: %d\n", s.key, s.val)
			}
		}

		cutoff := time.Now().Add(-time.Duration(cfg.Ranking.WindowHours) * time.Hour)
		fetcher := fetch.NewContentFetcher(db, 15*time.Second)
		fetched := fetcher.FetchMissingBodies(ctx, cutoff)
		fmt.Printf("\nBodies fetched: %d (failed: %d)\n", fetched.Fetched, fetched.Failed)

		db.FinishJobRun(runID, "done", "fetching", "")
		return nil
	},
}

// --- run command ---

var (
	dryRun  bool
	runDate string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build the daily issue: filter -> cluster -> score -> select -> distill",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		date := runDate
		if date == "" {
			date = time.Now().Format("2006-01-02")
		}
		if _, err := time.Parse("2006-01-02", date); err != nil {
			return fmt.Errorf("invalid date %q: expected YYYY-MM-DD", runDate)
		}

		pipe := pipeline.New(cfg, db)
		result := pipe.Run(cmd.Context(), pipeline.Options{Date: date, DryRun: dryRun})

		fmt.Printf("Issue date: %s\n", result.Date)
		fmt.Printf("  Loaded: %d items\n", result.Loaded)
		fmt.Printf("  Rejected by filter: %d\n", result.Rejected)
		fmt.Printf("  Clusters: %d\n", result.Clusters)
		fmt.Printf("  Selected: %d\n", result.Selected)
		if result.Promoted > 0 {
			fmt.Printf("  Promoted after failures: %d\n", result.Promoted)
		}

		if result.Stage == pipeline.StageFailed {
			return fmt.Errorf("pipeline failed: %s", result.Reason)
		}
		if dryRun {
			fmt.Printf("\nDry run: %d items distilled, nothing persisted.\n", len(result.Issue.Items))
			return nil
		}
		fmt.Printf("\nIssue built with %d items. Run 'noyau serve' to view it.\n", len(result.Issue.Items))
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Run every stage but persist nothing")
	runCmd.Flags().StringVar(&runDate, "date", "", "Issue date (YYYY-MM-DD, default today)")
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(db, cfg.Digest.FreeItems, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (default from config)")
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "noyau.db")
	return database.Open(dbPath)
}
