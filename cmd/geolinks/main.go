package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/geolinks/geolinks/pkg/aggregate"
	"github.com/geolinks/geolinks/pkg/config"
	"github.com/geolinks/geolinks/pkg/dataset"
	"github.com/geolinks/geolinks/pkg/ingest"
	"github.com/geolinks/geolinks/pkg/logger"
	"github.com/geolinks/geolinks/pkg/store"
	"github.com/geolinks/geolinks/pkg/transform"
	"github.com/geolinks/geolinks/pkg/validate"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "geolinks",
		Short: "geolinks - bulk road-network ingestion for PostGIS",
		Long: `geolinks ingests road-link and traffic-speed datasets (gzipped parquet)
into a PostgreSQL/PostGIS database in chunked transactions, then verifies
the result with read-only integrity checks.`,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("geolinks v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(newIngestCmd())
	root.AddCommand(newVerifyCmd())
	root.AddCommand(newStatsCmd())
	root.AddCommand(newDeleteLinkCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the config file, applies it to the logger, and returns it.
func setup(configFile string) (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Encoding:    cfg.Logging.Encoding,
		Development: cfg.Logging.Development,
	}); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newIngestCmd() *cobra.Command {
	var configFile, linksLoc, speedsLoc, summaryFile, metricsAddr string
	var truncate bool

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load both datasets into the database",
		Long: `Load the road-link dataset, then the traffic-speed dataset, in chunked
transactions. Each chunk commits independently: a failure aborts the run
with all previous chunks durable. The run summary is written as JSON for
later verification.

Example:
  geolinks ingest --config geolinks.yaml --truncate`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(configFile)
			if err != nil {
				return err
			}
			defer logger.Sync()
			if linksLoc != "" {
				cfg.Datasets.Links = linksLoc
			}
			if speedsLoc != "" {
				cfg.Datasets.Speeds = speedsLoc
			}
			if truncate {
				cfg.Ingest.Truncate = true
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if metricsAddr != "" {
				go serveMetrics(metricsAddr)
			}
			return runIngest(cmd.Context(), cfg, summaryFile)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "geolinks.yaml", "Path to configuration YAML file")
	cmd.Flags().StringVar(&linksLoc, "links", "", "Override the link dataset location (path, http(s) or s3 URL)")
	cmd.Flags().StringVar(&speedsLoc, "speeds", "", "Override the speed dataset location (path, http(s) or s3 URL)")
	cmd.Flags().StringVar(&summaryFile, "summary", "ingestion-summary.json", "Where to write the run summary JSON")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Expose Prometheus metrics on this address during the run (e.g. :9090)")
	cmd.Flags().BoolVar(&truncate, "truncate", false, "Truncate both tables before loading")
	return cmd
}

func runIngest(ctx context.Context, cfg *config.Config, summaryFile string) error {
	log := logger.Get()
	st, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.EnsureSchema(ctx); err != nil {
		return err
	}
	if cfg.Ingest.Truncate {
		if err := st.TruncateAll(ctx); err != nil {
			return err
		}
		log.Info("existing data truncated")
	}

	fetchOpts := dataset.FetchOptions{S3Region: cfg.Datasets.S3Region}
	links, err := dataset.Open(ctx, cfg.Datasets.Links, cfg.Ingest.ChunkSize, transform.LinkColumns, fetchOpts)
	if err != nil {
		return err
	}
	defer links.Close()
	speeds, err := dataset.Open(ctx, cfg.Datasets.Speeds, cfg.Ingest.ChunkSize, transform.SpeedColumns, fetchOpts)
	if err != nil {
		return err
	}
	defer speeds.Close()

	loader := ingest.New(st, cfg.Ingest, cfg.Datasets.SpeedUnit)
	summary, runErr := loader.Run(ctx, links, speeds)

	if summaryFile != "" {
		if werr := summary.WriteFile(summaryFile); werr != nil {
			log.Warn("failed to write run summary", zap.Error(werr))
		} else {
			log.Info("run summary written", zap.String("path", summaryFile))
		}
	}
	return runErr
}

func newVerifyCmd() *cobra.Command {
	var configFile, summaryFile string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Run read-only integrity checks against ingested data",
		Long: `Verify geometry validity, SRID uniformity, referential integrity, row
counts against the ingestion summary, and stored averages. Exits non-zero
when any check fails.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(configFile)
			if err != nil {
				return err
			}
			defer logger.Sync()

			var summary *ingest.RunSummary
			if summaryFile != "" {
				if summary, err = ingest.LoadSummary(summaryFile); err != nil {
					return err
				}
			}

			st, err := store.Connect(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer st.Close()

			report, err := validate.New(st.Pool()).Run(cmd.Context(), summary)
			if err != nil {
				return err
			}
			fmt.Print(report.String())
			if !report.Passed() {
				os.Exit(1)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "geolinks.yaml", "Path to configuration YAML file")
	cmd.Flags().StringVar(&summaryFile, "summary", "", "Ingestion summary JSON for row-count reconciliation (optional)")
	return cmd
}

func newStatsCmd() *cobra.Command {
	var configFile string
	var linkID int64
	var top int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show speed aggregates from ingested data",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(configFile)
			if err != nil {
				return err
			}
			defer logger.Sync()

			st, err := store.Connect(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer st.Close()

			if linkID != 0 {
				stats, err := aggregate.ForLink(cmd.Context(), st.Pool(), linkID)
				if err != nil {
					return err
				}
				fmt.Printf("link %d\n", linkID)
				printPeriods(stats)
				return nil
			}
			if top > 0 {
				slow, err := aggregate.SlowestLinks(cmd.Context(), st.Pool(), top)
				if err != nil {
					return err
				}
				fmt.Printf("%-12s %-30s %10s %10s %10s %10s\n", "link_id", "road_name", "records", "mean", "min", "max")
				for _, s := range slow {
					name := ""
					if s.RoadName != nil {
						name = *s.RoadName
					}
					fmt.Printf("%-12d %-30s %10d %10.1f %10.1f %10.1f\n", s.LinkID, name, s.Count, s.MeanSpeed, s.MinSpeed, s.MaxSpeed)
				}
				return nil
			}
			stats, err := aggregate.ByPeriod(cmd.Context(), st.Pool())
			if err != nil {
				return err
			}
			printPeriods(stats)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "geolinks.yaml", "Path to configuration YAML file")
	cmd.Flags().Int64Var(&linkID, "link", 0, "Show aggregates for one link")
	cmd.Flags().IntVar(&top, "top", 0, "Show the N slowest links by mean speed")
	return cmd
}

func printPeriods(stats []aggregate.PeriodStats) {
	fmt.Printf("%-10s %-16s %10s %10s %10s %10s\n", "day", "period", "records", "mean", "min", "max")
	for _, s := range stats {
		fmt.Printf("%-10s %-16s %10d %10.1f %10.1f %10.1f\n", s.DayOfWeek, s.TimePeriod, s.Count, s.MeanSpeed, s.MinSpeed, s.MaxSpeed)
	}
}

func newDeleteLinkCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "delete-link <link_id>",
		Short: "Delete one link and its speed records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			linkID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid link id %q", args[0])
			}
			cfg, err := setup(configFile)
			if err != nil {
				return err
			}
			defer logger.Sync()

			st, err := store.Connect(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer st.Close()

			deleted, err := st.DeleteLink(cmd.Context(), linkID)
			if err != nil {
				return err
			}
			if !deleted {
				return fmt.Errorf("link %d not found", linkID)
			}
			fmt.Printf("link %d deleted\n", linkID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "geolinks.yaml", "Path to configuration YAML file")
	return cmd
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Get().Warn("metrics server stopped", zap.Error(err))
	}
}
