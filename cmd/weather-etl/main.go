package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/i474232898/weather-etl/internal/config"
	"github.com/i474232898/weather-etl/internal/logging"
	"github.com/i474232898/weather-etl/internal/pipeline"
	"github.com/i474232898/weather-etl/internal/scheduler"
	"github.com/i474232898/weather-etl/internal/storage"
	"github.com/i474232898/weather-etl/internal/store"
	"github.com/i474232898/weather-etl/internal/transform"
	"github.com/i474232898/weather-etl/internal/weather"
	"github.com/i474232898/weather-etl/internal/weather/providers"
)

var (
	configFile string
	logLevel   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "weather-etl",
		Short:         "Current weather ETL",
		Long:          "Fetches current weather for a city from OpenWeather, writes a CSV and uploads it to S3",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(scheduleCmd())
	rootCmd.AddCommand(historyCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	var city string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one run and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			target, err := resolveCity(cfg, city)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			runner, closeFn, err := buildRunner(cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			res, err := runner.Run(ctx, target)
			if err != nil {
				return fmt.Errorf("run %s failed: %w", res.RunID, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "uploaded s3://%s/%s\n", cfg.AWS.Bucket, res.ObjectKey)
			return nil
		},
	}
	cmd.Flags().StringVar(&city, "city", "", "city to fetch (overrides DEFAULT_CITY)")
	return cmd
}

func scheduleCmd() *cobra.Command {
	var city string
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Trigger a run on every tick of the configured cron schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			target, err := resolveCity(cfg, city)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			runner, closeFn, err := buildRunner(cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			sched := scheduler.New(ctx, cfg.Schedule.Cron, target, runner)
			if err := sched.Start(); err != nil {
				return err
			}
			defer sched.Stop()

			<-ctx.Done()
			log.Info("shutting down scheduler")
			return nil
		},
	}
	cmd.Flags().StringVar(&city, "city", "", "city to fetch (overrides DEFAULT_CITY)")
	return cmd
}

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs from the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			if cfg.Ledger.Path == "" {
				return errors.New("run ledger is disabled")
			}

			ledger, err := store.Open(cfg.Ledger.Path)
			if err != nil {
				return err
			}
			defer ledger.Close()

			recs, err := ledger.Recent(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("failed to read ledger: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "RUN ID\tCITY\tSTARTED\tSTATUS\tSTEP\tKIND\tOBJECT KEY")
			for _, r := range recs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					r.RunID, r.City, r.StartedAt.Format(time.RFC3339), r.Status,
					dash(r.FailedStep), dash(r.ErrorKind), dash(r.ObjectKey))
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	return cmd
}

// resolveCity returns the --city flag or the configured default city.
func resolveCity(cfg *config.AppConfig, flag string) (string, error) {
	city := cfg.City(flag)
	if city == "" {
		return "", errors.New("no city given: pass --city or set DEFAULT_CITY")
	}
	return city, nil
}

func setup() (*config.AppConfig, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	if err := logging.Init(level, cfg.Log.Format); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildRunner wires the run chain from configuration. The returned close
// function releases the ledger.
func buildRunner(cfg *config.AppConfig) (*pipeline.Runner, func(), error) {
	httpClient := &http.Client{
		Timeout: cfg.OpenWeather.HTTPTimeout,
	}
	ow := providers.NewOpenWeatherClient(httpClient, cfg.OpenWeather.BaseURL, cfg.OpenWeather.APIKey)

	var resolver weather.Resolver = ow
	if cfg.Geocoder.Provider == "google" {
		resolver = providers.NewGoogleGeocoder(cfg.Geocoder.GoogleAPIKey)
	}

	deps := pipeline.Deps{
		Resolver:    resolver,
		Source:      ow,
		Transformer: transform.New(cfg.Artifacts.Dir),
		Uploader:    storage.NewS3Uploader(cfg.AWS),
		Retry:       pipeline.RetryPolicy{Retries: cfg.Retry.Count, Delay: cfg.Retry.Delay},
		Probe:       pipeline.ProbeConfig{Interval: cfg.Probe.Interval, Timeout: cfg.Probe.Timeout},
	}

	closeFn := func() {}
	if cfg.Ledger.Path != "" {
		ledger, err := store.Open(cfg.Ledger.Path)
		if err != nil {
			return nil, nil, err
		}
		deps.Recorder = ledger
		closeFn = func() {
			if err := ledger.Close(); err != nil {
				log.WithError(err).Warn("failed to close ledger")
			}
		}
	}

	return pipeline.New(deps), closeFn, nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
