package main

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/api/option"

	"github.com/researchaccelerator-hub/ytstats/client"
	"github.com/researchaccelerator-hub/ytstats/common"
	"github.com/researchaccelerator-hub/ytstats/config"
	ytcrawler "github.com/researchaccelerator-hub/ytstats/crawler/youtube"
	"github.com/researchaccelerator-hub/ytstats/metrics"
	"github.com/researchaccelerator-hub/ytstats/orchestrator"
	"github.com/researchaccelerator-hub/ytstats/publish"
	"github.com/researchaccelerator-hub/ytstats/state"
)

func newRootCommand() *cobra.Command {
	v := viper.New()
	var (
		configFlag    string
		logLevelFlag  string
		logFormatFlag string
	)

	rootCmd := &cobra.Command{
		Use:           "ytstats",
		Short:         "Daily YouTube channel and video statistics collector",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(logLevelFlag, logFormatFlag, cmd.ErrOrStderr())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (yaml, toml or json)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", "auto", "Log format: auto, json or console (auto picks console on a terminal)")
	rootCmd.PersistentFlags().String("data-dir", "", "Directory holding the snapshot and history documents")
	_ = v.BindPFlag(config.KeyDataDir, rootCmd.PersistentFlags().Lookup("data-dir"))

	rootCmd.AddCommand(newRunCommand(v, &configFlag))
	rootCmd.AddCommand(newSummaryCommand(v, &configFlag))

	return rootCmd
}

func newRunCommand(v *viper.Viper, configFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Collect today's statistics for every configured channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, *configFile)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			_, err = runCollection(cmd.Context(), cfg, cmd.OutOrStdout())
			return err
		},
	}

	flags := cmd.Flags()
	flags.Int("channel-workers", 0, "Channels processed in parallel")
	flags.Int("short-workers", 0, "Short-form probes in flight per channel")
	flags.Duration("probe-timeout", 0, "Timeout of a single short-form probe")
	flags.Float64("probe-rps", 0, "Short-form probes per second, 0 for no cap")
	flags.String("overrides-file", "", "Video type override table")
	flags.String("metrics-file", "", "Write Prometheus textfile metrics to this path")
	flags.String("publish-bucket", "", "Upload the documents to this S3 bucket after the run")

	bind := map[string]string{
		config.KeyChannelWorkers: "channel-workers",
		config.KeyShortWorkers:   "short-workers",
		config.KeyProbeTimeout:   "probe-timeout",
		config.KeyProbeRPS:       "probe-rps",
		config.KeyOverridesFile:  "overrides-file",
		config.KeyMetricsFile:    "metrics-file",
		config.KeyPublishBucket:  "publish-bucket",
	}
	for key, name := range bind {
		_ = v.BindPFlag(key, flags.Lookup(name))
	}

	return cmd
}

func newSummaryCommand(v *viper.Viper, configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Print the latest snapshot ranked by subscribers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, *configFile)
			if err != nil {
				return err
			}
			store := state.NewStore(cfg.DataDir)
			fmt.Fprintln(cmd.OutOrStdout(), renderSnapshotSummary(store.LoadSnapshots()))
			return nil
		},
	}
}

// runCollection wires the collaborators for one run and executes it. Channel
// failures are reported in the result, not as an error.
func runCollection(ctx context.Context, cfg *config.Config, out io.Writer) (orchestrator.Result, error) {
	lock, err := common.AcquireRunLock(cfg.LockPath())
	if err != nil {
		return orchestrator.Result{}, err
	}
	defer lock.Release()

	overrides := state.LoadOverrides(cfg.OverridesPath())

	var apiOpts []option.ClientOption
	if cfg.APIEndpoint != "" {
		apiOpts = append(apiOpts, option.WithEndpoint(cfg.APIEndpoint))
	}
	api, err := client.NewYouTubeDataClient(cfg.APIKey, apiOpts...)
	if err != nil {
		return orchestrator.Result{}, err
	}
	api.SetCallTimeout(cfg.APITimeout)
	if err := api.Connect(ctx); err != nil {
		return orchestrator.Result{}, err
	}
	defer api.Disconnect(ctx)

	recorder := metrics.NewRecorder()

	probe := client.NewShortsProbe(cfg.ShortsBaseURL, cfg.ProbeTimeout, cfg.ShortWorkers)
	probe.SetObserver(recorder)
	probe.SetRateLimit(cfg.ProbeRPS)

	store := state.NewStore(cfg.DataDir)
	orch := orchestrator.NewOrchestrator(ytcrawler.NewIngestor(api, probe), store, orchestrator.Options{
		ChannelWorkers: cfg.ChannelWorkers,
		UTCOffsetHours: cfg.UTCOffsetHours,
	})
	orch.SetRecorder(recorder)

	result := orch.RunAll(ctx, cfg.Channels, overrides)

	fmt.Fprintln(out, renderRunSummary(result))
	fmt.Fprintf(out, "%d/%d channels succeeded\n", result.Succeeded, result.Total)

	if cfg.MetricsFile != "" {
		if err := recorder.WriteTextfile(cfg.MetricsFile); err != nil {
			log.Error().Err(err).Str("path", cfg.MetricsFile).Msg("Failed to write metrics")
		}
	}

	if cfg.Publish.Enabled() {
		publishDocuments(ctx, cfg, store, result.Year)
	}

	return result, nil
}

func publishDocuments(ctx context.Context, cfg *config.Config, store *state.Store, year string) {
	pub, err := publish.NewS3Publisher(ctx, cfg.Publish.Bucket, cfg.Publish.Prefix, cfg.Publish.Region)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create S3 publisher")
		return
	}
	if err := pub.PublishFiles(ctx, store.SnapshotPath(), store.HistoryPath(year)); err != nil {
		log.Error().Err(err).Msg("Failed to publish documents")
	}
}
