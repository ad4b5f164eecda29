package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"venuefinds/internal/categories"
	"venuefinds/internal/config"
	"venuefinds/internal/httpx"
	"venuefinds/internal/integrations/llm"
	slackbot "venuefinds/internal/integrations/slack"
	"venuefinds/internal/logging"
	"venuefinds/internal/pipeline"
	"venuefinds/internal/storage/sqlite"
)

func Main() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	logLevel   string
}

// NewRootCmd builds the venuefinds command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "venuefinds",
		Short: "Extract venue listings from raw text and merge them by field confidence",
		Long: `venuefinds turns raw text about a venue into structured listing fields with an LLM,
then merges them into the directory database field by field: a new value replaces the
stored one only when it is confident enough or more confident than what is stored.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (default config.yaml or $CONFIG_PATH)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override log_level (debug, info, warn, error)")

	root.AddCommand(
		newExtractCmd(opts),
		newBatchCmd(opts),
		newWatchCmd(opts),
		newScheduleCmd(opts),
		newShowCmd(opts),
		newHistoryCmd(opts),
		newListCmd(opts),
		newStatsCmd(opts),
		newReportCmd(opts),
		newMergeCmd(),
	)
	return root
}

type runtime struct {
	cfg    config.Config
	logger *zap.Logger
	store  *sqlite.Store
}

func (o *rootOptions) loadConfig() (config.Config, error) {
	if o.configPath != "" {
		return config.Load(o.configPath)
	}
	return config.LoadConfig()
}

// open loads config and opens the store. Callers must Close the runtime.
func (o *rootOptions) open() (*runtime, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	appliedHTTPTimeout := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
	logger.Debug("config loaded",
		zap.String("llm_provider", cfg.LLMProvider),
		zap.String("llm_model", cfg.LLMModel),
		zap.Float64("merge_confidence_threshold", cfg.MergeConfidenceThreshold),
		zap.String("db_path", cfg.DBPath),
		zap.String("data_dir", cfg.DataDir),
		zap.String("timezone", cfg.Timezone),
		zap.Bool("slack", cfg.SlackConfigured()),
		zap.Duration("external_http_timeout", appliedHTTPTimeout),
	)

	store, err := sqlite.Open(cfg.DBPath, sqlite.Options{Threshold: &cfg.MergeConfidenceThreshold, Logger: logger})
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}
	logger.Debug("database initialized", zap.String("path", cfg.DBPath))
	return &runtime{cfg: cfg, logger: logger, store: store}, nil
}

func (rt *runtime) Close() {
	_ = rt.store.Close()
	_ = rt.logger.Sync()
}

func (rt *runtime) pipeline() (*pipeline.Pipeline, error) {
	extractor, err := llm.NewExtractor(rt.cfg, rt.logger)
	if err != nil {
		return nil, fmt.Errorf("init extractor: %w", err)
	}
	taxonomy := categories.Default()
	if rt.cfg.TaxonomyPath != "" {
		taxonomy, err = categories.Load(rt.cfg.TaxonomyPath)
		if err != nil {
			return nil, err
		}
	}
	return pipeline.New(pipeline.Options{
		Extractor:   extractor,
		Store:       rt.store,
		Taxonomy:    taxonomy,
		Notifier:    slackbot.NewNotifier(rt.cfg.SlackBotToken, rt.cfg.SlackChannelID, rt.logger),
		DataDir:     rt.cfg.DataDir,
		PhoneRegion: rt.cfg.PhoneRegion,
		Logger:      rt.logger,
	})
}
