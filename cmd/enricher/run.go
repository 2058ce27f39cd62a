package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shpitdev/movement-enricher/internal/app"
	"github.com/shpitdev/movement-enricher/internal/browser"
	"github.com/shpitdev/movement-enricher/internal/checkpoint"
	"github.com/shpitdev/movement-enricher/internal/config"
	"github.com/shpitdev/movement-enricher/internal/logging"
	"github.com/shpitdev/movement-enricher/internal/navigate"
	"github.com/shpitdev/movement-enricher/internal/pipeline"
	"github.com/shpitdev/movement-enricher/internal/version"
)

func newRunCmd() *cobra.Command {
	v := config.New()
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "run --input <workbook.xlsx>",
		Short: "Enrich a workbook using the browser listening on the debugger address",
		Example: "  chrome --remote-debugging-port=9222   # log in to TransfereGov first\n" +
			"  enricher run --input convenios.xlsx",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v, cfgFile)
			if err != nil {
				return usageError{err}
			}
			return run(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
	cobra.CheckErr(config.RegisterFlags(v, cmd.Flags()))
	cmd.Flags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	return cmd
}

func loadConfig(v *viper.Viper, cfgFile string) (config.Config, error) {
	if err := config.ReadFile(v, cfgFile); err != nil {
		return config.Config{}, err
	}
	return config.Load(v)
}

func run(ctx context.Context, cfg config.Config, out io.Writer) error {
	level, err := cfg.Level()
	if err != nil {
		return usageError{err}
	}
	logger, closeLog, err := logging.New(logging.Options{Level: level, File: cfg.LogFile})
	if err != nil {
		return err
	}
	defer func() {
		_ = closeLog()
	}()
	logger = logger.With("run", uuid.NewString())
	logger.Info("run start",
		"version", version.Current,
		"input", cfg.Input,
		"debugger", cfg.DebuggerAddress,
		"checkpoint_every", cfg.CheckpointEvery,
		"rate_limit_rps", cfg.RateLimitRPS,
	)

	profile := navigate.DefaultProfile(cfg.Timeouts())
	if cfg.Locators != "" {
		profile, err = navigate.LoadProfile(cfg.Locators, profile)
		if err != nil {
			return usageError{err}
		}
		logger.Info("loaded locator profile", "path", cfg.Locators)
	}

	if _, err := os.Stat(cfg.Input); err != nil {
		return fmt.Errorf("input workbook: %w", err)
	}

	var prefer string
	if u, err := url.Parse(cfg.HomeURL); err == nil {
		prefer = u.Host
	}
	sess, err := browser.Connect(ctx, browser.Options{
		DebuggerAddress: cfg.DebuggerAddress,
		PreferURL:       prefer,
		ActionTimeout:   cfg.ActionTimeout,
		LoadTimeout:     cfg.LoadTimeout,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	flow, nav := app.NewFlow(sess, app.FlowConfig{Profile: profile, Navigation: cfg.Navigation()}, logger)
	sum, err := app.RunLocal(ctx, cfg.Input, flow, nav, pipeline.Options{
		Cadence:      checkpoint.Cadence{Every: cfg.CheckpointEvery},
		RateLimitRPS: cfg.RateLimitRPS,
		ETAWindow:    cfg.ETAWindow,
		ItemTimeout:  cfg.ItemTimeout,
	}, logger)
	if sum.Total > 0 || sum.Output != "" {
		app.WriteSummary(out, sum)
	}
	if err != nil && (errors.Is(err, context.Canceled) || sum.Interrupted) {
		return interruptedError{err}
	}
	return err
}
