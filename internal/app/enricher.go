package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shpitdev/movement-enricher/internal/checkpoint"
	"github.com/shpitdev/movement-enricher/internal/enrich"
	"github.com/shpitdev/movement-enricher/internal/extract"
	"github.com/shpitdev/movement-enricher/internal/navigate"
	"github.com/shpitdev/movement-enricher/internal/pipeline"
	"github.com/shpitdev/movement-enricher/internal/session"
	"github.com/shpitdev/movement-enricher/pkg/pipeline/core"
	"github.com/shpitdev/movement-enricher/pkg/pipeline/io/xlsx"
)

// FlowConfig selects the locators and waits of the UI flow.
type FlowConfig struct {
	Profile    navigate.Profile
	Navigation navigate.Options
}

// NewFlow wires the navigator and extractor over one session. The navigator
// is also returned because it resets the tab between identifiers.
func NewFlow(s session.Session, cfg FlowConfig, logger *slog.Logger) (*enrich.Flow, *navigate.Navigator) {
	nav := navigate.New(s, cfg.Profile, cfg.Navigation, logger)
	ext := extract.New(nav.Locator(), cfg.Profile.ResultsTable, logger)
	return &enrich.Flow{Navigator: nav, Extractor: ext}, nav
}

// RunLocal enriches the workbook at inputPath and checkpoints it next to it.
func RunLocal(
	ctx context.Context,
	inputPath string,
	enricher enrich.Enricher,
	home pipeline.HomeResetter,
	opts pipeline.Options,
	logger *slog.Logger,
) (pipeline.Summary, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var source core.InputAdapter[*xlsx.Table] = xlsx.Source{Path: inputPath, Sheet: pipeline.SheetName}
	readStart := time.Now()
	table, err := source.Load(ctx)
	if err != nil {
		return pipeline.Summary{}, err
	}
	logger.Info("loaded input",
		"path", inputPath,
		"sheet", table.Sheet,
		"identifiers", table.Len(),
		"duration", time.Since(readStart).Round(time.Millisecond),
	)

	opts.Logger = logger
	sum, err := pipeline.EnrichTable(ctx, table, newTracedEnricher(enricher, logger), home, checkpoint.NewWorkbook(inputPath), opts)
	logger.Info("run complete",
		"processed", sum.Processed,
		"total", sum.Total,
		"output", sum.Output,
		"checkpoint_failures", sum.CheckpointFailures,
		"interrupted", sum.Interrupted,
		"duration", sum.Elapsed.Round(time.Millisecond),
	)
	return sum, err
}

type tracedEnricher struct {
	next   enrich.Enricher
	logger *slog.Logger
}

func newTracedEnricher(next enrich.Enricher, logger *slog.Logger) *tracedEnricher {
	return &tracedEnricher{next: next, logger: logger}
}

func (t *tracedEnricher) Enrich(ctx context.Context, identifier string) (enrich.Result, error) {
	t.logger.Debug("enrich request", "identifier", identifier)

	start := time.Now()
	out, err := t.next.Enrich(ctx, identifier)
	elapsed := time.Since(start).Round(time.Millisecond)
	if err != nil {
		t.logger.Debug("enrich response", "identifier", identifier, "duration", elapsed, "err", err)
		return out, fmt.Errorf("enrich %s: %w", identifier, err)
	}
	t.logger.Debug("enrich response",
		"identifier", identifier,
		"duration", elapsed,
		"status", out.Status.String(),
		"date", out.DateText(),
	)
	return out, nil
}
