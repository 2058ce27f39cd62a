package app

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/shpitdev/movement-enricher/internal/enrich"
	"github.com/shpitdev/movement-enricher/internal/pipeline"
	"github.com/shpitdev/movement-enricher/internal/progress"
)

// WriteSummary prints the end-of-run banner and a status count table.
func WriteSummary(w io.Writer, sum pipeline.Summary) {
	banner := color.New(color.FgGreen, color.Bold)
	title := "ENRICHMENT COMPLETE"
	if sum.Interrupted {
		banner = color.New(color.FgYellow, color.Bold)
		title = "ENRICHMENT INTERRUPTED"
	}
	_, _ = banner.Fprintln(w, title)
	_, _ = fmt.Fprintf(w, "Total time: %s\n", progress.FormatDuration(sum.Elapsed))
	if sum.Output != "" {
		_, _ = fmt.Fprintf(w, "Output: %s\n", sum.Output)
	} else {
		_, _ = color.New(color.FgRed).Fprintln(w, "Output: not saved")
	}
	if sum.CheckpointFailures > 0 {
		_, _ = color.New(color.FgRed).Fprintf(w, "Checkpoint failures: %d\n", sum.CheckpointFailures)
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Movimentação", "Rows"})
	for _, s := range enrich.Statuses() {
		t.AppendRow(table.Row{s.Label(), sum.Counts[s]})
	}
	t.AppendFooter(table.Row{"Processed", fmt.Sprintf("%d/%d", sum.Processed, sum.Total)})
	t.Render()
}
