package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/shpitdev/movement-enricher/internal/checkpoint"
	"github.com/shpitdev/movement-enricher/internal/enrich"
	"github.com/shpitdev/movement-enricher/internal/progress"
	"github.com/shpitdev/movement-enricher/pkg/pipeline/core"
	"github.com/shpitdev/movement-enricher/pkg/pipeline/io/xlsx"
	"github.com/shpitdev/movement-enricher/pkg/pipeline/redact"
	"github.com/shpitdev/movement-enricher/pkg/pipeline/schema"
	"github.com/shpitdev/movement-enricher/pkg/pipeline/worker"
)

const (
	SheetName    = "Document_CH321"
	KeyColumn    = "N° Convênio"
	DateColumn   = "Data Mais Recente"
	StatusColumn = "Movimentação"
)

// Contract is the stable input/output table contract.
var Contract = schema.TableContract{
	Sheet:     SheetName,
	KeyColumn: KeyColumn,
	Appended: []schema.Field{
		{Name: DateColumn, Type: "string", Nullable: true},
		{Name: StatusColumn, Type: "string", Nullable: true},
	},
}

// Checkpointer stores the whole table being enriched and reports where.
type Checkpointer interface {
	core.OutputAdapter[*xlsx.Table]
	Path() string
}

// HomeResetter returns the UI to its start page between identifiers.
type HomeResetter interface {
	ResetHome(ctx context.Context) error
}

type Options struct {
	Cadence      checkpoint.Cadence
	RateLimitRPS float64
	ETAWindow    int
	// ItemTimeout caps one identifier, including every wait inside it. <=0 disables.
	ItemTimeout time.Duration
	Logger      *slog.Logger
}

// Summary describes a finished or interrupted run.
type Summary struct {
	Total     int
	Processed int
	Counts    map[enrich.MovementStatus]int
	Elapsed   time.Duration
	// Output is the checkpoint path, empty if nothing was ever persisted.
	Output string
	// CheckpointFailures counts persists that returned an error.
	CheckpointFailures int
	Interrupted        bool
}

// EnrichTable enriches every row of t in order, writing each result into the
// appended columns and checkpointing the whole table on the cadence.
//
// Per-identifier failures are recorded as statuses and never stop the run.
// When ctx is canceled the current identifier finishes, the table is flushed
// once more and ctx's error is returned with the summary.
func EnrichTable(
	ctx context.Context,
	t *xlsx.Table,
	enricher enrich.Enricher,
	home HomeResetter,
	store Checkpointer,
	opts Options,
) (Summary, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	keyIdx, err := Contract.KeyIndex(t.Header)
	if err != nil {
		return Summary{}, err
	}
	t.EnsureColumns(Contract.OutputHeader(t.Header))
	cols := Contract.AppendedIndexes(t.Header)
	dateIdx, statusIdx := cols[DateColumn], cols[StatusColumn]

	ids := make([]string, t.Len())
	for r := range t.Rows {
		ids[r] = t.Text(r, keyIdx)
		t.Set(r, dateIdx, nil)
		t.Set(r, statusIdx, nil)
	}

	sum := Summary{Total: len(ids), Counts: make(map[enrich.MovementStatus]int)}
	start := time.Now()
	tracker := progress.NewTracker(len(ids), opts.ETAWindow)
	flushed := -1
	var itemStart time.Time

	persist := func(through int) {
		if err := store.Store(context.WithoutCancel(ctx), t); err != nil {
			sum.CheckpointFailures++
			attrs := []any{"through", through + 1, "err", redact.Secrets(err.Error())}
			if hint := checkpoint.Hint(err); hint != "" {
				attrs = append(attrs, "hint", hint)
			}
			logger.Error("checkpoint failed", attrs...)
			return
		}
		flushed = through
		logger.Info("checkpoint saved", "path", store.Path(), "rows", through+1)
	}

	if len(ids) == 0 {
		logger.Warn("no identifiers to process")
		persist(-1)
		sum.Output = store.Path()
		return sum, nil
	}

	_, runErr := worker.ProcessAllWithCallback(ctx, ids, enricher.Enrich, worker.Callbacks[string, enrich.Result]{
		OnStart: func(i int, id string) {
			itemStart = time.Now()
			logger.Info("processing identifier", "identifier", id, "progress", tracker.At(i).String())
		},
		OnResult: func(res worker.Result[string, enrich.Result]) error {
			out := res.Output
			if res.Err != nil {
				out = enrich.NavigationFailure(redact.Secrets(res.Err.Error()))
			}

			if d := out.DateText(); d != "" {
				t.Set(res.Index, dateIdx, d)
			}
			t.Set(res.Index, statusIdx, out.Status.Label())
			sum.Counts[out.Status]++
			sum.Processed++

			if opts.Cadence.Due(res.Index, len(ids)) {
				persist(res.Index)
			}
			// Checkpoint time belongs to the identifier that triggered it.
			elapsed := time.Since(itemStart)
			tracker.Add(elapsed)

			attrs := []any{
				"identifier", res.Input,
				"status", out.Status.Label(),
				"elapsed", elapsed.Round(time.Millisecond),
			}
			if d := out.DateText(); d != "" {
				attrs = append(attrs, "date", d)
			}
			if out.Reason != "" {
				attrs = append(attrs, "reason", out.Reason)
			}
			logger.Info("identifier processed", attrs...)

			if res.Index < len(ids)-1 {
				_ = home.ResetHome(context.WithoutCancel(ctx))
			}
			return nil
		},
	}, worker.Options{
		RateLimitRPS: opts.RateLimitRPS,
		ItemTimeout:  opts.ItemTimeout,
		DetachItems:  true,
	})

	if runErr != nil && sum.Processed > 0 && flushed < sum.Processed-1 {
		logger.Warn("run interrupted, saving processed rows", "processed", sum.Processed, "total", sum.Total)
		persist(sum.Processed - 1)
	}
	sum.Interrupted = errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded)
	sum.Elapsed = time.Since(start)
	sum.Output = store.Path()
	return sum, runErr
}
