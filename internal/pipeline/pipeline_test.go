package pipeline_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shpitdev/movement-enricher/internal/checkpoint"
	"github.com/shpitdev/movement-enricher/internal/enrich"
	"github.com/shpitdev/movement-enricher/internal/pipeline"
	"github.com/shpitdev/movement-enricher/pkg/pipeline/io/xlsx"
	"github.com/shpitdev/movement-enricher/pkg/pipeline/schema"
)

type enricherFunc func(ctx context.Context, id string) (enrich.Result, error)

func (f enricherFunc) Enrich(ctx context.Context, id string) (enrich.Result, error) {
	return f(ctx, id)
}

type homeCounter struct{ resets int }

func (h *homeCounter) ResetHome(context.Context) error {
	h.resets++
	return nil
}

type failingStore struct {
	calls int
	err   error
}

func (s *failingStore) Store(context.Context, *xlsx.Table) error {
	s.calls++
	return s.err
}

func (s *failingStore) Path() string { return "" }

type slowStore struct{ delay time.Duration }

func (s slowStore) Store(context.Context, *xlsx.Table) error {
	time.Sleep(s.delay)
	return nil
}

func (slowStore) Path() string { return "" }

func inputTable(n int) *xlsx.Table {
	t := &xlsx.Table{Sheet: pipeline.SheetName, Header: []string{"UF", " N° Convênio ", "Objeto"}}
	for i := 0; i < n; i++ {
		t.Rows = append(t.Rows, []any{"SP", float64(900001 + i), fmt.Sprintf("obra %d", i)})
	}
	return t
}

func byLastDigit(_ context.Context, id string) (enrich.Result, error) {
	switch id[len(id)-1] {
	case '1':
		return enrich.PresentOn(time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)), nil
	case '2':
		return enrich.NavigationFailure("not found"), nil
	case '3':
		return enrich.SubviewFailure("menu missing"), nil
	default:
		return enrich.AbsentResult(), nil
	}
}

func TestEnrichTable_WritesStatuses(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := checkpoint.NewWorkbook(filepath.Join(dir, "in.xlsx"))
	home := &homeCounter{}
	tbl := inputTable(4)

	sum, err := pipeline.EnrichTable(context.Background(), tbl, enricherFunc(byLastDigit), home, store, pipeline.Options{
		Cadence: checkpoint.Cadence{Every: 5},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Processed != 4 || sum.Total != 4 || sum.Interrupted {
		t.Fatalf("unexpected summary: %#v", sum)
	}
	if home.resets != 3 {
		t.Fatalf("expected a reset between identifiers only, got %d", home.resets)
	}
	if want := filepath.Join(dir, "in_COM_DATAS.xlsx"); sum.Output != want {
		t.Fatalf("unexpected output path: %q", sum.Output)
	}

	wantHeader := []string{"UF", " N° Convênio ", "Objeto", "Data Mais Recente", "Movimentação"}
	if strings.Join(tbl.Header, "|") != strings.Join(wantHeader, "|") {
		t.Fatalf("unexpected header: %#v", tbl.Header)
	}
	want := [][2]string{
		{"15/06/2024", "SIM"},
		{"", "NAO_ENCONTRADO"},
		{"", "ERRO_NAVEGACAO"},
		{"", "NÃO"},
	}
	back, err := xlsx.ReadFile(sum.Output, pipeline.SheetName)
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	for r, w := range want {
		got := [2]string{back.Text(r, 3), back.Text(r, 4)}
		if got != w {
			t.Fatalf("unexpected row %d: %#v", r, got)
		}
	}
	if sum.Counts[enrich.Present] != 1 || sum.Counts[enrich.Absent] != 1 {
		t.Fatalf("unexpected counts: %#v", sum.Counts)
	}
}

func TestEnrichTable_CheckpointHoldsFirstFiveOfTwelve(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := checkpoint.NewWorkbook(filepath.Join(dir, "batch.xlsx"))
	var midRun *xlsx.Table

	enricher := enricherFunc(func(ctx context.Context, id string) (enrich.Result, error) {
		if id == "900006" {
			snap, err := xlsx.ReadFile(store.Path(), pipeline.SheetName)
			if err != nil {
				return enrich.Result{}, err
			}
			midRun = snap
		}
		return enrich.AbsentResult(), nil
	})

	sum, err := pipeline.EnrichTable(context.Background(), inputTable(12), enricher, &homeCounter{}, store, pipeline.Options{
		Cadence: checkpoint.Cadence{Every: 5},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if midRun == nil {
		t.Fatalf("expected a checkpoint before identifier 6")
	}
	for r := 0; r < 12; r++ {
		got := midRun.Text(r, 4)
		if r < 5 && got != "NÃO" {
			t.Fatalf("row %d should be finalized in the checkpoint, got %q", r, got)
		}
		if r >= 5 && got != "" {
			t.Fatalf("row %d should still be pending in the checkpoint, got %q", r, got)
		}
	}

	final, err := xlsx.ReadFile(sum.Output, pipeline.SheetName)
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	for r := 0; r < 12; r++ {
		if final.Text(r, 4) != "NÃO" {
			t.Fatalf("row %d not finalized: %q", r, final.Text(r, 4))
		}
	}
}

func TestEnrichTable_InterruptFlushesProcessedRows(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := checkpoint.NewWorkbook(filepath.Join(dir, "in.xlsx"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	enricher := enricherFunc(func(itemCtx context.Context, id string) (enrich.Result, error) {
		if id == "900003" {
			cancel()
		}
		if itemCtx.Err() != nil {
			return enrich.Result{}, errors.New("identifier context must not be canceled")
		}
		return enrich.AbsentResult(), nil
	})

	sum, err := pipeline.EnrichTable(ctx, inputTable(10), enricher, &homeCounter{}, store, pipeline.Options{
		Cadence: checkpoint.Cadence{Every: 5},
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if sum.Processed != 3 || !sum.Interrupted {
		t.Fatalf("unexpected summary: %#v", sum)
	}

	back, err := xlsx.ReadFile(store.Path(), pipeline.SheetName)
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	for r := 0; r < 10; r++ {
		got := back.Text(r, 4)
		if (r < 3) != (got == "NÃO") {
			t.Fatalf("unexpected row %d after interrupt: %q", r, got)
		}
	}
}

func TestEnrichTable_CheckpointFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	store := &failingStore{err: errors.New("permission denied")}
	sum, err := pipeline.EnrichTable(context.Background(), inputTable(6), enricherFunc(byLastDigit), &homeCounter{}, store, pipeline.Options{
		Cadence: checkpoint.Cadence{Every: 5},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// after identifiers 1, 5 and 6
	if store.calls != 3 || sum.CheckpointFailures != 3 || sum.Processed != 6 {
		t.Fatalf("unexpected summary: calls=%d %#v", store.calls, sum)
	}
}

func TestEnrichTable_EnricherErrorBecomesNavigationFailure(t *testing.T) {
	t.Parallel()

	tbl := inputTable(1)
	enricher := enricherFunc(func(context.Context, string) (enrich.Result, error) {
		return enrich.Result{}, errors.New("websocket closed")
	})
	_, err := pipeline.EnrichTable(context.Background(), tbl, enricher, &homeCounter{}, &failingStore{}, pipeline.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := tbl.Text(0, 4); got != "NAO_ENCONTRADO" {
		t.Fatalf("unexpected status: %q", got)
	}
}

func TestEnrichTable_MissingKeyColumn(t *testing.T) {
	t.Parallel()

	tbl := &xlsx.Table{Sheet: pipeline.SheetName, Header: []string{"Convenio"}, Rows: [][]any{{"1"}}}
	_, err := pipeline.EnrichTable(context.Background(), tbl, enricherFunc(byLastDigit), &homeCounter{}, &failingStore{}, pipeline.Options{})
	if !errors.Is(err, schema.ErrMissingColumn) {
		t.Fatalf("expected ErrMissingColumn, got %v", err)
	}
}

func TestEnrichTable_IdentifiersPassedVerbatim(t *testing.T) {
	t.Parallel()

	tbl := &xlsx.Table{Sheet: pipeline.SheetName, Header: []string{"N° Convênio"}, Rows: [][]any{{" 900001 "}, {"900002\u00a0"}}}
	var seen []string
	enricher := enricherFunc(func(_ context.Context, id string) (enrich.Result, error) {
		seen = append(seen, id)
		return enrich.AbsentResult(), nil
	})
	_, err := pipeline.EnrichTable(context.Background(), tbl, enricher, &homeCounter{}, &failingStore{}, pipeline.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Join(seen, "|") != " 900001 |900002\u00a0" {
		t.Fatalf("identifiers were altered: %q", seen)
	}
}

func TestEnrichTable_ElapsedIncludesCheckpoint(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	const delay = 40 * time.Millisecond

	_, err := pipeline.EnrichTable(context.Background(), inputTable(2), enricherFunc(byLastDigit), &homeCounter{}, slowStore{delay: delay}, pipeline.Options{
		Cadence: checkpoint.Cadence{Every: 5},
		Logger:  logger,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	processed := 0
	dec := json.NewDecoder(&logs)
	for dec.More() {
		var entry struct {
			Msg     string        `json:"msg"`
			Elapsed time.Duration `json:"elapsed"`
		}
		if err := dec.Decode(&entry); err != nil {
			t.Fatalf("unexpected log line: %v", err)
		}
		if entry.Msg != "identifier processed" {
			continue
		}
		processed++
		// both identifiers are checkpoints (first and last)
		if entry.Elapsed < delay {
			t.Fatalf("elapsed %s does not include the checkpoint write", entry.Elapsed)
		}
	}
	if processed != 2 {
		t.Fatalf("expected 2 processed lines, got %d", processed)
	}
}

func TestEnrichTable_ItemTimeoutFailsOnlyThatIdentifier(t *testing.T) {
	t.Parallel()

	tbl := inputTable(3)
	enricher := enricherFunc(func(ctx context.Context, id string) (enrich.Result, error) {
		if id == "900002" {
			<-ctx.Done()
			return enrich.Result{}, ctx.Err()
		}
		return enrich.AbsentResult(), nil
	})
	sum, err := pipeline.EnrichTable(context.Background(), tbl, enricher, &homeCounter{}, &failingStore{}, pipeline.Options{
		ItemTimeout: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := []string{tbl.Text(0, 4), tbl.Text(1, 4), tbl.Text(2, 4)}
	if strings.Join(got, "|") != "NÃO|NAO_ENCONTRADO|NÃO" {
		t.Fatalf("unexpected statuses: %q", got)
	}
	if sum.Processed != 3 || sum.Interrupted {
		t.Fatalf("unexpected summary: %#v", sum)
	}
}
