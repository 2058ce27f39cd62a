package consumer

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/shpitdev/movement-enricher/pkg/pipeline/core"
	"github.com/shpitdev/movement-enricher/pkg/pipeline/io/xlsx"
	"github.com/shpitdev/movement-enricher/pkg/pipeline/redact"
	"github.com/shpitdev/movement-enricher/pkg/pipeline/schema"
	"github.com/shpitdev/movement-enricher/pkg/pipeline/worker"
)

// A downstream module can build its own table enricher from the public kit.
func TestPublicPackagesCompose(t *testing.T) {
	t.Parallel()

	contract := schema.TableContract{
		Sheet:     "Clientes",
		KeyColumn: "email",
		Appended:  []schema.Field{{Name: "domain", Type: "string", Nullable: true}},
	}
	in := &xlsx.Table{
		Sheet:  contract.Sheet,
		Header: []string{"email"},
		Rows:   [][]any{{"alice@corp.test"}, {"bob@example.test"}},
	}

	keyIdx, err := contract.KeyIndex(in.Header)
	if err != nil {
		t.Fatalf("KeyIndex failed: %v", err)
	}
	in.EnsureColumns(contract.OutputHeader(in.Header))
	domainIdx := contract.AppendedIndexes(in.Header)["domain"]

	keys := make([]string, in.Len())
	for r := range keys {
		keys[r] = in.Text(r, keyIdx)
	}
	runner := core.ProcessFunc[string, string](func(_ context.Context, email string) (string, error) {
		_, domain, _ := strings.Cut(email, "@")
		return domain, nil
	})

	var stored bytes.Buffer
	var out core.OutputAdapter[*xlsx.Table] = core.OutputFunc[*xlsx.Table](func(_ context.Context, t *xlsx.Table) error {
		stored.Reset()
		return xlsx.Write(&stored, t)
	})

	_, err = worker.ProcessAllWithCallback(context.Background(), keys, runner.Process, worker.Callbacks[string, string]{
		OnResult: func(res worker.Result[string, string]) error {
			in.Set(res.Index, domainIdx, res.Output)
			return out.Store(context.Background(), in)
		},
	}, worker.Options{})
	if err != nil {
		t.Fatalf("ProcessAllWithCallback failed: %v", err)
	}

	back, err := xlsx.Read(&stored, contract.Sheet)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if back.Text(1, 1) != "example.test" {
		t.Fatalf("unexpected row: %#v", back.Rows[1])
	}

	if got := redact.Secrets("Authorization: Bearer abc.def"); strings.Contains(got, "abc.def") {
		t.Fatalf("token not redacted: %q", got)
	}
}
