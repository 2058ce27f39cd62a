package enrich

import (
	"context"
	"strings"

	"github.com/shpitdev/movement-enricher/internal/navigate"
	"github.com/shpitdev/movement-enricher/pkg/pipeline/redact"
)

// Navigator drives the UI from home to the movement sub-view.
type Navigator interface {
	Navigate(ctx context.Context, identifier string) navigate.Result
}

// Extractor reads the movement table of the current sub-view.
type Extractor interface {
	Extract(ctx context.Context) Result
}

// Flow is the UI-backed Enricher: navigate, then extract.
type Flow struct {
	Navigator Navigator
	Extractor Extractor
}

var _ Enricher = (*Flow)(nil)

// Enrich never returns an error; every failure is a status.
func (f *Flow) Enrich(ctx context.Context, identifier string) (Result, error) {
	if strings.TrimSpace(identifier) == "" {
		return NavigationFailure("blank identifier"), nil
	}

	nav := f.Navigator.Navigate(ctx, identifier)
	switch nav.Outcome {
	case navigate.Success:
		return f.Extractor.Extract(ctx), nil
	case navigate.RecordNotFound:
		return NavigationFailure(reason(nav)), nil
	default:
		return SubviewFailure(reason(nav)), nil
	}
}

func reason(r navigate.Result) string {
	if r.Err == nil {
		return r.State.String()
	}
	return redact.Secrets(r.Err.Error())
}
