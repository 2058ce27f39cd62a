// Package extract reads the financial movement table of the current sub-view
// and reduces it to the most recent movement date.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/shpitdev/movement-enricher/internal/enrich"
	"github.com/shpitdev/movement-enricher/internal/locate"
	"github.com/shpitdev/movement-enricher/pkg/pipeline/redact"
)

var dateCell = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)

// LatestDate scans every data row of the first table in markup (the first
// row is the header) and returns the latest valid DD/MM/YYYY value found in
// the second cell. ok is false when no row carries a valid date.
func LatestDate(markup string) (latest time.Time, ok bool, err error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse movement table: %w", err)
	}

	doc.Find("tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return
		}
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}
		text := strings.TrimSpace(cells.Eq(1).Text())
		if !dateCell.MatchString(text) {
			return
		}
		d, perr := time.Parse(enrich.DateLayout, text)
		// 01/01/0001 parses to the zero time, which reads as "no date" downstream.
		if perr != nil || d.IsZero() {
			return
		}
		if !ok || d.After(latest) {
			latest, ok = d, true
		}
	})
	return latest, ok, nil
}

// Extractor locates the movement table in the live session.
type Extractor struct {
	locator *locate.Locator
	table   locate.Target
	logger  *slog.Logger
}

func New(l *locate.Locator, table locate.Target, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Extractor{locator: l, table: table, logger: logger}
}

var _ enrich.Extractor = (*Extractor)(nil)

// Extract never fails: a missing table, an unreadable table and a table with
// no dated rows all mean there is no movement.
func (e *Extractor) Extract(ctx context.Context) enrich.Result {
	h, err := e.locator.Locate(ctx, e.table)
	if err != nil {
		if errors.Is(err, locate.ErrLocatorTimeout) {
			e.logger.Info("movement table not found")
		} else {
			e.logger.Warn("movement table lookup failed", "err", redact.Secrets(err.Error()))
		}
		return enrich.AbsentResult()
	}

	markup, err := h.HTML(ctx)
	if err != nil {
		e.logger.Warn("read movement table", "err", redact.Secrets(err.Error()))
		return enrich.AbsentResult()
	}

	latest, ok, err := LatestDate(markup)
	if err != nil {
		e.logger.Warn("scan movement table", "err", err)
		return enrich.AbsentResult()
	}
	if !ok {
		return enrich.AbsentResult()
	}
	return enrich.PresentOn(latest)
}
