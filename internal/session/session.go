// Package session defines the handle the extraction core drives: an already
// authenticated, remotely controlled browser tab. The core never starts or logs
// in to the browser; it only issues bounded commands against it.
package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Find when no element matches within the timeout.
var ErrNotFound = errors.New("element not found")

// By selects the query language of a Query.
type By int

const (
	ByXPath By = iota
	ByCSS
)

func (b By) String() string {
	switch b {
	case ByXPath:
		return "xpath"
	case ByCSS:
		return "css"
	default:
		return "unknown"
	}
}

// Query describes one concrete locator expression.
type Query struct {
	By   By
	Expr string
	// Clickable additionally waits for the element to be visible and enabled.
	Clickable bool
}

func (q Query) String() string {
	return q.By.String() + ":" + q.Expr
}

// Element is a resolved handle on a page element.
type Element interface {
	// Click performs a real pointer click.
	Click(ctx context.Context) error
	// ScriptClick dispatches a click from page script, bypassing hit testing.
	ScriptClick(ctx context.Context) error
	// Clear empties an input element.
	Clear(ctx context.Context) error
	// Input types text into an input element.
	Input(ctx context.Context, text string) error
	// HTML returns the element's outer HTML.
	HTML(ctx context.Context) (string, error)
}

// Session is a single browser tab. Implementations are not safe for
// concurrent use; the UI behind them is single-threaded by nature.
type Session interface {
	// Find polls for q until it matches or timeout elapses, in which case the
	// error wraps ErrNotFound.
	Find(ctx context.Context, q Query, timeout time.Duration) (Element, error)
	// Navigate loads url in the tab.
	Navigate(ctx context.Context, url string) error
	// URL returns the tab's current location.
	URL(ctx context.Context) (string, error)
	// Reload refreshes the current page.
	Reload(ctx context.Context) error
}
