// Package locate resolves logical UI targets to element handles by trying an
// ordered list of alternative locator strategies, each with its own bounded wait.
package locate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/shpitdev/movement-enricher/internal/session"
)

// ErrLocatorTimeout reports that no strategy of a target resolved in time.
var ErrLocatorTimeout = errors.New("locator timeout")

// Strategy is one way of finding a target on the page.
type Strategy interface {
	Resolve(ctx context.Context, s session.Session) (Handle, error)
	String() string
}

// Handle is a resolved target. Click uses the interaction style of the
// strategy that produced it.
type Handle struct {
	session.Element
	Target   string
	Strategy string

	scripted bool
}

func (h Handle) Click(ctx context.Context) error {
	if h.scripted {
		return h.Element.ScriptClick(ctx)
	}
	return h.Element.Click(ctx)
}

// XPath waits up to Timeout for an element matching Expr. With Clickable set
// the element must also be visible and enabled.
type XPath struct {
	Expr      string
	Timeout   time.Duration
	Clickable bool
}

func (x XPath) Resolve(ctx context.Context, s session.Session) (Handle, error) {
	el, err := s.Find(ctx, session.Query{By: session.ByXPath, Expr: x.Expr, Clickable: x.Clickable}, x.Timeout)
	if err != nil {
		return Handle{}, err
	}
	return Handle{Element: el, Strategy: x.String()}, nil
}

func (x XPath) String() string {
	return fmt.Sprintf("xpath(%s, %s)", x.Expr, x.Timeout)
}

// Script selects the element with a CSS selector and clicks it from page
// script, for controls whose pointer target is covered or not yet laid out.
type Script struct {
	Selector string
	Timeout  time.Duration
}

func (s Script) Resolve(ctx context.Context, sess session.Session) (Handle, error) {
	el, err := sess.Find(ctx, session.Query{By: session.ByCSS, Expr: s.Selector}, s.Timeout)
	if err != nil {
		return Handle{}, err
	}
	return Handle{Element: el, Strategy: s.String(), scripted: true}, nil
}

func (s Script) String() string {
	return fmt.Sprintf("script(%s, %s)", s.Selector, s.Timeout)
}

// Target is a named UI element role and the strategies that can find it, in
// order of preference.
type Target struct {
	Name       string
	Strategies []Strategy
}

// TimeoutError lists every failed attempt for a target.
type TimeoutError struct {
	Target   string
	Attempts []error
}

func (e *TimeoutError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, a.Error())
	}
	return fmt.Sprintf("locate %q: no candidate resolved: %s", e.Target, strings.Join(parts, "; "))
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrLocatorTimeout
}

func (e *TimeoutError) Unwrap() []error {
	return e.Attempts
}

// Locator resolves targets against one session.
type Locator struct {
	session session.Session
	logger  *slog.Logger
}

func New(s session.Session, logger *slog.Logger) *Locator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Locator{session: s, logger: logger}
}

// Locate tries each strategy of t once, in order. Each attempt is bounded by
// its own timeout; there is no retry beyond the list.
func (l *Locator) Locate(ctx context.Context, t Target) (Handle, error) {
	if len(t.Strategies) == 0 {
		return Handle{}, fmt.Errorf("target %q has no strategies", t.Name)
	}

	var attempts []error
	for i, s := range t.Strategies {
		h, err := s.Resolve(ctx, l.session)
		if err == nil {
			h.Target = t.Name
			return h, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Handle{}, fmt.Errorf("locate %q: %w", t.Name, ctxErr)
		}
		attempts = append(attempts, fmt.Errorf("%s: %w", s, err))
		if i < len(t.Strategies)-1 {
			l.logger.Info("locator candidate failed, trying alternate",
				"target", t.Name,
				"candidate", s.String(),
				"next", t.Strategies[i+1].String(),
			)
		}
	}
	return Handle{}, &TimeoutError{Target: t.Name, Attempts: attempts}
}

// Click locates t and clicks it.
func (l *Locator) Click(ctx context.Context, t Target) error {
	h, err := l.Locate(ctx, t)
	if err != nil {
		return err
	}
	if err := h.Click(ctx); err != nil {
		return fmt.Errorf("click %q via %s: %w", t.Name, h.Strategy, err)
	}
	return nil
}
