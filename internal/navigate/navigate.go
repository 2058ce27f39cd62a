// Package navigate drives the portal from its home page to the financial
// movement sub-view of one agreement, and back home again.
package navigate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/shpitdev/movement-enricher/internal/locate"
	"github.com/shpitdev/movement-enricher/internal/session"
)

// DefaultHomeURL is the portal landing page every identifier starts from.
const DefaultHomeURL = "https://discricionarias.transferegov.sistema.gov.br/voluntarias/Principal/Principal.do"

type State int

const (
	Idle State = iota
	Searching
	RecordOpen
	SubViewOpen
	Ready
	SearchFailed
	SubViewFailed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Searching:
		return "searching"
	case RecordOpen:
		return "record_open"
	case SubViewOpen:
		return "subview_open"
	case Ready:
		return "ready"
	case SearchFailed:
		return "search_failed"
	case SubViewFailed:
		return "subview_failed"
	default:
		return "unknown"
	}
}

type Outcome int

const (
	Success Outcome = iota
	RecordNotFound
	SubViewUnreachable
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case RecordNotFound:
		return "record_not_found"
	case SubViewUnreachable:
		return "subview_unreachable"
	default:
		return "unknown"
	}
}

// Result is the terminal state of one navigation.
type Result struct {
	State   State
	Outcome Outcome
	// Target names the UI target that failed, if any.
	Target string
	Err    error
}

type Options struct {
	HomeURL string
	// SettleDelay is waited after submitting the search and after each
	// sub-view click.
	SettleDelay time.Duration
	// HomeTimeout bounds the wait for the tab to report the home URL.
	HomeTimeout time.Duration
	// RefreshDelay is waited after the fallback reload.
	RefreshDelay time.Duration
	// Sleep replaces the settle/refresh waits; tests use it to avoid real time.
	Sleep func(ctx context.Context, d time.Duration)
}

func (o Options) withDefaults() Options {
	if o.HomeURL == "" {
		o.HomeURL = DefaultHomeURL
	}
	if o.SettleDelay < 0 {
		o.SettleDelay = 0
	}
	if o.HomeTimeout <= 0 {
		o.HomeTimeout = 10 * time.Second
	}
	if o.RefreshDelay < 0 {
		o.RefreshDelay = 0
	}
	if o.Sleep == nil {
		o.Sleep = sleep
	}
	return o
}

// DefaultOptions returns the waits the portal needs in practice.
func DefaultOptions() Options {
	return Options{
		HomeURL:      DefaultHomeURL,
		SettleDelay:  time.Second,
		HomeTimeout:  10 * time.Second,
		RefreshDelay: 3 * time.Second,
	}
}

type Navigator struct {
	session session.Session
	locator *locate.Locator
	profile Profile
	opts    Options
	logger  *slog.Logger
}

func New(s session.Session, profile Profile, opts Options, logger *slog.Logger) *Navigator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Navigator{
		session: s,
		locator: locate.New(s, logger),
		profile: profile,
		opts:    opts.withDefaults(),
		logger:  logger,
	}
}

// Locator returns the locator bound to the navigator's session.
func (n *Navigator) Locator() *locate.Locator { return n.locator }

type transition struct {
	from, to State
	failed   State
	run      func(ctx context.Context, identifier string) (string, error)
}

// Navigate runs the search and sub-view transitions for identifier. It never
// returns a Go error; failures are terminal states with the failing target.
func (n *Navigator) Navigate(ctx context.Context, identifier string) Result {
	steps := []transition{
		{from: Idle, to: Searching, failed: SearchFailed, run: n.search},
		{from: Searching, to: RecordOpen, failed: SubViewFailed, run: n.clickSettled(n.profile.MovementMenu)},
		{from: RecordOpen, to: SubViewOpen, failed: SubViewFailed, run: n.clickSettled(n.profile.MovementSubview)},
	}

	state := Idle
	for _, step := range steps {
		target, err := step.run(ctx, identifier)
		if err != nil {
			n.logger.Debug("navigation failed",
				"identifier", identifier,
				"from", step.from.String(),
				"state", step.failed.String(),
				"target", target,
				"err", err,
			)
			return Result{State: step.failed, Outcome: outcomeOf(step.failed), Target: target, Err: err}
		}
		n.logger.Debug("navigation transition", "identifier", identifier, "from", step.from.String(), "to", step.to.String())
		state = step.to
	}

	n.logger.Debug("navigation transition", "identifier", identifier, "from", state.String(), "to", Ready.String())
	return Result{State: Ready, Outcome: Success}
}

func outcomeOf(s State) Outcome {
	switch s {
	case SearchFailed:
		return RecordNotFound
	case SubViewFailed:
		return SubViewUnreachable
	default:
		return Success
	}
}

func (n *Navigator) search(ctx context.Context, identifier string) (string, error) {
	p := n.profile
	if err := n.locator.Click(ctx, p.OpenMenu); err != nil {
		return p.OpenMenu.Name, err
	}
	if err := n.locator.Click(ctx, p.OpenSearch); err != nil {
		return p.OpenSearch.Name, err
	}

	input, err := n.locator.Locate(ctx, p.SearchInput)
	if err != nil {
		return p.SearchInput.Name, err
	}
	if err := input.Clear(ctx); err != nil {
		return p.SearchInput.Name, fmt.Errorf("clear search input: %w", err)
	}
	if err := input.Input(ctx, identifier); err != nil {
		return p.SearchInput.Name, fmt.Errorf("type identifier: %w", err)
	}

	if err := n.locator.Click(ctx, p.SearchSubmit); err != nil {
		return p.SearchSubmit.Name, err
	}
	n.opts.Sleep(ctx, n.opts.SettleDelay)

	if err := n.locator.Click(ctx, p.FirstResult); err != nil {
		return p.FirstResult.Name, err
	}
	return "", nil
}

func (n *Navigator) clickSettled(t locate.Target) func(context.Context, string) (string, error) {
	return func(ctx context.Context, _ string) (string, error) {
		if err := n.locator.Click(ctx, t); err != nil {
			return t.Name, err
		}
		n.opts.Sleep(ctx, n.opts.SettleDelay)
		return "", nil
	}
}

// ErrHomeNotReached reports that the tab never showed the home URL in time.
var ErrHomeNotReached = errors.New("home page not reached")

// ResetHome returns the tab to the home URL. When the tab does not land there
// in time it reloads the current page and waits the refresh delay. The
// returned error is informational; callers are expected to continue.
func (n *Navigator) ResetHome(ctx context.Context) error {
	err := n.session.Navigate(ctx, n.opts.HomeURL)
	if err == nil {
		err = n.waitForURL(ctx, n.opts.HomeURL)
	}
	if err == nil {
		return nil
	}

	n.logger.Warn("could not return to home page, reloading", "err", err)
	if rerr := n.session.Reload(ctx); rerr != nil {
		n.logger.Error("reload failed", "err", rerr)
		err = errors.Join(err, fmt.Errorf("reload: %w", rerr))
	}
	n.opts.Sleep(ctx, n.opts.RefreshDelay)
	return err
}

func (n *Navigator) waitForURL(ctx context.Context, want string) error {
	poll := 250 * time.Millisecond
	if poll > n.opts.HomeTimeout {
		poll = n.opts.HomeTimeout
	}
	deadline := time.NewTimer(n.opts.HomeTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(poll)
	defer tick.Stop()

	last := ""
	for {
		got, err := n.session.URL(ctx)
		if err == nil && got == want {
			return nil
		}
		if err == nil {
			last = got
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("%w after %s (at %q)", ErrHomeNotReached, n.opts.HomeTimeout, last)
		case <-tick.C:
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
