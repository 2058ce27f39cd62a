// Package browser attaches to an already-running Chrome over the DevTools
// protocol and exposes its tab as a session.Session.
package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/shpitdev/movement-enricher/internal/session"
	"github.com/shpitdev/movement-enricher/pkg/pipeline/redact"
)

// DefaultDebuggerAddress is where Chrome listens when started with
// --remote-debugging-port=9222.
const DefaultDebuggerAddress = "localhost:9222"

const (
	DefaultActionTimeout = 10 * time.Second
	DefaultLoadTimeout   = 30 * time.Second
)

type Options struct {
	// DebuggerAddress is host:port of the remote debugging endpoint.
	DebuggerAddress string
	// PreferURL selects the first open tab whose URL contains it.
	PreferURL string
	// ActionTimeout bounds each click, script, typing or HTML read on an
	// element, including rod's own interactable/enabled waits.
	ActionTimeout time.Duration
	// LoadTimeout bounds a navigation or reload and its load wait.
	LoadTimeout time.Duration
	Logger      *slog.Logger
}

// Session is one tab of the attached browser.
type Session struct {
	browser *rod.Browser
	page    *rod.Page
	logger  *slog.Logger

	actionTimeout time.Duration
	loadTimeout   time.Duration
}

var _ session.Session = (*Session)(nil)

// Connect attaches to the running browser and picks a tab. It never launches
// or logs in to anything; the operator is expected to have done both.
func Connect(ctx context.Context, opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	addr := strings.TrimSpace(opts.DebuggerAddress)
	if addr == "" {
		addr = DefaultDebuggerAddress
	}

	wsURL, err := launcher.ResolveURL(addr)
	if err != nil {
		return nil, fmt.Errorf("resolve debugger at %s (is Chrome running with --remote-debugging-port?): %w", addr, err)
	}
	logger.Debug("resolved debugger endpoint", "url", redact.Secrets(wsURL))

	b := rod.New().ControlURL(wsURL).Context(ctx)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("connect to browser at %s: %w", addr, err)
	}

	pages, err := b.Pages()
	if err != nil {
		return nil, fmt.Errorf("list browser tabs: %w", err)
	}
	urls := make([]string, 0, len(pages))
	for _, p := range pages {
		info, err := p.Info()
		if err != nil {
			urls = append(urls, "")
			continue
		}
		urls = append(urls, info.URL)
	}

	var page *rod.Page
	if i := choosePage(urls, opts.PreferURL); i >= 0 {
		page = pages[i]
		logger.Info("attached to browser tab", "url", urls[i])
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: "about:blank"})
		if err != nil {
			return nil, fmt.Errorf("open browser tab: %w", err)
		}
		logger.Info("no open tab, created one")
	}
	if _, err := page.Activate(); err != nil {
		logger.Warn("could not focus tab", "err", redact.Secrets(err.Error()))
	}

	return newSession(b, page, opts, logger), nil
}

func newSession(b *rod.Browser, page *rod.Page, opts Options, logger *slog.Logger) *Session {
	s := &Session{
		browser:       b,
		page:          page,
		logger:        logger,
		actionTimeout: opts.ActionTimeout,
		loadTimeout:   opts.LoadTimeout,
	}
	if s.actionTimeout <= 0 {
		s.actionTimeout = DefaultActionTimeout
	}
	if s.loadTimeout <= 0 {
		s.loadTimeout = DefaultLoadTimeout
	}
	return s
}

// choosePage returns the index of the tab to drive: the first whose URL
// contains prefer, else the first regular web page, else -1.
func choosePage(urls []string, prefer string) int {
	if prefer != "" {
		for i, u := range urls {
			if strings.Contains(u, prefer) {
				return i
			}
		}
	}
	for i, u := range urls {
		if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
			return i
		}
	}
	if len(urls) > 0 {
		return 0
	}
	return -1
}

func (s *Session) Find(ctx context.Context, q session.Query, timeout time.Duration) (session.Element, error) {
	p := s.page.Context(ctx).Timeout(timeout)

	var (
		el  *rod.Element
		err error
	)
	switch q.By {
	case session.ByXPath:
		el, err = p.ElementX(q.Expr)
	case session.ByCSS:
		el, err = p.Element(q.Expr)
	default:
		return nil, fmt.Errorf("unsupported query %s", q)
	}
	if err == nil && q.Clickable {
		if err = el.WaitVisible(); err == nil {
			err = el.WaitEnabled()
		}
	}
	if err != nil {
		p.CancelTimeout()
		return nil, notFound(ctx, q, timeout, err)
	}
	return &element{el: el.CancelTimeout(), timeout: s.actionTimeout}, nil
}

// notFound maps a timed-out lookup to session.ErrNotFound and leaves every
// other failure, including cancellation of ctx itself, untouched.
func notFound(ctx context.Context, q session.Query, timeout time.Duration, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s after %s: %w", q, timeout, session.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", q, err)
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	p := s.page.Context(ctx).Timeout(s.loadTimeout)
	defer p.CancelTimeout()
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("wait load: %w", err)
	}
	return nil
}

func (s *Session) URL(ctx context.Context) (string, error) {
	p := s.page.Context(ctx).Timeout(s.actionTimeout)
	defer p.CancelTimeout()
	info, err := p.Info()
	if err != nil {
		return "", fmt.Errorf("page info: %w", err)
	}
	return info.URL, nil
}

func (s *Session) Reload(ctx context.Context) error {
	p := s.page.Context(ctx).Timeout(s.loadTimeout)
	defer p.CancelTimeout()
	if err := p.Reload(); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("wait load: %w", err)
	}
	return nil
}

type element struct {
	el      *rod.Element
	timeout time.Duration
}

// bound scopes one interaction to ctx and the action timeout. rod's click
// and input helpers retry while the element is covered or disabled, so they
// only stop when this context ends.
func (e *element) bound(ctx context.Context) (*rod.Element, func()) {
	el := e.el.Context(ctx).Timeout(e.timeout)
	return el, func() { el.CancelTimeout() }
}

func (e *element) Click(ctx context.Context) error {
	el, done := e.bound(ctx)
	defer done()
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (e *element) ScriptClick(ctx context.Context) error {
	el, done := e.bound(ctx)
	defer done()
	_, err := el.Eval(`() => this.click()`)
	return err
}

func (e *element) Clear(ctx context.Context) error {
	el, done := e.bound(ctx)
	defer done()
	_, err := el.Eval(`() => {
		this.value = '';
		this.dispatchEvent(new Event('input', { bubbles: true }));
	}`)
	return err
}

func (e *element) Input(ctx context.Context, text string) error {
	el, done := e.bound(ctx)
	defer done()
	return el.Input(text)
}

func (e *element) HTML(ctx context.Context) (string, error) {
	el, done := e.bound(ctx)
	defer done()
	return el.HTML()
}
