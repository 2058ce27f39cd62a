// Package sessiontest provides a scripted in-memory session.Session for tests.
package sessiontest

import (
	"context"
	"fmt"
	"time"

	"github.com/shpitdev/movement-enricher/internal/session"
)

// Element is a fake page element keyed by its locator expression.
type Element struct {
	Expr string
	// Markup is returned by HTML.
	Markup string
	// Hidden elements match presence queries but not clickable ones.
	Hidden   bool
	ClickErr error
	// Block makes Click, ScriptClick and Input hang until their context ends,
	// like a browser call that never answers.
	Block bool
	// Value holds the text typed into the element.
	Value string

	fake *Fake
}

// Fake records every action and lets tests react to them through hooks.
type Fake struct {
	Elements map[string]*Element

	CurrentURL string
	// PinURL keeps CurrentURL unchanged on Navigate, simulating a redirect
	// that never lands on the requested page.
	PinURL      bool
	NavigateErr error
	ReloadErr   error

	OnClick    func(f *Fake, expr string)
	OnInput    func(f *Fake, expr, text string)
	OnNavigate func(f *Fake, url string)
	OnReload   func(f *Fake)

	// Log lists actions in order, e.g. "click:xpath-expr", "input:expr=123".
	Log []string
	// Finds lists every Find query with its timeout, hits and misses.
	Finds []FindCall
}

// FindCall is one recorded Find invocation.
type FindCall struct {
	Query   session.Query
	Timeout time.Duration
	Hit     bool
}

// New returns an empty fake positioned at url.
func New(url string) *Fake {
	return &Fake{Elements: map[string]*Element{}, CurrentURL: url}
}

// Add registers (or replaces) elements; it returns the last one added.
func (f *Fake) Add(els ...*Element) *Element {
	var last *Element
	for _, el := range els {
		el.fake = f
		f.Elements[el.Expr] = el
		last = el
	}
	return last
}

// Show registers plain elements for each expression.
func (f *Fake) Show(exprs ...string) {
	for _, e := range exprs {
		f.Add(&Element{Expr: e})
	}
}

// Remove drops elements from the page.
func (f *Fake) Remove(exprs ...string) {
	for _, e := range exprs {
		delete(f.Elements, e)
	}
}

// Clear drops every element from the page.
func (f *Fake) Clear() {
	f.Elements = map[string]*Element{}
}

func (f *Fake) record(format string, args ...any) {
	f.Log = append(f.Log, fmt.Sprintf(format, args...))
}

func (f *Fake) Find(ctx context.Context, q session.Query, timeout time.Duration) (session.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	el, ok := f.Elements[q.Expr]
	if ok && q.Clickable && el.Hidden {
		ok = false
	}
	f.Finds = append(f.Finds, FindCall{Query: q, Timeout: timeout, Hit: ok})
	if !ok {
		return nil, fmt.Errorf("%s after %s: %w", q, timeout, session.ErrNotFound)
	}
	return el, nil
}

func (f *Fake) Navigate(_ context.Context, url string) error {
	f.record("navigate:%s", url)
	if f.NavigateErr != nil {
		return f.NavigateErr
	}
	if !f.PinURL {
		f.CurrentURL = url
	}
	if f.OnNavigate != nil {
		f.OnNavigate(f, url)
	}
	return nil
}

func (f *Fake) URL(_ context.Context) (string, error) {
	return f.CurrentURL, nil
}

func (f *Fake) Reload(_ context.Context) error {
	f.record("reload")
	if f.ReloadErr != nil {
		return f.ReloadErr
	}
	if f.OnReload != nil {
		f.OnReload(f)
	}
	return nil
}

func (e *Element) wait(ctx context.Context) error {
	if !e.Block {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (e *Element) Click(ctx context.Context) error {
	e.fake.record("click:%s", e.Expr)
	if err := e.wait(ctx); err != nil {
		return err
	}
	if e.ClickErr != nil {
		return e.ClickErr
	}
	if e.fake.OnClick != nil {
		e.fake.OnClick(e.fake, e.Expr)
	}
	return nil
}

func (e *Element) ScriptClick(ctx context.Context) error {
	e.fake.record("scriptclick:%s", e.Expr)
	if err := e.wait(ctx); err != nil {
		return err
	}
	if e.fake.OnClick != nil {
		e.fake.OnClick(e.fake, e.Expr)
	}
	return nil
}

func (e *Element) Clear(_ context.Context) error {
	e.fake.record("clear:%s", e.Expr)
	e.Value = ""
	return nil
}

func (e *Element) Input(ctx context.Context, text string) error {
	e.fake.record("input:%s=%s", e.Expr, text)
	if err := e.wait(ctx); err != nil {
		return err
	}
	e.Value += text
	if e.fake.OnInput != nil {
		e.fake.OnInput(e.fake, e.Expr, text)
	}
	return nil
}

func (e *Element) HTML(_ context.Context) (string, error) {
	return e.Markup, nil
}
