// Package browser defines the browser automation surface the workflow engine
// drives. The engine never talks to a real browser directly; it is handed a
// Driver at construction time and performs every page interaction through the
// Session and Element interfaces below. Fakes for testing live in
// internal/testutil.
package browser

import (
	"context"
	"errors"
	"time"
)

// ErrNoMatch is returned by Session.Resolve when no strategy located a
// visible interactive element within the locator's timeout.
var ErrNoMatch = errors.New("no matching element")

// Strategy identifies how an element was (or should be) located.
type Strategy string

const (
	StrategyCSS   Strategy = "css"
	StrategyXPath Strategy = "xpath"
	StrategyText  Strategy = "text"
)

// Locator describes an element lookup. CSSSelector is the primary handle;
// XPath and ElementText are fallback hints captured at recording time.
// ElementTag is informational and may be used to narrow text matches.
type Locator struct {
	CSSSelector string
	XPath       string
	ElementTag  string
	ElementText string

	// Timeout bounds the whole lookup across all strategies. Zero means
	// the session's default.
	Timeout time.Duration
}

// Strategies returns the lookup strategies this locator can attempt, in
// order of preference. A locator with no usable handles returns nil.
func (l Locator) Strategies() []Strategy {
	var out []Strategy
	if l.CSSSelector != "" {
		out = append(out, StrategyCSS)
	}
	if l.XPath != "" {
		out = append(out, StrategyXPath)
	}
	if l.ElementText != "" {
		out = append(out, StrategyText)
	}
	return out
}

// ClickOptions configures a click gesture.
type ClickOptions struct {
	// Force clicks through overlays and actionability checks.
	Force bool
}

// Element is a handle to a single resolved page element.
type Element interface {
	// TagName returns the element's lowercase tag name ("input", "select", ...).
	TagName() string

	// Click performs a click gesture on the element.
	Click(ctx context.Context, opts ClickOptions) error

	// Fill replaces the element's value with the given text.
	Fill(ctx context.Context, value string) error

	// SelectLabel selects the option whose visible label matches exactly,
	// returning the underlying option value.
	SelectLabel(ctx context.Context, label string) (string, error)

	// Press sends a keyboard key (or combination, e.g. "Control+A") with
	// the element focused.
	Press(ctx context.Context, key string) error
}

// Session is an open browser page the engine performs actions against.
type Session interface {
	// Navigate loads the given URL and waits for the page to settle.
	Navigate(ctx context.Context, url string) error

	// Resolve locates a single interactive element, trying the locator's
	// strategies in order. It reports which strategy succeeded, or
	// ErrNoMatch when all of them failed within the timeout.
	Resolve(ctx context.Context, loc Locator) (Element, Strategy, error)

	// Scroll scrolls the page by the given pixel offsets.
	Scroll(ctx context.Context, dx, dy int) error

	// URL returns the page's current address.
	URL(ctx context.Context) (string, error)

	// Close releases the page and any underlying browser resources.
	// Close is idempotent.
	Close(ctx context.Context) error
}

// Driver opens browser sessions. Implementations wrap a concrete automation
// backend (a DevTools client, a remote grid, a recorded fake).
type Driver interface {
	Open(ctx context.Context) (Session, error)
}
