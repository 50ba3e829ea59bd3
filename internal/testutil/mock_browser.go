package testutil

import (
	"context"
	"sync"

	"github.com/yuefengz/workflow-use/internal/browser"
)

// FakeElement is a scriptable element handle. Zero value behaves as a
// clickable element with tag "button".
type FakeElement struct {
	mu sync.Mutex

	Tag string

	// Behavior configuration
	ClickErr  error
	FillErr   error
	SelectErr error
	PressErr  error
	// SelectValue is returned by SelectLabel on success.
	SelectValue string
	// OnClick, when set, runs after a successful click. Tests use it to
	// trigger side effects mid-run, such as cancelling the run context.
	OnClick func()

	// Recorded interactions
	Clicks   []browser.ClickOptions
	Filled   []string
	Selected []string
	Pressed  []string
}

func (e *FakeElement) TagName() string {
	if e.Tag == "" {
		return "button"
	}
	return e.Tag
}

func (e *FakeElement) Click(ctx context.Context, opts browser.ClickOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ClickErr != nil {
		return e.ClickErr
	}
	e.Clicks = append(e.Clicks, opts)
	if e.OnClick != nil {
		e.OnClick()
	}
	return nil
}

func (e *FakeElement) Fill(ctx context.Context, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.FillErr != nil {
		return e.FillErr
	}
	e.Filled = append(e.Filled, value)
	return nil
}

func (e *FakeElement) SelectLabel(ctx context.Context, label string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.SelectErr != nil {
		return "", e.SelectErr
	}
	e.Selected = append(e.Selected, label)
	if e.SelectValue != "" {
		return e.SelectValue, nil
	}
	return label, nil
}

func (e *FakeElement) Press(ctx context.Context, key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.PressErr != nil {
		return e.PressErr
	}
	e.Pressed = append(e.Pressed, key)
	return nil
}

// FakeSession simulates a browser page. Elements are registered per lookup
// strategy; Resolve walks the locator's strategies in order, the same way a
// real session would.
type FakeSession struct {
	mu sync.Mutex

	// Elements registered by handle. A locator resolves to the first map
	// that contains its handle for an attempted strategy.
	CSS   map[string]*FakeElement
	XPath map[string]*FakeElement
	Text  map[string]*FakeElement

	// Behavior configuration
	NavigateErr error
	ScrollErr   error
	CloseErr    error

	// Recorded interactions
	Navigations []string
	Scrolls     [][2]int
	Resolves    []browser.Locator
	CurrentURL  string
	Closed      bool
	CloseCalls  int
}

// NewFakeSession creates an empty session. Register elements on the CSS,
// XPath and Text maps before dispatching actions against it.
func NewFakeSession() *FakeSession {
	return &FakeSession{
		CSS:   make(map[string]*FakeElement),
		XPath: make(map[string]*FakeElement),
		Text:  make(map[string]*FakeElement),
	}
}

func (s *FakeSession) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.NavigateErr != nil {
		return s.NavigateErr
	}
	s.Navigations = append(s.Navigations, url)
	s.CurrentURL = url
	return nil
}

func (s *FakeSession) Resolve(ctx context.Context, loc browser.Locator) (browser.Element, browser.Strategy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Resolves = append(s.Resolves, loc)

	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	for _, strategy := range loc.Strategies() {
		var el *FakeElement
		switch strategy {
		case browser.StrategyCSS:
			el = s.CSS[loc.CSSSelector]
		case browser.StrategyXPath:
			el = s.XPath[loc.XPath]
		case browser.StrategyText:
			el = s.Text[loc.ElementText]
		}
		if el != nil {
			return el, strategy, nil
		}
	}
	return nil, "", browser.ErrNoMatch
}

func (s *FakeSession) Scroll(ctx context.Context, dx, dy int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ScrollErr != nil {
		return s.ScrollErr
	}
	s.Scrolls = append(s.Scrolls, [2]int{dx, dy})
	return nil
}

func (s *FakeSession) URL(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CurrentURL, nil
}

func (s *FakeSession) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCalls++
	if s.CloseErr != nil {
		return s.CloseErr
	}
	s.Closed = true
	return nil
}

// FakeDriver hands out a fixed session.
type FakeDriver struct {
	mu sync.Mutex

	Session *FakeSession
	OpenErr error
	Opens   int
}

// NewFakeDriver creates a driver backed by a fresh FakeSession.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{Session: NewFakeSession()}
}

func (d *FakeDriver) Open(ctx context.Context) (browser.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Opens++
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	return d.Session, nil
}
