// Package controller executes deterministic workflow steps against a browser
// session. Each step kind maps to exactly one browser operation; element
// steps resolve their target through the locator's fallback strategies under
// a bounded timeout before acting.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/yuefengz/workflow-use/internal/browser"
	werrors "github.com/yuefengz/workflow-use/internal/errors"
	"github.com/yuefengz/workflow-use/internal/types"
)

const (
	// DefaultTimeout bounds element resolution for most steps.
	DefaultTimeout = 1000 * time.Millisecond
	// DefaultKeyPressTimeout is longer because key presses often follow a
	// page transition that is still settling.
	DefaultKeyPressTimeout = 5000 * time.Millisecond
)

// Config tunes dispatch behavior.
type Config struct {
	// Timeout bounds element resolution. Zero means DefaultTimeout.
	Timeout time.Duration
	// KeyPressTimeout bounds resolution for key_press steps. Zero means
	// DefaultKeyPressTimeout.
	KeyPressTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.KeyPressTimeout <= 0 {
		c.KeyPressTimeout = DefaultKeyPressTimeout
	}
	return c
}

// Controller dispatches deterministic steps onto a browser session.
type Controller struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a controller. A nil logger falls back to slog.Default.
func New(cfg Config, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{cfg: cfg.withDefaults(), logger: logger}
}

// Config returns the controller's effective configuration, defaults
// applied.
func (c *Controller) Config() Config {
	return c.cfg
}

// Dispatch executes one deterministic step and reports what happened. The
// step must already be placeholder-resolved. Agent steps are rejected; they
// belong to the agent delegate, not the dispatcher.
func (c *Controller) Dispatch(ctx context.Context, sess browser.Session, step *types.Step) (*types.ActionResult, error) {
	switch step.Type {
	case types.StepNavigation:
		if step.Navigation == nil {
			return nil, werrors.ActionBadStep(string(step.Type))
		}
		return c.navigate(ctx, sess, step.Navigation)
	case types.StepClick:
		if step.Click == nil {
			return nil, werrors.ActionBadStep(string(step.Type))
		}
		return c.click(ctx, sess, step.Click)
	case types.StepInput:
		if step.Input == nil {
			return nil, werrors.ActionBadStep(string(step.Type))
		}
		return c.input(ctx, sess, step.Input)
	case types.StepSelectChange:
		if step.SelectChange == nil {
			return nil, werrors.ActionBadStep(string(step.Type))
		}
		return c.selectChange(ctx, sess, step.SelectChange)
	case types.StepKeyPress:
		if step.KeyPress == nil {
			return nil, werrors.ActionBadStep(string(step.Type))
		}
		return c.keyPress(ctx, sess, step.KeyPress)
	case types.StepScroll:
		if step.Scroll == nil {
			return nil, werrors.ActionBadStep(string(step.Type))
		}
		return c.scroll(ctx, sess, step.Scroll)
	default:
		return nil, werrors.ActionBadStep(string(step.Type))
	}
}

func (c *Controller) navigate(ctx context.Context, sess browser.Session, cfg *types.NavigationConfig) (*types.ActionResult, error) {
	if err := sess.Navigate(ctx, cfg.URL); err != nil {
		return nil, werrors.ActionFailed("navigation", cfg.URL, err)
	}
	c.logger.Info("navigated", "url", cfg.URL)
	return success(fmt.Sprintf("Navigated to %s", cfg.URL), cfg.URL), nil
}

func (c *Controller) click(ctx context.Context, sess browser.Session, cfg *types.ClickConfig) (*types.ActionResult, error) {
	loc := browser.Locator{
		CSSSelector: cfg.CSSSelector,
		XPath:       cfg.XPath,
		ElementTag:  cfg.ElementTag,
		ElementText: cfg.ElementText,
		Timeout:     c.cfg.Timeout,
	}
	el, used, err := c.resolve(ctx, sess, "click", loc)
	if err != nil {
		return nil, err
	}
	// Forced click: recorded selectors frequently point at elements a
	// strict actionability check would reject (overlays, zero-size hit
	// targets) even though the recorded click worked.
	if err := el.Click(ctx, browser.ClickOptions{Force: true}); err != nil {
		return nil, werrors.ActionFailed("click", usedSelector(loc, used), err)
	}
	c.logger.Info("clicked element", "selector", usedSelector(loc, used), "strategy", string(used))
	return success(fmt.Sprintf("Clicked element with selector %q", usedSelector(loc, used)), usedSelector(loc, used)), nil
}

func (c *Controller) input(ctx context.Context, sess browser.Session, cfg *types.InputConfig) (*types.ActionResult, error) {
	loc := browser.Locator{
		CSSSelector: cfg.CSSSelector,
		XPath:       cfg.XPath,
		ElementTag:  cfg.ElementTag,
		Timeout:     c.cfg.Timeout,
	}
	el, used, err := c.resolve(ctx, sess, "input", loc)
	if err != nil {
		return nil, err
	}
	if el.TagName() == "select" {
		// Dropdowns are driven by select_change; typing into one is a
		// recording artifact and must not disturb the current option.
		c.logger.Warn("input step targeted a select element, skipping",
			"selector", usedSelector(loc, used))
		return success(fmt.Sprintf("Ignored input into select element %q; use select_change", usedSelector(loc, used)), usedSelector(loc, used)), nil
	}
	if err := el.Fill(ctx, cfg.Value); err != nil {
		return nil, werrors.ActionFailed("input", usedSelector(loc, used), err)
	}
	c.logger.Info("filled element", "selector", usedSelector(loc, used), "value", cfg.Value)
	return success(fmt.Sprintf("Input %q into element %q", cfg.Value, usedSelector(loc, used)), usedSelector(loc, used)), nil
}

func (c *Controller) selectChange(ctx context.Context, sess browser.Session, cfg *types.SelectChangeConfig) (*types.ActionResult, error) {
	loc := browser.Locator{
		CSSSelector: cfg.CSSSelector,
		XPath:       cfg.XPath,
		ElementTag:  cfg.ElementTag,
		Timeout:     c.cfg.Timeout,
	}
	el, used, err := c.resolve(ctx, sess, "select_change", loc)
	if err != nil {
		return nil, err
	}
	value, err := el.SelectLabel(ctx, cfg.SelectedText)
	if err != nil {
		return nil, werrors.ActionFailed("select_change", usedSelector(loc, used), err)
	}
	c.logger.Info("selected option", "selector", usedSelector(loc, used), "label", cfg.SelectedText, "value", value)
	return success(fmt.Sprintf("Selected option %q (value %q)", cfg.SelectedText, value), usedSelector(loc, used)), nil
}

func (c *Controller) keyPress(ctx context.Context, sess browser.Session, cfg *types.KeyPressConfig) (*types.ActionResult, error) {
	loc := browser.Locator{
		CSSSelector: cfg.CSSSelector,
		XPath:       cfg.XPath,
		ElementTag:  cfg.ElementTag,
		Timeout:     c.cfg.KeyPressTimeout,
	}
	el, used, err := c.resolve(ctx, sess, "key_press", loc)
	if err != nil {
		return nil, err
	}
	if err := el.Press(ctx, cfg.Key); err != nil {
		return nil, werrors.ActionFailed("key_press", usedSelector(loc, used), err)
	}
	c.logger.Info("pressed key", "key", cfg.Key, "selector", usedSelector(loc, used))
	return success(fmt.Sprintf("Pressed key %q", cfg.Key), usedSelector(loc, used)), nil
}

func (c *Controller) scroll(ctx context.Context, sess browser.Session, cfg *types.ScrollConfig) (*types.ActionResult, error) {
	if err := sess.Scroll(ctx, cfg.ScrollX, cfg.ScrollY); err != nil {
		return nil, werrors.ActionFailed("scroll", "", err)
	}
	c.logger.Info("scrolled page", "dx", cfg.ScrollX, "dy", cfg.ScrollY)
	return success(fmt.Sprintf("Scrolled page by (%d, %d)", cfg.ScrollX, cfg.ScrollY), ""), nil
}

// resolve locates the step's target element, attaching the attempted
// strategies to the error when every one of them misses.
func (c *Controller) resolve(ctx context.Context, sess browser.Session, action string, loc browser.Locator) (browser.Element, browser.Strategy, error) {
	el, used, err := sess.Resolve(ctx, loc)
	if err != nil {
		strategies := make([]string, 0, 3)
		for _, s := range loc.Strategies() {
			strategies = append(strategies, string(s))
		}
		return nil, "", werrors.ActionElementNotFound(action, loc.CSSSelector, strategies, err)
	}
	if used != browser.StrategyCSS {
		c.logger.Debug("primary selector missed, fallback strategy matched",
			"action", action, "selector", loc.CSSSelector, "strategy", string(used))
	}
	return el, used, nil
}

// usedSelector reports the concrete handle the winning strategy matched on.
func usedSelector(loc browser.Locator, used browser.Strategy) string {
	switch used {
	case browser.StrategyXPath:
		return loc.XPath
	case browser.StrategyText:
		return loc.ElementText
	default:
		return loc.CSSSelector
	}
}

func success(content, selector string) *types.ActionResult {
	return &types.ActionResult{
		ExtractedContent: content,
		Success:          true,
		SelectorUsed:     selector,
	}
}
