// File: internal/navigator/navigator.go
// Package navigator drives reliable page loads against a target that
// intermittently answers 502. It correlates navigations with their HTTP
// status through an owned StatusSlot and verifies the document actually
// rendered by probing DOM markers.
package navigator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wjleong/zxgkquery/internal/browser"
	"github.com/wjleong/zxgkquery/internal/config"
)

// ErrNavigationFailed is returned once every retry is exhausted. Individual
// failed attempts never surface to callers.
var ErrNavigationFailed = errors.New("navigation failed after retries")

// statusPollInterval is how often the status slot is sampled while waiting
// for the main document response.
const statusPollInterval = 100 * time.Millisecond

// Page is the browser surface the controller needs.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	Locate(ctx context.Context, selector string, timeout time.Duration) error
	EvaluateScript(ctx context.Context, expr string, res interface{}) error
	Stopped() bool
}

// Controller owns the main-document status slot and the retry state machine
// around page loads.
type Controller struct {
	page   Page
	slot   *browser.StatusSlot
	net    config.NetworkConfig
	retry  config.RetryConfig
	marker []string
	logger *zap.Logger
}

// New creates a Controller. slot must be the session slot watching the main
// document path (see Session.WatchPath).
func New(page Page, slot *browser.StatusSlot, net config.NetworkConfig, retryCfg config.RetryConfig, markers []string, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		page:   page,
		slot:   slot,
		net:    net,
		retry:  retryCfg,
		marker: markers,
		logger: logger.Named("navigator"),
	}
}

// NavigateReliably loads url, retrying through 502s and half-rendered
// documents up to the configured retry budget. Each attempt resets the
// status slot before navigating so only the response belonging to that
// attempt is considered.
func (c *Controller) NavigateReliably(ctx context.Context, url string) error {
	var lastErr error

	for attempt := 1; attempt <= c.retry.MaxRetries; attempt++ {
		if c.page.Stopped() {
			return browser.ErrStopped
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		err := c.attempt(ctx, url, attempt)
		if err == nil {
			return nil
		}
		if errors.Is(err, browser.ErrStopped) || errors.Is(err, context.Canceled) {
			return err
		}
		lastErr = err

		if attempt < c.retry.MaxRetries {
			c.logger.Warn("Navigation attempt failed, backing off.",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", c.retry.MaxRetries),
				zap.Error(err))
			if serr := sleepCtx(ctx, c.retry.RetryDelay); serr != nil {
				return serr
			}
		}
	}

	return fmt.Errorf("%w: %s: %v", ErrNavigationFailed, url, lastErr)
}

// attempt performs one navigate → settle → status poll → classify cycle.
func (c *Controller) attempt(ctx context.Context, url string, attempt int) error {
	c.slot.Reset()

	if err := c.page.Navigate(ctx, url); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}

	// Give the document a moment to settle before sampling the status.
	if err := sleepCtx(ctx, c.net.SettleWait); err != nil {
		return err
	}

	status, ok := c.slot.Wait(ctx, statusPollInterval, c.net.StatusPollMax)
	if !ok {
		return fmt.Errorf("no main document response within %s", c.net.StatusPollMax)
	}

	c.logger.Debug("Main document response observed.",
		zap.Int("attempt", attempt), zap.Int("status", status))

	switch {
	case status == 200:
		if c.markersPresent(ctx) {
			return nil
		}
		// 200 but half-rendered: reload once and re-verify before counting
		// the attempt as failed.
		return c.reloadAndVerify(ctx)
	case status == 502:
		return fmt.Errorf("server answered 502")
	default:
		return fmt.Errorf("unexpected status %d", status)
	}
}

// reloadAndVerify handles the 200-without-markers case.
func (c *Controller) reloadAndVerify(ctx context.Context) error {
	c.logger.Debug("Page markers missing after 200, reloading.")
	c.slot.Reset()

	if err := c.page.Reload(ctx); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	if err := sleepCtx(ctx, c.net.SettleWait); err != nil {
		return err
	}

	status, ok := c.slot.Wait(ctx, statusPollInterval, c.net.StatusPollMax)
	if !ok {
		return fmt.Errorf("no response after reload")
	}
	if status != 200 {
		return fmt.Errorf("reload answered %d", status)
	}
	if !c.markersPresent(ctx) {
		return fmt.Errorf("page markers still missing after reload")
	}
	return nil
}

// markersPresent reports whether at least one of the configured DOM marker
// elements rendered; the page counts as loaded as soon as any marker is
// there.
func (c *Controller) markersPresent(ctx context.Context) bool {
	for _, id := range c.marker {
		var found bool
		expr := fmt.Sprintf("document.getElementById(%q) !== null", id)
		if err := c.page.EvaluateScript(ctx, expr, &found); err == nil && found {
			return true
		}
	}
	return false
}

// WaitForPageReady blocks until the primary DOM marker is visible.
func (c *Controller) WaitForPageReady(ctx context.Context, timeout time.Duration) error {
	if len(c.marker) == 0 {
		return nil
	}
	selector := fmt.Sprintf("//*[@id='%s']", c.marker[0])
	if err := c.page.Locate(ctx, selector, timeout); err != nil {
		return fmt.Errorf("page not ready: %w", err)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
