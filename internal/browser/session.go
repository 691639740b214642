// File: internal/browser/session.go
// Package browser owns the driven Chrome instance. A Session wraps a chromedp
// exec allocator plus one tab context, exposes soft-failing page primitives,
// and fans CDP network responses out into per-path StatusSlots.
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/inspector"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wjleong/zxgkquery/internal/config"
)

// Session is a live browser tab plus its lifecycle state. All primitives
// consult the stop/liveness state before touching chromedp, so a stopped or
// disconnected session degrades to ErrStopped instead of surfacing a pile of
// transport errors.
type Session struct {
	id     string
	cfg    config.BrowserConfig
	net    config.NetworkConfig
	logger *zap.Logger

	mu           sync.Mutex
	allocCtx     context.Context
	allocCancel  context.CancelFunc
	tabCtx       context.Context
	tabCancel    context.CancelFunc
	alive        bool
	closed       bool
	disconnected bool

	stopped  atomic.Bool
	stopOnce sync.Once

	slotMu sync.Mutex
	slots  []*StatusSlot
}

// NewSession creates an unopened session.
func NewSession(cfg config.BrowserConfig, netCfg config.NetworkConfig, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	return &Session{
		id:     id,
		cfg:    cfg,
		net:    netCfg,
		logger: logger.Named("browser").With(zap.String("session_id", id)),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// buildAllocatorOptions assembles the Chrome launch flags. The automation
// banner and the AutomationControlled blink feature are disabled so the
// target site sees an ordinary browser.
func buildAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-infobars", true),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
	}
	if cfg.Headless {
		opts = append(opts, chromedp.Headless)
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	for _, arg := range cfg.Args {
		arg = strings.TrimPrefix(arg, "--")
		if name, value, found := strings.Cut(arg, "="); found {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(arg, true))
		}
	}
	return opts
}

// Open launches Chrome, attaches the network event listener, and verifies
// liveness with an about:blank probe. Any failure tears down whatever was
// created so far.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.alive || s.closed {
		s.mu.Unlock()
		return fmt.Errorf("session %s already opened", s.id)
	}
	s.mu.Unlock()

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, buildAllocatorOptions(s.cfg)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	chromedp.ListenTarget(tabCtx, s.handleEvent)

	probeCtx, probeCancel := context.WithTimeout(tabCtx, s.net.NavigationTimeout)
	defer probeCancel()
	if err := chromedp.Run(probeCtx,
		network.Enable(),
		chromedp.Navigate("about:blank"),
	); err != nil {
		tabCancel()
		allocCancel()
		return fmt.Errorf("launching browser: %w", err)
	}

	s.mu.Lock()
	s.allocCtx = allocCtx
	s.allocCancel = allocCancel
	s.tabCtx = tabCtx
	s.tabCancel = tabCancel
	s.alive = true
	s.mu.Unlock()

	// The tab context dies when the browser process goes away for any
	// reason; treat that as a disconnect.
	go func() {
		<-tabCtx.Done()
		s.markDisconnected("tab context done")
	}()

	s.logger.Info("Browser session opened.", zap.Bool("headless", s.cfg.Headless))
	return nil
}

// handleEvent receives CDP target events. Response statuses are fanned out to
// every slot whose path fragment occurs in the response URL (query string
// stripped); detach events flip the session dead.
func (s *Session) handleEvent(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventResponseReceived:
		url := e.Response.URL
		if i := strings.IndexByte(url, '?'); i >= 0 {
			url = url[:i]
		}
		status := int(e.Response.Status)

		s.slotMu.Lock()
		for _, slot := range s.slots {
			if strings.Contains(url, slot.path) {
				slot.Observe(status)
			}
		}
		s.slotMu.Unlock()
	case *inspector.EventDetached:
		s.markDisconnected(e.Reason.String())
	}
}

// markDisconnected is the single liveness authority; the transition to dead
// is irreversible.
func (s *Session) markDisconnected(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disconnected || s.closed {
		return
	}
	s.disconnected = true
	s.alive = false
	s.logger.Warn("Browser disconnected.", zap.String("reason", reason))
}

// WatchPath registers a StatusSlot matched against response URLs containing
// path. The slot stays owned by the caller; the session only feeds it.
func (s *Session) WatchPath(path string) *StatusSlot {
	slot := NewStatusSlot(path)
	s.slotMu.Lock()
	s.slots = append(s.slots, slot)
	s.slotMu.Unlock()
	return slot
}

// Alive reports whether the browser is usable.
func (s *Session) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive
}

// Stopped reports whether a cooperative stop was requested.
func (s *Session) Stopped() bool {
	return s.stopped.Load()
}

// RequestStop flags the session stopped and schedules one best-effort close
// while the browser is still alive. Idempotent.
func (s *Session) RequestStop() {
	s.stopped.Store(true)
	s.stopOnce.Do(func() {
		if s.Alive() {
			go func() {
				if err := s.Close(); err != nil {
					s.logger.Debug("Close after stop request failed.", zap.Error(err))
				}
			}()
		}
	})
	s.logger.Info("Stop requested.")
}

// Close tears the session down, tab first, then the allocator. Idempotent;
// individual teardown failures are swallowed.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.alive = false
	tabCancel := s.tabCancel
	allocCancel := s.allocCancel
	s.mu.Unlock()

	if tabCancel != nil {
		tabCancel()
	}
	if allocCancel != nil {
		allocCancel()
	}
	s.logger.Info("Browser session closed.")
	return nil
}

// shouldContinue is the common gate for every primitive.
func (s *Session) shouldContinue() error {
	if s.stopped.Load() {
		return ErrStopped
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.alive {
		return ErrStopped
	}
	return nil
}

// run executes chromedp actions on the tab with a timeout, honoring the
// caller's context for cancellation.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	s.mu.Lock()
	tabCtx := s.tabCtx
	s.mu.Unlock()
	if tabCtx == nil {
		return ErrStopped
	}

	runCtx, cancel := context.WithTimeout(tabCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

// Navigate loads url in the tab.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.shouldContinue(); err != nil {
		return err
	}
	if err := s.run(ctx, s.net.NavigationTimeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	return nil
}

// Reload reloads the current document.
func (s *Session) Reload(ctx context.Context) error {
	if err := s.shouldContinue(); err != nil {
		return err
	}
	if err := s.run(ctx, s.net.NavigationTimeout, chromedp.Reload()); err != nil {
		return fmt.Errorf("reloading page: %w", err)
	}
	return nil
}

// Locate waits until the element matching the XPath selector is visible.
func (s *Session) Locate(ctx context.Context, selector string, timeout time.Duration) error {
	if err := s.shouldContinue(); err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = s.net.ElementTimeout
	}
	if err := s.run(ctx, timeout, chromedp.WaitVisible(selector, chromedp.BySearch)); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNotFound, selector, err)
	}
	return nil
}

// Fill replaces the value of the input matching the XPath selector.
func (s *Session) Fill(ctx context.Context, selector, value string) error {
	if err := s.shouldContinue(); err != nil {
		return err
	}
	if err := s.run(ctx, s.net.ElementTimeout,
		chromedp.SetValue(selector, value, chromedp.BySearch),
	); err != nil {
		return fmt.Errorf("filling %s: %w", selector, err)
	}
	return nil
}

// Value reads the current value of the input matching the XPath selector.
func (s *Session) Value(ctx context.Context, selector string) (string, error) {
	if err := s.shouldContinue(); err != nil {
		return "", err
	}
	var value string
	if err := s.run(ctx, s.net.ElementTimeout,
		chromedp.Value(selector, &value, chromedp.BySearch),
	); err != nil {
		return "", fmt.Errorf("reading value of %s: %w", selector, err)
	}
	return value, nil
}

// Click clicks the element matching the XPath selector.
func (s *Session) Click(ctx context.Context, selector string) error {
	if err := s.shouldContinue(); err != nil {
		return err
	}
	if err := s.run(ctx, s.net.ElementTimeout,
		chromedp.Click(selector, chromedp.BySearch),
	); err != nil {
		return fmt.Errorf("clicking %s: %w", selector, err)
	}
	return nil
}

// Text reads the visible text of the element matching the XPath selector.
func (s *Session) Text(ctx context.Context, selector string) (string, error) {
	if err := s.shouldContinue(); err != nil {
		return "", err
	}
	var text string
	if err := s.run(ctx, s.net.ElementTimeout,
		chromedp.Text(selector, &text, chromedp.BySearch),
	); err != nil {
		return "", fmt.Errorf("reading text of %s: %w", selector, err)
	}
	return text, nil
}

// Screenshot captures the element matching the XPath selector as PNG bytes.
func (s *Session) Screenshot(ctx context.Context, selector string) ([]byte, error) {
	if err := s.shouldContinue(); err != nil {
		return nil, err
	}
	var buf []byte
	if err := s.run(ctx, s.net.ElementTimeout,
		chromedp.Screenshot(selector, &buf, chromedp.BySearch),
	); err != nil {
		return nil, fmt.Errorf("screenshotting %s: %w", selector, err)
	}
	return buf, nil
}

// EvaluateScript runs a JavaScript expression in the page and unmarshals the
// result into res (pass nil to discard).
func (s *Session) EvaluateScript(ctx context.Context, expr string, res interface{}) error {
	if err := s.shouldContinue(); err != nil {
		return err
	}
	if err := s.run(ctx, s.net.ElementTimeout, chromedp.Evaluate(expr, res)); err != nil {
		return fmt.Errorf("evaluating script: %w", err)
	}
	return nil
}

// CurrentURL returns the document's current location.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	if err := s.shouldContinue(); err != nil {
		return "", err
	}
	var url string
	if err := s.run(ctx, s.net.ElementTimeout, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("reading location: %w", err)
	}
	return url, nil
}

// PageContent returns the serialized document HTML.
func (s *Session) PageContent(ctx context.Context) (string, error) {
	if err := s.shouldContinue(); err != nil {
		return "", err
	}
	var html string
	if err := s.run(ctx, s.net.ElementTimeout, chromedp.OuterHTML("html", &html)); err != nil {
		return "", fmt.Errorf("reading page content: %w", err)
	}
	return html, nil
}
