// File: internal/browser/session_test.go
package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wjleong/zxgkquery/internal/config"
)

func newTestSession() *Session {
	cfg := config.NewDefaultConfig()
	return NewSession(cfg.Browser, cfg.Network, zap.NewNop())
}

func TestPrimitivesShortCircuitAfterStop(t *testing.T) {
	s := newTestSession()
	s.RequestStop()

	ctx := context.Background()
	assert.ErrorIs(t, s.Navigate(ctx, "https://example.com"), ErrStopped)
	assert.ErrorIs(t, s.Reload(ctx), ErrStopped)
	assert.ErrorIs(t, s.Locate(ctx, "//input", time.Second), ErrStopped)
	assert.ErrorIs(t, s.Fill(ctx, "//input", "x"), ErrStopped)
	assert.ErrorIs(t, s.Click(ctx, "//button"), ErrStopped)

	_, err := s.Value(ctx, "//input")
	assert.ErrorIs(t, err, ErrStopped)
	_, err = s.Text(ctx, "//span")
	assert.ErrorIs(t, err, ErrStopped)
	_, err = s.Screenshot(ctx, "//img")
	assert.ErrorIs(t, err, ErrStopped)
	_, err = s.CurrentURL(ctx)
	assert.ErrorIs(t, err, ErrStopped)
	_, err = s.PageContent(ctx)
	assert.ErrorIs(t, err, ErrStopped)
}

func TestPrimitivesShortCircuitBeforeOpen(t *testing.T) {
	s := newTestSession()
	// Never opened: not alive, so primitives refuse to run.
	assert.ErrorIs(t, s.Navigate(context.Background(), "https://example.com"), ErrStopped)
}

func TestCloseIsIdempotent(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.False(t, s.Alive())
}

func TestRequestStopIsIdempotent(t *testing.T) {
	s := newTestSession()
	s.RequestStop()
	s.RequestStop()
	assert.True(t, s.Stopped())
}

func TestMarkDisconnectedFlipsAliveIrreversibly(t *testing.T) {
	s := newTestSession()
	s.mu.Lock()
	s.alive = true
	s.mu.Unlock()

	s.markDisconnected("test")
	assert.False(t, s.Alive())

	// A second disconnect is a no-op, and nothing revives the session.
	s.markDisconnected("test again")
	assert.False(t, s.Alive())
}

func TestWatchPathFanOut(t *testing.T) {
	s := newTestSession()
	captcha := s.WatchPath("captcha.do")
	page := s.WatchPath("zhzxgk")

	s.slotMu.Lock()
	slots := len(s.slots)
	s.slotMu.Unlock()
	require.Equal(t, 2, slots)

	// Simulate the listener observing a captcha response.
	captcha.Observe(200)
	status, ok := captcha.Status()
	require.True(t, ok)
	assert.Equal(t, 200, status)

	_, ok = page.Status()
	assert.False(t, ok, "unrelated slot must stay unknown")
}

func TestBuildAllocatorOptionsParsesExtraArgs(t *testing.T) {
	cfg := config.NewDefaultConfig().Browser
	cfg.Args = []string{"--lang=zh-CN", "disable-gpu"}
	opts := buildAllocatorOptions(cfg)
	// Base flags plus user agent plus the two extra args.
	assert.GreaterOrEqual(t, len(opts), 7)
}
