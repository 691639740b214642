// File: internal/captcha/solver.go
// Package captcha solves the query form's image captcha by screenshotting
// the captcha element and running it through an OCR oracle, refreshing the
// image until the oracle produces a plausible answer.
package captcha

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wjleong/zxgkquery/internal/browser"
	"github.com/wjleong/zxgkquery/internal/config"
)

var (
	// ErrExhausted is returned when the attempt budget runs out without a
	// plausible recognition. Callers treat it as a record-level failure.
	ErrExhausted = errors.New("captcha attempts exhausted")

	// ErrManualEntryUnavailable marks the manual-entry fallback, which this
	// build does not provide. Kept as an extension point for an interactive
	// frontend.
	ErrManualEntryUnavailable = errors.New("manual captcha entry not available")
)

// statusPollInterval is the sampling rate for captcha-endpoint status polls.
const statusPollInterval = 100 * time.Millisecond

// Page is the browser surface the solver needs.
type Page interface {
	Click(ctx context.Context, selector string) error
	Screenshot(ctx context.Context, selector string) ([]byte, error)
	Stopped() bool
}

// Recognizer turns a captcha image into candidate text.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// Solver owns the captcha-endpoint status slot and the recognize-or-refresh
// loop.
type Solver struct {
	page       Page
	slot       *browser.StatusSlot
	recognizer Recognizer
	cfg        config.CaptchaConfig
	imgSel     string
	logger     *zap.Logger
}

// New creates a Solver. slot must be the session slot watching the captcha
// endpoint path, and imageSelector the XPath of the captcha <img>.
func New(page Page, slot *browser.StatusSlot, recognizer Recognizer, cfg config.CaptchaConfig, imageSelector string, logger *zap.Logger) *Solver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Solver{
		page:       page,
		slot:       slot,
		recognizer: recognizer,
		cfg:        cfg,
		imgSel:     imageSelector,
		logger:     logger.Named("captcha"),
	}
}

// Solve loops screenshot → OCR → validate, refreshing the captcha between
// attempts, until a cleaned answer of at least MinLength characters appears
// or the attempt budget is spent.
func (s *Solver) Solve(ctx context.Context) (string, error) {
	needRefresh := false

	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		if s.page.Stopped() {
			return "", browser.ErrStopped
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		if needRefresh {
			if err := s.refresh(ctx); err != nil {
				return "", err
			}
		} else if !s.loaded(ctx) {
			if err := s.refresh(ctx); err != nil {
				return "", err
			}
		}
		needRefresh = true

		// Screenshot regardless of what the slot reported; a stale but
		// rendered image still beats skipping the attempt.
		img, err := s.page.Screenshot(ctx, s.imgSel)
		if err != nil {
			if errors.Is(err, browser.ErrStopped) {
				return "", err
			}
			s.logger.Debug("Captcha screenshot failed.", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		text, err := s.recognizer.Recognize(ctx, img)
		if err != nil {
			s.logger.Debug("OCR request failed.", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		cleaned := cleanText(text)
		if len(cleaned) >= s.cfg.MinLength {
			s.logger.Debug("Captcha recognized.", zap.Int("attempt", attempt), zap.Int("length", len(cleaned)))
			return cleaned, nil
		}
		s.logger.Debug("OCR result too short, refreshing.",
			zap.Int("attempt", attempt), zap.String("raw", text))
	}

	return "", fmt.Errorf("%w after %d attempts", ErrExhausted, s.cfg.MaxAttempts)
}

// loaded checks (with a brief poll) whether the captcha endpoint already
// answered 200 for the current image.
func (s *Solver) loaded(ctx context.Context) bool {
	if status, ok := s.slot.Status(); ok {
		return status == 200
	}
	status, ok := s.slot.Wait(ctx, statusPollInterval, s.cfg.PreCheckPollMax)
	return ok && status == 200
}

// refresh clicks the captcha image to request a new one, waits a randomized
// human-ish delay, then polls for the fresh response. The poll outcome is
// advisory; the caller screenshots either way.
func (s *Solver) refresh(ctx context.Context) error {
	s.slot.Reset()

	if err := s.page.Click(ctx, s.imgSel); err != nil {
		if errors.Is(err, browser.ErrStopped) {
			return err
		}
		s.logger.Debug("Captcha refresh click failed.", zap.Error(err))
	}

	if err := sleepCtx(ctx, s.refreshDelay()); err != nil {
		return err
	}

	if status, ok := s.slot.Wait(ctx, statusPollInterval, s.cfg.StatusPollMax); !ok || status != 200 {
		s.logger.Debug("Fresh captcha response not confirmed.",
			zap.Int("status", status), zap.Bool("observed", ok))
	}
	return nil
}

// refreshDelay picks a random wait inside the configured window.
func (s *Solver) refreshDelay() time.Duration {
	min, max := s.cfg.RefreshWaitMin, s.cfg.RefreshWaitMax
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}

// ManualSolve is the interactive fallback slot; this build has no frontend
// to collect input from.
func (s *Solver) ManualSolve(ctx context.Context) (string, error) {
	return "", ErrManualEntryUnavailable
}

// cleanText strips everything but ASCII letters and digits from an OCR
// result.
func cleanText(text string) string {
	var b strings.Builder
	for _, r := range text {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		}
	}
	return b.String()
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
