// File: internal/form/form.go
// Package form fills and submits the query form and classifies what the
// page shows afterwards. Field writes are verified by reading the value
// back before anything is submitted.
package form

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wjleong/zxgkquery/internal/browser"
	"github.com/wjleong/zxgkquery/internal/config"
)

// submitPause is the short human-ish wait between the last verified write
// and the submit click.
const submitPause = 300 * time.Millisecond

// digitRun extracts the case count out of text like "共 7 件".
var digitRun = regexp.MustCompile(`\d+`)

// defaultErrorSelectors are scanned in order after a submit; the first one
// holding non-empty text marks the query failed (wrong captcha, bad input).
var defaultErrorSelectors = []string{
	"//div[contains(@class, 'error')]",
	"//div[contains(@class, 'alert')]",
	"//span[contains(@class, 'error')]",
	"//div[contains(., '验证码错误')]",
	"//div[contains(., '查询失败')]",
}

// Page is the browser surface the interactor needs.
type Page interface {
	Fill(ctx context.Context, selector, value string) error
	Value(ctx context.Context, selector string) (string, error)
	Click(ctx context.Context, selector string) error
	Text(ctx context.Context, selector string) (string, error)
	Stopped() bool
}

// Result classifies one submitted query.
type Result struct {
	// Success means the query itself completed; CaseCount may still be zero.
	Success bool
	// CaseCount is the number of enforcement cases the page reported.
	CaseCount int
	// Message carries the page's error text when Success is false.
	Message string
}

// Interactor binds the form selectors to a page.
type Interactor struct {
	page           Page
	sel            config.SelectorConfig
	settle         time.Duration
	errorSelectors []string
	logger         *zap.Logger
}

// New creates an Interactor. settle is the wait before result extraction.
func New(page Page, sel config.SelectorConfig, settle time.Duration, logger *zap.Logger) *Interactor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Interactor{
		page:           page,
		sel:            sel,
		settle:         settle,
		errorSelectors: defaultErrorSelectors,
		logger:         logger.Named("form"),
	}
}

// FillAndSubmit writes the ID number and captcha text into the form with
// write-then-verify on each field, pauses briefly, and clicks submit. ok is
// false when any sub-step fails; nothing is submitted after a failed verify.
func (f *Interactor) FillAndSubmit(ctx context.Context, idNumber, captchaText string) (ok bool, err error) {
	if f.page.Stopped() {
		return false, browser.ErrStopped
	}

	if ok, err := f.fillVerified(ctx, f.sel.IDInput, idNumber); err != nil || !ok {
		return false, err
	}
	if ok, err := f.fillVerified(ctx, f.sel.CaptchaInput, captchaText); err != nil || !ok {
		return false, err
	}

	if err := sleepCtx(ctx, submitPause); err != nil {
		return false, err
	}

	if err := f.page.Click(ctx, f.sel.SubmitButton); err != nil {
		if isStop(err) {
			return false, err
		}
		f.logger.Debug("Submit click failed.", zap.Error(err))
		return false, nil
	}
	return true, nil
}

// fillVerified writes value and confirms it landed by reading it back.
func (f *Interactor) fillVerified(ctx context.Context, selector, value string) (bool, error) {
	if err := f.page.Fill(ctx, selector, value); err != nil {
		if isStop(err) {
			return false, err
		}
		f.logger.Debug("Field write failed.", zap.String("selector", selector), zap.Error(err))
		return false, nil
	}

	got, err := f.page.Value(ctx, selector)
	if err != nil {
		if isStop(err) {
			return false, err
		}
		f.logger.Debug("Field read-back failed.", zap.String("selector", selector), zap.Error(err))
		return false, nil
	}
	if got != value {
		f.logger.Warn("Field verify mismatch.",
			zap.String("selector", selector),
			zap.Int("expected_len", len(value)),
			zap.Int("actual_len", len(got)))
		return false, nil
	}
	return true, nil
}

// ExtractResult waits for the page to settle, scans the error indicators,
// then probes for the results table. A missing table is a successful query
// with zero cases.
func (f *Interactor) ExtractResult(ctx context.Context) (Result, error) {
	if f.page.Stopped() {
		return Result{}, browser.ErrStopped
	}
	if err := sleepCtx(ctx, f.settle); err != nil {
		return Result{}, err
	}

	for _, selector := range f.errorSelectors {
		text, err := f.page.Text(ctx, selector)
		if err != nil {
			if isStop(err) {
				return Result{}, err
			}
			continue
		}
		if msg := strings.TrimSpace(text); msg != "" {
			return Result{Success: false, Message: msg}, nil
		}
	}

	if _, err := f.page.Text(ctx, f.sel.ResultTable); err != nil {
		if isStop(err) {
			return Result{}, err
		}
		// No results table rendered: the query succeeded with no cases.
		return Result{Success: true, CaseCount: 0}, nil
	}

	text, err := f.page.Text(ctx, f.sel.CaseCount)
	if err != nil {
		if isStop(err) {
			return Result{}, err
		}
		// Table rendered but the count node is unreadable: the extraction
		// itself failed, not the query.
		f.logger.Warn("Case count node missing with results table present.", zap.Error(err))
		return Result{Success: false, Message: "failed to extract case count"}, nil
	}
	return Result{Success: true, CaseCount: extractNumber(text)}, nil
}

// extractNumber takes the first run of digits in text, zero when there is
// none.
func extractNumber(text string) int {
	match := digitRun.FindString(text)
	if match == "" {
		return 0
	}
	count, err := strconv.Atoi(match)
	if err != nil {
		return 0
	}
	return count
}

func isStop(err error) bool {
	return errors.Is(err, browser.ErrStopped)
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
