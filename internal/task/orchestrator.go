// File: internal/task/orchestrator.go
// Package task runs the batch query pipeline: load records, drive the
// navigate → captcha → submit → extract sequence once per record, and export
// whatever results exist when the run ends, however it ends.
package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wjleong/zxgkquery/internal/browser"
	"github.com/wjleong/zxgkquery/internal/captcha"
	"github.com/wjleong/zxgkquery/internal/config"
	"github.com/wjleong/zxgkquery/internal/form"
	"github.com/wjleong/zxgkquery/internal/records"
)

// errFormSubmission marks a failed write-verify-submit cycle.
var errFormSubmission = errors.New("form submission failed")

// delaySlice is the granularity of the inter-record pause; a stop request is
// honored within one slice.
var delaySlice = 500 * time.Millisecond

// Detail strings attached to record results.
const (
	detailCaptchaFailed = "captcha recognition failed"
	detailFormFailed    = "form submission failed"
	detailStopped       = "task stopped"
	detailCasesFound    = "enforcement records found"
	detailNoCases       = "no enforcement records"
)

// Status is the terminal state of a run.
type Status int

const (
	StatusRunning Status = iota
	StatusSucceeded
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Progress is one pipeline update, emitted fire-and-forget.
type Progress struct {
	Index   int
	Total   int
	Record  records.QueryRecord
	Message string
}

// Navigator is the page-load collaborator.
type Navigator interface {
	NavigateReliably(ctx context.Context, url string) error
	WaitForPageReady(ctx context.Context, timeout time.Duration) error
}

// Solver is the captcha collaborator.
type Solver interface {
	Solve(ctx context.Context) (string, error)
}

// Form is the form-interaction collaborator.
type Form interface {
	FillAndSubmit(ctx context.Context, idNumber, captchaText string) (bool, error)
	ExtractResult(ctx context.Context) (form.Result, error)
}

// Source yields the input records.
type Source interface {
	Load(path string) ([]records.QueryRecord, error)
}

// Sink persists results.
type Sink interface {
	Export(results []records.QueryResult, path string) error
}

// Stopper exposes the session's cooperative stop flag.
type Stopper interface {
	Stopped() bool
}

// Summary describes a finished run.
type Summary struct {
	RunID      string
	Status     Status
	Total      int
	Processed  int
	Succeeded  int
	Failed     int
	OutputPath string
}

// recordState accumulates intermediate values across one record's steps.
type recordState struct {
	record      records.QueryRecord
	captchaText string
	outcome     *form.Result
}

// Orchestrator wires the collaborators into the batch pipeline.
type Orchestrator struct {
	runID   string
	cfg     *config.Config
	nav     Navigator
	solver  Solver
	form    Form
	source  Source
	sink    Sink
	stopper Stopper
	steps   []StepKind
	logger  *zap.Logger

	progress chan Progress
	results  []records.QueryResult
}

// New creates an Orchestrator running the default step sequence.
func New(cfg *config.Config, nav Navigator, solver Solver, frm Form, source Source, sink Sink, stopper Stopper, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	runID := uuid.NewString()
	return &Orchestrator{
		runID:    runID,
		cfg:      cfg,
		nav:      nav,
		solver:   solver,
		form:     frm,
		source:   source,
		sink:     sink,
		stopper:  stopper,
		steps:    DefaultSteps(),
		logger:   logger.Named("task").With(zap.String("run_id", runID)),
		progress: make(chan Progress, 64),
	}
}

// SetSteps overrides the per-record step sequence. Unknown kinds are
// rejected.
func (o *Orchestrator) SetSteps(steps []StepKind) error {
	for _, k := range steps {
		if _, ok := stepRegistry[k]; !ok {
			return fmt.Errorf("unregistered step kind %d", int(k))
		}
	}
	o.steps = steps
	return nil
}

// Progress returns the update channel. Updates are dropped, never blocked
// on, when the consumer lags.
func (o *Orchestrator) Progress() <-chan Progress {
	return o.progress
}

func (o *Orchestrator) emit(p Progress) {
	select {
	case o.progress <- p:
	default:
	}
}

// Run executes the batch. A record source failure is input-fatal: nothing is
// exported and the error is returned. Every other path, including stop and
// cancellation, exports the results accumulated so far.
func (o *Orchestrator) Run(ctx context.Context, inputPath, outputPath string) (Summary, error) {
	defer close(o.progress)

	summary := Summary{RunID: o.runID, Status: StatusRunning, OutputPath: outputPath}

	recs, err := o.source.Load(inputPath)
	if err != nil {
		summary.Status = StatusFailed
		o.logger.Error("Loading input records failed.", zap.Error(err))
		return summary, fmt.Errorf("loading records: %w", err)
	}
	summary.Total = len(recs)
	o.logger.Info("Batch started.", zap.Int("total", len(recs)))

	defer func() {
		if err := o.sink.Export(o.results, outputPath); err != nil {
			o.logger.Error("Exporting results failed.", zap.Error(err))
		}
	}()

	for i, rec := range recs {
		if o.cancelled(ctx) {
			summary.Status = StatusCancelled
			o.logger.Warn("Batch cancelled.", zap.Int("processed", summary.Processed))
			return summary, nil
		}

		o.emit(Progress{Index: i + 1, Total: len(recs), Record: rec,
			Message: fmt.Sprintf("querying %s", rec.Name)})

		result := o.processRecord(ctx, rec)
		o.results = append(o.results, result)
		summary.Processed++
		if result.Success {
			summary.Succeeded++
		} else {
			summary.Failed++
		}

		o.emit(Progress{Index: i + 1, Total: len(recs), Record: rec, Message: result.Detail})

		if result.Detail == detailStopped {
			summary.Status = StatusCancelled
			return summary, nil
		}

		if i < len(recs)-1 {
			if stopped := o.pause(ctx, o.cfg.Query.RecordDelay); stopped {
				summary.Status = StatusCancelled
				return summary, nil
			}
		}
	}

	summary.Status = StatusSucceeded
	o.logger.Info("Batch finished.",
		zap.Int("succeeded", summary.Succeeded), zap.Int("failed", summary.Failed))
	return summary, nil
}

// processRecord runs the step sequence for one record and classifies the
// outcome. Step failures are record-level: the batch continues.
func (o *Orchestrator) processRecord(ctx context.Context, rec records.QueryRecord) records.QueryResult {
	result := records.QueryResult{Record: rec, QueriedAt: time.Now()}
	st := &recordState{record: rec}

	for _, kind := range o.steps {
		if o.cancelled(ctx) {
			result.Detail = detailStopped
			return result
		}

		if err := stepRegistry[kind](ctx, o, st); err != nil {
			result.Detail = classifyStepError(kind, err)
			o.logger.Warn("Record step failed.",
				zap.Int("row", rec.Row),
				zap.String("step", kind.String()),
				zap.Error(err))
			return result
		}
	}

	if st.outcome != nil {
		result.Success = st.outcome.Success
		result.CaseCount = st.outcome.CaseCount
		switch {
		case !st.outcome.Success:
			result.Detail = st.outcome.Message
		case st.outcome.CaseCount > 0:
			result.Detail = detailCasesFound
		default:
			result.Detail = detailNoCases
		}
	} else {
		// Extraction was not part of the step sequence; the submit itself
		// counts as the outcome.
		result.Success = true
		result.Detail = detailNoCases
	}
	return result
}

// classifyStepError turns a step failure into the result detail string.
func classifyStepError(kind StepKind, err error) string {
	switch {
	case errors.Is(err, browser.ErrStopped), errors.Is(err, context.Canceled):
		return detailStopped
	case errors.Is(err, captcha.ErrExhausted):
		return detailCaptchaFailed
	case errors.Is(err, errFormSubmission):
		return detailFormFailed
	case kind == StepSolveCaptcha:
		return detailCaptchaFailed
	case kind == StepFillSubmit:
		return detailFormFailed
	default:
		return err.Error()
	}
}

// cancelled samples both cancellation sources.
func (o *Orchestrator) cancelled(ctx context.Context) bool {
	return ctx.Err() != nil || o.stopper.Stopped()
}

// pause sleeps for delay in slices, returning true as soon as a stop is
// observed.
func (o *Orchestrator) pause(ctx context.Context, delay time.Duration) (stopped bool) {
	for remaining := delay; remaining > 0; remaining -= delaySlice {
		if o.cancelled(ctx) {
			return true
		}
		slice := delaySlice
		if remaining < slice {
			slice = remaining
		}
		timer := time.NewTimer(slice)
		select {
		case <-ctx.Done():
			timer.Stop()
			return true
		case <-timer.C:
		}
	}
	return o.cancelled(ctx)
}
