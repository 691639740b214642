// File: internal/task/steps.go
package task

import (
	"context"
	"fmt"
)

// StepKind names one stage of the per-record pipeline. The set is closed:
// configuration may reorder or drop steps, but it can only select kinds
// registered here.
type StepKind int

const (
	StepNavigate StepKind = iota
	StepWaitReady
	StepSolveCaptcha
	StepFillSubmit
	StepExtractResult
)

// String returns the configuration name of the step.
func (k StepKind) String() string {
	switch k {
	case StepNavigate:
		return "navigate"
	case StepWaitReady:
		return "waitReady"
	case StepSolveCaptcha:
		return "solveCaptcha"
	case StepFillSubmit:
		return "fillSubmit"
	case StepExtractResult:
		return "extractResult"
	default:
		return fmt.Sprintf("StepKind(%d)", int(k))
	}
}

// ParseStepKind maps a configuration name back to its kind.
func ParseStepKind(name string) (StepKind, error) {
	for _, k := range []StepKind{StepNavigate, StepWaitReady, StepSolveCaptcha, StepFillSubmit, StepExtractResult} {
		if k.String() == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown step kind %q", name)
}

// stepFunc executes one stage against the orchestrator's collaborators,
// accumulating into the record state.
type stepFunc func(ctx context.Context, o *Orchestrator, st *recordState) error

// stepRegistry binds every kind to its implementation at compile time.
var stepRegistry = map[StepKind]stepFunc{
	StepNavigate:      stepNavigate,
	StepWaitReady:     stepWaitReady,
	StepSolveCaptcha:  stepSolveCaptcha,
	StepFillSubmit:    stepFillSubmit,
	StepExtractResult: stepExtractResult,
}

// DefaultSteps is the standard per-record sequence.
func DefaultSteps() []StepKind {
	return []StepKind{StepNavigate, StepWaitReady, StepSolveCaptcha, StepFillSubmit, StepExtractResult}
}

func stepNavigate(ctx context.Context, o *Orchestrator, st *recordState) error {
	if err := o.nav.NavigateReliably(ctx, o.cfg.Query.URL); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

func stepWaitReady(ctx context.Context, o *Orchestrator, st *recordState) error {
	if err := o.nav.WaitForPageReady(ctx, o.cfg.Network.ElementTimeout); err != nil {
		return fmt.Errorf("page not ready: %w", err)
	}
	return nil
}

func stepSolveCaptcha(ctx context.Context, o *Orchestrator, st *recordState) error {
	text, err := o.solver.Solve(ctx)
	if err != nil {
		return err
	}
	st.captchaText = text
	return nil
}

func stepFillSubmit(ctx context.Context, o *Orchestrator, st *recordState) error {
	ok, err := o.form.FillAndSubmit(ctx, st.record.IDNumber, st.captchaText)
	if err != nil {
		return err
	}
	if !ok {
		return errFormSubmission
	}
	return nil
}

func stepExtractResult(ctx context.Context, o *Orchestrator, st *recordState) error {
	result, err := o.form.ExtractResult(ctx)
	if err != nil {
		return err
	}
	st.outcome = &result
	return nil
}
