package fulfillment

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/cleanconnect/cleanconnect/internal/pkg/apperr"
)

// StepStatus is the outcome of one saga step.
type StepStatus string

const (
	StepOK      StepStatus = "ok"
	StepFailed  StepStatus = "failed"
	StepSkipped StepStatus = "skipped"
)

// StepResult captures the outcome of a saga step.
type StepResult struct {
	Name       string     `json:"name"`
	Status     StepStatus `json:"status"`
	Fatal      bool       `json:"fatal"`
	DurationMS int64      `json:"duration_ms"`
	Detail     string     `json:"detail,omitempty"`
}

// Report lists the executed steps in order.
type Report struct {
	Steps []StepResult `json:"steps"`
}

// Failed returns the names of steps that failed.
func (r Report) Failed() []string {
	var out []string
	for _, s := range r.Steps {
		if s.Status == StepFailed {
			out = append(out, s.Name)
		}
	}
	return out
}

// Step is one entry of the saga. A Fatal step aborts the run when it fails.
type Step[S any] struct {
	Name  string
	Fatal bool
	Run   func(ctx context.Context, state *S) error
}

// errStop ends the run successfully after the current step.
var errStop = errors.New("stop saga")

// skipError marks a step as skipped rather than failed.
type skipError struct{ reason string }

func (e skipError) Error() string { return e.reason }

// Skip reports that a step had nothing to do.
func Skip(reason string) error { return skipError{reason: reason} }

// RunSteps executes steps strictly in order. Fatal failures stop the run
// and are returned as *apperr.CollaboratorError. Non-fatal failures are
// logged with fields and the run continues.
func RunSteps[S any](ctx context.Context, steps []Step[S], state *S, fields ...any) (Report, error) {
	report := Report{Steps: make([]StepResult, 0, len(steps))}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			report.Steps = append(report.Steps, StepResult{Name: step.Name, Status: StepSkipped, Fatal: step.Fatal, Detail: err.Error()})
			log.Errorw("[Fulfillment] Aborted before step", logFields(fields, step.Name, err)...)
			return report, &apperr.CollaboratorError{Step: step.Name, Fatal: true, Err: err}
		}

		start := time.Now()
		err := step.Run(ctx, state)
		res := StepResult{
			Name:       step.Name,
			Status:     StepOK,
			Fatal:      step.Fatal,
			DurationMS: time.Since(start).Milliseconds(),
		}

		var skip skipError
		switch {
		case err == nil:
		case errors.Is(err, errStop):
			report.Steps = append(report.Steps, res)
			return report, nil
		case errors.As(err, &skip):
			res.Status = StepSkipped
			res.Detail = skip.reason
		case step.Fatal:
			res.Status = StepFailed
			res.Detail = err.Error()
			report.Steps = append(report.Steps, res)
			log.Errorw("[Fulfillment] Fatal step failed", logFields(fields, step.Name, err)...)
			return report, &apperr.CollaboratorError{Step: step.Name, Fatal: true, Err: err}
		default:
			res.Status = StepFailed
			res.Detail = err.Error()
			log.Warnw("[Fulfillment] Non-fatal step failed, continuing", logFields(fields, step.Name, err)...)
		}

		report.Steps = append(report.Steps, res)
	}

	return report, nil
}

func logFields(fields []any, step string, err error) []any {
	out := make([]any, 0, len(fields)+4)
	out = append(out, fields...)
	return append(out, "step", step, "error", err)
}
