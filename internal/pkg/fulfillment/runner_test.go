package fulfillment

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleanconnect/cleanconnect/internal/pkg/apperr"
)

type trace struct {
	ran []string
}

func record(name string, err error) func(context.Context, *trace) error {
	return func(_ context.Context, tr *trace) error {
		tr.ran = append(tr.ran, name)
		return err
	}
}

func TestRunStepsContinuesAfterNonFatalFailure(t *testing.T) {
	tr := &trace{}
	report, err := RunSteps(context.Background(), []Step[trace]{
		{Name: "a", Fatal: true, Run: record("a", nil)},
		{Name: "b", Fatal: false, Run: record("b", errors.New("smtp down"))},
		{Name: "c", Fatal: false, Run: record("c", Skip("disabled"))},
		{Name: "d", Fatal: true, Run: record("d", nil)},
	}, tr)

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, tr.ran)
	require.Len(t, report.Steps, 4)
	assert.Equal(t, StepOK, report.Steps[0].Status)
	assert.Equal(t, StepFailed, report.Steps[1].Status)
	assert.Equal(t, "smtp down", report.Steps[1].Detail)
	assert.Equal(t, StepSkipped, report.Steps[2].Status)
	assert.Equal(t, []string{"b"}, report.Failed())
}

func TestRunStepsStopsOnFatalFailure(t *testing.T) {
	tr := &trace{}
	boom := errors.New("db gone")
	report, err := RunSteps(context.Background(), []Step[trace]{
		{Name: "a", Fatal: true, Run: record("a", nil)},
		{Name: "b", Fatal: true, Run: record("b", boom)},
		{Name: "c", Fatal: false, Run: record("c", nil)},
	}, tr)

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	var collab *apperr.CollaboratorError
	require.ErrorAs(t, err, &collab)
	assert.Equal(t, "b", collab.Step)
	assert.True(t, collab.Fatal)

	assert.Equal(t, []string{"a", "b"}, tr.ran)
	assert.Len(t, report.Steps, 2)
}

func TestRunStepsStopSignalEndsSuccessfully(t *testing.T) {
	tr := &trace{}
	report, err := RunSteps(context.Background(), []Step[trace]{
		{Name: "check", Fatal: true, Run: record("check", errStop)},
		{Name: "never", Fatal: true, Run: record("never", nil)},
	}, tr)

	require.NoError(t, err)
	assert.Equal(t, []string{"check"}, tr.ran)
	require.Len(t, report.Steps, 1)
	assert.Equal(t, StepOK, report.Steps[0].Status)
}

func TestRunStepsHonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tr := &trace{}
	_, err := RunSteps(ctx, []Step[trace]{
		{Name: "a", Fatal: true, Run: func(_ context.Context, tr *trace) error {
			tr.ran = append(tr.ran, "a")
			cancel()
			return nil
		}},
		{Name: "b", Fatal: false, Run: record("b", nil)},
	}, tr)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"a"}, tr.ran)
}
