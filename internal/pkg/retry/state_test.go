package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleanconnect/cleanconnect/app/models"
	"github.com/cleanconnect/cleanconnect/internal/pkg/apperr"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestRecordFailureSchedule(t *testing.T) {
	state := State{Status: models.SubscriptionStatusActive}

	tests := []struct {
		today      string
		wantCount  int
		wantNext   string
		wantStatus string
		wantNotice Notice
	}{
		{today: "2026-03-01", wantCount: 1, wantNext: "2026-03-02", wantStatus: models.SubscriptionStatusActive, wantNotice: NoticeCheckBalance},
		{today: "2026-03-02", wantCount: 2, wantNext: "2026-03-04", wantStatus: models.SubscriptionStatusActive, wantNotice: NoticeUpdatePaymentMethod},
		{today: "2026-03-04", wantCount: 3, wantNext: "", wantStatus: models.SubscriptionStatusPaused, wantNotice: NoticeSubscriptionPaused},
	}

	for _, tt := range tests {
		tr, err := RecordFailure(state, day(tt.today), "insufficient_funds")
		require.NoError(t, err)
		assert.True(t, tr.Changed)
		assert.Equal(t, tt.wantCount, tr.To.Retry.Count)
		assert.Equal(t, tt.wantStatus, tr.To.Status)
		assert.Equal(t, tt.wantNotice, tr.Notice)
		assert.Equal(t, "insufficient_funds", tr.To.Retry.FailureReason)
		require.NotNil(t, tr.To.Retry.LastFailureDate)
		assert.Equal(t, tt.today, tr.To.Retry.LastFailureDate.Format("2006-01-02"))
		if tt.wantNext == "" {
			assert.Nil(t, tr.To.Retry.NextRetryDate)
		} else {
			require.NotNil(t, tr.To.Retry.NextRetryDate)
			assert.Equal(t, tt.wantNext, tr.To.Retry.NextRetryDate.Format("2006-01-02"))
		}
		state = tr.To
	}
}

func TestRecordFailureDelayIsFromEachFailure(t *testing.T) {
	// The second failure happens late; its retry is two days after it, not
	// three days after the first.
	tr, err := RecordFailure(State{Retry: models.RetryState{Count: 1}, Status: models.SubscriptionStatusActive}, day("2026-05-10"), "declined")
	require.NoError(t, err)
	assert.Equal(t, "2026-05-12", tr.To.Retry.NextRetryDate.Format("2006-01-02"))
}

func TestRecordFailureExhaustedIsNoOp(t *testing.T) {
	last := day("2026-03-04")
	s := State{Retry: models.RetryState{Count: 3, LastFailureDate: &last}, Status: models.SubscriptionStatusPaused}

	tr, err := RecordFailure(s, day("2026-03-09"), "declined")
	require.NoError(t, err)
	assert.False(t, tr.Changed)
	assert.Equal(t, NoticeNone, tr.Notice)
	assert.Equal(t, s, tr.To)
}

func TestRecordFailureRejectsInvalidState(t *testing.T) {
	next := day("2026-03-05")
	tests := []State{
		{Retry: models.RetryState{Count: -1}},
		{Retry: models.RetryState{Count: 4}},
		{Retry: models.RetryState{Count: 3, NextRetryDate: &next}},
	}

	for _, s := range tests {
		_, err := RecordFailure(s, day("2026-03-04"), "x")
		var inv *apperr.InvariantViolation
		assert.ErrorAs(t, err, &inv)
	}
}

func TestDelay(t *testing.T) {
	for count, want := range map[int]int{1: 1, 2: 2, 3: 4} {
		got, err := Delay(count)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := Delay(0)
	assert.Error(t, err)
	_, err = Delay(4)
	assert.Error(t, err)
}
