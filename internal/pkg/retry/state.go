// Package retry records failed recurring payments on a subscription and
// computes when the next attempt is due. It never schedules the attempt
// itself.
package retry

import (
	"fmt"
	"time"

	"github.com/cleanconnect/cleanconnect/app/models"
	"github.com/cleanconnect/cleanconnect/internal/pkg/apperr"
)

// Notice tells the customer what the new retry count means.
type Notice string

const (
	NoticeNone                Notice = ""
	NoticeCheckBalance        Notice = "check_balance"
	NoticeUpdatePaymentMethod Notice = "update_payment_method"
	NoticeSubscriptionPaused  Notice = "subscription_paused"
)

// delays[n-1] is the wait after failure n. The last entry is unused while
// the third failure pauses the subscription.
var delays = [...]int{1, 2, 4}

// Delay returns the number of days until the retry after failure count.
func Delay(count int) (int, error) {
	if count < 1 || count > len(delays) {
		return 0, &apperr.InvariantViolation{Detail: fmt.Sprintf("no retry delay for count %d", count)}
	}
	return delays[count-1], nil
}

// State is the part of a subscription the machine reads.
type State struct {
	Retry  models.RetryState
	Status string
}

// Transition is the result of one recorded failure.
type Transition struct {
	From    State
	To      State
	Changed bool
	Notice  Notice
}

// Validate checks the stored state for impossible combinations.
func (s State) Validate() error {
	c := s.Retry.Count
	if c < 0 || c > models.MaxPaymentRetries {
		return &apperr.InvariantViolation{Detail: fmt.Sprintf("retry count %d outside [0,%d]", c, models.MaxPaymentRetries)}
	}
	if c == models.MaxPaymentRetries && s.Retry.NextRetryDate != nil {
		return &apperr.InvariantViolation{Detail: "next retry date set on an exhausted subscription"}
	}
	return nil
}

// RecordFailure applies one failed payment to s. today must already be a
// calendar day (see models.CalendarDay). A state that already reached the
// maximum is returned unchanged.
func RecordFailure(s State, today time.Time, reason string) (Transition, error) {
	if err := s.Validate(); err != nil {
		return Transition{}, err
	}
	if s.Retry.Count == models.MaxPaymentRetries {
		return Transition{From: s, To: s}, nil
	}

	next := s
	next.Retry.Count = s.Retry.Count + 1
	day := today
	next.Retry.LastFailureDate = &day
	next.Retry.FailureReason = reason

	if next.Retry.Count < models.MaxPaymentRetries {
		d, err := Delay(next.Retry.Count)
		if err != nil {
			return Transition{}, err
		}
		due := today.AddDate(0, 0, d)
		next.Retry.NextRetryDate = &due
	} else {
		next.Retry.NextRetryDate = nil
		next.Status = models.SubscriptionStatusPaused
	}

	return Transition{From: s, To: next, Changed: true, Notice: noticeFor(next.Retry.Count)}, nil
}

func noticeFor(count int) Notice {
	switch count {
	case 1:
		return NoticeCheckBalance
	case 2:
		return NoticeUpdatePaymentMethod
	case models.MaxPaymentRetries:
		return NoticeSubscriptionPaused
	default:
		return NoticeNone
	}
}
