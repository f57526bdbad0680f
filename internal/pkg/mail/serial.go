package mail

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// SendResult is the outcome of one message in a batch.
type SendResult struct {
	To    string `json:"to"`
	Label string `json:"label"`
	Error string `json:"error,omitempty"`
}

// Labeled pairs a message with a short label for logs and reports.
type Labeled struct {
	Label   string
	Message Message
}

// SerialSender sends messages one at a time with a fixed pause between sends
// to stay under the provider's rate limit.
type SerialSender struct {
	mailer Mailer
	delay  time.Duration
}

func NewSerialSender(mailer Mailer, delay time.Duration) *SerialSender {
	return &SerialSender{mailer: mailer, delay: delay}
}

// SendAll never fails as a whole: each send error is logged and recorded in
// its result. Cancelling ctx stops the remaining sends.
func (s *SerialSender) SendAll(ctx context.Context, batch []Labeled) []SendResult {
	results := make([]SendResult, 0, len(batch))
	for i, item := range batch {
		if i > 0 && s.delay > 0 {
			timer := time.NewTimer(s.delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				for _, rest := range batch[i:] {
					results = append(results, SendResult{To: rest.Message.To, Label: rest.Label, Error: ctx.Err().Error()})
				}
				log.Warnf("[Mail] Batch interrupted after %d of %d sends: %v", i, len(batch), ctx.Err())
				return results
			case <-timer.C:
			}
		}

		res := SendResult{To: item.Message.To, Label: item.Label}
		if err := s.mailer.Send(ctx, item.Message); err != nil {
			log.Errorw("[Mail] Send failed", "label", item.Label, "to", item.Message.To, "error", err)
			res.Error = err.Error()
		}
		results = append(results, res)
	}
	return results
}
