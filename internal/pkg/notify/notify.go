// Package notify stores in-app notifications.
package notify

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2/log"

	"github.com/cleanconnect/cleanconnect/app/models"
	"github.com/cleanconnect/cleanconnect/app/repository"
)

// Recipient is one in-app notification target.
type Recipient struct {
	AccountID   uint
	Type        string
	Content     string
	ReferenceID uint
}

type Service struct {
	repo repository.NotificationRepository
}

func NewService(repo repository.NotificationRepository) *Service {
	return &Service{repo: repo}
}

// NotifyAll creates one notification per recipient. Recipients are
// independent: a failure is logged and the rest are still attempted. The
// joined error reports every failure.
func (s *Service) NotifyAll(ctx context.Context, recipients []Recipient) (int, error) {
	var errs []error
	sent := 0
	for _, r := range recipients {
		if r.AccountID == 0 {
			continue
		}
		n := &models.Notification{
			AccountID:   r.AccountID,
			Type:        r.Type,
			Content:     r.Content,
			ReferenceID: r.ReferenceID,
		}
		if err := s.repo.Create(ctx, n); err != nil {
			log.Errorw("[Notify] Create failed", "account_id", r.AccountID, "type", r.Type, "error", err)
			errs = append(errs, err)
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}
