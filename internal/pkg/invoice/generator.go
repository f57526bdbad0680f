// Package invoice creates invoice rows for successful payments and, when
// enabled, archives a rendered document.
package invoice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cleanconnect/cleanconnect/app/models"
	"github.com/cleanconnect/cleanconnect/app/repository"
)

// Input describes the payment being invoiced.
type Input struct {
	AccountID       uint
	PaymentRecordID uint
	CustomerName    string
	CustomerEmail   string
	Description     string
	AmountCents     int64
	Currency        string
}

type Generator struct {
	repo    repository.InvoiceRepository
	archive Archiver
	config  *ArchiveConfig
	now     func() time.Time
}

// NewGenerator returns a generator. archive may be nil to skip documents.
func NewGenerator(repo repository.InvoiceRepository, archive Archiver, cfg *ArchiveConfig) *Generator {
	if cfg == nil {
		cfg = &ArchiveConfig{}
	}
	return &Generator{repo: repo, archive: archive, config: cfg, now: time.Now}
}

// Generate creates the invoice for in.PaymentRecordID or returns the one a
// previous run created. A failed archive upload keeps the row and returns it
// together with the error.
func (g *Generator) Generate(ctx context.Context, in Input) (*models.Invoice, error) {
	existing, err := g.repo.GetByPaymentRecordID(ctx, in.PaymentRecordID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	issued := g.now()
	inv := &models.Invoice{
		Number:          NewNumber(issued),
		AccountID:       in.AccountID,
		PaymentRecordID: in.PaymentRecordID,
		AmountCents:     in.AmountCents,
		Currency:        strings.ToLower(in.Currency),
	}
	if err := g.repo.Create(ctx, inv); err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}

	if g.archive == nil {
		return inv, nil
	}

	key := g.config.ObjectKey(inv.Number, issued)
	if err := g.archive.Put(ctx, key, Render(inv, in, issued), "text/plain; charset=utf-8"); err != nil {
		return inv, fmt.Errorf("archive invoice %s: %w", inv.Number, err)
	}
	if err := g.repo.SetDocumentKey(ctx, inv.ID, key); err != nil {
		return inv, fmt.Errorf("store document key: %w", err)
	}
	inv.DocumentKey = key
	return inv, nil
}

// NewNumber returns an invoice number like CC-20260314-1A2B3C4D.
func NewNumber(issued time.Time) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("CC-%s-%s", issued.Format("20060102"), strings.ToUpper(id[:8]))
}

// Render produces the plain text invoice document.
func Render(inv *models.Invoice, in Input, issued time.Time) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "Invoice %s\n", inv.Number)
	fmt.Fprintf(&b, "Date: %s\n\n", issued.Format("2006-01-02"))
	if in.CustomerName != "" {
		fmt.Fprintf(&b, "%s\n", in.CustomerName)
	}
	fmt.Fprintf(&b, "%s\n\n", in.CustomerEmail)
	desc := in.Description
	if desc == "" {
		desc = "Cleaning service"
	}
	fmt.Fprintf(&b, "%s\t%s\n", desc, FormatAmount(inv.AmountCents, inv.Currency))
	fmt.Fprintf(&b, "Paid\t%s\n", FormatAmount(inv.AmountCents, inv.Currency))
	return []byte(b.String())
}

// FormatAmount renders cents as "EUR 100.00".
func FormatAmount(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s %s%d.%02d", strings.ToUpper(currency), sign, cents/100, cents%100)
}
