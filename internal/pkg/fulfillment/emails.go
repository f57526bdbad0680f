package fulfillment

import (
	"fmt"
	"strings"

	"github.com/cleanconnect/cleanconnect/app/models"
	"github.com/cleanconnect/cleanconnect/internal/pkg/invoice"
	"github.com/cleanconnect/cleanconnect/internal/pkg/mail"
)

// fulfillmentEmails builds the admin, customer and cleaner messages for a
// completed run. Recipients without an address are left out.
func fulfillmentEmails(adminEmail string, st *runState) []mail.Labeled {
	var batch []mail.Labeled
	summary := orderSummary(st)

	if adminEmail != "" {
		var b strings.Builder
		fmt.Fprintf(&b, "New paid order from %s <%s>.\n\n", st.account.Name, st.account.Email)
		b.WriteString(summary)
		fmt.Fprintf(&b, "\nPayment: %s\n", st.externalID)
		if st.cleaner == nil {
			b.WriteString("No cleaner could be assigned automatically; please assign one manually.\n")
		}
		batch = append(batch, mail.Labeled{Label: "admin", Message: mail.Message{
			To:      adminEmail,
			Subject: "New order " + orderDetail(st.order),
			Body:    b.String(),
		}})
	}

	var b strings.Builder
	name := st.account.Name
	if name == "" {
		name = "customer"
	}
	fmt.Fprintf(&b, "Hello %s,\n\nThank you for your payment. Your order has been received.\n\n", name)
	b.WriteString(summary)
	if st.invoice != nil {
		fmt.Fprintf(&b, "Invoice: %s\n", st.invoice.Number)
	}
	if st.accountCreated && st.initialPassword != "" {
		fmt.Fprintf(&b, "\nWe created an account for you.\nLogin: %s\nPassword: %s\nPlease change it after your first login.\n",
			st.account.Email, st.initialPassword)
	}
	batch = append(batch, mail.Labeled{Label: "customer", Message: mail.Message{
		To:      st.account.Email,
		Subject: "Your cleaning order is confirmed",
		Body:    b.String(),
	}})

	if st.cleaner != nil && st.cleaner.Email != "" {
		var cb strings.Builder
		fmt.Fprintf(&cb, "Hello %s,\n\nA new cleaning request is waiting for you.\n\n", st.cleaner.Name)
		cb.WriteString(summary)
		if st.address != nil {
			fmt.Fprintf(&cb, "Location: %s %s\n", st.address.PostalCode, st.address.City)
		}
		batch = append(batch, mail.Labeled{Label: "cleaner", Message: mail.Message{
			To:      st.cleaner.Email,
			Subject: "New cleaning request",
			Body:    cb.String(),
		}})
	}

	return batch
}

func orderSummary(st *runState) string {
	var b strings.Builder
	m := st.meta
	if st.order.Kind == models.OrderKindJob {
		fmt.Fprintf(&b, "Job: %s\n", m.JobType)
		if m.DesiredDate != nil {
			fmt.Fprintf(&b, "Desired date: %s\n", m.DesiredDate.Format("2006-01-02"))
		}
	} else {
		fmt.Fprintf(&b, "Subscription: %s\n", m.Frequency)
		fmt.Fprintf(&b, "Price per visit: %s\n", invoice.FormatAmount(m.UnitPriceCents, st.event.Currency()))
	}
	if m.Hours > 0 {
		fmt.Fprintf(&b, "Hours: %g\n", m.Hours)
	}
	if st.payment != nil {
		fmt.Fprintf(&b, "Paid: %s\n", invoice.FormatAmount(st.payment.AmountCents, st.payment.Currency))
	}
	return b.String()
}
