package retry

import (
	"fmt"
	"strings"

	"github.com/cleanconnect/cleanconnect/app/models"
	"github.com/cleanconnect/cleanconnect/internal/pkg/mail"
)

func noticeSubject(n Notice) string {
	switch n {
	case NoticeCheckBalance:
		return "Your cleaning payment did not go through"
	case NoticeUpdatePaymentMethod:
		return "Second failed payment: please update your payment method"
	case NoticeSubscriptionPaused:
		return "Your cleaning subscription has been paused"
	default:
		return "Payment update"
	}
}

func customerNotice(account *models.Account, sub *models.Subscription, n Notice) mail.Message {
	var b strings.Builder
	name := account.Name
	if name == "" {
		name = "customer"
	}
	fmt.Fprintf(&b, "Hello %s,\n\n", name)

	switch n {
	case NoticeCheckBalance:
		b.WriteString("We could not collect the payment for your cleaning subscription. ")
		b.WriteString("Please make sure your account has sufficient balance.\n")
	case NoticeUpdatePaymentMethod:
		b.WriteString("The payment for your cleaning subscription failed again. ")
		b.WriteString("Please update your payment method to avoid interruption.\n")
	case NoticeSubscriptionPaused:
		b.WriteString("After three failed payments your cleaning subscription has been paused. ")
		b.WriteString("Update your payment method and contact us to resume it.\n")
	}
	if sub.Retry.NextRetryDate != nil {
		fmt.Fprintf(&b, "\nWe will try again on %s.\n", sub.Retry.NextRetryDate.Format("02-01-2006"))
	}

	return mail.Message{To: account.Email, Subject: noticeSubject(n), Body: b.String()}
}

func adminNotice(to string, sub *models.Subscription, account *models.Account, reason string) mail.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Payment failed for subscription %d.\n", sub.ID)
	if account != nil {
		fmt.Fprintf(&b, "Customer: %s <%s>\n", account.Name, account.Email)
	}
	fmt.Fprintf(&b, "Reason: %s\nRetry count: %d of %d\nStatus: %s\n", reason, sub.Retry.Count, models.MaxPaymentRetries, sub.Status)
	if sub.Retry.NextRetryDate != nil {
		fmt.Fprintf(&b, "Next retry: %s\n", sub.Retry.NextRetryDate.Format("2006-01-02"))
	}
	return mail.Message{
		To:      to,
		Subject: fmt.Sprintf("Payment failed: subscription %d (%d/%d)", sub.ID, sub.Retry.Count, models.MaxPaymentRetries),
		Body:    b.String(),
	}
}
