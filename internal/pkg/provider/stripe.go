// Package provider wraps the payment provider API for the auxiliary lookups
// the fulfillment saga needs. It never initiates charges.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"

	"github.com/cleanconnect/cleanconnect/internal/pkg/env"
)

var ErrNotConfigured = errors.New("payment provider not configured")

// PaymentIntent is the subset of a provider payment intent the saga reads.
type PaymentIntent struct {
	ID             string
	Status         string
	AmountReceived int64
	Currency       string
	CustomerID     string
	PaymentMethod  string
}

// Client is the provider surface used by the saga.
type Client interface {
	FindOrCreateCustomer(ctx context.Context, email, name string) (string, error)
	AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error
	RetrievePaymentIntent(ctx context.Context, id string) (*PaymentIntent, error)
}

// StripeClient implements Client on stripe-go.
type StripeClient struct {
	api *client.API
}

// NewStripeClient returns nil when key is empty so callers can skip the
// provider step instead of failing on every call.
func NewStripeClient(key string, backends *stripe.Backends) *StripeClient {
	if strings.TrimSpace(key) == "" {
		return nil
	}
	return &StripeClient{api: client.New(key, backends)}
}

func NewStripeClientFromEnv() *StripeClient {
	c := NewStripeClient(env.GetEnv("STRIPE_SECRET_KEY", ""), nil)
	if c == nil {
		log.Warn("[Provider] STRIPE_SECRET_KEY not set, provider customer step will be skipped")
	}
	return c
}

// FindOrCreateCustomer searches by email first so repeated runs do not create
// duplicate customers.
func (c *StripeClient) FindOrCreateCustomer(ctx context.Context, email, name string) (string, error) {
	if c == nil || c.api == nil {
		return "", ErrNotConfigured
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", errors.New("provider: email is required")
	}

	params := &stripe.CustomerSearchParams{
		SearchParams: stripe.SearchParams{
			Context: ctx,
			Query:   fmt.Sprintf("email:'%s'", strings.ReplaceAll(email, "'", "\\'")),
		},
	}
	iter := c.api.Customers.Search(params)
	for iter.Next() {
		if cus := iter.Customer(); cus != nil && !cus.Deleted {
			return cus.ID, nil
		}
	}
	if err := iter.Err(); err != nil {
		return "", fmt.Errorf("customer search: %w", err)
	}

	createParams := &stripe.CustomerParams{
		Params: stripe.Params{Context: ctx},
		Email:  stripe.String(email),
	}
	if name = strings.TrimSpace(name); name != "" {
		createParams.Name = stripe.String(name)
	}
	cus, err := c.api.Customers.New(createParams)
	if err != nil {
		return "", fmt.Errorf("customer create: %w", err)
	}
	log.Infof("[Provider] Created customer %s", cus.ID)
	return cus.ID, nil
}

func (c *StripeClient) AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	if c == nil || c.api == nil {
		return ErrNotConfigured
	}
	if customerID == "" || paymentMethodID == "" {
		return errors.New("provider: customer and payment method are required")
	}

	_, err := c.api.PaymentMethods.Attach(paymentMethodID, &stripe.PaymentMethodAttachParams{
		Params:   stripe.Params{Context: ctx},
		Customer: stripe.String(customerID),
	})
	if err != nil {
		return fmt.Errorf("attach payment method: %w", err)
	}
	return nil
}

func (c *StripeClient) RetrievePaymentIntent(ctx context.Context, id string) (*PaymentIntent, error) {
	if c == nil || c.api == nil {
		return nil, ErrNotConfigured
	}
	pi, err := c.api.PaymentIntents.Get(id, &stripe.PaymentIntentParams{Params: stripe.Params{Context: ctx}})
	if err != nil {
		return nil, fmt.Errorf("retrieve payment intent: %w", err)
	}

	out := &PaymentIntent{
		ID:             pi.ID,
		Status:         string(pi.Status),
		AmountReceived: pi.AmountReceived,
		Currency:       string(pi.Currency),
	}
	if pi.Customer != nil {
		out.CustomerID = pi.Customer.ID
	}
	if pi.PaymentMethod != nil {
		out.PaymentMethod = pi.PaymentMethod.ID
	}
	return out, nil
}
