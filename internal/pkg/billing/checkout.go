package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/courseloop/courseloop/app/models"
	"github.com/courseloop/courseloop/internal/pkg/env"
	"github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
)

// SetupStripe configures the global Stripe client key. Call once at boot.
func SetupStripe() {
	stripe.Key = env.GetEnv("STRIPE_SECRET_KEY", "")
}

// CheckoutParams carries the caller-provided parts of a checkout session.
type CheckoutParams struct {
	PriceID    string
	SuccessURL string
	CancelURL  string
}

// CreateCheckoutSession creates a subscription-mode checkout session for the
// user, creating and persisting a provider customer first if the user has
// none. The user id is attached as the session's client reference so the
// completed-session webhook can re-establish the link.
func (s *Service) CreateCheckoutSession(ctx context.Context, user *models.User, p CheckoutParams) (*stripe.CheckoutSession, error) {
	if user == nil || user.ID == 0 {
		return nil, errors.New("user is required")
	}
	if strings.TrimSpace(p.PriceID) == "" {
		return nil, errors.New("price id is required")
	}

	customerID, err := s.ensureCustomer(ctx, user)
	if err != nil {
		return nil, err
	}

	params := &stripe.CheckoutSessionParams{
		Customer: stripe.String(customerID),
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(p.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(p.SuccessURL),
		CancelURL:         stripe.String(p.CancelURL),
		ClientReferenceID: stripe.String(strconv.FormatUint(uint64(user.ID), 10)),
	}
	params.Context = ctx

	sess, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return sess, nil
}

// CreatePortalSession creates a billing portal session for an existing
// provider customer. Users without a customer link get ErrNoCustomer.
func (s *Service) CreatePortalSession(ctx context.Context, user *models.User, returnURL string) (*stripe.BillingPortalSession, error) {
	if user == nil || strings.TrimSpace(user.StripeCustomerID) == "" {
		return nil, ErrNoCustomer
	}

	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(user.StripeCustomerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	sess, err := portalsession.New(params)
	if err != nil {
		return nil, fmt.Errorf("create portal session: %w", err)
	}
	return sess, nil
}

func (s *Service) ensureCustomer(ctx context.Context, user *models.User) (string, error) {
	if cid := strings.TrimSpace(user.StripeCustomerID); cid != "" {
		return cid, nil
	}

	params := &stripe.CustomerParams{
		Email: stripe.String(user.Email),
		Name:  stripe.String(user.Name),
	}
	params.Context = ctx
	params.AddMetadata("user_id", strconv.FormatUint(uint64(user.ID), 10))

	cust, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}

	if err := s.repo.SetUserCustomerID(user.ID, cust.ID); err != nil {
		// The provider-side customer exists but the link write failed. The
		// next attempt will create a second customer; surfacing the error is
		// still better than a user checking out against an unlinked customer.
		return "", fmt.Errorf("persist customer link: %w", err)
	}
	user.StripeCustomerID = cust.ID
	return cust.ID, nil
}
