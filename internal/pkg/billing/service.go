package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/courseloop/courseloop/app/models"
	"github.com/courseloop/courseloop/internal/pkg/entitlements"
	"gorm.io/gorm"
)

// Service reconciles provider billing events into local subscription state.
type Service struct {
	repo          Repository
	notifyPastDue func(user *models.User, sub *models.Subscription)
}

// NewService creates a billing service from an injected repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db))
}

// SetPastDueNotifier registers a best-effort hook fired when a reconcile
// lands a subscription in past_due. The hook must never block for long and
// must swallow its own failures.
func (s *Service) SetPastDueNotifier(fn func(user *models.User, sub *models.Subscription)) {
	s.notifyPastDue = fn
}

// ResolveMappedPlan resolves a provider price reference to an internal plan.
func (s *Service) ResolveMappedPlan(ctx context.Context, provider, providerPriceRef, interval string) (string, error) {
	_ = ctx
	p := strings.ToLower(strings.TrimSpace(provider))
	ref := strings.TrimSpace(providerPriceRef)
	i := normalizeInterval(interval)
	if p == "" || ref == "" {
		return string(entitlements.PlanFree), errors.New("provider and provider price ref are required")
	}

	// Prefer exact interval match.
	m, err := s.repo.FindActivePlanMapping(p, ref, i)
	if err == nil {
		return normalizePlan(m.InternalPlan), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	// Fallback for mappings that intentionally use "unknown".
	m, err = s.repo.FindActivePlanMapping(p, ref, "unknown")
	if err == nil {
		return normalizePlan(m.InternalPlan), nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return string(entitlements.PlanFree), gorm.ErrRecordNotFound
	}
	return "", err
}

// UpsertFromEvent applies a subscription created/updated payload. The local
// user is resolved through the provider customer id; a miss fails the whole
// event so the provider retries and no orphan row is written. Returns whether
// the write was applied (false when skipped as stale).
func (s *Service) UpsertFromEvent(ctx context.Context, ev *SubscriptionEvent, eventAt time.Time, raw []byte) (bool, error) {
	if ev == nil || strings.TrimSpace(ev.SubscriptionID) == "" {
		return false, errors.New("subscription event is empty")
	}

	user, err := s.lookupUser(ev.CustomerID)
	if err != nil {
		return false, err
	}

	status := ev.Status
	if status == "" {
		status = models.SubscriptionStatusActive
	}
	interval := normalizeInterval(ev.BillingInterval)

	internalPlan, err := s.ResolveMappedPlan(ctx, models.BillingProviderStripe, ev.PriceID, interval)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}
	if internalPlan == "" {
		internalPlan = string(entitlements.PlanFree)
	}

	eventTime := eventAt.UTC()
	sub := &models.Subscription{
		UserID:                 user.ID,
		Provider:               models.BillingProviderStripe,
		ProviderSubscriptionID: ev.SubscriptionID,
		ProviderPriceRef:       ev.PriceID,
		InternalPlan:           internalPlan,
		BillingInterval:        interval,
		Status:                 status,
		CurrentPeriodEnd:       ev.CurrentPeriodEnd,
		CancelAtPeriodEnd:      ev.CancelAtPeriodEnd,
		LastEventAt:            &eventTime,
		RawPayloadJSON:         string(raw),
	}

	applied, err := s.repo.UpsertSubscription(sub)
	if err != nil {
		return false, err
	}
	if !applied {
		return false, nil
	}

	if _, err := s.ReconcileUserPlan(ctx, user.ID); err != nil {
		return true, err
	}

	if sub.Status == models.SubscriptionStatusPastDue && s.notifyPastDue != nil {
		s.notifyPastDue(user, sub)
	}
	return true, nil
}

// CancelFromEvent applies a subscription deleted payload. The row is kept
// with status canceled. A missing row is reported via found=false and left to
// the caller; the standard path treats it as a no-op.
func (s *Service) CancelFromEvent(ctx context.Context, ev *SubscriptionEvent, eventAt time.Time) (bool, error) {
	if ev == nil || strings.TrimSpace(ev.SubscriptionID) == "" {
		return false, errors.New("subscription event is empty")
	}

	user, err := s.lookupUser(ev.CustomerID)
	if err != nil {
		return false, err
	}

	found, err := s.repo.MarkSubscriptionCanceled(models.BillingProviderStripe, ev.SubscriptionID, eventAt.UTC())
	if err != nil {
		return found, err
	}
	if !found {
		return false, nil
	}

	_, err = s.ReconcileUserPlan(ctx, user.ID)
	return true, err
}

// LinkCustomerFromCheckout stores the user <-> provider customer link carried
// by a completed checkout session. The user id travels in the session's
// client reference, set when the session was created.
func (s *Service) LinkCustomerFromCheckout(ctx context.Context, ev *CheckoutSessionEvent) error {
	_ = ctx
	if ev == nil || ev.CustomerID == "" {
		return errors.New("checkout session event is empty")
	}

	// Already linked: nothing to do.
	if _, err := s.repo.GetUserByCustomerID(ev.CustomerID); err == nil {
		return nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	ref := strings.TrimSpace(ev.ClientReferenceID)
	if ref == "" {
		return fmt.Errorf("checkout session %s has no client reference to link customer %s", ev.SessionID, ev.CustomerID)
	}
	userID, err := strconv.ParseUint(ref, 10, 64)
	if err != nil || userID == 0 {
		return fmt.Errorf("checkout session %s has invalid client reference %q", ev.SessionID, ref)
	}

	return s.repo.SetUserCustomerID(uint(userID), ev.CustomerID)
}

// ReconcileUserPlan computes and writes the best effective plan for a user.
func (s *Service) ReconcileUserPlan(ctx context.Context, userID uint) (string, error) {
	_ = ctx
	if userID == 0 {
		return "", errors.New("user_id is required")
	}

	subs, err := s.repo.ListSubscriptionsByUser(userID)
	if err != nil {
		return "", err
	}

	best := string(entitlements.PlanFree)
	for _, sub := range subs {
		if !isEntitlingStatus(sub.Status) {
			continue
		}
		candidate := normalizePlan(sub.InternalPlan)
		if planRank(candidate) > planRank(best) {
			best = candidate
		}
	}

	us, err := s.repo.GetOrCreateUserSettings(userID)
	if err != nil {
		return "", err
	}
	if normalizePlan(us.Plan) == best {
		return best, nil
	}
	us.Plan = best
	if err := s.repo.SaveUserSettings(us); err != nil {
		return "", err
	}
	return best, nil
}

// RecordWebhookEvent persists webhook payloads idempotently. Returns whether
// this delivery is the first one seen for the event id.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.WebhookEvent, error) {
	_ = ctx
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.WebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	_ = ctx
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(webhookEventID, errMsg)
}

func (s *Service) lookupUser(customerID string) (*models.User, error) {
	cid := strings.TrimSpace(customerID)
	if cid == "" {
		return nil, fmt.Errorf("%w: empty customer id", ErrUserNotFound)
	}
	user, err := s.repo.GetUserByCustomerID(cid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, cid)
		}
		return nil, err
	}
	return user, nil
}
