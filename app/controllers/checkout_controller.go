package controllers

import (
	"errors"
	"fmt"
	"log"

	"github.com/courseloop/courseloop/app/models"
	"github.com/courseloop/courseloop/internal/pkg/billing"
	"github.com/courseloop/courseloop/internal/pkg/database"
	"github.com/courseloop/courseloop/internal/pkg/env"
	"github.com/courseloop/courseloop/internal/pkg/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

var validate = validator.New()

// CreateCheckoutSessionRequest is the payload for starting a subscription
// checkout. URLs are optional; the frontend defaults apply when omitted.
type CreateCheckoutSessionRequest struct {
	PriceID    string `json:"price_id" validate:"required"`
	SuccessURL string `json:"success_url" validate:"omitempty,url"`
	CancelURL  string `json:"cancel_url" validate:"omitempty,url"`
}

// CreatePortalSessionRequest is the payload for opening the billing portal.
type CreatePortalSessionRequest struct {
	ReturnURL string `json:"return_url" validate:"omitempty,url"`
}

// HandleCreateCheckoutSession creates a Stripe checkout session for the
// authenticated user and returns its redirect URL.
func HandleCreateCheckoutSession(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	var req CreateCheckoutSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request"})
	}

	appURL := env.GetEnv("APP_URL", "http://localhost:3000")
	if req.SuccessURL == "" {
		req.SuccessURL = appURL + "/billing/success"
	}
	if req.CancelURL == "" {
		req.CancelURL = appURL + "/billing"
	}

	sess, err := billingService.CreateCheckoutSession(c.UserContext(), user, billing.CheckoutParams{
		PriceID:    req.PriceID,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
	})
	if err != nil {
		log.Printf("checkout session failed for user %d: %v", user.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_error"})
	}

	securityAudit.Record(c.UserContext(), models.SecurityEventCheckoutSession,
		fmt.Sprintf("user=%d session=%s price=%s", user.ID, sess.ID, req.PriceID),
		requestID(c), middleware.ClientIP(c), string(c.Request().Header.UserAgent()))

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"url": sess.URL})
}

// HandleCreatePortalSession creates a Stripe billing portal session. Users
// who never checked out have no provider customer and get a 400.
func HandleCreatePortalSession(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	// An empty body is fine for this endpoint.
	var req CreatePortalSessionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request"})
		}
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request"})
	}

	returnURL := req.ReturnURL
	if returnURL == "" {
		returnURL = env.GetEnv("APP_URL", "http://localhost:3000") + "/billing"
	}

	sess, err := billingService.CreatePortalSession(c.UserContext(), user, returnURL)
	if err != nil {
		if errors.Is(err, billing.ErrNoCustomer) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "no_billing_account"})
		}
		log.Printf("portal session failed for user %d: %v", user.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_error"})
	}

	securityAudit.Record(c.UserContext(), models.SecurityEventPortalSession,
		fmt.Sprintf("user=%d session=%s", user.ID, sess.ID),
		requestID(c), middleware.ClientIP(c), string(c.Request().Header.UserAgent()))

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"url": sess.URL})
}

// HandleGetSubscription returns the caller's subscriptions and effective plan.
func HandleGetSubscription(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	db := database.GetDB()
	var subs []models.Subscription
	if err := db.Where("user_id = ?", user.ID).Order("id DESC").Find(&subs).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_error"})
	}
	settings, err := models.GetOrCreateUserSettings(db, user.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_error"})
	}

	out := make([]fiber.Map, 0, len(subs))
	for _, sub := range subs {
		out = append(out, fiber.Map{
			"provider":             sub.Provider,
			"subscription_id":      sub.ProviderSubscriptionID,
			"plan":                 sub.InternalPlan,
			"interval":             sub.BillingInterval,
			"status":               sub.Status,
			"current_period_end":   formatTimePtr(sub.CurrentPeriodEnd),
			"cancel_at_period_end": sub.CancelAtPeriodEnd,
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"plan":          settings.Plan,
		"subscriptions": out,
	})
}

func currentUser(c *fiber.Ctx) (*models.User, error) {
	userID, ok := gatewayUserID(c)
	if !ok {
		return nil, errors.New("missing user identity")
	}
	var user models.User
	if err := database.GetDB().First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("unknown user")
		}
		return nil, err
	}
	return &user, nil
}
