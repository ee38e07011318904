package controllers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/memberfox/memberfox/app/models"
	"github.com/memberfox/memberfox/app/repository"
	"github.com/memberfox/memberfox/internal/pkg/env"
	"github.com/memberfox/memberfox/internal/pkg/membership"
	"github.com/memberfox/memberfox/internal/pkg/renewal"
	"github.com/memberfox/memberfox/internal/pkg/scheduler"
	"github.com/memberfox/memberfox/internal/pkg/security"
)

// SubscriptionController handles subscription admin HTTP requests
type SubscriptionController struct {
	subs    repository.SubscriptionRepository
	service *membership.Service
	scanner *renewal.Scanner
}

// NewSubscriptionController creates a new subscription controller
func NewSubscriptionController(subs repository.SubscriptionRepository, service *membership.Service, scanner *renewal.Scanner) *SubscriptionController {
	return &SubscriptionController{subs: subs, service: service, scanner: scanner}
}

type createSubscriptionRequest struct {
	UserID      uint   `json:"user_id"`
	RenewalType string `json:"renewal_type"`
	Months      int    `json:"months"`
}

type changeStatusRequest struct {
	Status string `json:"status"`
}

// HandleList returns subscriptions with pagination
func (sc *SubscriptionController) HandleList(c *fiber.Ctx) error {
	offset := c.QueryInt("offset", 0)
	limit := c.QueryInt("limit", 50)
	if limit > 200 {
		limit = 200
	}

	subs, err := sc.subs.List(offset, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal_server_error", "message": "Failed to list subscriptions: " + err.Error(),
		})
	}
	total, _ := sc.subs.Count()
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"subscriptions": subs, "total": total})
}

// HandleGet returns one subscription by id
func (sc *SubscriptionController) HandleGet(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid subscription id"})
	}
	sub, err := sc.subs.GetByID(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Subscription not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal_server_error", "message": "Failed to load subscription: " + err.Error(),
		})
	}
	return c.Status(fiber.StatusOK).JSON(sub)
}

// HandleCreate starts a new membership term for a user
func (sc *SubscriptionController) HandleCreate(c *fiber.Ctx) error {
	var req createSubscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}
	if req.UserID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "user_id is required"})
	}

	start := time.Now()
	var end *time.Time
	if req.Months > 0 {
		e := start.AddDate(0, req.Months, 0)
		end = &e
	}

	sub, err := sc.service.CreateSubscription(req.UserID, start, end, req.RenewalType)
	if err != nil {
		if errors.Is(err, membership.ErrInvalidRenewalType) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "renewal_type must be automatic or manual"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal_server_error", "message": "Failed to create subscription: " + err.Error(),
		})
	}
	return c.Status(fiber.StatusCreated).JSON(sub)
}

// HandleChangeStatus moves a subscription to a new status, firing role side
// effects
func (sc *SubscriptionController) HandleChangeStatus(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid subscription id"})
	}
	var req changeStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}

	if err := sc.service.ChangeStatus(uint(id), req.Status); err != nil {
		switch {
		case errors.Is(err, membership.ErrInvalidStatus):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Unknown status: " + req.Status})
		case errors.Is(err, gorm.ErrRecordNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Subscription not found"})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "internal_server_error", "message": "Status change failed: " + err.Error(),
			})
		}
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"id": id, "status": req.Status})
}

// HandleRegenerateToken issues a fresh manual renewal token
func (sc *SubscriptionController) HandleRegenerateToken(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid subscription id"})
	}
	token, err := sc.service.RegenerateRenewalToken(uint(id))
	if err != nil {
		switch {
		case errors.Is(err, membership.ErrNotManual):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Subscription renews automatically"})
		case errors.Is(err, gorm.ErrRecordNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Subscription not found"})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "internal_server_error", "message": "Token regeneration failed: " + err.Error(),
			})
		}
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"renewal_token": token})
}

// HandleRunRenewals runs the daily renewal scan on demand
func (sc *SubscriptionController) HandleRunRenewals(c *fiber.Ctx) error {
	sc.scanner.ProcessMembershipRenewals()
	scheduler.RecordScanRun()
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"started": true, "finished": true})
}

// HandleRenewalStatus reports the scan bookkeeping
func (sc *SubscriptionController) HandleRenewalStatus(c *fiber.Ctx) error {
	lastScanAt, scanCount := scheduler.LastScanInfo()
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"last_scan_at": lastScanAt,
		"scan_count":   scanCount,
	})
}

// HandleResolveToken resolves a manual renewal token, raw or signed, to its
// subscription. The storefront's renew page calls this to show the member
// what they are about to extend.
func (sc *SubscriptionController) HandleResolveToken(c *fiber.Ctx) error {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "token is required"})
	}

	if c.Query("signed") == "1" {
		secret := env.GetEnv("RENEWAL_LINK_SECRET", "")
		if secret == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Signed renewal links are not enabled"})
		}
		claims, err := security.ParseAndVerifyRenewalLinkToken(token, secret)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid or expired renewal link"})
		}
		token = claims.Token
	}

	sub, err := sc.subs.GetByRenewalToken(token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Unknown renewal token"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal_server_error", "message": "Failed to resolve token: " + err.Error(),
		})
	}
	return c.Status(fiber.StatusOK).JSON(sub)
}

// HandleStatusCounts returns subscription counts by status
func (sc *SubscriptionController) HandleStatusCounts(c *fiber.Ctx) error {
	counts := fiber.Map{}
	for _, status := range []string{
		models.SubStatusActive,
		models.SubStatusExpired,
		models.SubStatusPendingCancel,
		models.SubStatusCancelled,
		models.SubStatusOnHold,
	} {
		n, err := sc.subs.CountByStatus(status)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "internal_server_error", "message": "Failed to count subscriptions: " + err.Error(),
			})
		}
		counts[status] = n
	}
	return c.Status(fiber.StatusOK).JSON(counts)
}
