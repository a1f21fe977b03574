package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/nhalege/backend/internal/middleware"
	"github.com/nhalege/backend/internal/models"
	"github.com/nhalege/backend/internal/services"
	"github.com/nhalege/backend/pkg/logger"
	"github.com/nhalege/backend/pkg/utils"
	"gorm.io/gorm"
)

type UsersHandler struct {
	DB    *gorm.DB
	Audit *services.AuditService
}

func NewUsersHandler(db *gorm.DB, audit *services.AuditService) *UsersHandler {
	return &UsersHandler{DB: db, Audit: audit}
}

type updateSettingsRequest struct {
	MFAEnabled  *bool   `json:"mfaEnabled"`
	MFAMethod   *string `json:"mfaMethod"`
	PhoneNumber *string `json:"phoneNumber"`
}

// UpdateSettings applies a partial update of the caller's MFA settings.
// An invalid method rejects the whole request before anything is written.
func (h *UsersHandler) UpdateSettings(c *fiber.Ctx) error {
	account := middleware.GetCurrentAccount(c)
	if account == nil {
		return utils.ErrorKind(c, fiber.StatusUnauthorized, "INVALID_TOKEN", "unauthorized")
	}

	var req updateSettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	updates := map[string]interface{}{}
	if req.MFAEnabled != nil {
		updates["mfa_enabled"] = *req.MFAEnabled
	}
	if req.MFAMethod != nil {
		method := models.MFAMethod(strings.TrimSpace(*req.MFAMethod))
		if !method.IsValid() {
			return utils.ErrorKind(c, fiber.StatusBadRequest, "INVALID_MFA_METHOD", "mfaMethod must be email, sms or both")
		}
		updates["mfa_method"] = method
	}
	if req.PhoneNumber != nil {
		trimmed := strings.TrimSpace(*req.PhoneNumber)
		if trimmed == "" {
			updates["phone_number"] = nil
		} else {
			updates["phone_number"] = trimmed
		}
	}

	if len(updates) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "no valid fields to update")
	}

	if err := h.DB.Model(&models.Account{}).Where("id = ?", account.ID).Updates(updates).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating settings")
	}

	var updated models.Account
	if err := h.DB.First(&updated, "id = ?", account.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching updated account")
	}

	logger.InfoWithUser(account.ID.String(), "settings_updated", map[string]interface{}{
		"mfa_enabled": updated.MFAEnabled,
	})

	h.Audit.LogAsync(services.AuditEntry{
		AccountID: &account.ID,
		Action:    "user.settings_update",
		Email:     account.Email,
		IPAddress: c.IP(),
		RequestID: getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, updated)
}

// List returns every account, newest first. Password hashes never
// serialize; the model hides them.
func (h *UsersHandler) List(c *fiber.Ctx) error {
	p := utils.ParsePagination(c)

	var total int64
	if err := h.DB.Model(&models.Account{}).Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting accounts")
	}

	var accounts []models.Account
	if err := utils.ApplyPagination(h.DB.Model(&models.Account{}).Order("created_at DESC"), p).
		Find(&accounts).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing accounts")
	}

	return utils.Paginated(c, accounts, p.Page, p.Limit, total)
}

// OTPLog returns the challenge history newest-first, codes excluded.
func (h *UsersHandler) OTPLog(c *fiber.Ctx) error {
	p := utils.ParsePagination(c)

	var total int64
	if err := h.DB.Model(&models.OTPChallenge{}).Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting challenges")
	}

	var challenges []models.OTPChallenge
	if err := utils.ApplyPagination(h.DB.Model(&models.OTPChallenge{}).Order("created_at DESC"), p).
		Find(&challenges).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing challenges")
	}

	return utils.Paginated(c, challenges, p.Page, p.Limit, total)
}
