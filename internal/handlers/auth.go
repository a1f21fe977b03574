package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nhalege/backend/internal/middleware"
	"github.com/nhalege/backend/internal/models"
	"github.com/nhalege/backend/internal/services"
	"github.com/nhalege/backend/pkg/logger"
	"github.com/nhalege/backend/pkg/utils"
	"gorm.io/gorm"
)

type AuthHandler struct {
	DB    *gorm.DB
	Audit *services.AuditService
}

func NewAuthHandler(db *gorm.DB, audit *services.AuditService) *AuthHandler {
	return &AuthHandler{DB: db, Audit: audit}
}

type registerRequest struct {
	Email       string  `json:"email"`
	Password    string  `json:"password"`
	PhoneNumber *string `json:"phoneNumber"`
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	req.Email = normalizeEmail(req.Email)
	if !isValidEmail(req.Email) {
		return utils.Error(c, fiber.StatusBadRequest, "invalid email")
	}
	if len(req.Password) < 8 {
		return utils.Error(c, fiber.StatusBadRequest, "password must be at least 8 characters")
	}

	var existing models.Account
	if err := h.DB.First(&existing, "email = ?", req.Email).Error; err == nil {
		return utils.ErrorKind(c, fiber.StatusBadRequest, "DUPLICATE_EMAIL", "email already registered")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.Error(c, fiber.StatusInternalServerError, "failed checking existing account")
	}

	passwordHash, err := utils.HashPassword(req.Password)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to hash password")
	}

	// The very first account in an empty store becomes the bootstrap admin.
	// Counting and inserting run in one transaction so two concurrent first
	// registrations cannot both see an empty store.
	var account models.Account
	err = h.DB.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Account{}).Count(&count).Error; err != nil {
			return err
		}

		account = models.Account{
			Email:        req.Email,
			PasswordHash: passwordHash,
			IsActive:     true,
			IsAdmin:      count == 0,
			PhoneNumber:  req.PhoneNumber,
		}
		return tx.Create(&account).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return utils.ErrorKind(c, fiber.StatusBadRequest, "DUPLICATE_EMAIL", "email already registered")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating account")
	}

	logger.Info("account_registered", map[string]interface{}{
		"account_id": account.ID.String(),
		"email":      account.Email,
		"is_admin":   account.IsAdmin,
	})

	h.Audit.LogAsync(services.AuditEntry{
		AccountID: &account.ID,
		Action:    "user.register",
		Email:     account.Email,
		Details: map[string]interface{}{
			"is_admin": account.IsAdmin,
		},
		IPAddress: c.IP(),
		RequestID: getRequestID(c),
	})

	token, err := utils.GenerateToken(&account)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating token")
	}

	return utils.Success(c, fiber.StatusCreated, fiber.Map{
		"token":       token,
		"tokenType":   "bearer",
		"requiresMfa": false,
		"account":     account,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	req.Email = normalizeEmail(req.Email)

	if req.Email == "" || req.Password == "" {
		return utils.Error(c, fiber.StatusBadRequest, "email and password are required")
	}

	// Unknown email and wrong password produce the same response so the
	// endpoint cannot be used to enumerate accounts.
	var account models.Account
	if err := h.DB.First(&account, "email = ?", req.Email).Error; err != nil {
		logger.Warn("login_failed_account_not_found", map[string]interface{}{
			"email": req.Email,
			"ip":    c.IP(),
		})
		return utils.ErrorKind(c, fiber.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid credentials")
	}

	if !utils.CheckPassword(req.Password, account.PasswordHash) {
		logger.Warn("login_failed_invalid_password", map[string]interface{}{
			"account_id": account.ID.String(),
			"ip":         c.IP(),
		})
		return utils.ErrorKind(c, fiber.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid credentials")
	}

	now := time.Now().UTC()
	if err := h.DB.Model(&models.Account{}).Where("id = ?", account.ID).
		Update("last_login", now).Error; err != nil {
		logger.Error("login_last_login_update_failed", err, map[string]interface{}{
			"account_id": account.ID.String(),
		})
	}
	account.LastLogin = &now

	if account.MFAEnabled {
		pendingToken, err := utils.GeneratePendingToken(&account)
		if err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed generating token")
		}

		h.Audit.LogAsync(services.AuditEntry{
			AccountID: &account.ID,
			Action:    "user.login_mfa_pending",
			Email:     account.Email,
			IPAddress: c.IP(),
			RequestID: getRequestID(c),
		})

		return utils.Success(c, fiber.StatusOK, fiber.Map{
			"token":       pendingToken,
			"tokenType":   "bearer",
			"requiresMfa": true,
		})
	}

	token, err := utils.GenerateToken(&account)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating token")
	}

	logger.Info("account_login", map[string]interface{}{
		"account_id": account.ID.String(),
		"ip":         c.IP(),
	})

	h.Audit.LogAsync(services.AuditEntry{
		AccountID: &account.ID,
		Action:    "user.login",
		Email:     account.Email,
		IPAddress: c.IP(),
		RequestID: getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"token":       token,
		"tokenType":   "bearer",
		"requiresMfa": false,
		"account":     account,
	})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	account := middleware.GetCurrentAccount(c)
	if account == nil {
		return utils.ErrorKind(c, fiber.StatusUnauthorized, "INVALID_TOKEN", "unauthorized")
	}
	return utils.Success(c, fiber.StatusOK, account)
}
