package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/nhalege/backend/internal/middleware"
	"github.com/nhalege/backend/internal/models"
	"github.com/nhalege/backend/internal/services"
	"github.com/nhalege/backend/pkg/logger"
	"github.com/nhalege/backend/pkg/utils"
	"gorm.io/gorm"
)

type MFAHandler struct {
	DB    *gorm.DB
	OTP   *services.OTPService
	Audit *services.AuditService
}

func NewMFAHandler(db *gorm.DB, otp *services.OTPService, audit *services.AuditService) *MFAHandler {
	return &MFAHandler{DB: db, OTP: otp, Audit: audit}
}

type sendCodeRequest struct {
	Email  string `json:"email"`
	Method string `json:"method"`
}

// SendCode issues a login-purpose challenge for the given account. The code
// never appears in the response; it only travels the notification channel.
func (h *MFAHandler) SendCode(c *fiber.Ctx) error {
	var req sendCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	req.Email = normalizeEmail(req.Email)

	method := models.MFAMethod(req.Method)
	if method != models.MFAMethodEmail && method != models.MFAMethodSMS {
		return utils.ErrorKind(c, fiber.StatusBadRequest, "INVALID_MFA_METHOD", "method must be email or sms")
	}

	var account models.Account
	if err := h.DB.First(&account, "email = ?", req.Email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorKind(c, fiber.StatusNotFound, "ACCOUNT_NOT_FOUND", "account not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading account")
	}

	if method == models.MFAMethodSMS && !account.HasPhone() {
		return utils.ErrorKind(c, fiber.StatusBadRequest, "NO_PHONE_REGISTERED", "no phone number on file")
	}

	phone := ""
	if account.PhoneNumber != nil {
		phone = *account.PhoneNumber
	}

	if _, err := h.OTP.IssueCode(account.Email, phone, method, models.OTPPurposeLogin); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed issuing verification code")
	}

	h.Audit.LogAsync(services.AuditEntry{
		AccountID: &account.ID,
		Action:    "mfa.code_sent",
		Email:     account.Email,
		Details: map[string]interface{}{
			"method":  string(method),
			"purpose": string(models.OTPPurposeLogin),
		},
		IPAddress: c.IP(),
		RequestID: getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"message":          "verification code sent",
		"expiresInMinutes": int(h.OTP.TTL().Minutes()),
	})
}

type verifyCodeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// VerifyCode completes the MFA login branch: a correct code upgrades the
// caller to a full-session token carrying the account's admin flag.
func (h *MFAHandler) VerifyCode(c *fiber.Ctx) error {
	var req verifyCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	req.Email = normalizeEmail(req.Email)

	if req.Email == "" || req.Code == "" {
		return utils.Error(c, fiber.StatusBadRequest, "email and code are required")
	}

	if err := h.OTP.VerifyCode(req.Email, req.Code, models.OTPPurposeLogin); err != nil {
		h.Audit.LogAsync(services.AuditEntry{
			Action:    "mfa.code_verify_failed",
			Email:     req.Email,
			Details:   map[string]interface{}{"reason": err.Error()},
			IPAddress: c.IP(),
			RequestID: getRequestID(c),
		})
		return otpErrorResponse(c, err)
	}

	var account models.Account
	if err := h.DB.First(&account, "email = ?", req.Email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorKind(c, fiber.StatusNotFound, "ACCOUNT_NOT_FOUND", "account not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading account")
	}

	token, err := utils.GenerateToken(&account)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating token")
	}

	logger.Info("mfa_login_completed", map[string]interface{}{
		"account_id": account.ID.String(),
		"ip":         c.IP(),
	})

	h.Audit.LogAsync(services.AuditEntry{
		AccountID: &account.ID,
		Action:    "user.mfa_login",
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

type sendAdminCodeRequest struct {
	Method string `json:"method"`
}

// SendAdminCode issues an admin_access-purpose challenge for the caller.
// Routing already requires an admin session, so the target email is the
// caller's own.
func (h *MFAHandler) SendAdminCode(c *fiber.Ctx) error {
	account := middleware.GetCurrentAccount(c)
	if account == nil {
		return utils.ErrorKind(c, fiber.StatusUnauthorized, "INVALID_TOKEN", "unauthorized")
	}

	var req sendAdminCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	method := models.MFAMethod(req.Method)
	if method != models.MFAMethodEmail && method != models.MFAMethodSMS {
		return utils.ErrorKind(c, fiber.StatusBadRequest, "INVALID_MFA_METHOD", "method must be email or sms")
	}

	if method == models.MFAMethodSMS && !account.HasPhone() {
		return utils.ErrorKind(c, fiber.StatusBadRequest, "NO_PHONE_REGISTERED", "no phone number on file")
	}

	phone := ""
	if account.PhoneNumber != nil {
		phone = *account.PhoneNumber
	}

	if _, err := h.OTP.IssueCode(account.Email, phone, method, models.OTPPurposeAdminAccess); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed issuing verification code")
	}

	h.Audit.LogAsync(services.AuditEntry{
		AccountID: &account.ID,
		Action:    "mfa.admin_code_sent",
		Email:     account.Email,
		Details: map[string]interface{}{
			"method":  string(method),
			"purpose": string(models.OTPPurposeAdminAccess),
		},
		IPAddress: c.IP(),
		RequestID: getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"message":          "verification code sent",
		"expiresInMinutes": int(h.OTP.TTL().Minutes()),
	})
}

type verifyAdminCodeRequest struct {
	Code string `json:"code"`
}

// VerifyAdminCode confirms an admin elevation challenge. It issues no new
// token; the caller's current session simply learns the elevation passed.
func (h *MFAHandler) VerifyAdminCode(c *fiber.Ctx) error {
	account := middleware.GetCurrentAccount(c)
	if account == nil {
		return utils.ErrorKind(c, fiber.StatusUnauthorized, "INVALID_TOKEN", "unauthorized")
	}

	var req verifyAdminCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.Code == "" {
		return utils.Error(c, fiber.StatusBadRequest, "code is required")
	}

	if err := h.OTP.VerifyCode(account.Email, req.Code, models.OTPPurposeAdminAccess); err != nil {
		h.Audit.LogAsync(services.AuditEntry{
			AccountID: &account.ID,
			Action:    "mfa.admin_verify_failed",
			Email:     account.Email,
			Details:   map[string]interface{}{"reason": err.Error()},
			IPAddress: c.IP(),
			RequestID: getRequestID(c),
		})
		return otpErrorResponse(c, err)
	}

	h.Audit.LogAsync(services.AuditEntry{
		AccountID: &account.ID,
		Action:    "mfa.admin_verified",
		Email:     account.Email,
		IPAddress: c.IP(),
		RequestID: getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"verified": true})
}

func otpErrorResponse(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrNoValidChallenge):
		return utils.ErrorKind(c, fiber.StatusBadRequest, "NO_VALID_CHALLENGE", "no valid verification code found")
	case errors.Is(err, services.ErrTooManyAttempts):
		return utils.ErrorKind(c, fiber.StatusBadRequest, "TOO_MANY_ATTEMPTS", "too many verification attempts")
	case errors.Is(err, services.ErrCodeMismatch):
		return utils.ErrorKind(c, fiber.StatusBadRequest, "CODE_MISMATCH", "invalid verification code")
	default:
		return utils.Error(c, fiber.StatusInternalServerError, "failed verifying code")
	}
}
