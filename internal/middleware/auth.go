package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/nhalege/backend/internal/models"
	"github.com/nhalege/backend/pkg/logger"
	"github.com/nhalege/backend/pkg/utils"
	"gorm.io/gorm"
)

const (
	currentAccountKey = "currentAccount"
	authClaimsKey     = "authClaims"
)

type AuthMiddleware struct {
	DB *gorm.DB
}

func NewAuthMiddleware(db *gorm.DB) *AuthMiddleware {
	return &AuthMiddleware{DB: db}
}

func CORS(allowedOrigins string) fiber.Handler {
	return cors.New(cors.Config{
		AllowOrigins: allowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
	})
}

// RequireAuth admits full-session tokens only. An MFA-pending token is not a
// session: it exists solely to bridge password check and OTP verification.
func (a *AuthMiddleware) RequireAuth(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		logger.Warn("jwt_missing_header", map[string]interface{}{
			"ip":   c.IP(),
			"path": c.Path(),
		})
		return utils.ErrorKind(c, fiber.StatusUnauthorized, "INVALID_TOKEN", "missing authorization header")
	}

	tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
	if tokenString == authHeader || tokenString == "" {
		logger.Warn("jwt_invalid_format", map[string]interface{}{
			"ip":   c.IP(),
			"path": c.Path(),
		})
		return utils.ErrorKind(c, fiber.StatusUnauthorized, "INVALID_TOKEN", "invalid authorization format")
	}

	claims, err := utils.ValidateToken(tokenString)
	if err != nil {
		logger.Warn("jwt_validation_failed", map[string]interface{}{
			"ip":    c.IP(),
			"path":  c.Path(),
			"error": err.Error(),
		})
		return utils.ErrorKind(c, fiber.StatusUnauthorized, "INVALID_TOKEN", "invalid or expired token")
	}

	if claims.MFAPending {
		logger.Warn("jwt_pending_token_rejected", map[string]interface{}{
			"ip":   c.IP(),
			"path": c.Path(),
		})
		return utils.ErrorKind(c, fiber.StatusUnauthorized, "INVALID_TOKEN", "MFA verification not completed")
	}

	var account models.Account
	if err := a.DB.First(&account, "id = ?", claims.UserID).Error; err != nil {
		logger.Warn("jwt_account_not_found", map[string]interface{}{
			"ip":      c.IP(),
			"path":    c.Path(),
			"user_id": claims.UserID,
		})
		return utils.ErrorKind(c, fiber.StatusUnauthorized, "INVALID_TOKEN", "account not found")
	}

	c.Locals(currentAccountKey, &account)
	c.Locals(authClaimsKey, claims)
	c.Locals("userID", account.ID.String())
	return c.Next()
}

// RequireAdmin gates admin-only routes. The token's admin claim remains
// authoritative for its lifetime, so effective admin status is the claim
// OR the current record.
func RequireAdmin(c *fiber.Ctx) error {
	account := GetCurrentAccount(c)
	claims := GetAuthClaims(c)
	if account == nil || claims == nil {
		return utils.ErrorKind(c, fiber.StatusUnauthorized, "INVALID_TOKEN", "unauthorized")
	}
	if !claims.IsAdmin && !account.IsAdmin {
		return utils.ErrorKind(c, fiber.StatusForbidden, "FORBIDDEN", "admin access required")
	}
	return c.Next()
}

func GetCurrentAccount(c *fiber.Ctx) *models.Account {
	value := c.Locals(currentAccountKey)
	if value == nil {
		return nil
	}
	account, ok := value.(*models.Account)
	if !ok {
		return nil
	}
	return account
}

func GetAuthClaims(c *fiber.Ctx) *utils.Claims {
	value := c.Locals(authClaimsKey)
	if value == nil {
		return nil
	}
	claims, ok := value.(*utils.Claims)
	if !ok {
		return nil
	}
	return claims
}
