package utils

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/nhalege/backend/internal/models"
)

var (
	jwtSecret       = []byte("change-me-in-production")
	accessTokenTTL  = 30 * time.Minute
	pendingTokenTTL = 5 * time.Minute
)

// Claims is the stateless session payload. A token is a bearer credential:
// the embedded admin flag stays authoritative until expiry even if the
// backing account record changes.
type Claims struct {
	UserID     uuid.UUID `json:"userID"`
	Email      string    `json:"email"`
	IsAdmin    bool      `json:"isAdmin"`
	MFAPending bool      `json:"mfaPending,omitempty"`
	jwt.RegisteredClaims
}

func ConfigureJWT(secret string, accessTTL, pendingTTL time.Duration) {
	if secret != "" {
		jwtSecret = []byte(secret)
	}
	if accessTTL > 0 {
		accessTokenTTL = accessTTL
	}
	if pendingTTL > 0 {
		pendingTokenTTL = pendingTTL
	}
}

// GenerateToken mints a full-session token carrying the account's current
// admin flag.
func GenerateToken(account *models.Account) (string, error) {
	return signClaims(Claims{
		UserID:  account.ID,
		Email:   account.Email,
		IsAdmin: account.IsAdmin,
	}, accessTokenTTL)
}

// GeneratePendingToken mints the short-lived token handed out between a
// correct password and a verified OTP. It never carries an admin claim.
func GeneratePendingToken(account *models.Account) (string, error) {
	return signClaims(Claims{
		UserID:     account.ID,
		Email:      account.Email,
		MFAPending: true,
	}, pendingTokenTTL)
}

func signClaims(claims Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		Subject:   claims.Email,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

// ValidateToken verifies signature and expiry. It never consults the store.
func ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return claims, nil
}
