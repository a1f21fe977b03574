package services

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/nhalege/backend/internal/config"
	"github.com/nhalege/backend/internal/models"
	"github.com/nhalege/backend/pkg/logger"
	"gorm.io/gorm"
)

var (
	ErrNoValidChallenge = errors.New("no valid verification code found")
	ErrTooManyAttempts  = errors.New("too many verification attempts")
	ErrCodeMismatch     = errors.New("invalid verification code")
)

// OTPService issues and verifies short-lived numeric codes. Challenges for
// purpose=login and purpose=admin_access are strictly segregated pools.
type OTPService struct {
	DB          *gorm.DB
	Sender      NotificationSender
	ttl         time.Duration
	maxAttempts int
}

func NewOTPService(db *gorm.DB, sender NotificationSender, cfg config.OTPConfig) *OTPService {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &OTPService{
		DB:          db,
		Sender:      sender,
		ttl:         ttl,
		maxAttempts: maxAttempts,
	}
}

// TTL reports how long issued codes stay valid.
func (s *OTPService) TTL() time.Duration {
	return s.ttl
}

// IssueCode creates and persists a fresh challenge, then dispatches the code
// through the notification channel. The code counts as issued once the row
// is written; a delivery failure is logged and never propagated. phoneNumber
// is only consulted for the sms method.
func (s *OTPService) IssueCode(email, phoneNumber string, method models.MFAMethod, purpose models.OTPPurpose) (*models.OTPChallenge, error) {
	code, err := generateCode()
	if err != nil {
		return nil, err
	}

	challenge := models.OTPChallenge{
		Email:     email,
		Code:      code,
		Method:    method,
		Purpose:   purpose,
		ExpiresAt: time.Now().UTC().Add(s.ttl),
	}

	if err := s.DB.Create(&challenge).Error; err != nil {
		return nil, err
	}

	var sendErr error
	switch method {
	case models.MFAMethodSMS:
		sendErr = s.Sender.SendSMS(phoneNumber, code)
	default:
		sendErr = s.Sender.SendEmail(email, code)
	}
	if sendErr != nil {
		logger.Error("otp_dispatch_failed", sendErr, map[string]interface{}{
			"email":   email,
			"method":  string(method),
			"purpose": string(purpose),
		})
	}

	logger.Info("otp_issued", map[string]interface{}{
		"email":      email,
		"method":     string(method),
		"purpose":    string(purpose),
		"expires_at": challenge.ExpiresAt,
	})

	return &challenge, nil
}

// VerifyCode checks code against the newest unexpired, unverified challenge
// for email. An empty purpose matches any pool; otherwise only challenges
// of that purpose are eligible. Every call burns an attempt: the counter is
// bumped with a single atomic UPDATE before the code comparison, so the
// lockout is exact under concurrent attempts.
func (s *OTPService) VerifyCode(email, code string, purpose models.OTPPurpose) error {
	now := time.Now().UTC()

	query := s.DB.Where("email = ? AND verified = ? AND expires_at > ?", email, false, now)
	if purpose != "" {
		query = query.Where("purpose = ?", purpose)
	}

	var challenge models.OTPChallenge
	if err := query.Order("created_at DESC").First(&challenge).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNoValidChallenge
		}
		return err
	}

	if err := s.DB.Model(&models.OTPChallenge{}).
		Where("id = ?", challenge.ID).
		UpdateColumn("attempts", gorm.Expr("attempts + 1")).Error; err != nil {
		return err
	}
	if err := s.DB.First(&challenge, "id = ?", challenge.ID).Error; err != nil {
		return err
	}

	if challenge.Attempts >= s.maxAttempts {
		logger.Warn("otp_attempts_exhausted", map[string]interface{}{
			"email":    email,
			"purpose":  string(challenge.Purpose),
			"attempts": challenge.Attempts,
		})
		return ErrTooManyAttempts
	}

	if subtle.ConstantTimeCompare([]byte(challenge.Code), []byte(code)) != 1 {
		return ErrCodeMismatch
	}

	if err := s.DB.Model(&models.OTPChallenge{}).
		Where("id = ?", challenge.ID).
		Update("verified", true).Error; err != nil {
		return err
	}

	logger.Info("otp_verified", map[string]interface{}{
		"email":   email,
		"purpose": string(challenge.Purpose),
	})

	return nil
}

// generateCode draws a uniform 6-digit code from [100000, 999999], so a
// code never starts with zero.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
