package models

import "time"

type OTPPurpose string

const (
	OTPPurposeLogin       OTPPurpose = "login"
	OTPPurposeAdminAccess OTPPurpose = "admin_access"
)

// OTPChallenge is an ephemeral one-time-code record. The code never leaves
// the server through HTTP; it only reaches the notification channel.
// Rows are never deleted; expiry is enforced by timestamp comparison at
// verify time, so stale records accumulate (retention is a store concern).
type OTPChallenge struct {
	BaseModel
	Email     string     `json:"email" gorm:"type:varchar(255);not null;index"`
	Code      string     `json:"-" gorm:"type:varchar(6);not null"`
	Method    MFAMethod  `json:"method" gorm:"type:varchar(10);not null"`
	Purpose   OTPPurpose `json:"purpose" gorm:"type:varchar(20);not null;index"`
	ExpiresAt time.Time  `json:"expiresAt" gorm:"not null;index"`
	Verified  bool       `json:"verified" gorm:"not null;default:false"`
	Attempts  int        `json:"attempts" gorm:"not null;default:0"`
}

func (OTPChallenge) TableName() string {
	return "otp_challenges"
}
