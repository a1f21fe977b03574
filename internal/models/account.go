package models

import "time"

type MFAMethod string

const (
	MFAMethodEmail MFAMethod = "email"
	MFAMethodSMS   MFAMethod = "sms"
	MFAMethodBoth  MFAMethod = "both"
)

func (m MFAMethod) IsValid() bool {
	switch m {
	case MFAMethodEmail, MFAMethodSMS, MFAMethodBoth:
		return true
	default:
		return false
	}
}

// Account is the durable identity record. IsAdmin is only ever set at
// creation time (the first account in an empty store); no endpoint grants it.
type Account struct {
	BaseModel
	Email        string     `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash string     `json:"-" gorm:"type:text;not null"`
	IsActive     bool       `json:"isActive" gorm:"not null;default:true"`
	IsAdmin      bool       `json:"isAdmin" gorm:"not null;default:false"`
	MFAEnabled   bool       `json:"mfaEnabled" gorm:"not null;default:false"`
	MFAMethod    *MFAMethod `json:"mfaMethod,omitempty" gorm:"type:varchar(10)"`
	PhoneNumber  *string    `json:"phoneNumber,omitempty" gorm:"type:varchar(32)"`
	LastLogin    *time.Time `json:"lastLogin,omitempty"`
}

func (Account) TableName() string {
	return "accounts"
}

// HasPhone reports whether an SMS-capable destination is on file.
func (a *Account) HasPhone() bool {
	return a.PhoneNumber != nil && *a.PhoneNumber != ""
}
