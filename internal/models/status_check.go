package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StatusCheck is the minimal CRUD collection the API started life with.
// It carries no auth requirement and no update/delete surface.
type StatusCheck struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	ClientName string    `json:"clientName" gorm:"type:varchar(255);not null"`
	Timestamp  time.Time `json:"timestamp" gorm:"not null"`
}

func (s *StatusCheck) BeforeCreate(_ *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now().UTC()
	}
	return nil
}

func (StatusCheck) TableName() string {
	return "status_checks"
}
