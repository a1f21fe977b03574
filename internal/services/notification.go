package services

import (
	"github.com/nhalege/backend/pkg/logger"
)

// NotificationSender is the delivery channel for one-time codes. Dispatch is
// best-effort: a send failure never fails the auth operation that queued it.
type NotificationSender interface {
	SendEmail(address, code string) error
	SendSMS(phoneNumber, code string) error
}

// LogSender writes codes to the log stream instead of delivering them.
// Real email/SMS delivery is out of scope; this is the production stand-in.
type LogSender struct{}

func NewLogSender() *LogSender {
	return &LogSender{}
}

func (s *LogSender) SendEmail(address, code string) error {
	logger.Info("otp_email_dispatch", map[string]interface{}{
		"address": address,
		"code":    code,
	})
	return nil
}

func (s *LogSender) SendSMS(phoneNumber, code string) error {
	logger.Info("otp_sms_dispatch", map[string]interface{}{
		"phone_number": phoneNumber,
		"code":         code,
	})
	return nil
}
