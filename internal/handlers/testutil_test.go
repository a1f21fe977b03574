package handlers

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/nhalege/backend/internal/config"
	"github.com/nhalege/backend/internal/database"
	"github.com/nhalege/backend/internal/middleware"
	"github.com/nhalege/backend/internal/models"
	"github.com/nhalege/backend/internal/services"
	"github.com/nhalege/backend/pkg/logger"
	"github.com/nhalege/backend/pkg/utils"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type testEnv struct {
	app    *fiber.App
	db     *gorm.DB
	sender *recordingSender
}

// recordingSender captures dispatched codes instead of delivering them.
type recordingSender struct {
	mu     sync.Mutex
	emails []sentCode
	sms    []sentCode
}

type sentCode struct {
	Destination string
	Code        string
}

func (r *recordingSender) SendEmail(address, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emails = append(r.emails, sentCode{Destination: address, Code: code})
	return nil
}

func (r *recordingSender) SendSMS(phoneNumber, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sms = append(r.sms, sentCode{Destination: phoneNumber, Code: code})
	return nil
}

func (r *recordingSender) lastEmail(t *testing.T) sentCode {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.emails) == 0 {
		t.Fatal("expected at least one dispatched email code")
	}
	return r.emails[len(r.emails)-1]
}

var testSetupOnce sync.Once

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testSetupOnce.Do(func() {
		gosqlite.MustRegisterScalarFunction("NOW", 0, func(ctx *gosqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			return time.Now().UTC(), nil
		})
		logger.Init()
		utils.ConfigureJWT("test-secret", 30*time.Minute, 5*time.Minute)
		utils.ConfigureHashing(bcrypt.MinCost)
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed migrating models: %v", err)
	}

	sender := &recordingSender{}
	auditService := services.NewAuditService(db, nil)
	otpService := services.NewOTPService(db, sender, config.OTPConfig{
		TTL:         10 * time.Minute,
		MaxAttempts: 3,
	})

	authHandler := NewAuthHandler(db, auditService)
	mfaHandler := NewMFAHandler(db, otpService, auditService)
	usersHandler := NewUsersHandler(db, auditService)
	statusHandler := NewStatusHandler(db)
	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{AppName: "Nhalege Capital API"})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS("http://localhost:3000"))
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")
	api.Get("/", Root)
	api.Post("/status", statusHandler.Create)
	api.Get("/status", statusHandler.List)

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)

	mfaRoutes := api.Group("/mfa")
	mfaRoutes.Post("/send-code", mfaHandler.SendCode)
	mfaRoutes.Post("/verify-code", mfaHandler.VerifyCode)
	mfaRoutes.Post("/send-admin-code", authMiddleware.RequireAuth, middleware.RequireAdmin, mfaHandler.SendAdminCode)
	mfaRoutes.Post("/verify-admin-code", authMiddleware.RequireAuth, middleware.RequireAdmin, mfaHandler.VerifyAdminCode)

	api.Put("/user/settings", authMiddleware.RequireAuth, usersHandler.UpdateSettings)

	adminRoutes := api.Group("/admin", authMiddleware.RequireAuth, middleware.RequireAdmin)
	adminRoutes.Get("/users", usersHandler.List)
	adminRoutes.Get("/otp-log", usersHandler.OTPLog)

	return &testEnv{app: app, db: db, sender: sender}
}

func createTestAccount(t *testing.T, db *gorm.DB, email, password string, admin bool) (*models.Account, string) {
	t.Helper()

	hash, err := utils.HashPassword(password)
	if err != nil {
		t.Fatalf("failed hashing password: %v", err)
	}

	account := &models.Account{
		Email:        email,
		PasswordHash: hash,
		IsActive:     true,
		IsAdmin:      admin,
	}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("failed creating test account: %v", err)
	}

	token, err := utils.GenerateToken(account)
	if err != nil {
		t.Fatalf("failed generating auth token: %v", err)
	}

	return account, token
}

func enableMFA(t *testing.T, db *gorm.DB, account *models.Account, method models.MFAMethod, phone string) {
	t.Helper()

	updates := map[string]interface{}{
		"mfa_enabled": true,
		"mfa_method":  method,
	}
	if phone != "" {
		updates["phone_number"] = phone
	}
	if err := db.Model(&models.Account{}).Where("id = ?", account.ID).Updates(updates).Error; err != nil {
		t.Fatalf("failed enabling MFA on test account: %v", err)
	}
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}

	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	if payload != nil {
		requestHeaders["Content-Type"] = "application/json"
	}

	return performRequest(t, app, method, path, body, requestHeaders)
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}

	return payload
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

func assertErrorKind(t *testing.T, body map[string]any, expected string) {
	t.Helper()
	if success, _ := body["success"].(bool); success {
		t.Fatalf("expected success=false, got %+v", body)
	}
	if got, _ := body["code"].(string); got != expected {
		t.Fatalf("expected error kind %q, got %q (body=%+v)", expected, got, body)
	}
}

func dataMap(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	data, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected data object, got %T", body["data"])
	}
	return data
}
