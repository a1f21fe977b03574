package handlers

import (
	"net/http"
	"regexp"
	"testing"

	"github.com/nhalege/backend/internal/models"
	"github.com/nhalege/backend/pkg/utils"
)

func TestSendCode_PersistsChallengeAndDispatches(t *testing.T) {
	env := setupTestEnv(t)
	account, _ := createTestAccount(t, env.db, "send@example.com", "password123", false)
	enableMFA(t, env.db, account, models.MFAMethodEmail, "")

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/mfa/send-code", map[string]any{
		"email":  "send@example.com",
		"method": "email",
	}, nil)
	assertStatus(t, resp, http.StatusOK)

	data := dataMap(t, decodeJSONMap(t, resp))
	if data["expiresInMinutes"].(float64) != 10 {
		t.Fatalf("expected 10 minute TTL in ack, got %v", data["expiresInMinutes"])
	}
	if _, leaked := data["code"]; leaked {
		t.Fatal("the code must never appear in the HTTP response")
	}

	var challenge models.OTPChallenge
	if err := env.db.First(&challenge, "email = ?", "send@example.com").Error; err != nil {
		t.Fatalf("expected a persisted challenge: %v", err)
	}
	if challenge.Purpose != models.OTPPurposeLogin {
		t.Fatalf("expected purpose login, got %s", challenge.Purpose)
	}
	if !regexp.MustCompile(`^[1-9]\d{5}$`).MatchString(challenge.Code) {
		t.Fatalf("expected a 6-digit code without leading zero, got %q", challenge.Code)
	}

	if env.sender.lastEmail(t).Code != challenge.Code {
		t.Fatal("dispatched code does not match the persisted challenge")
	}
}

func TestSendCode_Failures(t *testing.T) {
	env := setupTestEnv(t)
	createTestAccount(t, env.db, "nophone@example.com", "password123", false)

	t.Run("unknown account", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/mfa/send-code", map[string]any{
			"email":  "ghost@example.com",
			"method": "email",
		}, nil)
		assertStatus(t, resp, http.StatusNotFound)
		assertErrorKind(t, decodeJSONMap(t, resp), "ACCOUNT_NOT_FOUND")
	})

	t.Run("invalid method", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/mfa/send-code", map[string]any{
			"email":  "nophone@example.com",
			"method": "carrier-pigeon",
		}, nil)
		assertStatus(t, resp, http.StatusBadRequest)
		assertErrorKind(t, decodeJSONMap(t, resp), "INVALID_MFA_METHOD")
	})

	t.Run("sms without phone on file", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/mfa/send-code", map[string]any{
			"email":  "nophone@example.com",
			"method": "sms",
		}, nil)
		assertStatus(t, resp, http.StatusBadRequest)
		assertErrorKind(t, decodeJSONMap(t, resp), "NO_PHONE_REGISTERED")
	})
}

func TestVerifyCode_AttemptLockout(t *testing.T) {
	env := setupTestEnv(t)
	account, _ := createTestAccount(t, env.db, "lockout@example.com", "password123", false)
	enableMFA(t, env.db, account, models.MFAMethodEmail, "")

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/mfa/send-code", map[string]any{
		"email":  "lockout@example.com",
		"method": "email",
	}, nil)
	assertStatus(t, resp, http.StatusOK)
	code := env.sender.lastEmail(t).Code

	wrong := map[string]any{"email": "lockout@example.com", "code": "000000"}

	for attempt := 1; attempt <= 2; attempt++ {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/mfa/verify-code", wrong, nil)
		assertStatus(t, resp, http.StatusBadRequest)
		assertErrorKind(t, decodeJSONMap(t, resp), "CODE_MISMATCH")
	}

	// The third attempt exhausts the counter before the code comparison.
	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/mfa/verify-code", wrong, nil)
	assertStatus(t, resp, http.StatusBadRequest)
	assertErrorKind(t, decodeJSONMap(t, resp), "TOO_MANY_ATTEMPTS")

	// A correct late-arriving code must never unlock the challenge.
	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/mfa/verify-code", map[string]any{
		"email": "lockout@example.com",
		"code":  code,
	}, nil)
	assertStatus(t, resp, http.StatusBadRequest)
	assertErrorKind(t, decodeJSONMap(t, resp), "TOO_MANY_ATTEMPTS")
}

func TestVerifyCode_SuccessIssuesFullToken(t *testing.T) {
	env := setupTestEnv(t)
	account, _ := createTestAccount(t, env.db, "verify@example.com", "password123", false)
	enableMFA(t, env.db, account, models.MFAMethodEmail, "")

	performJSONRequest(t, env.app, http.MethodPost, "/api/mfa/send-code", map[string]any{
		"email":  "verify@example.com",
		"method": "email",
	}, nil)
	code := env.sender.lastEmail(t).Code

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/mfa/verify-code", map[string]any{
		"email": "verify@example.com",
		"code":  code,
	}, nil)
	assertStatus(t, resp, http.StatusOK)

	data := dataMap(t, decodeJSONMap(t, resp))
	token := data["token"].(string)

	claims, err := utils.ValidateToken(token)
	if err != nil {
		t.Fatalf("expected a valid full-session token: %v", err)
	}
	if claims.MFAPending {
		t.Fatal("expected a non-pending token after OTP verification")
	}
	if claims.IsAdmin {
		t.Fatal("expected admin=false claim for a non-admin account")
	}

	// Single use: the same code must not verify twice.
	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/mfa/verify-code", map[string]any{
		"email": "verify@example.com",
		"code":  code,
	}, nil)
	assertStatus(t, resp, http.StatusBadRequest)
	assertErrorKind(t, decodeJSONMap(t, resp), "NO_VALID_CHALLENGE")
}

func TestVerifyCode_WithoutChallenge(t *testing.T) {
	env := setupTestEnv(t)
	createTestAccount(t, env.db, "nochallenge@example.com", "password123", false)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/mfa/verify-code", map[string]any{
		"email": "nochallenge@example.com",
		"code":  "123456",
	}, nil)
	assertStatus(t, resp, http.StatusBadRequest)
	assertErrorKind(t, decodeJSONMap(t, resp), "NO_VALID_CHALLENGE")
}

func TestVerifyCode_IgnoresAdminPurposeChallenges(t *testing.T) {
	env := setupTestEnv(t)
	account, token := createTestAccount(t, env.db, "pools@example.com", "password123", true)
	enableMFA(t, env.db, account, models.MFAMethodEmail, "")

	performJSONRequest(t, env.app, http.MethodPost, "/api/mfa/send-code", map[string]any{
		"email":  "pools@example.com",
		"method": "email",
	}, nil)
	loginCode := env.sender.lastEmail(t).Code

	// A newer admin_access challenge must not shadow the login pool.
	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/mfa/send-admin-code", map[string]any{
		"method": "email",
	}, authHeaders(token))
	assertStatus(t, resp, http.StatusOK)

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/mfa/verify-code", map[string]any{
		"email": "pools@example.com",
		"code":  loginCode,
	}, nil)
	assertStatus(t, resp, http.StatusOK)
}

func TestAdminElevation(t *testing.T) {
	env := setupTestEnv(t)
	_, adminToken := createTestAccount(t, env.db, "admin@example.com", "password123", true)
	_, userToken := createTestAccount(t, env.db, "user@example.com", "password123", false)

	t.Run("non-admin is rejected before any OTP work", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/mfa/send-admin-code", map[string]any{
			"method": "email",
		}, authHeaders(userToken))
		assertStatus(t, resp, http.StatusForbidden)
		assertErrorKind(t, decodeJSONMap(t, resp), "FORBIDDEN")

		var count int64
		env.db.Model(&models.OTPChallenge{}).Count(&count)
		if count != 0 {
			t.Fatalf("expected no challenge for a forbidden request, found %d", count)
		}
	})

	t.Run("admin send and verify", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/mfa/send-admin-code", map[string]any{
			"method": "email",
		}, authHeaders(adminToken))
		assertStatus(t, resp, http.StatusOK)
		code := env.sender.lastEmail(t).Code

		var challenge models.OTPChallenge
		if err := env.db.Order("created_at DESC").First(&challenge, "email = ?", "admin@example.com").Error; err != nil {
			t.Fatalf("expected a persisted challenge: %v", err)
		}
		if challenge.Purpose != models.OTPPurposeAdminAccess {
			t.Fatalf("expected purpose admin_access, got %s", challenge.Purpose)
		}

		resp = performJSONRequest(t, env.app, http.MethodPost, "/api/mfa/verify-admin-code", map[string]any{
			"code": code,
		}, authHeaders(adminToken))
		assertStatus(t, resp, http.StatusOK)

		data := dataMap(t, decodeJSONMap(t, resp))
		if !data["verified"].(bool) {
			t.Fatal("expected verified=true")
		}
		if _, issued := data["token"]; issued {
			t.Fatal("admin elevation must not issue a new token")
		}
	})
}

// TestMFAEndToEnd walks the full journey: bootstrap admin, second account
// enabling MFA, lockout on a burned challenge, then a fresh one succeeding.
func TestMFAEndToEnd(t *testing.T) {
	env := setupTestEnv(t)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/register", map[string]any{
		"email":    "alice@example.com",
		"password": "password-alice",
	}, nil)
	assertStatus(t, resp, http.StatusCreated)
	aliceData := dataMap(t, decodeJSONMap(t, resp))
	aliceClaims, err := utils.ValidateToken(aliceData["token"].(string))
	if err != nil {
		t.Fatalf("alice token invalid: %v", err)
	}
	if !aliceClaims.IsAdmin {
		t.Fatal("expected alice (first account) to carry an admin claim")
	}

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/auth/register", map[string]any{
		"email":    "bob@example.com",
		"password": "password-bob",
	}, nil)
	assertStatus(t, resp, http.StatusCreated)
	bobData := dataMap(t, decodeJSONMap(t, resp))
	bobToken := bobData["token"].(string)

	resp = performJSONRequest(t, env.app, http.MethodPut, "/api/user/settings", map[string]any{
		"mfaEnabled": true,
		"mfaMethod":  "email",
	}, authHeaders(bobToken))
	assertStatus(t, resp, http.StatusOK)

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login", map[string]any{
		"email":    "bob@example.com",
		"password": "password-bob",
	}, nil)
	assertStatus(t, resp, http.StatusOK)
	if !dataMap(t, decodeJSONMap(t, resp))["requiresMfa"].(bool) {
		t.Fatal("expected bob's login to require MFA")
	}

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/mfa/send-code", map[string]any{
		"email":  "bob@example.com",
		"method": "email",
	}, nil)
	assertStatus(t, resp, http.StatusOK)

	wrong := map[string]any{"email": "bob@example.com", "code": "000000"}
	performJSONRequest(t, env.app, http.MethodPost, "/api/mfa/verify-code", wrong, nil)
	performJSONRequest(t, env.app, http.MethodPost, "/api/mfa/verify-code", wrong, nil)
	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/mfa/verify-code", wrong, nil)
	assertStatus(t, resp, http.StatusBadRequest)
	assertErrorKind(t, decodeJSONMap(t, resp), "TOO_MANY_ATTEMPTS")

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/mfa/send-code", map[string]any{
		"email":  "bob@example.com",
		"method": "email",
	}, nil)
	assertStatus(t, resp, http.StatusOK)
	freshCode := env.sender.lastEmail(t).Code

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/mfa/verify-code", map[string]any{
		"email": "bob@example.com",
		"code":  freshCode,
	}, nil)
	assertStatus(t, resp, http.StatusOK)

	fullToken := dataMap(t, decodeJSONMap(t, resp))["token"].(string)
	claims, err := utils.ValidateToken(fullToken)
	if err != nil {
		t.Fatalf("expected a valid token for bob: %v", err)
	}
	if claims.IsAdmin {
		t.Fatal("expected bob's token to carry admin=false")
	}
	if claims.MFAPending {
		t.Fatal("expected a full-session token for bob")
	}
}
