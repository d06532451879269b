package handler

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sharedcart/sharedcart/internal/database"
	"github.com/sharedcart/sharedcart/internal/email"
	"github.com/sharedcart/sharedcart/internal/store"
	"github.com/sharedcart/sharedcart/internal/token"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type authFixture struct {
	db    *sql.DB
	users *store.UserStore
	h     *AuthHandler
}

func setupAuthHandler(t *testing.T) *authFixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	users := store.NewUserStore(db)
	issuer := token.NewIssuer("test-secret", time.Hour)
	// Unconfigured client: sends fail quietly in fire-and-forget paths.
	ec := email.NewClient("", "", "http://localhost")
	return &authFixture{
		db:    db,
		users: users,
		h:     NewAuthHandler(users, issuer, ec, discardLogger()),
	}
}

func postJSON(t *testing.T, h http.HandlerFunc, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest("POST", path, bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return env
}

func signupBody(email, login string) map[string]string {
	return map[string]string{
		"firstName": "Alice",
		"lastName":  "Smith",
		"email":     email,
		"login":     login,
		"password":  "hunter22",
	}
}

func TestSignup(t *testing.T) {
	f := setupAuthHandler(t)

	rec := postJSON(t, f.h.Signup, "/api/signup", signupBody("alice@example.com", "alice"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body)
	}
	env := decodeEnvelope(t, rec)
	if !env.Success {
		t.Fatalf("expected success, got error %q", env.Error)
	}

	u, err := f.users.GetByEmail("alice@example.com")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if u == nil {
		t.Fatal("expected user to be created")
	}
	if u.EmailVerified {
		t.Error("new user should be unverified")
	}
	if u.PasswordHash == "hunter22" {
		t.Error("password must be hashed")
	}
}

func TestSignupMissingFields(t *testing.T) {
	f := setupAuthHandler(t)

	body := signupBody("alice@example.com", "alice")
	body["password"] = ""
	rec := postJSON(t, f.h.Signup, "/api/signup", body)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestSignupDuplicateEmail(t *testing.T) {
	f := setupAuthHandler(t)

	postJSON(t, f.h.Signup, "/api/signup", signupBody("alice@example.com", "alice"))
	rec := postJSON(t, f.h.Signup, "/api/signup", signupBody("alice@example.com", "alice2"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Error != "Email already registered" {
		t.Errorf("error = %q, want email-taken message", env.Error)
	}
}

func TestSignupDuplicateLogin(t *testing.T) {
	f := setupAuthHandler(t)

	postJSON(t, f.h.Signup, "/api/signup", signupBody("alice@example.com", "alice"))
	rec := postJSON(t, f.h.Signup, "/api/signup", signupBody("alice2@example.com", "alice"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Error != "Username already taken" {
		t.Errorf("error = %q, want username-taken message", env.Error)
	}
}

func TestVerifyEmail(t *testing.T) {
	f := setupAuthHandler(t)

	postJSON(t, f.h.Signup, "/api/signup", signupBody("alice@example.com", "alice"))
	u, _ := f.users.GetByEmail("alice@example.com")

	rec := postJSON(t, f.h.VerifyEmail, "/api/verify-email", map[string]string{"token": *u.VerificationToken})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body)
	}

	after, _ := f.users.GetByID(u.ID)
	if !after.EmailVerified {
		t.Error("expected user to be verified")
	}
}

func TestVerifyEmailTwice(t *testing.T) {
	f := setupAuthHandler(t)

	postJSON(t, f.h.Signup, "/api/signup", signupBody("alice@example.com", "alice"))
	u, _ := f.users.GetByEmail("alice@example.com")
	tok := *u.VerificationToken

	postJSON(t, f.h.VerifyEmail, "/api/verify-email", map[string]string{"token": tok})
	rec := postJSON(t, f.h.VerifyEmail, "/api/verify-email", map[string]string{"token": tok})

	// The token was consumed by the first call; clicking the link again is
	// reported as already verified, not an error.
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	data, ok := env.Data.(map[string]any)
	if !ok || data["alreadyVerified"] != true {
		t.Errorf("data = %v, want alreadyVerified true", env.Data)
	}
}

func TestVerifyEmailExpiredToken(t *testing.T) {
	f := setupAuthHandler(t)

	postJSON(t, f.h.Signup, "/api/signup", signupBody("alice@example.com", "alice"))
	u, _ := f.users.GetByEmail("alice@example.com")

	past := time.Now().UTC().Add(-time.Hour)
	if _, err := f.db.Exec(`UPDATE users SET verification_expires = ? WHERE id = ?`, past, u.ID); err != nil {
		t.Fatalf("expire token: %v", err)
	}

	rec := postJSON(t, f.h.VerifyEmail, "/api/verify-email", map[string]string{"token": *u.VerificationToken})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for an expired token", rec.Code)
	}
}

func TestLogin(t *testing.T) {
	f := setupAuthHandler(t)

	postJSON(t, f.h.Signup, "/api/signup", signupBody("alice@example.com", "alice"))
	u, _ := f.users.GetByEmail("alice@example.com")
	f.users.MarkVerified(u.ID)

	rec := postJSON(t, f.h.Login, "/api/login", map[string]string{"login": "alice", "password": "hunter22"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body)
	}
	env := decodeEnvelope(t, rec)
	data, ok := env.Data.(map[string]any)
	if !ok {
		t.Fatalf("data = %v, want an object", env.Data)
	}
	if data["token"] == "" || data["token"] == nil {
		t.Error("expected a bearer token")
	}
	if data["firstName"] != "Alice" {
		t.Errorf("firstName = %v, want Alice", data["firstName"])
	}
}

func TestLoginByEmail(t *testing.T) {
	f := setupAuthHandler(t)

	postJSON(t, f.h.Signup, "/api/signup", signupBody("alice@example.com", "alice"))
	u, _ := f.users.GetByEmail("alice@example.com")
	f.users.MarkVerified(u.ID)

	rec := postJSON(t, f.h.Login, "/api/login", map[string]string{"login": "alice@example.com", "password": "hunter22"})
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	f := setupAuthHandler(t)

	postJSON(t, f.h.Signup, "/api/signup", signupBody("alice@example.com", "alice"))
	u, _ := f.users.GetByEmail("alice@example.com")
	f.users.MarkVerified(u.ID)

	rec := postJSON(t, f.h.Login, "/api/login", map[string]string{"login": "alice", "password": "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestLoginUnverified(t *testing.T) {
	f := setupAuthHandler(t)

	postJSON(t, f.h.Signup, "/api/signup", signupBody("alice@example.com", "alice"))

	rec := postJSON(t, f.h.Login, "/api/login", map[string]string{"login": "alice", "password": "hunter22"})
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403 for unverified email", rec.Code)
	}
}

func TestResetPasswordRequestHidesAccounts(t *testing.T) {
	f := setupAuthHandler(t)

	// Unknown address still returns 200 so the endpoint can't probe accounts.
	rec := postJSON(t, f.h.ResetPasswordRequest, "/api/reset-password-request", map[string]string{"email": "nobody@example.com"})
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 for unknown email", rec.Code)
	}
}

func TestResetPassword(t *testing.T) {
	f := setupAuthHandler(t)

	postJSON(t, f.h.Signup, "/api/signup", signupBody("alice@example.com", "alice"))
	u, _ := f.users.GetByEmail("alice@example.com")
	f.users.MarkVerified(u.ID)

	tok, err := f.users.SetResetToken(u.ID)
	if err != nil {
		t.Fatalf("set reset token: %v", err)
	}

	rec := postJSON(t, f.h.ResetPassword, "/api/reset-password", map[string]string{"token": tok, "newPassword": "newpass99"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body)
	}

	// Old password no longer works, new one does.
	if rec := postJSON(t, f.h.Login, "/api/login", map[string]string{"login": "alice", "password": "hunter22"}); rec.Code != http.StatusUnauthorized {
		t.Errorf("old password status = %d, want 401", rec.Code)
	}
	if rec := postJSON(t, f.h.Login, "/api/login", map[string]string{"login": "alice", "password": "newpass99"}); rec.Code != http.StatusOK {
		t.Errorf("new password status = %d, want 200", rec.Code)
	}
}

func TestResetPasswordInvalidToken(t *testing.T) {
	f := setupAuthHandler(t)

	rec := postJSON(t, f.h.ResetPassword, "/api/reset-password", map[string]string{"token": "bogus", "newPassword": "newpass99"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestResendVerificationAlreadyVerified(t *testing.T) {
	f := setupAuthHandler(t)

	postJSON(t, f.h.Signup, "/api/signup", signupBody("alice@example.com", "alice"))
	u, _ := f.users.GetByEmail("alice@example.com")
	f.users.MarkVerified(u.ID)

	rec := postJSON(t, f.h.ResendVerification, "/api/resend-verification", map[string]string{"email": "alice@example.com"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestResendVerificationUnknownEmail(t *testing.T) {
	f := setupAuthHandler(t)

	rec := postJSON(t, f.h.ResendVerification, "/api/resend-verification", map[string]string{"email": "nobody@example.com"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
