package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/sharedcart/sharedcart/internal/email"
	"github.com/sharedcart/sharedcart/internal/store"
	"github.com/sharedcart/sharedcart/internal/token"
)

const bcryptCost = 10

type AuthHandler struct {
	userStore   *store.UserStore
	issuer      *token.Issuer
	emailClient *email.Client
	logger      *slog.Logger
}

func NewAuthHandler(us *store.UserStore, issuer *token.Issuer, ec *email.Client, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		userStore:   us,
		issuer:      issuer,
		emailClient: ec,
		logger:      logger,
	}
}

type signupRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Login     string `json:"login"`
	Password  string `json:"password"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Email = strings.TrimSpace(req.Email)
	req.Login = strings.TrimSpace(req.Login)

	if req.FirstName == "" || req.LastName == "" || req.Email == "" || req.Login == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "All fields are required")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		h.logger.Error("hash password", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	// The UNIQUE constraints decide duplicates, so two concurrent signups
	// for the same email or login cannot both succeed.
	user, err := h.userStore.Create(req.Email, req.Login, req.FirstName, req.LastName, string(hash))
	if err != nil {
		switch err {
		case store.ErrEmailTaken:
			writeError(w, http.StatusBadRequest, "Email already registered")
		case store.ErrLoginTaken:
			writeError(w, http.StatusBadRequest, "Username already taken")
		default:
			h.logger.Error("create user", "error", err)
			writeError(w, http.StatusInternalServerError, "Internal error")
		}
		return
	}

	// Fire-and-forget: signup succeeds even if the email provider is down;
	// the user can hit resend-verification.
	if user.VerificationToken != nil {
		go func(to, tok, name string) {
			if err := h.emailClient.SendVerificationEmail(to, tok, name); err != nil {
				h.logger.Error("send verification email", "error", err, "email", to)
			}
		}(user.Email, *user.VerificationToken, user.FirstName)
	}

	writeData(w, http.StatusOK, map[string]any{"id": user.ID})
}

type verifyEmailRequest struct {
	Token string `json:"token"`
}

func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "Verification token is required")
		return
	}

	user, err := h.userStore.GetByVerificationToken(req.Token)
	if err != nil {
		h.logger.Error("verify lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	if user == nil {
		// The token may be expired rather than consumed. An expired token still
		// sits on its user row, so look it up ignoring expiry to tell the two
		// apart. A token matching nothing means it was already used: the
		// clicked-the-link-twice case.
		holder, err := h.userStore.GetByVerificationTokenAny(req.Token)
		if err != nil {
			h.logger.Error("verify lookup", "error", err)
			writeError(w, http.StatusInternalServerError, "Internal error")
			return
		}
		if holder != nil && !holder.EmailVerified {
			writeError(w, http.StatusBadRequest, "Verification link has expired. Please request a new one.")
			return
		}
		writeData(w, http.StatusOK, map[string]any{"alreadyVerified": true})
		return
	}

	if user.EmailVerified {
		writeData(w, http.StatusOK, map[string]any{"alreadyVerified": true})
		return
	}

	if err := h.userStore.MarkVerified(user.ID); err != nil {
		h.logger.Error("mark verified", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	writeData(w, http.StatusOK, map[string]any{"alreadyVerified": false})
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Login == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Login and password are required")
		return
	}

	user, err := h.userStore.GetByEmailOrLogin(req.Login)
	if err != nil {
		h.logger.Error("login lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Invalid username/password")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid username/password")
		return
	}

	if !user.EmailVerified {
		writeError(w, http.StatusForbidden, "Please verify your email before logging in")
		return
	}

	bearer, err := h.issuer.Issue(user.ID)
	if err != nil {
		h.logger.Error("issue token", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	writeData(w, http.StatusOK, map[string]any{
		"token":     bearer,
		"id":        user.ID,
		"firstName": user.FirstName,
		"lastName":  user.LastName,
	})
}

type emailRequest struct {
	Email string `json:"email"`
}

func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "Email is required")
		return
	}

	user, err := h.userStore.GetByEmail(req.Email)
	if err != nil {
		h.logger.Error("resend lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if user.EmailVerified {
		writeError(w, http.StatusBadRequest, "Email already verified")
		return
	}

	tok, err := h.userStore.RotateVerificationToken(user.ID)
	if err != nil {
		h.logger.Error("rotate verification token", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	if err := h.emailClient.SendVerificationEmail(user.Email, tok, user.FirstName); err != nil {
		h.logger.Error("send verification email", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to send verification email")
		return
	}

	writeData(w, http.StatusOK, nil)
}

func (h *AuthHandler) ResetPasswordRequest(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "Email is required")
		return
	}

	user, err := h.userStore.GetByEmail(req.Email)
	if err != nil {
		h.logger.Error("reset request lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	// Always report success so the endpoint can't be used to probe for accounts.
	if user != nil {
		tok, err := h.userStore.SetResetToken(user.ID)
		if err != nil {
			h.logger.Error("set reset token", "error", err)
			writeError(w, http.StatusInternalServerError, "Internal error")
			return
		}
		if err := h.emailClient.SendPasswordResetEmail(user.Email, tok, user.FirstName); err != nil {
			h.logger.Error("send reset email", "error", err)
		}
	}

	writeData(w, http.StatusOK, nil)
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Token == "" || req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "Token and new password are required")
		return
	}

	user, err := h.userStore.GetByResetToken(req.Token)
	if err != nil {
		h.logger.Error("reset lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	if user == nil {
		writeError(w, http.StatusBadRequest, "Invalid or expired reset token")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcryptCost)
	if err != nil {
		h.logger.Error("hash password", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	if err := h.userStore.UpdatePassword(user.ID, string(hash)); err != nil {
		h.logger.Error("update password", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	writeData(w, http.StatusOK, nil)
}
