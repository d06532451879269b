package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sharedcart/sharedcart/internal/auth"
	"github.com/sharedcart/sharedcart/internal/store"
	"github.com/sharedcart/sharedcart/internal/token"
)

// RequireAuth verifies the bearer token, resolves the account, rejects
// unverified emails, and populates AuthContext for downstream handlers.
// WebSocket upgrades can't set headers from the browser, so a `token`
// query parameter is accepted as a fallback.
func RequireAuth(issuer *token.Issuer, userStore *store.UserStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				writeAuthError(w, http.StatusUnauthorized, "Authentication required. Please log in.")
				return
			}

			userID, err := issuer.Verify(raw)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "Invalid or expired session. Please log in again.")
				return
			}

			user, err := userStore.GetByID(userID)
			if err != nil || user == nil {
				writeAuthError(w, http.StatusUnauthorized, "Invalid user. Please log in again.")
				return
			}

			if !user.EmailVerified {
				writeAuthError(w, http.StatusForbidden, "Please verify your email before using this feature.")
				return
			}

			ac := auth.AuthContext{
				UserID:    user.ID,
				FirstName: user.FirstName,
				LastName:  user.LastName,
			}

			ctx := auth.WithAuth(r.Context(), ac)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"data":    nil,
		"error":   msg,
	})
}
