package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/sharedcart/sharedcart/internal/email"
	"github.com/sharedcart/sharedcart/internal/handler"
	"github.com/sharedcart/sharedcart/internal/middleware"
	"github.com/sharedcart/sharedcart/internal/store"
	"github.com/sharedcart/sharedcart/internal/token"
	ws "github.com/sharedcart/sharedcart/internal/websocket"
)

type Server struct {
	db          *sql.DB
	userStore   *store.UserStore
	listStore   *store.ListStore
	itemStore   *store.ItemStore
	hub         *ws.Hub
	authH       *handler.AuthHandler
	listH       *handler.ListHandler
	itemH       *handler.ItemHandler
	issuer      *token.Issuer
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
}

type Config struct {
	TokenSecret string
	TokenTTL    time.Duration
	EmailClient *email.Client
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) *Server {
	userStore := store.NewUserStore(db)
	listStore := store.NewListStore(db)
	itemStore := store.NewItemStore(db)

	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	issuer := token.NewIssuer(cfg.TokenSecret, ttl)

	hub := ws.NewHub(logger.With("component", "websocket"))

	authH := handler.NewAuthHandler(userStore, issuer, cfg.EmailClient, logger.With("component", "auth"))
	listH := handler.NewListHandler(listStore, itemStore, hub, logger.With("component", "list"))
	itemH := handler.NewItemHandler(itemStore, listStore, hub, logger.With("component", "item"))

	return &Server{
		db:          db,
		userStore:   userStore,
		listStore:   listStore,
		itemStore:   itemStore,
		hub:         hub,
		authH:       authH,
		listH:       listH,
		itemH:       itemH,
		issuer:      issuer,
		rateLimiter: middleware.NewRateLimiter(),
		logger:      logger,
	}
}

// UserStore returns the user store for cleanup tasks.
func (s *Server) UserStore() *store.UserStore {
	return s.userStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthCheck)

	// Auth routes (public, rate-limited)
	mux.HandleFunc("POST /api/signup", s.rateLimitedHandler(s.authH.Signup))
	mux.HandleFunc("POST /api/login", s.rateLimitedHandler(s.authH.Login))
	mux.HandleFunc("POST /api/verify-email", s.rateLimitedHandler(s.authH.VerifyEmail))
	mux.HandleFunc("POST /api/resend-verification", s.rateLimitedHandler(s.authH.ResendVerification))
	mux.HandleFunc("POST /api/reset-password-request", s.rateLimitedHandler(s.authH.ResetPasswordRequest))
	mux.HandleFunc("POST /api/reset-password", s.rateLimitedHandler(s.authH.ResetPassword))

	// Protected routes
	authMw := middleware.RequireAuth(s.issuer, s.userStore)
	protected := func(h http.HandlerFunc) http.Handler {
		return authMw(h)
	}

	mux.Handle("POST /api/lists/create", protected(s.listH.Create))
	mux.Handle("POST /api/lists/join", protected(s.listH.Join))
	mux.Handle("GET /api/lists", protected(s.listH.List))
	mux.Handle("GET /api/lists/{listId}", protected(s.listH.Get))
	mux.Handle("PUT /api/lists/{listId}", protected(s.listH.Update))
	mux.Handle("DELETE /api/lists/{listId}", protected(s.listH.Delete))
	mux.Handle("POST /api/lists/{listId}/leave", protected(s.listH.Leave))
	mux.Handle("GET /api/lists/{listId}/ws", protected(s.listH.Watch))

	mux.Handle("POST /api/lists/{listId}/items", protected(s.itemH.Create))
	mux.Handle("PUT /api/lists/{listId}/items/{itemId}", protected(s.itemH.Update))
	mux.Handle("DELETE /api/lists/{listId}/items/{itemId}", protected(s.itemH.Delete))

	return middleware.RequestLogger(s.logger)(mux)
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	rl := middleware.RateLimit(s.rateLimiter, middleware.RealIP, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
