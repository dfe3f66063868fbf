package handlers

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/wolfman30/turnos-ai/internal/auth"
	"github.com/wolfman30/turnos-ai/pkg/logging"
)

const stateCookie = "turnos_oauth_state"

type identityProvider interface {
	AuthCodeURL(state string) string
	Identify(ctx context.Context, code string) (auth.Identity, error)
}

type sessionResolver interface {
	SessionID(ctx context.Context, principal string) (string, error)
}

// AuthHandler runs the Google sign-in redirect flow.
type AuthHandler struct {
	provider identityProvider
	sessions sessionResolver
	cookies  *SessionCookies
	secure   bool
	logger   *logging.Logger
}

func NewAuthHandler(provider identityProvider, sessions sessionResolver, cookies *SessionCookies, secure bool, logger *logging.Logger) *AuthHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AuthHandler{
		provider: provider,
		sessions: sessions,
		cookies:  cookies,
		secure:   secure,
		logger:   logger.Component("auth_handler"),
	}
}

// Login handles GET /auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		h.logger.Error("failed to generate oauth state", "error", err)
		http.Error(w, "login unavailable", http.StatusInternalServerError)
		return
	}
	state := hex.EncodeToString(buf)
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/auth",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.provider.AuthCodeURL(state), http.StatusFound)
}

// Callback handles GET /auth/callback.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if errParam := q.Get("error"); errParam != "" {
		h.logger.Warn("google sign-in declined", "error", errParam)
		http.Error(w, "sign-in was cancelled", http.StatusUnauthorized)
		return
	}

	c, err := r.Cookie(stateCookie)
	state := q.Get("state")
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(c.Value), []byte(state)) != 1 {
		http.Error(w, "invalid sign-in state", http.StatusBadRequest)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/auth", MaxAge: -1, HttpOnly: true, Secure: h.secure})

	code := q.Get("code")
	if code == "" {
		http.Error(w, "missing authorization code", http.StatusBadRequest)
		return
	}
	id, err := h.provider.Identify(r.Context(), code)
	if err != nil {
		h.logger.Warn("google sign-in failed", "error", err)
		http.Error(w, "sign-in failed", http.StatusUnauthorized)
		return
	}

	sid, err := h.sessions.SessionID(r.Context(), id.Email)
	if err != nil {
		h.logger.Error("failed to resolve chat session", "error", err)
		http.Error(w, "sign-in unavailable", http.StatusInternalServerError)
		return
	}
	if err := h.cookies.Set(w, auth.User{Email: id.Email, Name: id.Name, SessionID: sid}); err != nil {
		h.logger.Error("failed to issue session cookie", "error", err)
		http.Error(w, "sign-in unavailable", http.StatusInternalServerError)
		return
	}
	h.logger.Info("user signed in", "email", id.Email)
	http.Redirect(w, r, "/", http.StatusFound)
}

// Logout handles POST /auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.cookies.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}
