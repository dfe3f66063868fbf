package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/turnos-ai/internal/auth"
	"github.com/wolfman30/turnos-ai/internal/conversation"
	"github.com/wolfman30/turnos-ai/pkg/logging"
)

const maxChatBody = 16 << 10

type chatService interface {
	HandleTurn(ctx context.Context, sessionID string, user conversation.Principal, text string) (conversation.Reply, error)
	History(ctx context.Context, sessionID string) ([]conversation.Turn, error)
}

type sessionResetter interface {
	Reset(ctx context.Context, principal string) (string, error)
}

// ChatHandler serves the authenticated chat endpoints.
type ChatHandler struct {
	chat     chatService
	sessions sessionResetter
	cookies  *SessionCookies
	logger   *logging.Logger
}

func NewChatHandler(chat chatService, sessions sessionResetter, cookies *SessionCookies, logger *logging.Logger) *ChatHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ChatHandler{chat: chat, sessions: sessions, cookies: cookies, logger: logger.Component("chat_handler")}
}

type chatRequest struct {
	Message string `json:"message"`
	Mensaje string `json:"mensaje"`
}

// SendMessage handles POST /api/chat/mensaje.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		jsonError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody)).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	text := req.Message
	if strings.TrimSpace(text) == "" {
		text = req.Mensaje
	}

	reply, err := h.chat.HandleTurn(r.Context(), user.SessionID, conversation.Principal{Email: user.Email, Name: user.Name}, text)
	if err != nil {
		if errors.Is(err, conversation.ErrEmptyMessage) {
			jsonError(w, "message is required", http.StatusBadRequest)
			return
		}
		h.logger.Error("chat turn failed", "error", err, "session_id", user.SessionID)
		writeJSON(w, http.StatusOK, conversation.Reply{Text: conversation.ApologyMessage})
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// History handles GET /api/chat/historial.
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		jsonError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	turns, err := h.chat.History(r.Context(), user.SessionID)
	if err != nil {
		h.logger.Error("chat history failed", "error", err, "session_id", user.SessionID)
		jsonError(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	if turns == nil {
		turns = []conversation.Turn{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": user.SessionID, "turns": turns})
}

// Reset handles POST /api/chat/nueva: a fresh session and a re-issued cookie.
func (h *ChatHandler) Reset(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		jsonError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	sid, err := h.sessions.Reset(r.Context(), user.Email)
	if err != nil {
		h.logger.Error("chat session reset failed", "error", err)
		jsonError(w, "could not start a new conversation", http.StatusInternalServerError)
		return
	}
	user.SessionID = sid
	if err := h.cookies.Set(w, user); err != nil {
		h.logger.Error("failed to reissue session cookie", "error", err)
		jsonError(w, "could not start a new conversation", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session_id": sid})
}

// SessionCookies writes and clears the signed session cookie.
type SessionCookies struct {
	tokens *auth.Tokens
	secure bool
}

func NewSessionCookies(tokens *auth.Tokens, secure bool) *SessionCookies {
	return &SessionCookies{tokens: tokens, secure: secure}
}

func (c *SessionCookies) Set(w http.ResponseWriter, u auth.User) error {
	signed, expires, err := c.tokens.Issue(u)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    signed,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(time.Until(expires).Seconds()),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (c *SessionCookies) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
