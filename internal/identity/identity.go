// Package identity resolves the player behind a request. Accounts are owned
// by the external auth layer, which forwards the user id in a header or
// cookie; anonymous per-device players can be minted for local play.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gamesite/arcade/internal/domain"
	"github.com/gamesite/arcade/internal/store"
)

const (
	UserHeaderName        = "X-User-ID"
	CookieName            = "arcade_uid"
	SessionHeaderName     = "X-Arcade-Session-ID"
	DefaultSessionIDValue = "default"
	anonCookieMaxAge      = 30 * 24 * time.Hour
)

type contextKey int

const (
	userIDKey contextKey = iota
	usernameKey
	sessionIDKey
)

var (
	anonIDPattern    = regexp.MustCompile(`^anon_[a-f0-9]{32}$`)
	sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)
)

// Users is the part of the store identity needs.
type Users interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	UpsertUser(ctx context.Context, user *domain.User) error
}

// Options controls Middleware.
type Options struct {
	// Required rejects requests without a known user with 401.
	Required bool
	// AllowAnonymous mints an anonymous account for cookieless requests.
	AllowAnonymous bool
	// SecureCookie marks the anonymous cookie Secure.
	SecureCookie bool
}

// UserIDFromContext extracts the user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// UsernameFromContext extracts the username from the request context.
func UsernameFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(usernameKey).(string); ok {
		return v
	}
	return ""
}

// SessionIDFromContext extracts the tab session ID from the request context.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return DefaultSessionIDValue
}

// WithUser returns ctx carrying the given identity.
func WithUser(ctx context.Context, userID, username string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, usernameKey, username)
}

func generateAnonID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate anonymous id: %w", err)
	}
	return "anon_" + hex.EncodeToString(buf), nil
}

func isValidAnonID(id string) bool {
	return anonIDPattern.MatchString(id)
}

func sanitizeSessionID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || !sessionIDPattern.MatchString(id) {
		return DefaultSessionIDValue
	}
	return id
}

func deriveUsername(userID string) string {
	if len(userID) > 13 {
		return "anon-" + userID[len(userID)-8:]
	}
	return "anon-user"
}

// requestedUserID returns the id forwarded by the auth layer, if any.
func requestedUserID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(UserHeaderName)); id != "" {
		return id
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}

func setAnonCookie(w http.ResponseWriter, id string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(anonCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(anonCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
	})
}

// resolve looks the user up, creating anonymous accounts on first sight.
// It returns nil with no error when the id is unknown.
func resolve(ctx context.Context, repo Users, userID string) (*domain.User, error) {
	user, err := repo.GetUser(ctx, userID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if !isValidAnonID(userID) {
		return nil, nil
	}

	now := time.Now()
	user = &domain.User{
		UserID:    userID,
		Username:  deriveUsername(userID),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.UpsertUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func sessionIDFromRequest(r *http.Request) string {
	sid := r.Header.Get(SessionHeaderName)
	if sid == "" {
		sid = r.URL.Query().Get("session_id")
	}
	return sanitizeSessionID(sid)
}

// mintAnonymous creates a fresh anonymous account and hands its cookie out.
func mintAnonymous(ctx context.Context, w http.ResponseWriter, repo Users, secure bool) (*domain.User, error) {
	id, err := generateAnonID()
	if err != nil {
		return nil, err
	}
	user, err := resolve(ctx, repo, id)
	if err != nil {
		return nil, err
	}
	setAnonCookie(w, id, secure)
	return user, nil
}

// Middleware injects the player identity and per-tab session ID. A
// forwarded id that names no account is never passed on: it is replaced by
// a new anonymous account when those are allowed and rejected otherwise.
func Middleware(repo Users, opts Options) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), sessionIDKey, sessionIDFromRequest(r))

			var user *domain.User
			if userID := requestedUserID(r); userID != "" {
				var err error
				user, err = resolve(ctx, repo, userID)
				if err != nil {
					slog.Error("Failed to resolve user", "user_id", userID, "error", err)
					http.Error(w, `{"error":"failed to resolve user"}`, http.StatusInternalServerError)
					return
				}
				if user == nil && !opts.AllowAnonymous {
					slog.Warn("Rejected unknown user", "user_id", userID)
					http.Error(w, `{"error":"unknown user"}`, http.StatusUnauthorized)
					return
				}
			}

			if user == nil && opts.AllowAnonymous {
				var err error
				user, err = mintAnonymous(ctx, w, repo, opts.SecureCookie)
				if err != nil {
					slog.Error("Failed to create anonymous user", "error", err)
					http.Error(w, `{"error":"failed to establish anonymous identity"}`, http.StatusInternalServerError)
					return
				}
			}

			if user == nil {
				if opts.Required {
					http.Error(w, `{"error":"unknown user"}`, http.StatusUnauthorized)
					return
				}
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			ctx = WithUser(ctx, user.UserID, user.DisplayName())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IPFromRequest returns a normalized remote IP for optional request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
