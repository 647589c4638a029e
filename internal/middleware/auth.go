package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"golang.org/x/text/language"

	"github.com/dukerupert/ecoquest/internal/auth"
	"github.com/dukerupert/ecoquest/internal/i18n"
	"github.com/dukerupert/ecoquest/internal/identity"
	"github.com/dukerupert/ecoquest/internal/model"
)

const SessionCookieName = "ecoquest_session"

// Resolver turns a session token into an identity.
type Resolver interface {
	Resolve(ctx context.Context, token string) (*model.Identity, error)
}

// Token returns the session token from the Authorization bearer header or,
// failing that, the session cookie.
func Token(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// RequireAuth resolves the session token and stores the identity in the
// request context. Unknown or expired tokens get a 401.
func RequireAuth(resolver Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := Token(r)
			if token == "" {
				writeError(w, r, http.StatusUnauthorized, "unauthenticated", i18n.SignInRequired)
				return
			}

			id, err := resolver.Resolve(r.Context(), token)
			if errors.Is(err, identity.ErrUnauthenticated) {
				writeError(w, r, http.StatusUnauthorized, "unauthenticated", i18n.SignInRequired)
				return
			}
			if err != nil {
				writeError(w, r, http.StatusInternalServerError, "internal", i18n.Internal)
				return
			}

			ctx := auth.WithIdentity(r.Context(), *id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireTeacher checks that the authenticated identity is a teacher.
func RequireTeacher(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsTeacher(r.Context()) {
			writeError(w, r, http.StatusForbidden, "forbidden", i18n.TeacherOnly)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAccount turns guests away from routes that need a stored profile.
func RequireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := auth.FromContext(r.Context()); !ok || id.Guest {
			writeError(w, r, http.StatusForbidden, "guest", i18n.SignInRequired)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Localize stores the language negotiated from Accept-Language.
func Localize(def language.Tag) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tag := i18n.Match(r.Header.Get("Accept-Language"), def)
			next.ServeHTTP(w, r.WithContext(i18n.WithLanguage(r.Context(), tag)))
		})
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, key string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": i18n.T(i18n.FromContext(r.Context()), key),
	})
}
