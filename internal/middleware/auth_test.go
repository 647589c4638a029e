package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/language"

	"github.com/dukerupert/ecoquest/internal/auth"
	"github.com/dukerupert/ecoquest/internal/database"
	"github.com/dukerupert/ecoquest/internal/i18n"
	"github.com/dukerupert/ecoquest/internal/identity"
	"github.com/dukerupert/ecoquest/internal/model"
	"github.com/dukerupert/ecoquest/internal/store"
)

func setupAuthMiddleware(t *testing.T) *identity.Provider {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p, err := identity.NewProvider(store.NewProfileStore(db), store.NewCredentialStore(db), store.NewSessionStore(db),
		identity.Config{BcryptCost: bcrypt.MinCost}, logger)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	return p
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

func TestRequireAuthNoToken(t *testing.T) {
	p := setupAuthMiddleware(t)

	handler := RequireAuth(p)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if body := decodeError(t, rec); body["error"] != "unauthenticated" {
		t.Errorf("error = %q", body["error"])
	}
}

func TestRequireAuthInvalidToken(t *testing.T) {
	p := setupAuthMiddleware(t)

	handler := RequireAuth(p)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "invalid-token"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireAuthValidSession(t *testing.T) {
	p := setupAuthMiddleware(t)
	id, err := p.Register(context.Background(), "alice@example.com", "secret123", model.ProfileInput{Role: model.RoleTeacher})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	for _, viaCookie := range []bool{true, false} {
		var got model.Identity
		handler := RequireAuth(p)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac, ok := auth.FromContext(r.Context())
			if !ok {
				t.Fatal("expected identity in request context")
			}
			got = ac
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest("GET", "/", nil)
		if viaCookie {
			req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: id.Token})
		} else {
			req.Header.Set("Authorization", "Bearer "+id.Token)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("cookie=%v: status = %d, want %d", viaCookie, rec.Code, http.StatusOK)
		}
		if got.UserID != id.UserID {
			t.Errorf("cookie=%v: UserID = %d, want %d", viaCookie, got.UserID, id.UserID)
		}
		if got.Role != model.RoleTeacher {
			t.Errorf("cookie=%v: Role = %q, want teacher", viaCookie, got.Role)
		}
	}
}

func TestRequireAuthGuest(t *testing.T) {
	p := setupAuthMiddleware(t)
	guest := p.SignInGuest()

	var got model.Identity
	handler := RequireAuth(p)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = auth.FromContext(r.Context())
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+guest.Token)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !got.Guest {
		t.Error("expected guest identity")
	}
}

type failingResolver struct{}

func (failingResolver) Resolve(context.Context, string) (*model.Identity, error) {
	return nil, errors.New("database is locked")
}

func TestRequireAuthBackendFailure(t *testing.T) {
	handler := RequireAuth(failingResolver{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestRequireTeacherAllowed(t *testing.T) {
	ctx := auth.WithIdentity(context.Background(), model.Identity{UserID: 1, Role: model.RoleTeacher})
	req := httptest.NewRequest("GET", "/", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	handler := RequireTeacher(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestRequireTeacherForbidden(t *testing.T) {
	for _, id := range []model.Identity{
		{UserID: 1, Role: model.RoleStudent},
		{Guest: true, Role: model.RoleTeacher},
	} {
		ctx := auth.WithIdentity(context.Background(), id)
		ctx = i18n.WithLanguage(ctx, language.English)
		req := httptest.NewRequest("GET", "/", nil).WithContext(ctx)
		rec := httptest.NewRecorder()

		handler := RequireTeacher(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("should not reach handler")
		}))
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
		}
		if body := decodeError(t, rec); body["message"] != i18n.TeacherOnly {
			t.Errorf("message = %q", body["message"])
		}
	}
}

func TestLocalize(t *testing.T) {
	var got language.Tag
	handler := Localize(language.Polish)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = i18n.FromContext(r.Context())
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Accept-Language", "en-GB,en;q=0.8")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if got != language.English {
		t.Errorf("language = %v, want en", got)
	}

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	if got != language.Polish {
		t.Errorf("language = %v, want pl", got)
	}
}

func TestRequireAccount(t *testing.T) {
	tests := []struct {
		name string
		id   model.Identity
		want int
	}{
		{"student", model.Identity{UserID: 3, Role: model.RoleStudent}, http.StatusOK},
		{"guest", model.Identity{Guest: true, Role: model.RoleGuest}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil).WithContext(auth.WithIdentity(context.Background(), tt.id))
			rec := httptest.NewRecorder()
			RequireAccount(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})).ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
