package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/cors"
	"golang.org/x/text/language"

	"github.com/dukerupert/ecoquest/internal/config"
	"github.com/dukerupert/ecoquest/internal/email"
	"github.com/dukerupert/ecoquest/internal/feed"
	"github.com/dukerupert/ecoquest/internal/handler"
	"github.com/dukerupert/ecoquest/internal/i18n"
	"github.com/dukerupert/ecoquest/internal/identity"
	"github.com/dukerupert/ecoquest/internal/middleware"
	"github.com/dukerupert/ecoquest/internal/model"
	"github.com/dukerupert/ecoquest/internal/notify"
	"github.com/dukerupert/ecoquest/internal/photo"
	"github.com/dukerupert/ecoquest/internal/profile"
	"github.com/dukerupert/ecoquest/internal/push"
	"github.com/dukerupert/ecoquest/internal/review"
	"github.com/dukerupert/ecoquest/internal/store"
	ws "github.com/dukerupert/ecoquest/internal/websocket"
)

type Server struct {
	cfg          config.Config
	lang         language.Tag
	hub          *ws.Hub
	broker       *feed.Broker
	registry     *profile.Registry
	identity     *identity.Provider
	profiles     *profile.Service
	queue        *review.Queue
	authH        *handler.AuthHandler
	profileH     *handler.ProfileHandler
	activityH    *handler.ActivityHandler
	pushH        *handler.PushHandler
	sessionStore *store.SessionStore
	rateLimiter  *middleware.RateLimiter
	unwatch      func()
	logger       *slog.Logger
}

func New(db *sql.DB, cfg config.Config, logger *slog.Logger) (*Server, error) {
	lang := i18n.Parse(cfg.Locale)
	hub := ws.NewHub(logger.With("component", "websocket"))
	broker := feed.NewBroker(logger.With("component", "feed"), feed.DefaultRetry)
	registry := profile.NewRegistry()

	profileStore := store.NewProfileStore(db)
	activityStore := store.NewActivityStore(db)
	sessionStore := store.NewSessionStore(db)
	credentialStore := store.NewCredentialStore(db)
	pushStore := store.NewPushStore(db)

	idCfg := identity.Config{
		SessionTTL:        cfg.SessionTTL,
		RecentLoginWindow: cfg.RecentLoginWindow,
	}
	if cfg.FederatedEnabled() {
		idCfg.OAuth = identity.GoogleOAuth(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.BaseURL+"/auth/federated/callback")
		idCfg.StateSecret = []byte(cfg.OAuthStateSecret)
	}
	idp, err := identity.NewProvider(profileStore, credentialStore, sessionStore, idCfg, logger.With("component", "identity"))
	if err != nil {
		return nil, fmt.Errorf("identity provider: %w", err)
	}

	// Photos fall back to inline data URLs when no bucket is configured.
	var photos photo.Uploader
	s3Cfg := photo.S3Config{
		Endpoint:      cfg.S3Endpoint,
		Bucket:        cfg.S3Bucket,
		Region:        cfg.S3Region,
		AccessKey:     cfg.S3AccessKey,
		SecretKey:     cfg.S3SecretKey,
		PublicBaseURL: cfg.S3PublicBaseURL,
	}
	if s3Cfg.Configured() {
		photos = photo.NewS3Uploader(s3Cfg)
	} else {
		logger.Info("S3 not configured, storing photos inline")
	}

	pushSvc := push.NewService(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubscriber)
	sender := push.NewSender(pushSvc, pushStore, logger.With("component", "push"))
	emailClient := email.NewClient(cfg.PostmarkToken, cfg.EmailFrom, cfg.BaseURL)
	dispatcher := notify.NewDispatcher(emailClient, sender, profileStore, lang, logger.With("component", "notify"))

	profiles := profile.NewService(profileStore, activityStore, idp, photos, broker, logger.With("component", "profile"))
	queue := review.NewQueue(activityStore, profileStore, broker, review.Options{
		Registry: registry,
		Events:   hub,
		Notifier: dispatcher,
		Lang:     lang,
	}, logger.With("component", "review"))

	s := &Server{
		cfg:          cfg,
		lang:         lang,
		hub:          hub,
		broker:       broker,
		registry:     registry,
		identity:     idp,
		profiles:     profiles,
		queue:        queue,
		authH:        handler.NewAuthHandler(idp, profiles, cfg.SessionTTL, cfg.SecureCookies, logger.With("component", "auth")),
		profileH:     handler.NewProfileHandler(profiles, logger.With("component", "profile_handler")),
		activityH:    handler.NewActivityHandler(profiles, queue, logger.With("component", "activity")),
		pushH:        handler.NewPushHandler(pushStore, pushSvc, logger.With("component", "push_handler")),
		sessionStore: sessionStore,
		rateLimiter:  middleware.NewRateLimiter(),
		logger:       logger,
	}
	s.unwatch = idp.Watch(s.onIdentityEvent)
	return s, nil
}

// onIdentityEvent closes live connections of sessions that ended.
func (s *Server) onIdentityEvent(e identity.Event) {
	switch e.Kind {
	case identity.SignedOut:
		if n := s.hub.SignedOut(e.Identity.Token); n > 0 {
			s.logger.Debug("closed connections after sign-out", "user_id", e.Identity.UserID, "count", n)
		}
	case identity.Deleted:
		if n := s.hub.Deleted(e.Identity.UserID); n > 0 {
			s.logger.Debug("closed connections after account deletion", "user_id", e.Identity.UserID, "count", n)
		}
	}
}

// Close stops listening for identity events.
func (s *Server) Close() {
	if s.unwatch != nil {
		s.unwatch()
	}
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("POST /auth/register", s.rateLimitedHandler(s.authH.Register))
	outerMux.HandleFunc("POST /auth/login", s.rateLimitedHandler(s.authH.Login))
	outerMux.HandleFunc("POST /auth/guest", s.rateLimitedHandler(s.authH.Guest))
	outerMux.HandleFunc("POST /auth/logout", s.authH.Logout)
	outerMux.HandleFunc("GET /auth/federated", s.authH.Federated)
	outerMux.HandleFunc("GET /auth/federated/callback", s.authH.FederatedCallback)
	outerMux.HandleFunc("GET /api/catalog", handler.Catalog)
	outerMux.HandleFunc("GET /health", s.healthHandler)

	// Protected routes, wrapped with RequireAuth
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.identity)
	outerMux.Handle("/", authMiddleware(protectedMux))

	var h http.Handler = outerMux
	if len(s.cfg.CORSOrigins) > 0 {
		h = cors.New(cors.Options{
			AllowedOrigins:   s.cfg.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "Accept-Language"},
			AllowCredentials: true,
		}).Handler(h)
	}
	h = middleware.Localize(s.lang)(h)
	return middleware.RequestLogger(s.logger.With("component", "http"))(h)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

func teacherOnly(h http.HandlerFunc) http.Handler {
	return middleware.RequireTeacher(h)
}

func accountOnly(h http.HandlerFunc) http.Handler {
	return middleware.RequireAccount(h)
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/reauthenticate", s.authH.Reauthenticate)

	// Profile
	mux.HandleFunc("GET /api/profile", s.profileH.Get)
	mux.HandleFunc("GET /api/dashboard", s.profileH.Dashboard)
	mux.Handle("DELETE /api/account", accountOnly(s.profileH.DeleteAccount))

	// Activities
	mux.HandleFunc("POST /api/activities", s.activityH.Submit)
	mux.HandleFunc("GET /api/activities/mine", s.activityH.Mine)
	mux.HandleFunc("GET /api/activities/pending", s.activityH.Pending)
	mux.HandleFunc("GET /api/activities/approved", s.activityH.Approved)
	mux.HandleFunc("GET /api/activities/recent", s.activityH.Recent)
	mux.Handle("POST /api/activities/{id}/approve", teacherOnly(s.activityH.Approve))
	mux.Handle("POST /api/activities/{id}/reject", teacherOnly(s.activityH.Reject))
	mux.HandleFunc("GET /api/leaderboard", s.activityH.Leaderboard)

	// Push notifications
	mux.HandleFunc("GET /api/push/vapid-key", s.pushH.VAPIDKey)
	mux.Handle("POST /api/push/subscribe", accountOnly(s.pushH.Subscribe))
	mux.Handle("GET /api/push/subscriptions", accountOnly(s.pushH.ListSubscriptions))
	mux.Handle("DELETE /api/push/subscriptions/{id}", accountOnly(s.pushH.Unsubscribe))

	// WebSocket
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(ws.Options{
		Hub:            s.hub,
		Broker:         s.broker,
		Registry:       s.registry,
		Profiles:       s.profiles,
		Streams:        s.streams,
		OriginPatterns: s.cfg.CORSOrigins,
		Logger:         s.logger.With("component", "websocket"),
	}))
}

// streams lists the live queries an identity follows over the websocket.
// Recent activity and the leaderboard are scoped to the caller's class.
func (s *Server) streams(id model.Identity) []ws.Stream {
	var out []ws.Stream
	if id.Role == model.RoleTeacher && !id.Guest {
		out = append(out, ws.Stream{
			Entity: "pending",
			Topic:  feed.TopicPending,
			Load: func(ctx context.Context) (any, error) {
				return s.queue.ListPending(ctx, id)
			},
		})
	}
	if !id.Guest {
		out = append(out, ws.Stream{
			Entity: "own_activities",
			Topic:  feed.UserActivitiesTopic(id.UserID),
			Load: func(ctx context.Context) (any, error) {
				return s.queue.ListOwn(ctx, id)
			},
		})
	}
	out = append(out,
		ws.Stream{
			Entity: "recent",
			Topic:  feed.TopicApproved,
			Load: func(ctx context.Context) (any, error) {
				school, class, err := s.classOf(ctx, id)
				if err != nil {
					return nil, err
				}
				return s.queue.Recent(ctx, school, class)
			},
		},
		ws.Stream{
			Entity: "leaderboard",
			Topic:  feed.TopicApproved,
			Load: func(ctx context.Context) (any, error) {
				school, class, err := s.classOf(ctx, id)
				if err != nil {
					return nil, err
				}
				return s.queue.Leaderboard(ctx, school, class, 0)
			},
		},
	)
	return out
}

func (s *Server) classOf(ctx context.Context, id model.Identity) (school, className string, err error) {
	if id.Guest {
		return "", "", nil
	}
	p, err := s.profiles.Profile(ctx, id)
	if err != nil {
		return "", "", err
	}
	return p.School, p.ClassName, nil
}
