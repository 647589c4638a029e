// Package identity authenticates users. It issues and resolves session
// tokens for password, federated and guest sign-ins, and tells listeners
// when an identity signs in, signs out or is deleted.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"

	"github.com/dukerupert/ecoquest/internal/model"
	"github.com/dukerupert/ecoquest/internal/store"
)

var (
	ErrInvalidEmail        = errors.New("invalid email address")
	ErrWeakPassword        = errors.New("password too short")
	ErrEmailTaken          = errors.New("email already registered")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrUnauthenticated     = errors.New("not signed in")
	ErrRequiresRecentLogin = errors.New("requires recent login")
	ErrFederatedDisabled   = errors.New("federated sign-in not configured")
	ErrInvalidState        = errors.New("invalid sign-in state")
)

const MinPasswordLength = 6

type Config struct {
	SessionTTL        time.Duration
	RecentLoginWindow time.Duration
	BcryptCost        int
	GuestCacheSize    int

	// OAuth enables federated sign-in when non-nil.
	OAuth       *oauth2.Config
	UserInfoURL string
	StateSecret []byte
	StateTTL    time.Duration
	HTTPClient  *http.Client
}

func (c *Config) defaults() {
	if c.SessionTTL == 0 {
		c.SessionTTL = 30 * 24 * time.Hour
	}
	if c.RecentLoginWindow == 0 {
		c.RecentLoginWindow = 5 * time.Minute
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = bcrypt.DefaultCost
	}
	if c.GuestCacheSize == 0 {
		c.GuestCacheSize = 1024
	}
	if c.StateTTL == 0 {
		c.StateTTL = 10 * time.Minute
	}
	if c.UserInfoURL == "" {
		c.UserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
}

type EventKind int

const (
	SignedIn EventKind = iota
	SignedOut
	Deleted
)

func (k EventKind) String() string {
	switch k {
	case SignedIn:
		return "signed_in"
	case SignedOut:
		return "signed_out"
	case Deleted:
		return "deleted"
	}
	return "unknown"
}

// Event reports an identity state change.
type Event struct {
	Kind     EventKind
	Identity model.Identity
}

type Provider struct {
	profiles    *store.ProfileStore
	credentials *store.CredentialStore
	sessions    *store.SessionStore
	guests      *lru.Cache
	cfg         Config
	logger      *slog.Logger

	mu        sync.Mutex
	listeners map[int]func(Event)
	nextID    int
}

func NewProvider(ps *store.ProfileStore, cs *store.CredentialStore, ss *store.SessionStore, cfg Config, logger *slog.Logger) (*Provider, error) {
	cfg.defaults()
	guests, err := lru.New(cfg.GuestCacheSize)
	if err != nil {
		return nil, fmt.Errorf("guest cache: %w", err)
	}
	return &Provider{
		profiles:    ps,
		credentials: cs,
		sessions:    ss,
		guests:      guests,
		cfg:         cfg,
		logger:      logger,
		listeners:   make(map[int]func(Event)),
	}, nil
}

func normalizeEmail(addr string) (string, error) {
	addr = strings.ToLower(strings.TrimSpace(addr))
	parsed, err := mail.ParseAddress(addr)
	if err != nil || parsed.Address != addr {
		return "", ErrInvalidEmail
	}
	return addr, nil
}

// Register creates a password identity and its profile, then opens a
// session. The role in the profile input is kept as the user chose it.
func (p *Provider) Register(ctx context.Context, emailAddr, password string, in model.ProfileInput) (*model.Identity, error) {
	emailAddr, err := normalizeEmail(emailAddr)
	if err != nil {
		return nil, err
	}
	if len(password) < MinPasswordLength {
		return nil, ErrWeakPassword
	}

	// Any profile on this email, federated ones included, blocks registration.
	existing, err := p.profiles.GetByEmail(ctx, emailAddr)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	profile, err := p.profiles.Create(ctx, emailAddr, in)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	if err := p.credentials.Create(ctx, model.Credential{
		UserID:       profile.ID,
		Email:        emailAddr,
		PasswordHash: string(hash),
		Provider:     store.ProviderPassword,
	}); err != nil {
		return nil, err
	}

	return p.open(ctx, profile)
}

// SignIn checks an email and password. Unknown emails and wrong passwords
// fail the same way.
func (p *Provider) SignIn(ctx context.Context, emailAddr, password string) (*model.Identity, error) {
	emailAddr, err := normalizeEmail(emailAddr)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	cred, err := p.credentials.GetPassword(ctx, emailAddr)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	profile, err := p.profiles.GetByID(ctx, cred.UserID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrInvalidCredentials
	}
	return p.open(ctx, profile)
}

// Reauthenticate confirms the password of a signed-in user and marks the
// session as fresh, which unlocks DeleteIdentity.
func (p *Provider) Reauthenticate(ctx context.Context, token, password string) (*model.Identity, error) {
	id, err := p.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	if id.Guest {
		return nil, ErrUnauthenticated
	}

	cred, err := p.credentials.GetPassword(ctx, id.Email)
	if err != nil {
		return nil, err
	}
	if cred == nil || bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	if err := p.sessions.Reauthenticate(ctx, id.SessionID); err != nil {
		return nil, err
	}
	id.AuthenticatedAt = time.Now().UTC()
	return id, nil
}

func (p *Provider) open(ctx context.Context, profile *model.UserProfile) (*model.Identity, error) {
	sess, err := p.sessions.Create(ctx, profile.ID, p.cfg.SessionTTL)
	if err != nil {
		return nil, err
	}
	id := &model.Identity{
		UserID:          profile.ID,
		Email:           profile.Email,
		Role:            profile.Role,
		SessionID:       sess.ID,
		Token:           sess.Token,
		AuthenticatedAt: sess.AuthenticatedAt,
	}
	p.emit(Event{Kind: SignedIn, Identity: *id})
	return id, nil
}

// Resolve returns the identity behind a session token.
func (p *Provider) Resolve(ctx context.Context, token string) (*model.Identity, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}
	if isGuestToken(token) {
		return p.resolveGuest(token)
	}

	sess, err := p.sessions.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrUnauthenticated
	}
	profile, err := p.profiles.GetByID(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrUnauthenticated
	}

	return &model.Identity{
		UserID:          profile.ID,
		Email:           profile.Email,
		Role:            profile.Role,
		SessionID:       sess.ID,
		Token:           sess.Token,
		AuthenticatedAt: sess.AuthenticatedAt,
	}, nil
}

// SignOut ends the session behind token. Signing out twice is not an error.
func (p *Provider) SignOut(ctx context.Context, token string) error {
	if isGuestToken(token) {
		if v, ok := p.guests.Get(token); ok {
			p.guests.Remove(token)
			p.emit(Event{Kind: SignedOut, Identity: v.(model.Identity)})
		}
		return nil
	}

	id, err := p.Resolve(ctx, token)
	if errors.Is(err, ErrUnauthenticated) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := p.sessions.Delete(ctx, token); err != nil {
		return err
	}
	p.emit(Event{Kind: SignedOut, Identity: *id})
	return nil
}

// DeleteIdentity removes every login method of the signed-in user. The
// session must have authenticated within the recent-login window.
func (p *Provider) DeleteIdentity(ctx context.Context, token string) (*model.Identity, error) {
	id, err := p.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	if id.Guest {
		return nil, ErrUnauthenticated
	}
	if time.Since(id.AuthenticatedAt) > p.cfg.RecentLoginWindow {
		return nil, ErrRequiresRecentLogin
	}

	if err := p.credentials.DeleteByUser(ctx, id.UserID); err != nil {
		return nil, err
	}
	if err := p.sessions.DeleteByUser(ctx, id.UserID); err != nil {
		return nil, err
	}
	p.emit(Event{Kind: Deleted, Identity: *id})
	return id, nil
}

// Watch registers fn for identity state changes and returns a function that
// removes it.
func (p *Provider) Watch(fn func(Event)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			delete(p.listeners, id)
		})
	}
}

func (p *Provider) emit(e Event) {
	p.mu.Lock()
	fns := make([]func(Event), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(e)
	}
}
