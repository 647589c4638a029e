package identity

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/dukerupert/ecoquest/internal/model"
)

const (
	ProviderGoogle = "google"
	stateAudience  = "ecoquest-federated"
)

// GoogleOAuth builds the OAuth client configuration for Google sign-in.
func GoogleOAuth(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     endpoints.Google,
		Scopes:       []string{"openid", "email", "profile"},
	}
}

type userInfo struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// FederatedURL returns the provider URL to send the browser to and a nonce
// the caller must keep on that browser. The state parameter is a short-lived
// signed token carrying the nonce, checked on the way back.
func (p *Provider) FederatedURL() (authURL, nonce string, err error) {
	if p.cfg.OAuth == nil {
		return "", "", ErrFederatedDisabled
	}

	now := time.Now()
	nonce = uuid.NewString()
	state := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        nonce,
		Audience:  jwt.ClaimStrings{stateAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(p.cfg.StateTTL)),
	})
	signed, err := state.SignedString(p.cfg.StateSecret)
	if err != nil {
		return "", "", fmt.Errorf("sign state: %w", err)
	}
	return p.cfg.OAuth.AuthCodeURL(signed), nonce, nil
}

// StateTTL is how long a federated sign-in may take.
func (p *Provider) StateTTL() time.Duration {
	return p.cfg.StateTTL
}

func (p *Provider) verifyState(state, nonce string) error {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(state, &claims, func(t *jwt.Token) (any, error) {
		return p.cfg.StateSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(stateAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if nonce == "" || subtle.ConstantTimeCompare([]byte(claims.ID), []byte(nonce)) != 1 {
		return fmt.Errorf("%w: nonce mismatch", ErrInvalidState)
	}
	return nil
}

// CompleteFederated finishes a federated sign-in started by FederatedURL.
// nonce is the value FederatedURL returned to the same browser. The first
// sign-in of an account creates its profile.
func (p *Provider) CompleteFederated(ctx context.Context, state, nonce, code string) (*model.Identity, error) {
	if p.cfg.OAuth == nil {
		return nil, ErrFederatedDisabled
	}
	if err := p.verifyState(state, nonce); err != nil {
		return nil, err
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.cfg.HTTPClient)
	tok, err := p.cfg.OAuth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}

	info, err := p.fetchUserInfo(ctx, tok)
	if err != nil {
		return nil, err
	}
	emailAddr, err := normalizeEmail(info.Email)
	if err != nil || info.Subject == "" {
		return nil, fmt.Errorf("userinfo: %w", ErrInvalidEmail)
	}
	// Profiles are matched by email, so an unverified one could claim
	// someone else's account.
	if !info.EmailVerified {
		return nil, fmt.Errorf("userinfo: unverified email: %w", ErrInvalidEmail)
	}

	cred, err := p.credentials.GetBySubject(ctx, ProviderGoogle, info.Subject)
	if err != nil {
		return nil, err
	}
	if cred != nil {
		profile, err := p.profiles.GetByID(ctx, cred.UserID)
		if err != nil {
			return nil, err
		}
		if profile != nil {
			return p.open(ctx, profile)
		}
	}

	profile, created, err := p.profiles.Ensure(ctx, emailAddr, model.ProfileInput{
		DisplayName: info.Name,
		PhotoURL:    info.Picture,
		Role:        model.RoleStudent,
	})
	if err != nil {
		return nil, err
	}
	if cred == nil {
		if err := p.credentials.Create(ctx, model.Credential{
			UserID:   profile.ID,
			Email:    emailAddr,
			Provider: ProviderGoogle,
			Subject:  info.Subject,
		}); err != nil {
			return nil, err
		}
	}
	if created {
		p.logger.Info("federated profile created", "user_id", profile.ID)
	}
	return p.open(ctx, profile)
}

func (p *Provider) fetchUserInfo(ctx context.Context, tok *oauth2.Token) (*userInfo, error) {
	client := p.cfg.OAuth.Client(ctx, tok)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.UserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create userinfo request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo status %d", resp.StatusCode)
	}
	var info userInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	return &info, nil
}
