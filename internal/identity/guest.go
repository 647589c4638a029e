package identity

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/ecoquest/internal/model"
)

const (
	guestPrefix      = "guest_"
	GuestEmail       = "guest@example.com"
	GuestDisplayName = "Gość"
	GuestSchool      = "Unverified"
)

func isGuestToken(token string) bool {
	return strings.HasPrefix(token, guestPrefix)
}

// SignInGuest starts an ephemeral identity. It lives only in memory, is never
// written to the store, and is forgotten on sign-out or eviction.
func (p *Provider) SignInGuest() *model.Identity {
	id := model.Identity{
		Email:           GuestEmail,
		Role:            model.RoleGuest,
		Guest:           true,
		Token:           guestPrefix + uuid.NewString(),
		AuthenticatedAt: time.Now().UTC(),
	}
	p.guests.Add(id.Token, id)
	p.emit(Event{Kind: SignedIn, Identity: id})
	return &id
}

func (p *Provider) resolveGuest(token string) (*model.Identity, error) {
	v, ok := p.guests.Get(token)
	if !ok {
		return nil, ErrUnauthenticated
	}
	id := v.(model.Identity)
	return &id, nil
}
