// Package profile owns the signed-in user's profile: it makes sure a profile
// exists after sign-in, accepts activity submissions, assembles the dashboard
// and removes the account on request.
package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukerupert/ecoquest/internal/catalog"
	"github.com/dukerupert/ecoquest/internal/feed"
	"github.com/dukerupert/ecoquest/internal/identity"
	"github.com/dukerupert/ecoquest/internal/model"
	"github.com/dukerupert/ecoquest/internal/photo"
	"github.com/dukerupert/ecoquest/internal/progression"
	"github.com/dukerupert/ecoquest/internal/store"
)

var (
	ErrGuest            = errors.New("guests cannot submit activities")
	ErrCategoryRequired = errors.New("category is required")
	ErrNotFound         = errors.New("profile not found")
)

// RecentLimit is the number of own activities shown on the dashboard.
const RecentLimit = 5

// Photo is an image attached to a submission.
type Photo struct {
	ContentType string
	Data        []byte
}

type SubmitInput struct {
	Category    string
	Title       string
	Description string
	Photo       *Photo
}

type Service struct {
	profiles   *store.ProfileStore
	activities *store.ActivityStore
	identity   *identity.Provider
	photos     photo.Uploader
	broker     *feed.Broker
	logger     *slog.Logger
}

func NewService(ps *store.ProfileStore, as *store.ActivityStore, idp *identity.Provider, photos photo.Uploader, broker *feed.Broker, logger *slog.Logger) *Service {
	if photos == nil {
		photos = photo.DataURLStub{}
	}
	return &Service{
		profiles:   ps,
		activities: as,
		identity:   idp,
		photos:     photos,
		broker:     broker,
		logger:     logger,
	}
}

// GuestProfile is the profile shown to a guest. It is never stored.
func GuestProfile() *model.UserProfile {
	return &model.UserProfile{
		Email:       identity.GuestEmail,
		DisplayName: identity.GuestDisplayName,
		School:      identity.GuestSchool,
		Role:        model.RoleGuest,
		Badges:      []model.EarnedBadge{},
	}
}

// SignedIn returns the profile of a freshly signed-in identity, creating it
// with zero points and no badges on first sign-in.
func (s *Service) SignedIn(ctx context.Context, id model.Identity) (*model.UserProfile, error) {
	if id.Guest {
		return GuestProfile(), nil
	}

	p, err := s.profiles.GetByID(ctx, id.UserID)
	if err != nil {
		return nil, err
	}
	if p != nil {
		return p, nil
	}

	p, created, err := s.profiles.Ensure(ctx, id.Email, model.ProfileInput{Role: id.Role})
	if err != nil {
		return nil, err
	}
	if created {
		s.logger.Info("profile created", "user_id", p.ID)
	}
	return p, nil
}

// Profile loads the current profile of id. Guests get GuestProfile.
func (s *Service) Profile(ctx context.Context, id model.Identity) (*model.UserProfile, error) {
	if id.Guest {
		return GuestProfile(), nil
	}
	p, err := s.profiles.GetByID(ctx, id.UserID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotFound
	}
	return p, nil
}

// SubmitActivity creates a pending activity for id. Points are fixed from the
// category at submission time. Guests and a missing category are refused
// before anything is written.
func (s *Service) SubmitActivity(ctx context.Context, id model.Identity, in SubmitInput) (*model.Activity, error) {
	if id.Guest {
		return nil, ErrGuest
	}
	category := strings.TrimSpace(in.Category)
	if category == "" || !catalog.ValidCategory(category) {
		return nil, ErrCategoryRequired
	}
	if in.Photo != nil {
		if _, err := photo.Validate(in.Photo.ContentType, in.Photo.Data); err != nil {
			return nil, err
		}
	}

	p, err := s.profiles.GetByID(ctx, id.UserID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotFound
	}

	var photoURL string
	if in.Photo != nil {
		photoURL, err = s.photos.Upload(ctx, p.ID, in.Photo.ContentType, in.Photo.Data)
		if err != nil {
			return nil, fmt.Errorf("upload photo: %w", err)
		}
	}

	a, err := s.activities.Create(ctx, model.Activity{
		UserID:      p.ID,
		UserName:    p.DisplayName,
		UserPhoto:   p.PhotoURL,
		Category:    category,
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		PhotoURL:    photoURL,
		Points:      progression.PointsForCategory(category),
	})
	if err != nil {
		if photoURL != "" {
			if derr := s.photos.Delete(ctx, photoURL); derr != nil {
				s.logger.Warn("orphaned photo", "url", photoURL, "error", derr)
			}
		}
		return nil, err
	}

	s.logger.Info("activity submitted", "activity_id", a.ID, "user_id", a.UserID, "category", a.Category, "points", a.Points)
	s.broker.Notify(feed.TopicPending)
	s.broker.Notify(feed.UserActivitiesTopic(a.UserID))
	return a, nil
}

// DeleteAccount removes the identity behind token and then its profile.
// identity.ErrRequiresRecentLogin is returned unchanged and nothing is
// removed in that case.
func (s *Service) DeleteAccount(ctx context.Context, token string) error {
	id, err := s.identity.DeleteIdentity(ctx, token)
	if err != nil {
		return err
	}

	if err := s.profiles.Delete(ctx, id.UserID); err != nil {
		return fmt.Errorf("delete profile %d: %w", id.UserID, err)
	}

	s.logger.Info("account deleted", "user_id", id.UserID)
	s.broker.Notify(feed.ProfileTopic(id.UserID))
	s.broker.Notify(feed.UserActivitiesTopic(id.UserID))
	s.broker.Notify(feed.TopicPending)
	s.broker.Notify(feed.TopicApproved)
	return nil
}

type EarnedBadgeView struct {
	catalog.Badge
	EarnedAt time.Time `json:"earned_at"`
}

type Dashboard struct {
	Profile    *model.UserProfile `json:"profile"`
	Badges     []EarnedBadgeView  `json:"badges"`
	NextBadge  *catalog.Badge     `json:"next_badge,omitempty"`
	Progress   int                `json:"progress"`
	PointsToGo int                `json:"points_to_go"`
	Recent     []model.Activity   `json:"recent_activities"`
}

// Dashboard gathers what the profile page shows: earned badges, the next
// badge to aim for and the latest own activities.
func (s *Service) Dashboard(ctx context.Context, id model.Identity) (*Dashboard, error) {
	p, err := s.Profile(ctx, id)
	if err != nil {
		return nil, err
	}

	d := &Dashboard{Profile: p, Badges: []EarnedBadgeView{}, Recent: []model.Activity{}}
	for _, eb := range p.Badges {
		b, ok := catalog.BadgeByID(eb.BadgeID)
		if !ok {
			continue
		}
		d.Badges = append(d.Badges, EarnedBadgeView{Badge: b, EarnedAt: eb.EarnedAt})
	}

	if next, ok := progression.NextBadge(p.Points, progression.HeldSet(p.BadgeIDs())); ok {
		d.NextBadge = &next
		d.Progress = progression.Progress(p.Points, next)
		d.PointsToGo = progression.PointsToGo(p.Points, next)
	}

	if id.Guest {
		return d, nil
	}
	d.Recent, err = s.activities.List(ctx, store.ActivityQuery{UserID: p.ID, Limit: RecentLimit})
	if err != nil {
		return nil, err
	}
	return d, nil
}
