// Package notify tells students about review outcomes and new badges by
// email and web push. Delivery is best effort: failures are logged and
// never reach the caller.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/text/language"

	"github.com/dukerupert/ecoquest/internal/catalog"
	"github.com/dukerupert/ecoquest/internal/email"
	"github.com/dukerupert/ecoquest/internal/i18n"
	"github.com/dukerupert/ecoquest/internal/model"
	"github.com/dukerupert/ecoquest/internal/push"
)

type Mailer interface {
	Configured() bool
	SendNotice(ctx context.Context, toEmail string, n email.Notice) error
}

type Pusher interface {
	SendToUser(ctx context.Context, userID int64, payload push.Payload) int
}

// ProfileGetter looks up the recipient's email address.
type ProfileGetter interface {
	GetByID(ctx context.Context, id int64) (*model.UserProfile, error)
}

type Dispatcher struct {
	mailer   Mailer
	pusher   Pusher
	profiles ProfileGetter
	lang     language.Tag
	logger   *slog.Logger
}

// NewDispatcher accepts nil for either channel.
func NewDispatcher(mailer Mailer, pusher Pusher, profiles ProfileGetter, lang language.Tag, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		mailer:   mailer,
		pusher:   pusher,
		profiles: profiles,
		lang:     lang,
		logger:   logger,
	}
}

func label(a model.Activity) string {
	if a.Title != "" {
		return a.Title
	}
	if c, ok := catalog.CategoryByID(a.Category); ok {
		return c.Name
	}
	return a.Category
}

// Approved notifies the submitter about an approval and any badge it unlocked.
func (d *Dispatcher) Approved(ctx context.Context, appr *model.Approval) {
	a := appr.Activity
	d.deliver(ctx, a.UserID, email.Notice{
		Subject: i18n.T(d.lang, i18n.ApprovedTitle),
		Body:    i18n.T(d.lang, i18n.ApprovedBody, label(a), a.Points),
		Path:    "/dashboard",
		Tag:     "activity-approved",
	})

	for _, eb := range appr.NewBadges {
		name := eb.BadgeID
		if b, ok := catalog.BadgeByID(eb.BadgeID); ok {
			name = b.Name
		}
		d.deliver(ctx, a.UserID, email.Notice{
			Subject: i18n.T(d.lang, i18n.BadgeTitle, name),
			Body:    i18n.T(d.lang, i18n.BadgeBody, appr.TotalPoints),
			Path:    "/profile",
			Tag:     "badge-earned",
		})
	}
}

// Rejected notifies the submitter about a rejection and its reason.
func (d *Dispatcher) Rejected(ctx context.Context, a *model.Activity) {
	d.deliver(ctx, a.UserID, email.Notice{
		Subject: i18n.T(d.lang, i18n.RejectedTitle),
		Body:    i18n.T(d.lang, i18n.RejectedBody, label(*a), a.RejectionReason),
		Path:    "/dashboard",
		Tag:     "activity-rejected",
	})
}

func (d *Dispatcher) deliver(ctx context.Context, userID int64, n email.Notice) {
	if d.pusher != nil {
		d.pusher.SendToUser(ctx, userID, push.Payload{
			Title: n.Subject,
			Body:  n.Body,
			URL:   n.Path,
			Tag:   fmt.Sprintf("%s-%d", n.Tag, userID),
		})
	}

	if d.mailer == nil || !d.mailer.Configured() {
		return
	}
	p, err := d.profiles.GetByID(ctx, userID)
	if err != nil {
		d.logger.Error("notify lookup", "user_id", userID, "error", err)
		return
	}
	if p == nil || p.Email == "" {
		return
	}
	if err := d.mailer.SendNotice(ctx, p.Email, n); err != nil {
		d.logger.Warn("notify email", "user_id", userID, "tag", n.Tag, "error", err)
	}
}
