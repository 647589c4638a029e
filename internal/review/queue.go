// Package review lets teachers approve or reject submitted activities and
// exposes the role-scoped activity lists, the recent feed and the
// leaderboard.
package review

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/text/language"

	"github.com/dukerupert/ecoquest/internal/feed"
	"github.com/dukerupert/ecoquest/internal/i18n"
	"github.com/dukerupert/ecoquest/internal/model"
	"github.com/dukerupert/ecoquest/internal/profile"
	"github.com/dukerupert/ecoquest/internal/progression"
	"github.com/dukerupert/ecoquest/internal/store"
	"github.com/dukerupert/ecoquest/internal/websocket"
)

var (
	ErrForbidden     = errors.New("only teachers can review activities")
	ErrInvalidPoints = errors.New("points must not be negative")
	ErrNotFound      = store.ErrNotFound
	ErrNotPending    = store.ErrNotPending
)

const (
	RecentLimit             = 10
	DefaultLeaderboardLimit = 20
	MaxLeaderboardLimit     = 100
)

// Broadcaster fans out small change events to connected clients.
type Broadcaster interface {
	Broadcast(msg websocket.Message)
}

// Notifier tells the submitter about the outcome of a review.
type Notifier interface {
	Approved(ctx context.Context, appr *model.Approval)
	Rejected(ctx context.Context, a *model.Activity)
}

type Queue struct {
	activities *store.ActivityStore
	profiles   *store.ProfileStore
	broker     *feed.Broker
	registry   *profile.Registry
	events     Broadcaster
	notifier   Notifier
	lang       language.Tag
	logger     *slog.Logger
}

type Options struct {
	Registry *profile.Registry
	Events   Broadcaster
	Notifier Notifier
	// Lang selects the default rejection reason.
	Lang language.Tag
}

func NewQueue(as *store.ActivityStore, ps *store.ProfileStore, broker *feed.Broker, opts Options, logger *slog.Logger) *Queue {
	if opts.Registry == nil {
		opts.Registry = profile.NewRegistry()
	}
	if opts.Lang == language.Und {
		opts.Lang = language.Polish
	}
	return &Queue{
		activities: as,
		profiles:   ps,
		broker:     broker,
		registry:   opts.Registry,
		events:     opts.Events,
		notifier:   opts.Notifier,
		lang:       opts.Lang,
		logger:     logger,
	}
}

func isTeacher(actor model.Identity) bool {
	return !actor.Guest && actor.Role == model.RoleTeacher
}

func (q *Queue) broadcast(msg websocket.Message) {
	if q.events != nil {
		q.events.Broadcast(msg)
	}
}

// Approve marks a pending activity approved, credits the submitter with
// points and awards every badge the new total qualifies for. A nil points
// keeps the award fixed at submission. The status change, the points and
// the badges are committed together; approving an activity that is no
// longer pending fails with ErrNotPending and changes nothing.
func (q *Queue) Approve(ctx context.Context, actor model.Identity, activityID int64, points *int) (*model.Approval, error) {
	if !isTeacher(actor) {
		return nil, ErrForbidden
	}
	if points != nil && *points < 0 {
		return nil, ErrInvalidPoints
	}

	a, err := q.activities.GetByID(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrNotFound
	}
	if a.Status != model.StatusPending {
		return nil, ErrNotPending
	}

	award := a.Points
	if points != nil {
		award = *points
	}

	pending := q.registry.Begin(a.UserID, award)
	appr, err := q.activities.Approve(ctx, store.ApproveParams{
		ActivityID: activityID,
		ReviewerID: actor.UserID,
		Points:     award,
	}, progression.QualifyingBadges)
	if err != nil {
		pending.Fail()
		return nil, err
	}
	pending.Confirm(appr.TotalPoints, appr.NewBadges)

	uid := appr.Activity.UserID
	q.logger.Info("activity approved",
		"activity_id", activityID,
		"user_id", uid,
		"reviewer_id", actor.UserID,
		"points", award,
		"total", appr.TotalPoints,
		"new_badges", len(appr.NewBadges),
	)

	q.broker.Notify(feed.TopicPending)
	q.broker.Notify(feed.TopicApproved)
	q.broker.Notify(feed.UserActivitiesTopic(uid))
	q.broker.Notify(feed.ProfileTopic(uid))

	q.broadcast(websocket.NewMessage("activity", "approved", activityID, map[string]any{
		"user_id": uid,
		"points":  award,
	}))
	for _, b := range appr.NewBadges {
		q.broadcast(websocket.NewMessage("badge", "earned", uid, map[string]any{
			"badge_id": b.BadgeID,
		}))
	}

	if q.notifier != nil {
		q.notifier.Approved(ctx, appr)
	}
	return appr, nil
}

// Reject marks a pending activity rejected. An empty reason is replaced by
// the default one. Points and badges are never touched.
func (q *Queue) Reject(ctx context.Context, actor model.Identity, activityID int64, reason string) (*model.Activity, error) {
	if !isTeacher(actor) {
		return nil, ErrForbidden
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = i18n.T(q.lang, i18n.DefaultRejection)
	}

	a, err := q.activities.Reject(ctx, activityID, actor.UserID, reason)
	if err != nil {
		return nil, err
	}

	q.logger.Info("activity rejected", "activity_id", activityID, "user_id", a.UserID, "reviewer_id", actor.UserID)
	q.broker.Notify(feed.TopicPending)
	q.broker.Notify(feed.UserActivitiesTopic(a.UserID))
	q.broadcast(websocket.NewMessage("activity", "rejected", activityID, map[string]any{
		"user_id": a.UserID,
	}))

	if q.notifier != nil {
		q.notifier.Rejected(ctx, a)
	}
	return a, nil
}

// ListPending returns every pending activity to a teacher and the caller's
// own pending activities to anyone else. Guests own nothing.
func (q *Queue) ListPending(ctx context.Context, actor model.Identity) ([]model.Activity, error) {
	query := store.ActivityQuery{Status: model.StatusPending, OrderBy: store.OrderSubmitted}
	if !isTeacher(actor) {
		if actor.Guest {
			return []model.Activity{}, nil
		}
		query.UserID = actor.UserID
	}
	return q.activities.List(ctx, query)
}

// ListApproved is ListPending for approved activities, newest review first.
func (q *Queue) ListApproved(ctx context.Context, actor model.Identity) ([]model.Activity, error) {
	query := store.ActivityQuery{Status: model.StatusApproved, OrderBy: store.OrderReviewed}
	if !isTeacher(actor) {
		if actor.Guest {
			return []model.Activity{}, nil
		}
		query.UserID = actor.UserID
	}
	return q.activities.List(ctx, query)
}

// ListOwn returns every activity the caller submitted, whatever its status.
func (q *Queue) ListOwn(ctx context.Context, actor model.Identity) ([]model.Activity, error) {
	if actor.Guest {
		return []model.Activity{}, nil
	}
	return q.activities.List(ctx, store.ActivityQuery{UserID: actor.UserID, OrderBy: store.OrderSubmitted})
}

// Recent returns the latest approved activities. A school or class narrows
// it to their members; an empty one does not filter.
func (q *Queue) Recent(ctx context.Context, school, className string) ([]model.Activity, error) {
	query := store.ActivityQuery{Status: model.StatusApproved, OrderBy: store.OrderReviewed, Limit: RecentLimit}
	if school != "" || className != "" {
		ids, err := q.profiles.ListIDsBySchoolClass(ctx, school, className)
		if err != nil {
			return nil, err
		}
		query.UserIDs = append([]int64{}, ids...)
	}
	return q.activities.List(ctx, query)
}

// Leaderboard ranks students by points. Ties share a rank.
func (q *Queue) Leaderboard(ctx context.Context, school, className string, limit int) ([]model.Ranking, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	if limit > MaxLeaderboardLimit {
		limit = MaxLeaderboardLimit
	}
	rankings, err := q.profiles.Ranking(ctx, school, className, limit)
	if err != nil {
		return nil, err
	}
	if rankings == nil {
		rankings = []model.Ranking{}
	}
	return rankings, nil
}
