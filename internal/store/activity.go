package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/ecoquest/internal/catalog"
	"github.com/dukerupert/ecoquest/internal/model"
)

// QualifyFunc picks the badges to award for a new point total given the
// badges already held.
type QualifyFunc func(points int, held map[string]bool) []catalog.Badge

type ActivityStore struct {
	db *sql.DB
}

func NewActivityStore(db *sql.DB) *ActivityStore {
	return &ActivityStore{db: db}
}

func scanActivity(scanner interface{ Scan(...any) error }) (*model.Activity, error) {
	var a model.Activity
	var status string
	var submittedAt, reviewedAt sql.NullTime
	var reviewedBy sql.NullInt64

	err := scanner.Scan(
		&a.ID, &a.UserID, &a.UserName, &a.UserPhoto, &a.Category, &a.Title,
		&a.Description, &a.PhotoURL, &a.Points, &status, &submittedAt,
		&reviewedAt, &reviewedBy, &a.RejectionReason,
	)
	if err != nil {
		return nil, err
	}

	a.Status = model.ActivityStatus(status)
	// A missing server timestamp reads back as now.
	if submittedAt.Valid {
		a.SubmittedAt = submittedAt.Time
	} else {
		a.SubmittedAt = time.Now().UTC()
	}
	if reviewedAt.Valid {
		a.ReviewedAt = &reviewedAt.Time
	}
	if reviewedBy.Valid {
		a.ReviewedBy = &reviewedBy.Int64
	}
	return &a, nil
}

const activityCols = `id, user_id, user_name, user_photo, category, title, description, photo_url, points, status, submitted_at, reviewed_at, reviewed_by, rejection_reason`

// Create stores a new pending activity stamped with the store's clock.
func (s *ActivityStore) Create(ctx context.Context, a model.Activity) (*model.Activity, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO activities (user_id, user_name, user_photo, category, title, description, photo_url, points, status, submitted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'pending', ?)`,
		a.UserID, a.UserName, a.UserPhoto, a.Category, a.Title, a.Description, a.PhotoURL, a.Points, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert activity: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *ActivityStore) GetByID(ctx context.Context, id int64) (*model.Activity, error) {
	return getActivity(ctx, s.db, id)
}

func getActivity(ctx context.Context, q queryer, id int64) (*model.Activity, error) {
	row := q.QueryRowContext(ctx, `SELECT `+activityCols+` FROM activities WHERE id = ?`, id)
	a, err := scanActivity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get activity: %w", err)
	}
	return a, nil
}

// ActivityQuery describes a filtered, sorted and limited activity query.
// Zero values mean "no constraint". A non-nil empty UserIDs matches nothing.
type ActivityQuery struct {
	Status  model.ActivityStatus
	UserID  int64
	UserIDs []int64
	OrderBy string
	Limit   int
}

const (
	OrderSubmitted = "submitted_at"
	OrderReviewed  = "reviewed_at"
)

func (s *ActivityStore) List(ctx context.Context, q ActivityQuery) ([]model.Activity, error) {
	if q.UserIDs != nil && len(q.UserIDs) == 0 {
		return []model.Activity{}, nil
	}

	var where []string
	var args []any
	if q.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(q.Status))
	}
	if q.UserID != 0 {
		where = append(where, "user_id = ?")
		args = append(args, q.UserID)
	}
	if len(q.UserIDs) > 0 {
		where = append(where, "user_id IN (?"+strings.Repeat(", ?", len(q.UserIDs)-1)+")")
		for _, id := range q.UserIDs {
			args = append(args, id)
		}
	}

	order := OrderSubmitted
	if q.OrderBy == OrderReviewed {
		order = OrderReviewed
	}

	query := `SELECT ` + activityCols + ` FROM activities`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY ` + order + ` DESC, id DESC`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	activities := []model.Activity{}
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		activities = append(activities, *a)
	}
	return activities, rows.Err()
}

type ApproveParams struct {
	ActivityID int64
	ReviewerID int64
	Points     int
}

// Approve transitions a pending activity to approved, credits the submitter
// and records the badges chosen by qualify, all in one transaction. The
// status guard in the UPDATE makes a second approval fail with ErrNotPending.
func (s *ActivityStore) Approve(ctx context.Context, p ApproveParams, qualify QualifyFunc) (*model.Approval, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx,
		`UPDATE activities SET status = 'approved', points = ?, reviewed_at = ?, reviewed_by = ?
		 WHERE id = ? AND status = 'pending'`,
		p.Points, now, p.ReviewerID, p.ActivityID,
	)
	if err != nil {
		return nil, fmt.Errorf("approve activity: %w", err)
	}
	if err := transitioned(ctx, tx, result, p.ActivityID); err != nil {
		return nil, err
	}

	var userID int64
	if err := tx.QueryRowContext(ctx, `SELECT user_id FROM activities WHERE id = ?`, p.ActivityID).Scan(&userID); err != nil {
		return nil, fmt.Errorf("get submitter: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE users SET points = points + ? WHERE id = ?`, p.Points, userID); err != nil {
		return nil, fmt.Errorf("add points: %w", err)
	}
	var total int
	if err := tx.QueryRowContext(ctx, `SELECT points FROM users WHERE id = ?`, userID).Scan(&total); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("submitter %d: %w", userID, ErrNotFound)
		}
		return nil, fmt.Errorf("read points: %w", err)
	}

	held, err := listBadges(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	heldSet := make(map[string]bool, len(held))
	for _, b := range held {
		heldSet[b.BadgeID] = true
	}

	newBadges := []model.EarnedBadge{}
	if qualify != nil {
		for _, b := range qualify(total, heldSet) {
			res, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO user_badges (user_id, badge_id, earned_at) VALUES (?, ?, ?)`,
				userID, b.ID, now,
			)
			if err != nil {
				return nil, fmt.Errorf("award badge %s: %w", b.ID, err)
			}
			if n, _ := res.RowsAffected(); n == 1 {
				newBadges = append(newBadges, model.EarnedBadge{BadgeID: b.ID, EarnedAt: now})
			}
		}
	}

	a, err := getActivity(ctx, tx, p.ActivityID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit approval: %w", err)
	}

	return &model.Approval{Activity: *a, TotalPoints: total, NewBadges: newBadges}, nil
}

// Reject transitions a pending activity to rejected. It never touches points.
func (s *ActivityStore) Reject(ctx context.Context, activityID, reviewerID int64, reason string) (*model.Activity, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE activities SET status = 'rejected', reviewed_at = ?, reviewed_by = ?, rejection_reason = ?
		 WHERE id = ? AND status = 'pending'`,
		time.Now().UTC(), reviewerID, reason, activityID,
	)
	if err != nil {
		return nil, fmt.Errorf("reject activity: %w", err)
	}
	if err := transitioned(ctx, tx, result, activityID); err != nil {
		return nil, err
	}

	a, err := getActivity(ctx, tx, activityID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit rejection: %w", err)
	}
	return a, nil
}

// transitioned tells a missing activity apart from one that already left
// the pending state when a guarded UPDATE touched no rows.
func transitioned(ctx context.Context, q queryer, result sql.Result, id int64) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}

	var exists int
	err = q.QueryRowContext(ctx, `SELECT 1 FROM activities WHERE id = ?`, id).Scan(&exists)
	if err == sql.ErrNoRows {
		return fmt.Errorf("activity %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("check activity: %w", err)
	}
	return fmt.Errorf("activity %d: %w", id, ErrNotPending)
}
