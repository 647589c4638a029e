package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/ecoquest/internal/model"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrNotPending = errors.New("activity is no longer pending")
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type ProfileStore struct {
	db *sql.DB
}

func NewProfileStore(db *sql.DB) *ProfileStore {
	return &ProfileStore{db: db}
}

func scanProfile(scanner interface{ Scan(...any) error }) (*model.UserProfile, error) {
	var p model.UserProfile
	var role string
	err := scanner.Scan(
		&p.ID, &p.Email, &p.DisplayName, &p.School, &p.ClassName,
		&role, &p.PhotoURL, &p.Points, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Role = model.Role(role)
	p.Badges = []model.EarnedBadge{}
	return &p, nil
}

const profileCols = `id, email, display_name, school, class_name, role, photo_url, points, created_at, updated_at`

func normalizeRole(r model.Role) model.Role {
	if r.Valid() {
		return r
	}
	return model.RoleStudent
}

func (s *ProfileStore) Create(ctx context.Context, email string, in model.ProfileInput) (*model.UserProfile, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO users (email, display_name, school, class_name, role, photo_url, points, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		email, in.DisplayName, in.School, in.ClassName, string(normalizeRole(in.Role)), in.PhotoURL, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// Ensure returns the profile for email, creating it with zero points and no
// badges if it does not exist yet. Calling it twice never creates two rows.
func (s *ProfileStore) Ensure(ctx context.Context, email string, in model.ProfileInput) (*model.UserProfile, bool, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO users (email, display_name, school, class_name, role, photo_url, points, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		email, in.DisplayName, in.School, in.ClassName, string(normalizeRole(in.Role)), in.PhotoURL, now, now,
	)
	if err != nil {
		return nil, false, fmt.Errorf("ensure user: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}

	p, err := s.GetByEmail(ctx, email)
	if err != nil {
		return nil, false, err
	}
	if p == nil {
		return nil, false, fmt.Errorf("ensure user %q: %w", email, ErrNotFound)
	}
	return p, n == 1, nil
}

func (s *ProfileStore) GetByID(ctx context.Context, id int64) (*model.UserProfile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileCols+` FROM users WHERE id = ?`, id)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if p.Badges, err = listBadges(ctx, s.db, id); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *ProfileStore) GetByEmail(ctx context.Context, email string) (*model.UserProfile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileCols+` FROM users WHERE email = ?`, email)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	if p.Badges, err = listBadges(ctx, s.db, p.ID); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *ProfileStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

// Badges returns the earned badges of a user, oldest first.
func (s *ProfileStore) Badges(ctx context.Context, userID int64) ([]model.EarnedBadge, error) {
	return listBadges(ctx, s.db, userID)
}

func listBadges(ctx context.Context, q queryer, userID int64) ([]model.EarnedBadge, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT badge_id, earned_at FROM user_badges WHERE user_id = ? ORDER BY earned_at ASC, badge_id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list badges: %w", err)
	}
	defer rows.Close()

	badges := []model.EarnedBadge{}
	for rows.Next() {
		var b model.EarnedBadge
		if err := rows.Scan(&b.BadgeID, &b.EarnedAt); err != nil {
			return nil, fmt.Errorf("scan badge: %w", err)
		}
		badges = append(badges, b)
	}
	return badges, rows.Err()
}

// ListIDsBySchoolClass returns the ids of the users in a school class. An
// empty school or class means no filter on that column, as in Ranking.
func (s *ProfileStore) ListIDsBySchoolClass(ctx context.Context, school, className string) ([]int64, error) {
	where, args := []string{"1 = 1"}, []any{}
	if school != "" {
		where = append(where, "school = ?")
		args = append(args, school)
	}
	if className != "" {
		where = append(where, "class_name = ?")
		args = append(args, className)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM users WHERE `+strings.Join(where, " AND ")+` ORDER BY id ASC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list users by class: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Ranking returns students ordered by points, highest first. Empty school or
// class means no filter on that column. Ties share a rank.
func (s *ProfileStore) Ranking(ctx context.Context, school, className string, limit int) ([]model.Ranking, error) {
	var where []string
	args := []any{string(model.RoleStudent)}
	where = append(where, "role = ?")
	if school != "" {
		where = append(where, "school = ?")
		args = append(args, school)
	}
	if className != "" {
		where = append(where, "class_name = ?")
		args = append(args, className)
	}

	query := `SELECT id, display_name, photo_url, school, class_name, points FROM users WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY points DESC, display_name ASC, id ASC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ranking: %w", err)
	}
	defer rows.Close()

	var out []model.Ranking
	for rows.Next() {
		var r model.Ranking
		if err := rows.Scan(&r.UserID, &r.DisplayName, &r.PhotoURL, &r.School, &r.ClassName, &r.Points); err != nil {
			return nil, fmt.Errorf("scan ranking: %w", err)
		}
		switch {
		case len(out) == 0:
			r.Rank = 1
		case out[len(out)-1].Points == r.Points:
			r.Rank = out[len(out)-1].Rank
		default:
			r.Rank = len(out) + 1
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
