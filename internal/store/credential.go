package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/ecoquest/internal/model"
)

const ProviderPassword = "password"

type CredentialStore struct {
	db *sql.DB
}

func NewCredentialStore(db *sql.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

func scanCredential(scanner interface{ Scan(...any) error }) (*model.Credential, error) {
	var c model.Credential
	err := scanner.Scan(&c.UserID, &c.Email, &c.PasswordHash, &c.Provider, &c.Subject, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

const credentialCols = `user_id, email, password_hash, provider, subject, created_at`

// Create links a login method to a user. Password credentials use the email
// as subject so one email holds at most one password.
func (s *CredentialStore) Create(ctx context.Context, c model.Credential) error {
	if c.Provider == "" {
		c.Provider = ProviderPassword
	}
	if c.Provider == ProviderPassword {
		c.Subject = c.Email
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO credentials (user_id, email, password_hash, provider, subject) VALUES (?, ?, ?, ?, ?)`,
		c.UserID, c.Email, c.PasswordHash, c.Provider, c.Subject,
	)
	if err != nil {
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}

func (s *CredentialStore) GetBySubject(ctx context.Context, provider, subject string) (*model.Credential, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+credentialCols+` FROM credentials WHERE provider = ? AND subject = ?`,
		provider, subject,
	)
	c, err := scanCredential(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return c, nil
}

func (s *CredentialStore) GetPassword(ctx context.Context, email string) (*model.Credential, error) {
	return s.GetBySubject(ctx, ProviderPassword, email)
}

// DeleteByUser removes every login method of a user.
func (s *CredentialStore) DeleteByUser(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("delete credentials: %w", err)
	}
	return nil
}
