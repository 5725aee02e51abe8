package sqlite

import (
	"context"
	"time"

	"github.com/taskdeck/taskdeck/internal/taskdeck/domain"
)

type credentialsRepo struct {
	q querier
}

func (r *credentialsRepo) CreateCredential(ctx context.Context, c domain.Credential) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO credential (user_id, email, password_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		c.UserID, domain.NormalizeEmail(c.Email), c.PasswordHash,
		mapTimeStr(c.CreatedAt), mapTimeStr(c.UpdatedAt))
	return mapConflict(err)
}

func (r *credentialsRepo) GetCredentialByEmail(ctx context.Context, email string) (domain.Credential, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT user_id, email, password_hash, created_at, updated_at
		 FROM credential WHERE email = ?`, domain.NormalizeEmail(email))

	var (
		c                    domain.Credential
		createdAt, updatedAt string
	)
	if err := row.Scan(&c.UserID, &c.Email, &c.PasswordHash, &createdAt, &updatedAt); err != nil {
		return domain.Credential{}, mapNotFound(err)
	}
	c.CreatedAt = mapTime(createdAt)
	c.UpdatedAt = mapTime(updatedAt)
	return c, nil
}

func (r *credentialsRepo) UpdatePasswordHash(ctx context.Context, userID string, newHash string) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE credential SET password_hash = ?, updated_at = ? WHERE user_id = ?`,
		newHash, mapTimeStr(time.Now()), userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}
