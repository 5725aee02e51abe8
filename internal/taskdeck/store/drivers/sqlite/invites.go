package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/taskdeck/taskdeck/internal/taskdeck/domain"
)

type invitesRepo struct {
	q querier
}

const inviteColumns = `id, created_at, code, account_id, invited_by_user_id, email, role,
	expires_at, accepted_at, accepted_by_user_id, revoked_at`

func scanInvite(scan func(dest ...any) error) (domain.AccountInvite, error) {
	var (
		inv               domain.AccountInvite
		createdAt, role   string
		email, acceptedBy sql.NullString
		expires, accepted sql.NullString
		revoked           sql.NullString
	)
	err := scan(&inv.ID, &createdAt, &inv.Code, &inv.AccountID, &inv.InvitedByUserID,
		&email, &role, &expires, &accepted, &acceptedBy, &revoked)
	if err != nil {
		return domain.AccountInvite{}, mapNotFound(err)
	}
	inv.CreatedAt = mapTime(createdAt)
	inv.Email = mapNullString(email)
	inv.Role = domain.Role(role)
	inv.ExpiresAt = mapNullTime(expires)
	inv.AcceptedAt = mapNullTime(accepted)
	inv.AcceptedByUserID = mapNullString(acceptedBy)
	inv.RevokedAt = mapNullTime(revoked)
	return inv, nil
}

func (r *invitesRepo) GetInviteByCode(ctx context.Context, code string) (domain.AccountInvite, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+inviteColumns+` FROM account_invite WHERE code = ?`, code)
	return scanInvite(row.Scan)
}

func (r *invitesRepo) ListInvitesForAccount(ctx context.Context, accountID string) ([]domain.AccountInvite, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+inviteColumns+` FROM account_invite
		 WHERE account_id = ?
		 ORDER BY created_at DESC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AccountInvite
	for rows.Next() {
		inv, err := scanInvite(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (r *invitesRepo) CreateInvite(ctx context.Context, inv domain.AccountInvite) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO account_invite (id, created_at, code, account_id, invited_by_user_id,
		     email, role, expires_at, accepted_at, accepted_by_user_id, revoked_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, mapTimeStr(inv.CreatedAt), inv.Code, inv.AccountID, inv.InvitedByUserID,
		mapStringNull(inv.Email), string(inv.Role), mapTimeNull(inv.ExpiresAt),
		mapTimeNull(inv.AcceptedAt), mapStringNull(inv.AcceptedByUserID),
		mapTimeNull(inv.RevokedAt))
	return mapConflict(err)
}

func (r *invitesRepo) MarkInviteAccepted(ctx context.Context, inviteID, userID string) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE account_invite SET accepted_at = ?, accepted_by_user_id = ? WHERE id = ?`,
		mapTimeStr(time.Now()), userID, inviteID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *invitesRepo) RevokeInvite(ctx context.Context, inviteID string) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE account_invite SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`,
		mapTimeStr(time.Now()), inviteID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *invitesRepo) DeleteExpiredInvites(ctx context.Context) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM account_invite WHERE expires_at IS NOT NULL AND expires_at < ?`,
		mapTimeStr(time.Now()))
	return err
}
