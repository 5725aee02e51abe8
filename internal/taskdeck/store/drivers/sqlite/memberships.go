package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/taskdeck/taskdeck/internal/taskdeck/domain"
)

type membershipsRepo struct {
	q querier
}

const membershipColumns = `id, created_at, last_accessed_at, user_id, account_id, role`

func scanMembership(scan func(dest ...any) error) (domain.AccountMembership, error) {
	var (
		m                   domain.AccountMembership
		createdAt, accessed string
		role                string
	)
	if err := scan(&m.ID, &createdAt, &accessed, &m.UserID, &m.AccountID, &role); err != nil {
		return domain.AccountMembership{}, mapNotFound(err)
	}
	m.CreatedAt = mapTime(createdAt)
	m.LastAccessedAt = mapTime(accessed)
	m.Role = domain.Role(role)
	return m, nil
}

func (r *membershipsRepo) GetMembership(ctx context.Context, userID, accountID string) (domain.AccountMembership, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+membershipColumns+` FROM account_membership
		 WHERE user_id = ? AND account_id = ?`, userID, accountID)
	return scanMembership(row.Scan)
}

func (r *membershipsRepo) GetMostRecentMembershipForUser(ctx context.Context, userID string) (domain.AccountMembership, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+membershipColumns+` FROM account_membership
		 WHERE user_id = ?
		 ORDER BY last_accessed_at DESC
		 LIMIT 1`, userID)
	return scanMembership(row.Scan)
}

func (r *membershipsRepo) ListMembershipsForUser(ctx context.Context, userID string) ([]domain.AccountMembership, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+membershipColumns+` FROM account_membership
		 WHERE user_id = ?
		 ORDER BY last_accessed_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AccountMembership
	for rows.Next() {
		m, err := scanMembership(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *membershipsRepo) ListMembersForAccount(ctx context.Context, accountID string) ([]domain.Member, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT m.id, m.created_at, m.last_accessed_at, m.user_id, m.account_id, m.role,
		        u.id, u.created_at, u.name, u.email, u.profile_image_path, u.hero_image_path
		 FROM account_membership m
		 JOIN user u ON u.id = m.user_id
		 WHERE m.account_id = ?
		 ORDER BY m.created_at ASC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Member
	for rows.Next() {
		var (
			m                   domain.AccountMembership
			u                   domain.User
			mCreated, mAccessed string
			role, uCreated      string
			profileImg, heroImg sql.NullString
		)
		err := rows.Scan(
			&m.ID, &mCreated, &mAccessed, &m.UserID, &m.AccountID, &role,
			&u.ID, &uCreated, &u.Name, &u.Email, &profileImg, &heroImg,
		)
		if err != nil {
			return nil, err
		}
		m.CreatedAt = mapTime(mCreated)
		m.LastAccessedAt = mapTime(mAccessed)
		m.Role = domain.Role(role)
		u.CreatedAt = mapTime(uCreated)
		u.ProfileImagePath = mapNullString(profileImg)
		u.HeroImagePath = mapNullString(heroImg)
		out = append(out, domain.Member{Membership: m, User: u})
	}
	return out, rows.Err()
}

func (r *membershipsRepo) CreateMembership(ctx context.Context, m domain.AccountMembership) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO account_membership (id, created_at, last_accessed_at, user_id, account_id, role)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, mapTimeStr(m.CreatedAt), mapTimeStr(m.LastAccessedAt),
		m.UserID, m.AccountID, string(m.Role))
	return mapConflict(err)
}

func (r *membershipsRepo) UpdateMembershipRole(ctx context.Context, membershipID string, role domain.Role) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE account_membership SET role = ? WHERE id = ?`,
		string(role), membershipID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *membershipsRepo) TouchMembership(ctx context.Context, membershipID string) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE account_membership SET last_accessed_at = ? WHERE id = ?`,
		mapTimeStr(time.Now()), membershipID)
	if err != nil {
		return err
	}
	return requireRow(res)
}
