package sqlite

import (
	"context"
	"database/sql"

	"github.com/taskdeck/taskdeck/internal/taskdeck/domain"
)

type usersRepo struct {
	q querier
}

const userColumns = `id, created_at, name, email, profile_image_path, hero_image_path`

func scanUser(row *sql.Row) (domain.User, error) {
	var (
		u                   domain.User
		createdAt           string
		profileImg, heroImg sql.NullString
	)
	err := row.Scan(&u.ID, &createdAt, &u.Name, &u.Email, &profileImg, &heroImg)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	u.CreatedAt = mapTime(createdAt)
	u.ProfileImagePath = mapNullString(profileImg)
	u.HeroImagePath = mapNullString(heroImg)
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM user WHERE id = ?`, id)
	return scanUser(row)
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM user WHERE email = ?`, domain.NormalizeEmail(email))
	return scanUser(row)
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO user (id, created_at, name, email, profile_image_path, hero_image_path)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, mapTimeStr(u.CreatedAt), u.Name, domain.NormalizeEmail(u.Email),
		mapStringNull(u.ProfileImagePath), mapStringNull(u.HeroImagePath))
	return mapConflict(err)
}

func (r *usersRepo) UpdateUserProfile(ctx context.Context, u domain.User) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE user SET name = ?, profile_image_path = ?, hero_image_path = ? WHERE id = ?`,
		u.Name, mapStringNull(u.ProfileImagePath), mapStringNull(u.HeroImagePath), u.ID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// requireRow maps a zero-row mutation to ErrNotFound.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return mapNotFound(sql.ErrNoRows)
	}
	return nil
}
