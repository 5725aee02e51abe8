package sqlite

import (
	"context"
	"database/sql"

	"github.com/taskdeck/taskdeck/internal/taskdeck/domain"
)

type accountsRepo struct {
	q querier
}

func (r *accountsRepo) GetAccountByID(ctx context.Context, id string) (domain.Account, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT id, created_at, name, logo_image_path, hero_image_path
		 FROM account WHERE id = ?`, id)

	var (
		a                domain.Account
		createdAt        string
		logoImg, heroImg sql.NullString
	)
	if err := row.Scan(&a.ID, &createdAt, &a.Name, &logoImg, &heroImg); err != nil {
		return domain.Account{}, mapNotFound(err)
	}
	a.CreatedAt = mapTime(createdAt)
	a.LogoImagePath = mapNullString(logoImg)
	a.HeroImagePath = mapNullString(heroImg)
	return a, nil
}

func (r *accountsRepo) CreateAccount(ctx context.Context, a domain.Account) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO account (id, created_at, name, logo_image_path, hero_image_path)
		 VALUES (?, ?, ?, ?, ?)`,
		a.ID, mapTimeStr(a.CreatedAt), a.Name,
		mapStringNull(a.LogoImagePath), mapStringNull(a.HeroImagePath))
	return mapConflict(err)
}

func (r *accountsRepo) UpdateAccountProfile(ctx context.Context, a domain.Account) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE account SET name = ?, logo_image_path = ?, hero_image_path = ? WHERE id = ?`,
		a.Name, mapStringNull(a.LogoImagePath), mapStringNull(a.HeroImagePath), a.ID)
	if err != nil {
		return err
	}
	return requireRow(res)
}
