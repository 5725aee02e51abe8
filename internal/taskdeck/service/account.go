package service

import (
	"context"
	"errors"

	"github.com/taskdeck/taskdeck/internal/taskdeck/domain"
	"github.com/taskdeck/taskdeck/internal/taskdeck/records"
	"github.com/taskdeck/taskdeck/internal/taskdeck/store"
)

var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrMembershipNotFound = errors.New("membership not found")
)

// AccountService manages account profiles and member roles.
type AccountService struct {
	Store   store.Store
	Records *records.Store
}

// AccountUpdate is a partial profile edit; nil fields stay as they are.
type AccountUpdate struct {
	Name          *string
	LogoImagePath *string
	HeroImagePath *string
}

// GetAccount returns one account.
func (s *AccountService) GetAccount(ctx context.Context, accountID string) (domain.Account, error) {
	acc, err := s.Store.Accounts().GetAccountByID(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Account{}, ErrAccountNotFound
	}
	return acc, err
}

// UpdateAccount applies a partial profile edit. Managers and admins only.
func (s *AccountService) UpdateAccount(ctx context.Context, accountID string, callerRole domain.Role, upd AccountUpdate) (domain.Account, error) {
	if callerRole.Rank() < domain.RoleManager.Rank() {
		return domain.Account{}, ErrForbidden
	}

	partial := records.Record{}
	if upd.Name != nil {
		partial["name"] = *upd.Name
	}
	if upd.LogoImagePath != nil {
		partial["logo_image_path"] = *upd.LogoImagePath
	}
	if upd.HeroImagePath != nil {
		partial["hero_image_path"] = *upd.HeroImagePath
	}
	if len(partial) == 0 {
		return s.GetAccount(ctx, accountID)
	}

	stored, err := s.Records.Update(ctx, "account", accountID, partial)
	if err != nil {
		if errors.Is(err, records.ErrWriteFailed) {
			return domain.Account{}, ErrAccountNotFound
		}
		return domain.Account{}, err
	}

	return domain.Account{
		ID:            stored.ID(),
		CreatedAt:     stored.Time("created_at"),
		Name:          stored.String("name"),
		LogoImagePath: stored.String("logo_image_path"),
		HeroImagePath: stored.String("hero_image_path"),
	}, nil
}

// ListMembers returns every membership in the account joined with its
// user.
func (s *AccountService) ListMembers(ctx context.Context, accountID string) ([]domain.Member, error) {
	return s.Store.Memberships().ListMembersForAccount(ctx, accountID)
}

// ChangeMemberRole sets a member's role directly. Admins only; invite
// acceptance is the only other path that changes roles.
func (s *AccountService) ChangeMemberRole(ctx context.Context, accountID, targetUserID string, callerRole, newRole domain.Role) (domain.AccountMembership, error) {
	if callerRole.Rank() < domain.RoleAdmin.Rank() {
		return domain.AccountMembership{}, ErrForbidden
	}

	m, err := s.Store.Memberships().GetMembership(ctx, targetUserID, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.AccountMembership{}, ErrMembershipNotFound
		}
		return domain.AccountMembership{}, err
	}

	newRole = domain.SanitizeRole(string(newRole))
	if newRole == m.Role {
		return m, nil
	}

	if _, err := s.Records.Update(ctx, "account_membership", m.ID, records.Record{
		"role": string(newRole),
	}); err != nil {
		return domain.AccountMembership{}, err
	}

	m.Role = newRole
	return m, nil
}
