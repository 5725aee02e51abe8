package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/taskdeck/taskdeck/internal/taskdeck/domain"
	"github.com/taskdeck/taskdeck/internal/taskdeck/records"
	"github.com/taskdeck/taskdeck/internal/taskdeck/store"
	"github.com/taskdeck/taskdeck/pkg/idx"
	"github.com/taskdeck/taskdeck/pkg/slogx"
)

var (
	ErrInviteNotFound      = errors.New("invite not found")
	ErrInviteExpired       = errors.New("invite has expired")
	ErrInviteRevoked       = errors.New("invite has been revoked")
	ErrInviteConflict      = errors.New("invite already accepted by another user")
	ErrInviteEmailMismatch = errors.New("invite is restricted to a different email")
	ErrForbidden           = errors.New("caller role does not allow this")
)

// InviteService mints, accepts and revokes account invites. Single-row
// writes go through the record cache so change events fire; the accept
// path runs in one store transaction and announces its rows afterwards.
type InviteService struct {
	Store   store.Store
	Records *records.Store
}

// MintInvite creates a shareable invite into an account. Only managers
// and admins may mint. A zero ttl means the invite never expires.
func (s *InviteService) MintInvite(
	ctx context.Context,
	accountID string,
	invitedBy string,
	callerRole domain.Role,
	role domain.Role,
	email string,
	ttl time.Duration,
) (domain.AccountInvite, error) {
	log := slogx.FromContext(ctx)

	// 1. Permission gate.
	if callerRole.Rank() < domain.RoleManager.Rank() {
		return domain.AccountInvite{}, ErrForbidden
	}

	// 2. Unknown roles degrade to default rather than failing the mint.
	role = domain.SanitizeRole(string(role))

	now := time.Now()
	inv := domain.AccountInvite{
		ID:              idx.New().String(),
		CreatedAt:       now,
		Code:            uuid.NewString(),
		AccountID:       accountID,
		InvitedByUserID: invitedBy,
		Email:           domain.NormalizeEmail(email),
		Role:            role,
	}
	if ttl > 0 {
		inv.ExpiresAt = now.Add(ttl)
	}

	// 3. Insert through the record cache so subscribers hear about it.
	rec := records.Record{
		"id":                 inv.ID,
		"created_at":         domain.FormatTime(inv.CreatedAt),
		"code":               inv.Code,
		"account_id":         inv.AccountID,
		"invited_by_user_id": inv.InvitedByUserID,
		"role":               string(inv.Role),
	}
	if inv.Email != "" {
		rec["email"] = inv.Email
	}
	if !inv.ExpiresAt.IsZero() {
		rec["expires_at"] = domain.FormatTime(inv.ExpiresAt)
	}
	if _, err := s.Records.Insert(ctx, "account_invite", rec); err != nil {
		log.Error("failed to create invite", slog.Any("error", err))
		return domain.AccountInvite{}, err
	}

	log.Debug("invite minted",
		slog.String("invite_id", inv.ID),
		slog.String("account_id", accountID),
		slog.String("role", string(role)),
	)
	return inv, nil
}

// GetInviteByCode returns the invite for a public code, with the
// account joined in so the accept page can show its name.
func (s *InviteService) GetInviteByCode(ctx context.Context, code string) (domain.AccountInvite, domain.Account, error) {
	inv, err := s.Store.Invites().GetInviteByCode(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.AccountInvite{}, domain.Account{}, ErrInviteNotFound
		}
		return domain.AccountInvite{}, domain.Account{}, err
	}

	acc, err := s.Store.Accounts().GetAccountByID(ctx, inv.AccountID)
	if err != nil {
		return domain.AccountInvite{}, domain.Account{}, err
	}
	return inv, acc, nil
}

// AcceptInvite redeems a code for the given user. Accepting grants a
// membership with the invite role, or upgrades an existing membership to
// the higher of its role and the invite role. A user re-accepting their
// own invite is a no-op. All checks run before any row changes, and the
// mutations share one transaction.
func (s *InviteService) AcceptInvite(ctx context.Context, code string, user domain.User) (domain.AccountMembership, error) {
	log := slogx.FromContext(ctx)

	var (
		membership domain.AccountMembership
		inviteID   string
		// prior rows, for the post-commit announcements
		prevInvite     records.Record
		prevMembership records.Record
		changedRows    []announcement
	)

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		// 1. Look the invite up inside the tx so the conflict check and
		// the accept cannot interleave with another accept.
		inv, err := tx.Invites().GetInviteByCode(ctx, code)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInviteNotFound
			}
			return err
		}
		inviteID = inv.ID

		// 2. Reject dead invites before touching anything.
		if inv.Revoked() {
			return ErrInviteRevoked
		}
		if inv.Expired(time.Now()) {
			return ErrInviteExpired
		}
		if inv.Accepted() && inv.AcceptedByUserID != user.ID {
			return ErrInviteConflict
		}
		if inv.RestrictedTo(user.Email) {
			return ErrInviteEmailMismatch
		}

		// 3. Same user accepting again changes nothing.
		if inv.AcceptedByUserID == user.ID {
			membership, err = tx.Memberships().GetMembership(ctx, user.ID, inv.AccountID)
			return err
		}

		prevInvite = inviteRecord(inv)

		// 4. Grant or upgrade the membership.
		membership, err = tx.Memberships().GetMembership(ctx, user.ID, inv.AccountID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			now := time.Now()
			membership = domain.AccountMembership{
				ID:             idx.New().String(),
				CreatedAt:      now,
				LastAccessedAt: now,
				UserID:         user.ID,
				AccountID:      inv.AccountID,
				Role:           inv.Role,
			}
			if err := tx.Memberships().CreateMembership(ctx, membership); err != nil {
				return err
			}
			changedRows = append(changedRows, announcement{"account_membership", membership.ID, nil})
		case err != nil:
			return err
		default:
			upgraded := domain.MaxRole(membership.Role, inv.Role)
			if upgraded != membership.Role {
				prevMembership = membershipRecord(membership)
				if err := tx.Memberships().UpdateMembershipRole(ctx, membership.ID, upgraded); err != nil {
					return err
				}
				membership.Role = upgraded
				changedRows = append(changedRows, announcement{"account_membership", membership.ID, prevMembership})
			}
		}

		// 5. Burn the invite.
		if err := tx.Invites().MarkInviteAccepted(ctx, inv.ID, user.ID); err != nil {
			return err
		}
		changedRows = append(changedRows, announcement{"account_invite", inv.ID, prevInvite})
		return nil
	})
	if err != nil {
		return domain.AccountMembership{}, err
	}

	for _, a := range changedRows {
		if err := s.Records.Announce(ctx, a.table, a.id, a.prev); err != nil {
			log.Warn("change announcement failed",
				slog.String("table", a.table),
				slog.String("id", a.id),
				slog.Any("error", err),
			)
		}
	}

	log.Info("invite accepted",
		slog.String("invite_id", inviteID),
		slog.String("user_id", user.ID),
		slog.String("account_id", membership.AccountID),
		slog.String("role", string(membership.Role)),
	)
	return membership, nil
}

// RevokeInvite marks an invite revoked. Managers and admins only.
func (s *InviteService) RevokeInvite(ctx context.Context, inviteID string, callerRole domain.Role) error {
	if callerRole.Rank() < domain.RoleManager.Rank() {
		return ErrForbidden
	}

	_, err := s.Records.Update(ctx, "account_invite", inviteID, records.Record{
		"revoked_at": domain.FormatTime(time.Now()),
	})
	if errors.Is(err, records.ErrWriteFailed) {
		return ErrInviteNotFound
	}
	return err
}

// ListAccountInvites returns every invite for an account, newest first.
func (s *InviteService) ListAccountInvites(ctx context.Context, accountID string) ([]domain.AccountInvite, error) {
	return s.Store.Invites().ListInvitesForAccount(ctx, accountID)
}

type announcement struct {
	table string
	id    string
	prev  records.Record
}

func inviteRecord(inv domain.AccountInvite) records.Record {
	rec := records.Record{
		"id":                  inv.ID,
		"created_at":          domain.FormatTime(inv.CreatedAt),
		"code":                inv.Code,
		"account_id":          inv.AccountID,
		"invited_by_user_id":  inv.InvitedByUserID,
		"role":                string(inv.Role),
		"email":               nil,
		"expires_at":          nil,
		"accepted_at":         nil,
		"accepted_by_user_id": nil,
		"revoked_at":          nil,
	}
	if inv.Email != "" {
		rec["email"] = inv.Email
	}
	if !inv.ExpiresAt.IsZero() {
		rec["expires_at"] = domain.FormatTime(inv.ExpiresAt)
	}
	return rec
}

func membershipRecord(m domain.AccountMembership) records.Record {
	return records.Record{
		"id":               m.ID,
		"created_at":       domain.FormatTime(m.CreatedAt),
		"last_accessed_at": domain.FormatTime(m.LastAccessedAt),
		"user_id":          m.UserID,
		"account_id":       m.AccountID,
		"role":             string(m.Role),
	}
}
