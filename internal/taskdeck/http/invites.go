package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/taskdeck/taskdeck/internal/taskdeck/domain"
	"github.com/taskdeck/taskdeck/internal/taskdeck/metrics"
	"github.com/taskdeck/taskdeck/internal/taskdeck/service"
	"github.com/taskdeck/taskdeck/pkg/httpx"
	"github.com/taskdeck/taskdeck/pkg/slogx"
)

type InviteHandler struct {
	Router        *Router
	InviteService *service.InviteService
}

type mintInviteRequest struct {
	Role       string `json:"role" validate:"omitempty,oneof=guest default manager admin"`
	Email      string `json:"email" validate:"omitempty,email"`
	TTLSeconds int64  `json:"ttl_seconds" validate:"omitempty,min=0"`
}

type inviteResponse struct {
	ID               string     `json:"id"`
	CreatedAt        time.Time  `json:"created_at"`
	Code             string     `json:"code"`
	AccountID        string     `json:"account_id"`
	InvitedByUserID  string     `json:"invited_by_user_id"`
	Email            string     `json:"email,omitempty"`
	Role             string     `json:"role"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	AcceptedAt       *time.Time `json:"accepted_at,omitempty"`
	AcceptedByUserID string     `json:"accepted_by_user_id,omitempty"`
	RevokedAt        *time.Time `json:"revoked_at,omitempty"`
}

type invitePreviewResponse struct {
	Code        string `json:"code"`
	AccountName string `json:"account_name"`
	Role        string `json:"role"`
	Email       string `json:"email,omitempty"`
	Expired     bool   `json:"expired"`
	Revoked     bool   `json:"revoked"`
	Accepted    bool   `json:"accepted"`
}

// HandleMint godoc
//
//	@Summary	Mint a shareable invite
//	@Tags		Invites
//	@Security	BearerAuth
//	@Accept		json
//	@Produce	json
//	@Param		id		path		string				true	"Account id"
//	@Param		body	body		mintInviteRequest	true	"Invite parameters"
//	@Success	201		{object}	inviteResponse
//	@Failure	403		{object}	httpx.ErrorResponse	"Requires manager role"
//	@Router		/v1/accounts/{id}/invites [post].
func (h *InviteHandler) HandleMint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)
	accountID := r.PathValue("id")

	caller, ok := h.Router.callerMembership(w, r, accountID)
	if !ok {
		return
	}

	var req mintInviteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	inv, err := h.InviteService.MintInvite(ctx,
		accountID,
		caller.UserID,
		caller.Role,
		domain.Role(req.Role),
		req.Email,
		time.Duration(req.TTLSeconds)*time.Second,
	)
	if err != nil {
		if errors.Is(err, service.ErrForbidden) {
			httpx.WriteError(w, http.StatusForbidden, "forbidden", "Managers and admins only")
			return
		}
		log.Error("invite mint failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Invite mint failed")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toInviteResponse(inv))
}

// HandleList godoc
//
//	@Summary	List an account's invites
//	@Tags		Invites
//	@Security	BearerAuth
//	@Produce	json
//	@Param		id	path	string	true	"Account id"
//	@Success	200	{array}	inviteResponse
//	@Router		/v1/accounts/{id}/invites [get].
func (h *InviteHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)
	accountID := r.PathValue("id")

	if _, ok := h.Router.callerMembership(w, r, accountID); !ok {
		return
	}

	invites, err := h.InviteService.ListAccountInvites(ctx, accountID)
	if err != nil {
		log.Error("invite listing failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Listing failed")
		return
	}

	out := make([]inviteResponse, 0, len(invites))
	for _, inv := range invites {
		out = append(out, toInviteResponse(inv))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleRevoke godoc
//
//	@Summary	Revoke an invite
//	@Tags		Invites
//	@Security	BearerAuth
//	@Param		id			path	string	true	"Account id"
//	@Param		inviteID	path	string	true	"Invite id"
//	@Success	204
//	@Failure	403	{object}	httpx.ErrorResponse	"Requires manager role"
//	@Router		/v1/accounts/{id}/invites/{inviteID} [delete].
func (h *InviteHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)
	accountID := r.PathValue("id")

	caller, ok := h.Router.callerMembership(w, r, accountID)
	if !ok {
		return
	}

	err := h.InviteService.RevokeInvite(ctx, r.PathValue("inviteID"), caller.Role)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrForbidden):
			httpx.WriteError(w, http.StatusForbidden, "forbidden", "Managers and admins only")
		case errors.Is(err, service.ErrInviteNotFound):
			httpx.WriteError(w, http.StatusNotFound, "not_found", "Invite not found")
		default:
			log.Error("invite revoke failed", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Revoke failed")
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleGetByCode godoc
//
//	@Summary		Preview an invite by code
//	@Description	Public endpoint so an invite landing page can render before
//	@Description	the visitor signs in. The code itself is the capability.
//	@Tags			Invites
//	@Produce		json
//	@Param			code	path		string	true	"Invite code"
//	@Success		200		{object}	invitePreviewResponse
//	@Failure		404		{object}	httpx.ErrorResponse
//	@Router			/v1/invites/{code} [get].
func (h *InviteHandler) HandleGetByCode(w http.ResponseWriter, r *http.Request) {
	inv, acc, err := h.InviteService.GetInviteByCode(r.Context(), r.PathValue("code"))
	if err != nil {
		if errors.Is(err, service.ErrInviteNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "not_found", "Invite not found")
			return
		}
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Invite lookup failed")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, invitePreviewResponse{
		Code:        inv.Code,
		AccountName: acc.Name,
		Role:        string(inv.Role),
		Email:       inv.Email,
		Expired:     inv.Expired(time.Now()),
		Revoked:     inv.Revoked(),
		Accepted:    inv.Accepted(),
	})
}

// HandleAccept godoc
//
//	@Summary		Accept an invite
//	@Description	Grants the caller a membership with the invite role, or
//	@Description	upgrades an existing membership to the higher role.
//	@Tags			Invites
//	@Security		BearerAuth
//	@Produce		json
//	@Param			code	path		string	true	"Invite code"
//	@Success		200		{object}	membershipResponse
//	@Failure		404		{object}	httpx.ErrorResponse	"Unknown code"
//	@Failure		409		{object}	httpx.ErrorResponse	"Already accepted by someone else"
//	@Failure		410		{object}	httpx.ErrorResponse	"Expired or revoked"
//	@Router			/v1/invites/{code}/accept [post].
func (h *InviteHandler) HandleAccept(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	user, ok := h.Router.callerUser(w, r)
	if !ok {
		return
	}

	m, err := h.InviteService.AcceptInvite(ctx, r.PathValue("code"), user)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInviteNotFound):
			httpx.WriteError(w, http.StatusNotFound, "not_found", "Invite not found")
		case errors.Is(err, service.ErrInviteExpired):
			httpx.WriteError(w, http.StatusGone, "invite_expired", "Invite has expired")
		case errors.Is(err, service.ErrInviteRevoked):
			httpx.WriteError(w, http.StatusGone, "invite_revoked", "Invite has been revoked")
		case errors.Is(err, service.ErrInviteConflict):
			httpx.WriteError(w, http.StatusConflict, "invite_conflict", "Invite was already accepted by another user")
		case errors.Is(err, service.ErrInviteEmailMismatch):
			httpx.WriteError(w, http.StatusForbidden, "email_mismatch", "Invite is restricted to a different email")
		default:
			log.Error("invite accept failed", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Accept failed")
		}
		return
	}

	metrics.InvitesAcceptedTotal.Inc()
	httpx.WriteJSON(w, http.StatusOK, toMembershipResponse(m))
}

func toInviteResponse(inv domain.AccountInvite) inviteResponse {
	resp := inviteResponse{
		ID:               inv.ID,
		CreatedAt:        inv.CreatedAt,
		Code:             inv.Code,
		AccountID:        inv.AccountID,
		InvitedByUserID:  inv.InvitedByUserID,
		Email:            inv.Email,
		Role:             string(inv.Role),
		AcceptedByUserID: inv.AcceptedByUserID,
	}
	if !inv.ExpiresAt.IsZero() {
		resp.ExpiresAt = &inv.ExpiresAt
	}
	if !inv.AcceptedAt.IsZero() {
		resp.AcceptedAt = &inv.AcceptedAt
	}
	if !inv.RevokedAt.IsZero() {
		resp.RevokedAt = &inv.RevokedAt
	}
	return resp
}
