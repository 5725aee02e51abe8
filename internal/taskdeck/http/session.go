package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/taskdeck/taskdeck/internal/taskdeck/domain"
	"github.com/taskdeck/taskdeck/internal/taskdeck/identity"
	"github.com/taskdeck/taskdeck/internal/taskdeck/session"
	"github.com/taskdeck/taskdeck/internal/taskdeck/store"
	"github.com/taskdeck/taskdeck/pkg/httpx"
	"github.com/taskdeck/taskdeck/pkg/slogx"
)

type SessionHandler struct {
	Router *Router
}

type switchAccountRequest struct {
	AccountID string `json:"account_id" validate:"required"`
}

type userResponse struct {
	ID               string    `json:"id"`
	CreatedAt        time.Time `json:"created_at"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	ProfileImagePath string    `json:"profile_image_path,omitempty"`
	HeroImagePath    string    `json:"hero_image_path,omitempty"`
}

type accountResponse struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	Name          string    `json:"name"`
	LogoImagePath string    `json:"logo_image_path,omitempty"`
	HeroImagePath string    `json:"hero_image_path,omitempty"`
}

type membershipResponse struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	UserID         string    `json:"user_id"`
	AccountID      string    `json:"account_id"`
	Role           string    `json:"role"`
}

type sessionInfoResponse struct {
	User       userResponse        `json:"user"`
	Membership *membershipResponse `json:"membership,omitempty"`
	Account    *accountResponse    `json:"account,omitempty"`
	Role       string              `json:"role,omitempty"`
}

// HandleGet godoc
//
//	@Summary		Resolve the caller's session
//	@Description	Returns the caller's user, current account and role,
//	@Description	creating the user row and first account on first call.
//	@Tags			Session
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	sessionInfoResponse
//	@Router			/v1/session [get].
func (h *SessionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	sess := sessionFromClaims(r)
	info, touchID, err := h.Router.resolver.Lookup(ctx, sess)
	if err != nil {
		log.Error("session resolution failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Session resolution failed")
		return
	}

	// Access bump happens off the request path and survives it.
	touchCtx := context.WithoutCancel(ctx)
	go func() {
		if err := h.Router.store.Memberships().TouchMembership(touchCtx, touchID); err != nil {
			log.Warn("membership touch failed", "membership_id", touchID, "err", err)
		}
	}()

	httpx.WriteJSON(w, http.StatusOK, toSessionInfoResponse(info))
}

// HandleSwitchAccount godoc
//
//	@Summary		Switch the caller's current account
//	@Description	Marks the target membership most recently used. Switching to
//	@Description	an account the caller is not a member of changes nothing.
//	@Tags			Session
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		switchAccountRequest	true	"Target account"
//	@Success		200		{object}	sessionInfoResponse
//	@Router			/v1/session/switch-account [post].
func (h *SessionHandler) HandleSwitchAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req switchAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	userID := httpx.UserIDFromCtx(ctx)

	m, err := h.Router.store.Memberships().GetMembership(ctx, userID, req.AccountID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Error("membership lookup failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Membership lookup failed")
		return
	}
	if err == nil {
		if err := h.Router.store.Memberships().TouchMembership(ctx, m.ID); err != nil {
			log.Error("membership touch failed", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Switch failed")
			return
		}
	}
	// Not a member: fall through and return the unchanged session.

	info, _, err := h.Router.resolver.Lookup(ctx, sessionFromClaims(r))
	if err != nil {
		log.Error("session resolution failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Session resolution failed")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, toSessionInfoResponse(info))
}

// sessionFromClaims rebuilds the identity session the authn middleware
// verified.
func sessionFromClaims(r *http.Request) identity.Session {
	ctx := r.Context()
	sess := identity.Session{
		UserID: httpx.UserIDFromCtx(ctx),
		Email:  httpx.EmailFromCtx(ctx),
	}
	if claims, ok := httpx.ClaimsFromCtx(ctx); ok {
		sess.Name = claims.Name
		sess.AccountName = claims.AccountName
	}
	return sess
}

func toSessionInfoResponse(info session.Info) sessionInfoResponse {
	resp := sessionInfoResponse{Role: string(info.Role())}
	if info.User != nil {
		resp.User = toUserResponse(*info.User)
	}
	if info.Membership != nil {
		m := toMembershipResponse(*info.Membership)
		resp.Membership = &m
	}
	if info.Account != nil {
		a := toAccountResponse(*info.Account)
		resp.Account = &a
	}
	return resp
}

func toUserResponse(u domain.User) userResponse {
	return userResponse{
		ID:               u.ID,
		CreatedAt:        u.CreatedAt,
		Name:             u.Name,
		Email:            u.Email,
		ProfileImagePath: u.ProfileImagePath,
		HeroImagePath:    u.HeroImagePath,
	}
}

func toAccountResponse(a domain.Account) accountResponse {
	return accountResponse{
		ID:            a.ID,
		CreatedAt:     a.CreatedAt,
		Name:          a.Name,
		LogoImagePath: a.LogoImagePath,
		HeroImagePath: a.HeroImagePath,
	}
}

func toMembershipResponse(m domain.AccountMembership) membershipResponse {
	return membershipResponse{
		ID:             m.ID,
		CreatedAt:      m.CreatedAt,
		LastAccessedAt: m.LastAccessedAt,
		UserID:         m.UserID,
		AccountID:      m.AccountID,
		Role:           string(m.Role),
	}
}
