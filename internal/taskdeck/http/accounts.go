package http

import (
	"errors"
	"net/http"

	"github.com/taskdeck/taskdeck/internal/taskdeck/domain"
	"github.com/taskdeck/taskdeck/internal/taskdeck/service"
	"github.com/taskdeck/taskdeck/pkg/httpx"
	"github.com/taskdeck/taskdeck/pkg/slogx"
)

type AccountHandler struct {
	Router         *Router
	AccountService *service.AccountService
	UserService    *service.UserService
}

type accountUpdateRequest struct {
	Name          *string `json:"name" validate:"omitempty,min=1,max=120"`
	LogoImagePath *string `json:"logo_image_path" validate:"omitempty,max=500"`
	HeroImagePath *string `json:"hero_image_path" validate:"omitempty,max=500"`
}

type memberResponse struct {
	Membership membershipResponse `json:"membership"`
	User       userResponse       `json:"user"`
}

type changeRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=guest default manager admin"`
}

// HandleGet godoc
//
//	@Summary	Get an account
//	@Tags		Accounts
//	@Security	BearerAuth
//	@Produce	json
//	@Param		id	path		string	true	"Account id"
//	@Success	200	{object}	accountResponse
//	@Failure	404	{object}	httpx.ErrorResponse
//	@Router		/v1/accounts/{id} [get].
func (h *AccountHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	accountID := r.PathValue("id")

	if _, ok := h.Router.callerMembership(w, r, accountID); !ok {
		return
	}

	acc, err := h.AccountService.GetAccount(r.Context(), accountID)
	if err != nil {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "Account not found")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAccountResponse(acc))
}

// HandleUpdate godoc
//
//	@Summary	Update an account profile
//	@Tags		Accounts
//	@Security	BearerAuth
//	@Accept		json
//	@Produce	json
//	@Param		id		path		string					true	"Account id"
//	@Param		body	body		accountUpdateRequest	true	"Partial update"
//	@Success	200		{object}	accountResponse
//	@Failure	403		{object}	httpx.ErrorResponse	"Requires manager role"
//	@Router		/v1/accounts/{id} [patch].
func (h *AccountHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)
	accountID := r.PathValue("id")

	m, ok := h.Router.callerMembership(w, r, accountID)
	if !ok {
		return
	}

	var req accountUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	acc, err := h.AccountService.UpdateAccount(ctx, accountID, m.Role, service.AccountUpdate{
		Name:          req.Name,
		LogoImagePath: req.LogoImagePath,
		HeroImagePath: req.HeroImagePath,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrForbidden):
			httpx.WriteError(w, http.StatusForbidden, "forbidden", "Managers and admins only")
		case errors.Is(err, service.ErrAccountNotFound):
			httpx.WriteError(w, http.StatusNotFound, "not_found", "Account not found")
		default:
			log.Error("account update failed", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Update failed")
		}
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAccountResponse(acc))
}

// HandleListMembers godoc
//
//	@Summary	List account members
//	@Tags		Accounts
//	@Security	BearerAuth
//	@Produce	json
//	@Param		id	path	string	true	"Account id"
//	@Success	200	{array}	memberResponse
//	@Router		/v1/accounts/{id}/members [get].
func (h *AccountHandler) HandleListMembers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)
	accountID := r.PathValue("id")

	if _, ok := h.Router.callerMembership(w, r, accountID); !ok {
		return
	}

	members, err := h.AccountService.ListMembers(ctx, accountID)
	if err != nil {
		log.Error("member listing failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Listing failed")
		return
	}

	out := make([]memberResponse, 0, len(members))
	for _, m := range members {
		out = append(out, memberResponse{
			Membership: toMembershipResponse(m.Membership),
			User:       toUserResponse(m.User),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleChangeRole godoc
//
//	@Summary	Change a member's role
//	@Tags		Accounts
//	@Security	BearerAuth
//	@Accept		json
//	@Produce	json
//	@Param		id		path		string				true	"Account id"
//	@Param		userID	path		string				true	"Target user id"
//	@Param		body	body		changeRoleRequest	true	"New role"
//	@Success	200		{object}	membershipResponse
//	@Failure	403		{object}	httpx.ErrorResponse	"Requires admin role"
//	@Router		/v1/accounts/{id}/members/{userID}/role [put].
func (h *AccountHandler) HandleChangeRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)
	accountID := r.PathValue("id")
	targetUserID := r.PathValue("userID")

	caller, ok := h.Router.callerMembership(w, r, accountID)
	if !ok {
		return
	}

	var req changeRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	m, err := h.AccountService.ChangeMemberRole(ctx, accountID, targetUserID, caller.Role, domain.Role(req.Role))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrForbidden):
			httpx.WriteError(w, http.StatusForbidden, "forbidden", "Admins only")
		case errors.Is(err, service.ErrMembershipNotFound):
			httpx.WriteError(w, http.StatusNotFound, "not_found", "Member not found")
		default:
			log.Error("role change failed", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Role change failed")
		}
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toMembershipResponse(m))
}

type UserHandler struct {
	Router      *Router
	UserService *service.UserService
}

type userUpdateRequest struct {
	Name             *string `json:"name" validate:"omitempty,min=1,max=120"`
	ProfileImagePath *string `json:"profile_image_path" validate:"omitempty,max=500"`
	HeroImagePath    *string `json:"hero_image_path" validate:"omitempty,max=500"`
}

// HandleGet godoc
//
//	@Summary	Get a user profile
//	@Tags		Users
//	@Security	BearerAuth
//	@Produce	json
//	@Param		id	path		string	true	"User id"
//	@Success	200	{object}	userResponse
//	@Failure	404	{object}	httpx.ErrorResponse
//	@Router		/v1/users/{id} [get].
func (h *UserHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	u, err := h.UserService.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "User not found")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUserResponse(u))
}

// HandleUpdateSelf godoc
//
//	@Summary	Update the caller's own profile
//	@Tags		Users
//	@Security	BearerAuth
//	@Accept		json
//	@Produce	json
//	@Param		body	body		userUpdateRequest	true	"Partial update"
//	@Success	200		{object}	userResponse
//	@Router		/v1/users/me [patch].
func (h *UserHandler) HandleUpdateSelf(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req userUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.UserService.UpdateUser(ctx, httpx.UserIDFromCtx(ctx), service.UserUpdate{
		Name:             req.Name,
		ProfileImagePath: req.ProfileImagePath,
		HeroImagePath:    req.HeroImagePath,
	})
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "not_found", "Profile not created yet")
			return
		}
		log.Error("user update failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Update failed")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUserResponse(u))
}
