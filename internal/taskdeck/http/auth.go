package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/taskdeck/taskdeck/internal/taskdeck/identity"
	"github.com/taskdeck/taskdeck/internal/taskdeck/metrics"
	"github.com/taskdeck/taskdeck/pkg/httpx"
	"github.com/taskdeck/taskdeck/pkg/slogx"
)

type AuthHandler struct {
	Identity *identity.Provider
}

type signUpRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
	Name        string `json:"name" validate:"omitempty,max=120"`
	AccountName string `json:"account_name" validate:"omitempty,max=120"`
}

type signInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type sessionResponse struct {
	Token       string    `json:"token"`
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	Name        string    `json:"name,omitempty"`
	AccountName string    `json:"account_name,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// HandleSignUp godoc
//
//	@Summary		Register a new user
//	@Description	Creates a credential and returns a session token. The user
//	@Description	profile and first account are created on first session resolution.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		signUpRequest	true	"Sign-up payload"
//	@Success		201		{object}	sessionResponse
//	@Failure		400		{object}	httpx.ErrorResponse
//	@Failure		409		{object}	httpx.ErrorResponse	"Email already registered"
//	@Router			/v1/auth/sign-up [post].
func (h *AuthHandler) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req signUpRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sess, err := h.Identity.SignUp(ctx, req.Email, req.Password, identity.Metadata{
		Name:        strings.TrimSpace(req.Name),
		AccountName: strings.TrimSpace(req.AccountName),
	})
	if err != nil {
		if errors.Is(err, identity.ErrEmailTaken) {
			httpx.WriteError(w, http.StatusConflict, "email_taken", "Email is already registered")
			return
		}
		log.Error("sign-up failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Sign-up failed")
		return
	}

	metrics.SignUpsTotal.Inc()
	httpx.WriteJSON(w, http.StatusCreated, toSessionResponse(sess))
}

// HandleSignIn godoc
//
//	@Summary	Sign in with email and password
//	@Tags		Auth
//	@Accept		json
//	@Produce	json
//	@Param		body	body		signInRequest	true	"Credentials"
//	@Success	200		{object}	sessionResponse
//	@Failure	401		{object}	httpx.ErrorResponse	"Invalid credentials"
//	@Router		/v1/auth/sign-in [post].
func (h *AuthHandler) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req signInRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sess, err := h.Identity.SignIn(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			httpx.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "Email or password is incorrect")
			return
		}
		log.Error("sign-in failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Sign-in failed")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, toSessionResponse(sess))
}

// HandleRefresh godoc
//
//	@Summary	Exchange a valid token for a fresh one
//	@Tags		Auth
//	@Security	BearerAuth
//	@Produce	json
//	@Success	200	{object}	sessionResponse
//	@Failure	401	{object}	httpx.ErrorResponse	"Invalid token"
//	@Router		/v1/auth/refresh [post].
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	authz := r.Header.Get("Authorization")
	token := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer"))

	sess, err := h.Identity.Refresh(r.Context(), token)
	if err != nil {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "Token is invalid or expired")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toSessionResponse(sess))
}

// HandleSignOut godoc
//
//	@Summary	Sign out
//	@Tags		Auth
//	@Security	BearerAuth
//	@Success	204
//	@Router		/v1/auth/sign-out [post].
func (h *AuthHandler) HandleSignOut(w http.ResponseWriter, r *http.Request) {
	authz := r.Header.Get("Authorization")
	token := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer"))

	_ = h.Identity.SignOut(r.Context(), token)
	w.WriteHeader(http.StatusNoContent)
}

func toSessionResponse(sess identity.Session) sessionResponse {
	return sessionResponse{
		Token:       sess.Token,
		UserID:      sess.UserID,
		Email:       sess.Email,
		Name:        sess.Name,
		AccountName: sess.AccountName,
		ExpiresAt:   sess.ExpiresAt,
	}
}
