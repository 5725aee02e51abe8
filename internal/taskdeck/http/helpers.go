package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/taskdeck/taskdeck/internal/taskdeck/domain"
	"github.com/taskdeck/taskdeck/internal/taskdeck/metrics"
	"github.com/taskdeck/taskdeck/internal/taskdeck/store"
	"github.com/taskdeck/taskdeck/pkg/httpx"
)

var validate = validator.New()

// decodeJSON parses and validates a request body. On failure it writes
// the error response itself and reports false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return false
	}
	return true
}

// callerMembership loads the authenticated caller's membership in the
// given account. A missing membership is reported as 404 so outsiders
// cannot distinguish "no access" from "no such account".
func (rt *Router) callerMembership(w http.ResponseWriter, r *http.Request, accountID string) (domain.AccountMembership, bool) {
	userID := httpx.UserIDFromCtx(r.Context())

	m, err := rt.store.Memberships().GetMembership(r.Context(), userID, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "not_found", "Account not found")
		} else {
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Membership lookup failed")
		}
		return domain.AccountMembership{}, false
	}
	return m, true
}

// callerUser loads the authenticated caller's user row, falling back to
// the token claims when the profile has not been bootstrapped yet.
func (rt *Router) callerUser(w http.ResponseWriter, r *http.Request) (domain.User, bool) {
	userID := httpx.UserIDFromCtx(r.Context())

	u, err := rt.store.Users().GetUserByID(r.Context(), userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{
			ID:    userID,
			Email: httpx.EmailFromCtx(r.Context()),
		}, true
	}
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "User lookup failed")
		return domain.User{}, false
	}
	return u, true
}

// statusRecorder captures the response code for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func metricsMiddleware() httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()

			next.ServeHTTP(rec, r)

			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			metrics.ObserveHTTP(r.Method, route, rec.status, time.Since(start).Seconds())
		})
	}
}
