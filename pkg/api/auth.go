package api

import (
	"net/http"
	"strings"

	"github.com/dmelnik/spotcore/pkg/core/account"
)

// authHandler is an authenticated endpoint: the resolved user rides along
// with the request instead of a context value.
type authHandler func(w http.ResponseWriter, r *http.Request, u *account.User)

// currentUser resolves the "Authorization: TOKEN <api-key>" header
func (s *Server) currentUser(r *http.Request) (*account.User, bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return nil, false
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "TOKEN") {
		return nil, false
	}
	return s.users.Authenticate(strings.TrimSpace(parts[1]))
}

// authenticated wraps a handler with api-key authentication
func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := s.currentUser(r)
		if !ok {
			respondError(w, http.StatusUnauthorized, "invalid or missing api key", "")
			return
		}
		next(w, r, u)
	})
}

// admin wraps a handler with api-key authentication plus an ADMIN role check
func (s *Server) admin(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := s.currentUser(r)
		if !ok {
			respondError(w, http.StatusUnauthorized, "invalid or missing api key", "")
			return
		}
		if u.Role != account.RoleAdmin {
			respondError(w, http.StatusForbidden, "only admins may call this endpoint", "")
			return
		}
		next(w, r, u)
	})
}
