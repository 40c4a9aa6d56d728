package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"venuelink.org/internal/audit"
	"venuelink.org/internal/auth"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type sessionResponse struct {
	User         *auth.User `json:"user"`
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"refreshToken"`
	TokenType    string     `json:"tokenType"`
}

func sessionBody(pair auth.TokenPair, user *auth.User) sessionResponse {
	return sessionResponse{
		User:         user,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
	}
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "bad_request", "email and password are required")
		return
	}

	pair, user, err := a.sessions.Register(r.Context(), auth.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	})
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionBody(pair, user))
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	pair, user, err := a.sessions.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionBody(pair, user))
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		writeError(w, r, http.StatusBadRequest, "bad_request", "refreshToken is required")
		return
	}

	pair, user, err := a.sessions.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionBody(pair, user))
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing_token", "authentication required")
		return
	}
	if err := a.sessions.Logout(r.Context(), principal); err != nil {
		writeAuthError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing_token", "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": principal.User})
}

type userStatusRequest struct {
	Active *bool `json:"active"`
}

// handleUserStatus soft-(de)activates an account. super_admin may
// touch anyone; venue_admin only accounts bound to their venue.
func (a *API) handleUserStatus(w http.ResponseWriter, r *http.Request) {
	targetID := r.PathValue("id")
	if targetID == "" {
		writeError(w, r, http.StatusBadRequest, "bad_request", "user id is required")
		return
	}
	var req userStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if req.Active == nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", "active is required")
		return
	}

	// Authorize on what the URL alone reveals before touching the
	// store: a user record is owned by the user it describes, so the
	// ownership check needs no lookup, and the venue check runs
	// optimistically against the caller's own scope. Callers rejected
	// here learn nothing about whether the id exists.
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing_token", "authentication required")
		return
	}
	if !auth.Authorize(principal, auth.AccessRequest{
		Resource: auth.ResourceUser,
		Action:   auth.ActionUpdate,
		VenueID:  principal.User.VenueID,
		OwnerID:  targetID,
	}) {
		writeError(w, r, http.StatusForbidden, "forbidden", "permission denied")
		return
	}

	target, err := a.users.Find(r.Context(), targetID)
	if err != nil {
		// Venue-scoped callers get the same denial for a missing id as
		// for an id outside their venue.
		if errors.Is(err, auth.ErrNotFound) && principal.User.Role != auth.RoleSuperAdmin {
			writeError(w, r, http.StatusForbidden, "forbidden", "permission denied")
			return
		}
		writeAuthError(w, r, err)
		return
	}

	// Second pass against the target's real venue scope.
	if !auth.Authorize(principal, auth.AccessRequest{
		Resource: auth.ResourceUser,
		Action:   auth.ActionUpdate,
		VenueID:  target.VenueID,
		OwnerID:  target.ID,
	}) {
		writeError(w, r, http.StatusForbidden, "forbidden", "permission denied")
		return
	}

	if err := a.users.SetActive(r.Context(), target.ID, *req.Active); err != nil {
		writeAuthError(w, r, err)
		return
	}

	outcome := "deactivated"
	if *req.Active {
		outcome = "activated"
	}
	_ = audit.LogEvent(r.Context(), "user.status."+outcome, map[string]any{
		"actor_id":  principal.User.ID,
		"target_id": target.ID,
	})

	target.Active = *req.Active
	writeJSON(w, http.StatusOK, map[string]any{"user": target})
}
