package api

import (
	"errors"
	"net/http"

	"soundcrate/internal/apperr"
	"soundcrate/internal/auth"
	"soundcrate/internal/media"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Users routes /api/users/register, /api/users/login and /api/users/profile.
func (h *Handler) Users(w http.ResponseWriter, r *http.Request) {
	parts := pathSegments(r, "/api/users/")
	if len(parts) != 1 {
		h.NotFound(w, r)
		return
	}
	switch parts[0] {
	case "register":
		h.Register(w, r)
	case "login":
		h.Login(w, r)
	case "profile":
		h.Profile(w, r)
	default:
		h.NotFound(w, r)
	}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	user, err := h.Auth.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newAccountResponse(user))
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	login, err := h.Auth.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		outcome := "error"
		if errors.Is(err, apperr.ErrAuth) {
			outcome = "rejected"
		}
		h.metrics().ObserveLogin(outcome)
		writeError(w, r, err)
		return
	}
	h.metrics().ObserveLogin("success")
	writeJSON(w, http.StatusOK, loginResponse{
		ID:             login.User.ID,
		Email:          login.User.Email,
		IsAdmin:        login.User.IsAdmin,
		ProfilePicture: login.User.ProfilePicture,
		Token:          login.Token,
		ExpiresAt:      login.ExpiresAt.UTC(),
	})
}

// Profile serves the authenticated user's own account.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		user, err := h.Store.GetUser(r.Context(), actor.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newProfileResponse(user))
	case http.MethodPut:
		h.updateProfile(w, r, actor.ID)
	default:
		WriteMethodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request, userID string) {
	form, err := h.readForm(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer form.Cleanup()

	update := auth.ProfileUpdate{
		Name:  optionalString(form, "name"),
		Email: optionalString(form, "email"),
	}
	if password, ok := form.Raw("password"); ok && password != "" {
		update.Password = &password
	}
	picture, uploaded, err := h.uploadFile(r.Context(), form, "profilePicture", media.FolderProfiles, "Error uploading profile picture")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if uploaded {
		update.ProfilePicture = &picture
	}

	user, err := h.Auth.UpdateProfile(r.Context(), userID, update)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAccountResponse(user))
}
