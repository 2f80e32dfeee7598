package api

import (
	"errors"
	"net/http"

	"soundcrate/internal/apperr"
	"soundcrate/internal/media"
	"soundcrate/internal/query"
	"soundcrate/internal/storage"
)

const msgArtistExists = "Artist already exists"

// Artists lists artists and creates new ones.
func (h *Handler) Artists(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listArtists(w, r)
	case http.MethodPost:
		if _, ok := h.requireAdmin(w, r); !ok {
			return
		}
		h.createArtist(w, r)
	default:
		WriteMethodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// ArtistByID serves /api/artists/{id}.
func (h *Handler) ArtistByID(w http.ResponseWriter, r *http.Request) {
	parts := pathSegments(r, "/api/artists/")
	if len(parts) != 1 {
		h.NotFound(w, r)
		return
	}
	id := parts[0]

	switch r.Method {
	case http.MethodGet:
		artist, err := h.Store.GetArtist(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, artist)
	case http.MethodPut:
		if _, ok := h.requireAdmin(w, r); !ok {
			return
		}
		h.updateArtist(w, r, id)
	case http.MethodDelete:
		if _, ok := h.requireAdmin(w, r); !ok {
			return
		}
		if err := h.Store.DeleteArtist(r.Context(), id); err != nil {
			writeError(w, r, err)
			return
		}
		h.metrics().ObserveDelete("artist")
		writeJSON(w, http.StatusOK, messageResponse{Message: "Artist deleted successfully"})
	default:
		WriteMethodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (h *Handler) listArtists(w http.ResponseWriter, r *http.Request) {
	q, err := query.Parse(r.URL.Query(), query.SortFollowers)
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := h.Store.ListArtists(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, artistListResponse{
		Artists:      page.Items,
		Page:         page.Page,
		Pages:        page.TotalPages,
		TotalArtists: page.TotalCount,
	})
}

func (h *Handler) createArtist(w http.ResponseWriter, r *http.Request) {
	form, err := h.readForm(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer form.Cleanup()

	genres, err := parseListField(form, "genre")
	if err != nil {
		writeError(w, r, err)
		return
	}
	params := storage.CreateArtistParams{
		Name:       form.Value("name"),
		Bio:        form.Value("bio"),
		IsVerified: true,
	}
	if genres != nil {
		params.Genres = *genres
	}
	if err := params.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := h.Store.FindArtistByName(r.Context(), params.Name); err == nil {
		writeError(w, r, apperr.Conflict(msgArtistExists))
		return
	} else if !errors.Is(err, apperr.ErrNotFound) {
		writeError(w, r, err)
		return
	}

	image, _, err := h.uploadFile(r.Context(), form, "image", media.FolderArtists, "Error uploading artist image")
	if err != nil {
		writeError(w, r, err)
		return
	}
	params.Image = image

	artist, err := h.Store.CreateArtist(r.Context(), params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, artist)
}

func (h *Handler) updateArtist(w http.ResponseWriter, r *http.Request, id string) {
	form, err := h.readForm(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer form.Cleanup()

	if _, err := h.Store.GetArtist(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	patch := storage.ArtistPatch{
		Name: optionalString(form, "name"),
		Bio:  optionalString(form, "bio"),
	}
	if patch.Genres, err = parseListField(form, "genre"); err != nil {
		writeError(w, r, err)
		return
	}
	if patch.IsVerified, err = parseBoolField(form, "isVerified"); err != nil {
		writeError(w, r, err)
		return
	}
	if patch.Followers, err = parseIntField(form, "followers"); err != nil {
		writeError(w, r, err)
		return
	}

	image, uploaded, err := h.uploadFile(r.Context(), form, "image", media.FolderArtists, "Error uploading artist image")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if uploaded {
		patch.Image = &image
	}

	artist, err := h.Store.UpdateArtist(r.Context(), id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, artist)
}
