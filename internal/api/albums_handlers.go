package api

import (
	"errors"
	"net/http"

	"soundcrate/internal/apperr"
	"soundcrate/internal/media"
	"soundcrate/internal/query"
	"soundcrate/internal/storage"
)

const (
	msgAlbumExists      = "Album with this title already exists"
	msgCoverUploadError = "Error uploading cover image"
)

type addSongsRequest struct {
	SongIDs []string `json:"songIds"`
}

// Albums lists albums and creates new ones.
func (h *Handler) Albums(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listAlbums(w, r)
	case http.MethodPost:
		if _, ok := h.requireAdmin(w, r); !ok {
			return
		}
		h.createAlbum(w, r)
	default:
		WriteMethodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// AlbumByID serves /api/albums/new-releases, /api/albums/{id} and the album
// membership routes below it.
func (h *Handler) AlbumByID(w http.ResponseWriter, r *http.Request) {
	parts := pathSegments(r, "/api/albums/")
	switch {
	case len(parts) == 1 && parts[0] == "new-releases":
		h.albumNewReleases(w, r)
	case len(parts) == 1:
		h.album(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "add-songs":
		if r.Method != http.MethodPost {
			WriteMethodNotAllowed(w, r, http.MethodPost)
			return
		}
		if _, ok := h.requireAdmin(w, r); !ok {
			return
		}
		h.addSongsToAlbum(w, r, parts[0])
	case len(parts) == 3 && parts[1] == "remove-songs":
		if r.Method != http.MethodDelete {
			WriteMethodNotAllowed(w, r, http.MethodDelete)
			return
		}
		if _, ok := h.requireAdmin(w, r); !ok {
			return
		}
		h.removeSongFromAlbum(w, r, parts[0], parts[2])
	default:
		h.NotFound(w, r)
	}
}

func (h *Handler) album(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		album, err := h.Store.GetAlbum(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, albumResponse{Message: "Album fetched successfully", Album: album})
	case http.MethodPut:
		if _, ok := h.requireAdmin(w, r); !ok {
			return
		}
		h.updateAlbum(w, r, id)
	case http.MethodDelete:
		if _, ok := h.requireAdmin(w, r); !ok {
			return
		}
		if err := h.Store.DeleteAlbum(r.Context(), id); err != nil {
			writeError(w, r, err)
			return
		}
		h.metrics().ObserveDelete("album")
		writeJSON(w, http.StatusOK, messageResponse{Message: "Album deleted successfully"})
	default:
		WriteMethodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (h *Handler) listAlbums(w http.ResponseWriter, r *http.Request) {
	q, err := query.Parse(r.URL.Query(), query.SortReleaseDate)
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := h.Store.ListAlbums(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, albumListResponse{
		Message:     "Albums fetched successfully",
		Albums:      page.Items,
		Page:        page.Page,
		TotalPages:  page.TotalPages,
		TotalAlbums: page.TotalCount,
	})
}

// albumNewReleases lists the most recently added albums.
func (h *Handler) albumNewReleases(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w, r, http.MethodGet)
		return
	}
	limit, err := query.ParseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := query.New(query.SortNewest)
	q.Limit = limit
	page, err := h.Store.ListAlbums(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, albumFeedResponse{Albums: page.Items})
}

func (h *Handler) createAlbum(w http.ResponseWriter, r *http.Request) {
	form, err := h.readForm(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer form.Cleanup()

	params := storage.CreateAlbumParams{
		Title:       form.Value("title"),
		ArtistID:    form.Value("artistId"),
		Genre:       form.Value("genre"),
		Description: form.Value("description"),
	}
	released, err := parseDateField(form, "releasedDate")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if released != nil {
		params.ReleaseDate = *released
	}
	explicit, err := parseBoolField(form, "isExplicit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if explicit != nil {
		params.IsExplicit = *explicit
	}
	if err := params.Validate(); err != nil {
		writeError(w, r, err)
		return
	}

	if _, err := h.Store.FindAlbumByTitle(r.Context(), params.Title); err == nil {
		writeError(w, r, apperr.Conflict(msgAlbumExists))
		return
	} else if !errors.Is(err, apperr.ErrNotFound) {
		writeError(w, r, err)
		return
	}
	if _, err := h.Store.GetArtist(r.Context(), params.ArtistID); err != nil {
		writeError(w, r, err)
		return
	}

	cover, _, err := h.uploadFile(r.Context(), form, "coverImage", media.FolderAlbums, msgCoverUploadError)
	if err != nil {
		writeError(w, r, err)
		return
	}
	params.CoverImage = cover

	album, err := h.Store.CreateAlbum(r.Context(), params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, albumResponse{Message: "Album created successfully", Album: album})
}

func (h *Handler) updateAlbum(w http.ResponseWriter, r *http.Request, id string) {
	form, err := h.readForm(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer form.Cleanup()

	if _, err := h.Store.GetAlbum(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	patch := storage.AlbumPatch{
		Title:       optionalString(form, "title"),
		Genre:       optionalString(form, "genre"),
		Description: optionalString(form, "description"),
	}
	if patch.ReleaseDate, err = parseDateField(form, "releasedDate"); err != nil {
		writeError(w, r, err)
		return
	}
	if patch.IsExplicit, err = parseBoolField(form, "isExplicit"); err != nil {
		writeError(w, r, err)
		return
	}

	cover, uploaded, err := h.uploadFile(r.Context(), form, "coverImage", media.FolderAlbums, msgCoverUploadError)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if uploaded {
		patch.CoverImage = &cover
	}

	album, err := h.Store.UpdateAlbum(r.Context(), id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, albumResponse{Message: "Album updated successfully", Album: album})
}

func (h *Handler) addSongsToAlbum(w http.ResponseWriter, r *http.Request, albumID string) {
	var req addSongsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	album, err := h.Store.AddSongsToAlbum(r.Context(), albumID, req.SongIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, albumResponse{Message: "Songs added to album successfully", Album: album})
}

func (h *Handler) removeSongFromAlbum(w http.ResponseWriter, r *http.Request, albumID, songID string) {
	album, err := h.Store.RemoveSongFromAlbum(r.Context(), albumID, songID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, albumResponse{Message: "Song removed from album successfully", Album: album})
}
