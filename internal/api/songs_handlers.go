package api

import (
	"net/http"

	"soundcrate/internal/apperr"
	"soundcrate/internal/media"
	"soundcrate/internal/query"
	"soundcrate/internal/storage"
)

const (
	msgAudioRequired    = "Audio file is required"
	msgAudioUploadError = "Error uploading audio file"
)

// Songs lists songs and creates new ones.
func (h *Handler) Songs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listSongs(w, r)
	case http.MethodPost:
		if _, ok := h.requireAdmin(w, r); !ok {
			return
		}
		h.createSong(w, r)
	default:
		WriteMethodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// SongByID serves /api/songs/top, /api/songs/new-releases and /api/songs/{id}.
func (h *Handler) SongByID(w http.ResponseWriter, r *http.Request) {
	parts := pathSegments(r, "/api/songs/")
	if len(parts) != 1 {
		h.NotFound(w, r)
		return
	}
	switch parts[0] {
	case "top":
		h.songFeed(w, r, query.SortPlays)
		return
	case "new-releases":
		h.songFeed(w, r, query.SortNewest)
		return
	}
	id := parts[0]

	switch r.Method {
	case http.MethodGet:
		song, err := h.Store.GetSong(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, songResponse{Message: "Song fetched successfully", Song: song})
	case http.MethodPut:
		if _, ok := h.requireAdmin(w, r); !ok {
			return
		}
		h.updateSong(w, r, id)
	case http.MethodDelete:
		if _, ok := h.requireAdmin(w, r); !ok {
			return
		}
		if err := h.Store.DeleteSong(r.Context(), id); err != nil {
			writeError(w, r, err)
			return
		}
		h.metrics().ObserveDelete("song")
		writeJSON(w, http.StatusOK, messageResponse{Message: "Song deleted successfully"})
	default:
		WriteMethodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (h *Handler) listSongs(w http.ResponseWriter, r *http.Request) {
	q, err := query.Parse(r.URL.Query(), query.SortReleaseDate)
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := h.Store.ListSongs(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, songListResponse{
		Songs:      page.Items,
		Page:       page.Page,
		TotalPages: page.TotalPages,
		TotalSongs: page.TotalCount,
	})
}

func (h *Handler) songFeed(w http.ResponseWriter, r *http.Request, order query.Sort) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w, r, http.MethodGet)
		return
	}
	limit, err := query.ParseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := query.New(order)
	q.Limit = limit
	page, err := h.Store.ListSongs(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, songFeedResponse{Songs: page.Items})
}

func (h *Handler) createSong(w http.ResponseWriter, r *http.Request) {
	form, err := h.readForm(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer form.Cleanup()
	ctx := r.Context()

	params := storage.CreateSongParams{
		Title:    form.Value("title"),
		ArtistID: form.Value("artistId"),
		AlbumID:  form.Value("albumId"),
		Genre:    form.Value("genre"),
	}
	if _, err := h.Store.GetArtist(ctx, params.ArtistID); err != nil {
		writeError(w, r, err)
		return
	}
	if params.AlbumID != "" {
		if _, err := h.Store.GetAlbum(ctx, params.AlbumID); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if _, ok := form.File("audio"); !ok {
		writeError(w, r, apperr.Validation(msgAudioRequired))
		return
	}

	if err := fillSongFields(form, &params); err != nil {
		writeError(w, r, err)
		return
	}
	if err := params.ValidateMetadata(); err != nil {
		writeError(w, r, err)
		return
	}

	audio, _, err := h.uploadFile(ctx, form, "audio", media.FolderSongs, msgAudioUploadError)
	if err != nil {
		writeError(w, r, err)
		return
	}
	params.AudioURL = audio
	cover, _, err := h.uploadFile(ctx, form, "cover", media.FolderCovers, msgCoverUploadError)
	if err != nil {
		writeError(w, r, err)
		return
	}
	params.CoverImage = cover

	song, err := h.Store.CreateSong(ctx, params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, songResponse{Message: "Song created successfully", Song: song})
}

func fillSongFields(form *media.Form, params *storage.CreateSongParams) error {
	duration, err := parseIntField(form, "duration")
	if err != nil {
		return err
	}
	if duration != nil {
		params.Duration = *duration
	}
	released, err := parseDateField(form, "releaseDate")
	if err != nil {
		return err
	}
	if released != nil {
		params.ReleaseDate = *released
	}
	explicit, err := parseBoolField(form, "isExplicit")
	if err != nil {
		return err
	}
	if explicit != nil {
		params.IsExplicit = *explicit
	}
	featured, err := parseListField(form, "featuredArtists")
	if err != nil {
		return err
	}
	if featured != nil {
		params.FeaturedArtists = *featured
	}
	return nil
}

func (h *Handler) updateSong(w http.ResponseWriter, r *http.Request, id string) {
	form, err := h.readForm(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer form.Cleanup()
	ctx := r.Context()

	if _, err := h.Store.GetSong(ctx, id); err != nil {
		writeError(w, r, err)
		return
	}
	patch := storage.SongPatch{
		Title:   optionalString(form, "title"),
		AlbumID: optionalString(form, "albumId"),
		Genre:   optionalString(form, "genre"),
	}
	if patch.AlbumID != nil && *patch.AlbumID != "" {
		if _, err := h.Store.GetAlbum(ctx, *patch.AlbumID); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if patch.Duration, err = parseIntField(form, "duration"); err != nil {
		writeError(w, r, err)
		return
	}
	if patch.ReleaseDate, err = parseDateField(form, "releaseDate"); err != nil {
		writeError(w, r, err)
		return
	}
	if patch.IsExplicit, err = parseBoolField(form, "isExplicit"); err != nil {
		writeError(w, r, err)
		return
	}
	if patch.Plays, err = parseIntField(form, "plays"); err != nil {
		writeError(w, r, err)
		return
	}
	if patch.FeaturedArtists, err = parseListField(form, "featuredArtists"); err != nil {
		writeError(w, r, err)
		return
	}

	audio, uploaded, err := h.uploadFile(ctx, form, "audio", media.FolderSongs, msgAudioUploadError)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if uploaded {
		patch.AudioURL = &audio
	}
	cover, uploaded, err := h.uploadFile(ctx, form, "cover", media.FolderCovers, msgCoverUploadError)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if uploaded {
		patch.CoverImage = &cover
	}

	song, err := h.Store.UpdateSong(ctx, id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, songResponse{Message: "Song updated successfully", Song: song})
}
