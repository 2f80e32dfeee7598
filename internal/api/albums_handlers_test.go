package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"soundcrate/internal/media"
)

func mustDate(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		t.Fatalf("parse date: %v", err)
	}
	return parsed
}

func TestCreateAlbumChecksInOrder(t *testing.T) {
	env := newTestHandler(t)
	admin := env.admin(t)
	artist := env.artist(t, "Nova")
	createAlbumFixture(t, env, artist.ID, "First Light")

	valid := func() map[string]any {
		return map[string]any{
			"title":        "Second Wind",
			"artistId":     artist.ID,
			"releasedDate": "2024-06-01",
			"genre":        "Pop",
			"description":  "Ten tracks recorded live",
		}
	}
	cases := []struct {
		name    string
		mutate  func(map[string]any)
		status  int
		message string
	}{
		{"missing fields", func(p map[string]any) { delete(p, "title"); delete(p, "genre") }, http.StatusBadRequest, "Title and genre are required"},
		{"short title", func(p map[string]any) { p["title"] = "ab" }, http.StatusBadRequest, "Title must be between 3 and 100 characters"},
		{"short description", func(p map[string]any) { p["description"] = "too short" }, http.StatusBadRequest, "Description must be between 10 and 200 characters"},
		{"bad date", func(p map[string]any) { p["releasedDate"] = "June" }, http.StatusBadRequest, ""},
		{"title conflict before artist lookup", func(p map[string]any) { p["title"] = "First Light"; p["artistId"] = "missing" }, http.StatusConflict, msgAlbumExists},
		{"unknown artist", func(p map[string]any) { p["artistId"] = "missing" }, http.StatusNotFound, "Artist not found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload := valid()
			tc.mutate(payload)
			rec := serve(env.handler.Albums, asUser(jsonRequest(t, http.MethodPost, "/api/albums", payload), admin))
			expectError(t, rec, tc.status, tc.message)
		})
	}

	rec := serve(env.handler.Albums, asUser(jsonRequest(t, http.MethodPost, "/api/albums", valid()), admin))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeBody[albumResponse](t, rec)
	if created.Message != "Album created successfully" || created.Album.ArtistID != artist.ID {
		t.Fatalf("unexpected response %+v", created)
	}
	stored, err := env.store.GetArtist(context.Background(), artist.ID)
	if err != nil {
		t.Fatalf("GetArtist: %v", err)
	}
	if contains(stored.Albums, created.Album.ID) != 1 {
		t.Fatalf("expected album once in artist albums, got %v", stored.Albums)
	}
}

func TestCreateAlbumUploadsCover(t *testing.T) {
	env := newTestHandler(t)
	admin := env.admin(t)
	artist := env.artist(t, "Nova")

	req := multipartRequest(t, http.MethodPost, "/api/albums",
		map[string]string{
			"title":        "Second Wind",
			"artistId":     artist.ID,
			"releasedDate": "2024-06-01T00:00:00Z",
			"genre":        "Pop",
			"description":  "Ten tracks recorded live",
			"isExplicit":   "true",
		},
		filePart{field: "coverImage", filename: "cover.png", contentType: "image/png", body: "png"},
	)
	rec := serve(env.handler.Albums, asUser(req, admin))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	album := decodeBody[albumResponse](t, rec).Album
	if !album.IsExplicit || !strings.HasPrefix(album.CoverImage, "http://media.test/media/"+media.FolderAlbums+"/") {
		t.Fatalf("unexpected album %+v", album)
	}
	if left := stagedFiles(t, env.intake); len(left) != 0 {
		t.Fatalf("expected staged files to be removed, left %v", left)
	}
}

func TestRejectedAlbumNeverUploads(t *testing.T) {
	env := newTestHandler(t)
	admin := env.admin(t)

	req := multipartRequest(t, http.MethodPost, "/api/albums",
		map[string]string{"title": "Second Wind", "artistId": "missing", "releasedDate": "2024-06-01", "genre": "Pop", "description": "Ten tracks recorded live"},
		filePart{field: "coverImage", filename: "cover.png", contentType: "image/png", body: "png"},
	)
	rec := serve(env.handler.Albums, asUser(req, admin))
	expectError(t, rec, http.StatusNotFound, "Artist not found")
	if left := stagedFiles(t, env.intake); len(left) != 0 {
		t.Fatalf("expected staged cover to be discarded, left %v", left)
	}
}

func TestGetUpdateAndDeleteAlbum(t *testing.T) {
	env := newTestHandler(t)
	admin := env.admin(t)
	ctx := context.Background()
	artist := env.artist(t, "Nova")
	album := createAlbumFixture(t, env, artist.ID, "First Light")
	song := createSongFixture(t, env, artist.ID, album.ID, "Opening")

	rec := serve(env.handler.AlbumByID, httptest.NewRequest(http.MethodGet, "/api/albums/"+album.ID, nil))
	fetched := decodeBody[albumResponse](t, rec)
	if rec.Code != http.StatusOK || fetched.Message != "Album fetched successfully" || contains(fetched.Album.Songs, song.ID) != 1 {
		t.Fatalf("unexpected fetch %d %+v", rec.Code, fetched)
	}

	rec = serve(env.handler.AlbumByID, asUser(jsonRequest(t, http.MethodPut, "/api/albums/"+album.ID, map[string]any{"isExplicit": true, "title": "First Light (Deluxe)"}), admin))
	updated := decodeBody[albumResponse](t, rec)
	if rec.Code != http.StatusOK || !updated.Album.IsExplicit || updated.Album.Title != "First Light (Deluxe)" {
		t.Fatalf("unexpected update %d %+v", rec.Code, updated)
	}

	rec = serve(env.handler.AlbumByID, asUser(jsonRequest(t, http.MethodPut, "/api/albums/"+album.ID, map[string]any{"title": "x"}), admin))
	expectError(t, rec, http.StatusBadRequest, "Title must be between 3 and 100 characters")

	rec = serve(env.handler.AlbumByID, asUser(httptest.NewRequest(http.MethodDelete, "/api/albums/"+album.ID, nil), admin))
	if rec.Code != http.StatusOK || decodeBody[messageResponse](t, rec).Message != "Album deleted successfully" {
		t.Fatalf("unexpected delete %d %s", rec.Code, rec.Body.String())
	}
	survivor, err := env.store.GetSong(ctx, song.ID)
	if err != nil {
		t.Fatalf("expected song to survive album delete: %v", err)
	}
	if survivor.AlbumID != nil {
		t.Fatalf("expected album to be unset, got %v", *survivor.AlbumID)
	}
	owner, err := env.store.GetArtist(ctx, artist.ID)
	if err != nil {
		t.Fatalf("GetArtist: %v", err)
	}
	if contains(owner.Albums, album.ID) != 0 {
		t.Fatalf("expected album removed from artist, got %v", owner.Albums)
	}

	rec = serve(env.handler.AlbumByID, httptest.NewRequest(http.MethodGet, "/api/albums/"+album.ID, nil))
	expectError(t, rec, http.StatusNotFound, "Album not found")
}

func TestAlbumMembershipRoutes(t *testing.T) {
	env := newTestHandler(t)
	admin := env.admin(t)
	ctx := context.Background()
	artist := env.artist(t, "Nova")
	first := createAlbumFixture(t, env, artist.ID, "First Light")
	second := createAlbumFixture(t, env, artist.ID, "Second Wind")
	song := createSongFixture(t, env, artist.ID, first.ID, "Opening")

	rec := serve(env.handler.AlbumByID, asUser(jsonRequest(t, http.MethodPost, "/api/albums/"+second.ID+"/add-songs", map[string]any{"songIds": []string{song.ID}}), admin))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if contains(decodeBody[albumResponse](t, rec).Album.Songs, song.ID) != 1 {
		t.Fatal("expected song in target album")
	}
	previous, err := env.store.GetAlbum(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetAlbum: %v", err)
	}
	if contains(previous.Songs, song.ID) != 0 {
		t.Fatalf("expected song moved out of previous album, got %v", previous.Songs)
	}

	rec = serve(env.handler.AlbumByID, asUser(jsonRequest(t, http.MethodPost, "/api/albums/"+second.ID+"/add-songs", map[string]any{"songIds": []string{}}), admin))
	expectError(t, rec, http.StatusBadRequest, "Song ids are required")

	rec = serve(env.handler.AlbumByID, asUser(httptest.NewRequest(http.MethodDelete, "/api/albums/"+second.ID+"/remove-songs/"+song.ID, nil), admin))
	if rec.Code != http.StatusOK || contains(decodeBody[albumResponse](t, rec).Album.Songs, song.ID) != 0 {
		t.Fatalf("unexpected remove %d %s", rec.Code, rec.Body.String())
	}
	detached, err := env.store.GetSong(ctx, song.ID)
	if err != nil {
		t.Fatalf("GetSong: %v", err)
	}
	if detached.AlbumID != nil {
		t.Fatal("expected song to be detached")
	}

	rec = serve(env.handler.AlbumByID, asUser(httptest.NewRequest(http.MethodGet, "/api/albums/"+second.ID+"/add-songs", nil), admin))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestListAlbumsAndNewReleases(t *testing.T) {
	env := newTestHandler(t)
	artist := env.artist(t, "Nova")
	other := env.artist(t, "Orbit")
	createAlbumFixture(t, env, artist.ID, "First Light")
	createAlbumFixture(t, env, artist.ID, "Pink Skies")
	createAlbumFixture(t, env, other.ID, "Deep Blue")

	rec := serve(env.handler.Albums, httptest.NewRequest(http.MethodGet, "/api/albums?artist="+artist.ID+"&search=PINK", nil))
	page := decodeBody[albumListResponse](t, rec)
	if rec.Code != http.StatusOK || page.TotalAlbums != 1 || page.Albums[0].Title != "Pink Skies" || page.TotalPages != 1 {
		t.Fatalf("unexpected album page %d %+v", rec.Code, page)
	}

	rec = serve(env.handler.AlbumByID, httptest.NewRequest(http.MethodGet, "/api/albums/new-releases?limit=2", nil))
	feed := decodeBody[albumFeedResponse](t, rec)
	if rec.Code != http.StatusOK || len(feed.Albums) != 2 {
		t.Fatalf("unexpected feed %d %+v", rec.Code, feed)
	}

	rec = serve(env.handler.AlbumByID, httptest.NewRequest(http.MethodGet, "/api/albums/new-releases?limit=abc", nil))
	expectError(t, rec, http.StatusBadRequest, "limit must be a positive integer")
}
