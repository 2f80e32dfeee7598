package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"soundcrate/internal/media"
	"soundcrate/internal/storage"
)

func TestCreateSongUploadsAudioAndCover(t *testing.T) {
	env := newTestHandler(t)
	admin := env.admin(t)
	ctx := context.Background()
	artist := env.artist(t, "Nova")
	guest := env.artist(t, "Orbit")
	album := createAlbumFixture(t, env, artist.ID, "First Light")

	req := multipartRequest(t, http.MethodPost, "/api/songs",
		map[string]string{
			"title":           "Night Drive",
			"artistId":        artist.ID,
			"albumId":         album.ID,
			"duration":        "215",
			"genre":           "Synthpop",
			"isExplicit":      "false",
			"featuredArtists": `["` + guest.ID + `"]`,
		},
		filePart{field: "audio", filename: "drive.mp3", contentType: "audio/mpeg", body: "ID3"},
		filePart{field: "cover", filename: "drive.jpg", contentType: "image/jpeg", body: "jpg"},
	)
	rec := serve(env.handler.Songs, asUser(req, admin))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeBody[songResponse](t, rec)
	song := created.Song
	if created.Message != "Song created successfully" || !song.InAlbum(album.ID) || song.Duration != 215 {
		t.Fatalf("unexpected song %+v", created)
	}
	if !strings.HasPrefix(song.AudioURL, "http://media.test/media/"+media.FolderSongs+"/") {
		t.Fatalf("expected audio in songs folder, got %q", song.AudioURL)
	}
	if !strings.HasPrefix(song.CoverImage, "http://media.test/media/"+media.FolderCovers+"/") {
		t.Fatalf("expected cover in covers folder, got %q", song.CoverImage)
	}
	if len(song.FeaturedArtists) != 1 || song.FeaturedArtists[0] != guest.ID {
		t.Fatalf("unexpected featured artists %v", song.FeaturedArtists)
	}
	if left := stagedFiles(t, env.intake); len(left) != 0 {
		t.Fatalf("expected staged files to be removed, left %v", left)
	}

	owner, err := env.store.GetArtist(ctx, artist.ID)
	if err != nil {
		t.Fatalf("GetArtist: %v", err)
	}
	if contains(owner.Songs, song.ID) != 1 {
		t.Fatalf("expected song exactly once in artist songs, got %v", owner.Songs)
	}
	stored, err := env.store.GetAlbum(ctx, album.ID)
	if err != nil {
		t.Fatalf("GetAlbum: %v", err)
	}
	if contains(stored.Songs, song.ID) != 1 {
		t.Fatalf("expected song exactly once in album songs, got %v", stored.Songs)
	}
}

func TestCreateSongChecksInOrder(t *testing.T) {
	env := newTestHandler(t)
	admin := env.admin(t)
	artist := env.artist(t, "Nova")
	audio := filePart{field: "audio", filename: "drive.mp3", contentType: "audio/mpeg", body: "ID3"}

	cases := []struct {
		name    string
		fields  map[string]string
		files   []filePart
		status  int
		message string
	}{
		{"unknown artist", map[string]string{"title": "T", "artistId": "nobody", "duration": "10"}, []filePart{audio}, http.StatusNotFound, "Artist not found"},
		{"unknown album", map[string]string{"title": "T", "artistId": artist.ID, "albumId": "nothing", "duration": "10"}, []filePart{audio}, http.StatusNotFound, "Album not found"},
		{"missing audio", map[string]string{"title": "T", "artistId": artist.ID, "duration": "10"}, nil, http.StatusBadRequest, msgAudioRequired},
		{"missing duration", map[string]string{"title": "T", "artistId": artist.ID}, []filePart{audio}, http.StatusBadRequest, "Duration is required"},
		{"bad duration", map[string]string{"title": "T", "artistId": artist.ID, "duration": "long"}, []filePart{audio}, http.StatusBadRequest, "duration must be a whole number"},
		{"unknown featured artist", map[string]string{"title": "T", "artistId": artist.ID, "duration": "10", "featuredArtists": `["ghost"]`}, []filePart{audio}, http.StatusNotFound, "Featured artist not found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := multipartRequest(t, http.MethodPost, "/api/songs", tc.fields, tc.files...)
			rec := serve(env.handler.Songs, asUser(req, admin))
			expectError(t, rec, tc.status, tc.message)
			if left := stagedFiles(t, env.intake); len(left) != 0 {
				t.Fatalf("expected staged files to be removed, left %v", left)
			}
		})
	}
}

func TestUpdateSongMovesAlbum(t *testing.T) {
	env := newTestHandler(t)
	admin := env.admin(t)
	ctx := context.Background()
	artist := env.artist(t, "Nova")
	first := createAlbumFixture(t, env, artist.ID, "First Light")
	second := createAlbumFixture(t, env, artist.ID, "Second Wind")
	song := createSongFixture(t, env, artist.ID, first.ID, "Opening")

	rec := serve(env.handler.SongByID, asUser(jsonRequest(t, http.MethodPut, "/api/songs/"+song.ID, map[string]any{
		"albumId": second.ID, "plays": 7, "isExplicit": true,
	}), admin))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	updated := decodeBody[songResponse](t, rec).Song
	if !updated.InAlbum(second.ID) || updated.Plays != 7 || !updated.IsExplicit {
		t.Fatalf("unexpected update %+v", updated)
	}
	from, _ := env.store.GetAlbum(ctx, first.ID)
	to, _ := env.store.GetAlbum(ctx, second.ID)
	if contains(from.Songs, song.ID) != 0 || contains(to.Songs, song.ID) != 1 {
		t.Fatalf("expected back-reference to move, from=%v to=%v", from.Songs, to.Songs)
	}

	rec = serve(env.handler.SongByID, asUser(jsonRequest(t, http.MethodPut, "/api/songs/"+song.ID, map[string]any{"albumId": ""}), admin))
	if rec.Code != http.StatusOK || decodeBody[songResponse](t, rec).Song.AlbumID != nil {
		t.Fatalf("expected empty album id to detach, got %d %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), `"album"`) {
		t.Fatalf("detached song must omit album: %s", rec.Body.String())
	}

	rec = serve(env.handler.SongByID, asUser(jsonRequest(t, http.MethodPut, "/api/songs/"+song.ID, map[string]any{"albumId": "nothing"}), admin))
	expectError(t, rec, http.StatusNotFound, "Album not found")
}

func TestSongFeedsAndListing(t *testing.T) {
	env := newTestHandler(t)
	ctx := context.Background()
	artist := env.artist(t, "Nova")
	quiet := createSongFixture(t, env, artist.ID, "", "Quiet")
	loud := createSongFixture(t, env, artist.ID, "", "Loud")
	plays := 99
	if _, err := env.store.UpdateSong(ctx, loud.ID, storage.SongPatch{Plays: &plays}); err != nil {
		t.Fatalf("UpdateSong: %v", err)
	}

	rec := serve(env.handler.SongByID, httptest.NewRequest(http.MethodGet, "/api/songs/top?limit=1", nil))
	top := decodeBody[songFeedResponse](t, rec)
	if rec.Code != http.StatusOK || len(top.Songs) != 1 || top.Songs[0].ID != loud.ID {
		t.Fatalf("expected most played song first, got %d %+v", rec.Code, top)
	}

	rec = serve(env.handler.SongByID, httptest.NewRequest(http.MethodGet, "/api/songs/new-releases", nil))
	if rec.Code != http.StatusOK || len(decodeBody[songFeedResponse](t, rec).Songs) != 2 {
		t.Fatalf("unexpected new releases %d %s", rec.Code, rec.Body.String())
	}

	for _, search := range []string{"QUIET", "quiet"} {
		rec = serve(env.handler.Songs, httptest.NewRequest(http.MethodGet, "/api/songs?search="+search, nil))
		page := decodeBody[songListResponse](t, rec)
		if page.TotalSongs != 1 || page.Songs[0].ID != quiet.ID {
			t.Fatalf("search %q: unexpected page %+v", search, page)
		}
	}

	rec = serve(env.handler.SongByID, httptest.NewRequest(http.MethodGet, "/api/songs/"+quiet.ID, nil))
	if rec.Code != http.StatusOK || decodeBody[songResponse](t, rec).Song.ID != quiet.ID {
		t.Fatalf("unexpected get %d %s", rec.Code, rec.Body.String())
	}
}

func TestDeleteSongRemovesBackReferences(t *testing.T) {
	env := newTestHandler(t)
	admin := env.admin(t)
	ctx := context.Background()
	artist := env.artist(t, "Nova")
	album := createAlbumFixture(t, env, artist.ID, "First Light")
	song := createSongFixture(t, env, artist.ID, album.ID, "Opening")

	rec := serve(env.handler.SongByID, asUser(httptest.NewRequest(http.MethodDelete, "/api/songs/"+song.ID, nil), admin))
	if rec.Code != http.StatusOK || decodeBody[messageResponse](t, rec).Message != "Song deleted successfully" {
		t.Fatalf("unexpected delete %d %s", rec.Code, rec.Body.String())
	}
	owner, _ := env.store.GetArtist(ctx, artist.ID)
	stored, _ := env.store.GetAlbum(ctx, album.ID)
	if contains(owner.Songs, song.ID) != 0 || contains(stored.Songs, song.ID) != 0 {
		t.Fatalf("expected song removed from back-references, artist=%v album=%v", owner.Songs, stored.Songs)
	}

	rec = serve(env.handler.SongByID, asUser(httptest.NewRequest(http.MethodDelete, "/api/songs/"+song.ID, nil), admin))
	expectError(t, rec, http.StatusNotFound, "Song not found")
}
