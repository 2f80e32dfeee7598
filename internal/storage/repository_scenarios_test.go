package storage

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"testing"
	"time"

	"soundcrate/internal/apperr"
	"soundcrate/internal/query"
)

// RepositoryFactory constructs a repository backed by the JSON store, Postgres
// or Mongo for cross-datastore scenario assertions.
type RepositoryFactory func(t *testing.T, opts ...Option) (Repository, func(), error)

func runRepository(t *testing.T, factory RepositoryFactory, opts ...Option) Repository {
	t.Helper()
	if factory == nil {
		t.Fatal("repository factory is required")
	}
	repo, cleanup, err := factory(t, opts...)
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	if repo == nil {
		t.Fatal("repository factory returned nil repository")
	}
	if cleanup != nil {
		t.Cleanup(cleanup)
	}
	return repo
}

// runRepositoryScenarios replays every scenario against factory.
func runRepositoryScenarios(t *testing.T, factory RepositoryFactory) {
	scenarios := []struct {
		name string
		run  func(*testing.T, RepositoryFactory)
	}{
		{"CreateThenGet", RunRepositoryCreateThenGet},
		{"SongBackReference", RunRepositorySongBackReference},
		{"ArtistCascade", RunRepositoryArtistCascade},
		{"AlbumDeleteUnsetsSongs", RunRepositoryAlbumDeleteUnsetsSongs},
		{"Pagination", RunRepositoryPagination},
		{"SearchIgnoresCase", RunRepositorySearchIgnoresCase},
		{"Conflicts", RunRepositoryConflicts},
		{"AlbumMembership", RunRepositoryAlbumMembership},
		{"PatchPresence", RunRepositoryPatchPresence},
		{"Validation", RunRepositoryValidation},
		{"Orderings", RunRepositoryOrderings},
		{"Users", RunRepositoryUsers},
	}
	for _, scenario := range scenarios {
		scenario := scenario
		t.Run(scenario.name, func(t *testing.T) {
			scenario.run(t, factory)
		})
	}
}

func RunRepositoryCreateThenGet(t *testing.T, factory RepositoryFactory) {
	repo := runRepository(t, factory)
	ctx := context.Background()

	artist := mustCreateArtist(t, repo, "Nova", "Pop", "Synth")
	album := mustCreateAlbum(t, repo, artist.ID, "First Light", "Pop", time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC))
	song := mustCreateSong(t, repo, artist.ID, album.ID, "Opening")

	gotArtist, err := repo.GetArtist(ctx, artist.ID)
	if err != nil {
		t.Fatalf("GetArtist: %v", err)
	}
	if gotArtist.Name != artist.Name || gotArtist.Bio != artist.Bio || !reflect.DeepEqual(gotArtist.Genres, []string{"Pop", "Synth"}) {
		t.Fatalf("unexpected artist %+v", gotArtist)
	}
	if !gotArtist.CreatedAt.Equal(artist.CreatedAt) {
		t.Fatalf("expected createdAt %v, got %v", artist.CreatedAt, gotArtist.CreatedAt)
	}

	gotAlbum, err := repo.GetAlbum(ctx, album.ID)
	if err != nil {
		t.Fatalf("GetAlbum: %v", err)
	}
	if gotAlbum.Title != "First Light" || gotAlbum.ArtistID != artist.ID || !gotAlbum.ReleaseDate.Equal(album.ReleaseDate) {
		t.Fatalf("unexpected album %+v", gotAlbum)
	}
	if gotAlbum.CoverImage == "" {
		t.Fatal("expected default album cover")
	}

	gotSong, err := repo.GetSong(ctx, song.ID)
	if err != nil {
		t.Fatalf("GetSong: %v", err)
	}
	if gotSong.Title != "Opening" || gotSong.Duration != 180 || !gotSong.InAlbum(album.ID) {
		t.Fatalf("unexpected song %+v", gotSong)
	}

	if _, err := repo.GetSong(ctx, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found for missing song, got %v", err)
	}
}

func RunRepositorySongBackReference(t *testing.T, factory RepositoryFactory) {
	repo := runRepository(t, factory)
	ctx := context.Background()

	artist := mustCreateArtist(t, repo, "Echo")
	album := mustCreateAlbum(t, repo, artist.ID, "Reflections", "Rock", time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC))
	song := mustCreateSong(t, repo, artist.ID, album.ID, "Mirror")

	if _, err := repo.AddSongsToAlbum(ctx, album.ID, []string{song.ID, song.ID}); err != nil {
		t.Fatalf("AddSongsToAlbum: %v", err)
	}

	gotArtist, err := repo.GetArtist(ctx, artist.ID)
	if err != nil {
		t.Fatalf("GetArtist: %v", err)
	}
	if n := countID(gotArtist.Songs, song.ID); n != 1 {
		t.Fatalf("expected song once in artist.songs, got %d in %v", n, gotArtist.Songs)
	}
	if n := countID(gotArtist.Albums, album.ID); n != 1 {
		t.Fatalf("expected album once in artist.albums, got %d in %v", n, gotArtist.Albums)
	}
	gotAlbum, err := repo.GetAlbum(ctx, album.ID)
	if err != nil {
		t.Fatalf("GetAlbum: %v", err)
	}
	if n := countID(gotAlbum.Songs, song.ID); n != 1 {
		t.Fatalf("expected song once in album.songs, got %d in %v", n, gotAlbum.Songs)
	}
}

func RunRepositoryArtistCascade(t *testing.T, factory RepositoryFactory) {
	repo := runRepository(t, factory)
	ctx := context.Background()

	doomed := mustCreateArtist(t, repo, "Doomed")
	survivor := mustCreateArtist(t, repo, "Survivor")
	album := mustCreateAlbum(t, repo, doomed.ID, "Last Words", "Pop", time.Date(2021, 3, 3, 0, 0, 0, 0, time.UTC))
	single := mustCreateSong(t, repo, doomed.ID, "", "Single")
	track := mustCreateSong(t, repo, doomed.ID, album.ID, "Track")

	collab, err := repo.CreateSong(ctx, CreateSongParams{
		Title:           "Collab",
		ArtistID:        survivor.ID,
		Duration:        200,
		AudioURL:        "https://cdn.example.com/collab.mp3",
		FeaturedArtists: []string{doomed.ID},
	})
	if err != nil {
		t.Fatalf("CreateSong collab: %v", err)
	}

	if err := repo.DeleteArtist(ctx, doomed.ID); err != nil {
		t.Fatalf("DeleteArtist: %v", err)
	}

	if _, err := repo.GetArtist(ctx, doomed.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected artist gone, got %v", err)
	}
	if _, err := repo.GetAlbum(ctx, album.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected album gone, got %v", err)
	}
	for _, id := range []string{single.ID, track.ID} {
		if _, err := repo.GetSong(ctx, id); !errors.Is(err, apperr.ErrNotFound) {
			t.Fatalf("expected song %s gone, got %v", id, err)
		}
	}

	byArtist := query.New(query.SortReleaseDate)
	byArtist.ArtistID = doomed.ID
	songs, err := repo.ListSongs(ctx, byArtist)
	if err != nil {
		t.Fatalf("ListSongs: %v", err)
	}
	albums, err := repo.ListAlbums(ctx, byArtist)
	if err != nil {
		t.Fatalf("ListAlbums: %v", err)
	}
	if songs.TotalCount != 0 || albums.TotalCount != 0 {
		t.Fatalf("expected no records referencing deleted artist, got %d songs and %d albums", songs.TotalCount, albums.TotalCount)
	}

	gotCollab, err := repo.GetSong(ctx, collab.ID)
	if err != nil {
		t.Fatalf("GetSong collab: %v", err)
	}
	if len(gotCollab.FeaturedArtists) != 0 {
		t.Fatalf("expected featured artist removed, got %v", gotCollab.FeaturedArtists)
	}
}

func RunRepositoryAlbumDeleteUnsetsSongs(t *testing.T, factory RepositoryFactory) {
	repo := runRepository(t, factory)
	ctx := context.Background()

	a1 := mustCreateArtist(t, repo, "A1")
	alb1 := mustCreateAlbum(t, repo, a1.ID, "Alb1 Sessions", "Jazz", time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC))
	s1 := mustCreateSong(t, repo, a1.ID, alb1.ID, "S1")

	if err := repo.DeleteAlbum(ctx, alb1.ID); err != nil {
		t.Fatalf("DeleteAlbum: %v", err)
	}

	gotSong, err := repo.GetSong(ctx, s1.ID)
	if err != nil {
		t.Fatalf("GetSong: %v", err)
	}
	if gotSong.AlbumID != nil {
		t.Fatalf("expected song album unset, got %q", *gotSong.AlbumID)
	}
	gotArtist, err := repo.GetArtist(ctx, a1.ID)
	if err != nil {
		t.Fatalf("GetArtist: %v", err)
	}
	if countID(gotArtist.Albums, alb1.ID) != 0 {
		t.Fatalf("expected album removed from artist, got %v", gotArtist.Albums)
	}
	if countID(gotArtist.Songs, s1.ID) != 1 {
		t.Fatalf("expected song to remain on artist, got %v", gotArtist.Songs)
	}
	if err := repo.DeleteAlbum(ctx, alb1.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func RunRepositoryPagination(t *testing.T, factory RepositoryFactory) {
	repo := runRepository(t, factory)
	ctx := context.Background()

	artist := mustCreateArtist(t, repo, "Prolific")
	const total = 23
	for i := 0; i < total; i++ {
		mustCreateSong(t, repo, artist.ID, "", fmt.Sprintf("Track %02d", i))
	}

	const limit = 5
	seen := make(map[string]bool)
	sum := 0
	for page := 1; page <= 6; page++ {
		q := query.New(query.SortReleaseDate)
		q.Page = page
		q.Limit = limit
		env, err := repo.ListSongs(ctx, q)
		if err != nil {
			t.Fatalf("ListSongs page %d: %v", page, err)
		}
		if env.TotalCount != total {
			t.Fatalf("page %d: expected total %d, got %d", page, total, env.TotalCount)
		}
		if env.TotalPages != 5 {
			t.Fatalf("page %d: expected 5 pages, got %d", page, env.TotalPages)
		}
		if page == 6 && len(env.Items) != 0 {
			t.Fatalf("expected empty page past the end, got %d items", len(env.Items))
		}
		for _, song := range env.Items {
			if seen[song.ID] {
				t.Fatalf("song %s appeared on more than one page", song.ID)
			}
			seen[song.ID] = true
		}
		sum += len(env.Items)
	}
	if sum != total {
		t.Fatalf("expected %d items across pages, got %d", total, sum)
	}
}

func RunRepositorySearchIgnoresCase(t *testing.T, factory RepositoryFactory) {
	repo := runRepository(t, factory)
	ctx := context.Background()

	artist := mustCreateArtist(t, repo, "Caser", "Pop", "Electro")
	released := time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC)
	mustCreateAlbum(t, repo, artist.ID, "Popular Demand", "Rock", released)
	mustCreateAlbum(t, repo, artist.ID, "Quiet Hours", "Pop", released)
	mustCreateAlbum(t, repo, artist.ID, "Heavy 100%", "Metal", released)

	ids := func(search string) []string {
		t.Helper()
		q := query.New(query.SortReleaseDate)
		q.Search = search
		env, err := repo.ListAlbums(ctx, q)
		if err != nil {
			t.Fatalf("ListAlbums %q: %v", search, err)
		}
		out := make([]string, 0, len(env.Items))
		for _, album := range env.Items {
			out = append(out, album.Title)
		}
		sort.Strings(out)
		return out
	}

	upper, lower := ids("POP"), ids("pop")
	if !reflect.DeepEqual(upper, lower) {
		t.Fatalf("expected identical results, got %v and %v", upper, lower)
	}
	if !reflect.DeepEqual(lower, []string{"Popular Demand", "Quiet Hours"}) {
		t.Fatalf("unexpected search results %v", lower)
	}
	if got := ids("100%"); !reflect.DeepEqual(got, []string{"Heavy 100%"}) {
		t.Fatalf("expected literal wildcard match, got %v", got)
	}
	if got := ids("%"); !reflect.DeepEqual(got, []string{"Heavy 100%"}) {
		t.Fatalf("expected escaped wildcard, got %v", got)
	}

	byGenre := query.New(query.SortReleaseDate)
	byGenre.Genre = "pop"
	env, err := repo.ListAlbums(ctx, byGenre)
	if err != nil {
		t.Fatalf("ListAlbums genre: %v", err)
	}
	if env.TotalCount != 1 || env.Items[0].Title != "Quiet Hours" {
		t.Fatalf("expected exact genre match, got %+v", env.Items)
	}

	artistGenre := query.New(query.SortFollowers)
	artistGenre.Genre = "ELECTRO"
	artists, err := repo.ListArtists(ctx, artistGenre)
	if err != nil {
		t.Fatalf("ListArtists: %v", err)
	}
	if artists.TotalCount != 1 || artists.Items[0].ID != artist.ID {
		t.Fatalf("expected artist matched on any genre tag, got %+v", artists.Items)
	}
}

func RunRepositoryConflicts(t *testing.T, factory RepositoryFactory) {
	repo := runRepository(t, factory)
	ctx := context.Background()

	artist := mustCreateArtist(t, repo, "Twin")
	other := mustCreateArtist(t, repo, "Other")
	if _, err := repo.CreateArtist(ctx, CreateArtistParams{Name: " Twin ", Bio: "again", Genres: []string{"Pop"}}); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected artist conflict, got %v", err)
	}

	released := time.Date(2019, 9, 9, 0, 0, 0, 0, time.UTC)
	mustCreateAlbum(t, repo, artist.ID, "Same Title", "Pop", released)
	second := mustCreateAlbum(t, repo, other.ID, "Different", "Pop", released)
	_, err := repo.CreateAlbum(ctx, CreateAlbumParams{
		Title: "Same Title", ArtistID: other.ID, ReleaseDate: released, Genre: "Pop", Description: "A second pressing",
	})
	if !errors.Is(err, apperr.ErrConflict) || apperr.MessageOf(err) != "Album with this title already exists" {
		t.Fatalf("expected album conflict, got %v", err)
	}

	rename := "Same Title"
	if _, err := repo.UpdateAlbum(ctx, second.ID, AlbumPatch{Title: &rename}); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected rename conflict, got %v", err)
	}
	newName := "Twin"
	if _, err := repo.UpdateArtist(ctx, other.ID, ArtistPatch{Name: &newName}); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected artist rename conflict, got %v", err)
	}

	if _, err := repo.CreateUser(ctx, CreateUserParams{Name: "Ann", Email: "ann@example.com", PasswordHash: "hash"}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if _, err := repo.CreateUser(ctx, CreateUserParams{Name: "Ann", Email: " ANN@example.com", PasswordHash: "hash"}); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected email conflict, got %v", err)
	}
}

func RunRepositoryAlbumMembership(t *testing.T, factory RepositoryFactory) {
	repo := runRepository(t, factory)
	ctx := context.Background()

	artist := mustCreateArtist(t, repo, "Mover")
	released := time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)
	from := mustCreateAlbum(t, repo, artist.ID, "From Here", "Pop", released)
	to := mustCreateAlbum(t, repo, artist.ID, "To There", "Pop", released)
	song := mustCreateSong(t, repo, artist.ID, from.ID, "Traveller")
	loose := mustCreateSong(t, repo, artist.ID, "", "Loose")

	if _, err := repo.AddSongsToAlbum(ctx, to.ID, nil); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error for empty ids, got %v", err)
	}
	if _, err := repo.AddSongsToAlbum(ctx, to.ID, []string{song.ID, "missing"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found for missing song, got %v", err)
	}

	updated, err := repo.AddSongsToAlbum(ctx, to.ID, []string{song.ID, loose.ID})
	if err != nil {
		t.Fatalf("AddSongsToAlbum: %v", err)
	}
	if countID(updated.Songs, song.ID) != 1 || countID(updated.Songs, loose.ID) != 1 {
		t.Fatalf("expected both songs on target album, got %v", updated.Songs)
	}
	gotFrom, err := repo.GetAlbum(ctx, from.ID)
	if err != nil {
		t.Fatalf("GetAlbum from: %v", err)
	}
	if countID(gotFrom.Songs, song.ID) != 0 {
		t.Fatalf("expected song removed from previous album, got %v", gotFrom.Songs)
	}

	if _, err := repo.RemoveSongFromAlbum(ctx, from.ID, song.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found removing a non-member, got %v", err)
	}
	removed, err := repo.RemoveSongFromAlbum(ctx, to.ID, song.ID)
	if err != nil {
		t.Fatalf("RemoveSongFromAlbum: %v", err)
	}
	if countID(removed.Songs, song.ID) != 0 {
		t.Fatalf("expected song removed, got %v", removed.Songs)
	}
	gotSong, err := repo.GetSong(ctx, song.ID)
	if err != nil {
		t.Fatalf("GetSong: %v", err)
	}
	if gotSong.AlbumID != nil {
		t.Fatalf("expected album unset after removal, got %q", *gotSong.AlbumID)
	}
}

func RunRepositoryPatchPresence(t *testing.T, factory RepositoryFactory) {
	repo := runRepository(t, factory)
	ctx := context.Background()

	artist := mustCreateArtist(t, repo, "Patcher")
	followers := 12
	if _, err := repo.UpdateArtist(ctx, artist.ID, ArtistPatch{Followers: &followers}); err != nil {
		t.Fatalf("UpdateArtist followers: %v", err)
	}
	zero := 0
	notVerified := false
	updatedArtist, err := repo.UpdateArtist(ctx, artist.ID, ArtistPatch{Followers: &zero, IsVerified: &notVerified})
	if err != nil {
		t.Fatalf("UpdateArtist zero: %v", err)
	}
	if updatedArtist.Followers != 0 || updatedArtist.IsVerified {
		t.Fatalf("expected falsy values to overwrite, got %+v", updatedArtist)
	}
	if updatedArtist.Name != "Patcher" {
		t.Fatalf("expected absent name to be kept, got %q", updatedArtist.Name)
	}

	released := time.Date(2017, 7, 7, 0, 0, 0, 0, time.UTC)
	album := mustCreateAlbum(t, repo, artist.ID, "Patchwork", "Folk", released)
	explicit := true
	if _, err := repo.UpdateAlbum(ctx, album.ID, AlbumPatch{IsExplicit: &explicit}); err != nil {
		t.Fatalf("UpdateAlbum explicit: %v", err)
	}
	clean := false
	gotAlbum, err := repo.UpdateAlbum(ctx, album.ID, AlbumPatch{IsExplicit: &clean})
	if err != nil {
		t.Fatalf("UpdateAlbum clean: %v", err)
	}
	if gotAlbum.IsExplicit {
		t.Fatal("expected isExplicit false to overwrite")
	}
	short := "it"
	if _, err := repo.UpdateAlbum(ctx, album.ID, AlbumPatch{Title: &short}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected re-validation failure, got %v", err)
	}

	song := mustCreateSong(t, repo, artist.ID, "", "Drifter")
	target := album.ID
	moved, err := repo.UpdateSong(ctx, song.ID, SongPatch{AlbumID: &target})
	if err != nil {
		t.Fatalf("UpdateSong move: %v", err)
	}
	if !moved.InAlbum(album.ID) {
		t.Fatalf("expected song moved into album, got %+v", moved.AlbumID)
	}
	gotAlbum, err = repo.GetAlbum(ctx, album.ID)
	if err != nil {
		t.Fatalf("GetAlbum: %v", err)
	}
	if countID(gotAlbum.Songs, song.ID) != 1 {
		t.Fatalf("expected album back-reference, got %v", gotAlbum.Songs)
	}

	detach := ""
	detached, err := repo.UpdateSong(ctx, song.ID, SongPatch{AlbumID: &detach})
	if err != nil {
		t.Fatalf("UpdateSong detach: %v", err)
	}
	if detached.AlbumID != nil {
		t.Fatalf("expected song detached, got %q", *detached.AlbumID)
	}
	gotAlbum, err = repo.GetAlbum(ctx, album.ID)
	if err != nil {
		t.Fatalf("GetAlbum: %v", err)
	}
	if countID(gotAlbum.Songs, song.ID) != 0 {
		t.Fatalf("expected back-reference removed, got %v", gotAlbum.Songs)
	}

	missing := "missing"
	if _, err := repo.UpdateSong(ctx, song.ID, SongPatch{AlbumID: &missing}); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found moving to missing album, got %v", err)
	}
}

func RunRepositoryValidation(t *testing.T, factory RepositoryFactory) {
	repo := runRepository(t, factory)
	ctx := context.Background()

	_, err := repo.CreateArtist(ctx, CreateArtistParams{})
	if !errors.Is(err, apperr.ErrValidation) || apperr.MessageOf(err) != "Name, bio, and genres are required" {
		t.Fatalf("unexpected artist validation error %v", err)
	}

	artist := mustCreateArtist(t, repo, "Checker")
	released := time.Date(2016, 6, 6, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name   string
		params CreateAlbumParams
		want   string
	}{
		{
			name:   "short title",
			params: CreateAlbumParams{Title: "Hi", ArtistID: artist.ID, ReleaseDate: released, Genre: "Pop", Description: "Long enough text"},
			want:   "Title must be between 3 and 100 characters",
		},
		{
			name:   "short description",
			params: CreateAlbumParams{Title: "Valid Title", ArtistID: artist.ID, ReleaseDate: released, Genre: "Pop", Description: "short"},
			want:   "Description must be between 10 and 200 characters",
		},
		{
			name:   "missing before length",
			params: CreateAlbumParams{Title: "Hi", ArtistID: artist.ID, ReleaseDate: released},
			want:   "Genre and description are required",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := repo.CreateAlbum(ctx, tc.params)
			if !errors.Is(err, apperr.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if got := apperr.MessageOf(err); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}

	_, err = repo.CreateAlbum(ctx, CreateAlbumParams{
		Title: "Orphaned", ArtistID: "missing", ReleaseDate: released, Genre: "Pop", Description: "Nobody owns this",
	})
	if !errors.Is(err, apperr.ErrNotFound) || apperr.MessageOf(err) != "Artist not found" {
		t.Fatalf("expected artist not found, got %v", err)
	}

	_, err = repo.CreateSong(ctx, CreateSongParams{Title: "Ghost", ArtistID: "missing", Duration: 10, AudioURL: "https://cdn.example.com/ghost.mp3"})
	if !errors.Is(err, apperr.ErrNotFound) || apperr.MessageOf(err) != "Artist not found" {
		t.Fatalf("expected song artist not found, got %v", err)
	}
	_, err = repo.CreateSong(ctx, CreateSongParams{Title: "Lost", ArtistID: artist.ID, AlbumID: "missing", Duration: 10, AudioURL: "https://cdn.example.com/lost.mp3"})
	if !errors.Is(err, apperr.ErrNotFound) || apperr.MessageOf(err) != "Album not found" {
		t.Fatalf("expected song album not found, got %v", err)
	}
	_, err = repo.CreateSong(ctx, CreateSongParams{Title: "Guest", ArtistID: artist.ID, Duration: 10, AudioURL: "https://cdn.example.com/guest.mp3", FeaturedArtists: []string{"missing"}})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected featured artist not found, got %v", err)
	}

	byArtist := query.New(query.SortReleaseDate)
	byArtist.ArtistID = artist.ID
	songs, err := repo.ListSongs(ctx, byArtist)
	if err != nil {
		t.Fatalf("ListSongs: %v", err)
	}
	if songs.TotalCount != 0 {
		t.Fatalf("expected rejected songs not to be persisted, got %d", songs.TotalCount)
	}
}

func RunRepositoryOrderings(t *testing.T, factory RepositoryFactory) {
	repo := runRepository(t, factory)
	ctx := context.Background()

	artist := mustCreateArtist(t, repo, "Charts")
	first := mustCreateSong(t, repo, artist.ID, "", "First")
	second := mustCreateSong(t, repo, artist.ID, "", "Second")
	third := mustCreateSong(t, repo, artist.ID, "", "Third")

	for id, plays := range map[string]int{first.ID: 50, second.ID: 5, third.ID: 500} {
		plays := plays
		if _, err := repo.UpdateSong(ctx, id, SongPatch{Plays: &plays}); err != nil {
			t.Fatalf("UpdateSong plays: %v", err)
		}
	}

	titles := func(order query.Sort) []string {
		t.Helper()
		env, err := repo.ListSongs(ctx, query.New(order))
		if err != nil {
			t.Fatalf("ListSongs %s: %v", order, err)
		}
		out := make([]string, 0, len(env.Items))
		for _, song := range env.Items {
			out = append(out, song.Title)
		}
		return out
	}

	if got := titles(query.SortPlays); !reflect.DeepEqual(got, []string{"Third", "First", "Second"}) {
		t.Fatalf("unexpected plays order %v", got)
	}
	if got := titles(query.SortNewest); !reflect.DeepEqual(got, []string{"Third", "Second", "First"}) {
		t.Fatalf("unexpected newest order %v", got)
	}

	older := mustCreateAlbum(t, repo, artist.ID, "Older Album", "Pop", time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC))
	newer := mustCreateAlbum(t, repo, artist.ID, "Newer Album", "Pop", time.Date(2011, 1, 1, 0, 0, 0, 0, time.UTC))
	albums, err := repo.ListAlbums(ctx, query.New(query.SortReleaseDate))
	if err != nil {
		t.Fatalf("ListAlbums: %v", err)
	}
	if len(albums.Items) != 2 || albums.Items[0].ID != newer.ID || albums.Items[1].ID != older.ID {
		t.Fatalf("expected release date descending, got %+v", albums.Items)
	}
}

func RunRepositoryUsers(t *testing.T, factory RepositoryFactory) {
	repo := runRepository(t, factory)
	ctx := context.Background()

	user, err := repo.CreateUser(ctx, CreateUserParams{Name: "Bea", Email: " Bea@Example.com ", PasswordHash: "hash"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.Email != "bea@example.com" {
		t.Fatalf("expected normalised email, got %q", user.Email)
	}
	if user.IsAdmin {
		t.Fatal("expected regular user")
	}

	found, err := repo.FindUserByEmail(ctx, "BEA@example.com")
	if err != nil {
		t.Fatalf("FindUserByEmail: %v", err)
	}
	if found.ID != user.ID || found.PasswordHash != "hash" {
		t.Fatalf("unexpected user %+v", found)
	}

	admin := true
	name := "Beatrice"
	updated, err := repo.UpdateUser(ctx, user.ID, UserPatch{Name: &name, IsAdmin: &admin})
	if err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if updated.Name != "Beatrice" || !updated.IsAdmin || updated.Email != "bea@example.com" {
		t.Fatalf("unexpected update %+v", updated)
	}

	badEmail := "not-an-email"
	if _, err := repo.UpdateUser(ctx, user.ID, UserPatch{Email: &badEmail}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := repo.GetUser(ctx, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected user not found, got %v", err)
	}
}
