package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"soundcrate/internal/models"
)

func newTestStore(t *testing.T, extra ...Option) *Storage {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.json")
	opts := append([]Option{WithClock(newStepClock())}, extra...)
	store, err := NewStorage(path, opts...)
	if err != nil {
		t.Fatalf("NewStorage error: %v", err)
	}
	return store
}

func jsonRepositoryFactory(t *testing.T, opts ...Option) (Repository, func(), error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.json")
	defaults := []Option{WithClock(newStepClock())}
	store, err := NewStorage(path, append(defaults, opts...)...)
	if err != nil {
		return nil, nil, err
	}
	return store, func() {}, nil
}

// newStepClock returns a clock that advances one second per call so
// createdAt orderings are deterministic.
func newStepClock() func() time.Time {
	var mu sync.Mutex
	current := time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Second)
		return current
	}
}

func mustCreateArtist(t *testing.T, repo Repository, name string, genres ...string) models.Artist {
	t.Helper()
	if len(genres) == 0 {
		genres = []string{"Pop"}
	}
	artist, err := repo.CreateArtist(context.Background(), CreateArtistParams{
		Name:       name,
		Bio:        name + " makes records",
		Genres:     genres,
		IsVerified: true,
	})
	if err != nil {
		t.Fatalf("CreateArtist %s: %v", name, err)
	}
	return artist
}

func mustCreateAlbum(t *testing.T, repo Repository, artistID, title, genre string, released time.Time) models.Album {
	t.Helper()
	album, err := repo.CreateAlbum(context.Background(), CreateAlbumParams{
		Title:       title,
		ArtistID:    artistID,
		ReleaseDate: released,
		Genre:       genre,
		Description: "The " + title + " long player",
	})
	if err != nil {
		t.Fatalf("CreateAlbum %s: %v", title, err)
	}
	return album
}

func mustCreateSong(t *testing.T, repo Repository, artistID, albumID, title string) models.Song {
	t.Helper()
	song, err := repo.CreateSong(context.Background(), CreateSongParams{
		Title:    title,
		ArtistID: artistID,
		AlbumID:  albumID,
		Duration: 180,
		AudioURL: "https://cdn.example.com/" + title + ".mp3",
		Genre:    "Pop",
	})
	if err != nil {
		t.Fatalf("CreateSong %s: %v", title, err)
	}
	return song
}

func countID(ids []string, id string) int {
	n := 0
	for _, candidate := range ids {
		if candidate == id {
			n++
		}
	}
	return n
}
