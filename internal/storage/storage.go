package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"soundcrate/internal/apperr"
	"soundcrate/internal/models"
)

type dataset struct {
	Users   map[string]models.User   `json:"users"`
	Artists map[string]models.Artist `json:"artists"`
	Albums  map[string]models.Album  `json:"albums"`
	Songs   map[string]models.Song   `json:"songs"`
}

// storedUser is a user as written to the store file, hash included.
type storedUser struct {
	models.User
	PasswordHash string `json:"passwordHash,omitempty"`
}

type datasetFile struct {
	Users   map[string]storedUser    `json:"users"`
	Artists map[string]models.Artist `json:"artists"`
	Albums  map[string]models.Album  `json:"albums"`
	Songs   map[string]models.Song   `json:"songs"`
}

func (d dataset) MarshalJSON() ([]byte, error) {
	file := datasetFile{
		Users:   make(map[string]storedUser, len(d.Users)),
		Artists: d.Artists,
		Albums:  d.Albums,
		Songs:   d.Songs,
	}
	for id, user := range d.Users {
		file.Users[id] = storedUser{User: user, PasswordHash: user.PasswordHash}
	}
	return json.Marshal(file)
}

func (d *dataset) UnmarshalJSON(data []byte) error {
	var file datasetFile
	if err := json.Unmarshal(data, &file); err != nil {
		return err
	}
	d.Users = make(map[string]models.User, len(file.Users))
	for id, stored := range file.Users {
		user := stored.User
		user.PasswordHash = stored.PasswordHash
		d.Users[id] = user
	}
	d.Artists, d.Albums, d.Songs = file.Artists, file.Albums, file.Songs
	return nil
}

// Storage is the JSON file backed repository. Every mutation runs against a
// cloned dataset which replaces the live one only after it has been written
// to disk, so a cascade is either fully applied or not applied at all.
type Storage struct {
	mu       sync.RWMutex
	filePath string
	data     dataset
	// persistOverride allows tests to intercept persist operations.
	persistOverride func(dataset) error
	now             func() time.Time
	logger          *slog.Logger
}

func newDataset() dataset {
	return dataset{
		Users:   make(map[string]models.User),
		Artists: make(map[string]models.Artist),
		Albums:  make(map[string]models.Album),
		Songs:   make(map[string]models.Song),
	}
}

func (d *dataset) ensureInitialized() {
	if d.Users == nil {
		d.Users = make(map[string]models.User)
	}
	if d.Artists == nil {
		d.Artists = make(map[string]models.Artist)
	}
	if d.Albums == nil {
		d.Albums = make(map[string]models.Album)
	}
	if d.Songs == nil {
		d.Songs = make(map[string]models.Song)
	}
}

// NewStorage opens the JSON store at path, creating an empty catalog when the
// file does not exist yet.
func NewStorage(path string, opts ...Option) (*Storage, error) {
	store := &Storage{
		filePath: path,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt.applyJSON(store)
		}
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Storage) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	file, err := os.Open(s.filePath)
	if errors.Is(err, os.ErrNotExist) {
		s.data = newDataset()
		return nil
	} else if err != nil {
		return fmt.Errorf("open store file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&s.data); err != nil {
		if errors.Is(err, io.EOF) {
			s.data = newDataset()
			return nil
		}
		return fmt.Errorf("decode store file: %w", err)
	}
	s.data.ensureInitialized()
	return nil
}

func (s *Storage) persistDataset(data dataset) error {
	if s.persistOverride != nil {
		if err := s.persistOverride(data); err != nil {
			return err
		}
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "store-*.json")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}
	tmpPath := tmpFile.Name()
	success := false
	defer func() {
		if !success {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encode store file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("flush store file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp store file: %w", err)
	}
	if err := os.Rename(tmpPath, s.filePath); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}
	success = true
	return nil
}

// mutate applies fn to a clone of the dataset and swaps it in after a
// successful persist. An error from fn or from the write discards the clone.
func (s *Storage) mutate(ctx context.Context, fn func(*dataset) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := cloneDataset(s.data)
	if err := fn(&updated); err != nil {
		return err
	}
	if err := s.persistDataset(updated); err != nil {
		return apperr.Wrap(apperr.KindUpstream, err, "")
	}
	s.data = updated
	return nil
}

// read runs fn under the read lock.
func (s *Storage) read(ctx context.Context, fn func(*dataset) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&s.data)
}

func cloneDataset(src dataset) dataset {
	clone := newDataset()
	for id, user := range src.Users {
		clone.Users[id] = cloneUser(user)
	}
	for id, artist := range src.Artists {
		clone.Artists[id] = cloneArtist(artist)
	}
	for id, album := range src.Albums {
		clone.Albums[id] = cloneAlbum(album)
	}
	for id, song := range src.Songs {
		clone.Songs[id] = cloneSong(song)
	}
	return clone
}

func cloneUser(user models.User) models.User {
	user.LikedSongs = cloneIDs(user.LikedSongs)
	user.LikedAlbums = cloneIDs(user.LikedAlbums)
	user.FollowedArtists = cloneIDs(user.FollowedArtists)
	user.FollowedPlaylists = cloneIDs(user.FollowedPlaylists)
	return user
}

func cloneArtist(artist models.Artist) models.Artist {
	artist.Genres = cloneIDs(artist.Genres)
	artist.Albums = cloneIDs(artist.Albums)
	artist.Songs = cloneIDs(artist.Songs)
	return artist
}

func cloneAlbum(album models.Album) models.Album {
	album.Songs = cloneIDs(album.Songs)
	return album
}

func cloneSong(song models.Song) models.Song {
	if song.AlbumID != nil {
		albumID := *song.AlbumID
		song.AlbumID = &albumID
	}
	song.FeaturedArtists = cloneIDs(song.FeaturedArtists)
	return song
}

// Ping verifies the data directory is still reachable.
func (s *Storage) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := os.Stat(filepath.Dir(s.filePath)); err != nil {
		return fmt.Errorf("stat data dir: %w", err)
	}
	return nil
}

func (s *Storage) Close(context.Context) error {
	return nil
}

// Snapshot returns a deep copy of the catalog for export.
func (s *Storage) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := cloneDataset(s.data)
	return &Snapshot{
		Users:   clone.Users,
		Artists: clone.Artists,
		Albums:  clone.Albums,
		Songs:   clone.Songs,
	}
}

// User operations

func (s *Storage) CreateUser(ctx context.Context, params CreateUserParams) (models.User, error) {
	params.normalize()
	if err := validateParams(&params); err != nil {
		return models.User{}, err
	}

	var created models.User
	err := s.mutate(ctx, func(data *dataset) error {
		for _, user := range data.Users {
			if user.Email == params.Email {
				return apperr.Conflict(msgUserExists)
			}
		}
		now := s.now()
		created = models.User{
			ID:                generateID(),
			Name:              params.Name,
			Email:             params.Email,
			PasswordHash:      params.PasswordHash,
			ProfilePicture:    params.ProfilePicture,
			IsAdmin:           params.IsAdmin,
			LikedSongs:        []string{},
			LikedAlbums:       []string{},
			FollowedArtists:   []string{},
			FollowedPlaylists: []string{},
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		data.Users[created.ID] = created
		return nil
	})
	if err != nil {
		return models.User{}, err
	}
	return cloneUser(created), nil
}

func (s *Storage) GetUser(ctx context.Context, id string) (models.User, error) {
	var found models.User
	err := s.read(ctx, func(data *dataset) error {
		user, ok := data.Users[id]
		if !ok {
			return apperr.NotFound(msgUserNotFound)
		}
		found = cloneUser(user)
		return nil
	})
	return found, err
}

func (s *Storage) FindUserByEmail(ctx context.Context, email string) (models.User, error) {
	normalized := models.NormalizeEmail(email)
	var found models.User
	err := s.read(ctx, func(data *dataset) error {
		for _, user := range data.Users {
			if user.Email == normalized {
				found = cloneUser(user)
				return nil
			}
		}
		return apperr.NotFound(msgUserNotFound)
	})
	return found, err
}

func (s *Storage) UpdateUser(ctx context.Context, id string, patch UserPatch) (models.User, error) {
	var updated models.User
	err := s.mutate(ctx, func(data *dataset) error {
		user, ok := data.Users[id]
		if !ok {
			return apperr.NotFound(msgUserNotFound)
		}
		merged, err := applyUserPatch(user, patch)
		if err != nil {
			return err
		}
		for otherID, other := range data.Users {
			if otherID != id && other.Email == merged.Email {
				return apperr.Conflict(msgUserExists)
			}
		}
		merged.UpdatedAt = s.now()
		data.Users[id] = merged
		updated = merged
		return nil
	})
	if err != nil {
		return models.User{}, err
	}
	return cloneUser(updated), nil
}
