package storage

import (
	"strings"
	"time"

	"soundcrate/internal/models"
)

// Client-facing messages shared by every backend.
const (
	msgUserExists     = "User already exists"
	msgArtistExists   = "Artist already exists"
	msgAlbumExists    = "Album with this title already exists"
	msgUserNotFound   = "User not found"
	msgArtistNotFound = "Artist not found"
	msgAlbumNotFound  = "Album not found"
	msgSongNotFound   = "Song not found"
	msgFeaturedArtist = "Featured artist not found"
)

// CreateUserParams captures the attributes that can be set when creating a
// user. The password must already be hashed.
type CreateUserParams struct {
	Name           string `label:"Name" validate:"required"`
	Email          string `label:"Email" validate:"required,email"`
	PasswordHash   string `label:"Password" validate:"required"`
	ProfilePicture string
	IsAdmin        bool
}

func (p *CreateUserParams) normalize() {
	p.Name = strings.TrimSpace(p.Name)
	p.Email = models.NormalizeEmail(p.Email)
	p.ProfilePicture = strings.TrimSpace(p.ProfilePicture)
	if p.ProfilePicture == "" {
		p.ProfilePicture = models.DefaultProfilePicture
	}
}

// UserPatch describes the mutable fields of a user. Nil fields keep their
// stored value.
type UserPatch struct {
	Name           *string
	Email          *string
	PasswordHash   *string
	ProfilePicture *string
	IsAdmin        *bool
}

// CreateArtistParams captures a new artist.
type CreateArtistParams struct {
	Name       string   `label:"Name" validate:"required"`
	Bio        string   `label:"Bio" validate:"required"`
	Genres     []string `label:"Genres" validate:"min=1"`
	Image      string
	IsVerified bool
}

func (p *CreateArtistParams) normalize() {
	p.Name = strings.TrimSpace(p.Name)
	p.Bio = strings.TrimSpace(p.Bio)
	p.Genres = normalizeGenres(p.Genres)
	p.Image = strings.TrimSpace(p.Image)
	if p.Image == "" {
		p.Image = models.DefaultArtistImage
	}
}

// ArtistPatch describes the mutable fields of an artist.
type ArtistPatch struct {
	Name       *string
	Bio        *string
	Genres     *[]string
	Image      *string
	IsVerified *bool
	Followers  *int
}

// CreateAlbumParams captures a new album owned by ArtistID.
type CreateAlbumParams struct {
	Title       string    `label:"Title" validate:"required,length=3:100"`
	ArtistID    string    `label:"Artist" validate:"required"`
	ReleaseDate time.Time `label:"Released date" validate:"required"`
	Genre       string    `label:"Genre" validate:"required"`
	Description string    `label:"Description" validate:"required,length=10:200"`
	CoverImage  string
	IsExplicit  bool
}

func (p *CreateAlbumParams) normalize() {
	p.Title = strings.TrimSpace(p.Title)
	p.ArtistID = strings.TrimSpace(p.ArtistID)
	p.Genre = strings.TrimSpace(p.Genre)
	p.Description = strings.TrimSpace(p.Description)
	p.CoverImage = strings.TrimSpace(p.CoverImage)
	if p.CoverImage == "" {
		p.CoverImage = models.DefaultAlbumCover
	}
	p.ReleaseDate = p.ReleaseDate.UTC()
}

// AlbumPatch describes the mutable fields of an album. Album membership is
// changed through AddSongsToAlbum and RemoveSongFromAlbum.
type AlbumPatch struct {
	Title       *string
	ReleaseDate *time.Time
	Genre       *string
	Description *string
	CoverImage  *string
	IsExplicit  *bool
}

// albumPatchCheck re-validates the merged album so an update cannot produce a
// record that create would reject.
type albumPatchCheck struct {
	Title       string `label:"Title" validate:"required,length=3:100"`
	Description string `label:"Description" validate:"required,length=10:200"`
}

// CreateSongParams captures a new song. AlbumID is optional.
type CreateSongParams struct {
	Title           string `label:"Title" validate:"required"`
	ArtistID        string `label:"Artist" validate:"required"`
	AlbumID         string
	Duration        int    `label:"Duration" validate:"required,min=1"`
	AudioURL        string `label:"Audio url" validate:"required"`
	CoverImage      string
	ReleaseDate     time.Time
	Genre           string
	IsExplicit      bool
	FeaturedArtists []string
}

func (p *CreateSongParams) normalize(now time.Time) {
	p.Title = strings.TrimSpace(p.Title)
	p.ArtistID = strings.TrimSpace(p.ArtistID)
	p.AlbumID = strings.TrimSpace(p.AlbumID)
	p.AudioURL = strings.TrimSpace(p.AudioURL)
	p.Genre = strings.TrimSpace(p.Genre)
	p.CoverImage = strings.TrimSpace(p.CoverImage)
	if p.CoverImage == "" {
		p.CoverImage = models.DefaultSongCover
	}
	if p.ReleaseDate.IsZero() {
		p.ReleaseDate = now
	}
	p.ReleaseDate = p.ReleaseDate.UTC()
	p.FeaturedArtists = uniqueIDs(p.FeaturedArtists)
}

// SongPatch describes the mutable fields of a song. A non-nil AlbumID moves
// the song: an empty value detaches it from its album, any other value
// attaches it to that album.
type SongPatch struct {
	Title           *string
	AlbumID         *string
	Duration        *int
	AudioURL        *string
	CoverImage      *string
	ReleaseDate     *time.Time
	Genre           *string
	IsExplicit      *bool
	Plays           *int
	FeaturedArtists *[]string
}

type songPatchCheck struct {
	Title    string `label:"Title" validate:"required"`
	Duration int    `label:"Duration" validate:"required,min=1"`
	AudioURL string `label:"Audio url" validate:"required"`
}

// Snapshot is a complete copy of a catalog keyed by record id. It is produced
// by the JSON store and replayed into the Postgres or Mongo repositories.
type Snapshot struct {
	Users   map[string]models.User   `json:"users"`
	Artists map[string]models.Artist `json:"artists"`
	Albums  map[string]models.Album  `json:"albums"`
	Songs   map[string]models.Song   `json:"songs"`
}

// SnapshotCounts summarises the size of each collection in a Snapshot.
type SnapshotCounts struct {
	Users   int
	Artists int
	Albums  int
	Songs   int
}

func normalizeGenres(input []string) []string {
	out := make([]string, 0, len(input))
	for _, genre := range input {
		if trimmed := strings.TrimSpace(genre); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// SplitGenres turns a comma separated genre list into trimmed tags.
func SplitGenres(csv string) []string {
	return normalizeGenres(strings.Split(csv, ","))
}
