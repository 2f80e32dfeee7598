package models

import (
	"strings"
	"time"
)

// Default media used when a record is created without an uploaded file.
const (
	DefaultArtistImage    = "https://cdn.pixabay.com/photo/2024/03/05/11/31/ai-generated-8614400_960_720.jpg"
	DefaultAlbumCover     = "https://cdn.pixabay.com/photo/2021/09/13/13/55/cover-6621485_1280.jpg"
	DefaultSongCover      = "https://cdn.pixabay.com/photo/2018/08/27/10/11/radio-cassette-3634616_960_720.png"
	DefaultProfilePicture = "https://cdn.pixabay.com/photo/2023/05/02/10/35/avatar-7964945_1280.png"
	DefaultPlaylistCover  = "https://cdn.pixabay.com/photo/2014/04/02/14/04/vinyl-306070_1280.png"
)

// User is an account holder. PasswordHash is never part of its JSON
// encoding; the JSON store persists it through its own record type.
type User struct {
	ID                string    `json:"id" bson:"_id"`
	Name              string    `json:"name" bson:"name"`
	Email             string    `json:"email" bson:"email"`
	PasswordHash      string    `json:"-" bson:"password"`
	ProfilePicture    string    `json:"profilePicture" bson:"profilePicture"`
	IsAdmin           bool      `json:"isAdmin" bson:"isAdmin"`
	LikedSongs        []string  `json:"likedSongs" bson:"likedSongs"`
	LikedAlbums       []string  `json:"likedAlbums" bson:"likedAlbums"`
	FollowedArtists   []string  `json:"followedArtists" bson:"followedArtists"`
	FollowedPlaylists []string  `json:"followedPlaylists" bson:"followedPlaylists"`
	CreatedAt         time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt" bson:"updatedAt"`
}

// NormalizeEmail lower-cases and trims an address for uniqueness checks.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Artist owns albums and songs. Albums and Songs are back-references kept in
// step with the owning field on each album and song.
type Artist struct {
	ID         string    `json:"id" bson:"_id"`
	Name       string    `json:"name" bson:"name"`
	Bio        string    `json:"bio" bson:"bio"`
	Image      string    `json:"image" bson:"image"`
	Genres     []string  `json:"genre" bson:"genre"`
	Followers  int       `json:"followers" bson:"followers"`
	Albums     []string  `json:"albums" bson:"albums"`
	Songs      []string  `json:"songs" bson:"songs"`
	IsVerified bool      `json:"isVerified" bson:"isVerified"`
	CreatedAt  time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt" bson:"updatedAt"`
}

// HasGenre reports whether any tag equals genre, ignoring case.
func (a Artist) HasGenre(genre string) bool {
	for _, tag := range a.Genres {
		if strings.EqualFold(tag, genre) {
			return true
		}
	}
	return false
}

type Album struct {
	ID          string    `json:"id" bson:"_id"`
	Title       string    `json:"title" bson:"title"`
	ArtistID    string    `json:"artist" bson:"artist"`
	ReleaseDate time.Time `json:"releasedDate" bson:"releasedDate"`
	CoverImage  string    `json:"coverImage" bson:"coverImage"`
	Songs       []string  `json:"songs" bson:"songs"`
	Genre       string    `json:"genre" bson:"genre"`
	Likes       int       `json:"likes" bson:"likes"`
	Description string    `json:"description" bson:"description"`
	IsExplicit  bool      `json:"isExplicit" bson:"isExplicit"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Song belongs to one artist and optionally one album. AlbumID is nil when the
// song is a single or its album was deleted.
type Song struct {
	ID              string    `json:"id" bson:"_id"`
	Title           string    `json:"title" bson:"title"`
	ArtistID        string    `json:"artist" bson:"artist"`
	AlbumID         *string   `json:"album,omitempty" bson:"album,omitempty"`
	Duration        int       `json:"duration" bson:"duration"`
	AudioURL        string    `json:"audioUrl" bson:"audioUrl"`
	CoverImage      string    `json:"coverImage" bson:"coverImage"`
	ReleaseDate     time.Time `json:"releaseDate" bson:"releaseDate"`
	Genre           string    `json:"genre" bson:"genre"`
	Plays           int       `json:"plays" bson:"plays"`
	Likes           int       `json:"likes" bson:"likes"`
	IsExplicit      bool      `json:"isExplicit" bson:"isExplicit"`
	FeaturedArtists []string  `json:"featuredArtists" bson:"featuredArtists"`
	CreatedAt       time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt" bson:"updatedAt"`
}

// InAlbum reports whether the song references the album.
func (s Song) InAlbum(albumID string) bool {
	return s.AlbumID != nil && *s.AlbumID == albumID
}

// Playlist is a user-curated track list. It is modelled so user records can
// carry followed playlist ids, but no store or route operates on it yet.
type Playlist struct {
	ID            string    `json:"id" bson:"_id"`
	Name          string    `json:"name" bson:"name"`
	Description   string    `json:"description" bson:"description"`
	CoverImage    string    `json:"coverImage" bson:"coverImage"`
	CreatorID     string    `json:"creator" bson:"creator"`
	Songs         []string  `json:"songs" bson:"songs"`
	IsPublic      bool      `json:"isPublic" bson:"isPublic"`
	Followers     int       `json:"followers" bson:"followers"`
	Collaborators []string  `json:"collaborators" bson:"collaborators"`
	CreatedAt     time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt" bson:"updatedAt"`
}
