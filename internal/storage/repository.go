package storage

import (
	"context"

	"soundcrate/internal/models"
	"soundcrate/internal/query"
)

// Repository exposes the catalog operations required by API handlers and the
// credential service. Every implementation is the sole writer of the
// back-reference sets (artist.albums, artist.songs, album.songs) and applies
// the cascade rules atomically.
type Repository interface {
	Ping(ctx context.Context) error
	Close(ctx context.Context) error

	CreateUser(ctx context.Context, params CreateUserParams) (models.User, error)
	GetUser(ctx context.Context, id string) (models.User, error)
	FindUserByEmail(ctx context.Context, email string) (models.User, error)
	UpdateUser(ctx context.Context, id string, patch UserPatch) (models.User, error)

	CreateArtist(ctx context.Context, params CreateArtistParams) (models.Artist, error)
	GetArtist(ctx context.Context, id string) (models.Artist, error)
	FindArtistByName(ctx context.Context, name string) (models.Artist, error)
	UpdateArtist(ctx context.Context, id string, patch ArtistPatch) (models.Artist, error)
	DeleteArtist(ctx context.Context, id string) error
	ListArtists(ctx context.Context, q query.Query) (query.Envelope[models.Artist], error)

	CreateAlbum(ctx context.Context, params CreateAlbumParams) (models.Album, error)
	GetAlbum(ctx context.Context, id string) (models.Album, error)
	FindAlbumByTitle(ctx context.Context, title string) (models.Album, error)
	UpdateAlbum(ctx context.Context, id string, patch AlbumPatch) (models.Album, error)
	DeleteAlbum(ctx context.Context, id string) error
	ListAlbums(ctx context.Context, q query.Query) (query.Envelope[models.Album], error)
	AddSongsToAlbum(ctx context.Context, albumID string, songIDs []string) (models.Album, error)
	RemoveSongFromAlbum(ctx context.Context, albumID, songID string) (models.Album, error)

	CreateSong(ctx context.Context, params CreateSongParams) (models.Song, error)
	GetSong(ctx context.Context, id string) (models.Song, error)
	UpdateSong(ctx context.Context, id string, patch SongPatch) (models.Song, error)
	DeleteSong(ctx context.Context, id string) error
	ListSongs(ctx context.Context, q query.Query) (query.Envelope[models.Song], error)
}

var _ Repository = (*Storage)(nil)
