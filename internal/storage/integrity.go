package storage

import (
	"soundcrate/internal/apperr"
	"soundcrate/internal/models"
)

// The dataset methods below are the JSON store's integrity manager. They are
// the only code that writes artist.albums, artist.songs and album.songs, and
// they always run against a cloned dataset inside Storage.mutate.

func (d *dataset) requireArtist(id string) (models.Artist, error) {
	artist, ok := d.Artists[id]
	if !ok {
		return models.Artist{}, apperr.NotFound(msgArtistNotFound)
	}
	return artist, nil
}

func (d *dataset) requireAlbum(id string) (models.Album, error) {
	album, ok := d.Albums[id]
	if !ok {
		return models.Album{}, apperr.NotFound(msgAlbumNotFound)
	}
	return album, nil
}

func (d *dataset) requireSong(id string) (models.Song, error) {
	song, ok := d.Songs[id]
	if !ok {
		return models.Song{}, apperr.NotFound(msgSongNotFound)
	}
	return song, nil
}

func (d *dataset) requireFeatured(ids []string) error {
	for _, id := range ids {
		if _, ok := d.Artists[id]; !ok {
			return apperr.NotFound(msgFeaturedArtist)
		}
	}
	return nil
}

func (d *dataset) linkArtistAlbum(artistID, albumID string) {
	if artist, ok := d.Artists[artistID]; ok {
		artist.Albums = appendUnique(artist.Albums, albumID)
		d.Artists[artistID] = artist
	}
}

func (d *dataset) linkArtistSong(artistID, songID string) {
	if artist, ok := d.Artists[artistID]; ok {
		artist.Songs = appendUnique(artist.Songs, songID)
		d.Artists[artistID] = artist
	}
}

func (d *dataset) linkAlbumSong(albumID, songID string) {
	if album, ok := d.Albums[albumID]; ok {
		album.Songs = appendUnique(album.Songs, songID)
		d.Albums[albumID] = album
	}
}

func (d *dataset) unlinkAlbumSong(albumID, songID string) {
	if album, ok := d.Albums[albumID]; ok {
		album.Songs = removeID(album.Songs, songID)
		d.Albums[albumID] = album
	}
}

// moveSong points song at albumID, keeping both the old and new album.songs
// in step. An empty albumID detaches the song.
func (d *dataset) moveSong(song models.Song, albumID string) models.Song {
	if song.AlbumID != nil {
		if *song.AlbumID == albumID {
			return song
		}
		d.unlinkAlbumSong(*song.AlbumID, song.ID)
	}
	if albumID == "" {
		song.AlbumID = nil
		return song
	}
	target := albumID
	song.AlbumID = &target
	d.linkAlbumSong(albumID, song.ID)
	return song
}

// deleteSong removes a song and every id that points at it.
func (d *dataset) deleteSong(id string) {
	song, ok := d.Songs[id]
	if !ok {
		return
	}
	if artist, ok := d.Artists[song.ArtistID]; ok {
		artist.Songs = removeID(artist.Songs, id)
		d.Artists[song.ArtistID] = artist
	}
	if song.AlbumID != nil {
		d.unlinkAlbumSong(*song.AlbumID, id)
	}
	for userID, user := range d.Users {
		if containsID(user.LikedSongs, id) {
			user.LikedSongs = removeID(user.LikedSongs, id)
			d.Users[userID] = user
		}
	}
	delete(d.Songs, id)
}

// deleteAlbum unsets the album on its songs, which survive, and removes the
// album from its artist and from users' liked albums.
func (d *dataset) deleteAlbum(id string) {
	album, ok := d.Albums[id]
	if !ok {
		return
	}
	for songID, song := range d.Songs {
		if song.InAlbum(id) {
			song.AlbumID = nil
			d.Songs[songID] = song
		}
	}
	if artist, ok := d.Artists[album.ArtistID]; ok {
		artist.Albums = removeID(artist.Albums, id)
		d.Artists[album.ArtistID] = artist
	}
	for userID, user := range d.Users {
		if containsID(user.LikedAlbums, id) {
			user.LikedAlbums = removeID(user.LikedAlbums, id)
			d.Users[userID] = user
		}
	}
	delete(d.Albums, id)
}

// deleteArtist removes the artist's songs, then its albums, then the artist.
func (d *dataset) deleteArtist(id string) {
	for songID, song := range d.Songs {
		if song.ArtistID == id {
			d.deleteSong(songID)
		}
	}
	for albumID, album := range d.Albums {
		if album.ArtistID == id {
			d.deleteAlbum(albumID)
		}
	}
	for songID, song := range d.Songs {
		if containsID(song.FeaturedArtists, id) {
			song.FeaturedArtists = removeID(song.FeaturedArtists, id)
			d.Songs[songID] = song
		}
	}
	for userID, user := range d.Users {
		if containsID(user.FollowedArtists, id) {
			user.FollowedArtists = removeID(user.FollowedArtists, id)
			d.Users[userID] = user
		}
	}
	delete(d.Artists, id)
}
