package storage

import (
	"sort"

	"soundcrate/internal/models"
	"soundcrate/internal/query"
)

// In-memory translation of query.Filter for the JSON store. The Postgres and
// Mongo repositories carry their own translations of the same predicates.

func matchArtist(artist models.Artist, f query.Filter) bool {
	if f.Genre != "" && !artist.HasGenre(f.Genre) {
		return false
	}
	return f.SearchMatches(artist.Name, artist.Bio)
}

func matchAlbum(album models.Album, f query.Filter) bool {
	if f.Genre != "" && !query.EqualFold(album.Genre, f.Genre) {
		return false
	}
	if f.ArtistID != "" && album.ArtistID != f.ArtistID {
		return false
	}
	return f.SearchMatches(album.Title, album.Genre, album.Description)
}

func matchSong(song models.Song, f query.Filter) bool {
	if f.Genre != "" && !query.EqualFold(song.Genre, f.Genre) {
		return false
	}
	if f.ArtistID != "" && song.ArtistID != f.ArtistID {
		return false
	}
	if f.AlbumID != "" && !song.InAlbum(f.AlbumID) {
		return false
	}
	return f.SearchMatches(song.Title, song.Genre)
}

// Orderings are descending on the sort key with id ascending as tie-break.

func sortArtists(artists []models.Artist, order query.Sort) {
	sort.Slice(artists, func(i, j int) bool {
		a, b := artists[i], artists[j]
		if order == query.SortNewest {
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.After(b.CreatedAt)
			}
		} else if a.Followers != b.Followers {
			return a.Followers > b.Followers
		}
		return a.ID < b.ID
	})
}

func sortAlbums(albums []models.Album, order query.Sort) {
	sort.Slice(albums, func(i, j int) bool {
		a, b := albums[i], albums[j]
		if order == query.SortNewest {
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.After(b.CreatedAt)
			}
		} else if !a.ReleaseDate.Equal(b.ReleaseDate) {
			return a.ReleaseDate.After(b.ReleaseDate)
		}
		return a.ID < b.ID
	})
}

func sortSongs(songs []models.Song, order query.Sort) {
	sort.Slice(songs, func(i, j int) bool {
		a, b := songs[i], songs[j]
		switch order {
		case query.SortPlays:
			if a.Plays != b.Plays {
				return a.Plays > b.Plays
			}
		case query.SortNewest:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.After(b.CreatedAt)
			}
		default:
			if !a.ReleaseDate.Equal(b.ReleaseDate) {
				return a.ReleaseDate.After(b.ReleaseDate)
			}
		}
		return a.ID < b.ID
	})
}

// window returns a copy of the current page of items.
func window[T any](items []T, q query.Query) []T {
	limit := q.Limit
	if limit <= 0 {
		limit = query.DefaultLimit
	}
	start := q.Skip()
	if start < 0 || start >= len(items) {
		return []T{}
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	return append([]T(nil), items[start:end]...)
}
