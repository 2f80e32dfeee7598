package storage

import (
	"strings"

	"soundcrate/internal/apperr"
	"soundcrate/internal/models"
)

// The apply*Patch helpers merge the present fields of a patch into a record
// and re-validate the result. Back-reference fields are never touched here.

func applyUserPatch(user models.User, patch UserPatch) (models.User, error) {
	if patch.Name != nil {
		user.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Email != nil {
		user.Email = models.NormalizeEmail(*patch.Email)
	}
	if patch.PasswordHash != nil {
		user.PasswordHash = *patch.PasswordHash
	}
	if patch.ProfilePicture != nil {
		if picture := strings.TrimSpace(*patch.ProfilePicture); picture != "" {
			user.ProfilePicture = picture
		}
	}
	if patch.IsAdmin != nil {
		user.IsAdmin = *patch.IsAdmin
	}
	check := CreateUserParams{Name: user.Name, Email: user.Email, PasswordHash: user.PasswordHash}
	if err := validateParams(&check); err != nil {
		return models.User{}, err
	}
	return user, nil
}

func applyArtistPatch(artist models.Artist, patch ArtistPatch) (models.Artist, error) {
	if patch.Name != nil {
		artist.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Bio != nil {
		artist.Bio = strings.TrimSpace(*patch.Bio)
	}
	if patch.Genres != nil {
		artist.Genres = normalizeGenres(*patch.Genres)
	}
	if patch.Image != nil {
		if image := strings.TrimSpace(*patch.Image); image != "" {
			artist.Image = image
		}
	}
	if patch.IsVerified != nil {
		artist.IsVerified = *patch.IsVerified
	}
	if patch.Followers != nil {
		artist.Followers = *patch.Followers
	}
	check := CreateArtistParams{Name: artist.Name, Bio: artist.Bio, Genres: artist.Genres}
	if err := validateParams(&check); err != nil {
		return models.Artist{}, err
	}
	if artist.Followers < 0 {
		return models.Artist{}, apperr.Validation("Followers must not be negative")
	}
	return artist, nil
}

func applyAlbumPatch(album models.Album, patch AlbumPatch) (models.Album, error) {
	if patch.Title != nil {
		album.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.ReleaseDate != nil && !patch.ReleaseDate.IsZero() {
		album.ReleaseDate = patch.ReleaseDate.UTC()
	}
	if patch.Genre != nil {
		album.Genre = strings.TrimSpace(*patch.Genre)
	}
	if patch.Description != nil {
		album.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.CoverImage != nil {
		if cover := strings.TrimSpace(*patch.CoverImage); cover != "" {
			album.CoverImage = cover
		}
	}
	if patch.IsExplicit != nil {
		album.IsExplicit = *patch.IsExplicit
	}
	check := albumPatchCheck{Title: album.Title, Description: album.Description}
	if err := validateParams(&check); err != nil {
		return models.Album{}, err
	}
	return album, nil
}

// applySongPatch merges scalar song fields. AlbumID and FeaturedArtists need
// existence checks against the store and are applied by each backend.
func applySongPatch(song models.Song, patch SongPatch) (models.Song, error) {
	if patch.Title != nil {
		song.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Duration != nil {
		song.Duration = *patch.Duration
	}
	if patch.AudioURL != nil {
		if audio := strings.TrimSpace(*patch.AudioURL); audio != "" {
			song.AudioURL = audio
		}
	}
	if patch.CoverImage != nil {
		if cover := strings.TrimSpace(*patch.CoverImage); cover != "" {
			song.CoverImage = cover
		}
	}
	if patch.ReleaseDate != nil && !patch.ReleaseDate.IsZero() {
		song.ReleaseDate = patch.ReleaseDate.UTC()
	}
	if patch.Genre != nil {
		song.Genre = strings.TrimSpace(*patch.Genre)
	}
	if patch.IsExplicit != nil {
		song.IsExplicit = *patch.IsExplicit
	}
	if patch.Plays != nil {
		if *patch.Plays < 0 {
			return models.Song{}, apperr.Validation("Plays must not be negative")
		}
		song.Plays = *patch.Plays
	}
	check := songPatchCheck{Title: song.Title, Duration: song.Duration, AudioURL: song.AudioURL}
	if err := validateParams(&check); err != nil {
		return models.Song{}, err
	}
	return song, nil
}

// albumTarget reports the album a song patch moves the song to. changed is
// false when the patch leaves the album alone; an empty target detaches.
func albumTarget(patch SongPatch) (target string, changed bool) {
	if patch.AlbumID == nil {
		return "", false
	}
	return strings.TrimSpace(*patch.AlbumID), true
}
