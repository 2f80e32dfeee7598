package storage

import (
	"context"

	"soundcrate/internal/apperr"
	"soundcrate/internal/models"
	"soundcrate/internal/query"
)

// Artist operations

func (s *Storage) CreateArtist(ctx context.Context, params CreateArtistParams) (models.Artist, error) {
	if err := params.Validate(); err != nil {
		return models.Artist{}, err
	}

	var created models.Artist
	err := s.mutate(ctx, func(data *dataset) error {
		for _, artist := range data.Artists {
			if artist.Name == params.Name {
				return apperr.Conflict(msgArtistExists)
			}
		}
		now := s.now()
		created = models.Artist{
			ID:         generateID(),
			Name:       params.Name,
			Bio:        params.Bio,
			Image:      params.Image,
			Genres:     params.Genres,
			Albums:     []string{},
			Songs:      []string{},
			IsVerified: params.IsVerified,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		data.Artists[created.ID] = created
		return nil
	})
	if err != nil {
		return models.Artist{}, err
	}
	return cloneArtist(created), nil
}

func (s *Storage) GetArtist(ctx context.Context, id string) (models.Artist, error) {
	var found models.Artist
	err := s.read(ctx, func(data *dataset) error {
		artist, err := data.requireArtist(id)
		found = cloneArtist(artist)
		return err
	})
	return found, err
}

func (s *Storage) FindArtistByName(ctx context.Context, name string) (models.Artist, error) {
	var found models.Artist
	err := s.read(ctx, func(data *dataset) error {
		for _, artist := range data.Artists {
			if artist.Name == name {
				found = cloneArtist(artist)
				return nil
			}
		}
		return apperr.NotFound(msgArtistNotFound)
	})
	return found, err
}

func (s *Storage) UpdateArtist(ctx context.Context, id string, patch ArtistPatch) (models.Artist, error) {
	var updated models.Artist
	err := s.mutate(ctx, func(data *dataset) error {
		artist, err := data.requireArtist(id)
		if err != nil {
			return err
		}
		merged, err := applyArtistPatch(artist, patch)
		if err != nil {
			return err
		}
		for otherID, other := range data.Artists {
			if otherID != id && other.Name == merged.Name {
				return apperr.Conflict(msgArtistExists)
			}
		}
		merged.UpdatedAt = s.now()
		data.Artists[id] = merged
		updated = merged
		return nil
	})
	if err != nil {
		return models.Artist{}, err
	}
	return cloneArtist(updated), nil
}

func (s *Storage) DeleteArtist(ctx context.Context, id string) error {
	return s.mutate(ctx, func(data *dataset) error {
		if _, err := data.requireArtist(id); err != nil {
			return err
		}
		data.deleteArtist(id)
		return nil
	})
}

func (s *Storage) ListArtists(ctx context.Context, q query.Query) (query.Envelope[models.Artist], error) {
	var env query.Envelope[models.Artist]
	err := s.read(ctx, func(data *dataset) error {
		matches := make([]models.Artist, 0, len(data.Artists))
		for _, artist := range data.Artists {
			if matchArtist(artist, q.Filter) {
				matches = append(matches, artist)
			}
		}
		sortArtists(matches, q.Sort)
		page := window(matches, q)
		for i := range page {
			page[i] = cloneArtist(page[i])
		}
		env = query.NewEnvelope(q, page, len(matches))
		return nil
	})
	return env, err
}

// Album operations

func (s *Storage) CreateAlbum(ctx context.Context, params CreateAlbumParams) (models.Album, error) {
	if err := params.Validate(); err != nil {
		return models.Album{}, err
	}

	var created models.Album
	err := s.mutate(ctx, func(data *dataset) error {
		for _, album := range data.Albums {
			if album.Title == params.Title {
				return apperr.Conflict(msgAlbumExists)
			}
		}
		if _, err := data.requireArtist(params.ArtistID); err != nil {
			return err
		}
		now := s.now()
		created = models.Album{
			ID:          generateID(),
			Title:       params.Title,
			ArtistID:    params.ArtistID,
			ReleaseDate: params.ReleaseDate,
			CoverImage:  params.CoverImage,
			Songs:       []string{},
			Genre:       params.Genre,
			Description: params.Description,
			IsExplicit:  params.IsExplicit,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		data.Albums[created.ID] = created
		data.linkArtistAlbum(params.ArtistID, created.ID)
		return nil
	})
	if err != nil {
		return models.Album{}, err
	}
	return cloneAlbum(created), nil
}

func (s *Storage) GetAlbum(ctx context.Context, id string) (models.Album, error) {
	var found models.Album
	err := s.read(ctx, func(data *dataset) error {
		album, err := data.requireAlbum(id)
		found = cloneAlbum(album)
		return err
	})
	return found, err
}

func (s *Storage) FindAlbumByTitle(ctx context.Context, title string) (models.Album, error) {
	var found models.Album
	err := s.read(ctx, func(data *dataset) error {
		for _, album := range data.Albums {
			if album.Title == title {
				found = cloneAlbum(album)
				return nil
			}
		}
		return apperr.NotFound(msgAlbumNotFound)
	})
	return found, err
}

func (s *Storage) UpdateAlbum(ctx context.Context, id string, patch AlbumPatch) (models.Album, error) {
	var updated models.Album
	err := s.mutate(ctx, func(data *dataset) error {
		album, err := data.requireAlbum(id)
		if err != nil {
			return err
		}
		merged, err := applyAlbumPatch(album, patch)
		if err != nil {
			return err
		}
		for otherID, other := range data.Albums {
			if otherID != id && other.Title == merged.Title {
				return apperr.Conflict(msgAlbumExists)
			}
		}
		merged.UpdatedAt = s.now()
		data.Albums[id] = merged
		updated = merged
		return nil
	})
	if err != nil {
		return models.Album{}, err
	}
	return cloneAlbum(updated), nil
}

func (s *Storage) DeleteAlbum(ctx context.Context, id string) error {
	return s.mutate(ctx, func(data *dataset) error {
		if _, err := data.requireAlbum(id); err != nil {
			return err
		}
		data.deleteAlbum(id)
		return nil
	})
}

func (s *Storage) ListAlbums(ctx context.Context, q query.Query) (query.Envelope[models.Album], error) {
	var env query.Envelope[models.Album]
	err := s.read(ctx, func(data *dataset) error {
		matches := make([]models.Album, 0, len(data.Albums))
		for _, album := range data.Albums {
			if matchAlbum(album, q.Filter) {
				matches = append(matches, album)
			}
		}
		sortAlbums(matches, q.Sort)
		page := window(matches, q)
		for i := range page {
			page[i] = cloneAlbum(page[i])
		}
		env = query.NewEnvelope(q, page, len(matches))
		return nil
	})
	return env, err
}

func (s *Storage) AddSongsToAlbum(ctx context.Context, albumID string, songIDs []string) (models.Album, error) {
	ids := uniqueIDs(songIDs)
	if len(ids) == 0 {
		return models.Album{}, apperr.Validation("Song ids are required")
	}

	var updated models.Album
	err := s.mutate(ctx, func(data *dataset) error {
		if _, err := data.requireAlbum(albumID); err != nil {
			return err
		}
		for _, id := range ids {
			song, err := data.requireSong(id)
			if err != nil {
				return err
			}
			song = data.moveSong(song, albumID)
			song.UpdatedAt = s.now()
			data.Songs[id] = song
		}
		album := data.Albums[albumID]
		album.UpdatedAt = s.now()
		data.Albums[albumID] = album
		updated = album
		return nil
	})
	if err != nil {
		return models.Album{}, err
	}
	return cloneAlbum(updated), nil
}

func (s *Storage) RemoveSongFromAlbum(ctx context.Context, albumID, songID string) (models.Album, error) {
	var updated models.Album
	err := s.mutate(ctx, func(data *dataset) error {
		if _, err := data.requireAlbum(albumID); err != nil {
			return err
		}
		song, err := data.requireSong(songID)
		if err != nil {
			return err
		}
		if !song.InAlbum(albumID) {
			return apperr.NotFound("Song is not part of this album")
		}
		song = data.moveSong(song, "")
		song.UpdatedAt = s.now()
		data.Songs[songID] = song
		album := data.Albums[albumID]
		album.UpdatedAt = s.now()
		data.Albums[albumID] = album
		updated = album
		return nil
	})
	if err != nil {
		return models.Album{}, err
	}
	return cloneAlbum(updated), nil
}

// Song operations

func (s *Storage) CreateSong(ctx context.Context, params CreateSongParams) (models.Song, error) {
	params.normalize(s.now())
	if err := validateParams(&params); err != nil {
		return models.Song{}, err
	}

	var created models.Song
	err := s.mutate(ctx, func(data *dataset) error {
		if _, err := data.requireArtist(params.ArtistID); err != nil {
			return err
		}
		if params.AlbumID != "" {
			if _, err := data.requireAlbum(params.AlbumID); err != nil {
				return err
			}
		}
		if err := data.requireFeatured(params.FeaturedArtists); err != nil {
			return err
		}
		now := s.now()
		created = models.Song{
			ID:              generateID(),
			Title:           params.Title,
			ArtistID:        params.ArtistID,
			Duration:        params.Duration,
			AudioURL:        params.AudioURL,
			CoverImage:      params.CoverImage,
			ReleaseDate:     params.ReleaseDate,
			Genre:           params.Genre,
			IsExplicit:      params.IsExplicit,
			FeaturedArtists: params.FeaturedArtists,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		created = data.moveSong(created, params.AlbumID)
		data.Songs[created.ID] = created
		data.linkArtistSong(params.ArtistID, created.ID)
		return nil
	})
	if err != nil {
		return models.Song{}, err
	}
	return cloneSong(created), nil
}

func (s *Storage) GetSong(ctx context.Context, id string) (models.Song, error) {
	var found models.Song
	err := s.read(ctx, func(data *dataset) error {
		song, err := data.requireSong(id)
		found = cloneSong(song)
		return err
	})
	return found, err
}

func (s *Storage) UpdateSong(ctx context.Context, id string, patch SongPatch) (models.Song, error) {
	var updated models.Song
	err := s.mutate(ctx, func(data *dataset) error {
		song, err := data.requireSong(id)
		if err != nil {
			return err
		}
		merged, err := applySongPatch(song, patch)
		if err != nil {
			return err
		}
		if patch.FeaturedArtists != nil {
			featured := uniqueIDs(*patch.FeaturedArtists)
			if err := data.requireFeatured(featured); err != nil {
				return err
			}
			merged.FeaturedArtists = featured
		}
		if target, changed := albumTarget(patch); changed {
			if target != "" {
				if _, err := data.requireAlbum(target); err != nil {
					return err
				}
			}
			merged = data.moveSong(merged, target)
		}
		merged.UpdatedAt = s.now()
		data.Songs[id] = merged
		updated = merged
		return nil
	})
	if err != nil {
		return models.Song{}, err
	}
	return cloneSong(updated), nil
}

func (s *Storage) DeleteSong(ctx context.Context, id string) error {
	return s.mutate(ctx, func(data *dataset) error {
		if _, err := data.requireSong(id); err != nil {
			return err
		}
		data.deleteSong(id)
		return nil
	})
}

func (s *Storage) ListSongs(ctx context.Context, q query.Query) (query.Envelope[models.Song], error) {
	var env query.Envelope[models.Song]
	err := s.read(ctx, func(data *dataset) error {
		matches := make([]models.Song, 0, len(data.Songs))
		for _, song := range data.Songs {
			if matchSong(song, q.Filter) {
				matches = append(matches, song)
			}
		}
		sortSongs(matches, q.Sort)
		page := window(matches, q)
		for i := range page {
			page[i] = cloneSong(page[i])
		}
		env = query.NewEnvelope(q, page, len(matches))
		return nil
	})
	return env, err
}
