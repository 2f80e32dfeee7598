package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/errgroup"

	"soundcrate/internal/apperr"
	"soundcrate/internal/models"
	"soundcrate/internal/query"
)

// User operations

func (r *postgresRepository) CreateUser(ctx context.Context, params CreateUserParams) (models.User, error) {
	params.normalize()
	if err := validateParams(&params); err != nil {
		return models.User{}, err
	}
	now := r.now()
	id := generateID()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, name, email, password_hash, profile_picture, is_admin, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		id, params.Name, params.Email, params.PasswordHash, params.ProfilePicture, params.IsAdmin, now,
	)
	if err != nil {
		return models.User{}, translatePgError(fmt.Errorf("insert user: %w", err))
	}
	return r.GetUser(ctx, id)
}

func (r *postgresRepository) GetUser(ctx context.Context, id string) (models.User, error) {
	return r.loadUser(ctx, r.pool, "u.id = $1", id, false)
}

func (r *postgresRepository) FindUserByEmail(ctx context.Context, email string) (models.User, error) {
	return r.loadUser(ctx, r.pool, "u.email = $1", models.NormalizeEmail(email), false)
}

func (r *postgresRepository) UpdateUser(ctx context.Context, id string, patch UserPatch) (models.User, error) {
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		user, err := r.loadUser(ctx, tx, "u.id = $1", id, true)
		if err != nil {
			return err
		}
		merged, err := applyUserPatch(user, patch)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE users SET name = $2, email = $3, password_hash = $4, profile_picture = $5,
				is_admin = $6, updated_at = $7
			WHERE id = $1`,
			id, merged.Name, merged.Email, merged.PasswordHash, merged.ProfilePicture, merged.IsAdmin, r.now(),
		)
		return translatePgError(err)
	})
	if err != nil {
		return models.User{}, err
	}
	return r.GetUser(ctx, id)
}

// Artist operations

func (r *postgresRepository) CreateArtist(ctx context.Context, params CreateArtistParams) (models.Artist, error) {
	if err := params.Validate(); err != nil {
		return models.Artist{}, err
	}
	now := r.now()
	id := generateID()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO artists (id, name, bio, image, genres, is_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		id, params.Name, params.Bio, params.Image, params.Genres, params.IsVerified, now,
	)
	if err != nil {
		return models.Artist{}, translatePgError(fmt.Errorf("insert artist: %w", err))
	}
	return r.GetArtist(ctx, id)
}

func (r *postgresRepository) GetArtist(ctx context.Context, id string) (models.Artist, error) {
	return r.loadArtist(ctx, r.pool, "a.id = $1", id, false)
}

func (r *postgresRepository) FindArtistByName(ctx context.Context, name string) (models.Artist, error) {
	return r.loadArtist(ctx, r.pool, "a.name = $1", strings.TrimSpace(name), false)
}

func (r *postgresRepository) UpdateArtist(ctx context.Context, id string, patch ArtistPatch) (models.Artist, error) {
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		artist, err := r.loadArtist(ctx, tx, "a.id = $1", id, true)
		if err != nil {
			return err
		}
		merged, err := applyArtistPatch(artist, patch)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE artists SET name = $2, bio = $3, image = $4, genres = $5, followers = $6,
				is_verified = $7, updated_at = $8
			WHERE id = $1`,
			id, merged.Name, merged.Bio, merged.Image, merged.Genres, merged.Followers, merged.IsVerified, r.now(),
		)
		return translatePgError(err)
	})
	if err != nil {
		return models.Artist{}, err
	}
	return r.GetArtist(ctx, id)
}

// DeleteArtist removes dependents explicitly before the artist. The foreign
// keys would cascade on their own; the explicit steps keep the order the same
// as the other backends and surface row counts in the log.
func (r *postgresRepository) DeleteArtist(ctx context.Context, id string) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := r.loadArtist(ctx, tx, "a.id = $1", id, true); err != nil {
			return err
		}
		songs, err := tx.Exec(ctx, "DELETE FROM songs WHERE artist_id = $1", id)
		if err != nil {
			return translatePgError(fmt.Errorf("delete artist songs: %w", err))
		}
		albums, err := tx.Exec(ctx, "DELETE FROM albums WHERE artist_id = $1", id)
		if err != nil {
			return translatePgError(fmt.Errorf("delete artist albums: %w", err))
		}
		if _, err := tx.Exec(ctx, "DELETE FROM artists WHERE id = $1", id); err != nil {
			return translatePgError(fmt.Errorf("delete artist: %w", err))
		}
		r.logger.Debug("artist deleted", "artist_id", id, "songs", songs.RowsAffected(), "albums", albums.RowsAffected())
		return nil
	})
}

func (r *postgresRepository) ListArtists(ctx context.Context, q query.Query) (query.Envelope[models.Artist], error) {
	var where sqlFilter
	if q.Genre != "" {
		where.add("EXISTS (SELECT 1 FROM unnest(a.genres) g WHERE lower(g) = lower(%s))", q.Genre)
	}
	if q.Search != "" {
		where.addSearch(q.Search, "a.name", "a.bio")
	}
	order := "a.followers DESC, a.id"
	if q.Sort == query.SortNewest {
		order = "a.created_at DESC, a.id"
	}
	items, total, err := listPostgres(ctx, r, "artists a", artistColumns, where, order, q, scanArtist)
	if err != nil {
		return query.Envelope[models.Artist]{}, err
	}
	return query.NewEnvelope(q, items, total), nil
}

// Album operations

func (r *postgresRepository) CreateAlbum(ctx context.Context, params CreateAlbumParams) (models.Album, error) {
	if err := params.Validate(); err != nil {
		return models.Album{}, err
	}
	now := r.now()
	id := generateID()
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		var taken bool
		if err := tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM albums WHERE title = $1)", params.Title).Scan(&taken); err != nil {
			return translatePgError(err)
		}
		if taken {
			return apperr.Conflict(msgAlbumExists)
		}
		if err := requireRow(ctx, tx, "artists", params.ArtistID, msgArtistNotFound); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO albums (id, title, artist_id, released_date, cover_image, genre, description,
				is_explicit, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
			id, params.Title, params.ArtistID, params.ReleaseDate, params.CoverImage, params.Genre,
			params.Description, params.IsExplicit, now,
		)
		return translatePgError(err)
	})
	if err != nil {
		return models.Album{}, err
	}
	return r.GetAlbum(ctx, id)
}

func (r *postgresRepository) GetAlbum(ctx context.Context, id string) (models.Album, error) {
	return r.loadAlbum(ctx, r.pool, "al.id = $1", id, false)
}

func (r *postgresRepository) FindAlbumByTitle(ctx context.Context, title string) (models.Album, error) {
	return r.loadAlbum(ctx, r.pool, "al.title = $1", strings.TrimSpace(title), false)
}

func (r *postgresRepository) UpdateAlbum(ctx context.Context, id string, patch AlbumPatch) (models.Album, error) {
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		album, err := r.loadAlbum(ctx, tx, "al.id = $1", id, true)
		if err != nil {
			return err
		}
		merged, err := applyAlbumPatch(album, patch)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE albums SET title = $2, released_date = $3, cover_image = $4, genre = $5,
				description = $6, is_explicit = $7, updated_at = $8
			WHERE id = $1`,
			id, merged.Title, merged.ReleaseDate, merged.CoverImage, merged.Genre, merged.Description,
			merged.IsExplicit, r.now(),
		)
		return translatePgError(err)
	})
	if err != nil {
		return models.Album{}, err
	}
	return r.GetAlbum(ctx, id)
}

func (r *postgresRepository) DeleteAlbum(ctx context.Context, id string) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := r.loadAlbum(ctx, tx, "al.id = $1", id, true); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, "UPDATE songs SET album_id = NULL, updated_at = $2 WHERE album_id = $1", id, r.now()); err != nil {
			return translatePgError(fmt.Errorf("unset album on songs: %w", err))
		}
		if _, err := tx.Exec(ctx, "DELETE FROM albums WHERE id = $1", id); err != nil {
			return translatePgError(fmt.Errorf("delete album: %w", err))
		}
		return nil
	})
}

func (r *postgresRepository) ListAlbums(ctx context.Context, q query.Query) (query.Envelope[models.Album], error) {
	var where sqlFilter
	if q.Genre != "" {
		where.add("lower(al.genre) = lower(%s)", q.Genre)
	}
	if q.ArtistID != "" {
		where.add("al.artist_id = %s", q.ArtistID)
	}
	if q.Search != "" {
		where.addSearch(q.Search, "al.title", "al.genre", "al.description")
	}
	order := "al.released_date DESC, al.id"
	if q.Sort == query.SortNewest {
		order = "al.created_at DESC, al.id"
	}
	items, total, err := listPostgres(ctx, r, "albums al", albumColumns, where, order, q, scanAlbum)
	if err != nil {
		return query.Envelope[models.Album]{}, err
	}
	return query.NewEnvelope(q, items, total), nil
}

func (r *postgresRepository) AddSongsToAlbum(ctx context.Context, albumID string, songIDs []string) (models.Album, error) {
	ids := uniqueIDs(songIDs)
	if len(ids) == 0 {
		return models.Album{}, apperr.Validation("Song ids are required")
	}
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		if err := requireRow(ctx, tx, "albums", albumID, msgAlbumNotFound); err != nil {
			return err
		}
		now := r.now()
		for _, id := range ids {
			tag, err := tx.Exec(ctx, "UPDATE songs SET album_id = $2, updated_at = $3 WHERE id = $1", id, albumID, now)
			if err != nil {
				return translatePgError(fmt.Errorf("move song: %w", err))
			}
			if tag.RowsAffected() == 0 {
				return apperr.NotFound(msgSongNotFound)
			}
		}
		_, err := tx.Exec(ctx, "UPDATE albums SET updated_at = $2 WHERE id = $1", albumID, now)
		return translatePgError(err)
	})
	if err != nil {
		return models.Album{}, err
	}
	return r.GetAlbum(ctx, albumID)
}

func (r *postgresRepository) RemoveSongFromAlbum(ctx context.Context, albumID, songID string) (models.Album, error) {
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		if err := requireRow(ctx, tx, "albums", albumID, msgAlbumNotFound); err != nil {
			return err
		}
		song, err := r.loadSong(ctx, tx, songID, true)
		if err != nil {
			return err
		}
		if !song.InAlbum(albumID) {
			return apperr.NotFound("Song is not part of this album")
		}
		now := r.now()
		if _, err := tx.Exec(ctx, "UPDATE songs SET album_id = NULL, updated_at = $2 WHERE id = $1", songID, now); err != nil {
			return translatePgError(fmt.Errorf("detach song: %w", err))
		}
		_, err = tx.Exec(ctx, "UPDATE albums SET updated_at = $2 WHERE id = $1", albumID, now)
		return translatePgError(err)
	})
	if err != nil {
		return models.Album{}, err
	}
	return r.GetAlbum(ctx, albumID)
}

// Song operations

func (r *postgresRepository) CreateSong(ctx context.Context, params CreateSongParams) (models.Song, error) {
	now := r.now()
	params.normalize(now)
	if err := validateParams(&params); err != nil {
		return models.Song{}, err
	}
	id := generateID()
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		if err := requireRow(ctx, tx, "artists", params.ArtistID, msgArtistNotFound); err != nil {
			return err
		}
		var albumID *string
		if params.AlbumID != "" {
			if err := requireRow(ctx, tx, "albums", params.AlbumID, msgAlbumNotFound); err != nil {
				return err
			}
			albumID = &params.AlbumID
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO songs (id, title, artist_id, album_id, duration, audio_url, cover_image,
				release_date, genre, is_explicit, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)`,
			id, params.Title, params.ArtistID, albumID, params.Duration, params.AudioURL, params.CoverImage,
			params.ReleaseDate, params.Genre, params.IsExplicit, now,
		)
		if err != nil {
			return translatePgError(fmt.Errorf("insert song: %w", err))
		}
		return replaceFeaturedArtists(ctx, tx, id, params.FeaturedArtists)
	})
	if err != nil {
		return models.Song{}, err
	}
	return r.GetSong(ctx, id)
}

func (r *postgresRepository) GetSong(ctx context.Context, id string) (models.Song, error) {
	return r.loadSong(ctx, r.pool, id, false)
}

func (r *postgresRepository) UpdateSong(ctx context.Context, id string, patch SongPatch) (models.Song, error) {
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		song, err := r.loadSong(ctx, tx, id, true)
		if err != nil {
			return err
		}
		merged, err := applySongPatch(song, patch)
		if err != nil {
			return err
		}
		if target, changed := albumTarget(patch); changed {
			merged.AlbumID = nil
			if target != "" {
				if err := requireRow(ctx, tx, "albums", target, msgAlbumNotFound); err != nil {
					return err
				}
				merged.AlbumID = &target
			}
		}
		_, err = tx.Exec(ctx, `
			UPDATE songs SET title = $2, album_id = $3, duration = $4, audio_url = $5, cover_image = $6,
				release_date = $7, genre = $8, is_explicit = $9, plays = $10, updated_at = $11
			WHERE id = $1`,
			id, merged.Title, merged.AlbumID, merged.Duration, merged.AudioURL, merged.CoverImage,
			merged.ReleaseDate, merged.Genre, merged.IsExplicit, merged.Plays, r.now(),
		)
		if err != nil {
			return translatePgError(fmt.Errorf("update song: %w", err))
		}
		if patch.FeaturedArtists != nil {
			return replaceFeaturedArtists(ctx, tx, id, uniqueIDs(*patch.FeaturedArtists))
		}
		return nil
	})
	if err != nil {
		return models.Song{}, err
	}
	return r.GetSong(ctx, id)
}

// DeleteSong relies on the join table foreign keys to drop featured and
// liked references.
func (r *postgresRepository) DeleteSong(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM songs WHERE id = $1", id)
	if err != nil {
		return translatePgError(fmt.Errorf("delete song: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(msgSongNotFound)
	}
	return nil
}

func (r *postgresRepository) ListSongs(ctx context.Context, q query.Query) (query.Envelope[models.Song], error) {
	var where sqlFilter
	if q.Genre != "" {
		where.add("lower(s.genre) = lower(%s)", q.Genre)
	}
	if q.ArtistID != "" {
		where.add("s.artist_id = %s", q.ArtistID)
	}
	if q.AlbumID != "" {
		where.add("s.album_id = %s", q.AlbumID)
	}
	if q.Search != "" {
		where.addSearch(q.Search, "s.title", "s.genre")
	}
	var order string
	switch q.Sort {
	case query.SortPlays:
		order = "s.plays DESC, s.id"
	case query.SortNewest:
		order = "s.created_at DESC, s.id"
	default:
		order = "s.release_date DESC, s.id"
	}
	items, total, err := listPostgres(ctx, r, "songs s", songColumns, where, order, q, scanSong)
	if err != nil {
		return query.Envelope[models.Song]{}, err
	}
	return query.NewEnvelope(q, items, total), nil
}

// sqlFilter accumulates WHERE clauses with positional arguments.
type sqlFilter struct {
	clauses []string
	args    []any
}

// add appends clause, replacing its single %s with the next placeholder.
func (f *sqlFilter) add(clause string, arg any) {
	f.args = append(f.args, arg)
	f.clauses = append(f.clauses, fmt.Sprintf(clause, fmt.Sprintf("$%d", len(f.args))))
}

// addSearch ORs a case-insensitive substring match across columns.
func (f *sqlFilter) addSearch(term string, columns ...string) {
	f.args = append(f.args, "%"+escapeLike(term)+"%")
	placeholder := fmt.Sprintf("$%d", len(f.args))
	parts := make([]string, len(columns))
	for i, column := range columns {
		parts[i] = column + " ILIKE " + placeholder
	}
	f.clauses = append(f.clauses, "("+strings.Join(parts, " OR ")+")")
}

func (f sqlFilter) where() string {
	if len(f.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(f.clauses, " AND ")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(term string) string {
	return likeEscaper.Replace(term)
}

// listPostgres runs the count pass and the page query concurrently against
// the same filter.
func listPostgres[T any](
	ctx context.Context,
	r *postgresRepository,
	from, columns string,
	filter sqlFilter,
	order string,
	q query.Query,
	scan func(rowScanner) (T, error),
) ([]T, int, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = query.DefaultLimit
	}

	var (
		total int
		items []T
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		countSQL := "SELECT COUNT(*) FROM " + from + filter.where()
		if err := r.pool.QueryRow(gctx, countSQL, filter.args...).Scan(&total); err != nil {
			return translatePgError(fmt.Errorf("count %s: %w", from, err))
		}
		return nil
	})
	g.Go(func() error {
		args := append(append([]any(nil), filter.args...), limit, q.Skip())
		pageSQL := fmt.Sprintf("SELECT%s FROM %s%s ORDER BY %s LIMIT $%d OFFSET $%d",
			columns, from, filter.where(), order, len(args)-1, len(args))
		rows, err := r.pool.Query(gctx, pageSQL, args...)
		if err != nil {
			return translatePgError(fmt.Errorf("list %s: %w", from, err))
		}
		defer rows.Close()
		for rows.Next() {
			item, err := scan(rows)
			if err != nil {
				return translatePgError(fmt.Errorf("scan %s: %w", from, err))
			}
			items = append(items, item)
		}
		if err := rows.Err(); err != nil {
			return translatePgError(fmt.Errorf("iterate %s: %w", from, err))
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
