package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"soundcrate/internal/apperr"
	"soundcrate/internal/models"
)

// postgresRepository stores the catalog in Postgres. Foreign keys enforce the
// cascade rules and back-reference sets are derived from the owning columns
// at read time, so they cannot drift from the rows that reference them.
type postgresRepository struct {
	pool   *pgxpool.Pool
	cfg    PostgresConfig
	now    func() time.Time
	logger *slog.Logger
}

// pgQuerier is satisfied by both the pool and a transaction.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// NewPostgresRepository opens a Postgres-backed repository. Migrations must
// have been applied, see ApplyPostgresMigrations.
func NewPostgresRepository(ctx context.Context, dsn string, opts ...Option) (Repository, error) {
	cfg := newPostgresConfig(dsn, opts...)
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections > 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckInterval > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckInterval
	}
	if cfg.AcquireTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.AcquireTimeout
	}
	if cfg.ApplicationName != "" {
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = make(map[string]string)
		}
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	return &postgresRepository{
		pool:   pool,
		cfg:    cfg,
		now:    cfg.Clock,
		logger: cfg.Logger,
	}, nil
}

func (r *postgresRepository) Close(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		r.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (r *postgresRepository) Ping(ctx context.Context) error {
	ctx, cancel := r.acquireContext(ctx)
	defer cancel()
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

func (r *postgresRepository) acquireContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.AcquireTimeout > 0 {
		return context.WithTimeout(ctx, r.cfg.AcquireTimeout)
	}
	return ctx, func() {}
}

// withTx runs fn inside a transaction on a pooled connection. The acquire
// timeout bounds obtaining the connection and opening the transaction.
func (r *postgresRepository) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	acquireCtx, cancel := r.acquireContext(ctx)
	conn, err := r.pool.Acquire(acquireCtx)
	if err != nil {
		cancel()
		return apperr.Wrap(apperr.KindUpstream, fmt.Errorf("acquire postgres connection: %w", err), "")
	}
	defer conn.Release()

	tx, err := conn.BeginTx(acquireCtx, pgx.TxOptions{})
	cancel()
	if err != nil {
		return apperr.Wrap(apperr.KindUpstream, fmt.Errorf("begin transaction: %w", err), "")
	}
	defer rollbackTx(ctx, tx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return translatePgError(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

func rollbackTx(ctx context.Context, tx pgx.Tx) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		slog.Default().Warn("rollback transaction", "error", err)
	}
}

var constraintMessages = map[string]string{
	"users_email_unique":  msgUserExists,
	"artists_name_unique": msgArtistExists,
	"albums_title_unique": msgAlbumExists,
	"albums_artist_fk":    msgArtistNotFound,
	"songs_artist_fk":     msgArtistNotFound,
	"songs_album_fk":      msgAlbumNotFound,
}

// translatePgError maps driver failures onto the error taxonomy. Unique
// violations become conflicts and foreign key violations become not-found.
func translatePgError(err error) error {
	if err == nil {
		return nil
	}
	var classified *apperr.Error
	if errors.As(err, &classified) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			msg := constraintMessages[pgErr.ConstraintName]
			if msg == "" {
				msg = "Record already exists"
			}
			return apperr.Wrap(apperr.KindConflict, err, msg)
		case "23503":
			msg := constraintMessages[pgErr.ConstraintName]
			if msg == "" {
				msg = "Referenced record not found"
			}
			return apperr.Wrap(apperr.KindNotFound, err, msg)
		case "23514", "22P02":
			return apperr.Wrap(apperr.KindValidation, err, "Invalid value")
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apperr.Wrap(apperr.KindUpstream, err, "")
}

// notFoundOr maps pgx.ErrNoRows to a not-found error with msg.
func notFoundOr(err error, msg string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("%s", msg)
	}
	return translatePgError(err)
}

const userColumns = `
	u.id, u.name, u.email, u.password_hash, u.profile_picture, u.is_admin, u.followed_playlists,
	u.created_at, u.updated_at,
	ARRAY(SELECT ls.song_id FROM user_liked_songs ls WHERE ls.user_id = u.id ORDER BY ls.created_at, ls.song_id),
	ARRAY(SELECT la.album_id FROM user_liked_albums la WHERE la.user_id = u.id ORDER BY la.created_at, la.album_id),
	ARRAY(SELECT fa.artist_id FROM user_followed_artists fa WHERE fa.user_id = u.id ORDER BY fa.created_at, fa.artist_id)`

const artistColumns = `
	a.id, a.name, a.bio, a.image, a.genres, a.followers, a.is_verified, a.created_at, a.updated_at,
	ARRAY(SELECT al.id FROM albums al WHERE al.artist_id = a.id ORDER BY al.created_at, al.id),
	ARRAY(SELECT s.id FROM songs s WHERE s.artist_id = a.id ORDER BY s.created_at, s.id)`

const albumColumns = `
	al.id, al.title, al.artist_id, al.released_date, al.cover_image, al.genre, al.likes,
	al.description, al.is_explicit, al.created_at, al.updated_at,
	ARRAY(SELECT s.id FROM songs s WHERE s.album_id = al.id ORDER BY s.created_at, s.id)`

const songColumns = `
	s.id, s.title, s.artist_id, s.album_id, s.duration, s.audio_url, s.cover_image, s.release_date,
	s.genre, s.plays, s.likes, s.is_explicit, s.created_at, s.updated_at,
	ARRAY(SELECT f.artist_id FROM song_featured_artists f WHERE f.song_id = s.id ORDER BY f.position)`

func scanUser(row rowScanner) (models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.ProfilePicture, &user.IsAdmin,
		&user.FollowedPlaylists, &user.CreatedAt, &user.UpdatedAt,
		&user.LikedSongs, &user.LikedAlbums, &user.FollowedArtists,
	)
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	return user, err
}

func scanArtist(row rowScanner) (models.Artist, error) {
	var artist models.Artist
	err := row.Scan(
		&artist.ID, &artist.Name, &artist.Bio, &artist.Image, &artist.Genres, &artist.Followers,
		&artist.IsVerified, &artist.CreatedAt, &artist.UpdatedAt, &artist.Albums, &artist.Songs,
	)
	artist.CreatedAt = artist.CreatedAt.UTC()
	artist.UpdatedAt = artist.UpdatedAt.UTC()
	return artist, err
}

func scanAlbum(row rowScanner) (models.Album, error) {
	var album models.Album
	err := row.Scan(
		&album.ID, &album.Title, &album.ArtistID, &album.ReleaseDate, &album.CoverImage, &album.Genre,
		&album.Likes, &album.Description, &album.IsExplicit, &album.CreatedAt, &album.UpdatedAt,
		&album.Songs,
	)
	album.ReleaseDate = album.ReleaseDate.UTC()
	album.CreatedAt = album.CreatedAt.UTC()
	album.UpdatedAt = album.UpdatedAt.UTC()
	return album, err
}

func scanSong(row rowScanner) (models.Song, error) {
	var song models.Song
	err := row.Scan(
		&song.ID, &song.Title, &song.ArtistID, &song.AlbumID, &song.Duration, &song.AudioURL,
		&song.CoverImage, &song.ReleaseDate, &song.Genre, &song.Plays, &song.Likes, &song.IsExplicit,
		&song.CreatedAt, &song.UpdatedAt, &song.FeaturedArtists,
	)
	song.ReleaseDate = song.ReleaseDate.UTC()
	song.CreatedAt = song.CreatedAt.UTC()
	song.UpdatedAt = song.UpdatedAt.UTC()
	return song, err
}

func (r *postgresRepository) loadUser(ctx context.Context, q pgQuerier, where string, arg any, lock bool) (models.User, error) {
	sql := "SELECT" + userColumns + " FROM users u WHERE " + where
	if lock {
		sql += " FOR UPDATE OF u"
	}
	user, err := scanUser(q.QueryRow(ctx, sql, arg))
	if err != nil {
		return models.User{}, notFoundOr(err, msgUserNotFound)
	}
	return user, nil
}

func (r *postgresRepository) loadArtist(ctx context.Context, q pgQuerier, where string, arg any, lock bool) (models.Artist, error) {
	sql := "SELECT" + artistColumns + " FROM artists a WHERE " + where
	if lock {
		sql += " FOR UPDATE OF a"
	}
	artist, err := scanArtist(q.QueryRow(ctx, sql, arg))
	if err != nil {
		return models.Artist{}, notFoundOr(err, msgArtistNotFound)
	}
	return artist, nil
}

func (r *postgresRepository) loadAlbum(ctx context.Context, q pgQuerier, where string, arg any, lock bool) (models.Album, error) {
	sql := "SELECT" + albumColumns + " FROM albums al WHERE " + where
	if lock {
		sql += " FOR UPDATE OF al"
	}
	album, err := scanAlbum(q.QueryRow(ctx, sql, arg))
	if err != nil {
		return models.Album{}, notFoundOr(err, msgAlbumNotFound)
	}
	return album, nil
}

func (r *postgresRepository) loadSong(ctx context.Context, q pgQuerier, id string, lock bool) (models.Song, error) {
	sql := "SELECT" + songColumns + " FROM songs s WHERE s.id = $1"
	if lock {
		sql += " FOR UPDATE OF s"
	}
	song, err := scanSong(q.QueryRow(ctx, sql, id))
	if err != nil {
		return models.Song{}, notFoundOr(err, msgSongNotFound)
	}
	return song, nil
}

// requireRow checks that a row with id exists in table, locking it against
// concurrent deletes for the rest of the transaction.
func requireRow(ctx context.Context, tx pgx.Tx, table, id, msg string) error {
	var found string
	err := tx.QueryRow(ctx, "SELECT id FROM "+table+" WHERE id = $1 FOR KEY SHARE", id).Scan(&found)
	if err != nil {
		return notFoundOr(err, msg)
	}
	return nil
}

func replaceFeaturedArtists(ctx context.Context, tx pgx.Tx, songID string, artistIDs []string) error {
	if _, err := tx.Exec(ctx, "DELETE FROM song_featured_artists WHERE song_id = $1", songID); err != nil {
		return translatePgError(fmt.Errorf("clear featured artists: %w", err))
	}
	for position, artistID := range artistIDs {
		if err := requireRow(ctx, tx, "artists", artistID, msgFeaturedArtist); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			"INSERT INTO song_featured_artists (song_id, artist_id, position) VALUES ($1, $2, $3)",
			songID, artistID, position,
		); err != nil {
			return translatePgError(fmt.Errorf("insert featured artist: %w", err))
		}
	}
	return nil
}

var _ Repository = (*postgresRepository)(nil)
