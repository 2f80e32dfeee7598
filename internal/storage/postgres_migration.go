package storage

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migration is one embedded schema script.
type Migration struct {
	Version string
	SQL     string
}

// Migrations returns the embedded schema scripts ordered by version.
func Migrations() ([]Migration, error) {
	entries, err := fs.ReadDir(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	migrations := make([]Migration, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		data, err := migrationFiles.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		migrations = append(migrations, Migration{
			Version: strings.TrimSuffix(entry.Name(), ".sql"),
			SQL:     string(data),
		})
	}
	return migrations, nil
}

// ApplyPostgresMigrations applies every embedded migration that has not been
// recorded in schema_migrations yet. It returns the versions it applied.
func ApplyPostgresMigrations(ctx context.Context, dsn string) ([]string, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	migrations, err := Migrations()
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, migration := range migrations {
		var exists bool
		if err := conn.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)", migration.Version).Scan(&exists); err != nil {
			return applied, fmt.Errorf("check migration %s: %w", migration.Version, err)
		}
		if exists {
			continue
		}
		if err := applyMigration(ctx, conn, migration); err != nil {
			return applied, err
		}
		applied = append(applied, migration.Version)
	}
	return applied, nil
}

func applyMigration(ctx context.Context, conn *pgx.Conn, migration Migration) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", migration.Version, err)
	}
	defer rollbackTx(ctx, tx)

	for _, stmt := range splitSQLStatements(migration.SQL) {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration %s: %w", migration.Version, err)
		}
	}
	if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", migration.Version); err != nil {
		return fmt.Errorf("record migration %s: %w", migration.Version, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migration %s: %w", migration.Version, err)
	}
	return nil
}

func splitSQLStatements(script string) []string {
	parts := strings.Split(script, ";")
	statements := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		statements = append(statements, trimmed)
	}
	return statements
}

func (r *postgresRepository) importSnapshot(ctx context.Context, snapshot *Snapshot) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		if err := importSnapshotUsers(ctx, tx, snapshot); err != nil {
			return err
		}
		if err := importSnapshotArtists(ctx, tx, snapshot); err != nil {
			return err
		}
		if err := importSnapshotAlbums(ctx, tx, snapshot); err != nil {
			return err
		}
		if err := importSnapshotSongs(ctx, tx, snapshot); err != nil {
			return err
		}
		return importSnapshotReferences(ctx, tx, snapshot)
	})
}

func importSnapshotUsers(ctx context.Context, tx pgx.Tx, snapshot *Snapshot) error {
	for _, user := range snapshot.Users {
		_, err := tx.Exec(ctx, `
			INSERT INTO users (id, name, email, password_hash, profile_picture, is_admin,
				followed_playlists, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email,
				password_hash = EXCLUDED.password_hash, profile_picture = EXCLUDED.profile_picture,
				is_admin = EXCLUDED.is_admin, followed_playlists = EXCLUDED.followed_playlists,
				updated_at = EXCLUDED.updated_at`,
			user.ID, user.Name, user.Email, user.PasswordHash, user.ProfilePicture, user.IsAdmin,
			cloneIDs(user.FollowedPlaylists), user.CreatedAt, user.UpdatedAt,
		)
		if err != nil {
			return translatePgError(fmt.Errorf("import user %s: %w", user.ID, err))
		}
	}
	return nil
}

func importSnapshotArtists(ctx context.Context, tx pgx.Tx, snapshot *Snapshot) error {
	for _, artist := range snapshot.Artists {
		_, err := tx.Exec(ctx, `
			INSERT INTO artists (id, name, bio, image, genres, followers, is_verified, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, bio = EXCLUDED.bio, image = EXCLUDED.image,
				genres = EXCLUDED.genres, followers = EXCLUDED.followers, is_verified = EXCLUDED.is_verified,
				updated_at = EXCLUDED.updated_at`,
			artist.ID, artist.Name, artist.Bio, artist.Image, cloneIDs(artist.Genres), artist.Followers,
			artist.IsVerified, artist.CreatedAt, artist.UpdatedAt,
		)
		if err != nil {
			return translatePgError(fmt.Errorf("import artist %s: %w", artist.ID, err))
		}
	}
	return nil
}

func importSnapshotAlbums(ctx context.Context, tx pgx.Tx, snapshot *Snapshot) error {
	for _, album := range snapshot.Albums {
		_, err := tx.Exec(ctx, `
			INSERT INTO albums (id, title, artist_id, released_date, cover_image, genre, likes,
				description, is_explicit, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, artist_id = EXCLUDED.artist_id,
				released_date = EXCLUDED.released_date, cover_image = EXCLUDED.cover_image,
				genre = EXCLUDED.genre, likes = EXCLUDED.likes, description = EXCLUDED.description,
				is_explicit = EXCLUDED.is_explicit, updated_at = EXCLUDED.updated_at`,
			album.ID, album.Title, album.ArtistID, album.ReleaseDate, album.CoverImage, album.Genre,
			album.Likes, album.Description, album.IsExplicit, album.CreatedAt, album.UpdatedAt,
		)
		if err != nil {
			return translatePgError(fmt.Errorf("import album %s: %w", album.ID, err))
		}
	}
	return nil
}

func importSnapshotSongs(ctx context.Context, tx pgx.Tx, snapshot *Snapshot) error {
	for _, song := range snapshot.Songs {
		_, err := tx.Exec(ctx, `
			INSERT INTO songs (id, title, artist_id, album_id, duration, audio_url, cover_image,
				release_date, genre, plays, likes, is_explicit, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, artist_id = EXCLUDED.artist_id,
				album_id = EXCLUDED.album_id, duration = EXCLUDED.duration, audio_url = EXCLUDED.audio_url,
				cover_image = EXCLUDED.cover_image, release_date = EXCLUDED.release_date,
				genre = EXCLUDED.genre, plays = EXCLUDED.plays, likes = EXCLUDED.likes,
				is_explicit = EXCLUDED.is_explicit, updated_at = EXCLUDED.updated_at`,
			song.ID, song.Title, song.ArtistID, song.AlbumID, song.Duration, song.AudioURL, song.CoverImage,
			song.ReleaseDate, song.Genre, song.Plays, song.Likes, song.IsExplicit, song.CreatedAt, song.UpdatedAt,
		)
		if err != nil {
			return translatePgError(fmt.Errorf("import song %s: %w", song.ID, err))
		}
		if err := replaceFeaturedArtists(ctx, tx, song.ID, uniqueIDs(song.FeaturedArtists)); err != nil {
			return err
		}
	}
	return nil
}

func importSnapshotReferences(ctx context.Context, tx pgx.Tx, snapshot *Snapshot) error {
	for _, user := range snapshot.Users {
		for _, songID := range user.LikedSongs {
			if _, err := tx.Exec(ctx, "INSERT INTO user_liked_songs (user_id, song_id) VALUES ($1, $2) ON CONFLICT DO NOTHING", user.ID, songID); err != nil {
				return translatePgError(fmt.Errorf("import liked song: %w", err))
			}
		}
		for _, albumID := range user.LikedAlbums {
			if _, err := tx.Exec(ctx, "INSERT INTO user_liked_albums (user_id, album_id) VALUES ($1, $2) ON CONFLICT DO NOTHING", user.ID, albumID); err != nil {
				return translatePgError(fmt.Errorf("import liked album: %w", err))
			}
		}
		for _, artistID := range user.FollowedArtists {
			if _, err := tx.Exec(ctx, "INSERT INTO user_followed_artists (user_id, artist_id) VALUES ($1, $2) ON CONFLICT DO NOTHING", user.ID, artistID); err != nil {
				return translatePgError(fmt.Errorf("import followed artist: %w", err))
			}
		}
	}
	return nil
}

// truncatePostgresCatalog empties every catalog table between integration
// test scenarios.
func truncatePostgresCatalog(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `TRUNCATE TABLE user_followed_artists, user_liked_albums, user_liked_songs,
		song_featured_artists, songs, albums, artists, users CASCADE`)
	return err
}
