package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"golang.org/x/sync/errgroup"

	"soundcrate/internal/apperr"
	"soundcrate/internal/models"
	"soundcrate/internal/query"
)

// mongoRepository stores each entity in its own collection and keeps the
// back-reference arrays embedded in the owning documents. Multi-document
// writes run inside a session transaction when enabled. Otherwise they run as
// ordered, idempotent steps that touch the primary document last so a failed
// cascade can be retried.
type mongoRepository struct {
	client  *mongo.Client
	users   *mongo.Collection
	artists *mongo.Collection
	albums  *mongo.Collection
	songs   *mongo.Collection
	cfg     MongoConfig
	now     func() time.Time
	logger  *slog.Logger
}

// NewMongoRepository connects to MongoDB and ensures the unique indexes that
// back the conflict rules exist.
func NewMongoRepository(ctx context.Context, uri string, opts ...Option) (Repository, error) {
	cfg := newMongoConfig(uri, opts...)
	if strings.TrimSpace(cfg.URI) == "" {
		return nil, fmt.Errorf("mongo uri required")
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	clientOpts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetServerSelectionTimeout(cfg.ConnectTimeout).
		SetAppName("soundcrate")
	client, err := mongo.Connect(connectCtx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(cfg.Database)
	repo := &mongoRepository{
		client:  client,
		users:   db.Collection("users"),
		artists: db.Collection("artists"),
		albums:  db.Collection("albums"),
		songs:   db.Collection("songs"),
		cfg:     cfg,
		now:     cfg.Clock,
		logger:  cfg.Logger,
	}
	if err := repo.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return repo, nil
}

func (r *mongoRepository) ensureIndexes(ctx context.Context) error {
	indexes := []struct {
		coll  *mongo.Collection
		model mongo.IndexModel
	}{
		{r.users, uniqueIndex("email", "users_email_unique")},
		{r.artists, uniqueIndex("name", "artists_name_unique")},
		{r.albums, uniqueIndex("title", "albums_title_unique")},
		{r.albums, mongo.IndexModel{Keys: bson.D{{Key: "artist", Value: 1}}}},
		{r.albums, mongo.IndexModel{Keys: bson.D{{Key: "releasedDate", Value: -1}, {Key: "_id", Value: 1}}}},
		{r.songs, mongo.IndexModel{Keys: bson.D{{Key: "artist", Value: 1}}}},
		{r.songs, mongo.IndexModel{Keys: bson.D{{Key: "album", Value: 1}}}},
		{r.songs, mongo.IndexModel{Keys: bson.D{{Key: "plays", Value: -1}, {Key: "_id", Value: 1}}}},
	}
	for _, index := range indexes {
		if _, err := index.coll.Indexes().CreateOne(ctx, index.model); err != nil {
			return fmt.Errorf("create index on %s: %w", index.coll.Name(), err)
		}
	}
	return nil
}

func uniqueIndex(field, name string) mongo.IndexModel {
	return mongo.IndexModel{
		Keys:    bson.D{{Key: field, Value: 1}},
		Options: options.Index().SetUnique(true).SetName(name),
	}
}

func (r *mongoRepository) Ping(ctx context.Context) error {
	ctx, cancel := r.opContext(ctx)
	defer cancel()
	if err := r.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("ping mongo: %w", err)
	}
	return nil
}

func (r *mongoRepository) Close(ctx context.Context) error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Disconnect(ctx)
}

func (r *mongoRepository) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.OperationTimeout > 0 {
		return context.WithTimeout(ctx, r.cfg.OperationTimeout)
	}
	return ctx, func() {}
}

// run executes fn as one unit of work, inside a transaction when enabled.
func (r *mongoRepository) run(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := r.opContext(ctx)
	defer cancel()
	if !r.cfg.Transactions {
		err := fn(ctx)
		if apperr.KindOf(err) == apperr.KindUpstream {
			r.logger.Warn("mongo write interrupted without transaction, retry to converge", "error", err)
		}
		return err
	}
	session, err := r.client.StartSession()
	if err != nil {
		return apperr.Wrap(apperr.KindUpstream, fmt.Errorf("start mongo session: %w", err), "")
	}
	defer session.EndSession(ctx)
	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

// translateMongoError maps driver failures onto the error taxonomy.
// conflictMsg is used when a unique index rejects the write.
func translateMongoError(err error, conflictMsg string) error {
	if err == nil {
		return nil
	}
	var classified *apperr.Error
	if errors.As(err, &classified) {
		return err
	}
	if mongo.IsDuplicateKeyError(err) {
		if conflictMsg == "" {
			conflictMsg = "Record already exists"
		}
		return apperr.Wrap(apperr.KindConflict, err, conflictMsg)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apperr.Wrap(apperr.KindUpstream, err, "")
}

func findOne(ctx context.Context, coll *mongo.Collection, filter bson.M, out any, notFoundMsg string) error {
	err := coll.FindOne(ctx, filter).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return apperr.NotFound("%s", notFoundMsg)
	}
	return translateMongoError(err, "")
}

func requireDoc(ctx context.Context, coll *mongo.Collection, id, notFoundMsg string) error {
	count, err := coll.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return translateMongoError(err, "")
	}
	if count == 0 {
		return apperr.NotFound("%s", notFoundMsg)
	}
	return nil
}

func (r *mongoRepository) requireFeatured(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	count, err := r.artists.CountDocuments(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return translateMongoError(err, "")
	}
	if int(count) != len(ids) {
		return apperr.NotFound(msgFeaturedArtist)
	}
	return nil
}

// User operations

func (r *mongoRepository) CreateUser(ctx context.Context, params CreateUserParams) (models.User, error) {
	params.normalize()
	if err := validateParams(&params); err != nil {
		return models.User{}, err
	}
	ctx, cancel := r.opContext(ctx)
	defer cancel()

	now := r.now()
	user := models.User{
		ID:                generateID(),
		Name:              params.Name,
		Email:             params.Email,
		PasswordHash:      params.PasswordHash,
		ProfilePicture:    params.ProfilePicture,
		IsAdmin:           params.IsAdmin,
		LikedSongs:        []string{},
		LikedAlbums:       []string{},
		FollowedArtists:   []string{},
		FollowedPlaylists: []string{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if _, err := r.users.InsertOne(ctx, user); err != nil {
		return models.User{}, translateMongoError(err, msgUserExists)
	}
	return user, nil
}

func (r *mongoRepository) GetUser(ctx context.Context, id string) (models.User, error) {
	return r.loadUser(ctx, bson.M{"_id": id})
}

func (r *mongoRepository) FindUserByEmail(ctx context.Context, email string) (models.User, error) {
	return r.loadUser(ctx, bson.M{"email": models.NormalizeEmail(email)})
}

func (r *mongoRepository) loadUser(ctx context.Context, filter bson.M) (models.User, error) {
	ctx, cancel := r.opContext(ctx)
	defer cancel()
	var user models.User
	if err := findOne(ctx, r.users, filter, &user, msgUserNotFound); err != nil {
		return models.User{}, err
	}
	return cloneUser(user), nil
}

func (r *mongoRepository) UpdateUser(ctx context.Context, id string, patch UserPatch) (models.User, error) {
	var updated models.User
	err := r.run(ctx, func(ctx context.Context) error {
		var user models.User
		if err := findOne(ctx, r.users, bson.M{"_id": id}, &user, msgUserNotFound); err != nil {
			return err
		}
		merged, err := applyUserPatch(cloneUser(user), patch)
		if err != nil {
			return err
		}
		merged.UpdatedAt = r.now()
		_, err = r.users.UpdateByID(ctx, id, bson.M{"$set": bson.M{
			"name":           merged.Name,
			"email":          merged.Email,
			"password":       merged.PasswordHash,
			"profilePicture": merged.ProfilePicture,
			"isAdmin":        merged.IsAdmin,
			"updatedAt":      merged.UpdatedAt,
		}})
		if err != nil {
			return translateMongoError(err, msgUserExists)
		}
		updated = merged
		return nil
	})
	if err != nil {
		return models.User{}, err
	}
	return updated, nil
}

// Artist operations

func (r *mongoRepository) CreateArtist(ctx context.Context, params CreateArtistParams) (models.Artist, error) {
	if err := params.Validate(); err != nil {
		return models.Artist{}, err
	}
	ctx, cancel := r.opContext(ctx)
	defer cancel()

	now := r.now()
	artist := models.Artist{
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
	if _, err := r.artists.InsertOne(ctx, artist); err != nil {
		return models.Artist{}, translateMongoError(err, msgArtistExists)
	}
	return artist, nil
}

func (r *mongoRepository) GetArtist(ctx context.Context, id string) (models.Artist, error) {
	return r.loadArtist(ctx, bson.M{"_id": id})
}

func (r *mongoRepository) FindArtistByName(ctx context.Context, name string) (models.Artist, error) {
	return r.loadArtist(ctx, bson.M{"name": name})
}

func (r *mongoRepository) loadArtist(ctx context.Context, filter bson.M) (models.Artist, error) {
	ctx, cancel := r.opContext(ctx)
	defer cancel()
	var artist models.Artist
	if err := findOne(ctx, r.artists, filter, &artist, msgArtistNotFound); err != nil {
		return models.Artist{}, err
	}
	return cloneArtist(artist), nil
}

func (r *mongoRepository) UpdateArtist(ctx context.Context, id string, patch ArtistPatch) (models.Artist, error) {
	var updated models.Artist
	err := r.run(ctx, func(ctx context.Context) error {
		var artist models.Artist
		if err := findOne(ctx, r.artists, bson.M{"_id": id}, &artist, msgArtistNotFound); err != nil {
			return err
		}
		merged, err := applyArtistPatch(cloneArtist(artist), patch)
		if err != nil {
			return err
		}
		merged.UpdatedAt = r.now()
		_, err = r.artists.UpdateByID(ctx, id, bson.M{"$set": bson.M{
			"name":       merged.Name,
			"bio":        merged.Bio,
			"image":      merged.Image,
			"genre":      merged.Genres,
			"followers":  merged.Followers,
			"isVerified": merged.IsVerified,
			"updatedAt":  merged.UpdatedAt,
		}})
		if err != nil {
			return translateMongoError(err, msgArtistExists)
		}
		updated = merged
		return nil
	})
	if err != nil {
		return models.Artist{}, err
	}
	return updated, nil
}

func (r *mongoRepository) DeleteArtist(ctx context.Context, id string) error {
	return r.run(ctx, func(ctx context.Context) error {
		if err := requireDoc(ctx, r.artists, id, msgArtistNotFound); err != nil {
			return err
		}
		if err := r.deleteSongs(ctx, bson.M{"artist": id}); err != nil {
			return err
		}
		if err := r.deleteAlbums(ctx, bson.M{"artist": id}); err != nil {
			return err
		}
		if _, err := r.songs.UpdateMany(ctx, bson.M{"featuredArtists": id}, bson.M{"$pull": bson.M{"featuredArtists": id}}); err != nil {
			return translateMongoError(err, "")
		}
		if _, err := r.users.UpdateMany(ctx, bson.M{"followedArtists": id}, bson.M{"$pull": bson.M{"followedArtists": id}}); err != nil {
			return translateMongoError(err, "")
		}
		if _, err := r.artists.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
			return translateMongoError(err, "")
		}
		return nil
	})
}

func (r *mongoRepository) ListArtists(ctx context.Context, q query.Query) (query.Envelope[models.Artist], error) {
	filter := bson.M{}
	if q.Genre != "" {
		filter["genre"] = exactFold(q.Genre)
	}
	if q.Search != "" {
		filter["$or"] = searchFold(q.Search, "name", "bio")
	}
	order := bson.D{{Key: "followers", Value: -1}, {Key: "_id", Value: 1}}
	if q.Sort == query.SortNewest {
		order = bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}
	}
	items, total, err := listMongo[models.Artist](ctx, r, r.artists, filter, order, q)
	if err != nil {
		return query.Envelope[models.Artist]{}, err
	}
	for i := range items {
		items[i] = cloneArtist(items[i])
	}
	return query.NewEnvelope(q, items, total), nil
}

// Album operations

func (r *mongoRepository) CreateAlbum(ctx context.Context, params CreateAlbumParams) (models.Album, error) {
	if err := params.Validate(); err != nil {
		return models.Album{}, err
	}

	now := r.now()
	album := models.Album{
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
	err := r.run(ctx, func(ctx context.Context) error {
		existing, err := r.albums.CountDocuments(ctx, bson.M{"title": params.Title}, options.Count().SetLimit(1))
		if err != nil {
			return translateMongoError(err, "")
		}
		if existing > 0 {
			return apperr.Conflict(msgAlbumExists)
		}
		if err := requireDoc(ctx, r.artists, params.ArtistID, msgArtistNotFound); err != nil {
			return err
		}
		if _, err := r.albums.InsertOne(ctx, album); err != nil {
			return translateMongoError(err, msgAlbumExists)
		}
		_, err = r.artists.UpdateByID(ctx, params.ArtistID, bson.M{"$addToSet": bson.M{"albums": album.ID}})
		return translateMongoError(err, "")
	})
	if err != nil {
		return models.Album{}, err
	}
	return album, nil
}

func (r *mongoRepository) GetAlbum(ctx context.Context, id string) (models.Album, error) {
	return r.loadAlbum(ctx, bson.M{"_id": id})
}

func (r *mongoRepository) FindAlbumByTitle(ctx context.Context, title string) (models.Album, error) {
	return r.loadAlbum(ctx, bson.M{"title": title})
}

func (r *mongoRepository) loadAlbum(ctx context.Context, filter bson.M) (models.Album, error) {
	ctx, cancel := r.opContext(ctx)
	defer cancel()
	var album models.Album
	if err := findOne(ctx, r.albums, filter, &album, msgAlbumNotFound); err != nil {
		return models.Album{}, err
	}
	return cloneAlbum(album), nil
}

func (r *mongoRepository) UpdateAlbum(ctx context.Context, id string, patch AlbumPatch) (models.Album, error) {
	var updated models.Album
	err := r.run(ctx, func(ctx context.Context) error {
		var album models.Album
		if err := findOne(ctx, r.albums, bson.M{"_id": id}, &album, msgAlbumNotFound); err != nil {
			return err
		}
		merged, err := applyAlbumPatch(cloneAlbum(album), patch)
		if err != nil {
			return err
		}
		merged.UpdatedAt = r.now()
		_, err = r.albums.UpdateByID(ctx, id, bson.M{"$set": bson.M{
			"title":        merged.Title,
			"releasedDate": merged.ReleaseDate,
			"genre":        merged.Genre,
			"description":  merged.Description,
			"coverImage":   merged.CoverImage,
			"isExplicit":   merged.IsExplicit,
			"updatedAt":    merged.UpdatedAt,
		}})
		if err != nil {
			return translateMongoError(err, msgAlbumExists)
		}
		updated = merged
		return nil
	})
	if err != nil {
		return models.Album{}, err
	}
	return updated, nil
}

func (r *mongoRepository) DeleteAlbum(ctx context.Context, id string) error {
	return r.run(ctx, func(ctx context.Context) error {
		if err := requireDoc(ctx, r.albums, id, msgAlbumNotFound); err != nil {
			return err
		}
		return r.deleteAlbums(ctx, bson.M{"_id": id})
	})
}

func (r *mongoRepository) ListAlbums(ctx context.Context, q query.Query) (query.Envelope[models.Album], error) {
	filter := bson.M{}
	if q.Genre != "" {
		filter["genre"] = exactFold(q.Genre)
	}
	if q.ArtistID != "" {
		filter["artist"] = q.ArtistID
	}
	if q.Search != "" {
		filter["$or"] = searchFold(q.Search, "title", "genre", "description")
	}
	order := bson.D{{Key: "releasedDate", Value: -1}, {Key: "_id", Value: 1}}
	if q.Sort == query.SortNewest {
		order = bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}
	}
	items, total, err := listMongo[models.Album](ctx, r, r.albums, filter, order, q)
	if err != nil {
		return query.Envelope[models.Album]{}, err
	}
	for i := range items {
		items[i] = cloneAlbum(items[i])
	}
	return query.NewEnvelope(q, items, total), nil
}

func (r *mongoRepository) AddSongsToAlbum(ctx context.Context, albumID string, songIDs []string) (models.Album, error) {
	ids := uniqueIDs(songIDs)
	if len(ids) == 0 {
		return models.Album{}, apperr.Validation("Song ids are required")
	}

	var updated models.Album
	err := r.run(ctx, func(ctx context.Context) error {
		if err := requireDoc(ctx, r.albums, albumID, msgAlbumNotFound); err != nil {
			return err
		}
		songs := make([]models.Song, 0, len(ids))
		for _, id := range ids {
			var song models.Song
			if err := findOne(ctx, r.songs, bson.M{"_id": id}, &song, msgSongNotFound); err != nil {
				return err
			}
			songs = append(songs, song)
		}
		for _, song := range songs {
			if err := r.moveSong(ctx, song, albumID); err != nil {
				return err
			}
		}
		return r.touchAlbum(ctx, albumID, &updated)
	})
	if err != nil {
		return models.Album{}, err
	}
	return updated, nil
}

func (r *mongoRepository) RemoveSongFromAlbum(ctx context.Context, albumID, songID string) (models.Album, error) {
	var updated models.Album
	err := r.run(ctx, func(ctx context.Context) error {
		if err := requireDoc(ctx, r.albums, albumID, msgAlbumNotFound); err != nil {
			return err
		}
		var song models.Song
		if err := findOne(ctx, r.songs, bson.M{"_id": songID}, &song, msgSongNotFound); err != nil {
			return err
		}
		if !song.InAlbum(albumID) {
			return apperr.NotFound("Song is not part of this album")
		}
		if err := r.moveSong(ctx, song, ""); err != nil {
			return err
		}
		return r.touchAlbum(ctx, albumID, &updated)
	})
	if err != nil {
		return models.Album{}, err
	}
	return updated, nil
}

func (r *mongoRepository) touchAlbum(ctx context.Context, albumID string, out *models.Album) error {
	if _, err := r.albums.UpdateByID(ctx, albumID, bson.M{"$set": bson.M{"updatedAt": r.now()}}); err != nil {
		return translateMongoError(err, "")
	}
	var album models.Album
	if err := findOne(ctx, r.albums, bson.M{"_id": albumID}, &album, msgAlbumNotFound); err != nil {
		return err
	}
	*out = cloneAlbum(album)
	return nil
}

// Song operations

func (r *mongoRepository) CreateSong(ctx context.Context, params CreateSongParams) (models.Song, error) {
	params.normalize(r.now())
	if err := validateParams(&params); err != nil {
		return models.Song{}, err
	}

	now := r.now()
	song := models.Song{
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
	if params.AlbumID != "" {
		albumID := params.AlbumID
		song.AlbumID = &albumID
	}
	err := r.run(ctx, func(ctx context.Context) error {
		if err := requireDoc(ctx, r.artists, params.ArtistID, msgArtistNotFound); err != nil {
			return err
		}
		if params.AlbumID != "" {
			if err := requireDoc(ctx, r.albums, params.AlbumID, msgAlbumNotFound); err != nil {
				return err
			}
		}
		if err := r.requireFeatured(ctx, params.FeaturedArtists); err != nil {
			return err
		}
		if _, err := r.songs.InsertOne(ctx, song); err != nil {
			return translateMongoError(err, "")
		}
		if _, err := r.artists.UpdateByID(ctx, params.ArtistID, bson.M{"$addToSet": bson.M{"songs": song.ID}}); err != nil {
			return translateMongoError(err, "")
		}
		if params.AlbumID != "" {
			if _, err := r.albums.UpdateByID(ctx, params.AlbumID, bson.M{"$addToSet": bson.M{"songs": song.ID}}); err != nil {
				return translateMongoError(err, "")
			}
		}
		return nil
	})
	if err != nil {
		return models.Song{}, err
	}
	return cloneSong(song), nil
}

func (r *mongoRepository) GetSong(ctx context.Context, id string) (models.Song, error) {
	ctx, cancel := r.opContext(ctx)
	defer cancel()
	var song models.Song
	if err := findOne(ctx, r.songs, bson.M{"_id": id}, &song, msgSongNotFound); err != nil {
		return models.Song{}, err
	}
	return cloneSong(song), nil
}

func (r *mongoRepository) UpdateSong(ctx context.Context, id string, patch SongPatch) (models.Song, error) {
	var updated models.Song
	err := r.run(ctx, func(ctx context.Context) error {
		var song models.Song
		if err := findOne(ctx, r.songs, bson.M{"_id": id}, &song, msgSongNotFound); err != nil {
			return err
		}
		merged, err := applySongPatch(cloneSong(song), patch)
		if err != nil {
			return err
		}
		if patch.FeaturedArtists != nil {
			featured := uniqueIDs(*patch.FeaturedArtists)
			if err := r.requireFeatured(ctx, featured); err != nil {
				return err
			}
			merged.FeaturedArtists = featured
		}
		target, moving := albumTarget(patch)
		if moving && target != "" {
			if err := requireDoc(ctx, r.albums, target, msgAlbumNotFound); err != nil {
				return err
			}
		}
		merged.UpdatedAt = r.now()
		_, err = r.songs.UpdateByID(ctx, id, bson.M{"$set": bson.M{
			"title":           merged.Title,
			"duration":        merged.Duration,
			"audioUrl":        merged.AudioURL,
			"coverImage":      merged.CoverImage,
			"releaseDate":     merged.ReleaseDate,
			"genre":           merged.Genre,
			"isExplicit":      merged.IsExplicit,
			"plays":           merged.Plays,
			"featuredArtists": merged.FeaturedArtists,
			"updatedAt":       merged.UpdatedAt,
		}})
		if err != nil {
			return translateMongoError(err, "")
		}
		if moving {
			if err := r.moveSong(ctx, song, target); err != nil {
				return err
			}
			merged.AlbumID = nil
			if target != "" {
				merged.AlbumID = &target
			}
		}
		updated = merged
		return nil
	})
	if err != nil {
		return models.Song{}, err
	}
	return updated, nil
}

func (r *mongoRepository) DeleteSong(ctx context.Context, id string) error {
	return r.run(ctx, func(ctx context.Context) error {
		if err := requireDoc(ctx, r.songs, id, msgSongNotFound); err != nil {
			return err
		}
		return r.deleteSongs(ctx, bson.M{"_id": id})
	})
}

func (r *mongoRepository) ListSongs(ctx context.Context, q query.Query) (query.Envelope[models.Song], error) {
	filter := bson.M{}
	if q.Genre != "" {
		filter["genre"] = exactFold(q.Genre)
	}
	if q.ArtistID != "" {
		filter["artist"] = q.ArtistID
	}
	if q.AlbumID != "" {
		filter["album"] = q.AlbumID
	}
	if q.Search != "" {
		filter["$or"] = searchFold(q.Search, "title", "genre")
	}
	var order bson.D
	switch q.Sort {
	case query.SortPlays:
		order = bson.D{{Key: "plays", Value: -1}, {Key: "_id", Value: 1}}
	case query.SortNewest:
		order = bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}
	default:
		order = bson.D{{Key: "releaseDate", Value: -1}, {Key: "_id", Value: 1}}
	}
	items, total, err := listMongo[models.Song](ctx, r, r.songs, filter, order, q)
	if err != nil {
		return query.Envelope[models.Song]{}, err
	}
	for i := range items {
		items[i] = cloneSong(items[i])
	}
	return query.NewEnvelope(q, items, total), nil
}

// Integrity helpers. These are the only writers of the embedded
// back-reference arrays.

// moveSong points song at albumID and keeps both album.songs arrays in step.
// An empty albumID detaches the song.
func (r *mongoRepository) moveSong(ctx context.Context, song models.Song, albumID string) error {
	if song.AlbumID != nil {
		if *song.AlbumID == albumID {
			return nil
		}
		if _, err := r.albums.UpdateByID(ctx, *song.AlbumID, bson.M{"$pull": bson.M{"songs": song.ID}}); err != nil {
			return translateMongoError(err, "")
		}
	}
	now := r.now()
	if albumID == "" {
		_, err := r.songs.UpdateByID(ctx, song.ID, bson.M{
			"$unset": bson.M{"album": ""},
			"$set":   bson.M{"updatedAt": now},
		})
		return translateMongoError(err, "")
	}
	if _, err := r.songs.UpdateByID(ctx, song.ID, bson.M{"$set": bson.M{"album": albumID, "updatedAt": now}}); err != nil {
		return translateMongoError(err, "")
	}
	_, err := r.albums.UpdateByID(ctx, albumID, bson.M{"$addToSet": bson.M{"songs": song.ID}})
	return translateMongoError(err, "")
}

// deleteSongs removes the matching songs and every id that points at them.
func (r *mongoRepository) deleteSongs(ctx context.Context, filter bson.M) error {
	ids, err := collectIDs(ctx, r.songs, filter)
	if err != nil || len(ids) == 0 {
		return err
	}
	in := bson.M{"$in": ids}
	pulls := []struct {
		coll  *mongo.Collection
		field string
	}{
		{r.artists, "songs"},
		{r.albums, "songs"},
		{r.users, "likedSongs"},
	}
	for _, pull := range pulls {
		if _, err := pull.coll.UpdateMany(ctx, bson.M{pull.field: in}, bson.M{"$pull": bson.M{pull.field: in}}); err != nil {
			return translateMongoError(err, "")
		}
	}
	_, err = r.songs.DeleteMany(ctx, bson.M{"_id": in})
	return translateMongoError(err, "")
}

// deleteAlbums unsets the album on its surviving songs, removes it from its
// artist and from users' liked albums, then removes the album.
func (r *mongoRepository) deleteAlbums(ctx context.Context, filter bson.M) error {
	ids, err := collectIDs(ctx, r.albums, filter)
	if err != nil || len(ids) == 0 {
		return err
	}
	in := bson.M{"$in": ids}
	if _, err := r.songs.UpdateMany(ctx, bson.M{"album": in}, bson.M{"$unset": bson.M{"album": ""}}); err != nil {
		return translateMongoError(err, "")
	}
	if _, err := r.artists.UpdateMany(ctx, bson.M{"albums": in}, bson.M{"$pull": bson.M{"albums": in}}); err != nil {
		return translateMongoError(err, "")
	}
	if _, err := r.users.UpdateMany(ctx, bson.M{"likedAlbums": in}, bson.M{"$pull": bson.M{"likedAlbums": in}}); err != nil {
		return translateMongoError(err, "")
	}
	_, err = r.albums.DeleteMany(ctx, bson.M{"_id": in})
	return translateMongoError(err, "")
}

func collectIDs(ctx context.Context, coll *mongo.Collection, filter bson.M) ([]string, error) {
	cursor, err := coll.Find(ctx, filter, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, translateMongoError(err, "")
	}
	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, translateMongoError(err, "")
	}
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.ID)
	}
	return ids, nil
}

// exactFold matches a whole string value ignoring case.
func exactFold(value string) primitive.Regex {
	return primitive.Regex{Pattern: "^" + regexp.QuoteMeta(value) + "$", Options: "i"}
}

// searchFold ORs a case-insensitive substring match across fields.
func searchFold(term string, fields ...string) bson.A {
	pattern := primitive.Regex{Pattern: regexp.QuoteMeta(term), Options: "i"}
	clauses := make(bson.A, 0, len(fields))
	for _, field := range fields {
		clauses = append(clauses, bson.M{field: pattern})
	}
	return clauses
}

// listMongo runs the count and the page query concurrently.
func listMongo[T any](
	ctx context.Context,
	r *mongoRepository,
	coll *mongo.Collection,
	filter bson.M,
	order bson.D,
	q query.Query,
) ([]T, int, error) {
	ctx, cancel := r.opContext(ctx)
	defer cancel()

	limit := q.Limit
	if limit <= 0 {
		limit = query.DefaultLimit
	}

	var (
		total int64
		items []T
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		count, err := coll.CountDocuments(gctx, filter)
		if err != nil {
			return translateMongoError(fmt.Errorf("count %s: %w", coll.Name(), err), "")
		}
		total = count
		return nil
	})
	g.Go(func() error {
		findOpts := options.Find().
			SetSort(order).
			SetSkip(int64(q.Skip())).
			SetLimit(int64(limit))
		cursor, err := coll.Find(gctx, filter, findOpts)
		if err != nil {
			return translateMongoError(fmt.Errorf("list %s: %w", coll.Name(), err), "")
		}
		if err := cursor.All(gctx, &items); err != nil {
			return translateMongoError(fmt.Errorf("decode %s: %w", coll.Name(), err), "")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return items, int(total), nil
}

func (r *mongoRepository) importSnapshot(ctx context.Context, snapshot *Snapshot) error {
	return r.run(ctx, func(ctx context.Context) error {
		upsert := options.Replace().SetUpsert(true)
		for id, user := range snapshot.Users {
			if _, err := r.users.ReplaceOne(ctx, bson.M{"_id": id}, cloneUser(user), upsert); err != nil {
				return translateMongoError(fmt.Errorf("import user %s: %w", id, err), msgUserExists)
			}
		}
		for id, artist := range snapshot.Artists {
			if _, err := r.artists.ReplaceOne(ctx, bson.M{"_id": id}, cloneArtist(artist), upsert); err != nil {
				return translateMongoError(fmt.Errorf("import artist %s: %w", id, err), msgArtistExists)
			}
		}
		for id, album := range snapshot.Albums {
			if _, err := r.albums.ReplaceOne(ctx, bson.M{"_id": id}, cloneAlbum(album), upsert); err != nil {
				return translateMongoError(fmt.Errorf("import album %s: %w", id, err), msgAlbumExists)
			}
		}
		for id, song := range snapshot.Songs {
			if _, err := r.songs.ReplaceOne(ctx, bson.M{"_id": id}, cloneSong(song), upsert); err != nil {
				return translateMongoError(fmt.Errorf("import song %s: %w", id, err), "")
			}
		}
		return nil
	})
}

var _ Repository = (*mongoRepository)(nil)
