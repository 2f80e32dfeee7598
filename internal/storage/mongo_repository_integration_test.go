//go:build mongo

package storage

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func startEphemeralMongo(t *testing.T) (string, func()) {
	t.Helper()

	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("SOUNDCRATE_TEST_MONGO_URI not set and docker unavailable")
	}
	port := envOrMongo("SOUNDCRATE_TEST_MONGO_PORT", "27037")
	image := envOrMongo("SOUNDCRATE_TEST_MONGO_IMAGE", "mongo:7")

	containerName := fmt.Sprintf("soundcrate-mongo-test-%d", time.Now().UnixNano())
	args := []string{
		"run", "--rm", "--detach",
		"--name", containerName,
		"--publish", fmt.Sprintf("%s:27017", port),
		image,
	}
	if output, err := exec.Command("docker", args...).CombinedOutput(); err != nil {
		t.Skipf("start mongo container: %v: %s", err, string(output))
	}
	cleanup := func() {
		_ = exec.Command("docker", "rm", "-f", containerName).Run()
	}
	return fmt.Sprintf("mongodb://127.0.0.1:%s", port), cleanup
}

func envOrMongo(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

// mongoRepositoryFactory opens a repository on a database unique to the test
// and drops it afterwards. Transactions are enabled only when
// SOUNDCRATE_TEST_MONGO_TRANSACTIONS is set, since they need a replica set.
func mongoRepositoryFactory(t *testing.T, opts ...Option) (Repository, func(), error) {
	t.Helper()

	uri := os.Getenv("SOUNDCRATE_TEST_MONGO_URI")
	var dockerCleanup func()
	if strings.TrimSpace(uri) == "" {
		uri, dockerCleanup = startEphemeralMongo(t)
	}

	database := fmt.Sprintf("soundcrate_test_%d", time.Now().UnixNano())
	defaults := []Option{
		WithClock(newStepClock()),
		WithMongoDatabase(database),
		WithMongoTimeouts(30*time.Second, 10*time.Second),
		WithMongoTransactions(os.Getenv("SOUNDCRATE_TEST_MONGO_TRANSACTIONS") != ""),
	}
	repo, err := NewMongoRepository(context.Background(), uri, append(defaults, opts...)...)
	if err != nil {
		if dockerCleanup != nil {
			dockerCleanup()
		}
		return nil, nil, err
	}

	cleanup := func() {
		mongoRepo := repo.(*mongoRepository)
		if err := mongoRepo.client.Database(database).Drop(context.Background()); err != nil {
			t.Errorf("drop database: %v", err)
		}
		if err := repo.Close(context.Background()); err != nil {
			t.Errorf("close repository: %v", err)
		}
		if dockerCleanup != nil {
			dockerCleanup()
		}
	}
	return repo, cleanup, nil
}

func TestMongoRepositoryScenarios(t *testing.T) {
	runRepositoryScenarios(t, mongoRepositoryFactory)
}

func TestMongoImportSnapshot(t *testing.T) {
	source := newTestStore(t)
	artist := mustCreateArtist(t, source, "Imported")
	album := mustCreateAlbum(t, source, artist.ID, "Moved Over", "Pop", time.Date(2012, 2, 2, 0, 0, 0, 0, time.UTC))
	song := mustCreateSong(t, source, artist.ID, album.ID, "Carried")

	repo := runRepository(t, mongoRepositoryFactory)
	ctx := context.Background()
	if err := ImportSnapshot(ctx, repo, source.Snapshot()); err != nil {
		t.Fatalf("ImportSnapshot: %v", err)
	}
	got, err := repo.GetSong(ctx, song.ID)
	if err != nil {
		t.Fatalf("GetSong: %v", err)
	}
	if !got.InAlbum(album.ID) {
		t.Fatalf("expected imported album reference, got %+v", got.AlbumID)
	}
}
