package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// LoadSnapshotFromJSON reads a JSON store file so it can be replayed into
// another repository.
func LoadSnapshotFromJSON(path string) (*Snapshot, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot %s: %w", path, err)
	}
	defer file.Close()

	var data dataset
	if err := json.NewDecoder(file).Decode(&data); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	data.ensureInitialized()
	return &Snapshot{Users: data.Users, Artists: data.Artists, Albums: data.Albums, Songs: data.Songs}, nil
}

func (s *Snapshot) ensureInitialized() {
	data := dataset{Users: s.Users, Artists: s.Artists, Albums: s.Albums, Songs: s.Songs}
	data.ensureInitialized()
	s.Users, s.Artists, s.Albums, s.Songs = data.Users, data.Artists, data.Albums, data.Songs
}

// Counts summarises how many records the snapshot holds.
func (s *Snapshot) Counts() SnapshotCounts {
	if s == nil {
		return SnapshotCounts{}
	}
	return SnapshotCounts{
		Users:   len(s.Users),
		Artists: len(s.Artists),
		Albums:  len(s.Albums),
		Songs:   len(s.Songs),
	}
}

// snapshotImporter is implemented by repositories that can bulk-load a
// snapshot in a single atomic step.
type snapshotImporter interface {
	importSnapshot(ctx context.Context, snapshot *Snapshot) error
}

// ImportSnapshot replays snapshot into repo. Records keep their ids; existing
// records with the same id are replaced.
func ImportSnapshot(ctx context.Context, repo Repository, snapshot *Snapshot) error {
	if snapshot == nil {
		return fmt.Errorf("snapshot is required")
	}
	importer, ok := repo.(snapshotImporter)
	if !ok {
		return fmt.Errorf("repository %T does not support snapshot import", repo)
	}
	snapshot.ensureInitialized()
	return importer.importSnapshot(ctx, snapshot)
}

func (s *Storage) importSnapshot(ctx context.Context, snapshot *Snapshot) error {
	incoming := cloneDataset(dataset{
		Users:   snapshot.Users,
		Artists: snapshot.Artists,
		Albums:  snapshot.Albums,
		Songs:   snapshot.Songs,
	})
	return s.mutate(ctx, func(data *dataset) error {
		for id, user := range incoming.Users {
			data.Users[id] = user
		}
		for id, artist := range incoming.Artists {
			data.Artists[id] = artist
		}
		for id, album := range incoming.Albums {
			data.Albums[id] = album
		}
		for id, song := range incoming.Songs {
			data.Songs[id] = song
		}
		return nil
	})
}
