package storage

import (
	"context"
	"fmt"
	"strings"
)

// Open connects to the repository named by driver. target is the JSON file
// path, the Postgres DSN or the Mongo URI depending on driver.
func Open(ctx context.Context, driver, target string, opts ...Option) (Repository, error) {
	target = strings.TrimSpace(target)
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "json":
		if target == "" {
			return nil, fmt.Errorf("json storage requires a file path")
		}
		store, err := NewStorage(target, opts...)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "postgres":
		if target == "" {
			return nil, fmt.Errorf("postgres storage requires a dsn")
		}
		return NewPostgresRepository(ctx, target, opts...)
	case "mongo":
		if target == "" {
			return nil, fmt.Errorf("mongo storage requires a uri")
		}
		return NewMongoRepository(ctx, target, opts...)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", driver)
	}
}
