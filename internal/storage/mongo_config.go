package storage

import (
	"log/slog"
	"time"
)

// MongoConfig describes how the repository connects to MongoDB.
type MongoConfig struct {
	URI              string
	Database         string
	ConnectTimeout   time.Duration
	OperationTimeout time.Duration
	// Transactions wraps multi-document writes in a session transaction.
	Transactions bool
	Clock        func() time.Time
	Logger       *slog.Logger
}

func newMongoConfig(uri string, opts ...Option) MongoConfig {
	cfg := MongoConfig{
		URI:              uri,
		Database:         "soundcrate",
		ConnectTimeout:   10 * time.Second,
		OperationTimeout: 5 * time.Second,
		Clock:            func() time.Time { return time.Now().UTC() },
		Logger:           slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt.applyMongo(&cfg)
		}
	}
	return cfg
}
