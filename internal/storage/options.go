package storage

import (
	"log/slog"
	"strings"
	"time"
)

// Option configures a repository. Options that only make sense for one
// backend are ignored by the others.
type Option interface {
	applyJSON(*Storage)
	applyPostgres(*PostgresConfig)
	applyMongo(*MongoConfig)
}

type optionAdapter struct {
	json  func(*Storage)
	pg    func(*PostgresConfig)
	mongo func(*MongoConfig)
}

func (o optionAdapter) applyJSON(store *Storage) {
	if o.json != nil && store != nil {
		o.json(store)
	}
}

func (o optionAdapter) applyPostgres(cfg *PostgresConfig) {
	if o.pg != nil && cfg != nil {
		o.pg(cfg)
	}
}

func (o optionAdapter) applyMongo(cfg *MongoConfig) {
	if o.mongo != nil && cfg != nil {
		o.mongo(cfg)
	}
}

func composeOption(json func(*Storage), pg func(*PostgresConfig), mongo func(*MongoConfig)) Option {
	return optionAdapter{json: json, pg: pg, mongo: mongo}
}

func postgresOnlyOption(pg func(*PostgresConfig)) Option {
	return optionAdapter{pg: pg}
}

func mongoOnlyOption(mongo func(*MongoConfig)) Option {
	return optionAdapter{mongo: mongo}
}

// WithClock overrides the time source used for createdAt, updatedAt and
// default release dates.
func WithClock(now func() time.Time) Option {
	if now == nil {
		return optionAdapter{}
	}
	return composeOption(
		func(s *Storage) { s.now = now },
		func(cfg *PostgresConfig) { cfg.Clock = now },
		func(cfg *MongoConfig) { cfg.Clock = now },
	)
}

// WithLogger routes repository diagnostics to logger.
func WithLogger(logger *slog.Logger) Option {
	if logger == nil {
		return optionAdapter{}
	}
	return composeOption(
		func(s *Storage) { s.logger = logger },
		func(cfg *PostgresConfig) { cfg.Logger = logger },
		func(cfg *MongoConfig) { cfg.Logger = logger },
	)
}

func WithPostgresPoolLimits(maxConns, minConns int32) Option {
	return postgresOnlyOption(func(cfg *PostgresConfig) {
		if maxConns > 0 {
			cfg.MaxConnections = maxConns
		}
		if minConns >= 0 {
			cfg.MinConnections = minConns
		}
	})
}

// WithPostgresAcquireTimeout bounds how long the repository waits to obtain a
// pooled connection. The same deadline applies to the first statement run on
// that connection.
func WithPostgresAcquireTimeout(timeout time.Duration) Option {
	return postgresOnlyOption(func(cfg *PostgresConfig) {
		if timeout > 0 {
			cfg.AcquireTimeout = timeout
		}
	})
}

func WithPostgresPoolDurations(maxLifetime, maxIdle, healthInterval time.Duration) Option {
	return postgresOnlyOption(func(cfg *PostgresConfig) {
		if maxLifetime > 0 {
			cfg.MaxConnLifetime = maxLifetime
		}
		if maxIdle > 0 {
			cfg.MaxConnIdleTime = maxIdle
		}
		if healthInterval > 0 {
			cfg.HealthCheckInterval = healthInterval
		}
	})
}

func WithPostgresApplicationName(name string) Option {
	return postgresOnlyOption(func(cfg *PostgresConfig) {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			cfg.ApplicationName = trimmed
		}
	})
}

// WithMongoDatabase selects the database holding the catalog collections.
func WithMongoDatabase(name string) Option {
	return mongoOnlyOption(func(cfg *MongoConfig) {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			cfg.Database = trimmed
		}
	})
}

func WithMongoTimeouts(connect, operation time.Duration) Option {
	return mongoOnlyOption(func(cfg *MongoConfig) {
		if connect > 0 {
			cfg.ConnectTimeout = connect
		}
		if operation > 0 {
			cfg.OperationTimeout = operation
		}
	})
}

// WithMongoTransactions toggles multi-document transactions. They require a
// replica set; standalone servers fall back to idempotent step-by-step writes.
func WithMongoTransactions(enabled bool) Option {
	return mongoOnlyOption(func(cfg *MongoConfig) {
		cfg.Transactions = enabled
	})
}
