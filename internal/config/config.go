// Package config resolves the runtime settings of the SoundCrate server.
//
// Values are layered, later sources winning: built-in defaults, an optional
// TOML file, a .env file, the process environment, and command-line flags.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"soundcrate/internal/media"
	"soundcrate/internal/observability/logging"
	"soundcrate/internal/storage"
)

// Storage drivers.
const (
	DriverJSON     = "json"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Media backends.
const (
	MediaDisk       = "disk"
	MediaCloudinary = "cloudinary"
	MediaS3         = "s3"
)

type Config struct {
	Server  ServerConfig  `toml:"server"`
	Log     LogConfig     `toml:"log"`
	Storage StorageConfig `toml:"storage"`
	Auth    AuthConfig    `toml:"auth"`
	Media   MediaConfig   `toml:"media"`
	Rate    RateConfig    `toml:"rate"`
	CORS    CORSConfig    `toml:"cors"`
}

type ServerConfig struct {
	Addr            string        `toml:"addr"`
	TLSCertFile     string        `toml:"tls_cert"`
	TLSKeyFile      string        `toml:"tls_key"`
	ReadTimeout     time.Duration `toml:"read_timeout"`
	WriteTimeout    time.Duration `toml:"write_timeout"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type StorageConfig struct {
	Driver   string         `toml:"driver"`
	JSONPath string         `toml:"json_path"`
	Postgres PostgresConfig `toml:"postgres"`
	Mongo    MongoConfig    `toml:"mongo"`
}

type PostgresConfig struct {
	DSN             string        `toml:"dsn"`
	MaxConns        int           `toml:"max_conns"`
	MinConns        int           `toml:"min_conns"`
	MaxConnLifetime time.Duration `toml:"max_conn_lifetime"`
	MaxConnIdle     time.Duration `toml:"max_conn_idle"`
	HealthInterval  time.Duration `toml:"health_interval"`
	AcquireTimeout  time.Duration `toml:"acquire_timeout"`
	AppName         string        `toml:"app_name"`
}

type MongoConfig struct {
	URI              string        `toml:"uri"`
	Database         string        `toml:"database"`
	ConnectTimeout   time.Duration `toml:"connect_timeout"`
	OperationTimeout time.Duration `toml:"operation_timeout"`
	Transactions     bool          `toml:"transactions"`
}

type AuthConfig struct {
	JWTSecret string        `toml:"jwt_secret"`
	TokenTTL  time.Duration `toml:"token_ttl"`
	Issuer    string        `toml:"issuer"`
}

// MediaConfig selects where uploads end up. An empty Backend picks
// cloudinary when CloudinaryURL is set and the disk backend otherwise.
type MediaConfig struct {
	Backend       string        `toml:"backend"`
	UploadDir     string        `toml:"upload_dir"`
	MaxFileBytes  int64         `toml:"max_file_bytes"`
	UploadTimeout time.Duration `toml:"upload_timeout"`
	CloudinaryURL string        `toml:"cloudinary_url"`
	S3            S3Config      `toml:"s3"`
	DiskDir       string        `toml:"disk_dir"`
	DiskBaseURL   string        `toml:"disk_base_url"`
}

type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	Region         string `toml:"region"`
	UseSSL         bool   `toml:"use_ssl"`
	Prefix         string `toml:"prefix"`
	PublicEndpoint string `toml:"public_endpoint"`
}

type RateConfig struct {
	GlobalRPS     float64       `toml:"global_rps"`
	GlobalBurst   int           `toml:"global_burst"`
	LoginLimit    int           `toml:"login_limit"`
	LoginWindow   time.Duration `toml:"login_window"`
	RedisAddr     string        `toml:"redis_addr"`
	RedisPassword string        `toml:"redis_password"`
	RedisDB       int           `toml:"redis_db"`
	RedisTimeout  time.Duration `toml:"redis_timeout"`
}

type CORSConfig struct {
	AllowedOrigins []string `toml:"allowed_origins"`
}

// Default returns settings suitable for a local development server backed by
// a JSON file and the disk media backend.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     2 * time.Minute,
			WriteTimeout:    3 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: string(logging.FormatJSON)},
		Storage: StorageConfig{
			Driver:   DriverJSON,
			JSONPath: "data/soundcrate.json",
			Mongo:    MongoConfig{Database: "soundcrate"},
		},
		Auth: AuthConfig{TokenTTL: 30 * 24 * time.Hour, Issuer: "soundcrate"},
		Media: MediaConfig{
			UploadDir:     "uploads",
			UploadTimeout: 2 * time.Minute,
			DiskDir:       "data/media",
			DiskBaseURL:   "/media",
		},
		Rate: RateConfig{
			LoginLimit:   10,
			LoginWindow:  time.Minute,
			RedisTimeout: 2 * time.Second,
		},
	}
}

// MediaBackend reports the backend that will actually be used.
func (c Config) MediaBackend() string {
	backend := strings.ToLower(strings.TrimSpace(c.Media.Backend))
	if backend != "" {
		return backend
	}
	if strings.TrimSpace(c.Media.CloudinaryURL) != "" {
		return MediaCloudinary
	}
	return MediaDisk
}

// Validate reports every setting that would stop the server from starting.
func (c Config) Validate() error {
	var problems []error

	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		problems = append(problems, errors.New("auth: jwt secret is required (SOUNDCRATE_JWT_SECRET or JWT)"))
	}
	if c.Auth.TokenTTL < 0 {
		problems = append(problems, errors.New("auth: token ttl must not be negative"))
	}

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case DriverJSON:
		if strings.TrimSpace(c.Storage.JSONPath) == "" {
			problems = append(problems, errors.New("storage: json path is required for the json driver"))
		}
	case DriverPostgres:
		if strings.TrimSpace(c.Storage.Postgres.DSN) == "" {
			problems = append(problems, errors.New("storage: postgres dsn is required (SOUNDCRATE_POSTGRES_DSN or DATABASE_URL)"))
		}
		if c.Storage.Postgres.MinConns > c.Storage.Postgres.MaxConns && c.Storage.Postgres.MaxConns > 0 {
			problems = append(problems, errors.New("storage: postgres min conns exceeds max conns"))
		}
	case DriverMongo:
		if strings.TrimSpace(c.Storage.Mongo.URI) == "" {
			problems = append(problems, errors.New("storage: mongo uri is required (SOUNDCRATE_MONGO_URI or MONGO_URI)"))
		}
	default:
		problems = append(problems, fmt.Errorf("storage: unknown driver %q", c.Storage.Driver))
	}

	switch c.MediaBackend() {
	case MediaDisk:
		if strings.TrimSpace(c.Media.DiskDir) == "" {
			problems = append(problems, errors.New("media: disk dir is required for the disk backend"))
		}
	case MediaCloudinary:
		if strings.TrimSpace(c.Media.CloudinaryURL) == "" {
			problems = append(problems, errors.New("media: cloudinary url is required (SOUNDCRATE_CLOUDINARY_URL or CLOUDINARY_URL)"))
		}
	case MediaS3:
		if strings.TrimSpace(c.Media.S3.Endpoint) == "" || strings.TrimSpace(c.Media.S3.Bucket) == "" {
			problems = append(problems, errors.New("media: s3 endpoint and bucket are required"))
		}
	default:
		problems = append(problems, fmt.Errorf("media: unknown backend %q", c.Media.Backend))
	}
	if c.Media.MaxFileBytes < 0 {
		problems = append(problems, errors.New("media: max file bytes must not be negative"))
	}
	if c.Server.WriteTimeout > 0 && c.Media.UploadTimeout > 0 && c.Server.WriteTimeout <= c.Media.UploadTimeout {
		problems = append(problems, errors.New("server: write timeout must exceed the media upload timeout"))
	}

	if !logging.ValidFormat(c.Log.Format) {
		problems = append(problems, fmt.Errorf("log: unknown format %q", c.Log.Format))
	}
	if c.Rate.GlobalRPS < 0 || c.Rate.GlobalBurst < 0 || c.Rate.LoginLimit < 0 {
		problems = append(problems, errors.New("rate: limits must not be negative"))
	}
	if (strings.TrimSpace(c.Server.TLSCertFile) == "") != (strings.TrimSpace(c.Server.TLSKeyFile) == "") {
		problems = append(problems, errors.New("server: both tls cert and key must be provided"))
	}

	return errors.Join(problems...)
}

// Target is the path, DSN or URI handed to storage.Open for Driver.
func (s StorageConfig) Target() string {
	switch strings.ToLower(strings.TrimSpace(s.Driver)) {
	case DriverPostgres:
		return s.Postgres.DSN
	case DriverMongo:
		return s.Mongo.URI
	default:
		return s.JSONPath
	}
}

// Options translates the pool and timeout settings into repository options.
func (s StorageConfig) Options(logger *slog.Logger) []storage.Option {
	opts := []storage.Option{
		storage.WithPostgresPoolLimits(int32(s.Postgres.MaxConns), int32(s.Postgres.MinConns)),
		storage.WithPostgresPoolDurations(s.Postgres.MaxConnLifetime, s.Postgres.MaxConnIdle, s.Postgres.HealthInterval),
		storage.WithPostgresAcquireTimeout(s.Postgres.AcquireTimeout),
		storage.WithPostgresApplicationName(s.Postgres.AppName),
		storage.WithMongoDatabase(s.Mongo.Database),
		storage.WithMongoTimeouts(s.Mongo.ConnectTimeout, s.Mongo.OperationTimeout),
		storage.WithMongoTransactions(s.Mongo.Transactions),
	}
	if logger != nil {
		opts = append(opts, storage.WithLogger(logger))
	}
	return opts
}

// MediaBackendConfig maps the media section onto media.NewBackend.
func (c Config) MediaBackendConfig() media.Config {
	return media.Config{
		Backend:       c.MediaBackend(),
		CloudinaryURL: c.Media.CloudinaryURL,
		S3: media.S3Config{
			Endpoint:       c.Media.S3.Endpoint,
			Bucket:         c.Media.S3.Bucket,
			AccessKey:      c.Media.S3.AccessKey,
			SecretKey:      c.Media.S3.SecretKey,
			Region:         c.Media.S3.Region,
			UseSSL:         c.Media.S3.UseSSL,
			Prefix:         c.Media.S3.Prefix,
			PublicEndpoint: c.Media.S3.PublicEndpoint,
		},
		DiskDir:     c.Media.DiskDir,
		DiskBaseURL: c.Media.DiskBaseURL,
	}
}
