package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	envConfigFile  = "SOUNDCRATE_CONFIG"
	envEnvFile     = "SOUNDCRATE_ENV_FILE"
	defaultEnvFile = ".env"
)

// Options names the sources Load reads. Zero values use the process
// arguments and environment.
type Options struct {
	// Args excludes the program name. Nil skips flag parsing.
	Args      []string
	LookupEnv func(string) (string, bool)
	// Output receives flag usage and parse errors.
	Output io.Writer
}

// Load layers defaults, the TOML file, .env, the environment and flags. The
// result is not validated; servers call Validate before using it.
func Load(opts Options) (Config, error) {
	cfg := Default()

	flags, err := parseFlags(opts.Args, opts.Output)
	if err != nil {
		return Config{}, err
	}

	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	envFile := firstNonEmpty(flags.envFile, lookupValue(lookup, envEnvFile))
	dotenv, err := readDotEnv(envFile)
	if err != nil {
		return Config{}, err
	}
	env := &envSource{lookup: layeredLookup(lookup, dotenv)}

	if path := firstNonEmpty(flags.configFile, env.get(envConfigFile)); path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg, env)
	if err := errors.Join(env.errs...); err != nil {
		return Config{}, err
	}
	flags.apply(&cfg)
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		sort.Strings(keys)
		return fmt.Errorf("read config %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	return nil
}

// readDotEnv loads path without touching the process environment. A missing
// default .env is not an error; a missing explicit file is.
func readDotEnv(path string) (map[string]string, error) {
	explicit := path != ""
	if !explicit {
		path = defaultEnvFile
	}
	values, err := godotenv.Read(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read env file %s: %w", path, err)
	}
	return values, nil
}

func layeredLookup(primary func(string) (string, bool), fallback map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		if value, ok := primary(key); ok {
			return value, true
		}
		value, ok := fallback[key]
		return value, ok
	}
}

func lookupValue(lookup func(string) (string, bool), key string) string {
	value, _ := lookup(key)
	return strings.TrimSpace(value)
}

func applyEnv(cfg *Config, env *envSource) {
	env.str(&cfg.Server.Addr, "SOUNDCRATE_ADDR")
	if port := env.get("PORT"); port != "" && env.get("SOUNDCRATE_ADDR") == "" {
		cfg.Server.Addr = ":" + port
	}
	env.str(&cfg.Server.TLSCertFile, "SOUNDCRATE_TLS_CERT")
	env.str(&cfg.Server.TLSKeyFile, "SOUNDCRATE_TLS_KEY")
	env.duration(&cfg.Server.ReadTimeout, "SOUNDCRATE_READ_TIMEOUT")
	env.duration(&cfg.Server.WriteTimeout, "SOUNDCRATE_WRITE_TIMEOUT")
	env.duration(&cfg.Server.ShutdownTimeout, "SOUNDCRATE_SHUTDOWN_TIMEOUT")

	env.str(&cfg.Log.Level, "SOUNDCRATE_LOG_LEVEL")
	env.str(&cfg.Log.Format, "SOUNDCRATE_LOG_FORMAT")

	env.str(&cfg.Storage.Driver, "SOUNDCRATE_STORAGE_DRIVER")
	env.str(&cfg.Storage.JSONPath, "SOUNDCRATE_DATA")
	env.str(&cfg.Storage.Postgres.DSN, "SOUNDCRATE_POSTGRES_DSN", "DATABASE_URL")
	env.integer(&cfg.Storage.Postgres.MaxConns, "SOUNDCRATE_POSTGRES_MAX_CONNS")
	env.integer(&cfg.Storage.Postgres.MinConns, "SOUNDCRATE_POSTGRES_MIN_CONNS")
	env.duration(&cfg.Storage.Postgres.MaxConnLifetime, "SOUNDCRATE_POSTGRES_MAX_CONN_LIFETIME")
	env.duration(&cfg.Storage.Postgres.MaxConnIdle, "SOUNDCRATE_POSTGRES_MAX_CONN_IDLE")
	env.duration(&cfg.Storage.Postgres.HealthInterval, "SOUNDCRATE_POSTGRES_HEALTH_INTERVAL")
	env.duration(&cfg.Storage.Postgres.AcquireTimeout, "SOUNDCRATE_POSTGRES_ACQUIRE_TIMEOUT")
	env.str(&cfg.Storage.Postgres.AppName, "SOUNDCRATE_POSTGRES_APP_NAME")
	env.str(&cfg.Storage.Mongo.URI, "SOUNDCRATE_MONGO_URI", "MONGO_URI")
	env.str(&cfg.Storage.Mongo.Database, "SOUNDCRATE_MONGO_DATABASE")
	env.duration(&cfg.Storage.Mongo.ConnectTimeout, "SOUNDCRATE_MONGO_CONNECT_TIMEOUT")
	env.duration(&cfg.Storage.Mongo.OperationTimeout, "SOUNDCRATE_MONGO_OPERATION_TIMEOUT")
	env.boolean(&cfg.Storage.Mongo.Transactions, "SOUNDCRATE_MONGO_TRANSACTIONS")

	env.str(&cfg.Auth.JWTSecret, "SOUNDCRATE_JWT_SECRET", "JWT")
	env.duration(&cfg.Auth.TokenTTL, "SOUNDCRATE_TOKEN_TTL")
	env.str(&cfg.Auth.Issuer, "SOUNDCRATE_TOKEN_ISSUER")

	env.str(&cfg.Media.Backend, "SOUNDCRATE_MEDIA_BACKEND")
	env.str(&cfg.Media.UploadDir, "SOUNDCRATE_UPLOAD_DIR")
	env.int64(&cfg.Media.MaxFileBytes, "SOUNDCRATE_UPLOAD_MAX_BYTES")
	env.duration(&cfg.Media.UploadTimeout, "SOUNDCRATE_UPLOAD_TIMEOUT")
	env.str(&cfg.Media.CloudinaryURL, "SOUNDCRATE_CLOUDINARY_URL", "CLOUDINARY_URL")
	env.str(&cfg.Media.S3.Endpoint, "SOUNDCRATE_S3_ENDPOINT")
	env.str(&cfg.Media.S3.Bucket, "SOUNDCRATE_S3_BUCKET")
	env.str(&cfg.Media.S3.AccessKey, "SOUNDCRATE_S3_ACCESS_KEY")
	env.str(&cfg.Media.S3.SecretKey, "SOUNDCRATE_S3_SECRET_KEY")
	env.str(&cfg.Media.S3.Region, "SOUNDCRATE_S3_REGION")
	env.boolean(&cfg.Media.S3.UseSSL, "SOUNDCRATE_S3_USE_SSL")
	env.str(&cfg.Media.S3.Prefix, "SOUNDCRATE_S3_PREFIX")
	env.str(&cfg.Media.S3.PublicEndpoint, "SOUNDCRATE_S3_PUBLIC_ENDPOINT")
	env.str(&cfg.Media.DiskDir, "SOUNDCRATE_MEDIA_DIR")
	env.str(&cfg.Media.DiskBaseURL, "SOUNDCRATE_MEDIA_BASE_URL")

	env.float(&cfg.Rate.GlobalRPS, "SOUNDCRATE_RATE_GLOBAL_RPS")
	env.integer(&cfg.Rate.GlobalBurst, "SOUNDCRATE_RATE_GLOBAL_BURST")
	env.integer(&cfg.Rate.LoginLimit, "SOUNDCRATE_RATE_LOGIN_LIMIT")
	env.duration(&cfg.Rate.LoginWindow, "SOUNDCRATE_RATE_LOGIN_WINDOW")
	env.str(&cfg.Rate.RedisAddr, "SOUNDCRATE_REDIS_ADDR")
	env.str(&cfg.Rate.RedisPassword, "SOUNDCRATE_REDIS_PASSWORD")
	env.integer(&cfg.Rate.RedisDB, "SOUNDCRATE_REDIS_DB")
	env.duration(&cfg.Rate.RedisTimeout, "SOUNDCRATE_REDIS_TIMEOUT")

	env.list(&cfg.CORS.AllowedOrigins, "SOUNDCRATE_CORS_ORIGINS")
}

// envSource reads the first non-empty variable among keys and collects parse
// errors so they can be reported together.
type envSource struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *envSource) get(keys ...string) string {
	values := make([]string, 0, len(keys))
	for _, key := range keys {
		values = append(values, lookupValue(e.lookup, key))
	}
	return firstNonEmpty(values...)
}

func (e *envSource) find(keys []string) (string, string) {
	for _, key := range keys {
		if value := lookupValue(e.lookup, key); value != "" {
			return key, value
		}
	}
	return "", ""
}

func (e *envSource) str(dst *string, keys ...string) {
	if _, value := e.find(keys); value != "" {
		*dst = value
	}
}

func (e *envSource) integer(dst *int, keys ...string) {
	key, value := e.find(keys)
	parsed, err := resolveInt(*dst, value)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = parsed
}

func (e *envSource) int64(dst *int64, keys ...string) {
	key, value := e.find(keys)
	if value == "" {
		return
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = parsed
}

func (e *envSource) float(dst *float64, keys ...string) {
	key, value := e.find(keys)
	if value == "" {
		return
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = parsed
}

func (e *envSource) boolean(dst *bool, keys ...string) {
	key, value := e.find(keys)
	if value == "" {
		return
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = parsed
}

func (e *envSource) duration(dst *time.Duration, keys ...string) {
	key, value := e.find(keys)
	parsed, err := resolveDuration(*dst, value)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = parsed
}

func (e *envSource) list(dst *[]string, keys ...string) {
	if _, value := e.find(keys); value != "" {
		*dst = splitList(value)
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func resolveInt(current int, raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return current, nil
	}
	return strconv.Atoi(raw)
}

// resolveDuration accepts Go duration strings or a bare number of seconds.
func resolveDuration(current time.Duration, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return current, nil
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	return time.ParseDuration(raw)
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// flagValues holds parsed flags; only flags set on the command line are
// applied.
type flagValues struct {
	configFile string
	envFile    string
	set        map[string]bool

	addr          string
	dataPath      string
	storageDriver string
	postgresDSN   string
	mongoURI      string
	mongoDatabase string
	tlsCert       string
	tlsKey        string
	logLevel      string
	logFormat     string
	mediaBackend  string
	uploadDir     string
	globalRPS     float64
	globalBurst   int
	loginLimit    int
	loginWindow   time.Duration
	redisAddr     string
	corsOrigins   string
}

func parseFlags(args []string, output io.Writer) (*flagValues, error) {
	values := &flagValues{set: map[string]bool{}}
	if args == nil {
		return values, nil
	}
	flagSet := flag.NewFlagSet("soundcrate", flag.ContinueOnError)
	if output != nil {
		flagSet.SetOutput(output)
	}
	flagSet.StringVar(&values.configFile, "config", "", "path to a TOML config file")
	flagSet.StringVar(&values.envFile, "env-file", "", "path to a .env file")
	flagSet.StringVar(&values.addr, "addr", "", "HTTP listen address")
	flagSet.StringVar(&values.dataPath, "data", "", "path to JSON datastore")
	flagSet.StringVar(&values.storageDriver, "storage-driver", "", "datastore driver (json, postgres or mongo)")
	flagSet.StringVar(&values.postgresDSN, "postgres-dsn", "", "Postgres connection string")
	flagSet.StringVar(&values.mongoURI, "mongo-uri", "", "MongoDB connection URI")
	flagSet.StringVar(&values.mongoDatabase, "mongo-database", "", "MongoDB database name")
	flagSet.StringVar(&values.tlsCert, "tls-cert", "", "path to TLS certificate file")
	flagSet.StringVar(&values.tlsKey, "tls-key", "", "path to TLS private key file")
	flagSet.StringVar(&values.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flagSet.StringVar(&values.logFormat, "log-format", "", "log format (json, text or pretty)")
	flagSet.StringVar(&values.mediaBackend, "media-backend", "", "media backend (disk, cloudinary or s3)")
	flagSet.StringVar(&values.uploadDir, "upload-dir", "", "directory for staged uploads")
	flagSet.Float64Var(&values.globalRPS, "rate-global-rps", 0, "global request rate limit in requests per second")
	flagSet.IntVar(&values.globalBurst, "rate-global-burst", 0, "global rate limit burst allowance")
	flagSet.IntVar(&values.loginLimit, "rate-login-limit", 0, "maximum login attempts per window for a single IP")
	flagSet.DurationVar(&values.loginWindow, "rate-login-window", 0, "window for counting login attempts")
	flagSet.StringVar(&values.redisAddr, "rate-redis-addr", "", "Redis address for distributed login throttling")
	flagSet.StringVar(&values.corsOrigins, "cors-origins", "", "comma separated origins allowed by CORS")
	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}
	flagSet.Visit(func(f *flag.Flag) { values.set[f.Name] = true })
	return values, nil
}

func (f *flagValues) apply(cfg *Config) {
	assign := func(name string, fn func()) {
		if f.set[name] {
			fn()
		}
	}
	assign("addr", func() { cfg.Server.Addr = f.addr })
	assign("data", func() { cfg.Storage.JSONPath = f.dataPath })
	assign("storage-driver", func() { cfg.Storage.Driver = f.storageDriver })
	assign("postgres-dsn", func() { cfg.Storage.Postgres.DSN = f.postgresDSN })
	assign("mongo-uri", func() { cfg.Storage.Mongo.URI = f.mongoURI })
	assign("mongo-database", func() { cfg.Storage.Mongo.Database = f.mongoDatabase })
	assign("tls-cert", func() { cfg.Server.TLSCertFile = f.tlsCert })
	assign("tls-key", func() { cfg.Server.TLSKeyFile = f.tlsKey })
	assign("log-level", func() { cfg.Log.Level = f.logLevel })
	assign("log-format", func() { cfg.Log.Format = f.logFormat })
	assign("media-backend", func() { cfg.Media.Backend = f.mediaBackend })
	assign("upload-dir", func() { cfg.Media.UploadDir = f.uploadDir })
	assign("rate-global-rps", func() { cfg.Rate.GlobalRPS = f.globalRPS })
	assign("rate-global-burst", func() { cfg.Rate.GlobalBurst = f.globalBurst })
	assign("rate-login-limit", func() { cfg.Rate.LoginLimit = f.loginLimit })
	assign("rate-login-window", func() { cfg.Rate.LoginWindow = f.loginWindow })
	assign("rate-redis-addr", func() { cfg.Rate.RedisAddr = f.redisAddr })
	assign("cors-origins", func() { cfg.CORS.AllowedOrigins = splitList(f.corsOrigins) })
}
