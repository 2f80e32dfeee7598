// Command catalogctl runs one-off maintenance tasks against a SoundCrate
// datastore: creating the first admin, applying Postgres migrations and
// replaying a JSON store into another backend.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"soundcrate/internal/auth"
	"soundcrate/internal/config"
	"soundcrate/internal/observability/logging"
	"soundcrate/internal/storage"
)

// bootstrapSecret signs nothing; BootstrapAdmin never issues tokens but the
// auth service requires a token manager.
const bootstrapSecret = "catalogctl-bootstrap"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := newApp(os.LookupEnv, os.Stdout, os.Stderr)
	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "catalogctl:", err)
		os.Exit(1)
	}
}

// tool carries what every subcommand shares.
type tool struct {
	lookupEnv func(string) (string, bool)
	stdout    io.Writer
	logger    *slog.Logger
}

func newApp(lookupEnv func(string) (string, bool), stdout, stderr io.Writer) *cli.Command {
	t := &tool{
		lookupEnv: lookupEnv,
		stdout:    stdout,
		logger:    logging.New(logging.Config{Level: "info", Format: string(logging.FormatPretty), Writer: stderr}),
	}
	return &cli.Command{
		Name:      "catalogctl",
		Usage:     "Maintenance tasks for the SoundCrate catalog datastore",
		Writer:    stdout,
		ErrWriter: stderr,
		Commands: []*cli.Command{
			{
				Name:  "bootstrap-admin",
				Usage: "Create an admin account or promote an existing one",
				Flags: append(storageFlags(),
					&cli.StringFlag{Name: "email", Usage: "Email address of the admin", Required: true},
					&cli.StringFlag{Name: "name", Usage: "Display name for a new admin", Value: "Administrator"},
					&cli.StringFlag{Name: "password", Usage: "Password for the admin account", Sources: cli.EnvVars("SOUNDCRATE_ADMIN_PASSWORD")},
				),
				Action: t.bootstrapAdmin,
			},
			{
				Name:  "migrate",
				Usage: "Apply pending Postgres schema migrations",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "postgres-dsn", Usage: "Postgres connection string (defaults to the server configuration)"},
				},
				Action: t.migrate,
			},
			{
				Name:  "import-json",
				Usage: "Replay a JSON datastore into the configured backend",
				Flags: append(storageFlags(),
					&cli.StringFlag{Name: "from", Usage: "Path of the JSON datastore to read", Required: true},
				),
				Action: t.importJSON,
			},
		},
	}
}

func storageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "driver", Usage: "Storage driver: json, postgres or mongo (defaults to the server configuration)"},
		&cli.StringFlag{Name: "target", Usage: "JSON path, Postgres DSN or Mongo URI for the driver"},
	}
}

// serverConfig loads the same layered configuration the server uses so the
// tool targets the same datastore by default.
func (t *tool) serverConfig() (config.Config, error) {
	return config.Load(config.Options{LookupEnv: t.lookupEnv, Output: io.Discard})
}

func (t *tool) openStore(ctx context.Context, cmd *cli.Command) (storage.Repository, string, error) {
	cfg, err := t.serverConfig()
	if err != nil {
		return nil, "", err
	}
	if driver := strings.TrimSpace(cmd.String("driver")); driver != "" {
		cfg.Storage.Driver = strings.ToLower(driver)
	}
	target := cfg.Storage.Target()
	if flagTarget := strings.TrimSpace(cmd.String("target")); flagTarget != "" {
		target = flagTarget
	}
	if target == "" {
		return nil, "", fmt.Errorf("no target configured for the %s driver", cfg.Storage.Driver)
	}
	store, err := storage.Open(ctx, cfg.Storage.Driver, target, cfg.Storage.Options(logging.WithComponent(t.logger, "storage"))...)
	if err != nil {
		return nil, "", fmt.Errorf("open %s datastore: %w", cfg.Storage.Driver, err)
	}
	return store, cfg.Storage.Driver, nil
}

func (t *tool) closeStore(store storage.Repository) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Close(ctx); err != nil {
		t.logger.Warn("failed to close datastore", "error", err)
	}
}

func (t *tool) bootstrapAdmin(ctx context.Context, cmd *cli.Command) error {
	email := strings.TrimSpace(cmd.String("email"))
	name := strings.TrimSpace(cmd.String("name"))
	if email == "" {
		return errors.New("--email is required")
	}
	if name == "" {
		return errors.New("--name cannot be empty")
	}

	store, _, err := t.openStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer t.closeStore(store)

	tokens, err := auth.NewTokenManager(bootstrapSecret)
	if err != nil {
		return err
	}
	service, err := auth.NewService(store, tokens, auth.WithLogger(logging.WithComponent(t.logger, "auth")))
	if err != nil {
		return err
	}

	user, created, err := service.BootstrapAdmin(ctx, name, email, cmd.String("password"))
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	state := "promoted"
	if created {
		state = "created"
	}
	fmt.Fprintf(t.stdout, "Admin user %s (%s) %s.\n", user.Email, user.Name, state)
	if cmd.String("password") != "" {
		fmt.Fprintln(t.stdout, "Remember to rotate this password after the first login.")
	}
	return nil
}

func (t *tool) migrate(ctx context.Context, cmd *cli.Command) error {
	dsn := strings.TrimSpace(cmd.String("postgres-dsn"))
	if dsn == "" {
		cfg, err := t.serverConfig()
		if err != nil {
			return err
		}
		dsn = strings.TrimSpace(cfg.Storage.Postgres.DSN)
	}
	if dsn == "" {
		return errors.New("postgres DSN required: set --postgres-dsn, SOUNDCRATE_POSTGRES_DSN or DATABASE_URL")
	}

	applied, err := storage.ApplyPostgresMigrations(ctx, dsn)
	for _, version := range applied {
		t.logger.Info("migration applied", "version", version)
	}
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Fprintln(t.stdout, "Schema is up to date.")
		return nil
	}
	fmt.Fprintf(t.stdout, "Applied %d migration(s).\n", len(applied))
	return nil
}

func (t *tool) importJSON(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("from")
	snapshot, err := storage.LoadSnapshotFromJSON(path)
	if err != nil {
		return err
	}
	counts := snapshot.Counts()
	t.logger.Info("loaded JSON snapshot", "path", path, "users", counts.Users, "artists", counts.Artists, "albums", counts.Albums, "songs", counts.Songs)

	store, driver, err := t.openStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer t.closeStore(store)

	if err := storage.ImportSnapshot(ctx, store, snapshot); err != nil {
		return fmt.Errorf("import snapshot: %w", err)
	}
	fmt.Fprintf(t.stdout, "Imported %d users, %d artists, %d albums and %d songs into %s.\n",
		counts.Users, counts.Artists, counts.Albums, counts.Songs, driver)
	return nil
}
