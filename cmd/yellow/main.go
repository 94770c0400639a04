package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	_ "time/tzdata"

	"github.com/bdobrica/yellow/common/environment"
	"github.com/bdobrica/yellow/common/version"
	"github.com/bdobrica/yellow/internal/yellow/app"
	"github.com/bdobrica/yellow/internal/yellow/identity"
	"github.com/bdobrica/yellow/internal/yellow/matrix"
	"github.com/bdobrica/yellow/internal/yellow/observability"
	"github.com/bdobrica/yellow/internal/yellow/portal"
	"github.com/bdobrica/yellow/internal/yellow/store"
)

const usage = `usage:
  yellow                                   run the bot
  yellow import-session <alias> <file>     store a portal session and print its API token
  yellow version                           print the version`

func main() {
	observability.Setup(
		environment.StringOr("LOG_LEVEL", "info"),
		environment.StringOr("LOG_FORMAT", "text"),
	)

	args := os.Args[1:]
	var err error
	switch {
	case len(args) == 0:
		err = run()
	case args[0] == "import-session" && len(args) == 3:
		err = importSession(args[1], args[2])
	case args[0] == "version":
		fmt.Println(version.Info())
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	slog.Info("starting yellow", "version", version.Version, "commit", version.GitCommit, "built", version.BuildTime)

	config, err := loadConfig()
	if err != nil {
		return err
	}

	yellow, err := app.New(config)
	if err != nil {
		return fmt.Errorf("failed to initialize yellow: %w", err)
	}
	defer yellow.Stop()

	return yellow.Run()
}

// importSession seals the session file for alias and prints the API token
// that now identifies it.
func importSession(alias, path string) error {
	key, err := masterKey()
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read session: %w", err)
	}
	sess, err := portal.ParseSession(data)
	if err != nil {
		return err
	}

	db, err := store.New(environment.StringOr("DATABASE_PATH", "./yellow.db"))
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer db.Close()

	identities, err := identity.NewStore(db, key)
	if err != nil {
		return err
	}
	token, err := identities.Import(context.Background(), alias, sess)
	if err != nil {
		return err
	}
	slog.Info("session imported", "alias", alias)
	fmt.Println(token)
	return nil
}

// loadConfig reads the run configuration from the environment.
func loadConfig() (*app.Config, error) {
	var (
		mcfg matrix.Config
		err  error
	)
	if mcfg.Homeserver, err = environment.RequiredString("MATRIX_HOMESERVER"); err != nil {
		return nil, err
	}
	if mcfg.UserID, err = environment.RequiredString("MATRIX_USER_ID"); err != nil {
		return nil, err
	}
	if mcfg.AccessToken, err = environment.RequiredString("MATRIX_ACCESS_TOKEN"); err != nil {
		return nil, err
	}
	key, err := masterKey()
	if err != nil {
		return nil, err
	}

	return &app.Config{
		DatabasePath: environment.StringOr("DATABASE_PATH", "./yellow.db"),
		MasterKey:    key,
		Matrix:       mcfg,
		RoomsFile:    environment.StringOr("YELLOW_ROOMS_FILE", "./rooms.yaml"),
		Prefix:       environment.StringOr("YELLOW_PREFIX", app.DefaultPrefix),
		HTTPAddr:     environment.StringOr("HTTP_ADDR", ""),
		Portal: portal.Config{
			GULBaseURL:   environment.StringOr("GUL_BASE_URL", portal.DefaultGULBaseURL),
			LadokBaseURL: environment.StringOr("LADOK_BASE_URL", portal.DefaultLadokBaseURL),
			Timeout:      environment.DurationOr("PORTAL_TIMEOUT", portal.DefaultTimeout),
		},
	}, nil
}

func masterKey() ([]byte, error) {
	raw, err := environment.RequiredString("YELLOW_MASTER_KEY")
	if err != nil {
		return nil, fmt.Errorf("%w\nGenerate a key with: openssl rand -hex 32", err)
	}
	return identity.ParseMasterKey(raw)
}
