package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/vidpub/internal/accounts"
	"github.com/desertthunder/vidpub/internal/repositories"
	"github.com/desertthunder/vidpub/internal/shared"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config      *shared.Config
	configPath  string
	httpClient  *http.Client
	logger      *log.Logger
	output      io.Writer
	getenv      func(string) string
	openBrowser func(context.Context, string) error
	authTimeout time.Duration
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config      *shared.Config
	ConfigPath  string
	HTTPClient  *http.Client
	Logger      *log.Logger
	Output      io.Writer
	Getenv      func(string) string
	OpenBrowser func(context.Context, string) error
	AuthTimeout time.Duration
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}
	if opts.OpenBrowser == nil {
		opts.OpenBrowser = shared.OpenBrowser
	}
	if opts.AuthTimeout <= 0 {
		opts.AuthTimeout = 2 * time.Minute
	}

	return &Runner{
		config:      opts.Config,
		configPath:  opts.ConfigPath,
		httpClient:  opts.HTTPClient,
		logger:      opts.Logger,
		output:      opts.Output,
		getenv:      opts.Getenv,
		openBrowser: opts.OpenBrowser,
		authTimeout: opts.AuthTimeout,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, accountsCommand, authCommand, jobsCommand, runCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Before loads the configuration named by --config. A missing file keeps the defaults.
func (r *Runner) Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	path := cmd.String("config")
	if path != "" {
		r.configPath = path
	}

	if r.configPath != "" && shared.FileExists(r.configPath) {
		config, err := shared.LoadConfig(r.configPath)
		if err != nil {
			return ctx, err
		}
		r.config = config
	} else if r.configPath != "" {
		r.logger.Debug("config file not found, using defaults", "path", r.configPath)
	}

	level := r.config.Log.Level
	if cmd.Bool("verbose") {
		level = "debug"
	}
	if err := shared.SetLogLevel(r.logger, level); err != nil {
		return ctx, err
	}
	return ctx, nil
}

// SetLogger replaces the logger, used when the dashboard owns the terminal.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

// openStore opens the configured database, applies pending migrations and returns a store.
// The caller closes the returned database.
func (r *Runner) openStore(ctx context.Context) (*repositories.Store, *sql.DB, error) {
	path := shared.ExpandPath(r.config.Database.Path)
	db, err := shared.NewDatabase(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := shared.ConfigureDatabase(db, r.config.Database.BusyTimeout.Duration); err != nil {
		db.Close()
		return nil, nil, err
	}
	if err := shared.RunMigrationsContext(ctx, db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return repositories.NewStore(db), db, nil
}

func (r *Runner) accountsPath() string {
	return shared.ExpandPath(r.config.Accounts.Path)
}

func (r *Runner) accountOptions() accounts.Options {
	return accounts.Options{
		LegacyCredentialsFile: shared.ExpandPath(r.config.Accounts.LegacyCredentialsFile),
		Getenv:                r.getenv,
	}
}

func (r *Runner) loadAccounts() (*accounts.Registry, error) {
	return accounts.Load(r.accountsPath(), r.accountOptions())
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writeBytes(data []byte) error {
	if _, err := r.output.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
