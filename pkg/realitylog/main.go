package realitylog

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/realitylog/realitylog/pkg/config"
	"github.com/realitylog/realitylog/pkg/loadtest"
	"github.com/realitylog/realitylog/pkg/logging"
)

// Main parses args and executes the selected command. It can be called from
// tests without building the binary; ctx cancellation stops a running server.
//
// # Command Line Usage
//
//	realitylog [flags] run                  # serve the API
//	realitylog migrate                      # create or upgrade the schema
//	realitylog seed --file cast.yaml        # load reference data
//	realitylog seed --default               # load the starter set
//	realitylog user create --email a@b.c --password secret1 --role admin
//	realitylog export --format pdf --out log.pdf
//	realitylog copy --to-backend postgres --to-postgres-dsn postgres://...
//	realitylog simulate --admin-email a@b.c --admin-password secret1 --operators 8
//	realitylog config init                  # write realitylog.toml
//
// Persistent flags override the configuration file and environment:
//
//	--config      path to realitylog.toml
//	--backend     memory, sqlite, postgres or surrealdb
//	--addr        listen address for run
//	--read-only   reject every write
//	--log-level   trace, debug, info, warn or error
//	--log-format  auto, console or json
func Main(ctx context.Context, args []string) error {
	root := newRootCommand()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

type rootFlags struct {
	config    string
	backend   string
	addr      string
	readOnly  bool
	logLevel  string
	logFormat string
	logFile   string
}

// commandContext carries what every sub-command needs after flags are parsed.
type commandContext struct {
	flags rootFlags
	out   io.Writer
}

func newRootCommand() *cobra.Command {
	cc := &commandContext{out: os.Stdout}

	root := &cobra.Command{
		Use:           "realitylog",
		Short:         "Production logging for reality television",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cc.out = cmd.OutOrStdout()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&cc.flags.config, "config", "c", "", "Configuration file path (default realitylog.toml)")
	pf.StringVar(&cc.flags.backend, "backend", "", "Store backend: "+strings.Join(config.Backends, ", "))
	pf.StringVar(&cc.flags.addr, "addr", "", "HTTP listen address")
	pf.BoolVar(&cc.flags.readOnly, "read-only", false, "Reject every write operation")
	pf.StringVar(&cc.flags.logLevel, "log-level", "", "Log level")
	pf.StringVar(&cc.flags.logFormat, "log-format", "", "Log format: auto, console or json")
	pf.StringVar(&cc.flags.logFile, "log-file", "", "Append logs to this file instead of stdout")

	root.AddCommand(
		newRunCommand(cc),
		newMigrateCommand(cc),
		newSeedCommand(cc),
		newUserCommand(cc),
		newExportCommand(cc),
		newCopyCommand(cc),
		newSimulateCommand(cc),
		newConfigCommand(),
	)
	return root
}

func newRunCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cc.execute(cmd.Context(), &RunCommand{})
		},
	}
}

func newMigrateCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cc.execute(cmd.Context(), &MigrateCommand{})
		},
	}
}

func newSeedCommand(cc *commandContext) *cobra.Command {
	var c SeedCommand
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load reference data from a YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.File == "" && !c.Default {
				return fmt.Errorf("seed: one of --file or --default is required")
			}
			return cc.execute(cmd.Context(), &c)
		},
	}
	cmd.Flags().StringVarP(&c.File, "file", "f", "", "YAML file with participants, locations, action_categories and tags")
	cmd.Flags().BoolVar(&c.Default, "default", false, "Load the built-in starter set")
	cmd.MarkFlagsMutuallyExclusive("file", "default")
	return cmd
}

func newUserCommand(cc *commandContext) *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user profiles",
	}

	var c UserCreateCommand
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a user with a role",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cc.execute(cmd.Context(), &c)
		},
	}
	create.Flags().StringVar(&c.Email, "email", "", "Email address")
	create.Flags().StringVar(&c.Password, "password", "", "Password")
	create.Flags().StringVar(&c.DisplayName, "name", "", "Display name (defaults to the email's local part)")
	create.Flags().StringVar(&c.Role, "role", "viewer", "Role: admin, logger or viewer")
	_ = create.MarkFlagRequired("email")
	_ = create.MarkFlagRequired("password")

	userCmd.AddCommand(create)
	return userCmd
}

func newExportCommand(cc *commandContext) *cobra.Command {
	var c ExportCommand
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the whole log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cc.execute(cmd.Context(), &c)
		},
	}
	cmd.Flags().StringVar(&c.Format, "format", "csv", "Format: json, csv, markdown, text or pdf")
	cmd.Flags().StringVarP(&c.Out, "out", "o", "-", "Output file, - for stdout")
	cmd.Flags().StringVar(&c.Title, "title", "", "Document title")
	return cmd
}

func newCopyCommand(cc *commandContext) *cobra.Command {
	var (
		c            CopyCommand
		since, until string
	)
	cmd := &cobra.Command{
		Use:   "copy",
		Short: "Copy the production log into another backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				dateOnly bool
				err      error
			)
			if c.Since, _, err = ParseTime(since, time.Local); err != nil {
				return fmt.Errorf("--since: %w", err)
			}
			if c.Until, dateOnly, err = ParseTime(until, time.Local); err != nil {
				return fmt.Errorf("--until: %w", err)
			}
			if dateOnly {
				c.Until = c.Until.AddDate(0, 0, 1)
			}
			return cc.execute(cmd.Context(), &c)
		},
	}
	f := cmd.Flags()
	f.StringVar(&c.Target.Backend, "to-backend", "", "Target backend: "+strings.Join(config.Backends, ", "))
	f.StringVar(&c.Target.SQLitePath, "to-sqlite-path", "", "Target SQLite file")
	f.StringVar(&c.Target.PostgresDSN, "to-postgres-dsn", "", "Target PostgreSQL DSN")
	f.StringVar(&c.Target.SurrealURL, "to-surrealdb-url", "", "Target SurrealDB URL")
	f.StringVar(&c.Target.SurrealNS, "to-surrealdb-ns", "", "Target SurrealDB namespace")
	f.StringVar(&c.Target.SurrealDB, "to-surrealdb-db", "", "Target SurrealDB database")
	f.StringVar(&c.Target.SurrealUser, "to-surrealdb-user", "", "Target SurrealDB user")
	f.StringVar(&c.Target.SurrealPass, "to-surrealdb-pass", "", "Target SurrealDB password")
	f.StringVar(&since, "since", "", "Copy entries created at or after this time (RFC 3339 or YYYY-MM-DD)")
	f.StringVar(&until, "until", "", "Copy entries created before this time; a bare date includes that day")
	_ = cmd.MarkFlagRequired("to-backend")
	return cmd
}

// newSimulateCommand runs virtual operators against a server that is already
// running and seeded. It does not open a store.
func newSimulateCommand(cc *commandContext) *cobra.Command {
	opts := loadtest.Options{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Drive a running server with virtual logging operators",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cc.loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			logs, err := cc.newLogger(cfg)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			defer logs.Close()
			opts.Logger = logs.Logger.With().Str("command", "simulate").Logger()

			report, err := loadtest.Run(cmd.Context(), opts)
			fmt.Fprint(cc.out, report.String())
			if err != nil {
				return fmt.Errorf("simulation failed: %w", err)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.BaseURL, "url", "http://localhost:8080", "Server base URL")
	f.StringVar(&opts.AdminEmail, "admin-email", "", "Admin account used to create operator accounts")
	f.StringVar(&opts.AdminPassword, "admin-password", "", "Admin password")
	f.IntVar(&opts.Operators, "operators", 4, "Concurrent virtual operators")
	f.IntVar(&opts.Entries, "entries", 25, "Entries submitted by each operator")
	_ = cmd.MarkFlagRequired("admin-email")
	_ = cmd.MarkFlagRequired("admin-password")
	return cmd
}

func newConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	var path string
	var overwrite bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create a sample configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !overwrite {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", path)
				}
			}
			if err := config.CreateSample(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote sample configuration to %s\n", path)
			return nil
		},
	}
	initCmd.Flags().StringVarP(&path, "path", "p", "realitylog.toml", "Destination for the configuration file")
	initCmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite an existing file")

	configCmd.AddCommand(initCmd)
	return configCmd
}

// loadConfig reads the file and environment, then applies flags on top.
func (cc *commandContext) loadConfig() (*config.Config, error) {
	cfg, _, err := config.Load(cc.flags.config)
	if err != nil {
		return nil, err
	}
	f := cc.flags
	if f.backend != "" {
		cfg.Store.Backend = f.backend
	}
	if f.addr != "" {
		cfg.Server.Addr = f.addr
	}
	if f.readOnly {
		cfg.Server.ReadOnly = true
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}
	if f.logFormat != "" {
		cfg.Logging.Format = f.logFormat
	}
	if err := cfg.Finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cc *commandContext) newLogger(cfg *config.Config) (*logging.Logs, error) {
	b := logging.New().Level(cfg.Logging.Level).Format(cfg.Logging.Format)
	if cc.flags.logFile != "" {
		b = b.FromPath(cc.flags.logFile)
	}
	return b.Make()
}

// execute opens the App and runs cmd against it.
func (cc *commandContext) execute(ctx context.Context, cmd Command) error {
	cfg, err := cc.loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logs, err := cc.newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logs.Close()
	logger := logs.Logger.With().Str("command", cmd.Name()).Logger()

	app, err := New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	defer app.Close()

	return dispatch(ctx, app, cmd, cc.out, logger)
}

func dispatch(ctx context.Context, app *App, cmd Command, out io.Writer, logger zerolog.Logger) error {
	switch c := cmd.(type) {
	case *RunCommand:
		if err := app.Run(ctx, c); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case *MigrateCommand:
		if err := app.Migrate(ctx, c); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	case *SeedCommand:
		res, err := app.Seed(ctx, c)
		if err != nil {
			return fmt.Errorf("seed failed: %w", err)
		}
		fmt.Fprint(out, res.String())
	case *UserCreateCommand:
		u, err := app.CreateUser(ctx, c)
		if err != nil {
			return fmt.Errorf("user create failed: %w", err)
		}
		fmt.Fprintf(out, "Created %s %s (%s)\n", u.Role, u.Email, u.ID)
	case *ExportCommand:
		if err := app.Export(ctx, c, out); err != nil {
			return fmt.Errorf("export failed: %w", err)
		}
	case *CopyCommand:
		res, err := app.CopyTo(ctx, c)
		if err != nil {
			return fmt.Errorf("copy failed: %w", err)
		}
		fmt.Fprint(out, res.String())
	default:
		logger.Error().Str("type", fmt.Sprintf("%T", cmd)).Msg("unknown command")
		return fmt.Errorf("unknown command type: %T", cmd)
	}
	return nil
}
