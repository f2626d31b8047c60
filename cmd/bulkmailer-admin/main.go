// Command bulkmailer-admin is the operator CLI for the bulk mail job store: schema
// migrations, job creation and control, and the shared template cache.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/target/bulkmailer/config"
	"github.com/target/bulkmailer/internal/bootstrap"
	"github.com/target/bulkmailer/internal/migrate"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
}

const defaultMigrationTimeout = 5 * time.Minute

var commands = map[string]command{
	"migrate":              {"Run database migrations", runMigrations},
	"migrate-status":       {"List embedded migrations and whether they are applied", runMigrationStatus},
	"db-reset":             {"Drop the database schema and re-run migrations", runDBReset},
	"create-job":           {"Create a bulk job from a JSON request file", runCreateJob},
	"add-recipients":       {"Append recipients from a JSON file to a queued or stopped job", runAddRecipients},
	"pause":                {"Pause a running job", jobControl("pause")},
	"resume":               {"Resume a paused job", jobControl("resume")},
	"stop":                 {"Stop a job", jobControl("stop")},
	"requeue":              {"Put a stopped job back in the queue", jobControl("requeue")},
	"status":               {"Show the state and counters of a job", runJobStatus},
	"events":               {"List the lifecycle events of a job", runJobEvents},
	"list-template-cache":  {"Inspect cached template bodies in Redis", runListTemplateCache},
	"clear-template-cache": {"Clear cached template bodies from Redis", runClearTemplateCache},
}

func main() {
	logger := bootstrap.InitLogger(os.Getenv("LOG_LEVEL"))

	if len(os.Args) < 2 {
		_ = printUsage(os.Stderr)
		os.Exit(2) //nolint:forbidigo // missing command
	}
	name := os.Args[1]
	cmd, ok := commands[name]
	if !ok {
		_ = writef(os.Stderr, "unknown command %q\n\n", name)
		_ = printUsage(os.Stderr)
		os.Exit(2) //nolint:forbidigo // unknown command
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1) //nolint:forbidigo // configuration failure
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	cmdCtx := &commandContext{Ctx: ctx, Logger: logger, Config: cfg}
	runErr := cmd.run(cmdCtx, os.Args[2:])
	stop()
	if runErr != nil {
		if errors.Is(runErr, flag.ErrHelp) {
			return
		}
		logger.Error("command failed", "command", name, "error", runErr)
		os.Exit(1) //nolint:forbidigo // command failure
	}
}

func printUsage(w io.Writer) error {
	if err := writeln(w, "Usage: bulkmailer-admin <command> [flags]\n\nAvailable commands:"); err != nil {
		return err
	}
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if err := writef(w, "  %-24s %s\n", name, commands[name].description); err != nil {
			return err
		}
	}
	return nil
}

// withDatabase connects to Postgres for the duration of f, bounded by timeout.
func withDatabase(cmdCtx *commandContext, timeout time.Duration, f func(context.Context, *sql.DB) error) error {
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, timeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{
		DBConfig: cmdCtx.Config.Postgres,
		Logger:   cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", cerr)
		}
	}()

	return f(ctx, db)
}

func parseMigrateFlags(name string, args []string) (time.Duration, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	timeout := fs.Duration("timeout", defaultMigrationTimeout, "Maximum duration to wait for migrations")
	if err := fs.Parse(args); err != nil {
		return 0, err
	}
	if *timeout <= 0 {
		return 0, errors.New("--timeout must be greater than zero")
	}
	return *timeout, nil
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	timeout, err := parseMigrateFlags("migrate", args)
	if err != nil {
		return err
	}
	return withDatabase(cmdCtx, timeout, func(ctx context.Context, db *sql.DB) error {
		return bootstrap.RunMigrations(ctx, db, cmdCtx.Logger)
	})
}

func runMigrationStatus(cmdCtx *commandContext, args []string) error {
	timeout, err := parseMigrateFlags("migrate-status", args)
	if err != nil {
		return err
	}
	return withDatabase(cmdCtx, timeout, func(ctx context.Context, db *sql.DB) error {
		list, err := migrate.Status(ctx, db)
		if err != nil {
			return fmt.Errorf("migration status: %w", err)
		}
		return printMigrationStatus(os.Stdout, list)
	})
}

func printMigrationStatus(w io.Writer, list []migrate.Migration) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "VERSION\tAPPLIED"); err != nil {
		return err
	}
	pending := 0
	for _, m := range list {
		applied := "yes"
		if !m.Applied {
			applied = "no"
			pending++
		}
		if err := writef(tw, "%s\t%s\n", m.Version, applied); err != nil {
			return err
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush migration table: %w", err)
	}
	return writef(w, "%d migrations, %d pending\n", len(list), pending)
}
