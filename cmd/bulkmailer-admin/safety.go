package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/target/bulkmailer/internal/bootstrap"
)

var errAborted = errors.New("aborted by user")

// confirmation describes an interactive prompt guarding a destructive command.
type confirmation struct {
	Warning string
	Action  string
	Target  string
	// Skip bypasses the prompt (--yes or --dry-run).
	Skip bool
	// Expect, when set, must be typed back verbatim; Skip does not apply.
	Expect string
}

func (c confirmation) ask(in io.Reader, out io.Writer) error {
	if c.Skip && c.Expect == "" {
		return nil
	}
	if err := writeln(out, c.Warning); err != nil {
		return fmt.Errorf("print confirmation warning: %w", err)
	}
	if c.Target != "" {
		if err := writef(out, "About to %s for %s.\n", c.Action, c.Target); err != nil {
			return fmt.Errorf("print confirmation message: %w", err)
		}
	}

	prompt := "Continue? [y/N]: "
	if c.Expect != "" {
		prompt = fmt.Sprintf("Type %q to continue or press enter to abort: ", c.Expect)
	}
	if err := write(out, prompt); err != nil {
		return fmt.Errorf("print confirmation prompt: %w", err)
	}

	resp, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: read confirmation: %w", errAborted, err)
	}
	resp = strings.TrimSpace(resp)
	if c.Expect != "" {
		if resp != c.Expect {
			return errAborted
		}
		return nil
	}
	switch strings.ToLower(resp) {
	case "y", "yes":
		return nil
	default:
		return errAborted
	}
}

func isLikelyRemoteHost(host string) bool {
	h := strings.ToLower(strings.TrimSpace(host))
	switch {
	case h == "", h == "localhost", strings.HasSuffix(h, ".local"):
		return false
	}
	if ip := net.ParseIP(h); ip != nil {
		return !ip.IsLoopback()
	}
	return true
}

type dbResetOptions struct {
	Timeout     time.Duration
	Yes         bool
	AllowRemote bool
}

func parseDBResetFlags(args []string) (dbResetOptions, error) {
	fs := flag.NewFlagSet("db-reset", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := dbResetOptions{}
	fs.DurationVar(&opts.Timeout, "timeout", defaultMigrationTimeout, "Maximum duration for the reset")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip confirmation prompt")
	fs.BoolVar(&opts.AllowRemote, "allow-remote", false, "Permit database hosts that do not look local")

	if err := fs.Parse(args); err != nil {
		return dbResetOptions{}, err
	}
	if opts.Timeout <= 0 {
		return dbResetOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

// resetConfirmation builds the prompt for db-reset. Remote hosts need --allow-remote and
// the host name typed back, even with --yes.
func resetConfirmation(host, name string, port int, opts dbResetOptions) (confirmation, error) {
	c := confirmation{
		Warning: "WARNING: this will drop and recreate the public schema, deleting every job.",
		Action:  "reset database schema",
		Target:  fmt.Sprintf("database %q on %s:%d", name, host, port),
		Skip:    opts.Yes,
	}
	if isLikelyRemoteHost(host) {
		if !opts.AllowRemote {
			return confirmation{}, fmt.Errorf(
				"refusing to reset potentially remote database host %q; re-run with --allow-remote if this is intentional", host)
		}
		c.Warning += fmt.Sprintf(" Host %q does not look local.", host)
		c.Expect = host
	}
	return c, nil
}

func runDBReset(cmdCtx *commandContext, args []string) error {
	opts, err := parseDBResetFlags(args)
	if err != nil {
		return err
	}
	pg := cmdCtx.Config.Postgres
	c, err := resetConfirmation(pg.Host, pg.Name, pg.Port, opts)
	if err != nil {
		return err
	}
	if err := c.ask(os.Stdin, os.Stderr); err != nil {
		return err
	}

	return withDatabase(cmdCtx, opts.Timeout, func(ctx context.Context, db *sql.DB) error {
		cmdCtx.Logger.Info("dropping public schema", "database", pg.Name)
		if err := resetSchema(ctx, db, pg.User); err != nil {
			return err
		}
		cmdCtx.Logger.Info("re-running database migrations")
		if err := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); err != nil {
			return err
		}
		cmdCtx.Logger.Info("database reset completed successfully")
		return nil
	})
}

func resetSchema(ctx context.Context, db *sql.DB, user string) error {
	statements := []string{
		"DROP SCHEMA public CASCADE",
		"CREATE SCHEMA public",
		"GRANT ALL ON SCHEMA public TO public",
	}
	if user = strings.TrimSpace(user); user != "" && !strings.EqualFold(user, "public") {
		statements = append(statements, "GRANT ALL ON SCHEMA public TO "+quoteIdentifier(user))
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	return nil
}

func quoteIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
