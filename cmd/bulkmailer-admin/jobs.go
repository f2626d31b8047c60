package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/target/bulkmailer/internal/data"
	"github.com/target/bulkmailer/internal/domain/model"
	"github.com/target/bulkmailer/internal/service"
)

const defaultJobCommandTimeout = 30 * time.Second

type jobOptions struct {
	JobID   string
	File    string
	Limit   int
	RawJSON bool
	Timeout time.Duration
}

// parseJobFlags parses the flags shared by job commands. needFile and needJob select which
// of --file and --job are mandatory.
func parseJobFlags(name string, args []string, needJob, needFile bool) (jobOptions, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := jobOptions{Timeout: defaultJobCommandTimeout}
	fs.StringVar(&opts.JobID, "job", "", "Job ID")
	fs.StringVar(&opts.File, "file", "", "JSON input file (- for stdin)")
	fs.IntVar(&opts.Limit, "limit", service.DefaultEventLimit, "Maximum number of events to list")
	fs.BoolVar(&opts.RawJSON, "json", false, "Print JSON instead of a table")
	fs.DurationVar(&opts.Timeout, "timeout", defaultJobCommandTimeout, "Maximum duration for the command")

	if err := fs.Parse(args); err != nil {
		return jobOptions{}, err
	}
	opts.JobID = strings.TrimSpace(opts.JobID)
	opts.File = strings.TrimSpace(opts.File)

	switch {
	case needJob && opts.JobID == "":
		return jobOptions{}, errors.New("--job is required")
	case needFile && opts.File == "":
		return jobOptions{}, errors.New("--file is required")
	case opts.Limit <= 0:
		return jobOptions{}, errors.New("--limit must be greater than zero")
	case opts.Timeout <= 0:
		return jobOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

// withJobService runs f with a JobService backed by the configured database.
func withJobService(cmdCtx *commandContext, timeout time.Duration, f func(context.Context, *service.JobService) error) error {
	return withDatabase(cmdCtx, timeout, func(ctx context.Context, db *sql.DB) error {
		repo := data.NewJobRepo(db, data.RepoConfig{Logger: cmdCtx.Logger})
		jobs, err := service.NewJobService(service.JobServiceOptions{Repo: repo, Logger: cmdCtx.Logger})
		if err != nil {
			return err
		}
		return f(ctx, jobs)
	})
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

func decodeCreateJobRequest(r io.Reader) (*model.CreateJobRequest, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var req model.CreateJobRequest
	if err := dec.Decode(&req); err != nil {
		return nil, fmt.Errorf("decode job request: %w", err)
	}
	return &req, nil
}

// decodeRecipients accepts either a bare array or an object with a recipients field.
func decodeRecipients(r io.Reader) ([]model.NewRecipient, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read recipients: %w", err)
	}
	var list []model.NewRecipient
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Recipients []model.NewRecipient `json:"recipients"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decode recipients: %w", err)
	}
	return wrapped.Recipients, nil
}

func runCreateJob(cmdCtx *commandContext, args []string) error {
	opts, err := parseJobFlags("create-job", args, false, true)
	if err != nil {
		return err
	}
	in, err := openInput(opts.File)
	if err != nil {
		return err
	}
	req, err := decodeCreateJobRequest(in)
	if closeErr := in.Close(); closeErr != nil {
		cmdCtx.Logger.Warn("close input failed", "error", closeErr)
	}
	if err != nil {
		return err
	}

	return withJobService(cmdCtx, opts.Timeout, func(ctx context.Context, jobs *service.JobService) error {
		job, createErr := jobs.Create(ctx, req)
		if createErr != nil {
			return createErr
		}
		cmdCtx.Logger.Info("job created", "job_id", job.ID, "recipients", job.Total, "schedule_at", job.ScheduleAt)
		return writeln(os.Stdout, job.ID)
	})
}

func runAddRecipients(cmdCtx *commandContext, args []string) error {
	opts, err := parseJobFlags("add-recipients", args, true, true)
	if err != nil {
		return err
	}
	in, err := openInput(opts.File)
	if err != nil {
		return err
	}
	list, err := decodeRecipients(in)
	if closeErr := in.Close(); closeErr != nil {
		cmdCtx.Logger.Warn("close input failed", "error", closeErr)
	}
	if err != nil {
		return err
	}

	return withJobService(cmdCtx, opts.Timeout, func(ctx context.Context, jobs *service.JobService) error {
		n, addErr := jobs.AddRecipients(ctx, opts.JobID, list)
		if addErr != nil {
			return addErr
		}
		cmdCtx.Logger.Info("recipients added", "job_id", opts.JobID, "added", n)
		return nil
	})
}

type controlFn func(*service.JobService, context.Context, string) (bool, error)

var controlActions = map[string]controlFn{
	"pause":   (*service.JobService).Pause,
	"resume":  (*service.JobService).Resume,
	"stop":    (*service.JobService).Stop,
	"requeue": (*service.JobService).Requeue,
}

// jobControl builds the command for a single control transition.
func jobControl(action string) commandFn {
	return func(cmdCtx *commandContext, args []string) error {
		fn, ok := controlActions[action]
		if !ok {
			return fmt.Errorf("unknown job action %q", action)
		}
		opts, err := parseJobFlags(action, args, true, false)
		if err != nil {
			return err
		}
		return withJobService(cmdCtx, opts.Timeout, func(ctx context.Context, jobs *service.JobService) error {
			changed, ctlErr := fn(jobs, ctx, opts.JobID)
			if ctlErr != nil {
				return ctlErr
			}
			st, statusErr := jobs.Status(ctx, opts.JobID)
			if statusErr != nil {
				return statusErr
			}
			if !changed {
				return fmt.Errorf("cannot %s job %s in status %s", action, opts.JobID, st.Status)
			}
			cmdCtx.Logger.Info("job updated", "job_id", opts.JobID, "action", action, "status", st.Status)
			return nil
		})
	}
}

func runJobStatus(cmdCtx *commandContext, args []string) error {
	opts, err := parseJobFlags("status", args, true, false)
	if err != nil {
		return err
	}
	return withJobService(cmdCtx, opts.Timeout, func(ctx context.Context, jobs *service.JobService) error {
		view, statusErr := jobs.Status(ctx, opts.JobID)
		if statusErr != nil {
			return statusErr
		}
		if opts.RawJSON {
			return printJSON(os.Stdout, view)
		}
		return printJobStatus(os.Stdout, view)
	})
}

func runJobEvents(cmdCtx *commandContext, args []string) error {
	opts, err := parseJobFlags("events", args, true, false)
	if err != nil {
		return err
	}
	return withJobService(cmdCtx, opts.Timeout, func(ctx context.Context, jobs *service.JobService) error {
		events, eventsErr := jobs.Events(ctx, opts.JobID, opts.Limit)
		if eventsErr != nil {
			return eventsErr
		}
		if opts.RawJSON {
			return printJSON(os.Stdout, events)
		}
		return printJobEvents(os.Stdout, events)
	})
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printJobStatus(w io.Writer, view *model.JobStatusView) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	rows := [][2]string{
		{"Job", view.JobID},
		{"Status", string(view.Status)},
		{"Total", fmt.Sprint(view.Counts.Total)},
		{"Success", fmt.Sprint(view.Counts.Success)},
		{"Failed", fmt.Sprint(view.Counts.Failed)},
		{"Pending", fmt.Sprint(view.Counts.Pending)},
		{"Scheduled", formatTimestamp(view.ScheduleAt)},
		{"Started", formatTimestampPtr(view.StartedAt)},
		{"Finished", formatTimestampPtr(view.FinishedAt)},
		{"Run time", runTime(view)},
	}
	if view.LastError != nil && *view.LastError != "" {
		rows = append(rows, [2]string{"Last error", *view.LastError})
	}
	for _, row := range rows {
		if err := writef(tw, "%s:\t%s\n", row[0], row[1]); err != nil {
			return fmt.Errorf("write status row: %w", err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush status table: %w", err)
	}
	return nil
}

func runTime(view *model.JobStatusView) string {
	if view.StartedAt == nil {
		return "-"
	}
	end := view.UpdatedAt
	if view.FinishedAt != nil {
		end = *view.FinishedAt
	}
	return formatElapsed(end.Sub(*view.StartedAt))
}

func printJobEvents(w io.Writer, events []*model.JobEvent) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "ID\tTIME\tTYPE\tDATA"); err != nil {
		return fmt.Errorf("write events header: %w", err)
	}
	for _, ev := range events {
		payload := strings.TrimSpace(string(ev.Data))
		if payload == "" || payload == "null" || payload == "{}" {
			payload = "-"
		}
		if err := writef(tw, "%d\t%s\t%s\t%s\n", ev.ID, formatTimestamp(ev.CreatedAt), ev.Type, payload); err != nil {
			return fmt.Errorf("write event row: %w", err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush events table: %w", err)
	}
	return writef(w, "%d events\n", len(events))
}
