package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/bulkmailer/internal/core"
)

const cacheScanCount = 500

type templateCacheOptions struct {
	Tenant string
	Limit  int
	DryRun bool
	Yes    bool
}

type templateCacheEntry struct {
	Key      string
	Tenant   string
	Language string
	TTL      time.Duration
}

var errUnexpectedTemplateCacheKey = errors.New("unexpected template cache key format")

// parseTemplateCacheKey splits "template:body:<master>:<store>:<language>".
func parseTemplateCacheKey(key string) (string, string, error) {
	rest, ok := strings.CutPrefix(key, core.TemplateBodyKeyPrefix)
	if !ok {
		return "", "", errUnexpectedTemplateCacheKey
	}
	i := strings.LastIndex(rest, ":")
	if i <= 0 || i == len(rest)-1 {
		return "", "", errUnexpectedTemplateCacheKey
	}
	tenant, language := rest[:i], rest[i+1:]
	if !strings.Contains(tenant, ":") {
		return "", "", errUnexpectedTemplateCacheKey
	}
	return tenant, language, nil
}

func templateCachePattern(tenant string) string {
	if tenant == "" {
		return core.TemplateBodyKeyPrefix + "*"
	}
	return core.TemplateBodyKeyPrefix + tenant + ":*"
}

func parseTemplateCacheFlags(name string, args []string) (templateCacheOptions, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts templateCacheOptions
	fs.StringVar(&opts.Tenant, "tenant", "", "Restrict to one tenant, as <master_user_id>:<store_id>")
	fs.IntVar(&opts.Limit, "limit", 100, "Maximum number of keys to show (0 for all)")
	fs.BoolVar(&opts.DryRun, "dry-run", false, "Report what would be deleted without deleting")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip confirmation prompt")

	if err := fs.Parse(args); err != nil {
		return templateCacheOptions{}, err
	}
	opts.Tenant = strings.TrimSpace(opts.Tenant)
	if opts.Tenant != "" && strings.Count(opts.Tenant, ":") != 1 {
		return templateCacheOptions{}, errors.New("--tenant must look like <master_user_id>:<store_id>")
	}
	if opts.Limit < 0 {
		return templateCacheOptions{}, errors.New("--limit must not be negative")
	}
	return opts, nil
}

func clearCacheConfirmation(opts templateCacheOptions) confirmation {
	target := "every tenant"
	if opts.Tenant != "" {
		target = fmt.Sprintf("tenant %q", opts.Tenant)
	}
	return confirmation{
		Warning: "WARNING: runners will reload template bodies from their sources on the next send.",
		Action:  "clear cached template bodies",
		Target:  target,
		Skip:    opts.Yes || opts.DryRun,
	}
}

func runListTemplateCache(cmdCtx *commandContext, args []string) error {
	opts, err := parseTemplateCacheFlags("list-template-cache", args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, 2*time.Minute)
	defer cancel()

	client, err := connectRedisOnly(cmdCtx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("redis close failed", "error", closeErr)
		}
	}()

	entries, total, err := scanTemplateCache(ctx, cmdCtx, client, opts)
	if err != nil {
		return err
	}
	return printTemplateCacheEntries(entries, total, opts)
}

func scanTemplateCache(
	ctx context.Context,
	cmdCtx *commandContext,
	client redis.UniversalClient,
	opts templateCacheOptions,
) ([]templateCacheEntry, int, error) {
	pattern := templateCachePattern(opts.Tenant)
	cmdCtx.Logger.Info("scanning redis", "pattern", pattern)

	var (
		entries []templateCacheEntry
		total   int
	)
	iter := client.Scan(ctx, 0, pattern, cacheScanCount).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		tenant, language, parseErr := parseTemplateCacheKey(key)
		if parseErr != nil {
			cmdCtx.Logger.Warn("skipping template cache key", "key", key, "error", parseErr)
			continue
		}
		total++
		if opts.Limit > 0 && len(entries) >= opts.Limit {
			continue
		}
		ttl, ttlErr := client.TTL(ctx, key).Result()
		if ttlErr != nil {
			return nil, 0, fmt.Errorf("query redis ttl for key %q: %w", key, ttlErr)
		}
		entries = append(entries, templateCacheEntry{Key: key, Tenant: tenant, Language: language, TTL: ttl})
	}
	if err := iter.Err(); err != nil {
		return nil, 0, fmt.Errorf("scan redis: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Tenant == entries[j].Tenant {
			return entries[i].Language < entries[j].Language
		}
		return entries[i].Tenant < entries[j].Tenant
	})
	return entries, total, nil
}

func printTemplateCacheEntries(entries []templateCacheEntry, total int, opts templateCacheOptions) error {
	if err := writef(os.Stdout, "\nCached template bodies"); err != nil {
		return fmt.Errorf("write cache header: %w", err)
	}
	if opts.Limit > 0 {
		if err := writef(os.Stdout, " (showing up to %d)", opts.Limit); err != nil {
			return fmt.Errorf("write cache limit: %w", err)
		}
	}
	if err := writeln(os.Stdout); err != nil {
		return fmt.Errorf("write cache header newline: %w", err)
	}
	if len(entries) == 0 {
		return writeln(os.Stdout, "  (no keys matched)")
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "TENANT\tLANGUAGE\tTTL\tKEY"); err != nil {
		return fmt.Errorf("write cache header row: %w", err)
	}
	for _, e := range entries {
		if err := writef(tw, "%s\t%s\t%s\t%s\n", e.Tenant, e.Language, formatRedisTTL(e.TTL), e.Key); err != nil {
			return fmt.Errorf("write cache entry: %w", err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush cache table: %w", err)
	}
	if err := writef(os.Stdout, "Total keys matched: %d\n", total); err != nil {
		return fmt.Errorf("write cache total: %w", err)
	}
	if total > len(entries) {
		return writeln(os.Stdout, "More keys available; increase --limit to view additional entries.")
	}
	return nil
}

func runClearTemplateCache(cmdCtx *commandContext, args []string) error {
	opts, err := parseTemplateCacheFlags("clear-template-cache", args)
	if err != nil {
		return err
	}
	if err := clearCacheConfirmation(opts).ask(os.Stdin, os.Stdout); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, 2*time.Minute)
	defer cancel()

	client, err := connectRedisOnly(cmdCtx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("redis close failed", "error", closeErr)
		}
	}()

	matched, deleted, err := deleteTemplateCacheKeys(ctx, client, opts)
	if err != nil {
		return err
	}
	if opts.DryRun {
		return writef(os.Stdout, "Dry run: %d template cache keys would be deleted\n", matched)
	}
	cmdCtx.Logger.Info("clear template cache complete", "matched", matched, "deleted", deleted)
	return nil
}

func deleteTemplateCacheKeys(ctx context.Context, client redis.UniversalClient, opts templateCacheOptions) (int, int64, error) {
	var (
		matched int
		deleted int64
		batch   []string
	)
	flush := func() error {
		if len(batch) == 0 || opts.DryRun {
			batch = batch[:0]
			return nil
		}
		// Keys may live on different cluster slots, so delete one at a time in a pipeline.
		pipe := client.Pipeline()
		cmds := make([]*redis.IntCmd, 0, len(batch))
		for _, key := range batch {
			cmds = append(cmds, pipe.Del(ctx, key))
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("delete template cache keys: %w", err)
		}
		for _, c := range cmds {
			deleted += c.Val()
		}
		batch = batch[:0]
		return nil
	}

	iter := client.Scan(ctx, 0, templateCachePattern(opts.Tenant), cacheScanCount).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if _, _, err := parseTemplateCacheKey(key); err != nil {
			continue
		}
		matched++
		batch = append(batch, key)
		if len(batch) >= cacheScanCount {
			if err := flush(); err != nil {
				return matched, deleted, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return matched, deleted, fmt.Errorf("scan redis: %w", err)
	}
	if err := flush(); err != nil {
		return matched, deleted, err
	}
	return matched, deleted, nil
}
