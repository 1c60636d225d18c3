package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/ZaguanLabs/storecache"
	"github.com/ZaguanLabs/storecache/cache"
)

// writeJSON writes v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func cmdInit(ctx context.Context, a *app, opts options, stdout io.Writer) error {
	locale := a.coord.Initialize(ctx)

	if opts.json {
		return writeJSON(stdout, struct {
			Locale    string `json:"locale"`
			Name      string `json:"name"`
			Direction string `json:"direction"`
		}{locale.Code, locale.Name, locale.Direction.String()})
	}

	fmt.Fprintf(stdout, "Active locale: %s (%s, %s)\n", locale.Code, locale.Name, locale.Direction)
	return nil
}

func cmdLocale(ctx context.Context, a *app, opts options, args []string, stdout io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: storecache locale <code>", errUsage)
	}

	from := a.coord.Initialize(ctx)
	state, err := a.coord.SelectLocale(ctx, args[0])
	if err != nil {
		return fmt.Errorf("%w (supported: %s)", err, supportedCodes(a.cache.Registry()))
	}
	to := a.coord.CurrentLocale()

	if opts.json {
		return writeJSON(stdout, struct {
			From      string `json:"from"`
			To        string `json:"to"`
			Direction string `json:"direction"`
			State     string `json:"state"`
		}{from.Code, to.Code, to.Direction.String(), string(state)})
	}

	if from.Code == to.Code {
		fmt.Fprintf(stdout, "Locale already %s\n", to.Code)
		return nil
	}
	fmt.Fprintf(stdout, "Switched %s -> %s (%s)\n", from.Code, to.Code, to.Direction)
	if state == storecache.StateAwaitingRestart {
		fmt.Fprintf(stdout, "Layout direction changed: restart the storefront to apply it.\n")
	}
	return nil
}

func cmdWarm(ctx context.Context, a *app, opts options, args []string, stdout io.Writer) error {
	locale, err := localeArg(ctx, a, args)
	if err != nil {
		return err
	}

	var reports []storecache.WarmReport
	if opts.both {
		reports = a.prefetch.WarmBothLocales(ctx, locale)
	} else {
		reports = []storecache.WarmReport{a.prefetch.Warm(ctx, locale)}
	}

	if opts.json {
		type reportOutput struct {
			Locale    string `json:"locale"`
			Skipped   bool   `json:"skipped"`
			Targets   int    `json:"targets"`
			Fetched   int    `json:"fetched"`
			Failed    int    `json:"failed"`
			ElapsedMs int64  `json:"elapsed_ms"`
			Error     string `json:"error,omitempty"`
		}
		out := make([]reportOutput, 0, len(reports))
		for _, r := range reports {
			ro := reportOutput{
				Locale:    r.Locale,
				Skipped:   r.Skipped,
				Targets:   r.Targets,
				Fetched:   r.Fetched,
				Failed:    r.Failed,
				ElapsedMs: r.Duration.Milliseconds(),
			}
			if r.Err != nil {
				ro.Error = r.Err.Error()
			}
			out = append(out, ro)
		}
		return writeJSON(stdout, out)
	}

	var failed int
	for _, r := range reports {
		if r.Skipped {
			fmt.Fprintf(stdout, "%s: already warm\n", r.Locale)
			continue
		}
		fmt.Fprintf(stdout, "%s: %d targets, %d fetched, %d failed in %v\n",
			r.Locale, r.Targets, r.Fetched, r.Failed, r.Duration.Round(time.Millisecond))
		failed += r.Failed
	}
	if failed > 0 {
		return fmt.Errorf("%d prefetch targets failed", failed)
	}
	return nil
}

func cmdStats(ctx context.Context, a *app, opts options, stdout io.Writer) error {
	a.cache.Flush()
	stats := a.maint.Stats(ctx)

	if opts.json {
		return writeJSON(stdout, struct {
			EphemeralEntries     int            `json:"ephemeral_entries"`
			EphemeralByLocale    map[string]int `json:"ephemeral_by_locale"`
			DurableEntries       int            `json:"durable_entries"`
			DurableBytesEstimate int64          `json:"durable_bytes_estimate"`
			DurableAvailable     bool           `json:"durable_available"`
			Sampled              int            `json:"sampled"`
			Hits                 int64          `json:"hits"`
			Misses               int64          `json:"misses"`
		}{
			stats.EphemeralEntries, stats.EphemeralByLocale, stats.DurableEntries,
			stats.DurableBytesEstimate, stats.DurableAvailable, stats.Sampled,
			stats.Hits, stats.Misses,
		})
	}

	fmt.Fprintf(stdout, "Ephemeral entries: %d\n", stats.EphemeralEntries)
	locales := make([]string, 0, len(stats.EphemeralByLocale))
	for l := range stats.EphemeralByLocale {
		locales = append(locales, l)
	}
	sort.Strings(locales)
	for _, l := range locales {
		fmt.Fprintf(stdout, "  %-4s %d\n", l, stats.EphemeralByLocale[l])
	}
	if !stats.DurableAvailable {
		fmt.Fprintf(stdout, "Durable tier:      unavailable\n")
		return nil
	}
	fmt.Fprintf(stdout, "Durable entries:   %d\n", stats.DurableEntries)
	fmt.Fprintf(stdout, "Durable size:      ~%d bytes (sampled %d)\n", stats.DurableBytesEstimate, stats.Sampled)
	return nil
}

func cmdDiagnose(ctx context.Context, a *app, opts options, stdout io.Writer) error {
	report := a.maint.Diagnose(ctx)

	if opts.json {
		type issueOutput struct {
			Code    string `json:"code"`
			Message string `json:"message"`
			Remedy  string `json:"remedy"`
		}
		out := make([]issueOutput, 0, len(report.Issues))
		for _, i := range report.Issues {
			out = append(out, issueOutput{i.Code, i.Message, i.Remedy})
		}
		return writeJSON(stdout, struct {
			Healthy bool          `json:"healthy"`
			Issues  []issueOutput `json:"issues"`
		}{report.Healthy(), out})
	}

	if report.Healthy() {
		fmt.Fprintf(stdout, "No issues found.\n")
		return nil
	}
	fmt.Fprintf(stdout, "%d issues found:\n\n", len(report.Issues))
	for _, i := range report.Issues {
		fmt.Fprintf(stdout, "  [%s] %s\n", i.Code, i.Message)
		fmt.Fprintf(stdout, "    remedy: %s\n", i.Remedy)
	}
	return nil
}

func cmdClear(ctx context.Context, a *app, opts options, args []string, stdout io.Writer) error {
	if len(args) > 0 {
		if err := a.maint.ClearLocale(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Cleared locale %s\n", args[0])
		return nil
	}

	result := a.maint.ClearAll(ctx)
	if opts.json {
		errs := make([]string, 0, len(result.Errors))
		for _, err := range result.Errors {
			errs = append(errs, err.Error())
		}
		return writeJSON(stdout, struct {
			Ephemeral bool     `json:"ephemeral"`
			Durable   bool     `json:"durable"`
			Direction bool     `json:"direction"`
			Errors    []string `json:"errors,omitempty"`
		}{result.Ephemeral, result.Durable, result.Direction, errs})
	}

	fmt.Fprintf(stdout, "Ephemeral tier: %s\n", okText(result.Ephemeral))
	fmt.Fprintf(stdout, "Durable tier:   %s\n", okText(result.Durable))
	fmt.Fprintf(stdout, "Direction flag: %s\n", okText(result.Direction))
	if len(result.Errors) > 0 {
		return fmt.Errorf("clear incomplete: %d errors", len(result.Errors))
	}
	return nil
}

func okText(ok bool) string {
	if ok {
		return "cleared"
	}
	return "failed"
}

func cmdExport(ctx context.Context, a *app, args []string, stdout io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: storecache export <file>", errUsage)
	}

	metadata := map[string]string{
		"schema_version": a.cache.SchemaVersion(),
		"exported_by":    storecache.UserAgent(),
	}
	if err := cache.NewExporter(a.medium).ExportToFile(ctx, args[0], "", metadata); err != nil {
		return fmt.Errorf("exporting: %w", err)
	}
	fmt.Fprintf(stdout, "Exported to %s\n", args[0])
	return nil
}

func cmdImport(ctx context.Context, a *app, args []string, stdout io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: storecache import <file>", errUsage)
	}

	result, err := cache.NewImporter(a.medium).ImportFromFile(ctx, args[0])
	if err != nil {
		return fmt.Errorf("importing: %w", err)
	}
	if v := result.Metadata["schema_version"]; v != "" && v != a.cache.SchemaVersion() {
		a.logger.Warn("snapshot schema differs, its entries will be treated as absent", "snapshot", v, "current", a.cache.SchemaVersion())
	}
	fmt.Fprintf(stdout, "Imported %d keys (%d failed)\n", result.Imported, result.Failed)
	return nil
}
