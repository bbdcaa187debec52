// Package main provides the filetrail-ctl CLI for store and capture-file
// operations.
//
// Usage:
//
//	filetrail-ctl stats [--config <file>]
//	filetrail-ctl query [--config <file>] [--type <activity-type>] [--volume <vol>] [--from <rfc3339>] [--to <rfc3339>] [--id <activity-id>]
//	filetrail-ctl export [--config <file>] --out <file>
//	filetrail-ctl import [--config <file>] --in <file>
//	filetrail-ctl archive [--config <file>] [--in <file>] [--list]
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/filetrail/filetrail/pkg/activity"
	"github.com/filetrail/filetrail/pkg/capture"
	"github.com/filetrail/filetrail/pkg/config"
	"github.com/filetrail/filetrail/pkg/recorder"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "stats":
		runStats(os.Args[2:])
	case "query":
		runQuery(os.Args[2:])
	case "export":
		runExport(os.Args[2:])
	case "import":
		runImport(os.Args[2:])
	case "archive":
		runArchive(os.Args[2:])
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, "filetrail-ctl — filetrail admin CLI\n\n")
	fmt.Fprint(os.Stderr, "Usage:\n")
	fmt.Fprint(os.Stderr, "  filetrail-ctl <command> [flags]\n\n")
	fmt.Fprint(os.Stderr, "Commands:\n")
	fmt.Fprint(os.Stderr, "  stats    Show store statistics\n")
	fmt.Fprint(os.Stderr, "  query    Query stored activity\n")
	fmt.Fprint(os.Stderr, "  export   Export stored activity to a capture file\n")
	fmt.Fprint(os.Stderr, "  import   Import a capture file into the store\n")
	fmt.Fprint(os.Stderr, "  archive  Upload a capture file to the configured remote\n\n")
	fmt.Fprint(os.Stderr, "Use \"filetrail-ctl <command> --help\" for more information about a command.\n")
}

// openStore loads config and opens the recorder store. Returns a cleanup
// function that should be deferred.
func openStore(configPath string) (*config.Config, *recorder.Recorder, func()) {
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "path", configPath, "error", err)
		os.Exit(1)
	}

	rec, err := recorder.Open(cfg.Recorder, cfg.ProviderID)
	if err != nil {
		slog.Error("failed to open recorder store", "path", cfg.Recorder.Path, "error", err)
		os.Exit(1)
	}

	return cfg, rec, func() { rec.Close() }
}

// runStats implements "filetrail-ctl stats".
func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	configPath := fs.String("config", "/etc/filetrail/config.yaml", "Path to config file")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, "Usage: filetrail-ctl stats [flags]\n\nShow store statistics.\n\nFlags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	_, rec, cleanup := openStore(*configPath)
	defer cleanup()

	stats, err := rec.Statistics()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Filetrail Store Statistics")
	fmt.Println("────────────────────────────────────")
	fmt.Printf("Live Records: %d\n", stats.Total)
	fmt.Printf("Retention:    %s\n", rec.TTL())
	fmt.Println()
	fmt.Println("By Type")
	for typ, n := range stats.ByType {
		fmt.Printf("  %-20s %d\n", typ, n)
	}
	fmt.Println("By Volume")
	for vol, n := range stats.ByVolume {
		fmt.Printf("  %-20s %d\n", vol, n)
	}
	fmt.Println("By Item Type")
	for item, n := range stats.ByItemType {
		fmt.Printf("  %-20s %d\n", item, n)
	}
	fmt.Println("────────────────────────────────────")
}

// runQuery implements "filetrail-ctl query".
func runQuery(args []string) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", "/etc/filetrail/config.yaml", "Path to config file")
	typStr := fs.String("type", "", "Activity type filter (e.g. create, modify, rename, delete)")
	volume := fs.String("volume", "", "Volume filter")
	fromStr := fs.String("from", "", "Start of time range (RFC3339)")
	toStr := fs.String("to", "", "End of time range (RFC3339, exclusive)")
	id := fs.String("id", "", "Single activity id")
	format := fs.String("format", "table", "Output format: table, csv")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, "Usage: filetrail-ctl query [flags]\n\nQuery stored activity.\n\nFlags:\n")
		fs.PrintDefaults()
		fmt.Fprint(os.Stderr, "\nExamples:\n")
		fmt.Fprint(os.Stderr, "  filetrail-ctl query --type rename --volume C:\n")
		fmt.Fprint(os.Stderr, "  filetrail-ctl query --from 2026-03-01T00:00:00Z --to 2026-03-02T00:00:00Z\n")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	_, rec, cleanup := openStore(*configPath)
	defer cleanup()

	var docs []recorder.Document
	var err error

	switch {
	case *id != "":
		var doc recorder.Document
		doc, err = rec.GetDocument(*id)
		if err == nil {
			docs = []recorder.Document{doc}
		}
	case *fromStr != "" || *toStr != "":
		from, to, perr := parseTimeRange(*fromStr, *toStr)
		if perr != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", perr)
			os.Exit(1)
		}
		docs, err = rec.QueryByTimeRange(from, to)
	case *typStr != "":
		docs, err = rec.QueryByType(activity.Type(*typStr))
	case *volume != "":
		docs, err = rec.QueryByVolume(*volume)
	default:
		docs, err = rec.All()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Remaining filters apply over whichever primary query ran.
	docs = filterDocs(docs, *typStr, *volume)

	switch *format {
	case "csv":
		w := csv.NewWriter(os.Stdout)
		w.Write([]string{"activity_id", "timestamp", "type", "volume", "file_name", "file_path", "importance"})
		for _, d := range docs {
			w.Write([]string{
				d.Record.ActivityID,
				d.Record.Timestamp.Format(time.RFC3339),
				string(d.Record.Type),
				d.Record.VolumeName,
				d.Record.FileName,
				d.Record.FilePath,
				fmt.Sprintf("%.2f", d.Importance),
			})
		}
		w.Flush()
	default:
		fmt.Println("Stored Activity")
		fmt.Println("────────────────────────────────────────────────────────────")
		fmt.Printf("%-20s %-16s %-10s %s\n", "TIMESTAMP", "TYPE", "IMPORTANCE", "FILE")
		fmt.Println("────────────────────────────────────────────────────────────")
		for _, d := range docs {
			name := d.Record.FilePath
			if name == "" {
				name = d.Record.FileName
			}
			fmt.Printf("%-20s %-16s %10.2f %s\n",
				d.Record.Timestamp.Format("2006-01-02 15:04:05"),
				d.Record.Type, d.Importance, name)
		}
		if len(docs) == 0 {
			fmt.Println("  (no matching records)")
		}
		fmt.Println("────────────────────────────────────────────────────────────")
		fmt.Printf("%d record(s)\n", len(docs))
	}
}

func parseTimeRange(fromStr, toStr string) (time.Time, time.Time, error) {
	from := time.Time{}
	to := time.Now().UTC().Add(time.Hour)
	if fromStr != "" {
		t, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			return from, to, fmt.Errorf("invalid --from %q: %v", fromStr, err)
		}
		from = t
	}
	if toStr != "" {
		t, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			return from, to, fmt.Errorf("invalid --to %q: %v", toStr, err)
		}
		to = t
	}
	return from, to, nil
}

func filterDocs(docs []recorder.Document, typStr, volume string) []recorder.Document {
	out := docs[:0]
	for _, d := range docs {
		if typStr != "" && string(d.Record.Type) != typStr {
			continue
		}
		if volume != "" && d.Record.VolumeName != volume {
			continue
		}
		out = append(out, d)
	}
	return out
}

// runExport implements "filetrail-ctl export".
func runExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	configPath := fs.String("config", "/etc/filetrail/config.yaml", "Path to config file")
	out := fs.String("out", "", "Output capture file (required)")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, "Usage: filetrail-ctl export [flags]\n\nExport stored activity to a capture file.\n\nFlags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if *out == "" {
		fmt.Fprintln(os.Stderr, "Error: --out is required")
		fs.Usage()
		os.Exit(1)
	}

	cfg, rec, cleanup := openStore(*configPath)
	defer cleanup()

	docs, err := rec.All()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	records := make([]activity.Record, 0, len(docs))
	for _, d := range docs {
		records = append(records, d.Record)
	}

	if err := capture.Save(*out, cfg.ProviderID, records); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Exported %d record(s) to %s\n", len(records), *out)
}

// runImport implements "filetrail-ctl import".
func runImport(args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	configPath := fs.String("config", "/etc/filetrail/config.yaml", "Path to config file")
	in := fs.String("in", "", "Input capture file (required)")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, "Usage: filetrail-ctl import [flags]\n\nImport a capture file into the store.\n\nFlags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if *in == "" {
		fmt.Fprintln(os.Stderr, "Error: --in is required")
		fs.Usage()
		os.Exit(1)
	}

	meta, records, err := capture.Load(*in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	_, rec, cleanup := openStore(*configPath)
	defer cleanup()

	_, errs := rec.StoreMany(records)
	failed := 0
	for _, e := range errs {
		if e != nil {
			failed++
		}
	}

	fmt.Printf("Imported %d of %d record(s) from %s (captured %s by %s)\n",
		len(records)-failed, len(records), *in,
		meta.CapturedAt.Format("2006-01-02 15:04:05"),
		meta.ProviderID)
	if failed > 0 {
		fmt.Fprintf(os.Stderr, "Warning: %d record(s) failed validation and were skipped\n", failed)
	}
}

// runArchive implements "filetrail-ctl archive".
func runArchive(args []string) {
	fs := flag.NewFlagSet("archive", flag.ExitOnError)
	configPath := fs.String("config", "/etc/filetrail/config.yaml", "Path to config file")
	in := fs.String("in", "", "Capture file to upload (default: export the live store)")
	list := fs.Bool("list", false, "List archived capture files instead of uploading")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, "Usage: filetrail-ctl archive [flags]\n\nUpload a capture file to the configured remote.\n\nFlags:\n")
		fs.PrintDefaults()
		fmt.Fprint(os.Stderr, "\nExamples:\n")
		fmt.Fprint(os.Stderr, "  filetrail-ctl archive --list\n")
		fmt.Fprint(os.Stderr, "  filetrail-ctl archive --in capture.jsonl\n")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}
	if !cfg.Archive.Enabled {
		fmt.Fprintln(os.Stderr, "Error: archive is not enabled in the configuration")
		os.Exit(1)
	}

	sink, err := capture.NewArchiveSink(cfg.ProviderID, cfg.Archive)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if *list {
		names, err := sink.List(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Archived Captures")
		fmt.Println("────────────────────────────────────")
		for _, name := range names {
			fmt.Printf("  %s\n", name)
		}
		if len(names) == 0 {
			fmt.Println("  (no archived captures)")
		}
		fmt.Println("────────────────────────────────────")
		return
	}

	var records []activity.Record
	if *in != "" {
		_, records, err = capture.Load(*in)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	} else {
		rec, rerr := recorder.Open(cfg.Recorder, cfg.ProviderID)
		if rerr != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", rerr)
			os.Exit(1)
		}
		defer rec.Close()

		docs, derr := rec.All()
		if derr != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", derr)
			os.Exit(1)
		}
		for _, d := range docs {
			records = append(records, d.Record)
		}
	}

	name, err := sink.Upload(ctx, records)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Uploaded %d record(s) as %s\n", len(records), name)
}
