// Command m2m-log views and analyzes the event files and history databases
// written by m2m-client.
//
// Usage:
//
//	m2m-log <command> [flags] <file>
//
// Commands:
//
//	view     View event file in human-readable format
//	export   Export event file to JSONL or CSV
//	filter   Filter event file and write to new file
//	stats    Show statistics about the event file
//	history  Summarize a history database
//
// Examples:
//
//	# View only notifications
//	m2m-log view -category notification events.cbor
//
//	# Values of the stock count, newest first
//	m2m-log history -path 10341/0/26342 history.db
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mash-protocol/m2m-inventory/cmd/m2m-log/commands"
)

const usage = `m2m-log - M2M Client Event Analyzer

Usage:
  m2m-log <command> [flags] <file>

Commands:
  view     View event file in human-readable format
  export   Export event file to JSONL or CSV
  filter   Filter event file and write to new file
  stats    Show statistics about the event file
  history  Summarize a history database

Use "m2m-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "history":
		runHistory(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

func newFlagSet(name, summary string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "m2m-log %s - %s\n\nUsage:\n  m2m-log %s [flags] <file>\n\nFlags:\n", name, summary, name)
		fs.PrintDefaults()
	}
	return fs
}

// parseArgs parses args and returns the single file argument.
func parseArgs(fs *flag.FlagSet, args []string) string {
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: file path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func runView(args []string) {
	fs := newFlagSet("view", "View event file in human-readable format")
	layer := fs.String("layer", "", "Filter by layer (wire, client, resource)")
	direction := fs.String("direction", "", "Filter by direction (in, out)")
	category := fs.String("category", "", "Filter by category (message, notification, state, error)")
	resource := fs.String("path", "", "Filter by resource path (object/instance/resource)")
	path := parseArgs(fs, args)

	filter := commands.ViewFilter{Path: *resource}
	if *layer != "" {
		l, err := commands.ParseLayerFlag(*layer)
		if err != nil {
			fail(err)
		}
		filter.Layer = &l
	}
	if *direction != "" {
		d, err := commands.ParseDirectionFlag(*direction)
		if err != nil {
			fail(err)
		}
		filter.Direction = &d
	}
	if *category != "" {
		c, err := commands.ParseCategoryFlag(*category)
		if err != nil {
			fail(err)
		}
		filter.Category = &c
	}

	if err := commands.RunView(path, filter, os.Stdout); err != nil {
		fail(err)
	}
}

func runExport(args []string) {
	fs := newFlagSet("export", "Export event file to JSONL or CSV")
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")
	path := parseArgs(fs, args)

	if err := commands.RunExport(path, *format, *output); err != nil {
		fail(err)
	}
}

func runFilter(args []string) {
	fs := newFlagSet("filter", "Filter event file and write to new file")
	output := fs.String("o", "", "Output file (required)")
	sessionID := fs.String("session", "", "Filter by session ID")
	endpoint := fs.String("endpoint", "", "Filter by endpoint name")
	resource := fs.String("path", "", "Filter by resource path")
	timeStart := fs.String("time-start", "", "Filter by start time (RFC3339)")
	timeEnd := fs.String("time-end", "", "Filter by end time (RFC3339)")
	layer := fs.String("layer", "", "Filter by layer (wire, client, resource)")
	direction := fs.String("direction", "", "Filter by direction (in, out)")
	category := fs.String("category", "", "Filter by category (message, notification, state, error)")
	path := parseArgs(fs, args)

	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	n, err := commands.RunFilter(path, commands.FilterOptions{
		Output:    *output,
		SessionID: *sessionID,
		Endpoint:  *endpoint,
		Path:      *resource,
		TimeStart: *timeStart,
		TimeEnd:   *timeEnd,
		Layer:     *layer,
		Direction: *direction,
		Category:  *category,
	})
	if err != nil {
		fail(err)
	}
	fmt.Printf("Filtered %d events to %s\n", n, *output)
}

func runStats(args []string) {
	fs := newFlagSet("stats", "Show statistics about the event file")
	path := parseArgs(fs, args)

	if err := commands.RunStats(path, os.Stdout); err != nil {
		fail(err)
	}
}

func runHistory(args []string) {
	fs := newFlagSet("history", "Summarize a history database")
	resource := fs.String("path", "", "Show value changes of this resource path")
	limit := fs.Int("limit", 20, "Maximum rows per section (0 = all)")
	path := parseArgs(fs, args)

	err := commands.RunHistory(path, commands.HistoryOptions{Path: *resource, Limit: *limit}, os.Stdout)
	if err != nil {
		fail(err)
	}
}
