package commands

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/mash-protocol/m2m-inventory/pkg/history"
)

// HistoryOptions selects what the history command prints.
type HistoryOptions struct {
	Path  string
	Limit int
}

// RunHistory prints value changes, notification outcomes and lifecycle
// transitions from a history database.
func RunHistory(dbPath string, opts HistoryOptions, w io.Writer) error {
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	rec, err := history.Open(dbPath, nil)
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer rec.Close()

	if opts.Path != "" {
		values, err := rec.Values(opts.Path, opts.Limit)
		if err != nil {
			return fmt.Errorf("failed to query values: %w", err)
		}
		fmt.Fprintf(w, "Values of %s (newest first):\n", opts.Path)
		for _, v := range values {
			fmt.Fprintf(w, "  %s  %s\n", v.Time.UTC().Format(time.RFC3339Nano), v.Value)
		}
		fmt.Fprintln(w)
	}

	counts, err := rec.StatusCounts(opts.Path)
	if err != nil {
		return fmt.Errorf("failed to query notification status: %w", err)
	}
	fmt.Fprintln(w, "Notification Status:")
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-14s %d\n", name+":", counts[name])
	}
	fmt.Fprintln(w)

	states, err := rec.States(opts.Limit)
	if err != nil {
		return fmt.Errorf("failed to query states: %w", err)
	}
	fmt.Fprintln(w, "State Changes:")
	for _, s := range states {
		line := fmt.Sprintf("  %s  %s %s -> %s",
			s.Time.UTC().Format(time.RFC3339Nano), s.Entity, s.OldState, s.NewState)
		if s.Reason != "" {
			line += " (" + s.Reason + ")"
		}
		fmt.Fprintln(w, line)
	}

	errs, err := rec.ErrorCount()
	if err != nil {
		return fmt.Errorf("failed to count errors: %w", err)
	}
	if errs > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", errs)
	}
	return nil
}
