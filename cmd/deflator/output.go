package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/kalambet/deflator/internal/failure"
	"github.com/kalambet/deflator/internal/history"
	"github.com/kalambet/deflator/internal/timefmt"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorCyan, "→ "+msg))
}

// summary is the part of a scrape result the CLI renders, decoded from the
// result's JSON form so local and remote runs print the same way.
type summary struct {
	Source  string `json:"source"`
	Summary string `json:"summary"`
	Failed  []struct {
		Name    string       `json:"item_name"`
		Failure failure.Info `json:"failure"`
	} `json:"items_failed"`
	GeneralErrors []failure.Info `json:"general_error_list"`
}

func writeSummary(w io.Writer, s summary) {
	color := colorGreen
	if len(s.GeneralErrors) > 0 {
		color = colorRed
	} else if len(s.Failed) > 0 {
		color = colorYellow
	}
	fmt.Fprintln(w, colorize(color, s.Summary))
	for _, f := range s.Failed {
		fmt.Fprintf(w, "  %s %s: %s\n", colorize(colorYellow, "item"), f.Name, f.Failure.Value)
	}
	for _, e := range s.GeneralErrors {
		fmt.Fprintf(w, "  %s %s: %s\n", colorize(colorRed, "error"), e.Type, e.Value)
	}
}

func writeRuns(w io.Writer, runs []history.RunView) error {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No scrapes recorded yet.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSOURCE\tSTATUS\tSTARTED\tAGE\tTOOK\tOK\tFAIL\tSUCCESS")
	for _, r := range runs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Source, r.Status, r.Start, r.Age, r.TimeTaken,
			count(r.Succeeded), count(r.Failed), r.Percentage)
	}
	return tw.Flush()
}

func writeItems(w io.Writer, items []history.ItemView) error {
	if len(items) == 0 {
		fmt.Fprintln(w, "No items found.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DOWNLOADED\tAGE\tNAME\tPATH")
	for _, it := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", it.Datetime, it.Age, it.Name, it.LocalPath)
	}
	return tw.Flush()
}

func count(n *int64) string {
	if n == nil {
		return timefmt.NotAvailable
	}
	return fmt.Sprintf("%d", *n)
}
