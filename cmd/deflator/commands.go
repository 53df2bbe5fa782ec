package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/kalambet/deflator/internal/config"
	"github.com/kalambet/deflator/internal/scrape"
)

// --- scrape ---

var scrapeCmd = &cobra.Command{
	Use:   "scrape [source...]",
	Short: "Scrape sources now and print a summary",
	Long: `Scrape the given sources, or every source when none is given, and print
a summary per source.

Examples:
  deflator scrape
  deflator scrape roumen-maso`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sources, err := parseSources(args)
		if err != nil {
			return err
		}

		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		var results []*scrape.Result
		if len(sources) == 0 {
			results, _ = a.runner.RunAll(ctx)
		} else {
			for _, src := range sources {
				results = append(results, a.runner.Run(ctx, src))
			}
		}

		failed, err := printResults(os.Stdout, results)
		if err != nil {
			return err
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d scrapes failed", failed, len(results))
		}
		return nil
	},
}

func parseSources(args []string) ([]scrape.Source, error) {
	var out []scrape.Source
	for _, arg := range args {
		src := scrape.Of(arg)
		if src == scrape.Noop {
			return nil, fmt.Errorf("unknown source %q (known: %s)", arg, joinSources(scrape.Sources()))
		}
		out = append(out, src)
	}
	return out, nil
}

func joinSources(sources []scrape.Source) string {
	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = s.String()
	}
	return strings.Join(names, ", ")
}

// printResults writes a summary per result and returns how many of them
// ended with run-level errors.
func printResults(w io.Writer, results []*scrape.Result) (int, error) {
	failed := 0
	for _, res := range results {
		s, err := summarize(res)
		if err != nil {
			return failed, err
		}
		if len(s.GeneralErrors) > 0 {
			failed++
		}
		writeSummary(w, s)
	}
	return failed, nil
}

func summarize(res *scrape.Result) (summary, error) {
	var s summary
	data, err := json.Marshal(res)
	if err != nil {
		return s, fmt.Errorf("encoding result: %w", err)
	}
	err = json.Unmarshal(data, &s)
	return s, err
}

// --- stats / items ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "List recent scrape runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if limit <= 0 {
			limit = a.cfg.Limits.ScrapsShown
		}
		runs, err := a.reader.RecentRuns(cmd.Context(), limit)
		if err != nil {
			return fmt.Errorf("reading runs: %w", err)
		}
		return writeRuns(os.Stdout, runs)
	},
}

var itemsCmd = &cobra.Command{
	Use:   "items <source>",
	Short: "List recently downloaded items of a source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		src := scrape.Of(args[0])
		if src == scrape.Noop {
			printWarning("unknown source %q (known: %s)", args[0], joinSources(scrape.Sources()))
			return writeItems(os.Stdout, nil)
		}

		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if limit <= 0 {
			limit = a.cfg.Limits.ImagesShown
		}
		items, err := a.reader.RecentItems(cmd.Context(), src.String(), limit)
		if err != nil {
			return fmt.Errorf("reading items: %w", err)
		}
		return writeItems(os.Stdout, items)
	},
}

func init() {
	statsCmd.Flags().Int("limit", 0, "maximum number of runs (default: limits.scraps_shown)")
	itemsCmd.Flags().Int("limit", 0, "maximum number of items (default: limits.images_shown)")
}

// --- install ---

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Create the datafile schema and the images directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		printStep("Datafile %s", a.cfg.Storage.DatafilePath())
		versions, err := a.store.AppliedMigrations()
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
		printStatus("Schema versions", "%v", versions)

		printStep("Images directory %s", a.cfg.Storage.ScrapPath())
		if err := os.MkdirAll(a.cfg.Storage.ScrapPath(), 0o755); err != nil {
			return fmt.Errorf("creating images directory: %w", err)
		}

		printSuccess("Installed")
		return nil
	},
}

// --- trigger ---

var triggerCmd = &cobra.Command{
	Use:   "trigger [source]",
	Short: "Ask a running server to scrape now",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var source string
		if len(args) == 1 {
			srcs, err := parseSources(args)
			if err != nil {
				return err
			}
			source = srcs[0].String()
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.trigger(cmd.Context(), source)
		if err != nil {
			return err
		}
		if resp.Shared {
			printStep("Joined a scrape already in progress")
		}
		for _, s := range resp.Results {
			writeSummary(os.Stdout, s)
		}
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorCyan, "$"+k.EnvVar))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

// --- token ---

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage the shared auth key",
}

var tokenSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store the auth key in the OS keyring",
	Long: `Store the auth key in the OS keyring. The key is read from the terminal
without echo, or from stdin when it is not a terminal.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := readSecret(os.Stdin, "Auth key: ")
		if err != nil {
			return err
		}
		if err := config.SetAuthKey(key); err != nil {
			return fmt.Errorf("storing auth key: %w", err)
		}
		printSuccess("Auth key stored in the %s keyring entry", config.KeyringService)
		return nil
	},
}

func init() {
	tokenCmd.AddCommand(tokenSetCmd)
}

func readSecret(in *os.File, prompt string) (string, error) {
	fd := int(in.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading auth key: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	return readLine(in)
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading auth key: %w", err)
	}
	return strings.TrimSpace(line), nil
}

