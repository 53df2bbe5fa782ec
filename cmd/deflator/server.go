package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/deflator/internal/api"
	"github.com/kalambet/deflator/internal/config"
	"github.com/kalambet/deflator/internal/schedule"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the gallery and statistics over HTTP (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running deflator server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show deflator status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the MCP tools over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "deflator.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "deflator version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	token, err := cfg.RequireAuthKey()
	if err != nil {
		printWarning("%v; /scrape will reject every request", err)
	}

	healthURL := "http://" + cfg.Server.Addr() + "/health"
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		return fmt.Errorf("server already running on %s", cfg.Server.Addr())
	}

	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	pidPath := pidFilePath(cfg.Storage.BaseDir)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	if err := os.MkdirAll(cfg.Storage.ScrapPath(), 0o755); err != nil {
		return fmt.Errorf("creating images directory: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handler := api.NewAppHandler(api.AppDeps{
		Reader:    a.reader,
		Runner:    a.runner,
		Token:     token,
		ScrapPath: cfg.Storage.ScrapPath(),
		Limits: api.Limits{
			ImagesShown: cfg.Limits.ImagesShown,
			ScrapsShown: cfg.Limits.ScrapsShown,
		},
		Logger: a.logger,
	})

	srv := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: handler,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	worker := schedule.NewWorker(a.runner, cfg.Scrape.Interval, a.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})
	g.Go(func() error {
		a.logger.Info().Str("addr", srv.Addr).Str("images", cfg.Storage.ScrapPath()).Msg("deflator listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func runMCP() error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Reader:  a.reader,
		Runner:  a.runner,
		Version: version,
	})
	a.logger.Info().Msg("MCP server started (stdio transport)")

	err = server.NewStdioServer(mcpSrv).Listen(ctx, os.Stdin, os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.BaseDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("deflator is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop deflator (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to deflator (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + cfg.Server.Addr() + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			printStatus("Server", "running on %s", cfg.Server.Addr())
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	if cfg.Scrape.Interval > 0 {
		printStatus("Schedule", "every %s", cfg.Scrape.Interval)
	} else {
		printStatus("Schedule", "disabled")
	}
	if cfg.Scrape.AuthKey != "" {
		printStatus("Auth key", "set")
	} else {
		printStatus("Auth key", "unset")
	}
	printStatus("Datafile", "%s", cfg.Storage.DatafilePath())
	printStatus("Images", "%s", cfg.Storage.ScrapPath())

	a, err := openApp(cfg)
	if err != nil {
		printError("%v", err)
		return nil
	}
	defer a.Close()

	runs, err := a.reader.RecentRuns(context.Background(), 1)
	switch {
	case err != nil:
		printError("reading history: %v", err)
	case len(runs) == 0:
		printStatus("Last scrape", "never")
	default:
		r := runs[0]
		printStatus("Last scrape", "%s %s, %s ago (%s)", r.Source, r.Status, r.Age, r.Percentage)
	}
	return nil
}
