package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/piconix/f1voice/internal/api"
	"github.com/piconix/f1voice/internal/config"
	"github.com/piconix/f1voice/internal/logging"
	"github.com/piconix/f1voice/internal/storage"
	"github.com/piconix/f1voice/internal/voicecache"
)

const shutdownTimeout = 5 * time.Second

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the f1voice server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running f1voice server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show f1voice status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "f1voice.pid")
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

func localURL(port int) string {
	return fmt.Sprintf("http://127.0.0.1:%d", port)
}

func healthy(port int) bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(localURL(port) + "/health")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "f1voice version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, closer := setupLogging(cfg, os.Stderr)
	defer closer.Close()

	pidPath := pidFilePath(cfg.Storage.DataDir)
	if healthy(cfg.Server.Port) {
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("f1voice is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("f1voice is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logging.With(ctx, logger)

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			printWarning("closing storage: %v", err)
		}
	}()

	svc, err := buildServices(cfg, store)
	if err != nil {
		return err
	}
	if cfg.Server.APIToken == "" {
		logger.Warn("no API token configured, /questions is unauthenticated")
	}

	handler := api.NewHandler(api.Deps{
		Answerer: svc.answerer,
		Bias:     svc.detector,
		History:  store,
		Metrics:  svc.metrics,
		Token:    cfg.Server.APIToken,
		Logger:   logger,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("f1voice listening", "addr", addr, "synthesis", cfg.Synthesis.Provider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.LoadOffline()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("f1voice is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop f1voice (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to f1voice (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.LoadOffline()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	if healthy(cfg.Server.Port) {
		printStatus("Server", "running on port %d", cfg.Server.Port)
	} else {
		printStatus("Server", "stopped")
	}
	printStatus("Synthesis", "%s", cfg.Synthesis.Provider)
	printStatus("Chat model", "%s", cfg.OpenAI.ChatModel)
	printStatus("Llama model", "%s", cfg.Llama.Model)

	if cache, err := voicecache.Open(cfg.VoiceCacheDir()); err == nil {
		if st, err := cache.Stats(); err == nil {
			printStatus("Voice cache", "%d answers, %s", st.Entries, humanize.Bytes(uint64(st.Bytes)))
		}
	}

	if store, err := storage.Open(cfg.Storage.DataDir); err == nil {
		counts, err := store.Counts(ctx)
		if err == nil {
			printStatus("Drivers", "%s", humanize.Comma(int64(counts["drivers"])))
			printStatus("Races", "%s", humanize.Comma(int64(counts["races"])))
			printStatus("Results", "%s", humanize.Comma(int64(counts["results"])))
			printStatus("Questions", "%s", humanize.Comma(int64(counts["question_answers"])))
		} else {
			slog.Debug("counting rows", "error", err)
		}
		store.Close()
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
