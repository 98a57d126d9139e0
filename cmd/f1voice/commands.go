package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/piconix/f1voice/internal/api"
	"github.com/piconix/f1voice/internal/bias"
	"github.com/piconix/f1voice/internal/config"
	"github.com/piconix/f1voice/internal/ingest"
	"github.com/piconix/f1voice/internal/logging"
	"github.com/piconix/f1voice/internal/storage"
)

const questionPath = "/voice/question/formula-one"

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a Formula One question and save the spoken answer",
	Long: `Ask a Formula One question and save the spoken answer.

Examples:
  f1voice ask "Who won round 5 of the 2008 season?"
  f1voice ask --audio ./question.mp3 --out ./answer.mp3`,
	RunE: func(cmd *cobra.Command, args []string) error {
		audioPath, _ := cmd.Flags().GetString("audio")
		out, _ := cmd.Flags().GetString("out")
		question := strings.TrimSpace(strings.Join(args, " "))

		if question == "" && audioPath == "" {
			return fmt.Errorf("a question or --audio is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		audio, err := ask(cmd.Context(), client, question, audioPath)
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, audio, 0o644); err != nil {
			return fmt.Errorf("writing answer: %w", err)
		}
		printSuccess("Saved answer to %s (%s)", out, humanize.Bytes(uint64(len(audio))))
		return nil
	},
}

func ask(ctx context.Context, client *apiClient, question, audioPath string) ([]byte, error) {
	if audioPath != "" {
		data, err := os.ReadFile(audioPath)
		if err != nil {
			return nil, fmt.Errorf("reading audio: %w", err)
		}
		resp, err := client.postAudio(ctx, questionPath, data)
		if err != nil {
			return nil, err
		}
		return readAudio(resp)
	}

	resp, err := client.post(ctx, questionPath, map[string]string{"question": question})
	if err != nil {
		return nil, err
	}
	return readAudio(resp)
}

func init() {
	askCmd.Flags().String("audio", "", "mp3 recording of the question")
	askCmd.Flags().StringP("out", "o", "answer.mp3", "where to write the spoken answer")
}

// --- bias ---

var biasCmd = &cobra.Command{
	Use:   "bias",
	Short: "Find the most biased of a set of articles",
	Long: `Find the most biased of a set of articles.

Each --file is a text or PDF article whose first line is its title.

Examples:
  f1voice bias --file a.txt --file b.txt
  f1voice bias --file report.pdf --file notes.txt`,
	RunE: func(cmd *cobra.Command, args []string) error {
		files, _ := cmd.Flags().GetStringArray("file")
		if len(files) == 0 {
			return fmt.Errorf("at least one --file is required")
		}

		articles := make([]bias.Article, 0, len(files))
		for _, f := range files {
			a, err := readArticle(f)
			if err != nil {
				return err
			}
			articles = append(articles, a)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/bias-detection/articles", articles)
		if err != nil {
			return err
		}

		var result bias.Response
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		b := result.BiasedArticle
		fmt.Printf("%s %s\n", colorize(colorBold, b.Title), colorize(biasColor(b.Type), "("+string(b.Type)+")"))
		fmt.Println(b.Reason)
		return nil
	},
}

func biasColor(t bias.Type) string {
	if t == bias.Negative {
		return colorRed
	}
	return colorGreen
}

func init() {
	biasCmd.Flags().StringArray("file", nil, "article file (.txt or .pdf), repeatable")
}

// --- history ---

type historyEntry struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Timestamp time.Time `json:"timestamp"`
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recently answered questions",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/questions?"+url.Values{"limit": {strconv.Itoa(limit)}}.Encode())
		if err != nil {
			return err
		}

		var entries []historyEntry
		if err := decodeJSON(resp, &entries); err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No questions answered yet.")
			return nil
		}

		fmt.Println(historyTable(entries, time.Now()))
		return nil
	},
}

func historyTable(entries []historyEntry, now time.Time) string {
	rows := make([][]string, len(entries))
	for i, e := range entries {
		rows[i] = []string{humanize.RelTime(e.Timestamp, now, "ago", "from now"), truncate(e.Question, 60), truncate(e.Answer, 60)}
	}
	return renderTable([]string{"When", "Question", "Answer"}, rows)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum number of questions")
}

// --- seed ---

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Import the historical results CSV files",
	Long: `Import the historical results CSV files into the database.

Rows that already exist are left untouched, so the import can be rerun.

Examples:
  f1voice seed
  f1voice seed --data-dir ./data/f1`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadOffline()
		if err != nil {
			return err
		}
		_, closer := setupLogging(cfg, os.Stderr)
		defer closer.Close()

		dataDir, _ := cmd.Flags().GetString("data-dir")
		if dataDir == "" {
			dataDir = cfg.Seed.DataDir
		}
		batch, _ := cmd.Flags().GetInt("batch-size")

		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		opts := ingest.Options{
			LockPath:  filepath.Join(cfg.Storage.DataDir, "seed.lock"),
			BatchSize: batch,
		}
		if stderrIsTerminal() {
			opts.Progress = os.Stderr
		}

		printStep("Importing from %s", dataDir)
		summary, err := ingest.NewLoader(store, dataDir, opts).LoadAll(cmd.Context())
		if err != nil {
			if errors.Is(err, ingest.ErrSeedInProgress) {
				printWarning("another import is already running")
			}
			return err
		}

		fmt.Println(seedTable(summary))
		printSuccess("Imported %s new rows", humanize.Comma(int64(summary.Written())))
		return nil
	},
}

func seedTable(s ingest.Summary) string {
	rows := make([][]string, len(s.Tables))
	for i, t := range s.Tables {
		rows[i] = []string{t.File, humanize.Comma(int64(t.Rows)), humanize.Comma(int64(t.Written)), humanize.Comma(int64(t.Skipped))}
	}
	return renderTable([]string{"File", "Rows", "Written", "Skipped"}, rows, 1, 2, 3)
}

func init() {
	seedCmd.Flags().String("data-dir", "", "directory holding the CSV files (default from config)")
	seedCmd.Flags().Int("batch-size", ingest.DefaultBatchSize, "rows per insert batch")
}

// --- mcp ---

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the MCP tools over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		// stdout carries the protocol; logs go to stderr only.
		logger, closer := setupLogging(cfg, os.Stderr)
		defer closer.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		ctx = logging.With(ctx, logger)

		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		svc, err := buildServices(cfg, store)
		if err != nil {
			return err
		}

		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Answerer: svc.answerer,
			Bias:     svc.detector,
			History:  store,
			Version:  version,
		})
		logger.Info("MCP server started (stdio transport)")
		return serveStdio(ctx, server.NewStdioServer(mcpSrv), os.Stdin, os.Stdout)
	},
}

func serveStdio(ctx context.Context, s *server.StdioServer, in io.Reader, out io.Writer) error {
	if err := s.Listen(ctx, in, out); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadOffline()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		rows := make([][]string, len(keys))
		for i, k := range keys {
			rows[i] = []string{k.Key, k.Value, k.EnvVar}
		}
		fmt.Println(renderTable([]string{"Key", "Value", "Env"}, rows))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys: " + strings.Join(config.ValidKeys(), ", "),
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
