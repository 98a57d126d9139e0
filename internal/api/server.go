package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/piconix/f1voice/internal/bias"
	"github.com/piconix/f1voice/internal/logging"
	"github.com/piconix/f1voice/internal/metrics"
	"github.com/piconix/f1voice/internal/pipeline"
	"github.com/piconix/f1voice/internal/storage"
)

const (
	maxAudioSize    = 10 << 20 // 10MB
	maxArticlesSize = 10 << 20
	maxQuestionSize = 64 << 10

	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// Answerer produces spoken and text answers. *pipeline.Answerer implements it.
type Answerer interface {
	AnswerQuestion(ctx context.Context, question string) ([]byte, pipeline.AnswerMetadata, error)
	AnswerAudio(ctx context.Context, audio []byte) ([]byte, pipeline.AnswerMetadata, error)
	AnswerText(ctx context.Context, question string) (string, pipeline.AnswerMetadata, error)
	Voice(ctx context.Context, name string) ([]byte, error)
}

type BiasDetector interface {
	Detect(ctx context.Context, articles []bias.Article) (bias.Response, error)
}

// History lists the most recent question/answer records.
type History interface {
	RecentQuestionAnswers(ctx context.Context, limit int) ([]storage.QuestionAnswer, error)
}

type Deps struct {
	Answerer Answerer
	Bias     BiasDetector
	History  History
	// Metrics is optional; when set, /metrics is served.
	Metrics *metrics.Metrics
	// Token protects /questions when non-empty.
	Token  string
	Logger *slog.Logger
}

// NewHandler returns the service's HTTP API.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(deps.Logger, deps.Metrics))

	r.Get("/", handleHello)
	r.Get("/health", handleHealth)
	r.Get("/voice/name", handleVoiceName(deps))
	r.Post("/voice/question/formula-one", handleQuestion(deps))
	r.Post("/bias-detection/articles", handleBias(deps))

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}
		r.Get("/questions", handleHistory(deps))
	})

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}
	return r
}

// requestLogger attaches a request-scoped logger carrying a request id and
// logs one line per request.
func requestLogger(base *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			id := r.Header.Get("X-Request-Id")
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set("X-Request-Id", id)

			logger := base.With("request_id", id)
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(logging.With(r.Context(), logger)))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			elapsed := time.Since(start)
			if m != nil {
				m.RequestCount.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
				m.RequestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())
			}
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", elapsed.Milliseconds(),
			)
		})
	}
}

func handleHello(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("Hello World!"))
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleVoiceName(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimSpace(r.URL.Query().Get("name"))
		if name == "" {
			name = pipeline.DefaultVoiceName
		}
		audio, err := deps.Answerer.Voice(r.Context(), name)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeAudio(w, "audio/mpeg", name+".mp3", audio)
	}
}

type questionRequest struct {
	Question string `json:"question"`
}

func handleQuestion(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

		var (
			audio []byte
			meta  pipeline.AnswerMetadata
			err   error
		)
		switch mediaType {
		case "audio/mp3", "audio/mpeg":
			body, readErr := readBody(w, r, maxAudioSize)
			if readErr != nil {
				writeError(w, r, readErr)
				return
			}
			if len(body) == 0 {
				writeError(w, r, badRequest("Invalid request body"))
				return
			}
			audio, meta, err = deps.Answerer.AnswerAudio(r.Context(), body)

		case "application/json":
			body, readErr := readBody(w, r, maxQuestionSize)
			if readErr != nil {
				writeError(w, r, readErr)
				return
			}
			var req questionRequest
			if err := json.Unmarshal(body, &req); err != nil {
				writeError(w, r, badRequest("invalid request body: %v", err))
				return
			}
			audio, meta, err = deps.Answerer.AnswerQuestion(r.Context(), req.Question)

		default:
			writeError(w, r, badRequest("Content-Type must be audio/mp3"))
			return
		}

		if err != nil {
			writeError(w, r, err)
			return
		}
		logging.From(r.Context()).Debug("question answered",
			"question", meta.Question,
			"function", meta.Function,
			"cached", meta.Cached,
			"shared", meta.Shared,
			"duration_ms", meta.DurationMs,
		)
		writeAudio(w, "audio/mp3", "answer.mp3", audio)
	}
}

func handleBias(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := readBody(w, r, maxArticlesSize)
		if err != nil {
			writeError(w, r, err)
			return
		}
		var articles []bias.Article
		if err := json.Unmarshal(body, &articles); err != nil {
			writeError(w, r, badRequest("body must be a JSON array of {title, content}: %v", err))
			return
		}

		resp, err := deps.Bias.Detect(r.Context(), articles)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type historyItem struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Timestamp time.Time `json:"timestamp"`
}

func toHistoryItems(qas []storage.QuestionAnswer) []historyItem {
	items := make([]historyItem, len(qas))
	for i, qa := range qas {
		items[i] = historyItem{ID: qa.ID, Question: qa.Question, Answer: qa.Answer, Timestamp: qa.CreatedAt}
	}
	return items
}

func handleHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultHistoryLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeError(w, r, badRequest("limit must be a positive integer"))
				return
			}
			limit = min(n, maxHistoryLimit)
		}

		qas, err := deps.History.RecentQuestionAnswers(r.Context(), limit)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toHistoryItems(qas))
	}
}

func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	defer r.Body.Close()

	body, err := io.ReadAll(r.Body)
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return nil, badRequest("File size exceeds %s limit", humanize.IBytes(uint64(limit)))
	case err != nil:
		return nil, badRequest("Invalid request body")
	}
	return body, nil
}

func writeAudio(w http.ResponseWriter, contentType, filename string, audio []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", contentDisposition(filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(audio)))
	w.WriteHeader(http.StatusOK)
	w.Write(audio)
}

// contentDisposition quotes plain ASCII names directly and falls back to
// RFC 2231 encoding for anything else.
func contentDisposition(filename string) string {
	for _, c := range filename {
		if c < 0x20 || c > 0x7e || c == '"' || c == '\\' {
			return mime.FormatMediaType("attachment", map[string]string{"filename": filename})
		}
	}
	return `attachment; filename="` + filename + `"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
