package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/m-mizutani/goerr/v2"

	"github.com/piconix/f1voice/internal/bias"
	"github.com/piconix/f1voice/internal/engine"
	"github.com/piconix/f1voice/internal/intent"
	"github.com/piconix/f1voice/internal/lookup"
	"github.com/piconix/f1voice/internal/metrics"
	"github.com/piconix/f1voice/internal/pipeline"
	"github.com/piconix/f1voice/internal/storage"
)

// --- mocks ---

type mockAnswerer struct {
	audio     []byte
	text      string
	err       error
	question  string
	gotAudio  []byte
	voiceName string
}

func (m *mockAnswerer) AnswerQuestion(_ context.Context, q string) ([]byte, pipeline.AnswerMetadata, error) {
	m.question = q
	return m.audio, pipeline.AnswerMetadata{Question: q}, m.err
}

func (m *mockAnswerer) AnswerAudio(_ context.Context, audio []byte) ([]byte, pipeline.AnswerMetadata, error) {
	m.gotAudio = audio
	return m.audio, pipeline.AnswerMetadata{}, m.err
}

func (m *mockAnswerer) AnswerText(_ context.Context, q string) (string, pipeline.AnswerMetadata, error) {
	m.question = q
	return m.text, pipeline.AnswerMetadata{Question: q}, m.err
}

func (m *mockAnswerer) Voice(_ context.Context, name string) ([]byte, error) {
	m.voiceName = name
	return m.audio, m.err
}

type mockBias struct {
	resp     bias.Response
	err      error
	articles []bias.Article
}

func (m *mockBias) Detect(_ context.Context, articles []bias.Article) (bias.Response, error) {
	m.articles = articles
	return m.resp, m.err
}

// --- helpers ---

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestHandler(t *testing.T, a *mockAnswerer, b *mockBias, token string) (http.Handler, *storage.Store) {
	t.Helper()
	store := newTestStore(t)
	return NewHandler(Deps{Answerer: a, Bias: b, History: store, Token: token, Metrics: metrics.New()}), store
}

func do(h http.Handler, method, target, contentType string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	return body
}

// --- tests ---

func TestHelloAndHealth(t *testing.T) {
	h, _ := newTestHandler(t, &mockAnswerer{}, &mockBias{}, "")

	rr := do(h, http.MethodGet, "/", "", nil)
	if rr.Code != http.StatusOK || rr.Body.String() != "Hello World!" {
		t.Errorf("GET / = %d %q", rr.Code, rr.Body.String())
	}

	rr = do(h, http.MethodGet, "/health", "", nil)
	var body map[string]string
	json.NewDecoder(rr.Body).Decode(&body)
	if rr.Code != http.StatusOK || body["status"] != "ok" {
		t.Errorf("GET /health = %d %v", rr.Code, body)
	}
	if rr.Header().Get("X-Request-Id") == "" {
		t.Error("missing X-Request-Id header")
	}
}

func TestVoiceName(t *testing.T) {
	a := &mockAnswerer{audio: []byte("ID3name")}
	h, _ := newTestHandler(t, a, &mockBias{}, "")

	rr := do(h, http.MethodGet, "/voice/name", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if a.voiceName != pipeline.DefaultVoiceName {
		t.Errorf("voice name = %q, want default", a.voiceName)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "audio/mpeg" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); cd != `attachment; filename="antonio.mp3"` {
		t.Errorf("Content-Disposition = %q", cd)
	}

	do(h, http.MethodGet, "/voice/name?name=lewis", "", nil)
	if a.voiceName != "lewis" {
		t.Errorf("voice name = %q, want lewis", a.voiceName)
	}
}

func TestQuestion_Audio(t *testing.T) {
	a := &mockAnswerer{audio: []byte("answer-audio")}
	h, _ := newTestHandler(t, a, &mockBias{}, "")

	rr := do(h, http.MethodPost, "/voice/question/formula-one", "audio/mp3", []byte("question-audio"))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	if rr.Body.String() != "answer-audio" {
		t.Errorf("body = %q", rr.Body.String())
	}
	if string(a.gotAudio) != "question-audio" {
		t.Errorf("pipeline received %q", a.gotAudio)
	}
	if cd := rr.Header().Get("Content-Disposition"); cd != `attachment; filename="answer.mp3"` {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "audio/mp3" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestQuestion_TypedJSON(t *testing.T) {
	a := &mockAnswerer{audio: []byte("answer-audio")}
	h, _ := newTestHandler(t, a, &mockBias{}, "")

	rr := do(h, http.MethodPost, "/voice/question/formula-one", "application/json; charset=utf-8",
		[]byte(`{"question":"Who won round 1 of 2000?"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	if a.question != "Who won round 1 of 2000?" {
		t.Errorf("question = %q", a.question)
	}
}

func TestQuestion_BadRequests(t *testing.T) {
	h, _ := newTestHandler(t, &mockAnswerer{}, &mockBias{}, "")

	cases := []struct {
		name        string
		contentType string
		body        []byte
		wantMsg     string
	}{
		{"wrong content type", "text/plain", []byte("hi"), "Content-Type must be audio/mp3"},
		{"empty audio", "audio/mp3", nil, "Invalid request body"},
		{"too large", "audio/mpeg", bytes.Repeat([]byte{0}, maxAudioSize+1), "File size exceeds 10 MiB limit"},
		{"bad json", "application/json", []byte(`{"question":`), "invalid request body"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := do(h, http.MethodPost, "/voice/question/formula-one", tc.contentType, tc.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rr.Code)
			}
			body := decodeError(t, rr)
			if body.Name != "BadRequest" || body.Code != "400" {
				t.Errorf("error body = %+v", body)
			}
			if body.Path != "POST /voice/question/formula-one" {
				t.Errorf("path = %q", body.Path)
			}
			if !strings.HasPrefix(body.Message, tc.wantMsg) {
				t.Errorf("message = %q, want prefix %q", body.Message, tc.wantMsg)
			}
		})
	}
}

func TestQuestion_PipelineErrors(t *testing.T) {
	cases := []struct {
		err  error
		name string
	}{
		{goerr.Wrap(intent.ErrEmptyQuestion, "answering question"), "EmptyQuestion"},
		{goerr.Wrap(engine.ErrProvider, "chat failed", goerr.V("status", 503)), "ProviderError"},
		{goerr.Wrap(intent.ErrNoFunctionCall, "selecting"), "NoFunctionCall"},
		{goerr.Wrap(lookup.ErrDriverNotFound, "lookup"), "DriverNotFound"},
		{goerr.Wrap(lookup.ErrNoConstructorAtPosition, "lookup"), "NoConstructorAtPosition"},
		{goerr.Wrap(engine.ErrMalformedProviderResponse, "decode"), "MalformedProviderResponse"},
		{context.DeadlineExceeded, "UnknownError"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, _ := newTestHandler(t, &mockAnswerer{err: tc.err}, &mockBias{}, "")
			rr := do(h, http.MethodPost, "/voice/question/formula-one?src=test", "application/json", []byte(`{"question":"q"}`))
			if rr.Code != http.StatusInternalServerError {
				t.Fatalf("status = %d, want 500", rr.Code)
			}
			body := decodeError(t, rr)
			if body.Name != tc.name || body.Code != "500" {
				t.Errorf("error body = %+v, want name %s", body, tc.name)
			}
			if body.Path != "POST /voice/question/formula-one?src=test" {
				t.Errorf("path = %q", body.Path)
			}
		})
	}
}

func TestProviderDetailNotLeaked(t *testing.T) {
	err := goerr.Wrap(engine.ErrProvider, "chat failed", goerr.V("body", "secret upstream body"))
	h, _ := newTestHandler(t, &mockAnswerer{err: err}, &mockBias{}, "")
	rr := do(h, http.MethodPost, "/voice/question/formula-one", "application/json", []byte(`{"question":"q"}`))
	if strings.Contains(rr.Body.String(), "secret upstream body") {
		t.Errorf("response leaks provider detail: %s", rr.Body.String())
	}
}

func TestBiasDetection(t *testing.T) {
	b := &mockBias{resp: bias.Response{BiasedArticle: bias.BiasedArticle{Title: "A", Type: bias.Positive, Reason: "praise"}}}
	h, _ := newTestHandler(t, &mockAnswerer{}, b, "")

	rr := do(h, http.MethodPost, "/bias-detection/articles", "application/json",
		[]byte(`[{"title":"A","content":"great"},{"title":"B","content":"fine"}]`))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	var got bias.Response
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.BiasedArticle.Title != "A" || got.BiasedArticle.Type != bias.Positive {
		t.Errorf("response = %+v", got)
	}
	if len(b.articles) != 2 {
		t.Errorf("detector received %d articles", len(b.articles))
	}
}

func TestBiasDetection_Errors(t *testing.T) {
	h, _ := newTestHandler(t, &mockAnswerer{}, &mockBias{}, "")
	rr := do(h, http.MethodPost, "/bias-detection/articles", "application/json", []byte(`{"title":"not an array"}`))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}

	b := &mockBias{err: goerr.Wrap(bias.ErrNoValidArticles, "detecting bias")}
	h, _ = newTestHandler(t, &mockAnswerer{}, b, "")
	rr = do(h, http.MethodPost, "/bias-detection/articles", "application/json", []byte(`[]`))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	if body := decodeError(t, rr); body.Name != "NoValidArticles" {
		t.Errorf("name = %q", body.Name)
	}
}

func TestHistory(t *testing.T) {
	h, store := newTestHandler(t, &mockAnswerer{}, &mockBias{}, "secret")
	for _, q := range []string{"q1", "q2", "q3"} {
		if _, err := store.SaveQuestionAnswer(context.Background(), storage.QuestionAnswer{Question: q, Answer: "a"}); err != nil {
			t.Fatal(err)
		}
	}

	rr := do(h, http.MethodGet, "/questions", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status without token = %d, want 401", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/questions?limit=2", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var items []historyItem
	if err := json.NewDecoder(rec.Body).Decode(&items); err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 || items[0].Question != "q3" {
		t.Errorf("items = %+v", items)
	}

	req = httptest.NewRequest(http.MethodGet, "/questions?limit=zero", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status for bad limit = %d, want 400", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newTestHandler(t, &mockAnswerer{}, &mockBias{}, "")
	do(h, http.MethodGet, "/health", "", nil)

	rr := do(h, http.MethodGet, "/metrics", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `f1voice_http_requests_total{method="GET",route="/health",status="200"} 1`) {
		t.Errorf("request counter missing from exposition:\n%s", rr.Body.String())
	}
}
