package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piconix/f1voice/internal/engine"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{APIKey: "test-key", BaseURL: srv.URL})
}

func chatResponse(message string) string {
	return fmt.Sprintf(`{"id":"chatcmpl-1","object":"chat.completion","choices":[{"index":0,"message":%s,"finish_reason":"stop"}]}`, message)
}

func TestCallFunction(t *testing.T) {
	var req map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, chatResponse(`{"role":"assistant","content":"","function_call":{"name":"get_driver_position","arguments":"{\"driverName\":\"Michael Schumacher\",\"season\":2000,\"round\":1}"}}`))
	})

	fns := []engine.Function{{Name: "get_driver_position", Description: "d", Parameters: json.RawMessage(`{"type":"object"}`)}}
	call, err := c.CallFunction(context.Background(), []engine.Message{engine.User("q")}, fns)
	require.NoError(t, err)
	require.NotNil(t, call)

	assert.Equal(t, "get_driver_position", call.Name)
	assert.JSONEq(t, `{"driverName":"Michael Schumacher","season":2000,"round":1}`, call.Arguments)
	assert.Equal(t, "gpt-4", req["model"])
	assert.Equal(t, "auto", req["function_call"])
	assert.Len(t, req["functions"], 1)
}

func TestCallFunction_NoCall(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, chatResponse(`{"role":"assistant","content":"I don't know."}`))
	})

	call, err := c.CallFunction(context.Background(), []engine.Message{engine.User("q")}, nil)
	require.NoError(t, err)
	assert.Nil(t, call)
}

func TestCallFunction_EmptyArguments(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, chatResponse(`{"role":"assistant","content":"","function_call":{"name":"get_driver_by_position","arguments":""}}`))
	})

	call, err := c.CallFunction(context.Background(), nil, nil)
	require.NoError(t, err)
	require.NotNil(t, call)
	assert.Equal(t, "{}", call.Arguments)
}

func TestCallFunction_ProviderError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	})

	_, err := c.CallFunction(context.Background(), nil, nil)
	require.ErrorIs(t, err, engine.ErrProvider)
}

func TestComplete(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, chatResponse(`{"role":"assistant","content":"Red Bull"}`))
	})

	text, err := c.Complete(context.Background(), []engine.Message{engine.User("q")}, engine.Options{Temperature: 0.2})
	require.NoError(t, err)
	assert.Equal(t, "Red Bull", text)
}

func TestComplete_NoChoices(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"x","choices":[]}`)
	})

	_, err := c.Complete(context.Background(), nil, engine.Options{})
	require.ErrorIs(t, err, engine.ErrMalformedProviderResponse)
}

func TestTranscribe(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/transcriptions", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "audio.mp3", hdr.Filename)
		body, _ := io.ReadAll(f)
		assert.Equal(t, "ID3-audio", string(body))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"text":"Who won round 1 in 2000?"}`)
	})

	text, err := c.Transcribe(context.Background(), []byte("ID3-audio"))
	require.NoError(t, err)
	assert.Equal(t, "Who won round 1 in 2000?", text)
}

func TestSpeak(t *testing.T) {
	var req map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/speech", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte{0xFF, 0xFB, 0x90})
	})

	audio, err := c.Speak(context.Background(), "antonio", "say the input name")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xFB, 0x90}, audio)
	assert.Equal(t, "gpt-4o-mini-tts", req["model"])
	assert.Equal(t, "alloy", req["voice"])
	assert.Equal(t, "antonio", req["input"])
	assert.Equal(t, "say the input name", req["instructions"])
}
