package openai

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	gopenai "github.com/sashabaranov/go-openai"

	"github.com/piconix/f1voice/internal/engine"
)

const (
	DefaultChatModel = gopenai.GPT4
	DefaultSTTModel  = gopenai.Whisper1
	DefaultTTSModel  = "gpt-4o-mini-tts"
	DefaultVoice     = "alloy"

	defaultTimeout = 60 * time.Second
)

// Config holds the settings for a Client. Empty fields take the defaults.
type Config struct {
	APIKey    string
	BaseURL   string
	ChatModel string
	STTModel  string
	TTSModel  string
	Voice     string
	Timeout   time.Duration
}

// Client is the OpenAI provider: function-calling dispatch, plain
// completions, speech-to-text and text-to-speech.
type Client struct {
	api       *gopenai.Client
	chatModel string
	sttModel  string
	ttsModel  string
	voice     string
}

// NewClient creates a client from cfg.
func NewClient(cfg Config) *Client {
	sdk := gopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		sdk.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	sdk.HTTPClient = &http.Client{Timeout: timeout}

	c := &Client{
		api:       gopenai.NewClientWithConfig(sdk),
		chatModel: cfg.ChatModel,
		sttModel:  cfg.STTModel,
		ttsModel:  cfg.TTSModel,
		voice:     cfg.Voice,
	}
	if c.chatModel == "" {
		c.chatModel = DefaultChatModel
	}
	if c.sttModel == "" {
		c.sttModel = DefaultSTTModel
	}
	if c.ttsModel == "" {
		c.ttsModel = DefaultTTSModel
	}
	if c.voice == "" {
		c.voice = DefaultVoice
	}
	return c
}

func toSDKMessages(messages []engine.Message) []gopenai.ChatCompletionMessage {
	out := make([]gopenai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = gopenai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

// CallFunction asks the chat model to choose one of functions
// (function_call "auto"). It returns nil when the model replied without a
// function call. An empty argument string is returned as "{}".
func (c *Client) CallFunction(ctx context.Context, messages []engine.Message, functions []engine.Function) (*engine.FunctionCall, error) {
	defs := make([]gopenai.FunctionDefinition, len(functions))
	for i, f := range functions {
		defs[i] = gopenai.FunctionDefinition{
			Name:        f.Name,
			Description: f.Description,
			Parameters:  f.Parameters,
		}
	}

	resp, err := c.api.CreateChatCompletion(ctx, gopenai.ChatCompletionRequest{
		Model:        c.chatModel,
		Messages:     toSDKMessages(messages),
		Functions:    defs,
		FunctionCall: "auto",
	})
	if err != nil {
		return nil, providerError(err, "function-calling request failed")
	}
	if len(resp.Choices) == 0 {
		return nil, goerr.Wrap(engine.ErrMalformedProviderResponse, "openai response has no choices")
	}

	fc := resp.Choices[0].Message.FunctionCall
	if fc == nil || fc.Name == "" {
		return nil, nil
	}
	args := fc.Arguments
	if strings.TrimSpace(args) == "" {
		args = "{}"
	}
	return &engine.FunctionCall{Name: fc.Name, Arguments: args}, nil
}

// Complete implements engine.Completer.
func (c *Client) Complete(ctx context.Context, messages []engine.Message, opts engine.Options) (string, error) {
	req := gopenai.ChatCompletionRequest{
		Model:       c.chatModel,
		Messages:    toSDKMessages(messages),
		Temperature: float32(opts.Temperature),
		TopP:        float32(opts.TopP),
		MaxTokens:   opts.MaxTokens,
	}
	if opts.ResponseFormat != nil {
		name := opts.ResponseFormat.Name
		if name == "" {
			name = "response"
		}
		req.ResponseFormat = &gopenai.ChatCompletionResponseFormat{
			Type: gopenai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &gopenai.ChatCompletionResponseFormatJSONSchema{
				Name:   name,
				Schema: opts.ResponseFormat.Schema,
			},
		}
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", providerError(err, "chat completion failed")
	}
	if len(resp.Choices) == 0 {
		return "", goerr.Wrap(engine.ErrMalformedProviderResponse, "openai response has no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Transcribe converts mp3 audio to text.
func (c *Client) Transcribe(ctx context.Context, audio []byte) (string, error) {
	resp, err := c.api.CreateTranscription(ctx, gopenai.AudioRequest{
		Model:    c.sttModel,
		FilePath: "audio.mp3",
		Reader:   bytes.NewReader(audio),
	})
	if err != nil {
		return "", providerError(err, "transcription failed")
	}
	return resp.Text, nil
}

// Speak synthesizes text to mp3 audio. instructions may be empty.
func (c *Client) Speak(ctx context.Context, text, instructions string) ([]byte, error) {
	resp, err := c.api.CreateSpeech(ctx, gopenai.CreateSpeechRequest{
		Model:          gopenai.SpeechModel(c.ttsModel),
		Input:          text,
		Voice:          gopenai.SpeechVoice(c.voice),
		Instructions:   instructions,
		ResponseFormat: gopenai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, providerError(err, "speech synthesis failed")
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, providerError(err, "reading speech audio")
	}
	return audio, nil
}

func providerError(err error, msg string) error {
	opts := []goerr.Option{goerr.V("provider", "openai"), goerr.V("cause", err.Error())}

	var apiErr *gopenai.APIError
	var reqErr *gopenai.RequestError
	switch {
	case errors.As(err, &apiErr):
		opts = append(opts, goerr.V("status", apiErr.HTTPStatusCode))
	case errors.As(err, &reqErr):
		opts = append(opts, goerr.V("status", reqErr.HTTPStatusCode))
	}
	return goerr.Wrap(engine.ErrProvider, msg, opts...)
}
