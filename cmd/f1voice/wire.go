package main

import (
	"fmt"

	"github.com/piconix/f1voice/internal/answer"
	"github.com/piconix/f1voice/internal/bias"
	"github.com/piconix/f1voice/internal/config"
	"github.com/piconix/f1voice/internal/engine"
	"github.com/piconix/f1voice/internal/intent"
	"github.com/piconix/f1voice/internal/llama"
	"github.com/piconix/f1voice/internal/lookup"
	"github.com/piconix/f1voice/internal/metrics"
	"github.com/piconix/f1voice/internal/openai"
	"github.com/piconix/f1voice/internal/pipeline"
	"github.com/piconix/f1voice/internal/storage"
	"github.com/piconix/f1voice/internal/voicecache"
)

// services is everything the HTTP and MCP front ends need.
type services struct {
	answerer *pipeline.Answerer
	detector *bias.Detector
	metrics  *metrics.Metrics
}

func buildServices(cfg config.Config, store *storage.Store) (*services, error) {
	timeout := cfg.ProviderTimeout()

	oa := openai.NewClient(openai.Config{
		APIKey:    cfg.OpenAI.APIKey,
		BaseURL:   cfg.OpenAI.BaseURL,
		ChatModel: cfg.OpenAI.ChatModel,
		STTModel:  cfg.OpenAI.STTModel,
		TTSModel:  cfg.OpenAI.TTSModel,
		Voice:     cfg.OpenAI.Voice,
		Timeout:   timeout,
	})
	ll := llama.NewClient(cfg.Llama.APIKey,
		llama.WithBaseURL(cfg.Llama.BaseURL),
		llama.WithModel(cfg.Llama.Model),
		llama.WithTimeout(timeout),
	)

	synth, err := engine.Select(cfg.Synthesis.Provider, map[string]engine.Completer{
		"llama":  ll,
		"openai": oa,
	})
	if err != nil {
		return nil, fmt.Errorf("selecting synthesis provider: %w", err)
	}

	cache, err := voicecache.Open(cfg.VoiceCacheDir())
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	answerer := pipeline.NewAnswerer(pipeline.Deps{
		Selector:    intent.NewSelector(oa),
		Invoker:     lookup.NewInvoker(store),
		Synthesizer: answer.NewSynthesizer(synth),
		Transcriber: oa,
		Speaker:     oa,
		Cache:       cache,
		Log:         store,
		Metrics:     m,
	})

	return &services{
		answerer: answerer,
		detector: bias.NewDetector(ll, m),
		metrics:  m,
	}, nil
}
