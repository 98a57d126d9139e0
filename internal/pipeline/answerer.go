package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/sync/singleflight"

	"github.com/piconix/f1voice/internal/intent"
	"github.com/piconix/f1voice/internal/logging"
	"github.com/piconix/f1voice/internal/lookup"
	"github.com/piconix/f1voice/internal/metrics"
	"github.com/piconix/f1voice/internal/storage"
)

// DefaultVoiceName is spoken by Voice when no name is given.
const DefaultVoiceName = "antonio"

const voiceInstructions = "say the input name"

type Selector interface {
	Select(ctx context.Context, question string) (intent.Selection, error)
}

type Invoker interface {
	Invoke(ctx context.Context, name, rawArgs string) (lookup.Result, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, question string, result any) (string, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

type Speaker interface {
	Speak(ctx context.Context, text, instructions string) ([]byte, error)
}

// AudioCache is keyed by the exact question text.
type AudioCache interface {
	Get(key string) ([]byte, bool, error)
	Put(key string, audio []byte) error
}

// AnswerLog is the append-only question/answer record.
type AnswerLog interface {
	SaveQuestionAnswer(ctx context.Context, qa storage.QuestionAnswer) (storage.QuestionAnswer, error)
}

// Deps wires the pipeline stages. Metrics may be nil.
type Deps struct {
	Selector    Selector
	Invoker     Invoker
	Synthesizer Synthesizer
	Transcriber Transcriber
	Speaker     Speaker
	Cache       AudioCache
	Log         AnswerLog
	Metrics     *metrics.Metrics
}

// AnswerMetadata describes how an answer was produced.
type AnswerMetadata struct {
	Question   string
	Function   string
	Answer     string
	Cached     bool
	Shared     bool
	DurationMs int64
}

// Answerer turns a spoken or typed question into a spoken answer.
type Answerer struct {
	deps    Deps
	flights singleflight.Group
}

func NewAnswerer(deps Deps) *Answerer {
	return &Answerer{deps: deps}
}

type flightResult struct {
	audio []byte
	meta  AnswerMetadata
}

// AnswerAudio transcribes audio and answers the resulting question.
func (a *Answerer) AnswerAudio(ctx context.Context, audio []byte) ([]byte, AnswerMetadata, error) {
	start := time.Now()
	question, err := a.deps.Transcriber.Transcribe(ctx, audio)
	a.deps.Metrics.ObserveStage("transcribe", start, err)
	if err != nil {
		a.deps.Metrics.Question("error")
		return nil, AnswerMetadata{}, err
	}
	logging.From(ctx).Info("question transcribed", "question", question)
	return a.AnswerQuestion(ctx, question)
}

// AnswerQuestion returns the spoken answer to question.
//
// A cached answer is returned as is without any provider call. Otherwise
// the question runs through function selection, lookup, answer synthesis
// and speech. The record log and cache writes are best-effort: their
// failures are logged and the audio is still returned.
//
// Concurrent calls with the same question share one execution. The shared
// execution is not cancelled when one of its callers goes away; provider
// clients bound it with their own timeouts.
func (a *Answerer) AnswerQuestion(ctx context.Context, question string) ([]byte, AnswerMetadata, error) {
	start := time.Now()
	if strings.TrimSpace(question) == "" {
		a.deps.Metrics.Question("empty")
		return nil, AnswerMetadata{}, goerr.Wrap(intent.ErrEmptyQuestion, "answering question")
	}

	flightCtx := context.WithoutCancel(ctx)
	ch := a.flights.DoChan(question, func() (any, error) {
		audio, meta, err := a.answer(flightCtx, question)
		return flightResult{audio: audio, meta: meta}, err
	})

	select {
	case <-ctx.Done():
		return nil, AnswerMetadata{Question: question}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			a.deps.Metrics.Question("error")
			return nil, AnswerMetadata{Question: question}, res.Err
		}
		out := res.Val.(flightResult)
		meta := out.meta
		meta.Shared = res.Shared
		meta.DurationMs = time.Since(start).Milliseconds()
		if meta.Cached {
			a.deps.Metrics.Question("cached")
		} else {
			a.deps.Metrics.Question("answered")
		}
		return out.audio, meta, nil
	}
}

func (a *Answerer) answer(ctx context.Context, question string) ([]byte, AnswerMetadata, error) {
	logger := logging.From(ctx).With("question", question)
	meta := AnswerMetadata{Question: question}

	if audio, ok := a.cached(ctx, question); ok {
		logger.Info("answer served from cache", "bytes", len(audio))
		meta.Cached = true
		return audio, meta, nil
	}

	text, fn, err := a.answerText(ctx, question)
	if err != nil {
		return nil, meta, err
	}
	meta.Function = fn
	meta.Answer = text

	start := time.Now()
	audio, err := a.deps.Speaker.Speak(ctx, text, "")
	a.deps.Metrics.ObserveStage("speak", start, err)
	if err != nil {
		return nil, meta, err
	}

	a.record(ctx, question, text)

	start = time.Now()
	err = a.deps.Cache.Put(question, audio)
	a.deps.Metrics.ObserveStage("cache_write", start, err)
	if err != nil {
		logger.Warn("failed to cache answer audio", "error", err)
	}

	logger.Info("question answered", "function", fn, "answer", text, "bytes", len(audio))
	return audio, meta, nil
}

// AnswerText answers question in text only. It neither reads nor writes the
// audio cache but does append to the record log.
func (a *Answerer) AnswerText(ctx context.Context, question string) (string, AnswerMetadata, error) {
	start := time.Now()
	meta := AnswerMetadata{Question: question}
	if strings.TrimSpace(question) == "" {
		a.deps.Metrics.Question("empty")
		return "", meta, goerr.Wrap(intent.ErrEmptyQuestion, "answering question")
	}

	text, fn, err := a.answerText(ctx, question)
	if err != nil {
		a.deps.Metrics.Question("error")
		return "", meta, err
	}
	a.record(ctx, question, text)
	a.deps.Metrics.Question("answered")

	meta.Function = fn
	meta.Answer = text
	meta.DurationMs = time.Since(start).Milliseconds()
	return text, meta, nil
}

func (a *Answerer) answerText(ctx context.Context, question string) (text, function string, err error) {
	start := time.Now()
	sel, err := a.deps.Selector.Select(ctx, question)
	a.deps.Metrics.ObserveStage("select", start, err)
	if err != nil {
		return "", "", err
	}

	start = time.Now()
	result, err := a.deps.Invoker.Invoke(ctx, sel.Name, sel.Arguments)
	a.deps.Metrics.ObserveStage("invoke", start, err)
	if err != nil {
		return "", sel.Name, err
	}

	start = time.Now()
	text, err = a.deps.Synthesizer.Synthesize(ctx, question, result)
	a.deps.Metrics.ObserveStage("synthesize", start, err)
	if err != nil {
		return "", sel.Name, err
	}
	return text, sel.Name, nil
}

func (a *Answerer) cached(ctx context.Context, key string) ([]byte, bool) {
	audio, ok, err := a.deps.Cache.Get(key)
	if err != nil {
		logging.From(ctx).Warn("voice cache read failed, treating as miss", "key", key, "error", err)
		ok = false
	}
	a.deps.Metrics.CacheLookup(ok)
	return audio, ok
}

func (a *Answerer) record(ctx context.Context, question, answer string) {
	if a.deps.Log == nil {
		return
	}
	start := time.Now()
	_, err := a.deps.Log.SaveQuestionAnswer(ctx, storage.QuestionAnswer{Question: question, Answer: answer})
	a.deps.Metrics.ObserveStage("record", start, err)
	if err != nil {
		logging.From(ctx).Error("failed to save question and answer", "question", question, "error", err)
	}
}

// Voice returns the spoken form of name, generating and caching it on the
// first request. An empty name speaks DefaultVoiceName.
func (a *Answerer) Voice(ctx context.Context, name string) ([]byte, error) {
	if strings.TrimSpace(name) == "" {
		name = DefaultVoiceName
	}
	logger := logging.From(ctx).With("name", name)

	if audio, ok := a.cached(ctx, name); ok {
		logger.Info("using cached voice file")
		return audio, nil
	}

	logger.Info("generating voice file")
	start := time.Now()
	audio, err := a.deps.Speaker.Speak(ctx, name, voiceInstructions)
	a.deps.Metrics.ObserveStage("speak", start, err)
	if err != nil {
		return nil, err
	}
	if err := a.deps.Cache.Put(name, audio); err != nil {
		logger.Warn("failed to cache voice file", "error", err)
	}
	return audio, nil
}
