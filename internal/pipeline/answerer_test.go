package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/piconix/f1voice/internal/intent"
	"github.com/piconix/f1voice/internal/lookup"
	"github.com/piconix/f1voice/internal/storage"
)

// --- fakes ---

type fakeSelector struct {
	calls   atomic.Int32
	release chan struct{}
	sel     intent.Selection
	err     error
}

func (f *fakeSelector) Select(ctx context.Context, question string) (intent.Selection, error) {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	return f.sel, f.err
}

type fakeInvoker struct {
	calls  atomic.Int32
	result lookup.Result
	err    error
}

func (f *fakeInvoker) Invoke(ctx context.Context, name, rawArgs string) (lookup.Result, error) {
	f.calls.Add(1)
	return f.result, f.err
}

type fakeSynthesizer struct {
	calls atomic.Int32
	text  string
	err   error
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, question string, result any) (string, error) {
	f.calls.Add(1)
	return f.text, f.err
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	return f.text, f.err
}

type fakeSpeaker struct {
	mu           sync.Mutex
	calls        int
	instructions []string
	err          error
}

func (f *fakeSpeaker) Speak(ctx context.Context, text, instructions string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.instructions = append(f.instructions, instructions)
	if f.err != nil {
		return nil, f.err
	}
	return []byte("mp3:" + text), nil
}

func (f *fakeSpeaker) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type memCache struct {
	mu     sync.Mutex
	data   map[string][]byte
	putErr error
	getErr error
}

func newMemCache() *memCache { return &memCache{data: make(map[string][]byte)} }

func (c *memCache) Get(key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Put(key string, audio []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.putErr != nil {
		return c.putErr
	}
	c.data[key] = audio
	return nil
}

type memLog struct {
	mu      sync.Mutex
	records []storage.QuestionAnswer
	err     error
}

func (l *memLog) SaveQuestionAnswer(ctx context.Context, qa storage.QuestionAnswer) (storage.QuestionAnswer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return storage.QuestionAnswer{}, l.err
	}
	l.records = append(l.records, qa)
	return qa, nil
}

type fixture struct {
	selector    *fakeSelector
	invoker     *fakeInvoker
	synthesizer *fakeSynthesizer
	transcriber *fakeTranscriber
	speaker     *fakeSpeaker
	cache       *memCache
	log         *memLog
}

func newFixture() *fixture {
	return &fixture{
		selector: &fakeSelector{sel: intent.Selection{
			Name:      intent.FinishPositionOfDriver,
			Arguments: `{"driverName":"Michael Schumacher","season":2000,"round":1}`,
		}},
		invoker:     &fakeInvoker{result: lookup.Result{Kind: lookup.KindDriverPosition, Position: 1, ConstructorName: "Ferrari", ConstructorID: "ferrari"}},
		synthesizer: &fakeSynthesizer{text: "1st"},
		transcriber: &fakeTranscriber{text: "What position did Michael Schumacher finish in round 1 of 2000?"},
		speaker:     &fakeSpeaker{},
		cache:       newMemCache(),
		log:         &memLog{},
	}
}

func (f *fixture) answerer() *Answerer {
	return NewAnswerer(Deps{
		Selector:    f.selector,
		Invoker:     f.invoker,
		Synthesizer: f.synthesizer,
		Transcriber: f.transcriber,
		Speaker:     f.speaker,
		Cache:       f.cache,
		Log:         f.log,
	})
}

const question = "What position did Michael Schumacher finish in round 1 of 2000?"

// --- tests ---

func TestAnswerQuestion_CacheMissRunsAllStages(t *testing.T) {
	f := newFixture()
	a := f.answerer()

	audio, meta, err := a.AnswerQuestion(context.Background(), question)
	if err != nil {
		t.Fatalf("AnswerQuestion: %v", err)
	}
	if string(audio) != "mp3:1st" {
		t.Errorf("audio = %q, want mp3:1st", audio)
	}
	if meta.Cached || meta.Function != intent.FinishPositionOfDriver || meta.Answer != "1st" {
		t.Errorf("unexpected metadata: %+v", meta)
	}
	if f.selector.calls.Load() != 1 || f.invoker.calls.Load() != 1 || f.synthesizer.calls.Load() != 1 || f.speaker.count() != 1 {
		t.Errorf("each stage should run once: select=%d invoke=%d synth=%d speak=%d",
			f.selector.calls.Load(), f.invoker.calls.Load(), f.synthesizer.calls.Load(), f.speaker.count())
	}
	if len(f.log.records) != 1 || f.log.records[0].Question != question || f.log.records[0].Answer != "1st" {
		t.Errorf("records = %+v", f.log.records)
	}
	if got, ok, _ := f.cache.Get(question); !ok || string(got) != "mp3:1st" {
		t.Errorf("cache not populated: ok=%v got=%q", ok, got)
	}
}

func TestAnswerQuestion_CacheHitSkipsProviders(t *testing.T) {
	f := newFixture()
	f.cache.data[question] = []byte("cached-audio")
	a := f.answerer()

	audio, meta, err := a.AnswerQuestion(context.Background(), question)
	if err != nil {
		t.Fatalf("AnswerQuestion: %v", err)
	}
	if string(audio) != "cached-audio" {
		t.Errorf("audio = %q, want cached bytes", audio)
	}
	if !meta.Cached {
		t.Error("expected Cached metadata")
	}
	if f.selector.calls.Load() != 0 || f.synthesizer.calls.Load() != 0 || f.speaker.count() != 0 {
		t.Error("no provider should be called on a cache hit")
	}
	if len(f.log.records) != 0 {
		t.Error("a cache hit must not append a record")
	}
}

func TestAnswerQuestion_CacheKeyIsExact(t *testing.T) {
	f := newFixture()
	f.cache.data[question] = []byte("cached-audio")
	a := f.answerer()

	if _, meta, err := a.AnswerQuestion(context.Background(), question+" "); err != nil || meta.Cached {
		t.Fatalf("trailing space must miss the cache: cached=%v err=%v", meta.Cached, err)
	}
	if f.selector.calls.Load() != 1 {
		t.Errorf("selector calls = %d, want 1", f.selector.calls.Load())
	}
}

func TestAnswerQuestion_EmptyQuestion(t *testing.T) {
	for _, q := range []string{"", "   ", "\n\t"} {
		f := newFixture()
		_, _, err := f.answerer().AnswerQuestion(context.Background(), q)
		if !errors.Is(err, intent.ErrEmptyQuestion) {
			t.Errorf("AnswerQuestion(%q) error = %v, want ErrEmptyQuestion", q, err)
		}
		if f.selector.calls.Load() != 0 {
			t.Errorf("AnswerQuestion(%q) reached the selector", q)
		}
	}
}

func TestAnswerQuestion_StageErrorFailsFast(t *testing.T) {
	f := newFixture()
	f.invoker.err = lookup.ErrDriverNotFound
	a := f.answerer()

	_, _, err := a.AnswerQuestion(context.Background(), question)
	if !errors.Is(err, lookup.ErrDriverNotFound) {
		t.Fatalf("error = %v, want ErrDriverNotFound", err)
	}
	if f.synthesizer.calls.Load() != 0 || f.speaker.count() != 0 {
		t.Error("stages after a failure must not run")
	}
	if len(f.log.records) != 0 || len(f.cache.data) != 0 {
		t.Error("a failed question must not be recorded or cached")
	}
}

func TestAnswerQuestion_SpeechErrorNotCached(t *testing.T) {
	f := newFixture()
	f.speaker.err = errors.New("tts down")
	_, _, err := f.answerer().AnswerQuestion(context.Background(), question)
	if err == nil {
		t.Fatal("expected error from speech stage")
	}
	if len(f.cache.data) != 0 || len(f.log.records) != 0 {
		t.Error("nothing should be persisted when speech fails")
	}
}

func TestAnswerQuestion_PersistenceFailuresAreSwallowed(t *testing.T) {
	f := newFixture()
	f.log.err = errors.New("disk full")
	f.cache.putErr = errors.New("read-only filesystem")

	audio, _, err := f.answerer().AnswerQuestion(context.Background(), question)
	if err != nil {
		t.Fatalf("persistence failures must not fail the request: %v", err)
	}
	if string(audio) != "mp3:1st" {
		t.Errorf("audio = %q", audio)
	}
}

func TestAnswerQuestion_CacheReadErrorIsMiss(t *testing.T) {
	f := newFixture()
	f.cache.getErr = errors.New("permission denied")

	if _, meta, err := f.answerer().AnswerQuestion(context.Background(), question); err != nil || meta.Cached {
		t.Fatalf("cached=%v err=%v", meta.Cached, err)
	}
	if f.selector.calls.Load() != 1 {
		t.Errorf("selector calls = %d, want 1", f.selector.calls.Load())
	}
}

func TestAnswerQuestion_ConcurrentDuplicatesShareOneRun(t *testing.T) {
	f := newFixture()
	f.selector.release = make(chan struct{})
	a := f.answerer()

	const n = 8
	var wg sync.WaitGroup
	results := make([][]byte, n)
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _, errs[i] = a.AnswerQuestion(context.Background(), question)
		}(i)
	}

	// Let the first caller reach the selector, then give the others time to join.
	for f.selector.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(f.selector.release)
	wg.Wait()

	for i := range n {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if string(results[i]) != "mp3:1st" {
			t.Errorf("caller %d audio = %q", i, results[i])
		}
	}
	// Latecomers either joined the flight or hit the cache it filled.
	if got := f.selector.calls.Load(); got != 1 {
		t.Errorf("selector calls = %d, want 1", got)
	}
	if got := f.speaker.count(); got != 1 {
		t.Errorf("speaker calls = %d, want 1", got)
	}
}

func TestAnswerQuestion_CallerCancellation(t *testing.T) {
	f := newFixture()
	f.selector.release = make(chan struct{})
	defer close(f.selector.release)
	a := f.answerer()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, _, err := a.AnswerQuestion(ctx, question)
		done <- err
	}()
	for f.selector.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller did not return")
	}
}

func TestAnswerAudio(t *testing.T) {
	f := newFixture()
	audio, meta, err := f.answerer().AnswerAudio(context.Background(), []byte("question-audio"))
	if err != nil {
		t.Fatalf("AnswerAudio: %v", err)
	}
	if string(audio) != "mp3:1st" || meta.Question != question {
		t.Errorf("audio=%q meta=%+v", audio, meta)
	}
}

func TestAnswerAudio_EmptyTranscript(t *testing.T) {
	f := newFixture()
	f.transcriber.text = "  "
	_, _, err := f.answerer().AnswerAudio(context.Background(), []byte("silence"))
	if !errors.Is(err, intent.ErrEmptyQuestion) {
		t.Fatalf("error = %v, want ErrEmptyQuestion", err)
	}
	if f.selector.calls.Load() != 0 {
		t.Error("selector must not be called for an empty transcript")
	}
}

func TestAnswerAudio_TranscriptionError(t *testing.T) {
	f := newFixture()
	f.transcriber.err = errors.New("whisper down")
	if _, _, err := f.answerer().AnswerAudio(context.Background(), []byte("x")); err == nil {
		t.Fatal("expected transcription error")
	}
}

func TestAnswerText_BypassesAudioCache(t *testing.T) {
	f := newFixture()
	f.cache.data[question] = []byte("cached-audio")

	text, meta, err := f.answerer().AnswerText(context.Background(), question)
	if err != nil {
		t.Fatalf("AnswerText: %v", err)
	}
	if text != "1st" || meta.Function != intent.FinishPositionOfDriver {
		t.Errorf("text=%q meta=%+v", text, meta)
	}
	if f.speaker.count() != 0 {
		t.Error("AnswerText must not synthesize speech")
	}
	if len(f.log.records) != 1 {
		t.Errorf("records = %d, want 1", len(f.log.records))
	}
}

func TestVoice(t *testing.T) {
	f := newFixture()
	a := f.answerer()

	audio, err := a.Voice(context.Background(), "")
	if err != nil {
		t.Fatalf("Voice: %v", err)
	}
	if string(audio) != "mp3:"+DefaultVoiceName {
		t.Errorf("audio = %q", audio)
	}
	if f.speaker.instructions[0] != voiceInstructions {
		t.Errorf("instructions = %q", f.speaker.instructions[0])
	}

	if _, err := a.Voice(context.Background(), DefaultVoiceName); err != nil {
		t.Fatalf("Voice (cached): %v", err)
	}
	if f.speaker.count() != 1 {
		t.Errorf("speaker calls = %d, want 1 after cached second request", f.speaker.count())
	}
}
