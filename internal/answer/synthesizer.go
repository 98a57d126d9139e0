package answer

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/piconix/f1voice/internal/engine"
	"github.com/piconix/f1voice/internal/logging"
)

// ErrEmptyAnswer is returned when the provider produced only whitespace.
var ErrEmptyAnswer = goerr.New("empty answer generated")

const synthesisTemperature = 0.2

// Synthesizer turns a structured lookup result into the shortest phrase that
// answers the question.
type Synthesizer struct {
	completer engine.Completer
}

func NewSynthesizer(c engine.Completer) *Synthesizer {
	return &Synthesizer{completer: c}
}

// Synthesize makes exactly one provider call and never retries. The result
// is marshaled to JSON and embedded in the prompt.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, result any) (string, error) {
	messages, err := BuildPrompt(question, result)
	if err != nil {
		return "", goerr.Wrap(err, "building synthesis prompt")
	}

	text, err := s.completer.Complete(ctx, messages, engine.Options{Temperature: synthesisTemperature})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", goerr.Wrap(ErrEmptyAnswer, "synthesizing answer", goerr.V("question", question))
	}

	logging.From(ctx).Debug("answer synthesized", "question", question, "answer", text)
	return text, nil
}
