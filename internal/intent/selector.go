package intent

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/piconix/f1voice/internal/engine"
	"github.com/piconix/f1voice/internal/logging"
)

var (
	// ErrEmptyQuestion is returned for blank input, before any provider call.
	ErrEmptyQuestion = goerr.New("question cannot be empty")
	// ErrNoFunctionCall means the model answered without choosing a function.
	ErrNoFunctionCall = goerr.New("no function call in model response")
)

// Selection is the function the model chose and its raw JSON arguments.
type Selection struct {
	Name      string
	Arguments string
}

// Selector maps a natural-language question to one catalog function using a
// function-calling provider.
type Selector struct {
	caller engine.FunctionCaller
}

// NewSelector creates a Selector backed by caller.
func NewSelector(caller engine.FunctionCaller) *Selector {
	return &Selector{caller: caller}
}

// Select makes exactly one provider call. It never returns an empty
// Selection with a nil error.
func (s *Selector) Select(ctx context.Context, question string) (Selection, error) {
	if strings.TrimSpace(question) == "" {
		return Selection{}, goerr.Wrap(ErrEmptyQuestion, "selecting function")
	}

	call, err := s.caller.CallFunction(ctx, BuildPrompt(question), Definitions())
	if err != nil {
		return Selection{}, err
	}
	if call == nil || call.Name == "" {
		return Selection{}, goerr.Wrap(ErrNoFunctionCall, "selecting function", goerr.V("question", question))
	}

	args := call.Arguments
	if strings.TrimSpace(args) == "" {
		args = "{}"
	}

	logging.From(ctx).Debug("function selected", "question", question, "function", call.Name, "arguments", args)
	return Selection{Name: call.Name, Arguments: args}, nil
}
