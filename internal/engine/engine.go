package engine

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
)

var (
	// ErrProvider wraps transport failures and non-2xx responses from an LLM provider.
	ErrProvider = goerr.New("provider error")
	// ErrMalformedProviderResponse means the provider answered but the payload
	// lacked the expected text field.
	ErrMalformedProviderResponse = goerr.New("malformed provider response")
	// ErrUnknownProvider is returned by Select for an unregistered provider name.
	ErrUnknownProvider = goerr.New("unknown provider")
)

// Completer abstracts a chat-completion provider. The answer synthesizer and
// bias detector depend on this interface instead of a concrete client, so the
// two providers are interchangeable.
type Completer interface {
	// Complete sends messages and returns the text of the first completion.
	Complete(ctx context.Context, messages []Message, opts Options) (string, error)
}

// FunctionCaller is a provider that can pick one of a set of declared
// functions for a conversation. A nil call with a nil error means the model
// answered without choosing a function.
type FunctionCaller interface {
	CallFunction(ctx context.Context, messages []Message, functions []Function) (*FunctionCall, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, messages []Message, opts Options) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, messages []Message, opts Options) (string, error) {
	return f(ctx, messages, opts)
}

// Select returns the completer registered under name.
func Select(name string, providers map[string]Completer) (Completer, error) {
	c, ok := providers[name]
	if !ok || c == nil {
		return nil, goerr.Wrap(ErrUnknownProvider, "selecting completion provider", goerr.V("name", name))
	}
	return c, nil
}
