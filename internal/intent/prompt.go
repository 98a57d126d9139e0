package intent

import "github.com/piconix/f1voice/internal/engine"

const dispatchSystemPrompt = `You are an expert in Formula One data. Pick the one function that can answer the user's question and extract its parameters from the question. Extract the most relevant information and keep driver names exactly as written.`

// BuildPrompt constructs the dispatch conversation for a question.
func BuildPrompt(question string) []engine.Message {
	return []engine.Message{
		engine.System(dispatchSystemPrompt),
		engine.User(question),
	}
}
