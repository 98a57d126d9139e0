package answer

import (
	"encoding/json"
	"fmt"

	"github.com/piconix/f1voice/internal/engine"
)

const synthesisSystemPrompt = `You are an expert in extracting information from json data. Given the json with answer data and the original question, extract a clear, concise answer in natural language. Focus on the most relevant information and be direct. Do not include any other information or repeat the question. Give a one word answer, or the fewest words possible, for nouns, names and position numbers.
Question: 'Who constructed the car that finished in position 5 in round 6 of 2015?' Raw json answer: {"constructorName":"Red Bull","constructorId":"red_bull"}. Answer: 'Red Bull'.
Question: 'Who finished in position 8 in round 17 of 2015?' Raw json answer: {"driverName":"Sergio Pérez","driverId":"perez","constructorName":"Force India","constructorId":"force_india"}. Give the driver name only. Answer: 'Sergio Pérez'.
Question: 'What position did Giancarlo Fisichella finish in round 3 in 2008?' Raw json answer: {"position":12,"constructorName":"Force India","constructorId":"force_india"}. Give the position only. Answer: '12th'.`

// BuildPrompt constructs the synthesis conversation for a question and its
// lookup result.
func BuildPrompt(question string, result any) ([]engine.Message, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshaling lookup result: %w", err)
	}
	user := fmt.Sprintf("Question: %s\nRaw json answer data: %s\nPlease extract a simple, clear, concise answer in natural language for the question based on the answer data.",
		question, data)
	return []engine.Message{
		engine.System(synthesisSystemPrompt),
		engine.User(user),
	}, nil
}
