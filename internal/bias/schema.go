package bias

import (
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// responseSchema is sent to the provider as the structured output contract
// and used again to validate what comes back.
const responseSchema = `{
  "type": "object",
  "properties": {
    "biasedArticle": {
      "type": "object",
      "properties": {
        "title": {"type": "string"},
        "type": {"type": "string", "enum": ["positive", "negative"]},
        "reason": {"type": "string"}
      },
      "required": ["title", "type", "reason"]
    }
  },
  "required": ["biasedArticle"]
}`

const schemaURL = "f1voice://bias/response.json"

var compiledSchema = jsonschema.MustCompileString(schemaURL, responseSchema)

func schemaJSON() json.RawMessage {
	return json.RawMessage(responseSchema)
}
