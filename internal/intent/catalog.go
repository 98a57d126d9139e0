package intent

import (
	"encoding/json"

	"github.com/piconix/f1voice/internal/engine"
)

// Function names offered to the dispatch model.
const (
	FinishPositionOfDriver = "get_driver_position"
	DriverAtPosition       = "get_driver_by_position"
	ConstructorAtPosition  = "get_constructor_by_position"
)

// ParamType is the JSON-schema type of a parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
)

type Param struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
}

// Intent is one entry of the function catalog.
type Intent struct {
	Name        string
	Description string
	Params      []Param
}

var catalog = []Intent{
	{
		Name:        FinishPositionOfDriver,
		Description: "Get the finishing position of a driver for a given season and round.",
		Params: []Param{
			{Name: "driverName", Type: TypeString, Description: "Full name of the driver (e.g. 'Sergio Perez')", Required: true},
			{Name: "season", Type: TypeInteger, Description: "F1 season (e.g. 2018)", Required: true},
			{Name: "round", Type: TypeInteger, Description: "Round number (e.g. 13)", Required: true},
		},
	},
	{
		Name:        DriverAtPosition,
		Description: "Find the driver who finished in a given position for a specific season and round.",
		Params: []Param{
			{Name: "position", Type: TypeInteger, Description: "Finishing position (e.g. 1)", Required: true},
			{Name: "season", Type: TypeInteger, Description: "F1 season (e.g. 2018)", Required: true},
			{Name: "round", Type: TypeInteger, Description: "Round number (e.g. 5)", Required: true},
		},
	},
	{
		Name:        ConstructorAtPosition,
		Description: "Find the constructor of the car that finished in a given position for a specific season and round.",
		Params: []Param{
			{Name: "position", Type: TypeInteger, Description: "Finishing position (e.g. 3)", Required: true},
			{Name: "season", Type: TypeInteger, Description: "F1 season (e.g. 2015)", Required: true},
			{Name: "round", Type: TypeInteger, Description: "Round number (e.g. 1)", Required: true},
		},
	},
}

// Catalog returns a deep copy of the fixed function catalog.
func Catalog() []Intent {
	out := make([]Intent, len(catalog))
	for i, in := range catalog {
		out[i] = in.clone()
	}
	return out
}

// Lookup returns a copy of the catalog entry for name.
func Lookup(name string) (Intent, bool) {
	for _, in := range catalog {
		if in.Name == name {
			return in.clone(), true
		}
	}
	return Intent{}, false
}

func (in Intent) clone() Intent {
	in.Params = append([]Param(nil), in.Params...)
	return in
}

type schemaProperty struct {
	Type        ParamType `json:"type"`
	Description string    `json:"description,omitempty"`
}

type parameterSchema struct {
	Type       string                    `json:"type"`
	Properties map[string]schemaProperty `json:"properties"`
	Required   []string                  `json:"required"`
}

// Schema renders the intent's parameters as a JSON-schema object.
func (in Intent) Schema() json.RawMessage {
	s := parameterSchema{
		Type:       "object",
		Properties: make(map[string]schemaProperty, len(in.Params)),
		Required:   []string{},
	}
	for _, p := range in.Params {
		s.Properties[p.Name] = schemaProperty{Type: p.Type, Description: p.Description}
		if p.Required {
			s.Required = append(s.Required, p.Name)
		}
	}
	raw, err := json.Marshal(s)
	if err != nil {
		panic("intent: marshaling static schema: " + err.Error())
	}
	return raw
}

// Definitions renders the catalog as provider function declarations.
func Definitions() []engine.Function {
	out := make([]engine.Function, len(catalog))
	for i, in := range catalog {
		out[i] = engine.Function{Name: in.Name, Description: in.Description, Parameters: in.Schema()}
	}
	return out
}
