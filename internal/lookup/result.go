package lookup

import (
	"encoding/json"
	"fmt"
)

// Kind tags which lookup produced a Result.
type Kind int

const (
	KindDriverPosition Kind = iota + 1
	KindDriverAtPosition
	KindConstructorAtPosition
)

func (k Kind) String() string {
	switch k {
	case KindDriverPosition:
		return "driver_position"
	case KindDriverAtPosition:
		return "driver_at_position"
	case KindConstructorAtPosition:
		return "constructor_at_position"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Result is the structured answer of one lookup. Only the fields belonging
// to Kind are meaningful, and only those are marshaled.
type Result struct {
	Kind            Kind
	Position        int
	DriverName      string
	DriverID        string
	ConstructorName string
	ConstructorID   string
}

type driverPositionJSON struct {
	Position        int    `json:"position"`
	ConstructorName string `json:"constructorName"`
	ConstructorID   string `json:"constructorId"`
}

type driverAtPositionJSON struct {
	DriverName      string `json:"driverName"`
	DriverID        string `json:"driverId"`
	ConstructorName string `json:"constructorName"`
	ConstructorID   string `json:"constructorId"`
}

type constructorAtPositionJSON struct {
	ConstructorName string `json:"constructorName"`
	ConstructorID   string `json:"constructorId"`
}

func (r Result) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case KindDriverPosition:
		return json.Marshal(driverPositionJSON{r.Position, r.ConstructorName, r.ConstructorID})
	case KindDriverAtPosition:
		return json.Marshal(driverAtPositionJSON{r.DriverName, r.DriverID, r.ConstructorName, r.ConstructorID})
	case KindConstructorAtPosition:
		return json.Marshal(constructorAtPositionJSON{r.ConstructorName, r.ConstructorID})
	default:
		return nil, fmt.Errorf("marshaling lookup result: unknown kind %v", r.Kind)
	}
}
