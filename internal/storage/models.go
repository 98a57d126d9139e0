package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

type Circuit struct {
	ID        string
	Name      string
	Locality  string
	Country   string
	Latitude  *float64
	Longitude *float64
	URL       string
}

// Constructor rows are keyed by (ID, Year); a team name can map to a
// different id in different seasons.
type Constructor struct {
	ID          string
	Year        int
	Name        string
	Nationality string
	URL         string
}

type Driver struct {
	ID          string
	GivenName   string
	FamilyName  string
	DateOfBirth string
	Nationality string
	URL         string
}

// FullName joins given and family name with a single space.
func (d Driver) FullName() string {
	return d.GivenName + " " + d.FamilyName
}

type Race struct {
	Season    int
	Round     int
	CircuitID string
	Date      string
}

type Result struct {
	Season          int
	Round           int
	DriverID        string
	ConstructorID   string
	ConstructorYear int
	Position        *int
	Points          *float64
	Grid            *int
	Laps            *int
	Status          string
	Time            string
	FastestLapTime  string
	FastestLapLap   *int
	AverageSpeed    *float64
}

type QualifyingResult struct {
	Season          int
	Round           int
	DriverID        string
	ConstructorID   string
	ConstructorYear int
	Position        *int
	Q1              string
	Q2              string
	Q3              string
}

type PitStop struct {
	Season   int
	Round    int
	DriverID string
	Stop     int
	Lap      int
	Duration *float64
}

// Placement is a results row joined with its driver and constructor.
// Driver or Constructor is nil when the referenced row was never seeded, and
// Position is nil for a row without a classified finishing position.
type Placement struct {
	Season        int
	Round         int
	Position      *int
	DriverID      string
	ConstructorID string
	Driver        *Driver
	Constructor   *Constructor
}

// QuestionAnswer is one row of the append-only question/answer log.
type QuestionAnswer struct {
	ID        string
	Question  string
	Answer    string
	CreatedAt time.Time
}
