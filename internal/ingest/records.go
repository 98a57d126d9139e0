package ingest

import (
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/piconix/f1voice/internal/storage"
)

// ErrInvalidRecord is returned for the first CSV row that fails validation.
// It aborts the whole load.
var ErrInvalidRecord = goerr.New("invalid csv record")

func invalid(kind string, rec record, reason string) error {
	return goerr.Wrap(ErrInvalidRecord, reason, goerr.V("kind", kind), goerr.V("record", map[string]string(rec)))
}

func (r record) get(key string) string {
	return strings.TrimSpace(r[key])
}

func (r record) has(keys ...string) bool {
	for _, k := range keys {
		if r.get(k) == "" {
			return false
		}
	}
	return true
}

func (r record) atoi(key string) (int, bool) {
	v, err := strconv.Atoi(r.get(key))
	return v, err == nil
}

// optInt and optFloat return nil for empty or unparsable values.
func (r record) optInt(key string) *int {
	v, ok := r.atoi(key)
	if !ok {
		return nil
	}
	return &v
}

func (r record) optFloat(key string) *float64 {
	v, err := strconv.ParseFloat(r.get(key), 64)
	if err != nil {
		return nil
	}
	return &v
}

func toCircuit(r record) (storage.Circuit, error) {
	if !r.has("circuitId", "circuitName") {
		return storage.Circuit{}, invalid("circuit", r, "circuitId and circuitName are required")
	}
	return storage.Circuit{
		ID:        r.get("circuitId"),
		Name:      r.get("circuitName"),
		Locality:  r.get("locality"),
		Country:   r.get("country"),
		Latitude:  r.optFloat("latitude"),
		Longitude: r.optFloat("longitude"),
		URL:       r.get("url"),
	}, nil
}

func toConstructor(r record) (storage.Constructor, error) {
	if !r.has("constructorId", "Name", "year") {
		return storage.Constructor{}, invalid("constructor", r, "constructorId, Name and year are required")
	}
	year, ok := r.atoi("year")
	if !ok {
		return storage.Constructor{}, invalid("constructor", r, "year is not a number")
	}
	return storage.Constructor{
		ID:          r.get("constructorId"),
		Year:        year,
		Name:        r.get("Name"),
		Nationality: r.get("Nationality"),
		URL:         r.get("url"),
	}, nil
}

func toDriver(r record) (storage.Driver, error) {
	if !r.has("driverId", "GivenName", "FamilyName", "DateOfBirth") {
		return storage.Driver{}, invalid("driver", r, "driverId, GivenName, FamilyName and DateOfBirth are required")
	}
	return storage.Driver{
		ID:          r.get("driverId"),
		GivenName:   r.get("GivenName"),
		FamilyName:  r.get("FamilyName"),
		DateOfBirth: r.get("DateOfBirth"),
		Nationality: r.get("Nationality"),
		URL:         r.get("url"),
	}, nil
}

func toRace(r record) (storage.Race, error) {
	if !r.has("season", "round", "circuitId") {
		return storage.Race{}, invalid("race", r, "season, round and circuitId are required")
	}
	season, ok1 := r.atoi("season")
	round, ok2 := r.atoi("round")
	if !ok1 || !ok2 {
		return storage.Race{}, invalid("race", r, "season or round is not a number")
	}
	return storage.Race{Season: season, Round: round, CircuitID: r.get("circuitId"), Date: r.get("date")}, nil
}

func toResult(r record, constructorID string, season int) (storage.Result, error) {
	if !r.has("Season", "Round", "DriverID", "ConstructorName") {
		return storage.Result{}, invalid("result", r, "Season, Round, DriverID and ConstructorName are required")
	}
	round, ok := r.atoi("Round")
	if !ok {
		return storage.Result{}, invalid("result", r, "Round is not a number")
	}
	return storage.Result{
		Season:          season,
		Round:           round,
		DriverID:        r.get("DriverID"),
		ConstructorID:   constructorID,
		ConstructorYear: season,
		Position:        r.optInt("Position"),
		Points:          r.optFloat("Points"),
		Grid:            r.optInt("Grid"),
		Laps:            r.optInt("Laps"),
		Status:          r.get("Status"),
		Time:            r.get("Time"),
		FastestLapTime:  r.get("FastestLapTime"),
		FastestLapLap:   r.optInt("FastestLapLap"),
		AverageSpeed:    r.optFloat("AverageSpeed"),
	}, nil
}

func toQualifyingResult(r record, constructorID string, season int) (storage.QualifyingResult, error) {
	if !r.has("Season", "Round", "DriverID", "ConstructorID") {
		return storage.QualifyingResult{}, invalid("qualifying result", r, "Season, Round, DriverID and ConstructorID are required")
	}
	round, ok := r.atoi("Round")
	if !ok {
		return storage.QualifyingResult{}, invalid("qualifying result", r, "Round is not a number")
	}
	return storage.QualifyingResult{
		Season:          season,
		Round:           round,
		DriverID:        r.get("DriverID"),
		ConstructorID:   constructorID,
		ConstructorYear: season,
		Position:        r.optInt("Position"),
		Q1:              r.get("Q1"),
		Q2:              r.get("Q2"),
		Q3:              r.get("Q3"),
	}, nil
}

func toPitStop(r record) (storage.PitStop, error) {
	if !r.has("season", "round", "driverId", "stop", "lap") {
		return storage.PitStop{}, invalid("pit stop", r, "season, round, driverId, stop and lap are required")
	}
	season, ok1 := r.atoi("season")
	round, ok2 := r.atoi("round")
	stop, ok3 := r.atoi("stop")
	lap, ok4 := r.atoi("lap")
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return storage.PitStop{}, invalid("pit stop", r, "season, round, stop or lap is not a number")
	}
	return storage.PitStop{
		Season:   season,
		Round:    round,
		DriverID: r.get("driverId"),
		Stop:     stop,
		Lap:      lap,
		Duration: r.optFloat("duration"),
	}, nil
}

// constructorIndex maps a team name to its constructor id per season.
type constructorIndex map[string]map[int]string

func buildConstructorIndex(rows []storage.Constructor) constructorIndex {
	idx := make(constructorIndex)
	for _, c := range rows {
		if idx[c.Name] == nil {
			idx[c.Name] = make(map[int]string)
		}
		idx[c.Name][c.Year] = c.ID
	}
	return idx
}

// resolve looks up the constructor for a results row. Rows whose season is
// not a number never resolve.
func (idx constructorIndex) resolve(r record) (id string, season int, ok bool) {
	season, ok = r.atoi("Season")
	if !ok {
		return "", 0, false
	}
	id, ok = idx[r.get("ConstructorName")][season]
	return id, season, ok
}
