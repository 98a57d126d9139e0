package ingest

import (
	"log/slog"

	"github.com/piconix/f1voice/internal/storage"
)

// dataset is the validated content of all seed files.
type dataset struct {
	circuits     []storage.Circuit
	constructors []storage.Constructor
	drivers      []storage.Driver
	races        []storage.Race
	results      []storage.Result
	qualifying   []storage.QualifyingResult
	pitStops     []storage.PitStop
	skipped      map[string]int
}

func (d dataset) total() int {
	return len(d.circuits) + len(d.constructors) + len(d.drivers) + len(d.races) +
		len(d.results) + len(d.qualifying) + len(d.pitStops)
}

func convertAll[T any](recs []record, fn func(record) (T, error)) ([]T, error) {
	out := make([]T, 0, len(recs))
	for _, r := range recs {
		v, err := fn(r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// convert validates the parsed tables, indexed like sourceFiles. Results and
// qualifying rows are matched to a constructor by team name and season
// before they are validated; unmatched rows are skipped.
func convert(tables [][]record, logger *slog.Logger) (dataset, error) {
	ds := dataset{skipped: make(map[string]int)}
	var err error

	if ds.circuits, err = convertAll(tables[0], toCircuit); err != nil {
		return ds, err
	}
	if ds.constructors, err = convertAll(tables[1], toConstructor); err != nil {
		return ds, err
	}
	if ds.drivers, err = convertAll(tables[2], toDriver); err != nil {
		return ds, err
	}
	if ds.races, err = convertAll(tables[3], toRace); err != nil {
		return ds, err
	}

	idx := buildConstructorIndex(ds.constructors)
	for _, r := range tables[4] {
		id, season, ok := idx.resolve(r)
		if !ok {
			logger.Warn("skipping result: no constructor for team and season",
				"constructor", r.get("ConstructorName"), "season", r.get("Season"))
			ds.skipped[fileResults]++
			continue
		}
		res, err := toResult(r, id, season)
		if err != nil {
			return ds, err
		}
		ds.results = append(ds.results, res)
	}
	for _, r := range tables[5] {
		id, season, ok := idx.resolve(r)
		if !ok {
			logger.Warn("skipping qualifying result: no constructor for team and season",
				"constructor", r.get("ConstructorName"), "season", r.get("Season"))
			ds.skipped[fileQualifying]++
			continue
		}
		q, err := toQualifyingResult(r, id, season)
		if err != nil {
			return ds, err
		}
		ds.qualifying = append(ds.qualifying, q)
	}

	if ds.pitStops, err = convertAll(tables[6], toPitStop); err != nil {
		return ds, err
	}
	return ds, nil
}
