package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// SeedTx is a write transaction used for bulk imports. Every Insert method
// skips rows whose primary key already exists and returns the number of
// rows actually written.
type SeedTx struct {
	tx *sql.Tx
}

// Seed runs fn inside a single transaction. Any error returned by fn rolls
// back everything fn wrote.
func (s *Store) Seed(ctx context.Context, fn func(*SeedTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning seed transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&SeedTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing seed transaction: %w", err)
	}
	return nil
}

func (t *SeedTx) insertEach(ctx context.Context, query string, n int, args func(i int) []any) (int, error) {
	stmt, err := t.tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	written := 0
	for i := 0; i < n; i++ {
		res, err := stmt.ExecContext(ctx, args(i)...)
		if err != nil {
			return written, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return written, err
		}
		written += int(affected)
	}
	return written, nil
}

func (t *SeedTx) InsertCircuits(ctx context.Context, rows []Circuit) (int, error) {
	return t.insertEach(ctx, `
		INSERT OR IGNORE INTO circuits (id, name, locality, country, latitude, longitude, url)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, len(rows), func(i int) []any {
		c := rows[i]
		return []any{c.ID, c.Name, nullString(c.Locality), nullString(c.Country), c.Latitude, c.Longitude, nullString(c.URL)}
	})
}

func (t *SeedTx) InsertConstructors(ctx context.Context, rows []Constructor) (int, error) {
	return t.insertEach(ctx, `
		INSERT OR IGNORE INTO constructors (id, year, name, nationality, url)
		VALUES (?, ?, ?, ?, ?)`, len(rows), func(i int) []any {
		c := rows[i]
		return []any{c.ID, c.Year, c.Name, nullString(c.Nationality), nullString(c.URL)}
	})
}

func (t *SeedTx) InsertDrivers(ctx context.Context, rows []Driver) (int, error) {
	return t.insertEach(ctx, `
		INSERT OR IGNORE INTO drivers (id, given_name, family_name, given_name_fold, family_name_fold, date_of_birth, nationality, url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, len(rows), func(i int) []any {
		d := rows[i]
		return []any{d.ID, d.GivenName, d.FamilyName, FoldName(d.GivenName), FoldName(d.FamilyName),
			d.DateOfBirth, nullString(d.Nationality), nullString(d.URL)}
	})
}

func (t *SeedTx) InsertRaces(ctx context.Context, rows []Race) (int, error) {
	return t.insertEach(ctx, `
		INSERT OR IGNORE INTO races (season, round, circuit_id, race_date)
		VALUES (?, ?, ?, ?)`, len(rows), func(i int) []any {
		r := rows[i]
		return []any{r.Season, r.Round, r.CircuitID, nullString(r.Date)}
	})
}

func (t *SeedTx) InsertResults(ctx context.Context, rows []Result) (int, error) {
	return t.insertEach(ctx, `
		INSERT OR IGNORE INTO results (season, round, driver_id, constructor_id, constructor_year,
			position, points, grid, laps, status, time, fastest_lap_time, fastest_lap_lap, average_speed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, len(rows), func(i int) []any {
		r := rows[i]
		return []any{r.Season, r.Round, r.DriverID, r.ConstructorID, r.ConstructorYear,
			r.Position, r.Points, r.Grid, r.Laps, nullString(r.Status), nullString(r.Time),
			nullString(r.FastestLapTime), r.FastestLapLap, r.AverageSpeed}
	})
}

func (t *SeedTx) InsertQualifyingResults(ctx context.Context, rows []QualifyingResult) (int, error) {
	return t.insertEach(ctx, `
		INSERT OR IGNORE INTO qualifying_results (season, round, driver_id, constructor_id, constructor_year, position, q1, q2, q3)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, len(rows), func(i int) []any {
		q := rows[i]
		return []any{q.Season, q.Round, q.DriverID, q.ConstructorID, q.ConstructorYear,
			q.Position, nullString(q.Q1), nullString(q.Q2), nullString(q.Q3)}
	})
}

func (t *SeedTx) InsertPitStops(ctx context.Context, rows []PitStop) (int, error) {
	return t.insertEach(ctx, `
		INSERT OR IGNORE INTO pit_stops (season, round, driver_id, stop, lap, duration)
		VALUES (?, ?, ?, ?, ?, ?)`, len(rows), func(i int) []any {
		p := rows[i]
		return []any{p.Season, p.Round, p.DriverID, p.Stop, p.Lap, p.Duration}
	})
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
