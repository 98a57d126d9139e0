package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"golang.org/x/text/cases"
)

// FoldName returns the case-folded form used for driver name matching.
// A Caser is stateful, so each call builds its own.
func FoldName(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// FindDriverByName returns the first driver whose given and family names
// match case-insensitively. Ties are broken by driver id.
func (s *Store) FindDriverByName(ctx context.Context, given, family string) (Driver, error) {
	var d Driver
	var nationality, url sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, given_name, family_name, date_of_birth, nationality, url
		FROM drivers
		WHERE given_name_fold = ? AND family_name_fold = ?
		ORDER BY id LIMIT 1`,
		FoldName(given), FoldName(family),
	).Scan(&d.ID, &d.GivenName, &d.FamilyName, &d.DateOfBirth, &nationality, &url)
	if errors.Is(err, sql.ErrNoRows) {
		return Driver{}, ErrNotFound
	}
	if err != nil {
		return Driver{}, err
	}
	d.Nationality = nationality.String
	d.URL = url.String
	return d, nil
}

const placementQuery = `
	SELECT r.season, r.round, r.position, r.driver_id, r.constructor_id,
	       d.given_name, d.family_name,
	       c.name, c.year
	FROM results r
	LEFT JOIN drivers d ON d.id = r.driver_id
	LEFT JOIN constructors c ON c.id = r.constructor_id AND c.year = r.constructor_year
`

// FindResultForDriver returns the placement of driverID in the given race.
func (s *Store) FindResultForDriver(ctx context.Context, driverID string, season, round int) (Placement, error) {
	row := s.db.QueryRowContext(ctx, placementQuery+`
		WHERE r.driver_id = ? AND r.season = ? AND r.round = ?`,
		driverID, season, round,
	)
	return scanPlacement(row)
}

// FindPlacementAtPosition returns the results row at position for the given race.
func (s *Store) FindPlacementAtPosition(ctx context.Context, position, season, round int) (Placement, error) {
	row := s.db.QueryRowContext(ctx, placementQuery+`
		WHERE r.position = ? AND r.season = ? AND r.round = ?
		ORDER BY r.driver_id LIMIT 1`,
		position, season, round,
	)
	return scanPlacement(row)
}

func scanPlacement(row *sql.Row) (Placement, error) {
	var p Placement
	var position sql.NullInt64
	var given, family, ctorName sql.NullString
	var ctorYear sql.NullInt64
	err := row.Scan(&p.Season, &p.Round, &position, &p.DriverID, &p.ConstructorID,
		&given, &family, &ctorName, &ctorYear)
	if errors.Is(err, sql.ErrNoRows) {
		return Placement{}, ErrNotFound
	}
	if err != nil {
		return Placement{}, err
	}
	if position.Valid {
		pos := int(position.Int64)
		p.Position = &pos
	}
	if given.Valid {
		p.Driver = &Driver{ID: p.DriverID, GivenName: given.String, FamilyName: family.String}
	}
	if ctorName.Valid {
		p.Constructor = &Constructor{ID: p.ConstructorID, Year: int(ctorYear.Int64), Name: ctorName.String}
	}
	return p, nil
}
