package lookup

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"github.com/m-mizutani/goerr/v2"

	"github.com/piconix/f1voice/internal/intent"
	"github.com/piconix/f1voice/internal/logging"
	"github.com/piconix/f1voice/internal/storage"
)

var (
	ErrInvalidArguments        = goerr.New("invalid function arguments")
	ErrUnknownFunction         = goerr.New("unknown function")
	ErrDriverNotFound          = goerr.New("driver not found")
	ErrResultNotFound          = goerr.New("no result for driver in that race")
	ErrNoDriverAtPosition      = goerr.New("no driver found at that position")
	ErrNoConstructorAtPosition = goerr.New("no constructor found at that position")
)

// Store is the subset of storage.Store the invoker reads.
type Store interface {
	FindDriverByName(ctx context.Context, given, family string) (storage.Driver, error)
	FindResultForDriver(ctx context.Context, driverID string, season, round int) (storage.Placement, error)
	FindPlacementAtPosition(ctx context.Context, position, season, round int) (storage.Placement, error)
}

// Invoker executes a selected catalog function against the results database.
type Invoker struct {
	store Store
}

func NewInvoker(store Store) *Invoker {
	return &Invoker{store: store}
}

// Invoke parses rawArgs, checks name against the catalog and runs the
// matching lookup. A missing row is always an error, never a zero Result.
func (inv *Invoker) Invoke(ctx context.Context, name, rawArgs string) (Result, error) {
	args, err := parseArguments(rawArgs)
	if err != nil {
		return Result{}, err
	}

	in, ok := intent.Lookup(name)
	if !ok {
		return Result{}, goerr.Wrap(ErrUnknownFunction, "invoking lookup", goerr.V("function", name))
	}
	if err := args.validate(in); err != nil {
		return Result{}, err
	}

	switch name {
	case intent.FinishPositionOfDriver:
		driverName, _ := args.str("driverName")
		season, _ := args.int("season")
		round, _ := args.int("round")
		return inv.FinishPositionOfDriver(ctx, driverName, season, round)
	case intent.DriverAtPosition:
		position, _ := args.int("position")
		season, _ := args.int("season")
		round, _ := args.int("round")
		return inv.DriverAtPosition(ctx, position, season, round)
	case intent.ConstructorAtPosition:
		position, _ := args.int("position")
		season, _ := args.int("season")
		round, _ := args.int("round")
		return inv.ConstructorAtPosition(ctx, position, season, round)
	}
	return Result{}, goerr.Wrap(ErrUnknownFunction, "invoking lookup", goerr.V("function", name))
}

// splitName splits on the first run of whitespace. The family name keeps
// any further spaces ("Max Verstappen" -> "Max", "Verstappen";
// "Pedro de la Rosa" -> "Pedro", "de la Rosa").
func splitName(full string) (given, family string) {
	full = strings.TrimSpace(full)
	i := strings.IndexFunc(full, unicode.IsSpace)
	if i < 0 {
		return full, ""
	}
	return full[:i], strings.TrimSpace(full[i:])
}

// FinishPositionOfDriver returns where the named driver finished.
func (inv *Invoker) FinishPositionOfDriver(ctx context.Context, driverName string, season, round int) (Result, error) {
	given, family := splitName(driverName)
	vals := []goerr.Option{goerr.V("driverName", driverName), goerr.V("season", season), goerr.V("round", round)}

	driver, err := inv.store.FindDriverByName(ctx, given, family)
	if errors.Is(err, storage.ErrNotFound) {
		return Result{}, goerr.Wrap(ErrDriverNotFound, "finding driver", vals...)
	}
	if err != nil {
		return Result{}, goerr.Wrap(err, "finding driver", vals...)
	}

	p, err := inv.store.FindResultForDriver(ctx, driver.ID, season, round)
	if errors.Is(err, storage.ErrNotFound) {
		return Result{}, goerr.Wrap(ErrResultNotFound, "finding result", append(vals, goerr.V("driverId", driver.ID))...)
	}
	if err != nil {
		return Result{}, goerr.Wrap(err, "finding result", vals...)
	}
	// A row without a classified position or a known constructor is not an answer.
	if p.Position == nil || p.Constructor == nil {
		return Result{}, goerr.Wrap(ErrResultNotFound, "incomplete result",
			append(vals, goerr.V("driverId", driver.ID), goerr.V("constructorId", p.ConstructorID))...)
	}

	logging.From(ctx).Debug("driver position found", "driver", driver.ID, "season", season, "round", round, "position", *p.Position)
	return Result{
		Kind:            KindDriverPosition,
		Position:        *p.Position,
		ConstructorName: p.Constructor.Name,
		ConstructorID:   p.Constructor.ID,
	}, nil
}

// DriverAtPosition returns the driver who finished at position.
func (inv *Invoker) DriverAtPosition(ctx context.Context, position, season, round int) (Result, error) {
	vals := []goerr.Option{goerr.V("position", position), goerr.V("season", season), goerr.V("round", round)}

	p, err := inv.store.FindPlacementAtPosition(ctx, position, season, round)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && (p.Driver == nil || p.Constructor == nil)) {
		return Result{}, goerr.Wrap(ErrNoDriverAtPosition, "finding driver at position", vals...)
	}
	if err != nil {
		return Result{}, goerr.Wrap(err, "finding driver at position", vals...)
	}

	return Result{
		Kind:            KindDriverAtPosition,
		DriverName:      p.Driver.FullName(),
		DriverID:        p.Driver.ID,
		ConstructorName: p.Constructor.Name,
		ConstructorID:   p.Constructor.ID,
	}, nil
}

// ConstructorAtPosition returns the constructor of the car at position.
func (inv *Invoker) ConstructorAtPosition(ctx context.Context, position, season, round int) (Result, error) {
	vals := []goerr.Option{goerr.V("position", position), goerr.V("season", season), goerr.V("round", round)}

	p, err := inv.store.FindPlacementAtPosition(ctx, position, season, round)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && p.Constructor == nil) {
		return Result{}, goerr.Wrap(ErrNoConstructorAtPosition, "finding constructor at position", vals...)
	}
	if err != nil {
		return Result{}, goerr.Wrap(err, "finding constructor at position", vals...)
	}

	return Result{
		Kind:            KindConstructorAtPosition,
		ConstructorName: p.Constructor.Name,
		ConstructorID:   p.Constructor.ID,
	}, nil
}
