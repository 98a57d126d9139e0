package ingest

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/m-mizutani/goerr/v2"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"github.com/piconix/f1voice/internal/storage"
)

var (
	ErrDataDirNotFound = goerr.New("seed data directory not found")
	ErrMissingFile     = goerr.New("required seed file not found")
	ErrSeedInProgress  = goerr.New("another seed is already running")
)

const (
	// DefaultBatchSize is the number of rows written per insert batch.
	DefaultBatchSize = 1000
	parseConcurrency = 4
)

const (
	fileCircuits     = "circuits.csv"
	fileConstructors = "constructors.csv"
	fileDrivers      = "drivers.csv"
	fileRaces        = "races.csv"
	fileResults      = "results.csv"
	fileQualifying   = "qualifying_results.csv"
	filePitStops     = "pitstops.csv"
)

// sourceFiles in load order. Only races.csv may be absent.
var sourceFiles = []struct {
	name     string
	optional bool
}{
	{fileCircuits, false},
	{fileConstructors, false},
	{fileDrivers, false},
	{fileRaces, true},
	{fileResults, false},
	{fileQualifying, false},
	{filePitStops, false},
}

// Seeder runs a bulk import in one transaction. *storage.Store implements it.
type Seeder interface {
	Seed(ctx context.Context, fn func(*storage.SeedTx) error) error
}

type Options struct {
	// LockPath defaults to seed.lock inside the data directory.
	LockPath  string
	BatchSize int
	// Progress receives a progress bar when non-nil.
	Progress io.Writer
}

// TableSummary reports what happened to one CSV file.
type TableSummary struct {
	File    string
	Rows    int
	Written int
	// Skipped counts rows dropped before insert: results and qualifying
	// rows with no constructor for their team name and season.
	Skipped int
}

type Summary struct {
	Tables []TableSummary
}

// Written is the total number of new rows across all tables.
func (s Summary) Written() int {
	n := 0
	for _, t := range s.Tables {
		n += t.Written
	}
	return n
}

// Loader imports the historical results CSV files into the database.
type Loader struct {
	store   Seeder
	dataDir string
	opts    Options
	logger  *slog.Logger
}

func NewLoader(store Seeder, dataDir string, opts Options) *Loader {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.LockPath == "" {
		opts.LockPath = filepath.Join(dataDir, "seed.lock")
	}
	return &Loader{store: store, dataDir: dataDir, opts: opts, logger: slog.Default()}
}

// LoadAll reads every CSV file in the data directory and writes them in a
// single transaction. Rows whose key already exists are left untouched. The
// first invalid record aborts the load and nothing is written.
func (l *Loader) LoadAll(ctx context.Context) (Summary, error) {
	l.logger.Info("starting data import", "data_dir", l.dataDir)

	info, err := os.Stat(l.dataDir)
	if err != nil || !info.IsDir() {
		return Summary{}, goerr.Wrap(ErrDataDirNotFound, "checking data directory", goerr.V("data_dir", l.dataDir))
	}

	lock := flock.New(l.opts.LockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return Summary{}, goerr.Wrap(err, "acquiring seed lock", goerr.V("lock", l.opts.LockPath))
	}
	if !locked {
		return Summary{}, goerr.Wrap(ErrSeedInProgress, "acquiring seed lock", goerr.V("lock", l.opts.LockPath))
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			l.logger.Warn("failed to release seed lock", "lock", l.opts.LockPath, "error", err)
		}
	}()

	tables, err := l.readAll(ctx)
	if err != nil {
		return Summary{}, err
	}
	ds, err := convert(tables, l.logger)
	if err != nil {
		return Summary{}, err
	}

	bar := l.progressBar(ds.total())
	var summary Summary
	err = l.store.Seed(ctx, func(tx *storage.SeedTx) error {
		summary = Summary{}
		steps := []func() (TableSummary, error){
			func() (TableSummary, error) { return insertBatches(ctx, l, fileCircuits, ds.circuits, tx.InsertCircuits, bar) },
			func() (TableSummary, error) {
				return insertBatches(ctx, l, fileConstructors, ds.constructors, tx.InsertConstructors, bar)
			},
			func() (TableSummary, error) { return insertBatches(ctx, l, fileDrivers, ds.drivers, tx.InsertDrivers, bar) },
			func() (TableSummary, error) { return insertBatches(ctx, l, fileRaces, ds.races, tx.InsertRaces, bar) },
			func() (TableSummary, error) { return insertBatches(ctx, l, fileResults, ds.results, tx.InsertResults, bar) },
			func() (TableSummary, error) {
				return insertBatches(ctx, l, fileQualifying, ds.qualifying, tx.InsertQualifyingResults, bar)
			},
			func() (TableSummary, error) { return insertBatches(ctx, l, filePitStops, ds.pitStops, tx.InsertPitStops, bar) },
		}
		for _, step := range steps {
			ts, err := step()
			if err != nil {
				return err
			}
			ts.Skipped = ds.skipped[ts.File]
			summary.Tables = append(summary.Tables, ts)
		}
		return nil
	})
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		l.logger.Error("data import failed, nothing was written", "error", err)
		return Summary{}, err
	}

	l.logger.Info("data import completed", "written", summary.Written())
	return summary, nil
}

// readAll parses the CSV files concurrently. The result is indexed like
// sourceFiles; a missing optional file yields nil.
func (l *Loader) readAll(ctx context.Context) ([][]record, error) {
	out := make([][]record, len(sourceFiles))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parseConcurrency)
	for i, src := range sourceFiles {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			path := filepath.Join(l.dataDir, src.name)
			recs, err := readTable(path)
			switch {
			case errors.Is(err, fs.ErrNotExist) && src.optional:
				l.logger.Warn("optional seed file not found, skipping", "file", src.name)
				return nil
			case errors.Is(err, fs.ErrNotExist):
				return goerr.Wrap(ErrMissingFile, "reading seed files", goerr.V("file", path))
			case err != nil:
				return goerr.Wrap(err, "parsing seed file", goerr.V("file", path))
			}
			l.logger.Info("parsed seed file", "file", src.name, "records", len(recs))
			out[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (l *Loader) progressBar(total int) *progressbar.ProgressBar {
	if l.opts.Progress == nil || total == 0 {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(l.opts.Progress),
		progressbar.OptionSetDescription("seeding"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

func insertBatches[T any](
	ctx context.Context,
	l *Loader,
	file string,
	rows []T,
	insert func(context.Context, []T) (int, error),
	bar *progressbar.ProgressBar,
) (TableSummary, error) {
	ts := TableSummary{File: file, Rows: len(rows)}
	size := l.opts.BatchSize
	batches := (len(rows) + size - 1) / size

	for b := 0; b < batches; b++ {
		start := b * size
		end := min(start+size, len(rows))
		n, err := insert(ctx, rows[start:end])
		if err != nil {
			return ts, goerr.Wrap(err, "inserting batch", goerr.V("file", file), goerr.V("batch", b+1))
		}
		ts.Written += n
		l.logger.Info("batch written", "file", file, "batch", b+1, "batches", batches,
			"records", end-start, "created", n, "duplicates", end-start-n)
		if bar != nil {
			_ = bar.Add(end - start)
		}
	}
	return ts, nil
}
