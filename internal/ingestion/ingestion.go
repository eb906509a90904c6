package ingestion

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/guttosm/stockmeter/internal/logger"
	"github.com/guttosm/stockmeter/internal/storage"
	"github.com/guttosm/stockmeter/internal/validation"
)

const (
	fileSuffix       = ".csv"
	defaultBatchSize = 5000
	maxParallel      = 8
)

// repoCtor is an indirection for creating the repository; tests can override this.
var repoCtor = func(db *sql.DB) storage.BarsRepository {
	return storage.NewBarsRepository(db)
}

// BarsRecorder counts loaded bars per symbol. internal/metrics implements it.
type BarsRecorder interface {
	RecordBarsIngested(symbol string, n int)
}

// Options tunes ProcessDirectory.
//
// Fields:
//   - Parallel: files processed at once; 0 means min(8, NumCPU).
//   - Force: reload files already in ingestion_log, replacing the stock's bars.
//   - BatchSize: rows per COPY; 0 means 5000.
//   - Recorder: optional bar counter.
type Options struct {
	Parallel  int
	Force     bool
	BatchSize int
	Recorder  BarsRecorder
}

// ProcessDirectory loads every "<SYMBOL>.csv" file in dir into the daily table.
//
// Behavior:
//   - The symbol comes from the file name, upper-cased; the stock is created when missing.
//   - Files already recorded in ingestion_log are skipped unless opts.Force is set.
//   - Each file loads in one transaction together with its ingestion_log entry,
//     so a failed file leaves no bars behind and is retried on the next run.
//   - Files run in parallel; the first failure cancels the rest and is returned.
//
// Returns:
//   - error: first error encountered (if any).
func ProcessDirectory(ctx context.Context, dir string, db *sql.DB, opts Options) error {
	repo := repoCtor(db)

	files, err := barFiles(dir)
	if err != nil {
		return err
	}

	batch := defaultBatchSize
	if opts.BatchSize > 0 {
		batch = opts.BatchSize
	}

	workers := maxParallel
	if opts.Parallel > 0 {
		workers = min(opts.Parallel, maxParallel)
	} else if c := runtime.NumCPU(); c < workers {
		workers = c
	}

	logger.L().Info().Int("files", len(files)).Str("dir", dir).Int("max_parallel", workers).Bool("force", opts.Force).Msg("ingestion start")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, f := range files {
		g.Go(func() error {
			start := time.Now()
			base := filepath.Base(f)
			log := logger.L().With().Int("idx", i+1).Int("total", len(files)).Str("file", base).Logger()

			symbol, err := validation.ParseSymbol(strings.TrimSuffix(base, filepath.Ext(base)))
			if err != nil {
				return fmt.Errorf("file %s: invalid symbol in filename", base)
			}

			exists, err := repo.HasIngestion(gctx, base)
			if err != nil {
				log.Error().Err(err).Msg("check ingestion log failed")
				return fmt.Errorf("file %s: check ingestion log: %w", base, err)
			}
			if exists && !opts.Force {
				log.Info().Bool("skipped", true).Msg("already ingested")
				return nil
			}

			stockID, err := repo.UpsertStock(gctx, symbol, symbol)
			if err != nil {
				log.Error().Err(err).Msg("upsert stock failed")
				return fmt.Errorf("file %s: upsert stock: %w", base, err)
			}
			load, err := repo.BeginLoad(gctx, stockID, exists)
			if err != nil {
				log.Error().Err(err).Msg("begin load failed")
				return fmt.Errorf("file %s: begin load: %w", base, err)
			}
			defer func() { _ = load.Rollback() }()

			total, err := parseAndPersistFile(gctx, f, load, batch)
			if err != nil {
				log.Error().Dur("elapsed", time.Since(start)).Err(err).Msg("file failed")
				return fmt.Errorf("file %s: %w", base, err)
			}
			if err := load.Commit(gctx, base, symbol, total); err != nil {
				log.Error().Err(err).Msg("commit load failed")
				return fmt.Errorf("file %s: commit load: %w", base, err)
			}
			if opts.Recorder != nil {
				opts.Recorder.RecordBarsIngested(symbol, total)
			}

			log.Info().Str("symbol", symbol).Int("rows", total).Dur("elapsed", time.Since(start)).Msg("file done")
			return nil
		})
	}

	return g.Wait()
}

// barFiles lists the *.csv files of dir in name order.
func barFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), fileSuffix) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no %s files found in %s", fileSuffix, dir)
	}
	sort.Strings(files)
	return files, nil
}
