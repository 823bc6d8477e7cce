// Package backup creates and restores multi-part compressed archives of an
// install's save directory.
//
// A backup is a plain tar file ("container") whose entries part-1, part-2, ...
// are each a compressed tar of a subset of the save files. Chunks are
// compressed in parallel and appended in the order they finish. A restore
// streams the container front to back.
package backup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/catactl/catactl/internal/engine/archivers"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// DefaultSaveDir is the name of the save directory inside an install root.
const DefaultSaveDir = "save"

// Options configures a Manager. Zero values select the defaults.
type Options struct {
	SaveDir       string
	Suffix        string
	Compression   archivers.CompressionType
	WorkersPerCPU int
	Seed          *uint64
	Strategy      Strategy
}

// Report describes a finished backup.
type Report struct {
	ID       string
	Path     string
	Parts    int
	Files    int
	InBytes  int64
	OutBytes int64
	Elapsed  time.Duration
}

// Ratio returns the compression rate 1 - out/in.
func (r Report) Ratio() float64 {
	if r.InBytes == 0 {
		return 0
	}
	return 1 - float64(r.OutBytes)/float64(r.InBytes)
}

// Manager runs backups and restores against one backup directory.
type Manager struct {
	fs         afero.Fs
	logger     *zap.Logger
	opts       Options
	catalog    *Catalog
	planner    *Planner
	compressor ChunkCompressor
	progress   ProgressFunc
	restorer   *RestoreEngine
	now        func() time.Time
}

type Option func(*Manager)

// WithCompressor replaces the chunk compressor.
func WithCompressor(c ChunkCompressor) Option {
	return func(m *Manager) {
		m.compressor = c
	}
}

// WithProgress registers a callback invoked once per compressed chunk.
func WithProgress(fn ProgressFunc) Option {
	return func(m *Manager) {
		m.progress = fn
	}
}

// WithClock sets the clock used to timestamp identifiers.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

func NewManager(fs afero.Fs, logger *zap.Logger, backupDir string, opts Options, options ...Option) (*Manager, error) {
	if backupDir == "" {
		return nil, fmt.Errorf("backup directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if opts.SaveDir == "" {
		opts.SaveDir = DefaultSaveDir
	}
	if opts.SaveDir == "." || opts.SaveDir == ".." || strings.ContainsAny(opts.SaveDir, `/\`) {
		return nil, fmt.Errorf("invalid save directory %q: must be a single directory name", opts.SaveDir)
	}
	if opts.Compression == "" {
		opts.Compression = archivers.CompressionGzip
	}
	if _, err := archivers.NewTarArchiver(string(opts.Compression)); err != nil {
		return nil, err
	}
	if opts.WorkersPerCPU <= 0 {
		opts.WorkersPerCPU = DefaultWorkersPerCPU
	}
	seed := DefaultSeed
	if opts.Seed != nil {
		seed = *opts.Seed
	}

	m := &Manager{
		fs:       fs,
		logger:   logger,
		opts:     opts,
		catalog:  NewCatalog(fs, backupDir, opts.Suffix),
		planner:  NewPlanner(fs, logger.Named("planner"), opts.SaveDir, WorkerCount(opts.WorkersPerCPU), seed, opts.Strategy),
		restorer: NewRestoreEngine(fs, logger.Named("restore"), opts.SaveDir),
		now:      time.Now,
	}
	for _, o := range options {
		o(m)
	}
	if m.compressor == nil {
		m.compressor = NewCompressor(fs, opts.Compression)
	}

	return m, nil
}

// Catalog returns the catalog of the backup directory.
func (m *Manager) Catalog() *Catalog {
	return m.catalog
}

// Backup archives <installRoot>/<save> under a new identifier built from the
// current time and label.
func (m *Manager) Backup(ctx context.Context, installRoot, label string) (Report, error) {
	start := time.Now()
	id := NewIdentifier(m.now(), label)
	if err := ValidateIdentifier(id); err != nil {
		return Report{}, err
	}

	logger := m.logger.With(zap.String("backup_id", id))
	logger.Info("backing up", zap.String("install_root", installRoot))

	plan, err := m.planner.Plan(ctx, installRoot)
	if err != nil {
		return Report{}, err
	}

	if err := m.fs.MkdirAll(m.catalog.Dir(), 0o755); err != nil {
		return Report{}, fmt.Errorf("failed to create backup directory %s: %w", m.catalog.Dir(), err)
	}

	target := m.catalog.Path(id)
	scheduler := NewScheduler(m.fs, logger.Named("scheduler"), m.compressor, m.opts.Compression, m.progress)
	totals, err := scheduler.Run(ctx, target, installRoot, plan)
	if err != nil {
		var failed *BackupFailedError
		if errors.As(err, &failed) {
			failed.ID = id
		}
		return Report{}, err
	}

	report := Report{
		ID:       id,
		Path:     target,
		Parts:    totals.Parts,
		Files:    totals.Files,
		InBytes:  totals.InBytes,
		OutBytes: totals.OutBytes,
		Elapsed:  time.Since(start),
	}

	logger.Info("backup complete",
		zap.String("path", report.Path),
		zap.Int("parts", report.Parts),
		zap.Int("files", report.Files),
		zap.Int64("in_bytes", report.InBytes),
		zap.Int64("out_bytes", report.OutBytes),
		zap.Float64("compression_rate", report.Ratio()),
		zap.Duration("elapsed", report.Elapsed),
	)

	return report, nil
}

// Restore replaces <installRoot>/<save> with the content of backup id.
// id may be LatestAlias.
func (m *Manager) Restore(ctx context.Context, installRoot, id string) error {
	resolved, err := m.catalog.Resolve(id)
	if err != nil {
		return err
	}

	m.logger.Info("restoring", zap.String("backup_id", resolved), zap.String("install_root", installRoot))
	return m.restorer.Restore(ctx, installRoot, m.catalog.Path(resolved))
}
