package runner

import (
	"context"
	"errors"
	"fmt"
	"io"

	v1 "github.com/catactl/catactl/apis/v1"
	"github.com/catactl/catactl/internal/backup"
	"github.com/catactl/catactl/internal/engine"
	"github.com/catactl/catactl/internal/engine/sinks"
	"github.com/samber/do/v2"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Runner executes catactl operations against one install.
type Runner struct {
	logger   *zap.Logger
	fs       afero.Fs
	layout   Layout
	manager  *backup.Manager
	injector *do.RootScope
	mirrors  Mirrors
}

func New(ctx context.Context, logger *zap.Logger, fs afero.Fs, cfg v1.Config, options ...backup.Option) (*Runner, error) {
	logger.Info("creating runner", zap.String("app_root", cfg.AppRoot), zap.String("install", cfg.Install))

	injector := BuildContainer(ctx, logger, fs, cfg, options...)

	layout, err := do.Invoke[Layout](injector)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve layout: %w", err)
	}

	if err := layout.EnsureDirs(fs); err != nil {
		return nil, err
	}

	manager, err := do.Invoke[*backup.Manager](injector)
	if err != nil {
		return nil, fmt.Errorf("failed to create backup manager: %w", err)
	}

	logger.Debug("resolved layout",
		zap.String("backup_dir", layout.BackupDir),
		zap.String("install_root", layout.InstallRoot),
	)

	return &Runner{
		logger:   logger,
		fs:       fs,
		layout:   layout,
		manager:  manager,
		injector: injector,
	}, nil
}

// Layout returns the resolved directories.
func (r *Runner) Layout() Layout {
	return r.layout
}

// Backup creates a backup of the install's save directory and copies it to
// every configured mirror. A mirror failure is returned alongside the report;
// the local backup is kept.
func (r *Runner) Backup(ctx context.Context, label string) (backup.Report, error) {
	report, err := r.manager.Backup(ctx, r.layout.InstallRoot, label)
	if err != nil {
		return backup.Report{}, err
	}

	if err := r.mirror(ctx, report); err != nil {
		return report, err
	}

	return report, nil
}

func (r *Runner) mirror(ctx context.Context, report backup.Report) error {
	mirrors, err := do.Invoke[Mirrors](r.injector)
	if err != nil {
		return fmt.Errorf("failed to build mirrors: %w", err)
	}
	r.mirrors = mirrors

	fileName := r.manager.Catalog().FileName(report.ID)

	var errs error
	for _, sink := range mirrors {
		if err := r.copyTo(ctx, sink, report.Path, fileName); err != nil {
			errs = errors.Join(errs, fmt.Errorf("failed to mirror backup %s to %s: %w", report.ID, sink.Name(), err))
			continue
		}
		r.logger.Info("mirrored backup", zap.String("backup_id", report.ID), zap.String("sink", sink.Name()))
	}

	return errs
}

func (r *Runner) copyTo(ctx context.Context, sink engine.Sink, src, name string) error {
	f, err := r.fs.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	return sink.Write(ctx, name, f)
}

// Restore replaces the install's save directory with backup id (or "latest").
func (r *Runner) Restore(ctx context.Context, id string) error {
	return r.manager.Restore(ctx, r.layout.InstallRoot, id)
}

// List returns the backup identifiers, oldest first.
func (r *Runner) List() ([]string, error) {
	return r.manager.Catalog().List()
}

// Export streams the raw container archive of backup id (or "latest") to w.
func (r *Runner) Export(ctx context.Context, id string, w io.Writer) error {
	catalog := r.manager.Catalog()
	resolved, err := catalog.Resolve(id)
	if err != nil {
		return err
	}

	sink := sinks.NewStreamSink(w)
	if err := r.copyTo(ctx, sink, catalog.Path(resolved), catalog.FileName(resolved)); err != nil {
		return fmt.Errorf("failed to export backup %s: %w", resolved, err)
	}

	r.logger.Debug("exported backup", zap.String("backup_id", resolved))
	return sink.Close(ctx)
}

// Close releases the mirror sinks, if any were built.
func (r *Runner) Close(ctx context.Context) error {
	var errs error
	for _, sink := range r.mirrors {
		if err := sink.Close(ctx); err != nil {
			errs = errors.Join(errs, fmt.Errorf("failed to close sink %s: %w", sink.Name(), err))
		}
	}
	return errs
}
