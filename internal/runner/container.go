package runner

import (
	"context"

	v1 "github.com/catactl/catactl/apis/v1"
	"github.com/catactl/catactl/internal/backup"
	"github.com/catactl/catactl/internal/engine/archivers"
	"github.com/samber/do/v2"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// BuildContainer creates a new DI container with all dependencies registered.
// Dependencies are lazily initialized when first requested.
func BuildContainer(ctx context.Context, logger *zap.Logger, fs afero.Fs, cfg v1.Config, options ...backup.Option) *do.RootScope {
	injector := do.New()

	// Register eager values
	do.ProvideValue(injector, logger)
	do.ProvideValue(injector, fs)
	do.ProvideValue(injector, cfg)

	do.Provide(injector, func(i do.Injector) (Layout, error) {
		return NewLayout(do.MustInvoke[v1.Config](i))
	})

	do.Provide(injector, func(i do.Injector) (*backup.Manager, error) {
		layout, err := do.Invoke[Layout](i)
		if err != nil {
			return nil, err
		}
		log := do.MustInvoke[*zap.Logger](i)
		opts := backupOptions(do.MustInvoke[v1.Config](i).Backup)
		return backup.NewManager(do.MustInvoke[afero.Fs](i), log.Named("backup"), layout.BackupDir, opts, options...)
	})

	// Register mirrors (lazy - the S3 client resolves credentials when created)
	do.Provide(injector, func(i do.Injector) (Mirrors, error) {
		return buildMirrors(ctx, do.MustInvoke[afero.Fs](i), do.MustInvoke[v1.Config](i).Mirror)
	})

	return injector
}

func backupOptions(spec *v1.BackupSpec) backup.Options {
	if spec == nil {
		return backup.Options{}
	}
	return backup.Options{
		SaveDir:       spec.SaveDir,
		Suffix:        spec.Suffix,
		Compression:   archivers.CompressionType(spec.Compression),
		WorkersPerCPU: spec.WorkersPerCPU,
		Seed:          spec.Seed,
		Strategy:      backup.Strategy(spec.Strategy),
	}
}
