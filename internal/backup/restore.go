package backup

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/catactl/catactl/internal/engine/archivers"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	// StashSuffix is appended to the save directory name to form the stash path.
	StashSuffix = ".tmp"

	// DiscardSuffix marks a stash being deleted after a successful restore.
	DiscardSuffix = ".discard"
)

// RestoreEngine replaces a save directory with the content of a container
// archive. The old save is renamed aside first and only deleted once every
// entry has been extracted; on failure it is renamed back.
//
// A restore must not run concurrently with a backup or restore of the same
// install root.
type RestoreEngine struct {
	fs      afero.Fs
	logger  *zap.Logger
	saveDir string
}

func NewRestoreEngine(fs afero.Fs, logger *zap.Logger, saveDir string) *RestoreEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RestoreEngine{fs: fs, logger: logger, saveDir: saveDir}
}

// StashPath returns the stash directory used while restoring into installRoot.
func (e *RestoreEngine) StashPath(installRoot string) string {
	return filepath.Join(installRoot, e.saveDir+StashSuffix)
}

// Restore extracts the container archive at archivePath into installRoot.
//
// ctx is only honored before the existing save is stashed; once staging has
// begun the restore runs to commit or rollback.
func (e *RestoreEngine) Restore(ctx context.Context, installRoot, archivePath string) error {
	savePath := filepath.Join(installRoot, e.saveDir)
	stashPath := e.StashPath(installRoot)
	logger := e.logger.With(zap.String("archive", archivePath), zap.String("save", savePath))

	stale, err := afero.Exists(e.fs, stashPath)
	if err != nil {
		return fmt.Errorf("failed to check for stash %s: %w", stashPath, err)
	}
	if stale {
		return &UnresolvedPriorRestoreError{StashPath: stashPath, SavePath: savePath}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	archive, err := e.fs.Open(archivePath)
	if err != nil {
		return &RestoreFailedError{Archive: archivePath, Cause: fmt.Errorf("failed to open archive: %w", err)}
	}
	defer archive.Close()

	stashed, err := afero.Exists(e.fs, savePath)
	if err != nil {
		return fmt.Errorf("failed to check for save %s: %w", savePath, err)
	}
	if stashed {
		if err := e.fs.Rename(savePath, stashPath); err != nil {
			return &RestoreFailedError{Archive: archivePath, Cause: fmt.Errorf("failed to stash existing save: %w", err)}
		}
		logger.Debug("stashed existing save", zap.String("stash", stashPath))
	}

	stats, extractErr := e.extract(installRoot, archive)
	if extractErr != nil {
		logger.Error("restore failed, rolling back", zap.Error(extractErr))
		return &RestoreFailedError{
			Archive:     archivePath,
			Cause:       extractErr,
			RollbackErr: e.rollback(savePath, stashPath, stashed),
		}
	}

	if stashed {
		if err := e.discard(logger, savePath, stashPath); err != nil {
			return err
		}
	}

	logger.Info("restore complete", zap.Int("parts", stats.parts), zap.Int("files", stats.files))
	return nil
}

// rollback discards the partial save and puts the stash back. Without a stash
// there was no save before the restore, so none is left after it either.
func (e *RestoreEngine) rollback(savePath, stashPath string, stashed bool) error {
	if err := e.fs.RemoveAll(savePath); err != nil {
		return fmt.Errorf("failed to remove partial save %s: %w", savePath, err)
	}
	if !stashed {
		return nil
	}
	if err := e.fs.Rename(stashPath, savePath); err != nil {
		return fmt.Errorf("failed to move %s back to %s: %w", stashPath, savePath, err)
	}
	return nil
}

// discard drops the stash after a successful restore. The stash is renamed
// aside in one step before it is deleted; leftovers under the discard name are
// not a stash.
func (e *RestoreEngine) discard(logger *zap.Logger, savePath, stashPath string) error {
	discardPath := fmt.Sprintf("%s%s-%d", stashPath, DiscardSuffix, time.Now().UnixNano())

	if err := e.fs.Rename(stashPath, discardPath); err != nil {
		if rmErr := e.fs.RemoveAll(stashPath); rmErr != nil {
			return &StashNotDiscardedError{SavePath: savePath, StashPath: stashPath, Err: errors.Join(err, rmErr)}
		}
		return nil
	}

	if err := e.fs.RemoveAll(discardPath); err != nil {
		logger.Warn("previous save could not be fully removed", zap.String("path", discardPath), zap.Error(err))
	}
	return nil
}

type extractStats struct {
	parts int
	files int
}

func (e *RestoreEngine) extract(installRoot string, archive io.Reader) (extractStats, error) {
	var stats extractStats
	container := archivers.NewContainerReader(archive)

	for {
		name, payload, err := container.Next()
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil {
			return stats, err
		}

		files, err := e.extractChunk(installRoot, name, payload)
		if err != nil {
			return stats, fmt.Errorf("failed to extract %s: %w", name, err)
		}
		stats.parts++
		stats.files += files
	}
}

func (e *RestoreEngine) extractChunk(installRoot, name string, payload io.Reader) (files int, err error) {
	compression, err := archivers.CompressionFromName(name)
	if err != nil {
		return 0, err
	}

	tr, closeFn, err := archivers.NewTarReader(payload, compression)
	if err != nil {
		return 0, err
	}
	defer func() {
		err = errors.Join(err, closeFn())
	}()

	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return files, nil
		}
		if err != nil {
			return files, fmt.Errorf("failed to read chunk entry: %w", err)
		}

		target, err := e.targetPath(installRoot, header.Name)
		if err != nil {
			return files, err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := e.fs.MkdirAll(target, 0o755); err != nil {
				return files, fmt.Errorf("failed to create directory %s: %w", header.Name, err)
			}
		case tar.TypeReg:
			if err := e.writeFile(target, header, tr); err != nil {
				return files, fmt.Errorf("failed to restore %s: %w", header.Name, err)
			}
			files++
		default:
			e.logger.Debug("skipping unsupported entry", zap.String("name", header.Name), zap.Uint8("type", header.Typeflag))
		}
	}
}

// targetPath maps an entry name to a path inside the save directory, rejecting
// names that would land anywhere else.
func (e *RestoreEngine) targetPath(installRoot, name string) (string, error) {
	rel := filepath.Clean(filepath.FromSlash(name))
	prefix := e.saveDir + string(filepath.Separator)
	if filepath.IsAbs(rel) || (rel != e.saveDir && !strings.HasPrefix(rel, prefix)) {
		return "", fmt.Errorf("illegal path: %s", name)
	}
	return filepath.Join(installRoot, rel), nil
}

func (e *RestoreEngine) writeFile(target string, header *tar.Header, r io.Reader) error {
	if err := e.fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	mode := os.FileMode(header.Mode).Perm()
	if mode == 0 {
		mode = 0o644
	}

	f, err := e.fs.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}

	if _, err := io.Copy(f, r); err != nil {
		return errors.Join(err, f.Close())
	}
	if err := f.Close(); err != nil {
		return err
	}

	if err := e.fs.Chmod(target, mode); err != nil {
		return err
	}
	return e.fs.Chtimes(target, header.ModTime, header.ModTime)
}
