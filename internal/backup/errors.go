package backup

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptySaveTree is returned when the save directory is missing or holds no regular files.
	ErrEmptySaveTree = errors.New("save directory is missing or empty")

	// ErrUnresolvedPriorRestore matches UnresolvedPriorRestoreError.
	ErrUnresolvedPriorRestore = errors.New("a previous restore did not finish")

	ErrNoBackups         = errors.New("no backups found")
	ErrBackupNotFound    = errors.New("backup not found")
	ErrInvalidIdentifier = errors.New("invalid backup identifier")
)

// ChunkCompressionError reports the file that could not be added to a chunk.
type ChunkCompressionError struct {
	Path string
	Err  error
}

func (e *ChunkCompressionError) Error() string {
	return fmt.Sprintf("failed to compress %s: %v", e.Path, e.Err)
}

func (e *ChunkCompressionError) Unwrap() error {
	return e.Err
}

// BackupFailedError is returned when any chunk of a backup failed. The
// container archive has been removed when this error is returned.
type BackupFailedError struct {
	ID     string
	Errors []error
}

func (e *BackupFailedError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("backup %s failed with %d error(s): %s", e.ID, len(e.Errors), strings.Join(msgs, "; "))
}

func (e *BackupFailedError) Unwrap() []error {
	return e.Errors
}

// UnresolvedPriorRestoreError is returned when a stash directory from an
// interrupted restore is present. Nothing on disk was changed.
type UnresolvedPriorRestoreError struct {
	StashPath string
	SavePath  string
}

func (e *UnresolvedPriorRestoreError) Error() string {
	return fmt.Sprintf("refusing to restore: %s was left behind by an interrupted restore; "+
		"move %s out of the way and rename %s back to it, then retry", e.StashPath, e.SavePath, e.StashPath)
}

func (e *UnresolvedPriorRestoreError) Is(target error) bool {
	return target == ErrUnresolvedPriorRestore
}

// RestoreFailedError is returned when a restore was rolled back. Unless
// RollbackErr is set, the save directory holds its pre-restore content.
type RestoreFailedError struct {
	Archive     string
	Cause       error
	RollbackErr error
}

func (e *RestoreFailedError) Error() string {
	if e.RollbackErr != nil {
		return fmt.Sprintf("restore of %s failed: %v (rollback also failed: %v)", e.Archive, e.Cause, e.RollbackErr)
	}
	return fmt.Sprintf("restore of %s failed, previous save is intact: %v", e.Archive, e.Cause)
}

func (e *RestoreFailedError) Unwrap() error {
	return e.Cause
}

// StashNotDiscardedError is returned when a restore completed but the stash
// could not be removed. The save directory holds the restored data; the stash
// is obsolete and must be deleted by hand, not renamed back.
type StashNotDiscardedError struct {
	SavePath  string
	StashPath string
	Err       error
}

func (e *StashNotDiscardedError) Error() string {
	return fmt.Sprintf("restore completed and %s holds the restored save, but the previous save at %s could not be removed: %v; "+
		"delete %s, do not restore it", e.SavePath, e.StashPath, e.Err, e.StashPath)
}

func (e *StashNotDiscardedError) Unwrap() error {
	return e.Err
}
