package engine

import (
	"context"
	"io"
	"io/fs"
	"time"
)

// FileEntry describes one file stored in an archive.
type FileEntry struct {
	// Name is the slash-separated path of the file inside the archive.
	Name    string
	Size    int64
	Mode    fs.FileMode
	ModTime time.Time
}

// Archiver collects files into an in-memory archive.
type Archiver interface {
	// AddFile adds a file to the archive. data must yield exactly entry.Size bytes.
	AddFile(ctx context.Context, entry FileEntry, data io.Reader) error

	// Close finalizes the archive and returns the complete archive payload.
	Close() ([]byte, error)
}
