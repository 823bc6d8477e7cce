package backup

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/catactl/catactl/internal/engine"
	"github.com/catactl/catactl/internal/engine/archivers"
	"github.com/spf13/afero"
)

// Chunk is one compressed chunk archive held in memory.
type Chunk struct {
	Payload []byte
	// InBytes is the sum of the original file sizes.
	InBytes int64
	// OutBytes is len(Payload).
	OutBytes int64
	Files    int
}

// ChunkCompressor turns a group of files into a single chunk archive.
type ChunkCompressor interface {
	Compress(ctx context.Context, installRoot string, files []string) (Chunk, error)
}

// Compressor is the ChunkCompressor backed by a tar archiver. Source files are
// only ever opened for reading.
type Compressor struct {
	fs          afero.Fs
	compression archivers.CompressionType
}

func NewCompressor(fs afero.Fs, compression archivers.CompressionType) *Compressor {
	if compression == "" {
		compression = archivers.CompressionGzip
	}
	return &Compressor{fs: fs, compression: compression}
}

// Compress archives files, given as absolute paths or paths relative to
// installRoot, under their install-root-relative names.
func (c *Compressor) Compress(ctx context.Context, installRoot string, files []string) (Chunk, error) {
	archiver, err := archivers.NewTarArchiver(string(c.compression))
	if err != nil {
		return Chunk{}, err
	}

	var chunk Chunk
	for _, file := range files {
		size, err := c.addFile(ctx, archiver, installRoot, file)
		if err != nil {
			return Chunk{}, &ChunkCompressionError{Path: file, Err: err}
		}
		chunk.InBytes += size
		chunk.Files++
	}

	payload, err := archiver.Close()
	if err != nil {
		return Chunk{}, fmt.Errorf("failed to finalize chunk: %w", err)
	}

	chunk.Payload = payload
	chunk.OutBytes = int64(len(payload))
	return chunk, nil
}

func (c *Compressor) addFile(ctx context.Context, archiver engine.Archiver, installRoot, file string) (size int64, err error) {
	rel, err := relativeTo(installRoot, file)
	if err != nil {
		return 0, err
	}

	f, err := c.fs.Open(filepath.Join(installRoot, rel))
	if err != nil {
		return 0, err
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("not a regular file")
	}

	entry := engine.FileEntry{
		Name:    filepath.ToSlash(rel),
		Size:    info.Size(),
		Mode:    info.Mode(),
		ModTime: info.ModTime(),
	}
	if err := archiver.AddFile(ctx, entry, f); err != nil {
		return 0, err
	}

	return info.Size(), nil
}

// relativeTo returns file relative to root, rejecting paths outside of it.
func relativeTo(root, file string) (string, error) {
	rel := filepath.FromSlash(file)
	if filepath.IsAbs(rel) {
		var err error
		rel, err = filepath.Rel(root, rel)
		if err != nil {
			return "", err
		}
	}
	rel = filepath.Clean(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("path is outside of %s", root)
	}
	return rel, nil
}
