package archivers

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/catactl/catactl/internal/engine"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// CompressionType defines supported compression algorithms.
type CompressionType string

const (
	CompressionGzip CompressionType = "gzip"
	CompressionZstd CompressionType = "zstd"
	CompressionNone CompressionType = "none"
)

// Extension returns the file extension of a chunk archive using this compression.
func (c CompressionType) Extension() string {
	switch c {
	case CompressionGzip:
		return ".tgz"
	case CompressionZstd:
		return ".tar.zst"
	default:
		return ".tar"
	}
}

// CompressionFromName infers the compression of a chunk archive from its file name.
func CompressionFromName(name string) (CompressionType, error) {
	switch {
	case strings.HasSuffix(name, ".tgz"), strings.HasSuffix(name, ".tar.gz"):
		return CompressionGzip, nil
	case strings.HasSuffix(name, ".tar.zst"):
		return CompressionZstd, nil
	case strings.HasSuffix(name, ".tar"):
		return CompressionNone, nil
	default:
		return "", fmt.Errorf("unknown chunk archive type: %s", name)
	}
}

// TarArchiver creates tar archives with optional compression.
type TarArchiver struct {
	buf         *bytes.Buffer
	compressor  io.WriteCloser
	tarWriter   *tar.Writer
	compression CompressionType
	closed      bool
}

// NewTarArchiver creates a new tar archiver with the specified compression.
// Supported compression types: "gzip", "zstd", "none".
// If compression is empty, defaults to "gzip".
func NewTarArchiver(compression string) (engine.Archiver, error) {
	ct := CompressionType(compression)
	if ct == "" {
		ct = CompressionGzip
	}

	buf := new(bytes.Buffer)
	var compressor io.WriteCloser
	var err error

	switch ct {
	case CompressionGzip:
		compressor = gzip.NewWriter(buf)
	case CompressionZstd:
		compressor, err = zstd.NewWriter(buf)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd writer: %w", err)
		}
	case CompressionNone:
		compressor = &nopWriteCloser{buf}
	default:
		return nil, fmt.Errorf("unsupported compression type: %s", compression)
	}

	return &TarArchiver{
		buf:         buf,
		compressor:  compressor,
		tarWriter:   tar.NewWriter(compressor),
		compression: ct,
	}, nil
}

// AddFile streams one regular file into the tar archive.
func (a *TarArchiver) AddFile(ctx context.Context, entry engine.FileEntry, data io.Reader) error {
	if a.closed {
		return fmt.Errorf("archiver is closed")
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	header := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     entry.Name,
		Mode:     int64(entry.Mode.Perm()),
		Size:     entry.Size,
		ModTime:  entry.ModTime,
		Format:   tar.FormatPAX,
	}
	if header.Mode == 0 {
		header.Mode = 0o644
	}

	if err := a.tarWriter.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write tar header for %s: %w", entry.Name, err)
	}

	n, err := io.Copy(a.tarWriter, data)
	if err != nil {
		return fmt.Errorf("failed to write tar content for %s: %w", entry.Name, err)
	}
	if n != entry.Size {
		return fmt.Errorf("short read for %s: expected %d bytes, got %d", entry.Name, entry.Size, n)
	}

	return nil
}

// Close finalizes the tar archive and returns the complete archive payload.
func (a *TarArchiver) Close() ([]byte, error) {
	if a.closed {
		return nil, fmt.Errorf("archiver already closed")
	}
	a.closed = true

	// Close tar writer first
	if err := a.tarWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to close tar writer: %w", err)
	}

	if err := a.compressor.Close(); err != nil {
		return nil, fmt.Errorf("failed to close compressor: %w", err)
	}

	return a.buf.Bytes(), nil
}

// NewTarReader decompresses r according to compression and returns a tar reader over it.
// The returned close function reads the stream to its end, so that a corrupt
// compression trailer (gzip CRC32 and size, zstd frame checksum) is reported,
// then releases the decompressor.
func NewTarReader(r io.Reader, compression CompressionType) (*tar.Reader, func() error, error) {
	switch compression {
	case CompressionGzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		return tar.NewReader(gr), func() error {
			return errors.Join(drain(gr), gr.Close())
		}, nil
	case CompressionZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open zstd stream: %w", err)
		}
		return tar.NewReader(zr), func() error {
			defer zr.Close()
			return drain(zr)
		}, nil
	case CompressionNone:
		return tar.NewReader(r), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported compression type: %s", compression)
	}
}

// drain consumes what the tar reader left behind its end-of-archive marker.
func drain(r io.Reader) error {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return fmt.Errorf("corrupt chunk stream: %w", err)
	}
	return nil
}

// nopWriteCloser wraps a Writer to provide a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (n *nopWriteCloser) Close() error {
	return nil
}
