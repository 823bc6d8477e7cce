package archivers

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"time"
)

// PartName returns the container entry name of the k-th appended chunk.
func PartName(k int, compression CompressionType) string {
	return fmt.Sprintf("part-%d%s", k, compression.Extension())
}

// ContainerWriter appends compressed chunk payloads to an uncompressed tar stream.
// It is not safe for concurrent use; one goroutine owns it.
type ContainerWriter struct {
	tw     *tar.Writer
	now    func() time.Time
	parts  int
	closed bool
}

func NewContainerWriter(w io.Writer) *ContainerWriter {
	return &ContainerWriter{tw: tar.NewWriter(w), now: time.Now}
}

// Append writes payload as the next entry under name.
func (c *ContainerWriter) Append(name string, payload []byte) error {
	if c.closed {
		return fmt.Errorf("container writer is closed")
	}

	header := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(payload)),
		ModTime:  c.now(),
	}
	if err := c.tw.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write container header %s: %w", name, err)
	}
	if _, err := c.tw.Write(payload); err != nil {
		return fmt.Errorf("failed to write container entry %s: %w", name, err)
	}

	c.parts++
	return nil
}

// Parts returns the number of entries appended so far.
func (c *ContainerWriter) Parts() int {
	return c.parts
}

// Close writes the tar trailer. It does not close the underlying writer.
func (c *ContainerWriter) Close() error {
	if c.closed {
		return fmt.Errorf("container writer already closed")
	}
	c.closed = true

	if err := c.tw.Close(); err != nil {
		return fmt.Errorf("failed to close container: %w", err)
	}
	return nil
}

// ContainerReader walks a container archive front to back without seeking.
type ContainerReader struct {
	tr *tar.Reader
}

func NewContainerReader(r io.Reader) *ContainerReader {
	return &ContainerReader{tr: tar.NewReader(r)}
}

// Next advances to the next chunk entry. It returns io.EOF after the last one.
// The returned reader is only valid until the following call to Next.
func (c *ContainerReader) Next() (string, io.Reader, error) {
	for {
		header, err := c.tr.Next()
		if errors.Is(err, io.EOF) {
			return "", nil, io.EOF
		}
		if err != nil {
			return "", nil, fmt.Errorf("failed to read container entry: %w", err)
		}

		if header.Typeflag != tar.TypeReg {
			continue
		}

		return header.Name, c.tr, nil
	}
}
