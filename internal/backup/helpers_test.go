package backup

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/catactl/catactl/internal/engine"
	"github.com/catactl/catactl/internal/engine/archivers"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

const (
	numSubdirsInSave  = 7
	numFilesPerSubdir = 11
)

func generateContent(n int) string {
	return fmt.Sprintf("file %d 😃", n)
}

// saveTree is a fake install with a populated save directory.
type saveTree struct {
	root  string
	files map[string]string
	bytes int64
}

func newSaveTree(t *testing.T) saveTree {
	t.Helper()
	root := filepath.Join(t.TempDir(), "installs", "fake_build")
	tree := saveTree{root: root, files: make(map[string]string)}

	for i := range numSubdirsInSave {
		dir := filepath.Join(root, DefaultSaveDir, strconv.Itoa(i))
		require.NoError(t, os.MkdirAll(dir, 0o755))
		for j := range numFilesPerSubdir {
			content := generateContent(len(tree.files))
			require.NoError(t, os.WriteFile(filepath.Join(dir, strconv.Itoa(j)), []byte(content), 0o644))
			tree.files[fmt.Sprintf("%s/%d/%d", DefaultSaveDir, i, j)] = content
			tree.bytes += int64(len(content))
		}
	}

	return tree
}

func (s saveTree) path(rel string) string {
	return filepath.Join(s.root, filepath.FromSlash(rel))
}

// readTree returns every regular file under dir keyed by its slash path relative to root.
func readTree(t *testing.T, root, dir string) map[string]string {
	t.Helper()
	found := make(map[string]string)
	err := filepath.WalkDir(filepath.Join(root, dir), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel := lo.Must(filepath.Rel(root, path))
		found[filepath.ToSlash(rel)] = string(lo.Must(os.ReadFile(path)))
		return nil
	})
	require.NoError(t, err)
	return found
}

// writeContainer writes a container whose parts hold the given files, in order.
func writeContainer(t *testing.T, path string, parts ...map[string]string) {
	t.Helper()
	payloads := make([][]byte, 0, len(parts))
	for _, files := range parts {
		payloads = append(payloads, gzipChunk(t, files))
	}
	writeParts(t, path, payloads...)
}

// writeParts writes already compressed gzip chunks as a container.
func writeParts(t *testing.T, path string, payloads ...[]byte) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()

	cw := archivers.NewContainerWriter(f)
	for i, payload := range payloads {
		require.NoError(t, cw.Append(archivers.PartName(i+1, archivers.CompressionGzip), payload))
	}
	require.NoError(t, cw.Close())
}

func gzipChunk(t *testing.T, files map[string]string) []byte {
	t.Helper()
	archiver, err := archivers.NewTarArchiver("gzip")
	require.NoError(t, err)

	// Deterministic entry order inside the chunk.
	names := lo.Keys(files)
	slices.Sort(names)
	for _, name := range names {
		content := files[name]
		entry := engine.FileEntry{Name: name, Size: int64(len(content)), Mode: 0o644, ModTime: time.Now()}
		require.NoError(t, archiver.AddFile(t.Context(), entry, strings.NewReader(content)))
	}
	payload, err := archiver.Close()
	require.NoError(t, err)
	return payload
}
