package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/afero"
)

// DefaultSuffix is the file extension of container archives.
const DefaultSuffix = "zar"

// Catalog enumerates the backups stored in a backup directory.
type Catalog struct {
	fs     afero.Fs
	dir    string
	suffix string
}

func NewCatalog(fs afero.Fs, dir, suffix string) *Catalog {
	if suffix == "" {
		suffix = DefaultSuffix
	}
	return &Catalog{fs: fs, dir: dir, suffix: strings.TrimPrefix(suffix, ".")}
}

// Dir returns the backup directory.
func (c *Catalog) Dir() string {
	return c.dir
}

// FileName returns the archive file name for id.
func (c *Catalog) FileName(id string) string {
	return id + "." + c.suffix
}

// Path returns the archive path for id.
func (c *Catalog) Path(id string) string {
	return filepath.Join(c.dir, c.FileName(id))
}

// List returns the identifiers of every archive in the backup directory,
// oldest first. A missing directory yields an empty list.
func (c *Catalog) List() ([]string, error) {
	infos, err := afero.ReadDir(c.fs, c.dir)
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory %s: %w", c.dir, err)
	}

	ext := "." + c.suffix
	names := lo.FilterMap(infos, func(info os.FileInfo, _ int) (string, bool) {
		name := info.Name()
		return name, info.Mode().IsRegular() && len(name) > len(ext) && strings.HasSuffix(name, ext)
	})
	slices.Sort(names)

	return lo.Map(names, func(name string, _ int) string {
		return strings.TrimSuffix(name, ext)
	}), nil
}

// Latest returns the most recent identifier.
func (c *Catalog) Latest() (string, error) {
	ids, err := c.List()
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", fmt.Errorf("%w in %s", ErrNoBackups, c.dir)
	}
	return ids[len(ids)-1], nil
}

// Resolve maps LatestAlias to the latest identifier and checks that id exists.
func (c *Catalog) Resolve(id string) (string, error) {
	if id == LatestAlias {
		return c.Latest()
	}

	if err := ValidateIdentifier(id); err != nil {
		return "", err
	}

	info, err := c.fs.Stat(c.Path(id))
	if os.IsNotExist(err) {
		return "", fmt.Errorf("%w: %s", ErrBackupNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("failed to stat backup %s: %w", id, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s is not a file", ErrBackupNotFound, id)
	}

	return id, nil
}
