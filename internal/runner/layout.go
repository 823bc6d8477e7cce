package runner

import (
	"fmt"
	"path/filepath"

	v1 "github.com/catactl/catactl/apis/v1"
	"github.com/spf13/afero"
)

const (
	backupsDirName  = "backups"
	installsDirName = "installs"
)

// Layout holds the directories derived from the application root.
type Layout struct {
	AppRoot     string
	BackupDir   string
	InstallsDir string
	InstallRoot string
}

// NewLayout resolves the directories of cfg. A relative install is looked up
// under installs/.
func NewLayout(cfg v1.Config) (Layout, error) {
	if cfg.AppRoot == "" {
		return Layout{}, fmt.Errorf("app root is required")
	}
	if cfg.Install == "" {
		return Layout{}, fmt.Errorf("install is required")
	}

	appRoot, err := filepath.Abs(cfg.AppRoot)
	if err != nil {
		return Layout{}, fmt.Errorf("failed to resolve app root %s: %w", cfg.AppRoot, err)
	}

	layout := Layout{
		AppRoot:     appRoot,
		BackupDir:   filepath.Join(appRoot, backupsDirName),
		InstallsDir: filepath.Join(appRoot, installsDirName),
	}

	if filepath.IsAbs(cfg.Install) {
		layout.InstallRoot = filepath.Clean(cfg.Install)
	} else {
		layout.InstallRoot = filepath.Join(layout.InstallsDir, cfg.Install)
	}

	return layout, nil
}

// EnsureDirs creates the backup and installs directories.
func (l Layout) EnsureDirs(fs afero.Fs) error {
	for _, dir := range []string{l.BackupDir, l.InstallsDir} {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}
