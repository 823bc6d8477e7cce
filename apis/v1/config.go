package v1

// Config is the catactl configuration document.
type Config struct {
	// AppRoot is the application directory holding backups/ and installs/.
	AppRoot string `yaml:"app_root" json:"app_root" validate:"required" template:""`

	// Install is a directory name under installs/ or an absolute install path.
	Install string `yaml:"install" json:"install" validate:"required" template:""`

	Backup *BackupSpec `yaml:"backup,omitempty" json:"backup,omitempty"`
	Mirror *MirrorSpec `yaml:"mirror,omitempty" json:"mirror,omitempty"`
}

// BackupSpec tunes how backups are produced. Unset fields use the defaults.
type BackupSpec struct {
	// SaveDir is the name of the save directory inside the install (default: save).
	SaveDir string `yaml:"save_dir,omitempty" json:"save_dir,omitempty" validate:"omitempty,excludesall=/\\,ne=.,ne=.."`

	// Suffix is the archive file extension without the dot (default: zar).
	Suffix string `yaml:"suffix,omitempty" json:"suffix,omitempty" validate:"omitempty,excludesall=/\\"`

	// Compression is one of gzip, zstd or none (default: gzip).
	Compression string `yaml:"compression,omitempty" json:"compression,omitempty" validate:"omitempty,oneof=gzip zstd none"`

	WorkersPerCPU int     `yaml:"workers_per_cpu,omitempty" json:"workers_per_cpu,omitempty" validate:"omitempty,min=1,max=64"`
	Seed          *uint64 `yaml:"seed,omitempty" json:"seed,omitempty"`

	// Strategy selects how files are grouped into chunks: shuffle or balanced (default: shuffle).
	Strategy string `yaml:"strategy,omitempty" json:"strategy,omitempty" validate:"omitempty,oneof=shuffle balanced"`
}

// MirrorSpec lists extra destinations a finished backup is copied to.
type MirrorSpec struct {
	Folder *FolderSpec `yaml:"folder,omitempty" json:"folder,omitempty"`
	S3     *S3Spec     `yaml:"s3,omitempty" json:"s3,omitempty"`
}

// FolderSpec mirrors backups into a local directory.
type FolderSpec struct {
	Path string `yaml:"path" json:"path" validate:"required" template:""`
}

// S3Spec mirrors backups into an S3-compatible bucket.
type S3Spec struct {
	Bucket         string         `yaml:"bucket" json:"bucket" validate:"required" template:""`
	Region         *string        `yaml:"region,omitempty" json:"region,omitempty" template:""`
	Endpoint       *string        `yaml:"endpoint,omitempty" json:"endpoint,omitempty" validate:"omitempty,url" template:""`
	Prefix         *string        `yaml:"prefix,omitempty" json:"prefix,omitempty" template:""`
	ForcePathStyle bool           `yaml:"force_path_style,omitempty" json:"force_path_style,omitempty"`
	Credentials    *S3Credentials `yaml:"credentials,omitempty" json:"credentials,omitempty"`
}

// S3Credentials are static credentials. Without them the default AWS chain is used.
type S3Credentials struct {
	AccessKeyID     string `yaml:"access_key_id" json:"access_key_id" validate:"required" template:""`
	SecretAccessKey string `yaml:"secret_access_key" json:"secret_access_key" validate:"required" template:""`
}
