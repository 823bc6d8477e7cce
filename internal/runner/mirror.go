package runner

import (
	"context"
	"fmt"

	v1 "github.com/catactl/catactl/apis/v1"
	"github.com/catactl/catactl/internal/engine"
	"github.com/catactl/catactl/internal/engine/sinks"
	"github.com/spf13/afero"
)

// Mirrors are the sinks a finished backup is copied to.
type Mirrors []engine.Sink

// buildMirrors creates one sink per configured mirror destination.
func buildMirrors(ctx context.Context, fs afero.Fs, spec *v1.MirrorSpec) (Mirrors, error) {
	if spec == nil {
		return nil, nil
	}

	var mirrors Mirrors

	if spec.Folder != nil {
		sink, err := sinks.NewFilesystemSinkFromPath(fs, spec.Folder.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to build folder mirror: %w", err)
		}
		mirrors = append(mirrors, sink)
	}

	if spec.S3 != nil {
		sink, err := sinks.NewS3Sink(ctx, buildS3Config(spec.S3))
		if err != nil {
			return nil, fmt.Errorf("failed to build s3 mirror: %w", err)
		}
		mirrors = append(mirrors, sink)
	}

	return mirrors, nil
}

func buildS3Config(spec *v1.S3Spec) sinks.S3Config {
	cfg := sinks.S3Config{
		Bucket:         spec.Bucket,
		ForcePathStyle: spec.ForcePathStyle,
	}

	if spec.Region != nil {
		cfg.Region = *spec.Region
	}

	if spec.Endpoint != nil {
		cfg.Endpoint = *spec.Endpoint
	}

	if spec.Prefix != nil {
		cfg.Prefix = *spec.Prefix
	}

	if spec.Credentials != nil {
		cfg.AccessKeyID = spec.Credentials.AccessKeyID
		cfg.SecretAccessKey = spec.Credentials.SecretAccessKey
	}

	return cfg
}
