package backup

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/catactl/catactl/internal/engine/archivers"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Progress is reported once per chunk, in completion order.
type Progress struct {
	// Part is the container entry number the chunk was written as; zero on error.
	Part  int
	Err   error
	Total int
}

type ProgressFunc func(Progress)

// Totals summarizes a finished container archive.
type Totals struct {
	Parts    int
	Files    int
	InBytes  int64
	OutBytes int64
}

// Scheduler compresses chunks on a bounded worker pool and streams the results
// into a container archive from a single writer goroutine.
//
// Finished chunks are held in memory until the writer appends them, so at most
// workers+1 payloads are alive at once. Saves far larger than available memory
// divided by that number will not back up.
type Scheduler struct {
	fs          afero.Fs
	logger      *zap.Logger
	compressor  ChunkCompressor
	compression archivers.CompressionType
	progress    ProgressFunc
}

func NewScheduler(fs afero.Fs, logger *zap.Logger, compressor ChunkCompressor, compression archivers.CompressionType, progress ProgressFunc) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if compression == "" {
		compression = archivers.CompressionGzip
	}
	return &Scheduler{
		fs:          fs,
		logger:      logger,
		compressor:  compressor,
		compression: compression,
		progress:    progress,
	}
}

type chunkResult struct {
	index int
	chunk Chunk
	err   error
}

// Run writes every chunk of plan into a new container archive at target. The
// archive is complete when Run returns nil; on any error it has been removed.
// A pre-existing file at target is never touched.
func (s *Scheduler) Run(ctx context.Context, target, installRoot string, plan Plan) (Totals, error) {
	f, err := s.fs.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return Totals{}, &BackupFailedError{Errors: []error{fmt.Errorf("failed to create container %s: %w", target, err)}}
	}

	results := make(chan chunkResult)
	go s.dispatch(ctx, installRoot, plan, results)

	container := archivers.NewContainerWriter(f)
	var totals Totals
	var errs []error

	for res := range results {
		if res.err != nil {
			s.logger.Error("chunk failed", zap.Int("chunk", res.index), zap.Error(res.err))
			errs = append(errs, res.err)
			s.report(Progress{Err: res.err, Total: len(plan.Chunks)})
			continue
		}

		// The container is discarded anyway; keep draining without writing.
		if len(errs) > 0 {
			continue
		}

		name := archivers.PartName(container.Parts()+1, s.compression)
		if err := container.Append(name, res.chunk.Payload); err != nil {
			errs = append(errs, err)
			s.report(Progress{Err: err, Total: len(plan.Chunks)})
			continue
		}

		totals.Parts = container.Parts()
		totals.Files += res.chunk.Files
		totals.InBytes += res.chunk.InBytes
		totals.OutBytes += res.chunk.OutBytes

		s.logger.Debug("appended chunk",
			zap.String("part", name),
			zap.Int("chunk", res.index),
			zap.Int("files", res.chunk.Files),
			zap.Int64("in_bytes", res.chunk.InBytes),
			zap.Int64("out_bytes", res.chunk.OutBytes),
		)
		s.report(Progress{Part: totals.Parts, Total: len(plan.Chunks)})
	}

	if err := s.finish(container, f, len(errs) == 0); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		if err := s.fs.Remove(target); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("failed to remove partial container %s: %w", target, err))
		}
		return Totals{}, &BackupFailedError{Errors: errs}
	}

	return totals, nil
}

// dispatch runs one compression task per chunk, at most plan.Workers at a
// time, and closes results once every task has reported.
func (s *Scheduler) dispatch(ctx context.Context, installRoot string, plan Plan, results chan<- chunkResult) {
	var g errgroup.Group
	g.SetLimit(max(1, plan.Workers))

	for i, files := range plan.Chunks {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results <- chunkResult{index: i, err: fmt.Errorf("chunk %d not started: %w", i, err)}
				return nil
			}

			chunk, err := s.compressor.Compress(ctx, installRoot, files)
			results <- chunkResult{index: i, chunk: chunk, err: err}
			return nil
		})
	}

	// Tasks report through results and never return an error.
	_ = g.Wait()
	close(results)
}

func (s *Scheduler) finish(container *archivers.ContainerWriter, f afero.File, ok bool) error {
	var errs []error
	if ok {
		if err := container.Close(); err != nil {
			errs = append(errs, err)
		} else if err := f.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("failed to sync container: %w", err))
		}
	}
	if err := f.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close container: %w", err))
	}
	return errors.Join(errs...)
}

func (s *Scheduler) report(p Progress) {
	if s.progress != nil {
		s.progress(p)
	}
}
