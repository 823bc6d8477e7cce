package backup

import (
	"cmp"
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"runtime"
	"slices"

	"github.com/samber/lo"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Strategy selects how files are distributed across chunks.
type Strategy string

const (
	// StrategyShuffle shuffles the file list with a fixed seed and cuts it into
	// equal-count chunks.
	StrategyShuffle Strategy = "shuffle"
	// StrategyBalanced assigns files largest first to the lightest chunk.
	StrategyBalanced Strategy = "balanced"
)

const (
	// DefaultSeed is the shuffle seed. Changing it changes the layout of every
	// future backup of an unchanged save.
	DefaultSeed uint64 = 2

	DefaultWorkersPerCPU = 2
)

// WorkerCount returns the compression pool size for perCPU workers per CPU.
func WorkerCount(perCPU int) int {
	return max(1, perCPU*runtime.NumCPU())
}

// ChunkSize returns ceil(files/workers), never less than one.
func ChunkSize(files, workers int) int {
	if workers < 1 {
		workers = 1
	}
	return max(1, (files+workers-1)/workers)
}

type plannedFile struct {
	path string
	size int64
}

// Plan is the partition of a save tree into compression chunks.
type Plan struct {
	Workers int
	Files   int
	Bytes   int64
	// Chunks holds install-root-relative, slash-separated file paths.
	Chunks [][]string
}

// Planner lists the save tree and partitions it into chunks.
type Planner struct {
	fs       afero.Fs
	logger   *zap.Logger
	saveDir  string
	workers  int
	seed     uint64
	strategy Strategy
}

func NewPlanner(fs afero.Fs, logger *zap.Logger, saveDir string, workers int, seed uint64, strategy Strategy) *Planner {
	if strategy == "" {
		strategy = StrategyShuffle
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{
		fs:       fs,
		logger:   logger,
		saveDir:  saveDir,
		workers:  max(1, workers),
		seed:     seed,
		strategy: strategy,
	}
}

// Plan lists every regular file under <installRoot>/<saveDir> and splits the
// list into chunks. It fails with ErrEmptySaveTree when there is nothing to back up.
func (p *Planner) Plan(ctx context.Context, installRoot string) (Plan, error) {
	files, err := p.listFiles(ctx, installRoot)
	if err != nil {
		return Plan{}, err
	}

	var chunks [][]string
	switch p.strategy {
	case StrategyShuffle:
		chunks = p.shuffled(files)
	case StrategyBalanced:
		chunks = p.balanced(files)
	default:
		return Plan{}, fmt.Errorf("unknown planning strategy: %s", p.strategy)
	}

	plan := Plan{
		Workers: p.workers,
		Files:   len(files),
		Bytes:   lo.SumBy(files, func(f plannedFile) int64 { return f.size }),
		Chunks:  chunks,
	}

	p.logger.Debug("planned backup",
		zap.String("strategy", string(p.strategy)),
		zap.Int("files", plan.Files),
		zap.Int64("bytes", plan.Bytes),
		zap.Int("workers", plan.Workers),
		zap.Int("chunks", len(plan.Chunks)),
	)

	return plan, nil
}

func (p *Planner) listFiles(ctx context.Context, installRoot string) ([]plannedFile, error) {
	saveRoot := filepath.Join(installRoot, p.saveDir)

	info, err := p.fs.Stat(saveRoot)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrEmptySaveTree, saveRoot)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", saveRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrEmptySaveTree, saveRoot)
	}

	var files []plannedFile
	err = afero.Walk(p.fs, saveRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(installRoot, path)
		if err != nil {
			return fmt.Errorf("failed to relativize %s: %w", path, err)
		}
		files = append(files, plannedFile{path: filepath.ToSlash(rel), size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", saveRoot, err)
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptySaveTree, saveRoot)
	}

	// Walk order is lexical already; sort anyway so planning does not depend on it.
	slices.SortFunc(files, func(a, b plannedFile) int { return cmp.Compare(a.path, b.path) })

	return files, nil
}

func (p *Planner) shuffled(files []plannedFile) [][]string {
	paths := lo.Map(files, func(f plannedFile, _ int) string { return f.path })

	rng := rand.New(rand.NewPCG(p.seed, p.seed))
	rng.Shuffle(len(paths), func(i, j int) {
		paths[i], paths[j] = paths[j], paths[i]
	})

	return lo.Chunk(paths, ChunkSize(len(paths), p.workers))
}

func (p *Planner) balanced(files []plannedFile) [][]string {
	sorted := slices.Clone(files)
	slices.SortStableFunc(sorted, func(a, b plannedFile) int {
		return cmp.Compare(b.size, a.size)
	})

	bins := min(p.workers, len(sorted))
	chunks := make([][]string, bins)
	loads := make([]int64, bins)
	for _, f := range sorted {
		lightest := 0
		for i := 1; i < bins; i++ {
			if loads[i] < loads[lightest] {
				lightest = i
			}
		}
		chunks[lightest] = append(chunks[lightest], f.path)
		loads[lightest] += f.size
	}

	return chunks
}
