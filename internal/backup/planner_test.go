package backup

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestChunkSize(t *testing.T) {
	tests := []struct {
		name    string
		files   int
		workers int
		want    int
	}{
		{name: "even split", files: 100, workers: 2, want: 50},
		{name: "remainder rounds up", files: 100, workers: 3, want: 34},
		{name: "fewer files than workers", files: 3, workers: 16, want: 1},
		{name: "no files", files: 0, workers: 4, want: 1},
		{name: "zero workers", files: 10, workers: 0, want: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ChunkSize(tt.files, tt.workers))
		})
	}
}

func TestWorkerCount(t *testing.T) {
	assert.GreaterOrEqual(t, WorkerCount(2), 2)
	assert.Equal(t, 1, WorkerCount(0))
}

func TestPlanner_CoversEveryFileOnce(t *testing.T) {
	tree := newSaveTree(t)

	for _, strategy := range []Strategy{StrategyShuffle, StrategyBalanced} {
		t.Run(string(strategy), func(t *testing.T) {
			planner := NewPlanner(afero.NewOsFs(), zap.NewNop(), DefaultSaveDir, 4, DefaultSeed, strategy)
			plan, err := planner.Plan(t.Context(), tree.root)
			require.NoError(t, err)

			assert.Equal(t, len(tree.files), plan.Files)
			assert.Equal(t, tree.bytes, plan.Bytes)
			assert.Equal(t, 4, plan.Workers)

			all := lo.Flatten(plan.Chunks)
			assert.ElementsMatch(t, lo.Keys(tree.files), all)
			for _, chunk := range plan.Chunks {
				assert.NotEmpty(t, chunk)
			}
		})
	}
}

func TestPlanner_ShuffleChunkSizes(t *testing.T) {
	tree := newSaveTree(t)
	planner := NewPlanner(afero.NewOsFs(), zap.NewNop(), DefaultSaveDir, 4, DefaultSeed, StrategyShuffle)

	plan, err := planner.Plan(t.Context(), tree.root)
	require.NoError(t, err)

	// 77 files over 4 workers: 20, 20, 20, 17
	require.Len(t, plan.Chunks, 4)
	for _, chunk := range plan.Chunks[:3] {
		assert.Len(t, chunk, 20)
	}
	assert.Len(t, plan.Chunks[3], 17)
}

func TestPlanner_Deterministic(t *testing.T) {
	tree := newSaveTree(t)

	for _, strategy := range []Strategy{StrategyShuffle, StrategyBalanced} {
		t.Run(string(strategy), func(t *testing.T) {
			planner := NewPlanner(afero.NewOsFs(), zap.NewNop(), DefaultSaveDir, 3, DefaultSeed, strategy)

			first, err := planner.Plan(t.Context(), tree.root)
			require.NoError(t, err)
			second, err := planner.Plan(t.Context(), tree.root)
			require.NoError(t, err)

			assert.Equal(t, first, second)
		})
	}
}

func TestPlanner_ShuffleDependsOnSeed(t *testing.T) {
	tree := newSaveTree(t)

	a, err := NewPlanner(afero.NewOsFs(), nil, DefaultSaveDir, 1, DefaultSeed, StrategyShuffle).Plan(t.Context(), tree.root)
	require.NoError(t, err)
	b, err := NewPlanner(afero.NewOsFs(), nil, DefaultSaveDir, 1, DefaultSeed+1, StrategyShuffle).Plan(t.Context(), tree.root)
	require.NoError(t, err)

	require.Len(t, a.Chunks, 1)
	require.Len(t, b.Chunks, 1)
	assert.NotEqual(t, a.Chunks[0], b.Chunks[0])
	assert.False(t, slices.IsSorted(a.Chunks[0]), "files should be shuffled")
}

func TestPlanner_BalancedSpreadsBytes(t *testing.T) {
	root := t.TempDir()
	sizes := []int{1000, 900, 500, 400, 300, 200, 100, 100}
	for i, size := range sizes {
		path := filepath.Join(root, DefaultSaveDir, "f"+string(rune('a'+i)))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
	}

	planner := NewPlanner(afero.NewOsFs(), nil, DefaultSaveDir, 2, DefaultSeed, StrategyBalanced)
	plan, err := planner.Plan(t.Context(), root)
	require.NoError(t, err)
	require.Len(t, plan.Chunks, 2)

	// Largest first into the lightest chunk, ties to the lower index.
	assert.Equal(t, []string{"save/fa", "save/fd", "save/fe", "save/fh"}, plan.Chunks[0])
	assert.Equal(t, []string{"save/fb", "save/fc", "save/ff", "save/fg"}, plan.Chunks[1])
}

func TestPlanner_EmptySaveTree(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, root string)
	}{
		{
			name:  "missing save directory",
			setup: func(t *testing.T, root string) {},
		},
		{
			name: "empty save directory",
			setup: func(t *testing.T, root string) {
				require.NoError(t, os.MkdirAll(filepath.Join(root, DefaultSaveDir), 0o755))
			},
		},
		{
			name: "only directories",
			setup: func(t *testing.T, root string) {
				require.NoError(t, os.MkdirAll(filepath.Join(root, DefaultSaveDir, "a", "b"), 0o755))
			},
		},
		{
			name: "save is a file",
			setup: func(t *testing.T, root string) {
				require.NoError(t, os.WriteFile(filepath.Join(root, DefaultSaveDir), []byte("x"), 0o644))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			tt.setup(t, root)

			planner := NewPlanner(afero.NewOsFs(), nil, DefaultSaveDir, 2, DefaultSeed, StrategyShuffle)
			_, err := planner.Plan(t.Context(), root)
			require.ErrorIs(t, err, ErrEmptySaveTree)
		})
	}
}

func TestPlanner_SkipsNonRegularFiles(t *testing.T) {
	root := t.TempDir()
	save := filepath.Join(root, DefaultSaveDir)
	require.NoError(t, os.MkdirAll(save, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(save, "world"), []byte("w"), 0o644))
	require.NoError(t, os.Symlink(filepath.Join(save, "world"), filepath.Join(save, "link")))

	plan, err := NewPlanner(afero.NewOsFs(), nil, DefaultSaveDir, 2, DefaultSeed, StrategyShuffle).Plan(t.Context(), root)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"save/world"}}, plan.Chunks)
}

func TestPlanner_UnknownStrategy(t *testing.T) {
	tree := newSaveTree(t)
	_, err := NewPlanner(afero.NewOsFs(), nil, DefaultSaveDir, 2, DefaultSeed, "alphabetical").Plan(t.Context(), tree.root)
	require.Error(t, err)
}
