package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamsim/batchfeed/feed"
	"github.com/streamsim/batchfeed/internal/testutil"
	"github.com/streamsim/batchfeed/feed/tracker"
)

// newRunFlags returns a fresh run flag set with every package flag var reset
// to its default, then applies args.
func newRunFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	registerRunFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

// syntheticRun returns a validated config for a synthetic run writing under t.TempDir().
func syntheticRun(t *testing.T, policy feed.PolicyConfig, stop int, seed int64) feed.RunConfig {
	t.Helper()
	root := t.TempDir()
	cfg := feed.DefaultRunConfig()
	cfg.Policy = policy
	cfg.Interval = 0
	cfg.Stop = stop
	cfg.Seed = &seed
	cfg.Env = "test_cpu"
	cfg.OutputDir = filepath.Join(root, "streams", "input")
	cfg.TrackerPath = filepath.Join(root, "logs", "tracker.json")
	cfg.ArchiveDir = filepath.Join(root, "streams", "archive")
	cfg.Dataset = feed.DatasetConfig{Kind: feed.DatasetSynthetic, Size: 60}
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestResolveRunConfig_NoFlags_UsesDefaults(t *testing.T) {
	// GIVEN no flags and no run file
	fs := newRunFlags(t)

	// WHEN the config is resolved
	cfg, err := resolveRunConfig(fs)
	require.NoError(t, err)

	// THEN the stock producer settings apply and a wall-clock seed is filled in
	assert.Equal(t, feed.PolicyIncreasing, cfg.Policy.Kind)
	assert.Equal(t, 5, cfg.Policy.Step)
	assert.Equal(t, 5*time.Second, cfg.Interval)
	assert.Equal(t, 16, cfg.Stop)
	assert.Equal(t, "streams/input/", cfg.OutputDir)
	assert.Equal(t, "logs/tracker.json", cfg.TrackerPath)
	assert.Equal(t, feed.DefaultEnv(), cfg.Env)
	require.NotNil(t, cfg.Seed)
}

func TestResolveRunConfig_FlagsOverrideRunFile(t *testing.T) {
	// GIVEN a run file selecting a constant policy
	path := filepath.Join(t.TempDir(), "feed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
policy:
  kind: constant
  size: 20
interval: 2s
stop: 4
seed: 9
env: ci_cpu
`), 0o644))

	// WHEN --size and --stop are set explicitly
	fs := newRunFlags(t, "--config", path, "--size", "30", "--stop", "7")
	cfg, err := resolveRunConfig(fs)
	require.NoError(t, err)

	// THEN explicit flags win and unset flags keep the run file values
	assert.Equal(t, feed.PolicyConstant, cfg.Policy.Kind)
	assert.Equal(t, 30, cfg.Policy.Size)
	assert.Equal(t, 7, cfg.Stop)
	assert.Equal(t, 2*time.Second, cfg.Interval)
	assert.Equal(t, "ci_cpu", cfg.Env)
	require.NotNil(t, cfg.Seed)
	assert.Equal(t, int64(9), *cfg.Seed)
}

func TestResolveRunConfig_SeedFlagZeroIsHonoured(t *testing.T) {
	fs := newRunFlags(t, "--seed", "0")
	cfg, err := resolveRunConfig(fs)
	require.NoError(t, err)
	require.NotNil(t, cfg.Seed)
	assert.Equal(t, int64(0), *cfg.Seed)
}

func TestResolveRunConfig_InvalidValues_Rejected(t *testing.T) {
	cases := map[string][]string{
		"unknown policy":    {"--policy", "poisson"},
		"zero stop":         {"--stop", "0"},
		"negative interval": {"--interval", "-1s"},
		"inverted range":    {"--policy", "random", "--low", "10", "--high", "5"},
		"zero size":         {"--policy", "constant", "--size", "0"},
		"unknown dataset":   {"--dataset", "mnist"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := resolveRunConfig(newRunFlags(t, args...))
			assert.ErrorIs(t, err, feed.ErrInvalidConfig)
		})
	}
}

func TestRunFeed_GoldenScenarios(t *testing.T) {
	for _, sc := range testutil.LoadGoldenDataset(t).Scenarios {
		t.Run(sc.Name, func(t *testing.T) {
			// GIVEN a synthetic run configured from the golden scenario
			cfg := syntheticRun(t, sc.Policy, sc.Stop, sc.Seed)

			// WHEN it runs to completion
			summary, err := runFeed(cfg, "")
			require.NoError(t, err)

			// THEN one tracker line and one artifact exist per tick, sized as expected
			records, err := tracker.New(cfg.TrackerPath).Read()
			require.NoError(t, err)
			require.Len(t, records, sc.Stop)
			require.Len(t, summary.Ticks, sc.Stop)
			assert.Len(t, testutil.ArtifactNames(t, cfg.OutputDir), sc.Stop)

			for i, rec := range records {
				assert.Equal(t, int64(i+1), rec.BatchID)
				assert.Equal(t, "test_cpu", rec.Env)
				if sc.Sizes != nil {
					assert.Equal(t, sc.Sizes[i], rec.BatchSize, "batch %d", rec.BatchID)
				} else {
					assert.GreaterOrEqual(t, rec.BatchSize, sc.MinSize)
					assert.LessOrEqual(t, rec.BatchSize, sc.MaxSize)
				}
				art, err := feed.ReadArtifact(filepath.Join(cfg.OutputDir, feed.ArtifactName(rec.BatchID)))
				require.NoError(t, err)
				assert.Len(t, art, rec.BatchSize)
			}
		})
	}
}

func TestRunFeed_SameSeed_SameSizes(t *testing.T) {
	policy := feed.PolicyConfig{Kind: feed.PolicyRandom, Low: 1, High: 50}
	sizes := func() []int {
		summary, err := runFeed(syntheticRun(t, policy, 8, 1234), "")
		require.NoError(t, err)
		out := make([]int, len(summary.Ticks))
		for i, tick := range summary.Ticks {
			out[i] = tick.Size
		}
		return out
	}
	assert.Equal(t, sizes(), sizes())
}

func TestRunFeed_ExistingArtifact_AbortsAfterLogging(t *testing.T) {
	// GIVEN batch_2.json already present in the output directory
	cfg := syntheticRun(t, feed.PolicyConfig{Kind: feed.PolicyConstant, Size: 2}, 3, 1)
	require.NoError(t, os.MkdirAll(cfg.OutputDir, 0o755))
	taken := filepath.Join(cfg.OutputDir, feed.ArtifactName(2))
	require.NoError(t, os.WriteFile(taken, []byte("[]"), 0o644))

	// WHEN the run reaches tick 2
	summary, err := runFeed(cfg, "")

	// THEN it fails with the collision, tick 2 is logged, and the file is untouched
	require.ErrorIs(t, err, feed.ErrArtifactExists)
	assert.Len(t, summary.Ticks, 1)
	records, err := tracker.New(cfg.TrackerPath).Read()
	require.NoError(t, err)
	assert.Len(t, records, 2)
	body, err := os.ReadFile(taken)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(body))
}

func TestRunFeed_CIFARPathMissing_Fails(t *testing.T) {
	cfg := syntheticRun(t, feed.PolicyConfig{Kind: feed.PolicyConstant, Size: 1}, 1, 1)
	cfg.Dataset = feed.DatasetConfig{Kind: feed.DatasetCIFAR10, Path: filepath.Join(t.TempDir(), "absent")}
	_, err := runFeed(cfg, "")
	assert.Error(t, err)
	_, statErr := os.Stat(cfg.TrackerPath)
	assert.True(t, os.IsNotExist(statErr), "no tick may be logged when the pool fails to load")
}

func TestRunFeed_WithMetricsAddr_Completes(t *testing.T) {
	cfg := syntheticRun(t, feed.PolicyConfig{Kind: feed.PolicyConstant, Size: 1}, 2, 1)
	_, err := runFeed(cfg, "127.0.0.1:0")
	require.NoError(t, err)
}

func TestSampleRunFile_Loads(t *testing.T) {
	// GIVEN the run file shipped in configs/
	cfg, err := feed.LoadRunFile(filepath.Join("..", "configs", "feed.yaml"))
	require.NoError(t, err)

	// THEN it describes the stock producer
	require.NoError(t, cfg.Validate())
	assert.Equal(t, feed.PolicyIncreasing, cfg.Policy.Kind)
	assert.Equal(t, 5*time.Second, cfg.Interval)
	assert.Equal(t, 16, cfg.Stop)
	assert.Nil(t, cfg.Seed)
}
