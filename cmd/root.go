package cmd

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/streamsim/batchfeed/feed"
	"github.com/streamsim/batchfeed/feed/dataset"
	"github.com/streamsim/batchfeed/feed/metrics"
	"github.com/streamsim/batchfeed/feed/tracker"
	"github.com/streamsim/batchfeed/feed/workspace"
)

var (
	// CLI flags for the arrival policy
	policyKind string // constant, random or increasing
	batchSize  int    // Constant size
	randomLow  int    // RandomRange lower bound
	randomHigh int    // RandomRange upper bound
	stepSize   int    // Increasing step

	// CLI flags for the run loop
	interval    time.Duration // Wait between ticks
	stopAfter   int           // Number of ticks
	seed        int64         // Seed for sizing and sampling; wall clock when unset
	envTag      string        // Environment tag written to the tracker
	logLevel    string        // Log verbosity level
	configPath  string        // Optional YAML run file
	metricsAddr string        // Address for the prometheus endpoint; empty disables it
	resetFirst  bool          // Clear the workspace before running

	// CLI flags for paths and the sample source
	outputDir   string // Directory artifacts are published to
	trackerPath string // JSON-lines run log
	archiveDir  string // Consumer archive cleared by reset
	datasetKind string // cifar10 or synthetic
	datasetPath string // CIFAR-10 binary directory
	datasetSize int    // Synthetic sample count
	labelNames  bool   // Emit CIFAR-10 class names instead of indices
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "batchfeed",
	Short: "Timed batch producer for streaming ML pipelines",
}

// runCmd publishes batches using parameters from a run file and CLI flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Publish batches to the output directory on a schedule",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()

		cfg, err := resolveRunConfig(cmd.Flags())
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		if resetFirst {
			if _, err := resetWorkspace(cfg); err != nil {
				logrus.Fatalf("Reset failed: %v", err)
			}
		}

		startTime := time.Now()
		summary, err := runFeed(cfg, metricsAddr)
		if err != nil {
			logrus.Fatalf("Run %s failed after %d batches: %v", summary.RunID, len(summary.Ticks), err)
		}
		logrus.Infof("Run %s published %d batches (%d records, %s) in %s",
			summary.RunID, len(summary.Ticks), summary.Records(),
			humanize.Bytes(uint64(summary.Bytes())), time.Since(startTime).Round(time.Millisecond))
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setLogLevel() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
}

// resolveRunConfig layers the run file (or the defaults) under every flag the
// user set explicitly, fills in a wall-clock seed when none was given, and
// validates the result.
func resolveRunConfig(flags *pflag.FlagSet) (feed.RunConfig, error) {
	cfg := feed.DefaultRunConfig()
	if configPath != "" {
		loaded, err := feed.LoadRunFile(configPath)
		if err != nil {
			return feed.RunConfig{}, err
		}
		cfg = *loaded
	}

	if flags.Changed("policy") {
		cfg.Policy.Kind = policyKind
	}
	if flags.Changed("size") {
		cfg.Policy.Size = batchSize
	}
	if flags.Changed("low") {
		cfg.Policy.Low = randomLow
	}
	if flags.Changed("high") {
		cfg.Policy.High = randomHigh
	}
	if flags.Changed("step") {
		cfg.Policy.Step = stepSize
	}
	if flags.Changed("interval") {
		cfg.Interval = interval
	}
	if flags.Changed("stop") {
		cfg.Stop = stopAfter
	}
	if flags.Changed("seed") {
		s := seed
		cfg.Seed = &s
	}
	if flags.Changed("env") {
		cfg.Env = envTag
	}
	if flags.Changed("output-dir") {
		cfg.OutputDir = outputDir
	}
	if flags.Changed("tracker") {
		cfg.TrackerPath = trackerPath
	}
	if flags.Changed("archive-dir") {
		cfg.ArchiveDir = archiveDir
	}
	if flags.Changed("dataset") {
		cfg.Dataset.Kind = datasetKind
	}
	if flags.Changed("dataset-path") {
		cfg.Dataset.Path = datasetPath
	}
	if flags.Changed("dataset-size") {
		cfg.Dataset.Size = datasetSize
	}
	if flags.Changed("label-names") {
		cfg.Dataset.LabelNames = labelNames
	}

	if cfg.Seed == nil {
		s := time.Now().UnixNano()
		cfg.Seed = &s
		logrus.Infof("No seed given; using wall clock seed %d", s)
	}
	if err := cfg.Validate(); err != nil {
		return feed.RunConfig{}, err
	}
	return cfg, nil
}

// newLoader returns the sample loader selected by the dataset config.
func newLoader(d feed.DatasetConfig, seed int64) (feed.SampleLoader, error) {
	switch d.Kind {
	case feed.DatasetCIFAR10:
		return dataset.CIFAR10{LabelNames: d.LabelNames}, nil
	case feed.DatasetSynthetic:
		size := d.Size
		if size == 0 {
			size = 600
		}
		return dataset.Synthetic{Size: size, Seed: seed}, nil
	default:
		return nil, fmt.Errorf("%w: unknown dataset kind %q; valid: cifar10, synthetic", feed.ErrInvalidConfig, d.Kind)
	}
}

// runFeed loads the pool and runs the scheduler to completion. When addr is
// non-empty the run's metrics are served there for the duration of the run.
func runFeed(cfg feed.RunConfig, addr string) (feed.RunSummary, error) {
	policy, err := cfg.Policy.Build()
	if err != nil {
		return feed.RunSummary{}, err
	}
	loader, err := newLoader(cfg.Dataset, *cfg.Seed)
	if err != nil {
		return feed.RunSummary{}, err
	}
	pool, err := feed.LoadPool(loader, cfg.Dataset.Path)
	if err != nil {
		return feed.RunSummary{}, fmt.Errorf("loading samples: %w", err)
	}
	logrus.Infof("Loaded %d samples from %s dataset", pool.Len(), cfg.Dataset.Kind)

	for _, dir := range []string{cfg.OutputDir, filepath.Dir(cfg.TrackerPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return feed.RunSummary{}, fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	var opts []feed.Option
	if addr != "" {
		rec := metrics.NewRecorder()
		stop, err := serveMetrics(addr, rec)
		if err != nil {
			return feed.RunSummary{}, err
		}
		defer stop()
		opts = append(opts, feed.WithMetrics(rec))
	}

	s, err := feed.NewScheduler(feed.SchedulerConfig{
		Policy:   policy,
		Interval: cfg.Interval,
		Stop:     cfg.Stop,
		Env:      cfg.Env,
		Seed:     *cfg.Seed,
	}, pool, feed.NewEmitter(cfg.OutputDir), tracker.New(cfg.TrackerPath), opts...)
	if err != nil {
		return feed.RunSummary{}, err
	}
	return s.Run()
}

// serveMetrics starts the prometheus endpoint and returns its shutdown func.
func serveMetrics(addr string, rec *metrics.Recorder) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening for metrics on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", rec.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Warnf("Metrics server stopped: %v", err)
		}
	}()
	logrus.Infof("Serving metrics on http://%s/metrics", ln.Addr())
	return func() { _ = srv.Close() }, nil
}

// resetWorkspace clears the paths named by cfg.
func resetWorkspace(cfg feed.RunConfig) (workspace.Result, error) {
	ws := workspace.Workspace{OutputDir: cfg.OutputDir, TrackerPath: cfg.TrackerPath, ArchiveDir: cfg.ArchiveDir}
	return ws.Reset()
}

// registerRunFlags binds the run flags to fs, resetting each to its default.
func registerRunFlags(fs *pflag.FlagSet) {
	defaults := feed.DefaultRunConfig()

	fs.StringVar(&configPath, "config", "", "YAML run file; explicit flags override its values")
	fs.StringVar(&metricsAddr, "metrics-addr", "", "Serve prometheus metrics on this address during the run")
	fs.BoolVar(&resetFirst, "reset", false, "Clear the output directory, tracker log and archive before running")

	// Arrival policy
	fs.StringVar(&policyKind, "policy", defaults.Policy.Kind, "Arrival policy (constant, random, increasing)")
	fs.IntVar(&batchSize, "size", defaults.Policy.Size, "Batch size for the constant policy")
	fs.IntVar(&randomLow, "low", defaults.Policy.Low, "Smallest batch for the random policy")
	fs.IntVar(&randomHigh, "high", defaults.Policy.High, "Largest batch for the random policy")
	fs.IntVar(&stepSize, "step", defaults.Policy.Step, "Per-tick growth for the increasing policy")

	// Run loop
	fs.DurationVar(&interval, "interval", defaults.Interval, "Wait between batches")
	fs.IntVar(&stopAfter, "stop", defaults.Stop, "Number of batches to publish")
	fs.Int64Var(&seed, "seed", 0, "Seed for batch sizing and sampling (default: wall clock)")
	fs.StringVar(&envTag, "env", defaults.Env, "Environment tag written to every tracker record")

	// Paths and sample source
	fs.StringVar(&outputDir, "output-dir", defaults.OutputDir, "Directory batches are published to")
	fs.StringVar(&trackerPath, "tracker", defaults.TrackerPath, "JSON-lines tracker log")
	fs.StringVar(&archiveDir, "archive-dir", defaults.ArchiveDir, "Consumer archive cleared by --reset")
	fs.StringVar(&datasetKind, "dataset", defaults.Dataset.Kind, "Sample source (cifar10, synthetic)")
	fs.StringVar(&datasetPath, "dataset-path", defaults.Dataset.Path, "Directory holding the CIFAR-10 binary batches")
	fs.IntVar(&datasetSize, "dataset-size", 0, "Sample count for the synthetic dataset (default 600)")
	fs.BoolVar(&labelNames, "label-names", false, "Write CIFAR-10 class names instead of label indices")
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
	registerRunFlags(runCmd.Flags())

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(verifyCmd)
}
