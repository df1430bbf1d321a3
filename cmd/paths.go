package cmd

import (
	"github.com/spf13/pflag"

	"github.com/streamsim/batchfeed/feed"
)

// pathFlags are the workspace flags shared by reset, watch and verify.
type pathFlags struct {
	config      string
	outputDir   string
	trackerPath string
	archiveDir  string
}

func (p *pathFlags) register(fs *pflag.FlagSet) {
	defaults := feed.DefaultRunConfig()
	fs.StringVar(&p.config, "config", "", "YAML run file to read paths from; explicit flags override it")
	fs.StringVar(&p.outputDir, "output-dir", defaults.OutputDir, "Directory batches are published to")
	fs.StringVar(&p.trackerPath, "tracker", defaults.TrackerPath, "JSON-lines tracker log")
	fs.StringVar(&p.archiveDir, "archive-dir", defaults.ArchiveDir, "Consumer archive of processed batches")
}

// resolve returns the run config the paths come from, with explicit flags applied.
func (p *pathFlags) resolve(fs *pflag.FlagSet) (feed.RunConfig, error) {
	cfg := feed.DefaultRunConfig()
	if p.config != "" {
		loaded, err := feed.LoadRunFile(p.config)
		if err != nil {
			return feed.RunConfig{}, err
		}
		cfg = *loaded
	}
	if fs.Changed("output-dir") {
		cfg.OutputDir = p.outputDir
	}
	if fs.Changed("tracker") {
		cfg.TrackerPath = p.trackerPath
	}
	if fs.Changed("archive-dir") {
		cfg.ArchiveDir = p.archiveDir
	}
	return cfg, nil
}
