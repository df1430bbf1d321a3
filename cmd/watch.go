package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/streamsim/batchfeed/feed/watch"
)

var (
	watchPaths    pathFlags
	watchCount    int  // Stop after this many artifacts; 0 watches until interrupted
	watchExisting bool // Report artifacts already present at start
)

// watchCmd follows the output directory the way a consumer would
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the output directory and check each batch as it is published",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		cfg, err := watchPaths.resolve(cmd.Flags())
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		seen, bad, err := watchFeed(ctx, cfg.OutputDir, watchExisting, watchCount)
		if err != nil {
			logrus.Fatalf("Watch failed: %v", err)
		}
		logrus.Infof("Watched %d batches, %d broke the artifact contract", seen, bad)
		if bad > 0 {
			os.Exit(1)
		}
	},
}

// watchFeed logs every artifact published to dir until ctx is done or count
// artifacts have been seen (count 0 means no limit). Returns the number seen
// and the number that failed the check.
func watchFeed(ctx context.Context, dir string, existing bool, count int) (int, int, error) {
	w, err := watch.New(dir, existing)
	if err != nil {
		return 0, 0, err
	}
	defer func() { _ = w.Close() }()

	seen, bad := 0, 0
	err = w.Run(ctx, func(ev watch.Event) bool {
		seen++
		entry := logrus.WithField("batch_id", ev.BatchID)
		if ev.Err != nil {
			bad++
			entry.Errorf("Bad batch: %v", ev.Err)
		} else {
			entry.Infof("Received batch %d: %d records", ev.BatchID, ev.Records)
		}
		return count == 0 || seen < count
	})
	return seen, bad, err
}

func init() {
	watchPaths.register(watchCmd.Flags())
	watchCmd.Flags().IntVar(&watchCount, "count", 0, "Stop after this many batches (0 = until interrupted)")
	watchCmd.Flags().BoolVar(&watchExisting, "existing", false, "Report batches already in the directory first")
}
