package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/streamsim/batchfeed/feed"
	"github.com/streamsim/batchfeed/feed/tracker"
)

var verifyPaths pathFlags

// verifyCmd reconciles the tracker log with the published artifacts
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Cross-check the tracker log against the output directory",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		cfg, err := verifyPaths.resolve(cmd.Flags())
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		report, err := verifyFeed(cfg.OutputDir, cfg.TrackerPath, os.Stdout)
		if err != nil {
			logrus.Fatalf("Verify failed: %v", err)
		}
		if !report.Consistent() {
			os.Exit(1)
		}
	},
}

// verifyFeed reads the tracker log, reconciles it with outputDir and prints
// the report to w.
func verifyFeed(outputDir, trackerPath string, w io.Writer) (feed.AuditReport, error) {
	records, err := tracker.New(trackerPath).Read()
	if err != nil {
		return feed.AuditReport{}, err
	}
	report, err := feed.Reconcile(outputDir, records)
	if err != nil {
		return feed.AuditReport{}, err
	}
	printReport(w, report)
	return report, nil
}

func printReport(w io.Writer, r feed.AuditReport) {
	_, _ = fmt.Fprintf(w, "=== Feed Audit ===\n")
	_, _ = fmt.Fprintf(w, "Logged batches     : %s\n", humanize.Comma(int64(r.Logged)))
	_, _ = fmt.Fprintf(w, "Artifacts on disk  : %s (%s)\n", humanize.Comma(int64(r.Artifacts)), humanize.Bytes(uint64(r.Bytes)))
	for _, id := range r.MissingArtifacts {
		_, _ = fmt.Fprintf(w, "missing artifact   : batch %d logged but not published\n", id)
	}
	for _, id := range r.UnloggedArtifacts {
		_, _ = fmt.Fprintf(w, "unlogged artifact  : %s has no tracker record\n", feed.ArtifactName(id))
	}
	for _, m := range r.SizeMismatches {
		_, _ = fmt.Fprintf(w, "size mismatch      : batch %d logged %d records, found %d\n", m.BatchID, m.Logged, m.Found)
	}
	for _, p := range r.Problems {
		_, _ = fmt.Fprintf(w, "bad artifact       : batch %d: %s\n", p.BatchID, p.Reason)
	}
	if r.Consistent() {
		_, _ = fmt.Fprintf(w, "Status             : consistent\n")
	} else {
		_, _ = fmt.Fprintf(w, "Status             : INCONSISTENT\n")
	}
}

func init() {
	verifyPaths.register(verifyCmd.Flags())
}
