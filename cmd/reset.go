package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var resetPaths pathFlags

// resetCmd clears the output directory, tracker log and archive
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear published batches, the tracker log and the consumer archive",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		cfg, err := resetPaths.resolve(cmd.Flags())
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		if _, err := resetWorkspace(cfg); err != nil {
			logrus.Fatalf("Reset failed: %v", err)
		}
	},
}

func init() {
	resetPaths.register(resetCmd.Flags())
}
