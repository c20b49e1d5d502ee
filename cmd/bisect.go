package cmd

import (
	"context"

	"github.com/cwaldvogel/vsbisect/pkg/vsbisect"
	"github.com/pkg/browser"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var bisectFlags sessionFlags

var bisectCmd = &cobra.Command{
	Use:   "bisect",
	Short: "Interactively find the build that introduced an issue",
	Long: `Interactively find the build that introduced an issue.

The builds between the given good and bad boundaries are binary searched:
each step downloads, verifies and launches one build, then asks for a
good or bad verdict until two adjacent builds straddle the change that
introduced the issue. Boundaries may be full commit hashes or versions
like 1.87 and default to the full range of builds the update service
still serves.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger()
		cfg, err := bisectFlags.config(cmd, log)
		if err != nil {
			logrus.Fatalf("Failed to assemble the session config - %v", err)
		}

		session, err := newSession(cfg, newPromptOracle(log))
		if err != nil {
			fail(err)
		}
		outcome, err := session.Run(cmd.Context())
		if err != nil {
			fail(err)
		}

		report(log, outcome)
	},
}

// report prints the outcome and offers to open the commit range diff.
func report(log *logrus.Logger, outcome *vsbisect.Outcome) {
	log.Infof("Result: %s", outcome)

	if outcome.Good != nil && outcome.Bad != nil {
		log.Infof("Good build: %s", outcome.Good.Commit)
		log.Infof("Bad build:  %s", outcome.Bad.Commit)

		oracle := newPromptOracle(log)
		open, err := oracle.Confirm(context.Background(), "Open the changes between them in your browser")
		if err == nil && open {
			if err := browser.OpenURL(outcome.DiffURL()); err != nil {
				log.WithError(err).Warnf("Failed to open a browser, visit %s yourself", outcome.DiffURL())
			}
		}
	}
}

func init() {
	rootCmd.AddCommand(bisectCmd)

	bisectFlags.register(bisectCmd)
}
