package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

var (
	verbosity  int
	dataDir    string
	noProgress bool
)

var rootCmd = &cobra.Command{
	Use:   "vsbisect",
	Short: "Find the VS Code build that introduced an issue through interactive bisection",
	Long:  ``,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().IntVarP(&verbosity, "verbosity", "v", 1, "Output verbosity, -1 mutes all output")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Directory holding cached builds and user data (default ~/.vsbisect)")
	rootCmd.PersistentFlags().BoolVar(&noProgress, "no-progress", false, "Do not render download progress bars")
}

// newLogger builds the session logger according to the verbosity flag.
func newLogger() *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&prefixed.TextFormatter{})

	if verbosity < 0 {
		log.SetOutput(io.Discard)
	} else if verbosity == 0 {
		log.SetLevel(logrus.WarnLevel)
	} else if verbosity == 1 {
		log.SetLevel(logrus.InfoLevel)
	} else if verbosity == 2 {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.TraceLevel)
	}
	return log
}
