package cmd

import (
	"github.com/cwaldvogel/vsbisect/internal/server"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveFlags sessionFlags
var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Bisect with verdicts arriving over a REST API",
	Long: `Bisect with verdicts arriving over a REST API instead of the terminal.

The same session as the bisect command runs, but the build awaiting a
verdict is published on GET /build and judged through POST
/verdict/good, /verdict/bad, /verdict/retry, /verdict/retry-fresh or
/verdict/quit. Questions the session would ask interactively appear on
GET /prompt and are answered through POST /prompt/yes or /prompt/no.
This drives bisections from scripts or UI extensions.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger()
		cfg, err := serveFlags.config(cmd, log)
		if err != nil {
			logrus.Fatalf("Failed to assemble the session config - %v", err)
		}

		oracle, err := server.NewServer(server.HTTP, servePort, log)
		if err != nil {
			logrus.Fatalf("Failed to start webserver - %v", err)
		}

		session, err := newSession(cfg, oracle)
		if err != nil {
			fail(err)
		}
		outcome, err := session.Run(cmd.Context())
		if err != nil {
			fail(err)
		}

		oracle.Finish(outcome)
		log.Infof("Result: %s", outcome)
		log.Info("The result stays available on GET /build, interrupt to exit")
		<-cmd.Context().Done()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveFlags.register(serveCmd)
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 40032, "The port on which to start the server")
}
