package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/cwaldvogel/vsbisect/pkg/vsbisect"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	runFlags sessionFlags
	runForce bool
)

var runCmd = &cobra.Command{
	Use:   "run [commit|version]",
	Short: "Launch a single build without bisecting",
	Long: `Launch a single build without bisecting.

The build is named by a full commit hash or a version like 1.87 and
defaults to the newest build of the selected quality. It is downloaded,
verified and launched exactly like a bisection step, then stopped once
you confirm.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger()
		cfg, err := runFlags.config(cmd, log)
		if err != nil {
			logrus.Fatalf("Failed to assemble the session config - %v", err)
		}

		target := "latest"
		if len(args) == 1 {
			target = args[0]
		}

		if err := runSingle(cmd.Context(), cfg, target, runForce); err != nil {
			fail(err)
		}
	},
}

func runSingle(ctx context.Context, cfg *vsbisect.Config, target string, force bool) error {
	catalog := vsbisect.NewCatalog(cfg)
	cache, err := vsbisect.NewCache(cfg, catalog)
	if err != nil {
		return err
	}
	launcher := vsbisect.NewLauncher(cfg, catalog, cache)
	oracle := newPromptOracle(cfg.Logger())
	launcher.Confirm = oracle.Confirm

	commit, err := resolveTarget(ctx, cfg, catalog, target)
	if err != nil {
		return err
	}

	inst, err := launcher.Launch(ctx, vsbisect.Build{Kind: cfg.Kind, Commit: commit}, vsbisect.LaunchOptions{ForceDownload: force})
	if err != nil {
		return err
	}
	if inst == nil {
		return nil
	}

	if _, err := oracle.Confirm(ctx, "Stop the build and exit"); err != nil {
		cfg.Logger().WithError(err).Warn("Prompt failed, stopping the build")
	}
	return inst.Stop()
}

// resolveTarget turns the command line target into a commit: a commit hash
// passes through, a version resolves through the update service and "latest"
// picks the newest listed build.
func resolveTarget(ctx context.Context, cfg *vsbisect.Config, catalog *vsbisect.Catalog, target string) (string, error) {
	switch {
	case target == "latest":
		commits, err := catalog.ListCommits(ctx, cfg.Kind, cfg.ReleasedOnly)
		if err != nil {
			return "", err
		}
		if len(commits) == 0 {
			return "", fmt.Errorf("%w: the update service lists no builds", vsbisect.ErrCommitNotFound)
		}
		return commits[0], nil
	case vsbisect.IsCommit(target):
		return target, nil
	case vsbisect.LooksLikeVersion(target):
		meta, err := catalog.ResolveVersion(ctx, cfg.Kind, target)
		if err != nil {
			return "", err
		}
		return meta.Version, nil
	}
	return "", errors.New("the build to run must be a full commit hash, a version like 1.87 or latest")
}

func init() {
	rootCmd.AddCommand(runCmd)

	runFlags.registerKind(runCmd)
	runCmd.Flags().BoolVar(&runForce, "force", false, "Discard a cached copy of the build and download it again")
}
