package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/cwaldvogel/vsbisect/pkg/vsbisect"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/manifoldco/promptui"
	"github.com/moby/moby/client"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var purgeContainers bool
var purgeAgree bool

var purgeCmd = &cobra.Command{
	Use:     "purge",
	Aliases: []string{"clean", "prune"},
	Short:   "Delete everything vsbisect left on this machine",
	Long: `This command deletes everything vsbisect left on this machine.
This includes all cached builds under the data directory, as well as all docker containers started for containerized flavors, both running and stopped.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := vsbisect.NewConfig()
		if cfg.DataDir = dataDir; cfg.DataDir == "" {
			var err error
			if cfg.DataDir, err = vsbisect.DefaultDataDir(); err != nil {
				logrus.Fatalf("Couldn't locate the data directory - %v", err)
			}
		}

		cache, err := vsbisect.NewCache(cfg, nil)
		if err != nil {
			logrus.Fatalf("Couldn't open the build cache - %v", err)
		}
		entries, err := cache.Entries()
		if err != nil {
			logrus.Fatalf("Couldn't list cached builds - %v", err)
		}
		if purgeContainers {
			entries = nil
		}

		containers := listStrayContainers(cmd.Context())

		if len(entries)+len(containers) == 0 {
			buildString := " or cached builds"
			if purgeContainers {
				buildString = ""
			}
			logrus.Infof("No containers%s to remove. Exiting...", buildString)
			return
		}

		confirmationMessage := fmt.Sprintf("About to delete %d containers", len(containers))
		if !purgeContainers {
			confirmationMessage += fmt.Sprintf(" and %d cached builds", len(entries))
		}
		confirmationMessage += "."
		logrus.Info(confirmationMessage)

		prompt := promptui.Prompt{
			Label:     "Proceed",
			IsConfirm: true,
		}

		if !purgeAgree {
			_, err := prompt.Run()
			if err != nil {
				logrus.Info("Exiting...")
				os.Exit(0)
			}
		}

		removeStrayContainers(cmd.Context(), containers)

		if !purgeContainers && len(entries) > 0 {
			logrus.Infof("Deleting %d cached builds under %s", len(entries), cache.Dir())
			if err := cache.Purge(); err != nil {
				logrus.Fatalf("Failed to delete the build cache - %v", err)
			}
		}

		logrus.Info("Done purging.")
	},
}

// listStrayContainers returns all containers this tool ever started. A machine
// without a reachable docker daemon simply has none.
func listStrayContainers(ctx context.Context) []types.Container {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		logrus.Debugf("Couldn't create docker client, skipping containers - %v", err)
		return nil
	}
	defer cli.Close()

	containers, err := cli.ContainerList(ctx, container.ListOptions{
		All: true,
		Filters: filters.NewArgs(
			filters.KeyValuePair{
				Key:   "label",
				Value: vsbisect.ContainerLabel + "=1",
			},
		),
	})
	if err != nil {
		logrus.Debugf("Couldn't list docker containers, skipping containers - %v", err)
		return nil
	}
	return containers
}

func removeStrayContainers(ctx context.Context, containers []types.Container) {
	if len(containers) == 0 {
		return
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		logrus.Fatalf("Couldn't create docker client - %v", err)
	}
	defer cli.Close()

	removals := new(errgroup.Group)
	for _, c := range containers {
		logrus.Infof("Deleting container %s (ID: %s)", c.Names[0][1:], c.ID)
		removals.Go(func() error {
			return cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true})
		})
	}
	if err := removals.Wait(); err != nil {
		logrus.Fatalf("Failed to remove container - %v", err)
	}
}

func init() {
	rootCmd.AddCommand(purgeCmd)

	purgeCmd.Flags().BoolVarP(&purgeContainers, "containers", "c", false, "Only delete containers, no cached builds.")
	purgeCmd.Flags().BoolVarP(&purgeAgree, "assume-yes", "y", false, `Bypass "Are you sure?" message.`)
}
