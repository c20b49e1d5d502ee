package vsbisect

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/sirupsen/logrus"
)

// launchInstalled installs the artifact and starts the installed application.
// The user installer runs silently on its own; every other install needs
// privileges, so the command is put on the clipboard and the tester confirms
// once it ran.
func (l *Launcher) launchInstalled(ctx context.Context, build Build, artifact, userData, extensions string) (*Instance, error) {
	kind := build.Kind

	if kind.Flavor == FlavorWindowsUserInstaller {
		l.log.WithField("artifact", artifact).Info("Running installer")
		cmd := exec.CommandContext(ctx, artifact, "/VERYSILENT", "/NORESTART", "/MERGETASKS=!runcode")
		if out, err := cmd.CombinedOutput(); err != nil {
			return nil, errors.Join(fmt.Errorf("installer %s failed, output: %s", artifact, out), err)
		}
	} else {
		if err := l.installPrivileged(ctx, kind, artifact); err != nil {
			return nil, err
		}
	}

	app, err := InstalledAppPath(kind)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	cmd := exec.Command(app, desktopArgs(userData, extensions)...)
	stop, err := spawn(cmd, newOutputWatcher(l.log), l.log)
	if err != nil {
		return nil, err
	}
	l.log.WithFields(logrus.Fields{"app": app, "commit": ShortCommit(build.Commit)}).Info("Launched installed build")
	return &Instance{build: build, elapsed: time.Since(started), stopFn: stop}, nil
}

// installPrivileged hands the elevated install command to the tester and
// waits for their confirmation.
func (l *Launcher) installPrivileged(ctx context.Context, kind Kind, artifact string) error {
	if l.Confirm == nil {
		return fmt.Errorf("flavor %s needs an interactive confirmation to install", kind.Flavor)
	}

	command := installCommand(kind, artifact)
	if err := l.writeClip(command); err != nil {
		l.log.WithError(err).Warn("Failed to copy the install command to the clipboard")
	}
	l.log.Infof("Run this elevated command in another terminal:\n\n  %s\n", command)

	done, err := l.Confirm(ctx, "Did the install command finish successfully")
	if err != nil {
		return err
	}
	if !done {
		return fmt.Errorf("install of %s was skipped", artifact)
	}
	return nil
}

// installCommand returns the privileged command that installs the artifact.
func installCommand(kind Kind, artifact string) string {
	switch kind.Flavor {
	case FlavorWindowsSystemInstaller:
		return fmt.Sprintf("%q /VERYSILENT /NORESTART /MERGETASKS=!runcode", artifact)
	case FlavorLinuxDeb:
		return fmt.Sprintf("sudo apt install -y %q", artifact)
	case FlavorLinuxRPM:
		return fmt.Sprintf("sudo dnf install -y %q", artifact)
	case FlavorLinuxSnap:
		return fmt.Sprintf("sudo snap install --dangerous --classic %q", artifact)
	}
	return ""
}
