package vsbisect

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"time"

	"github.com/atotto/clipboard"
	"github.com/otiai10/copy"
	"github.com/phayes/freeport"
	"github.com/pkg/browser"
	"github.com/sirupsen/logrus"
)

var (
	serverEndpointRe = regexp.MustCompile(`(?i)available at (https?://\S+)`)
	tunnelEndpointRe = regexp.MustCompile(`Open this link in your browser (https?://\S+)`)
	githubLoginRe    = regexp.MustCompile(`log into (https://github\.com/login/device) and use code (\S+)`)
	microsoftLoginRe = regexp.MustCompile(`open the page (https://microsoft\.com/devicelogin) and enter the code (\S+)`)
)

// LaunchOptions adjust a single launch.
type LaunchOptions struct {
	// ForceDownload discards any cached artifact and fetches it anew.
	ForceDownload bool
	// FreshUserData wipes the persisted user data before the launch.
	FreshUserData bool
}

// Launcher starts materialized builds in their runtime and hands back ready
// instances.
type Launcher struct {
	cfg     *Config
	catalog *Catalog
	cache   *Cache
	log     *logrus.Logger
	probe   ProbeConfig

	// Confirm is consulted when a launch needs the tester to complete a
	// manual step, like running an elevated install command. Launches that
	// need it fail when unset.
	Confirm func(ctx context.Context, question string) (bool, error)

	openURL   func(url string) error
	writeClip func(text string) error
}

// NewLauncher creates a launcher over the given catalog and cache.
func NewLauncher(cfg *Config, catalog *Catalog, cache *Cache) *Launcher {
	return &Launcher{
		cfg:       cfg,
		catalog:   catalog,
		cache:     cache,
		log:       cfg.Logger(),
		probe:     defaultProbeConfig(),
		openURL:   browser.OpenURL,
		writeClip: clipboard.WriteAll,
	}
}

// Launch materializes the build if needed and starts it, returning once the
// instance is ready to be tested.
func (l *Launcher) Launch(ctx context.Context, build Build, opts LaunchOptions) (*Instance, error) {
	if build.Kind.Runtime == RuntimeWebRemote {
		if l.cfg.PerfCommand != "" {
			return l.launchPerf(ctx, build, hostedURL(build, l.cfg.Token))
		}
		return l.launchHosted(build)
	}

	path, err := l.cache.Materialize(ctx, build, opts.ForceDownload)
	if err != nil {
		return nil, err
	}
	if l.cfg.PerfCommand != "" && path != "" {
		return l.launchPerf(ctx, build, path)
	}
	if build.Kind.Flavor == FlavorCliContainer {
		return l.launchContainer(ctx, build)
	}

	userData, extensions, err := l.prepareDataDirs(opts.FreshUserData)
	if err != nil {
		return nil, err
	}

	switch {
	case build.Kind.Flavor == FlavorCli:
		return l.launchTunnel(ctx, build, path, opts.FreshUserData)
	case build.Kind.Flavor.IsInstaller():
		return l.launchInstalled(ctx, build, path, userData, extensions)
	case build.Kind.Runtime == RuntimeWebLocal:
		return l.launchServer(ctx, build, path, userData, extensions)
	default:
		return l.launchDesktop(build, path, userData, extensions)
	}
}

// prepareDataDirs ensures the user data and extensions directories exist,
// wiping the user data first on a fresh launch and seeding it from the
// profile template when it is created.
func (l *Launcher) prepareDataDirs(fresh bool) (string, string, error) {
	userData := l.cfg.UserDataDir()
	extensions := l.cfg.ExtensionsDir()

	if fresh {
		if err := os.RemoveAll(userData); err != nil {
			return "", "", errors.Join(fmt.Errorf("failed to reset user data dir %s", userData), err)
		}
	}
	seed := false
	if _, err := os.Stat(userData); os.IsNotExist(err) {
		seed = true
	}
	if err := os.MkdirAll(userData, 0o755); err != nil {
		return "", "", errors.Join(fmt.Errorf("failed to create user data dir %s", userData), err)
	}
	if err := os.MkdirAll(extensions, 0o755); err != nil {
		return "", "", errors.Join(fmt.Errorf("failed to create extensions dir %s", extensions), err)
	}
	if seed && l.cfg.ProfileTemplate != "" {
		l.log.WithField("template", l.cfg.ProfileTemplate).Debug("Seeding user data dir from profile template")
		if err := copy.Copy(l.cfg.ProfileTemplate, userData); err != nil {
			return "", "", errors.Join(fmt.Errorf("failed to seed user data dir from %s", l.cfg.ProfileTemplate), err)
		}
	}
	return userData, extensions, nil
}

// desktopArgs returns the hygiene flags every desktop instance runs with.
func desktopArgs(userData, extensions string) []string {
	return []string{
		"--user-data-dir", userData,
		"--extensions-dir", extensions,
		"--disable-updates",
		"--disable-telemetry",
		"--disable-workspace-trust",
		"--skip-welcome",
		"--skip-release-notes",
	}
}

func (l *Launcher) launchDesktop(build Build, path, userData, extensions string) (*Instance, error) {
	started := time.Now()
	cmd := exec.Command(path, desktopArgs(userData, extensions)...)
	stop, err := spawn(cmd, newOutputWatcher(l.log), l.log)
	if err != nil {
		return nil, err
	}
	l.log.WithField("commit", ShortCommit(build.Commit)).Info("Launched desktop build")
	return &Instance{build: build, elapsed: time.Since(started), stopFn: stop}, nil
}

func (l *Launcher) launchServer(ctx context.Context, build Build, path, userData, extensions string) (*Instance, error) {
	port, err := freeport.GetFreePort()
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to find a free port for the server"), err)
	}

	started := time.Now()
	ready := make(chan string, 1)
	watcher := newOutputWatcher(l.log)
	watcher.on(serverEndpointRe, func(match []string) { ready <- match[1] })

	cmd := exec.Command(path,
		"--host", "127.0.0.1",
		"--port", strconv.Itoa(port),
		"--accept-server-license-terms",
		"--server-data-dir", userData,
		"--extensions-dir", extensions,
	)
	stop, err := spawn(cmd, watcher, l.log)
	if err != nil {
		return nil, err
	}

	l.log.Info("Waiting for the server to print its endpoint")
	select {
	case url := <-ready:
		inst := &Instance{build: build, url: url, elapsed: time.Since(started), stopFn: stop}
		l.log.WithFields(logrus.Fields{"url": url, "elapsed": inst.elapsed}).Info("Server ready")
		l.open(url)
		return inst, nil
	case <-ctx.Done():
		_ = stop()
		return nil, ctx.Err()
	}
}

func (l *Launcher) launchTunnel(ctx context.Context, build Build, path string, fresh bool) (*Instance, error) {
	if fresh {
		if err := os.RemoveAll(l.cfg.CliDataDir()); err != nil {
			return nil, errors.Join(fmt.Errorf("failed to reset cli data dir %s", l.cfg.CliDataDir()), err)
		}
	}

	started := time.Now()
	ready := make(chan string, 1)
	watcher := newOutputWatcher(l.log)
	watcher.on(githubLoginRe, l.deviceLogin)
	watcher.on(microsoftLoginRe, l.deviceLogin)
	watcher.on(tunnelEndpointRe, func(match []string) {
		ready <- match[1] + "?vscode-version=" + build.Commit
	})

	cmd := exec.Command(path,
		"tunnel",
		"--accept-server-license-terms",
		"--random-name",
		"--cli-data-dir", l.cfg.CliDataDir(),
	)
	stop, err := spawn(cmd, watcher, l.log)
	if err != nil {
		return nil, err
	}

	l.log.Info("Waiting for the tunnel to come up, follow the login prompts if asked")
	select {
	case url := <-ready:
		inst := &Instance{build: build, url: url, elapsed: time.Since(started), stopFn: stop}
		l.log.WithFields(logrus.Fields{"url": url, "elapsed": inst.elapsed}).Info("Tunnel ready")
		l.open(url)
		return inst, nil
	case <-ctx.Done():
		_ = stop()
		return nil, ctx.Err()
	}
}

// deviceLogin handles a device-code login prompt by putting the code on the
// clipboard and opening the login page.
func (l *Launcher) deviceLogin(match []string) {
	url, code := match[1], match[2]
	if err := l.writeClip(code); err != nil {
		l.log.WithError(err).Warnf("Failed to copy login code to clipboard, use code %s", code)
	} else {
		l.log.Infof("Login code %s copied to clipboard", code)
	}
	l.open(url)
}

func (l *Launcher) launchHosted(build Build) (*Instance, error) {
	url := hostedURL(build, l.cfg.Token)
	l.log.WithField("url", url).Info("Opening hosted build")
	l.open(url)
	return &Instance{build: build, url: url}, nil
}

// hostedURL is the address of the hosted editor pinned to the build's commit.
// With a token the commit rides along as a query parameter instead of a
// version pin, which the authenticated endpoint expects.
func hostedURL(build Build, token string) string {
	host := "https://insiders.vscode.dev"
	if build.Kind.Quality == QualityStable {
		host = "https://vscode.dev"
	}
	if token != "" {
		return fmt.Sprintf("%s/?vscode-version=%s&quality=%s&tkn=%s", host, build.Commit, build.Kind.Quality, token)
	}
	return fmt.Sprintf("%s/?vscode-version=%s", host, build.Commit)
}

// launchPerf runs the configured performance command against the launchable
// path instead of starting the build interactively. The command's output goes
// straight to the terminal.
func (l *Launcher) launchPerf(ctx context.Context, build Build, path string) (*Instance, error) {
	shell, flag := "sh", "-c"
	if runtime.GOOS == "windows" {
		shell, flag = "cmd", "/C"
	}
	started := time.Now()
	cmd := exec.CommandContext(ctx, shell, flag, l.cfg.PerfCommand+" "+strconv.Quote(path))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	l.log.WithFields(logrus.Fields{"command": l.cfg.PerfCommand, "commit": ShortCommit(build.Commit)}).Info("Running performance command")
	if err := cmd.Run(); err != nil {
		return nil, errors.Join(fmt.Errorf("performance command failed for commit %s", ShortCommit(build.Commit)), err)
	}
	return &Instance{build: build, elapsed: time.Since(started)}, nil
}

func (l *Launcher) open(url string) {
	if err := l.openURL(url); err != nil {
		l.log.WithError(err).Warnf("Failed to open a browser, open %s yourself", url)
	}
}
