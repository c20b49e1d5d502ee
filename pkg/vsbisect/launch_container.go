package vsbisect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dchest/uniuri"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	"github.com/phayes/freeport"
	"github.com/sirupsen/logrus"
)

// ContainerLabel marks every container this tool starts so purge can find
// strays.
const ContainerLabel = "vsbisect"

func (l *Launcher) launchContainer(ctx context.Context, build Build) (*Instance, error) {
	if build.Kind.Runtime == RuntimeWebLocal {
		return l.launchContainerServer(ctx, build)
	}
	return l.launchContainerTunnel(ctx, build)
}

func (l *Launcher) launchContainerTunnel(ctx context.Context, build Build) (*Instance, error) {
	downloadURL, err := l.catalog.DirectDownloadURL(build)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	ready := make(chan string, 1)
	watcher := newOutputWatcher(l.log)
	watcher.on(githubLoginRe, l.deviceLogin)
	watcher.on(microsoftLoginRe, l.deviceLogin)
	watcher.on(tunnelEndpointRe, func(match []string) {
		ready <- match[1] + "?vscode-version=" + build.Commit
	})

	script := containerScript(build.Kind, downloadURL, "tunnel --accept-server-license-terms --random-name")
	stop, err := l.runContainer(ctx, build.Kind, script, nil, nil, watcher)
	if err != nil {
		return nil, err
	}

	l.log.Info("Waiting for the containerized tunnel to come up, follow the login prompts if asked")
	select {
	case url := <-ready:
		inst := &Instance{build: build, url: url, elapsed: time.Since(started), stopFn: stop}
		l.log.WithFields(logrus.Fields{"url": url, "elapsed": inst.elapsed}).Info("Containerized tunnel ready")
		l.open(url)
		return inst, nil
	case <-ctx.Done():
		_ = stop()
		return nil, ctx.Err()
	}
}

func (l *Launcher) launchContainerServer(ctx context.Context, build Build) (*Instance, error) {
	downloadURL, err := l.catalog.DirectDownloadURL(build)
	if err != nil {
		return nil, err
	}
	hostPort, err := freeport.GetFreePort()
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to find a free port for the server container"), err)
	}

	const serverPort = 8000
	natPort := nat.Port(fmt.Sprint(serverPort))
	exposed := nat.PortSet{natPort: struct{}{}}
	bindings := nat.PortMap{natPort: []nat.PortBinding{{HostPort: fmt.Sprint(hostPort)}}}

	script := containerScript(build.Kind, downloadURL,
		fmt.Sprintf("serve-web --accept-server-license-terms --host 0.0.0.0 --port %d --without-connection-token", serverPort))

	started := time.Now()
	stop, err := l.runContainer(ctx, build.Kind, script, exposed, bindings, newOutputWatcher(l.log))
	if err != nil {
		return nil, err
	}

	// The CLI fetches the web server on first contact, so give it more
	// patience than a local binary would need.
	url := fmt.Sprintf("http://127.0.0.1:%d/", hostPort)
	probe := ProbeConfig{Retries: 120, Backoff: time.Second, MaxBackoff: time.Second}
	if err := awaitHTTP(ctx, url, probe); err != nil {
		_ = stop()
		return nil, err
	}

	inst := &Instance{build: build, url: url, elapsed: time.Since(started), stopFn: stop}
	l.log.WithFields(logrus.Fields{"url": url, "elapsed": inst.elapsed}).Info("Containerized server ready")
	l.open(url)
	return inst, nil
}

// runContainer starts a labeled container running the script and wires its
// log stream into the watcher. The returned stop function also closes the
// docker client held open for the stream.
func (l *Launcher) runContainer(ctx context.Context, kind Kind, script string, exposed nat.PortSet, bindings nat.PortMap, watcher *outputWatcher) (func() error, error) {
	apiClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errors.Join(fmt.Errorf("docker client creation failed"), err)
	}
	started := false
	defer func() {
		if !started {
			apiClient.Close()
		}
	}()

	img := containerImage(kind)
	if pull, err := apiClient.ImagePull(ctx, img, image.PullOptions{}); err != nil {
		l.log.WithError(err).Warnf("Failed to pull image %s, using a local copy if present", img)
	} else {
		_, _ = io.Copy(io.Discard, pull)
		pull.Close()
	}

	containerConfig := &container.Config{
		Image:  img,
		Cmd:    []string{"sh", "-c", script},
		Labels: map[string]string{ContainerLabel: "1"},

		ExposedPorts: exposed,
	}
	hostConfig := &container.HostConfig{
		AutoRemove:   true,
		PortBindings: bindings,
	}
	containerName := ContainerLabel + "-" + uniuri.New()

	resp, err := apiClient.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, containerName)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("container creation with name %s of image %s failed", containerName, img), err)
	}
	if err := apiClient.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, errors.Join(fmt.Errorf("container start with name %s and id %s of image %s failed", containerName, resp.ID, img), err)
	}
	l.log.WithField("container", containerName).Debug("Started container")

	logs, err := apiClient.ContainerLogs(ctx, resp.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true, Follow: true})
	if err != nil {
		l.log.WithError(err).Warnf("Failed to attach to logs of container %s", containerName)
	} else {
		pr, pw := io.Pipe()
		go func() {
			_, err := stdcopy.StdCopy(pw, pw, logs)
			pw.CloseWithError(err)
			logs.Close()
		}()
		go func() { _ = watcher.watch(pr) }()
	}

	started = true
	stop := func() error {
		defer apiClient.Close()
		if err := apiClient.ContainerStop(context.Background(), containerName, container.StopOptions{}); err != nil && !errdefs.IsNotFound(err) {
			return errors.Join(fmt.Errorf("failed to stop container %s", containerName), err)
		}
		return nil
	}
	return stop, nil
}

// containerScript fetches the build's CLI inside the container and execs the
// given subcommand with it.
func containerScript(kind Kind, downloadURL, subcommand string) string {
	install := "apk add --no-cache curl libgcc libstdc++ >/dev/null"
	if strings.EqualFold(kind.Libc, "glibc") {
		install = "apt-get update -qq >/dev/null && apt-get install -qq -y curl ca-certificates >/dev/null"
	}
	bin := expand("{bin}", kind, BuildMeta{})
	return fmt.Sprintf("%s && curl -fsSL %q | tar -xz -C /usr/local/bin && exec /usr/local/bin/%s %s", install, downloadURL, bin, subcommand)
}

func containerImage(kind Kind) string {
	if strings.EqualFold(kind.Libc, "glibc") {
		return "debian:bookworm-slim"
	}
	return "alpine:3"
}
