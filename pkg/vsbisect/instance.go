package vsbisect

import (
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Instance is a launched build under test. It carries the URL the tester
// interacts with, when the runtime has one, and how long the build took to
// become ready.
type Instance struct {
	build   Build
	url     string
	elapsed time.Duration

	stopFn  func() error
	once    sync.Once
	stopErr error
}

// Build returns the build this instance runs.
func (i *Instance) Build() Build {
	return i.build
}

// URL returns the address the instance is reachable at, or the empty string
// for runtimes without one.
func (i *Instance) URL() string {
	return i.url
}

// Elapsed returns the time from spawn to readiness.
func (i *Instance) Elapsed() time.Duration {
	return i.elapsed
}

// Stop tears the instance down. Calling it again, or after the underlying
// process already exited, does nothing.
func (i *Instance) Stop() error {
	i.once.Do(func() {
		if i.stopFn != nil {
			i.stopErr = i.stopFn()
		}
	})
	return i.stopErr
}

// spawn starts cmd in its own process group with both output streams feeding
// the watcher. The returned stop function kills the entire process tree and
// reaps it.
func spawn(cmd *exec.Cmd, watcher *outputWatcher, log *logrus.Logger) (func() error, error) {
	cmd.SysProcAttr = sysProcAttr()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to open stdout of %s", cmd.Path), err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to open stderr of %s", cmd.Path), err)
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to start %s", cmd.Path), err)
	}
	log.WithFields(logrus.Fields{"path": cmd.Path, "pid": cmd.Process.Pid}).Debug("Spawned process")

	watchers := new(errgroup.Group)
	watchers.Go(func() error { return watcher.watch(stdout) })
	watchers.Go(func() error { return watcher.watch(stderr) })

	stop := func() error {
		if err := killTree(cmd); err != nil {
			return errors.Join(fmt.Errorf("failed to kill process tree of %s", cmd.Path), err)
		}
		// The process is gone, remaining errors only say how it went.
		_ = watchers.Wait()
		_ = cmd.Wait()
		return nil
	}
	return stop, nil
}
