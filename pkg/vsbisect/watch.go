package vsbisect

import (
	"bufio"
	"io"
	"regexp"
	"sync"

	"github.com/sirupsen/logrus"
)

// marker pairs an output pattern with the action to run when it appears.
// The action fires at most once, no matter how often the pattern recurs or
// on how many streams it shows up.
type marker struct {
	pattern *regexp.Regexp
	action  func(match []string)
	once    sync.Once
}

// outputWatcher scans process output line by line and fires marker actions.
// A single watcher may be attached to several streams at once.
type outputWatcher struct {
	markers []*marker
	log     *logrus.Logger
}

func newOutputWatcher(log *logrus.Logger) *outputWatcher {
	return &outputWatcher{log: log}
}

// on registers an action for the first line matching pattern. The action
// receives the submatches of that line.
func (w *outputWatcher) on(pattern *regexp.Regexp, action func(match []string)) {
	w.markers = append(w.markers, &marker{pattern: pattern, action: action})
}

// watch consumes r until EOF, feeding every line through the markers.
func (w *outputWatcher) watch(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		w.log.WithField("line", line).Trace("Runtime output")
		for _, m := range w.markers {
			if match := m.pattern.FindStringSubmatch(line); match != nil {
				m.once.Do(func() { m.action(match) })
			}
		}
	}
	return scanner.Err()
}
