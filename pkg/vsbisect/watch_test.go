package vsbisect

import (
	"io"
	"regexp"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func testWatcher() *outputWatcher {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return newOutputWatcher(log)
}

func TestWatcherFiresActionOnce(t *testing.T) {
	watcher := testWatcher()
	fired := 0
	watcher.on(regexp.MustCompile(`ready`), func([]string) { fired++ })

	assert.Nil(t, watcher.watch(strings.NewReader("server ready\nserver ready\nstill ready\n")), "watch returned an error")
	assert.Equal(t, 1, fired, "Action fired more than once")
}

func TestWatcherFiresOncePerMarkerAcrossStreams(t *testing.T) {
	watcher := testWatcher()
	fired := 0
	watcher.on(regexp.MustCompile(`listening`), func([]string) { fired++ })

	assert.Nil(t, watcher.watch(strings.NewReader("listening on 8080\n")), "watch returned an error")
	assert.Nil(t, watcher.watch(strings.NewReader("listening on 8080\n")), "watch returned an error")
	assert.Equal(t, 1, fired, "Action fired again on a second stream")
}

func TestWatcherPassesSubmatches(t *testing.T) {
	watcher := testWatcher()
	var url string
	watcher.on(regexp.MustCompile(`(?i)available at (https?://\S+)`), func(match []string) { url = match[1] })

	out := "Extension host agent started.\nWeb UI available at http://localhost:9888/?tkn=1d03a8c1\n"
	assert.Nil(t, watcher.watch(strings.NewReader(out)), "watch returned an error")
	assert.Equal(t, "http://localhost:9888/?tkn=1d03a8c1", url, "Wrong submatch")
}

func TestWatcherMultipleMarkers(t *testing.T) {
	watcher := testWatcher()
	var seen []string
	watcher.on(regexp.MustCompile(`^first`), func([]string) { seen = append(seen, "first") })
	watcher.on(regexp.MustCompile(`^second`), func([]string) { seen = append(seen, "second") })

	assert.Nil(t, watcher.watch(strings.NewReader("second marker\nnoise\nfirst marker\n")), "watch returned an error")
	assert.ElementsMatch(t, []string{"first", "second"}, seen, "Not every marker fired")
}

func TestWatcherHandlesLongLines(t *testing.T) {
	watcher := testWatcher()
	fired := false
	watcher.on(regexp.MustCompile(`^BEGIN`), func([]string) { fired = true })

	line := "BEGIN" + strings.Repeat("x", 256*1024) + "\n"
	assert.Nil(t, watcher.watch(strings.NewReader(line)), "watch choked on a long line")
	assert.True(t, fired, "Marker missed on a long line")
}
