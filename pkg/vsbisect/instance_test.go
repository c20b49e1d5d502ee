package vsbisect

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInstanceAccessors(t *testing.T) {
	build := Build{Kind: Kind{RuntimeWebLocal, QualityInsider, FlavorDefault, "linux", "x64", ""}, Commit: fakeCommit(7)}
	inst := &Instance{build: build, url: "http://localhost:9888", elapsed: 3 * time.Second}

	assert.Equal(t, build, inst.Build(), "Wrong build")
	assert.Equal(t, "http://localhost:9888", inst.URL(), "Wrong URL")
	assert.Equal(t, 3*time.Second, inst.Elapsed(), "Wrong readiness duration")
}

func TestInstanceStopOnce(t *testing.T) {
	stops := 0
	inst := &Instance{stopFn: func() error {
		stops++
		return errors.New("already gone")
	}}

	first := inst.Stop()
	assert.EqualError(t, first, "already gone", "Stop swallowed the teardown error")
	assert.Equal(t, first, inst.Stop(), "Second stop returned a different result")
	assert.Equal(t, 1, stops, "Teardown ran more than once")
}

func TestInstanceStopWithoutProcess(t *testing.T) {
	inst := &Instance{}
	assert.Nil(t, inst.Stop(), "Stop of a processless instance failed")
}
