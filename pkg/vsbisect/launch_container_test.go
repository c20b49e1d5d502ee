package vsbisect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContainerScript(t *testing.T) {
	kind := Kind{RuntimeDesktop, QualityInsider, FlavorCliContainer, "linux", "x64", "musl"}
	url := "https://update.code.visualstudio.com/commit:" + fakeCommit(3) + "/cli-alpine-x64/insider"

	script := containerScript(kind, url, "tunnel --accept-server-license-terms --random-name")
	assert.Contains(t, script, "apk add --no-cache curl", "Musl container not set up with apk")
	assert.Contains(t, script, `curl -fsSL "`+url+`" | tar -xz -C /usr/local/bin`, "Artifact not streamed into the container")
	assert.Contains(t, script, "exec /usr/local/bin/code-insiders tunnel", "CLI not handed the subcommand")

	kind.Libc = "glibc"
	script = containerScript(kind, url, "serve-web")
	assert.Contains(t, script, "apt-get install", "Glibc container not set up with apt")
	assert.NotContains(t, script, "apk add", "Glibc container still uses apk")
}

func TestContainerImage(t *testing.T) {
	values := []struct {
		libc  string
		image string
	}{
		{"", "alpine:3"},
		{"musl", "alpine:3"},
		{"glibc", "debian:bookworm-slim"},
		{"GLIBC", "debian:bookworm-slim"},
	}

	for i, v := range values {
		kind := Kind{RuntimeDesktop, QualityInsider, FlavorCliContainer, "linux", "x64", v.libc}
		assert.Equalf(t, v.image, containerImage(kind), "Wrong image in test %d", i)
	}
}
