package vsbisect

import (
	"fmt"
	"regexp"
	"strings"
)

// Runtime is the execution model under which a build is tested.
type Runtime int

const (
	// RuntimeDesktop runs the native desktop application.
	RuntimeDesktop Runtime = iota
	// RuntimeWebLocal serves the web build from a local server process.
	RuntimeWebLocal
	// RuntimeWebRemote opens the hosted web editor, no local artifact involved.
	RuntimeWebRemote
)

// Quality is the release channel a build was published to.
type Quality int

const (
	QualityInsider Quality = iota
	QualityStable
	QualityExploration
)

// Flavor is the packaging variant of a build.
type Flavor int

const (
	// FlavorDefault is the plain archive for the current platform.
	FlavorDefault Flavor = iota
	// FlavorDarwinUniversal is the universal (x64+arm64) macOS archive.
	FlavorDarwinUniversal
	// FlavorWindowsUserInstaller is the per-user Windows setup executable.
	FlavorWindowsUserInstaller
	// FlavorWindowsSystemInstaller is the machine-wide Windows setup executable.
	FlavorWindowsSystemInstaller
	FlavorLinuxDeb
	FlavorLinuxRPM
	FlavorLinuxSnap
	// FlavorCli is the standalone CLI, used for tunnel sessions.
	FlavorCli
	// FlavorCliContainer delegates the CLI to a container, which downloads the
	// build itself at run time. Kind.Arch and Kind.Libc select the image.
	FlavorCliContainer
)

// Kind describes what kind of build to resolve, fetch and run. It is
// immutable; OS and Arch are explicit so that naming for every platform can be
// exercised from any host.
type Kind struct {
	Runtime Runtime
	Quality Quality
	Flavor  Flavor

	OS   string // GOOS-style: darwin, linux, windows
	Arch string // update-API style: x64, arm64
	Libc string // container flavors only: musl, glibc
}

// A Build identifies one concrete artifact: a kind plus the commit it was
// built from. Commits are opaque but order-relevant.
type Build struct {
	Kind   Kind
	Commit string
}

// BuildMeta is the per-build metadata served by the update API. It lives for
// the duration of one request and is never cached.
type BuildMeta struct {
	URL            string `json:"url"`
	Version        string `json:"version"`
	ProductVersion string `json:"productVersion"`
	SHA256         string `json:"sha256hash"`
}

var commitPattern = regexp.MustCompile(`^[0-9a-f]{40}$`)

// IsCommit reports whether s looks like a full commit hash.
func IsCommit(s string) bool {
	return commitPattern.MatchString(s)
}

// ShortCommit returns the abbreviated form of a commit hash used in logs and
// path-length-constrained cache folder names.
func ShortCommit(commit string) string {
	if len(commit) > 11 {
		return commit[:11]
	}
	return commit
}

func (r Runtime) String() string {
	switch r {
	case RuntimeDesktop:
		return "desktop"
	case RuntimeWebLocal:
		return "web"
	case RuntimeWebRemote:
		return "web-remote"
	}
	return fmt.Sprintf("runtime(%d)", int(r))
}

func (q Quality) String() string {
	switch q {
	case QualityInsider:
		return "insider"
	case QualityStable:
		return "stable"
	case QualityExploration:
		return "exploration"
	}
	return fmt.Sprintf("quality(%d)", int(q))
}

func (f Flavor) String() string {
	switch f {
	case FlavorDefault:
		return "default"
	case FlavorDarwinUniversal:
		return "universal"
	case FlavorWindowsUserInstaller:
		return "user-installer"
	case FlavorWindowsSystemInstaller:
		return "system-installer"
	case FlavorLinuxDeb:
		return "deb"
	case FlavorLinuxRPM:
		return "rpm"
	case FlavorLinuxSnap:
		return "snap"
	case FlavorCli:
		return "cli"
	case FlavorCliContainer:
		return "cli-container"
	}
	return fmt.Sprintf("flavor(%d)", int(f))
}

// ParseRuntime maps a user-supplied runtime name to a Runtime.
func ParseRuntime(s string) (Runtime, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "desktop":
		return RuntimeDesktop, nil
	case "web":
		return RuntimeWebLocal, nil
	case "web-remote", "vscode.dev":
		return RuntimeWebRemote, nil
	}
	return 0, fmt.Errorf("invalid runtime %q (expected desktop, web or web-remote)", s)
}

// ParseQuality maps a user-supplied quality name to a Quality.
func ParseQuality(s string) (Quality, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "insider", "insiders":
		return QualityInsider, nil
	case "stable":
		return QualityStable, nil
	case "exploration":
		return QualityExploration, nil
	}
	return 0, fmt.Errorf("invalid quality %q (expected stable, insider or exploration)", s)
}

// ParseFlavor maps a user-supplied flavor name to a Flavor.
func ParseFlavor(s string) (Flavor, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default", "archive":
		return FlavorDefault, nil
	case "universal", "darwin-universal":
		return FlavorDarwinUniversal, nil
	case "user-installer", "user":
		return FlavorWindowsUserInstaller, nil
	case "system-installer", "system":
		return FlavorWindowsSystemInstaller, nil
	case "deb":
		return FlavorLinuxDeb, nil
	case "rpm":
		return FlavorLinuxRPM, nil
	case "snap":
		return FlavorLinuxSnap, nil
	case "cli":
		return FlavorCli, nil
	case "cli-container", "container":
		return FlavorCliContainer, nil
	}
	return 0, fmt.Errorf("invalid flavor %q", s)
}

// ParseArch normalizes a CPU architecture name to the update-API form.
func ParseArch(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "x64", "amd64", "x86_64":
		return "x64", nil
	case "arm64", "aarch64":
		return "arm64", nil
	}
	return "", fmt.Errorf("invalid architecture %q (expected x64 or arm64)", s)
}

// IsInstaller reports whether the flavor is delivered as an OS installer
// package rather than an archive.
func (f Flavor) IsInstaller() bool {
	switch f {
	case FlavorWindowsUserInstaller, FlavorWindowsSystemInstaller, FlavorLinuxDeb, FlavorLinuxRPM, FlavorLinuxSnap:
		return true
	}
	return false
}
