package vsbisect

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/creasty/defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type configYaml struct {
	Quality string `yaml:"quality" default:"insider"`
	Runtime string `yaml:"runtime" default:"desktop"`
	Flavor  string `yaml:"flavor" default:"default"`
	Arch    string `yaml:"arch"`
	Libc    string `yaml:"libc" default:"musl"`

	GoodBuild string `yaml:"goodBuild"`
	BadBuild  string `yaml:"badBuild"`

	AvoidedCommits []string `yaml:"avoidedCommits"`

	ReleasedOnly bool `yaml:"releasedOnly"`

	UpdateServiceURL string `yaml:"updateServiceURL" default:"https://update.code.visualstudio.com"`
	Token            string `yaml:"token"`

	DataDir         string `yaml:"dataDir"`
	ProfileTemplate string `yaml:"profileTemplate"`

	PerfCommand string `yaml:"perfCommand"`
}

// Config carries everything the core components need for one session. It is
// built once by the caller and passed explicitly to every constructor; there
// is no package-level state.
type Config struct {
	Kind Kind

	// GoodBuild and BadBuild are the optional known boundaries, each either a
	// full commit hash or a major.minor version.
	GoodBuild string
	BadBuild  string

	// AvoidedCommits are excluded from the bisect range.
	AvoidedCommits []string

	// ReleasedOnly restricts the candidate list to released builds.
	ReleasedOnly bool

	// UpdateServiceURL is the base URL of the update-distribution API.
	UpdateServiceURL string

	// Token decorates the hosted web URL when set.
	Token string

	// DataDir is the tool's root directory. Defaults to ~/.vsbisect.
	DataDir string

	// ProfileTemplate, when set, is a directory whose contents seed the fresh
	// user-data directory before every launch.
	ProfileTemplate string

	// PerfCommand, when set, names an external measurement harness that is
	// handed the executable path or URL instead of the built-in readiness
	// detection.
	PerfCommand string

	// ShowProgress enables the download progress bar.
	ShowProgress bool

	// Log is the logger all components write to. A nil Log discards output.
	Log *logrus.Logger
}

// NewConfig returns a config with the defaults for the current host: the
// insider desktop build in its plain archive flavor, fetched from the public
// update service.
func NewConfig() *Config {
	return &Config{
		Kind: Kind{
			Runtime: RuntimeDesktop,
			Quality: QualityInsider,
			Flavor:  FlavorDefault,
			OS:      runtime.GOOS,
			Arch:    HostArch(),
			Libc:    "musl",
		},
		UpdateServiceURL: "https://update.code.visualstudio.com",
	}
}

// GetConfigFromReader reads a session config in yaml format from a reader and
// initializes the corresponding Config struct.
func GetConfigFromReader(r io.Reader) (*Config, error) {
	var raw configYaml

	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&raw); err != nil {
		return nil, err
	}
	if err := defaults.Set(&raw); err != nil {
		return nil, err
	}

	quality, err := ParseQuality(raw.Quality)
	if err != nil {
		return nil, err
	}
	rt, err := ParseRuntime(raw.Runtime)
	if err != nil {
		return nil, err
	}
	flavor, err := ParseFlavor(raw.Flavor)
	if err != nil {
		return nil, err
	}
	arch := raw.Arch
	if arch == "" {
		arch = HostArch()
	}
	arch, err = ParseArch(arch)
	if err != nil {
		return nil, err
	}

	return &Config{
		Kind: Kind{
			Runtime: rt,
			Quality: quality,
			Flavor:  flavor,
			OS:      runtime.GOOS,
			Arch:    arch,
			Libc:    raw.Libc,
		},

		GoodBuild: raw.GoodBuild,
		BadBuild:  raw.BadBuild,

		AvoidedCommits: raw.AvoidedCommits,

		ReleasedOnly: raw.ReleasedOnly,

		UpdateServiceURL: raw.UpdateServiceURL,
		Token:            raw.Token,

		DataDir:         raw.DataDir,
		ProfileTemplate: raw.ProfileTemplate,

		PerfCommand: raw.PerfCommand,
	}, nil
}

// HostArch returns the update-API architecture token for the current host.
func HostArch() string {
	if runtime.GOARCH == "arm64" {
		return "arm64"
	}
	return "x64"
}

// DefaultDataDir returns the default tool root, ~/.vsbisect.
func DefaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".vsbisect"), nil
}

// BuildsDir is the cache root holding one folder per verified build.
func (c *Config) BuildsDir() string {
	return filepath.Join(c.DataDir, ".builds")
}

// UserDataDir is the isolated user-data directory passed to every spawned
// instance. It is shared across builds so settings survive bisection steps,
// and only discarded on a fresh retry.
func (c *Config) UserDataDir() string {
	return filepath.Join(c.DataDir, ".data")
}

// ExtensionsDir is the isolated extensions directory passed to every spawned
// instance.
func (c *Config) ExtensionsDir() string {
	return filepath.Join(c.DataDir, ".extensions")
}

// CliDataDir is the isolated data directory handed to tunnel CLI runs.
func (c *Config) CliDataDir() string {
	return filepath.Join(c.DataDir, ".cli")
}

// Logger returns the configured logger, or a muted one if none was set.
func (c *Config) Logger() *logrus.Logger {
	if c.Log != nil {
		return c.Log
	}
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
