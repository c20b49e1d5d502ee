package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/cwaldvogel/vsbisect/pkg/vsbisect"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// sessionFlags are the flags shared by all commands that resolve and launch
// builds. Values from a --config file come first, explicitly set flags
// override them.
type sessionFlags struct {
	configPath string

	runtime string
	quality string
	flavor  string
	arch    string
	libc    string

	good string
	bad  string

	avoid    []string
	released bool

	token     string
	perf      string
	profile   string
	updateURL string
}

// registerKind adds the flags selecting what kind of build to fetch and run.
func (f *sessionFlags) registerKind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "Session config file in yaml format")

	cmd.Flags().StringVarP(&f.runtime, "runtime", "r", "desktop", "Runtime to bisect: desktop, web or web-remote")
	cmd.Flags().StringVarP(&f.quality, "quality", "q", "insider", "Release channel: insider, stable or exploration")
	cmd.Flags().StringVarP(&f.flavor, "flavor", "f", "default", "Packaging flavor: default, universal, user-installer, system-installer, deb, rpm, snap, cli or cli-container")
	cmd.Flags().StringVar(&f.arch, "arch", "", "Architecture of the builds to fetch, x64 or arm64 (default that of this machine)")
	cmd.Flags().StringVar(&f.libc, "libc", "musl", "Libc of containerized cli builds, musl or glibc")

	cmd.Flags().BoolVar(&f.released, "released", false, "Only consider released builds")

	cmd.Flags().StringVar(&f.token, "token", "", "Token for the authenticated hosted editor")
	cmd.Flags().StringVar(&f.perf, "perf", "", "External command measuring each build instead of the interactive launch")
	cmd.Flags().StringVar(&f.profile, "profile-template", "", "Directory seeding the fresh user data directory")
	cmd.Flags().StringVar(&f.updateURL, "update-url", "", "Base URL of the update service")
}

// register adds the kind flags plus the ones delimiting a bisection range.
func (f *sessionFlags) register(cmd *cobra.Command) {
	f.registerKind(cmd)

	cmd.Flags().StringVarP(&f.good, "good", "g", "", "Commit or version of the last known good build")
	cmd.Flags().StringVarP(&f.bad, "bad", "b", "", "Commit or version of the first known bad build")

	cmd.Flags().StringSliceVar(&f.avoid, "avoid", nil, "Commits to skip during bisection")
}

// config assembles the session config from the optional config file, the
// explicitly set flags and the persistent root flags.
func (f *sessionFlags) config(cmd *cobra.Command, log *logrus.Logger) (*vsbisect.Config, error) {
	cfg := vsbisect.NewConfig()
	if f.configPath != "" {
		file, err := os.Open(f.configPath)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("failed to open config file %s", f.configPath), err)
		}
		defer file.Close()
		if cfg, err = vsbisect.GetConfigFromReader(file); err != nil {
			return nil, errors.Join(fmt.Errorf("failed to read config from %s", f.configPath), err)
		}
	}

	changed := cmd.Flags().Changed
	var err error
	if changed("runtime") || f.configPath == "" {
		if cfg.Kind.Runtime, err = vsbisect.ParseRuntime(f.runtime); err != nil {
			return nil, err
		}
	}
	if changed("quality") || f.configPath == "" {
		if cfg.Kind.Quality, err = vsbisect.ParseQuality(f.quality); err != nil {
			return nil, err
		}
	}
	if changed("flavor") || f.configPath == "" {
		if cfg.Kind.Flavor, err = vsbisect.ParseFlavor(f.flavor); err != nil {
			return nil, err
		}
	}
	if changed("arch") {
		if cfg.Kind.Arch, err = vsbisect.ParseArch(f.arch); err != nil {
			return nil, err
		}
	}
	if changed("libc") {
		cfg.Kind.Libc = f.libc
	}
	if changed("good") {
		cfg.GoodBuild = f.good
	}
	if changed("bad") {
		cfg.BadBuild = f.bad
	}
	if changed("avoid") {
		cfg.AvoidedCommits = f.avoid
	}
	if changed("released") {
		cfg.ReleasedOnly = f.released
	}
	if changed("token") {
		cfg.Token = f.token
	}
	if changed("perf") {
		cfg.PerfCommand = f.perf
	}
	if changed("profile-template") {
		cfg.ProfileTemplate = f.profile
	}
	if changed("update-url") {
		cfg.UpdateServiceURL = f.updateURL
	}

	if cfg.DataDir = dataDir; cfg.DataDir == "" {
		if cfg.DataDir, err = vsbisect.DefaultDataDir(); err != nil {
			return nil, err
		}
	}
	cfg.ShowProgress = !noProgress && verbosity >= 0
	cfg.Log = log

	return cfg, nil
}

// newSession builds the component stack for one bisection session.
func newSession(cfg *vsbisect.Config, oracle vsbisect.Oracle) (*vsbisect.Session, error) {
	catalog := vsbisect.NewCatalog(cfg)
	cache, err := vsbisect.NewCache(cfg, catalog)
	if err != nil {
		return nil, err
	}
	launcher := vsbisect.NewLauncher(cfg, catalog, cache)
	return vsbisect.NewSession(cfg, catalog, launcher, oracle), nil
}

// fail logs a troubleshooting hint for the error class and exits non-zero.
func fail(err error) {
	switch {
	case errors.Is(err, vsbisect.ErrCatalogUnavailable):
		logrus.Error("The update service could not be reached or answered unexpectedly. Check your network and proxy settings, then try again.")
	case errors.Is(err, vsbisect.ErrIntegrity):
		logrus.Error("A downloaded build failed checksum verification and was discarded. Try again later, the publisher may be mid-release.")
	case errors.Is(err, vsbisect.ErrMissingExecutable):
		logrus.Error("A cached build is incomplete. Re-run with a forced re-download or purge the cache.")
	case errors.Is(err, vsbisect.ErrUnknownVersion), errors.Is(err, vsbisect.ErrCommitNotFound):
		logrus.Error("The given boundary does not resolve to a build. Pass a full commit hash or a version like 1.87, and mind that old builds expire from the update service.")
	}
	logrus.Fatalf("%v", err)
}
