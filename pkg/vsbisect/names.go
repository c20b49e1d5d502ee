package vsbisect

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// downloadStrategy states how a build's remote filename is obtained. Most
// platforms publish under a fixed name, but Windows encodes the product
// version and Linux encodes a build timestamp, so those names have to be
// derived from the build metadata instead of a static pattern.
type downloadStrategy int

const (
	downloadStatic downloadStrategy = iota
	downloadFromVersion
	downloadFromURL
	downloadNone
)

// namingRule is one row of the platform table: the update-API platform token,
// the download-name strategy with its template, and the executable path
// relative to the extracted cache folder. Templates may use {arch},
// {archsuffix}, {clibase}, {version}, {app}, {win}, {bin} and {server}.
type namingRule struct {
	platform string
	strategy downloadStrategy
	download string
	exe      string
}

type namingKey struct {
	runtime Runtime
	os      string
	flavor  Flavor
}

// qualityNames carries the quality-dependent spellings that appear in app
// bundle names, binary names and server script names.
var qualityNames = map[Quality]struct {
	app    string
	win    string
	bin    string
	server string
	dir    string
}{
	QualityStable:      {"Visual Studio Code", "Code", "code", "code-server", "Microsoft VS Code"},
	QualityInsider:     {"Visual Studio Code - Insiders", "Code - Insiders", "code-insiders", "code-server-insiders", "Microsoft VS Code Insiders"},
	QualityExploration: {"Visual Studio Code - Exploration", "Code - Exploration", "code-exploration", "code-server-exploration", "Microsoft VS Code Exploration"},
}

// namingRules maps (runtime, OS, flavor) to the row describing its artifact
// names. Adding a platform or flavor is an edit here, not new code. Container
// flavors and the hosted web runtime are keyed under the synthetic "any" OS
// because the host OS does not influence their naming.
var namingRules = map[namingKey]namingRule{
	// Desktop archives
	{RuntimeDesktop, "darwin", FlavorDefault}:         {"darwin{archsuffix}", downloadStatic, "VSCode-darwin{archsuffix}.zip", "{app}.app/Contents/MacOS/Electron"},
	{RuntimeDesktop, "darwin", FlavorDarwinUniversal}: {"darwin-universal", downloadStatic, "VSCode-darwin-universal.zip", "{app}.app/Contents/MacOS/Electron"},
	{RuntimeDesktop, "windows", FlavorDefault}:        {"win32-{arch}-archive", downloadFromVersion, "VSCode-win32-{arch}-{version}.zip", "{win}.exe"},
	{RuntimeDesktop, "linux", FlavorDefault}:          {"linux-{arch}", downloadFromURL, "", "VSCode-linux-{arch}/{bin}"},

	// Desktop installers. The artifact is the installer file itself; the
	// executable of interest is the installed application, see InstalledAppPath.
	{RuntimeDesktop, "windows", FlavorWindowsUserInstaller}:   {"win32-{arch}-user", downloadFromVersion, "VSCodeUserSetup-{arch}-{version}.exe", ""},
	{RuntimeDesktop, "windows", FlavorWindowsSystemInstaller}: {"win32-{arch}", downloadFromVersion, "VSCodeSetup-{arch}-{version}.exe", ""},
	{RuntimeDesktop, "linux", FlavorLinuxDeb}:                 {"linux-deb-{arch}", downloadFromURL, "", ""},
	{RuntimeDesktop, "linux", FlavorLinuxRPM}:                 {"linux-rpm-{arch}", downloadFromURL, "", ""},
	{RuntimeDesktop, "linux", FlavorLinuxSnap}:                {"linux-snap-{arch}", downloadFromURL, "", ""},

	// Standalone CLI
	{RuntimeDesktop, "darwin", FlavorCli}:  {"cli-darwin-{arch}", downloadStatic, "vscode_cli_darwin_{arch}_cli.zip", "{bin}"},
	{RuntimeDesktop, "linux", FlavorCli}:   {"cli-linux-{arch}", downloadStatic, "vscode_cli_linux_{arch}_cli.tar.gz", "{bin}"},
	{RuntimeDesktop, "windows", FlavorCli}: {"cli-win32-{arch}", downloadStatic, "vscode_cli_win32_{arch}_cli.zip", "{bin}.exe"},

	// Containerized CLI: the container fetches the build itself, nothing is
	// materialized locally.
	{RuntimeDesktop, "any", FlavorCliContainer}:  {"cli-{clibase}-{arch}", downloadNone, "", ""},
	{RuntimeWebLocal, "any", FlavorCliContainer}: {"cli-{clibase}-{arch}", downloadNone, "", ""},

	// Local web server
	{RuntimeWebLocal, "darwin", FlavorDefault}:  {"server-darwin{archsuffix}-web", downloadStatic, "vscode-server-darwin{archsuffix}-web.zip", "vscode-server-darwin{archsuffix}-web/bin/{server}"},
	{RuntimeWebLocal, "linux", FlavorDefault}:   {"server-linux-{arch}-web", downloadStatic, "vscode-server-linux-{arch}-web.tar.gz", "vscode-server-linux-{arch}-web/bin/{server}"},
	{RuntimeWebLocal, "windows", FlavorDefault}: {"server-win32-{arch}-web", downloadStatic, "vscode-server-win32-{arch}-web.zip", "vscode-server-win32-{arch}-web/bin/{server}.cmd"},

	// Hosted web: commits are listed against the web server platform, no
	// artifact is fetched.
	{RuntimeWebRemote, "any", FlavorDefault}: {"server-linux-x64-web", downloadNone, "", ""},
}

func ruleFor(kind Kind) (namingRule, error) {
	key := namingKey{kind.Runtime, kind.OS, kind.Flavor}
	if kind.Flavor == FlavorCliContainer || kind.Runtime == RuntimeWebRemote {
		key.os = "any"
	}
	rule, ok := namingRules[key]
	if !ok {
		return namingRule{}, fmt.Errorf("%w: runtime %s, os %s, flavor %s", ErrUnsupportedPlatform, kind.Runtime, kind.OS, kind.Flavor)
	}
	return rule, nil
}

func expand(tpl string, kind Kind, meta BuildMeta) string {
	names := qualityNames[kind.Quality]
	archSuffix := ""
	if kind.Arch != "x64" {
		archSuffix = "-" + kind.Arch
	}
	cliBase := "alpine"
	if strings.EqualFold(kind.Libc, "glibc") {
		cliBase = "linux"
	}
	return strings.NewReplacer(
		"{arch}", kind.Arch,
		"{archsuffix}", archSuffix,
		"{clibase}", cliBase,
		"{version}", meta.ProductVersion,
		"{app}", names.app,
		"{win}", names.win,
		"{bin}", names.bin,
		"{server}", names.server,
	).Replace(tpl)
}

// PlatformToken returns the update-API platform identifier for the kind.
func PlatformToken(kind Kind) (string, error) {
	rule, err := ruleFor(kind)
	if err != nil {
		return "", err
	}
	return expand(rule.platform, kind, BuildMeta{}), nil
}

// HasLocalArtifact reports whether the kind has anything to download at all.
// Container-delegated and hosted kinds have nothing.
func HasLocalArtifact(kind Kind) (bool, error) {
	rule, err := ruleFor(kind)
	if err != nil {
		return false, err
	}
	return rule.strategy != downloadNone, nil
}

// DownloadName returns the remote filename of the kind's artifact. Platforms
// with irregular names need the build metadata to derive it.
func DownloadName(kind Kind, meta BuildMeta) (string, error) {
	rule, err := ruleFor(kind)
	if err != nil {
		return "", err
	}
	switch rule.strategy {
	case downloadStatic:
		return expand(rule.download, kind, meta), nil
	case downloadFromVersion:
		if meta.ProductVersion == "" {
			return "", fmt.Errorf("%w: product version required to name %s download", ErrUnsupportedPlatform, kind.OS)
		}
		return expand(rule.download, kind, meta), nil
	case downloadFromURL:
		if meta.URL == "" {
			return "", fmt.Errorf("%w: download URL required to name %s download", ErrUnsupportedPlatform, kind.OS)
		}
		if u, err := url.Parse(meta.URL); err == nil && u.Path != "" {
			return path.Base(u.Path), nil
		}
		return path.Base(meta.URL), nil
	}
	return "", fmt.Errorf("%w: no downloadable artifact for runtime %s flavor %s", ErrUnsupportedPlatform, kind.Runtime, kind.Flavor)
}

// ExecutableRelPath returns the path of the launchable binary relative to the
// extracted cache folder.
func ExecutableRelPath(kind Kind) (string, error) {
	rule, err := ruleFor(kind)
	if err != nil {
		return "", err
	}
	if rule.exe == "" {
		return "", fmt.Errorf("%w: no in-archive executable for runtime %s flavor %s", ErrUnsupportedPlatform, kind.Runtime, kind.Flavor)
	}
	return expand(rule.exe, kind, BuildMeta{}), nil
}

// CacheFolderName returns the cache folder for a build. Non-default quality
// and flavor are prefixed so entries never collide, and the commit is
// shortened on Windows where deep paths inside the extracted archive would
// otherwise exceed path-length limits.
func CacheFolderName(kind Kind, commit string) string {
	var b strings.Builder
	if kind.Quality != QualityInsider {
		b.WriteString(kind.Quality.String())
		b.WriteString("-")
	}
	if kind.Flavor != FlavorDefault {
		b.WriteString(kind.Flavor.String())
		b.WriteString("-")
	}
	if kind.OS == "windows" {
		b.WriteString(ShortCommit(commit))
	} else {
		b.WriteString(commit)
	}
	return b.String()
}

// InstalledAppPath returns the conventional location of the application after
// an installer-flavor artifact has been installed. For Linux package flavors
// this is the binary name resolved through PATH or the snap bin directory.
func InstalledAppPath(kind Kind) (string, error) {
	names := qualityNames[kind.Quality]
	switch kind.Flavor {
	case FlavorWindowsUserInstaller:
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "Programs", names.dir, names.win+".exe"), nil
	case FlavorWindowsSystemInstaller:
		return filepath.Join(os.Getenv("ProgramFiles"), names.dir, names.win+".exe"), nil
	case FlavorLinuxDeb, FlavorLinuxRPM:
		return names.bin, nil
	case FlavorLinuxSnap:
		return "/snap/bin/" + names.bin, nil
	}
	return "", fmt.Errorf("%w: flavor %s does not install", ErrUnsupportedPlatform, kind.Flavor)
}
