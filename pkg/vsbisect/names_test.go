package vsbisect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlatformToken(t *testing.T) {
	values := []struct {
		kind  Kind
		token string
	}{
		{Kind{RuntimeDesktop, QualityInsider, FlavorDefault, "darwin", "x64", ""}, "darwin"},
		{Kind{RuntimeDesktop, QualityInsider, FlavorDefault, "darwin", "arm64", ""}, "darwin-arm64"},
		{Kind{RuntimeDesktop, QualityInsider, FlavorDarwinUniversal, "darwin", "x64", ""}, "darwin-universal"},
		{Kind{RuntimeDesktop, QualityInsider, FlavorDefault, "windows", "x64", ""}, "win32-x64-archive"},
		{Kind{RuntimeDesktop, QualityInsider, FlavorDefault, "linux", "arm64", ""}, "linux-arm64"},
		{Kind{RuntimeDesktop, QualityStable, FlavorWindowsUserInstaller, "windows", "x64", ""}, "win32-x64-user"},
		{Kind{RuntimeDesktop, QualityStable, FlavorWindowsSystemInstaller, "windows", "arm64", ""}, "win32-arm64"},
		{Kind{RuntimeDesktop, QualityStable, FlavorLinuxDeb, "linux", "x64", ""}, "linux-deb-x64"},
		{Kind{RuntimeDesktop, QualityStable, FlavorLinuxRPM, "linux", "arm64", ""}, "linux-rpm-arm64"},
		{Kind{RuntimeDesktop, QualityStable, FlavorLinuxSnap, "linux", "x64", ""}, "linux-snap-x64"},
		{Kind{RuntimeDesktop, QualityInsider, FlavorCli, "darwin", "arm64", ""}, "cli-darwin-arm64"},
		{Kind{RuntimeDesktop, QualityInsider, FlavorCli, "linux", "x64", ""}, "cli-linux-x64"},
		{Kind{RuntimeDesktop, QualityInsider, FlavorCli, "windows", "x64", ""}, "cli-win32-x64"},
		{Kind{RuntimeDesktop, QualityInsider, FlavorCliContainer, "linux", "x64", "musl"}, "cli-alpine-x64"},
		{Kind{RuntimeDesktop, QualityInsider, FlavorCliContainer, "darwin", "arm64", "glibc"}, "cli-linux-arm64"},
		{Kind{RuntimeWebLocal, QualityInsider, FlavorDefault, "darwin", "x64", ""}, "server-darwin-web"},
		{Kind{RuntimeWebLocal, QualityInsider, FlavorDefault, "darwin", "arm64", ""}, "server-darwin-arm64-web"},
		{Kind{RuntimeWebLocal, QualityInsider, FlavorDefault, "linux", "x64", ""}, "server-linux-x64-web"},
		{Kind{RuntimeWebLocal, QualityInsider, FlavorDefault, "windows", "x64", ""}, "server-win32-x64-web"},
		{Kind{RuntimeWebRemote, QualityInsider, FlavorDefault, "darwin", "arm64", ""}, "server-linux-x64-web"},
	}

	for i, v := range values {
		token, err := PlatformToken(v.kind)
		assert.Nilf(t, err, "PlatformToken returned an error in test %d", i)
		assert.Equalf(t, v.token, token, "Wrong platform token in test %d", i)
	}
}

func TestPlatformTokenUnsupported(t *testing.T) {
	_, err := PlatformToken(Kind{RuntimeWebLocal, QualityInsider, FlavorLinuxDeb, "linux", "x64", ""})
	assert.ErrorIs(t, err, ErrUnsupportedPlatform, "Unknown combination not rejected")
}

func TestDownloadName(t *testing.T) {
	values := []struct {
		kind Kind
		meta BuildMeta
		name string
	}{
		{Kind{RuntimeDesktop, QualityInsider, FlavorDefault, "darwin", "x64", ""}, BuildMeta{}, "VSCode-darwin.zip"},
		{Kind{RuntimeDesktop, QualityInsider, FlavorDefault, "darwin", "arm64", ""}, BuildMeta{}, "VSCode-darwin-arm64.zip"},
		{Kind{RuntimeDesktop, QualityInsider, FlavorDarwinUniversal, "darwin", "x64", ""}, BuildMeta{}, "VSCode-darwin-universal.zip"},
		{Kind{RuntimeDesktop, QualityInsider, FlavorDefault, "windows", "x64", ""}, BuildMeta{ProductVersion: "1.87.0-insider"}, "VSCode-win32-x64-1.87.0-insider.zip"},
		{Kind{RuntimeDesktop, QualityInsider, FlavorDefault, "linux", "x64", ""}, BuildMeta{URL: "https://host/insider/abc/code-insider-x64-1719837134.tar.gz"}, "code-insider-x64-1719837134.tar.gz"},
		{Kind{RuntimeDesktop, QualityStable, FlavorWindowsUserInstaller, "windows", "x64", ""}, BuildMeta{ProductVersion: "1.87.2"}, "VSCodeUserSetup-x64-1.87.2.exe"},
		{Kind{RuntimeDesktop, QualityStable, FlavorWindowsSystemInstaller, "windows", "arm64", ""}, BuildMeta{ProductVersion: "1.87.2"}, "VSCodeSetup-arm64-1.87.2.exe"},
		{Kind{RuntimeDesktop, QualityStable, FlavorLinuxDeb, "linux", "x64", ""}, BuildMeta{URL: "https://host/stable/abc/code_1.87.2-1708000000_amd64.deb"}, "code_1.87.2-1708000000_amd64.deb"},
		{Kind{RuntimeDesktop, QualityInsider, FlavorCli, "linux", "x64", ""}, BuildMeta{}, "vscode_cli_linux_x64_cli.tar.gz"},
		{Kind{RuntimeDesktop, QualityInsider, FlavorCli, "windows", "arm64", ""}, BuildMeta{}, "vscode_cli_win32_arm64_cli.zip"},
		{Kind{RuntimeWebLocal, QualityInsider, FlavorDefault, "linux", "x64", ""}, BuildMeta{}, "vscode-server-linux-x64-web.tar.gz"},
		{Kind{RuntimeWebLocal, QualityInsider, FlavorDefault, "darwin", "arm64", ""}, BuildMeta{}, "vscode-server-darwin-arm64-web.zip"},
	}

	for i, v := range values {
		name, err := DownloadName(v.kind, v.meta)
		assert.Nilf(t, err, "DownloadName returned an error in test %d", i)
		assert.Equalf(t, v.name, name, "Wrong download name in test %d", i)
	}
}

func TestDownloadNameMissingMetadata(t *testing.T) {
	// Windows archive names carry the product version, Linux ones the URL
	// basename. Without that metadata no name can be derived.
	_, err := DownloadName(Kind{RuntimeDesktop, QualityInsider, FlavorDefault, "windows", "x64", ""}, BuildMeta{})
	assert.ErrorIs(t, err, ErrUnsupportedPlatform, "Missing product version not rejected")

	_, err = DownloadName(Kind{RuntimeDesktop, QualityInsider, FlavorDefault, "linux", "x64", ""}, BuildMeta{})
	assert.ErrorIs(t, err, ErrUnsupportedPlatform, "Missing URL not rejected")

	_, err = DownloadName(Kind{RuntimeDesktop, QualityInsider, FlavorCliContainer, "linux", "x64", "musl"}, BuildMeta{})
	assert.ErrorIs(t, err, ErrUnsupportedPlatform, "Container flavor yielded a download name")
}

func TestExecutableRelPath(t *testing.T) {
	values := []struct {
		kind Kind
		exe  string
	}{
		{Kind{RuntimeDesktop, QualityInsider, FlavorDefault, "darwin", "x64", ""}, "Visual Studio Code - Insiders.app/Contents/MacOS/Electron"},
		{Kind{RuntimeDesktop, QualityStable, FlavorDarwinUniversal, "darwin", "x64", ""}, "Visual Studio Code.app/Contents/MacOS/Electron"},
		{Kind{RuntimeDesktop, QualityInsider, FlavorDefault, "windows", "x64", ""}, "Code - Insiders.exe"},
		{Kind{RuntimeDesktop, QualityStable, FlavorDefault, "linux", "x64", ""}, "VSCode-linux-x64/code"},
		{Kind{RuntimeDesktop, QualityInsider, FlavorDefault, "linux", "arm64", ""}, "VSCode-linux-arm64/code-insiders"},
		{Kind{RuntimeDesktop, QualityInsider, FlavorCli, "linux", "x64", ""}, "code-insiders"},
		{Kind{RuntimeDesktop, QualityStable, FlavorCli, "windows", "x64", ""}, "code.exe"},
		{Kind{RuntimeWebLocal, QualityInsider, FlavorDefault, "linux", "x64", ""}, "vscode-server-linux-x64-web/bin/code-server-insiders"},
		{Kind{RuntimeWebLocal, QualityStable, FlavorDefault, "windows", "x64", ""}, "vscode-server-win32-x64-web/bin/code-server.cmd"},
		{Kind{RuntimeWebLocal, QualityExploration, FlavorDefault, "darwin", "arm64", ""}, "vscode-server-darwin-arm64-web/bin/code-server-exploration"},
	}

	for i, v := range values {
		exe, err := ExecutableRelPath(v.kind)
		assert.Nilf(t, err, "ExecutableRelPath returned an error in test %d", i)
		assert.Equalf(t, v.exe, exe, "Wrong executable path in test %d", i)
	}
}

func TestExecutableRelPathInstallers(t *testing.T) {
	// Installer artifacts hold no executable, the installed application does.
	_, err := ExecutableRelPath(Kind{RuntimeDesktop, QualityStable, FlavorLinuxDeb, "linux", "x64", ""})
	assert.ErrorIs(t, err, ErrUnsupportedPlatform, "Installer flavor yielded an in-archive executable")
}

func TestHasLocalArtifact(t *testing.T) {
	local, err := HasLocalArtifact(Kind{RuntimeDesktop, QualityInsider, FlavorDefault, "linux", "x64", ""})
	assert.Nil(t, err)
	assert.True(t, local, "Archive flavor reported no local artifact")

	local, err = HasLocalArtifact(Kind{RuntimeDesktop, QualityInsider, FlavorCliContainer, "linux", "x64", "musl"})
	assert.Nil(t, err)
	assert.False(t, local, "Container flavor reported a local artifact")

	local, err = HasLocalArtifact(Kind{RuntimeWebRemote, QualityInsider, FlavorDefault, "linux", "x64", ""})
	assert.Nil(t, err)
	assert.False(t, local, "Hosted runtime reported a local artifact")
}

func TestCacheFolderName(t *testing.T) {
	commit := "0123456789abcdef0123456789abcdef01234567"

	values := []struct {
		kind   Kind
		folder string
	}{
		{Kind{RuntimeDesktop, QualityInsider, FlavorDefault, "linux", "x64", ""}, commit},
		{Kind{RuntimeDesktop, QualityStable, FlavorDefault, "linux", "x64", ""}, "stable-" + commit},
		{Kind{RuntimeDesktop, QualityInsider, FlavorCli, "linux", "x64", ""}, "cli-" + commit},
		{Kind{RuntimeDesktop, QualityStable, FlavorLinuxDeb, "linux", "x64", ""}, "stable-deb-" + commit},
		{Kind{RuntimeDesktop, QualityInsider, FlavorDefault, "windows", "x64", ""}, ShortCommit(commit)},
		{Kind{RuntimeDesktop, QualityStable, FlavorDefault, "windows", "x64", ""}, "stable-" + ShortCommit(commit)},
	}

	for i, v := range values {
		assert.Equalf(t, v.folder, CacheFolderName(v.kind, commit), "Wrong cache folder in test %d", i)
	}
}

func TestInstalledAppPath(t *testing.T) {
	app, err := InstalledAppPath(Kind{RuntimeDesktop, QualityInsider, FlavorLinuxDeb, "linux", "x64", ""})
	assert.Nil(t, err)
	assert.Equal(t, "code-insiders", app, "Wrong installed path for deb")

	app, err = InstalledAppPath(Kind{RuntimeDesktop, QualityStable, FlavorLinuxSnap, "linux", "x64", ""})
	assert.Nil(t, err)
	assert.Equal(t, "/snap/bin/code", app, "Wrong installed path for snap")

	app, err = InstalledAppPath(Kind{RuntimeDesktop, QualityStable, FlavorWindowsUserInstaller, "windows", "x64", ""})
	assert.Nil(t, err)
	assert.Contains(t, app, "Microsoft VS Code", "Wrong installed path for the user installer")

	_, err = InstalledAppPath(Kind{RuntimeDesktop, QualityStable, FlavorDefault, "linux", "x64", ""})
	assert.ErrorIs(t, err, ErrUnsupportedPlatform, "Archive flavor yielded an installed path")
}
