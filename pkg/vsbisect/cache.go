package vsbisect

import (
	"archive/zip"
	"context"
	// Registers the hash behind the checksum verifier.
	_ "crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/opencontainers/go-digest"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
)

// Cache materializes builds on disk. Every build lives in its own entry
// folder under the builds directory, and the presence of that folder is
// trusted as completeness, so repeated probes of the same build never touch
// the network again.
type Cache struct {
	dir      string
	catalog  *Catalog
	log      *logrus.Logger
	progress bool
}

// NewCache creates the cache rooted at the configured builds directory.
func NewCache(cfg *Config, catalog *Catalog) (*Cache, error) {
	dir := cfg.BuildsDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to create builds directory %s", dir), err)
	}
	return &Cache{
		dir:      dir,
		catalog:  catalog,
		log:      cfg.Logger(),
		progress: cfg.ShowProgress,
	}, nil
}

// Dir returns the builds directory the cache operates on.
func (c *Cache) Dir() string {
	return c.dir
}

// Materialize ensures the build is present on disk and returns the path to
// launch: the executable for archive flavors, the downloaded file for
// installer flavors, and the empty string for kinds that fetch nothing
// locally. With force set, any existing entry is discarded first. A failed
// download, verification or extraction removes the entry so no corrupt state
// stays trusted.
func (c *Cache) Materialize(ctx context.Context, build Build, force bool) (string, error) {
	local, err := HasLocalArtifact(build.Kind)
	if err != nil {
		return "", err
	}
	if !local {
		return "", nil
	}

	entry := filepath.Join(c.dir, CacheFolderName(build.Kind, build.Commit))
	if force {
		if err := os.RemoveAll(entry); err != nil {
			return "", errors.Join(fmt.Errorf("failed to discard cache entry %s", entry), err)
		}
	}
	if _, err := os.Stat(entry); err == nil {
		c.log.WithField("commit", ShortCommit(build.Commit)).Debug("Build already materialized")
		return c.launchablePath(build.Kind, entry)
	}

	meta, err := c.catalog.ResolveCommit(ctx, build.Kind, build.Commit)
	if err != nil {
		return "", err
	}
	path, err := c.fill(ctx, build, meta, entry)
	if err != nil {
		if rmErr := os.RemoveAll(entry); rmErr != nil {
			c.log.WithError(rmErr).Warnf("Failed to clean up cache entry %s", entry)
		}
		return "", err
	}
	return path, nil
}

func (c *Cache) fill(ctx context.Context, build Build, meta BuildMeta, entry string) (string, error) {
	name, err := DownloadName(build.Kind, meta)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(entry, 0o755); err != nil {
		return "", errors.Join(fmt.Errorf("failed to create cache entry %s", entry), err)
	}

	artifact := filepath.Join(entry, name)
	if err := c.download(ctx, meta, artifact); err != nil {
		return "", err
	}
	if build.Kind.Flavor.IsInstaller() {
		return artifact, nil
	}

	if err := c.extract(artifact, entry); err != nil {
		return "", err
	}
	if err := os.Remove(artifact); err != nil {
		c.log.WithError(err).Warnf("Failed to remove archive %s after extraction", artifact)
	}
	return c.launchablePath(build.Kind, entry)
}

// launchablePath resolves what Materialize hands to the launcher for an
// existing entry. Installer entries hold a single file, archive entries hold
// the extracted tree with the executable at its platform path.
func (c *Cache) launchablePath(kind Kind, entry string) (string, error) {
	if kind.Flavor.IsInstaller() {
		entries, err := os.ReadDir(entry)
		if err != nil {
			return "", errors.Join(fmt.Errorf("failed to read cache entry %s", entry), err)
		}
		for _, e := range entries {
			if !e.IsDir() {
				return filepath.Join(entry, e.Name()), nil
			}
		}
		return "", fmt.Errorf("%w: no artifact file in %s", ErrMissingExecutable, entry)
	}

	rel, err := ExecutableRelPath(kind)
	if err != nil {
		return "", err
	}
	path := filepath.Join(entry, filepath.FromSlash(rel))
	if _, err := os.Stat(path); err != nil {
		return "", errors.Join(fmt.Errorf("%w: %s", ErrMissingExecutable, path), err)
	}
	return path, nil
}

func (c *Cache) download(ctx context.Context, meta BuildMeta, dst string) error {
	body, size, err := c.catalog.Fetch(ctx, meta.URL)
	if err != nil {
		return err
	}
	defer body.Close()

	f, err := os.Create(dst)
	if err != nil {
		return errors.Join(fmt.Errorf("failed to create %s", dst), err)
	}
	defer f.Close()

	var verifier digest.Verifier
	w := io.Writer(f)
	if meta.SHA256 != "" {
		verifier = digest.NewDigestFromEncoded(digest.SHA256, meta.SHA256).Verifier()
		w = io.MultiWriter(f, verifier)
	} else {
		c.log.WithField("url", meta.URL).Warn("Build publishes no checksum, skipping verification")
	}
	if c.progress {
		bar := progressbar.DefaultBytes(size, "Downloading "+filepath.Base(dst))
		w = io.MultiWriter(w, bar)
	}

	if _, err := io.Copy(w, body); err != nil {
		return errors.Join(fmt.Errorf("%w: transferring %s", ErrDownloadFailed, meta.URL), err)
	}
	if verifier != nil && !verifier.Verified() {
		return fmt.Errorf("%w: checksum mismatch for %s", ErrIntegrity, meta.URL)
	}
	return nil
}

func (c *Cache) extract(archive, dst string) error {
	var err error
	switch {
	case strings.HasSuffix(archive, ".zip"):
		err = unzip(archive, dst)
	case strings.HasSuffix(archive, ".tar.gz"):
		err = untar(archive, dst)
	default:
		return fmt.Errorf("%w: unrecognized archive format %s", ErrExtraction, filepath.Base(archive))
	}
	if err != nil {
		return errors.Join(fmt.Errorf("%w: extracting %s", ErrExtraction, filepath.Base(archive)), err)
	}
	return nil
}

// Entries lists the names of all materialized cache entries.
func (c *Cache) Entries() ([]string, error) {
	dirents, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to read builds directory %s", c.dir), err)
	}
	var names []string
	for _, e := range dirents {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Purge removes every materialized build.
func (c *Cache) Purge() error {
	if err := os.RemoveAll(c.dir); err != nil {
		return errors.Join(fmt.Errorf("failed to remove builds directory %s", c.dir), err)
	}
	return os.MkdirAll(c.dir, 0o755)
}

// unzip extracts a zip archive. Windows ships no unzip tool and its native
// alternatives mangle long paths, so extraction runs in process there. On
// macOS and Linux the system unzip restores application bundle symlinks and
// permissions faithfully.
func unzip(archive, dst string) error {
	if runtime.GOOS == "windows" {
		return unzipNative(archive, dst)
	}
	if out, err := exec.Command("unzip", "-q", archive, "-d", dst).CombinedOutput(); err != nil {
		return errors.Join(fmt.Errorf("unzip of %s exited with output: %s", archive, out), err)
	}
	return nil
}

func unzipNative(archive, dst string) error {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		target, err := safeJoin(dst, f.Name)
		if err != nil {
			return err
		}
		info := f.FileInfo()
		if info.IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			link, err := io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return err
			}
			if err := os.Symlink(string(link), target); err != nil {
				return err
			}
			continue
		}
		out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
		if err != nil {
			rc.Close()
			return err
		}
		_, err = io.Copy(out, rc)
		rc.Close()
		if closeErr := out.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// untar extracts a gzipped tarball with the system tar. The destination has
// to exist before tar runs, it refuses to create it itself.
func untar(archive, dst string) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	if out, err := exec.Command("tar", "-xzf", archive, "-C", dst).CombinedOutput(); err != nil {
		return errors.Join(fmt.Errorf("tar extraction of %s exited with output: %s", archive, out), err)
	}
	return nil
}

// safeJoin joins an archive member name onto dst and rejects names that would
// escape it.
func safeJoin(dst, name string) (string, error) {
	target := filepath.Join(dst, filepath.FromSlash(name))
	if target != filepath.Clean(dst) && !strings.HasPrefix(target, filepath.Clean(dst)+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive member %s escapes extraction root", name)
	}
	return target, nil
}
