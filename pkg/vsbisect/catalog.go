package vsbisect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/sirupsen/logrus"
)

// userAgent identifies this tool to the update service.
const userAgent = "vsbisect"

// Catalog talks to the update service that publishes build lists, build
// metadata and the artifacts themselves.
type Catalog struct {
	baseURL string
	api     *http.Client
	dl      *http.Client
	log     *logrus.Logger
}

// NewCatalog creates a catalog client for the configured update service.
func NewCatalog(cfg *Config) *Catalog {
	return &Catalog{
		baseURL: strings.TrimSuffix(cfg.UpdateServiceURL, "/"),
		api:     &http.Client{Timeout: 30 * time.Second},
		dl:      &http.Client{},
		log:     cfg.Logger(),
	}
}

// ListCommits returns the commits with available builds for the kind, newest
// first. With releasedOnly set, only commits of released builds are listed.
func (c *Catalog) ListCommits(ctx context.Context, kind Kind, releasedOnly bool) ([]string, error) {
	platform, err := PlatformToken(kind)
	if err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("%s/api/commits/%s/%s?released=%t", c.baseURL, kind.Quality, platform, releasedOnly)
	c.log.WithField("endpoint", endpoint).Debug("Fetching commit list")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to create request for %s", endpoint), err)
	}
	req.Header.Set("User-Agent", userAgent)
	res, err := c.api.Do(req)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("%w: requesting %s", ErrCatalogUnavailable, endpoint), err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned status %s", ErrCatalogUnavailable, endpoint, res.Status)
	}

	var commits []string
	if err := json.NewDecoder(res.Body).Decode(&commits); err != nil {
		return nil, errors.Join(fmt.Errorf("%w: failed to decode commit list from %s", ErrCatalogUnavailable, endpoint), err)
	}
	c.log.WithField("commits", len(commits)).Debug("Fetched commit list")
	return commits, nil
}

// ResolveVersion resolves a release version like "1.87" or "1.87.2" to the
// metadata of its build for the kind.
func (c *Catalog) ResolveVersion(ctx context.Context, kind Kind, version string) (BuildMeta, error) {
	if !LooksLikeVersion(version) {
		return BuildMeta{}, fmt.Errorf("%w: %q is not a release version", ErrUnknownVersion, version)
	}
	platform, err := PlatformToken(kind)
	if err != nil {
		return BuildMeta{}, err
	}
	endpoint := fmt.Sprintf("%s/api/versions/%s/%s/%s", c.baseURL, version, platform, kind.Quality)
	notFound := fmt.Errorf("%w: no %s build for version %s on %s", ErrUnknownVersion, kind.Quality, version, platform)
	return c.fetchMeta(ctx, endpoint, notFound)
}

// ResolveCommit resolves a full commit hash to the metadata of its build for
// the kind.
func (c *Catalog) ResolveCommit(ctx context.Context, kind Kind, commit string) (BuildMeta, error) {
	platform, err := PlatformToken(kind)
	if err != nil {
		return BuildMeta{}, err
	}
	endpoint := fmt.Sprintf("%s/api/versions/commit:%s/%s/%s", c.baseURL, commit, platform, kind.Quality)
	notFound := fmt.Errorf("%w: no %s build for commit %s on %s", ErrCommitNotFound, kind.Quality, ShortCommit(commit), platform)
	return c.fetchMeta(ctx, endpoint, notFound)
}

func (c *Catalog) fetchMeta(ctx context.Context, endpoint string, notFound error) (BuildMeta, error) {
	c.log.WithField("endpoint", endpoint).Debug("Fetching build metadata")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return BuildMeta{}, errors.Join(fmt.Errorf("failed to create request for %s", endpoint), err)
	}
	req.Header.Set("User-Agent", userAgent)
	res, err := c.api.Do(req)
	if err != nil {
		return BuildMeta{}, errors.Join(fmt.Errorf("%w: requesting %s", ErrCatalogUnavailable, endpoint), err)
	}
	defer res.Body.Close()
	switch {
	case res.StatusCode == http.StatusNotFound:
		return BuildMeta{}, notFound
	case res.StatusCode != http.StatusOK:
		return BuildMeta{}, fmt.Errorf("%w: %s returned status %s", ErrCatalogUnavailable, endpoint, res.Status)
	}

	var meta BuildMeta
	if err := json.NewDecoder(res.Body).Decode(&meta); err != nil {
		return BuildMeta{}, errors.Join(fmt.Errorf("%w: failed to decode build metadata from %s", ErrCatalogUnavailable, endpoint), err)
	}
	if meta.URL == "" {
		return BuildMeta{}, notFound
	}
	return meta, nil
}

// Fetch opens the artifact at rawURL for reading. The caller closes the
// returned body. The reported size is -1 when the server does not state it.
func (c *Catalog) Fetch(ctx context.Context, rawURL string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, errors.Join(fmt.Errorf("failed to create request for %s", rawURL), err)
	}
	req.Header.Set("User-Agent", userAgent)
	res, err := c.dl.Do(req)
	if err != nil {
		return nil, 0, errors.Join(fmt.Errorf("%w: requesting %s", ErrDownloadFailed, rawURL), err)
	}
	if res.StatusCode != http.StatusOK {
		res.Body.Close()
		return nil, 0, fmt.Errorf("%w: %s returned status %s", ErrDownloadFailed, rawURL, res.Status)
	}
	return res.Body, res.ContentLength, nil
}

// DirectDownloadURL returns the stable artifact URL of a build, suitable for
// fetching from inside a container without resolving metadata first.
func (c *Catalog) DirectDownloadURL(build Build) (string, error) {
	platform, err := PlatformToken(build.Kind)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/commit:%s/%s/%s", c.baseURL, build.Commit, platform, build.Kind.Quality), nil
}

// LooksLikeVersion reports whether s reads as a release version like "1.87"
// or "1.87.2" rather than a commit hash.
func LooksLikeVersion(s string) bool {
	if IsCommit(s) {
		return false
	}
	_, err := semver.NewVersion(strings.TrimSuffix(s, "-insider"))
	return err == nil
}
