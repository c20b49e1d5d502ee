package vsbisect

import "errors"

// Sentinel errors for every failure class the interactive layer needs to tell
// apart. All of them are returned wrapped; match with errors.Is.
var (
	// ErrCatalogUnavailable signals a bad HTTP status or response shape from
	// the update API. The session aborts with a troubleshooting hint.
	ErrCatalogUnavailable = errors.New("update service unavailable")

	// ErrUnknownVersion signals that a major.minor version has no matching
	// artifact on the update service.
	ErrUnknownVersion = errors.New("unknown version")

	// ErrCommitNotFound signals that a good/bad boundary commit is absent from
	// both the unreleased and the released commit lists.
	ErrCommitNotFound = errors.New("commit not found")

	// ErrInvalidRange signals that the bad boundary is not strictly newer than
	// the good boundary. Raised before any build is launched.
	ErrInvalidRange = errors.New("invalid bisect range")

	// ErrIntegrity signals a checksum mismatch on a downloaded artifact. Fatal
	// for the step; the corrupt download is never left behind as a cache entry.
	ErrIntegrity = errors.New("artifact checksum mismatch")

	// ErrDownloadFailed signals network failure while streaming an artifact.
	ErrDownloadFailed = errors.New("download failed")

	// ErrExtraction signals that the archive tool failed to unpack an artifact.
	ErrExtraction = errors.New("extraction failed")

	// ErrMissingExecutable signals that the expected binary is absent after
	// extraction, which means a corrupt or incompatible archive.
	ErrMissingExecutable = errors.New("executable missing after extraction")

	// ErrUnsupportedPlatform signals a (runtime, OS, flavor) combination with
	// no naming rule. This is a programming or configuration error.
	ErrUnsupportedPlatform = errors.New("unsupported platform combination")
)

// Recoverable reports whether the interactive layer should offer a retry with
// an optional forced re-download for err, rather than aborting the session.
func Recoverable(err error) bool {
	return errors.Is(err, ErrDownloadFailed) || errors.Is(err, ErrExtraction) || errors.Is(err, ErrMissingExecutable)
}
