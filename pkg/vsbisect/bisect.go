package vsbisect

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/sirupsen/logrus"
)

// Verdict is the tester's answer for one launched build.
type Verdict int

const (
	// VerdictGood means the build does not exhibit the issue.
	VerdictGood Verdict = iota
	// VerdictBad means the build exhibits the issue.
	VerdictBad
	// VerdictQuit ends the session without narrowing further.
	VerdictQuit
	// VerdictRetry relaunches the same build without consuming a step.
	VerdictRetry
	// VerdictRetryFresh relaunches the same build with the user data
	// directory wiped first.
	VerdictRetryFresh
)

func (v Verdict) String() string {
	switch v {
	case VerdictGood:
		return "good"
	case VerdictBad:
		return "bad"
	case VerdictQuit:
		return "quit"
	case VerdictRetry:
		return "retry"
	case VerdictRetryFresh:
		return "retry-fresh"
	}
	return fmt.Sprintf("verdict(%d)", int(v))
}

// ParseVerdict maps a verdict name to a Verdict.
func ParseVerdict(s string) (Verdict, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "good":
		return VerdictGood, nil
	case "bad":
		return VerdictBad, nil
	case "quit":
		return VerdictQuit, nil
	case "retry":
		return VerdictRetry, nil
	case "retry-fresh", "retryfresh":
		return VerdictRetryFresh, nil
	}
	return 0, fmt.Errorf("invalid verdict %q (expected good, bad, retry, retry-fresh or quit)", s)
}

// An Oracle answers the questions a session cannot decide on its own. The
// terminal prompt and the REST server both implement it.
type Oracle interface {
	// Verdict rates the launched instance. It blocks until the tester
	// answered and returns exactly one verdict per call.
	Verdict(ctx context.Context, inst *Instance) (Verdict, error)

	// Confirm asks a yes/no question, used for manual install steps and for
	// retry offers after a failed launch.
	Confirm(ctx context.Context, question string) (bool, error)
}

// Outcome reports how a bisection session ended.
type Outcome struct {
	// Good is the newest build the tester rated good, nil if none was.
	Good *Build
	// Bad is the oldest build the tester rated bad, nil if none was.
	Bad *Build

	// Steps counts the good and bad verdicts the tester gave.
	Steps int
	// Candidates is the number of builds in the filtered search range.
	Candidates int
	// Quit is set when the tester ended the session early.
	Quit bool
}

// String renders the result the way it is reported to the tester.
func (o *Outcome) String() string {
	switch {
	case o.Candidates < 2:
		return "insufficient builds to bisect, the range holds fewer than two candidates"
	case o.Quit && o.Good == nil && o.Bad == nil:
		return "bisection aborted before any verdict"
	case o.Good != nil && o.Bad != nil:
		return fmt.Sprintf("issue appears between %s (good) and %s (bad)", ShortCommit(o.Good.Commit), ShortCommit(o.Bad.Commit))
	case o.Bad != nil:
		return fmt.Sprintf("all examined builds are bad, the issue is older than %s", ShortCommit(o.Bad.Commit))
	case o.Good != nil:
		return fmt.Sprintf("all examined builds are good, the issue is newer than %s", ShortCommit(o.Good.Commit))
	}
	return "bisection ended without verdicts"
}

// DiffURL returns the upstream comparison between the good and the bad
// commit, or the empty string unless both boundaries are known.
func (o *Outcome) DiffURL() string {
	if o.Good == nil || o.Bad == nil {
		return ""
	}
	return fmt.Sprintf("https://github.com/microsoft/vscode/compare/%s...%s", o.Good.Commit, o.Bad.Commit)
}

// Session drives one bisection: it resolves the candidate range once and then
// launches one build at a time, narrowing the range after every verdict.
type Session struct {
	cfg      *Config
	catalog  *Catalog
	launcher *Launcher
	oracle   Oracle
	log      *logrus.Logger

	launch func(ctx context.Context, build Build, opts LaunchOptions) (*Instance, error)
}

// NewSession creates a session over the given components. The launcher's
// confirmation hook is wired to the oracle so manual install steps reach the
// tester.
func NewSession(cfg *Config, catalog *Catalog, launcher *Launcher, oracle Oracle) *Session {
	if launcher.Confirm == nil {
		launcher.Confirm = oracle.Confirm
	}
	return &Session{
		cfg:      cfg,
		catalog:  catalog,
		launcher: launcher,
		oracle:   oracle,
		log:      cfg.Logger(),
		launch:   launcher.Launch,
	}
}

// Run performs the bisection and reports the outcome. Boundary and range
// errors surface before any build is launched. Errors of a single step do not
// corrupt the search state, the step is either retried or the session ends.
func (s *Session) Run(ctx context.Context) (*Outcome, error) {
	builds, err := s.resolveRange(ctx)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{Candidates: len(builds)}
	if len(builds) < 2 {
		s.log.Warnf("Only %d build(s) in range, nothing to bisect", len(builds))
		return outcome, nil
	}
	s.log.Infof("Bisecting %d builds, expecting around %d steps", len(builds), int(math.Ceil(math.Log2(float64(len(builds))))))

	// The newest build is the presumed bad boundary, so the first probe
	// starts in the middle instead of testing it again.
	chunk, index := len(builds), 0
	chunk, index, _ = nextBisectStep(chunk, index, VerdictBad)

	goodIdx, badIdx := -1, -1
	var opts LaunchOptions
	for index >= 0 && index < len(builds) {
		build := builds[index]
		s.log.WithFields(logrus.Fields{"commit": ShortCommit(build.Commit), "index": index, "chunk": chunk}).Debug("Testing build")

		verdict, err := s.step(ctx, build, opts)
		opts = LaunchOptions{}
		if err != nil {
			if ctx.Err() != nil || !Recoverable(err) {
				return nil, err
			}
			retry, confirmErr := s.oracle.Confirm(ctx, fmt.Sprintf("Build %s failed to launch (%v), retry with a forced re-download", ShortCommit(build.Commit), err))
			if confirmErr != nil {
				return nil, errors.Join(err, confirmErr)
			}
			if !retry {
				return nil, err
			}
			opts.ForceDownload = true
			continue
		}

		switch verdict {
		case VerdictRetry:
			continue
		case VerdictRetryFresh:
			opts.FreshUserData = true
			continue
		case VerdictQuit:
			s.log.Info("Session ended by the tester")
			outcome.Quit = true
			return outcome, nil
		case VerdictGood:
			outcome.Steps++
			if goodIdx < 0 || index < goodIdx {
				goodIdx = index
				outcome.Good = &builds[index]
			}
		case VerdictBad:
			outcome.Steps++
			if badIdx < 0 || index > badIdx {
				badIdx = index
				outcome.Bad = &builds[index]
			}
		default:
			return nil, fmt.Errorf("oracle answered unknown verdict %d", verdict)
		}

		var done bool
		chunk, index, done = nextBisectStep(chunk, index, verdict)
		if done {
			break
		}
	}

	s.log.Infof("Bisection finished after %d steps: %s", outcome.Steps, outcome)
	return outcome, nil
}

// step launches one build, obtains one verdict and stops the instance again
// before returning, whatever the result.
func (s *Session) step(ctx context.Context, build Build, opts LaunchOptions) (Verdict, error) {
	inst, err := s.launch(ctx, build, opts)
	if err != nil {
		return 0, err
	}

	verdict, err := s.oracle.Verdict(ctx, inst)
	if inst != nil {
		if stopErr := inst.Stop(); stopErr != nil {
			s.log.WithError(stopErr).Warnf("Failed to stop build %s", ShortCommit(build.Commit))
		}
	}
	if err != nil {
		return 0, errors.Join(fmt.Errorf("failed to obtain a verdict for %s", ShortCommit(build.Commit)), err)
	}
	s.log.WithFields(logrus.Fields{"commit": ShortCommit(build.Commit), "verdict": verdict}).Info("Verdict recorded")
	return verdict, nil
}

// nextBisectStep advances the binary search after a good or bad verdict. The
// chunk halves with every step and the probe moves towards older builds on
// bad, towards newer builds on good. Once the chunk reached one the range
// cannot narrow further and done is true.
func nextBisectStep(chunk, index int, verdict Verdict) (int, int, bool) {
	if chunk == 1 {
		return chunk, index, true
	}
	half := int(math.Round(float64(chunk) / 2))
	if verdict == VerdictGood {
		return half, index - half, false
	}
	return half, index + half, false
}

// resolveRange turns the configured boundaries into the ordered, filtered
// slice of candidate builds, newest first.
func (s *Session) resolveRange(ctx context.Context) ([]Build, error) {
	kind := s.cfg.Kind

	goodCommit, err := s.resolveBoundary(ctx, kind, s.cfg.GoodBuild)
	if err != nil {
		return nil, err
	}
	badCommit, err := s.resolveBoundary(ctx, kind, s.cfg.BadBuild)
	if err != nil {
		return nil, err
	}

	commits, err := s.catalog.ListCommits(ctx, kind, s.cfg.ReleasedOnly)
	if err != nil {
		return nil, err
	}

	goodIdx, badIdx, err := boundaryIndexes(commits, goodCommit, badCommit)
	if errors.Is(err, ErrCommitNotFound) && !s.cfg.ReleasedOnly {
		// The boundary may name a released build that already left the
		// unreleased list, so look there once before giving up.
		s.log.Debug("Boundary not in the full commit list, retrying against released builds only")
		released, listErr := s.catalog.ListCommits(ctx, kind, true)
		if listErr != nil {
			return nil, listErr
		}
		if relGood, relBad, relErr := boundaryIndexes(released, goodCommit, badCommit); relErr == nil {
			commits, goodIdx, badIdx = released, relGood, relBad
		} else {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	if badIdx >= goodIdx {
		return nil, fmt.Errorf("%w: the bad build must be newer than the good build", ErrInvalidRange)
	}

	avoided := make(map[string]bool, len(s.cfg.AvoidedCommits))
	for _, commit := range s.cfg.AvoidedCommits {
		avoided[commit] = true
	}

	builds := make([]Build, 0, goodIdx-badIdx+1)
	for _, commit := range commits[badIdx : goodIdx+1] {
		if avoided[commit] {
			s.log.WithField("commit", ShortCommit(commit)).Debug("Skipping avoided commit")
			continue
		}
		builds = append(builds, Build{Kind: kind, Commit: commit})
	}
	return builds, nil
}

// resolveBoundary turns a user-supplied boundary, either a full commit hash
// or a version like "1.87", into a commit hash. An empty input stays empty
// and defaults to the end of the list later.
func (s *Session) resolveBoundary(ctx context.Context, kind Kind, input string) (string, error) {
	switch {
	case input == "":
		return "", nil
	case IsCommit(input):
		return input, nil
	case LooksLikeVersion(input):
		meta, err := s.catalog.ResolveVersion(ctx, kind, input)
		if err != nil {
			return "", err
		}
		s.log.WithFields(logrus.Fields{"version": input, "commit": ShortCommit(meta.Version)}).Debug("Resolved version boundary")
		return meta.Version, nil
	}
	return "", fmt.Errorf("boundary %q is neither a full commit hash nor a version like 1.87", input)
}

// boundaryIndexes locates the good and bad boundary in the newest-first
// commit list. Absent boundaries default to the ends of the list, the newest
// commit for bad and the oldest for good.
func boundaryIndexes(commits []string, goodCommit, badCommit string) (goodIdx, badIdx int, err error) {
	if len(commits) == 0 {
		return 0, 0, fmt.Errorf("%w: the update service lists no builds", ErrCommitNotFound)
	}

	goodIdx = len(commits) - 1
	if goodCommit != "" {
		if goodIdx = indexOf(commits, goodCommit); goodIdx < 0 {
			return 0, 0, fmt.Errorf("%w: good build %s has no artifact", ErrCommitNotFound, ShortCommit(goodCommit))
		}
	}
	badIdx = 0
	if badCommit != "" {
		if badIdx = indexOf(commits, badCommit); badIdx < 0 {
			return 0, 0, fmt.Errorf("%w: bad build %s has no artifact", ErrCommitNotFound, ShortCommit(badCommit))
		}
	}
	return goodIdx, badIdx, nil
}

func indexOf(commits []string, commit string) int {
	for i, c := range commits {
		if c == commit {
			return i
		}
	}
	return -1
}
