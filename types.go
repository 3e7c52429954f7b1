// Package trunkver derives semantic versions for repositories that follow a
// trunk-based workflow with optional release and feature branches. The
// version is computed from the commit graph alone: the nearest version
// marker reachable from the current commit and the distance to it decide the
// next version, so no manual bumping or state file is needed.
package trunkver

import (
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// NoBranchName is reported as the branch name when HEAD is detached or the
// commitish does not name a branch.
const NoBranchName = "(no branch)"

// Options configures version calculation behavior.
type Options struct {
	// Repository is the Git repository to analyze.
	Repository *git.Repository

	// Commitish specifies which commit to analyze (default: "HEAD").
	Commitish plumbing.Revision

	// Config holds the branch and tag patterns. Zero-value fields are
	// filled from DefaultConfig.
	Config Config
}

// GitVersion is the derived version record. Field names follow the
// conventions build agents expect from version variables.
type GitVersion struct {
	Major                    uint64 `json:"Major"`
	Minor                    uint64 `json:"Minor"`
	Patch                    uint64 `json:"Patch"`
	MajorMinorPatch          string `json:"MajorMinorPatch"`
	PreReleaseTag            string `json:"PreReleaseTag"`
	PreReleaseTagWithDash    string `json:"PreReleaseTagWithDash"`
	PreReleaseLabel          string `json:"PreReleaseLabel"`
	PreReleaseLabelWithDash  string `json:"PreReleaseLabelWithDash"`
	PreReleaseNumber         string `json:"PreReleaseNumber"`
	WeightedPreReleaseNumber uint64 `json:"WeightedPreReleaseNumber"`
	BuildMetadata            string `json:"BuildMetadata"`
	SemVer                   string `json:"SemVer"`
	AssemblySemVer           string `json:"AssemblySemVer"`
	AssemblySemFileVer       string `json:"AssemblySemFileVer"`
	FullSemVer               string `json:"FullSemVer"`
	InformationalVersion     string `json:"InformationalVersion"`
	BranchName               string `json:"BranchName"`
	EscapedBranchName        string `json:"EscapedBranchName"`
	Sha                      string `json:"Sha"`
	ShortSha                 string `json:"ShortSha"`
	CommitDate               string `json:"CommitDate"`
	VersionSourceSha         string `json:"VersionSourceSha"`
}

func (v *GitVersion) String() string {
	return fmt.Sprintf("%s (%s)", v.FullSemVer, v.BranchName)
}

// PatternCompileError reports a configured pattern that is not a valid
// regular expression. It is surfaced before any traversal happens.
type PatternCompileError struct {
	Field   string
	Pattern string
	Err     error
}

func (e *PatternCompileError) Error() string {
	return fmt.Sprintf("compiling %s pattern %q: %v", e.Field, e.Pattern, e.Err)
}

func (e *PatternCompileError) Unwrap() error { return e.Err }

// ClassificationError reports a ref that matches no configured pattern, or a
// release branch whose captured version fragment is not a numeric baseline.
type ClassificationError struct {
	Ref    string
	Reason string
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classifying %q: %s", e.Ref, e.Reason)
}

// AmbiguousMarkerError reports two equally near version markers that no
// tie-break can order. The derivation fails rather than guess.
type AmbiguousMarkerError struct {
	Distance   int
	Candidates []string
}

func (e *AmbiguousMarkerError) Error() string {
	return fmt.Sprintf("ambiguous version markers at distance %d: %v", e.Distance, e.Candidates)
}

// GraphInconsistencyError reports a parent or marker target that is absent
// from the supplied snapshot, which indicates a malformed snapshot.
type GraphInconsistencyError struct {
	Missing     plumbing.Hash
	Referencing string
}

func (e *GraphInconsistencyError) Error() string {
	return fmt.Sprintf("commit %s referenced by %s is not in the snapshot", e.Missing, e.Referencing)
}
