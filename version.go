package trunkver

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/blang/semver"
	"github.com/go-git/go-git/v5/plumbing"
)

// Weighted prerelease bands. A weighted number orders builds of the same
// base version across branch types: feature below trunk prereleases below
// the stable release.
const (
	weightRelease    = 60000
	weightPreRelease = 55000
	weightFeature    = 30000
)

// Calculate derives the version for the commit named by opts.Commitish
// (HEAD when empty) and returns the full version record.
func Calculate(opts Options) (*GitVersion, error) {
	if opts.Repository == nil {
		return nil, errors.New("no repository provided")
	}

	commitish := opts.Commitish
	if commitish == "" {
		commitish = "HEAD"
	}

	snap, err := LoadSnapshot(opts.Repository, commitish)
	if err != nil {
		return nil, err
	}
	return Derive(snap, opts.Config)
}

// Derive computes the version record from an in-memory snapshot. It is the
// pure half of Calculate: the same snapshot and config always produce the
// same record or the same error.
func Derive(snap *Snapshot, cfg Config) (*GitVersion, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cls, err := NewClassifier(cfg)
	if err != nil {
		return nil, err
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}

	d := &deriver{snap: snap, cls: cls, cfg: cfg}
	v, marker, err := d.run()
	if err != nil {
		return nil, err
	}
	return newGitVersion(snap, cfg, v, marker), nil
}

func newGitVersion(snap *Snapshot, cfg Config, v semver.Version, marker *Marker) *GitVersion {
	gv := &GitVersion{
		Major:             v.Major,
		Minor:             v.Minor,
		Patch:             v.Patch,
		MajorMinorPatch:   fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch),
		BranchName:        snap.HeadBranch,
		EscapedBranchName: escaped(snap.HeadBranch),
	}

	if len(v.Pre) > 0 {
		parts := make([]string, len(v.Pre))
		for i, p := range v.Pre {
			parts[i] = p.String()
		}
		gv.PreReleaseTag = strings.Join(parts, ".")
		gv.PreReleaseTagWithDash = "-" + gv.PreReleaseTag
		gv.PreReleaseLabel = v.Pre[0].String()
		gv.PreReleaseLabelWithDash = "-" + gv.PreReleaseLabel
		if last := v.Pre[len(v.Pre)-1]; last.IsNum {
			gv.PreReleaseNumber = strconv.FormatUint(last.VersionNum, 10)
		}
	}

	gv.WeightedPreReleaseNumber = weightedNumber(cfg, gv)
	if len(v.Build) > 0 {
		gv.BuildMetadata = strings.Join(v.Build, ".")
	}

	core := v
	core.Build = nil
	gv.SemVer = core.String()
	gv.FullSemVer = v.String()
	gv.AssemblySemVer = fmt.Sprintf("%s.0", gv.MajorMinorPatch)
	gv.AssemblySemFileVer = fmt.Sprintf("%s.%d", gv.MajorMinorPatch, gv.WeightedPreReleaseNumber)

	if head, ok := snap.Commits[snap.Head]; ok {
		gv.Sha = head.Hash.String()
		gv.ShortSha = gv.Sha[:7]
		gv.CommitDate = head.When.Format("2006-01-02")
	}
	if marker != nil && marker.SourceSha != plumbing.ZeroHash {
		gv.VersionSourceSha = marker.SourceSha.String()
	}

	gv.InformationalVersion = gv.FullSemVer
	if gv.Sha != "" {
		gv.InformationalVersion = fmt.Sprintf("%s+Branch.%s.Sha.%s", gv.FullSemVer, gv.EscapedBranchName, gv.Sha)
	}
	return gv
}

func weightedNumber(cfg Config, gv *GitVersion) uint64 {
	if gv.PreReleaseTag == "" {
		return weightRelease
	}
	var n uint64
	if gv.PreReleaseNumber != "" {
		n, _ = strconv.ParseUint(gv.PreReleaseNumber, 10, 64)
	}
	if gv.PreReleaseLabel == cfg.PreReleaseTag {
		return weightPreRelease + n
	}
	return weightFeature + n
}

// escaped maps a ref name onto the alphabet allowed in a prerelease
// identifier: every rune that is not a letter or digit becomes a dash.
func escaped(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}
