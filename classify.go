package trunkver

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/blang/semver"
)

const branchNameGroup = "BranchName"

// RefKind is the variant of a branch classification.
type RefKind int

const (
	KindUnclassified RefKind = iota
	KindMain
	KindRelease
	KindFeature
)

func (k RefKind) String() string {
	switch k {
	case KindMain:
		return "main"
	case KindRelease:
		return "release"
	case KindFeature:
		return "feature"
	default:
		return "unclassified"
	}
}

// Classification labels a branch name. Baseline is set for KindRelease,
// Name for KindFeature.
type Classification struct {
	Kind     RefKind
	Baseline semver.Version
	Name     string
}

// Classifier matches branch and tag names against the configured patterns.
// It is pure: the same name and config always produce the same result.
type Classifier struct {
	main       *regexp.Regexp
	release    *regexp.Regexp
	feature    *regexp.Regexp
	tag        *regexp.Regexp
	label      string
	releaseIdx int
	featureIdx int
}

// NewClassifier compiles the configured patterns. Every pattern is applied
// as a full-text match.
func NewClassifier(cfg Config) (*Classifier, error) {
	main, err := compileFull("MainBranch", cfg.MainBranch)
	if err != nil {
		return nil, err
	}
	release, err := compileFull("ReleaseBranch", cfg.ReleaseBranch)
	if err != nil {
		return nil, err
	}
	releaseIdx := release.SubexpIndex(branchNameGroup)
	if releaseIdx < 0 {
		return nil, &PatternCompileError{
			Field:   "ReleaseBranch",
			Pattern: cfg.ReleaseBranch,
			Err:     fmt.Errorf("missing required named capture group %q", branchNameGroup),
		}
	}
	feature, err := compileFull("FeatureBranch", cfg.FeatureBranch)
	if err != nil {
		return nil, err
	}
	tag, err := compileTagPrefix(cfg.TagPrefix)
	if err != nil {
		return nil, err
	}

	return &Classifier{
		main:       main,
		release:    release,
		feature:    feature,
		tag:        tag,
		label:      cfg.PreReleaseTag,
		releaseIdx: releaseIdx,
		featureIdx: feature.SubexpIndex(branchNameGroup),
	}, nil
}

func compileFull(field, pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, &PatternCompileError{Field: field, Pattern: pattern, Err: err}
	}
	return re, nil
}

func compileTagPrefix(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("^(?:" + pattern + ")(.+)$")
	if err != nil {
		return nil, &PatternCompileError{Field: "TagPrefix", Pattern: pattern, Err: err}
	}
	return re, nil
}

// ClassifyBranch labels a branch name. Patterns apply in fixed precedence:
// release, then main, then feature. The order matters because a release
// branch name could otherwise satisfy a looser main pattern. A matched
// release pattern whose version fragment is not a numeric baseline is a
// ClassificationError, not a silent downgrade.
func (c *Classifier) ClassifyBranch(name string) (Classification, error) {
	if m := c.release.FindStringSubmatch(name); m != nil {
		baseline, err := c.parseBaseline(name, m[c.releaseIdx])
		if err != nil {
			return Classification{}, err
		}
		return Classification{Kind: KindRelease, Baseline: baseline}, nil
	}

	if c.main.MatchString(name) {
		return Classification{Kind: KindMain}, nil
	}

	if m := c.feature.FindStringSubmatch(name); m != nil {
		short := name
		if c.featureIdx >= 0 && m[c.featureIdx] != "" {
			short = m[c.featureIdx]
		}
		return Classification{Kind: KindFeature, Name: short}, nil
	}

	return Classification{Kind: KindUnclassified}, nil
}

// parseBaseline turns a release branch's version fragment into its fixed
// major.minor baseline. The tag prefix is stripped first so branch names
// like release/v1.0 classify the same as release/1.0. Patch may be omitted
// and defaults to 0.
func (c *Classifier) parseBaseline(ref, fragment string) (semver.Version, error) {
	if m := c.tag.FindStringSubmatch(fragment); m != nil {
		fragment = m[1]
	}

	parts := strings.Split(fragment, ".")
	if len(parts) != 2 && len(parts) != 3 {
		return semver.Version{}, &ClassificationError{
			Ref:    ref,
			Reason: fmt.Sprintf("release version fragment %q is not major.minor[.patch]", fragment),
		}
	}

	nums := make([]uint64, 3)
	for i, part := range parts {
		n, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return semver.Version{}, &ClassificationError{
				Ref:    ref,
				Reason: fmt.Sprintf("release version fragment %q has non-numeric component %q", fragment, part),
			}
		}
		nums[i] = n
	}

	return semver.Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// ClassifyTag parses a tag name into a version source. A tag counts iff the
// name is the configured prefix followed by a SemVer. Prerelease tags count
// only when their label equals the configured prerelease label and carry a
// numeric counter; any other prerelease shape is invisible to derivation.
func (c *Classifier) ClassifyTag(name string) (Source, bool) {
	m := c.tag.FindStringSubmatch(name)
	if m == nil {
		return Source{}, false
	}

	v, err := semver.Parse(m[1])
	if err != nil {
		return Source{}, false
	}

	src := Source{Name: name, Version: v}
	if len(v.Pre) == 0 {
		return src, true
	}
	if len(v.Pre) == 2 && !v.Pre[0].IsNum && v.Pre[0].VersionStr == c.label && v.Pre[1].IsNum {
		src.Prerelease = true
		src.PreNumber = v.Pre[1].VersionNum
		return src, true
	}
	return Source{}, false
}
