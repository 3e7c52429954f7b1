package trunkver

import (
	"regexp"
	"strings"

	"github.com/blang/semver"
	"github.com/go-git/go-git/v5/plumbing"
)

// deriver runs the classification-to-version rules over one snapshot. It is
// built fresh for every derivation and holds no mutable state beyond its
// inputs, so repeated runs over the same snapshot give the same answer.
type deriver struct {
	snap *Snapshot
	cls  *Classifier
	cfg  Config
}

func (d *deriver) run() (semver.Version, *Marker, error) {
	name := d.snap.HeadBranch
	if name == NoBranchName {
		return semver.Version{}, nil, &ClassificationError{
			Ref:    name,
			Reason: "not on a branch, cannot classify",
		}
	}

	cl, err := d.cls.ClassifyBranch(name)
	if err != nil {
		return semver.Version{}, nil, err
	}

	switch cl.Kind {
	case KindMain:
		return d.deriveMain(d.snap.Head, "")
	case KindRelease:
		return d.deriveRelease(d.snap.Head, cl.Baseline, name)
	case KindFeature:
		return d.deriveFeature(d.snap.Head, cl.Name)
	default:
		return semver.Version{}, nil, &ClassificationError{
			Ref:    name,
			Reason: "matches no configured branch pattern",
		}
	}
}

// deriveMain applies the trunk rules from start. excludeBranch removes one
// release branch from the candidate sources; release continuation passes its
// own name here so a branch never derives from itself.
//
// With no marker in reach the line starts at 0.1.0 and the prerelease number
// is the number of commits behind start. A prerelease marker continues its
// counter by the distance walked. A stable marker at the commit itself is the
// version, verbatim; anything past it opens the next minor (or whatever the
// commit messages dictate) as a prerelease.
func (d *deriver) deriveMain(start plumbing.Hash, excludeBranch string) (semver.Version, *Marker, error) {
	sources, err := d.mainSources(start, excludeBranch)
	if err != nil {
		return semver.Version{}, nil, err
	}

	marker, visited, err := d.snap.NearestMarker(start, sources)
	if err != nil {
		return semver.Version{}, nil, err
	}

	if marker == nil {
		seed := semver.Version{Minor: 1}
		if d.cfg.ContinuousDelivery {
			return d.finishPre(seed, nil, 0, start)
		}
		seed.Pre = prePair(d.cfg.PreReleaseTag, uint64(visited))
		return seed, nil, nil
	}

	if marker.Prerelease {
		v := coreOf(marker.Version)
		v.Pre = prePair(d.cfg.PreReleaseTag, marker.PreNumber+uint64(marker.Distance))
		return v, marker, nil
	}

	if marker.Distance == 0 && !marker.FromBranch {
		return marker.Version, marker, nil
	}

	next, err := d.bumpAfter(start, marker)
	if err != nil {
		return semver.Version{}, nil, err
	}
	dist := marker.Distance
	if dist < 1 {
		dist = 1
	}
	return d.finishPre(next, marker, dist, start)
}

// deriveRelease applies the release-line rules: only markers on the branch's
// own major.minor line count, and work past a stable marker bumps patch.
//
// A release branch with no marker of its own either continues the trunk
// counter, when the trunk rules at its head land on the branch's own
// baseline, or restarts the line counting from the point it diverged from a
// main branch.
func (d *deriver) deriveRelease(start plumbing.Hash, baseline semver.Version, branchName string) (semver.Version, *Marker, error) {
	sources, err := d.releaseSources(baseline)
	if err != nil {
		return semver.Version{}, nil, err
	}

	marker, _, err := d.snap.NearestMarker(start, sources)
	if err != nil {
		return semver.Version{}, nil, err
	}

	if marker != nil {
		if marker.Prerelease {
			v := coreOf(marker.Version)
			v.Pre = prePair(d.cfg.PreReleaseTag, marker.PreNumber+uint64(marker.Distance))
			return v, marker, nil
		}
		if marker.Distance == 0 {
			return marker.Version, marker, nil
		}
		next := coreOf(marker.Version)
		next.Patch++
		return d.finishPre(next, marker, marker.Distance, start)
	}

	trunk, trunkMarker, err := d.deriveMain(start, branchName)
	if err != nil {
		return semver.Version{}, nil, err
	}
	if coreOf(trunk).EQ(coreOf(baseline)) {
		return trunk, trunkMarker, nil
	}

	dist, err := d.divergenceFromMain(start)
	if err != nil {
		return semver.Version{}, nil, err
	}
	return d.finishPre(coreOf(baseline), nil, dist, start)
}

// deriveFeature versions a feature branch as its parent line would version
// the same commit, with the prerelease pair replaced by the feature's name
// and its commit distance from the parent branch head.
func (d *deriver) deriveFeature(start plumbing.Hash, name string) (semver.Version, *Marker, error) {
	parent, dist, err := d.nearestParentBranch(start)
	if err != nil {
		return semver.Version{}, nil, err
	}

	if parent == nil {
		ancestors, err := d.snap.Ancestors(start)
		if err != nil {
			return semver.Version{}, nil, err
		}
		v := semver.Version{Minor: 1}
		v.Pre = featurePair(name, uint64(len(ancestors)))
		return v, nil, nil
	}

	var (
		base   semver.Version
		marker *Marker
	)
	switch parent.cl.Kind {
	case KindMain:
		base, marker, err = d.deriveMain(start, "")
	default:
		base, marker, err = d.deriveRelease(start, parent.cl.Baseline, parent.branch.Name)
	}
	if err != nil {
		return semver.Version{}, nil, err
	}

	base.Pre = featurePair(name, uint64(dist))
	base.Build = nil
	return base, marker, nil
}

// mainSources collects the version markers visible to the trunk rules:
// stable tags, release branch baselines pinned at their divergence from
// start, and, outside continuous delivery, prerelease tags with the
// configured label.
func (d *deriver) mainSources(start plumbing.Hash, excludeBranch string) (map[plumbing.Hash][]Source, error) {
	sources := map[plumbing.Hash][]Source{}

	for _, t := range d.snap.Tags {
		src, ok := d.cls.ClassifyTag(t.Name)
		if !ok {
			continue
		}
		if src.Prerelease && d.cfg.ContinuousDelivery {
			continue
		}
		src.SourceSha = t.Target
		sources[t.Target] = append(sources[t.Target], src)
	}

	for _, b := range d.snap.Branches {
		if b.Name == excludeBranch {
			continue
		}
		cl, err := d.cls.ClassifyBranch(b.Name)
		if err != nil {
			return nil, err
		}
		if cl.Kind != KindRelease {
			continue
		}
		base, _, ok, err := d.snap.MergeBase(start, b.Head)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		sources[base] = append(sources[base], Source{
			Name:       b.Name,
			Version:    cl.Baseline,
			FromBranch: true,
			SourceSha:  b.Head,
		})
	}

	return sources, nil
}

// releaseSources collects the tags on the baseline's major.minor line.
// Markers of other lines are invisible to a release branch.
func (d *deriver) releaseSources(baseline semver.Version) (map[plumbing.Hash][]Source, error) {
	sources := map[plumbing.Hash][]Source{}
	for _, t := range d.snap.Tags {
		src, ok := d.cls.ClassifyTag(t.Name)
		if !ok {
			continue
		}
		if src.Version.Major != baseline.Major || src.Version.Minor != baseline.Minor {
			continue
		}
		if src.Prerelease && d.cfg.ContinuousDelivery {
			continue
		}
		src.SourceSha = t.Target
		sources[t.Target] = append(sources[t.Target], src)
	}
	return sources, nil
}

type parentBranch struct {
	branch Branch
	cl     Classification
}

// nearestParentBranch picks the main or release branch whose head is closest
// to start by divergence distance. Ties prefer main over release, then the
// lower baseline, then the lexically smaller name.
func (d *deriver) nearestParentBranch(start plumbing.Hash) (*parentBranch, int, error) {
	var (
		best     *parentBranch
		bestDist int
	)

	for _, b := range d.snap.Branches {
		cl, err := d.cls.ClassifyBranch(b.Name)
		if err != nil {
			return nil, 0, err
		}
		if cl.Kind != KindMain && cl.Kind != KindRelease {
			continue
		}
		_, dist, ok, err := d.snap.MergeBase(start, b.Head)
		if err != nil {
			return nil, 0, err
		}
		if !ok {
			continue
		}

		cand := &parentBranch{branch: b, cl: cl}
		if best == nil || dist < bestDist ||
			(dist == bestDist && parentLess(cand, best)) {
			best, bestDist = cand, dist
		}
	}

	return best, bestDist, nil
}

func parentLess(a, b *parentBranch) bool {
	if a.cl.Kind != b.cl.Kind {
		return a.cl.Kind == KindMain
	}
	if cmp := a.cl.Baseline.Compare(b.cl.Baseline); cmp != 0 {
		return cmp < 0
	}
	return a.branch.Name < b.branch.Name
}

// divergenceFromMain is the distance from start back to the nearest main
// branch, or the full ancestry size when no main branch shares history. The
// floor of 1 covers a branch still sitting on its fork commit: creating the
// branch is the start of its first prerelease.
func (d *deriver) divergenceFromMain(start plumbing.Hash) (int, error) {
	best := -1
	for _, b := range d.snap.Branches {
		cl, err := d.cls.ClassifyBranch(b.Name)
		if err != nil {
			return 0, err
		}
		if cl.Kind != KindMain {
			continue
		}
		_, dist, ok, err := d.snap.MergeBase(start, b.Head)
		if err != nil {
			return 0, err
		}
		if !ok {
			continue
		}
		if best < 0 || dist < best {
			best = dist
		}
	}

	if best < 0 {
		ancestors, err := d.snap.Ancestors(start)
		if err != nil {
			return 0, err
		}
		best = len(ancestors)
	}
	if best < 1 {
		best = 1
	}
	return best, nil
}

// finishPre attaches the prerelease pair to a bumped version. In the default
// mode the number is the commit distance walked. In continuous delivery mode
// it counts tagged prereleases of the same base version instead: the nearest
// one plus one, or 1 when none was tagged yet.
func (d *deriver) finishPre(base semver.Version, marker *Marker, distance int, start plumbing.Hash) (semver.Version, *Marker, error) {
	v := base
	if !d.cfg.ContinuousDelivery {
		v.Pre = prePair(d.cfg.PreReleaseTag, uint64(distance))
		return v, marker, nil
	}

	sources := map[plumbing.Hash][]Source{}
	for _, t := range d.snap.Tags {
		src, ok := d.cls.ClassifyTag(t.Name)
		if !ok || !src.Prerelease {
			continue
		}
		if !coreOf(src.Version).EQ(coreOf(base)) {
			continue
		}
		src.SourceSha = t.Target
		sources[t.Target] = append(sources[t.Target], src)
	}

	preMarker, _, err := d.snap.NearestMarker(start, sources)
	if err != nil {
		return semver.Version{}, nil, err
	}
	switch {
	case preMarker == nil:
		v.Pre = prePair(d.cfg.PreReleaseTag, 1)
		return v, marker, nil
	case preMarker.Distance == 0:
		// Sitting on the tag itself.
		v.Pre = prePair(d.cfg.PreReleaseTag, preMarker.PreNumber)
		return v, preMarker, nil
	default:
		v.Pre = prePair(d.cfg.PreReleaseTag, preMarker.PreNumber+1)
		return v, preMarker, nil
	}
}

type bumpKind int

const (
	bumpPatch bumpKind = iota
	bumpMinor
	bumpMajor
)

var (
	breakingPrefix = regexp.MustCompile(`^[a-zA-Z]+(\([^)]*\))?!:`)
	featPrefix     = regexp.MustCompile(`^feat(\([^)]*\))?:`)
)

func classifyMessage(message string) bumpKind {
	firstLine, _, _ := strings.Cut(message, "\n")
	switch {
	case breakingPrefix.MatchString(firstLine),
		strings.Contains(message, "BREAKING CHANGE:"),
		strings.Contains(message, "BREAKING-CHANGE:"):
		return bumpMajor
	case featPrefix.MatchString(firstLine):
		return bumpMinor
	default:
		return bumpPatch
	}
}

// bumpAfter computes the next version past a stable marker. The default is
// the next minor. With commit message incrementing enabled the messages
// between the marker and start decide: a breaking change bumps major (minor
// while major is still 0), a feature bumps minor, anything else patch.
func (d *deriver) bumpAfter(start plumbing.Hash, marker *Marker) (semver.Version, error) {
	next := coreOf(marker.Version)

	if d.cfg.CommitMessageIncrementing != IncrementingEnabled {
		next.Minor++
		next.Patch = 0
		return next, nil
	}

	commits, err := d.snap.commitsSince(start, marker.Commit)
	if err != nil {
		return semver.Version{}, err
	}

	bump := bumpPatch
	for _, c := range commits {
		if k := classifyMessage(c.Message); k > bump {
			bump = k
		}
	}

	switch bump {
	case bumpMajor:
		if next.Major == 0 {
			next.Minor++
			next.Patch = 0
		} else {
			next.Major++
			next.Minor = 0
			next.Patch = 0
		}
	case bumpMinor:
		next.Minor++
		next.Patch = 0
	default:
		next.Patch++
	}
	return next, nil
}

func coreOf(v semver.Version) semver.Version {
	return semver.Version{Major: v.Major, Minor: v.Minor, Patch: v.Patch}
}

func prePair(label string, n uint64) []semver.PRVersion {
	return []semver.PRVersion{
		{VersionStr: label},
		{VersionNum: n, IsNum: true},
	}
}

func featurePair(name string, n uint64) []semver.PRVersion {
	return []semver.PRVersion{
		{VersionStr: escaped(name)},
		{VersionNum: n, IsNum: true},
	}
}
