package trunkver

import (
	"errors"
	"sort"
	"time"

	"github.com/blang/semver"
	"github.com/go-git/go-git/v5/plumbing"
)

// Commit is a read-only node of the ancestry graph.
type Commit struct {
	Hash    plumbing.Hash
	Parents []plumbing.Hash
	Message string
	When    time.Time
}

// Branch is a named head. Remote branches carry their name with the remote
// prefix already stripped.
type Branch struct {
	Name   string
	Head   plumbing.Hash
	Remote bool
}

// Tag is a named pointer to a commit, annotated tags already peeled.
type Tag struct {
	Name   string
	Target plumbing.Hash
}

// Snapshot is the in-memory view of a repository at one point in time. It
// is supplied by the repository reader and never mutated; every derivation
// recomputes from scratch.
type Snapshot struct {
	Commits  map[plumbing.Hash]*Commit
	Branches []Branch
	Tags     []Tag

	// Head is the commit being versioned; zero on an unborn branch.
	Head plumbing.Hash
	// HeadBranch is the branch name being versioned, or NoBranchName.
	HeadBranch string
}

// Validate checks referential integrity: every parent edge, branch head and
// tag target must resolve to a commit in the snapshot.
func (s *Snapshot) Validate() error {
	for _, c := range s.Commits {
		for _, p := range c.Parents {
			if _, ok := s.Commits[p]; !ok {
				return &GraphInconsistencyError{Missing: p, Referencing: "commit " + c.Hash.String()}
			}
		}
	}
	for _, b := range s.Branches {
		if _, ok := s.Commits[b.Head]; !ok {
			return &GraphInconsistencyError{Missing: b.Head, Referencing: "branch " + b.Name}
		}
	}
	for _, t := range s.Tags {
		if _, ok := s.Commits[t.Target]; !ok {
			return &GraphInconsistencyError{Missing: t.Target, Referencing: "tag " + t.Name}
		}
	}
	if !s.Head.IsZero() {
		if _, ok := s.Commits[s.Head]; !ok {
			return &GraphInconsistencyError{Missing: s.Head, Referencing: "HEAD"}
		}
	}
	return nil
}

// Source is a version carried by a tag or a release branch, attributable to
// a commit in the graph.
type Source struct {
	Name       string
	Version    semver.Version
	Prerelease bool
	PreNumber  uint64
	// FromBranch marks a version carried by a release branch head rather
	// than a tag. Branch versions are claims about a line of development,
	// not about one commit, so they are never reported verbatim.
	FromBranch bool
	// SourceSha is the commit the version originates from: a tag's target
	// or a release branch's head. For branch sources it can differ from the
	// ancestor commit the walk matched.
	SourceSha plumbing.Hash
}

// Marker is a Source found during a walk, at the ancestor commit it was
// matched on and the shortest edge distance from the start.
type Marker struct {
	Source
	Commit   plumbing.Hash
	Distance int
}

var errStopWalk = errors.New("stop walk")

// bfs visits every commit reachable from start exactly once in
// breadth-first order, following all parent edges. depth is the shortest
// edge distance from start. The visited set is keyed by commit hash, so the
// walk stays linear in the number of distinct commits even on merge-heavy
// histories. Returning errStopWalk from visit ends the walk early.
func (s *Snapshot) bfs(start plumbing.Hash, visit func(c *Commit, depth int) error) error {
	if start.IsZero() {
		return nil
	}

	type item struct {
		hash  plumbing.Hash
		depth int
	}
	queue := []item{{start, 0}}
	seen := map[plumbing.Hash]bool{start: true}

	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]

		c, ok := s.Commits[it.hash]
		if !ok {
			return &GraphInconsistencyError{Missing: it.hash, Referencing: "walk"}
		}
		if err := visit(c, it.depth); err != nil {
			if errors.Is(err, errStopWalk) {
				return nil
			}
			return err
		}
		for _, p := range c.Parents {
			if !seen[p] {
				seen[p] = true
				queue = append(queue, item{p, it.depth + 1})
			}
		}
	}
	return nil
}

// Ancestors returns every commit reachable from start (start included)
// mapped to its shortest edge distance.
func (s *Snapshot) Ancestors(start plumbing.Hash) (map[plumbing.Hash]int, error) {
	out := map[plumbing.Hash]int{}
	err := s.bfs(start, func(c *Commit, depth int) error {
		out[c.Hash] = depth
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// firstParentLine is the chain of first-parent edges from start: the
// lineage of the branch being versioned.
func (s *Snapshot) firstParentLine(start plumbing.Hash) map[plumbing.Hash]bool {
	line := map[plumbing.Hash]bool{}
	for h := start; !h.IsZero(); {
		c, ok := s.Commits[h]
		if !ok {
			break
		}
		line[h] = true
		if len(c.Parents) == 0 {
			break
		}
		h = c.Parents[0]
	}
	return line
}

// MergeBase returns the nearest common ancestor of a and b by edge distance
// from a, together with that distance. ok is false when the two commits
// share no history.
func (s *Snapshot) MergeBase(a, b plumbing.Hash) (plumbing.Hash, int, bool, error) {
	if a.IsZero() || b.IsZero() {
		return plumbing.ZeroHash, 0, false, nil
	}
	reachable, err := s.Ancestors(b)
	if err != nil {
		return plumbing.ZeroHash, 0, false, err
	}

	var (
		base  plumbing.Hash
		dist  int
		found bool
	)
	err = s.bfs(a, func(c *Commit, depth int) error {
		if _, ok := reachable[c.Hash]; ok {
			base, dist, found = c.Hash, depth, true
			return errStopWalk
		}
		return nil
	})
	if err != nil {
		return plumbing.ZeroHash, 0, false, err
	}
	return base, dist, found, nil
}

// NearestMarker walks the ancestry of start and returns the nearest source,
// together with the total number of commits visited. When no source is
// reachable the marker is nil and the count covers the whole ancestry.
//
// All sources in the shallowest layer that contains any are collected
// before selecting, then ties break in order: a source on the first-parent
// lineage of start wins; otherwise the higher version wins; two distinct
// equal versions on different commits are an AmbiguousMarkerError.
func (s *Snapshot) NearestMarker(start plumbing.Hash, sources map[plumbing.Hash][]Source) (*Marker, int, error) {
	type candidate struct {
		Source
		commit plumbing.Hash
	}

	visited := 0
	foundDepth := -1
	var found []candidate

	err := s.bfs(start, func(c *Commit, depth int) error {
		if foundDepth >= 0 && depth > foundDepth {
			return errStopWalk
		}
		visited++
		for _, src := range sources[c.Hash] {
			found = append(found, candidate{Source: src, commit: c.Hash})
			foundDepth = depth
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	if len(found) == 0 {
		return nil, visited, nil
	}

	if len(found) > 1 {
		line := s.firstParentLine(start)
		var onLine []candidate
		for _, cand := range found {
			if line[cand.commit] {
				onLine = append(onLine, cand)
			}
		}
		if len(onLine) > 0 {
			found = onLine
		}

		sort.Slice(found, func(i, j int) bool {
			if cmp := found[i].Version.Compare(found[j].Version); cmp != 0 {
				return cmp > 0
			}
			return found[i].Name < found[j].Name
		})

		if len(found) > 1 && found[0].Version.EQ(found[1].Version) && found[0].commit != found[1].commit {
			return nil, 0, &AmbiguousMarkerError{
				Distance:   foundDepth,
				Candidates: []string{found[0].Name, found[1].Name},
			}
		}
	}

	return &Marker{Source: found[0].Source, Commit: found[0].commit, Distance: foundDepth}, visited, nil
}

// commitsSince returns the commits reachable from start but not from stop:
// the work in progress past a marker. A zero stop returns the full
// ancestry of start.
func (s *Snapshot) commitsSince(start, stop plumbing.Hash) ([]*Commit, error) {
	var exclude map[plumbing.Hash]int
	if !stop.IsZero() {
		var err error
		exclude, err = s.Ancestors(stop)
		if err != nil {
			return nil, err
		}
	}

	var out []*Commit
	err := s.bfs(start, func(c *Commit, _ int) error {
		if _, ok := exclude[c.Hash]; ok {
			return nil
		}
		out = append(out, c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
