package trunkver

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// OpenRepository opens a Git repository at the specified path.
func OpenRepository(path string) (*git.Repository, error) {
	return git.PlainOpenWithOptions(path, &git.PlainOpenOptions{
		DetectDotGit:          true,
		EnableDotGitCommonDir: true,
	})
}

// LoadSnapshot materializes the commit graph, branch heads and tags the
// derivation needs. Commits are loaded from the commitish and every branch
// head, so merge bases with branches ahead of the commitish resolve too.
// Annotated tags are peeled to their target commit; tags pointing at
// non-commit objects are dropped.
func LoadSnapshot(repo *git.Repository, commitish plumbing.Revision) (*Snapshot, error) {
	snap := &Snapshot{Commits: map[plumbing.Hash]*Commit{}, HeadBranch: NoBranchName}

	if err := resolveHead(repo, commitish, snap); err != nil {
		return nil, err
	}
	if err := loadBranches(repo, snap); err != nil {
		return nil, err
	}
	if err := loadTags(repo, snap); err != nil {
		return nil, err
	}
	if err := loadCommits(repo, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func resolveHead(repo *git.Repository, commitish plumbing.Revision, snap *Snapshot) error {
	if commitish != "HEAD" {
		revision, err := repo.ResolveRevision(commitish)
		if err != nil {
			return fmt.Errorf("resolving commitish %q: %w", commitish, err)
		}
		snap.Head = *revision

		branchRef := plumbing.NewBranchReferenceName(string(commitish))
		if ref, err := repo.Reference(branchRef, true); err == nil && ref.Hash() == snap.Head {
			snap.HeadBranch = string(commitish)
		}
		return nil
	}

	ref, err := repo.Head()
	if err != nil {
		if !errors.Is(err, plumbing.ErrReferenceNotFound) {
			return fmt.Errorf("resolving HEAD: %w", err)
		}
		// Unborn branch: no commits yet, but the branch still has a name.
		if sym, symErr := repo.Reference(plumbing.HEAD, false); symErr == nil && sym.Type() == plumbing.SymbolicReference {
			if target := sym.Target(); target.IsBranch() {
				snap.HeadBranch = target.Short()
			}
		}
		return nil
	}

	snap.Head = ref.Hash()
	if ref.Name().IsBranch() {
		snap.HeadBranch = ref.Name().Short()
	}
	return nil
}

func loadBranches(repo *git.Repository, snap *Snapshot) error {
	refs, err := repo.References()
	if err != nil {
		return fmt.Errorf("listing references: %w", err)
	}

	seen := map[string]bool{}
	return refs.ForEach(func(ref *plumbing.Reference) error {
		if ref.Type() != plumbing.HashReference {
			return nil
		}

		name := ref.Name()
		switch {
		case name.IsBranch():
			addBranch(snap, seen, Branch{Name: name.Short(), Head: ref.Hash()})
		case name.IsRemote():
			short := stripRemotePrefix(name.Short())
			if short == "" || short == "HEAD" {
				return nil
			}
			addBranch(snap, seen, Branch{Name: short, Head: ref.Hash(), Remote: true})
		}
		return nil
	})
}

func addBranch(snap *Snapshot, seen map[string]bool, b Branch) {
	key := b.Name + "\x00" + b.Head.String()
	if seen[key] {
		return
	}
	seen[key] = true
	snap.Branches = append(snap.Branches, b)
}

// stripRemotePrefix drops the leading remote name from a remote branch's
// short name, e.g. origin/release/1.0 becomes release/1.0.
func stripRemotePrefix(short string) string {
	_, rest, ok := strings.Cut(short, "/")
	if !ok {
		return ""
	}
	return rest
}

func loadTags(repo *git.Repository, snap *Snapshot) error {
	tags, err := repo.Tags()
	if err != nil {
		return fmt.Errorf("listing tags: %w", err)
	}

	return tags.ForEach(func(ref *plumbing.Reference) error {
		if ref.Type() != plumbing.HashReference {
			return nil
		}

		target := ref.Hash()
		obj, err := repo.TagObject(target)
		switch {
		case err == nil:
			// Annotated tag.
			target = obj.Target
		case errors.Is(err, plumbing.ErrObjectNotFound):
			// Lightweight tag.
		default:
			return err
		}

		if _, err := repo.CommitObject(target); err != nil {
			if errors.Is(err, plumbing.ErrObjectNotFound) {
				return nil
			}
			return err
		}

		snap.Tags = append(snap.Tags, Tag{Name: ref.Name().Short(), Target: target})
		return nil
	})
}

func loadCommits(repo *git.Repository, snap *Snapshot) error {
	var queue []plumbing.Hash
	if !snap.Head.IsZero() {
		queue = append(queue, snap.Head)
	}
	for _, b := range snap.Branches {
		queue = append(queue, b.Head)
	}
	for _, t := range snap.Tags {
		queue = append(queue, t.Target)
	}

	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		if _, ok := snap.Commits[h]; ok {
			continue
		}

		obj, err := repo.CommitObject(h)
		if err != nil {
			return fmt.Errorf("loading commit %s: %w", h, err)
		}

		c := &Commit{
			Hash:    obj.Hash,
			Parents: append([]plumbing.Hash(nil), obj.ParentHashes...),
			Message: obj.Message,
			When:    obj.Committer.When,
		}
		snap.Commits[h] = c
		queue = append(queue, c.Parents...)
	}
	return nil
}
