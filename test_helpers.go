package trunkver

import (
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/stretchr/testify/require"
)

// testRepo drives an in-memory repository through the branch, tag and merge
// steps a workflow test needs. Commits are empty; only the graph matters.
// Timestamps advance one minute per commit so history has a stable order.
type testRepo struct {
	t    *testing.T
	repo *git.Repository
	now  time.Time
}

func newTestRepo(t *testing.T) *testRepo {
	t.Helper()
	storage := memory.NewStorage()
	fs := memfs.New()
	repo, err := git.InitWithOptions(storage, fs, git.InitOptions{
		DefaultBranch: plumbing.NewBranchReferenceName("trunk"),
	})
	require.NoError(t, err)
	return &testRepo{
		t:    t,
		repo: repo,
		now:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (r *testRepo) signature() *object.Signature {
	r.now = r.now.Add(time.Minute)
	return &object.Signature{Name: "test", Email: "test@example.com", When: r.now}
}

func (r *testRepo) worktree() *git.Worktree {
	r.t.Helper()
	wt, err := r.repo.Worktree()
	require.NoError(r.t, err)
	return wt
}

func (r *testRepo) commit(message string) plumbing.Hash {
	r.t.Helper()
	sig := r.signature()
	hash, err := r.worktree().Commit(message, &git.CommitOptions{
		Author:            sig,
		Committer:         sig,
		AllowEmptyCommits: true,
	})
	require.NoError(r.t, err)
	return hash
}

// branch creates a branch at the current HEAD and checks it out.
func (r *testRepo) branch(name string) {
	r.t.Helper()
	err := r.worktree().Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(name),
		Create: true,
	})
	require.NoError(r.t, err)
}

func (r *testRepo) checkout(name string) {
	r.t.Helper()
	err := r.worktree().Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(name),
	})
	require.NoError(r.t, err)
}

func (r *testRepo) tag(name string) {
	r.t.Helper()
	_, err := r.repo.CreateTag(name, r.head(), nil)
	require.NoError(r.t, err)
}

func (r *testRepo) tagAnnotated(name, message string) {
	r.t.Helper()
	_, err := r.repo.CreateTag(name, r.head(), &git.CreateTagOptions{
		Tagger:  r.signature(),
		Message: message,
	})
	require.NoError(r.t, err)
}

// merge records a merge of the named branch into the current one: an empty
// commit whose parents are the current HEAD and the other branch's head.
func (r *testRepo) merge(other string) plumbing.Hash {
	r.t.Helper()
	ref, err := r.repo.Reference(plumbing.NewBranchReferenceName(other), true)
	require.NoError(r.t, err)

	sig := r.signature()
	hash, err := r.worktree().Commit("Merge branch '"+other+"'", &git.CommitOptions{
		Author:            sig,
		Committer:         sig,
		AllowEmptyCommits: true,
		Parents:           []plumbing.Hash{r.head(), ref.Hash()},
	})
	require.NoError(r.t, err)
	return hash
}

// remoteBranch records a remote-tracking ref, as a fetch would.
func (r *testRepo) remoteBranch(remote, name string, target plumbing.Hash) {
	r.t.Helper()
	ref := plumbing.NewHashReference(
		plumbing.ReferenceName("refs/remotes/"+remote+"/"+name), target)
	require.NoError(r.t, r.repo.Storer.SetReference(ref))
}

// deleteBranch removes a local branch ref without touching its commits.
func (r *testRepo) deleteBranch(name string) {
	r.t.Helper()
	err := r.repo.Storer.RemoveReference(plumbing.NewBranchReferenceName(name))
	require.NoError(r.t, err)
}

func (r *testRepo) head() plumbing.Hash {
	r.t.Helper()
	ref, err := r.repo.Head()
	require.NoError(r.t, err)
	return ref.Hash()
}

func (r *testRepo) version(cfg Config) *GitVersion {
	r.t.Helper()
	v, err := Calculate(Options{Repository: r.repo, Config: cfg})
	require.NoError(r.t, err)
	return v
}

func (r *testRepo) versionErr(cfg Config) error {
	r.t.Helper()
	_, err := Calculate(Options{Repository: r.repo, Config: cfg})
	require.Error(r.t, err)
	return err
}

// assertVersion checks the rendered version on the current HEAD.
func (r *testRepo) assertVersion(want string, cfg Config) {
	r.t.Helper()
	require.Equal(r.t, want, r.version(cfg).FullSemVer)
}
