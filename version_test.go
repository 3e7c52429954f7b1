package trunkver

import (
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/require"
)

func TestCalculate(t *testing.T) {
	t.Run("prerelease record", func(t *testing.T) {
		r := newTestRepo(t)
		tagged := r.commit("one")
		r.tag("v1.0.0")
		head := r.commit("two")

		v := r.version(Config{})
		require.Equal(t, uint64(1), v.Major)
		require.Equal(t, uint64(1), v.Minor)
		require.Equal(t, uint64(0), v.Patch)
		require.Equal(t, "1.1.0", v.MajorMinorPatch)
		require.Equal(t, "pre.1", v.PreReleaseTag)
		require.Equal(t, "-pre.1", v.PreReleaseTagWithDash)
		require.Equal(t, "pre", v.PreReleaseLabel)
		require.Equal(t, "-pre", v.PreReleaseLabelWithDash)
		require.Equal(t, "1", v.PreReleaseNumber)
		require.Equal(t, uint64(55001), v.WeightedPreReleaseNumber)
		require.Equal(t, "1.1.0-pre.1", v.SemVer)
		require.Equal(t, "1.1.0-pre.1", v.FullSemVer)
		require.Equal(t, "1.1.0.0", v.AssemblySemVer)
		require.Equal(t, "1.1.0.55001", v.AssemblySemFileVer)
		require.Equal(t, "trunk", v.BranchName)
		require.Equal(t, "trunk", v.EscapedBranchName)
		require.Equal(t, head.String(), v.Sha)
		require.Equal(t, head.String()[:7], v.ShortSha)
		require.Equal(t, "2024-05-01", v.CommitDate)
		require.Equal(t, tagged.String(), v.VersionSourceSha)
	})

	t.Run("stable record", func(t *testing.T) {
		r := newTestRepo(t)
		head := r.commit("one")
		r.tag("v2.3.4")

		v := r.version(Config{})
		require.Equal(t, "2.3.4", v.FullSemVer)
		require.Empty(t, v.PreReleaseTag)
		require.Empty(t, v.PreReleaseNumber)
		require.Equal(t, uint64(60000), v.WeightedPreReleaseNumber)
		require.Equal(t, "2.3.4.60000", v.AssemblySemFileVer)
		require.Equal(t, "2.3.4+Branch.trunk.Sha."+head.String(), v.InformationalVersion)
		require.Equal(t, "2.3.4 (trunk)", v.String())
	})

	t.Run("feature record", func(t *testing.T) {
		r := newTestRepo(t)
		r.commit("one")
		r.tag("v1.0.0")
		r.branch("feature/shiny")
		r.commit("a")

		v := r.version(Config{})
		require.Equal(t, "1.1.0-shiny.1", v.FullSemVer)
		require.Equal(t, "shiny", v.PreReleaseLabel)
		require.Equal(t, uint64(30001), v.WeightedPreReleaseNumber)
		require.Equal(t, "feature/shiny", v.BranchName)
		require.Equal(t, "feature-shiny", v.EscapedBranchName)
	})

	t.Run("empty repository record", func(t *testing.T) {
		r := newTestRepo(t)

		v := r.version(Config{})
		require.Equal(t, "0.1.0-pre.0", v.FullSemVer)
		require.Equal(t, "trunk", v.BranchName)
		require.Empty(t, v.Sha)
		require.Empty(t, v.ShortSha)
		require.Empty(t, v.CommitDate)
		require.Empty(t, v.VersionSourceSha)
		require.Equal(t, "0.1.0-pre.0", v.InformationalVersion)
	})

	t.Run("derivation is repeatable", func(t *testing.T) {
		r := newTestRepo(t)
		r.commit("one")
		r.tag("v1.0.0")
		r.commit("two")

		first := r.version(Config{})
		second := r.version(Config{})
		require.Equal(t, first, second)
	})

	t.Run("commitish names another branch", func(t *testing.T) {
		r := newTestRepo(t)
		r.commit("one")
		r.tag("v1.0.0")
		r.branch("feature/shiny")
		r.commit("a")

		v, err := Calculate(Options{
			Repository: r.repo,
			Commitish:  plumbing.Revision("trunk"),
			Config:     Config{},
		})
		require.NoError(t, err)
		require.Equal(t, "1.0.0", v.FullSemVer)
		require.Equal(t, "trunk", v.BranchName)
	})

	t.Run("commitish naming a bare commit is not classifiable", func(t *testing.T) {
		r := newTestRepo(t)
		hash := r.commit("one")

		_, err := Calculate(Options{
			Repository: r.repo,
			Commitish:  plumbing.Revision(hash.String()),
			Config:     Config{},
		})
		var cerr *ClassificationError
		require.ErrorAs(t, err, &cerr)
		require.Equal(t, NoBranchName, cerr.Ref)
	})

	t.Run("nil repository", func(t *testing.T) {
		_, err := Calculate(Options{})
		require.Error(t, err)
	})

	t.Run("bad pattern surfaces before walking", func(t *testing.T) {
		r := newTestRepo(t)
		r.commit("one")

		_, err := Calculate(Options{
			Repository: r.repo,
			Config:     Config{MainBranch: `(`},
		})
		var perr *PatternCompileError
		require.ErrorAs(t, err, &perr)
	})
}

func TestEscaped(t *testing.T) {
	require.Equal(t, "feature-add-parser", escaped("feature/add-parser"))
	require.Equal(t, "my-new-thing", escaped("my_new.thing"))
	require.Equal(t, "plain", escaped("plain"))
	require.Equal(t, "-no-branch-", escaped(NoBranchName))
}
