package trunkver

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGitHubExporter(t *testing.T) {
	v := formatRecord(t)
	path := filepath.Join(t.TempDir(), "output")

	require.NoError(t, GitHubExporter{Path: path}.Export(v))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	require.Contains(t, out, "SemVer=1.1.0-pre.1\n")
	require.Contains(t, out, "GitVersion_SemVer=1.1.0-pre.1\n")
	require.Contains(t, out, "GitVersion_Major=1\n")

	t.Run("appends to an existing file", func(t *testing.T) {
		require.NoError(t, GitHubExporter{Path: path}.Export(v))
		again, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Len(t, again, 2*len(data))
	})
}

func TestGitLabExporter(t *testing.T) {
	v := formatRecord(t)
	path := filepath.Join(t.TempDir(), "env")

	require.NoError(t, GitLabExporter{Path: path}.Export(v))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	require.Contains(t, out, "GitVersion_FullSemVer=1.1.0-pre.1\n")
	require.NotContains(t, out, "\nFullSemVer=", "GitLab lines carry only the prefixed name")
}

func TestTeamCityExporter(t *testing.T) {
	v := formatRecord(t)

	var buf bytes.Buffer
	require.NoError(t, TeamCityExporter{Out: &buf}.Export(v))

	out := buf.String()
	require.Contains(t, out, "##teamcity[setParameter name='GitVersion.SemVer' value='1.1.0-pre.1']")
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		require.True(t, strings.HasPrefix(line, "##teamcity[setParameter name='GitVersion."), line)
	}
}

func TestTeamCityEscape(t *testing.T) {
	require.Equal(t, "a|'b||c|[d|]|n", teamCityEscape("a'b|c[d]\n"))
}

func TestExportToBuildAgent(t *testing.T) {
	v := formatRecord(t)

	t.Run("outside ci it does nothing", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "output")
		t.Setenv("CI", "")
		t.Setenv("GITHUB_ACTIONS", "true")
		t.Setenv("GITHUB_OUTPUT", path)

		require.NoError(t, ExportToBuildAgent(v))
		_, err := os.Stat(path)
		require.True(t, os.IsNotExist(err))
	})

	t.Run("github actions", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "output")
		t.Setenv("CI", "true")
		t.Setenv("GITHUB_ACTIONS", "true")
		t.Setenv("GITHUB_OUTPUT", path)
		t.Setenv("GITLAB_CI", "")
		t.Setenv("TEAMCITY_VERSION", "")

		require.NoError(t, ExportToBuildAgent(v))
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Contains(t, string(data), "GitVersion_SemVer=1.1.0-pre.1\n")
	})

	t.Run("gitlab ci", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "env")
		t.Setenv("CI", "true")
		t.Setenv("GITHUB_ACTIONS", "")
		t.Setenv("GITLAB_CI", "true")
		t.Setenv("GITLAB_ENV", path)
		t.Setenv("TEAMCITY_VERSION", "")

		require.NoError(t, ExportToBuildAgent(v))
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Contains(t, string(data), "GitVersion_SemVer=1.1.0-pre.1\n")
	})

	t.Run("unknown agent", func(t *testing.T) {
		t.Setenv("CI", "true")
		t.Setenv("GITHUB_ACTIONS", "")
		t.Setenv("GITLAB_CI", "")
		t.Setenv("TEAMCITY_VERSION", "")

		require.NoError(t, ExportToBuildAgent(v))
	})
}
