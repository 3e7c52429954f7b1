package trunkver

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// Exporter publishes a version record to a build agent.
type Exporter interface {
	Export(v *GitVersion) error
}

type exportVar struct {
	Name  string
	Value string
}

func sortedVariables(v *GitVersion) ([]exportVar, error) {
	vars, err := v.Variables()
	if err != nil {
		return nil, err
	}
	out := make([]exportVar, 0, len(vars))
	for name, val := range vars {
		out = append(out, exportVar{Name: name, Value: val})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// GitHubExporter appends the record to a GitHub Actions output file, the one
// named by GITHUB_OUTPUT. Each field is written twice, once bare and once
// with the GitVersion_ prefix, so steps can consume whichever name they use.
type GitHubExporter struct {
	Path string
}

func (e GitHubExporter) Export(v *GitVersion) error {
	vars, err := sortedVariables(v)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(e.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening output file: %w", err)
	}

	for _, kv := range vars {
		if _, err := fmt.Fprintf(f, "%s=%s\nGitVersion_%s=%s\n", kv.Name, kv.Value, kv.Name, kv.Value); err != nil {
			f.Close()
			return err
		}
	}
	return f.Close()
}

// GitLabExporter appends the record to a GitLab CI dotenv file, the one
// named by GITLAB_ENV, as GitVersion_ prefixed variables.
type GitLabExporter struct {
	Path string
}

func (e GitLabExporter) Export(v *GitVersion) error {
	vars, err := sortedVariables(v)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(e.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening env file: %w", err)
	}

	for _, kv := range vars {
		if _, err := fmt.Fprintf(f, "GitVersion_%s=%s\n", kv.Name, kv.Value); err != nil {
			f.Close()
			return err
		}
	}
	return f.Close()
}

// TeamCityExporter writes setParameter service messages, which TeamCity
// picks up from the build log.
type TeamCityExporter struct {
	Out io.Writer
}

func (e TeamCityExporter) Export(v *GitVersion) error {
	vars, err := sortedVariables(v)
	if err != nil {
		return err
	}

	for _, kv := range vars {
		_, err := fmt.Fprintf(e.Out, "##teamcity[setParameter name='GitVersion.%s' value='%s']\n",
			teamCityEscape(kv.Name), teamCityEscape(kv.Value))
		if err != nil {
			return err
		}
	}
	return nil
}

var teamCityEscaper = strings.NewReplacer(
	"|", "||",
	"'", "|'",
	"[", "|[",
	"]", "|]",
	"\n", "|n",
	"\r", "|r",
)

func teamCityEscape(s string) string {
	return teamCityEscaper.Replace(s)
}

// ExportToBuildAgent publishes the record to whichever build agent the
// environment indicates. Outside CI (the CI variable not "true") it is a
// no-op, and so is an unrecognized agent.
func ExportToBuildAgent(v *GitVersion) error {
	if os.Getenv("CI") != "true" {
		return nil
	}

	switch {
	case os.Getenv("GITHUB_ACTIONS") == "true" && os.Getenv("GITHUB_OUTPUT") != "":
		return GitHubExporter{Path: os.Getenv("GITHUB_OUTPUT")}.Export(v)
	case os.Getenv("GITLAB_CI") == "true" && os.Getenv("GITLAB_ENV") != "":
		return GitLabExporter{Path: os.Getenv("GITLAB_ENV")}.Export(v)
	case os.Getenv("TEAMCITY_VERSION") != "":
		return TeamCityExporter{Out: os.Stdout}.Export(v)
	}
	return nil
}
