package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/alecthomas/kong"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/jaxxstorm/trunkver"
	"github.com/joho/godotenv"
)

// Version will be set by build process
var Version = "dev"

type CLI struct {
	Commitish string `arg:"" optional:"" help:"Git commitish to version (default: HEAD)"`
	Repo      string `short:"r" help:"Repository path (default: current directory)"`

	MainBranch                string `help:"Regex matching main branch names"`
	ReleaseBranch             string `help:"Regex matching release branch names, with a BranchName group for the version"`
	FeatureBranch             string `help:"Regex matching feature branch names"`
	TagPrefix                 string `help:"Regex matching the tag prefix (e.g., '[vV]?')"`
	PreReleaseTag             string `help:"Pre-release label (default: pre)"`
	ContinuousDelivery        bool   `help:"Count tagged pre-releases instead of commits"`
	CommitMessageIncrementing string `help:"Derive the bump from commit messages: Enabled or Disabled"`

	Config     string `short:"c" help:"Configuration file path (default: .git-versioner.toml/.yaml in the repository)"`
	Format     string `short:"f" help:"Output format string, e.g. '{SemVer}+{env:BUILD ?? local}'"`
	ShowConfig bool   `help:"Print the effective configuration as TOML and exit"`

	Verbose     bool `short:"v" help:"Enable verbose logging"`
	ShowVersion bool `help:"Show version information" name:"version"`
}

func main() {
	var cli CLI

	kong.Parse(&cli,
		kong.Name("trunkver"),
		kong.Description("Derive semantic versions from trunk-based Git history"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": Version,
		},
	)

	logLevel := slog.LevelWarn
	if cli.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	if err := cli.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (c *CLI) Run() error {
	if c.ShowVersion {
		fmt.Printf("trunkver version %s\n", Version)
		return nil
	}

	// A local .env keeps {env:...} format expressions working outside CI.
	if err := godotenv.Load(); err == nil {
		slog.Debug("loaded .env file")
	}

	repoPath := c.Repo
	if repoPath == "" {
		var err error
		repoPath, err = os.Getwd()
		if err != nil {
			return fmt.Errorf("getting current directory: %w", err)
		}
	}

	cfg, err := c.effectiveConfig(repoPath)
	if err != nil {
		return err
	}

	if c.ShowConfig {
		return toml.NewEncoder(os.Stdout).Encode(cfg)
	}

	repo, err := trunkver.OpenRepository(repoPath)
	if err != nil {
		return fmt.Errorf("opening repository at %s: %w", repoPath, err)
	}

	commitish := c.Commitish
	if commitish == "" {
		commitish = "HEAD"
	}

	version, err := trunkver.Calculate(trunkver.Options{
		Repository: repo,
		Commitish:  plumbing.Revision(commitish),
		Config:     cfg,
	})
	if err != nil {
		return err
	}
	slog.Debug("derived version", "version", version.FullSemVer, "branch", version.BranchName)

	if err := c.output(version); err != nil {
		return err
	}

	if err := trunkver.ExportToBuildAgent(version); err != nil {
		slog.Warn("exporting to build agent failed", "error", err)
	}
	return nil
}

// effectiveConfig layers built-in defaults, a configuration file and the
// command line flags, in that order.
func (c *CLI) effectiveConfig(repoPath string) (trunkver.Config, error) {
	cfg := trunkver.DefaultConfig()

	if c.Config != "" {
		file, err := trunkver.LoadFileConfig(c.Config)
		if err != nil {
			return trunkver.Config{}, err
		}
		cfg = file.Apply(cfg)
		slog.Debug("applied config file", "path", c.Config)
	} else if file, found, err := trunkver.FindFileConfig(repoPath); err != nil {
		return trunkver.Config{}, err
	} else if found {
		cfg = file.Apply(cfg)
		slog.Debug("applied repository config file", "dir", repoPath)
	}

	return c.overlay(cfg), nil
}

// overlay applies the set command line flags onto a config.
func (c *CLI) overlay(cfg trunkver.Config) trunkver.Config {
	if c.MainBranch != "" {
		cfg.MainBranch = c.MainBranch
	}
	if c.ReleaseBranch != "" {
		cfg.ReleaseBranch = c.ReleaseBranch
	}
	if c.FeatureBranch != "" {
		cfg.FeatureBranch = c.FeatureBranch
	}
	if c.TagPrefix != "" {
		cfg.TagPrefix = c.TagPrefix
	}
	if c.PreReleaseTag != "" {
		cfg.PreReleaseTag = c.PreReleaseTag
	}
	if c.CommitMessageIncrementing != "" {
		cfg.CommitMessageIncrementing = c.CommitMessageIncrementing
	}
	if c.ContinuousDelivery {
		cfg.ContinuousDelivery = true
	}
	return cfg
}

func (c *CLI) output(version *trunkver.GitVersion) error {
	if c.Format != "" {
		out, err := trunkver.FormatVersion(version, c.Format)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(version)
}
