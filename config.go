package trunkver

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Built-in defaults. The release and feature patterns carry a BranchName
// capture holding the version fragment or the feature name.
const (
	DefaultMainBranchPattern    = `^(trunk|main|master)$`
	DefaultReleaseBranchPattern = `^releases?[/-](?P<BranchName>.+)$`
	DefaultFeatureBranchPattern = `^features?[/-](?P<BranchName>.+)$`
	DefaultTagPrefixPattern     = `[vV]?`
	DefaultPreReleaseTag        = "pre"
)

// Accepted values for Config.CommitMessageIncrementing.
const (
	IncrementingEnabled  = "Enabled"
	IncrementingDisabled = "Disabled"
)

// Config is the fully resolved configuration the derivation works with.
// Merging of defaults, config file and command line flags happens before the
// core sees it; see DefaultConfig, FileConfig.Apply and the CLI.
type Config struct {
	MainBranch                string `toml:"MainBranch" yaml:"MainBranch" json:"MainBranch"`
	ReleaseBranch             string `toml:"ReleaseBranch" yaml:"ReleaseBranch" json:"ReleaseBranch"`
	FeatureBranch             string `toml:"FeatureBranch" yaml:"FeatureBranch" json:"FeatureBranch"`
	TagPrefix                 string `toml:"TagPrefix" yaml:"TagPrefix" json:"TagPrefix"`
	PreReleaseTag             string `toml:"PreReleaseTag" yaml:"PreReleaseTag" json:"PreReleaseTag"`
	CommitMessageIncrementing string `toml:"CommitMessageIncrementing" yaml:"CommitMessageIncrementing" json:"CommitMessageIncrementing"`
	ContinuousDelivery        bool   `toml:"ContinuousDelivery" yaml:"ContinuousDelivery" json:"ContinuousDelivery"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		MainBranch:                DefaultMainBranchPattern,
		ReleaseBranch:             DefaultReleaseBranchPattern,
		FeatureBranch:             DefaultFeatureBranchPattern,
		TagPrefix:                 DefaultTagPrefixPattern,
		PreReleaseTag:             DefaultPreReleaseTag,
		CommitMessageIncrementing: IncrementingDisabled,
	}
}

// withDefaults fills zero-value fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MainBranch == "" {
		c.MainBranch = def.MainBranch
	}
	if c.ReleaseBranch == "" {
		c.ReleaseBranch = def.ReleaseBranch
	}
	if c.FeatureBranch == "" {
		c.FeatureBranch = def.FeatureBranch
	}
	if c.TagPrefix == "" {
		c.TagPrefix = def.TagPrefix
	}
	if c.PreReleaseTag == "" {
		c.PreReleaseTag = def.PreReleaseTag
	}
	if c.CommitMessageIncrementing == "" {
		c.CommitMessageIncrementing = IncrementingDisabled
	}
	return c
}

func (c Config) validate() error {
	switch c.CommitMessageIncrementing {
	case IncrementingEnabled, IncrementingDisabled:
		return nil
	default:
		return fmt.Errorf("invalid value %q for CommitMessageIncrementing, should be %q or %q",
			c.CommitMessageIncrementing, IncrementingEnabled, IncrementingDisabled)
	}
}

// FileConfig is the optional configuration file. Absent fields keep the
// value of the layer below.
type FileConfig struct {
	MainBranch                *string `toml:"MainBranch" yaml:"MainBranch"`
	ReleaseBranch             *string `toml:"ReleaseBranch" yaml:"ReleaseBranch"`
	FeatureBranch             *string `toml:"FeatureBranch" yaml:"FeatureBranch"`
	TagPrefix                 *string `toml:"TagPrefix" yaml:"TagPrefix"`
	PreReleaseTag             *string `toml:"PreReleaseTag" yaml:"PreReleaseTag"`
	CommitMessageIncrementing *string `toml:"CommitMessageIncrementing" yaml:"CommitMessageIncrementing"`
	ContinuousDelivery        *bool   `toml:"ContinuousDelivery" yaml:"ContinuousDelivery"`
}

// LoadFileConfig reads a TOML or YAML configuration file, deciding the
// format by file extension.
func LoadFileConfig(path string) (FileConfig, error) {
	var cfg FileConfig

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return FileConfig{}, fmt.Errorf("parsing %s: %w", path, err)
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return FileConfig{}, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return FileConfig{}, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		return FileConfig{}, fmt.Errorf("unsupported config file format %q", ext)
	}

	return cfg, nil
}

// FindFileConfig looks for .git-versioner.toml, .yaml or .yml in dir. The
// second return value reports whether a file was found.
func FindFileConfig(dir string) (FileConfig, bool, error) {
	for _, name := range []string{".git-versioner.toml", ".git-versioner.yaml", ".git-versioner.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		cfg, err := LoadFileConfig(path)
		if err != nil {
			return FileConfig{}, false, err
		}
		return cfg, true, nil
	}
	return FileConfig{}, false, nil
}

// Apply overlays the file values onto base and returns the result.
func (f FileConfig) Apply(base Config) Config {
	if f.MainBranch != nil {
		base.MainBranch = *f.MainBranch
	}
	if f.ReleaseBranch != nil {
		base.ReleaseBranch = *f.ReleaseBranch
	}
	if f.FeatureBranch != nil {
		base.FeatureBranch = *f.FeatureBranch
	}
	if f.TagPrefix != nil {
		base.TagPrefix = *f.TagPrefix
	}
	if f.PreReleaseTag != nil {
		base.PreReleaseTag = *f.PreReleaseTag
	}
	if f.CommitMessageIncrementing != nil {
		base.CommitMessageIncrementing = *f.CommitMessageIncrementing
	}
	if f.ContinuousDelivery != nil {
		base.ContinuousDelivery = *f.ContinuousDelivery
	}
	return base
}
