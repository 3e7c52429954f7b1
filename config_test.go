package trunkver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	def := DefaultConfig()
	require.Equal(t, DefaultMainBranchPattern, def.MainBranch)
	require.Equal(t, DefaultPreReleaseTag, def.PreReleaseTag)
	require.Equal(t, IncrementingDisabled, def.CommitMessageIncrementing)
	require.False(t, def.ContinuousDelivery)

	t.Run("zero fields are filled", func(t *testing.T) {
		cfg := Config{PreReleaseTag: "rc"}.withDefaults()
		require.Equal(t, "rc", cfg.PreReleaseTag)
		require.Equal(t, DefaultMainBranchPattern, cfg.MainBranch)
		require.Equal(t, DefaultReleaseBranchPattern, cfg.ReleaseBranch)
	})

	t.Run("validate rejects unknown incrementing values", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.CommitMessageIncrementing = "Maybe"
		require.ErrorContains(t, cfg.validate(), `"Maybe"`)
	})
}

func TestLoadFileConfig(t *testing.T) {
	writeConfig := func(t *testing.T, name, content string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}

	t.Run("toml", func(t *testing.T) {
		path := writeConfig(t, "config.toml",
			"MainBranch = \"^develop$\"\nContinuousDelivery = true\n")

		cfg, err := LoadFileConfig(path)
		require.NoError(t, err)
		require.NotNil(t, cfg.MainBranch)
		require.Equal(t, "^develop$", *cfg.MainBranch)
		require.NotNil(t, cfg.ContinuousDelivery)
		require.True(t, *cfg.ContinuousDelivery)
		require.Nil(t, cfg.ReleaseBranch)
	})

	t.Run("yaml", func(t *testing.T) {
		path := writeConfig(t, "config.yaml",
			"PreReleaseTag: rc\nCommitMessageIncrementing: Enabled\n")

		cfg, err := LoadFileConfig(path)
		require.NoError(t, err)
		require.NotNil(t, cfg.PreReleaseTag)
		require.Equal(t, "rc", *cfg.PreReleaseTag)
		require.NotNil(t, cfg.CommitMessageIncrementing)
		require.Equal(t, IncrementingEnabled, *cfg.CommitMessageIncrementing)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		path := writeConfig(t, "config.ini", "MainBranch=x\n")
		_, err := LoadFileConfig(path)
		require.ErrorContains(t, err, "unsupported config file format")
	})

	t.Run("malformed file", func(t *testing.T) {
		path := writeConfig(t, "config.toml", "MainBranch = [broken\n")
		_, err := LoadFileConfig(path)
		require.Error(t, err)
	})
}

func TestFindFileConfig(t *testing.T) {
	t.Run("finds the dotfile", func(t *testing.T) {
		dir := t.TempDir()
		content := "TagPrefix = \"app-\"\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".git-versioner.toml"), []byte(content), 0o644))

		cfg, found, err := FindFileConfig(dir)
		require.NoError(t, err)
		require.True(t, found)
		require.NotNil(t, cfg.TagPrefix)
		require.Equal(t, "app-", *cfg.TagPrefix)
	})

	t.Run("nothing to find", func(t *testing.T) {
		_, found, err := FindFileConfig(t.TempDir())
		require.NoError(t, err)
		require.False(t, found)
	})
}

func TestFileConfigApply(t *testing.T) {
	main := "^develop$"
	cd := true
	file := FileConfig{MainBranch: &main, ContinuousDelivery: &cd}

	merged := file.Apply(DefaultConfig())
	require.Equal(t, "^develop$", merged.MainBranch)
	require.True(t, merged.ContinuousDelivery)
	require.Equal(t, DefaultReleaseBranchPattern, merged.ReleaseBranch, "absent fields keep the base value")
}
