package orchestrate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"assetflow/internal/domain/check"
	"assetflow/internal/errs"
)

// selectionProfile is the on-disk form of a Selection. TOML and YAML are
// both accepted, chosen by file extension.
type selectionProfile struct {
	Version               int      `toml:"version" yaml:"version"`
	AllAssets             bool     `toml:"all_assets" yaml:"all_assets"`
	AllChecks             bool     `toml:"all_checks" yaml:"all_checks"`
	Assets                []string `toml:"assets" yaml:"assets"`
	Checks                []string `toml:"checks" yaml:"checks"`
	WithoutTargetedChecks bool     `toml:"without_targeted_checks" yaml:"without_targeted_checks"`
}

// LoadSelectionProfile reads a selection profile from path.
func LoadSelectionProfile(path string) (Selection, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Selection{}, errs.Wrap(err, "read selection profile")
	}

	var profile selectionProfile
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if err := toml.Unmarshal(raw, &profile); err != nil {
			return Selection{}, errs.Wrap(err, "parse selection profile")
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &profile); err != nil {
			return Selection{}, errs.Wrap(err, "parse selection profile")
		}
	default:
		return Selection{}, fmt.Errorf("unsupported selection profile extension %q", ext)
	}

	if profile.Version != 1 {
		return Selection{}, fmt.Errorf("unsupported selection profile version %d", profile.Version)
	}

	sel := Selection{
		AllAssets:             profile.AllAssets,
		AllChecks:             profile.AllChecks,
		WithoutTargetedChecks: profile.WithoutTargetedChecks,
	}
	for _, raw := range profile.Assets {
		key, err := check.ParseAssetKey(raw)
		if err != nil {
			return Selection{}, err
		}
		sel.Assets = append(sel.Assets, key)
	}
	for _, raw := range profile.Checks {
		key, err := check.ParseKey(raw)
		if err != nil {
			return Selection{}, err
		}
		sel.Checks = append(sel.Checks, key)
	}
	return sel, nil
}
