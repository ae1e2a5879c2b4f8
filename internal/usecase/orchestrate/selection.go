package orchestrate

import (
	"fmt"

	"assetflow/internal/domain/check"
)

// Selection names the assets and checks one run should execute. Selecting an
// asset pulls in every check targeting it unless WithoutTargetedChecks is
// set; checks can also be named directly.
type Selection struct {
	AllAssets             bool
	AllChecks             bool
	Assets                []check.AssetKey
	Checks                []check.Key
	WithoutTargetedChecks bool
}

// SelectEverything selects all declared assets and checks.
func SelectEverything() Selection {
	return Selection{AllAssets: true, AllChecks: true}
}

func SelectAssets(keys ...check.AssetKey) Selection {
	return Selection{Assets: append([]check.AssetKey(nil), keys...)}
}

func SelectChecks(keys ...check.Key) Selection {
	return Selection{Checks: append([]check.Key(nil), keys...)}
}

// WithoutChecks suppresses the automatic inclusion of checks targeting the
// selected assets. Directly named checks stay selected.
func (s Selection) WithoutChecks() Selection {
	s.WithoutTargetedChecks = true
	return s
}

// Union merges two selections. WithoutTargetedChecks survives the merge, so
// "these assets without their checks, plus these named checks" composes.
func (s Selection) Union(other Selection) Selection {
	return Selection{
		AllAssets:             s.AllAssets || other.AllAssets,
		AllChecks:             s.AllChecks || other.AllChecks,
		Assets:                append(append([]check.AssetKey(nil), s.Assets...), other.Assets...),
		Checks:                append(append([]check.Key(nil), s.Checks...), other.Checks...),
		WithoutTargetedChecks: s.WithoutTargetedChecks || other.WithoutTargetedChecks,
	}
}

// resolve expands the selection against the registry. It returns the
// selected asset keys and check keys in canonical form, after validating
// that every named key exists and that per-executable subsets are legal.
func (s Selection) resolve(defs *Definitions) (map[string]bool, map[string]bool, error) {
	assets := make(map[string]bool)
	if s.AllAssets {
		for _, canonical := range defs.assetOrder {
			assets[canonical] = true
		}
	}
	for _, key := range s.Assets {
		canonical := key.String()
		if _, ok := defs.assets[canonical]; !ok {
			return nil, nil, fmt.Errorf("%w: unknown asset %q", check.ErrInvalidSubset, canonical)
		}
		assets[canonical] = true
	}

	checks := make(map[string]bool)
	if s.AllChecks {
		for canonical := range defs.specOwner {
			checks[canonical] = true
		}
	}
	for _, key := range s.Checks {
		canonical := key.String()
		if _, ok := defs.specOwner[canonical]; !ok {
			return nil, nil, fmt.Errorf("%w: unknown check %q", check.ErrInvalidSubset, canonical)
		}
		checks[canonical] = true
	}

	if !s.WithoutTargetedChecks {
		for _, exec := range defs.checks {
			for _, spec := range exec.specs {
				if assets[spec.Asset.String()] {
					checks[spec.Key().String()] = true
				}
			}
		}
	}

	for _, exec := range defs.checks {
		selected := 0
		for _, spec := range exec.specs {
			if checks[spec.Key().String()] {
				selected++
			}
		}
		if selected > 0 && selected < len(exec.specs) && !exec.canSubset {
			return nil, nil, fmt.Errorf(
				"%w: %d of %d checks of %q selected but the check does not support subsetting",
				check.ErrInvalidSubset, selected, len(exec.specs), exec.name,
			)
		}
	}

	return assets, checks, nil
}
