package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"assetflow/internal/domain/check"
)

// CheckFunc evaluates a single-spec check and returns exactly one result.
type CheckFunc func(ctx context.Context, cc *CheckContext) (check.Result, error)

// MultiCheckFunc evaluates a multi-spec check and returns one result per
// selected spec.
type MultiCheckFunc func(ctx context.Context, cc *CheckContext) ([]check.Result, error)

// CheckConfig declares a single-spec check. The target asset may be left
// zero when exactly one input binding identifies it. Inputs bound to assets
// other than the target must be listed in AdditionalAssets.
type CheckConfig struct {
	Asset                check.AssetKey
	Name                 string
	Description          string
	Metadata             map[string]any
	Blocking             bool
	Inputs               map[string]check.AssetKey
	AdditionalAssets     []check.AssetKey
	RequiredResourceKeys []string
	Resources            map[string]any
}

// MultiCheckConfig declares an executable that evaluates several specs in
// one invocation. CanSubset allows the engine to select a strict subset of
// the declared specs.
type MultiCheckConfig struct {
	Name                 string
	Specs                []check.Spec
	CanSubset            bool
	Inputs               map[string]check.AssetKey
	RequiredResourceKeys []string
	Resources            map[string]any
}

// CheckExecutable is one schedulable check node: one or more specs evaluated
// by a single function invocation.
type CheckExecutable struct {
	name                 string
	specs                []check.Spec
	canSubset            bool
	inputs               map[string]check.AssetKey
	requiredResourceKeys []string
	resources            map[string]any
	single               CheckFunc
	multi                MultiCheckFunc
}

// NewCheck builds a single-spec executable. The node is named
// "<asset>:<name>" after the resolved target.
func NewCheck(cfg CheckConfig, fn CheckFunc) (*CheckExecutable, error) {
	if fn == nil {
		return nil, errors.New("check function is required")
	}
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, errors.New("check name is required")
	}

	target, err := resolveTarget(cfg)
	if err != nil {
		return nil, err
	}

	spec := check.Spec{
		Name:        cfg.Name,
		Asset:       target,
		Description: cfg.Description,
		Metadata:    cfg.Metadata,
		Blocking:    cfg.Blocking,
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	return &CheckExecutable{
		name:                 spec.Key().String(),
		specs:                []check.Spec{spec},
		inputs:               cloneInputs(cfg.Inputs),
		requiredResourceKeys: append([]string(nil), cfg.RequiredResourceKeys...),
		resources:            cloneResources(cfg.Resources),
		single:               fn,
	}, nil
}

// NewMultiCheck builds a multi-spec executable named after cfg.Name.
func NewMultiCheck(cfg MultiCheckConfig, fn MultiCheckFunc) (*CheckExecutable, error) {
	if fn == nil {
		return nil, errors.New("check function is required")
	}
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, errors.New("check name is required")
	}
	if len(cfg.Specs) == 0 {
		return nil, errors.New("at least one check spec is required")
	}

	seen := make(map[string]struct{}, len(cfg.Specs))
	specs := make([]check.Spec, 0, len(cfg.Specs))
	for _, spec := range cfg.Specs {
		if err := spec.Validate(); err != nil {
			return nil, err
		}
		canonical := spec.Key().String()
		if _, dup := seen[canonical]; dup {
			return nil, fmt.Errorf("%w: %s", check.ErrDuplicateCheckKey, canonical)
		}
		seen[canonical] = struct{}{}
		specs = append(specs, spec)
	}

	return &CheckExecutable{
		name:                 cfg.Name,
		specs:                specs,
		canSubset:            cfg.CanSubset,
		inputs:               cloneInputs(cfg.Inputs),
		requiredResourceKeys: append([]string(nil), cfg.RequiredResourceKeys...),
		resources:            cloneResources(cfg.Resources),
		multi:                fn,
	}, nil
}

func (e *CheckExecutable) Name() string {
	return e.name
}

func (e *CheckExecutable) Specs() []check.Spec {
	cloned := make([]check.Spec, len(e.specs))
	copy(cloned, e.specs)
	return cloned
}

func (e *CheckExecutable) CanSubset() bool {
	return e.canSubset
}

func (e *CheckExecutable) keys() []check.Key {
	keys := make([]check.Key, 0, len(e.specs))
	for _, spec := range e.specs {
		keys = append(keys, spec.Key())
	}
	return keys
}

// resolveTarget applies the single-check targeting rules: an explicit asset
// wins; otherwise exactly one distinct input asset is required.
func resolveTarget(cfg CheckConfig) (check.AssetKey, error) {
	distinct := make([]check.AssetKey, 0, len(cfg.Inputs))
	for _, key := range cfg.Inputs {
		if containsAssetKey(distinct, key) {
			continue
		}
		distinct = append(distinct, key)
	}

	if cfg.Asset.IsZero() {
		switch len(distinct) {
		case 1:
			return distinct[0], nil
		case 0:
			return check.AssetKey{}, fmt.Errorf("%w: check %q has no asset and no inputs", check.ErrTargetRequired, cfg.Name)
		default:
			return check.AssetKey{}, fmt.Errorf(
				"%w: check %q has inputs bound to %d assets, set Asset explicitly",
				check.ErrAmbiguousTarget, cfg.Name, len(distinct),
			)
		}
	}

	for _, key := range distinct {
		if key.Equal(cfg.Asset) || containsAssetKey(cfg.AdditionalAssets, key) {
			continue
		}
		return check.AssetKey{}, fmt.Errorf(
			"%w: input asset %q of check %q is neither the target nor listed in AdditionalAssets",
			check.ErrAmbiguousTarget, key.String(), cfg.Name,
		)
	}
	return cfg.Asset, nil
}

func containsAssetKey(keys []check.AssetKey, key check.AssetKey) bool {
	for _, candidate := range keys {
		if candidate.Equal(key) {
			return true
		}
	}
	return false
}

func cloneInputs(inputs map[string]check.AssetKey) map[string]check.AssetKey {
	if len(inputs) == 0 {
		return nil
	}
	cloned := make(map[string]check.AssetKey, len(inputs))
	for name, key := range inputs {
		cloned[name] = key
	}
	return cloned
}

func cloneResources(resources map[string]any) map[string]any {
	if len(resources) == 0 {
		return nil
	}
	cloned := make(map[string]any, len(resources))
	for name, value := range resources {
		cloned[name] = value
	}
	return cloned
}
