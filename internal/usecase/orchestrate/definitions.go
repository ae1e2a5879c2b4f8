package orchestrate

import (
	"errors"
	"fmt"

	"assetflow/internal/domain/check"
)

// DefinitionsConfig collects everything one deployment declares: assets,
// check executables and shared resources.
type DefinitionsConfig struct {
	Assets    []AssetDef
	Checks    []*CheckExecutable
	Resources map[string]any
}

// Definitions is the validated registry the engine executes against.
// Construction fails on duplicate asset keys, duplicate check keys across
// executables, malformed asset declarations and unsatisfied resource keys.
type Definitions struct {
	assets     map[string]AssetDef
	assetOrder []string
	checks     []*CheckExecutable
	specOwner  map[string]*CheckExecutable
	resources  map[string]any
}

func NewDefinitions(cfg DefinitionsConfig) (*Definitions, error) {
	defs := &Definitions{
		assets:     make(map[string]AssetDef, len(cfg.Assets)),
		assetOrder: make([]string, 0, len(cfg.Assets)),
		checks:     make([]*CheckExecutable, 0, len(cfg.Checks)),
		specOwner:  make(map[string]*CheckExecutable),
		resources:  cloneResources(cfg.Resources),
	}

	for _, def := range cfg.Assets {
		if def.Key.IsZero() {
			return nil, check.ErrAssetKeyRequired
		}
		canonical := def.Key.String()
		if _, dup := defs.assets[canonical]; dup {
			return nil, fmt.Errorf("duplicate asset key %q", canonical)
		}
		if def.Source && def.Materialize != nil {
			return nil, fmt.Errorf("source asset %q must not have a Materialize function", canonical)
		}
		if !def.Source && def.Materialize == nil {
			return nil, fmt.Errorf("asset %q requires a Materialize function", canonical)
		}
		defs.assets[canonical] = def
		defs.assetOrder = append(defs.assetOrder, canonical)
	}

	for _, exec := range cfg.Checks {
		if exec == nil {
			return nil, errors.New("nil check executable")
		}
		for _, spec := range exec.specs {
			canonical := spec.Key().String()
			if _, dup := defs.specOwner[canonical]; dup {
				return nil, fmt.Errorf("%w: %s", check.ErrDuplicateCheckKey, canonical)
			}
			defs.specOwner[canonical] = exec
		}
		for _, required := range exec.requiredResourceKeys {
			if _, ok := exec.resources[required]; ok {
				continue
			}
			if _, ok := defs.resources[required]; ok {
				continue
			}
			return nil, fmt.Errorf("%w: %q on check %q", check.ErrMissingResource, required, exec.name)
		}
		defs.checks = append(defs.checks, exec)
	}

	return defs, nil
}

func (d *Definitions) Asset(key check.AssetKey) (AssetDef, bool) {
	def, ok := d.assets[key.String()]
	return def, ok
}

func (d *Definitions) Checks() []*CheckExecutable {
	cloned := make([]*CheckExecutable, len(d.checks))
	copy(cloned, d.checks)
	return cloned
}

// CheckKeys returns every declared check key in declaration order.
func (d *Definitions) CheckKeys() []check.Key {
	keys := make([]check.Key, 0, len(d.specOwner))
	for _, exec := range d.checks {
		keys = append(keys, exec.keys()...)
	}
	return keys
}

// resourcesFor overlays executable-local resources on the shared table.
func (d *Definitions) resourcesFor(exec *CheckExecutable) map[string]any {
	merged := make(map[string]any, len(d.resources)+len(exec.resources))
	for name, value := range d.resources {
		merged[name] = value
	}
	for name, value := range exec.resources {
		merged[name] = value
	}
	return merged
}
