package check

import (
	"fmt"
	"strings"
)

// Spec is the static declaration of one check: a name bound to one target
// asset, plus description, metadata and the blocking flag. Specs are created
// at declaration time and never mutated afterwards.
type Spec struct {
	Name        string
	Asset       AssetKey
	Description string
	Metadata    map[string]any
	Blocking    bool
}

func NewSpec(name string, asset AssetKey) Spec {
	return Spec{Name: name, Asset: asset}
}

func (s Spec) Key() Key {
	return Key{Asset: s.Asset, Name: s.Name}
}

func (s Spec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: spec name is empty", ErrInvalidCheckKey)
	}
	if s.Asset.IsZero() {
		return fmt.Errorf("%w: check %q", ErrTargetRequired, s.Name)
	}
	return nil
}
