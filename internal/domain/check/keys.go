// Package check holds the value types of the asset-check domain: asset and
// check identities, check specifications, results, and evaluation records.
// Everything here is a plain immutable value with no I/O.
package check

import (
	"fmt"
	"strings"
)

// AssetKey is the hierarchical identity of a materializable asset.
// Equality is by segment sequence; the canonical form joins segments with "/".
type AssetKey struct {
	segments []string
}

func NewAssetKey(segments ...string) AssetKey {
	cloned := make([]string, len(segments))
	copy(cloned, segments)
	return AssetKey{segments: cloned}
}

// ParseAssetKey parses a canonical "a/b/c" form.
func ParseAssetKey(raw string) (AssetKey, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return AssetKey{}, ErrAssetKeyRequired
	}

	parts := strings.Split(trimmed, "/")
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			return AssetKey{}, fmt.Errorf("%w: %q", ErrInvalidAssetKey, raw)
		}
	}
	return NewAssetKey(parts...), nil
}

func (k AssetKey) Segments() []string {
	cloned := make([]string, len(k.segments))
	copy(cloned, k.segments)
	return cloned
}

func (k AssetKey) String() string {
	return strings.Join(k.segments, "/")
}

func (k AssetKey) IsZero() bool {
	return len(k.segments) == 0
}

func (k AssetKey) Equal(other AssetKey) bool {
	if len(k.segments) != len(other.segments) {
		return false
	}
	for i := range k.segments {
		if k.segments[i] != other.segments[i] {
			return false
		}
	}
	return true
}

// WithPrefix returns a new key with the given segments prepended.
func (k AssetKey) WithPrefix(prefix ...string) AssetKey {
	combined := make([]string, 0, len(prefix)+len(k.segments))
	combined = append(combined, prefix...)
	combined = append(combined, k.segments...)
	return AssetKey{segments: combined}
}

// Key is the identity of one check within a deployment: the target asset
// plus the check name. Canonical form is "<asset>:<name>".
type Key struct {
	Asset AssetKey
	Name  string
}

func NewKey(asset AssetKey, name string) Key {
	return Key{Asset: asset, Name: name}
}

// ParseKey parses a canonical "a/b:name" form.
func ParseKey(raw string) (Key, error) {
	trimmed := strings.TrimSpace(raw)
	idx := strings.LastIndex(trimmed, ":")
	if idx <= 0 || idx == len(trimmed)-1 {
		return Key{}, fmt.Errorf("%w: %q", ErrInvalidCheckKey, raw)
	}

	asset, err := ParseAssetKey(trimmed[:idx])
	if err != nil {
		return Key{}, err
	}
	return Key{Asset: asset, Name: strings.TrimSpace(trimmed[idx+1:])}, nil
}

func (k Key) String() string {
	return k.Asset.String() + ":" + k.Name
}

func (k Key) Equal(other Key) bool {
	return k.Name == other.Name && k.Asset.Equal(other.Asset)
}
