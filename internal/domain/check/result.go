package check

import "fmt"

// Severity classifies the consequence of a failing check.
type Severity string

const (
	SeverityWarn  Severity = "WARN"
	SeverityError Severity = "ERROR"
)

// Normalize applies the default severity (ERROR) to an unset value.
func (s Severity) Normalize() Severity {
	if s == "" {
		return SeverityError
	}
	return s
}

func (s Severity) Valid() bool {
	return s == SeverityWarn || s == SeverityError
}

// Result is the value produced by executing check logic. Asset and CheckName
// may be left empty when the executable evaluates a single spec; the engine
// resolves them against the evaluated spec set before recording.
type Result struct {
	Asset     AssetKey
	CheckName string
	Passed    bool
	Severity  Severity
	Metadata  map[string]any
}

// ResolveKey attributes the result to exactly one of the candidate keys.
// Zero matches means the result escaped the evaluation scope; more than one
// means the result is underspecified for the scope.
func (r Result) ResolveKey(candidates []Key) (Key, error) {
	matched := make([]Key, 0, len(candidates))
	for _, key := range candidates {
		if !r.Asset.IsZero() && !r.Asset.Equal(key.Asset) {
			continue
		}
		if r.CheckName != "" && r.CheckName != key.Name {
			continue
		}
		matched = append(matched, key)
	}

	switch len(matched) {
	case 1:
		return matched[0], nil
	case 0:
		return Key{}, fmt.Errorf(
			"%w: result for asset %q check %q, evaluating %v",
			ErrUnexpectedTarget, r.Asset.String(), r.CheckName, keyStrings(candidates),
		)
	default:
		return Key{}, fmt.Errorf(
			"%w: result matches %v, set Asset and CheckName explicitly",
			ErrUnexpectedTarget, keyStrings(matched),
		)
	}
}

func keyStrings(keys []Key) []string {
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		out = append(out, key.String())
	}
	return out
}
