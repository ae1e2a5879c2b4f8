package check

import "errors"

var (
	ErrAssetKeyRequired = errors.New("asset key is required")
	ErrInvalidAssetKey  = errors.New("invalid asset key")
	ErrInvalidCheckKey  = errors.New("invalid check key")

	ErrDuplicateCheckKey = errors.New("duplicate check key")
	ErrTargetRequired    = errors.New("check target asset is required")
	ErrAmbiguousTarget   = errors.New("ambiguous check target asset")

	ErrUnexpectedTarget    = errors.New("check result targets an asset outside the evaluation scope")
	ErrUnrequestedCheckKey = errors.New("check result targets a key outside the selected subset")
	ErrDuplicateResult     = errors.New("duplicate check result for key")

	ErrInvalidSubset   = errors.New("selection is not a valid subset")
	ErrMissingResource = errors.New("required resource key is not satisfied")
)
