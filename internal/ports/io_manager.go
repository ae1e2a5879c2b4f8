package ports

import (
	"context"

	"assetflow/internal/domain/check"
)

// IOManager hands asset values between nodes. The engine calls LoadInput
// only for declared inputs and HandleOutput only for materialized values;
// a node that declares no inputs must never trigger LoadInput.
type IOManager interface {
	LoadInput(ctx context.Context, key check.AssetKey) (any, error)
	HandleOutput(ctx context.Context, key check.AssetKey, value any) error
}
