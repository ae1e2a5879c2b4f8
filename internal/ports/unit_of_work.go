package ports

import "context"

type txKey struct{}

// WithTxContext attaches an open transaction handle to the context so that
// repositories participate in the surrounding unit of work.
func WithTxContext(ctx context.Context, tx any) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey{}, tx)
}

func TxFromContext(ctx context.Context) any {
	if ctx == nil {
		return nil
	}
	return ctx.Value(txKey{})
}

// UnitOfWork runs fn inside one transaction; the transaction handle travels
// on the context passed to fn.
type UnitOfWork interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
