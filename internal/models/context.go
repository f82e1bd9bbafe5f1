package models

import "context"

type ledgerReferenceKey struct{}

// WithLedgerReference attaches an idempotency reference to a ledger
// primitive call so backends can record it without changing the Ledger
// interface. A primitive applied twice with the same reference fails with
// store.ErrDuplicateTransaction.
func WithLedgerReference(ctx context.Context, reference string) context.Context {
	return context.WithValue(ctx, ledgerReferenceKey{}, reference)
}

// LedgerReference returns the reference attached to ctx, or "".
func LedgerReference(ctx context.Context) string {
	ref, _ := ctx.Value(ledgerReferenceKey{}).(string)
	return ref
}
