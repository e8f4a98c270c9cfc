// Package tx carries a per-request transaction executor through the
// request context so handlers can group repository calls atomically.
package tx

import (
	"context"
	"fmt"
	"net/http"
)

type key int

const KeyTx key = iota

// DBRepo is the slice of the repository the middleware needs.
type DBRepo interface {
	WithTx(ctx context.Context, cb func(ctx context.Context) error) error
}

type Tx struct {
	DbRepo DBRepo
}

// TxMiddlewareHTTP makes the repository's transaction executor
// available to every handler below it.
func TxMiddlewareHTTP(repo DBRepo) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), KeyTx, Tx{DbRepo: repo})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TxExecute runs cb inside a database transaction. Repository methods
// called with the callback's context join that transaction.
func TxExecute(ctx context.Context, cb func(ctx context.Context) error) error {
	t, ok := ctx.Value(KeyTx).(Tx)
	if !ok {
		return fmt.Errorf("no transaction executor in context")
	}

	return t.DbRepo.WithTx(ctx, cb)
}
