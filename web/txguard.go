package web

import (
	"context"
	"database/sql"
	"fmt"
)

// Tx is the terminal surface of one database transaction. The
// concrete type is usually *sql.Tx, but the guard only ever commits
// or rolls back, so anything transactional fits.
type Tx interface {
	Commit() error
	Rollback() error
}

// BeginFunc opens a new transaction.
type BeginFunc func() (Tx, error)

// txPolicy configures the guard's terminal-action choice.
type txPolicy struct {
	commitErrorResponses bool
}

// TxOption adjusts the transaction guard.
type TxOption func(*txPolicy)

// CommitErrorResponses makes the guard commit even when the handler
// returns an error-status response (>= 400). Some applications record
// failed attempts and want those writes kept; the default is to roll
// error responses back.
func CommitErrorResponses() TxOption {
	return func(p *txPolicy) { p.commitErrorResponses = true }
}

// WithTx stores the live transaction for handlers to pick up.
func WithTx(ctx context.Context, tx Tx) context.Context {
	return context.WithValue(ctx, txKey, tx)
}

// TxFrom returns the transaction opened by the guard around this
// request, or nil when no guard is in the composition.
func TxFrom(ctx context.Context) Tx {
	tx, _ := ctx.Value(txKey).(Tx)
	return tx
}

// SQLFrom is TxFrom for the common case of a guard opened over
// database/sql. It returns nil when no transaction is present or the
// guard was opened over something else.
func SQLFrom(ctx context.Context) *sql.Tx {
	tx, _ := TxFrom(ctx).(*sql.Tx)
	return tx
}

// Transactional wraps inner so that every request runs inside one
// database transaction with exactly one terminal action:
//
//   - inner returns a success response (status < 400): commit.
//   - inner returns an error-status response: roll back, unless
//     CommitErrorResponses was given.
//   - inner returns an error or panics: roll back and synthesize a
//     500 response.
//
// Compose it outermost if routing misses should also run (and roll
// back) inside a transaction, or around a sub-router to scope it.
// Handlers reach the open transaction with TxFrom(req.Context()).
func Transactional(begin BeginFunc, inner Handler, opts ...TxOption) Handler {
	var policy txPolicy
	for _, opt := range opts {
		opt(&policy)
	}
	return HandlerFunc(func(req *Request, params Params) (resp *Response, err error) {
		tx, beginErr := begin()
		if beginErr != nil {
			return nil, fmt.Errorf("begin transaction: %w", beginErr)
		}
		req = req.WithContext(WithTx(req.Context(), tx))

		defer func() {
			if recovered := recover(); recovered != nil {
				// Rollback failure is unreportable here; there is
				// nothing to preserve and the 500 already tells the
				// client things went wrong.
				_ = tx.Rollback()
				resp, err = FromPanic(req, recovered), nil
				return
			}
			if err != nil || resp == nil {
				_ = tx.Rollback()
				if err == nil {
					err = fmt.Errorf("handler returned no response")
				}
				return
			}
			if resp.Code >= 400 && !policy.commitErrorResponses {
				_ = tx.Rollback()
				return
			}
			if commitErr := tx.Commit(); commitErr != nil {
				// The data did not land; the response claiming
				// success must not go out.
				resp, err = nil, fmt.Errorf("commit transaction: %w", commitErr)
			}
		}()

		return inner.Handle(req, params)
	})
}
