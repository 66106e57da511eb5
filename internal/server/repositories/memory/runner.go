package memory

import (
	"context"

	"github.com/dmitrijs2005/subkeeper/internal/dbx"
)

// Runner satisfies dbx.Runner without a database. Repositories from Manager
// ignore the handle, so fn receives nil. RunTx does not roll back.
type Runner struct{}

func (Runner) Run(ctx context.Context, fn func(ctx context.Context, db dbx.DBTX) error) error {
	return fn(ctx, nil)
}

func (Runner) RunTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	return fn(ctx, nil)
}
