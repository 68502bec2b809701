package storage

import (
	"context"
	"fmt"

	"github.com/avstrong/staytrust/internal/logger"
)

const LevelReadCommitted = "READ COMMITTED"

type Transactor interface {
	BeginTransaction(ctx context.Context, level string) (context.Context, error)
	CommitTransaction(ctx context.Context) error
	RollbackTransaction(ctx context.Context) error
}

// InTransaction runs fn inside a transaction and commits only when fn
// succeeds. A panic rolls back and is re-raised.
func InTransaction(ctx context.Context, l *logger.Logger, trx Transactor, name string, fn func(ctx context.Context) error) (err error) {
	ctx, err = trx.BeginTransaction(ctx, LevelReadCommitted)
	if err != nil {
		return fmt.Errorf("begin %s transaction: %w", name, err)
	}

	defer func() {
		if p := recover(); p != nil {
			if rbErr := trx.RollbackTransaction(ctx); rbErr != nil {
				l.LogErrorf("Could not rollback %s transaction after panic %v", name, p)
			}

			l.LogInfo("Transaction %s has been roll backed after panic", name)

			panic(p)
		}

		if err != nil {
			if rbErr := trx.RollbackTransaction(ctx); rbErr != nil {
				l.LogErrorf("Could not rollback %s transaction after error %v", name, rbErr.Error())
			}

			return
		}

		if err = trx.CommitTransaction(ctx); err != nil {
			l.LogErrorf("Could not commit %s transaction, err %v", name, err.Error())
			err = fmt.Errorf("commit %s transaction: %w", name, err)
		}
	}()

	return fn(ctx)
}
