package pgdb

import (
	"context"

	"github.com/DRSN-tech/product-service/pkg/e"
	transaction "github.com/avito-tech/go-transaction-manager/drivers/pgxv5/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jimlawless/whereami"
)

// TxManager исполняет функцию в транзакции PostgreSQL.
// Объект pgx.Tx кладётся в контекст, репозитории достают его через pkg/tr.
type TxManager struct {
	pool transaction.Transactional
}

func NewTxManager(pool transaction.Transactional) *TxManager {
	return &TxManager{pool: pool}
}

func (m *TxManager) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, tx, err := transaction.NewTransaction(ctx, pgx.TxOptions{}, m.pool)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	defer func() {
		if tx.IsActive() {
			tx.Rollback(ctx)
		}
	}()

	ctx = context.WithValue(ctx, "tx", tx.Transaction())

	if err := fn(ctx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}
