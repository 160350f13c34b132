package persistence

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Transact runs fn against a Persistence bound to a single driver
// transaction. The transaction is rolled back when fn returns an error and
// committed otherwise. Subscriptions and configuration are shared with p.
func (p *Persistence) Transact(ctx context.Context, fn func(tx *Persistence) error) error {
	driver, ok := p.driver.(TransactionalDriver)
	if !ok {
		return ErrTransactionsUnsupported
	}

	_, err := p.withEventEmission("transaction", TransactionStart, TransactionSuccess, TransactionFailed, nil, nil,
		func() (any, error) {
			txDriver, err := driver.StartTransaction(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to start transaction: %w", err)
			}

			tx := *p
			tx.driver = txDriver
			tx.executor = NewExecutor(txDriver, p.logger)

			if err := fn(&tx); err != nil {
				if rbErr := txDriver.Rollback(ctx); rbErr != nil {
					p.logger.Warn("Transaction rollback failed", zap.Error(rbErr))
				}
				return nil, err
			}
			if err := txDriver.Commit(ctx); err != nil {
				return nil, fmt.Errorf("failed to commit transaction: %w", err)
			}
			return nil, nil
		})
	return err
}
