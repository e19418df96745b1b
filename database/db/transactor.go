package db

import (
	"database/sql"

	"gorm.io/gorm"
)

type TransactionFunc = func(db *gorm.DB) error

// WithTransaction runs p inside a transaction with the given options.
func WithTransaction(db *gorm.DB, p TransactionFunc, opts ...*sql.TxOptions) error {
	tx := db.Begin(opts...)
	if tx.Error != nil {
		return tx.Error
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()
	if err := p(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit().Error
}
