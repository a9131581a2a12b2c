package db

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LockForUpdate adds a row-level FOR UPDATE clause on dialects that support
// it. SQLite (used by package tests) locks the whole database per write
// transaction, so the clause is skipped there.
func LockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return nil
	}
	if tx.Dialector != nil && tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}
