package reconciliation

import (
	"context"

	"gorm.io/gorm"
)

type TxManager interface {
	Begin(ctx context.Context) (*gorm.DB, error)
	Commit(tx *gorm.DB) error
	Rollback(tx *gorm.DB) error
}

type GormTxManager struct {
	db *gorm.DB
}

func NewGormTxManager(db *gorm.DB) *GormTxManager {
	return &GormTxManager{db: db}
}

func (m *GormTxManager) Begin(ctx context.Context) (*gorm.DB, error) {
	tx := m.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	return tx, nil
}

func (m *GormTxManager) Commit(tx *gorm.DB) error {
	return tx.Commit().Error
}

func (m *GormTxManager) Rollback(tx *gorm.DB) error {
	return tx.Rollback().Error
}
