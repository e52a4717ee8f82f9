package store

import (
	"context"
	"fmt"

	"clobex.com/pkg/orm"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const insertBatch = 200

type txKey struct{}

// GormStore MySQL 版 TradeStore
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB, autoMigrate bool) (*GormStore, error) {
	if autoMigrate {
		if err := db.AutoMigrate(&Trade{}); err != nil {
			return nil, fmt.Errorf("migrate trades: %w", err)
		}
	}
	return &GormStore{db: db}, nil
}

// Transaction fn 里用 txCtx 调 SaveTrades 会落在同一个事务
func (s *GormStore) Transaction(ctx context.Context, fn func(txCtx context.Context) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

func (s *GormStore) getDb(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return s.db.WithContext(ctx)
}

func (s *GormStore) SaveTrades(ctx context.Context, trades []Trade) error {
	if len(trades) == 0 {
		return nil
	}
	// uk_fill 冲突说明重放过，跳过即可
	err := s.getDb(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(trades, insertBatch).Error
	if err != nil {
		return fmt.Errorf("save %d trades: %w", len(trades), err)
	}
	return nil
}

func (s *GormStore) RecentTrades(ctx context.Context, market string, page, limit int) ([]Trade, error) {
	var rows []Trade
	q := s.getDb(ctx).Model(&Trade{}).
		Where("market = ?", market).
		Order("ts_ms DESC").Order("id DESC")
	err := orm.ApplyPagination(q, page, limit).Find(&rows).Error
	return rows, err
}
