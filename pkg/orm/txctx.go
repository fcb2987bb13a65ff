package orm

import (
	"context"

	"gorm.io/gorm"
)

type txKey struct{}

// Transaction 开启事务并把 tx 注入 context。
// 入账这类多表写操作跨了 deposit/funds 两组 repo, 事务句柄放在
// context 里传递, 各 repo 通过 DB(ctx, db) 自动拿到同一个 tx。
func Transaction(ctx context.Context, db *gorm.DB, fn func(txCtx context.Context) error) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txCtx := context.WithValue(ctx, txKey{}, tx)
		return fn(txCtx)
	})
}

// DB 获取数据库连接, context 中有事务则优先用事务
func DB(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return db.WithContext(ctx)
}
