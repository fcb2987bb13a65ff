package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"varlixo.com/internal/funds"
	"varlixo.com/pkg/orm"
	"varlixo.com/pkg/xerr"
)

type Repo struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

var (
	_ funds.WalletRepo = (*Repo)(nil)
	_ funds.LedgerRepo = (*Repo)(nil)
)

func (r *Repo) getDb(ctx context.Context) *gorm.DB {
	return orm.DB(ctx, r.db)
}

// FindByUser 获取用户钱包, 不存在则惰性创建零余额钱包
// (注册流程正常会建好, 这里兜底)
func (r *Repo) FindByUser(ctx context.Context, userID int64) (*funds.Wallet, error) {
	var w funds.Wallet
	err := r.getDb(ctx).Where("user_id = ?", userID).First(&w).Error
	if err == nil {
		return &w, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("find wallet failed: %v", err))
	}

	w = funds.Wallet{UserID: userID, Balance: decimal.Zero}
	if err := r.getDb(ctx).Create(&w).Error; err != nil {
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("create wallet failed: %v", err))
	}
	return &w, nil
}

// UpdateBalance 余额 CAS 更新。读-改-写中间被别的入账流程插队时
// WHERE 匹配不到行, 报错让外层事务整体回滚, 充值留在 Settling 等重试,
// 不会丢掉任何一边的更新。
func (r *Repo) UpdateBalance(ctx context.Context, walletID int64, before, after decimal.Decimal) error {
	res := r.getDb(ctx).Model(&funds.Wallet{}).
		Where("id = ? AND balance = ?", walletID, before).
		Update("balance", after)

	if res.Error != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("update balance failed: %v", res.Error))
	}
	if res.RowsAffected == 0 {
		return xerr.New(xerr.DbError, fmt.Sprintf("wallet %d balance changed concurrently", walletID))
	}
	return nil
}

// FindByIdempotencyKey 按幂等键查流水, 没有返回 (nil, nil)
func (r *Repo) FindByIdempotencyKey(ctx context.Context, key string) (*funds.LedgerTransaction, error) {
	var txn funds.LedgerTransaction
	err := r.getDb(ctx).Where("idempotency_key = ?", key).First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("find ledger txn failed: %v", err))
	}
	return &txn, nil
}

// Append 追加一条流水。幂等键撞唯一索引说明重复入账, 直接报错,
// 让外层事务整体回滚。
func (r *Repo) Append(ctx context.Context, txn *funds.LedgerTransaction) error {
	if err := r.getDb(ctx).Create(txn).Error; err != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("append ledger txn failed: %v", err))
	}
	return nil
}
