package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// DepositRepo 充值台账的持久化操作。
// 所有抢占/流转都靠条件更新 (单行 CAS), 数据库的原子单行更新
// 就是并发原语, 不需要额外的互斥锁。
type DepositRepo interface {
	// UpsertEvent 按 EventKey 去重入库; 冲突时只刷新确认数
	UpsertEvent(ctx context.Context, dep *OnchainDeposit) error
	// MarkConfirmed Detected -> Confirmed, 过滤掉后续状态, 绝不降级
	MarkConfirmed(ctx context.Context, eventKey string) error
	// StampUser 补写归属用户, 只在 user_id 还是 0 时生效
	StampUser(ctx context.Context, eventKey string, userID int64) error

	// SelectSettleable 选一批待入账: Confirmed, 或者 Settling 超时的僵尸单
	SelectSettleable(ctx context.Context, staleBefore time.Time, limit int) ([]*OnchainDeposit, error)
	// ClaimForSettlement 原子抢占, 返回是否抢到
	ClaimForSettlement(ctx context.Context, id int64, staleBefore time.Time) (bool, error)
	// Unclaim 放回 Confirmed (没抢错, 只是还不能入账)
	Unclaim(ctx context.Context, id int64) error
	// MarkSettled 入账完成: credited=true + Settled + amountUsd
	MarkSettled(ctx context.Context, id int64, amountUsd decimal.Decimal, at time.Time) error
	// MarkFailed 永久失败, credited 保持 false
	MarkFailed(ctx context.Context, id int64, reason string) error

	Transaction(ctx context.Context, fn func(txCtx context.Context) error) error
}

// CursorRepo 扫描游标存取
type CursorRepo interface {
	GetLastCursor(ctx context.Context, chain, network string) (height int64, signature string, err error)
	UpdateCursor(ctx context.Context, chain, network string, height int64, signature string) error
}

// LinkedWalletRepo 已验证绑定地址的只读查询
type LinkedWalletRepo interface {
	// GetVerifiedOwner 返回地址归属的用户, 没有则返回 0
	GetVerifiedOwner(ctx context.Context, chain, address string) (int64, error)
}
