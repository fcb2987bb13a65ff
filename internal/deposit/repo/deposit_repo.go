package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm/clause"

	"varlixo.com/internal/deposit/domain"
	"varlixo.com/pkg/xerr"
)

// UpsertEvent 按 event_key 去重入库。
// 插入时写全量字段; 冲突说明是重扫窗口里见过的事件, 事件本身不可变,
// 只刷新确认数 (确认数只增不减, 直接覆盖即可)。
// 状态流转不在这里做: 后续状态只允许入账引擎写, 避免重扫把
// Settling/Settled/Failed 降级回去。
func (r *Repo) UpsertEvent(ctx context.Context, dep *domain.OnchainDeposit) error {
	err := r.getDb(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"confirmations", "updated_at"}),
	}).Create(dep).Error

	if err != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("upsert deposit event failed: %v", err))
	}
	return nil
}

// MarkConfirmed Detected -> Confirmed。
// WHERE 里限定只动 Detected, 后续状态一律不碰, 影响 0 行是正常情况。
func (r *Repo) MarkConfirmed(ctx context.Context, eventKey string) error {
	res := r.getDb(ctx).Model(&domain.OnchainDeposit{}).
		Where("event_key = ? AND status = ?", eventKey, domain.StatusDetected).
		Update("status", domain.StatusConfirmed)

	if res.Error != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("mark confirmed failed: %v", res.Error))
	}
	return nil
}

// StampUser 补写归属用户。只在还没归属时写入, 不覆盖已有归属
// (管理后台可能手工指定过)。
func (r *Repo) StampUser(ctx context.Context, eventKey string, userID int64) error {
	res := r.getDb(ctx).Model(&domain.OnchainDeposit{}).
		Where("event_key = ? AND user_id = 0", eventKey).
		Update("user_id", userID)

	if res.Error != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("stamp user failed: %v", res.Error))
	}
	return nil
}

// SelectSettleable 选一批待入账的充值:
// credited=false 且 (Confirmed 或 Settling 超时)。
// Settling 超时说明上一次入账进程死在了半路, 靠这里回收重试。
func (r *Repo) SelectSettleable(ctx context.Context, staleBefore time.Time, limit int) ([]*domain.OnchainDeposit, error) {
	var rows []*domain.OnchainDeposit
	err := r.getDb(ctx).Model(&domain.OnchainDeposit{}).
		Where("credited = ? AND (status = ? OR (status = ? AND updated_at < ?))",
			false, domain.StatusConfirmed, domain.StatusSettling, staleBefore).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error

	if err != nil {
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("select settleable failed: %v", err))
	}
	return rows, nil
}

// ClaimForSettlement 原子抢占一笔充值。
// 这是唯一的并发控制手段: 条件更新匹配不到行 (别的周期/实例抢走了,
// 或已经结算) 就返回 false, 调用方直接跳过。
// Settling 的行必须同时满足超时条件才允许再次抢占, 保证同一笔
// 不会被两个活着的入账流程同时持有。
func (r *Repo) ClaimForSettlement(ctx context.Context, id int64, staleBefore time.Time) (bool, error) {
	res := r.getDb(ctx).Model(&domain.OnchainDeposit{}).
		Where("id = ? AND credited = ? AND (status = ? OR (status = ? AND updated_at < ?))",
			id, false, domain.StatusConfirmed, domain.StatusSettling, staleBefore).
		Updates(map[string]interface{}{
			"status":     domain.StatusSettling,
			"updated_at": time.Now(),
		})

	if res.Error != nil {
		return false, xerr.New(xerr.DbError, fmt.Sprintf("claim deposit failed: %v", res.Error))
	}
	return res.RowsAffected == 1, nil
}

// Unclaim 抢到了但暂时不能入账 (比如还没关联到用户), 放回 Confirmed
func (r *Repo) Unclaim(ctx context.Context, id int64) error {
	res := r.getDb(ctx).Model(&domain.OnchainDeposit{}).
		Where("id = ? AND status = ? AND credited = ?", id, domain.StatusSettling, false).
		Update("status", domain.StatusConfirmed)

	if res.Error != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("unclaim deposit failed: %v", res.Error))
	}
	return nil
}

// MarkSettled 入账完成。只允许从 Settling 且未入账的行流转,
// 幂等: 重放时影响 0 行, 不报错。
func (r *Repo) MarkSettled(ctx context.Context, id int64, amountUsd decimal.Decimal, at time.Time) error {
	res := r.getDb(ctx).Model(&domain.OnchainDeposit{}).
		Where("id = ? AND status = ? AND credited = ?", id, domain.StatusSettling, false).
		Updates(map[string]interface{}{
			"credited":    true,
			"credited_at": at,
			"status":      domain.StatusSettled,
			"amount_usd":  amountUsd,
			"error_msg":   "",
		})

	if res.Error != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("mark settled failed: %v", res.Error))
	}
	return nil
}

// MarkFailed 永久失败, 等人工处理。credited 保持 false。
func (r *Repo) MarkFailed(ctx context.Context, id int64, reason string) error {
	res := r.getDb(ctx).Model(&domain.OnchainDeposit{}).
		Where("id = ? AND credited = ?", id, false).
		Updates(map[string]interface{}{
			"status":    domain.StatusFailed,
			"error_msg": reason,
		})

	if res.Error != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("mark failed failed: %v", res.Error))
	}
	return nil
}

// GetByEventKey 测试和对账用
func (r *Repo) GetByEventKey(ctx context.Context, eventKey string) (*domain.OnchainDeposit, error) {
	var dep domain.OnchainDeposit
	err := r.getDb(ctx).Where("event_key = ?", eventKey).First(&dep).Error
	if err != nil {
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("get deposit failed: %v", err))
	}
	return &dep, nil
}
