package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"varlixo.com/internal/deposit/domain"
	watcher "varlixo.com/internal/watcher/domain"
	"varlixo.com/pkg/logger"
	"varlixo.com/pkg/metrics"
)

// Upserter 把扫描器吐出来的候选事件流变成规范的台账行。
// 去重靠 event_key 唯一索引; 每次观察都刷新确认数并尝试推进
// Detected -> Confirmed; 后续状态只归入账引擎管, 这里永远不碰。
type Upserter struct {
	deposits domain.DepositRepo
	resolver *AddressResolver
}

func NewUpserter(deposits domain.DepositRepo, resolver *AddressResolver) *Upserter {
	return &Upserter{deposits: deposits, resolver: resolver}
}

// Apply 落库一个扫描窗口的全部事件。
// 任何一条失败就报错中断, 调用方不会推进游标, 下个周期整窗重扫
// (重扫是安全的, 去重键挡住重复行)。
func (u *Upserter) Apply(ctx context.Context, events []*watcher.TransferEvent) error {
	for _, ev := range events {
		if err := u.applyOne(ctx, ev); err != nil {
			return fmt.Errorf("apply event: %w", err)
		}
	}
	return nil
}

func (u *Upserter) applyOne(ctx context.Context, ev *watcher.TransferEvent) error {
	from := NormalizeAddress(ev.Chain, ev.FromAddress)
	to := NormalizeAddress(ev.Chain, ev.ToAddress)
	key := domain.BuildEventKey(ev.Chain, ev.Network, ev.TxHash, ev.LogIndex, ev.Signature, ev.Asset, to)

	// 地址归属: 找不到不算错, 充值先挂着等绑定
	uid, err := u.resolver.Resolve(ctx, ev.Chain, from)
	if err != nil {
		return err
	}

	confirmed := ev.Confirmations >= ev.RequiredConfirmations
	status := domain.StatusDetected
	if confirmed {
		status = domain.StatusConfirmed
	}

	dep := &domain.OnchainDeposit{
		Chain:                 ev.Chain,
		Network:               ev.Network,
		Asset:                 ev.Asset,
		TxHash:                ev.TxHash,
		LogIndex:              ev.LogIndex,
		Signature:             ev.Signature,
		EventKey:              key,
		FromAddress:           from,
		ToAddress:             to,
		Amount:                ev.Amount,
		Confirmations:         ev.Confirmations,
		RequiredConfirmations: ev.RequiredConfirmations,
		UserID:                uid,
		Status:                status,
	}

	if err := u.deposits.UpsertEvent(ctx, dep); err != nil {
		return err
	}

	// 冲突路径下插入时的 status/user_id 不会生效, 这里补两个条件更新:
	// 确认数达标就推进状态, 归属到了就补写 user_id (都不会降级/覆盖)
	if confirmed {
		if err := u.deposits.MarkConfirmed(ctx, key); err != nil {
			return err
		}
	}
	if uid != 0 {
		if err := u.deposits.StampUser(ctx, key, uid); err != nil {
			return err
		}
	}

	metrics.TransferEventsTotal.WithLabelValues(ev.Chain, ev.Network, ev.Asset).Inc()
	logger.Debug(ctx, "充值事件落库",
		zap.String("event_key", key),
		zap.String("amount", ev.Amount.String()),
		zap.Int64("confirmations", ev.Confirmations),
		zap.Int64("user_id", uid))
	return nil
}
