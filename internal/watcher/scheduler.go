package watcher

import (
	"context"
	"time"

	"go.uber.org/zap"

	depositdomain "varlixo.com/internal/deposit/domain"
	"varlixo.com/internal/deposit/service"
	"varlixo.com/internal/watcher/domain"
	"varlixo.com/pkg/logger"
	"varlixo.com/pkg/metrics"
)

// Scheduler 固定间隔跑一个 "扫描 + 入账" 周期。
// 正常情况下一个周期远小于间隔不会自我重叠; 就算重叠了
// (RPC 慢 / 多实例部署), 去重键和条件更新抢占也保证正确,
// 这正是那两个机制存在的理由。
type Scheduler struct {
	interval   time.Duration
	scanners   []domain.ChainScanner
	cursors    depositdomain.CursorRepo
	upserter   *service.Upserter
	settlement *service.Settlement
}

func NewScheduler(interval time.Duration, scanners []domain.ChainScanner,
	cursors depositdomain.CursorRepo, upserter *service.Upserter, settlement *service.Settlement) *Scheduler {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Scheduler{
		interval:   interval,
		scanners:   scanners,
		cursors:    cursors,
		upserter:   upserter,
		settlement: settlement,
	}
}

// Start 阻塞运行, ctx 取消后退出
func (s *Scheduler) Start(ctx context.Context) {
	logger.Info(ctx, "Scheduler 启动",
		zap.Duration("interval", s.interval),
		zap.Int("scanners", len(s.scanners)))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Scheduler 收到停止信号, 退出")
			return
		case <-ticker.C:
			s.RunCycle(ctx)
		}
	}
}

// RunCycle 跑一个完整周期: 逐链扫描落库, 然后一轮入账。
// 任何失败都被就地消化, 本方法永远正常返回, 下个周期照常运转。
func (s *Scheduler) RunCycle(ctx context.Context) {
	for _, sc := range s.scanners {
		if ctx.Err() != nil {
			return
		}
		if err := s.scanChain(ctx, sc); err != nil {
			// 单链失败只影响自己; 游标没动, 下轮重扫同一窗口
			metrics.ScanErrorsTotal.WithLabelValues(sc.Chain(), sc.Network()).Inc()
			logger.Error(ctx, "链扫描周期失败",
				zap.String("chain", sc.Chain()),
				zap.String("network", sc.Network()),
				zap.Error(err))
		}
	}

	s.settlement.RunPass(ctx)
}

// scanChain 游标读取 -> 扫描 -> 落库 -> 游标推进。
// 落库成功之前绝不推进游标, 这是 "不丢充值" 的根本保证。
func (s *Scheduler) scanChain(ctx context.Context, sc domain.ChainScanner) error {
	height, signature, err := s.cursors.GetLastCursor(ctx, sc.Chain(), sc.Network())
	if err != nil {
		return err
	}
	cur := domain.Cursor{Height: height, Signature: signature}

	events, next, err := sc.Scan(ctx, cur)
	if err != nil {
		return err
	}

	if err := s.upserter.Apply(ctx, events); err != nil {
		return err
	}

	// 滞后的 RPC 节点可能短暂报出比游标还低的链头, 游标只进不退
	if next.Height < cur.Height {
		next.Height = cur.Height
	}

	if next != cur {
		if err := s.cursors.UpdateCursor(ctx, sc.Chain(), sc.Network(), next.Height, next.Signature); err != nil {
			return err
		}
		metrics.CursorHeight.WithLabelValues(sc.Chain(), sc.Network()).Set(float64(next.Height))
	}
	return nil
}
