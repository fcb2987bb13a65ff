package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"varlixo.com/internal/deposit/domain"
	"varlixo.com/internal/funds"
	"varlixo.com/internal/oracle"
	"varlixo.com/pkg/logger"
	"varlixo.com/pkg/metrics"
)

// 入账金额统一保留 2 位小数, 四舍五入 (round half up)。
// 换算点和钱包加钱点用同一精度, 保证 before + amountUsd == after 精确成立。
const usdPlaces = 2

type SettlementConfig struct {
	BatchSize        int           // 单轮最多处理多少笔
	StaleLockTimeout time.Duration // Settling 超过这个时长视为僵尸单, 可被回收
	StableAssets     []string      // USD 锚定资产, 跳过行情直接 1:1
}

// Settlement 入账引擎: 把已确认的充值精确一次地记进用户余额。
//
// 两道独立的幂等防线, 不要合并:
//  1. 充值行自己的 credited 标记 + Settling 抢占 (条件更新当分布式锁)
//  2. 流水表的幂等键 (抢占成功但进程死在加钱和回写状态之间时, 靠它兜底)
type Settlement struct {
	cfg      SettlementConfig
	deposits domain.DepositRepo
	resolver *AddressResolver
	wallets  funds.WalletRepo
	ledger   funds.LedgerRepo
	oracle   oracle.PriceOracle
	stable   map[string]struct{}
}

func NewSettlement(cfg SettlementConfig, deposits domain.DepositRepo, resolver *AddressResolver,
	wallets funds.WalletRepo, ledger funds.LedgerRepo, po oracle.PriceOracle) *Settlement {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.StaleLockTimeout <= 0 {
		cfg.StaleLockTimeout = 10 * time.Minute
	}

	stable := make(map[string]struct{}, len(cfg.StableAssets))
	for _, s := range cfg.StableAssets {
		stable[s] = struct{}{}
	}

	return &Settlement{
		cfg:      cfg,
		deposits: deposits,
		resolver: resolver,
		wallets:  wallets,
		ledger:   ledger,
		oracle:   po,
		stable:   stable,
	}
}

// RunPass 跑一轮入账。单笔失败只影响自己, 整轮永远正常返回,
// 保证调度器的下个周期照常运转。
func (s *Settlement) RunPass(ctx context.Context) {
	staleBefore := time.Now().Add(-s.cfg.StaleLockTimeout)

	batch, err := s.deposits.SelectSettleable(ctx, staleBefore, s.cfg.BatchSize)
	if err != nil {
		logger.Error(ctx, "查询待入账充值失败", zap.Error(err))
		return
	}
	if len(batch) == 0 {
		return
	}
	logger.Debug(ctx, "开始入账", zap.Int("candidates", len(batch)))

	for _, dep := range batch {
		if ctx.Err() != nil {
			return
		}
		s.settleOne(ctx, dep, staleBefore)
	}
}

func (s *Settlement) settleOne(ctx context.Context, dep *domain.OnchainDeposit, staleBefore time.Time) {
	// 1. 原子抢占。没抢到说明别的周期/实例在处理或已处理完, 直接跳过。
	claimed, err := s.deposits.ClaimForSettlement(ctx, dep.ID, staleBefore)
	if err != nil {
		logger.Error(ctx, "抢占充值失败", zap.Int64("deposit_id", dep.ID), zap.Error(err))
		return
	}
	if !claimed {
		return
	}

	// 2. 归属用户。钱包绑定可能发生在充值被发现之后,
	// 所以每轮都重新解析一次, 仍然没有就放回去下轮再看。
	if dep.UserID == 0 {
		uid, rerr := s.resolver.Resolve(ctx, dep.Chain, dep.FromAddress)
		if rerr != nil {
			logger.Error(ctx, "地址归属查询失败", zap.Int64("deposit_id", dep.ID), zap.Error(rerr))
			s.unclaim(ctx, dep.ID)
			return
		}
		if uid == 0 {
			metrics.SettlementFailuresTotal.WithLabelValues(dep.Chain, "unresolved").Inc()
			s.unclaim(ctx, dep.ID)
			return
		}
		dep.UserID = uid
		if serr := s.deposits.StampUser(ctx, dep.EventKey, uid); serr != nil {
			logger.Warn(ctx, "补写归属用户失败", zap.Int64("deposit_id", dep.ID), zap.Error(serr))
		}
	}

	// 3. 第二道幂等防线: 流水里已经有同幂等键的记录,
	// 说明上次进程死在了加钱之后、状态回写之前, 只补状态不再加钱。
	idemKey := dep.IdempotencyKey()
	existing, err := s.ledger.FindByIdempotencyKey(ctx, idemKey)
	if err != nil {
		// 查询失败按瞬时处理, 留在 Settling 等超时回收
		logger.Error(ctx, "幂等键查询失败", zap.Int64("deposit_id", dep.ID), zap.Error(err))
		return
	}
	if existing != nil {
		logger.Warn(ctx, "发现已入账的流水, 只补状态",
			zap.Int64("deposit_id", dep.ID),
			zap.String("txn_id", existing.ID))
		if merr := s.deposits.MarkSettled(ctx, dep.ID, existing.Amount, time.Now()); merr != nil {
			logger.Error(ctx, "补写入账状态失败", zap.Int64("deposit_id", dep.ID), zap.Error(merr))
		}
		return
	}

	// 4. 估值
	amountUsd, verr := s.valuate(ctx, dep)
	if verr != nil {
		if errors.Is(verr, oracle.ErrUnavailable) {
			// 行情源暂时不可用是瞬时故障, 放回去下轮重试,
			// 绝不把原始数量当 USD 金额入账
			metrics.SettlementFailuresTotal.WithLabelValues(dep.Chain, "oracle").Inc()
			logger.Warn(ctx, "行情不可用, 本轮跳过", zap.Int64("deposit_id", dep.ID), zap.Error(verr))
			s.unclaim(ctx, dep.ID)
			return
		}
		// 估值结果非法属于永久失败, 自动重试不会有不同结果
		metrics.SettlementFailuresTotal.WithLabelValues(dep.Chain, "valuation").Inc()
		logger.Error(ctx, "估值失败, 标记为 Failed", zap.Int64("deposit_id", dep.ID), zap.Error(verr))
		if merr := s.deposits.MarkFailed(ctx, dep.ID, verr.Error()); merr != nil {
			logger.Error(ctx, "标记失败状态失败", zap.Int64("deposit_id", dep.ID), zap.Error(merr))
		}
		return
	}

	// 5. 加钱 + 流水, 同一个事务。事务失败不会留下半截写入,
	// 充值停在 Settling, 超时后被回收重试。
	err = s.deposits.Transaction(ctx, func(txCtx context.Context) error {
		w, werr := s.wallets.FindByUser(txCtx, dep.UserID)
		if werr != nil {
			return fmt.Errorf("load wallet: %w", werr)
		}

		before := w.Balance.Round(usdPlaces)
		after := before.Add(amountUsd)
		// CAS 写余额, 条件是读到的原始值: 并发入账同一个用户的
		// 两笔不同充值时, 输家整个事务回滚重试, 不会互相覆盖
		if werr := s.wallets.UpdateBalance(txCtx, w.ID, w.Balance, after); werr != nil {
			return fmt.Errorf("update balance: %w", werr)
		}

		txRef := dep.Signature
		if txRef == "" {
			txRef = dep.TxHash
		}
		txn := &funds.LedgerTransaction{
			ID:             uuid.NewString(),
			UserID:         dep.UserID,
			Type:           funds.TxnTypeDeposit,
			Amount:         amountUsd,
			BalanceBefore:  before,
			BalanceAfter:   after,
			IdempotencyKey: idemKey,
			Chain:          dep.Chain,
			Network:        dep.Network,
			Asset:          dep.Asset,
			TxRef:          txRef,
			FromAddress:    dep.FromAddress,
		}
		if lerr := s.ledger.Append(txCtx, txn); lerr != nil {
			return fmt.Errorf("append ledger: %w", lerr)
		}
		return nil
	})
	if err != nil {
		metrics.SettlementFailuresTotal.WithLabelValues(dep.Chain, "store").Inc()
		logger.Error(ctx, "入账事务失败, 等待超时重试", zap.Int64("deposit_id", dep.ID), zap.Error(err))
		return
	}

	// 6. 回写充值状态。这一步失败也没关系: 钱已经入了,
	// 下轮重试时会在第 3 步命中幂等键, 只补状态。
	if err := s.deposits.MarkSettled(ctx, dep.ID, amountUsd, time.Now()); err != nil {
		logger.Error(ctx, "回写入账状态失败", zap.Int64("deposit_id", dep.ID), zap.Error(err))
		return
	}

	metrics.DepositsCreditedTotal.WithLabelValues(dep.Chain, dep.Network, dep.Asset).Inc()
	logger.Info(ctx, "✅ 充值入账完成",
		zap.Int64("deposit_id", dep.ID),
		zap.Int64("user_id", dep.UserID),
		zap.String("asset", dep.Asset),
		zap.String("amount", dep.Amount.String()),
		zap.String("amount_usd", amountUsd.String()))
}

// valuate 把链上金额换算成 USD。
// 稳定币直接 1:1; 其它资产拉单价相乘。换算点就地保留 2 位小数。
func (s *Settlement) valuate(ctx context.Context, dep *domain.OnchainDeposit) (decimal.Decimal, error) {
	if _, ok := s.stable[dep.Asset]; ok {
		usd := dep.Amount.Round(usdPlaces)
		if !usd.IsPositive() {
			return decimal.Zero, fmt.Errorf("invalid stable amount %s %s", dep.Amount, dep.Asset)
		}
		return usd, nil
	}

	price, err := s.oracle.GetUnitPrice(ctx, dep.Asset)
	if err != nil {
		return decimal.Zero, err
	}

	usd := dep.Amount.Mul(price).Round(usdPlaces)
	if !usd.IsPositive() {
		return decimal.Zero, fmt.Errorf("invalid valuation: %s %s * %s = %s",
			dep.Amount, dep.Asset, price, usd)
	}
	return usd, nil
}

func (s *Settlement) unclaim(ctx context.Context, id int64) {
	if err := s.deposits.Unclaim(ctx, id); err != nil {
		// 放回失败也不致命, Settling 超时后会被 stale 路径回收
		logger.Warn(ctx, "放回充值失败", zap.Int64("deposit_id", id), zap.Error(err))
	}
}
