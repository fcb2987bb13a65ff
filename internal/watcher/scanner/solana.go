package scanner

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"varlixo.com/internal/watcher/domain"
	"varlixo.com/pkg/logger"
)

// SolanaScanner 原生账本模型扫描器。
// 没有像 EVM 那样好用的区块区间查询, 改用签名游标:
// 拉充值账户最近的交易签名, 碰到上次见过的签名为止 (Until 参数),
// 再逐笔用 pre/post 余额快照算出入账金额。
type SolanaScanner struct {
	client         *rpc.Client
	cfg            *domain.NetworkConfig
	depositAccount solana.PublicKey
	tokenAccounts  []solTokenAccount // 校验过的 SPL 存款账户
}

type solTokenAccount struct {
	cfg *domain.TokenConfig
	key solana.PublicKey
}

func NewSolanaScanner(cfg *domain.NetworkConfig) (*SolanaScanner, error) {
	// 公共 RPC 对免费档限速很凶, 客户端侧先自己限一道
	client := rpc.NewWithCustomRPCClient(rpc.NewWithLimiter(
		cfg.RpcURL,
		rate.Every(time.Second), // time frame
		5,                       // limit of requests per time frame
	))

	depositAccount, err := solana.PublicKeyFromBase58(cfg.DepositAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid deposit account %q: %w", cfg.DepositAddress, err)
	}

	tokenAccounts := make([]solTokenAccount, 0, len(cfg.Tokens))
	for i := range cfg.Tokens {
		tok := &cfg.Tokens[i]
		if tok.DepositTokenAccount == "" {
			continue // 没配 token account 的资产不扫 (静默跳过)
		}
		key, kerr := solana.PublicKeyFromBase58(tok.DepositTokenAccount)
		if kerr != nil {
			return nil, fmt.Errorf("invalid token account for %s: %w", tok.Symbol, kerr)
		}
		tokenAccounts = append(tokenAccounts, solTokenAccount{cfg: tok, key: key})
	}

	return &SolanaScanner{
		client:         client,
		cfg:            cfg,
		depositAccount: depositAccount,
		tokenAccounts:  tokenAccounts,
	}, nil
}

var _ domain.ChainScanner = (*SolanaScanner)(nil)

func (s *SolanaScanner) Chain() string   { return domain.ChainSOL }
func (s *SolanaScanner) Network() string { return s.cfg.Network }

func (s *SolanaScanner) Scan(ctx context.Context, cur domain.Cursor) ([]*domain.TransferEvent, domain.Cursor, error) {
	limit := s.cfg.SigPageLimit
	if limit <= 0 {
		limit = 100
	}

	var until solana.Signature
	hasUntil := false
	if cur.Signature != "" {
		u, perr := solana.SignatureFromBase58(cur.Signature)
		if perr != nil {
			// 游标损坏只可能是人工改库, 当成首次运行处理
			logger.Warn(ctx, "签名游标无法解析, 按首次运行处理",
				zap.String("network", s.cfg.Network),
				zap.String("cursor", cur.Signature))
		} else {
			until = u
			hasUntil = true
		}
	}

	fetch := func(ctx context.Context, before solana.Signature) ([]*rpc.TransactionSignature, error) {
		opts := &rpc.GetSignaturesForAddressOpts{
			Limit:      &limit,
			Commitment: rpc.CommitmentFinalized,
		}
		if hasUntil {
			opts.Until = until
		}
		if !before.IsZero() {
			opts.Before = before
		}
		return s.client.GetSignaturesForAddressWithOpts(ctx, s.depositAccount, opts)
	}

	var sigs []*rpc.TransactionSignature
	var err error
	if hasUntil {
		// 有游标时必须向回翻页翻到游标为止: RPC 单页只给最新的 limit 条,
		// 爆发期只取一页就推进游标, 中间漏掉的签名会永远落在窗口外
		sigs, err = collectSignatures(ctx, fetch, limit)
	} else {
		// 首次运行只取最新一页做基线, 不回填历史
		sigs, err = fetch(ctx, solana.Signature{})
	}
	if err != nil {
		return nil, cur, fmt.Errorf("get signatures: %w", err)
	}
	if len(sigs) == 0 {
		return nil, cur, nil
	}
	// 返回按时间从新到旧, 第 0 个就是新游标
	newest := sigs[0].Signature.String()

	maxTxVersion := uint64(0)
	events := make([]*domain.TransferEvent, 0)

	// 从旧到新处理, 中途出错整窗放弃, 游标不动, 下轮重扫同一窗口
	for i := len(sigs) - 1; i >= 0; i-- {
		si := sigs[i]
		if si.Err != nil {
			continue // 链上执行失败的交易
		}

		res, terr := s.client.GetTransaction(ctx, si.Signature, &rpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			Commitment:                     rpc.CommitmentFinalized,
			MaxSupportedTransactionVersion: &maxTxVersion,
		})
		if terr != nil {
			return nil, cur, fmt.Errorf("get transaction %s: %w", si.Signature, terr)
		}

		evs, perr := s.extractEvents(si.Signature.String(), res)
		if perr != nil {
			// 解析不了的交易 (非标准程序) 跳过, 不拖垮整窗
			logger.Warn(ctx, "SOL 交易解析失败, 跳过",
				zap.String("signature", si.Signature.String()),
				zap.Error(perr))
			continue
		}
		events = append(events, evs...)
	}

	logger.Debug(ctx, "SOL 扫描窗口完成",
		zap.String("network", s.cfg.Network),
		zap.Int("signatures", len(sigs)),
		zap.Int("events", len(events)))
	return events, domain.Cursor{Signature: newest}, nil
}

// sigFetcher 拉一页签名, before 为零值表示从最新的开始
type sigFetcher func(ctx context.Context, before solana.Signature) ([]*rpc.TransactionSignature, error)

// collectSignatures 从最新往回翻页, 直到 Until 游标生效 (返回短页) 为止,
// 攒出游标之后的全部新签名, 保持从新到旧的顺序。
// 整页塞满说明游标还没碰到, 继续用本页最旧的签名往回翻。
func collectSignatures(ctx context.Context, fetch sigFetcher, pageLimit int) ([]*rpc.TransactionSignature, error) {
	all := make([]*rpc.TransactionSignature, 0, pageLimit)
	var before solana.Signature

	for {
		page, err := fetch(ctx, before)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)

		if len(page) < pageLimit {
			return all, nil
		}
		before = page[len(page)-1].Signature
	}
}

// extractEvents 用 pre/post 余额快照算一笔交易里打到平台账户的入账。
// finalized 承诺级别下见到即最终, 确认数直接按门槛记。
func (s *SolanaScanner) extractEvents(sig string, res *rpc.GetTransactionResult) ([]*domain.TransferEvent, error) {
	if res == nil || res.Meta == nil {
		return nil, fmt.Errorf("empty transaction meta")
	}
	tx, err := res.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}

	keys := tx.Message.AccountKeys
	// 费用支付方是消息里的第一个账户, 作为打款方参与地址归属
	fromAddress := ""
	if len(keys) > 0 {
		fromAddress = keys[0].String()
	}

	events := make([]*domain.TransferEvent, 0, 1)

	// 原生 SOL: 充值账户的 post - pre
	if idx := accountIndex(keys, s.depositAccount); idx >= 0 {
		delta := lamportDelta(res.Meta.PreBalances, res.Meta.PostBalances, idx)
		if delta > 0 {
			amount := lamportsToDecimal(delta, s.cfg.NativeDecimals)
			if !amount.LessThan(s.cfg.MinDeposit) {
				events = append(events, &domain.TransferEvent{
					Chain:                 domain.ChainSOL,
					Network:               s.cfg.Network,
					Asset:                 s.cfg.NativeSymbol,
					Signature:             sig,
					FromAddress:           fromAddress,
					ToAddress:             s.cfg.DepositAddress,
					Amount:                amount,
					Confirmations:         s.cfg.ConfirmNum,
					RequiredConfirmations: s.cfg.ConfirmNum,
				})
			}
		}
	}

	// SPL 代币: 配置过的存款 token account, 按账户索引匹配 token 余额快照
	for _, ta := range s.tokenAccounts {
		idx := accountIndex(keys, ta.key)
		if idx < 0 {
			continue
		}
		delta, ok := tokenDelta(res.Meta.PreTokenBalances, res.Meta.PostTokenBalances, uint16(idx), ta.cfg.Decimals)
		if !ok || !delta.IsPositive() {
			continue
		}
		if delta.LessThan(ta.cfg.MinDeposit) {
			continue
		}

		events = append(events, &domain.TransferEvent{
			Chain:                 domain.ChainSOL,
			Network:               s.cfg.Network,
			Asset:                 ta.cfg.Symbol,
			Signature:             sig,
			FromAddress:           fromAddress,
			ToAddress:             ta.cfg.DepositTokenAccount,
			Amount:                delta,
			Confirmations:         s.cfg.ConfirmNum,
			RequiredConfirmations: s.cfg.ConfirmNum,
		})
	}

	return events, nil
}

// accountIndex target 在交易消息账户表里的位置, 不在返回 -1
func accountIndex(keys []solana.PublicKey, target solana.PublicKey) int {
	for i, k := range keys {
		if k == target {
			return i
		}
	}
	return -1
}

// lamportDelta 指定账户索引的原生余额变化 (lamports)
func lamportDelta(pre, post []uint64, idx int) int64 {
	if idx < 0 || idx >= len(pre) || idx >= len(post) {
		return 0
	}
	return int64(post[idx]) - int64(pre[idx])
}

// tokenDelta 指定账户索引的 SPL 余额变化。
// pre 里没有对应条目说明 token account 是这笔交易里刚建的, 按 0 算。
func tokenDelta(pre, post []rpc.TokenBalance, accountIndex uint16, decimals int32) (decimal.Decimal, bool) {
	postAmt, ok := rawTokenAmount(post, accountIndex)
	if !ok {
		return decimal.Zero, false
	}
	preAmt, ok := rawTokenAmount(pre, accountIndex)
	if !ok {
		preAmt = new(big.Int)
	}

	delta := new(big.Int).Sub(postAmt, preAmt)
	return decimal.NewFromBigInt(delta, 0).Shift(-decimals), true
}

func rawTokenAmount(balances []rpc.TokenBalance, accountIndex uint16) (*big.Int, bool) {
	for i := range balances {
		if balances[i].AccountIndex != accountIndex {
			continue
		}
		if balances[i].UiTokenAmount == nil {
			return nil, false
		}
		raw, ok := new(big.Int).SetString(balances[i].UiTokenAmount.Amount, 10)
		if !ok {
			return nil, false
		}
		return raw, true
	}
	return nil, false
}

// lamportsToDecimal 最小单位 -> SOL
func lamportsToDecimal(lamports int64, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(big.NewInt(lamports), 0).Shift(-decimals)
}
