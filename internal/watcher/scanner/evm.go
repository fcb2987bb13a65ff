package scanner

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"varlixo.com/internal/watcher/domain"
	"varlixo.com/pkg/logger"
)

// ERC-20 Transfer 事件哈希: Keccak256("Transfer(address,address,uint256)")
const TransferEventHash = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"

var transferTopic = common.HexToHash(TransferEventHash)

// EVMScanner 账户模型扫描器: 区块高度游标, 每轮扫一个有界区间。
// 两趟: (a) 逐块看原生转账的收款方; (b) 按代币合约 FilterLogs
// 批量拉 Transfer 日志 (比逐笔查 Receipt 省一个数量级的 RPC)。
type EVMScanner struct {
	client      *ethclient.Client
	cfg         *domain.NetworkConfig
	depositAddr common.Address
	chainID     *big.Int
	signer      types.Signer
}

func NewEVMScanner(cfg *domain.NetworkConfig) (*EVMScanner, error) {
	client, err := ethclient.Dial(cfg.RpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial evm rpc: %w", err)
	}
	chainID, err := client.ChainID(context.Background())
	if err != nil {
		return nil, fmt.Errorf("get chain id: %w", err)
	}

	return &EVMScanner{
		client:      client,
		cfg:         cfg,
		depositAddr: common.HexToAddress(cfg.DepositAddress),
		chainID:     chainID,
		signer:      types.LatestSignerForChainID(chainID),
	}, nil
}

var _ domain.ChainScanner = (*EVMScanner)(nil)

func (s *EVMScanner) Chain() string   { return domain.ChainEVM }
func (s *EVMScanner) Network() string { return s.cfg.Network }

func (s *EVMScanner) Scan(ctx context.Context, cur domain.Cursor) ([]*domain.TransferEvent, domain.Cursor, error) {
	head, err := s.client.BlockNumber(ctx)
	if err != nil {
		return nil, cur, fmt.Errorf("get block number: %w", err)
	}

	from, to := scanWindow(cur.Height, int64(head), s.cfg.OverlapBlocks, s.cfg.MaxBlockRange)
	if from > to {
		return nil, cur, nil
	}

	events := make([]*domain.TransferEvent, 0)

	// (a) 原生转账
	native, err := s.scanNative(ctx, from, to, int64(head))
	if err != nil {
		return nil, cur, err
	}
	events = append(events, native...)

	// (b) 代币 Transfer 日志
	for i := range s.cfg.Tokens {
		tokenEvents, terr := s.scanToken(ctx, &s.cfg.Tokens[i], from, to, int64(head))
		if terr != nil {
			return nil, cur, terr
		}
		events = append(events, tokenEvents...)
	}

	logger.Debug(ctx, "EVM 扫描窗口完成",
		zap.String("network", s.cfg.Network),
		zap.Int64("from", from),
		zap.Int64("to", to),
		zap.Int("events", len(events)))
	return events, domain.Cursor{Height: to}, nil
}

func (s *EVMScanner) scanNative(ctx context.Context, from, to, head int64) ([]*domain.TransferEvent, error) {
	events := make([]*domain.TransferEvent, 0)

	for h := from; h <= to; h++ {
		block, err := s.client.BlockByNumber(ctx, big.NewInt(h))
		if err != nil {
			return nil, fmt.Errorf("eth get block %d failed: %w", h, err)
		}

		for _, tx := range block.Transactions() {
			if tx.To() == nil || tx.Value().Sign() <= 0 {
				continue
			}
			if *tx.To() != s.depositAddr {
				continue
			}

			sender, serr := types.Sender(s.signer, tx)
			if serr != nil {
				// 签名恢复不了的交易 (奇葩类型) 跳过, 不影响整窗
				continue
			}

			amount := weiToDecimal(tx.Value(), s.cfg.NativeDecimals)
			if amount.LessThan(s.cfg.MinDeposit) {
				logger.Debug(ctx, "原生转账低于最小入账金额, 丢弃",
					zap.String("tx_hash", tx.Hash().Hex()),
					zap.String("amount", amount.String()))
				continue
			}

			events = append(events, &domain.TransferEvent{
				Chain:                 domain.ChainEVM,
				Network:               s.cfg.Network,
				Asset:                 s.cfg.NativeSymbol,
				TxHash:                tx.Hash().Hex(),
				LogIndex:              0, // 原生交易固定为 0
				FromAddress:           strings.ToLower(sender.Hex()),
				ToAddress:             strings.ToLower(s.depositAddr.Hex()),
				Amount:                amount,
				Confirmations:         head - h + 1,
				RequiredConfirmations: s.cfg.ConfirmNum,
			})
		}
	}
	return events, nil
}

func (s *EVMScanner) scanToken(ctx context.Context, token *domain.TokenConfig, from, to, head int64) ([]*domain.TransferEvent, error) {
	query := ethereum.FilterQuery{
		FromBlock: big.NewInt(from),
		ToBlock:   big.NewInt(to),
		Addresses: []common.Address{common.HexToAddress(token.Contract)},
		Topics: [][]common.Hash{
			{transferTopic},
			nil, // from 不限
			{addressTopic(s.depositAddr)}, // to 必须是充值地址
		},
	}

	logs, err := s.client.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("filter %s logs failed: %w", token.Symbol, err)
	}

	events := make([]*domain.TransferEvent, 0, len(logs))
	for _, lg := range logs {
		fromAddr, amount, ok := decodeTransferLog(lg, token.Decimals)
		if !ok {
			continue
		}
		if amount.LessThan(token.MinDeposit) {
			continue
		}

		events = append(events, &domain.TransferEvent{
			Chain:                 domain.ChainEVM,
			Network:               s.cfg.Network,
			Asset:                 token.Symbol,
			TxHash:                lg.TxHash.Hex(),
			LogIndex:              int(lg.Index), // Log 的全局索引
			FromAddress:           fromAddr,
			ToAddress:             strings.ToLower(s.depositAddr.Hex()),
			Amount:                amount,
			Confirmations:         head - int64(lg.BlockNumber) + 1,
			RequiredConfirmations: s.cfg.ConfirmNum,
		})
	}
	return events, nil
}

// scanWindow 计算本轮扫描区间。
// 已有游标时向前回退 overlap 个块重扫, 容忍 RPC 节点之间的可见性延迟;
// 重扫出来的重复事件由去重键挡掉。首次运行从链头起扫, 不追历史。
// maxRange 限制单轮区间, 追块期间不会把一个周期拖爆。
func scanWindow(cursor, head, overlap, maxRange int64) (int64, int64) {
	if head <= 0 {
		return 1, 0 // 空区间
	}

	var from int64
	if cursor <= 0 {
		from = head
	} else {
		from = cursor - overlap
		if from < 0 {
			from = 0
		}
	}

	to := head
	if maxRange > 0 && to-from+1 > maxRange {
		to = from + maxRange - 1
	}
	return from, to
}

// decodeTransferLog 解析一条 ERC-20 Transfer 日志。
// Topic[1] 是打款方, Data 是金额 (按代币精度缩放)。
func decodeTransferLog(lg types.Log, decimals int32) (string, decimal.Decimal, bool) {
	if len(lg.Topics) != 3 || lg.Topics[0] != transferTopic {
		return "", decimal.Zero, false
	}
	if len(lg.Data) == 0 {
		return "", decimal.Zero, false
	}

	from := common.BytesToAddress(lg.Topics[1].Bytes())
	amountBig := new(big.Int).SetBytes(lg.Data)
	if amountBig.Sign() <= 0 {
		return "", decimal.Zero, false
	}

	return strings.ToLower(from.Hex()), weiToDecimal(amountBig, decimals), true
}

// addressTopic 把地址左填充成 32 字节的 topic
func addressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(common.LeftPadBytes(addr.Bytes(), 32))
}

// weiToDecimal 最小单位 -> 资产原生单位
func weiToDecimal(wei *big.Int, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(wei, 0).Shift(-decimals)
}
