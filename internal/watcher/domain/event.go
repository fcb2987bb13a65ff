package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// 链家族。Chain 区分扫描模型, Network 区分具体网络
// (比如 EVM 家族下的 mainnet/sepolia, SOL 家族下的 mainnet-beta/devnet)。
const (
	ChainEVM = "EVM" // 账户模型: 区块高度游标
	ChainSOL = "SOL" // 原生账本模型: 签名游标
)

// TransferEvent 一次候选充值事件, 扫描器的统一输出。
// 唯一标识: EVM 用 TxHash+LogIndex, SOL 用 Signature+Asset+ToAddress,
// 二者只会填其一。
type TransferEvent struct {
	Chain     string // 链家族
	Network   string // 具体网络
	Asset     string // 资产符号 (原生币或代币)
	TxHash    string // EVM 交易 hash
	LogIndex  int    // EVM 日志索引, 原生转账为 0
	Signature string // SOL 交易签名

	FromAddress string          // 打款方
	ToAddress   string          // 平台的充值地址
	Amount      decimal.Decimal // 资产原生单位

	Confirmations         int64 // 扫描时刻的确认数
	RequiredConfirmations int64 // 该网络配置的确认门槛
}

// Cursor 扫描游标。EVM 用 Height, SOL 用 Signature, 互斥。
type Cursor struct {
	Height    int64
	Signature string
}

// ChainScanner 扫描器能力: 给定游标产出候选事件和新游标。
// 两个链家族的扫描策略结构上完全不同 (区块区间迭代 vs 签名分页),
// 只共享输出形状, 所以用接口而不是继承式的公共基类。
type ChainScanner interface {
	Chain() string
	Network() string
	Scan(ctx context.Context, cur Cursor) ([]*TransferEvent, Cursor, error)
}
