package domain

import "github.com/shopspring/decimal"

// TokenConfig 单个代币资产的扫描配置
type TokenConfig struct {
	Symbol              string          // 资产符号, 如 USDT
	Contract            string          // EVM: 代币合约地址
	DepositTokenAccount string          // SOL: 平台的 SPL 存款 token account
	Decimals            int32           // 链上精度
	MinDeposit          decimal.Decimal // 小于这个金额的入账直接丢弃 (粉尘过滤)
}

// NetworkConfig 单个链/网络的扫描配置, 由外部配置文件提供
type NetworkConfig struct {
	Chain          string // ChainEVM / ChainSOL
	Network        string // mainnet / sepolia / mainnet-beta ...
	RpcURL         string
	DepositAddress string // 平台充值地址 (EVM 地址或 SOL 账户)
	NativeSymbol   string // 原生资产符号, 如 ETH / SOL
	NativeDecimals int32  // 原生资产精度, ETH=18 SOL=9

	ConfirmNum    int64 // 确认门槛
	OverlapBlocks int64 // EVM: 向前重扫的重叠窗口, 容忍 RPC 可见性延迟
	MaxBlockRange int64 // EVM: 单轮最多扫多少个区块
	SigPageLimit  int   // SOL: 单次拉取的签名数量上限

	MinDeposit decimal.Decimal // 原生资产最小入账金额
	Tokens     []TokenConfig
}

// Enabled 缺少 RPC 地址或充值地址时该网络不参与扫描 (静默跳过, 不算错误)
func (c *NetworkConfig) Enabled() bool {
	return c.RpcURL != "" && c.DepositAddress != ""
}
