package config

import (
	"time"

	"github.com/shopspring/decimal"

	watcherdomain "varlixo.com/internal/watcher/domain"
)

// Config 对应 config/deposit-watcher.yaml 的内容
type Config struct {
	Name        string
	LogLevel    string
	MetricsAddr string // prometheus /metrics 监听地址, 空则不开

	ScanInterval time.Duration // 扫描周期, 如 60s

	Settlement struct {
		BatchSize        int
		StaleLockTimeout time.Duration
		StableAssets     []string // USD 锚定资产, 跳过行情 1:1 入账
	}

	// MySQL 配置
	Mysql struct {
		DataSource  string // DSN: "user:pass@tcp(ip:port)/db..."
		MaxIdle     int
		MaxOpen     int
		MaxLifetime int // 秒
	}

	// Redis 配置 (行情缓存), Addr 为空则不用缓存
	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	Oracle struct {
		BaseUrl  string
		Timeout  time.Duration
		CacheTTL time.Duration
	}

	Networks []NetworkConf
}

// NetworkConf 单个链/网络的扫描配置
type NetworkConf struct {
	Chain          string // EVM / SOL
	Network        string
	RpcUrl         string
	DepositAddress string
	NativeSymbol   string
	NativeDecimals int32

	ConfirmNum    int64
	OverlapBlocks int64
	MaxBlockRange int64
	SigPageLimit  int

	MinDeposit string // decimal string, 空串按 0 处理
	Tokens     []TokenConf
}

type TokenConf struct {
	Symbol              string
	Contract            string
	DepositTokenAccount string
	Decimals            int32
	MinDeposit          string
}

// ToDomain 转成 watcher 域配置
func (n *NetworkConf) ToDomain() *watcherdomain.NetworkConfig {
	cfg := &watcherdomain.NetworkConfig{
		Chain:          n.Chain,
		Network:        n.Network,
		RpcURL:         n.RpcUrl,
		DepositAddress: n.DepositAddress,
		NativeSymbol:   n.NativeSymbol,
		NativeDecimals: n.NativeDecimals,
		ConfirmNum:     n.ConfirmNum,
		OverlapBlocks:  n.OverlapBlocks,
		MaxBlockRange:  n.MaxBlockRange,
		SigPageLimit:   n.SigPageLimit,
		MinDeposit:     parseAmount(n.MinDeposit),
	}
	for _, t := range n.Tokens {
		cfg.Tokens = append(cfg.Tokens, watcherdomain.TokenConfig{
			Symbol:              t.Symbol,
			Contract:            t.Contract,
			DepositTokenAccount: t.DepositTokenAccount,
			Decimals:            t.Decimals,
			MinDeposit:          parseAmount(t.MinDeposit),
		})
	}
	return cfg
}

func parseAmount(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero // 配置写错按 0 (不过滤), 不拦启动
	}
	return d
}
