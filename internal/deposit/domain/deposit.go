package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type DepositStatus int8

// 充值生命周期
const (
	StatusDetected  DepositStatus = 0 // 首次发现, 确认数不足
	StatusConfirmed DepositStatus = 1 // 确认数达标, 等待入账
	StatusSettling  DepositStatus = 2 // 已被入账引擎抢占 (瞬态, 超时会被回收)
	StatusSettled   DepositStatus = 3 // 已入账
	StatusFailed    DepositStatus = 4 // 永久失败, 需人工处理
)

// OnchainDeposit 一条链上充值事件, 一个事件一行, 永不删除。
// 不变式: Credited = true 蕴含 Status = StatusSettled。
type OnchainDeposit struct {
	ID      int64  `gorm:"column:id;primaryKey"`
	Chain   string `gorm:"column:chain;size:16"`
	Network string `gorm:"column:network;size:32"`
	Asset   string `gorm:"column:asset;size:16"`

	// 事件标识: EVM 填 TxHash+LogIndex, SOL 填 Signature, 只填其一。
	// EventKey 是组合键的字符串形式, 唯一索引, 防重复入库的唯一防线。
	TxHash    string `gorm:"column:tx_hash;size:128"`
	LogIndex  int    `gorm:"column:log_index"`
	Signature string `gorm:"column:signature;size:128"`
	EventKey  string `gorm:"column:event_key;size:256;uniqueIndex"`

	FromAddress string          `gorm:"column:from_address;size:128"`
	ToAddress   string          `gorm:"column:to_address;size:128"`
	Amount      decimal.Decimal `gorm:"column:amount;type:decimal(38,18)"`

	Confirmations         int64 `gorm:"column:confirmations"`
	RequiredConfirmations int64 `gorm:"column:required_confirmations"`

	// 0 表示还没关联到平台用户 (打款地址没有已验证的绑定记录)
	UserID int64 `gorm:"column:user_id;index"`

	Status    DepositStatus   `gorm:"column:status;index"`
	Credited  bool            `gorm:"column:credited"`
	CreditedAt *time.Time     `gorm:"column:credited_at"`
	AmountUsd decimal.Decimal `gorm:"column:amount_usd;type:decimal(20,2)"`
	ErrorMsg  string          `gorm:"column:error_msg;size:512"`

	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;index"`
}

func (OnchainDeposit) TableName() string {
	return "onchain_deposits"
}

// BuildEventKey 组合事件键。
// EVM: chain|network|txHash|logIndex
// SOL: chain|network|signature|asset|toAddress (一笔交易可能同时动原生币和多种代币)
func BuildEventKey(chain, network, txHash string, logIndex int, signature, asset, toAddress string) string {
	if signature != "" {
		return strings.Join([]string{chain, network, signature, asset, toAddress}, "|")
	}
	return fmt.Sprintf("%s|%s|%s|%d", chain, network, strings.ToLower(txHash), logIndex)
}

// IdempotencyKey 流水幂等键, 由不可变的事件属性推导。
// 和 EventKey 是两道独立的防线: EventKey 挡重复入库,
// 幂等键挡 "钱包已加钱但状态没写回" 的崩溃重放, 不要合并。
func (d *OnchainDeposit) IdempotencyKey() string {
	ref := d.Signature
	if ref == "" {
		ref = fmt.Sprintf("%s#%d", strings.ToLower(d.TxHash), d.LogIndex)
	}
	return strings.Join([]string{"deposit", d.Chain, d.Network, d.Asset, ref, d.ToAddress}, "|")
}
