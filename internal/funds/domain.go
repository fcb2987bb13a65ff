package funds

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Wallet 用户的记账货币余额 (USD)。
// 充值路径下只能由入账引擎修改; 提现/投资走别的服务, 不在本引擎范围。
type Wallet struct {
	ID      int64           `gorm:"column:id;primaryKey"`
	UserID  int64           `gorm:"column:user_id;uniqueIndex"`
	Balance decimal.Decimal `gorm:"column:balance;type:decimal(20,2)"`

	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (Wallet) TableName() string {
	return "wallets"
}

const TxnTypeDeposit = "deposit"

// LedgerTransaction 余额变动的不可变流水。
// IdempotencyKey 唯一索引: 同一笔链上事件重放时插入会冲突,
// 这是防重复入账的第二道防线。
type LedgerTransaction struct {
	ID     string `gorm:"column:id;primaryKey;size:36"` // uuid
	UserID int64  `gorm:"column:user_id;index"`
	Type   string `gorm:"column:type;size:16"`

	Amount        decimal.Decimal `gorm:"column:amount;type:decimal(20,2)"`
	BalanceBefore decimal.Decimal `gorm:"column:balance_before;type:decimal(20,2)"`
	BalanceAfter  decimal.Decimal `gorm:"column:balance_after;type:decimal(20,2)"`

	IdempotencyKey string `gorm:"column:idempotency_key;size:256;uniqueIndex"`

	// 充值来源信息, 审计用
	Chain       string `gorm:"column:chain;size:16"`
	Network     string `gorm:"column:network;size:32"`
	Asset       string `gorm:"column:asset;size:16"`
	TxRef       string `gorm:"column:tx_ref;size:128"` // 交易 hash 或签名
	FromAddress string `gorm:"column:from_address;size:128"`

	CreatedAt time.Time `gorm:"column:created_at"`
}

func (LedgerTransaction) TableName() string {
	return "ledger_transactions"
}

// WalletRepo 钱包存取 (外部协作方的表, 本引擎只走充值加钱路径)
type WalletRepo interface {
	FindByUser(ctx context.Context, userID int64) (*Wallet, error)
	// UpdateBalance 余额 CAS: 只有余额仍是 before 时才写成 after,
	// 否则报错 (另一个入账流程抢先动了同一个钱包)
	UpdateBalance(ctx context.Context, walletID int64, before, after decimal.Decimal) error
}

// LedgerRepo 流水存取
type LedgerRepo interface {
	// FindByIdempotencyKey 没有记录时返回 (nil, nil)
	FindByIdempotencyKey(ctx context.Context, key string) (*LedgerTransaction, error)
	Append(ctx context.Context, txn *LedgerTransaction) error
}
