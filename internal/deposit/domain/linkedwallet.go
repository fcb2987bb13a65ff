package domain

import "time"

// LinkedWallet 用户通过签名验证过所有权的外部地址。
// 由链外的验证流程写入, 本引擎只读; 只有 Verified=true 的行参与地址归属。
type LinkedWallet struct {
	ID       int64  `gorm:"column:id;primaryKey"`
	UserID   int64  `gorm:"column:user_id;uniqueIndex:uk_user_chain_addr"`
	Chain    string `gorm:"column:chain;size:16;uniqueIndex:uk_user_chain_addr"`
	Address  string `gorm:"column:address;size:128;uniqueIndex:uk_user_chain_addr;index:idx_chain_addr"`
	Verified bool   `gorm:"column:verified"`

	CreatedAt time.Time `gorm:"column:created_at"`
}

func (LinkedWallet) TableName() string {
	return "linked_wallets"
}
