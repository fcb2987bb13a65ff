package domain

import "time"

// IndexerCursor 每个 (chain, network) 一行, 记录扫到哪了。
// 不变式: 只增不减, 只有整个扫描窗口成功落库后才推进。
type IndexerCursor struct {
	ID      int64  `gorm:"column:id;primaryKey"`
	Chain   string `gorm:"column:chain;size:16;uniqueIndex:uk_chain_network"`
	Network string `gorm:"column:network;size:32;uniqueIndex:uk_chain_network"`

	Height    int64  `gorm:"column:height"`              // EVM: 最后处理的区块高度
	Signature string `gorm:"column:signature;size:128"` // SOL: 最近处理的签名

	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (IndexerCursor) TableName() string {
	return "indexer_cursors"
}
