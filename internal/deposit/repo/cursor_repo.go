package repo

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"varlixo.com/internal/deposit/domain"
	"varlixo.com/pkg/xerr"
)

// GetLastCursor 获取指定链/网络的扫描游标。
// 没有记录说明是第一次运行, 返回零值 (从链头附近起扫由扫描器决定)。
func (r *Repo) GetLastCursor(ctx context.Context, chain, network string) (int64, string, error) {
	var cur domain.IndexerCursor
	err := r.getDb(ctx).
		Where("chain = ? AND network = ?", chain, network).
		First(&cur).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, "", nil
		}
		return 0, "", xerr.New(xerr.DbError, fmt.Sprintf("query cursor failed: %v", err))
	}
	return cur.Height, cur.Signature, nil
}

// UpdateCursor 推进游标 (Upsert: 不存在则插入, 存在则更新)。
// 只在整个扫描窗口成功落库后调用, 失败的窗口下个周期原样重扫。
func (r *Repo) UpdateCursor(ctx context.Context, chain, network string, height int64, signature string) error {
	cur := &domain.IndexerCursor{
		Chain:     chain,
		Network:   network,
		Height:    height,
		Signature: signature,
	}

	err := r.getDb(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chain"}, {Name: "network"}},
		DoUpdates: clause.AssignmentColumns([]string{"height", "signature", "updated_at"}),
	}).Create(cur).Error

	if err != nil {
		return xerr.New(xerr.DbError, fmt.Sprintf("update cursor failed: %v", err))
	}
	return nil
}
