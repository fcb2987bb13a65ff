package repo

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"varlixo.com/internal/deposit/domain"
	"varlixo.com/pkg/xerr"
)

// GetVerifiedOwner 根据链和 (已规范化的) 地址找归属用户。
// 只认 verified=true 的绑定; 没有绑定返回 0, 这不是错误,
// 充值会一直挂在 Confirmed 等后续绑定或人工处理。
func (r *Repo) GetVerifiedOwner(ctx context.Context, chain, address string) (int64, error) {
	var lw domain.LinkedWallet
	err := r.getDb(ctx).
		Where("chain = ? AND address = ? AND verified = ?", chain, address, true).
		First(&lw).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, xerr.New(xerr.DbError, fmt.Sprintf("get verified owner failed: %v", err))
	}
	return lw.UserID, nil
}
