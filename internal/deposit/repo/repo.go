package repo

import (
	"context"

	"gorm.io/gorm"

	"varlixo.com/internal/deposit/domain"
	"varlixo.com/pkg/orm"
)

type Repo struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

var (
	_ domain.DepositRepo      = (*Repo)(nil)
	_ domain.CursorRepo       = (*Repo)(nil)
	_ domain.LinkedWalletRepo = (*Repo)(nil)
)

// Transaction 实现事务, tx 通过 context 传递给同事务内的其它 repo
func (r *Repo) Transaction(ctx context.Context, fn func(txCtx context.Context) error) error {
	return orm.Transaction(ctx, r.db, fn)
}

func (r *Repo) getDb(ctx context.Context) *gorm.DB {
	return orm.DB(ctx, r.db)
}
