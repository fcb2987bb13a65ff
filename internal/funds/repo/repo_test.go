package repo

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"varlixo.com/internal/funds"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&funds.Wallet{}, &funds.LedgerTransaction{}))
	return New(db)
}

func TestRepo_FindByUserLazyCreates(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	w, err := r.FindByUser(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), w.UserID)
	assert.True(t, w.Balance.IsZero())

	// 第二次拿到的是同一个钱包
	require.NoError(t, r.UpdateBalance(ctx, w.ID, w.Balance, decimal.RequireFromString("9.99")))

	again, err := r.FindByUser(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, w.ID, again.ID)
	assert.Equal(t, "9.99", again.Balance.String())
}

func TestRepo_UpdateBalanceIsCompareAndSwap(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	w, err := r.FindByUser(ctx, 43)
	require.NoError(t, err)

	// 模拟两个入账流程都按 0 的快照算好了新余额
	staleBefore := w.Balance
	require.NoError(t, r.UpdateBalance(ctx, w.ID, staleBefore, decimal.RequireFromString("10")))

	// 输家的快照已过期, 必须报错而不是覆盖赢家的写入
	err = r.UpdateBalance(ctx, w.ID, staleBefore, decimal.RequireFromString("20"))
	assert.Error(t, err)

	again, err := r.FindByUser(ctx, 43)
	require.NoError(t, err)
	assert.Equal(t, "10", again.Balance.String())

	// 按最新快照重试成功
	require.NoError(t, r.UpdateBalance(ctx, w.ID, again.Balance, decimal.RequireFromString("30")))
	again, err = r.FindByUser(ctx, 43)
	require.NoError(t, err)
	assert.Equal(t, "30", again.Balance.String())
}

func TestRepo_LedgerIdempotencyKeyUnique(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	txn := func(id string) *funds.LedgerTransaction {
		return &funds.LedgerTransaction{
			ID:             id,
			UserID:         42,
			Type:           funds.TxnTypeDeposit,
			Amount:         decimal.RequireFromString("10"),
			BalanceBefore:  decimal.Zero,
			BalanceAfter:   decimal.RequireFromString("10"),
			IdempotencyKey: "deposit|EVM|sepolia|USDC|0xabc#1|0xdeposit",
		}
	}

	require.NoError(t, r.Append(ctx, txn("00000000-0000-0000-0000-000000000001")))

	// 同幂等键第二条必须撞唯一索引, 这是防重复入账的硬防线
	err := r.Append(ctx, txn("00000000-0000-0000-0000-000000000002"))
	assert.Error(t, err)

	found, err := r.FindByIdempotencyKey(ctx, "deposit|EVM|sepolia|USDC|0xabc#1|0xdeposit")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "00000000-0000-0000-0000-000000000001", found.ID)

	missing, err := r.FindByIdempotencyKey(ctx, "deposit|nothing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
