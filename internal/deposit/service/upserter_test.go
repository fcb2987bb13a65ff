package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"varlixo.com/internal/deposit/domain"
	depositrepo "varlixo.com/internal/deposit/repo"
	watcher "varlixo.com/internal/watcher/domain"
)

func newUpserter(t *testing.T) (*Upserter, *depositrepo.Repo, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	repo := depositrepo.New(db)
	return NewUpserter(repo, NewAddressResolver(repo)), repo, db
}

func evmEvent(confirmations int64) *watcher.TransferEvent {
	return &watcher.TransferEvent{
		Chain:                 watcher.ChainEVM,
		Network:               "sepolia",
		Asset:                 "USDC",
		TxHash:                "0xDEAD01",
		LogIndex:              3,
		FromAddress:           "0xAbCdEf", // 故意混大小写, 验证规范化
		ToAddress:             "0xDePoSiT",
		Amount:                decimal.RequireFromString("10"),
		Confirmations:         confirmations,
		RequiredConfirmations: 12,
	}
}

func countDeposits(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&domain.OnchainDeposit{}).Count(&n).Error)
	return n
}

func TestUpserter_DetectThenConfirm(t *testing.T) {
	up, repo, db := newUpserter(t)
	ctx := context.Background()

	// 首次观察: 确认数不足, Detected
	require.NoError(t, up.Apply(ctx, []*watcher.TransferEvent{evmEvent(3)}))

	key := domain.BuildEventKey("EVM", "sepolia", "0xDEAD01", 3, "", "USDC", "0xdeposit")
	dep, err := repo.GetByEventKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDetected, dep.Status)
	assert.Equal(t, int64(3), dep.Confirmations)
	// 地址已规范化
	assert.Equal(t, "0xabcdef", dep.FromAddress)
	assert.Equal(t, "0xdeposit", dep.ToAddress)

	// 重叠窗口重扫: 同一行, 确认数刷新, 状态推进
	require.NoError(t, up.Apply(ctx, []*watcher.TransferEvent{evmEvent(13)}))

	dep, err = repo.GetByEventKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, dep.Status)
	assert.Equal(t, int64(13), dep.Confirmations)

	// 没有第二行
	assert.Equal(t, int64(1), countDeposits(t, db))
}

func TestUpserter_ResolvesLinkedSender(t *testing.T) {
	up, repo, db := newUpserter(t)
	ctx := context.Background()

	// 绑定记录按规范化后的小写地址存
	require.NoError(t, db.Create(&domain.LinkedWallet{
		UserID:   901,
		Chain:    "EVM",
		Address:  "0xabcdef",
		Verified: true,
	}).Error)

	require.NoError(t, up.Apply(ctx, []*watcher.TransferEvent{evmEvent(3)}))

	key := domain.BuildEventKey("EVM", "sepolia", "0xDEAD01", 3, "", "USDC", "0xdeposit")
	dep, err := repo.GetByEventKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(901), dep.UserID)
}

func TestUpserter_LateLinkStampsUser(t *testing.T) {
	up, repo, db := newUpserter(t)
	ctx := context.Background()

	// 先观察, 还没绑定
	require.NoError(t, up.Apply(ctx, []*watcher.TransferEvent{evmEvent(3)}))

	key := domain.BuildEventKey("EVM", "sepolia", "0xDEAD01", 3, "", "USDC", "0xdeposit")
	dep, err := repo.GetByEventKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(0), dep.UserID)

	// 绑定完成后再次观察到同一事件, 补写归属
	require.NoError(t, db.Create(&domain.LinkedWallet{
		UserID:   902,
		Chain:    "EVM",
		Address:  "0xabcdef",
		Verified: true,
	}).Error)
	require.NoError(t, up.Apply(ctx, []*watcher.TransferEvent{evmEvent(5)}))

	dep, err = repo.GetByEventKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(902), dep.UserID)
}

func TestUpserter_SolanaNativeAndTokenAreDistinct(t *testing.T) {
	up, repo, db := newUpserter(t)
	ctx := context.Background()

	sig := "5VERYrealSig111"
	events := []*watcher.TransferEvent{
		{
			Chain: watcher.ChainSOL, Network: "devnet", Asset: "SOL",
			Signature: sig, FromAddress: "SenderPubkey", ToAddress: "DepositPubkey",
			Amount:        decimal.RequireFromString("0.5"),
			Confirmations: 32, RequiredConfirmations: 32,
		},
		{
			Chain: watcher.ChainSOL, Network: "devnet", Asset: "USDC",
			Signature: sig, FromAddress: "SenderPubkey", ToAddress: "DepositTokenAccount",
			Amount:        decimal.RequireFromString("7"),
			Confirmations: 32, RequiredConfirmations: 32,
		},
	}

	// 同一笔交易同时动了原生币和代币: 事件键不同, 两行
	require.NoError(t, up.Apply(ctx, events))
	assert.Equal(t, int64(2), countDeposits(t, db))

	// SOL 地址大小写敏感, 不做小写化
	nativeKey := domain.BuildEventKey("SOL", "devnet", "", 0, sig, "SOL", "DepositPubkey")
	dep, err := repo.GetByEventKey(ctx, nativeKey)
	require.NoError(t, err)
	assert.Equal(t, "SenderPubkey", dep.FromAddress)
	assert.Equal(t, domain.StatusConfirmed, dep.Status)
}

func TestUpserter_RescanNeverDowngradesSettled(t *testing.T) {
	up, repo, db := newUpserter(t)
	ctx := context.Background()

	require.NoError(t, up.Apply(ctx, []*watcher.TransferEvent{evmEvent(13)}))

	key := domain.BuildEventKey("EVM", "sepolia", "0xDEAD01", 3, "", "USDC", "0xdeposit")

	// 手工把行推到 Settled (入账引擎做过的事)
	require.NoError(t, db.Model(&domain.OnchainDeposit{}).
		Where("event_key = ?", key).
		Updates(map[string]interface{}{"status": domain.StatusSettled, "credited": true}).Error)

	// 深度重扫又看到同一事件: 确认数可以刷新, 状态和入账标记不许动
	require.NoError(t, up.Apply(ctx, []*watcher.TransferEvent{evmEvent(99)}))

	dep, err := repo.GetByEventKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSettled, dep.Status)
	assert.True(t, dep.Credited)
	assert.Equal(t, int64(99), dep.Confirmations)
}
