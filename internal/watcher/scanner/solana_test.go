package scanner

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountIndex(t *testing.T) {
	a := solana.MustPublicKeyFromBase58("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")
	b := solana.MustPublicKeyFromBase58("7dHbWXmci3dT8UFYWYZweBLXgycu7Y38YNYhzJxqunxJ")
	keys := []solana.PublicKey{a, b}

	assert.Equal(t, 0, accountIndex(keys, a))
	assert.Equal(t, 1, accountIndex(keys, b))

	c := solana.MustPublicKeyFromBase58("4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU")
	assert.Equal(t, -1, accountIndex(keys, c))
}

func TestLamportDelta(t *testing.T) {
	pre := []uint64{10_000, 5_000_000_000}
	post := []uint64{9_000, 5_500_000_000}

	t.Run("入账是正的", func(t *testing.T) {
		assert.Equal(t, int64(500_000_000), lamportDelta(pre, post, 1))
	})

	t.Run("出账是负的", func(t *testing.T) {
		assert.Equal(t, int64(-1_000), lamportDelta(pre, post, 0))
	})

	t.Run("索引越界按 0 算", func(t *testing.T) {
		assert.Equal(t, int64(0), lamportDelta(pre, post, 5))
		assert.Equal(t, int64(0), lamportDelta(pre, post, -1))
	})
}

func tb(idx uint16, amount string) rpc.TokenBalance {
	return rpc.TokenBalance{
		AccountIndex: idx,
		UiTokenAmount: &rpc.UiTokenAmount{
			Amount:   amount,
			Decimals: 6,
		},
	}
}

func TestTokenDelta(t *testing.T) {
	t.Run("常规入账", func(t *testing.T) {
		pre := []rpc.TokenBalance{tb(2, "1000000")}
		post := []rpc.TokenBalance{tb(2, "3500000")}

		delta, ok := tokenDelta(pre, post, 2, 6)
		require.True(t, ok)
		assert.Equal(t, "2.5", delta.String())
	})

	t.Run("pre 没有条目说明账户刚建, 按 0 算", func(t *testing.T) {
		post := []rpc.TokenBalance{tb(2, "7000000")}

		delta, ok := tokenDelta(nil, post, 2, 6)
		require.True(t, ok)
		assert.Equal(t, "7", delta.String())
	})

	t.Run("post 没有条目视为没动这个账户", func(t *testing.T) {
		pre := []rpc.TokenBalance{tb(2, "1000000")}

		_, ok := tokenDelta(pre, nil, 2, 6)
		assert.False(t, ok)
	})

	t.Run("别的账户的快照不干扰", func(t *testing.T) {
		pre := []rpc.TokenBalance{tb(1, "99"), tb(2, "1000000")}
		post := []rpc.TokenBalance{tb(1, "0"), tb(2, "2000000")}

		delta, ok := tokenDelta(pre, post, 2, 6)
		require.True(t, ok)
		assert.Equal(t, "1", delta.String())
	})
}

func TestRawTokenAmount(t *testing.T) {
	t.Run("超出 uint64 的余额也能解析", func(t *testing.T) {
		balances := []rpc.TokenBalance{tb(0, "340282366920938463463374607431768211455")}

		raw, ok := rawTokenAmount(balances, 0)
		require.True(t, ok)
		assert.Equal(t, "340282366920938463463374607431768211455", raw.String())
	})

	t.Run("金额不是十进制数返回 false", func(t *testing.T) {
		balances := []rpc.TokenBalance{tb(0, "not-a-number")}

		_, ok := rawTokenAmount(balances, 0)
		assert.False(t, ok)
	})

	t.Run("找不到索引返回 false", func(t *testing.T) {
		_, ok := rawTokenAmount(nil, 3)
		assert.False(t, ok)
	})
}

// mkSig 造一个可区分的假签名
func mkSig(n byte) solana.Signature {
	var sig solana.Signature
	sig[0] = n
	return sig
}

func sigPage(ns ...byte) []*rpc.TransactionSignature {
	page := make([]*rpc.TransactionSignature, 0, len(ns))
	for _, n := range ns {
		page = append(page, &rpc.TransactionSignature{Signature: mkSig(n)})
	}
	return page
}

func TestCollectSignatures(t *testing.T) {
	ctx := context.Background()

	t.Run("爆发期多页全部收齐", func(t *testing.T) {
		// 游标之后有 7 条新签名, 页大小 3: RPC 只按最新往旧给,
		// 必须翻满三页才碰到游标, 少翻一页就是永久丢充值
		pages := [][]*rpc.TransactionSignature{
			sigPage(9, 8, 7),
			sigPage(6, 5, 4),
			sigPage(3),
		}
		var befores []solana.Signature

		fetch := func(ctx context.Context, before solana.Signature) ([]*rpc.TransactionSignature, error) {
			befores = append(befores, before)
			page := pages[0]
			pages = pages[1:]
			return page, nil
		}

		sigs, err := collectSignatures(ctx, fetch, 3)
		require.NoError(t, err)
		require.Len(t, sigs, 7)

		// 顺序保持从新到旧
		assert.Equal(t, mkSig(9), sigs[0].Signature)
		assert.Equal(t, mkSig(3), sigs[6].Signature)

		// 翻页锚点是上一页最旧的签名
		require.Len(t, befores, 3)
		assert.True(t, befores[0].IsZero())
		assert.Equal(t, mkSig(7), befores[1])
		assert.Equal(t, mkSig(4), befores[2])
	})

	t.Run("一页没满直接返回", func(t *testing.T) {
		calls := 0
		fetch := func(ctx context.Context, before solana.Signature) ([]*rpc.TransactionSignature, error) {
			calls++
			return sigPage(2, 1), nil
		}

		sigs, err := collectSignatures(ctx, fetch, 3)
		require.NoError(t, err)
		assert.Len(t, sigs, 2)
		assert.Equal(t, 1, calls)
	})

	t.Run("空页返回空", func(t *testing.T) {
		fetch := func(ctx context.Context, before solana.Signature) ([]*rpc.TransactionSignature, error) {
			return nil, nil
		}

		sigs, err := collectSignatures(ctx, fetch, 3)
		require.NoError(t, err)
		assert.Empty(t, sigs)
	})

	t.Run("中途出错整窗报错", func(t *testing.T) {
		calls := 0
		fetch := func(ctx context.Context, before solana.Signature) ([]*rpc.TransactionSignature, error) {
			calls++
			if calls == 2 {
				return nil, assert.AnError
			}
			return sigPage(9, 8, 7), nil
		}

		_, err := collectSignatures(ctx, fetch, 3)
		assert.Error(t, err)
	})
}

func TestLamportsToDecimal(t *testing.T) {
	assert.Equal(t, "1.5", lamportsToDecimal(1_500_000_000, 9).String())
	assert.Equal(t, "0.000000001", lamportsToDecimal(1, 9).String())
}
