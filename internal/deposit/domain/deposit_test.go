package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildEventKey(t *testing.T) {
	t.Run("EVM 用 txHash+logIndex, hash 统一小写", func(t *testing.T) {
		a := BuildEventKey("EVM", "sepolia", "0xABCDEF", 5, "", "USDC", "0xdeposit")
		b := BuildEventKey("EVM", "sepolia", "0xabcdef", 5, "", "USDC", "0xdeposit")
		assert.Equal(t, a, b)
		assert.Equal(t, "EVM|sepolia|0xabcdef|5", a)
	})

	t.Run("EVM 同交易不同日志是不同事件", func(t *testing.T) {
		a := BuildEventKey("EVM", "sepolia", "0xabc", 1, "", "USDC", "0xdeposit")
		b := BuildEventKey("EVM", "sepolia", "0xabc", 2, "", "USDC", "0xdeposit")
		assert.NotEqual(t, a, b)
	})

	t.Run("SOL 同签名不同资产是不同事件", func(t *testing.T) {
		a := BuildEventKey("SOL", "devnet", "", 0, "5sig", "SOL", "DepositAcc")
		b := BuildEventKey("SOL", "devnet", "", 0, "5sig", "USDC", "TokenAcc")
		assert.NotEqual(t, a, b)
		assert.Equal(t, "SOL|devnet|5sig|SOL|DepositAcc", a)
	})
}

func TestIdempotencyKey(t *testing.T) {
	evm := &OnchainDeposit{
		Chain: "EVM", Network: "sepolia", Asset: "USDC",
		TxHash: "0xABC", LogIndex: 3, ToAddress: "0xdeposit",
	}
	sol := &OnchainDeposit{
		Chain: "SOL", Network: "devnet", Asset: "USDC",
		Signature: "5sig", ToAddress: "TokenAcc",
	}

	// 幂等键只由不可变的事件属性推导, 同一事件重算永远一样
	assert.Equal(t, "deposit|EVM|sepolia|USDC|0xabc#3|0xdeposit", evm.IdempotencyKey())
	assert.Equal(t, "deposit|SOL|devnet|USDC|5sig|TokenAcc", sol.IdempotencyKey())
	assert.NotEqual(t, evm.IdempotencyKey(), sol.IdempotencyKey())
}
