package service

import (
	"context"
	"strings"

	"varlixo.com/internal/deposit/domain"
	watcher "varlixo.com/internal/watcher/domain"
)

// NormalizeAddress 按链的习惯规范化地址。
// EVM 地址大小写不敏感 (checksum 只是展示格式), 统一转小写入库和查询;
// Solana 地址是 base58, 大小写敏感, 原样保留。
func NormalizeAddress(chain, address string) string {
	addr := strings.TrimSpace(address)
	if chain == watcher.ChainEVM {
		return strings.ToLower(addr)
	}
	return addr
}

// AddressResolver 打款地址 -> 平台用户。纯查询, 无副作用。
// 最多一个匹配 (验证流程保证了 (chain, address) 的唯一归属),
// 零个匹配不是错误。
type AddressResolver struct {
	wallets domain.LinkedWalletRepo
}

func NewAddressResolver(wallets domain.LinkedWalletRepo) *AddressResolver {
	return &AddressResolver{wallets: wallets}
}

// Resolve 返回地址归属的用户, 未归属返回 0
func (r *AddressResolver) Resolve(ctx context.Context, chain, address string) (int64, error) {
	addr := NormalizeAddress(chain, address)
	if addr == "" {
		return 0, nil
	}
	return r.wallets.GetVerifiedOwner(ctx, chain, addr)
}
