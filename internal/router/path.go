package router

import (
	"github.com/ethereum/go-ethereum/common"
)

// v3Path packs a single-hop V3 path: 20-byte token, 3-byte big-endian fee
// tier, 20-byte token. Exact-output swaps consume the path back to front, so
// the buy token goes first and the sell token last.
func v3Path(buyToken common.Address, fee uint32, sellToken common.Address) []byte {
	path := make([]byte, 0, 43)
	path = append(path, buyToken.Bytes()...)
	path = append(path, byte(fee>>16), byte(fee>>8), byte(fee))
	path = append(path, sellToken.Bytes()...)
	return path
}

// v2Path is the address hop list in trade order, sell token first. V2 pairs
// take the same ordering for exact-input and exact-output swaps.
func v2Path(sellToken, buyToken common.Address) []common.Address {
	return []common.Address{sellToken, buyToken}
}
