package storage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/SmithChan/universe-dao-contracts/pkg/orders"
)

// Pebble key schema:
//
//   cfg                          → service config
//   idx:<type>:<address>         → order index (active ids + next id)
//   ord:<type>:<address>:<id>    → order record
//
// Addresses are lowercase hex (fixed width) so lexicographic key order
// matches byte order of the address; ids are zero-padded the same way.
const (
	keyServiceConfig = "cfg"
	prefixIndex      = "idx:"
	prefixOrder      = "ord:"
)

func indexKey(typ orders.OrderType, addr common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:0x%x", prefixIndex, typ, addr[:]))
}

// indexPrefix covers every account's index of one order type.
func indexPrefix(typ orders.OrderType) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixIndex, typ))
}

func orderKey(typ orders.OrderType, addr common.Address, id uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:0x%x:%020d", prefixOrder, typ, addr[:], id))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
