package host

import (
	"github.com/ethereum/go-ethereum/common"
)

// Store key layout. Balances and supplies are decimal strings; snapshots
// are JSON. Everything needed to rebuild the in-memory state lives under
// these prefixes.
const (
	keyHeight     = "meta/height"
	keyJournalSeq = "meta/journal_seq"
	keyChannelSeq = "meta/channel_seq"
	keyPoolState  = "pool/state"

	prefixBalance  = "token/"
	prefixSupply   = "supply/"
	prefixCooldown = "cooldown/"
	prefixChannel  = "channel/"
)

func keyBalance(asset, holder common.Address) []byte {
	return []byte(prefixBalance + asset.Hex() + "/" + holder.Hex())
}

func balancePrefix(asset common.Address) []byte {
	return []byte(prefixBalance + asset.Hex() + "/")
}

func keySupply(asset common.Address) []byte {
	return []byte(prefixSupply + asset.Hex())
}

func keyCooldown(caller common.Address) []byte {
	return []byte(prefixCooldown + caller.Hex())
}

func keyChannel(id common.Hash) []byte {
	return []byte(prefixChannel + id.Hex())
}
