package orderbook

import (
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// Digest is a Keccak-256 fingerprint of the resting book: for each side, best
// first, every level's price, quantity and order count. Two books holding the
// same levels produce the same digest regardless of how they got there.
func (b *OrderBook) Digest() string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	h := sha3.NewLegacyKeccak256()
	for _, s := range []*bookSide{b.bids, b.asks} {
		h.Write([]byte(s.side.String()))
		s.walk(func(l *PriceLevel) bool {
			h.Write([]byte{'|'})
			h.Write([]byte(priceKey(l.Price)))
			h.Write([]byte{':'})
			h.Write([]byte(l.quantity.String()))
			h.Write([]byte{':'})
			h.Write(binary.BigEndian.AppendUint64(nil, uint64(l.orderCount)))
			return true
		})
		h.Write([]byte{'\n'})
	}
	return "0x" + hex.EncodeToString(h.Sum(nil))
}
