package orderbook

import (
	"encoding/binary"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/sha3"
)

func TestDigestEncodesCountsAsUint64(t *testing.T) {
	b, _ := newTestBook(t)
	submit(t, b, Buy, "2", "10")
	submit(t, b, Buy, "3", "10")

	h := sha3.NewLegacyKeccak256()
	h.Write([]byte("BUY|" + priceKey(d("10")) + ":5:"))
	h.Write(binary.BigEndian.AppendUint64(nil, 2))
	h.Write([]byte("\nSELL\n"))

	assert.Equal(t, "0x"+hex.EncodeToString(h.Sum(nil)), b.Digest())
}
