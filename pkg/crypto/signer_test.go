package crypto

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	eth_crypto "github.com/ethereum/go-ethereum/crypto"
)

func TestGenerateKey(t *testing.T) {
	signer, err := GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	if signer.Address() == (common.Address{}) {
		t.Error("generated zero address")
	}
	if got := len(signer.PrivateKeyHex()); got != 64 {
		t.Errorf("private key hex length = %d, want 64", got)
	}
}

func TestFromPrivateKeyHex(t *testing.T) {
	signer1, _ := GenerateKey()
	privHex := signer1.PrivateKeyHex()

	for _, in := range []string{privHex, "0x" + privHex} {
		signer2, err := FromPrivateKeyHex(in)
		if err != nil {
			t.Fatalf("failed to load key %q: %v", in, err)
		}
		if signer2.Address() != signer1.Address() {
			t.Errorf("address = %s, want %s", signer2.Address().Hex(), signer1.Address().Hex())
		}
	}

	if _, err := FromPrivateKeyHex("not-a-key"); err == nil {
		t.Error("expected error for malformed key")
	}
}

func TestSignAndRecover(t *testing.T) {
	signer, _ := GenerateKey()
	hash := eth_crypto.Keccak256([]byte("limitbook"))

	sig, err := signer.Sign(hash)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if len(sig) != SignatureLength {
		t.Fatalf("signature length = %d", len(sig))
	}

	addr, err := RecoverAddress(hash, sig)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if addr != signer.Address() {
		t.Errorf("recovered %s, want %s", addr.Hex(), signer.Address().Hex())
	}

	// wallets emit V as 27/28
	walletSig := append([]byte(nil), sig...)
	walletSig[64] += 27
	if !VerifySignature(signer.Address(), hash, walletSig) {
		t.Error("wallet-style signature rejected")
	}

	other, _ := GenerateKey()
	if VerifySignature(other.Address(), hash, sig) {
		t.Error("signature verified for wrong address")
	}
	if _, err := signer.Sign([]byte("short")); err == nil {
		t.Error("expected error signing non-32-byte hash")
	}
}

func TestDecodeSignature(t *testing.T) {
	signer, _ := GenerateKey()
	sig, _ := signer.Sign(eth_crypto.Keccak256([]byte("x")))
	hexSig := common.Bytes2Hex(sig)

	for _, in := range []string{hexSig, "0x" + hexSig} {
		got, err := DecodeSignature(in)
		if err != nil {
			t.Fatalf("decode %q: %v", in, err)
		}
		if common.Bytes2Hex(got) != hexSig {
			t.Error("decoded signature mismatch")
		}
	}
	if _, err := DecodeSignature("0x1234"); err == nil {
		t.Error("expected length error")
	}
	if _, err := DecodeSignature("0xzz"); err == nil {
		t.Error("expected hex error")
	}
}

func TestLimitOrderSignature(t *testing.T) {
	signer, _ := GenerateKey()
	eip := NewEIP712Signer(DefaultDomain())
	order := &LimitOrder{
		Instrument: "BTC-USD",
		Side:       1,
		Price:      "50000.5",
		Quantity:   "0.25",
		Nonce:      big.NewInt(7),
		Owner:      signer.Address(),
	}

	sig, err := eip.SignLimitOrder(signer, order)
	if err != nil {
		t.Fatalf("sign order: %v", err)
	}
	got, err := eip.RecoverLimitOrderSigner(order, sig)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if got != signer.Address() {
		t.Fatalf("recovered %s, want %s", got.Hex(), signer.Address().Hex())
	}

	tampered := *order
	tampered.Quantity = "25"
	got, err = eip.RecoverLimitOrderSigner(&tampered, sig)
	if err == nil && got == signer.Address() {
		t.Error("tampered order still recovers the signer")
	}

	otherChain := DefaultDomain()
	otherChain.ChainID = big.NewInt(1)
	got, err = NewEIP712Signer(otherChain).RecoverLimitOrderSigner(order, sig)
	if err == nil && got == signer.Address() {
		t.Error("signature replayable on another chain id")
	}

	if _, err := eip.LimitOrderJSON(order); err != nil {
		t.Errorf("typed data json: %v", err)
	}
}

func TestCancelSignature(t *testing.T) {
	signer, _ := GenerateKey()
	eip := NewEIP712Signer(DefaultDomain())
	cancel := &CancelOrder{
		Instrument: "BTC-USD",
		OrderID:    big.NewInt(42),
		Nonce:      big.NewInt(8),
		Owner:      signer.Address(),
	}

	sig, err := eip.SignCancel(signer, cancel)
	if err != nil {
		t.Fatalf("sign cancel: %v", err)
	}
	got, err := eip.RecoverCancelSigner(cancel, sig)
	if err != nil || got != signer.Address() {
		t.Fatalf("recover cancel = %s, %v", got.Hex(), err)
	}

	if _, err := eip.HashCancel(&CancelOrder{Instrument: "BTC-USD"}); err == nil {
		t.Error("expected error for cancel without nonce")
	}
}
