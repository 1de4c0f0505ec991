package transaction

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/limitbook/pkg/crypto"
)

var (
	ErrBadSignature = errors.New("signature does not match owner")
	ErrStaleNonce   = errors.New("nonce already used")
)

// NonceTracker remembers the highest nonce accepted per owner. A request is
// accepted only if its nonce is strictly greater.
type NonceTracker struct {
	mu   sync.Mutex
	last map[common.Address]*big.Int
}

func NewNonceTracker() *NonceTracker {
	return &NonceTracker{last: make(map[common.Address]*big.Int)}
}

// Consume records nonce for owner or returns ErrStaleNonce.
func (n *NonceTracker) Consume(owner common.Address, nonce *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if prev, ok := n.last[owner]; ok && nonce.Cmp(prev) <= 0 {
		return fmt.Errorf("%w: %s <= %s for %s", ErrStaleNonce, nonce, prev, owner.Hex())
	}
	n.last[owner] = new(big.Int).Set(nonce)
	return nil
}

// Last returns the highest nonce seen for owner.
func (n *NonceTracker) Last(owner common.Address) (*big.Int, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	v, ok := n.last[owner]
	if !ok {
		return nil, false
	}
	return new(big.Int).Set(v), true
}

// Verifier authenticates signed requests and enforces nonce ordering.
type Verifier struct {
	eip712 *crypto.EIP712Signer
	nonces *NonceTracker
}

func NewVerifier(domain crypto.EIP712Domain, nonces *NonceTracker) *Verifier {
	if nonces == nil {
		nonces = NewNonceTracker()
	}
	return &Verifier{
		eip712: crypto.NewEIP712Signer(domain),
		nonces: nonces,
	}
}

// VerifyOrder returns the owner of a signed order. The nonce is only
// consumed once the signature has checked out.
func (v *Verifier) VerifyOrder(tx *SignedTransaction) (common.Address, error) {
	if tx.Type != TxTypeOrder || tx.Order == nil {
		return common.Address{}, fmt.Errorf("not an order transaction")
	}
	order, err := tx.Order.ToEIP712()
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid order format: %w", err)
	}
	sig, err := crypto.DecodeSignature(tx.Signature)
	if err != nil {
		return common.Address{}, err
	}
	signer, err := v.eip712.RecoverLimitOrderSigner(order, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("signature verification failed: %w", err)
	}
	if signer != order.Owner {
		return common.Address{}, fmt.Errorf("%w: recovered %s, owner %s", ErrBadSignature, signer.Hex(), order.Owner.Hex())
	}
	if err := v.nonces.Consume(order.Owner, order.Nonce); err != nil {
		return common.Address{}, err
	}
	return order.Owner, nil
}

// VerifyCancel returns the owner of a signed cancel.
func (v *Verifier) VerifyCancel(tx *SignedTransaction) (common.Address, error) {
	if tx.Type != TxTypeCancel || tx.Cancel == nil {
		return common.Address{}, fmt.Errorf("not a cancel transaction")
	}
	cancel, err := tx.Cancel.ToEIP712()
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid cancel format: %w", err)
	}
	sig, err := crypto.DecodeSignature(tx.Signature)
	if err != nil {
		return common.Address{}, err
	}
	signer, err := v.eip712.RecoverCancelSigner(cancel, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("signature verification failed: %w", err)
	}
	if signer != cancel.Owner {
		return common.Address{}, fmt.Errorf("%w: recovered %s, owner %s", ErrBadSignature, signer.Hex(), cancel.Owner.Hex())
	}
	if err := v.nonces.Consume(cancel.Owner, cancel.Nonce); err != nil {
		return common.Address{}, err
	}
	return cancel.Owner, nil
}
