package transaction

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/uhyunpark/limitbook/pkg/crypto"
)

// SignOrder fills in the owner and signature for payload.
func SignOrder(s *crypto.Signer, domain crypto.EIP712Domain, payload OrderPayload) (*SignedTransaction, error) {
	payload.Owner = s.Address().Hex()
	typed, err := payload.ToEIP712()
	if err != nil {
		return nil, err
	}
	sig, err := crypto.NewEIP712Signer(domain).SignLimitOrder(s, typed)
	if err != nil {
		return nil, fmt.Errorf("failed to sign order: %w", err)
	}
	return &SignedTransaction{Type: TxTypeOrder, Order: &payload, Signature: hexutil.Encode(sig)}, nil
}

// SignCancel fills in the owner and signature for payload.
func SignCancel(s *crypto.Signer, domain crypto.EIP712Domain, payload CancelPayload) (*SignedTransaction, error) {
	payload.Owner = s.Address().Hex()
	typed, err := payload.ToEIP712()
	if err != nil {
		return nil, err
	}
	sig, err := crypto.NewEIP712Signer(domain).SignCancel(s, typed)
	if err != nil {
		return nil, fmt.Errorf("failed to sign cancel: %w", err)
	}
	return &SignedTransaction{Type: TxTypeCancel, Cancel: &payload, Signature: hexutil.Encode(sig)}, nil
}
