package crypto

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// EIP712Domain binds signatures to one deployment so they cannot be replayed
// against another chain id or domain name.
type EIP712Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address // zero for off-chain signing
}

// DefaultDomain is the local development domain.
func DefaultDomain() EIP712Domain {
	return EIP712Domain{
		Name:    "LimitBook",
		Version: "1",
		ChainID: big.NewInt(1337),
	}
}

// LimitOrder is the typed message a client signs to submit a limit order.
// Price and quantity are decimal strings so no precision is lost in signing.
type LimitOrder struct {
	Instrument string
	Side       uint8 // 1 buy, 2 sell
	Price      string
	Quantity   string
	Nonce      *big.Int
	Owner      common.Address
}

// CancelOrder is the typed message a client signs to cancel a resting order.
type CancelOrder struct {
	Instrument string
	OrderID    *big.Int
	Nonce      *big.Int
	Owner      common.Address
}

var domainType = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

var limitOrderType = []apitypes.Type{
	{Name: "instrument", Type: "string"},
	{Name: "side", Type: "uint8"},
	{Name: "price", Type: "string"},
	{Name: "quantity", Type: "string"},
	{Name: "nonce", Type: "uint256"},
	{Name: "owner", Type: "address"},
}

var cancelOrderType = []apitypes.Type{
	{Name: "instrument", Type: "string"},
	{Name: "orderId", Type: "uint256"},
	{Name: "nonce", Type: "uint256"},
	{Name: "owner", Type: "address"},
}

// EIP712Signer hashes, signs and verifies typed order messages for a domain.
type EIP712Signer struct {
	domain EIP712Domain
}

func NewEIP712Signer(domain EIP712Domain) *EIP712Signer {
	return &EIP712Signer{domain: domain}
}

func (e *EIP712Signer) Domain() EIP712Domain {
	return e.domain
}

func (e *EIP712Signer) typedData(primary string, fields []apitypes.Type, msg apitypes.TypedDataMessage) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": domainType,
			primary:        fields,
		},
		PrimaryType: primary,
		Domain: apitypes.TypedDataDomain{
			Name:              e.domain.Name,
			Version:           e.domain.Version,
			ChainId:           (*math.HexOrDecimal256)(e.domain.ChainID),
			VerifyingContract: e.domain.VerifyingContract.Hex(),
		},
		Message: msg,
	}
}

// digest computes keccak256("\x19\x01" || domainSeparator || hashStruct(message)).
func digest(td apitypes.TypedData) ([]byte, error) {
	domainSeparator, err := td.HashStruct("EIP712Domain", td.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}
	msgHash, err := td.HashStruct(td.PrimaryType, td.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash message: %w", err)
	}
	raw := make([]byte, 0, 2+len(domainSeparator)+len(msgHash))
	raw = append(raw, 0x19, 0x01)
	raw = append(raw, domainSeparator...)
	raw = append(raw, msgHash...)
	return crypto.Keccak256(raw), nil
}

func (o *LimitOrder) message() apitypes.TypedDataMessage {
	return apitypes.TypedDataMessage{
		"instrument": o.Instrument,
		"side":       fmt.Sprintf("%d", o.Side),
		"price":      o.Price,
		"quantity":   o.Quantity,
		"nonce":      o.Nonce.String(),
		"owner":      o.Owner.Hex(),
	}
}

func (c *CancelOrder) message() apitypes.TypedDataMessage {
	return apitypes.TypedDataMessage{
		"instrument": c.Instrument,
		"orderId":    c.OrderID.String(),
		"nonce":      c.Nonce.String(),
		"owner":      c.Owner.Hex(),
	}
}

func (e *EIP712Signer) HashLimitOrder(o *LimitOrder) ([]byte, error) {
	if o.Nonce == nil {
		return nil, fmt.Errorf("missing nonce")
	}
	return digest(e.typedData("LimitOrder", limitOrderType, o.message()))
}

func (e *EIP712Signer) HashCancel(c *CancelOrder) ([]byte, error) {
	if c.Nonce == nil || c.OrderID == nil {
		return nil, fmt.Errorf("missing nonce or order id")
	}
	return digest(e.typedData("CancelOrder", cancelOrderType, c.message()))
}

func (e *EIP712Signer) SignLimitOrder(s *Signer, o *LimitOrder) ([]byte, error) {
	hash, err := e.HashLimitOrder(o)
	if err != nil {
		return nil, err
	}
	return s.Sign(hash)
}

func (e *EIP712Signer) SignCancel(s *Signer, c *CancelOrder) ([]byte, error) {
	hash, err := e.HashCancel(c)
	if err != nil {
		return nil, err
	}
	return s.Sign(hash)
}

// RecoverLimitOrderSigner returns the address that signed o.
func (e *EIP712Signer) RecoverLimitOrderSigner(o *LimitOrder, signature []byte) (common.Address, error) {
	hash, err := e.HashLimitOrder(o)
	if err != nil {
		return common.Address{}, err
	}
	return RecoverAddress(hash, signature)
}

// RecoverCancelSigner returns the address that signed c.
func (e *EIP712Signer) RecoverCancelSigner(c *CancelOrder, signature []byte) (common.Address, error) {
	hash, err := e.HashCancel(c)
	if err != nil {
		return common.Address{}, err
	}
	return RecoverAddress(hash, signature)
}

// LimitOrderJSON renders o in the eth_signTypedData_v4 format wallets expect.
func (e *EIP712Signer) LimitOrderJSON(o *LimitOrder) (string, error) {
	b, err := json.MarshalIndent(e.typedData("LimitOrder", limitOrderType, o.message()), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal typed data: %w", err)
	}
	return string(b), nil
}

// SideToUint8 maps "buy"/"sell" to the signed side code.
func SideToUint8(side string) uint8 {
	switch side {
	case "buy", "BUY":
		return 1
	case "sell", "SELL":
		return 2
	default:
		return 0
	}
}
