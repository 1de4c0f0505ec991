package transaction

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/limitbook/pkg/app/core/market"
	"github.com/uhyunpark/limitbook/pkg/app/core/orderbook"
	"github.com/uhyunpark/limitbook/pkg/crypto"
)

// TxType names what a signed request asks the book to do.
type TxType string

const (
	TxTypeOrder  TxType = "order"
	TxTypeCancel TxType = "cancel"
)

// SignedTransaction is the JSON envelope clients post to the API:
//
//	{
//	  "type": "order",
//	  "order": {"instrument": "BTC-USD", "side": "buy", "price": "50000.5",
//	            "quantity": "0.25", "nonce": "7", "owner": "0x742d..."},
//	  "signature": "0x..."
//	}
type SignedTransaction struct {
	Type      TxType         `json:"type"`
	Order     *OrderPayload  `json:"order,omitempty"`
	Cancel    *CancelPayload `json:"cancel,omitempty"`
	Signature string         `json:"signature"`
}

// OrderPayload carries a limit order exactly as it was signed.
type OrderPayload struct {
	Instrument string `json:"instrument"`
	Side       string `json:"side"`
	Price      string `json:"price"`
	Quantity   string `json:"quantity"`
	Nonce      string `json:"nonce"`
	Owner      string `json:"owner"`
}

// CancelPayload identifies the resting order to cancel.
type CancelPayload struct {
	Instrument string `json:"instrument"`
	OrderID    string `json:"orderId"`
	Nonce      string `json:"nonce"`
	Owner      string `json:"owner"`
}

func parseUint(field, v string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(v, 10)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("invalid %s: %q", field, v)
	}
	return n, nil
}

// ToEIP712 converts the payload into the typed message that was signed. The
// instrument is normalised first so "btc-usd" and "BTC-USD" sign the same.
func (o *OrderPayload) ToEIP712() (*crypto.LimitOrder, error) {
	side, err := orderbook.ParseSide(o.Side)
	if err != nil {
		return nil, err
	}
	nonce, err := parseUint("nonce", o.Nonce)
	if err != nil {
		return nil, err
	}
	if !common.IsHexAddress(o.Owner) {
		return nil, fmt.Errorf("invalid owner: %q", o.Owner)
	}
	return &crypto.LimitOrder{
		Instrument: market.Normalize(o.Instrument),
		Side:       crypto.SideToUint8(side.String()),
		Price:      o.Price,
		Quantity:   o.Quantity,
		Nonce:      nonce,
		Owner:      common.HexToAddress(o.Owner),
	}, nil
}

// ToOrder builds the book order for a verified payload. The submitter is the
// checksummed owner address.
func (o *OrderPayload) ToOrder(owner common.Address) (*orderbook.Order, error) {
	side, err := orderbook.ParseSide(o.Side)
	if err != nil {
		return nil, err
	}
	price, err := decimal.NewFromString(o.Price)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", orderbook.ErrInvalidPrice, o.Price)
	}
	qty, err := decimal.NewFromString(o.Quantity)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", orderbook.ErrInvalidQuantity, o.Quantity)
	}
	return orderbook.NewOrder(market.Normalize(o.Instrument), side, price, qty, owner.Hex())
}

func (c *CancelPayload) ToEIP712() (*crypto.CancelOrder, error) {
	id, err := parseUint("orderId", c.OrderID)
	if err != nil {
		return nil, err
	}
	nonce, err := parseUint("nonce", c.Nonce)
	if err != nil {
		return nil, err
	}
	if !common.IsHexAddress(c.Owner) {
		return nil, fmt.Errorf("invalid owner: %q", c.Owner)
	}
	return &crypto.CancelOrder{
		Instrument: market.Normalize(c.Instrument),
		OrderID:    id,
		Nonce:      nonce,
		Owner:      common.HexToAddress(c.Owner),
	}, nil
}

// OrderIDValue parses the order id being cancelled.
func (c *CancelPayload) OrderIDValue() (orderbook.OrderID, error) {
	id, err := parseUint("orderId", c.OrderID)
	if err != nil {
		return 0, err
	}
	if !id.IsUint64() {
		return 0, fmt.Errorf("orderId out of range: %s", c.OrderID)
	}
	return orderbook.OrderID(id.Uint64()), nil
}

func (tx *SignedTransaction) Serialize() ([]byte, error) {
	return json.Marshal(tx)
}

func Deserialize(data []byte) (*SignedTransaction, error) {
	var tx SignedTransaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transaction: %w", err)
	}
	return &tx, nil
}

// Validate checks the envelope shape; signatures are checked by Verifier.
func (tx *SignedTransaction) Validate() error {
	if tx.Signature == "" {
		return fmt.Errorf("missing signature")
	}

	switch tx.Type {
	case TxTypeOrder:
		if tx.Order == nil {
			return fmt.Errorf("order type requires order payload")
		}
		if tx.Order.Instrument == "" {
			return fmt.Errorf("missing order instrument")
		}
		if tx.Order.Owner == "" {
			return fmt.Errorf("missing order owner")
		}
	case TxTypeCancel:
		if tx.Cancel == nil {
			return fmt.Errorf("cancel type requires cancel payload")
		}
		if tx.Cancel.OrderID == "" {
			return fmt.Errorf("missing cancel order id")
		}
		if tx.Cancel.Owner == "" {
			return fmt.Errorf("missing cancel owner")
		}
	case "":
		return fmt.Errorf("missing transaction type")
	default:
		return fmt.Errorf("unknown transaction type: %s", tx.Type)
	}
	return nil
}

// ParseTransaction decodes and shape-checks a request body.
func ParseTransaction(data []byte) (*SignedTransaction, error) {
	tx, err := Deserialize(data)
	if err != nil {
		return nil, err
	}
	if err := tx.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transaction: %w", err)
	}
	return tx, nil
}
