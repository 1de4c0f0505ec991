package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/big"
	"os"

	"github.com/uhyunpark/limitbook/pkg/app/core/transaction"
	"github.com/uhyunpark/limitbook/pkg/crypto"
)

func main() {
	var (
		keyHex     = flag.String("key", "", "hex private key (generated when empty)")
		instrument = flag.String("instrument", "BTC-USD", "instrument, e.g. BTC-USD")
		side       = flag.String("side", "buy", "buy or sell")
		price      = flag.String("price", "50000", "limit price")
		qty        = flag.String("qty", "1", "quantity")
		nonce      = flag.String("nonce", "1", "strictly increasing per owner")
		cancelID   = flag.String("cancel", "", "sign a cancel for this order id instead of an order")
		chainID    = flag.Int64("chain-id", 1337, "EIP-712 domain chain id")
		domainName = flag.String("domain", "LimitBook", "EIP-712 domain name")
		api        = flag.String("api", "http://localhost:8080", "API base URL for the usage hint")
		typed      = flag.Bool("typed", false, "also print the EIP-712 typed data a wallet would sign")
	)
	flag.Parse()

	signer, err := loadSigner(*keyHex)
	if err != nil {
		fail("key", err)
	}
	domain := crypto.DefaultDomain()
	domain.Name = *domainName
	domain.ChainID = big.NewInt(*chainID)

	var (
		tx   *transaction.SignedTransaction
		path string
	)
	if *cancelID != "" {
		tx, err = transaction.SignCancel(signer, domain, transaction.CancelPayload{
			Instrument: *instrument,
			OrderID:    *cancelID,
			Nonce:      *nonce,
		})
		path = "/api/v1/orders/cancel"
	} else {
		tx, err = transaction.SignOrder(signer, domain, transaction.OrderPayload{
			Instrument: *instrument,
			Side:       *side,
			Price:      *price,
			Quantity:   *qty,
			Nonce:      *nonce,
		})
		path = "/api/v1/orders/limit"
	}
	if err != nil {
		fail("sign", err)
	}

	// check the signature the same way the server will
	verifier := transaction.NewVerifier(domain, nil)
	if tx.Type == transaction.TxTypeCancel {
		_, err = verifier.VerifyCancel(tx)
	} else {
		_, err = verifier.VerifyOrder(tx)
	}
	if err != nil {
		fail("verify", err)
	}

	txJSON, err := json.MarshalIndent(tx, "", "  ")
	if err != nil {
		fail("marshal", err)
	}

	fmt.Fprintf(os.Stderr, "Address: %s\n", signer.Address().Hex())
	if *keyHex == "" {
		fmt.Fprintf(os.Stderr, "Private Key: %s (KEEP SECRET!)\n", signer.PrivateKeyHex())
	}
	if *typed && tx.Order != nil {
		msg, err := tx.Order.ToEIP712()
		if err != nil {
			fail("typed data", err)
		}
		td, err := crypto.NewEIP712Signer(domain).LimitOrderJSON(msg)
		if err != nil {
			fail("typed data", err)
		}
		fmt.Fprintf(os.Stderr, "Typed data:\n%s\n", td)
	}
	fmt.Fprintf(os.Stderr, "POST %s%s\n\n", *api, path)
	fmt.Println(string(txJSON))
}

func loadSigner(keyHex string) (*crypto.Signer, error) {
	if keyHex == "" {
		return crypto.GenerateKey()
	}
	return crypto.FromPrivateKeyHex(keyHex)
}

func fail(step string, err error) {
	fmt.Fprintf(os.Stderr, "Error (%s): %v\n", step, err)
	os.Exit(1)
}
