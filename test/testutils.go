package test

import (
	"errors"
	"fmt"
	"os"
	"runtime/pprof"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/zpay32"
	"github.com/stretchr/testify/require"
)

var (
	// Timeout is the default timeout when tests wait for something to
	// happen.
	Timeout = time.Second * 5

	// ErrTimeout is returned on timeout.
	ErrTimeout = errors.New("test timeout")

	// ChainParams are the network parameters of all test invoices.
	ChainParams = &chaincfg.RegressionNetParams
)

// InvoiceOpt customizes a test invoice.
type InvoiceOpt func(*zpay32.Invoice)

// WithAmount sets the invoice amount.
func WithAmount(amt lnwire.MilliSatoshi) InvoiceOpt {
	return func(invoice *zpay32.Invoice) {
		invoice.MilliSat = &amt
	}
}

// NewInvoice returns an encoded invoice for the given hash, signed by the
// node key with the given index.
func NewInvoice(t *testing.T, hash lntypes.Hash, nodeIndex int32,
	opts ...InvoiceOpt) string {

	t.Helper()

	payReq, err := zpay32.NewInvoice(
		ChainParams, hash, time.Unix(1700000000, 0),
		zpay32.Description("test"), zpay32.CLTVExpiry(40),
		zpay32.PaymentAddr([32]byte{1}),
	)
	require.NoError(t, err)

	for _, opt := range opts {
		opt(payReq)
	}

	invoice, err := EncodePayReq(payReq, nodeIndex)
	require.NoError(t, err)

	return invoice
}

// EncodePayReq encodes a zpay32 invoice, signed by the node key with the
// given index.
func EncodePayReq(payReq *zpay32.Invoice, nodeIndex int32) (string, error) {
	privKey, _ := CreateKey(nodeIndex)
	reqString, err := payReq.Encode(
		zpay32.MessageSigner{
			SignCompact: func(msg []byte) ([]byte, error) {
				// ecdsa.SignCompact returns a
				// pubkey-recoverable signature.
				sig, err := ecdsa.SignCompact(
					privKey, chainhash.HashB(msg), true,
				)
				if err != nil {
					return nil, fmt.Errorf("can't sign "+
						"the hash: %v", err)
				}

				return sig, nil
			},
		},
	)
	if err != nil {
		return "", err
	}

	logger.Debugf("Encoded invoice for %v", payReq.PaymentHash)

	return reqString, nil
}

// DumpGoroutines dumps all currently running goroutines.
func DumpGoroutines() {
	_ = pprof.Lookup("goroutine").WriteTo(os.Stdout, 1)
}
