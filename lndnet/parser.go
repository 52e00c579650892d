package lndnet

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightninglabs/tbtcswap"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/routing/route"
	"github.com/lightningnetwork/lnd/zpay32"
)

// ZpayParser decodes bolt11 invoices of one network.
type ZpayParser struct {
	chainParams *chaincfg.Params
}

// NewZpayParser returns a parser for invoices of the given network.
func NewZpayParser(chainParams *chaincfg.Params) *ZpayParser {
	return &ZpayParser{
		chainParams: chainParams,
	}
}

// ParseInvoice decodes an invoice and checks its signature. A whole satoshi
// amount is reported in Tokens, any other amount only in MilliTokens.
//
// NOTE: Part of the tbtcswap.InvoiceParser interface.
func (p *ZpayParser) ParseInvoice(invoice string) (*tbtcswap.ParsedInvoice,
	error) {

	payReq, err := zpay32.Decode(invoice, p.chainParams)
	if err != nil {
		return nil, err
	}

	if payReq.PaymentHash == nil {
		return nil, fmt.Errorf("invoice without payment hash")
	}

	parsed := &tbtcswap.ParsedInvoice{
		PaymentRequest: invoice,
		Hash:           lntypes.Hash(*payReq.PaymentHash),
		Destination:    route.NewVertex(payReq.Destination),
		CltvExpiry:     payReq.MinFinalCLTVExpiry(),
	}

	if payReq.MilliSat != nil {
		mtokens := *payReq.MilliSat
		if mtokens%1000 == 0 {
			tokens := mtokens.ToSatoshis()
			parsed.Tokens = &tokens
		} else {
			parsed.MilliTokens = &mtokens
		}
	}

	return parsed, nil
}

var _ tbtcswap.InvoiceParser = (*ZpayParser)(nil)
