package lndnet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightninglabs/lndclient"
	"github.com/lightninglabs/tbtcswap"
	"github.com/lightningnetwork/lnd/invoices"
	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/lnrpc/invoicesrpc"
	"github.com/lightningnetwork/lnd/lnrpc/routerrpc"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/lnwire"
)

const (
	// DefaultHoldInvoiceCltv is the final cltv delta of our hold
	// invoices.
	DefaultHoldInvoiceCltv = 40

	// DefaultHoldInvoiceExpiry is the expiry of our hold invoices.
	DefaultHoldInvoiceExpiry = time.Hour
)

var (
	// ErrNoRoute is returned when lnd finds no route to a destination.
	ErrNoRoute = errors.New("no route found")
)

// Config holds the lnd connections of the client.
type Config struct {
	// Invoices manages our hold invoices.
	Invoices lndclient.InvoicesClient

	// Lightning is used for path finding and invoice decoding.
	Lightning lnrpc.LightningClient

	// Router dispatches payments along fixed routes.
	Router routerrpc.RouterClient

	// HoldInvoiceCltv is the final cltv delta of our hold invoices.
	HoldInvoiceCltv uint64

	// HoldInvoiceExpiry is the expiry of our hold invoices.
	HoldInvoiceExpiry time.Duration
}

// Client implements the payment network and router of the swap executor on
// top of lnd.
type Client struct {
	cfg *Config
}

// NewClient returns a new lnd payment network client.
func NewClient(cfg *Config) *Client {
	if cfg.HoldInvoiceCltv == 0 {
		cfg.HoldInvoiceCltv = DefaultHoldInvoiceCltv
	}
	if cfg.HoldInvoiceExpiry == 0 {
		cfg.HoldInvoiceExpiry = DefaultHoldInvoiceExpiry
	}

	return &Client{
		cfg: cfg,
	}
}

// FindRoute queries a route to the invoice destination for the invoice
// amount. The returned route pays to the invoice's payment address, so it can
// be used as is.
//
// NOTE: Part of the tbtcswap.Router interface.
func (c *Client) FindRoute(ctx context.Context,
	invoice *tbtcswap.ParsedInvoice) (*tbtcswap.Route, error) {

	amt, err := invoiceAmount(invoice)
	if err != nil {
		return nil, err
	}

	resp, err := c.cfg.Lightning.QueryRoutes(ctx, &lnrpc.QueryRoutesRequest{
		PubKey:            invoice.Destination.String(),
		AmtMsat:           int64(amt),
		FinalCltvDelta:    int32(invoice.CltvExpiry),
		UseMissionControl: true,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Routes) == 0 || len(resp.Routes[0].Hops) == 0 {
		return nil, ErrNoRoute
	}
	rpcRoute := resp.Routes[0]

	info, err := c.cfg.Lightning.GetInfo(ctx, &lnrpc.GetInfoRequest{})
	if err != nil {
		return nil, err
	}

	if rpcRoute.TotalTimeLock < info.BlockHeight {
		return nil, fmt.Errorf("route time lock %v below block height "+
			"%v", rpcRoute.TotalTimeLock, info.BlockHeight)
	}

	// Payments to modern invoices must carry the payment address in the
	// final hop's mpp record.
	payReq, err := c.cfg.Lightning.DecodePayReq(ctx, &lnrpc.PayReqString{
		PayReq: invoice.PaymentRequest,
	})
	if err != nil {
		return nil, err
	}

	if len(payReq.PaymentAddr) != 0 {
		lastHop := rpcRoute.Hops[len(rpcRoute.Hops)-1]
		lastHop.MppRecord = &lnrpc.MPPRecord{
			PaymentAddr:  payReq.PaymentAddr,
			TotalAmtMsat: lastHop.AmtToForwardMsat,
		}
	}

	fee := lnwire.MilliSatoshi(rpcRoute.TotalFeesMsat)

	log.Debugf("Route to %v: %d hops, fee %v, time lock %v at height %v",
		invoice.Destination, len(rpcRoute.Hops), fee,
		rpcRoute.TotalTimeLock, info.BlockHeight)

	return &tbtcswap.Route{
		Path:         rpcRoute,
		Fee:          roundUp(fee),
		TimeoutDelta: rpcRoute.TotalTimeLock - info.BlockHeight,
	}, nil
}

// PayViaRoute sends a single htlc along the given route.
//
// NOTE: Part of the tbtcswap.PaymentNetwork interface.
func (c *Client) PayViaRoute(ctx context.Context, hash lntypes.Hash,
	route *tbtcswap.Route) (lntypes.Preimage, error) {

	attempt, err := c.cfg.Router.SendToRouteV2(
		ctx, &routerrpc.SendToRouteRequest{
			PaymentHash: hash[:],
			Route:       route.Path,
		},
	)
	if err != nil {
		// The htlc may have been dispatched before the call failed.
		return lntypes.Preimage{}, fmt.Errorf("send to route: %w", err)
	}

	switch attempt.Status {
	case lnrpc.HTLCAttempt_SUCCEEDED:
		return lntypes.MakePreimage(attempt.Preimage)

	case lnrpc.HTLCAttempt_FAILED:
		reason := "unknown failure"
		if attempt.Failure != nil {
			reason = attempt.Failure.Code.String()
		}

		return lntypes.Preimage{}, fmt.Errorf("%w: %v",
			tbtcswap.ErrPaymentFailed, reason)

	default:
		return lntypes.Preimage{}, fmt.Errorf("payment %v in state %v",
			hash, attempt.Status)
	}
}

// AddHoldInvoice creates a hold invoice for the hash.
//
// NOTE: Part of the tbtcswap.PaymentNetwork interface.
func (c *Client) AddHoldInvoice(ctx context.Context, hash lntypes.Hash,
	amount btcutil.Amount, memo string) (string, error) {

	invoice, err := c.cfg.Invoices.AddHoldInvoice(
		ctx, &invoicesrpc.AddInvoiceData{
			Memo:       memo,
			Hash:       &hash,
			Value:      lnwire.NewMSatFromSatoshis(amount),
			Expiry:     int64(c.cfg.HoldInvoiceExpiry.Seconds()),
			CltvExpiry: c.cfg.HoldInvoiceCltv,
		},
	)

	// The rpc error only carries the message of lnd's error.
	if err != nil && strings.Contains(
		err.Error(), invoices.ErrDuplicateInvoice.Error(),
	) {

		return "", tbtcswap.ErrDuplicateInvoiceId
	}

	return invoice, err
}

// SubscribeInvoice streams the state changes of our hold invoice.
//
// NOTE: Part of the tbtcswap.PaymentNetwork interface.
func (c *Client) SubscribeInvoice(ctx context.Context, hash lntypes.Hash) (
	<-chan tbtcswap.InvoiceUpdate, <-chan error, error) {

	rpcUpdates, rpcErrs, err := c.cfg.Invoices.SubscribeSingleInvoice(
		ctx, hash,
	)
	if err != nil {
		return nil, nil, err
	}

	updates := make(chan tbtcswap.InvoiceUpdate)
	errChan := make(chan error, 1)

	go func() {
		for {
			select {
			case rpcUpdate, ok := <-rpcUpdates:
				if !ok {
					errChan <- errors.New("invoice " +
						"subscription closed")
					return
				}

				state, err := invoiceState(rpcUpdate.State)
				if err != nil {
					errChan <- err
					return
				}

				update := tbtcswap.InvoiceUpdate{
					Hash:       hash,
					State:      state,
					AmountPaid: rpcUpdate.AmtPaid,
				}

				select {
				case updates <- update:
				case <-ctx.Done():
					return
				}

			case err := <-rpcErrs:
				errChan <- err
				return

			case <-ctx.Done():
				return
			}
		}
	}()

	return updates, errChan, nil
}

// SettleInvoice settles the hold invoice of the preimage.
//
// NOTE: Part of the tbtcswap.PaymentNetwork interface.
func (c *Client) SettleInvoice(ctx context.Context,
	preimage lntypes.Preimage) error {

	return c.cfg.Invoices.SettleInvoice(ctx, preimage)
}

// invoiceAmount returns the amount requested by an invoice in millisatoshis.
func invoiceAmount(invoice *tbtcswap.ParsedInvoice) (lnwire.MilliSatoshi,
	error) {

	switch {
	case invoice.MilliTokens != nil:
		return *invoice.MilliTokens, nil

	case invoice.Tokens != nil:
		return lnwire.NewMSatFromSatoshis(*invoice.Tokens), nil

	case invoice.SafeTokens != nil:
		return lnwire.NewMSatFromSatoshis(*invoice.SafeTokens), nil

	default:
		return 0, tbtcswap.ErrNoAmountRequested
	}
}

func invoiceState(state invoices.ContractState) (tbtcswap.InvoiceState,
	error) {

	switch state {
	case invoices.ContractOpen:
		return tbtcswap.InvoiceStateOpen, nil

	case invoices.ContractAccepted:
		return tbtcswap.InvoiceStateHeld, nil

	case invoices.ContractSettled:
		return tbtcswap.InvoiceStateSettled, nil

	case invoices.ContractCanceled:
		return tbtcswap.InvoiceStateCanceled, nil

	default:
		return 0, fmt.Errorf("unknown invoice state %v", state)
	}
}

// roundUp converts millisatoshis to satoshis, rounding up.
func roundUp(amt lnwire.MilliSatoshi) btcutil.Amount {
	return btcutil.Amount((amt + 999) / 1000)
}

var (
	_ tbtcswap.PaymentNetwork = (*Client)(nil)
	_ tbtcswap.Router         = (*Client)(nil)
)
