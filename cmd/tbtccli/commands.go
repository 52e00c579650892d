package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/urfave/cli"
)

var estimateCommand = cli.Command{
	Name:      "estimate",
	Usage:     "estimate routing fee and lock time for an invoice",
	ArgsUsage: "invoice",
	Description: `
	Returns the routing fee in satoshis and the minimum lock time in
	seconds that tbtcswapd requires to pay the invoice.`,
	Action: estimate,
}

func estimate(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.ShowCommandHelp(ctx, "estimate")
	}

	return printQuery(ctx, "ln2tbtc", "lockTime", ctx.Args().First())
}

var invoiceCommand = cli.Command{
	Name:      "invoice",
	Usage:     "show the hold invoice generated for a swap",
	ArgsUsage: "user_address payment_hash",
	Action:    invoice,
}

func invoice(ctx *cli.Context) error {
	if ctx.NArg() != 2 {
		return cli.ShowCommandHelp(ctx, "invoice")
	}

	args := ctx.Args()
	if !common.IsHexAddress(args.Get(0)) {
		return fmt.Errorf("invalid user address %v", args.Get(0))
	}

	hash, err := lntypes.MakeHashFromStr(args.Get(1))
	if err != nil {
		return fmt.Errorf("invalid payment hash: %w", err)
	}

	return printQuery(
		ctx, "tbtc2ln", "invoice",
		common.HexToAddress(args.Get(0)).Hex(), hash.String(),
	)
}

var alertsCommand = cli.Command{
	Name:   "alerts",
	Usage:  "list recent swaps that put funds at risk",
	Action: alerts,
}

func alerts(ctx *cli.Context) error {
	return printQuery(ctx, "alerts")
}

func printQuery(ctx *cli.Context, elems ...string) error {
	client := newQueryClient(
		ctx.GlobalString("server"), ctx.GlobalDuration("timeout"),
	)

	resp, err := client.get(context.Background(), elems...)
	if err != nil {
		return err
	}

	fmt.Println(resp)

	return nil
}
