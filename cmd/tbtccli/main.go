package main

import (
	"fmt"
	"os"

	"github.com/lightninglabs/tbtcswap"
	"github.com/urfave/cli"
)

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[tbtccli] %v\n", err)
	os.Exit(1)
}

func main() {
	app := cli.NewApp()

	app.Version = tbtcswap.Version()
	app.Name = "tbtccli"
	app.Usage = "query client for your tbtcswapd"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "server",
			Value: "http://localhost:8080",
			Usage: "tbtcswapd http address",
		},
		cli.DurationFlag{
			Name:  "timeout",
			Value: defaultTimeout,
			Usage: "timeout of a single request",
		},
	}
	app.Commands = []cli.Command{
		estimateCommand, invoiceCommand, alertsCommand,
	}

	err := app.Run(os.Args)
	if err != nil {
		fatal(err)
	}
}
