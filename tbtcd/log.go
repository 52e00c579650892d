package tbtcd

import (
	"github.com/btcsuite/btclog/v2"
	"github.com/lightninglabs/lndclient"
	"github.com/lightninglabs/tbtcswap"
	"github.com/lightninglabs/tbtcswap/ethledger"
	"github.com/lightninglabs/tbtcswap/fsm"
	"github.com/lightninglabs/tbtcswap/lndnet"
	"github.com/lightninglabs/tbtcswap/swapdb"
	"github.com/lightningnetwork/lnd"
	"github.com/lightningnetwork/lnd/build"
	"github.com/lightningnetwork/lnd/signal"
)

const Subsystem = "TBTD"

var (
	log btclog.Logger
)

// SetupLoggers initializes all package-global logger variables.
func SetupLoggers(root *build.SubLoggerManager, intercept signal.Interceptor) {
	genLogger := genSubLogger(root, intercept)

	log = build.NewSubLogger(Subsystem, genLogger)

	lnd.SetSubLogger(root, Subsystem, log)

	// Fund risk alerts are logged at the critical level. They must not
	// shut down the daemon, other swaps still need to be served.
	swapLog := build.NewSubLogger(
		tbtcswap.Subsystem, func(tag string) btclog.Logger {
			return root.GenSubLogger(tag, func() {})
		},
	)
	lnd.SetSubLogger(root, tbtcswap.Subsystem, swapLog, tbtcswap.UseLogger)

	lnd.AddSubLogger(root, "LNDC", intercept, lndclient.UseLogger)
	lnd.AddSubLogger(root, swapdb.Subsystem, intercept, swapdb.UseLogger)
	lnd.AddSubLogger(root, lndnet.Subsystem, intercept, lndnet.UseLogger)
	lnd.AddSubLogger(
		root, ethledger.Subsystem, intercept, ethledger.UseLogger,
	)
	lnd.AddSubLogger(root, fsm.Subsystem, intercept, fsm.UseLogger)
}

// genSubLogger creates a logger for a subsystem. We provide an instance of
// a signal.Interceptor to be able to shutdown in the case of a critical error.
func genSubLogger(root *build.SubLoggerManager,
	interceptor signal.Interceptor) func(string) btclog.Logger {

	// Create a shutdown function which will request shutdown from our
	// interceptor if it is listening.
	shutdown := func() {
		if !interceptor.Listening() {
			return
		}

		interceptor.RequestShutdown()
	}

	// Return a function which will create a sublogger from our root
	// logger without shutdown fn.
	return func(tag string) btclog.Logger {
		return root.GenSubLogger(tag, shutdown)
	}
}
