package test

import (
	"os"

	"github.com/btcsuite/btclog/v2"
)

// logger writes test output to stdout without any level filter.
var logger = btclog.NewSLogger(btclog.NewDefaultHandler(os.Stdout)).
	SubSystem("TEST")
