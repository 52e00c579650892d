package main

import (
	"fmt"
	"os"

	"github.com/lightninglabs/tbtcswap/tbtcd"
)

func main() {
	if err := tbtcd.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
