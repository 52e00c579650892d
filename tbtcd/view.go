package tbtcd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/lightninglabs/tbtcswap/swap"
	"github.com/lightninglabs/tbtcswap/swapdb"
	"github.com/lightningnetwork/lnd/clock"
)

// view prints all swaps currently in the database.
func view(config *Config) error {
	if config.DatabaseBackend == DatabaseBackendMemory {
		return fmt.Errorf("the %v backend keeps no swaps to view",
			DatabaseBackendMemory)
	}

	store, err := openStore(config, clock.NewDefaultClock())
	if err != nil {
		return err
	}
	defer store.Close()

	return viewSwaps(context.Background(), store, os.Stdout)
}

// viewSwaps writes all swaps of the store to w, ordered by creation time.
func viewSwaps(ctx context.Context, store swapdb.Store, w io.Writer) error {
	swaps, err := store.FetchSwaps(ctx)
	if err != nil {
		return err
	}

	sort.Slice(swaps, func(i, j int) bool {
		return swaps[i].InitiationTime.Before(swaps[j].InitiationTime)
	})

	for _, s := range swaps {
		direction := "CLAIM"
		if s.Type == swap.TypeLock {
			direction = "LOCK"
		}

		fmt.Fprintf(w, "%v %v\n", direction, s.Hash)
		fmt.Fprintf(w, "   User: %v\n", s.Address.Hex())
		fmt.Fprintf(w, "   Created: %v\n", s.InitiationTime)
		fmt.Fprintf(w, "   Amount: %v\n", s.Amount)
		fmt.Fprintf(w, "   Invoice: %v\n", s.Invoice)
		fmt.Fprintf(w, "   State: %v (updated %v)\n", s.State,
			s.LastUpdate)
		fmt.Fprintln(w)
	}

	return nil
}
