package test

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/routing/route"
)

// CreateKey returns a deterministically generated key pair.
func CreateKey(index int32) (*btcec.PrivateKey, *btcec.PublicKey) {
	// Avoid all zeros, because it results in an invalid key.
	privKey, pubKey := btcec.PrivKeyFromBytes([]byte{
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, byte(index + 1),
	})

	return privKey, pubKey
}

// NodeKey returns the node id of the key pair with the given index.
func NodeKey(index int32) route.Vertex {
	_, pubKey := CreateKey(index)

	return route.NewVertex(pubKey)
}

// Address returns a deterministic ledger address.
func Address(nr byte) common.Address {
	var addr common.Address
	addr[0] = 0xab
	addr[common.AddressLength-1] = nr

	return addr
}

// Preimage returns a deterministic preimage.
func Preimage(nr byte) lntypes.Preimage {
	var preimage lntypes.Preimage
	for i := range preimage {
		preimage[i] = nr
	}

	return preimage
}
