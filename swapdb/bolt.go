package swapdb

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lightninglabs/tbtcswap/swap"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/lntypes"
	"go.etcd.io/bbolt"
)

var (
	// dbFileName is the default file name of the bolt swap database.
	dbFileName = "swaps.db"

	// swapsBucketKey is a bucket that contains all swaps that are
	// currently pending or completed. This bucket is keyed by the
	// counterparty address concatenated with the swap hash, and leads to a
	// nested sub-bucket that houses information for that swap.
	//
	// maps: address || swapHash -> swapBucket
	swapsBucketKey = []byte("swaps")

	// contractKey is the key that stores the immutable part of a swap.
	//
	// path: swapsBucket -> swapBucket[key] -> contractKey
	//
	// value: type || initiationTime || amount || invoice
	contractKey = []byte("contract")

	// stateKey is the key that stores the current state of a swap.
	//
	// path: swapsBucket -> swapBucket[key] -> stateKey
	//
	// value: state || updateTime
	stateKey = []byte("state")

	byteOrder = binary.BigEndian
)

// fileExists returns true if the file exists, and false otherwise.
func fileExists(path string) bool {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}

	return true
}

// BoltStore stores swap records in boltdb.
type BoltStore struct {
	db    *bbolt.DB
	clock clock.Clock
}

// NewBoltStore opens or creates the bolt swap database in the given
// directory.
func NewBoltStore(dbPath string, clock clock.Clock) (*BoltStore, error) {
	// If the target path for the swap store doesn't exist, then we'll
	// create it now before we proceed.
	if !fileExists(dbPath) {
		if err := os.MkdirAll(dbPath, 0700); err != nil {
			return nil, err
		}
	}

	path := filepath.Join(dbPath, dbFileName)
	bdb, err := bbolt.Open(path, 0600, &bbolt.Options{
		Timeout: time.Second * 5,
	})
	if err != nil {
		return nil, err
	}

	err = bdb.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(swapsBucketKey)
		return err
	})
	if err != nil {
		_ = bdb.Close()
		return nil, err
	}

	log.Infof("Opened bolt swap store at %v", path)

	return &BoltStore{
		db:    bdb,
		clock: clock,
	}, nil
}

// CreateSwap atomically adds a new record to the store.
//
// NOTE: Part of the Store interface.
func (s *BoltStore) CreateSwap(_ context.Context, swap *SwapRecord) error {
	initiationTime := swap.InitiationTime
	if initiationTime.IsZero() {
		initiationTime = s.clock.Now()
	}

	contract, err := serializeContract(swap, initiationTime)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		rootBucket := tx.Bucket(swapsBucketKey)
		if rootBucket == nil {
			return errors.New("bucket does not exist")
		}

		// The whole write transaction is serialized by bolt, so the
		// existence check and the creation happen atomically.
		key := swap.Key.bytes()
		if rootBucket.Bucket(key) != nil {
			return ErrDuplicateSwapRecord
		}

		swapBucket, err := rootBucket.CreateBucket(key)
		if err != nil {
			return err
		}

		if err := swapBucket.Put(contractKey, contract); err != nil {
			return err
		}

		return swapBucket.Put(
			stateKey, serializeState(swap.State, initiationTime),
		)
	})
}

// FetchSwap returns the record for the given key.
//
// NOTE: Part of the Store interface.
func (s *BoltStore) FetchSwap(_ context.Context, key Key) (*SwapRecord,
	error) {

	var record *SwapRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		rootBucket := tx.Bucket(swapsBucketKey)
		if rootBucket == nil {
			return errors.New("bucket does not exist")
		}

		swapBucket := rootBucket.Bucket(key.bytes())
		if swapBucket == nil {
			return ErrSwapNotFound
		}

		var err error
		record, err = deserializeSwap(key, swapBucket)

		return err
	})
	if err != nil {
		return nil, err
	}

	return record, nil
}

// FetchSwaps returns all records currently in the store.
//
// NOTE: Part of the Store interface.
func (s *BoltStore) FetchSwaps(_ context.Context) ([]*SwapRecord, error) {
	var swaps []*SwapRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		rootBucket := tx.Bucket(swapsBucketKey)
		if rootBucket == nil {
			return errors.New("bucket does not exist")
		}

		return rootBucket.ForEach(func(k, v []byte) error {
			// Only go into things that we know are sub-bucket
			// keys.
			if v != nil {
				return nil
			}

			key, err := parseKey(k)
			if err != nil {
				return err
			}

			record, err := deserializeSwap(key, rootBucket.Bucket(k))
			if err != nil {
				return err
			}

			swaps = append(swaps, record)

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return swaps, nil
}

// UpdateState moves the record for the given key to a new state.
//
// NOTE: Part of the Store interface.
func (s *BoltStore) UpdateState(_ context.Context, key Key,
	state State) error {

	return s.db.Update(func(tx *bbolt.Tx) error {
		rootBucket := tx.Bucket(swapsBucketKey)
		if rootBucket == nil {
			return errors.New("bucket does not exist")
		}

		swapBucket := rootBucket.Bucket(key.bytes())
		if swapBucket == nil {
			return ErrSwapNotFound
		}

		current, _, err := deserializeState(swapBucket.Get(stateKey))
		if err != nil {
			return err
		}

		if !current.CanTransitionTo(state) {
			return ErrStateRegression
		}

		return swapBucket.Put(
			stateKey, serializeState(state, s.clock.Now()),
		)
	})
}

// Close closes the underlying database.
//
// NOTE: Part of the Store interface.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func parseKey(b []byte) (Key, error) {
	var key Key
	if len(b) != common.AddressLength+lntypes.HashSize {
		return key, fmt.Errorf("invalid swap key length %v", len(b))
	}

	copy(key.Address[:], b[:common.AddressLength])
	copy(key.Hash[:], b[common.AddressLength:])

	return key, nil
}

func serializeContract(swap *SwapRecord, initiationTime time.Time) ([]byte,
	error) {

	if swap.Amount == nil || swap.Amount.Sign() < 0 {
		return nil, errors.New("invalid swap amount")
	}

	var b bytes.Buffer

	if err := b.WriteByte(byte(swap.Type)); err != nil {
		return nil, err
	}

	err := binary.Write(&b, byteOrder, initiationTime.UnixNano())
	if err != nil {
		return nil, err
	}

	if err := writeVarBytes(&b, swap.Amount.Bytes()); err != nil {
		return nil, err
	}

	if err := writeVarBytes(&b, []byte(swap.Invoice)); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

func deserializeSwap(key Key, swapBucket *bbolt.Bucket) (*SwapRecord,
	error) {

	contractBytes := swapBucket.Get(contractKey)
	if contractBytes == nil {
		return nil, errors.New("contract not found")
	}

	r := bytes.NewReader(contractBytes)

	swapType, err := r.ReadByte()
	if err != nil {
		return nil, err
	}

	var initiationTime int64
	if err := binary.Read(r, byteOrder, &initiationTime); err != nil {
		return nil, err
	}

	amount, err := readVarBytes(r)
	if err != nil {
		return nil, err
	}

	invoice, err := readVarBytes(r)
	if err != nil {
		return nil, err
	}

	state, lastUpdate, err := deserializeState(swapBucket.Get(stateKey))
	if err != nil {
		return nil, err
	}

	return &SwapRecord{
		Key:            key,
		Type:           swap.Type(swapType),
		Amount:         new(big.Int).SetBytes(amount),
		Invoice:        string(invoice),
		State:          state,
		InitiationTime: time.Unix(0, initiationTime),
		LastUpdate:     lastUpdate,
	}, nil
}

func serializeState(state State, updateTime time.Time) []byte {
	b := make([]byte, 9)
	b[0] = byte(state)
	byteOrder.PutUint64(b[1:], uint64(updateTime.UnixNano()))

	return b
}

func deserializeState(b []byte) (State, time.Time, error) {
	if len(b) != 9 {
		return 0, time.Time{}, errors.New("invalid state encoding")
	}

	updateTime := time.Unix(0, int64(byteOrder.Uint64(b[1:])))

	return State(b[0]), updateTime, nil
}

func writeVarBytes(w io.Writer, b []byte) error {
	err := binary.Write(w, byteOrder, uint32(len(b)))
	if err != nil {
		return err
	}

	_, err = w.Write(b)

	return err
}

func readVarBytes(r io.Reader) ([]byte, error) {
	var length uint32
	if err := binary.Read(r, byteOrder, &length); err != nil {
		return nil, err
	}

	b := make([]byte, length)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}

	return b, nil
}

var _ Store = (*BoltStore)(nil)
