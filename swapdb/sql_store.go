package swapdb

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lightninglabs/tbtcswap/swap"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/lntypes"
)

var (
	//go:embed migrations/*.sql
	sqlSchemas embed.FS

	// maxStateUpdateAttempts is the number of times a state update is
	// retried if the row was changed concurrently.
	maxStateUpdateAttempts = 5
)

// applyMigrations executes all database migration files found in the given
// file system under the given path, using the passed database driver and
// database name.
func applyMigrations(driver database.Driver, dbName string) error {
	source, err := iofs.New(sqlSchemas, "migrations")
	if err != nil {
		return err
	}

	m, err := migrate.NewWithInstance("migrations", source, dbName, driver)
	if err != nil {
		return err
	}

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("unable to apply migrations: %w", err)
	}

	version, _, err := m.Version()
	if err != nil {
		return err
	}

	log.Infof("Database schema at version %v", version)

	return nil
}

// BaseDB is the base database struct that each SQL implementation embeds to
// gain the Store functionality.
type BaseDB struct {
	*sql.DB

	clock clock.Clock
}

// CreateSwap atomically adds a new record to the store. The primary key
// constraint makes the insert a no-op if the key exists, which is detected
// through the number of affected rows.
//
// NOTE: Part of the Store interface.
func (db *BaseDB) CreateSwap(ctx context.Context, swap *SwapRecord) error {
	if swap.Amount == nil || swap.Amount.Sign() < 0 {
		return errors.New("invalid swap amount")
	}

	initiationTime := swap.InitiationTime
	if initiationTime.IsZero() {
		initiationTime = db.clock.Now()
	}

	res, err := db.ExecContext(ctx, `
		INSERT INTO swaps (
			user_address, swap_hash, swap_type, amount, invoice,
			state, initiation_time, last_update
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		) ON CONFLICT DO NOTHING`,
		addressKey(swap.Address), swap.Hash.String(), int16(swap.Type),
		swap.Amount.String(), swap.Invoice, int16(swap.State),
		initiationTime.UnixNano(), initiationTime.UnixNano(),
	)
	if err != nil {
		return err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrDuplicateSwapRecord
	}

	return nil
}

// FetchSwap returns the record for the given key.
//
// NOTE: Part of the Store interface.
func (db *BaseDB) FetchSwap(ctx context.Context, key Key) (*SwapRecord,
	error) {

	row := db.QueryRowContext(ctx, `
		SELECT
			user_address, swap_hash, swap_type, amount, invoice,
			state, initiation_time, last_update
		FROM swaps
		WHERE user_address = $1 AND swap_hash = $2`,
		addressKey(key.Address), key.Hash.String(),
	)

	record, err := scanSwap(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSwapNotFound
	}

	return record, err
}

// FetchSwaps returns all records ordered by initiation time.
//
// NOTE: Part of the Store interface.
func (db *BaseDB) FetchSwaps(ctx context.Context) ([]*SwapRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT
			user_address, swap_hash, swap_type, amount, invoice,
			state, initiation_time, last_update
		FROM swaps
		ORDER BY initiation_time`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var swaps []*SwapRecord
	for rows.Next() {
		record, err := scanSwap(rows)
		if err != nil {
			return nil, err
		}

		swaps = append(swaps, record)
	}

	return swaps, rows.Err()
}

// UpdateState moves the record for the given key to a new state. The update
// is conditional on the state that was validated against, so a concurrent
// change makes us re-read and re-validate.
//
// NOTE: Part of the Store interface.
func (db *BaseDB) UpdateState(ctx context.Context, key Key,
	state State) error {

	for i := 0; i < maxStateUpdateAttempts; i++ {
		record, err := db.FetchSwap(ctx, key)
		if err != nil {
			return err
		}

		if !record.State.CanTransitionTo(state) {
			return ErrStateRegression
		}

		res, err := db.ExecContext(ctx, `
			UPDATE swaps
			SET state = $1, last_update = $2
			WHERE user_address = $3 AND swap_hash = $4
			AND state = $5`,
			int16(state), db.clock.Now().UnixNano(),
			addressKey(key.Address), key.Hash.String(),
			int16(record.State),
		)
		if err != nil {
			return err
		}

		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}

		if rows == 1 {
			return nil
		}

		log.Debugf("Concurrent state update for swap %v, retrying",
			key)
	}

	return fmt.Errorf("unable to update state of swap %v", key)
}

// Close closes the underlying database.
//
// NOTE: Part of the Store interface.
func (db *BaseDB) Close() error {
	return db.DB.Close()
}

// rowScanner is the common interface of sql.Row and sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSwap(row rowScanner) (*SwapRecord, error) {
	var (
		address, hash, amount, invoice string
		swapType, state                int16
		initiationTime, lastUpdate     int64
	)

	err := row.Scan(
		&address, &hash, &swapType, &amount, &invoice, &state,
		&initiationTime, &lastUpdate,
	)
	if err != nil {
		return nil, err
	}

	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid address %v", address)
	}

	swapHash, err := lntypes.MakeHashFromStr(hash)
	if err != nil {
		return nil, err
	}

	amt, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %v", amount)
	}

	return &SwapRecord{
		Key: Key{
			Address: common.HexToAddress(address),
			Hash:    swapHash,
		},
		Type:           swap.Type(swapType),
		Amount:         amt,
		Invoice:        invoice,
		State:          State(state),
		InitiationTime: time.Unix(0, initiationTime),
		LastUpdate:     time.Unix(0, lastUpdate),
	}, nil
}

// addressKey returns the canonical lower case encoding of an address used as
// part of the primary key.
func addressKey(address common.Address) string {
	return strings.ToLower(address.Hex())
}

var _ Store = (*BaseDB)(nil)
