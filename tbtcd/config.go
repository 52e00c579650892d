package tbtcd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
	"github.com/lightninglabs/tbtcswap"
	"github.com/lightninglabs/tbtcswap/swap"
	"github.com/lightninglabs/tbtcswap/swapdb"
	"github.com/lightningnetwork/lnd/build"
	"github.com/lightningnetwork/lnd/lncfg"
)

const (
	// DatabaseBackendMemory keeps the swap records in memory only.
	DatabaseBackendMemory = "memory"

	// DatabaseBackendBolt stores the swap records in a bbolt file.
	DatabaseBackendBolt = "bolt"

	// DatabaseBackendSqlite stores the swap records in a sqlite file.
	DatabaseBackendSqlite = "sqlite"

	// DatabaseBackendPostgres stores the swap records in postgres.
	DatabaseBackendPostgres = "postgres"
)

var (
	// DataDirBase is the default main directory where tbtcswapd stores
	// its data.
	DataDirBase = btcutil.AppDataDir("tbtcswapd", false)

	defaultNetwork        = "mainnet"
	defaultLogLevel       = "info"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "tbtcswapd.log"
	defaultConfigFilename = "tbtcswapd.conf"
	defaultSqliteFilename = "tbtcswap.db"
	defaultBoltDirname    = "bolt"

	defaultLogDir     = filepath.Join(DataDirBase, defaultLogDirname)
	defaultConfigFile = filepath.Join(
		DataDirBase, defaultNetwork, defaultConfigFilename,
	)

	defaultHTTPListen    = "localhost:8080"
	defaultRatePerMinute = 120
	defaultMaxAlerts     = 100

	defaultGasLimit = uint64(300_000)
)

type lndConfig struct {
	Host        string `long:"host" description:"lnd instance rpc address"`
	MacaroonDir string `long:"macaroondir" description:"Path to the directory containing all the required lnd macaroons"`
	TLSPath     string `long:"tlspath" description:"Path to lnd tls certificate"`
}

type ethereumConfig struct {
	RPCURL   string `long:"rpcurl" description:"Websocket url of the ethereum node, required for event subscriptions"`
	Contract string `long:"contract" description:"Address of the swap contract"`
	KeyFile  string `long:"keyfile" description:"Path to the hex encoded private key of the operator"`
	ChainID  int64  `long:"chainid" description:"Chain id to sign transactions for. Queried from the node if not set"`
	GasLimit uint64 `long:"gaslimit" description:"Gas limit of swap transactions. Zero estimates the gas for every transaction"`
}

type policyConfig struct {
	LedgerUnitsPerSat uint64 `long:"unitspersat" description:"Number of smallest ledger token units per satoshi"`

	Timeout *swap.TimeoutPolicy `group:"timeout" namespace:"timeout"`

	OverrideFees bool  `long:"overridefees" description:"Use the configured fees instead of the fees registered on the contract"`
	ConstantFee  int64 `long:"constantfee" description:"Constant fee in ledger units, used with overridefees"`
	LinearFee    int64 `long:"linearfee" description:"Proportional fee in parts per million, used with overridefees"`

	Retry *tbtcswap.RetryConfig `group:"retry" namespace:"retry"`
}

type httpConfig struct {
	Listen        string   `long:"listen" description:"Address to listen on for HTTP clients"`
	CORSOrigins   []string `long:"corsorigin" description:"Allowed CORS origin, can be specified multiple times. All origins are allowed if not set"`
	RatePerMinute int      `long:"ratelimit" description:"Maximum number of requests per minute and client ip. Zero disables rate limiting"`
	MaxAlerts     int      `long:"maxalerts" description:"Number of recent fund risk alerts to keep"`
}

type viewParameters struct{}

// Config is the configuration of the tbtcswapd daemon.
type Config struct {
	ShowVersion bool   `long:"version" description:"Display version information and exit"`
	Network     string `long:"network" description:"network to run on" choice:"regtest" choice:"testnet" choice:"mainnet" choice:"simnet" choice:"signet"`

	DataDir    string `long:"datadir" description:"The directory for all of tbtcswapd's data."`
	ConfigFile string `long:"configfile" description:"Path to configuration file."`
	LogDir     string `long:"logdir" description:"Directory to log output."`

	DebugLevel string `long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`

	DatabaseBackend string                 `long:"databasebackend" description:"The database backend to use for storing swap records." choice:"memory" choice:"bolt" choice:"sqlite" choice:"postgres"`
	Sqlite          *swapdb.SqliteConfig   `group:"sqlite" namespace:"sqlite"`
	Postgres        *swapdb.PostgresConfig `group:"postgres" namespace:"postgres"`

	Logging *build.LogConfig `group:"logging" namespace:"logging"`

	Lnd      *lndConfig      `group:"lnd" namespace:"lnd"`
	Ethereum *ethereumConfig `group:"ethereum" namespace:"ethereum"`
	Policy   *policyConfig   `group:"policy" namespace:"policy"`
	HTTP     *httpConfig     `group:"http" namespace:"http"`

	View viewParameters `command:"view" alias:"v" description:"View all swaps in the database. This command can only be executed when tbtcswapd is not running."`
}

// DefaultConfig returns all default values for the Config struct.
func DefaultConfig() Config {
	retry := tbtcswap.DefaultRetryConfig
	timeout := swap.DefaultTimeoutPolicy

	return Config{
		Network:         defaultNetwork,
		DataDir:         DataDirBase,
		ConfigFile:      defaultConfigFile,
		LogDir:          defaultLogDir,
		DebugLevel:      defaultLogLevel,
		DatabaseBackend: DatabaseBackendSqlite,
		Sqlite:          &swapdb.SqliteConfig{},
		Postgres: &swapdb.PostgresConfig{
			Host:               "localhost",
			Port:               5432,
			MaxOpenConnections: 10,
		},
		Logging: build.DefaultLogConfig(),
		Lnd: &lndConfig{
			Host: "localhost:10009",
		},
		Ethereum: &ethereumConfig{
			RPCURL:   "ws://localhost:8546",
			GasLimit: defaultGasLimit,
		},
		Policy: &policyConfig{
			LedgerUnitsPerSat: swap.DefaultLedgerUnitsPerSat,
			Timeout:           &timeout,
			Retry:             &retry,
		},
		HTTP: &httpConfig{
			Listen:        defaultHTTPListen,
			RatePerMinute: defaultRatePerMinute,
			MaxAlerts:     defaultMaxAlerts,
		},
	}
}

// Validate cleans up paths in the config provided and validates it.
func Validate(cfg *Config) error {
	// Cleanup any paths before we use them.
	cfg.DataDir = lncfg.CleanAndExpandPath(cfg.DataDir)
	cfg.LogDir = lncfg.CleanAndExpandPath(cfg.LogDir)
	cfg.Lnd.MacaroonDir = lncfg.CleanAndExpandPath(cfg.Lnd.MacaroonDir)
	cfg.Lnd.TLSPath = lncfg.CleanAndExpandPath(cfg.Lnd.TLSPath)
	cfg.Ethereum.KeyFile = lncfg.CleanAndExpandPath(cfg.Ethereum.KeyFile)

	// Since our data directory overrides our log dir value, make sure
	// that it is not set when the data dir is set. We hard here rather
	// than overwriting and potentially confusing the user.
	logDirSet := cfg.LogDir != defaultLogDir
	dataDirSet := cfg.DataDir != DataDirBase

	if dataDirSet {
		if logDirSet {
			return fmt.Errorf("datadir overwrites logdir, please " +
				"only set one value")
		}

		cfg.LogDir = filepath.Join(cfg.DataDir, defaultLogDirname)
	}

	// Append the network type to the data and log directory so they are
	// "namespaced" per network.
	cfg.DataDir = filepath.Join(cfg.DataDir, cfg.Network)
	cfg.LogDir = filepath.Join(cfg.LogDir, cfg.Network)

	// If either of these directories do not exist, create them.
	if err := os.MkdirAll(cfg.DataDir, os.ModePerm); err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.LogDir, os.ModePerm); err != nil {
		return err
	}

	switch cfg.DatabaseBackend {
	case DatabaseBackendMemory, DatabaseBackendBolt,
		DatabaseBackendPostgres:

	case DatabaseBackendSqlite:
		if cfg.Sqlite.DatabaseFileName == "" {
			cfg.Sqlite.DatabaseFileName = filepath.Join(
				cfg.DataDir, defaultSqliteFilename,
			)
		}
		cfg.Sqlite.DatabaseFileName = lncfg.CleanAndExpandPath(
			cfg.Sqlite.DatabaseFileName,
		)

	default:
		return fmt.Errorf("unknown database backend %q",
			cfg.DatabaseBackend)
	}

	if _, err := chainParams(cfg.Network); err != nil {
		return err
	}

	if !common.IsHexAddress(cfg.Ethereum.Contract) {
		return fmt.Errorf("invalid contract address %q",
			cfg.Ethereum.Contract)
	}

	if cfg.Ethereum.KeyFile == "" {
		return errors.New("operator key file required")
	}

	if cfg.Ethereum.ChainID < 0 {
		return errors.New("chain id must not be negative")
	}

	if cfg.Policy.LedgerUnitsPerSat == 0 {
		return errors.New("ledger units per sat must be positive")
	}

	if cfg.Policy.Timeout.Multiplier == 0 {
		return errors.New("timeout multiplier must be positive")
	}

	if cfg.Policy.OverrideFees {
		fees := swap.NewFeePolicy(
			cfg.Policy.ConstantFee, cfg.Policy.LinearFee,
		)
		if err := fees.Validate(); err != nil {
			return err
		}
	}

	if cfg.Policy.Retry.InitialInterval <= 0 ||
		cfg.Policy.Retry.MaxInterval < cfg.Policy.Retry.InitialInterval {

		return errors.New("retry intervals must be positive and the " +
			"max interval must not be smaller than the initial one")
	}

	if cfg.HTTP.RatePerMinute < 0 {
		return errors.New("rate limit must not be negative")
	}

	return nil
}

// boltDir returns the directory of the bbolt swap store.
func (c *Config) boltDir() string {
	return filepath.Join(c.DataDir, defaultBoltDirname)
}

// chainParams returns the chain params of the lnd network.
func chainParams(network string) (*chaincfg.Params, error) {
	switch network {
	case "mainnet":
		return &chaincfg.MainNetParams, nil

	case "testnet":
		return &chaincfg.TestNet3Params, nil

	case "regtest":
		return &chaincfg.RegressionNetParams, nil

	case "simnet":
		return &chaincfg.SimNetParams, nil

	case "signet":
		return &chaincfg.SigNetParams, nil

	default:
		return nil, fmt.Errorf("unknown network %v", network)
	}
}
