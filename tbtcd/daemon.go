package tbtcd

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/lightninglabs/lndclient"
	"github.com/lightninglabs/tbtcswap"
	"github.com/lightninglabs/tbtcswap/ethledger"
	"github.com/lightninglabs/tbtcswap/lndnet"
	"github.com/lightninglabs/tbtcswap/swap"
	"github.com/lightninglabs/tbtcswap/swapdb"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/lnrpc/routerrpc"
	"github.com/lightningnetwork/lnd/lnrpc/verrpc"
	"github.com/lightningnetwork/lnd/signal"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"google.golang.org/grpc"
)

const (
	// shutdownTimeout is the time the HTTP server gets to finish running
	// requests on shutdown.
	shutdownTimeout = 5 * time.Second

	// readHeaderTimeout bounds the time a client may take to send the
	// request headers.
	readHeaderTimeout = 5 * time.Second
)

var (
	// MinRequiredLndVersion is the minimum required version of lnd that
	// is compatible with the current version of tbtcswapd. Also all
	// listed build tags/subservers need to be enabled.
	MinRequiredLndVersion = &verrpc.Version{
		AppMajor: 0,
		AppMinor: 18,
		AppPatch: 0,
		BuildTags: []string{
			"signrpc", "walletrpc", "chainrpc", "invoicesrpc",
			"routerrpc",
		},
	}
)

// Daemon is the tbtcswapd daemon. It connects the swap executor to lnd and
// the ledger and serves the query surface over HTTP.
type Daemon struct {
	cfg         *Config
	interceptor signal.Interceptor

	// ErrChan is an error channel that users of the Daemon struct must use
	// to detect runtime errors and also whether a shutdown is fully
	// completed.
	ErrChan chan error

	mainCtx       context.Context
	mainCtxCancel func()
	stopOnce      sync.Once
	wg            sync.WaitGroup

	lndServices *lndclient.GrpcLndServices
	lndConn     *grpc.ClientConn
	ethClient   *ethclient.Client
	store       swapdb.Store

	executor     *tbtcswap.Executor
	httpServer   *http.Server
	httpListener net.Listener
}

// New creates a new instance of the swap daemon.
func New(cfg *Config, interceptor signal.Interceptor) *Daemon {
	return &Daemon{
		cfg:         cfg,
		interceptor: interceptor,
		ErrChan:     make(chan error, 1),
	}
}

// Start connects to lnd and the ledger, and starts the swap executor and the
// HTTP server. It blocks until lnd is synced to chain.
func (d *Daemon) Start() error {
	d.mainCtx, d.mainCtxCancel = context.WithCancel(context.Background())

	if err := d.initialize(); err != nil {
		d.mainCtxCancel()
		d.cleanup()

		return err
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		log.Infof("Starting swap executor")
		err := d.executor.Run(d.mainCtx)
		if err != nil {
			log.Errorf("Swap executor failed: %v", err)
			d.stop(err)

			return
		}
		log.Infof("Swap executor stopped")
	}()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		log.Infof("HTTP server listening on %s", d.httpListener.Addr())

		err := d.httpServer.Serve(d.httpListener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("HTTP server failed: %v", err)
			d.stop(err)
		}
	}()

	return nil
}

// Stop shuts the daemon down. It returns immediately, the final result is
// sent on ErrChan once the shutdown is complete.
func (d *Daemon) Stop() {
	d.stop(nil)
}

func (d *Daemon) stop(reason error) {
	d.stopOnce.Do(func() {
		go func() {
			log.Infof("Stopping daemon")

			d.mainCtxCancel()

			ctx, cancel := context.WithTimeout(
				context.Background(), shutdownTimeout,
			)
			defer cancel()

			err := d.httpServer.Shutdown(ctx)
			if err != nil {
				log.Errorf("Error shutting down HTTP server: %v",
					err)
			}

			d.wg.Wait()
			d.cleanup()

			log.Infof("Daemon stopped")
			d.ErrChan <- reason
		}()
	})
}

// initialize connects all services and creates the executor and the HTTP
// server.
func (d *Daemon) initialize() error {
	params, err := chainParams(d.cfg.Network)
	if err != nil {
		return err
	}

	if err := d.connectLnd(); err != nil {
		return err
	}

	ledger, err := d.connectLedger()
	if err != nil {
		return err
	}

	fees, err := d.operatorFees(ledger)
	if err != nil {
		return err
	}
	log.Infof("Operator %v fees: %v", ledger.Operator().Hex(), fees)

	swapClock := clock.NewDefaultClock()

	d.store, err = openStore(d.cfg, swapClock)
	if err != nil {
		return fmt.Errorf("unable to open swap store: %w", err)
	}

	registry := newRegistry()
	metrics, err := tbtcswap.NewMetrics(registry)
	if err != nil {
		return err
	}

	alerter := tbtcswap.NewLogAlerter(swapClock, d.cfg.HTTP.MaxAlerts)

	lndClient := lndnet.NewClient(&lndnet.Config{
		Invoices:  d.lndServices.Invoices,
		Lightning: lnrpc.NewLightningClient(d.lndConn),
		Router:    routerrpc.NewRouterClient(d.lndConn),
	})

	swapCfg := &tbtcswap.Config{
		Operator:      ledger.Operator(),
		Ledger:        ledger,
		Network:       lndClient,
		Router:        lndClient,
		Parser:        lndnet.NewZpayParser(params),
		Store:         d.store,
		Alerter:       alerter,
		Metrics:       metrics,
		Clock:         swapClock,
		Fees:          fees,
		TimeoutPolicy: *d.cfg.Policy.Timeout,
		LedgerUnitsPerSat: new(big.Int).SetUint64(
			d.cfg.Policy.LedgerUnitsPerSat,
		),
		Retry: *d.cfg.Policy.Retry,
	}

	d.executor, err = tbtcswap.NewExecutor(swapCfg)
	if err != nil {
		return err
	}

	handler := newRouter(&routerConfig{
		quoter:        tbtcswap.NewQuoter(swapCfg),
		alerts:        alerter,
		gatherer:      registry,
		corsOrigins:   d.cfg.HTTP.CORSOrigins,
		ratePerMinute: d.cfg.HTTP.RatePerMinute,
	})

	d.httpListener, err = net.Listen("tcp", d.cfg.HTTP.Listen)
	if err != nil {
		return fmt.Errorf("HTTP server unable to listen on %s: %w",
			d.cfg.HTTP.Listen, err)
	}

	d.httpServer = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return nil
}

// connectLnd opens the lndclient services for invoices and a raw connection
// for routing.
func (d *Daemon) connectLnd() error {
	syncCtx, cancel := context.WithCancel(d.mainCtx)
	defer cancel()

	// Before we try to get our client connection, setup a goroutine which
	// will cancel our lndclient if the daemon is terminated, or exit if
	// our context is cancelled.
	go func() {
		select {
		// If the user decides to kill the daemon before lnd is
		// synced, we cancel our context, which will unblock
		// lndclient.
		case <-d.interceptor.ShutdownChannel():
			cancel()

		// If our sync context was cancelled, we know that the function
		// exited, which means that our client synced.
		case <-syncCtx.Done():
		}
	}()

	var err error
	d.lndServices, err = lndclient.NewLndServices(
		&lndclient.LndServicesConfig{
			LndAddress:            d.cfg.Lnd.Host,
			Network:               lndclient.Network(d.cfg.Network),
			MacaroonDir:           d.cfg.Lnd.MacaroonDir,
			TLSPath:               d.cfg.Lnd.TLSPath,
			CheckVersion:          MinRequiredLndVersion,
			BlockUntilChainSynced: true,
			ChainSyncCtx:          syncCtx,
		},
	)
	if err != nil {
		return fmt.Errorf("unable to connect to lnd: %w", err)
	}

	d.lndConn, err = lndclient.NewBasicConn(
		d.cfg.Lnd.Host, d.cfg.Lnd.TLSPath, d.cfg.Lnd.MacaroonDir,
		d.cfg.Network,
	)
	if err != nil {
		return fmt.Errorf("unable to connect to lnd: %w", err)
	}

	log.Infof("Connected to lnd node %v", d.lndServices.NodeAlias)

	return nil
}

// connectLedger dials the ethereum node and binds the swap contract.
func (d *Daemon) connectLedger() (*ethledger.Ledger, error) {
	ethCfg := d.cfg.Ethereum

	key, err := crypto.LoadECDSA(ethCfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("unable to load operator key: %w", err)
	}

	d.ethClient, err = ethclient.DialContext(d.mainCtx, ethCfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to ethereum node: %w",
			err)
	}

	chainID := big.NewInt(ethCfg.ChainID)
	if ethCfg.ChainID == 0 {
		chainID, err = d.ethClient.ChainID(d.mainCtx)
		if err != nil {
			return nil, fmt.Errorf("unable to query chain id: %w",
				err)
		}
	}

	log.Infof("Connected to ethereum chain %v, swap contract %v", chainID,
		ethCfg.Contract)

	return ethledger.NewLedger(&ethledger.Config{
		Backend:  d.ethClient,
		Contract: common.HexToAddress(ethCfg.Contract),
		Key:      key,
		ChainID:  chainID,
		GasLimit: ethCfg.GasLimit,
	})
}

// operatorFees returns the configured fee override or the fees registered on
// the contract.
func (d *Daemon) operatorFees(ledger *ethledger.Ledger) (*swap.FeePolicy,
	error) {

	if d.cfg.Policy.OverrideFees {
		return swap.NewFeePolicy(
			d.cfg.Policy.ConstantFee, d.cfg.Policy.LinearFee,
		), nil
	}

	return ledger.OperatorFees(d.mainCtx)
}

// cleanup closes all connections that were opened.
func (d *Daemon) cleanup() {
	if d.httpListener != nil && d.httpServer == nil {
		_ = d.httpListener.Close()
	}

	// Swaps may outlive a failed executor, they need the store and both
	// connections until they returned.
	if d.executor != nil {
		d.executor.WaitForFinished()
	}

	if d.store != nil {
		if err := d.store.Close(); err != nil {
			log.Errorf("Error closing swap store: %v", err)
		}
	}

	if d.ethClient != nil {
		d.ethClient.Close()
	}

	if d.lndConn != nil {
		if err := d.lndConn.Close(); err != nil {
			log.Errorf("Error closing lnd connection: %v", err)
		}
	}

	if d.lndServices != nil {
		d.lndServices.Close()
	}
}

// newRegistry returns the prometheus registry of the daemon with the go
// runtime and process collectors registered.
func newRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(
			collectors.ProcessCollectorOpts{},
		),
	)

	return registry
}

// openStore opens the configured swap store backend.
func openStore(cfg *Config, clock clock.Clock) (swapdb.Store, error) {
	switch cfg.DatabaseBackend {
	case DatabaseBackendMemory:
		log.Warnf("Using in-memory swap store, swap records are lost " +
			"on restart")

		return swapdb.NewMemoryStore(clock), nil

	case DatabaseBackendBolt:
		store, err := swapdb.NewBoltStore(cfg.boltDir(), clock)
		if err != nil {
			return nil, err
		}

		return store, nil

	case DatabaseBackendSqlite:
		store, err := swapdb.NewSqliteStore(cfg.Sqlite, clock)
		if err != nil {
			return nil, err
		}

		return store, nil

	case DatabaseBackendPostgres:
		store, err := swapdb.NewPostgresStore(cfg.Postgres, clock)
		if err != nil {
			return nil, err
		}

		return store, nil

	default:
		return nil, fmt.Errorf("unknown database backend %q",
			cfg.DatabaseBackend)
	}
}
