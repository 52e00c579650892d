package tbtcd

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/lightninglabs/tbtcswap"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

const (
	// errInvoiceNotProcessed is the only error detail the estimate
	// endpoint returns.
	errInvoiceNotProcessed = "Could not process invoice"

	// errInvoiceNotFound is the only error detail the invoice endpoint
	// returns.
	errInvoiceNotFound = "Invoice for this payment has not been generated"

	// requestTimeout bounds the handling time of a single request.
	requestTimeout = 30 * time.Second
)

// quoter answers the queries of the HTTP surface.
type quoter interface {
	EstimateClaim(ctx context.Context,
		invoice string) (*tbtcswap.Estimate, error)

	LookupInvoice(ctx context.Context, userAddress common.Address,
		hash lntypes.Hash) (string, error)
}

// alertSource returns the most recent fund risk alerts.
type alertSource interface {
	Alerts() []tbtcswap.Alert
}

type routerConfig struct {
	quoter        quoter
	alerts        alertSource
	gatherer      prometheus.Gatherer
	corsOrigins   []string
	ratePerMinute int
}

type errorResponse struct {
	Error string `json:"error"`
}

type invoiceResponse struct {
	Invoice string `json:"invoice"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// newRouter returns the handler of the HTTP query surface.
func newRouter(cfg *routerConfig) http.Handler {
	mux := chi.NewRouter()

	mux.Use(middleware.RealIP)
	mux.Use(requestLogger)
	mux.Use(middleware.Recoverer)
	mux.Use(middleware.Timeout(requestTimeout))

	if cfg.ratePerMinute > 0 {
		mux.Use(httprate.LimitByIP(cfg.ratePerMinute, time.Minute))
	}

	s := &queryServer{
		quoter: cfg.quoter,
		alerts: cfg.alerts,
	}

	mux.Get("/ln2tbtc/lockTime/{invoice}", s.estimate)
	mux.Get("/tbtc2ln/invoice/{userAddress}/{paymentHash}", s.invoice)
	mux.Get("/alerts", s.listAlerts)
	mux.Get("/health", s.health)
	mux.Method(
		http.MethodGet, "/metrics",
		promhttp.HandlerFor(cfg.gatherer, promhttp.HandlerOpts{}),
	)

	origins := cfg.corsOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet},
	}).Handler(mux)
}

// requestLogger logs every request at the debug level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		log.Debugf("%v %v from %v: status=%v bytes=%v duration=%v",
			r.Method, r.URL.Path, r.RemoteAddr, ww.Status(),
			ww.BytesWritten(), time.Since(start))
	})
}

type queryServer struct {
	quoter quoter
	alerts alertSource
}

// estimate returns the routing fee and the minimum ledger lock time for an
// invoice the operator would be asked to pay.
func (s *queryServer) estimate(w http.ResponseWriter, r *http.Request) {
	invoice := chi.URLParam(r, "invoice")

	estimate, err := s.quoter.EstimateClaim(r.Context(), invoice)
	if err != nil {
		log.Debugf("Unable to estimate invoice: %v", err)
		writeJSON(w, http.StatusBadRequest, &errorResponse{
			Error: errInvoiceNotProcessed,
		})

		return
	}

	writeJSON(w, http.StatusOK, estimate)
}

// invoice returns the hold invoice generated for a lock swap.
func (s *queryServer) invoice(w http.ResponseWriter, r *http.Request) {
	notFound := func() {
		writeJSON(w, http.StatusNotFound, &errorResponse{
			Error: errInvoiceNotFound,
		})
	}

	addrStr := chi.URLParam(r, "userAddress")
	if !common.IsHexAddress(addrStr) {
		notFound()
		return
	}

	hash, err := lntypes.MakeHashFromStr(chi.URLParam(r, "paymentHash"))
	if err != nil {
		notFound()
		return
	}

	invoice, err := s.quoter.LookupInvoice(
		r.Context(), common.HexToAddress(addrStr), hash,
	)
	if err != nil {
		log.Debugf("Invoice lookup for %v failed: %v", hash, err)
		notFound()

		return
	}

	writeJSON(w, http.StatusOK, &invoiceResponse{Invoice: invoice})
}

func (s *queryServer) listAlerts(w http.ResponseWriter, _ *http.Request) {
	alerts := s.alerts.Alerts()
	if alerts == nil {
		alerts = []tbtcswap.Alert{}
	}

	writeJSON(w, http.StatusOK, alerts)
}

func (s *queryServer) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, &healthResponse{
		Status:  "ok",
		Version: tbtcswap.Version(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("Unable to write response: %v", err)
	}
}
