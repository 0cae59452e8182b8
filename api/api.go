// Package api exposes the node over HTTP: the commitment tree and its
// membership paths, the transaction builder, the proof bundle queue, the
// formatted verification keys and the spent nullifier set.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/vocdoni/aegis/circuits/vkey"
	"github.com/vocdoni/aegis/log"
	"github.com/vocdoni/aegis/nullifiers"
	stg "github.com/vocdoni/aegis/storage"
	"github.com/vocdoni/aegis/transaction"
	"github.com/vocdoni/aegis/tree"
)

// APIConfig type represents the configuration for the API HTTP server.
// Storage, Tree and Builder are required. Keys and Spent are optional.
// WritableTree enables the tree leaves endpoint, for nodes that do not
// sync the tree from the chain.
type APIConfig struct {
	Host         string
	Port         int
	Storage      *stg.Storage
	Tree         *tree.Tree
	Builder      *transaction.Builder
	Keys         *vkey.Keys
	Spent        *nullifiers.SpentSet
	WritableTree bool
}

// API type represents the API HTTP server.
type API struct {
	router       *chi.Mux
	server       *http.Server
	storage      *stg.Storage
	tree         *tree.Tree
	builder      *transaction.Builder
	keys         *vkey.Keys
	spent        *nullifiers.SpentSet
	writableTree bool
}

// New creates a new API instance with the given configuration and starts
// the HTTP server in the background.
func New(conf *APIConfig) (*API, error) {
	a, err := newAPI(conf)
	if err != nil {
		return nil, err
	}
	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", conf.Host, conf.Port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s:%d: %w", conf.Host, conf.Port, err)
	}
	a.server = &http.Server{
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infow("starting API server", "address", listener.Addr().String())
		if err := a.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to start the API server: %v", err)
		}
	}()
	return a, nil
}

func newAPI(conf *APIConfig) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("missing API configuration")
	}
	if conf.Storage == nil {
		return nil, fmt.Errorf("missing storage instance")
	}
	if conf.Tree == nil {
		return nil, fmt.Errorf("missing tree instance")
	}
	if conf.Builder == nil {
		return nil, fmt.Errorf("missing transaction builder")
	}
	a := &API{
		storage:      conf.Storage,
		tree:         conf.Tree,
		builder:      conf.Builder,
		keys:         conf.Keys,
		spent:        conf.Spent,
		writableTree: conf.WritableTree,
	}
	a.initRouter()
	return a, nil
}

// Router returns the chi router for testing purposes
func (a *API) Router() *chi.Mux {
	return a.router
}

// Close stops the HTTP server, waiting for the in flight requests until ctx
// is done.
func (a *API) Close(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}

// registerHandlers registers all the API handlers.
func (a *API) registerHandlers() {
	log.Infow("register handler", "endpoint", PingEndpoint, "method", "GET")
	a.router.Get(PingEndpoint, func(w http.ResponseWriter, r *http.Request) {
		httpWriteOK(w)
	})
	log.Infow("register handler", "endpoint", TreeEndpoint, "method", "GET")
	a.router.Get(TreeEndpoint, a.treeInfo)
	log.Infow("register handler", "endpoint", TreeLeavesEndpoint, "method", "POST")
	a.router.Post(TreeLeavesEndpoint, a.insertLeaves)
	log.Infow("register handler", "endpoint", TreeProofEndpoint, "method", "GET")
	a.router.Get(TreeProofEndpoint, a.treeProof)
	log.Infow("register handler", "endpoint", TransactionsEndpoint, "method", "POST")
	a.router.Post(TransactionsEndpoint, a.newTransaction)
	log.Infow("register handler", "endpoint", TransactionEndpoint, "method", "GET")
	a.router.Get(TransactionEndpoint, a.transaction)
	log.Infow("register handler", "endpoint", SwapEndpoint, "method", "POST")
	a.router.Post(SwapEndpoint, a.newSwap)
	log.Infow("register handler", "endpoint", VKeyEndpoint, "method", "GET")
	a.router.Get(VKeyEndpoint, a.verificationKey)
	log.Infow("register handler", "endpoint", NullifierEndpoint, "method", "GET")
	a.router.Get(NullifierEndpoint, a.nullifier)
}

// initRouter creates the router with all the routes and middleware.
func (a *API) initRouter() {
	a.router = chi.NewRouter()
	a.router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}).Handler)
	a.router.Use(middleware.Logger)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Throttle(100))
	a.router.Use(middleware.ThrottleBacklog(5000, 40000, 60*time.Second))
	// proving runs inside the request
	a.router.Use(middleware.Timeout(5 * time.Minute))

	a.registerHandlers()
}
