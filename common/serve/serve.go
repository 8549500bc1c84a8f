// Package serve exposes a store file over HTTP, read-only, so that
// other processes can open it through an http location.
package serve

import (
	"net/http"

	"github.com/chrisrueger/equinox/common/location"
	"github.com/chrisrueger/equinox/common/util"
	"github.com/go-logr/logr"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StorePath is the route serving the store file.
const StorePath = "/store"

// Config describes what a router serves.
type Config struct {
	// Storage reads the store file.
	Storage *location.Storage

	// Location is the store file.
	Location location.Location

	// Gatherer backs /metrics; nil disables the route.
	Gatherer prometheus.Gatherer

	Logger logr.Logger
}

type server struct {
	storage *location.Storage
	loc     location.Location
	log     logr.Logger
}

func (srv *server) getStore(w http.ResponseWriter, r *http.Request) {
	data, err := srv.storage.Read(r.Context(), srv.loc)
	if errors.Is(err, location.ErrNotExist) {
		srv.log.V(1).Info("store requested but missing", "location", srv.loc.String())
		http.NotFound(w, r)
		return
	} else if err != nil {
		srv.log.Error(err, "failed to read store", "location", srv.loc.String())
		http.Error(w, "failed to read store", http.StatusInternalServerError)
		return
	}
	defer util.Zero(data)

	srv.log.V(1).Info("serving store", "remote", r.RemoteAddr, "bytes", len(data))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}

func getVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(util.VersionString() + "\n"))
}

// NewRouter returns the routes for cfg. Nothing it serves modifies
// the store.
func NewRouter(cfg Config) *mux.Router {
	log := cfg.Logger
	if log.GetSink() == nil {
		log = logr.Discard()
	}

	storage := cfg.Storage
	if storage == nil {
		storage = location.NewStorage(nil, location.WithLogger(log))
	}

	srv := &server{storage: storage, loc: cfg.Location, log: log}

	router := mux.NewRouter()
	router.HandleFunc(StorePath, srv.getStore).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc("/version", getVersion).Methods(http.MethodGet)
	if cfg.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	return router
}
