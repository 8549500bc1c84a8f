// prefsrv serves a secure preferences store read-only over HTTP, so
// that other hosts can open it through an http location.
package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/chrisrueger/equinox/common/location"
	"github.com/chrisrueger/equinox/common/serve"
	"github.com/chrisrueger/equinox/common/util"
	"github.com/go-logr/stdr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func storeLocation(s string) (location.Location, error) {
	if s != "" {
		return location.Parse(s)
	}

	home, _ := os.UserHomeDir()
	return location.Resolver{Home: home}.DefaultLocation()
}

func main() {
	address := flag.String("a", "127.0.0.1:8443", "listening address")
	storeFile := flag.String("f", "", "store file (default: ~/"+location.DefaultFileName+")")
	keyFile := flag.String("k", "", "TLS key")
	certFile := flag.String("c", "", "TLS certificate")
	verbose := flag.Bool("v", false, "log every request")
	doVersion := flag.Bool("V", false, "display version and exit")
	flag.Parse()

	if *doVersion {
		log.Println("prefsrv version", util.VersionString())
		os.Exit(0)
	}

	if *verbose {
		stdr.SetVerbosity(1)
	}
	logger := stdr.New(log.New(os.Stderr, "", log.LstdFlags)).WithName("prefsrv")

	loc, err := storeLocation(*storeFile)
	if err != nil {
		log.Fatal(err)
	}
	if !loc.IsFile() {
		log.Fatalf("%s is not a file location", loc)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	router := serve.NewRouter(serve.Config{
		Storage:  location.NewStorage(nil, location.WithLogger(logger)),
		Location: loc,
		Gatherer: reg,
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:              *address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("serving store", "location", loc.String(), "address", *address)
	if *keyFile != "" && *certFile != "" {
		log.Fatal(srv.ListenAndServeTLS(*certFile, *keyFile))
	}
	log.Fatal(srv.ListenAndServe())
}
