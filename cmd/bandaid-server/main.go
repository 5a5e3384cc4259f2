// Command bandaid-server is the BandAid backend: settings documents per
// account and the collaboration relay.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"bandaid/collab"
	"bandaid/server"
	"bandaid/store"
)

func main() {
	addr := flag.String("addr", ":3000", "HTTP listen address")
	dataDir := flag.String("data", defaultDataDir(), "Directory holding the settings documents")
	staleAfter := flag.Duration("stale", 60*time.Second, "Drop collaboration peers silent for this long")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := collab.NewHub()
	hub.StaleAfter = *staleAfter
	g, ctx := errgroup.WithContext(ctx)
	srv := &http.Server{
		Addr:              *addr,
		Handler:           server.New(store.NewDocuments(*dataDir), hub),
		ReadHeaderTimeout: 10 * time.Second,
		// event streams end with the server
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	g.Go(func() error {
		hub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		log.Printf("BandAid server starting on %s", *addr)
		log.Printf("Settings documents in %s", *dataDir)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdown)
	})

	if err := g.Wait(); err != nil {
		log.Fatal(err)
	}
	log.Printf("Server stopped")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "bandaid-data"
	}
	return filepath.Join(home, ".local", "share", "bandaid")
}
