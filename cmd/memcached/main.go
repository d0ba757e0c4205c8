// Command memcached runs the server: a striped LRU cache behind an
// elastic worker pool, served over a line-oriented get/set/delete
// protocol.
package main

import (
	"flag"
	"net"
	"os"

	"github.com/skipor/memcached"
	"github.com/skipor/memcached/cache"
	"github.com/skipor/memcached/config"
	"github.com/skipor/memcached/log"
	"github.com/skipor/memcached/pool"
)

func main() {
	cfg := config.Default()
	cfg.BindFlags(flag.CommandLine)
	flag.Parse()

	l := log.NewLogger(cfg.LogLevel, os.Stderr)

	storage := cache.NewStriped(cfg.TotalCacheBytes, cfg.StripeCount, l)

	workers := pool.New(cfg.PoolLowWatermark, cfg.PoolHighWatermark, cfg.PoolMaxQueue, cfg.PoolIdleTimeout, l)
	workers.Start()
	defer workers.Stop(true)

	handler := memcached.NewHandler(storage, workers)

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		l.Fatalf("listen on %s: %v", cfg.ListenAddr, err)
	}
	l.Infof("listening on %s", ln.Addr())

	meta := &memcached.ConnMeta{
		Handler:     handler,
		MaxItemSize: cfg.MaxItemSize,
	}

	serve(l, ln, meta)
}

// serve accepts connections forever, handing each to its own goroutine.
// This is the plain net.Listener accept loop SPEC_FULL.md opts for in
// place of a from-scratch epoll reactor.
func serve(l log.Logger, ln net.Listener, meta *memcached.ConnMeta) {
	for {
		rwc, err := ln.Accept()
		if err != nil {
			l.Errorf("accept: %v", err)
			continue
		}
		go memcached.Serve(l, meta, rwc)
	}
}
