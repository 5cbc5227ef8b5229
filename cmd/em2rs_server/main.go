// Command em2rs_server polls the configured EM2RS drives and serves their
// status and a small command API over HTTP and websocket.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/w1xm/em2rs/em2rs"
	"github.com/w1xm/em2rs/internal/config"
	"github.com/w1xm/em2rs/internal/modbus"
	"github.com/w1xm/em2rs/simulator"
)

var (
	configPath = flag.String("config", "em2rs.yaml", "YAML bus and motor configuration")
	addr       = flag.String("addr", "127.0.0.1:8503", "address to listen on")
	staticDir  = flag.String("static_dir", "", "directory containing static files")
	interval   = flag.Duration("interval", 200*time.Millisecond, "status poll interval")
	setup      = flag.Bool("setup", false, "write each motor's configuration on startup")
	verbose    = flag.Bool("v", false, "log every register request")
)

// every wraps poll so it runs at most once per interval.
func every(interval time.Duration, poll func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := poll(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
		return nil
	}
}

func main() {
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	var (
		dial  func(slave byte) em2rs.Transport
		watch func(ctx context.Context, poll func(context.Context) error) error
	)
	if cfg.Bus.Simulate {
		var ids []byte
		for _, m := range cfg.Motors {
			ids = append(ids, m.Slave)
		}
		sim := simulator.New(ids...)
		go sim.Run(ctx)
		dial = sim.ContextSlave
		watch = func(ctx context.Context, poll func(context.Context) error) error {
			for ctx.Err() == nil {
				if err := poll(ctx); err != nil && ctx.Err() == nil {
					log.Printf("polling: %v", err)
					time.Sleep(time.Second)
				}
			}
			return ctx.Err()
		}
	} else {
		mc := cfg.Bus.Modbus()
		if *verbose {
			mc.Logger = log.New(os.Stderr, "rtu: ", log.Lmicroseconds)
		}
		bus, err := modbus.Open(mc)
		if err != nil {
			log.Fatal(err)
		}
		defer bus.Close()
		dial = func(slave byte) em2rs.Transport { return bus.ContextSlave(slave) }
		watch = bus.Watch
	}

	server, err := NewServer(cfg, dial)
	if err != nil {
		log.Fatal(err)
	}
	if *setup {
		for _, m := range server.motors {
			if err := m.cfg.Apply(ctx, m.c); err != nil {
				log.Printf("setting up %s: %v", m.cfg.Name, err)
			}
		}
	}
	go watch(ctx, every(*interval, server.poll))

	r := server.Router()
	if *staticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(*staticDir)))
	}
	srv := &http.Server{
		Handler:      r,
		Addr:         *addr,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
