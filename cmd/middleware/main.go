// Command middleware runs the S2C acoustic-modem middleware: it loads an
// INI configuration file, wires the Dispatcher/Message Handler/Interrupt
// Dispatcher/File Handler components together, and serves the client
// command and interrupt TCP ports until killed or told to shut down.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"

	"github.com/oceanic-systems/s2c-middleware/config"
	"github.com/oceanic-systems/s2c-middleware/middleware"
)

func init() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

var (
	configPath = flag.String("config", "/etc/s2c-middleware/middleware.ini", "Path to the middleware INI configuration file")
	promPort   = flag.String("prom", ":9090", "Prometheus metrics export address and port")
)

func main() {
	flag.Parse()
	flagx.ArgsFromEnv(flag.CommandLine)

	middleware.Version = version

	cfg, err := config.Load(*configPath)
	rtx.Must(err, "could not load configuration from %s", *configPath)

	promSrv := prometheusx.MustStartPrometheus(*promPort)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("middleware: received %s, shutting down", sig)
		cancel()
	}()

	m := middleware.New(cfg)
	if err := m.Run(ctx); err != nil {
		cancel()
		promSrv.Shutdown(context.Background())
		log.Printf("middleware: exited with error: %v", err)
		os.Exit(1)
	}

	cancel()
	promSrv.Shutdown(context.Background())
}
