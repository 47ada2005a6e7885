// Command portmapd keeps a set of router port mappings in sync with a
// config file, using UPnP IGD with a NAT-PMP fallback.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	portmapd "github.com/go-i2p/go-portmap-daemon"
	"github.com/go-i2p/go-portmap-daemon/config"
	"github.com/go-i2p/go-portmap-daemon/daemon"
)

func main() {
	var (
		file             = flag.String("file", "", "mapping config file, or - for stdin (required)")
		format           = flag.String("format", "csv", "config format: csv or json")
		csvDelimiter     = flag.String("csv-delimiter", ";", "field delimiter for CSV input")
		interval         = flag.Uint("interval", 60, "seconds between reconciliation passes")
		oneshot          = flag.Bool("oneshot", false, "run a single pass and exit")
		closePortsOnExit = flag.Bool("close-ports-on-exit", false, "withdraw the configured mappings on shutdown")
		onlyClosePorts   = flag.Bool("only-close-ports", false, "withdraw the configured mappings and exit")
		httpAddr         = flag.String("http-addr", "", "listen address for /metrics and /healthz (disabled when empty)")
		discoveryTimeout = flag.Duration("discovery-timeout", portmapd.DefaultDiscoveryTimeout, "per-candidate gateway discovery timeout")
		debug            = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()
	setLogger(*debug)

	if err := run(*file, *format, *csvDelimiter, *interval, *oneshot, *closePortsOnExit, *onlyClosePorts, *httpAddr, *discoveryTimeout); err != nil {
		log.Fatal().Err(err).Msg("portmapd exited")
	}
}

func run(file, format, csvDelimiter string, interval uint, oneshot, closePortsOnExit, onlyClosePorts bool, httpAddr string, discoveryTimeout time.Duration) error {
	if file == "" {
		return fmt.Errorf("-file is required")
	}
	fmtVal, err := config.ParseFormat(format)
	if err != nil {
		return err
	}
	delim, n := utf8.DecodeRuneInString(csvDelimiter)
	if n == 0 || delim == utf8.RuneError {
		return fmt.Errorf("-csv-delimiter must be a single character")
	}

	source, err := config.NewSource(file, fmtVal, delim)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rec := portmapd.NewReconciler(
		portmapd.NewDiscoverer(discoveryTimeout),
		nil,
		portmapd.WithLogger(log.Logger),
	)

	d := daemon.New(rec, daemon.Options{
		Source:      source,
		Interval:    time.Duration(interval) * time.Second,
		Oneshot:     oneshot,
		CloseOnExit: closePortsOnExit,
		OnlyClose:   onlyClosePorts,
		HTTPAddr:    httpAddr,
	})
	return d.Run(ctx)
}

func setLogger(debug bool) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if debug || os.Getenv("DEBUG") != "" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}
