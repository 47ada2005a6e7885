// Package daemon runs the reconciliation loop: it re-reads the mapping
// config on a fixed interval and applies it through the reconciler, with
// optional port cleanup on exit. Failed mappings need no explicit retry
// logic here; the next pass re-resolves the whole request list from
// scratch, which converges on the desired state by itself.
package daemon

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jpillora/backoff"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	portmapd "github.com/go-i2p/go-portmap-daemon"
	"github.com/go-i2p/go-portmap-daemon/config"
	"github.com/go-i2p/go-portmap-daemon/health"
	"github.com/go-i2p/go-portmap-daemon/metrics"
)

// Reconciler is the portion of portmapd.Reconciler the daemon drives.
type Reconciler interface {
	Apply(ctx context.Context, requests []portmapd.MappingRequest) []portmapd.Outcome
	Withdraw(ctx context.Context, requests []portmapd.MappingRequest) []portmapd.Outcome
}

// Options configure a Daemon.
type Options struct {
	// Source supplies the desired mappings, re-read every pass.
	Source *config.Source
	// Interval between reconciliation passes. Defaults to one minute.
	Interval time.Duration
	// Oneshot runs a single pass and exits.
	Oneshot bool
	// CloseOnExit withdraws the configured mappings when the daemon
	// shuts down.
	CloseOnExit bool
	// OnlyClose skips reconciliation entirely and just withdraws the
	// configured mappings once.
	OnlyClose bool
	// HTTPAddr, when set, serves /metrics, /healthz and /readyz.
	HTTPAddr string
	// ShutdownGrace bounds the exit-time withdrawal once the run
	// context is gone. Defaults to 30 seconds.
	ShutdownGrace time.Duration
}

// Daemon owns the pass loop and the optional observability listener.
type Daemon struct {
	rec  Reconciler
	opts Options
}

func New(rec Reconciler, opts Options) *Daemon {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = 30 * time.Second
	}
	return &Daemon{rec: rec, opts: opts}
}

// Run blocks until the context is cancelled, the single pass of oneshot or
// only-close mode completes, or the observability listener fails.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	if d.opts.HTTPAddr != "" {
		mux := http.NewServeMux()
		metrics.Register(mux)
		health.Register(mux)
		srv := &http.Server{
			Addr:              d.opts.HTTPAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.Info().Str("addr", d.opts.HTTPAddr).Msg("starting metrics/health server")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		defer cancel()
		return d.loop(ctx)
	})
	return g.Wait()
}

func (d *Daemon) loop(ctx context.Context) error {
	if d.opts.OnlyClose {
		d.withdraw(ctx)
		return nil
	}

	// Passes that fail outright are retried on a jittered backoff
	// instead of waiting out the full interval.
	retry := &backoff.Backoff{
		Min:    time.Second,
		Max:    d.opts.Interval,
		Factor: 2,
		Jitter: true,
	}
	if retry.Max < retry.Min {
		retry.Max = retry.Min
	}

running:
	for {
		ok := d.pass(ctx)
		health.SetReady(true)

		if d.opts.Oneshot || ctx.Err() != nil {
			break
		}
		wait := d.opts.Interval
		if ok {
			retry.Reset()
		} else {
			wait = retry.Duration()
			log.Warn().Dur("retry_in", wait).Msg("pass failed, retrying early")
		}
		select {
		case <-ctx.Done():
			break running
		case <-time.After(wait):
		}
	}

	if d.opts.CloseOnExit {
		// The run context is typically already cancelled here; the
		// cleanup gets its own deadline instead.
		exitCtx, cancel := context.WithTimeout(context.Background(), d.opts.ShutdownGrace)
		defer cancel()
		log.Info().Msg("closing configured ports on exit")
		d.withdraw(exitCtx)
	}
	return nil
}

// pass loads the config and applies it once. It reports false when the
// pass achieved nothing (unreadable config, or every request failing),
// which triggers the early-retry backoff.
func (d *Daemon) pass(ctx context.Context) bool {
	start := time.Now()
	requests, err := d.opts.Source.Load()
	if err != nil {
		log.Error().Err(err).Str("file", d.opts.Source.Path()).Msg("cannot load mapping config")
		metrics.PassesTotal.WithLabelValues("failure").Inc()
		return false
	}

	outcomes := d.rec.Apply(ctx, requests)
	failed := recordOutcomes("apply", outcomes)
	metrics.PassDuration.Observe(time.Since(start).Seconds())

	switch {
	case failed == 0:
		metrics.PassesTotal.WithLabelValues("success").Inc()
	case failed == len(outcomes):
		metrics.PassesTotal.WithLabelValues("failure").Inc()
	default:
		metrics.PassesTotal.WithLabelValues("partial").Inc()
	}
	log.Info().
		Int("mappings", len(outcomes)).
		Int("failed", failed).
		Dur("elapsed", time.Since(start)).
		Msg("reconciliation pass complete")
	return failed == 0 || failed < len(outcomes)
}

func (d *Daemon) withdraw(ctx context.Context) {
	requests, err := d.opts.Source.Load()
	if err != nil {
		log.Error().Err(err).Str("file", d.opts.Source.Path()).Msg("cannot load mapping config")
		return
	}
	outcomes := d.rec.Withdraw(ctx, requests)
	failed := recordOutcomes("withdraw", outcomes)
	log.Info().Int("mappings", len(outcomes)).Int("failed", failed).Msg("port withdrawal complete")
}

func recordOutcomes(mode string, outcomes []portmapd.Outcome) int {
	failed := 0
	for _, o := range outcomes {
		result := "success"
		if o.Failed() {
			failed++
			result = "failure"
		}
		metrics.MappingsTotal.WithLabelValues(mode, result).Inc()
	}
	return failed
}
