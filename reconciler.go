package portmapd

import (
	"context"
	"errors"
	"net/netip"

	"github.com/rs/zerolog"
)

// Reconciler applies desired port mappings against discovered gateways. It
// holds no state between passes; each Apply or Withdraw re-resolves every
// request from scratch.
type Reconciler struct {
	discoverer GatewayDiscoverer
	resolver   *AddressResolver
	log        zerolog.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger routes the reconciler's progress logging to l. The default is
// a no-op logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Reconciler) { r.log = l }
}

// NewReconciler builds a reconciler using the given discoverer. A nil
// enumerator selects SystemEnumerator.
func NewReconciler(discoverer GatewayDiscoverer, ifaces InterfaceEnumerator, opts ...Option) *Reconciler {
	if ifaces == nil {
		ifaces = SystemEnumerator{}
	}
	r := &Reconciler{
		discoverer: discoverer,
		resolver:   &AddressResolver{Interfaces: ifaces},
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Apply opens the requested mappings. Requests are processed strictly
// sequentially in input order and fail independently: one request's
// failure never aborts the batch, and the returned outcomes match the
// input order. The context is checked between requests only; a control
// call already in flight runs to its own timeout.
func (r *Reconciler) Apply(ctx context.Context, requests []MappingRequest) []Outcome {
	outcomes := make([]Outcome, 0, len(requests))
	for _, req := range requests {
		if err := ctx.Err(); err != nil {
			outcomes = append(outcomes, Outcome{Request: req, Err: err})
			continue
		}
		outcomes = append(outcomes, Outcome{Request: req, Err: r.applyOne(ctx, req)})
	}
	return outcomes
}

// Withdraw closes the requested mappings, best-effort: removal errors
// (including mappings that were never added) are logged and recorded as
// success, since exit cleanup must not fail loudly for ports that may
// never have been opened. Discovery failures still count as failures; with
// no reachable gateway there is nothing to be best-effort about.
func (r *Reconciler) Withdraw(ctx context.Context, requests []MappingRequest) []Outcome {
	outcomes := make([]Outcome, 0, len(requests))
	for _, req := range requests {
		if err := ctx.Err(); err != nil {
			outcomes = append(outcomes, Outcome{Request: req, Err: err})
			continue
		}
		outcomes = append(outcomes, Outcome{Request: req, Err: r.withdrawOne(ctx, req)})
	}
	return outcomes
}

func (r *Reconciler) applyOne(ctx context.Context, req MappingRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	gw, bind, err := r.resolveGateway(ctx, req.Address)
	if err != nil {
		r.log.Warn().Err(err).Stringer("mapping", req).Msg("gateway resolution failed")
		return err
	}

	err = gw.AddMapping(ctx, req.Protocol, req.Port, bind, req.Duration, req.Comment)
	switch {
	case err == nil:

	case errors.Is(err, ErrPortInUse):
		// Last writer wins: tear down whatever occupies the slot and
		// retry exactly once.
		r.log.Debug().Stringer("mapping", req).Msg("port already mapped, replacing")
		if rmErr := gw.RemoveMapping(ctx, req.Protocol, req.Port); rmErr != nil {
			return rmErr
		}
		err = gw.AddMapping(ctx, req.Protocol, req.Port, bind, req.Duration, req.Comment)

	case errors.Is(err, ErrOnlyPermanentLeases) && req.Duration != 0:
		r.log.Debug().Stringer("mapping", req).Msg("gateway rejects leases, retrying with permanent mapping")
		err = gw.AddMapping(ctx, req.Protocol, req.Port, bind, 0, req.Comment)
	}
	if err != nil {
		r.log.Warn().Err(err).Stringer("mapping", req).Msg("port mapping failed")
		return err
	}

	ev := r.log.Info().Stringer("mapping", req).Stringer("bind", bind)
	if ext, extErr := gw.ExternalIP(ctx); extErr == nil {
		ev = ev.Stringer("external_ip", ext)
	}
	ev.Msg("port mapping added")
	return nil
}

func (r *Reconciler) withdrawOne(ctx context.Context, req MappingRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	gw, _, err := r.resolveGateway(ctx, req.Address)
	if err != nil {
		r.log.Warn().Err(err).Stringer("mapping", req).Msg("gateway resolution failed")
		return err
	}

	if err := gw.RemoveMapping(ctx, req.Protocol, req.Port); err != nil {
		r.log.Warn().Err(err).Stringer("mapping", req).Msg("port removal failed (non-fatal)")
		return nil
	}
	r.log.Info().Stringer("mapping", req).Msg("port mapping removed")
	return nil
}

// resolveGateway expands the address spec into bind candidates and
// discovers against each in order. First successful discovery wins; with
// several matching interfaces the winner follows enumeration order, which
// is OS-defined and intentionally not tie-broken here.
func (r *Reconciler) resolveGateway(ctx context.Context, spec AddressSpec) (Gateway, netip.Addr, error) {
	candidates, err := r.resolver.Candidates(spec)
	if err != nil {
		return nil, netip.Addr{}, err
	}

	var lastErr error
	for _, bind := range candidates {
		gw, err := r.discoverer.Discover(ctx, bind)
		if err != nil {
			r.log.Debug().Err(err).Stringer("bind", bind).Msg("discovery attempt failed")
			lastErr = err
			continue
		}
		return gw, bind, nil
	}
	if lastErr == nil {
		lastErr = ErrNoGatewayFound
	}
	return nil, netip.Addr{}, &DiscoveryError{Spec: spec, Cause: lastErr}
}
