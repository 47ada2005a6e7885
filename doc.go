// Package portmapd reconciles a desired set of port mappings against NAT
// gateways discovered on the local network, using UPnP IGD with a NAT-PMP
// fallback.
//
// The package is stateless across reconciliation passes: every call to
// Reconciler.Apply or Reconciler.Withdraw re-resolves bind addresses and
// rediscovers gateways from scratch, so dynamic addressing and rebooted
// routers heal on the next pass without any bookkeeping here.
package portmapd
