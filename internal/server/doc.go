// Package server implements the UDP ingress for anchor event packets and the HTTP API.
// The UDP side decodes packets with a single reader so the tracking session sees events
// in arrival order; the HTTP side exposes overlay state, statistics, announcement
// controls and Prometheus metrics.
package server
