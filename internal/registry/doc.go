// Package registry tracks live delivery channels, enforcing at most one open
// channel per subscriber with a replace-on-reconnect policy. The registry is
// the only process-wide mutable structure in the service; everything behind
// it is keyed per subscriber, so it can be swapped for a distributed backing
// store without touching the dispatcher.
package registry
