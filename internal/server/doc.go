// Package server exposes a single fetch.Client over a small Fiber HTTP
// service so that several local tools can share one daemon session and one
// set of statistics. Calls into the client are serialized; diagnostics live
// under /-/ and are registered by the routes subpackage.
package server
