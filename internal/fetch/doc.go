// Package fetch orchestrates a prefetch end to end: it filters entries that
// are already available, asks the cache daemon for the rest, falls back to the
// remote origin for daemon misses, persists the blobs into the shared cache
// and keeps per-client statistics.
package fetch
