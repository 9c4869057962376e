// Package cache defines the shared, disk-backed blob store that sits between
// the fetch client and the cache daemon. Blobs live at
// <CachePath>/<namespace>/<hash[0:2]>/<hash[2:]>/<rev> in decompressed form.
// The tree is shared by unrelated users: directories are widened to setgid
// group-writable (02775) and blobs to group-writable (0664) whenever the
// current user owns them, and writes go through temp file + rename so racing
// writers of the same key simply overwrite each other with identical bytes.
// The store also maintains the append-only `repos` registry consumed by
// external cache GC tooling.
package cache
