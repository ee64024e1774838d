// Package cache defines the disk-backed offline cache. Entries live under
// StoragePath/buckets/<bucket>/<path> and are written with temp file + rename.
// The bucket of an entry is derived from its URL extension at lookup time and
// is never stored alongside the entry, so version changes only need whole
// bucket deletion. The worker package is the sole writer.
package cache
