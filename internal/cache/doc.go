// Package cache defines the disk tier that persists fetched assets as
// <CacheDir>/<namespace>/<key> files. The store exposes exists/read/write
// primitives with safe semantics (temp file + rename) so a blob is either fully
// replaced or untouched. The asset resolver depends on this package to look up
// previously downloaded images and structured catalog data before going to the
// network, and to promote freshly fetched bytes afterwards.
package cache
