// Package assetcache resolves asset keys (image paths, structured catalog
// entries) to decoded values through three tiers: an in-process memory map, the
// disk store from package cache, and a remote Source. A Resolver deduplicates
// concurrent requests for the same key so at most one FetchWorker runs per key,
// and a single coordinator goroutine promotes results (disk, then memory) and
// invokes every registered callback once, in registration order.
//
// Failed fetches are logged and dropped: callbacks registered through Resolve
// never fire for that attempt and a new Resolve call is required to retry.
// Await offers a future-style variant that also observes the terminal error.
package assetcache
