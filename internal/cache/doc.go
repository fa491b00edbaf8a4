// Package cache provides a bounded LRU cache with an eviction callback.
//
// The callback runs for every value that leaves the cache (eviction,
// replacement, Delete, Clear), which lets the cache own values that hold
// external resources such as GPU pipelines.
//
//	c := cache.New[string, *Pipeline](32, func(_ string, p *Pipeline) { p.Destroy() })
//	p, err := c.GetOrCreate(name, func() (*Pipeline, error) { return compile(name) })
//
// # Thread Safety
//
// Cache is safe for concurrent use and must not be copied after creation.
// The eviction callback runs with the cache lock held and must not call
// back into the cache.
package cache
