// Package cache provides a generic LRU cache with an eviction callback.
//
// framekit uses it to de-duplicate sampler descriptors: identical sampler
// descriptions share one descriptor slot, and a slot pushed out of the
// cache is handed to the eviction callback, which retires it through the
// memory handler.
//
//	samplers := cache.New[hw.SamplerDesc, descriptor.Handle](128, release)
//	h, err := samplers.GetOrCreate(desc, func() (descriptor.Handle, error) {
//		return create(desc)
//	})
//
// # Thread Safety
//
// LRU is safe for concurrent use. It should not be copied after creation
// (it contains a mutex).
package cache
