// Package hw defines the hardware abstraction consumed by framekit.
//
// The interfaces in this package model an explicit GPU API: queues that
// execute pre-recorded command lists, fences carrying 64-bit values,
// recording allocators that back command-list memory, and descriptor heaps
// addressed by CPU and GPU addresses. They carry no lifetime policy of their
// own; framekit layers completion tracking, recycling and deferred
// destruction on top.
//
// Two implementations ship with the module:
//   - hw/sim: a deterministic software timeline used by tests and the demo
//   - hw/halgpu: a backend on github.com/gogpu/wgpu/hal
//
// Object lifecycle:
//   - Objects are created via Device.Create* methods
//   - Objects are released via their Destroy method
//   - Destroying an object the GPU still references is undefined behavior;
//     callers route destruction through framekit's memory handler
package hw
