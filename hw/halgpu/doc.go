// Package halgpu implements the hw device interfaces on gogpu/wgpu hal.
//
// The package translates the explicit, D3D12-shaped model of hw onto hal:
//
//   - the direct, compute and copy queues share the single hal queue
//   - descriptor heaps are CPU-side; tables become bind groups when a
//     command list is closed
//   - upload and readback buffers are backed by a CPU shadow written with
//     Queue.WriteBuffer and read with Queue.ReadBuffer
//   - swap chains are offscreen render targets
//
// Use Open to create a device on a compiled-in backend, FromProvider to
// share the device of a gogpu host, or New to wrap an existing hal device:
//
//	dev, err := halgpu.Open(gputypes.BackendVulkan)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer dev.Destroy()
//
//	fk, err := framekit.New(dev, hw.SurfaceDesc{Width: 800, Height: 600})
package halgpu
