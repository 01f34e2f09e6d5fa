// Package sampler contains the acquisition schedulers: workers that own a
// protocol client, run the sampling cadence, timestamp samples and hand them
// to the session over a bounded channel.
//
// Three samplers are provided. MemSampler polls target memory addresses over
// the GDB remote protocol at a fixed rate. RTTSampler streams a scope RTT
// channel through OpenOCD and decodes its frames. FakeSampler synthesizes
// sine waves for demos and tests.
//
// All samplers share the same lifecycle, managed by StateMgr:
//
//	Idle -> Connecting -> Sampling <-> Paused -> Stopping -> Idle
//
// plus the terminal Faulted state entered on unrecoverable protocol errors.
package sampler
