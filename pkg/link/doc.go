// Package link provides the MSP link engine.
package link

// The engine moves bytes between a half-duplex serial transport and
// decoded MSP frames with two pipelines: an inbound reader feeding the
// parser, and an outbound writer throttled by a credit counter. The
// flight controller offers no hardware flow control, so each outbound
// frame spends one credit and each decoded inbound frame returns one;
// the counter bounds how far the writer can run ahead of the device.
//
// Producer: caller (requests), flight controller (telemetry)
// Consumer: flight controller (requests), caller (telemetry)
