package link

import "io"

// Transport is a duplex byte stream over the physical link.
//
// Read must be bounded by a timeout and report expiry with an error
// satisfying os.IsTimeout; the inbound pipeline relies on that bound to
// notice cancellation. Write may block. Read and Write are called from
// different goroutines and must tolerate that.
type Transport interface {
	io.Reader
	io.Writer
	// ClearBuffers discards bytes pending in both directions.
	ClearBuffers() error
}
