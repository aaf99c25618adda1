// Package serial adapts a physical serial port to link.Transport.
package serial

import (
	"time"

	goserial "go.bug.st/serial"
)

// DefaultReadTimeout bounds Read when Config leaves it unset.
const DefaultReadTimeout = 100 * time.Millisecond

// Config describes how to open a port.
type Config struct {
	Device      string
	BaudRate    int
	ReadTimeout time.Duration
}

// Port wraps an open serial port. Reads are timeout-bounded, writes
// block until the OS accepts the bytes.
type Port struct {
	port goserial.Port
}

// Open opens the device in 8N1 mode and applies the read timeout.
func Open(cfg Config) (*Port, error) {
	port, err := goserial.Open(cfg.Device, &goserial.Mode{BaudRate: cfg.BaudRate})
	if err != nil {
		return nil, err
	}
	timeout := cfg.ReadTimeout
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		port.Close()
		return nil, err
	}
	return &Port{port: port}, nil
}

// errTimeout reports an expired read deadline.
type errTimeout struct{}

func (errTimeout) Error() string { return "read timeout" }
func (errTimeout) Timeout() bool { return true }

// Read implements link.Transport. An expired deadline surfaces as a
// timeout error instead of the library's zero-byte success.
func (p *Port) Read(b []byte) (int, error) {
	n, err := p.port.Read(b)
	if n == 0 && err == nil {
		return 0, errTimeout{}
	}
	return n, err
}

// Write implements link.Transport.
func (p *Port) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

// ClearBuffers implements link.Transport.
func (p *Port) ClearBuffers() error {
	if err := p.port.ResetInputBuffer(); err != nil {
		return err
	}
	return p.port.ResetOutputBuffer()
}

// Close implements io.Closer.
func (p *Port) Close() error {
	return p.port.Close()
}
