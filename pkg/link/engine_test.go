package link

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/amfern/msplink/pkg/msp"
)

type timeoutError struct{}

func (timeoutError) Error() string { return "i/o timeout" }
func (timeoutError) Timeout() bool { return true }

// fakeTransport serves injected chunks to Read and reports successful
// writes on a chan. Scripted write errors are consumed one per attempt.
type fakeTransport struct {
	readCh   chan []byte
	writes   chan []byte
	writeErr chan error
	cleared  bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		readCh:   make(chan []byte, 16),
		writes:   make(chan []byte, 16),
		writeErr: make(chan error, 16),
	}
}

func (t *fakeTransport) Read(p []byte) (int, error) {
	select {
	case chunk := <-t.readCh:
		return copy(p, chunk), nil
	case <-time.After(5 * time.Millisecond):
		return 0, timeoutError{}
	}
}

func (t *fakeTransport) Write(p []byte) (int, error) {
	select {
	case err := <-t.writeErr:
		return 0, err
	default:
	}
	b := make([]byte, len(p))
	copy(b, p)
	t.writes <- b
	return len(p), nil
}

func (t *fakeTransport) ClearBuffers() error {
	t.cleared = true
	return nil
}

type engineTestEnv struct {
	t         *testing.T
	transport *fakeTransport
	engine    *Engine
	drops     chan *msp.Frame
	cancel    context.CancelFunc
}

func startEngine(t *testing.T, opts Options) *engineTestEnv {
	env := &engineTestEnv{
		t:         t,
		transport: newFakeTransport(),
		engine:    New(),
		drops:     make(chan *msp.Frame, 4),
	}
	if opts.OnDrop == nil {
		opts.OnDrop = func(f *msp.Frame, err error) { env.drops <- f }
	}
	if opts.RetryInterval == 0 {
		opts.RetryInterval = time.Millisecond
	}
	ctx, cancel := context.WithCancel(context.Background())
	env.cancel = cancel
	require.NoError(t, env.engine.Start(ctx, env.transport, opts))
	require.True(t, env.transport.cleared)
	t.Cleanup(func() {
		cancel()
		env.engine.Wait()
	})
	return env
}

func (e *engineTestEnv) submit(frames ...*msp.Frame) {
	for _, f := range frames {
		require.NoError(e.t, e.engine.Submit(context.Background(), f))
	}
}

func (e *engineTestEnv) receive() *msp.Frame {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	f, err := e.engine.Receive(ctx)
	require.NoError(e.t, err)
	return f
}

func (e *engineTestEnv) expectWrite(f *msp.Frame) {
	select {
	case b := <-e.transport.writes:
		require.Equal(e.t, f.Bytes(), b)
	case <-time.After(500 * time.Millisecond):
		e.t.Fatal("expected write timed out")
	}
}

func (e *engineTestEnv) expectNoWrite(d time.Duration) {
	select {
	case b := <-e.transport.writes:
		e.t.Fatalf("unexpected write: %#v", b)
	case <-time.After(d):
	}
}

func (e *engineTestEnv) expectDrop(f *msp.Frame) {
	select {
	case dropped := <-e.drops:
		require.Equal(e.t, f, dropped)
	case <-time.After(500 * time.Millisecond):
		e.t.Fatal("expected drop timed out")
	}
}

func requestFrame(code uint16, payload ...byte) *msp.Frame {
	return &msp.Frame{Dir: msp.DirRequest, Code: code, Payload: payload}
}

func responseFrame(code uint16, payload ...byte) *msp.Frame {
	return &msp.Frame{Dir: msp.DirResponse, Code: code, Payload: payload}
}

func TestStartTwice(t *testing.T) {
	env := startEngine(t, Options{})
	err := env.engine.Start(context.Background(), env.transport, Options{})
	require.Equal(t, ErrStarted, err)
}

func TestInboundOrder(t *testing.T) {
	env := startEngine(t, Options{})

	frames := []*msp.Frame{
		responseFrame(0x65, 1, 2, 3),
		responseFrame(0x68),
		responseFrame(0x6c, 0xaa, 0xbb, 0xcc, 0xdd),
	}
	var stream []byte
	for _, f := range frames {
		stream = append(stream, f.Bytes()...)
	}
	// Chunk boundaries land mid-frame; delivery order must not care.
	for _, chunk := range [][]byte{stream[:5], stream[5:18], stream[18:]} {
		env.transport.readCh <- chunk
	}

	for _, want := range frames {
		require.Equal(t, want, env.receive())
	}
}

func TestInboundResync(t *testing.T) {
	env := startEngine(t, Options{})

	// An invalid header followed by a complete valid frame yields
	// exactly that one frame.
	want := responseFrame(0x64, 9, 8, 7)
	env.transport.readCh <- append([]byte{0x00, 0xff}, want.Bytes()...)
	require.Equal(t, want, env.receive())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := env.engine.Receive(ctx)
	require.Equal(t, context.DeadlineExceeded, err)
}

func TestOutboundOrder(t *testing.T) {
	env := startEngine(t, Options{BufferSize: 8})

	frames := []*msp.Frame{
		requestFrame(0x65),
		requestFrame(0x68, 1),
		requestFrame(0x6c, 2, 3),
		requestFrame(0x70, 4, 5, 6),
		requestFrame(0x71),
	}
	env.submit(frames...)
	for _, f := range frames {
		env.expectWrite(f)
	}
}

func TestCreditGating(t *testing.T) {
	env := startEngine(t, Options{BufferSize: 1})

	first, second := requestFrame(0x65), requestFrame(0x68)
	env.submit(first, second)

	// The single credit covers the first frame only.
	env.expectWrite(first)
	env.expectNoWrite(50 * time.Millisecond)
	require.Equal(t, 0, env.engine.Credit().Available())

	// One decoded inbound frame releases the second.
	reply := responseFrame(0x65, 1)
	env.transport.readCh <- reply.Bytes()
	require.Equal(t, reply, env.receive())
	env.expectWrite(second)
	require.Equal(t, 0, env.engine.Credit().Available())
}

func TestWriteTimeoutRetry(t *testing.T) {
	env := startEngine(t, Options{BufferSize: 2})

	for i := 0; i < 3; i++ {
		env.transport.writeErr <- timeoutError{}
	}
	frame := requestFrame(0x65, 1, 2)
	env.submit(frame)

	// Exactly one copy reaches the wire, and the credit is spent,
	// not leaked or refunded.
	env.expectWrite(frame)
	env.expectNoWrite(50 * time.Millisecond)
	require.Equal(t, 1, env.engine.Credit().Available())
	require.Empty(t, env.drops)
}

func TestWriteRetriesExhausted(t *testing.T) {
	env := startEngine(t, Options{BufferSize: 2, WriteRetries: 2})

	env.transport.writeErr <- timeoutError{}
	env.transport.writeErr <- timeoutError{}
	frame := requestFrame(0x65)
	env.submit(frame)

	env.expectDrop(frame)
	env.expectNoWrite(50 * time.Millisecond)
	// The unused credit is refunded so later frames still flow.
	require.Equal(t, 2, env.engine.Credit().Available())

	next := requestFrame(0x68)
	env.submit(next)
	env.expectWrite(next)
}

func TestWriteHardErrorDrops(t *testing.T) {
	env := startEngine(t, Options{BufferSize: 1})

	env.transport.writeErr <- errors.New("input/output error")
	frame := requestFrame(0x65)
	env.submit(frame)

	env.expectDrop(frame)
	require.Equal(t, 1, env.engine.Credit().Available())

	// The refunded credit keeps the pipeline live without any
	// inbound traffic.
	next := requestFrame(0x68)
	env.submit(next)
	env.expectWrite(next)
}

func TestResetParserDiscardsPartial(t *testing.T) {
	env := startEngine(t, Options{})

	frame := responseFrame(0x65, 1, 2, 3, 4)
	wire := frame.Bytes()
	env.transport.readCh <- wire[:6]
	time.Sleep(50 * time.Millisecond)

	env.engine.ResetParser()
	env.transport.readCh <- wire[6:]

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := env.engine.Receive(ctx)
	require.Equal(t, context.DeadlineExceeded, err)

	env.transport.readCh <- wire
	require.Equal(t, frame, env.receive())
}

func TestStopClosesReceive(t *testing.T) {
	env := startEngine(t, Options{})

	env.engine.Stop()
	require.NoError(t, env.engine.Wait())

	_, err := env.engine.Receive(context.Background())
	require.Equal(t, ErrClosed, err)
}
