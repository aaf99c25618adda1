package link

import (
	"context"
	"sync"
	"time"

	"github.com/amfern/msplink/pkg/framework"
	"github.com/amfern/msplink/pkg/msp"
)

const (
	inboundQueueSize  = 4096
	outboundQueueSize = 1024
	readChunkSize     = 4096

	// DefaultBufferSize is the outbound credit bound used when
	// Options.BufferSize is unset.
	DefaultBufferSize = 10

	defaultRetryInterval = 5 * time.Millisecond
)

// DropHandler receives frames the outbound pipeline gave up on,
// together with the last transport error.
type DropHandler func(*msp.Frame, error)

// Options tune a started engine.
type Options struct {
	// BufferSize is the number of outbound frames allowed in flight
	// before inbound decodes replenish credit.
	BufferSize int
	// WriteDelay pauses the outbound pipeline between frames, for
	// devices whose processing rate is below line rate.
	WriteDelay time.Duration
	// WriteRetries bounds write attempts per frame on transport
	// timeout. 0 retries until success.
	WriteRetries int
	// RetryInterval is the pause between write attempts.
	RetryInterval time.Duration
	// OnDrop, if set, is called for every abandoned outbound frame.
	OnDrop DropHandler
}

// Engine owns the parser, the frame queues and the two pipelines of
// one transport session.
type Engine struct {
	parser     msp.Parser
	parserLock sync.Mutex

	inbound  chan *msp.Frame
	outbound chan *msp.Frame
	credit   *Credit

	lock    sync.Mutex
	started bool
	cancel  context.CancelFunc
	runner  *framework.Runner
}

// New creates an inert engine.
func New() *Engine {
	return &Engine{
		inbound:  make(chan *msp.Frame, inboundQueueSize),
		outbound: make(chan *msp.Frame, outboundQueueSize),
	}
}

// Start clears the transport buffers and launches the inbound and
// outbound pipelines. It may be called at most once per engine.
func (e *Engine) Start(ctx context.Context, t Transport, opts Options) error {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.started {
		return ErrStarted
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = defaultRetryInterval
	}
	if err := t.ClearBuffers(); err != nil {
		return err
	}
	e.credit = NewCredit(opts.BufferSize)

	ctx, e.cancel = context.WithCancel(ctx)
	e.runner = framework.NewRunnerWith(ctx)
	e.runner.Go(
		framework.NamedRun("inbound", &inboundPipeline{
			transport:  t,
			parser:     &e.parser,
			parserLock: &e.parserLock,
			frames:     e.inbound,
			credit:     e.credit,
		}),
		framework.NamedRun("outbound", &outboundPipeline{
			transport:     t,
			frames:        e.outbound,
			credit:        e.credit,
			writeDelay:    opts.WriteDelay,
			retries:       opts.WriteRetries,
			retryInterval: opts.RetryInterval,
			onDrop:        opts.OnDrop,
		}),
	)
	e.started = true
	return nil
}

// Submit enqueues a frame for transmission, blocking while the
// outbound queue is full.
func (e *Engine) Submit(ctx context.Context, f *msp.Frame) error {
	select {
	case e.outbound <- f:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive returns the next decoded inbound frame, blocking until one
// is available. It returns ErrClosed once the inbound pipeline has
// terminated, signaling end of stream.
func (e *Engine) Receive(ctx context.Context) (*msp.Frame, error) {
	select {
	case f, ok := <-e.inbound:
		if !ok {
			return nil, ErrClosed
		}
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ResetParser discards any partially decoded frame, for recovery after
// link desynchronization.
func (e *Engine) ResetParser() {
	e.parserLock.Lock()
	e.parser.Reset()
	e.parserLock.Unlock()
}

// Credit exposes the outbound credit counter.
func (e *Engine) Credit() *Credit {
	return e.credit
}

// Stop cancels both pipelines.
func (e *Engine) Stop() {
	e.lock.Lock()
	cancel := e.cancel
	e.lock.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until both pipelines terminate and aggregates their
// errors. Cancellation is not reported as an error.
func (e *Engine) Wait() error {
	e.lock.Lock()
	runner := e.runner
	e.lock.Unlock()
	if runner == nil {
		return nil
	}
	return runner.Wait()
}
