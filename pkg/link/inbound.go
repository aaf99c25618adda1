package link

import (
	"context"
	"os"
	"sync"

	"github.com/golang/glog"

	"github.com/amfern/msplink/pkg/msp"
)

// inboundPipeline drains the transport read side, feeds the parser and
// publishes decoded frames. Every decoded frame returns one credit to
// the outbound pipeline.
type inboundPipeline struct {
	transport  Transport
	parser     *msp.Parser
	parserLock *sync.Mutex
	frames     chan<- *msp.Frame
	credit     *Credit
}

// Run implements framework.Runnable. It terminates only on context
// cancellation; transport errors are logged and retried.
func (p *inboundPipeline) Run(ctx context.Context) error {
	defer close(p.frames)
	buf := make([]byte, readChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := p.transport.Read(buf)
		if err != nil {
			if !os.IsTimeout(err) {
				glog.Errorf("link read: %v", err)
			}
			continue
		}
		if err := p.feed(ctx, buf[:n]); err != nil {
			return err
		}
	}
}

// feed runs one read chunk through the parser. The parser lock is held
// for the whole chunk so an external ResetParser cannot land between
// bytes of it.
func (p *inboundPipeline) feed(ctx context.Context, chunk []byte) error {
	p.parserLock.Lock()
	defer p.parserLock.Unlock()
	for _, b := range chunk {
		frame, err := p.parser.Parse(b)
		if err != nil {
			glog.Warningf("inbound frame discarded: %v", err)
			continue
		}
		if frame == nil {
			continue
		}
		select {
		case p.frames <- frame:
		case <-ctx.Done():
			return ctx.Err()
		}
		p.credit.Release()
	}
	return nil
}
