package link

import (
	"context"
	"os"
	"time"

	"github.com/golang/glog"

	"github.com/amfern/msplink/pkg/msp"
)

// outboundPipeline serializes caller-submitted frames and writes them
// to the transport, spending one credit per frame.
type outboundPipeline struct {
	transport     Transport
	frames        <-chan *msp.Frame
	credit        *Credit
	writeDelay    time.Duration
	retries       int
	retryInterval time.Duration
	onDrop        DropHandler
}

// Run implements framework.Runnable. It terminates when the outbound
// queue closes or the context is cancelled.
func (p *outboundPipeline) Run(ctx context.Context) error {
	for {
		if err := p.credit.Acquire(ctx); err != nil {
			return err
		}
		var frame *msp.Frame
		select {
		case f, ok := <-p.frames:
			if !ok {
				return nil
			}
			frame = f
		case <-ctx.Done():
			return ctx.Err()
		}
		if err := p.send(ctx, frame); err != nil {
			return err
		}
		if p.writeDelay > 0 {
			if err := sleep(ctx, p.writeDelay); err != nil {
				return err
			}
		}
	}
}

// send writes one frame. Timeouts mean the device or its serial buffer
// is busy, so the same write is retried after a pause, bounded by the
// configured attempt count. A hard transport error, or retry
// exhaustion, drops the frame and refunds its credit so later frames
// are not starved.
func (p *outboundPipeline) send(ctx context.Context, frame *msp.Frame) error {
	wire := frame.Bytes()
	for attempt := 1; ; attempt++ {
		_, err := p.transport.Write(wire)
		if err == nil {
			return nil
		}
		if os.IsTimeout(err) && (p.retries == 0 || attempt < p.retries) {
			glog.V(2).Infof("link write busy, retrying frame %d", frame.Code)
			if err := sleep(ctx, p.retryInterval); err != nil {
				return err
			}
			continue
		}
		p.credit.Release()
		p.drop(frame, err)
		return nil
	}
}

func (p *outboundPipeline) drop(frame *msp.Frame, cause error) {
	glog.Errorf("outbound frame %d dropped: %v", frame.Code, cause)
	if p.onDrop != nil {
		p.onDrop(frame, cause)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
