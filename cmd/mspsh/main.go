package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"strconv"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/amfern/msplink/pkg/link"
	"github.com/amfern/msplink/pkg/msp"
	"github.com/amfern/msplink/pkg/serial"
)

var (
	baudRate   = 115200
	bufferSize = link.DefaultBufferSize
)

func init() {
	flag.IntVar(&baudRate, "baud", baudRate, "Serial baud rate.")
	flag.IntVar(&bufferSize, "buffer-size", bufferSize, "Outbound frames in flight before inbound decodes replenish credit.")
}

const unconnectedPrompt = "[none] > "

// session is the link behind the shell commands, nil until open.
type session struct {
	sh     *ishell.Shell
	device string
	port   *serial.Port
	engine *link.Engine
	cancel context.CancelFunc
}

func main() {
	flag.Parse()

	sh := ishell.New()
	sess := &session{sh: sh}
	sh.Println("msplink shell, 'help' lists commands")
	sh.SetPrompt(unconnectedPrompt)
	sh.AddCmd(&ishell.Cmd{
		Name: "open",
		Help: "open <device>: connect to a flight controller",
		Func: sess.open,
	})
	sh.AddCmd(&ishell.Cmd{
		Name: "close",
		Help: "close: disconnect",
		Func: sess.close,
	})
	sh.AddCmd(&ishell.Cmd{
		Name: "send",
		Help: "send <function> [hex payload]: submit a request frame",
		Func: sess.send,
	})
	sh.AddCmd(&ishell.Cmd{
		Name: "watch",
		Help: "watch [seconds]: print inbound frames",
		Func: sess.watch,
	})
	sh.AddCmd(&ishell.Cmd{
		Name: "reset",
		Help: "reset: discard any partially decoded frame",
		Func: sess.reset,
	})
	sh.AddCmd(&ishell.Cmd{
		Name: "credit",
		Help: "credit: show available outbound credits",
		Func: sess.credit,
	})
	defer sess.shutdown()
	sh.Run()
}

func (s *session) open(c *ishell.Context) {
	if s.engine != nil {
		c.Err(fmt.Errorf("already open on %s, close first", s.device))
		return
	}
	if len(c.Args) != 1 {
		c.Err(fmt.Errorf("usage: open <device>"))
		return
	}
	device := c.Args[0]
	port, err := serial.Open(serial.Config{Device: device, BaudRate: baudRate})
	if err != nil {
		c.Err(err)
		return
	}
	engine := link.New()
	ctx, cancel := context.WithCancel(context.Background())
	if err := engine.Start(ctx, port, link.Options{BufferSize: bufferSize}); err != nil {
		cancel()
		port.Close()
		c.Err(err)
		return
	}
	s.device, s.port, s.engine, s.cancel = device, port, engine, cancel
	c.Printf("open %s\n", device)
	s.sh.SetPrompt(fmt.Sprintf("[%s] > ", device))
}

func (s *session) close(c *ishell.Context) {
	if s.engine == nil {
		c.Err(fmt.Errorf("not open"))
		return
	}
	s.shutdown()
	c.Println("closed")
	s.sh.SetPrompt(unconnectedPrompt)
}

func (s *session) shutdown() {
	if s.engine == nil {
		return
	}
	s.cancel()
	s.engine.Wait()
	s.port.Close()
	s.device, s.port, s.engine, s.cancel = "", nil, nil, nil
}

func (s *session) send(c *ishell.Context) {
	if s.engine == nil {
		c.Err(fmt.Errorf("not open"))
		return
	}
	if len(c.Args) < 1 || len(c.Args) > 2 {
		c.Err(fmt.Errorf("usage: send <function> [hex payload]"))
		return
	}
	code, err := strconv.ParseUint(c.Args[0], 0, 16)
	if err != nil {
		c.Err(fmt.Errorf("bad function %q: %v", c.Args[0], err))
		return
	}
	var payload []byte
	if len(c.Args) == 2 {
		if payload, err = hex.DecodeString(c.Args[1]); err != nil {
			c.Err(fmt.Errorf("bad payload: %v", err))
			return
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	frame := &msp.Frame{Dir: msp.DirRequest, Code: uint16(code), Payload: payload}
	if err := s.engine.Submit(ctx, frame); err != nil {
		c.Err(err)
		return
	}
	c.Printf("sent frame %d (%d bytes)\n", frame.Code, frame.WireSize())
}

func (s *session) watch(c *ishell.Context) {
	if s.engine == nil {
		c.Err(fmt.Errorf("not open"))
		return
	}
	seconds := 5
	if len(c.Args) == 1 {
		n, err := strconv.Atoi(c.Args[0])
		if err != nil || n <= 0 {
			c.Err(fmt.Errorf("bad duration %q", c.Args[0]))
			return
		}
		seconds = n
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(seconds)*time.Second)
	defer cancel()
	for {
		frame, err := s.engine.Receive(ctx)
		if err != nil {
			if err != context.DeadlineExceeded {
				c.Err(err)
			}
			return
		}
		c.Printf("%c frame %d (%d bytes): %x\n", frame.Dir, frame.Code, len(frame.Payload), frame.Payload)
	}
}

func (s *session) reset(c *ishell.Context) {
	if s.engine == nil {
		c.Err(fmt.Errorf("not open"))
		return
	}
	s.engine.ResetParser()
	c.Println("parser reset")
}

func (s *session) credit(c *ishell.Context) {
	if s.engine == nil {
		c.Err(fmt.Errorf("not open"))
		return
	}
	c.Printf("%d credits available\n", s.engine.Credit().Available())
}
