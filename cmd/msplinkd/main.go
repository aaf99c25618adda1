package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"time"

	"github.com/golang/glog"

	"github.com/amfern/msplink/pkg/framework"
	"github.com/amfern/msplink/pkg/link"
	"github.com/amfern/msplink/pkg/serial"
	"github.com/amfern/msplink/pkg/telemetry"
)

var (
	device     = "/dev/ttyACM0"
	baudRate   = 115200
	bufferSize = link.DefaultBufferSize
	writeDelay time.Duration
	mqttURL    string
)

func init() {
	if val := os.Getenv("MSPLINK_DEVICE"); val != "" {
		device = val
	}
	if val := os.Getenv("MSPLINK_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&device, "device", device, "Serial device of the flight controller.")
	flag.IntVar(&baudRate, "baud", baudRate, "Serial baud rate.")
	flag.IntVar(&bufferSize, "buffer-size", bufferSize, "Outbound frames in flight before inbound decodes replenish credit.")
	flag.DurationVar(&writeDelay, "write-delay", 0, "Pause between outbound frames.")
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL (mqtt://host:port/prefix). Empty disables the bridge.")
}

func main() {
	flag.Parse()

	port, err := serial.Open(serial.Config{Device: device, BaudRate: baudRate})
	if err != nil {
		glog.Exitf("open %s: %v", device, err)
	}
	defer port.Close()

	engine := link.New()
	runner := framework.NewRunner().HandleSignals()
	err = engine.Start(runner.Context, port, link.Options{
		BufferSize: bufferSize,
		WriteDelay: writeDelay,
	})
	if err != nil {
		glog.Exitf("start link: %v", err)
	}

	if mqttURL != "" {
		bridge, err := telemetry.NewBridge(engine, mqttURL)
		if err != nil {
			glog.Exitf("telemetry: %v", err)
		}
		runner.Go(framework.NamedRun("telemetry", bridge))
	} else {
		runner.Go(framework.NamedRun("drain", framework.RunFunc(func(ctx context.Context) error {
			return drain(ctx, engine)
		})))
	}

	var errs framework.AggregatedError
	errs.Add(runner.Wait(), engine.Wait())
	if err := errs.Aggregate(); err != nil {
		glog.Exit(err)
	}
}

// drain consumes inbound frames when no bridge does, so the inbound
// queue cannot back up the reader.
func drain(ctx context.Context, engine *link.Engine) error {
	for {
		frame, err := engine.Receive(ctx)
		if err != nil {
			if errors.Is(err, link.ErrClosed) {
				return nil
			}
			return err
		}
		glog.V(1).Infof("frame %d: % x", frame.Code, frame.Payload)
	}
}
