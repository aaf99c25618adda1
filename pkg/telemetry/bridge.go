// Package telemetry bridges the MSP link to an MQTT broker.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/denisbrodbeck/machineid"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"

	"github.com/amfern/msplink/pkg/link"
	"github.com/amfern/msplink/pkg/msp"
)

// Bridge publishes every decoded inbound frame to frame/<function>
// under the topic prefix, and submits frames arriving on the send
// topic to the link engine. Payloads are raw MSP wire bytes.
type Bridge struct {
	Engine      *link.Engine
	Client      paho.Client
	TopicPrefix string
}

// ClientOptionsFromURL creates ClientOptions from URL.
func ClientOptionsFromURL(serverURL string) (*paho.ClientOptions, string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, "", err
	}
	var server string
	if u.Scheme == "" || u.Scheme == "mqtt" {
		server = "tcp"
	} else {
		server = u.Scheme
	}
	server += "://" + u.Host

	topicPrefix := strings.TrimPrefix(u.Path, "/")

	opts := paho.NewClientOptions()
	opts.AddBroker(server).
		SetAutoReconnect(true).
		SetCleanSession(true)
	if u.User != nil {
		opts.SetUsername(u.User.Username())
		if pwd, ok := u.User.Password(); ok {
			opts.SetPassword(pwd)
		}
	}

	if clientID := u.Query().Get("client-id"); clientID != "" {
		opts.SetClientID(clientID)
	} else {
		opts.SetClientID(defaultClientID())
	}

	return opts, topicPrefix, nil
}

// defaultClientID derives a stable client id from the machine identity.
func defaultClientID() string {
	id, err := machineid.ID()
	if err != nil {
		return "msplink"
	}
	if len(id) > 8 {
		id = id[:8]
	}
	return "msplink-" + id
}

// NewBridge creates a Bridge over the engine from a broker URL
// (mqtt://host:port/prefix).
func NewBridge(engine *link.Engine, brokerURL string) (*Bridge, error) {
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	return &Bridge{
		Engine:      engine,
		Client:      paho.NewClient(opts),
		TopicPrefix: topicPrefix,
	}, nil
}

// Run implements framework.Runnable. It connects, subscribes the send
// topic and pumps inbound frames to the broker until the context is
// cancelled or the link closes.
func (b *Bridge) Run(ctx context.Context) error {
	if token := b.Client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer b.Client.Disconnect(250)

	sendTopic := b.TopicPrefix + "send"
	if token := b.Client.Subscribe(sendTopic, 0, b.onSend); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	if glog.V(2) {
		glog.Infof("SUB %q", sendTopic)
	}

	for {
		frame, err := b.Engine.Receive(ctx)
		if err != nil {
			if errors.Is(err, link.ErrClosed) {
				return nil
			}
			return err
		}
		topic := fmt.Sprintf("%sframe/%d", b.TopicPrefix, frame.Code)
		b.Client.Publish(topic, 0, false, frame.Bytes())
	}
}

func (b *Bridge) onSend(_ paho.Client, msg paho.Message) {
	frame, err := msp.Decode(msg.Payload())
	if err != nil {
		glog.Warningf("send topic: bad frame: %v", err)
		return
	}
	if err := b.Engine.Submit(context.Background(), frame); err != nil {
		glog.Errorf("send topic: submit: %v", err)
	}
}
