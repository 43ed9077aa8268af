// Package publish bridges telemetry onto an MQTT broker as JSON
package publish

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/calvinmclean/echoguide"
	"github.com/calvinmclean/echoguide/internal/monitoring"
	"github.com/calvinmclean/echoguide/telemetry"
)

const (
	DefaultTopic = "echoguide"
	faultsTopic  = "faults"

	// maxPending is how many publish results can wait to be checked before new ones go unchecked
	maxPending = 64
	tokenWait  = 5 * time.Second
)

// publisher is the part of mqtt.Client used here
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type pending struct {
	topic string
	token mqtt.Token
}

// Publisher is a telemetry.Sink that publishes snapshots to <topic>/<side> and faults to <topic>/faults.
// Publishing does not wait for the broker. A single goroutine checks publish results in order.
type Publisher struct {
	client publisher
	topic  string

	pending   chan pending
	unchecked atomic.Uint64
	stop      chan struct{}
	stopOnce  sync.Once
	done      chan struct{}
}

var _ telemetry.Sink = (*Publisher)(nil)

// Connect connects to broker, a URL like tcp://localhost:1883
func Connect(broker, topic string) (*Publisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(fmt.Sprintf("echoguide-%d", time.Now().Unix()))
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		monitoring.Logf("[MQTT] connection lost: %v", err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("MQTT connect timeout")
	}
	if token.Error() != nil {
		return nil, fmt.Errorf("MQTT connect failed: %w", token.Error())
	}

	return New(client, topic), nil
}

// New creates a Publisher using an existing client. An empty topic uses DefaultTopic.
func New(client publisher, topic string) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	p := &Publisher{
		client:  client,
		topic:   topic,
		pending: make(chan pending, maxPending),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go p.checkResults()
	return p
}

// Close stops checking publish results and disconnects from the broker if the client supports it
func (p *Publisher) Close() {
	p.stopOnce.Do(func() { close(p.stop) })
	<-p.done

	if d, ok := p.client.(interface{ Disconnect(quiesce uint) }); ok {
		d.Disconnect(250)
	}
}

// SnapshotTopic is where a side's snapshots are published
func (p *Publisher) SnapshotTopic(side echoguide.Side) string {
	return p.topic + "/" + strings.ToLower(side.String())
}

// FaultTopic is where faults for both sides are published
func (p *Publisher) FaultTopic() string {
	return p.topic + "/" + faultsTopic
}

// PublishSnapshot implements telemetry.Sink.
func (p *Publisher) PublishSnapshot(s echoguide.Snapshot) {
	p.publish(p.SnapshotTopic(s.Side), telemetry.NewSnapshotMessage(s))
}

// PublishFault implements telemetry.Sink.
func (p *Publisher) PublishFault(f echoguide.Fault) {
	p.publish(p.FaultTopic(), telemetry.NewFaultMessage(f))
}

func (p *Publisher) publish(topic string, msg any) {
	payload, err := json.Marshal(msg)
	if err != nil {
		monitoring.Logf("[MQTT] error encoding %s message: %v", topic, err)
		return
	}

	token := p.client.Publish(topic, 0, false, payload)
	select {
	case p.pending <- pending{topic, token}:
	default:
		p.unchecked.Add(1)
	}
}

// Unchecked is how many publishes were sent without checking their result because too many were
// already waiting on the broker
func (p *Publisher) Unchecked() uint64 {
	return p.unchecked.Load()
}

func (p *Publisher) checkResults() {
	defer close(p.done)
	for {
		select {
		case <-p.stop:
			return
		case pt := <-p.pending:
			if pt.token.WaitTimeout(tokenWait) && pt.token.Error() != nil {
				monitoring.Logf("[MQTT] error publishing to %s: %v", pt.topic, pt.token.Error())
			}
		}
	}
}
