/*Package mqttpub publishes what a viewer emits to an MQTT broker.

A Publisher is a dte.Emitter.  Completed camera exports are published as
their predicted g value on <topic>/g, completed spectral images as a
sweep summary on <topic>/spim, and status reports on <topic>/status.
Temporary exports are not published.  Publishing never blocks the caller
on the broker.

*/
package mqttpub

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/iumi/pinem/dte"
	"github.com/iumi/pinem/viewer"
)

var (
	// ErrNotConnected is returned when publishing before Connect succeeded
	ErrNotConnected = errors.New("mqtt not connected")
)

// Config describes the broker connection
type Config struct {
	// Broker is the broker URL, e.g. tcp://localhost:1883.  Empty disables publishing.
	Broker string `yaml:"Broker" koanf:"Broker"`

	// Topic is the root topic
	Topic string `yaml:"Topic" koanf:"Topic"`

	// ClientID identifies this program to the broker
	ClientID string `yaml:"ClientID" koanf:"ClientID"`
}

// GMessage is published for each completed camera export
type GMessage struct {
	ID   uuid.UUID `json:"id"`
	Time time.Time `json:"time"`
	G    float64   `json:"g"`
}

// SweepMessage is published when a spectral image completes
type SweepMessage struct {
	ID    uuid.UUID `json:"id"`
	Time  time.Time `json:"time"`
	Shape []int     `json:"shape"`
}

// StatusMessage is published for each status report
type StatusMessage struct {
	Time time.Time `json:"time"`
	Msg  string    `json:"msg"`
}

// Publisher is an Emitter that publishes to MQTT
type Publisher struct {
	Config

	client  mqtt.Client
	publish func(topic string, payload []byte) error

	mu        sync.Mutex
	published uint64
	errors    uint64
}

// New returns a publisher which is not yet connected
func New(cfg Config) *Publisher {
	return &Publisher{Config: cfg}
}

// Connect connects to the broker, reconnecting automatically thereafter
func (p *Publisher) Connect(timeout time.Duration) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(p.Broker)
	opts.SetClientID(p.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		log.Println("mqtt connection lost, reconnecting:", err)
	}
	p.client = mqtt.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(timeout) {
		return errors.New("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return err
	}
	c := p.client
	p.publish = func(topic string, payload []byte) error {
		if !c.IsConnected() {
			return ErrNotConnected
		}
		c.Publish(topic, 0, false, payload)
		return nil
	}
	return nil
}

// Disconnect closes the broker connection
func (p *Publisher) Disconnect() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}

// Stats returns how many messages were handed to the client and how many failed
func (p *Publisher) Stats() (published, failed uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published, p.errors
}

func (p *Publisher) send(sub string, v interface{}) {
	var err error
	defer func() {
		p.mu.Lock()
		if err != nil {
			p.errors++
		} else {
			p.published++
		}
		p.mu.Unlock()
	}()
	if p.publish == nil {
		err = ErrNotConnected
		return
	}
	buf, err := json.Marshal(v)
	if err != nil {
		log.Println("mqtt: encoding", sub, "message:", err)
		return
	}
	err = p.publish(p.Topic+"/"+sub, buf)
}

// Temp implements dte.Emitter and does nothing
func (p *Publisher) Temp(dte.Export) {}

// Final implements dte.Emitter
func (p *Publisher) Final(e dte.Export) {
	if m, ok := GOf(e); ok {
		p.send("g", m)
	}
	if m, ok := SweepOf(e); ok {
		p.send("spim", m)
	}
}

// Status implements dte.Emitter
func (p *Publisher) Status(s string) {
	p.send("status", StatusMessage{Time: time.Now(), Msg: s})
}

// GOf extracts the g message from an export, false if it has no g record
func GOf(e dte.Export) (GMessage, bool) {
	rec, ok := e.Get(viewer.GRecord)
	if !ok || len(rec.Data) == 0 || len(rec.Data[0].Data) == 0 {
		return GMessage{}, false
	}
	return GMessage{ID: e.ID, Time: e.Time, G: rec.Data[0].Data[0]}, true
}

// SweepOf extracts the sweep summary from an export, false if it has no spectral image
func SweepOf(e dte.Export) (SweepMessage, bool) {
	rec, ok := e.Get(viewer.SPIMRecord)
	if !ok || len(rec.Data) == 0 {
		return SweepMessage{}, false
	}
	shape := make([]int, len(rec.Data[0].Shape))
	copy(shape, rec.Data[0].Shape)
	return SweepMessage{ID: e.ID, Time: e.Time, Shape: shape}, true
}
