// Package emitter publishes analysis events to an MQTT broker
package emitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/menta2k/skin-analyzer/pkg/types"
)

// Event types, used as the last topic segment
const (
	TypeResult  = "result"
	TypeFailure = "failure"
)

// Payload encodings
const (
	EncodingJSON    = "json"
	EncodingMsgpack = "msgpack"
)

// Event is one published message
type Event struct {
	Type      string                `json:"type"`
	SessionID string                `json:"session_id,omitempty"`
	Origin    string                `json:"origin"`
	Result    *types.AnalysisResult `json:"result,omitempty"`
	Error     string                `json:"error,omitempty"`
	EmittedAt time.Time             `json:"emitted_at"`
}

// Publisher sends events somewhere
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop discards events
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Encode serializes an event as json or msgpack. Both use the json field names.
func Encode(e Event, encoding string) ([]byte, error) {
	switch encoding {
	case "", EncodingJSON:
		return json.Marshal(e)
	case EncodingMsgpack:
		var buf bytes.Buffer
		enc := msgpack.NewEncoder(&buf)
		enc.SetCustomStructTag("json")
		if err := enc.Encode(e); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown encoding %q", encoding)
	}
}

// Decode is the inverse of Encode
func Decode(data []byte, encoding string) (Event, error) {
	var e Event
	switch encoding {
	case "", EncodingJSON:
		err := json.Unmarshal(data, &e)
		return e, err
	case EncodingMsgpack:
		dec := msgpack.NewDecoder(bytes.NewReader(data))
		dec.SetCustomStructTag("json")
		err := dec.Decode(&e)
		return e, err
	default:
		return e, fmt.Errorf("unknown encoding %q", encoding)
	}
}

// Config holds broker settings
type Config struct {
	Broker   string
	ClientID string
	Topic    string
	QoS      byte
	Encoding string
	Username string
	Password string
}

// MQTT publishes events to {Topic}/{type}
type MQTT struct {
	cfg    Config
	logger *zap.Logger
	client mqtt.Client

	mu        sync.RWMutex
	connected bool
	published uint64
	errors    uint64
}

// NewMQTT creates an unconnected emitter
func NewMQTT(cfg Config, logger *zap.Logger) *MQTT {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Encoding == "" {
		cfg.Encoding = EncodingJSON
	}
	return &MQTT{cfg: cfg, logger: logger}
}

// Connect establishes the broker connection; the client reconnects on its own afterwards
func (e *MQTT) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(e.cfg.Broker)
	opts.SetClientID(e.cfg.ClientID)
	if e.cfg.Username != "" {
		opts.SetUsername(e.cfg.Username)
		opts.SetPassword(e.cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.setConnected(true)
		e.logger.Info("MQTT connection established", zap.String("broker", e.cfg.Broker))
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.setConnected(false)
		e.logger.Warn("MQTT connection lost, will auto-reconnect", zap.Error(err))
	}

	e.client = mqtt.NewClient(opts)

	timeout := 5 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	token := e.client.Connect()
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	e.setConnected(true)
	return nil
}

// Publish encodes and sends one event
func (e *MQTT) Publish(ctx context.Context, ev Event) error {
	if !e.isConnected() {
		e.countError()
		return fmt.Errorf("mqtt not connected")
	}
	if ev.EmittedAt.IsZero() {
		ev.EmittedAt = time.Now().UTC()
	}

	payload, err := Encode(ev, e.cfg.Encoding)
	if err != nil {
		e.countError()
		return fmt.Errorf("failed to encode event: %w", err)
	}

	topic := e.cfg.Topic + "/" + ev.Type
	token := e.client.Publish(topic, e.cfg.QoS, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		e.countError()
		return fmt.Errorf("publish canceled: %w", ctx.Err())
	case <-time.After(2 * time.Second):
		e.countError()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	e.mu.Lock()
	e.published++
	e.mu.Unlock()
	e.logger.Debug("Event published", zap.String("topic", topic), zap.Int("size", len(payload)))
	return nil
}

// Close disconnects from the broker
func (e *MQTT) Close() error {
	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(250)
		e.logger.Info("MQTT disconnected")
	}
	e.setConnected(false)
	return nil
}

// Stats contains emitter counters
type Stats struct {
	Connected bool
	Published uint64
	Errors    uint64
}

// Stats returns emitter counters
func (e *MQTT) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{Connected: e.connected, Published: e.published, Errors: e.errors}
}

func (e *MQTT) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *MQTT) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *MQTT) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}

// ResultEvent builds the event for a finished analysis
func ResultEvent(sessionID, origin string, r *types.AnalysisResult) Event {
	return Event{Type: TypeResult, SessionID: sessionID, Origin: origin, Result: r, EmittedAt: time.Now().UTC()}
}

// FailureEvent builds the event for a failed analysis
func FailureEvent(sessionID, origin string, err error) Event {
	return Event{Type: TypeFailure, SessionID: sessionID, Origin: origin, Error: err.Error(), EmittedAt: time.Now().UTC()}
}
