package events

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/sqlworker/internal/infrastructure/config"
	"github.com/nerrad567/sqlworker/internal/worker"
)

const (
	// defaultConnectTimeout bounds the initial connection attempt.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout bounds waiting for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is how long Close waits for pending
	// operations, in milliseconds.
	defaultDisconnectQuiesce = 1000

	// defaultKeepAlive is the connection keepalive interval.
	defaultKeepAlive = 60 * time.Second

	// maxPayloadSize caps event payloads, aligned with broker limits.
	maxPayloadSize = 1 << 20
)

// Logger is the optional logging interface for publish failures.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// statementEvent is the JSON payload published per observed statement.
type statementEvent struct {
	Kind      string `json:"kind"`
	Query     string `json:"query"`
	ArgCount  int    `json:"arg_count"`
	Timestamp string `json:"timestamp"`
}

// Publisher emits statement events to an MQTT broker.
//
// Thread Safety: all methods are safe for concurrent use; hooks fire on
// the worker's dispatch goroutine.
type Publisher struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig

	connected bool
	connMu    sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Connect establishes a connection to the configured broker. A Last
// Will message on the status topic announces an unexpected disconnect;
// a retained online status is published on connect.
func Connect(cfg config.MQTTConfig) (*Publisher, error) {
	opts := buildClientOptions(cfg)
	opts.SetWill(StatusTopic(), statusPayload(cfg.Broker.ClientID, "offline", "unexpected_disconnect"), 1, true)

	p := &Publisher{cfg: cfg}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		p.connMu.Lock()
		p.connected = true
		p.connMu.Unlock()
		p.client.Publish(StatusTopic(), byte(cfg.QoS), true, statusPayload(cfg.Broker.ClientID, "online", ""))
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		p.connMu.Lock()
		p.connected = false
		p.connMu.Unlock()
		if logger := p.getLogger(); logger != nil {
			logger.Warn("broker connection lost", "error", err)
		}
	})

	p.client = pahomqtt.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnect handler runs asynchronously; mark connected here so
	// publishing works immediately after Connect returns.
	p.connMu.Lock()
	p.connected = true
	p.connMu.Unlock()

	return p, nil
}

// buildClientOptions maps config onto paho client options: broker URL,
// credentials, auto-reconnect with backoff and optional TLS.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))
	opts.SetClientID(cfg.Broker.ClientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	return opts
}

// statusPayload builds the JSON status message. Reason is omitted when
// empty.
func statusPayload(clientID, status, reason string) string {
	payload := map[string]string{
		"status":    status,
		"client_id": clientID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if reason != "" {
		payload["reason"] = reason
	}
	// Marshal of map[string]string cannot fail.
	data, _ := json.Marshal(payload) //nolint:errcheck // Fixed shape
	return string(data)
}

// Attach registers statement hooks on w for every classified kind and
// returns their handles for later removal. Statements that classify as
// none of the four kinds (DDL, PRAGMA) are not published.
func (p *Publisher) Attach(w *worker.Worker) []worker.HookHandle {
	kinds := map[worker.HookKind]string{
		worker.HookSelect: "select",
		worker.HookInsert: "insert",
		worker.HookUpdate: "update",
		worker.HookDelete: "delete",
	}

	handles := make([]worker.HookHandle, 0, len(kinds))
	for hookKind, label := range kinds {
		handles = append(handles, w.RegisterHook(hookKind, p.hook(label)))
	}
	return handles
}

// hook builds the worker callback for one statement kind. Publish
// failures are logged, never propagated; the statement has already
// succeeded by the time the hook fires.
func (p *Publisher) hook(kind string) worker.Hook {
	return func(query string, args []any) {
		event := statementEvent{
			Kind:      kind,
			Query:     query,
			ArgCount:  len(args),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		payload, err := json.Marshal(event)
		if err != nil {
			return
		}
		if err := p.Publish(StatementTopic(kind), payload, byte(p.cfg.QoS), false); err != nil {
			if logger := p.getLogger(); logger != nil {
				logger.Warn("statement event publish failed",
					"kind", kind,
					"error", err,
				)
			}
		}
	}
}

// Publish sends a payload to topic and waits for acknowledgment.
func (p *Publisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !p.IsConnected() {
		return ErrNotConnected
	}

	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// IsConnected reports the last known connection state.
func (p *Publisher) IsConnected() bool {
	p.connMu.RLock()
	defer p.connMu.RUnlock()
	return p.connected && p.client.IsConnected()
}

// SetLogger sets the logger for publish failures. Without one, failures
// are silently dropped.
func (p *Publisher) SetLogger(logger Logger) {
	p.loggerMu.Lock()
	p.logger = logger
	p.loggerMu.Unlock()
}

func (p *Publisher) getLogger() Logger {
	p.loggerMu.RLock()
	defer p.loggerMu.RUnlock()
	return p.logger
}

// Close publishes a graceful offline status and disconnects.
func (p *Publisher) Close() error {
	if p.client == nil {
		return nil
	}

	if p.IsConnected() {
		token := p.client.Publish(StatusTopic(), byte(p.cfg.QoS), true,
			statusPayload(p.cfg.Broker.ClientID, "offline", "graceful_shutdown"))
		token.WaitTimeout(defaultPublishTimeout)
	}

	p.client.Disconnect(defaultDisconnectQuiesce)

	p.connMu.Lock()
	p.connected = false
	p.connMu.Unlock()

	return nil
}
