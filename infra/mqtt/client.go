package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	coremqtt "github.com/kilianp07/v2gplan/core/mqtt"
	"github.com/kilianp07/v2gplan/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker      string          `json:"broker" koanf:"broker"`
	ClientID    string          `json:"client_id" koanf:"client_id"`
	Username    string          `json:"username" koanf:"username"`
	Password    string          `json:"password" koanf:"password"`
	TopicPrefix string          `json:"topic_prefix" koanf:"topic_prefix"`
	UseTLS      bool            `json:"use_tls" koanf:"use_tls"`
	ClientCert  string          `json:"client_cert" koanf:"client_cert"`
	ClientKey   string          `json:"client_key" koanf:"client_key"`
	CABundle    string          `json:"ca_bundle" koanf:"ca_bundle"`
	QoS         map[string]byte `json:"qos" koanf:"qos"`
	Retain      bool            `json:"retain" koanf:"retain"`
	LWTTopic    string          `json:"lwt_topic" koanf:"lwt_topic"`
	LWTPayload  string          `json:"lwt_payload" koanf:"lwt_payload"`
	LWTQoS      byte            `json:"lwt_qos" koanf:"lwt_qos"`
	LWTRetain   bool            `json:"lwt_retain" koanf:"lwt_retain"`
	MaxRetries  int             `json:"max_retries" koanf:"max_retries"`
	BackoffMS   int             `json:"backoff_ms" koanf:"backoff_ms"`
	TLSConfig   *tls.Config     `json:"-" koanf:"-"`
}

// DefaultTopicPrefix roots every topic when Config.TopicPrefix is empty.
const DefaultTopicPrefix = "v2gplan"

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// PahoClient implements coremqtt.PlanPublisher using Eclipse Paho.
type PahoClient struct {
	cli        pahoClient
	prefix     string
	qos        map[string]byte
	retain     bool
	logger     logger.Logger
	maxRetries int
	backoff    time.Duration
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewPahoClient connects to the MQTT broker.
func NewPahoClient(cfg Config) (*PahoClient, error) {
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	log := logger.New("mqtt_client")
	pc := &PahoClient{
		prefix:     strings.TrimSuffix(cfg.TopicPrefix, "/"),
		qos:        cfg.QoS,
		retain:     cfg.Retain,
		logger:     log,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
	}
	if pc.prefix == "" {
		pc.prefix = DefaultTopicPrefix
	}
	if pc.maxRetries <= 0 {
		pc.maxRetries = 3
	}
	if pc.backoff <= 0 {
		pc.backoff = 100 * time.Millisecond
	}
	opts.OnConnect = func(paho.Client) {
		log.Infof("MQTT connected")
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	pc.cli = c
	return pc, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt: broker required")
	}
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	opts.SetConnectTimeout(5 * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

// Topic joins the configured prefix with parts.
func (p *PahoClient) Topic(parts ...string) string {
	return p.prefix + "/" + strings.Join(parts, "/")
}

// PublishPlan sends the run summary and ledger under runs/<id>/ and updates
// the retained latest pointer.
func (p *PahoClient) PublishPlan(ctx context.Context, msg coremqtt.PlanMessage) error {
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := p.publish(ctx, p.Topic("runs", msg.RunID, "plan"), p.qosFor("plan"), p.retain, payload); err != nil {
		return err
	}
	latest, err := json.Marshal(struct {
		RunID     string  `json:"run_id"`
		Instance  string  `json:"instance"`
		Status    string  `json:"status"`
		Objective float64 `json:"objective"`
		Timestamp int64   `json:"timestamp"`
	}{msg.RunID, msg.Instance, msg.Status, msg.Objective, msg.Timestamp})
	if err != nil {
		return err
	}
	return p.publish(ctx, p.Topic("latest"), p.qosFor("latest"), true, latest)
}

func (p *PahoClient) qosFor(kind string) byte {
	if q, ok := p.qos[kind]; ok {
		return q
	}
	return 0
}

// publish retries failed sends with exponential backoff until ctx is done.
func (p *PahoClient) publish(ctx context.Context, topic string, qos byte, retain bool, payload []byte) error {
	var publishErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		token := p.cli.Publish(topic, qos, retain, payload)
		publishErr = wait(ctx, token)
		if publishErr == nil {
			p.logger.Infof("published %d bytes to %s", len(payload), topic)
			return nil
		}
		p.logger.Errorf("publish attempt %d to %s failed: %v", attempt+1, topic, publishErr)
		if attempt == p.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.backoff * time.Duration(1<<attempt)):
		}
	}
	return publishErr
}

func wait(ctx context.Context, token paho.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", coremqtt.ErrPublishTimeout, ctx.Err())
	}
}

// Disconnect gracefully closes the MQTT connection.
func (p *PahoClient) Disconnect() {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}
