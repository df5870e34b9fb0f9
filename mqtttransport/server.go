// Package mqtttransport serves a jsonrpc.Pipeline over MQTT: every message
// published on the request topic is one exchange, and its reply is published
// on the matching response topic.
package mqtttransport

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	jsonrpc "github.com/xizhibei/go-jsonrpc"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

var (
	// ErrSubscribeTimeout is returned when the broker does not acknowledge a subscription in time.
	ErrSubscribeTimeout = errors.New("[JSONRPC] mqtt subscribe timeout")
	// ErrInvalidTopic is returned for a request topic whose reply topic would be the same topic.
	ErrInvalidTopic = errors.New("[JSONRPC] mqtt request topic must contain \"request\"")
)

// Client is the subset of mqtt.Client the server uses.
type Client interface {
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type options struct {
	qos     byte
	timeout time.Duration
}

// Option configures a Server.
type Option func(o *options)

// WithQoS sets the QoS used for subscribing and publishing. Defaults to 0.
func WithQoS(qos byte) Option {
	return func(o *options) {
		o.qos = qos
	}
}

// WithTimeout sets how long to wait for broker acknowledgements. Defaults to 10 seconds.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// Server subscribes a pipeline to an MQTT request topic.
type Server struct {
	client   Client
	pipeline *jsonrpc.Pipeline
	topic    string
	options  *options
	log      *zap.SugaredLogger

	resubscribe sync.Once
	closed      atomic.Bool
}

// New creates a Server for the given subscription topic, which may contain wildcards.
func New(client Client, pipeline *jsonrpc.Pipeline, topic string, opts ...Option) *Server {
	o := options{timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	return &Server{
		client:   client,
		pipeline: pipeline,
		topic:    topic,
		options:  &o,
		log:      zap.S().With("module", "jsonrpc.mqtt"),
	}
}

// Start subscribes to the request topic and waits for the broker acknowledgement.
// When the client is a *Conn, the subscription is renewed after every reconnection.
// The topic must contain "request", so replies never land on it.
func (s *Server) Start() error {
	if ReplyTopic(s.topic) == s.topic {
		return errors.Wrapf(ErrInvalidTopic, "topic %s", s.topic)
	}
	if err := s.subscribe(); err != nil {
		return err
	}

	if c, ok := s.client.(interface{ OnConnect(OnConnectCallback) }); ok {
		s.resubscribe.Do(func() {
			c.OnConnect(func() {
				if s.closed.Load() {
					return
				}
				if err := s.subscribe(); err != nil {
					s.log.Errorf("Resubscribe: %v", err)
				}
			})
		})
	}
	return nil
}

func (s *Server) subscribe() error {
	token := s.client.Subscribe(s.topic, s.options.qos, s.onMessage)
	if !token.WaitTimeout(s.options.timeout) {
		return errors.Wrapf(ErrSubscribeTimeout, "topic %s", s.topic)
	}
	if err := token.Error(); err != nil {
		return errors.Wrapf(err, "subscribe %s", s.topic)
	}
	s.log.Infof("Subscribed to %s", s.topic)
	return nil
}

// Close unsubscribes from the request topic.
func (s *Server) Close() error {
	s.closed.Store(true)
	token := s.client.Unsubscribe(s.topic)
	token.WaitTimeout(s.options.timeout)
	return token.Error()
}

// ReplyTopic returns the topic answering a request topic: the word
// "request" is replaced by "response".
func ReplyTopic(topic string) string {
	return strings.ReplaceAll(topic, "request", "response")
}

func (s *Server) onMessage(_ mqtt.Client, m mqtt.Message) {
	if m.Retained() {
		s.log.Warnf("Retained message on %s, ignore", m.Topic())
		return
	}

	replyTopic := ReplyTopic(m.Topic())
	if replyTopic == m.Topic() {
		s.log.Warnf("Message on %s has no reply topic, ignore", m.Topic())
		return
	}

	payload := m.Payload()
	reply := s.pipeline.Handle(context.Background(), &jsonrpc.Exchange{
		Method:        http.MethodPost,
		Body:          bytes.NewReader(payload),
		ContentLength: int64(len(payload)),
	})

	if len(reply.Body) == 0 {
		s.log.Debugf("No reply for %s [%d]", m.Topic(), reply.Status)
		return
	}

	s.log.Debugf("Reply to %s, size %d", replyTopic, len(reply.Body))

	token := s.client.Publish(replyTopic, s.options.qos, false, reply.Body)
	go func() {
		if !token.WaitTimeout(s.options.timeout) {
			s.log.Warnf("Publish to %s timed out", replyTopic)
			return
		}
		if err := token.Error(); err != nil {
			s.log.Errorf("Publish to %s: %v", replyTopic, err)
		}
	}()
}
