package mqtttransport_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/suite"
	jsonrpc "github.com/xizhibei/go-jsonrpc"
	"github.com/xizhibei/go-jsonrpc/mqtttransport"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func newToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func pendingToken() *fakeToken {
	return &fakeToken{done: make(chan struct{})}
}

func (t *fakeToken) Wait() bool { <-t.done; return true }

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }

func (t *fakeToken) Error() error { return t.err }

type fakeMessage struct {
	topic    string
	payload  []byte
	retained bool
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 0 }
func (m *fakeMessage) Retained() bool    { return m.retained }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeClient struct {
	mu           sync.Mutex
	handler      mqtt.MessageHandler
	subscribed   string
	unsubscribed []string
	published    []published
	subscribeErr error
	subscribeTok mqtt.Token
}

func (c *fakeClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed = topic
	c.handler = callback
	if c.subscribeTok != nil {
		return c.subscribeTok
	}
	return newToken(c.subscribeErr)
}

func (c *fakeClient) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsubscribed = append(c.unsubscribed, topics...)
	return newToken(nil)
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return newToken(nil)
}

func (c *fakeClient) deliver(m mqtt.Message) {
	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()
	handler(nil, m)
}

type ServerTestSuite struct {
	suite.Suite
	client *fakeClient
	server *mqtttransport.Server
}

func (suite *ServerTestSuite) SetupTest() {
	pipeline := jsonrpc.NewPipeline(jsonrpc.DispatcherFunc(
		func(ctx context.Context, method string, args []any, kwargs map[string]any) (any, error) {
			if method == "ping" {
				return "pong", nil
			}
			return nil, jsonrpc.MethodNotFound(method)
		}))

	suite.client = &fakeClient{}
	suite.server = mqtttransport.New(suite.client, pipeline, "jsonrpc/+/request",
		mqtttransport.WithQoS(1),
		mqtttransport.WithTimeout(100*time.Millisecond),
	)
	suite.Require().NoError(suite.server.Start())
}

func (suite *ServerTestSuite) TestRequestReply() {
	suite.Equal("jsonrpc/+/request", suite.client.subscribed)

	suite.client.deliver(&fakeMessage{
		topic:   "jsonrpc/dev1/request",
		payload: []byte(`{"jsonrpc":"2.0","method":"ping","id":1}`),
	})

	suite.Require().Len(suite.client.published, 1)
	suite.Equal("jsonrpc/dev1/response", suite.client.published[0].topic)
	suite.Equal(byte(1), suite.client.published[0].qos)
	suite.Equal(`{"jsonrpc":"2.0","result":"pong","id":1}`, string(suite.client.published[0].payload))
}

func (suite *ServerTestSuite) TestErrorReply() {
	suite.client.deliver(&fakeMessage{topic: "jsonrpc/dev1/request", payload: []byte(`{oops`)})

	suite.Require().Len(suite.client.published, 1)
	suite.Equal(`{"jsonrpc":"2.0","error":{"code":-32700,"message":"Parse error"},"id":null}`, string(suite.client.published[0].payload))
}

func (suite *ServerTestSuite) TestNoReply() {
	suite.client.deliver(&fakeMessage{topic: "jsonrpc/dev1/request", payload: []byte(`{"jsonrpc":"2.0","method":"ping"}`)})
	suite.client.deliver(&fakeMessage{topic: "jsonrpc/dev1/request", payload: nil})
	suite.client.deliver(&fakeMessage{
		topic:    "jsonrpc/dev1/request",
		payload:  []byte(`{"jsonrpc":"2.0","method":"ping","id":1}`),
		retained: true,
	})

	suite.Empty(suite.client.published)
}

func (suite *ServerTestSuite) TestTopicWithoutRequest() {
	// Matches the subscription but has no reply topic of its own
	suite.client.deliver(&fakeMessage{
		topic:   "jsonrpc/request-dev/rpc",
		payload: []byte(`{"jsonrpc":"2.0","method":"ping","id":1}`),
	})
	suite.client.deliver(&fakeMessage{
		topic:   "jsonrpc/dev1/rpc",
		payload: []byte(`{"jsonrpc":"2.0","method":"ping","id":1}`),
	})

	suite.Require().Len(suite.client.published, 1)
	suite.Equal("jsonrpc/response-dev/rpc", suite.client.published[0].topic)

	// A reply delivered back to the server is not answered again
	suite.client.deliver(&fakeMessage{
		topic:   suite.client.published[0].topic,
		payload: suite.client.published[0].payload,
	})
	suite.Len(suite.client.published, 1)
}

func (suite *ServerTestSuite) TestClose() {
	suite.NoError(suite.server.Close())
	suite.Equal([]string{"jsonrpc/+/request"}, suite.client.unsubscribed)
}

func TestServer(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}

func TestServer_StartErrors(t *testing.T) {
	pipeline := jsonrpc.NewPipeline(jsonrpc.DispatcherFunc(
		func(ctx context.Context, method string, args []any, kwargs map[string]any) (any, error) {
			return nil, nil
		}))

	client := &fakeClient{subscribeErr: errors.New("not authorized")}
	err := mqtttransport.New(client, pipeline, "a/request").Start()
	if err == nil {
		t.Fatal("expected subscribe error")
	}

	client = &fakeClient{}
	err = mqtttransport.New(client, pipeline, "jsonrpc/+/rpc").Start()
	if !errors.Is(err, mqtttransport.ErrInvalidTopic) {
		t.Fatalf("expected invalid topic, got %v", err)
	}
	if client.subscribed != "" {
		t.Fatalf("must not subscribe to %q", client.subscribed)
	}

	client = &fakeClient{subscribeTok: pendingToken()}
	err = mqtttransport.New(client, pipeline, "a/request", mqtttransport.WithTimeout(10*time.Millisecond)).Start()
	if !errors.Is(err, mqtttransport.ErrSubscribeTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestReplyTopic(t *testing.T) {
	cases := map[string]string{
		"jsonrpc/dev1/request": "jsonrpc/dev1/response",
		"request":              "response",
		"a/b":                  "a/b",
	}
	for in, want := range cases {
		if got := mqtttransport.ReplyTopic(in); got != want {
			t.Errorf("ReplyTopic(%q) = %q, want %q", in, got, want)
		}
	}
}

type reconnectingClient struct {
	*fakeClient
	callbacks []mqtttransport.OnConnectCallback
}

func (c *reconnectingClient) OnConnect(cb mqtttransport.OnConnectCallback) {
	c.callbacks = append(c.callbacks, cb)
}

func TestServer_Resubscribe(t *testing.T) {
	pipeline := jsonrpc.NewPipeline(jsonrpc.DispatcherFunc(
		func(ctx context.Context, method string, args []any, kwargs map[string]any) (any, error) {
			return nil, nil
		}))

	client := &reconnectingClient{fakeClient: &fakeClient{}}
	server := mqtttransport.New(client, pipeline, "a/+/request")
	if err := server.Start(); err != nil {
		t.Fatal(err)
	}
	if err := server.Start(); err != nil {
		t.Fatal(err)
	}
	if len(client.callbacks) != 1 {
		t.Fatalf("expected one reconnect callback, got %d", len(client.callbacks))
	}

	client.subscribed = ""
	client.callbacks[0]()
	if client.subscribed != "a/+/request" {
		t.Fatalf("expected resubscription, got %q", client.subscribed)
	}

	if err := server.Close(); err != nil {
		t.Fatal(err)
	}
	client.subscribed = ""
	client.callbacks[0]()
	if client.subscribed != "" {
		t.Fatal("closed server must not resubscribe")
	}
}
