package mqtttransport

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// OnConnectCallback is called after every successful (re)connection.
type OnConnectCallback func()

// DialOption adjusts the paho client options before connecting.
type DialOption func(o *mqtt.ClientOptions)

// WithKeepAlive sets the keep alive interval. Defaults to 60 seconds.
func WithKeepAlive(d time.Duration) DialOption {
	return func(o *mqtt.ClientOptions) {
		o.SetKeepAlive(d)
	}
}

// WithCleanSession sets the clean session flag. Defaults to true.
func WithCleanSession(clean bool) DialOption {
	return func(o *mqtt.ClientOptions) {
		o.SetCleanSession(clean)
	}
}

// Conn is a connected paho client that reconnects automatically and runs
// registered callbacks on every reconnection.
type Conn struct {
	mqtt.Client

	printableURL string
	log          *zap.SugaredLogger

	onConnectMu sync.Mutex
	onConnect   []OnConnectCallback
}

// Dial connects to the broker at uri, which has the form scheme://[user:pass@]host:port
// with scheme tcp, ssl, ws or wss. It returns once the broker accepted the connection.
func Dial(ctx context.Context, uri, clientID string, opts ...DialOption) (*Conn, error) {
	server, err := url.Parse(uri)
	if err != nil {
		return nil, errors.Wrap(err, "parse broker uri")
	}
	if server.Scheme == "" || server.Host == "" {
		return nil, errors.Newf("broker uri %q must have a scheme and a host", uri)
	}

	printable := *server
	printable.User = nil

	conn := &Conn{
		printableURL: printable.String(),
		log:          zap.S().With("module", "jsonrpc.mqtt"),
	}

	o := mqtt.NewClientOptions().
		AddBroker(printable.String()).
		SetClientID(clientID).
		SetKeepAlive(60 * time.Second).
		SetAutoReconnect(true).
		SetOnConnectHandler(func(mqtt.Client) {
			conn.log.Infof("Connected %s", conn.printableURL)
			conn.onConnectMu.Lock()
			defer conn.onConnectMu.Unlock()
			for _, cb := range conn.onConnect {
				go cb()
			}
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			conn.log.Warnf("Connection lost %s: %v", conn.printableURL, err)
		})

	if server.User != nil {
		o.SetUsername(server.User.Username())
		if password, ok := server.User.Password(); ok {
			o.SetPassword(password)
		}
	}

	for _, opt := range opts {
		opt(o)
	}

	conn.Client = mqtt.NewClient(o)

	token := conn.Client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return nil, errors.Wrapf(err, "connect %s", conn.printableURL)
		}
	case <-ctx.Done():
		conn.Client.Disconnect(0)
		return nil, errors.Wrapf(ctx.Err(), "connect %s", conn.printableURL)
	}

	return conn, nil
}

// OnConnect registers a callback run after each later reconnection.
func (c *Conn) OnConnect(cb OnConnectCallback) {
	c.onConnectMu.Lock()
	defer c.onConnectMu.Unlock()
	c.onConnect = append(c.onConnect, cb)
}

// PrintableURL returns the broker address without credentials.
func (c *Conn) PrintableURL() string {
	return c.printableURL
}
