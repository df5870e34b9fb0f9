package config

import (
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

const envPrefix = "JSONRPC_"

// Config holds the configuration of the example server.
type Config struct {
	Name        string        `yaml:"name"`
	Listen      string        `yaml:"listen"`
	Path        string        `yaml:"path"`
	MetricsPath string        `yaml:"metrics_path"`
	LogExchange bool          `yaml:"log_exchange"`
	ReadChunk   int           `yaml:"read_chunk"`
	Compression bool          `yaml:"compression"`
	Workers     int           `yaml:"workers"`
	Limiter     LimiterConfig `yaml:"limiter"`
	MQTT        MQTTConfig    `yaml:"mqtt"`
}

// LimiterConfig configures the registry rate limiter. A zero Burst disables it.
type LimiterConfig struct {
	Interval time.Duration `yaml:"interval"`
	Burst    int           `yaml:"burst"`
	Wait     bool          `yaml:"wait"`
}

// MQTTConfig configures the optional MQTT transport. An empty Broker disables it.
type MQTTConfig struct {
	Broker       string `yaml:"broker"`
	ClientID     string `yaml:"client_id"`
	RequestTopic string `yaml:"request_topic"`
	QoS          byte   `yaml:"qos"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Name:        "jsonrpc",
		Listen:      ":8080",
		Path:        "/rpc",
		MetricsPath: "/metrics",
		Limiter: LimiterConfig{
			Interval: time.Second,
		},
		MQTT: MQTTConfig{
			ClientID:     "jsonrpc-server",
			RequestTopic: "jsonrpc/+/request",
		},
	}
}

// Load reads the YAML file at path on top of Default and applies JSONRPC_*
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config file %s", path)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config file %s", path)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) error {
	if v, ok := lookup("NAME"); ok {
		cfg.Name = v
	}
	if v, ok := lookup("LISTEN"); ok {
		cfg.Listen = v
	}
	if v, ok := lookup("PATH"); ok {
		cfg.Path = v
	}
	if v, ok := lookup("MQTT_BROKER"); ok {
		cfg.MQTT.Broker = v
	}
	if v, ok := lookup("MQTT_CLIENT_ID"); ok {
		cfg.MQTT.ClientID = v
	}
	if v, ok := lookup("MQTT_REQUEST_TOPIC"); ok {
		cfg.MQTT.RequestTopic = v
	}
	if v, ok := lookup("WORKERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "%sWORKERS", envPrefix)
		}
		cfg.Workers = n
	}
	if v, ok := lookup("LOG_EXCHANGE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrapf(err, "%sLOG_EXCHANGE", envPrefix)
		}
		cfg.LogExchange = b
	}
	return nil
}

func lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + name)
	return v, ok && v != ""
}

// Validate checks the configuration for values the server cannot start with.
func (c *Config) Validate() error {
	if c.Listen == "" && c.MQTT.Broker == "" {
		return errors.New("config: neither listen nor mqtt.broker is set")
	}
	if c.Path == "" || c.Path[0] != '/' {
		return errors.Newf("config: path %q must start with /", c.Path)
	}
	if c.MetricsPath == "" || c.MetricsPath[0] != '/' || c.MetricsPath == c.Path {
		return errors.Newf("config: metrics_path %q must start with / and differ from path", c.MetricsPath)
	}
	if c.Limiter.Burst < 0 || c.Workers < 0 || c.ReadChunk < 0 {
		return errors.New("config: limiter.burst, workers and read_chunk must not be negative")
	}
	if c.Limiter.Burst > 0 && c.Limiter.Interval <= 0 {
		return errors.New("config: limiter.interval must be positive when limiter.burst is set")
	}
	if c.MQTT.QoS > 2 {
		return errors.Newf("config: mqtt.qos %d out of range", c.MQTT.QoS)
	}
	return nil
}
