package natsio

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	nats "github.com/nats-io/nats.go"
	"github.com/nsyszr/punchclock/pkg/client"
	"github.com/pkg/errors"
)

// DefaultBaseSubject prefixes every published subject. Events land on
// <base>.<device>.events.<topic>.
const DefaultBaseSubject = "punchclock.sync.v1"

type Config struct {
	URL         string
	BaseSubject string
	Name        string
}

func NewConfig(url string) *Config {
	return &Config{
		URL:         url,
		BaseSubject: DefaultBaseSubject,
		Name:        "punchclock",
	}
}

type natsClient struct {
	cfg *Config
	nc  *nats.Conn
}

// New connects to NATS and returns a Publisher using the connection.
func New(cfg *Config) (client.Publisher, error) {
	nc, err := nats.Connect(cfg.URL, nats.Name(cfg.Name))
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to nats")
	}
	return NewWithConn(cfg, nc), nil
}

// NewWithConn wraps an existing connection. Close closes nc.
func NewWithConn(cfg *Config, nc *nats.Conn) client.Publisher {
	return &natsClient{
		cfg: cfg,
		nc:  nc,
	}
}

func (c *natsClient) Publish(ctx context.Context, deviceID, topic string, details interface{}) error {
	msg := client.EventMessage{
		SourceType: client.SourceTypeDevice,
		SourceID:   deviceID,
		Timestamp:  time.Now().Round(time.Second).UTC(),
		Details:    details,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return c.nc.Publish(Subject(c.cfg.BaseSubject, deviceID, topic), data)
}

func (c *natsClient) Close() {
	c.nc.Close()
}

// Subject builds the subject of a device event. Dots and wildcards in the
// device id are replaced so that the id stays a single token.
func Subject(base, deviceID, topic string) string {
	return fmt.Sprintf("%s.%s.events.%s", base, token(deviceID), topic)
}

// ParseSubject splits a subject built by Subject into device token and
// topic.
func ParseSubject(base, subject string) (deviceID, topic string, ok bool) {
	s := strings.Split(strings.TrimPrefix(subject, base+"."), ".")
	if len(s) != 3 || s[1] != "events" {
		return "", "", false
	}
	return s[0], s[2], true
}

var tokenReplacer = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_")

func token(s string) string {
	return tokenReplacer.Replace(s)
}
